// Copyright 2026 The revdoc Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package docstore

import (
	"context"
	"net/url"

	"revdoc.dev/internal/openurl"
)

// StoreURLOpener opens a Store based on a URL.
// The opener must not modify the URL argument. It must be safe to call from
// multiple goroutines.
//
// This interface is generally implemented by types in driver packages.
type StoreURLOpener interface {
	OpenStoreURL(ctx context.Context, u *url.URL) (*Store, error)
}

// URLMux is a URL opener multiplexer. It matches the scheme of the URLs against
// a set of registered schemes and calls the opener that matches the URL's
// scheme.
//
// The zero value is a multiplexer with no registered scheme. There is no
// package-level mux: programs create one and register the drivers they use.
type URLMux struct {
	schemes openurl.SchemeMap[StoreURLOpener]
}

// StoreSchemes returns a sorted slice of the registered Store schemes.
func (mux *URLMux) StoreSchemes() []string { return mux.schemes.Schemes() }

// ValidStoreScheme returns true iff scheme has been registered for Stores.
func (mux *URLMux) ValidStoreScheme(scheme string) bool { return mux.schemes.ValidScheme(scheme) }

// RegisterStore registers the opener with the given scheme. If an opener
// already exists for the scheme, RegisterStore panics.
func (mux *URLMux) RegisterStore(scheme string, opener StoreURLOpener) {
	mux.schemes.Register(scheme, opener)
}

// OpenStore calls OpenStoreURL with the URL parsed from urlstr.
// OpenStore is safe to call from multiple goroutines.
func (mux *URLMux) OpenStore(ctx context.Context, urlstr string) (*Store, error) {
	opener, u, err := mux.schemes.FromString(urlstr)
	if err != nil {
		return nil, err
	}
	return opener.OpenStoreURL(ctx, u)
}

// OpenStoreURL dispatches the URL to the opener that is registered with
// the URL's scheme. OpenStoreURL is safe to call from multiple goroutines.
func (mux *URLMux) OpenStoreURL(ctx context.Context, u *url.URL) (*Store, error) {
	opener, err := mux.schemes.FromURL(u)
	if err != nil {
		return nil, err
	}
	return opener.OpenStoreURL(ctx, u)
}
