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

package boltdocstore

import (
	"context"
	"net/url"
	"path/filepath"

	"revdoc.dev/docstore"
	"revdoc.dev/internal/openurl"
	"revdoc.dev/internal/rderr"
)

// Scheme is the URL scheme boltdocstore registers its URLOpener under.
const Scheme = "bolt"

// Register registers a URLOpener for Scheme on mux.
func Register(mux *docstore.URLMux) {
	mux.RegisterStore(Scheme, &URLOpener{})
}

// URLOpener opens URLs like "bolt:///var/lib/app/docs.db?nosync=true".
//
// The URL's path is the database file. The following query parameters are
// supported:
//   - nosync: sets Options.NoSync.
//   - timeout: sets Options.Timeout, as a duration like "1s".
//   - batchsize: sets Options.BatchSize.
type URLOpener struct {
	// Options are the defaults; URL parameters override them.
	Options Options
}

// OpenStoreURL opens a docstore.Store based on u.
func (o *URLOpener) OpenStoreURL(ctx context.Context, u *url.URL) (*docstore.Store, error) {
	path := filepath.FromSlash(u.Path)
	if u.Host != "" {
		path = filepath.FromSlash(u.Host + u.Path)
	}
	if path == "" {
		return nil, rderr.Newf(rderr.InvalidArgument, nil, "open store %v: missing database path", u)
	}
	p := openurl.NewParams(u)
	opts := o.Options
	opts.NoSync = p.Bool("nosync", opts.NoSync)
	opts.Timeout = p.Duration("timeout", opts.Timeout)
	opts.BatchSize = p.Int("batchsize", opts.BatchSize)
	if err := p.Done(); err != nil {
		return nil, err
	}
	return OpenStore(path, &opts)
}
