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

package memdocstore

import (
	"context"
	"net/url"

	"revdoc.dev/docstore"
	"revdoc.dev/internal/openurl"
)

// Scheme is the URL scheme memdocstore registers its URLOpener under.
const Scheme = "mem"

// Register registers a URLOpener for Scheme on mux.
func Register(mux *docstore.URLMux) {
	mux.RegisterStore(Scheme, &URLOpener{})
}

// URLOpener opens URLs like "mem://?filename=/tmp/docs.gob&batchsize=100".
//
// The URL's host and path are ignored. The following query parameters are
// supported:
//   - filename: sets Options.Filename.
//   - batchsize: sets Options.BatchSize.
type URLOpener struct {
	// Options are the defaults; URL parameters override them.
	Options Options
}

// OpenStoreURL opens a docstore.Store based on u.
func (o *URLOpener) OpenStoreURL(ctx context.Context, u *url.URL) (*docstore.Store, error) {
	p := openurl.NewParams(u)
	opts := o.Options
	opts.Filename = p.String("filename", opts.Filename)
	opts.BatchSize = p.Int("batchsize", opts.BatchSize)
	if err := p.Done(); err != nil {
		return nil, err
	}
	return OpenStore(&opts)
}
