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
	"testing"

	"revdoc.dev/docstore"
)

func TestOpenStoreFromURL(t *testing.T) {
	mux := new(docstore.URLMux)
	Register(mux)
	dir := filepath.ToSlash(t.TempDir())
	tests := []struct {
		URL     string
		wantErr bool
	}{
		// OK.
		{"bolt://" + dir + "/a.db", false},
		{"bolt://" + dir + "/b.db?nosync=true&timeout=1s&batchsize=10", false},
		// Missing path.
		{"bolt://", true},
		// Invalid nosync.
		{"bolt://" + dir + "/c.db?nosync=maybe", true},
		// Invalid timeout.
		{"bolt://" + dir + "/d.db?timeout=soon", true},
		// Invalid parameter.
		{"bolt://" + dir + "/e.db?param=value", true},
	}
	ctx := context.Background()
	for _, test := range tests {
		s, err := mux.OpenStore(ctx, test.URL)
		if s != nil {
			defer s.Close()
		}
		if (err != nil) != test.wantErr {
			t.Errorf("%s: got error %v, want error %v", test.URL, err, test.wantErr)
		}
	}
}

func TestURLOpenerDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docs.db")
	o := &URLOpener{Options: Options{BatchSize: 5}}
	u := &url.URL{Scheme: Scheme, Path: filepath.ToSlash(path)}
	s, err := o.OpenStoreURL(context.Background(), u)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if _, err := s.CreateCollection(context.Background(), "c", docstore.DocumentCollection); err != nil {
		t.Fatal(err)
	}
}
