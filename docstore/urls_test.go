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
	"errors"
	"net/url"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestURLMux(t *testing.T) {
	ctx := context.Background()

	mux := new(URLMux)
	fake := &fakeOpener{}
	mux.RegisterStore("foo", fake)
	mux.RegisterStore("err", fake)

	if diff := cmp.Diff(mux.StoreSchemes(), []string{"err", "foo"}); diff != "" {
		t.Errorf("Schemes: %s", diff)
	}
	if !mux.ValidStoreScheme("foo") || !mux.ValidStoreScheme("err") {
		t.Errorf("ValidStoreScheme didn't return true for valid scheme")
	}
	if mux.ValidStoreScheme("foo2") || mux.ValidStoreScheme("http") {
		t.Errorf("ValidStoreScheme didn't return false for invalid scheme")
	}

	for _, tc := range []struct {
		name    string
		url     string
		wantErr bool
	}{
		{
			name:    "empty URL",
			wantErr: true,
		},
		{
			name:    "invalid URL",
			url:     ":foo",
			wantErr: true,
		},
		{
			name:    "invalid URL no scheme",
			url:     "foo",
			wantErr: true,
		},
		{
			name:    "unregistered scheme",
			url:     "bar://mystore",
			wantErr: true,
		},
		{
			name:    "func returns error",
			url:     "err://mystore",
			wantErr: true,
		},
		{
			name: "no query options",
			url:  "foo://mystore",
		},
		{
			name: "empty query options",
			url:  "foo://mystore?",
		},
		{
			name: "path",
			url:  "foo:///var/lib/docs.db?nosync=true",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, gotErr := mux.OpenStore(ctx, tc.url)
			if (gotErr != nil) != tc.wantErr {
				t.Fatalf("got err %v, want error %v", gotErr, tc.wantErr)
			}
			if gotErr != nil {
				return
			}
			if got := fake.u.String(); got != tc.url {
				t.Errorf("got %q want %q", got, tc.url)
			}
			// Repeat with OpenStoreURL.
			parsed, err := url.Parse(tc.url)
			if err != nil {
				t.Fatal(err)
			}
			_, gotErr = mux.OpenStoreURL(ctx, parsed)
			if gotErr != nil {
				t.Fatalf("got err %v want nil", gotErr)
			}
			if got := fake.u.String(); got != tc.url {
				t.Errorf("got %q want %q", got, tc.url)
			}
		})
	}
}

func TestRegisterTwicePanics(t *testing.T) {
	mux := new(URLMux)
	mux.RegisterStore("foo", &fakeOpener{})
	defer func() {
		if recover() == nil {
			t.Error("registering a scheme twice did not panic")
		}
	}()
	mux.RegisterStore("foo", &fakeOpener{})
}

type fakeOpener struct {
	u *url.URL // last url passed to OpenStoreURL
}

func (o *fakeOpener) OpenStoreURL(ctx context.Context, u *url.URL) (*Store, error) {
	if u.Scheme == "err" {
		return nil, errors.New("fail")
	}
	o.u = u
	return nil, nil
}
