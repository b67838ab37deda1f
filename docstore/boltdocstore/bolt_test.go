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
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.etcd.io/bbolt"

	"revdoc.dev/docstore"
	"revdoc.dev/docstore/driver"
	"revdoc.dev/docstore/drivertest"
	"revdoc.dev/rderrors"
)

type harness struct {
	dir  string
	opts *Options
}

func newHarness(ctx context.Context, t *testing.T) (drivertest.Harness, error) {
	return &harness{dir: t.TempDir(), opts: &Options{NoSync: true}}, nil
}

func newSyncHarness(ctx context.Context, t *testing.T) (drivertest.Harness, error) {
	return &harness{dir: t.TempDir(), opts: &Options{Timeout: time.Second}}, nil
}

func (h *harness) MakeBackend(context.Context) (driver.Backend, error) {
	return NewBackend(filepath.Join(h.dir, "docs.db"), h.opts)
}

func (*harness) Close() {}

func TestConformance(t *testing.T) {
	drivertest.RunConformanceTests(t, newHarness)
}

func TestConformanceSync(t *testing.T) {
	drivertest.RunConformanceTests(t, newSyncHarness)
}

func BenchmarkConformance(b *testing.B) {
	s, err := OpenStore(filepath.Join(b.TempDir(), "bench.db"), &Options{NoSync: true})
	if err != nil {
		b.Fatal(err)
	}
	drivertest.RunBenchmarks(b, s)
}

type docmap = map[string]any

func TestPersistence(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "docs.db")

	s, err := OpenStore(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	coll, err := s.CreateCollection(ctx, "users", docstore.DocumentCollection)
	if err != nil {
		t.Fatal(err)
	}
	al := coll.Actions()
	for _, k := range []string{"carol", "alice", "bob"} {
		al.Save(docmap{"_key": k, "name": k, "tags": []string{}, "meta": docmap{"n": nil}})
	}
	br, err := al.Do(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s, err = OpenStore(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	coll, err = s.CreateCollection(ctx, "users", docstore.DocumentCollection)
	if err != nil {
		t.Fatal(err)
	}
	got, err := coll.Read(ctx, "alice", nil)
	if err != nil {
		t.Fatal(err)
	}
	want := docstore.Document{
		"_id":  "users/alice",
		"_key": "alice",
		"_rev": br.Results[1].Write.Rev,
		"name": "alice",
		"tags": []any{},
		"meta": docstore.Document{"n": nil},
	}
	if diff := cmp.Diff(got, want); diff != "" {
		t.Errorf("got=-, want=+: %s", diff)
	}

	// Scans come back in key order.
	st, err := s.NewStatement("FOR doc IN @@collection RETURN doc", &docstore.StatementOptions{
		BindVars: map[string]any{"@collection": "users"},
	})
	if err != nil {
		t.Fatal(err)
	}
	cur, err := st.Execute(ctx)
	if err != nil {
		t.Fatal(err)
	}
	docs, err := cur.Elements(ctx)
	if err != nil {
		t.Fatal(err)
	}
	var keys []string
	for _, d := range docs {
		keys = append(keys, d["_key"].(string))
	}
	if diff := cmp.Diff(keys, []string{"alice", "bob", "carol"}); diff != "" {
		t.Errorf("got=-, want=+: %s", diff)
	}
}

func TestEncodingIsCanonical(t *testing.T) {
	a, err := encodeDoc(driver.Document{"b": int64(1), "a": driver.Document{"y": true, "x": "s"}})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		b, err := encodeDoc(driver.Document{"a": driver.Document{"x": "s", "y": true}, "b": int64(1)})
		if err != nil {
			t.Fatal(err)
		}
		if string(a) != string(b) {
			t.Fatal("encoding depends on map order")
		}
	}
}

func TestLockTimeout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docs.db")
	b, err := NewBackend(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	_, err = NewBackend(path, &Options{Timeout: 50 * time.Millisecond})
	if got := rderrors.Code(err); got != rderrors.DeadlineExceeded {
		t.Errorf("got %v (%v), want DeadlineExceeded", got, err)
	}
}

func TestErrorCode(t *testing.T) {
	b := &Backend{}
	for _, test := range []struct {
		err  error
		want rderrors.ErrorCode
	}{
		{bbolt.ErrTimeout, rderrors.DeadlineExceeded},
		{bbolt.ErrDatabaseNotOpen, rderrors.FailedPrecondition},
		{bbolt.ErrKeyTooLarge, rderrors.InvalidArgument},
		{context.Canceled, rderrors.Canceled},
	} {
		if got := b.ErrorCode(test.err); got != test.want {
			t.Errorf("%v: got %v, want %v", test.err, got, test.want)
		}
	}
}

func TestStoredDocument(t *testing.T) {
	ctx := context.Background()
	b, err := NewBackend(filepath.Join(t.TempDir(), "docs.db"), &Options{NoSync: true})
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	if err := b.EnsureCollection(ctx, "c"); err != nil {
		t.Fatal(err)
	}
	doc := driver.Document{
		"raw":    []byte("xy"),
		"str":    "xy",
		"n":      int64(-3),
		"big":    uint64(1) << 63,
		"f":      1.5,
		"list":   []any{[]byte{0}, int64(1), nil},
		"nested": driver.Document{"b": []byte{}, "m": driver.Document{}},
	}
	err = b.ApplyMutation(ctx, &driver.Mutation{Collection: "c", Key: "k", Apply: func(driver.Document) (driver.Commit, error) {
		return driver.Commit{Op: driver.Put, Doc: driver.Copy(doc)}, nil
	}})
	if err != nil {
		t.Fatal(err)
	}

	// The bucket holds the canonical encoding.
	want, err := encodeDoc(doc)
	if err != nil {
		t.Fatal(err)
	}
	var raw []byte
	err = b.DB().View(func(tx *bbolt.Tx) error {
		raw = append(raw, tx.Bucket([]byte("c")).Get([]byte("k"))...)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != string(want) {
		t.Errorf("stored bytes differ from the encoding of the document")
	}

	// Bytes stay bytes, and the rest comes back normalized.
	got, err := b.Get(ctx, "c", "k")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(got, doc); diff != "" {
		t.Errorf("got=-, want=+: %s", diff)
	}
}
