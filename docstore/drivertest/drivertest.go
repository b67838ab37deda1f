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

// Package drivertest provides a conformance test for implementations of
// driver.Backend.
package drivertest // import "revdoc.dev/docstore/drivertest"

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/sync/errgroup"

	ds "revdoc.dev/docstore"
	"revdoc.dev/docstore/driver"
	"revdoc.dev/docstore/localquery"
	"revdoc.dev/rderrors"
)

// Harness describes the functionality test harnesses must provide to run
// conformance tests.
type Harness interface {
	// MakeBackend makes an empty driver.Backend for testing. The conformance
	// tests close it.
	MakeBackend(context.Context) (driver.Backend, error)

	// Close closes resources used by the harness.
	Close()
}

// HarnessMaker describes functions that construct a harness for running tests.
// It is called exactly once per test; Harness.Close() will be called when the test is complete.
type HarnessMaker func(ctx context.Context, t *testing.T) (Harness, error)

// RunConformanceTests runs conformance tests for driver implementations of docstore.
func RunConformanceTests(t *testing.T, newHarness HarnessMaker) {
	t.Run("Save", func(t *testing.T) { withStore(t, newHarness, testSave) })
	t.Run("SaveOverwrite", func(t *testing.T) { withStore(t, newHarness, testSaveOverwrite) })
	t.Run("Read", func(t *testing.T) { withStore(t, newHarness, testRead) })
	t.Run("Replace", func(t *testing.T) { withStore(t, newHarness, testReplace) })
	t.Run("Remove", func(t *testing.T) { withStore(t, newHarness, testRemove) })
	t.Run("RevisionCheck", func(t *testing.T) { withStore(t, newHarness, testRevisionCheck) })
	t.Run("LastWriteWins", func(t *testing.T) { withStore(t, newHarness, testLastWriteWins) })
	t.Run("Revisions", func(t *testing.T) { withStore(t, newHarness, testRevisions) })
	t.Run("KeepNull", func(t *testing.T) { withStore(t, newHarness, testKeepNull) })
	t.Run("MergeObjects", func(t *testing.T) { withStore(t, newHarness, testMergeObjects) })
	t.Run("ZeroWriteOptions", func(t *testing.T) { withStore(t, newHarness, testZeroWriteOptions) })
	t.Run("Upsert", func(t *testing.T) { withStore(t, newHarness, testUpsert) })
	t.Run("UpsertBatch", func(t *testing.T) { withStore(t, newHarness, testUpsertBatch) })
	t.Run("ActionList", func(t *testing.T) { withStore(t, newHarness, testActionList) })
	t.Run("Edges", func(t *testing.T) { withStore(t, newHarness, testEdges) })
	t.Run("ConcurrentConditionalWrites", func(t *testing.T) { withStore(t, newHarness, testConcurrentConditionalWrites) })
	t.Run("Data", func(t *testing.T) { withStore(t, newHarness, testData) })
	t.Run("WaitForDurable", func(t *testing.T) { withStore(t, newHarness, testWaitForDurable) })
	t.Run("Cursor", func(t *testing.T) { withStore(t, newHarness, testCursor) })
	t.Run("CursorDispose", func(t *testing.T) { withStore(t, newHarness, testCursorDispose) })
}

// withStore calls f with a Store over a fresh backend, and the executor
// that runs its queries. Queries return at most queryBatchSize documents
// per batch unless they ask otherwise.
func withStore(t *testing.T, newHarness HarnessMaker, f func(*testing.T, *ds.Store, *localquery.Executor)) {
	ctx := context.Background()
	h, err := newHarness(ctx, t)
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()

	b, err := h.MakeBackend(ctx)
	if err != nil {
		t.Fatal(err)
	}
	exec := localquery.New(b, &localquery.Options{BatchSize: queryBatchSize})
	s := ds.NewStore(b, exec)
	defer func() {
		if err := s.Close(); err != nil {
			t.Error(err)
		}
	}()
	f(t, s, exec)
}

const queryBatchSize = 3

// Names of the collections used by the tests.
const (
	DocsCollection  = "docs"
	EdgesCollection = "edges"
)

type docmap = map[string]any

func mustCollection(t *testing.T, s *ds.Store, name string, kind ds.CollectionKind) *ds.Collection {
	t.Helper()
	c, err := s.CreateCollection(context.Background(), name, kind)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func docs(t *testing.T, s *ds.Store) *ds.Collection {
	return mustCollection(t, s, DocsCollection, ds.DocumentCollection)
}

func writeOpts(f func(*ds.WriteOptions)) *ds.WriteOptions {
	o := &ds.WriteOptions{}
	f(o)
	return o
}

func mustSave(t *testing.T, coll *ds.Collection, doc any) *ds.WriteResult {
	t.Helper()
	res, err := coll.Save(context.Background(), doc, nil)
	if err != nil {
		t.Fatal(err)
	}
	return res
}

func mustRead(t *testing.T, coll *ds.Collection, locator string) ds.Document {
	t.Helper()
	doc, err := coll.Read(context.Background(), locator, nil)
	if err != nil {
		t.Fatal(err)
	}
	return doc
}

// userFields returns doc without its _id, _key and _rev.
func userFields(doc ds.Document) ds.Document {
	out := ds.Document{}
	for k, v := range doc {
		if k != ds.IDField && k != ds.KeyField && k != ds.RevField {
			out[k] = v
		}
	}
	return out
}

func testSave(t *testing.T, s *ds.Store, _ *localquery.Executor) {
	ctx := context.Background()
	coll := docs(t, s)

	// Generated key.
	res := mustSave(t, coll, docmap{"a": 1})
	if res.Key == "" || res.ID != DocsCollection+"/"+res.Key || res.Rev == "" || res.OldRev != "" {
		t.Fatalf("got %+v", res)
	}
	want := ds.Document{ds.IDField: res.ID, ds.KeyField: res.Key, ds.RevField: res.Rev, "a": int64(1)}
	if diff := cmpDiff(mustRead(t, coll, res.Key), want); diff != "" {
		t.Errorf("got=-, want=+: %s", diff)
	}

	// Generated keys come from driver.UniqueString, so reseeding it repeats
	// the key.
	restore := MakeUniqueStringDeterministicForTesting(1)
	seeded := mustSave(t, coll, docmap{"n": 1})
	MakeUniqueStringDeterministicForTesting(1)
	_, dupErr := coll.Save(ctx, docmap{"n": 2}, nil)
	restore()
	checkCode(t, dupErr, rderrors.KeyDuplicate)
	checkLocator(t, dupErr, DocsCollection, seeded.Key)

	// Key from _key, or from _id.
	if res := mustSave(t, coll, docmap{ds.KeyField: "k1"}); res.Key != "k1" {
		t.Errorf("got key %q, want k1", res.Key)
	}
	if res := mustSave(t, coll, docmap{ds.IDField: "docs/k2"}); res.Key != "k2" {
		t.Errorf("got key %q, want k2", res.Key)
	}
	if res := mustSave(t, coll, docmap{ds.IDField: "docs/k3", ds.KeyField: "k3"}); res.Key != "k3" {
		t.Errorf("got key %q, want k3", res.Key)
	}

	// ReturnNew.
	res, err := coll.Save(ctx, docmap{ds.KeyField: "k4", "b": nil}, writeOpts(func(o *ds.WriteOptions) { o.ReturnNew = true }))
	if err != nil {
		t.Fatal(err)
	}
	want = ds.Document{ds.IDField: "docs/k4", ds.KeyField: "k4", ds.RevField: res.Rev, "b": nil}
	if diff := cmpDiff(res.New, want); diff != "" {
		t.Errorf("New: got=-, want=+: %s", diff)
	}
	if res.Old != nil {
		t.Errorf("Old: got %v, want nil", res.Old)
	}

	_, err = coll.Save(ctx, docmap{ds.KeyField: "k1", "other": true}, nil)
	checkCode(t, err, rderrors.KeyDuplicate)
	checkLocator(t, err, DocsCollection, "k1")
	if _, ok := mustRead(t, coll, "k1")["other"]; ok {
		t.Error("duplicate save changed the document")
	}

	for _, test := range []struct {
		name string
		doc  any
		want rderrors.ErrorCode
	}{
		{"slash in key", docmap{ds.KeyField: "a/b"}, rderrors.KeyMalformed},
		{"space in key", docmap{ds.KeyField: "a b"}, rderrors.KeyMalformed},
		{"empty key", docmap{ds.KeyField: ""}, rderrors.KeyMalformed},
		{"long key", docmap{ds.KeyField: strings.Repeat("x", 255)}, rderrors.KeyMalformed},
		{"non-string key", docmap{ds.KeyField: 7}, rderrors.KeyMalformed},
		{"id in other collection", docmap{ds.IDField: "other/k"}, rderrors.CrossCollection},
		{"id disagrees with key", docmap{ds.KeyField: "k5", ds.IDField: "docs/k6"}, rderrors.HandleMalformed},
		{"id without key", docmap{ds.IDField: "docs/"}, rderrors.HandleMalformed},
		{"id without collection", docmap{ds.IDField: "k7"}, rderrors.HandleMalformed},
		{"scalar", 3, rderrors.TypeInvalid},
		{"list", []any{docmap{}}, rderrors.TypeInvalid},
		{"nil", nil, rderrors.TypeInvalid},
		{"edge fields", docmap{ds.FromField: "docs/a", ds.ToField: "docs/b"}, rderrors.EdgeAttributeInvalid},
	} {
		t.Run(test.name, func(t *testing.T) {
			_, err := coll.Save(ctx, test.doc, nil)
			checkCode(t, err, test.want)
		})
	}

	// A long key at the limit is fine.
	long := strings.Repeat("y", 254)
	if res := mustSave(t, coll, docmap{ds.KeyField: long}); res.Key != long {
		t.Errorf("got key %q", res.Key)
	}
}

func testSaveOverwrite(t *testing.T, s *ds.Store, _ *localquery.Executor) {
	ctx := context.Background()
	coll := docs(t, s)
	first := mustSave(t, coll, docmap{ds.KeyField: "k", "a": 1, "b": docmap{"x": 1}})

	res, err := coll.Save(ctx, docmap{ds.KeyField: "k", "a": 2}, writeOpts(func(o *ds.WriteOptions) { o.Overwrite = ds.OverwriteIgnore }))
	if err != nil {
		t.Fatal(err)
	}
	if res.Rev != first.Rev {
		t.Errorf("ignore: got revision %q, want the stored %q", res.Rev, first.Rev)
	}
	if got := mustRead(t, coll, "k")["a"]; got != int64(1) {
		t.Errorf("ignore: got a=%v, want 1", got)
	}

	res, err = coll.Save(ctx, docmap{ds.KeyField: "k", "b": docmap{"y": 2}}, writeOpts(func(o *ds.WriteOptions) { o.Overwrite = ds.OverwriteUpdate }))
	if err != nil {
		t.Fatal(err)
	}
	if res.OldRev != first.Rev || res.Rev == first.Rev {
		t.Errorf("update: got revisions %q -> %q", res.OldRev, res.Rev)
	}
	want := ds.Document{"a": int64(1), "b": ds.Document{"x": int64(1), "y": int64(2)}}
	if diff := cmpDiff(userFields(mustRead(t, coll, "k")), want); diff != "" {
		t.Errorf("update: got=-, want=+: %s", diff)
	}

	_, err = coll.Save(ctx, docmap{ds.KeyField: "k", "c": 3}, writeOpts(func(o *ds.WriteOptions) { o.Overwrite = ds.OverwriteReplace }))
	if err != nil {
		t.Fatal(err)
	}
	want = ds.Document{"c": int64(3)}
	if diff := cmpDiff(userFields(mustRead(t, coll, "k")), want); diff != "" {
		t.Errorf("replace: got=-, want=+: %s", diff)
	}

	// Overwrite modes do not affect new keys.
	res, err = coll.Save(ctx, docmap{ds.KeyField: "new", "d": 4}, writeOpts(func(o *ds.WriteOptions) { o.Overwrite = ds.OverwriteReplace }))
	if err != nil {
		t.Fatal(err)
	}
	if res.OldRev != "" {
		t.Errorf("insert: got OldRev %q", res.OldRev)
	}
}

func testRead(t *testing.T, s *ds.Store, _ *localquery.Executor) {
	ctx := context.Background()
	coll := docs(t, s)
	res := mustSave(t, coll, docmap{ds.KeyField: "k", "a": 1})

	if doc := mustRead(t, coll, "docs/k"); doc[ds.RevField] != res.Rev {
		t.Errorf("read by identifier: got %v", doc)
	}
	if _, err := coll.Read(ctx, "k", &ds.ReadOptions{ExpectedRevision: res.Rev}); err != nil {
		t.Errorf("read with current revision: %v", err)
	}
	_, err := coll.Read(ctx, "k", &ds.ReadOptions{ExpectedRevision: "stale"})
	checkCode(t, err, rderrors.Conflict)
	checkLocator(t, err, DocsCollection, "k")

	for _, test := range []struct {
		locator string
		want    rderrors.ErrorCode
	}{
		{"missing", rderrors.NotFound},
		{"docs/missing", rderrors.NotFound},
		{"other/k", rderrors.CrossCollection},
		{"", rderrors.HandleMalformed},
		{"docs/k/x", rderrors.HandleMalformed},
		{"/k", rderrors.HandleMalformed},
		{"docs/", rderrors.HandleMalformed},
		{"a b", rderrors.KeyMalformed},
	} {
		_, err := coll.Read(ctx, test.locator, nil)
		if got := rderrors.Code(err); got != test.want {
			t.Errorf("%q: got %v (%v), want %v", test.locator, got, err, test.want)
		}
	}
	_, err = coll.Read(ctx, "missing", nil)
	checkLocator(t, err, DocsCollection, "missing")
}

func testReplace(t *testing.T, s *ds.Store, _ *localquery.Executor) {
	ctx := context.Background()
	coll := docs(t, s)
	first := mustSave(t, coll, docmap{ds.KeyField: "k", "a": 1, "b": 2})

	res, err := coll.Replace(ctx, "k", docmap{"c": 3, ds.RevField: "ignored"}, writeOpts(func(o *ds.WriteOptions) {
		o.ReturnOld = true
		o.ReturnNew = true
	}))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmpDiff(userFields(res.Old), ds.Document{"a": int64(1), "b": int64(2)}); diff != "" {
		t.Errorf("Old: got=-, want=+: %s", diff)
	}
	want := ds.Document{ds.IDField: "docs/k", ds.KeyField: "k", ds.RevField: res.Rev, "c": int64(3)}
	if diff := cmpDiff(res.New, want); diff != "" {
		t.Errorf("New: got=-, want=+: %s", diff)
	}
	if diff := cmpDiff(mustRead(t, coll, "k"), want); diff != "" {
		t.Errorf("stored: got=-, want=+: %s", diff)
	}
	if res.OldRev != first.Rev {
		t.Errorf("got OldRev %q, want %q", res.OldRev, first.Rev)
	}

	_, err = coll.Replace(ctx, "missing", docmap{"c": 3}, nil)
	checkCode(t, err, rderrors.NotFound)
	_, err = coll.Update(ctx, "missing", docmap{"c": 3}, nil)
	checkCode(t, err, rderrors.NotFound)
	_, err = coll.Replace(ctx, "k", docmap{ds.KeyField: "other"}, nil)
	checkCode(t, err, rderrors.HandleMalformed)
	_, err = coll.Update(ctx, "k", docmap{ds.IDField: "other/k"}, nil)
	checkCode(t, err, rderrors.CrossCollection)
	_, err = coll.Update(ctx, "k", "not a document", nil)
	checkCode(t, err, rderrors.TypeInvalid)
}

func testRemove(t *testing.T, s *ds.Store, _ *localquery.Executor) {
	ctx := context.Background()
	coll := docs(t, s)
	first := mustSave(t, coll, docmap{ds.KeyField: "k", "a": 1})

	res, err := coll.Remove(ctx, "docs/k", writeOpts(func(o *ds.WriteOptions) { o.ReturnOld = true }))
	if err != nil {
		t.Fatal(err)
	}
	want := ds.Document{ds.IDField: "docs/k", ds.KeyField: "k", ds.RevField: first.Rev, "a": int64(1)}
	if diff := cmpDiff(res.Old, want); diff != "" {
		t.Errorf("Old: got=-, want=+: %s", diff)
	}
	if res.Rev != first.Rev || res.New != nil {
		t.Errorf("got %+v", res)
	}
	_, err = coll.Read(ctx, "k", nil)
	checkCode(t, err, rderrors.NotFound)
	_, err = coll.Remove(ctx, "k", nil)
	checkCode(t, err, rderrors.NotFound)

	// A re-created key starts a new revision lineage.
	second := mustSave(t, coll, docmap{ds.KeyField: "k", "a": 2})
	if second.Rev == first.Rev {
		t.Errorf("re-created document reused revision %q", first.Rev)
	}
	_, err = coll.Update(ctx, "k", docmap{"a": 3}, writeOpts(func(o *ds.WriteOptions) { o.ExpectedRevision = first.Rev }))
	checkCode(t, err, rderrors.Conflict)
}

// Conditional writes succeed exactly when the expected revision is current.
func testRevisionCheck(t *testing.T, s *ds.Store, _ *localquery.Executor) {
	ctx := context.Background()
	coll := docs(t, s)
	first := mustSave(t, coll, docmap{ds.KeyField: "k", "n": 1})
	stored := mustRead(t, coll, "k")

	stale := writeOpts(func(o *ds.WriteOptions) { o.ExpectedRevision = "stale" })
	for _, write := range []struct {
		name string
		f    func() error
	}{
		{"Update", func() error { _, err := coll.Update(ctx, "k", docmap{"n": 2}, stale); return err }},
		{"Replace", func() error { _, err := coll.Replace(ctx, "k", docmap{"n": 2}, stale); return err }},
		{"Remove", func() error { _, err := coll.Remove(ctx, "k", stale); return err }},
		{"Upsert", func() error { _, err := coll.Upsert(ctx, "k", nil, docmap{"n": 2}, stale); return err }},
		{"Save", func() error {
			o := *stale
			o.Overwrite = ds.OverwriteReplace
			_, err := coll.Save(ctx, docmap{ds.KeyField: "k", "n": 2}, &o)
			return err
		}},
	} {
		t.Run(write.name, func(t *testing.T) {
			err := write.f()
			checkCode(t, err, rderrors.Conflict)
			checkLocator(t, err, DocsCollection, "k")
			if diff := cmpDiff(mustRead(t, coll, "k"), stored); diff != "" {
				t.Errorf("document changed: got=-, want=+: %s", diff)
			}
		})
	}

	res, err := coll.Update(ctx, "k", docmap{"n": 2}, writeOpts(func(o *ds.WriteOptions) { o.ExpectedRevision = first.Rev }))
	if err != nil {
		t.Fatal(err)
	}
	if res.Rev == first.Rev || res.OldRev != first.Rev {
		t.Errorf("got revisions %q -> %q, want a new one after %q", res.OldRev, res.Rev, first.Rev)
	}
	// The first revision is now stale.
	_, err = coll.Update(ctx, "k", docmap{"n": 3}, writeOpts(func(o *ds.WriteOptions) { o.ExpectedRevision = first.Rev }))
	checkCode(t, err, rderrors.Conflict)

	// With CheckPayloadRev, the payload's _rev is the condition.
	checkRevs := writeOpts(func(o *ds.WriteOptions) { o.CheckPayloadRev = true })
	_, err = coll.Update(ctx, "k", docmap{ds.RevField: first.Rev, "n": 3}, checkRevs)
	checkCode(t, err, rderrors.Conflict)
	if _, err := coll.Update(ctx, "k", docmap{ds.RevField: res.Rev, "n": 3}, checkRevs); err != nil {
		t.Errorf("payload with current _rev: %v", err)
	}
	// Otherwise it is not.
	if _, err := coll.Update(ctx, "k", docmap{ds.RevField: "bogus", "n": 4}, nil); err != nil {
		t.Errorf("payload _rev without CheckPayloadRev: %v", err)
	}
	if got := mustRead(t, coll, "k")["n"]; got != int64(4) {
		t.Errorf("got n=%v, want 4", got)
	}
}

// LastWriteWins applies writes however stale their condition.
func testLastWriteWins(t *testing.T, s *ds.Store, _ *localquery.Executor) {
	ctx := context.Background()
	coll := docs(t, s)
	mustSave(t, coll, docmap{ds.KeyField: "k", "n": 1})

	lww := writeOpts(func(o *ds.WriteOptions) {
		o.ExpectedRevision = "very-stale"
		o.Policy = ds.LastWriteWins
	})
	for i := 2; i <= 3; i++ {
		if _, err := coll.Update(ctx, "k", docmap{"n": i}, lww); err != nil {
			t.Fatalf("update #%d: %v", i, err)
		}
		if got := mustRead(t, coll, "k")["n"]; got != int64(i) {
			t.Errorf("got n=%v, want %d", got, i)
		}
	}
	if _, err := coll.Replace(ctx, "k", docmap{"m": 1}, lww); err != nil {
		t.Fatal(err)
	}
	if _, err := coll.Remove(ctx, "k", lww); err != nil {
		t.Fatal(err)
	}
}

// Every write assigns a new revision that sorts after the previous one.
func testRevisions(t *testing.T, s *ds.Store, _ *localquery.Executor) {
	ctx := context.Background()
	coll := docs(t, s)
	seen := map[string]bool{}
	res := mustSave(t, coll, docmap{ds.KeyField: "k"})
	seen[res.Rev] = true
	prev := res.Rev
	for i := 0; i < 20; i++ {
		res, err := coll.Update(ctx, "k", docmap{"i": i}, nil)
		if err != nil {
			t.Fatal(err)
		}
		if res.Rev <= prev || seen[res.Rev] {
			t.Fatalf("#%d: revision %q after %q", i, res.Rev, prev)
		}
		seen[res.Rev] = true
		prev = res.Rev
	}
	if _, err := coll.Remove(ctx, "k", nil); err != nil {
		t.Fatal(err)
	}
	if res := mustSave(t, coll, docmap{ds.KeyField: "k"}); seen[res.Rev] {
		t.Errorf("revision %q reused", res.Rev)
	}
}

// A null in an update is kept or removed, and the difference is visible.
func testKeepNull(t *testing.T, s *ds.Store, _ *localquery.Executor) {
	ctx := context.Background()
	coll := docs(t, s)
	mustSave(t, coll, docmap{ds.KeyField: "k", "a": 1, "b": 2, "m": docmap{"x": 1, "y": 2}})

	res, err := coll.Update(ctx, "k", docmap{"a": nil, "m": docmap{"x": nil}}, &ds.WriteOptions{ReturnNew: true})
	if err != nil {
		t.Fatal(err)
	}
	for _, doc := range []ds.Document{res.New, mustRead(t, coll, "k")} {
		if v, ok := doc["a"]; !ok || v != nil {
			t.Errorf("keepNull: got a=%v (present=%t), want a present null", v, ok)
		}
		if v, ok := doc["m"].(ds.Document)["x"]; !ok || v != nil {
			t.Errorf("keepNull: got m.x=%v (present=%t), want present null", v, ok)
		}
	}

	res, err = coll.Update(ctx, "k", docmap{"b": nil, "m": docmap{"y": nil}}, writeOpts(func(o *ds.WriteOptions) {
		o.DropNulls = true
		o.ReturnNew = true
	}))
	if err != nil {
		t.Fatal(err)
	}
	for _, doc := range []ds.Document{res.New, mustRead(t, coll, "k")} {
		if _, ok := doc["b"]; ok {
			t.Error("no keepNull: field b is present")
		}
		if _, ok := doc["m"].(ds.Document)["y"]; ok {
			t.Error("no keepNull: field m.y is present")
		}
	}
	want := ds.Document{"a": nil, "m": ds.Document{"x": nil}}
	if diff := cmpDiff(userFields(mustRead(t, coll, "k")), want); diff != "" {
		t.Errorf("got=-, want=+: %s", diff)
	}
}

func testMergeObjects(t *testing.T, s *ds.Store, _ *localquery.Executor) {
	ctx := context.Background()
	coll := docs(t, s)
	initial := docmap{"values": docmap{"foo": 1, "bar": 2, "baz": 3}}
	mustSave(t, coll, docmap{ds.KeyField: "k", "values": initial["values"]})

	for _, test := range []struct {
		merge bool
		want  ds.Document
	}{
		{true, ds.Document{"foo": int64(1), "bar": int64(42), "baz": int64(3)}},
		{false, ds.Document{"bar": int64(42)}},
	} {
		if _, err := coll.Replace(ctx, "k", initial, nil); err != nil {
			t.Fatal(err)
		}
		_, err := coll.Update(ctx, "k", docmap{"values": docmap{"bar": 42}}, writeOpts(func(o *ds.WriteOptions) { o.ReplaceObjects = !test.merge }))
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmpDiff(mustRead(t, coll, "k")["values"], test.want); diff != "" {
			t.Errorf("mergeObjects=%t: got=-, want=+: %s", test.merge, diff)
		}
	}
}

// A non-nil WriteOptions that only sets a condition keeps nulls, merges
// nested documents and ignores the payload's _rev.
func testZeroWriteOptions(t *testing.T, s *ds.Store, _ *localquery.Executor) {
	ctx := context.Background()
	coll := docs(t, s)
	saved := mustSave(t, coll, docmap{ds.KeyField: "k", "a": 1, "values": docmap{"foo": 1, "bar": 2}})

	_, err := coll.Update(ctx, "k", docmap{ds.RevField: "stale", "a": nil, "values": docmap{"bar": 42}}, &ds.WriteOptions{ExpectedRevision: saved.Rev})
	if err != nil {
		t.Fatal(err)
	}
	want := ds.Document{"a": nil, "values": ds.Document{"foo": int64(1), "bar": int64(42)}}
	if diff := cmpDiff(userFields(mustRead(t, coll, "k")), want); diff != "" {
		t.Errorf("got=-, want=+: %s", diff)
	}
}

func testUpsert(t *testing.T, s *ds.Store, _ *localquery.Executor) {
	ctx := context.Background()
	coll := docs(t, s)
	stale := writeOpts(func(o *ds.WriteOptions) {
		o.ExpectedRevision = "stale"
		o.ReturnOld = true
	})

	// The insert branch has no revision to check.
	res, err := coll.Upsert(ctx, "k", docmap{"n": 1}, docmap{"seen": true}, stale)
	if err != nil {
		t.Fatal(err)
	}
	if res.Old != nil || res.OldRev != "" {
		t.Errorf("insert branch: got %+v", res)
	}
	if diff := cmpDiff(userFields(mustRead(t, coll, "k")), ds.Document{"n": int64(1)}); diff != "" {
		t.Errorf("insert branch: got=-, want=+: %s", diff)
	}

	// The update branch does.
	_, err = coll.Upsert(ctx, "k", docmap{"n": 1}, docmap{"seen": true}, stale)
	checkCode(t, err, rderrors.Conflict)
	res, err = coll.Upsert(ctx, "k", docmap{"n": 1}, docmap{"seen": true}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmpDiff(userFields(mustRead(t, coll, "k")), ds.Document{"n": int64(1), "seen": true}); diff != "" {
		t.Errorf("update branch: got=-, want=+: %s", diff)
	}

	_, err = coll.Upsert(ctx, "k", nil, docmap{"only": 1}, writeOpts(func(o *ds.WriteOptions) { o.UpsertMode = ds.UpsertReplace }))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmpDiff(userFields(mustRead(t, coll, "k")), ds.Document{"only": int64(1)}); diff != "" {
		t.Errorf("replace branch: got=-, want=+: %s", diff)
	}

	// Without an insert document, the patch is inserted.
	if _, err := coll.Upsert(ctx, "k2", nil, docmap{"p": 1}, nil); err != nil {
		t.Fatal(err)
	}
	if diff := cmpDiff(userFields(mustRead(t, coll, "k2")), ds.Document{"p": int64(1)}); diff != "" {
		t.Errorf("patch insert: got=-, want=+: %s", diff)
	}

	_, err = coll.Upsert(ctx, "k3", docmap{ds.KeyField: "other"}, docmap{}, nil)
	checkCode(t, err, rderrors.HandleMalformed)
}

// In a batch of upserts, exactly the documents that existed report an old
// projection.
func testUpsertBatch(t *testing.T, s *ds.Store, _ *localquery.Executor) {
	ctx := context.Background()
	coll := docs(t, s)
	const n = 8
	for i := 0; i < n; i += 2 {
		mustSave(t, coll, docmap{ds.KeyField: fmt.Sprintf("k%d", i), "n": 0})
	}
	al := coll.Actions()
	for i := 0; i < n; i++ {
		al.Upsert(fmt.Sprintf("k%d", i), docmap{"n": 100}, docmap{"seen": true})
	}
	br, err := al.Do(ctx, writeOpts(func(o *ds.WriteOptions) {
		o.ReturnOld = true
		o.ReturnNew = true
	}))
	if err != nil {
		t.Fatal(err)
	}
	if len(br.Results) != n {
		t.Fatalf("got %d results, want %d", len(br.Results), n)
	}
	for i, r := range br.Results {
		existed := i%2 == 0
		w := r.Write
		if w == nil {
			t.Fatalf("#%d: no write result", i)
		}
		if got := w.Old != nil; got != existed {
			t.Errorf("#%d: got old projection %v, want present=%t", i, w.Old, existed)
		}
		want := ds.Document{"n": int64(100)}
		if existed {
			want = ds.Document{"n": int64(0), "seen": true}
		}
		if diff := cmpDiff(userFields(w.New), want); diff != "" {
			t.Errorf("#%d: got=-, want=+: %s", i, diff)
		}
	}
	if want := (ds.Stats{WritesExecuted: n}); br.Stats != want {
		t.Errorf("got stats %+v, want %+v", br.Stats, want)
	}
}

func testActionList(t *testing.T, s *ds.Store, _ *localquery.Executor) {
	ctx := context.Background()
	coll := docs(t, s)
	mustSave(t, coll, docmap{ds.KeyField: "k1"})

	// Without IgnoreErrors, the first failure stops the list.
	br, err := coll.Actions().
		Save(docmap{ds.KeyField: "a1"}).
		Save(docmap{ds.KeyField: "k1"}).
		Save(docmap{ds.KeyField: "a2"}).
		Do(ctx, nil)
	var alerr ds.ActionListError
	if !errors.As(err, &alerr) {
		t.Fatalf("got %v, want an ActionListError", err)
	}
	if len(alerr) != 1 || alerr[0].Index != 1 {
		t.Fatalf("got %v, want one error at index 1", alerr)
	}
	checkCode(t, err, rderrors.KeyDuplicate)
	if br == nil || br.Results[0].Write == nil || br.Results[0].Write.Key != "a1" {
		t.Errorf("missing result of the first action: %+v", br)
	}
	mustRead(t, coll, "a1")
	_, err = coll.Read(ctx, "a2", nil)
	checkCode(t, err, rderrors.NotFound)

	// With IgnoreErrors, every action runs.
	br, err = coll.Actions().
		Save(docmap{ds.KeyField: "b1"}).
		Save(docmap{ds.KeyField: "k1"}).
		Update("missing", docmap{"x": 1}).
		Remove("b1").
		Read("k1", nil).
		Read("missing", nil).
		Do(ctx, writeOpts(func(o *ds.WriteOptions) { o.IgnoreErrors = true }))
	if err != nil {
		t.Fatal(err)
	}
	var gotErrs []string
	for _, e := range br.Errors {
		gotErrs = append(gotErrs, fmt.Sprintf("%d:%v", e.Index, rderrors.Code(e.Err)))
	}
	if diff := cmp.Diff(gotErrs, []string{"1:KeyDuplicate", "2:NotFound", "5:NotFound"}); diff != "" {
		t.Errorf("errors: got=-, want=+: %s", diff)
	}
	if want := (ds.Stats{WritesExecuted: 2, WritesIgnored: 2}); br.Stats != want {
		t.Errorf("got stats %+v, want %+v", br.Stats, want)
	}
	if got := br.Results[4].Doc[ds.KeyField]; got != "k1" {
		t.Errorf("read result: got key %v, want k1", got)
	}
	if br.Results[1].Write != nil {
		t.Errorf("failed action has a result: %+v", br.Results[1])
	}

	// Saves skipped by OverwriteIgnore count as ignored.
	br, err = coll.Actions().
		Save(docmap{ds.KeyField: "k1"}).
		Save(docmap{ds.KeyField: "c1"}).
		Do(ctx, writeOpts(func(o *ds.WriteOptions) { o.Overwrite = ds.OverwriteIgnore }))
	if err != nil {
		t.Fatal(err)
	}
	if want := (ds.Stats{WritesExecuted: 1, WritesIgnored: 1}); br.Stats != want {
		t.Errorf("got stats %+v, want %+v", br.Stats, want)
	}

	// Each element is checked against its own _rev, in order.
	rev := mustRead(t, coll, "k1")[ds.RevField]
	br, err = coll.Actions().
		Update("k1", docmap{ds.RevField: rev, "x": 1}).
		Update("k1", docmap{ds.RevField: rev, "x": 2}).
		Do(ctx, writeOpts(func(o *ds.WriteOptions) {
			o.CheckPayloadRev = true
			o.IgnoreErrors = true
		}))
	if err != nil {
		t.Fatal(err)
	}
	if len(br.Errors) != 1 || br.Errors[0].Index != 1 || rderrors.Code(br.Errors[0].Err) != rderrors.Conflict {
		t.Errorf("got errors %v, want a conflict at index 1", br.Errors)
	}
	if got := mustRead(t, coll, "k1")["x"]; got != int64(1) {
		t.Errorf("got x=%v, want 1", got)
	}

	br, err = coll.Actions().Do(ctx, nil)
	if err != nil || len(br.Results) != 0 {
		t.Errorf("empty list: got %+v, %v", br, err)
	}
}

func testEdges(t *testing.T, s *ds.Store, _ *localquery.Executor) {
	ctx := context.Background()
	coll := docs(t, s)
	edges := mustCollection(t, s, EdgesCollection, ds.EdgeCollection)
	if !edges.RequiresFromTo() || coll.RequiresFromTo() {
		t.Fatal("RequiresFromTo does not follow the collection kind")
	}
	mustSave(t, coll, docmap{ds.KeyField: "a"})
	mustSave(t, edges, docmap{ds.KeyField: "e1", ds.FromField: "docs/a", ds.ToField: "other/b"})

	for _, test := range []struct {
		name string
		doc  docmap
	}{
		{"no edge fields", docmap{}},
		{"no _to", docmap{ds.FromField: "docs/a"}},
		{"empty _from", docmap{ds.FromField: "", ds.ToField: "docs/b"}},
		{"numeric _from", docmap{ds.FromField: 1, ds.ToField: "docs/b"}},
		{"bare key", docmap{ds.FromField: "a", ds.ToField: "docs/b"}},
		{"no key", docmap{ds.FromField: "docs/", ds.ToField: "docs/b"}},
	} {
		t.Run(test.name, func(t *testing.T) {
			_, err := edges.Save(ctx, test.doc, nil)
			checkCode(t, err, rderrors.EdgeAttributeInvalid)
		})
	}

	stored := mustRead(t, edges, "e1")
	for _, dropNulls := range []bool{false, true} {
		_, err := edges.Update(ctx, "e1", docmap{ds.ToField: nil}, writeOpts(func(o *ds.WriteOptions) { o.DropNulls = dropNulls }))
		checkCode(t, err, rderrors.EdgeAttributeInvalid)
	}
	_, err := edges.Replace(ctx, "e1", docmap{"weight": 1}, nil)
	checkCode(t, err, rderrors.EdgeAttributeInvalid)
	if diff := cmpDiff(mustRead(t, edges, "e1"), stored); diff != "" {
		t.Errorf("rejected writes changed the edge: %s", diff)
	}
	if _, err := edges.Update(ctx, "e1", docmap{"weight": 1}, nil); err != nil {
		t.Errorf("update keeping edge fields: %v", err)
	}

	_, err = coll.Update(ctx, "a", docmap{ds.FromField: "docs/a"}, nil)
	checkCode(t, err, rderrors.EdgeAttributeInvalid)
	_, err = s.CreateCollection(ctx, EdgesCollection, ds.DocumentCollection)
	checkCode(t, err, rderrors.InvalidArgument)
	if again, err := s.CreateCollection(ctx, EdgesCollection, ds.EdgeCollection); err != nil || again != edges {
		t.Errorf("re-creating with the same kind: got %v, %v", again, err)
	}
}

// Of several writes conditional on the same revision, exactly one wins.
func testConcurrentConditionalWrites(t *testing.T, s *ds.Store, _ *localquery.Executor) {
	coll := docs(t, s)
	first := mustSave(t, coll, docmap{ds.KeyField: "k", "n": -1})

	const n = 10
	var wins atomic.Int32
	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < n; i++ {
		g.Go(func() error {
			_, err := coll.Update(ctx, "k", docmap{"n": i}, writeOpts(func(o *ds.WriteOptions) { o.ExpectedRevision = first.Rev }))
			switch rderrors.Code(err) {
			case rderrors.OK:
				wins.Add(1)
				return nil
			case rderrors.Conflict:
				return nil
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	if got := wins.Load(); got != 1 {
		t.Errorf("got %d winners, want 1", got)
	}
	if got := mustRead(t, coll, "k")["n"]; got == int64(-1) {
		t.Error("no write was applied")
	}
}

type point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type located struct {
	Key   string `json:"_key"`
	Label string `json:"label"`
	At    point  `json:"at"`
}

// Values survive a round trip through the backend in normalized form.
func testData(t *testing.T, s *ds.Store, _ *localquery.Executor) {
	coll := docs(t, s)
	when := time.Date(2024, 5, 6, 7, 8, 9, 10, time.UTC)
	mustSave(t, coll, docmap{
		ds.KeyField: "d",
		"int":       7,
		"neg":       int8(-5),
		"uint":      uint16(9),
		"big":       uint64(math.MaxUint64),
		"float":     1.5,
		"bool":      true,
		"string":    "str",
		"null":      nil,
		"bytes":     []byte("xy"),
		"time":      when,
		"list":      []any{1, "two", nil, []any{}},
		"strings":   []string{"a", "b"},
		"map":       docmap{"nested": docmap{"deep": 1}},
		"empty":     docmap{},
	})
	want := ds.Document{
		"int":     int64(7),
		"neg":     int64(-5),
		"uint":    int64(9),
		"big":     uint64(math.MaxUint64),
		"float":   1.5,
		"bool":    true,
		"string":  "str",
		"null":    nil,
		"bytes":   []byte("xy"),
		"time":    "2024-05-06T07:08:09.00000001Z",
		"list":    []any{int64(1), "two", nil, []any{}},
		"strings": []any{"a", "b"},
		"map":     ds.Document{"nested": ds.Document{"deep": int64(1)}},
		"empty":   ds.Document{},
	}
	if diff := cmpDiff(userFields(mustRead(t, coll, "d")), want); diff != "" {
		t.Errorf("got=-, want=+: %s", diff)
	}

	mustSave(t, coll, &located{Key: "s", Label: "origin", At: point{1, 2}})
	want = ds.Document{"label": "origin", "at": ds.Document{"x": int64(1), "y": int64(2)}}
	if diff := cmpDiff(userFields(mustRead(t, coll, "s")), want); diff != "" {
		t.Errorf("struct: got=-, want=+: %s", diff)
	}
}

func testWaitForDurable(t *testing.T, s *ds.Store, _ *localquery.Executor) {
	ctx := context.Background()
	coll := docs(t, s)
	durable := writeOpts(func(o *ds.WriteOptions) { o.WaitForDurable = true })
	if _, err := coll.Save(ctx, docmap{ds.KeyField: "k"}, durable); err != nil {
		t.Fatal(err)
	}
	if _, err := coll.Update(ctx, "k", docmap{"a": 1}, durable); err != nil {
		t.Fatal(err)
	}
	if _, err := coll.Remove(ctx, "k", durable); err != nil {
		t.Fatal(err)
	}
}

func addNumbered(t *testing.T, coll *ds.Collection, n int) {
	t.Helper()
	al := coll.Actions()
	for i := 0; i < n; i++ {
		al.Save(docmap{ds.KeyField: fmt.Sprintf("k%03d", i), "n": i})
	}
	if _, err := al.Do(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
}

func scanStatement(t *testing.T, s *ds.Store, batchSize int, count bool) *ds.Statement {
	t.Helper()
	st, err := s.NewStatement(localquery.CollectionScanQuery, &ds.StatementOptions{
		BindVars:  map[string]any{"@collection": DocsCollection},
		Count:     count,
		BatchSize: batchSize,
	})
	if err != nil {
		t.Fatal(err)
	}
	return st
}

// A cursor returns every result once, in order, whatever the batch size.
func testCursor(t *testing.T, s *ds.Store, exec *localquery.Executor) {
	ctx := context.Background()
	const n = 10
	addNumbered(t, docs(t, s), n)

	for _, batchSize := range []int{0, 1, 2, 3, 4, 9, 10, 11, 100} {
		t.Run(fmt.Sprint(batchSize), func(t *testing.T) {
			cur, err := scanStatement(t, s, batchSize, true).Execute(ctx)
			if err != nil {
				t.Fatal(err)
			}
			var got []int64
			for cur.HasNext() {
				doc, err := cur.Next(ctx)
				if err != nil {
					t.Fatal(err)
				}
				got = append(got, doc["n"].(int64))
			}
			var want []int64
			for i := 0; i < n; i++ {
				want = append(want, int64(i))
			}
			if diff := cmp.Diff(got, want); diff != "" {
				t.Errorf("got=-, want=+: %s", diff)
			}
			if c, err := cur.Count(); err != nil || c != n {
				t.Errorf("Count: got %d, %v; want %d", c, err, n)
			}
			_, err = cur.Next(ctx)
			checkCode(t, err, rderrors.NoMoreResults)
			if cur.ID() != "" {
				t.Errorf("exhausted cursor has id %q", cur.ID())
			}
			if got := exec.OpenCursors(); got != 0 {
				t.Errorf("%d server cursors open after draining", got)
			}
			if err := cur.Dispose(ctx); err != nil {
				t.Errorf("Dispose after draining: %v", err)
			}
			_, err = cur.Count()
			checkCode(t, err, rderrors.CursorDisposed)
		})
	}

	cur, err := scanStatement(t, s, 4, false).Execute(ctx)
	if err != nil {
		t.Fatal(err)
	}
	all, err := cur.Elements(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != n || all[n-1]["n"] != int64(n-1) {
		t.Errorf("Elements: got %d documents", len(all))
	}
	if cur.HasNext() {
		t.Error("HasNext after Elements")
	}
	_, err = cur.Count()
	checkCode(t, err, rderrors.InvalidArgument)
}

func testCursorDispose(t *testing.T, s *ds.Store, exec *localquery.Executor) {
	ctx := context.Background()
	addNumbered(t, docs(t, s), 10)

	// Disposing part way releases the server cursor.
	cur, err := scanStatement(t, s, 2, true).Execute(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := cur.Next(ctx); err != nil {
		t.Fatal(err)
	}
	if cur.ID() == "" || exec.OpenCursors() != 1 {
		t.Fatalf("got id %q and %d server cursors, want one", cur.ID(), exec.OpenCursors())
	}
	if err := cur.Dispose(ctx); err != nil {
		t.Fatal(err)
	}
	if exec.OpenCursors() != 0 || cur.ID() != "" {
		t.Error("server cursor not released")
	}
	if cur.HasNext() {
		t.Error("HasNext after Dispose")
	}
	_, err = cur.Next(ctx)
	checkCode(t, err, rderrors.CursorDisposed)
	_, err = cur.Count()
	checkCode(t, err, rderrors.CursorDisposed)
	if err := cur.Dispose(ctx); err != nil {
		t.Errorf("second Dispose: %v", err)
	}

	// A result that fits in one batch holds nothing on the server.
	cur, err = scanStatement(t, s, 100, false).Execute(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if cur.ID() != "" {
		t.Errorf("single-batch cursor has id %q", cur.ID())
	}
	if err := cur.Dispose(ctx); err != nil {
		t.Errorf("Dispose of a local cursor: %v", err)
	}

	// Breaking out of All disposes the cursor.
	cur, err = scanStatement(t, s, 2, false).Execute(ctx)
	if err != nil {
		t.Fatal(err)
	}
	seen := 0
	for _, err := range cur.All(ctx) {
		if err != nil {
			t.Fatal(err)
		}
		seen++
		if seen == 3 {
			break
		}
	}
	if exec.OpenCursors() != 0 {
		t.Error("server cursor not released after break")
	}
	_, err = cur.Next(ctx)
	checkCode(t, err, rderrors.CursorDisposed)
}

func cmpDiff(a, b any, opts ...cmp.Option) string {
	return cmp.Diff(a, b, opts...)
}

func checkCode(t *testing.T, err error, code rderrors.ErrorCode) {
	t.Helper()
	if rderrors.Code(err) != code {
		t.Errorf("got %v, want %s", err, code)
	}
}

func checkLocator(t *testing.T, err error, collection, key string) {
	t.Helper()
	c, k, ok := rderrors.Locator(err)
	if !ok || c != collection || k != key {
		t.Errorf("got locator %s/%s (ok=%t) from %v, want %s/%s", c, k, ok, err, collection, key)
	}
}
