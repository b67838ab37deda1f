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

package docstore_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"revdoc.dev/docstore"
	"revdoc.dev/docstore/driver"
	"revdoc.dev/docstore/memdocstore"
	"revdoc.dev/rderrors"
)

// scriptedExecutor hands out a fixed sequence of batches. The first batch
// answers ExecuteQuery; each FetchNextBatch returns the next one, or
// fetchErr if set.
type scriptedExecutor struct {
	batches  []*driver.Batch
	fetchErr error

	// If non-nil, FetchNextBatch signals fetching and waits for release.
	fetching chan struct{}
	release  chan struct{}

	mu       sync.Mutex
	queries  []*driver.Query
	fetches  int
	disposed []string
}

func (e *scriptedExecutor) ExecuteQuery(ctx context.Context, q *driver.Query) (*driver.Batch, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.queries = append(e.queries, q)
	return e.batches[0], nil
}

func (e *scriptedExecutor) FetchNextBatch(ctx context.Context, id string) (*driver.Batch, error) {
	if e.fetching != nil {
		e.fetching <- struct{}{}
		<-e.release
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fetchErr != nil {
		return nil, e.fetchErr
	}
	e.fetches++
	return e.batches[e.fetches], nil
}

func (e *scriptedExecutor) DisposeCursor(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.disposed = append(e.disposed, id)
	return nil
}

func (e *scriptedExecutor) ErrorCode(err error) rderrors.ErrorCode {
	if err == errUnavailable {
		return rderrors.Internal
	}
	return rderrors.Unknown
}

var errUnavailable = errors.New("executor unavailable")

func docs(keys ...string) []driver.Document {
	var ds []driver.Document
	for _, k := range keys {
		ds = append(ds, driver.Document{"_key": k})
	}
	return ds
}

func newScriptedStore(t *testing.T, e *scriptedExecutor) *docstore.Store {
	t.Helper()
	b, err := memdocstore.NewBackend(nil)
	if err != nil {
		t.Fatal(err)
	}
	s := docstore.NewStore(b, e)
	t.Cleanup(func() { s.Close() })
	return s
}

func execute(t *testing.T, s *docstore.Store, opts *docstore.StatementOptions) *docstore.Cursor {
	t.Helper()
	st, err := s.NewStatement("FOR x IN y RETURN x", opts)
	if err != nil {
		t.Fatal(err)
	}
	cur, err := st.Execute(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return cur
}

func keys(t *testing.T, cur *docstore.Cursor) []string {
	t.Helper()
	var ks []string
	for cur.HasNext() {
		d, err := cur.Next(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		ks = append(ks, d["_key"].(string))
	}
	return ks
}

func TestCursorBatches(t *testing.T) {
	e := &scriptedExecutor{batches: []*driver.Batch{
		{Docs: docs("a", "b"), HasMore: true, CursorID: "c1", TotalCount: 5, HasCount: true},
		// Empty batches in the middle are skipped.
		{Docs: nil, HasMore: true, CursorID: "c1"},
		{Docs: docs("c", "d"), HasMore: true, CursorID: "c1"},
		{Docs: docs("e"), HasMore: false},
	}}
	cur := execute(t, newScriptedStore(t, e), &docstore.StatementOptions{Count: true, BatchSize: 2})
	if got := cur.ID(); got != "c1" {
		t.Errorf("got id %q, want c1", got)
	}
	if diff := cmp.Diff(keys(t, cur), []string{"a", "b", "c", "d", "e"}); diff != "" {
		t.Errorf("got=-, want=+: %s", diff)
	}
	if n, err := cur.Count(); err != nil || n != 5 {
		t.Errorf("Count: got %d, %v; want 5", n, err)
	}
	if cur.ID() != "" {
		t.Errorf("exhausted cursor has id %q", cur.ID())
	}
	_, err := cur.Next(context.Background())
	if rderrors.Code(err) != rderrors.NoMoreResults || !rderrors.IsMisuse(err) {
		t.Errorf("got %v, want NoMoreResults", err)
	}
	if err := cur.Dispose(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(e.disposed) != 0 {
		t.Errorf("disposing a drained cursor contacted the executor: %v", e.disposed)
	}
	if q := e.queries[0]; !q.Count || q.BatchSize != 2 || q.Text != "FOR x IN y RETURN x" {
		t.Errorf("got query %+v", q)
	}
}

func TestCursorEmptyFirstBatch(t *testing.T) {
	e := &scriptedExecutor{batches: []*driver.Batch{
		{HasMore: true, CursorID: "c1"},
		{Docs: docs("a"), HasMore: false},
	}}
	cur := execute(t, newScriptedStore(t, e), nil)
	if !cur.HasNext() {
		t.Fatal("HasNext is false, but a later batch has results")
	}
	if diff := cmp.Diff(keys(t, cur), []string{"a"}); diff != "" {
		t.Errorf("got=-, want=+: %s", diff)
	}
}

func TestCursorEmptyResult(t *testing.T) {
	e := &scriptedExecutor{batches: []*driver.Batch{{}}}
	cur := execute(t, newScriptedStore(t, e), nil)
	if cur.HasNext() {
		t.Error("HasNext on an empty result")
	}
	_, err := cur.Next(context.Background())
	if rderrors.Code(err) != rderrors.NoMoreResults {
		t.Errorf("got %v, want NoMoreResults", err)
	}
	_, err = cur.Count()
	if rderrors.Code(err) != rderrors.InvalidArgument {
		t.Errorf("Count without a count: got %v, want InvalidArgument", err)
	}
}

func TestCursorRefillError(t *testing.T) {
	ctx := context.Background()
	e := &scriptedExecutor{
		batches:  []*driver.Batch{{Docs: docs("a"), HasMore: true, CursorID: "c1"}},
		fetchErr: errUnavailable,
	}
	cur := execute(t, newScriptedStore(t, e), nil)

	// The failed refill does not lose the document that triggered it.
	d, err := cur.Next(ctx)
	if err != nil || d["_key"] != "a" {
		t.Fatalf("got %v, %v; want document a", d, err)
	}
	for i := 0; i < 2; i++ {
		if !cur.HasNext() {
			t.Fatal("HasNext is false with a pending error")
		}
		_, err := cur.Next(ctx)
		if rderrors.Code(err) != rderrors.Internal || !errors.Is(err, errUnavailable) {
			t.Errorf("#%d: got %v, want the refill error", i, err)
		}
	}
	// The executor still holds the cursor.
	if err := cur.Dispose(ctx); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(e.disposed, []string{"c1"}); diff != "" {
		t.Errorf("disposed: got=-, want=+: %s", diff)
	}
}

func TestCursorMissingID(t *testing.T) {
	e := &scriptedExecutor{batches: []*driver.Batch{{HasMore: true}}}
	cur := execute(t, newScriptedStore(t, e), nil)
	_, err := cur.Next(context.Background())
	if rderrors.Code(err) != rderrors.Internal {
		t.Errorf("got %v, want Internal", err)
	}
}

func TestCursorBusy(t *testing.T) {
	ctx := context.Background()
	e := &scriptedExecutor{
		batches: []*driver.Batch{
			{Docs: docs("a"), HasMore: true, CursorID: "c1"},
			{Docs: docs("b"), HasMore: false},
		},
		fetching: make(chan struct{}),
		release:  make(chan struct{}),
	}
	cur := execute(t, newScriptedStore(t, e), nil)

	done := make(chan error)
	go func() {
		// Consuming "a" fetches the next batch, which blocks.
		_, err := cur.Next(ctx)
		done <- err
	}()
	<-e.fetching
	if _, err := cur.Next(ctx); rderrors.Code(err) != rderrors.CursorBusy {
		t.Errorf("overlapping Next: got %v, want CursorBusy", err)
	}
	if err := cur.Dispose(ctx); rderrors.Code(err) != rderrors.CursorBusy {
		t.Errorf("overlapping Dispose: got %v, want CursorBusy", err)
	}
	close(e.release)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(keys(t, cur), []string{"b"}); diff != "" {
		t.Errorf("got=-, want=+: %s", diff)
	}
}

func TestCursorDispose(t *testing.T) {
	ctx := context.Background()
	e := &scriptedExecutor{batches: []*driver.Batch{
		{Docs: docs("a", "b"), HasMore: true, CursorID: "c1", TotalCount: 4, HasCount: true},
	}}
	cur := execute(t, newScriptedStore(t, e), &docstore.StatementOptions{Count: true})
	if _, err := cur.Next(ctx); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if err := cur.Dispose(ctx); err != nil {
			t.Fatal(err)
		}
	}
	if diff := cmp.Diff(e.disposed, []string{"c1"}); diff != "" {
		t.Errorf("disposed: got=-, want=+: %s", diff)
	}
	if cur.HasNext() {
		t.Error("HasNext after Dispose")
	}
	for _, err := range []error{
		func() error { _, err := cur.Next(ctx); return err }(),
		func() error { _, err := cur.Count(); return err }(),
		func() error { _, err := cur.Elements(ctx); return err }(),
	} {
		if rderrors.Code(err) != rderrors.CursorDisposed {
			t.Errorf("got %v, want CursorDisposed", err)
		}
	}
}

func TestCursorAll(t *testing.T) {
	e := &scriptedExecutor{batches: []*driver.Batch{
		{Docs: docs("a", "b"), HasMore: true, CursorID: "c1"},
		{Docs: docs("c", "d"), HasMore: true, CursorID: "c1"},
	}}
	cur := execute(t, newScriptedStore(t, e), nil)
	var got []string
	for d, err := range cur.All(context.Background()) {
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, d["_key"].(string))
		if len(got) == 3 {
			break
		}
	}
	if diff := cmp.Diff(got, []string{"a", "b", "c"}); diff != "" {
		t.Errorf("got=-, want=+: %s", diff)
	}
	if diff := cmp.Diff(e.disposed, []string{"c1"}); diff != "" {
		t.Errorf("disposed: got=-, want=+: %s", diff)
	}
}

func TestStatement(t *testing.T) {
	ctx := context.Background()
	e := &scriptedExecutor{batches: []*driver.Batch{{Docs: docs("a")}}}
	s := newScriptedStore(t, e)

	if _, err := s.NewStatement("", nil); rderrors.Code(err) != rderrors.InvalidArgument {
		t.Errorf("empty query: got %v, want InvalidArgument", err)
	}
	if _, err := s.NewStatement("q", &docstore.StatementOptions{BatchSize: -1}); rderrors.Code(err) != rderrors.InvalidArgument {
		t.Errorf("negative batch size: got %v, want InvalidArgument", err)
	}
	if _, err := s.NewStatement("q", &docstore.StatementOptions{BindVars: map[string]any{"bad name": 1}}); rderrors.Code(err) != rderrors.BindInvalid {
		t.Errorf("bad initial bind var: got %v, want BindInvalid", err)
	}

	st, err := s.NewStatement("q", &docstore.StatementOptions{BindVars: map[string]any{"@coll": "users", "n": 3}})
	if err != nil {
		t.Fatal(err)
	}
	if st.Query() != "q" {
		t.Errorf("got query %q", st.Query())
	}
	for _, test := range []struct {
		name  string
		key   any
		value any
		want  rderrors.ErrorCode
	}{
		{"new name", "m", []int{1, 2}, rderrors.OK},
		{"positional", 1, "one", rderrors.OK},
		{"rebind", "n", 4, rderrors.BindRedeclared},
		{"rebind collection", "@coll", "other", rderrors.BindRedeclared},
		{"positional as string", "1", "uno", rderrors.BindRedeclared},
		{"positional as uint", uint8(1), "eins", rderrors.BindRedeclared},
		{"empty name", "", 1, rderrors.BindInvalid},
		{"only prefix", "@", 1, rderrors.BindInvalid},
		{"punctuation", "a-b", 1, rderrors.BindInvalid},
		{"float key", 1.5, 1, rderrors.BindInvalid},
		{"nil key", nil, 1, rderrors.BindInvalid},
		{"bad value", "ch", make(chan int), rderrors.BindInvalid},
	} {
		t.Run(test.name, func(t *testing.T) {
			err := st.Bind(test.key, test.value)
			if got := rderrors.Code(err); got != test.want {
				t.Errorf("got %v (%v), want %v", got, err, test.want)
			}
			if err != nil && !rderrors.IsMisuse(err) {
				t.Errorf("%v is not a misuse error", err)
			}
		})
	}

	want := map[string]any{"@coll": "users", "n": int64(3), "m": []any{int64(1), int64(2)}, "1": "one"}
	vars := st.BindVars()
	if diff := cmp.Diff(vars, want); diff != "" {
		t.Errorf("BindVars: got=-, want=+: %s", diff)
	}
	vars["m"].([]any)[0] = int64(99)
	if st.BindVars()["m"].([]any)[0] != int64(1) {
		t.Error("BindVars returned the statement's own values")
	}

	// Each Execute runs the query again.
	for i := 0; i < 2; i++ {
		if _, err := st.Execute(ctx); err != nil {
			t.Fatal(err)
		}
	}
	if len(e.queries) != 2 {
		t.Fatalf("got %d queries, want 2", len(e.queries))
	}
	if diff := cmp.Diff(e.queries[1].BindVars, want); diff != "" {
		t.Errorf("executed bind vars: got=-, want=+: %s", diff)
	}
}

func TestStatementErrors(t *testing.T) {
	ctx := context.Background()
	s, err := memdocstore.OpenStore(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	st, err := s.NewStatement("RETURN 1", nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := st.Execute(ctx); rderrors.Code(err) != rderrors.InvalidArgument {
		t.Errorf("unknown query: got %v, want InvalidArgument", err)
	}

	b, err := memdocstore.NewBackend(nil)
	if err != nil {
		t.Fatal(err)
	}
	noExec := docstore.NewStore(b, nil)
	defer noExec.Close()
	st, err = noExec.NewStatement("RETURN 1", nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := st.Execute(ctx); rderrors.Code(err) != rderrors.FailedPrecondition {
		t.Errorf("no executor: got %v, want FailedPrecondition", err)
	}
}

func TestStoreClosed(t *testing.T) {
	ctx := context.Background()
	s, err := memdocstore.OpenStore(nil)
	if err != nil {
		t.Fatal(err)
	}
	coll, err := s.CreateCollection(ctx, "docs", docstore.DocumentCollection)
	if err != nil {
		t.Fatal(err)
	}
	st, err := s.NewStatement("RETURN 1", nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	_, err = coll.Actions().Save(map[string]any{}).Do(ctx, nil)
	var alerr docstore.ActionListError
	if !errors.As(err, &alerr) || len(alerr) != 1 || alerr[0].Index != -1 {
		t.Errorf("ActionList.Do: got %v, want an ActionListError at index -1", err)
	}
	for name, err := range map[string]error{
		"Close":            s.Close(),
		"CreateCollection": func() error { _, err := s.CreateCollection(ctx, "x", docstore.DocumentCollection); return err }(),
		"Collection":       func() error { _, err := s.Collection("docs"); return err }(),
		"Save":             func() error { _, err := coll.Save(ctx, map[string]any{}, nil); return err }(),
		"Read":             func() error { _, err := coll.Read(ctx, "k", nil); return err }(),
		"Remove":           func() error { _, err := coll.Remove(ctx, "k", nil); return err }(),
		"NewStatement":     func() error { _, err := s.NewStatement("RETURN 1", nil); return err }(),
		"Execute":          func() error { _, err := st.Execute(ctx); return err }(),
		"ActionList.Do":    err,
	} {
		if rderrors.Code(err) != rderrors.FailedPrecondition {
			t.Errorf("%s: got %v, want FailedPrecondition", name, err)
		}
	}
}

func TestCollections(t *testing.T) {
	ctx := context.Background()
	s, err := memdocstore.OpenStore(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	for _, name := range []string{"", "1abc", "-a", "a/b", "a b", strings.Repeat("c", 257)} {
		if _, err := s.CreateCollection(ctx, name, docstore.DocumentCollection); rderrors.Code(err) != rderrors.InvalidArgument {
			t.Errorf("%q: got %v, want InvalidArgument", name, err)
		}
	}
	if _, err := s.CreateCollection(ctx, "c", docstore.CollectionKind(7)); rderrors.Code(err) != rderrors.InvalidArgument {
		t.Errorf("bad kind: got %v, want InvalidArgument", err)
	}
	if _, err := s.Collection("users"); rderrors.Code(err) != rderrors.NotFound {
		t.Errorf("unknown collection: got %v, want NotFound", err)
	}

	for _, name := range []string{"users", "_system", "a-1", strings.Repeat("c", 256)} {
		c, err := s.CreateCollection(ctx, name, docstore.DocumentCollection)
		if err != nil {
			t.Fatalf("%q: %v", name, err)
		}
		if got, err := s.Collection(name); err != nil || got != c {
			t.Errorf("%q: Collection returned %v, %v", name, got, err)
		}
	}
	users, _ := s.Collection("users")
	if users.Name() != "users" || users.Kind() != docstore.DocumentCollection || users.ID("k") != "users/k" {
		t.Errorf("got %s %v %s", users.Name(), users.Kind(), users.ID("k"))
	}
}

func TestInvalidWriteOptions(t *testing.T) {
	ctx := context.Background()
	s, err := memdocstore.OpenStore(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	coll, err := s.CreateCollection(ctx, "docs", docstore.DocumentCollection)
	if err != nil {
		t.Fatal(err)
	}
	o := docstore.DefaultWriteOptions()
	o.Overwrite = docstore.OverwriteMode(9)
	if _, err := coll.Save(ctx, map[string]any{}, o); rderrors.Code(err) != rderrors.InvalidArgument {
		t.Errorf("bad overwrite mode: got %v, want InvalidArgument", err)
	}
	o = docstore.DefaultWriteOptions()
	o.UpsertMode = docstore.UpsertMode(5)
	if _, err := coll.Upsert(ctx, "k", nil, map[string]any{}, o); rderrors.Code(err) != rderrors.InvalidArgument {
		t.Errorf("bad upsert mode: got %v, want InvalidArgument", err)
	}
}

func TestActionListString(t *testing.T) {
	s, err := memdocstore.OpenStore(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	coll, err := s.CreateCollection(context.Background(), "docs", docstore.DocumentCollection)
	if err != nil {
		t.Fatal(err)
	}
	got := coll.Actions().Read("a", nil).Remove("b").Update("c", map[string]any{"x": 1}).String()
	want := "[Read(a), Remove(b), Update(c, map[x:1])]"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
