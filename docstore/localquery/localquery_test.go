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

package localquery

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	"revdoc.dev/docstore/driver"
	"revdoc.dev/internal/rderr"
	"revdoc.dev/rderrors"
)

type fakeScanner map[string][]driver.Document

func (f fakeScanner) Scan(_ context.Context, coll string) ([]driver.Document, error) {
	docs, ok := f[coll]
	if !ok {
		return nil, rderr.Newf(rderr.NotFound, nil, "no collection %q", coll)
	}
	out := make([]driver.Document, len(docs))
	for i, d := range docs {
		out[i] = driver.Copy(d)
	}
	return out, nil
}

func numbered(n int) []driver.Document {
	var docs []driver.Document
	for i := 0; i < n; i++ {
		docs = append(docs, driver.Document{"_key": fmt.Sprintf("k%03d", i), "n": int64(i), "even": i%2 == 0})
	}
	return docs
}

func scanQuery(coll string, batchSize int) *driver.Query {
	return &driver.Query{
		Text:      CollectionScanQuery,
		BindVars:  map[string]any{"@collection": coll},
		Count:     true,
		BatchSize: batchSize,
	}
}

func TestBatches(t *testing.T) {
	ctx := context.Background()
	e := New(fakeScanner{"c": numbered(7)}, nil)

	b, err := e.ExecuteQuery(ctx, scanQuery("c", 3))
	if err != nil {
		t.Fatal(err)
	}
	var got []int64
	collect := func(b *driver.Batch) {
		for _, d := range b.Docs {
			got = append(got, d["n"].(int64))
		}
		if !b.HasCount || b.TotalCount != 7 {
			t.Errorf("got count %d (has=%t), want 7", b.TotalCount, b.HasCount)
		}
	}
	collect(b)
	if !b.HasMore || b.CursorID == "" {
		t.Fatalf("first batch: HasMore=%t CursorID=%q", b.HasMore, b.CursorID)
	}
	id := b.CursorID
	for b.HasMore {
		if b, err = e.FetchNextBatch(ctx, id); err != nil {
			t.Fatal(err)
		}
		collect(b)
	}
	if diff := cmp.Diff(got, []int64{0, 1, 2, 3, 4, 5, 6}); diff != "" {
		t.Errorf("got=-, want=+: %s", diff)
	}
	if b.CursorID != "" {
		t.Errorf("last batch has cursor id %q", b.CursorID)
	}
	if n := e.OpenCursors(); n != 0 {
		t.Errorf("%d cursors open after draining", n)
	}
	if _, err := e.FetchNextBatch(ctx, id); rderrors.Code(err) != rderrors.NotFound {
		t.Errorf("fetch after drain: got %v, want NotFound", err)
	}
}

func TestSingleBatch(t *testing.T) {
	e := New(fakeScanner{"c": numbered(3)}, &Options{BatchSize: 10})
	b, err := e.ExecuteQuery(context.Background(), scanQuery("c", 0))
	if err != nil {
		t.Fatal(err)
	}
	if len(b.Docs) != 3 || b.HasMore || b.CursorID != "" {
		t.Errorf("got %d docs, HasMore=%t, CursorID=%q", len(b.Docs), b.HasMore, b.CursorID)
	}
	if e.OpenCursors() != 0 {
		t.Error("cursor held for a single batch")
	}
}

func TestDispose(t *testing.T) {
	ctx := context.Background()
	e := New(fakeScanner{"c": numbered(5)}, nil)
	b, err := e.ExecuteQuery(ctx, scanQuery("c", 2))
	if err != nil {
		t.Fatal(err)
	}
	if err := e.DisposeCursor(ctx, b.CursorID); err != nil {
		t.Fatal(err)
	}
	if e.OpenCursors() != 0 {
		t.Error("cursor still open")
	}
	if err := e.DisposeCursor(ctx, b.CursorID); rderrors.Code(err) != rderrors.NotFound {
		t.Errorf("second dispose: got %v, want NotFound", err)
	}
}

func TestFilter(t *testing.T) {
	e := New(fakeScanner{"c": numbered(6)}, nil)
	q := scanQuery("c", 0)
	q.BindVars["even"] = true
	b, err := e.ExecuteQuery(context.Background(), q)
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, d := range b.Docs {
		got = append(got, d["_key"].(string))
	}
	if diff := cmp.Diff(got, []string{"k000", "k002", "k004"}); diff != "" {
		t.Errorf("got=-, want=+: %s", diff)
	}
}

func TestErrors(t *testing.T) {
	ctx := context.Background()
	e := New(fakeScanner{}, nil)
	for _, test := range []struct {
		name string
		q    *driver.Query
		want rderrors.ErrorCode
	}{
		{"unknown query", &driver.Query{Text: "RETURN 1"}, rderrors.InvalidArgument},
		{"no collection bind", &driver.Query{Text: CollectionScanQuery}, rderrors.InvalidArgument},
		{"missing collection", scanQuery("nope", 0), rderrors.NotFound},
	} {
		t.Run(test.name, func(t *testing.T) {
			_, err := e.ExecuteQuery(ctx, test.q)
			if got := e.ErrorCode(err); got != test.want {
				t.Errorf("got %v (%v), want %v", got, err, test.want)
			}
		})
	}
	cctx, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := e.ExecuteQuery(cctx, scanQuery("c", 0)); e.ErrorCode(err) != rderrors.Canceled {
		t.Errorf("canceled context: got %v", err)
	}
}

func TestRegister(t *testing.T) {
	e := New(fakeScanner{}, &Options{Queries: map[string]QueryFunc{
		"ONE": func(context.Context, driver.Scanner, map[string]any) ([]driver.Document, error) {
			return []driver.Document{{"v": int64(1)}}, nil
		},
	}})
	e.Register("TWO", func(_ context.Context, _ driver.Scanner, bv map[string]any) ([]driver.Document, error) {
		return []driver.Document{{"v": bv["x"]}, {"v": bv["x"]}}, nil
	})
	ctx := context.Background()
	b, err := e.ExecuteQuery(ctx, &driver.Query{Text: "ONE"})
	if err != nil || len(b.Docs) != 1 {
		t.Fatalf("ONE: got %v, %v", b, err)
	}
	b, err = e.ExecuteQuery(ctx, &driver.Query{Text: "TWO", BindVars: map[string]any{"x": "y"}, BatchSize: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(b.Docs) != 1 || !b.HasMore || b.Docs[0]["v"] != "y" {
		t.Errorf("TWO: got %+v", b)
	}
}
