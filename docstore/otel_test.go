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
	"testing"

	"revdoc.dev/docstore"
	"revdoc.dev/docstore/localquery"
	"revdoc.dev/docstore/memdocstore"
	"revdoc.dev/internal/testing/oteltest"
	"revdoc.dev/rderrors"
)

func TestOpenTelemetry(t *testing.T) {
	ctx := context.Background()

	// Setup the test exporter for both trace and metrics.
	te := oteltest.NewTestExporter(t)
	defer te.Shutdown(ctx)

	s, err := memdocstore.OpenStore(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	coll, err := s.CreateCollection(ctx, "docs", docstore.DocumentCollection)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := coll.Save(ctx, map[string]any{"_key": "a", "count": 0}, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := coll.Save(ctx, map[string]any{"_key": "a"}, nil); rderrors.Code(err) != rderrors.KeyDuplicate {
		t.Fatalf("got %v, want KeyDuplicate", err)
	}
	if _, err := coll.Read(ctx, "missing", nil); rderrors.Code(err) != rderrors.NotFound {
		t.Fatalf("got %v, want NotFound", err)
	}
	if _, err := coll.Actions().Save(map[string]any{"_key": "b"}).Save(map[string]any{"_key": "c"}).Do(ctx, nil); err != nil {
		t.Fatal(err)
	}

	st, err := s.NewStatement(localquery.CollectionScanQuery, &docstore.StatementOptions{
		BindVars:  map[string]any{"@collection": "docs"},
		BatchSize: 1,
	})
	if err != nil {
		t.Fatal(err)
	}
	cur, err := st.Execute(ctx)
	if err != nil {
		t.Fatal(err)
	}
	// Using up the first batch fetches the second.
	if _, err := cur.Next(ctx); err != nil {
		t.Fatal(err)
	}
	if err := cur.Dispose(ctx); err != nil {
		t.Fatal(err)
	}

	diff := oteltest.Diff(te.Spans(), te.Metrics(ctx), "revdoc.dev/docstore", []oteltest.Call{
		{Method: "Store.CreateCollection", Code: rderrors.OK},
		{Method: "Collection.Save", Code: rderrors.OK},
		{Method: "Collection.Save", Code: rderrors.KeyDuplicate},
		{Method: "Collection.Read", Code: rderrors.NotFound},
		{Method: "ActionList.Do", Code: rderrors.OK},
		{Method: "Statement.Execute", Code: rderrors.OK},
		{Method: "Cursor.FetchNextBatch", Code: rderrors.OK},
		{Method: "Cursor.Dispose", Code: rderrors.OK},
	})
	if diff != "" {
		t.Error(diff)
	}
}
