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

package drivertest

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"testing"

	ds "revdoc.dev/docstore"
	"revdoc.dev/docstore/localquery"
	"revdoc.dev/rderrors"
)

// RunBenchmarks runs benchmarks for docstore backends. It closes s.
func RunBenchmarks(b *testing.B, s *ds.Store) {
	defer s.Close()
	coll, err := s.CreateCollection(context.Background(), "bench", ds.DocumentCollection)
	if err != nil {
		b.Fatal(err)
	}
	b.Run("BenchmarkSingleActionSave", func(b *testing.B) {
		benchmarkSingleActionSave(10, b, coll)
	})
	b.Run("BenchmarkSingleActionRead", func(b *testing.B) {
		benchmarkSingleActionRead(10, b, coll)
	})
	b.Run("BenchmarkActionListSave", func(b *testing.B) {
		benchmarkActionListSave(50, b, coll)
	})
	b.Run("BenchmarkConditionalUpdate", func(b *testing.B) {
		benchmarkConditionalUpdate(b, coll)
	})
	b.Run("BenchmarkCursor", func(b *testing.B) {
		benchmarkCursor(100, b, s)
	})
}

func benchmarkSingleActionSave(n int, b *testing.B, coll *ds.Collection) {
	ctx := context.Background()
	const baseKey = "benchmarksingleaction-save-"
	var nextID uint32

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			for i := 0; i < n; i++ {
				key := fmt.Sprintf("%s%d", baseKey, atomic.AddUint32(&nextID, 1))
				doc := docmap{ds.KeyField: key, "S": key}
				if _, err := coll.Save(ctx, doc, nil); err != nil {
					b.Error(err)
				}
			}
		}
	})
}

func benchmarkSingleActionRead(n int, b *testing.B, coll *ds.Collection) {
	ctx := context.Background()
	const baseKey = "benchmarksingleaction-read-"
	keys := make([]string, n)
	saves := coll.Actions()
	for i := 0; i < n; i++ {
		keys[i] = baseKey + strconv.Itoa(i)
		saves.Save(MustDocument(docmap{ds.KeyField: keys[i], "n": i}))
	}
	if _, err := saves.Do(ctx, nil); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			for _, key := range keys {
				if _, err := coll.Read(ctx, key, nil); err != nil {
					b.Fatal(err)
				}
			}
		}
	})
}

func benchmarkActionListSave(n int, b *testing.B, coll *ds.Collection) {
	ctx := context.Background()
	const baseKey = "benchmarkactionlist-save-"
	var nextID uint32

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			actions := coll.Actions()
			for i := 0; i < n; i++ {
				key := fmt.Sprintf("%s%d", baseKey, atomic.AddUint32(&nextID, 1))
				actions.Save(docmap{ds.KeyField: key, "S": key})
			}
			if _, err := actions.Do(ctx, nil); err != nil {
				b.Error(err)
			}
		}
	})
}

// benchmarkConditionalUpdate has every goroutine read-modify-write one
// document, retrying on conflict.
func benchmarkConditionalUpdate(b *testing.B, coll *ds.Collection) {
	ctx := context.Background()
	const key = "benchmark-conditional"
	if _, err := coll.Save(ctx, docmap{ds.KeyField: key, "n": 0}, nil); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			for {
				doc, err := coll.Read(ctx, key, nil)
				if err != nil {
					b.Fatal(err)
				}
				o := ds.DefaultWriteOptions()
				o.ExpectedRevision = doc[ds.RevField].(string)
				_, err = coll.Update(ctx, key, docmap{"n": doc["n"].(int64) + 1}, o)
				if err == nil {
					break
				}
				if rderrors.Code(err) != rderrors.Conflict {
					b.Fatal(err)
				}
			}
		}
	})
}

func benchmarkCursor(n int, b *testing.B, s *ds.Store) {
	ctx := context.Background()
	coll, err := s.CreateCollection(ctx, "bench-cursor", ds.DocumentCollection)
	if err != nil {
		b.Fatal(err)
	}
	saves := coll.Actions()
	for i := 0; i < n; i++ {
		saves.Save(docmap{ds.KeyField: fmt.Sprintf("k%04d", i), "n": i})
	}
	if _, err := saves.Do(ctx, nil); err != nil {
		b.Fatal(err)
	}
	st, err := s.NewStatement(localquery.CollectionScanQuery, &ds.StatementOptions{
		BindVars:  map[string]any{"@collection": coll.Name()},
		BatchSize: 7,
	})
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cur, err := st.Execute(ctx)
		if err != nil {
			b.Fatal(err)
		}
		docs, err := cur.Elements(ctx)
		if err != nil {
			b.Fatal(err)
		}
		if len(docs) != n {
			b.Fatalf("got %d documents, want %d", len(docs), n)
		}
	}
}
