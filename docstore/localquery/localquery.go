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

// Package localquery runs queries in process over the documents of a
// driver.Scanner, and serves their results in batches through server-held
// cursors. It implements driver.QueryExecutor for backends that have no
// query engine of their own.
//
// There is no query language: a query text names a QueryFunc registered
// with the Executor. Every Executor knows CollectionScanQuery.
package localquery // import "revdoc.dev/docstore/localquery"

import (
	"context"
	"reflect"
	"sync"

	"revdoc.dev/docstore/driver"
	"revdoc.dev/internal/rderr"
	"revdoc.dev/rderrors"
)

// DefaultBatchSize is the batch size used when neither the query nor the
// Options set one.
const DefaultBatchSize = 1000

// A QueryFunc computes the full result of a query.
type QueryFunc func(ctx context.Context, src driver.Scanner, bindVars map[string]any) ([]driver.Document, error)

// Options configure an Executor.
type Options struct {
	// BatchSize is the default number of documents per batch.
	BatchSize int
	// Queries maps query texts to their implementations, in addition to
	// CollectionScanQuery.
	Queries map[string]QueryFunc
}

// An Executor runs registered queries. It is safe for concurrent use.
type Executor struct {
	src       driver.Scanner
	batchSize int

	mu      sync.Mutex
	queries map[string]QueryFunc
	cursors map[string]*cursor
}

type cursor struct {
	docs      []driver.Document // not yet delivered
	batchSize int
	total     int64
	count     bool
}

// New returns an Executor over src.
func New(src driver.Scanner, opts *Options) *Executor {
	if opts == nil {
		opts = &Options{}
	}
	e := &Executor{
		src:       src,
		batchSize: opts.BatchSize,
		queries:   map[string]QueryFunc{CollectionScanQuery: CollectionScan},
		cursors:   map[string]*cursor{},
	}
	if e.batchSize <= 0 {
		e.batchSize = DefaultBatchSize
	}
	for text, fn := range opts.Queries {
		e.queries[text] = fn
	}
	return e
}

// Register makes text run fn, replacing any earlier registration.
func (e *Executor) Register(text string, fn QueryFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.queries[text] = fn
}

// ExecuteQuery implements driver.QueryExecutor.ExecuteQuery.
func (e *Executor) ExecuteQuery(ctx context.Context, q *driver.Query) (*driver.Batch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	fn, ok := e.queries[q.Text]
	e.mu.Unlock()
	if !ok {
		return nil, rderr.Newf(rderr.InvalidArgument, nil, "localquery: unknown query %q", q.Text)
	}
	docs, err := fn(ctx, e.src, q.BindVars)
	if err != nil {
		return nil, err
	}
	c := &cursor{docs: docs, batchSize: q.BatchSize, total: int64(len(docs)), count: q.Count}
	if c.batchSize <= 0 {
		c.batchSize = e.batchSize
	}
	b := c.next()
	if b.HasMore {
		b.CursorID = driver.UniqueString()
		e.mu.Lock()
		e.cursors[b.CursorID] = c
		e.mu.Unlock()
	}
	return b, nil
}

// FetchNextBatch implements driver.QueryExecutor.FetchNextBatch.
func (e *Executor) FetchNextBatch(ctx context.Context, id string) (*driver.Batch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.cursors[id]
	if !ok {
		return nil, rderr.Newf(rderr.NotFound, nil, "localquery: no cursor %q", id)
	}
	b := c.next()
	if b.HasMore {
		b.CursorID = id
	} else {
		delete(e.cursors, id)
	}
	return b, nil
}

// DisposeCursor implements driver.QueryExecutor.DisposeCursor.
func (e *Executor) DisposeCursor(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.cursors[id]; !ok {
		return rderr.Newf(rderr.NotFound, nil, "localquery: no cursor %q", id)
	}
	delete(e.cursors, id)
	return nil
}

// OpenCursors returns the number of cursors the executor holds.
func (e *Executor) OpenCursors() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.cursors)
}

// ErrorCode implements driver.QueryExecutor.ErrorCode.
func (e *Executor) ErrorCode(err error) rderrors.ErrorCode {
	return rderrors.Code(err)
}

func (c *cursor) next() *driver.Batch {
	n := min(c.batchSize, len(c.docs))
	b := &driver.Batch{
		Docs:       c.docs[:n:n],
		HasMore:    n < len(c.docs),
		TotalCount: c.total,
		HasCount:   c.count,
	}
	c.docs = c.docs[n:]
	return b
}

// CollectionScanQuery is the query text of CollectionScan.
const CollectionScanQuery = "FOR doc IN @@collection RETURN doc"

// CollectionScan returns the documents of the collection named by the
// "@collection" bind variable, in key order. Every other bind variable
// names a field the document must hold with an equal value.
func CollectionScan(ctx context.Context, src driver.Scanner, bindVars map[string]any) ([]driver.Document, error) {
	name, ok := bindVars["@collection"].(string)
	if !ok || name == "" {
		return nil, rderr.Newf(rderr.InvalidArgument, nil, "localquery: bind variable @collection must name a collection")
	}
	docs, err := src.Scan(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(bindVars) == 1 {
		return docs, nil
	}
	out := docs[:0]
	for _, d := range docs {
		if matches(d, bindVars) {
			out = append(out, d)
		}
	}
	return out, nil
}

func matches(d driver.Document, bindVars map[string]any) bool {
	for k, want := range bindVars {
		if k == "@collection" {
			continue
		}
		got, ok := d[k]
		if !ok || !reflect.DeepEqual(got, want) {
			return false
		}
	}
	return true
}
