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
	"iter"
	"sync/atomic"

	"github.com/golang/glog"

	"revdoc.dev/docstore/driver"
	"revdoc.dev/internal/rderr"
)

// A Cursor iterates over the results of an executed Statement, fetching
// them from the query executor in batches. Batch boundaries are not
// observable: Next returns every result exactly once, in the executor's
// order.
//
// A Cursor may hold resources in the executor until it is drained or
// disposed. Always call Dispose, or use All, which disposes on every exit
// path.
//
// A Cursor must not be advanced by two goroutines at once; a call that
// overlaps another fails with code CursorBusy.
type Cursor struct {
	store *Store
	busy  atomic.Bool

	batch    []Document
	pos      int
	hasMore  bool
	id       string // server cursor; empty once released
	count    int64
	hasCount bool
	disposed bool
	err      error // refill failure, returned by every later Next
}

func newCursor(ctx context.Context, s *Store, b *driver.Batch) *Cursor {
	c := &Cursor{store: s}
	c.load(b)
	if len(c.batch) == 0 && c.hasMore {
		c.refill(ctx)
	}
	return c
}

// load installs a batch from the executor.
func (c *Cursor) load(b *driver.Batch) {
	c.batch = b.Docs
	c.pos = 0
	c.hasMore = b.HasMore
	if b.CursorID != "" {
		c.id = b.CursorID
	}
	if !c.hasMore {
		c.id = ""
	}
	if b.HasCount {
		c.count = b.TotalCount
		c.hasCount = true
	}
}

// refill fetches batches until one is non-empty or the results end.
func (c *Cursor) refill(ctx context.Context) {
	for c.pos >= len(c.batch) && c.hasMore && c.err == nil {
		if c.id == "" {
			c.err = rderr.Newf(rderr.Internal, nil, "docstore: executor reported more results without a cursor id")
			return
		}
		c.err = c.fetch(ctx)
	}
}

func (c *Cursor) fetch(ctx context.Context) (err error) {
	tracer := c.store.tracer
	ctx, span := tracer.Start(ctx, "Cursor.FetchNextBatch")
	defer func() { tracer.End(ctx, span, err) }()

	id := c.id
	b, err := c.store.executor.FetchNextBatch(ctx, id)
	if err != nil {
		return wrapError(c.store.executor, err)
	}
	c.load(b)
	glog.V(2).Infof("docstore: cursor %s: fetched %d documents, more=%t", id, len(b.Docs), b.HasMore)
	return nil
}

// HasNext reports whether Next will return a document or an error.
func (c *Cursor) HasNext() bool {
	if c.disposed {
		return false
	}
	return c.pos < len(c.batch) || c.err != nil
}

// Next returns the next result. When the current batch is used up, Next
// fetches the following one before returning; if that fetch fails, this
// call succeeds and the next one returns the error.
//
// Next fails with code NoMoreResults when the results are exhausted and
// with code CursorDisposed after Dispose.
func (c *Cursor) Next(ctx context.Context) (Document, error) {
	if !c.busy.CompareAndSwap(false, true) {
		return nil, rderr.Newf(rderr.CursorBusy, nil, "cursor is in use by another call")
	}
	defer c.busy.Store(false)

	if c.disposed {
		return nil, rderr.Newf(rderr.CursorDisposed, nil, "cursor has been disposed")
	}
	if c.pos >= len(c.batch) {
		if c.err != nil {
			return nil, c.err
		}
		return nil, rderr.Newf(rderr.NoMoreResults, nil, "cursor is exhausted")
	}
	doc := c.batch[c.pos]
	c.pos++
	if c.pos == len(c.batch) {
		c.refill(ctx)
	}
	return doc, nil
}

// Elements returns all remaining results. On error it returns the results
// read before the failure.
func (c *Cursor) Elements(ctx context.Context) ([]Document, error) {
	var docs []Document
	for c.HasNext() {
		d, err := c.Next(ctx)
		if err != nil {
			return docs, err
		}
		docs = append(docs, d)
	}
	if c.disposed {
		return nil, rderr.Newf(rderr.CursorDisposed, nil, "cursor has been disposed")
	}
	return docs, nil
}

// All returns an iterator over the remaining results. The cursor is
// disposed when iteration ends for any reason, including a break out of
// the loop. Iteration stops after the first error.
//
//	for doc, err := range cursor.All(ctx) {
//		if err != nil {
//			return err
//		}
//		...
//	}
func (c *Cursor) All(ctx context.Context) iter.Seq2[Document, error] {
	return func(yield func(Document, error) bool) {
		defer func() {
			if err := c.Dispose(ctx); err != nil {
				glog.Warningf("docstore: disposing cursor: %v", err)
			}
		}()
		for c.HasNext() {
			d, err := c.Next(ctx)
			if !yield(d, err) || err != nil {
				return
			}
		}
	}
}

// Count returns the total number of results. It requires a Statement
// executed with Count set, and fails with code CursorDisposed after
// Dispose. The count does not change as results are consumed.
func (c *Cursor) Count() (int64, error) {
	if c.disposed {
		return 0, rderr.Newf(rderr.CursorDisposed, nil, "cursor has been disposed")
	}
	if !c.hasCount {
		return 0, rderr.Newf(rderr.InvalidArgument, nil, "count was not requested for this statement")
	}
	return c.count, nil
}

// ID returns the executor's id for the cursor, or "" if the executor holds
// no state for it.
func (c *Cursor) ID() string { return c.id }

// Dispose releases the cursor and any executor state behind it. Disposing
// a cursor whose results were fully fetched does not contact the executor.
// Calling Dispose more than once is a no-op.
func (c *Cursor) Dispose(ctx context.Context) (err error) {
	if !c.busy.CompareAndSwap(false, true) {
		return rderr.Newf(rderr.CursorBusy, nil, "cursor is in use by another call")
	}
	defer c.busy.Store(false)

	if c.disposed {
		return nil
	}
	c.disposed = true
	c.batch = nil
	c.pos = 0
	if c.id == "" {
		return nil
	}
	id := c.id
	c.id = ""

	tracer := c.store.tracer
	ctx, span := tracer.Start(ctx, "Cursor.Dispose")
	defer func() { tracer.End(ctx, span, err) }()

	glog.V(2).Infof("docstore: disposing cursor %s", id)
	return wrapError(c.store.executor, c.store.executor.DisposeCursor(ctx, id))
}
