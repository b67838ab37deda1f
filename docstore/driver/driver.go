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

// Package driver defines interfaces to be implemented by docstore backends and
// query executors, which will be used by the docstore package to interact with
// the underlying services. Application code should use package docstore.
package driver // import "revdoc.dev/docstore/driver"

import (
	"context"

	"revdoc.dev/rderrors"
)

// A Backend stores documents keyed by (collection, key). It applies
// single-document mutations atomically; all revision and merge logic lives in
// the docstore package and reaches the backend through Mutation.Apply.
type Backend interface {
	Scanner

	// EnsureCollection creates the named collection if it does not exist.
	EnsureCollection(ctx context.Context, name string) error

	// Get returns a copy of the current version of a document. It returns an
	// error with code NotFound if the collection or document does not exist.
	Get(ctx context.Context, collection, key string) (Document, error)

	// ApplyMutation runs m.Apply against the current version of the document
	// and commits its result.
	//
	// Apply must be called exactly once, with a private copy of the current
	// document (nil if absent), at a point where no other mutation of the same
	// document can commit until this one has finished. If Apply returns an
	// error, nothing is written and ApplyMutation returns that error unchanged.
	// If the collection does not exist, ApplyMutation returns an error with
	// code NotFound without calling Apply.
	//
	// When m.WaitForDurable is set, ApplyMutation must not return until the
	// commit is durable.
	ApplyMutation(ctx context.Context, m *Mutation) error

	// ErrorCode should return a code that describes the error, which was returned by
	// one of the other methods in this interface.
	ErrorCode(error) rderrors.ErrorCode

	// Close cleans up any resources used by the Backend. Once Close is called,
	// there will be no method calls to the Backend other than ErrorCode.
	Close() error
}

// A Scanner lists the documents of a collection.
type Scanner interface {
	// Scan returns copies of all documents in the collection, ordered by key.
	// It returns an error with code NotFound if the collection does not exist.
	Scan(ctx context.Context, collection string) ([]Document, error)
}

// CommitOp says what a Mutation does with the document.
type CommitOp int

// Values for CommitOp.
const (
	// NoChange leaves the stored document as it is.
	NoChange CommitOp = iota
	// Put stores Commit.Doc under the mutation's key.
	Put
	// Delete removes the document.
	Delete
)

// A Commit is the outcome of Mutation.Apply.
type Commit struct {
	Op  CommitOp
	Doc Document // for Put; the backend may retain it
}

// A Mutation is a read-modify-write of a single document.
type Mutation struct {
	Collection     string
	Key            string
	WaitForDurable bool
	// Apply computes the commit from the current document, which is nil if
	// the document does not exist.
	Apply func(current Document) (Commit, error)
}

// A QueryExecutor runs queries and hands out their results in batches.
type QueryExecutor interface {
	// ExecuteQuery runs the query and returns the first batch. If more
	// results remain, the batch carries a cursor id for FetchNextBatch.
	ExecuteQuery(ctx context.Context, q *Query) (*Batch, error)

	// FetchNextBatch returns the next batch of a server-held cursor. When the
	// returned batch has HasMore false, the cursor is released and its id is
	// no longer valid. Unknown ids fail with NotFound.
	FetchNextBatch(ctx context.Context, cursorID string) (*Batch, error)

	// DisposeCursor releases a server-held cursor. Unknown ids fail with NotFound.
	DisposeCursor(ctx context.Context, cursorID string) error

	// ErrorCode should return a code that describes the error, which was returned by
	// one of the other methods in this interface.
	ErrorCode(error) rderrors.ErrorCode
}

// A Query is a query text plus its execution options.
type Query struct {
	Text     string
	BindVars map[string]any
	// Count asks for the total number of results.
	Count bool
	// BatchSize is the maximum number of documents per batch. Zero means the
	// executor's default.
	BatchSize int
}

// A Batch is one slice of a query's results.
type Batch struct {
	Docs     []Document
	HasMore  bool
	CursorID string // empty when HasMore is false
	// TotalCount is valid only when HasCount is true.
	TotalCount int64
	HasCount   bool
}
