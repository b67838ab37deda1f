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

// Package memdocstore provides an in-process in-memory backend for docstore.
// It is suitable for local development and testing.
//
// Stores opened by this package run queries with localquery.
//
// # Persistence
//
// If Options.Filename is set, the backend loads its documents from the file
// when opened and saves them there when closed, and a write with
// WaitForDurable saves them before returning.
//
// # URLs
//
// Call Register to make a docstore.URLMux open memdocstore Stores for the
// scheme "mem". See URLOpener for the URL format.
package memdocstore // import "revdoc.dev/docstore/memdocstore"

import (
	"context"
	"encoding/gob"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"revdoc.dev/docstore"
	"revdoc.dev/docstore/driver"
	"revdoc.dev/docstore/localquery"
	"revdoc.dev/internal/rderr"
	"revdoc.dev/rderrors"
)

func init() {
	// Nested values are stored behind interfaces.
	gob.Register(map[string]any{})
	gob.Register([]any{})
}

// Options are optional arguments to NewBackend and OpenStore.
type Options struct {
	// The filename associated with this backend.
	// When a backend is opened with a non-empty filename, it is loaded from
	// the file if it exists. Otherwise, an empty backend is created.
	// When the backend is closed, its contents are saved to the file.
	Filename string

	// BatchSize is the default query batch size of Stores opened by
	// OpenStore. Zero means localquery.DefaultBatchSize.
	BatchSize int
}

// OpenStore creates a *docstore.Store backed by memory.
func OpenStore(opts *Options) (*docstore.Store, error) {
	b, err := NewBackend(opts)
	if err != nil {
		return nil, err
	}
	return docstore.NewStore(b, localquery.New(b, &localquery.Options{BatchSize: b.opts.BatchSize})), nil
}

// A storedDoc is a document that is stored in a collection.
//
// Stored documents are never handed out: readers get copies, and writers
// hand over documents the caller will not touch again.
type storedDoc = driver.Document

type mapOfDocs = map[string]map[string]storedDoc

// Backend is a driver.Backend holding documents in memory.
type Backend struct {
	opts *Options

	mu     sync.Mutex
	colls  mapOfDocs
	closed bool
}

// NewBackend returns a Backend, loading it from opts.Filename if that file
// exists.
func NewBackend(opts *Options) (*Backend, error) {
	if opts == nil {
		opts = &Options{}
	}
	colls, err := loadDocs(opts.Filename)
	if err != nil {
		return nil, err
	}
	return &Backend{opts: opts, colls: colls}, nil
}

var errClosed = rderr.Newf(rderr.FailedPrecondition, nil, "memdocstore: backend is closed")

// EnsureCollection implements driver.Backend.EnsureCollection.
func (b *Backend) EnsureCollection(ctx context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errClosed
	}
	if _, ok := b.colls[name]; !ok {
		b.colls[name] = map[string]storedDoc{}
	}
	return nil
}

// Get implements driver.Backend.Get.
func (b *Backend) Get(ctx context.Context, collection, key string) (driver.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	docs, err := b.collection(collection)
	if err != nil {
		return nil, err
	}
	doc, ok := docs[key]
	if !ok {
		return nil, rderr.Newf(rderr.NotFound, nil, "document %s/%s not found", collection, key)
	}
	return driver.Copy(doc), nil
}

// Scan implements driver.Scanner.Scan.
func (b *Backend) Scan(ctx context.Context, collection string) ([]driver.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	docs, err := b.collection(collection)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(docs))
	for k := range docs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]driver.Document, len(keys))
	for i, k := range keys {
		out[i] = driver.Copy(docs[k])
	}
	return out, nil
}

// ApplyMutation implements driver.Backend.ApplyMutation. All mutations are
// serialized by a single lock.
func (b *Backend) ApplyMutation(ctx context.Context, m *driver.Mutation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	docs, err := b.collection(m.Collection)
	if err != nil {
		return err
	}
	prev, existed := docs[m.Key]
	var cur driver.Document
	if existed {
		cur = driver.Copy(prev)
	}
	commit, err := m.Apply(cur)
	if err != nil {
		return err
	}
	switch commit.Op {
	case driver.NoChange:
		return nil
	case driver.Put:
		docs[m.Key] = commit.Doc
	case driver.Delete:
		delete(docs, m.Key)
	default:
		return rderr.Newf(rderr.Internal, nil, "memdocstore: unknown commit op %d", commit.Op)
	}
	if m.WaitForDurable {
		if err := saveDocs(b.opts.Filename, b.colls); err != nil {
			// Undo the write.
			if existed {
				docs[m.Key] = prev
			} else {
				delete(docs, m.Key)
			}
			return err
		}
	}
	return nil
}

// collection must be called with b.mu held.
func (b *Backend) collection(name string) (map[string]storedDoc, error) {
	if b.closed {
		return nil, errClosed
	}
	docs, ok := b.colls[name]
	if !ok {
		return nil, rderr.Newf(rderr.NotFound, nil, "memdocstore: no collection %q", name)
	}
	return docs, nil
}

// ErrorCode implements driver.Backend.ErrorCode.
func (b *Backend) ErrorCode(err error) rderrors.ErrorCode {
	return rderrors.Code(err)
}

// Close implements driver.Backend.Close.
// If the backend was created with a Filename option, Close writes the
// backend's documents to the file.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errClosed
	}
	b.closed = true
	return saveDocs(b.opts.Filename, b.colls)
}

// Read a map from the filename if is is not empty and the file exists.
// Otherwise return an empty (not nil) map.
func loadDocs(filename string) (mapOfDocs, error) {
	if filename == "" {
		return mapOfDocs{}, nil
	}
	f, err := os.Open(filename)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, rderr.Newf(rderr.Internal, err, "memdocstore: opening %q", filename)
		}
		// If the file doesn't exist, return an empty map without error.
		return mapOfDocs{}, nil
	}
	defer f.Close()
	var m mapOfDocs
	if err := gob.NewDecoder(f).Decode(&m); err != nil {
		return nil, rderr.Newf(rderr.Internal, err, "memdocstore: decoding %q", filename)
	}
	if m == nil {
		m = mapOfDocs{}
	}
	for _, docs := range m {
		for k, d := range docs {
			docs[k] = normalizeDecoded(d).(storedDoc)
		}
	}
	return m, nil
}

// normalizeDecoded restores the empty lists in a decoded value, which gob
// decodes as nil.
func normalizeDecoded(v any) any {
	switch v := v.(type) {
	case map[string]any:
		if v == nil {
			return storedDoc{}
		}
		for k, x := range v {
			v[k] = normalizeDecoded(x)
		}
		return v
	case []any:
		if v == nil {
			return []any{}
		}
		for i, x := range v {
			v[i] = normalizeDecoded(x)
		}
		return v
	}
	return v
}

// saveDocs saves m to filename if filename is not empty. The file is
// replaced whole or not at all.
func saveDocs(filename string, m mapOfDocs) error {
	if filename == "" {
		return nil
	}
	f, err := os.CreateTemp(filepath.Dir(filename), filepath.Base(filename)+".tmp*")
	if err != nil {
		return rderr.Newf(rderr.Internal, err, "memdocstore: saving %q", filename)
	}
	defer os.Remove(f.Name())
	if err := gob.NewEncoder(f).Encode(m); err != nil {
		_ = f.Close()
		return rderr.Newf(rderr.Internal, err, "memdocstore: encoding to %q", filename)
	}
	if err := f.Close(); err != nil {
		return rderr.Newf(rderr.Internal, err, "memdocstore: saving %q", filename)
	}
	if err := os.Rename(f.Name(), filename); err != nil {
		return rderr.Newf(rderr.Internal, err, "memdocstore: saving %q", filename)
	}
	return nil
}
