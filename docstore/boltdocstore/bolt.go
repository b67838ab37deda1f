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

// Package boltdocstore provides a docstore backend that keeps documents in a
// bbolt database file.
//
// Each collection is a bucket keyed by document key, and each document is
// stored msgpack-encoded with sorted field names. A mutation runs in a single
// read-write transaction, which also makes it atomic with respect to other
// mutations of the same document.
//
// Stores opened by this package run queries with localquery.
//
// # URLs
//
// Call Register to make a docstore.URLMux open boltdocstore Stores for the
// scheme "bolt". See URLOpener for the URL format.
package boltdocstore // import "revdoc.dev/docstore/boltdocstore"

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"go.etcd.io/bbolt"

	"revdoc.dev/docstore"
	"revdoc.dev/docstore/driver"
	"revdoc.dev/docstore/localquery"
	"revdoc.dev/internal/rderr"
	"revdoc.dev/rderrors"
)

// Options are optional arguments to NewBackend and OpenStore.
type Options struct {
	// NoSync skips fsync on commit. Writes with WaitForDurable still sync
	// before returning.
	NoSync bool

	// Timeout is how long to wait for the file lock. Zero waits forever.
	Timeout time.Duration

	// BatchSize is the default query batch size of Stores opened by
	// OpenStore. Zero means localquery.DefaultBatchSize.
	BatchSize int
}

// OpenStore opens the bbolt database at path, creating it if needed, and
// returns a *docstore.Store backed by it.
func OpenStore(path string, opts *Options) (*docstore.Store, error) {
	b, err := NewBackend(path, opts)
	if err != nil {
		return nil, err
	}
	return docstore.NewStore(b, localquery.New(b, &localquery.Options{BatchSize: b.opts.BatchSize})), nil
}

// Backend is a driver.Backend over a bbolt database.
type Backend struct {
	db   *bbolt.DB
	opts *Options
}

// NewBackend opens the bbolt database at path.
func NewBackend(path string, opts *Options) (*Backend, error) {
	if opts == nil {
		opts = &Options{}
	}
	bopt := *bbolt.DefaultOptions
	bopt.Timeout = opts.Timeout
	bopt.NoSync = opts.NoSync
	db, err := bbolt.Open(path, 0666, &bopt)
	if err != nil {
		return nil, rderr.New(codeOf(err), err, 1, "boltdocstore: opening "+path)
	}
	return &Backend{db: db, opts: opts}, nil
}

// DB returns the underlying database.
func (b *Backend) DB() *bbolt.DB { return b.db }

// EnsureCollection implements driver.Backend.EnsureCollection.
func (b *Backend) EnsureCollection(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(name))
		return err
	})
}

// Get implements driver.Backend.Get.
func (b *Backend) Get(ctx context.Context, collection, key string) (driver.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var doc driver.Document
	err := b.db.View(func(tx *bbolt.Tx) error {
		bkt, err := bucket(tx, collection)
		if err != nil {
			return err
		}
		raw := bkt.Get([]byte(key))
		if raw == nil {
			return rderr.Newf(rderr.NotFound, nil, "document %s/%s not found", collection, key)
		}
		doc, err = decodeDoc(raw)
		return err
	})
	return doc, err
}

// Scan implements driver.Scanner.Scan. Documents come back in bucket order,
// which is key order.
func (b *Backend) Scan(ctx context.Context, collection string) ([]driver.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var docs []driver.Document
	err := b.db.View(func(tx *bbolt.Tx) error {
		bkt, err := bucket(tx, collection)
		if err != nil {
			return err
		}
		return bkt.ForEach(func(k, v []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			doc, err := decodeDoc(v)
			if err != nil {
				return err
			}
			docs = append(docs, doc)
			return nil
		})
	})
	return docs, err
}

// ApplyMutation implements driver.Backend.ApplyMutation. Apply runs inside
// the read-write transaction, so bbolt's single writer serializes it against
// every other mutation.
func (b *Backend) ApplyMutation(ctx context.Context, m *driver.Mutation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var changed bool
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bkt, err := bucket(tx, m.Collection)
		if err != nil {
			return err
		}
		var cur driver.Document
		if raw := bkt.Get([]byte(m.Key)); raw != nil {
			if cur, err = decodeDoc(raw); err != nil {
				return err
			}
		}
		commit, err := m.Apply(cur)
		if err != nil {
			return err
		}
		switch commit.Op {
		case driver.NoChange:
			return nil
		case driver.Put:
			raw, err := encodeDoc(commit.Doc)
			if err != nil {
				return err
			}
			changed = true
			return bkt.Put([]byte(m.Key), raw)
		case driver.Delete:
			changed = true
			return bkt.Delete([]byte(m.Key))
		}
		return rderr.Newf(rderr.Internal, nil, "boltdocstore: unknown commit op %d", commit.Op)
	})
	if err != nil {
		return err
	}
	if changed && m.WaitForDurable && b.opts.NoSync {
		return b.db.Sync()
	}
	return nil
}

// ErrorCode implements driver.Backend.ErrorCode.
func (b *Backend) ErrorCode(err error) rderrors.ErrorCode {
	return codeOf(err)
}

func codeOf(err error) rderrors.ErrorCode {
	switch {
	case errors.Is(err, bbolt.ErrTimeout):
		return rderrors.DeadlineExceeded
	case errors.Is(err, bbolt.ErrDatabaseNotOpen), errors.Is(err, bbolt.ErrTxClosed):
		return rderrors.FailedPrecondition
	case errors.Is(err, bbolt.ErrBucketNameRequired), errors.Is(err, bbolt.ErrKeyRequired), errors.Is(err, bbolt.ErrKeyTooLarge):
		return rderrors.InvalidArgument
	case errors.Is(err, bbolt.ErrDatabaseReadOnly):
		return rderrors.FailedPrecondition
	}
	return rderrors.Code(err)
}

// Close implements driver.Backend.Close.
func (b *Backend) Close() error {
	return b.db.Close()
}

func bucket(tx *bbolt.Tx, name string) (*bbolt.Bucket, error) {
	bkt := tx.Bucket([]byte(name))
	if bkt == nil {
		return nil, rderr.Newf(rderr.NotFound, nil, "boltdocstore: no collection %q", name)
	}
	return bkt, nil
}

func encodeDoc(doc driver.Document) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.GetEncoder()
	defer msgpack.PutEncoder(enc)
	enc.Reset(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(doc); err != nil {
		return nil, rderr.Newf(rderr.Internal, err, "boltdocstore: encoding document")
	}
	return buf.Bytes(), nil
}

// decodeDoc decodes a stored document. The result shares no memory with
// raw, which bbolt only keeps valid for the transaction.
//
// Decoding is strict so that bin values come back as []byte rather than
// string; Normalize widens the sized numbers it produces.
func decodeDoc(raw []byte) (driver.Document, error) {
	dec := msgpack.GetDecoder()
	defer msgpack.PutDecoder(dec)
	dec.Reset(bytes.NewReader(raw))
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, rderr.Newf(rderr.Internal, err, "boltdocstore: decoding document")
	}
	v, err := driver.Normalize(m)
	if err != nil {
		return nil, err
	}
	doc, _ := v.(driver.Document)
	if doc == nil {
		doc = driver.Document{}
	}
	return doc, nil
}
