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
	"fmt"
	"runtime"
	"strings"
	"sync"

	"github.com/golang/glog"

	"revdoc.dev/docstore/driver"
	"revdoc.dev/docstore/merge"
	"revdoc.dev/docstore/revision"
	"revdoc.dev/internal/otel"
	"revdoc.dev/internal/rderr"
)

// A Document is a set of field-value pairs. Documents returned by this
// package are normalized; see driver.Document.
type Document = driver.Document

// Names of the system fields.
const (
	IDField   = merge.IDField
	KeyField  = merge.KeyField
	RevField  = merge.RevField
	FromField = merge.FromField
	ToField   = merge.ToField
)

const pkgName = "revdoc.dev/docstore"

// CollectionKind says whether a collection holds plain documents or edges.
type CollectionKind int

const (
	// DocumentCollection holds plain documents, which may not carry _from or _to.
	DocumentCollection CollectionKind = iota
	// EdgeCollection holds edges, which must carry _from and _to.
	EdgeCollection
)

func (k CollectionKind) String() string {
	switch k {
	case DocumentCollection:
		return "document"
	case EdgeCollection:
		return "edge"
	}
	return fmt.Sprintf("CollectionKind(%d)", int(k))
}

// A Store is a handle to a set of collections held by one backend. Create
// one with NewStore, or with OpenStore from a driver package, and Close it
// when done.
//
// A Store is the only source of document revisions: every successful write
// made through it assigns a fresh revision.
type Store struct {
	backend  driver.Backend
	executor driver.QueryExecutor
	tracer   *otel.Tracer
	revs     *revision.Generator

	mu          sync.Mutex
	collections map[string]*Collection
	closed      bool

	// Set by OpenStoreFromConfig.
	writeDefaults WriteOptions
	batchSize     int
}

// NewStore is intended for use by drivers only. Do not use in application code.
// q may be nil, in which case statements cannot be executed.
var NewStore = newStore

func newStore(b driver.Backend, q driver.QueryExecutor) *Store {
	s := &Store{
		backend:       b,
		executor:      q,
		tracer:        otel.NewTracer(pkgName, otel.ProviderName(b)),
		revs:          revision.NewGenerator(),
		collections:   map[string]*Collection{},
		writeDefaults: *DefaultWriteOptions(),
	}
	_, file, lineno, ok := runtime.Caller(1)
	runtime.SetFinalizer(s, func(s *Store) {
		s.mu.Lock()
		closed := s.closed
		s.mu.Unlock()
		if !closed {
			var caller string
			if ok {
				caller = fmt.Sprintf(" (%s:%d)", file, lineno)
			}
			glog.Warningf("A docstore.Store was never closed%s", caller)
		}
	})
	return s
}

// CreateCollection creates the named collection if the backend does not
// have it, and returns a handle to it. Calling CreateCollection again with
// the same name and kind returns the same handle; a different kind is an
// error.
func (s *Store) CreateCollection(ctx context.Context, name string, kind CollectionKind) (_ *Collection, err error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}
	if !validCollectionName(name) {
		return nil, rderr.Newf(rderr.InvalidArgument, nil, "invalid collection name %q", name)
	}
	if kind != DocumentCollection && kind != EdgeCollection {
		return nil, rderr.Newf(rderr.InvalidArgument, nil, "invalid collection kind %v", kind)
	}
	s.mu.Lock()
	c, ok := s.collections[name]
	s.mu.Unlock()
	if ok {
		if c.kind != kind {
			return nil, rderr.Newf(rderr.InvalidArgument, nil, "collection %q exists as a %s collection", name, c.kind)
		}
		return c, nil
	}

	ctx, span := s.tracer.Start(ctx, "Store.CreateCollection")
	defer func() { s.tracer.End(ctx, span, err) }()

	if err := s.backend.EnsureCollection(ctx, name); err != nil {
		return nil, wrapError(s.backend, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.collections[name]; ok {
		if c.kind != kind {
			return nil, rderr.Newf(rderr.InvalidArgument, nil, "collection %q exists as a %s collection", name, c.kind)
		}
		return c, nil
	}
	c = &Collection{store: s, name: name, kind: kind}
	s.collections[name] = c
	return c, nil
}

// Collection returns the named collection, which must have been created
// with CreateCollection.
func (s *Store) Collection(name string) (*Collection, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[name]
	if !ok {
		return nil, rderr.Newf(rderr.NotFound, nil, "no collection named %q", name)
	}
	return c, nil
}

var errClosed = rderr.Newf(rderr.FailedPrecondition, nil, "docstore: Store has been closed")

// Close releases the backend. Cursors still open keep their server-side
// state until disposed.
func (s *Store) Close() error {
	s.mu.Lock()
	prev := s.closed
	s.closed = true
	s.mu.Unlock()
	if prev {
		return errClosed
	}
	return wrapError(s.backend, s.backend.Close())
}

func (s *Store) checkClosed() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	return nil
}

// errorCoder is implemented by both driver.Backend and driver.QueryExecutor.
type errorCoder interface {
	ErrorCode(error) rderr.ErrorCode
}

func wrapError(d errorCoder, err error) error {
	if err == nil {
		return nil
	}
	if rderr.DoNotWrap(err) {
		return err
	}
	if _, ok := err.(*rderr.Error); ok {
		return err
	}
	return rderr.New(d.ErrorCode(err), err, 2, "docstore")
}

// A Collection is a named set of documents in a Store. Obtain one from
// Store.CreateCollection or Store.Collection. Its methods are safe for
// concurrent use.
type Collection struct {
	store *Store
	name  string
	kind  CollectionKind
}

// Name returns the collection's name.
func (c *Collection) Name() string { return c.name }

// Kind returns the collection's kind.
func (c *Collection) Kind() CollectionKind { return c.kind }

// RequiresFromTo reports whether documents in c must carry _from and _to.
func (c *Collection) RequiresFromTo() bool { return c.kind == EdgeCollection }

// ID returns the identifier of the document with the given key in c.
func (c *Collection) ID(key string) string { return c.name + "/" + key }

// resolve turns a locator into a key of c.
func (c *Collection) resolve(locator string) (string, error) {
	coll, key, err := parseLocator(locator)
	if err != nil {
		return "", err
	}
	if coll != "" && coll != c.name {
		return "", rderr.Newf(rderr.CrossCollection, nil, "locator %q does not refer to collection %q", locator, c.name).At(coll, key)
	}
	return key, nil
}

// payloadKey reconciles the _id and _key of a payload with the key the
// operation addresses, which is empty when the payload chooses it.
func (c *Collection) payloadKey(doc Document, key string) (string, error) {
	if v, ok := doc[KeyField]; ok && v != nil {
		k, ok := v.(string)
		if !ok || !validKey(k) {
			return "", rderr.Newf(rderr.KeyMalformed, nil, "invalid document key %v", v)
		}
		if key != "" && k != key {
			return "", rderr.Newf(rderr.HandleMalformed, nil, "document key %q does not match locator key %q", k, key).At(c.name, key)
		}
		key = k
	}
	if v, ok := doc[IDField]; ok && v != nil {
		id, ok := v.(string)
		if !ok {
			return "", rderr.Newf(rderr.HandleMalformed, nil, "document identifier %v is not a string", v)
		}
		coll, k, err := parseLocator(id)
		if err != nil {
			return "", err
		}
		if coll == "" {
			return "", rderr.Newf(rderr.HandleMalformed, nil, "document identifier %q has no collection", id)
		}
		if coll != c.name {
			return "", rderr.Newf(rderr.CrossCollection, nil, "document identifier %q does not refer to collection %q", id, c.name).At(coll, k)
		}
		if key != "" && k != key {
			return "", rderr.Newf(rderr.HandleMalformed, nil, "document identifier %q does not match key %q", id, key).At(c.name, key)
		}
		key = k
	}
	return key, nil
}

// checkEdge validates the edge fields of a document about to be stored.
func (c *Collection) checkEdge(doc Document) error {
	if !c.RequiresFromTo() {
		for _, f := range []string{FromField, ToField} {
			if _, ok := doc[f]; ok {
				return rderr.Newf(rderr.EdgeAttributeInvalid, nil, "%s is not allowed in a document collection", f)
			}
		}
		return nil
	}
	for _, f := range []string{FromField, ToField} {
		s, ok := doc[f].(string)
		if !ok || s == "" {
			return rderr.Newf(rderr.EdgeAttributeInvalid, nil, "edge needs a non-empty string %s", f)
		}
		if coll, _, err := parseLocator(s); err != nil || coll == "" {
			return rderr.Newf(rderr.EdgeAttributeInvalid, err, "edge %s %q is not a document identifier", f, s)
		}
	}
	return nil
}

// parseLocator splits a bare key or a "collection/key" identifier. coll is
// empty for a bare key.
func parseLocator(loc string) (coll, key string, err error) {
	if loc == "" {
		return "", "", rderr.Newf(rderr.HandleMalformed, nil, "empty locator")
	}
	i := strings.IndexByte(loc, '/')
	if i < 0 {
		if !validKey(loc) {
			return "", "", rderr.Newf(rderr.KeyMalformed, nil, "invalid document key %q", loc)
		}
		return "", loc, nil
	}
	coll, key = loc[:i], loc[i+1:]
	if !validCollectionName(coll) || key == "" || strings.IndexByte(key, '/') >= 0 {
		return "", "", rderr.Newf(rderr.HandleMalformed, nil, "malformed document identifier %q", loc)
	}
	if !validKey(key) {
		return "", "", rderr.Newf(rderr.KeyMalformed, nil, "invalid document key %q", key).At(coll, key)
	}
	return coll, key, nil
}

const (
	maxKeyLen            = 254
	maxCollectionNameLen = 256
)

func validKey(k string) bool {
	if len(k) == 0 || len(k) > maxKeyLen {
		return false
	}
	for i := 0; i < len(k); i++ {
		c := k[i]
		switch {
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		case strings.IndexByte("_-:.@()+,=;$!*'%", c) >= 0:
		default:
			return false
		}
	}
	return true
}

func validCollectionName(name string) bool {
	if len(name) == 0 || len(name) > maxCollectionNameLen {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		letter := 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' || c == '_'
		if i == 0 {
			if !letter {
				return false
			}
			continue
		}
		if !letter && !('0' <= c && c <= '9') && c != '-' {
			return false
		}
	}
	return true
}
