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

// Package merge computes the document that results from applying a write
// payload to a stored document.
//
// Plan is pure: it never modifies its arguments, and the documents it
// returns share no memory with them or with each other.
package merge // import "revdoc.dev/docstore/merge"

import (
	"revdoc.dev/docstore/driver"
	"revdoc.dev/internal/rderr"
)

// Names of the system fields.
const (
	IDField   = "_id"
	KeyField  = "_key"
	RevField  = "_rev"
	FromField = "_from"
	ToField   = "_to"
)

// Mode selects how a payload is combined with the stored document.
type Mode int

const (
	// Insert stores the payload as a new document.
	Insert Mode = iota
	// Update merges the payload into the stored document.
	Update
	// Replace keeps only the system fields of the stored document.
	Replace
	// Upsert inserts when there is no stored document and otherwise
	// behaves like Options.UpsertMode.
	Upsert
)

func (m Mode) String() string {
	switch m {
	case Insert:
		return "Insert"
	case Update:
		return "Update"
	case Replace:
		return "Replace"
	case Upsert:
		return "Upsert"
	}
	return "Mode(?)"
}

// Options control merging.
type Options struct {
	// KeepNull keeps fields whose payload value is nil. When false, such
	// fields are removed from the result.
	KeepNull bool
	// MergeObjects merges nested documents present on both sides. When false,
	// the payload's nested document replaces the stored one.
	MergeObjects bool
	// UpsertMode is Update or Replace; it is used by Upsert when a document
	// exists.
	UpsertMode Mode
	// Insert is the document Upsert inserts when none exists. If nil, the
	// payload is inserted.
	Insert driver.Document
}

// DefaultOptions returns the options used when the caller sets none.
func DefaultOptions() Options {
	return Options{KeepNull: true, MergeObjects: true, UpsertMode: Update}
}

// A Result is the outcome of Plan.
type Result struct {
	// Document is the document to store. System fields are carried over from
	// the stored document; a new revision is not assigned here.
	Document driver.Document
	// Old is a snapshot of the stored document, nil when Inserted.
	Old driver.Document
	// New is a snapshot of Document.
	New driver.Document
	// Inserted reports whether the insert branch was taken.
	Inserted bool
}

// Plan applies payload to existing, which is nil if no document is stored.
func Plan(existing, payload driver.Document, mode Mode, opts Options) (*Result, error) {
	if mode == Upsert {
		if existing == nil {
			mode = Insert
			if opts.Insert != nil {
				payload = opts.Insert
			}
		} else {
			mode = opts.UpsertMode
			if mode != Update && mode != Replace {
				return nil, rderr.Newf(rderr.InvalidArgument, nil, "upsert mode must be Update or Replace, got %v", mode)
			}
		}
	}
	if payload == nil {
		return nil, rderr.Newf(rderr.TypeInvalid, nil, "payload must be a document")
	}

	var doc driver.Document
	switch mode {
	case Insert:
		doc = make(driver.Document, len(payload))
		copyUserFields(doc, payload)
	case Replace:
		if existing == nil {
			return nil, rderr.Newf(rderr.NotFound, nil, "no document to replace")
		}
		doc = systemFields(existing)
		copyUserFields(doc, payload)
	case Update:
		if existing == nil {
			return nil, rderr.Newf(rderr.NotFound, nil, "no document to update")
		}
		doc = driver.Copy(existing)
		for k, v := range payload {
			if isSystemField(k) {
				continue
			}
			mergeField(doc, k, v, opts)
		}
	default:
		return nil, rderr.Newf(rderr.InvalidArgument, nil, "unknown mode %v", mode)
	}

	res := &Result{
		Document: doc,
		New:      driver.Copy(doc),
		Inserted: mode == Insert,
	}
	if !res.Inserted {
		res.Old = driver.Copy(existing)
	}
	return res, nil
}

// mergeField writes the payload value v for field k into dst.
func mergeField(dst driver.Document, k string, v any, opts Options) {
	if v == nil {
		if opts.KeepNull {
			dst[k] = nil
		} else {
			delete(dst, k)
		}
		return
	}
	src, ok := v.(driver.Document)
	if !ok {
		dst[k] = copyValue(v, opts)
		return
	}
	if cur, ok := dst[k].(driver.Document); ok && opts.MergeObjects {
		for sk, sv := range src {
			mergeField(cur, sk, sv, opts)
		}
		return
	}
	dst[k] = copyValue(src, opts)
}

// copyValue deep-copies a payload value that is written without merging.
// Nested nulls are dropped from documents unless KeepNull is set; elements
// of sequences are kept as they are.
func copyValue(v any, opts Options) any {
	d, ok := v.(driver.Document)
	if !ok || opts.KeepNull {
		return driver.CopyValue(v)
	}
	out := make(driver.Document, len(d))
	for k, x := range d {
		if x == nil {
			continue
		}
		out[k] = copyValue(x, opts)
	}
	return out
}

func copyUserFields(dst, src driver.Document) {
	for k, v := range src {
		if isSystemField(k) {
			continue
		}
		dst[k] = driver.CopyValue(v)
	}
}

func systemFields(d driver.Document) driver.Document {
	out := driver.Document{}
	for _, k := range []string{IDField, KeyField, RevField} {
		if v, ok := d[k]; ok {
			out[k] = v
		}
	}
	return out
}

func isSystemField(k string) bool {
	return k == IDField || k == KeyField || k == RevField
}
