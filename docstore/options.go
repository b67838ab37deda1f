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
	"revdoc.dev/docstore/revision"
)

// OverwriteMode says what Save does when a document with the same key exists.
type OverwriteMode int

const (
	// OverwriteConflict fails with code KeyDuplicate.
	OverwriteConflict OverwriteMode = iota
	// OverwriteReplace replaces the stored document.
	OverwriteReplace
	// OverwriteUpdate merges the payload into the stored document.
	OverwriteUpdate
	// OverwriteIgnore leaves the stored document alone and reports its
	// revision.
	OverwriteIgnore
)

func (m OverwriteMode) String() string {
	switch m {
	case OverwriteConflict:
		return "conflict"
	case OverwriteReplace:
		return "replace"
	case OverwriteUpdate:
		return "update"
	case OverwriteIgnore:
		return "ignore"
	}
	return "OverwriteMode(?)"
}

// UpsertMode says how Upsert changes a document that exists.
type UpsertMode int

const (
	UpsertUpdate UpsertMode = iota
	UpsertReplace
)

// Policy is the conflict policy for conditional writes.
type Policy = revision.Policy

const (
	// CheckRevision rejects a write whose expected revision is stale.
	CheckRevision = revision.CheckRevision
	// LastWriteWins applies a write whose expected revision is stale.
	LastWriteWins = revision.LastWriteWins
)

// WriteOptions control writes. The zero value keeps nulls, merges nested
// documents and ignores the payload's _rev. A nil *WriteOptions means the
// Store's defaults, which are the zero value unless the Store was opened
// from a Config.
type WriteOptions struct {
	// ExpectedRevision makes the write conditional on the stored revision.
	ExpectedRevision string
	// Policy applies when ExpectedRevision (or the payload's _rev) is stale.
	Policy Policy
	// DropNulls removes fields that an update sets to nil. Otherwise they
	// are kept with a nil value.
	DropNulls bool
	// ReplaceObjects makes an update replace nested documents instead of
	// merging them.
	ReplaceObjects bool
	// Overwrite applies to Save when the key exists.
	Overwrite OverwriteMode
	// UpsertMode applies to Upsert when the document exists.
	UpsertMode UpsertMode
	// CheckPayloadRev makes a payload _rev the expected revision when
	// ExpectedRevision is empty.
	CheckPayloadRev bool
	// IgnoreErrors makes ActionList.Do record failures and continue.
	IgnoreErrors bool
	// WaitForDurable makes writes return only once they are durable.
	WaitForDurable bool
	// ReturnOld and ReturnNew ask for snapshots of the document before and
	// after the write.
	ReturnOld bool
	ReturnNew bool
}

// DefaultWriteOptions returns the options used for a nil *WriteOptions on a
// Store that has no configured defaults.
func DefaultWriteOptions() *WriteOptions {
	return &WriteOptions{}
}

func (s *Store) writeOptions(o *WriteOptions) *WriteOptions {
	if o != nil {
		return o
	}
	d := s.writeDefaults
	return &d
}

// expectedRevision returns the revision a write is conditional on, or "".
func expectedRevision(o *WriteOptions, payload Document) string {
	if o.ExpectedRevision != "" {
		return o.ExpectedRevision
	}
	if o.CheckPayloadRev {
		if r, ok := payload[RevField].(string); ok {
			return r
		}
	}
	return ""
}

// ReadOptions control reads.
type ReadOptions struct {
	// ExpectedRevision makes the read fail with code Conflict unless the
	// stored revision matches.
	ExpectedRevision string
}

// A WriteResult describes a completed write.
type WriteResult struct {
	ID  string
	Key string
	// Rev is the document's revision after the write. For Remove it is the
	// revision of the removed document.
	Rev string
	// OldRev is the revision the write replaced, empty for inserts.
	OldRev string
	// Old and New are set when WriteOptions.ReturnOld and ReturnNew ask for
	// them. Old is nil for inserts; New is nil for removals.
	Old Document
	New Document
}
