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

// Package docstore provides revision-checked reads and writes of
// schemaless documents, and paginated iteration over query results.
//
// # Stores and collections
//
// A Store is opened from a driver package (memdocstore, boltdocstore) or
// through a URLMux, and must be closed when no longer needed. Documents live
// in named collections created with Store.CreateCollection. A collection is
// either a document collection or an edge collection; edges must carry
// _from and _to fields holding document identifiers, and plain documents
// must not.
//
// Documents are addressed by locator: either a bare key, or an identifier
// of the form "collection/key". An identifier naming a different collection
// is rejected with code CrossCollection; it is never redirected.
//
// # Revisions
//
// Every stored document has a revision in its _rev field. The Store assigns
// a new revision on each successful write; revisions of a key are never
// reused, even after the document is removed and re-created.
//
// A write can be made conditional by setting WriteOptions.ExpectedRevision
// (or, with CheckPayloadRev set, by including _rev in the payload). If the
// stored revision differs, the write fails with code Conflict and the
// document is unchanged, unless the Policy is LastWriteWins, in which case
// the condition is ignored. Conflicts are never retried: re-read the
// document and try again. Read accepts an expected revision too.
//
// # Writes
//
// Save inserts, Replace swaps the user fields, Update merges, Upsert
// inserts or updates, and Remove deletes. Update merges nested documents
// unless ReplaceObjects is set, and keeps fields set to nil unless DropNulls
// is set. Lists are always replaced. An ActionList runs several of these
// in order; see ActionList.Do for error handling.
//
// # Queries
//
// Store.NewStatement prepares a query for the Store's query executor. Its
// Execute method returns a Cursor, which fetches results in batches as it
// is advanced. Dispose the cursor when done, or iterate with Cursor.All,
// which disposes it for you.
//
// # Errors
//
// Errors carry a code, available from revdoc.dev/rderrors.Code, and the
// collection and key involved, from rderrors.Locator.
//
// # OpenTelemetry Integration
//
// Store, Collection, ActionList, Statement and Cursor operations create
// OpenTelemetry spans named "revdoc.dev/docstore.<Type>.<Method>", and
// record their latency and completion status as metrics.
package docstore // import "revdoc.dev/docstore"
