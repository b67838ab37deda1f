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

/*
Package revdoc is a document store client core built around two protocols:
revision-guarded document mutation and paginated query cursors.

Every stored document carries a revision tag that changes on each write.
Writes can be made conditional on the revision a caller last saw, so that
concurrent read-modify-write cycles detect each other instead of silently
overwriting. Queries return a Cursor that fetches results in batches and
holds server-side state until it is drained or disposed.

The portable API lives in package docstore. Documents are stored by a
driver.Backend, such as the in-memory memdocstore or the bbolt-based
boltdocstore, and queries are run by a driver.QueryExecutor, such as
localquery. Errors carry codes that can be inspected with package rderrors.
*/
package revdoc // import "revdoc.dev"
