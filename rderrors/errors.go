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

// Package rderrors provides support for getting error codes from
// errors returned by revdoc APIs.
//
// Programs should branch on an error's code, never on its message:
//
//	if rderrors.Code(err) == rderrors.Conflict {
//		// re-read the document and retry
//	}
package rderrors

import (
	"golang.org/x/xerrors"

	"revdoc.dev/internal/rderr"
)

// An ErrorCode describes the error's category. Programs should act upon an error's
// code, not its message.
type ErrorCode = rderr.ErrorCode

const (
	// Returned by the Code function on a nil error. It is not a valid
	// code for an error.
	OK ErrorCode = rderr.OK

	// The error could not be categorized.
	Unknown ErrorCode = rderr.Unknown

	// A value given to a revdoc API is incorrect.
	InvalidArgument ErrorCode = rderr.InvalidArgument

	// Something unexpected happened. Internal errors always indicate
	// bugs in revdoc (or possibly the underlying backend).
	Internal ErrorCode = rderr.Internal

	// The feature is not implemented.
	Unimplemented ErrorCode = rderr.Unimplemented

	// The system was in the wrong state, for example a closed Store.
	FailedPrecondition ErrorCode = rderr.FailedPrecondition

	// The operation was canceled.
	Canceled ErrorCode = rderr.Canceled

	// The operation timed out.
	DeadlineExceeded ErrorCode = rderr.DeadlineExceeded

	// A document key is empty, too long, or contains disallowed characters.
	KeyMalformed ErrorCode = rderr.KeyMalformed

	// Save found a document with the same key.
	KeyDuplicate ErrorCode = rderr.KeyDuplicate

	// A locator does not parse into a collection and a key.
	HandleMalformed ErrorCode = rderr.HandleMalformed

	// A locator names a collection other than the addressed one.
	CrossCollection ErrorCode = rderr.CrossCollection

	// No live document exists at the locator.
	NotFound ErrorCode = rderr.NotFound

	// A conditional read or write supplied a stale revision.
	Conflict ErrorCode = rderr.Conflict

	// A payload is not document-shaped.
	TypeInvalid ErrorCode = rderr.TypeInvalid

	// An edge document lacks valid _from/_to, or a plain document has them.
	EdgeAttributeInvalid ErrorCode = rderr.EdgeAttributeInvalid

	// A bind variable was bound twice.
	BindRedeclared ErrorCode = rderr.BindRedeclared

	// A bind variable name or value is not acceptable.
	BindInvalid ErrorCode = rderr.BindInvalid

	// Next was called on an exhausted cursor.
	NoMoreResults ErrorCode = rderr.NoMoreResults

	// A cursor was used after Dispose.
	CursorDisposed ErrorCode = rderr.CursorDisposed

	// A cursor was advanced by two callers at once.
	CursorBusy ErrorCode = rderr.CursorBusy
)

// Code returns the ErrorCode of err if it is, or wraps, a revdoc error.
// Context cancellation and deadline errors report Canceled and
// DeadlineExceeded. It returns Unknown for other non-nil errors.
// If err is nil, it returns the special code OK.
func Code(err error) ErrorCode {
	return rderr.Code(err)
}

// Locator returns the collection and key of the document err refers to.
// ok is false if err carries no locator.
func Locator(err error) (collection, key string, ok bool) {
	var e *rderr.Error
	if !xerrors.As(err, &e) {
		return "", "", false
	}
	if e.Collection == "" && e.Key == "" {
		return "", "", false
	}
	return e.Collection, e.Key, true
}

// IsMisuse reports whether err is a programming error in using a Statement
// or Cursor (BindRedeclared, BindInvalid, NoMoreResults, CursorDisposed,
// CursorBusy), as opposed to a domain outcome like Conflict or NotFound that
// a caller is expected to handle.
func IsMisuse(err error) bool {
	return rderr.IsMisuse(Code(err))
}
