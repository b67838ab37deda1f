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

// Package rderr provides the error type used by revdoc APIs.
package rderr

import (
	"context"
	"fmt"

	"golang.org/x/xerrors"
)

// An ErrorCode describes the error's category.
type ErrorCode int

const (
	// Returned by the Code function on a nil error. It is not a valid
	// code for an error.
	OK ErrorCode = 0

	// The error could not be categorized.
	Unknown ErrorCode = 1

	// A value given to a revdoc API is incorrect.
	InvalidArgument ErrorCode = 2

	// Something unexpected happened. Internal errors always indicate
	// bugs in revdoc (or possibly the underlying backend).
	Internal ErrorCode = 3

	// The feature is not implemented.
	Unimplemented ErrorCode = 4

	// The system was in the wrong state, for example a closed Store.
	FailedPrecondition ErrorCode = 5

	// The operation was canceled.
	Canceled ErrorCode = 6

	// The operation timed out.
	DeadlineExceeded ErrorCode = 7

	// A document key is empty, too long, or contains disallowed characters.
	KeyMalformed ErrorCode = 8

	// A document with the same key already exists.
	KeyDuplicate ErrorCode = 9

	// A locator does not parse into a collection and a key.
	HandleMalformed ErrorCode = 10

	// A locator names a collection other than the addressed one.
	CrossCollection ErrorCode = 11

	// No live document (or collection, or cursor) exists at the locator.
	NotFound ErrorCode = 12

	// The expected revision does not match the stored one.
	Conflict ErrorCode = 13

	// A payload is not document-shaped.
	TypeInvalid ErrorCode = 14

	// An edge document lacks valid _from/_to, or a plain document has them.
	EdgeAttributeInvalid ErrorCode = 15

	// A bind variable was bound twice.
	BindRedeclared ErrorCode = 16

	// A bind variable name or value is not acceptable.
	BindInvalid ErrorCode = 17

	// Next was called on an exhausted cursor.
	NoMoreResults ErrorCode = 18

	// A cursor was used after Dispose.
	CursorDisposed ErrorCode = 19

	// A cursor was advanced by two callers at once.
	CursorBusy ErrorCode = 20
)

// Call "go generate" whenever you change the above list of error codes.
// To get stringer:
//   go install golang.org/x/tools/cmd/stringer@latest
//   Make sure $GOPATH/bin or $GOBIN in on your path.

//go:generate stringer -type=ErrorCode

// An Error describes a revdoc error.
type Error struct {
	Code ErrorCode
	// Collection and Key identify the offending document, when known.
	Collection string
	Key        string
	msg        string
	frame      xerrors.Frame
	err        error
}

func (e *Error) Error() string {
	return fmt.Sprint(e)
}

func (e *Error) Format(s fmt.State, c rune) {
	xerrors.FormatError(e, s, c)
}

func (e *Error) FormatError(p xerrors.Printer) (next error) {
	loc := ""
	if e.Collection != "" || e.Key != "" {
		loc = fmt.Sprintf(", at=%s/%s", e.Collection, e.Key)
	}
	if e.msg == "" {
		p.Printf("code=%v%s", e.Code, loc)
	} else {
		p.Printf("%s (code=%v%s)", e.msg, e.Code, loc)
	}
	e.frame.Format(p)
	return e.err
}

// Unwrap returns the error underlying the receiver, which may be nil.
func (e *Error) Unwrap() error {
	return e.err
}

// At records the document the error refers to and returns e.
func (e *Error) At(collection, key string) *Error {
	e.Collection = collection
	e.Key = key
	return e
}

// New returns a new error with the given code, underlying error and message. Pass 1
// for the call depth if New is called from the function raising the error; pass 2 if
// it is called from a helper function that was invoked by the original function; and
// so on.
func New(c ErrorCode, err error, callDepth int, msg string) *Error {
	return &Error{
		Code:  c,
		msg:   msg,
		frame: xerrors.Caller(callDepth),
		err:   err,
	}
}

// Newf uses format and args to format a message, then calls New.
func Newf(c ErrorCode, err error, format string, args ...interface{}) *Error {
	return New(c, err, 2, fmt.Sprintf(format, args...))
}

// DoNotWrap reports whether an error should not be wrapped in the Error
// type from this package.
// It returns true if err is a context error.
func DoNotWrap(err error) bool {
	return xerrors.Is(err, context.Canceled) || xerrors.Is(err, context.DeadlineExceeded)
}

// Code returns the code of err. It returns OK for a nil error, Canceled or
// DeadlineExceeded for context errors, and Unknown for other foreign errors.
func Code(err error) ErrorCode {
	if err == nil {
		return OK
	}
	var e *Error
	if xerrors.As(err, &e) {
		return e.Code
	}
	if xerrors.Is(err, context.Canceled) {
		return Canceled
	}
	if xerrors.Is(err, context.DeadlineExceeded) {
		return DeadlineExceeded
	}
	return Unknown
}

// IsMisuse reports whether c describes a caller error in using a statement or
// cursor, as opposed to an expected domain outcome such as Conflict.
func IsMisuse(c ErrorCode) bool {
	switch c {
	case BindRedeclared, BindInvalid, NoMoreResults, CursorDisposed, CursorBusy:
		return true
	}
	return false
}
