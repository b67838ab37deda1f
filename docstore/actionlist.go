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
	"strings"
)

// Actions returns an ActionList that can be used to perform
// actions on the collection's documents.
func (c *Collection) Actions() *ActionList {
	return &ActionList{coll: c}
}

// An ActionList is a sequence of reads and writes on a single collection.
//
// Actions run one at a time, in the order they were added, and each one
// independently of the others: a write that fails leaves no trace, and
// later actions see the effects of earlier ones. Whether a failure stops
// the list is controlled by WriteOptions.IgnoreErrors.
type ActionList struct {
	coll    *Collection
	actions []*Action
}

type actionKind int

const (
	actionSave actionKind = iota
	actionRead
	actionReplace
	actionUpdate
	actionUpsert
	actionRemove
)

func (k actionKind) String() string {
	switch k {
	case actionSave:
		return "Save"
	case actionRead:
		return "Read"
	case actionReplace:
		return "Replace"
	case actionUpdate:
		return "Update"
	case actionUpsert:
		return "Upsert"
	case actionRemove:
		return "Remove"
	}
	return "?"
}

// An Action is a read or write on a single document.
// Use the methods of ActionList to create and execute Actions.
type Action struct {
	kind     actionKind
	locator  string
	doc      any
	insert   any
	readOpts *ReadOptions
}

func (l *ActionList) add(a *Action) *ActionList {
	l.actions = append(l.actions, a)
	return l
}

// Save adds an action that saves a new document. See Collection.Save.
func (l *ActionList) Save(doc any) *ActionList {
	return l.add(&Action{kind: actionSave, doc: doc})
}

// Read adds an action that reads a document. See Collection.Read.
func (l *ActionList) Read(locator string, opts *ReadOptions) *ActionList {
	return l.add(&Action{kind: actionRead, locator: locator, readOpts: opts})
}

// Replace adds an action that replaces a document. See Collection.Replace.
func (l *ActionList) Replace(locator string, doc any) *ActionList {
	return l.add(&Action{kind: actionReplace, locator: locator, doc: doc})
}

// Update adds an action that updates a document. See Collection.Update.
func (l *ActionList) Update(locator string, doc any) *ActionList {
	return l.add(&Action{kind: actionUpdate, locator: locator, doc: doc})
}

// Upsert adds an action that inserts or updates a document. See
// Collection.Upsert.
func (l *ActionList) Upsert(locator string, insert, patch any) *ActionList {
	return l.add(&Action{kind: actionUpsert, locator: locator, doc: patch, insert: insert})
}

// Remove adds an action that removes a document. See Collection.Remove.
func (l *ActionList) Remove(locator string) *ActionList {
	return l.add(&Action{kind: actionRemove, locator: locator})
}

// An ActionListError is returned by ActionList.Do. It contains the errors
// encountered while executing the ActionList, and the positions of the
// corresponding actions.
type ActionListError []struct {
	Index int
	Err   error
}

func (e ActionListError) Error() string {
	var s []string
	for _, x := range e {
		s = append(s, fmt.Sprintf("at %d: %v", x.Index, x.Err))
	}
	return strings.Join(s, "; ")
}

// Unwrap returns the error in e, if there is exactly one. If there is more than one
// error, Unwrap returns nil, since there is no way to determine which should be
// returned.
func (e ActionListError) Unwrap() error {
	if len(e) == 1 {
		return e[0].Err
	}
	return nil
}

// Stats counts the writes of an ActionList.
type Stats struct {
	// WritesExecuted counts writes that changed a document.
	WritesExecuted int
	// WritesIgnored counts writes that failed under IgnoreErrors, plus saves
	// skipped by OverwriteIgnore.
	WritesIgnored int
}

// An ActionResult is the result of one action.
type ActionResult struct {
	// Write is set for successful writes.
	Write *WriteResult
	// Doc is set for successful reads.
	Doc Document
}

// A BatchResult is the result of ActionList.Do.
type BatchResult struct {
	// Results holds one entry per action, in order. Entries for actions that
	// failed or did not run are zero.
	Results []ActionResult
	// Errors holds the failures recorded under IgnoreErrors.
	Errors ActionListError
	Stats  Stats
}

// Do executes the action list, in order. opts apply to every write; nil
// means the Store's defaults.
//
// Unless opts.IgnoreErrors is set, Do stops at the first failed action and
// returns an ActionListError holding that action's position and error,
// along with the results of the actions before it. With IgnoreErrors, every
// action runs, failures are recorded in BatchResult.Errors, and the
// returned error is nil.
func (l *ActionList) Do(ctx context.Context, opts *WriteOptions) (_ *BatchResult, err error) {
	if err := l.coll.store.checkClosed(); err != nil {
		return nil, ActionListError{{-1, err}}
	}
	tracer := l.coll.store.tracer
	ctx, span := tracer.Start(ctx, "ActionList.Do")
	defer func() { tracer.End(ctx, span, err) }()

	o := l.coll.store.writeOptions(opts)
	br := &BatchResult{Results: make([]ActionResult, len(l.actions))}
	for i, a := range l.actions {
		res, ignored, err := l.coll.run(ctx, a, o)
		write := a.kind != actionRead
		if err != nil {
			if !o.IgnoreErrors {
				return br, ActionListError{{i, err}}
			}
			br.Errors = append(br.Errors, struct {
				Index int
				Err   error
			}{i, err})
			if write {
				br.Stats.WritesIgnored++
			}
			continue
		}
		br.Results[i] = res
		switch {
		case ignored:
			br.Stats.WritesIgnored++
		case write:
			br.Stats.WritesExecuted++
		}
	}
	return br, nil
}

func (l *ActionList) String() string {
	var as []string
	for _, a := range l.actions {
		as = append(as, a.String())
	}
	return "[" + strings.Join(as, ", ") + "]"
}

func (a *Action) String() string {
	buf := &strings.Builder{}
	fmt.Fprintf(buf, "%s(", a.kind)
	switch a.kind {
	case actionSave:
		fmt.Fprintf(buf, "%v", a.doc)
	case actionRead, actionRemove:
		fmt.Fprintf(buf, "%s", a.locator)
	case actionUpsert:
		fmt.Fprintf(buf, "%s, %v, %v", a.locator, a.insert, a.doc)
	default:
		fmt.Fprintf(buf, "%s, %v", a.locator, a.doc)
	}
	fmt.Fprint(buf, ")")
	return buf.String()
}
