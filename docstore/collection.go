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

	"github.com/golang/glog"

	"revdoc.dev/docstore/driver"
	"revdoc.dev/docstore/merge"
	"revdoc.dev/docstore/revision"
	"revdoc.dev/internal/rderr"
)

// Save stores doc as a new document and returns its identifier, key and
// revision. doc may be a map with string keys or a struct (or pointer to
// one); structs are converted using their json field tags.
//
// The key is taken from doc's _key field, or from its _id field, or
// generated. If a document with the key exists, opts.Overwrite decides what
// happens; by default Save fails with code KeyDuplicate.
func (c *Collection) Save(ctx context.Context, doc any, opts *WriteOptions) (_ *WriteResult, err error) {
	ctx, span := c.store.tracer.Start(ctx, "Collection.Save")
	defer func() { c.store.tracer.End(ctx, span, err) }()

	res, err := c.runSingle(ctx, &Action{kind: actionSave, doc: doc}, opts)
	return res.Write, err
}

// Read returns the document at locator, which is a key or an identifier
// naming c. It fails with code NotFound if there is no such document.
func (c *Collection) Read(ctx context.Context, locator string, opts *ReadOptions) (_ Document, err error) {
	ctx, span := c.store.tracer.Start(ctx, "Collection.Read")
	defer func() { c.store.tracer.End(ctx, span, err) }()

	res, err := c.runSingle(ctx, &Action{kind: actionRead, locator: locator, readOpts: opts}, nil)
	return res.Doc, err
}

// Replace replaces the user fields of the document at locator with those
// of doc. The document must exist.
func (c *Collection) Replace(ctx context.Context, locator string, doc any, opts *WriteOptions) (_ *WriteResult, err error) {
	ctx, span := c.store.tracer.Start(ctx, "Collection.Replace")
	defer func() { c.store.tracer.End(ctx, span, err) }()

	res, err := c.runSingle(ctx, &Action{kind: actionReplace, locator: locator, doc: doc}, opts)
	return res.Write, err
}

// Update merges doc into the document at locator, which must exist. See
// WriteOptions.DropNulls and WriteOptions.ReplaceObjects.
func (c *Collection) Update(ctx context.Context, locator string, doc any, opts *WriteOptions) (_ *WriteResult, err error) {
	ctx, span := c.store.tracer.Start(ctx, "Collection.Update")
	defer func() { c.store.tracer.End(ctx, span, err) }()

	res, err := c.runSingle(ctx, &Action{kind: actionUpdate, locator: locator, doc: doc}, opts)
	return res.Write, err
}

// Upsert inserts insert at locator if no document is there, and otherwise
// updates or replaces the document with patch (see WriteOptions.UpsertMode).
// If insert is nil, patch is inserted. Revision conditions apply only when
// the document exists.
func (c *Collection) Upsert(ctx context.Context, locator string, insert, patch any, opts *WriteOptions) (_ *WriteResult, err error) {
	ctx, span := c.store.tracer.Start(ctx, "Collection.Upsert")
	defer func() { c.store.tracer.End(ctx, span, err) }()

	res, err := c.runSingle(ctx, &Action{kind: actionUpsert, locator: locator, doc: patch, insert: insert}, opts)
	return res.Write, err
}

// Remove deletes the document at locator, which must exist.
func (c *Collection) Remove(ctx context.Context, locator string, opts *WriteOptions) (_ *WriteResult, err error) {
	ctx, span := c.store.tracer.Start(ctx, "Collection.Remove")
	defer func() { c.store.tracer.End(ctx, span, err) }()

	res, err := c.runSingle(ctx, &Action{kind: actionRemove, locator: locator}, opts)
	return res.Write, err
}

func (c *Collection) runSingle(ctx context.Context, a *Action, opts *WriteOptions) (ActionResult, error) {
	if err := c.store.checkClosed(); err != nil {
		return ActionResult{}, err
	}
	res, _, err := c.run(ctx, a, c.store.writeOptions(opts))
	return res, err
}

// run executes one action. ignored reports a Save that found an existing
// document under OverwriteIgnore.
func (c *Collection) run(ctx context.Context, a *Action, o *WriteOptions) (res ActionResult, ignored bool, err error) {
	switch a.kind {
	case actionRead:
		res.Doc, err = c.read(ctx, a.locator, a.readOpts)
	case actionRemove:
		res.Write, err = c.remove(ctx, a.locator, o)
	default:
		res.Write, ignored, err = c.write(ctx, a, o)
	}
	return res, ignored, err
}

func (c *Collection) read(ctx context.Context, locator string, opts *ReadOptions) (Document, error) {
	key, err := c.resolve(locator)
	if err != nil {
		return nil, err
	}
	doc, err := c.store.backend.Get(ctx, c.name, key)
	if err != nil {
		return nil, at(wrapError(c.store.backend, err), c.name, key)
	}
	if opts != nil {
		cur, _ := driver.StringField(doc, RevField)
		if revision.Check(cur, opts.ExpectedRevision, revision.CheckRevision) == revision.Conflict {
			glog.V(1).Infof("docstore: read of %s/%s: expected revision %s, have %s", c.name, key, opts.ExpectedRevision, cur)
			return nil, rderr.Newf(rderr.Conflict, nil, "revision %s is not current", opts.ExpectedRevision).At(c.name, key)
		}
	}
	return doc, nil
}

func (c *Collection) remove(ctx context.Context, locator string, o *WriteOptions) (*WriteResult, error) {
	key, err := c.resolve(locator)
	if err != nil {
		return nil, err
	}
	var res *WriteResult
	m := &driver.Mutation{
		Collection:     c.name,
		Key:            key,
		WaitForDurable: o.WaitForDurable,
		Apply: func(cur Document) (driver.Commit, error) {
			if cur == nil {
				return driver.Commit{}, rderr.Newf(rderr.NotFound, nil, "document not found").At(c.name, key)
			}
			curRev, _ := driver.StringField(cur, RevField)
			if err := c.guard(key, curRev, o.ExpectedRevision, o.Policy); err != nil {
				return driver.Commit{}, err
			}
			res = &WriteResult{ID: c.ID(key), Key: key, Rev: curRev, OldRev: curRev}
			if o.ReturnOld {
				res.Old = driver.Copy(cur)
			}
			return driver.Commit{Op: driver.Delete}, nil
		},
	}
	if err := c.store.backend.ApplyMutation(ctx, m); err != nil {
		return nil, at(wrapError(c.store.backend, err), c.name, key)
	}
	return res, nil
}

func (c *Collection) write(ctx context.Context, a *Action, o *WriteOptions) (*WriteResult, bool, error) {
	if o.Overwrite < OverwriteConflict || o.Overwrite > OverwriteIgnore {
		return nil, false, rderr.Newf(rderr.InvalidArgument, nil, "invalid overwrite mode %v", o.Overwrite)
	}
	if o.UpsertMode != UpsertUpdate && o.UpsertMode != UpsertReplace {
		return nil, false, rderr.Newf(rderr.InvalidArgument, nil, "invalid upsert mode %d", o.UpsertMode)
	}
	payload, err := driver.NewDocument(a.doc)
	if err != nil {
		return nil, false, err
	}
	var key string
	if a.kind != actionSave {
		if key, err = c.resolve(a.locator); err != nil {
			return nil, false, err
		}
	}
	if key, err = c.payloadKey(payload, key); err != nil {
		return nil, false, err
	}
	if key == "" {
		key = driver.UniqueString()
	}
	mopts := merge.Options{KeepNull: !o.DropNulls, MergeObjects: !o.ReplaceObjects, UpsertMode: merge.Update}
	if o.UpsertMode == UpsertReplace {
		mopts.UpsertMode = merge.Replace
	}
	if a.kind == actionUpsert && a.insert != nil {
		if mopts.Insert, err = driver.NewDocument(a.insert); err != nil {
			return nil, false, err
		}
		if _, err := c.payloadKey(mopts.Insert, key); err != nil {
			return nil, false, err
		}
	}
	expected := expectedRevision(o, payload)

	var (
		res     *WriteResult
		ignored bool
	)
	m := &driver.Mutation{
		Collection:     c.name,
		Key:            key,
		WaitForDurable: o.WaitForDurable,
		Apply: func(cur Document) (driver.Commit, error) {
			curRev, _ := driver.StringField(cur, RevField)
			var mode merge.Mode
			switch a.kind {
			case actionSave:
				mode = merge.Insert
				if cur != nil {
					switch o.Overwrite {
					case OverwriteConflict:
						glog.V(1).Infof("docstore: save of %s/%s: key exists", c.name, key)
						return driver.Commit{}, rderr.Newf(rderr.KeyDuplicate, nil, "document already exists").At(c.name, key)
					case OverwriteIgnore:
						ignored = true
						res = &WriteResult{ID: c.ID(key), Key: key, Rev: curRev, OldRev: curRev}
						return driver.Commit{Op: driver.NoChange}, nil
					case OverwriteReplace:
						mode = merge.Replace
					case OverwriteUpdate:
						mode = merge.Update
					}
				}
			case actionReplace:
				mode = merge.Replace
			case actionUpdate:
				mode = merge.Update
			case actionUpsert:
				mode = merge.Upsert
			}
			if cur == nil && mode != merge.Insert && mode != merge.Upsert {
				return driver.Commit{}, rderr.Newf(rderr.NotFound, nil, "document not found").At(c.name, key)
			}
			if cur != nil {
				if err := c.guard(key, curRev, expected, o.Policy); err != nil {
					return driver.Commit{}, err
				}
			}
			plan, err := merge.Plan(cur, payload, mode, mopts)
			if err != nil {
				return driver.Commit{}, at(err, c.name, key)
			}
			if err := c.checkEdge(plan.Document); err != nil {
				return driver.Commit{}, at(err, c.name, key)
			}
			rev := c.store.revs.Next(curRev)
			for _, d := range []Document{plan.Document, plan.New} {
				d[IDField] = c.ID(key)
				d[KeyField] = key
				d[RevField] = rev
			}
			res = &WriteResult{ID: c.ID(key), Key: key, Rev: rev, OldRev: curRev}
			if o.ReturnOld {
				res.Old = plan.Old
			}
			if o.ReturnNew {
				res.New = plan.New
			}
			return driver.Commit{Op: driver.Put, Doc: plan.Document}, nil
		},
	}
	if err := c.store.backend.ApplyMutation(ctx, m); err != nil {
		return nil, false, at(wrapError(c.store.backend, err), c.name, key)
	}
	return res, ignored, nil
}

// guard checks a conditional write against the stored revision.
func (c *Collection) guard(key, current, expected string, policy Policy) error {
	if revision.Check(current, expected, policy) == revision.Proceed {
		if expected != "" && expected != current {
			glog.V(1).Infof("docstore: %s/%s: stale revision %s overridden by policy %v", c.name, key, expected, policy)
		}
		return nil
	}
	glog.V(1).Infof("docstore: %s/%s: expected revision %s, have %s", c.name, key, expected, current)
	return rderr.Newf(rderr.Conflict, nil, "revision %s is not current", expected).At(c.name, key)
}

// at returns err annotated with a document locator, unless it already has
// one. The error is copied, never modified.
func at(err error, collection, key string) error {
	e, ok := err.(*rderr.Error)
	if !ok || e.Collection != "" || e.Key != "" {
		return err
	}
	cp := *e
	return cp.At(collection, key)
}
