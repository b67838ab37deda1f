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
	"reflect"
	"regexp"
	"strconv"

	"revdoc.dev/docstore/driver"
	"revdoc.dev/internal/rderr"
)

// StatementOptions configure a Statement.
type StatementOptions struct {
	// BindVars are bound as if by Bind, in no particular order.
	BindVars map[string]any
	// Count asks for the total number of results, available from
	// Cursor.Count.
	Count bool
	// BatchSize is the maximum number of documents per server round trip.
	// Zero means the Store's default.
	BatchSize int
}

// A Statement is a query with bind variables and execution options. Each
// call to Execute runs the query again.
//
// A Statement is not safe for concurrent use.
type Statement struct {
	store     *Store
	query     string
	bindVars  map[string]any
	count     bool
	batchSize int
}

// NewStatement returns a Statement for query, which must not be empty.
func (s *Store) NewStatement(query string, opts *StatementOptions) (*Statement, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}
	if query == "" {
		return nil, rderr.Newf(rderr.InvalidArgument, nil, "empty query")
	}
	if opts == nil {
		opts = &StatementOptions{}
	}
	if opts.BatchSize < 0 {
		return nil, rderr.Newf(rderr.InvalidArgument, nil, "negative batch size %d", opts.BatchSize)
	}
	st := &Statement{
		store:     s,
		query:     query,
		bindVars:  map[string]any{},
		count:     opts.Count,
		batchSize: opts.BatchSize,
	}
	for k, v := range opts.BindVars {
		if err := st.Bind(k, v); err != nil {
			return nil, err
		}
	}
	return st, nil
}

var bindNameRE = regexp.MustCompile(`^@?[A-Za-z0-9_]+$`)

// Bind binds a value to a bind variable. key is the variable's name, a
// string of letters, digits and underscores optionally prefixed by '@', or
// an integer for a positional variable. Binding a key twice fails with code
// BindRedeclared; a bad key or a value that is not document-shaped fails
// with code BindInvalid.
func (st *Statement) Bind(key, value any) error {
	name, err := bindName(key)
	if err != nil {
		return err
	}
	if _, ok := st.bindVars[name]; ok {
		return rderr.Newf(rderr.BindRedeclared, nil, "bind variable %q is already bound", name)
	}
	v, err := driver.Normalize(value)
	if err != nil {
		return rderr.Newf(rderr.BindInvalid, err, "value of bind variable %q", name)
	}
	st.bindVars[name] = v
	return nil
}

func bindName(key any) (string, error) {
	rv := reflect.ValueOf(key)
	switch rv.Kind() {
	case reflect.String:
		if !bindNameRE.MatchString(rv.String()) {
			return "", rderr.Newf(rderr.BindInvalid, nil, "invalid bind variable name %q", rv.String())
		}
		return rv.String(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10), nil
	}
	return "", rderr.Newf(rderr.BindInvalid, nil, "bind variable key must be a string or an integer, got %T", key)
}

// BindVars returns a copy of the bound variables.
func (st *Statement) BindVars() map[string]any {
	m := make(map[string]any, len(st.bindVars))
	for k, v := range st.bindVars {
		m[k] = driver.CopyValue(v)
	}
	return m
}

// Query returns the statement's query text.
func (st *Statement) Query() string { return st.query }

// Execute runs the query and returns a Cursor over its results. The caller
// must Dispose the cursor, or drain it.
func (st *Statement) Execute(ctx context.Context) (_ *Cursor, err error) {
	s := st.store
	if err := s.checkClosed(); err != nil {
		return nil, err
	}
	if s.executor == nil {
		return nil, rderr.Newf(rderr.FailedPrecondition, nil, "docstore: Store has no query executor")
	}
	ctx, span := s.tracer.Start(ctx, "Statement.Execute")
	defer func() { s.tracer.End(ctx, span, err) }()

	batchSize := st.batchSize
	if batchSize == 0 {
		batchSize = s.batchSize
	}
	q := &driver.Query{
		Text:      st.query,
		BindVars:  st.BindVars(),
		Count:     st.count,
		BatchSize: batchSize,
	}
	b, err := s.executor.ExecuteQuery(ctx, q)
	if err != nil {
		return nil, wrapError(s.executor, err)
	}
	return newCursor(ctx, s, b), nil
}
