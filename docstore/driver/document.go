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

package driver

import (
	"bytes"
	"math"
	"reflect"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"revdoc.dev/internal/rderr"
)

// A Document is a set of field-value pairs. Values are normalized: integers
// are int64 (or uint64 when they do not fit), floats are float64, nested
// documents are Documents and sequences are []any. Strings, bools, []byte
// and nil are kept as they are.
type Document = map[string]any

// NewDocument converts v into a normalized Document that shares no memory
// with v. v may be a map with string keys, a struct, or a pointer to a
// struct; structs are converted through their msgpack encoding, honoring
// json field tags. Any other value fails with code TypeInvalid.
func NewDocument(v any) (Document, error) {
	if v == nil {
		return nil, rderr.Newf(rderr.TypeInvalid, nil, "document cannot be nil")
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil, rderr.Newf(rderr.TypeInvalid, nil, "document pointer cannot be nil")
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map:
		if rv.IsNil() {
			return nil, rderr.Newf(rderr.TypeInvalid, nil, "document map cannot be nil")
		}
		x, err := normalize(rv)
		if err != nil {
			return nil, err
		}
		return x.(Document), nil
	case reflect.Struct:
		if _, ok := rv.Interface().(time.Time); !ok {
			return structToDocument(rv.Interface())
		}
	}
	return nil, rderr.Newf(rderr.TypeInvalid, nil, "expecting a map or struct, got %T", v)
}

// Normalize returns a normalized deep copy of a document field value.
func Normalize(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	return normalize(reflect.ValueOf(v))
}

func normalize(v reflect.Value) (any, error) {
	switch v.Kind() {
	case reflect.Invalid:
		return nil, nil
	case reflect.Bool:
		return v.Bool(), nil
	case reflect.String:
		return v.String(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := v.Uint()
		if u <= math.MaxInt64 {
			return int64(u), nil
		}
		return u, nil
	case reflect.Float32, reflect.Float64:
		return v.Float(), nil
	case reflect.Ptr, reflect.Interface:
		if v.IsNil() {
			return nil, nil
		}
		return normalize(v.Elem())
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return nil, rderr.Newf(rderr.TypeInvalid, nil, "map key type %s is not a string", v.Type().Key())
		}
		if v.IsNil() {
			return nil, nil
		}
		m := make(Document, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			x, err := normalize(iter.Value())
			if err != nil {
				return nil, err
			}
			m[iter.Key().String()] = x
		}
		return m, nil
	case reflect.Slice:
		if v.IsNil() {
			return nil, nil
		}
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return bytes.Clone(v.Bytes()), nil
		}
		fallthrough
	case reflect.Array:
		s := make([]any, v.Len())
		for i := range s {
			x, err := normalize(v.Index(i))
			if err != nil {
				return nil, err
			}
			s[i] = x
		}
		return s, nil
	case reflect.Struct:
		if t, ok := v.Interface().(time.Time); ok {
			return t.UTC().Format(time.RFC3339Nano), nil
		}
		return structToDocument(v.Interface())
	default:
		return nil, rderr.Newf(rderr.TypeInvalid, nil, "unsupported value type %s", v.Type())
	}
}

func structToDocument(v any) (Document, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(v); err != nil {
		return nil, rderr.Newf(rderr.TypeInvalid, err, "encoding %T", v)
	}
	dec := msgpack.NewDecoder(&buf)
	dec.SetCustomStructTag("json")
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, rderr.Newf(rderr.TypeInvalid, err, "decoding %T", v)
	}
	if m == nil {
		return nil, rderr.Newf(rderr.TypeInvalid, nil, "%T does not encode as a document", v)
	}
	x, err := normalize(reflect.ValueOf(m))
	if err != nil {
		return nil, err
	}
	return x.(Document), nil
}

// Copy returns a deep copy of a normalized document. Copy(nil) is nil.
func Copy(d Document) Document {
	if d == nil {
		return nil
	}
	return CopyValue(d).(Document)
}

// CopyValue returns a deep copy of a normalized field value.
func CopyValue(v any) any {
	switch v := v.(type) {
	case Document:
		m := make(Document, len(v))
		for k, x := range v {
			m[k] = CopyValue(x)
		}
		return m
	case []any:
		s := make([]any, len(v))
		for i, x := range v {
			s[i] = CopyValue(x)
		}
		return s
	case []byte:
		return bytes.Clone(v)
	default:
		return v
	}
}

// StringField returns the named field if it holds a string.
func StringField(d Document, name string) (string, bool) {
	s, ok := d[name].(string)
	return s, ok
}
