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

// Package openurl provides helpers for URLMux and URLOpeners.
package openurl // import "revdoc.dev/internal/openurl"

import (
	"net/url"
	"sort"
	"strconv"
	"time"

	"revdoc.dev/internal/rderr"
)

// SchemeMap maps URL schemes to openers. The zero value is an empty map, ready for use.
type SchemeMap[T any] struct {
	m map[string]T
}

// Register registers scheme for value; subsequent calls to FromString or
// FromURL with scheme will return value.
// Register panics if scheme has already been registered.
func (m *SchemeMap[T]) Register(scheme string, value T) {
	if m.m == nil {
		m.m = map[string]T{}
	}
	if _, exists := m.m[scheme]; exists {
		panic("openurl: scheme " + strconv.Quote(scheme) + " already registered")
	}
	m.m[scheme] = value
}

// Schemes returns the registered schemes, sorted.
func (m *SchemeMap[T]) Schemes() []string {
	var s []string
	for scheme := range m.m {
		s = append(s, scheme)
	}
	sort.Strings(s)
	return s
}

// ValidScheme reports whether scheme has been registered.
func (m *SchemeMap[T]) ValidScheme(scheme string) bool {
	_, ok := m.m[scheme]
	return ok
}

// FromString parses urlstr as an URL and looks up the value for the URL's scheme.
func (m *SchemeMap[T]) FromString(urlstr string) (T, *url.URL, error) {
	var zero T
	u, err := url.Parse(urlstr)
	if err != nil {
		return zero, nil, rderr.Newf(rderr.InvalidArgument, err, "open store")
	}
	val, err := m.FromURL(u)
	if err != nil {
		return zero, nil, err
	}
	return val, u, nil
}

// FromURL looks up the value for u's scheme.
func (m *SchemeMap[T]) FromURL(u *url.URL) (T, error) {
	var zero T
	if u.Scheme == "" {
		return zero, rderr.Newf(rderr.InvalidArgument, nil, "open store: no scheme in URL %q", u)
	}
	v, ok := m.m[u.Scheme]
	if !ok {
		return zero, rderr.Newf(rderr.InvalidArgument, nil, "open store: no provider registered for %q for URL %q", u.Scheme, u)
	}
	return v, nil
}

// Params reads typed query parameters from a URL and rejects parameters that
// no opener asked for. Call Done after reading every known parameter.
type Params struct {
	q    url.Values
	used map[string]bool
	err  error
}

// NewParams returns Params over u's query string.
func NewParams(u *url.URL) *Params {
	return &Params{q: u.Query(), used: map[string]bool{}}
}

// String returns the named parameter, or def if absent.
func (p *Params) String(name, def string) string {
	p.used[name] = true
	if v := p.q.Get(name); v != "" {
		return v
	}
	return def
}

// Int returns the named parameter as an int, or def if absent.
func (p *Params) Int(name string, def int) int {
	s := p.String(name, "")
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil && p.err == nil {
		p.err = rderr.Newf(rderr.InvalidArgument, err, "invalid value %q for URL parameter %q", s, name)
	}
	return n
}

// Bool returns the named parameter as a bool, or def if absent.
func (p *Params) Bool(name string, def bool) bool {
	s := p.String(name, "")
	if s == "" {
		return def
	}
	b, err := strconv.ParseBool(s)
	if err != nil && p.err == nil {
		p.err = rderr.Newf(rderr.InvalidArgument, err, "invalid value %q for URL parameter %q", s, name)
	}
	return b
}

// Duration returns the named parameter as a time.Duration, or def if absent.
func (p *Params) Duration(name string, def time.Duration) time.Duration {
	s := p.String(name, "")
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil && p.err == nil {
		p.err = rderr.Newf(rderr.InvalidArgument, err, "invalid value %q for URL parameter %q", s, name)
	}
	return d
}

// Done returns the first parse error, or an error naming an unknown parameter.
func (p *Params) Done() error {
	if p.err != nil {
		return p.err
	}
	for name := range p.q {
		if !p.used[name] {
			return rderr.Newf(rderr.InvalidArgument, nil, "unknown URL parameter %q", name)
		}
	}
	return nil
}
