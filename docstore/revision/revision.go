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

// Package revision evaluates compare-and-swap preconditions against document
// revisions and generates new revision tags.
//
// A revision is an opaque string. The only meaningful operation on two
// revisions of the same document is equality; the generator additionally
// guarantees that every new revision sorts after the one it replaces, so a
// revision is never reused for a document.
package revision // import "revdoc.dev/docstore/revision"

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Policy says what to do when an expected revision does not match.
type Policy int

const (
	// CheckRevision rejects mismatched conditional operations.
	CheckRevision Policy = iota
	// LastWriteWins lets mismatched conditional operations proceed.
	LastWriteWins
)

func (p Policy) String() string {
	switch p {
	case CheckRevision:
		return "CheckRevision"
	case LastWriteWins:
		return "LastWriteWins"
	}
	return "Policy(?)"
}

// Outcome is the result of Check.
type Outcome int

const (
	Proceed Outcome = iota
	Conflict
)

func (o Outcome) String() string {
	if o == Proceed {
		return "Proceed"
	}
	return "Conflict"
}

// Check evaluates a conditional operation against the current revision of a
// document. An empty expected revision means the caller made no condition.
//
// With LastWriteWins a mismatch still proceeds: the condition is bypassed,
// not re-evaluated against the latest state.
func Check(current, expected string, policy Policy) Outcome {
	switch {
	case expected == "":
		return Proceed
	case expected == current:
		return Proceed
	case policy == LastWriteWins:
		return Proceed
	default:
		return Conflict
	}
}

// A Generator issues revision tags. It is safe for concurrent use.
type Generator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
	last    ulid.ULID
	now     func() time.Time
}

// NewGenerator returns a Generator seeded from crypto/rand.
func NewGenerator() *Generator {
	return &Generator{
		entropy: ulid.Monotonic(rand.Reader, 0),
		now:     time.Now,
	}
}

// Next returns a new revision that sorts after prev (the revision being
// replaced, or "" for a new document) and after every revision this
// Generator returned before.
func (g *Generator) Next(prev string) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	id, err := ulid.New(ulid.Timestamp(g.now()), g.entropy)
	if err != nil || id.Compare(g.last) <= 0 {
		// Monotonic entropy overflowed within a millisecond, or the clock
		// went backwards.
		id = successor(g.last)
	}
	if prev != "" {
		if p, err := ulid.ParseStrict(prev); err == nil && id.Compare(p) <= 0 {
			id = successor(p)
		}
	}
	g.last = id
	return id.String()
}

// successor returns the ULID that follows id in sort order.
func successor(id ulid.ULID) ulid.ULID {
	for i := len(id) - 1; i >= 0; i-- {
		id[i]++
		if id[i] != 0 {
			break
		}
	}
	return id
}
