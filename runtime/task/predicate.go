// The MIT License
//
// Copyright (c) 2020 Temporal Technologies Inc.  All rights reserved.
//
// Copyright (c) 2020 Uber Technologies, Inc.
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package task

import (
	"sync"

	"github.com/gabrieltanase42/legion/runtime/event"
)

// Predicate is the speculative-execution guard on a task operation. It
// starts unresolved and resolves exactly once to true or false. A task
// guarded by a predicate that resolves false before mapping bypasses
// mapping and execution and completes with its precomputed default result.
type Predicate struct {
	mu       sync.Mutex
	resolved bool
	value    bool
	ev       *event.Event
}

// NewPredicate returns an unresolved predicate.
func NewPredicate() *Predicate {
	return &Predicate{ev: event.New()}
}

// TruePredicate returns a predicate already resolved to true. Tasks
// launched without an explicit guard use it.
func TruePredicate() *Predicate {
	p := &Predicate{resolved: true, value: true, ev: event.Triggered()}
	return p
}

// Resolve sets the predicate's value. Resolving twice panics.
func (p *Predicate) Resolve(value bool) {
	p.mu.Lock()
	if p.resolved {
		p.mu.Unlock()
		panic("task: predicate resolved twice")
	}
	p.resolved = true
	p.value = value
	p.mu.Unlock()
	p.ev.Trigger()
}

// Value reports the resolved value, or false for the second return if the
// predicate is still unresolved.
func (p *Predicate) Value() (value bool, resolved bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value, p.resolved
}

// ResolvedEvent fires when the predicate resolves.
func (p *Predicate) ResolvedEvent() *event.Event {
	return p.ev
}
