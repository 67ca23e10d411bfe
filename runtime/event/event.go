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

package event

import (
	"sync"
)

type (
	// Event is a one-shot completion event. Continuations registered with
	// OnTrigger run exactly once, on the triggering goroutine, or
	// immediately on the registering goroutine if the event has already
	// fired. Long or blocking continuations belong on a scheduler, not
	// here.
	Event struct {
		mu        sync.Mutex
		fired     bool
		waiters   []func()
		triggerCh chan struct{}
	}
)

// New returns an untriggered event.
func New() *Event {
	return &Event{triggerCh: make(chan struct{})}
}

// Triggered returns an event that has already fired.
func Triggered() *Event {
	e := New()
	e.Trigger()
	return e
}

// Trigger fires the event. Triggering twice is a runtime bug.
func (e *Event) Trigger() {
	e.mu.Lock()
	if e.fired {
		e.mu.Unlock()
		panic("event: triggered twice")
	}
	e.fired = true
	waiters := e.waiters
	e.waiters = nil
	close(e.triggerCh)
	e.mu.Unlock()

	for _, fn := range waiters {
		fn()
	}
}

// HasTriggered reports whether the event has fired.
func (e *Event) HasTriggered() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fired
}

// OnTrigger registers a continuation.
func (e *Event) OnTrigger(fn func()) {
	e.mu.Lock()
	if e.fired {
		e.mu.Unlock()
		fn()
		return
	}
	e.waiters = append(e.waiters, fn)
	e.mu.Unlock()
}

// Done exposes the event as a channel for the few deliberately synchronous
// wait points.
func (e *Event) Done() <-chan struct{} {
	return e.triggerCh
}

// Merge returns an event that fires once every input has fired. Nil inputs
// are ignored; with no live inputs the result is already fired.
func Merge(events ...*Event) *Event {
	live := make([]*Event, 0, len(events))
	for _, e := range events {
		if e != nil {
			live = append(live, e)
		}
	}
	if len(live) == 0 {
		return Triggered()
	}
	if len(live) == 1 {
		return live[0]
	}

	merged := New()
	var remaining = int64(len(live))
	var mu sync.Mutex
	for _, e := range live {
		e.OnTrigger(func() {
			mu.Lock()
			remaining--
			last := remaining == 0
			mu.Unlock()
			if last {
				merged.Trigger()
			}
		})
	}
	return merged
}
