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

package future

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/gabrieltanase42/legion/runtime/domain"
	"github.com/gabrieltanase42/legion/runtime/event"
)

type (
	// Future is a single deferred result slot. The value is set at most
	// once; the ready event fires when it is.
	Future struct {
		id uuid.UUID

		mu    sync.Mutex
		set   bool
		value []byte
		ready *event.Event
	}

	// Map holds one future per point of a launch domain. Individual
	// futures become ready as points complete; the map as a whole is
	// triggered complete only when the launch completes.
	Map struct {
		dom domain.Rect

		mu       sync.Mutex
		futures  map[domain.Point]*Future
		complete *event.Event
	}
)

// New returns an unset future with a fresh durable identifier.
func New() *Future {
	return &Future{
		id:    uuid.New(),
		ready: event.New(),
	}
}

// NewWithID returns an unset future with the given identifier; used when
// resolving futures shipped across nodes.
func NewWithID(id uuid.UUID) *Future {
	return &Future{
		id:    id,
		ready: event.New(),
	}
}

// Completed returns a future already holding value.
func Completed(value []byte) *Future {
	f := New()
	f.Set(value)
	return f
}

// ID returns the future's durable identifier.
func (f *Future) ID() uuid.UUID {
	return f.id
}

// Set stores the value and fires the ready event. Setting twice is a
// runtime bug.
func (f *Future) Set(value []byte) {
	f.mu.Lock()
	if f.set {
		f.mu.Unlock()
		panic(fmt.Sprintf("future %v set twice", f.id))
	}
	f.set = true
	f.value = value
	f.mu.Unlock()
	f.ready.Trigger()
}

// Get returns the value and whether it has been set.
func (f *Future) Get() ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value, f.set
}

// Ready is the event that fires once the value is set.
func (f *Future) Ready() *event.Event {
	return f.ready
}

// NewMap returns a future map over the given launch domain.
func NewMap(dom domain.Rect) *Map {
	return &Map{
		dom:      dom,
		futures:  make(map[domain.Point]*Future),
		complete: event.New(),
	}
}

// Domain returns the launch domain the map covers.
func (m *Map) Domain() domain.Rect {
	return m.dom
}

// Get returns the future for a point, creating it on first use. Points
// outside the domain are a caller bug.
func (m *Map) Get(p domain.Point) *Future {
	if !m.dom.Contains(p) {
		panic(fmt.Sprintf("future map: point %v outside domain %v", p, m.dom))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.futures[p]
	if !ok {
		f = New()
		m.futures[p] = f
	}
	return f
}

// SetPoint deposits one point's result.
func (m *Map) SetPoint(p domain.Point, value []byte) {
	m.Get(p).Set(value)
}

// TriggerComplete marks the whole launch complete.
func (m *Map) TriggerComplete() {
	m.complete.Trigger()
}

// Complete is the event that fires when the whole launch completes.
func (m *Map) Complete() *event.Event {
	return m.complete
}
