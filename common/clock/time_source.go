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

package clock

import (
	"sync"
	"time"
)

type (
	// TimeSource is the runtime's view of wall-clock time. Production code
	// uses the real source; tests use an EventTimeSource they can advance
	// manually.
	TimeSource interface {
		Now() time.Time
		AfterFunc(d time.Duration, f func()) Timer
	}

	// Timer is a cancellable pending callback.
	Timer interface {
		Stop() bool
	}

	realTimeSource struct{}

	realTimer struct {
		t *time.Timer
	}

	// EventTimeSource is a deterministic TimeSource for tests.
	EventTimeSource struct {
		mu     sync.Mutex
		now    time.Time
		timers []*fakeTimer
	}

	fakeTimer struct {
		src      *EventTimeSource
		deadline time.Time
		f        func()
		done     bool
	}
)

// NewRealTimeSource returns a TimeSource backed by the system clock.
func NewRealTimeSource() TimeSource {
	return realTimeSource{}
}

func (realTimeSource) Now() time.Time {
	return time.Now().UTC()
}

func (realTimeSource) AfterFunc(d time.Duration, f func()) Timer {
	return realTimer{t: time.AfterFunc(d, f)}
}

func (t realTimer) Stop() bool {
	return t.t.Stop()
}

// NewEventTimeSource returns a TimeSource whose clock only moves when
// Advance or Update is called.
func NewEventTimeSource() *EventTimeSource {
	return &EventTimeSource{now: time.Unix(0, 0).UTC()}
}

func (s *EventTimeSource) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

func (s *EventTimeSource) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	t := &fakeTimer{src: s, deadline: s.now.Add(d), f: f}
	s.timers = append(s.timers, t)
	s.mu.Unlock()
	if d <= 0 {
		s.fireDue()
	}
	return t
}

// Update sets the current time and fires any timers that became due.
func (s *EventTimeSource) Update(now time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
	s.fireDue()
}

// Advance moves the clock forward and fires any timers that became due.
func (s *EventTimeSource) Advance(d time.Duration) {
	s.mu.Lock()
	s.now = s.now.Add(d)
	s.mu.Unlock()
	s.fireDue()
}

func (s *EventTimeSource) fireDue() {
	s.mu.Lock()
	var due []*fakeTimer
	remaining := s.timers[:0]
	for _, t := range s.timers {
		if !t.done && !t.deadline.After(s.now) {
			t.done = true
			due = append(due, t)
			continue
		}
		if !t.done {
			remaining = append(remaining, t)
		}
	}
	s.timers = remaining
	s.mu.Unlock()

	for _, t := range due {
		t.f()
	}
}

func (t *fakeTimer) Stop() bool {
	t.src.mu.Lock()
	defer t.src.mu.Unlock()
	stopped := !t.done
	t.done = true
	return stopped
}
