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
	"fmt"
	"strconv"
)

// State represents the current lifecycle stage of a task operation.
type State int

const (
	// StatePending is the state for an operation that has been activated but
	// not yet entered the pipeline.
	StatePending State = iota + 1
	// StatePrepipelined is the state after privilege-path validation and
	// option selection have run.
	StatePrepipelined
	// StateAnalyzed is the state after the operation has been registered
	// against prior operations for dependence ordering.
	StateAnalyzed
	// StateReady is the state once all analysis-stage work is done and the
	// operation may be placed.
	StateReady
	// StatePlaced is the state after the local-vs-remote decision.
	StatePlaced
	// StateDecomposed is the state of an index launch whose domain has been
	// split into slices.
	StateDecomposed
	// StateMapped is the state once physical instances are assigned.
	StateMapped
	// StateLaunched is the state once the operation has been dispatched for
	// execution.
	StateLaunched
	// StateComplete is the state once all physical and logical effects have
	// been observed.
	StateComplete
	// StateCommitted is the terminal state: all children have committed and
	// the operation's resources are reclaimable.
	StateCommitted
)

var StateName = map[State]string{
	StatePending:      "pending",
	StatePrepipelined: "prepipelined",
	StateAnalyzed:     "analyzed",
	StateReady:        "ready",
	StatePlaced:       "placed",
	StateDecomposed:   "decomposed",
	StateMapped:       "mapped",
	StateLaunched:     "launched",
	StateComplete:     "complete",
	StateCommitted:    "committed",
}

// Transit advances the state machine. Stage transitions are strictly
// ordered; the only skips allowed are the predicate-false short-circuit
// from Ready or Placed straight to Complete, and the single-point path
// which has no Decomposed stage.
func (s *State) Transit(nextState State) {
	switch *s {
	case StatePending:
		switch nextState {
		case StatePrepipelined:
			*s = nextState
			return
		}
	case StatePrepipelined:
		switch nextState {
		case StateAnalyzed:
			*s = nextState
			return
		}
	case StateAnalyzed:
		switch nextState {
		case StateReady:
			*s = nextState
			return
		}
	case StateReady:
		switch nextState {
		case StatePlaced, StateComplete:
			*s = nextState
			return
		}
	case StatePlaced:
		switch nextState {
		case StateDecomposed, StateMapped, StateComplete:
			*s = nextState
			return
		}
	case StateDecomposed:
		switch nextState {
		case StateMapped:
			*s = nextState
			return
		}
	case StateMapped:
		switch nextState {
		case StateLaunched:
			*s = nextState
			return
		}
	case StateLaunched:
		switch nextState {
		case StateComplete:
			*s = nextState
			return
		}
	case StateComplete:
		switch nextState {
		case StateCommitted:
			*s = nextState
			return
		}
	case StateCommitted:
		// no-op
	default:
		panic(fmt.Sprintf("unknown task state: %v", s))
	}

	panic(fmt.Sprintf("can not transit task state from %v to %v", *s, nextState))
}

func (s State) String() string {
	str, ok := StateName[s]
	if ok {
		return str
	}
	return strconv.Itoa(int(s))
}
