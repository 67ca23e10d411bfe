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

	"github.com/google/uuid"
)

type (
	// PrivilegeError reports a structurally invalid region requirement,
	// caught before any resource commitment.
	PrivilegeError struct {
		TaskID           uuid.UUID
		RequirementIndex int
		Cause            error
	}

	// InterferenceError reports two region requirements of the same task
	// that unsafely overlap. Fatal for single-point tasks.
	InterferenceError struct {
		TaskID uuid.UUID
		First  int
		Second int
	}
)

func (e *PrivilegeError) Error() string {
	return fmt.Sprintf("task %v requirement %d: %v", e.TaskID, e.RequirementIndex, e.Cause)
}

func (e *PrivilegeError) Unwrap() error {
	return e.Cause
}

func (e *InterferenceError) Error() string {
	return fmt.Sprintf("task %v: requirements %d and %d interfere", e.TaskID, e.First, e.Second)
}
