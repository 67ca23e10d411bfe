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

package runtime

import (
	"context"
	"sync"

	"github.com/gabrieltanase42/legion/common/log/tag"
	"github.com/gabrieltanase42/legion/runtime/domain"
	"github.com/gabrieltanase42/legion/runtime/future"
	"github.com/gabrieltanase42/legion/runtime/ledger"
	"github.com/gabrieltanase42/legion/runtime/task"
)

// Context is the submitting side of the runtime API: launches submitted
// through it report their completion, commit, and resource ledgers back
// here, the way child tasks report into an enclosing task. One context's
// launches are dependence-analyzed in submission order.
type Context struct {
	rt *Runtime

	mu        sync.Mutex
	children  int
	complete  int
	committed int
	resources *ledger.Ledger
	signal    chan struct{}
}

var _ task.Parent = (*Context)(nil)

// NewContext opens a fresh submitting context.
func (rt *Runtime) NewContext() *Context {
	return &Context{
		rt:        rt,
		resources: ledger.New(),
		signal:    make(chan struct{}, 1),
	}
}

// ExecuteTask submits a single-point launch and returns its result
// future.
func (c *Context) ExecuteTask(l task.Launch) (*future.Future, error) {
	l.Parent = c
	return c.rt.engine.SubmitSingle(l)
}

// ExecuteIndex submits a launch over every point of dom. Non-reduction
// launches get a future map, reduction launches a single folded future;
// the other return is nil.
func (c *Context) ExecuteIndex(dom domain.Rect, l task.Launch) (*future.Map, *future.Future, error) {
	l.Parent = c
	return c.rt.engine.SubmitIndex(dom, l)
}

// Drain blocks until every launch submitted so far has committed, or ctx
// expires.
func (c *Context) Drain(ctx context.Context) error {
	for {
		c.mu.Lock()
		done := c.committed == c.children
		c.mu.Unlock()
		if done {
			return nil
		}
		select {
		case <-c.signal:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Ledger returns the context's accumulated resource ledger: everything
// its committed launches created or deleted, minus entries scoped to the
// launches themselves.
func (c *Context) Ledger() *ledger.Ledger {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resources
}

// AddChild registers one submitted launch.
func (c *Context) AddChild() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.children++
}

// ChildComplete records one launch's completion.
func (c *Context) ChildComplete() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.complete++
}

// ChildCommitted records one launch's commit and wakes Drain.
func (c *Context) ChildCommitted() {
	c.mu.Lock()
	c.committed++
	c.mu.Unlock()

	select {
	case c.signal <- struct{}{}:
	default:
	}
}

// MergeLedger folds a completed launch's ledger into the context's own.
// Entries the launch flagged non-local are scoped to that launch and are
// stripped before the merge; a duplicate created key surviving the strip
// is a contract violation and the offending ledger is dropped.
func (c *Context) MergeLedger(l *ledger.Ledger) error {
	l.StripNonLocal()

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.resources.Merge(l); err != nil {
		c.rt.logger.Error("context ledger merge rejected", tag.Error(err))
		return err
	}
	return nil
}
