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

package transport

import (
	"fmt"

	"github.com/gabrieltanase42/legion/runtime/wire"
)

type (
	// Handler consumes messages delivered to a node. Handlers run on the
	// transport's delivery goroutine and must hand long work to a
	// scheduler.
	Handler interface {
		HandleMessage(env wire.Envelope)
	}

	// HandlerFunc adapts a closure to a Handler.
	HandlerFunc func(env wire.Envelope)

	// Transport moves envelopes between address spaces. Delivery between
	// one (sender, receiver) pair is ordered; nothing is ordered across
	// pairs. Payloads are opaque bytes.
	Transport interface {
		// LocalNode is the address space this endpoint belongs to.
		LocalNode() wire.NodeID

		// Send delivers an envelope to the target node. Sending to the
		// local node is a runtime bug; local work does not go through
		// the wire.
		Send(target wire.NodeID, env wire.Envelope) error
	}
)

func (f HandlerFunc) HandleMessage(env wire.Envelope) { f(env) }

// ErrUnknownNode reports a send to a node the transport has never seen.
type ErrUnknownNode struct {
	Node wire.NodeID
}

func (e *ErrUnknownNode) Error() string {
	return fmt.Sprintf("transport: unknown node %d", e.Node)
}
