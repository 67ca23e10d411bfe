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
	"sync"

	"github.com/gabrieltanase42/legion/runtime/wire"
)

type (
	// Bus connects multiple address spaces inside one process. Each
	// attached node gets a delivery goroutine draining an unbounded
	// inbox, preserving per-pair ordering. The bus stands in for the
	// real network; the contract it honors is the Transport one.
	Bus struct {
		mu    sync.Mutex
		nodes map[wire.NodeID]*inbox
	}

	inbox struct {
		handler Handler

		mu     sync.Mutex
		queue  []wire.Envelope
		signal chan struct{}
		closed bool
	}

	endpoint struct {
		bus  *Bus
		node wire.NodeID
	}
)

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{nodes: make(map[wire.NodeID]*inbox)}
}

// Attach registers a node and its handler, returning the node's endpoint.
// Attaching the same node twice panics.
func (b *Bus) Attach(node wire.NodeID, handler Handler) Transport {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.nodes[node]; ok {
		panic("transport: node attached twice")
	}
	in := &inbox{
		handler: handler,
		signal:  make(chan struct{}, 1),
	}
	b.nodes[node] = in
	go in.deliver()
	return &endpoint{bus: b, node: node}
}

// Close stops delivery for every node. Buffered messages are dropped.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, in := range b.nodes {
		in.close()
	}
}

func (ep *endpoint) LocalNode() wire.NodeID {
	return ep.node
}

func (ep *endpoint) Send(target wire.NodeID, env wire.Envelope) error {
	if target == ep.node {
		panic("transport: send to local node")
	}

	ep.bus.mu.Lock()
	in, ok := ep.bus.nodes[target]
	ep.bus.mu.Unlock()
	if !ok {
		return &ErrUnknownNode{Node: target}
	}

	// frames round-trip through the wire form so the in-process bus
	// exercises the same encoding as a real network would
	frame := wire.EncodeEnvelope(env)
	decoded, err := wire.DecodeEnvelope(frame)
	if err != nil {
		return err
	}
	in.push(decoded)
	return nil
}

func (in *inbox) push(env wire.Envelope) {
	in.mu.Lock()
	if in.closed {
		in.mu.Unlock()
		return
	}
	in.queue = append(in.queue, env)
	in.mu.Unlock()

	select {
	case in.signal <- struct{}{}:
	default:
	}
}

func (in *inbox) pop() (wire.Envelope, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if len(in.queue) == 0 {
		return wire.Envelope{}, false
	}
	env := in.queue[0]
	in.queue = in.queue[1:]
	return env, true
}

func (in *inbox) close() {
	in.mu.Lock()
	if in.closed {
		in.mu.Unlock()
		return
	}
	in.closed = true
	in.queue = nil
	in.mu.Unlock()

	select {
	case in.signal <- struct{}{}:
	default:
	}
}

func (in *inbox) deliver() {
	for {
		env, ok := in.pop()
		if ok {
			in.handler.HandleMessage(env)
			continue
		}

		in.mu.Lock()
		closed := in.closed
		in.mu.Unlock()
		if closed {
			return
		}
		<-in.signal
	}
}
