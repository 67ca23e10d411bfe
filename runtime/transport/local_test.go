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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/gabrieltanase42/legion/runtime/wire"
)

type transportSuite struct {
	suite.Suite
	*require.Assertions

	bus *Bus
}

func TestTransportSuite(t *testing.T) {
	s := new(transportSuite)
	suite.Run(t, s)
}

func (s *transportSuite) SetupTest() {
	s.Assertions = require.New(s.T())
	s.bus = NewBus()
}

func (s *transportSuite) TearDownTest() {
	s.bus.Close()
}

func (s *transportSuite) TestDeliveryAndSource() {
	received := make(chan wire.Envelope, 1)
	s.bus.Attach(1, HandlerFunc(func(env wire.Envelope) { received <- env }))
	ep0 := s.bus.Attach(0, HandlerFunc(func(wire.Envelope) {}))

	s.NoError(ep0.Send(1, wire.Envelope{
		Type:    wire.MessageStealRequest,
		Source:  ep0.LocalNode(),
		Payload: []byte("hi"),
	}))

	select {
	case env := <-received:
		s.Equal(wire.MessageStealRequest, env.Type)
		s.Equal(wire.NodeID(0), env.Source)
		s.Equal([]byte("hi"), env.Payload)
	case <-time.After(5 * time.Second):
		s.FailNow("message never delivered")
	}
}

func (s *transportSuite) TestPerPairOrdering() {
	const n = 100
	var mu sync.Mutex
	got := make([]string, 0, n)
	done := make(chan struct{})

	s.bus.Attach(1, HandlerFunc(func(env wire.Envelope) {
		mu.Lock()
		got = append(got, string(env.Payload))
		if len(got) == n {
			close(done)
		}
		mu.Unlock()
	}))
	ep0 := s.bus.Attach(0, HandlerFunc(func(wire.Envelope) {}))

	for i := 0; i < n; i++ {
		s.NoError(ep0.Send(1, wire.Envelope{
			Type:    wire.MessageSliceMapped,
			Source:  0,
			Payload: []byte(fmt.Sprintf("%03d", i)),
		}))
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		s.FailNow("messages never all delivered")
	}
	for i := 0; i < n; i++ {
		s.Equal(fmt.Sprintf("%03d", i), got[i])
	}
}

func (s *transportSuite) TestUnknownNode() {
	ep0 := s.bus.Attach(0, HandlerFunc(func(wire.Envelope) {}))
	err := ep0.Send(42, wire.Envelope{Type: wire.MessageTaskSend, Source: 0})
	s.Error(err)
	s.IsType(&ErrUnknownNode{}, err)
}

func (s *transportSuite) TestSendToSelfPanics() {
	ep0 := s.bus.Attach(0, HandlerFunc(func(wire.Envelope) {}))
	s.Panics(func() {
		_ = ep0.Send(0, wire.Envelope{Type: wire.MessageTaskSend, Source: 0})
	})
}

func (s *transportSuite) TestDoubleAttachPanics() {
	s.bus.Attach(0, HandlerFunc(func(wire.Envelope) {}))
	s.Panics(func() {
		s.bus.Attach(0, HandlerFunc(func(wire.Envelope) {}))
	})
}
