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

package wire

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/gabrieltanase42/legion/runtime/domain"
)

// NodeID identifies an address space.
type NodeID uint32

// MessageType discriminates cross-node messages.
type MessageType uint8

const (
	// MessageTaskSend migrates a single-point task to another node.
	MessageTaskSend MessageType = iota + 1
	// MessageSliceSend migrates a slice to another node.
	MessageSliceSend
	// MessageSliceMapped reports a leaf slice's mapping progress upward.
	MessageSliceMapped
	// MessageSliceComplete reports a leaf slice's completion, carrying the
	// merged resource ledger and per-point future payloads.
	MessageSliceComplete
	// MessageSliceCommit reports a leaf slice's commit upward.
	MessageSliceCommit
	// MessagePointComplete reports a migrated single-point task's
	// completion back to its origin.
	MessagePointComplete
	// MessagePointCommit reports a migrated single-point task's commit.
	MessagePointCommit
	// MessageStealRequest asks a node for stealable work.
	MessageStealRequest
	// MessageStealResponse carries zero or more stolen slices.
	MessageStealResponse
)

var messageTypeNames = map[MessageType]string{
	MessageTaskSend:      "task-send",
	MessageSliceSend:     "slice-send",
	MessageSliceMapped:   "slice-mapped",
	MessageSliceComplete: "slice-complete",
	MessageSliceCommit:   "slice-commit",
	MessagePointComplete: "point-complete",
	MessagePointCommit:   "point-commit",
	MessageStealRequest:  "steal-request",
	MessageStealResponse: "steal-response",
}

func (t MessageType) String() string {
	if name, ok := messageTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("message-type(%d)", t)
}

// Envelope is the unit the transport moves between nodes.
type Envelope struct {
	Type    MessageType
	Source  NodeID
	Payload []byte
}

// EncodeEnvelope flattens an envelope for the transport.
func EncodeEnvelope(env Envelope) []byte {
	e := NewEncoder()
	e.WriteUint8(uint8(env.Type))
	e.WriteUint32(uint32(env.Source))
	e.WriteBytes(env.Payload)
	return e.Bytes()
}

// DecodeEnvelope parses a transport frame.
func DecodeEnvelope(buf []byte) (Envelope, error) {
	d := NewDecoder(buf)
	t, err := d.ReadUint8()
	if err != nil {
		return Envelope{}, err
	}
	src, err := d.ReadUint32()
	if err != nil {
		return Envelope{}, err
	}
	payload, err := d.ReadBytes()
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: MessageType(t), Source: NodeID(src), Payload: payload}, nil
}

// WriteUUID appends a task identity.
func (e *Encoder) WriteUUID(id uuid.UUID) {
	e.buf = append(e.buf, id[:]...)
}

// ReadUUID reads a task identity.
func (d *Decoder) ReadUUID() (uuid.UUID, error) {
	b, err := d.take(16)
	if err != nil {
		return uuid.Nil, err
	}
	var id uuid.UUID
	copy(id[:], b)
	return id, nil
}

// WritePoint appends a domain point.
func (e *Encoder) WritePoint(p domain.Point) {
	e.WriteUint8(uint8(p.Dim))
	for i := 0; i < p.Dim; i++ {
		e.WriteInt64(p.Coords[i])
	}
}

// ReadPoint reads a domain point. Dimension zero is the zero point, the
// placeholder a single launch without an explicit point carries.
func (d *Decoder) ReadPoint() (domain.Point, error) {
	dim, err := d.ReadUint8()
	if err != nil {
		return domain.Point{}, err
	}
	if int(dim) > domain.MaxDim {
		return domain.Point{}, fmt.Errorf("wire: point dimension %d out of range", dim)
	}
	p := domain.Point{Dim: int(dim)}
	for i := 0; i < int(dim); i++ {
		if p.Coords[i], err = d.ReadInt64(); err != nil {
			return domain.Point{}, err
		}
	}
	return p, nil
}

// WriteRect appends a domain rectangle.
func (e *Encoder) WriteRect(r domain.Rect) {
	e.WritePoint(r.Lo)
	e.WritePoint(r.Hi)
}

// ReadRect reads a domain rectangle.
func (d *Decoder) ReadRect() (domain.Rect, error) {
	lo, err := d.ReadPoint()
	if err != nil {
		return domain.Rect{}, err
	}
	hi, err := d.ReadPoint()
	if err != nil {
		return domain.Rect{}, err
	}
	if lo.Dim != hi.Dim {
		return domain.Rect{}, fmt.Errorf("wire: rect bounds have mismatched dimensions %d and %d", lo.Dim, hi.Dim)
	}
	return domain.NewRect(lo, hi), nil
}
