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

package ledger

import (
	"github.com/gabrieltanase42/legion/runtime/region"
	"github.com/gabrieltanase42/legion/runtime/wire"
)

// EncodeTo writes the ledger in fixed field order: created then deleted,
// regions, fields, field spaces, index spaces, partitions.
func (l *Ledger) EncodeTo(e *wire.Encoder) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e.WriteUint32(uint32(len(l.createdRegions)))
	for r, local := range l.createdRegions {
		encodeRegion(e, r)
		e.WriteBool(local)
	}
	e.WriteUint32(uint32(len(l.deletedRegions)))
	for r := range l.deletedRegions {
		encodeRegion(e, r)
	}

	e.WriteUint32(uint32(len(l.createdFields)))
	for k, local := range l.createdFields {
		e.WriteUint64(uint64(k.FieldSpace))
		e.WriteUint32(uint32(k.Field))
		e.WriteBool(local)
	}
	e.WriteUint32(uint32(len(l.deletedFields)))
	for k := range l.deletedFields {
		e.WriteUint64(uint64(k.FieldSpace))
		e.WriteUint32(uint32(k.Field))
	}

	e.WriteUint32(uint32(len(l.createdFieldSpaces)))
	for fs, local := range l.createdFieldSpaces {
		e.WriteUint64(uint64(fs))
		e.WriteBool(local)
	}
	e.WriteUint32(uint32(len(l.deletedFieldSpaces)))
	for fs := range l.deletedFieldSpaces {
		e.WriteUint64(uint64(fs))
	}

	e.WriteUint32(uint32(len(l.createdIndexSpaces)))
	for is, local := range l.createdIndexSpaces {
		e.WriteUint64(uint64(is))
		e.WriteBool(local)
	}
	e.WriteUint32(uint32(len(l.deletedIndexSpaces)))
	for is := range l.deletedIndexSpaces {
		e.WriteUint64(uint64(is))
	}

	e.WriteUint32(uint32(len(l.createdPartitions)))
	for ip, local := range l.createdPartitions {
		e.WriteUint64(uint64(ip))
		e.WriteBool(local)
	}
	e.WriteUint32(uint32(len(l.deletedPartitions)))
	for ip := range l.deletedPartitions {
		e.WriteUint64(uint64(ip))
	}
}

// DecodeFrom reads a ledger written by EncodeTo into an empty ledger.
func (l *Ledger) DecodeFrom(d *wire.Decoder) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	n, err := d.ReadUint32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		r, err := decodeRegion(d)
		if err != nil {
			return err
		}
		local, err := d.ReadBool()
		if err != nil {
			return err
		}
		l.createdRegions[r] = local
	}
	if n, err = d.ReadUint32(); err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		r, err := decodeRegion(d)
		if err != nil {
			return err
		}
		l.deletedRegions[r] = struct{}{}
	}

	if n, err = d.ReadUint32(); err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		k, err := decodeFieldKey(d)
		if err != nil {
			return err
		}
		local, err := d.ReadBool()
		if err != nil {
			return err
		}
		l.createdFields[k] = local
	}
	if n, err = d.ReadUint32(); err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		k, err := decodeFieldKey(d)
		if err != nil {
			return err
		}
		l.deletedFields[k] = struct{}{}
	}

	if n, err = d.ReadUint32(); err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		fs, local, err := decodeIDLocal(d)
		if err != nil {
			return err
		}
		l.createdFieldSpaces[region.FieldSpaceID(fs)] = local
	}
	if n, err = d.ReadUint32(); err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		fs, err := d.ReadUint64()
		if err != nil {
			return err
		}
		l.deletedFieldSpaces[region.FieldSpaceID(fs)] = struct{}{}
	}

	if n, err = d.ReadUint32(); err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		is, local, err := decodeIDLocal(d)
		if err != nil {
			return err
		}
		l.createdIndexSpaces[region.IndexSpaceID(is)] = local
	}
	if n, err = d.ReadUint32(); err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		is, err := d.ReadUint64()
		if err != nil {
			return err
		}
		l.deletedIndexSpaces[region.IndexSpaceID(is)] = struct{}{}
	}

	if n, err = d.ReadUint32(); err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		ip, local, err := decodeIDLocal(d)
		if err != nil {
			return err
		}
		l.createdPartitions[region.IndexPartitionID(ip)] = local
	}
	if n, err = d.ReadUint32(); err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		ip, err := d.ReadUint64()
		if err != nil {
			return err
		}
		l.deletedPartitions[region.IndexPartitionID(ip)] = struct{}{}
	}
	return nil
}

func encodeRegion(e *wire.Encoder, r region.LogicalRegion) {
	e.WriteUint64(uint64(r.Tree))
	e.WriteUint64(uint64(r.IndexSpace))
	e.WriteUint64(uint64(r.FieldSpace))
}

func decodeRegion(d *wire.Decoder) (region.LogicalRegion, error) {
	tree, err := d.ReadUint64()
	if err != nil {
		return region.LogicalRegion{}, err
	}
	is, err := d.ReadUint64()
	if err != nil {
		return region.LogicalRegion{}, err
	}
	fs, err := d.ReadUint64()
	if err != nil {
		return region.LogicalRegion{}, err
	}
	return region.LogicalRegion{
		Tree:       region.TreeID(tree),
		IndexSpace: region.IndexSpaceID(is),
		FieldSpace: region.FieldSpaceID(fs),
	}, nil
}

func decodeFieldKey(d *wire.Decoder) (FieldKey, error) {
	fs, err := d.ReadUint64()
	if err != nil {
		return FieldKey{}, err
	}
	f, err := d.ReadUint32()
	if err != nil {
		return FieldKey{}, err
	}
	return FieldKey{FieldSpace: region.FieldSpaceID(fs), Field: region.FieldID(f)}, nil
}

func decodeIDLocal(d *wire.Decoder) (uint64, bool, error) {
	id, err := d.ReadUint64()
	if err != nil {
		return 0, false, err
	}
	local, err := d.ReadBool()
	if err != nil {
		return 0, false, err
	}
	return id, local, nil
}
