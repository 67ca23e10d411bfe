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
	"github.com/google/uuid"

	"github.com/gabrieltanase42/legion/runtime/domain"
	"github.com/gabrieltanase42/legion/runtime/event"
	"github.com/gabrieltanase42/legion/runtime/future"
	"github.com/gabrieltanase42/legion/runtime/ledger"
	"github.com/gabrieltanase42/legion/runtime/region"
	"github.com/gabrieltanase42/legion/runtime/wire"
)

// Cross-node payloads use a fixed field order; both sides agree by
// construction and there is no schema negotiation.

func encodeRequirement(e *wire.Encoder, r *region.Requirement) {
	e.WriteUint8(uint8(r.HandleType))
	e.WriteUint64(uint64(r.Region.Tree))
	e.WriteUint64(uint64(r.Region.IndexSpace))
	e.WriteUint64(uint64(r.Region.FieldSpace))
	e.WriteUint64(uint64(r.Partition.Tree))
	e.WriteUint64(uint64(r.Partition.Partition))
	e.WriteUint64(uint64(r.Partition.FieldSpace))
	e.WriteUint32(uint32(r.Projection))
	e.WriteUint8(uint8(r.Privilege))
	e.WriteUint8(uint8(r.Coherence))
	e.WriteUint32(uint32(r.Redop))
	e.WriteUint64(uint64(r.Parent.Tree))
	e.WriteUint64(uint64(r.Parent.IndexSpace))
	e.WriteUint64(uint64(r.Parent.FieldSpace))
	e.WriteUint32(uint32(len(r.Fields)))
	for _, f := range r.Fields {
		e.WriteUint32(uint32(f))
	}
}

func decodeRequirement(d *wire.Decoder) (region.Requirement, error) {
	var r region.Requirement
	ht, err := d.ReadUint8()
	if err != nil {
		return r, err
	}
	r.HandleType = region.HandleType(ht)
	if r.Region, err = decodeLogicalRegion(d); err != nil {
		return r, err
	}
	if r.Partition, err = decodeLogicalPartition(d); err != nil {
		return r, err
	}
	proj, err := d.ReadUint32()
	if err != nil {
		return r, err
	}
	r.Projection = region.ProjectionID(proj)
	priv, err := d.ReadUint8()
	if err != nil {
		return r, err
	}
	r.Privilege = region.Privilege(priv)
	coh, err := d.ReadUint8()
	if err != nil {
		return r, err
	}
	r.Coherence = region.Coherence(coh)
	redop, err := d.ReadUint32()
	if err != nil {
		return r, err
	}
	r.Redop = region.ReductionOpID(redop)
	if r.Parent, err = decodeLogicalRegion(d); err != nil {
		return r, err
	}
	n, err := d.ReadUint32()
	if err != nil {
		return r, err
	}
	r.Fields = make([]region.FieldID, n)
	for i := range r.Fields {
		f, err := d.ReadUint32()
		if err != nil {
			return r, err
		}
		r.Fields[i] = region.FieldID(f)
	}
	return r, nil
}

func decodeLogicalRegion(d *wire.Decoder) (region.LogicalRegion, error) {
	var lr region.LogicalRegion
	tree, err := d.ReadUint64()
	if err != nil {
		return lr, err
	}
	is, err := d.ReadUint64()
	if err != nil {
		return lr, err
	}
	fs, err := d.ReadUint64()
	if err != nil {
		return lr, err
	}
	lr.Tree = region.TreeID(tree)
	lr.IndexSpace = region.IndexSpaceID(is)
	lr.FieldSpace = region.FieldSpaceID(fs)
	return lr, nil
}

func decodeLogicalPartition(d *wire.Decoder) (region.LogicalPartition, error) {
	var lp region.LogicalPartition
	tree, err := d.ReadUint64()
	if err != nil {
		return lp, err
	}
	part, err := d.ReadUint64()
	if err != nil {
		return lp, err
	}
	fs, err := d.ReadUint64()
	if err != nil {
		return lp, err
	}
	lp.Tree = region.TreeID(tree)
	lp.Partition = region.IndexPartitionID(part)
	lp.FieldSpace = region.FieldSpaceID(fs)
	return lp, nil
}

func encodeInstanceRef(e *wire.Encoder, ref *region.InstanceRef) {
	e.WriteBool(ref.Virtual)
	if ref.Virtual {
		return
	}
	e.WriteUUID(ref.Instance.ID)
	e.WriteUint64(uint64(ref.Instance.Memory))
	e.WriteUint64(uint64(ref.Instance.Region.Tree))
	e.WriteUint64(uint64(ref.Instance.Region.IndexSpace))
	e.WriteUint64(uint64(ref.Instance.Region.FieldSpace))
	e.WriteUint32(uint32(len(ref.Instance.Fields)))
	for _, f := range ref.Instance.Fields {
		e.WriteUint32(uint32(f))
	}
}

func decodeInstanceRef(d *wire.Decoder) (region.InstanceRef, error) {
	virtual, err := d.ReadBool()
	if err != nil {
		return region.InstanceRef{}, err
	}
	if virtual {
		return region.VirtualRef(), nil
	}
	id, err := d.ReadUUID()
	if err != nil {
		return region.InstanceRef{}, err
	}
	mem, err := d.ReadUint64()
	if err != nil {
		return region.InstanceRef{}, err
	}
	lr, err := decodeLogicalRegion(d)
	if err != nil {
		return region.InstanceRef{}, err
	}
	n, err := d.ReadUint32()
	if err != nil {
		return region.InstanceRef{}, err
	}
	fields := make([]region.FieldID, n)
	for i := range fields {
		f, err := d.ReadUint32()
		if err != nil {
			return region.InstanceRef{}, err
		}
		fields[i] = region.FieldID(f)
	}
	return region.InstanceRef{
		Instance: &region.PhysicalInstance{ID: id, Memory: region.MemoryID(mem), Region: lr, Fields: fields},
	}, nil
}

// encode serializes a single-point task for migration: identity, home,
// argument bytes, resolved input futures by durable identifier, region
// requirements, placement metadata, and, for an origin-mapped task, the
// finalized instance assignment.
func (pt *PointTask) encode() []byte {
	e := wire.NewEncoder()
	e.WriteUUID(pt.id)
	e.WriteUint32(uint32(pt.homeNode))
	e.WriteInt64(pt.ctxIndex)
	e.WriteInt64(int64(pt.variant))
	e.WritePoint(pt.point)
	e.WriteBytes(pt.args)

	e.WriteUint32(uint32(len(pt.inputFutures)))
	for _, f := range pt.inputFutures {
		e.WriteUUID(f.ID())
		v, ok := f.Get()
		e.WriteBool(ok)
		if ok {
			e.WriteBytes(v)
		}
	}

	e.WriteUint32(uint32(len(pt.requirements)))
	for i := range pt.requirements {
		encodeRequirement(e, &pt.requirements[i])
	}

	e.WriteBool(pt.OriginMapped())
	e.WriteBool(pt.mapped)
	if pt.mapped {
		e.WriteUint32(uint32(len(pt.instances)))
		for i := range pt.instances {
			encodeInstanceRef(e, &pt.instances[i])
		}
	}
	return e.Bytes()
}

// decode reconstitutes a migrated-in copy of a single-point task.
func (pt *PointTask) decode(eng *Engine, payload []byte) error {
	d := wire.NewDecoder(payload)
	id, err := d.ReadUUID()
	if err != nil {
		return err
	}
	home, err := d.ReadUint32()
	if err != nil {
		return err
	}
	ctxIndex, err := d.ReadInt64()
	if err != nil {
		return err
	}
	variant, err := d.ReadInt64()
	if err != nil {
		return err
	}
	point, err := d.ReadPoint()
	if err != nil {
		return err
	}
	args, err := d.ReadBytes()
	if err != nil {
		return err
	}

	pt.reset()
	pt.Reset(id, ctxIndex, VariantID(variant), args)
	pt.engine = eng
	pt.logger = eng.logger
	pt.point = point
	pt.migrated = true
	pt.homeNode = wire.NodeID(home)
	pt.currentNode = eng.node
	pt.targetNode = eng.node
	pt.precondition = event.Triggered()
	pt.installHooks()

	nf, err := d.ReadUint32()
	if err != nil {
		return err
	}
	pt.inputFutures = make([]*future.Future, nf)
	for i := range pt.inputFutures {
		fid, err := d.ReadUUID()
		if err != nil {
			return err
		}
		has, err := d.ReadBool()
		if err != nil {
			return err
		}
		f := future.NewWithID(fid)
		if has {
			v, err := d.ReadBytes()
			if err != nil {
				return err
			}
			f.Set(v)
		}
		pt.inputFutures[i] = f
	}

	nr, err := d.ReadUint32()
	if err != nil {
		return err
	}
	pt.requirements = make([]region.Requirement, nr)
	for i := range pt.requirements {
		if pt.requirements[i], err = decodeRequirement(d); err != nil {
			return err
		}
	}

	originMapped, err := d.ReadBool()
	if err != nil {
		return err
	}
	pt.mu.Lock()
	pt.originMapped = originMapped
	pt.mu.Unlock()
	mapped, err := d.ReadBool()
	if err != nil {
		return err
	}
	if mapped {
		ni, err := d.ReadUint32()
		if err != nil {
			return err
		}
		pt.instances = make([]region.InstanceRef, ni)
		pt.virtualMapped = make([]bool, ni)
		for i := range pt.instances {
			if pt.instances[i], err = decodeInstanceRef(d); err != nil {
				return err
			}
			pt.virtualMapped[i] = pt.instances[i].Virtual
		}
		pt.mapped = true
	}
	return nil
}

// encode serializes a not-yet-enumerated slice: owner back-pointer
// identifier, domains, denominator, flags, argument bytes and the
// point-argument snapshot, and region requirements.
func (sl *SliceTask) encode() []byte {
	e := wire.NewEncoder()
	e.WriteUUID(sl.id)
	e.WriteUUID(sl.indexID)
	e.WriteUint32(uint32(sl.ownerNode))
	e.WriteInt64(sl.ctxIndex)
	e.WriteInt64(int64(sl.variant))
	e.WriteRect(sl.launchDomain)
	e.WriteRect(sl.dom)
	e.WriteInt64(sl.denominator)
	e.WriteBool(sl.recurse)
	e.WriteBool(sl.stealable)
	e.WriteUint32(uint32(sl.redop))
	e.WriteBool(sl.deterministic)
	e.WriteBytes(sl.args)

	e.WriteUint32(uint32(len(sl.argMap)))
	for _, p := range sortedArgPoints(sl.argMap) {
		e.WritePoint(p)
		e.WriteBytes(sl.argMap[p])
	}

	e.WriteUint32(uint32(len(sl.requirements)))
	for i := range sl.requirements {
		encodeRequirement(e, &sl.requirements[i])
	}
	return e.Bytes()
}

func sortedArgPoints(m map[domain.Point][]byte) []domain.Point {
	pts := make([]domain.Point, 0, len(m))
	for p := range m {
		pts = append(pts, p)
	}
	domain.SortPoints(pts)
	return pts
}

func decodeSlice(eng *Engine, payload []byte) (*SliceTask, error) {
	d := wire.NewDecoder(payload)
	sl := &SliceTask{
		engine:     eng,
		targetNode: eng.node,
		resources:  ledger.New(),
	}

	var err error
	if sl.id, err = d.ReadUUID(); err != nil {
		return nil, err
	}
	if sl.indexID, err = d.ReadUUID(); err != nil {
		return nil, err
	}
	owner, err := d.ReadUint32()
	if err != nil {
		return nil, err
	}
	sl.ownerNode = wire.NodeID(owner)
	if sl.ctxIndex, err = d.ReadInt64(); err != nil {
		return nil, err
	}
	variant, err := d.ReadInt64()
	if err != nil {
		return nil, err
	}
	sl.variant = VariantID(variant)
	if sl.launchDomain, err = d.ReadRect(); err != nil {
		return nil, err
	}
	if sl.dom, err = d.ReadRect(); err != nil {
		return nil, err
	}
	if sl.denominator, err = d.ReadInt64(); err != nil {
		return nil, err
	}
	if sl.recurse, err = d.ReadBool(); err != nil {
		return nil, err
	}
	if sl.stealable, err = d.ReadBool(); err != nil {
		return nil, err
	}
	redop, err := d.ReadUint32()
	if err != nil {
		return nil, err
	}
	sl.redop = region.ReductionOpID(redop)
	if sl.deterministic, err = d.ReadBool(); err != nil {
		return nil, err
	}
	if sl.args, err = d.ReadBytes(); err != nil {
		return nil, err
	}

	na, err := d.ReadUint32()
	if err != nil {
		return nil, err
	}
	if na > 0 {
		sl.argMap = make(map[domain.Point][]byte, na)
		for i := uint32(0); i < na; i++ {
			p, err := d.ReadPoint()
			if err != nil {
				return nil, err
			}
			v, err := d.ReadBytes()
			if err != nil {
				return nil, err
			}
			sl.argMap[p] = v
		}
	}

	nr, err := d.ReadUint32()
	if err != nil {
		return nil, err
	}
	sl.requirements = make([]region.Requirement, nr)
	for i := range sl.requirements {
		if sl.requirements[i], err = decodeRequirement(d); err != nil {
			return nil, err
		}
	}

	if sl.ownerNode == eng.node {
		sl.index = eng.mustIndex(sl.indexID)
	}
	return sl, nil
}

// encodeSliceProgress is the minimal upward report shared by the mapped
// and commit notifications: owner identifier, denominator, point count.
func encodeSliceProgress(indexID uuid.UUID, denominator, points int64) []byte {
	e := wire.NewEncoder()
	e.WriteUUID(indexID)
	e.WriteInt64(denominator)
	e.WriteInt64(points)
	return e.Bytes()
}

func decodeSliceProgress(payload []byte) (uuid.UUID, int64, int64, error) {
	d := wire.NewDecoder(payload)
	id, err := d.ReadUUID()
	if err != nil {
		return uuid.Nil, 0, 0, err
	}
	den, err := d.ReadInt64()
	if err != nil {
		return uuid.Nil, 0, 0, err
	}
	pts, err := d.ReadInt64()
	if err != nil {
		return uuid.Nil, 0, 0, err
	}
	return id, den, pts, nil
}

type sliceCompleteReport struct {
	indexID     uuid.UUID
	denominator int64
	points      int64
	resources   *ledger.Ledger
	results     map[domain.Point][]byte
}

// encodeSliceComplete is the completion report: progress fields plus the
// slice's merged resource ledger and the raw result payload per point.
func encodeSliceComplete(
	indexID uuid.UUID,
	denominator, points int64,
	led *ledger.Ledger,
	results map[domain.Point][]byte,
) []byte {
	e := wire.NewEncoder()
	e.WriteUUID(indexID)
	e.WriteInt64(denominator)
	e.WriteInt64(points)
	led.EncodeTo(e)
	e.WriteUint32(uint32(len(results)))
	for _, p := range sortedArgPoints(results) {
		e.WritePoint(p)
		e.WriteBytes(results[p])
	}
	return e.Bytes()
}

func decodeSliceComplete(payload []byte) (sliceCompleteReport, error) {
	var rep sliceCompleteReport
	d := wire.NewDecoder(payload)
	var err error
	if rep.indexID, err = d.ReadUUID(); err != nil {
		return rep, err
	}
	if rep.denominator, err = d.ReadInt64(); err != nil {
		return rep, err
	}
	if rep.points, err = d.ReadInt64(); err != nil {
		return rep, err
	}
	rep.resources = ledger.New()
	if err = rep.resources.DecodeFrom(d); err != nil {
		return rep, err
	}
	n, err := d.ReadUint32()
	if err != nil {
		return rep, err
	}
	rep.results = make(map[domain.Point][]byte, n)
	for i := uint32(0); i < n; i++ {
		p, err := d.ReadPoint()
		if err != nil {
			return rep, err
		}
		v, err := d.ReadBytes()
		if err != nil {
			return rep, err
		}
		rep.results[p] = v
	}
	return rep, nil
}

type pointCompleteReport struct {
	pointID   uuid.UUID
	result    []byte
	resources *ledger.Ledger
}

// encodePointComplete reports a migrated point's completion back to its
// origin: identity, result bytes, and the execution's resource ledger.
func encodePointComplete(pointID uuid.UUID, result []byte, led *ledger.Ledger) []byte {
	e := wire.NewEncoder()
	e.WriteUUID(pointID)
	e.WriteBytes(result)
	led.EncodeTo(e)
	return e.Bytes()
}

func decodePointComplete(payload []byte) (pointCompleteReport, error) {
	var rep pointCompleteReport
	d := wire.NewDecoder(payload)
	var err error
	if rep.pointID, err = d.ReadUUID(); err != nil {
		return rep, err
	}
	if rep.result, err = d.ReadBytes(); err != nil {
		return rep, err
	}
	rep.resources = ledger.New()
	if err = rep.resources.DecodeFrom(d); err != nil {
		return rep, err
	}
	return rep, nil
}
