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

package region

import (
	"fmt"
	"sync"

	"github.com/gabrieltanase42/legion/runtime/domain"
)

type projectionRegistry struct {
	mu  sync.RWMutex
	fns map[ProjectionID]ProjectionFn
}

var projections = &projectionRegistry{fns: make(map[ProjectionID]ProjectionFn)}

// IdentityProjection maps each launch point to the partition subregion at
// the point's lexicographic rank. Id 0 is reserved for "no projection".
const IdentityProjection ProjectionID = 1

func init() {
	RegisterProjection(IdentityProjection, func(req Requirement, p domain.Point, launchDomain domain.Rect) LogicalRegion {
		// subregion ids are derived from the partition id and the
		// lexicographic rank of the point within the launch domain
		rank := pointRank(p, launchDomain)
		return LogicalRegion{
			Tree:       req.Partition.Tree,
			IndexSpace: IndexSpaceID(uint64(req.Partition.Partition)<<20 | uint64(rank)),
			FieldSpace: req.Partition.FieldSpace,
		}
	})
}

// RegisterProjection installs a projection function. Re-registering an id
// is a programming error.
func RegisterProjection(id ProjectionID, fn ProjectionFn) {
	if id == 0 {
		panic("region: projection id 0 is reserved")
	}
	projections.mu.Lock()
	defer projections.mu.Unlock()
	if _, ok := projections.fns[id]; ok {
		panic(fmt.Sprintf("region: projection %d registered twice", id))
	}
	projections.fns[id] = fn
}

// LookupProjection resolves a registered projection function.
func LookupProjection(id ProjectionID) (ProjectionFn, bool) {
	projections.mu.RLock()
	defer projections.mu.RUnlock()
	fn, ok := projections.fns[id]
	return fn, ok
}

// Project resolves a requirement for one launch point. Singular
// requirements pass through unchanged; projected requirements become
// singular requirements on the point-specific region.
func Project(req Requirement, p domain.Point, launchDomain domain.Rect) (Requirement, error) {
	if req.HandleType == SingularHandle {
		return req, nil
	}
	fn, ok := LookupProjection(req.Projection)
	if !ok {
		return Requirement{}, fmt.Errorf("region: unknown projection %d", req.Projection)
	}
	projected := req
	projected.HandleType = SingularHandle
	projected.Region = fn(req, p, launchDomain)
	projected.Projection = 0
	return projected, nil
}

func pointRank(p domain.Point, r domain.Rect) int64 {
	rank := int64(0)
	for i := 0; i < r.Dim; i++ {
		extent := r.Hi.Coords[i] - r.Lo.Coords[i] + 1
		rank = rank*extent + (p.Coords[i] - r.Lo.Coords[i])
	}
	return rank
}
