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

package policy

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/gabrieltanase42/legion/runtime/domain"
	"github.com/gabrieltanase42/legion/runtime/region"
	"github.com/gabrieltanase42/legion/runtime/wire"
)

type (
	// TaskInfo is the read-only view of a task the policy sees when
	// choosing options or deciding speculation.
	TaskInfo struct {
		ID           uuid.UUID
		VariantID    int64
		IndexLaunch  bool
		LaunchDomain domain.Rect
		Requirements []region.Requirement
		CurrentNode  wire.NodeID
		HomeNode     wire.NodeID
	}

	// SliceInfo is the view of a not-yet-sliced slice.
	SliceInfo struct {
		Task        TaskInfo
		Domain      domain.Rect
		Denominator int64
	}

	// PointInfo is the view of a single-point task ready to map.
	PointInfo struct {
		Task         TaskInfo
		Point        domain.Point
		Requirements []region.Requirement
	}

	// TaskOptions is the policy's initial decision for a task.
	TaskOptions struct {
		// TargetNode is where the task should run. Equal to CurrentNode
		// keeps it local.
		TargetNode wire.NodeID
		// Stealable marks the task eligible for opportunistic stealing
		// until it is mapped or decomposed.
		Stealable bool
		// OriginMapped finalizes mapping before migration; the origin
		// keeps its copy and receives all notifications directly.
		OriginMapped bool
	}

	// SliceDecision is one placement unit of a domain decomposition.
	SliceDecision struct {
		Domain     domain.Rect
		TargetNode wire.NodeID
		// Recurse asks the runtime to consult the policy again on this
		// slice instead of enumerating it.
		Recurse   bool
		Stealable bool
	}

	// MapDecision assigns one instance reference per region requirement.
	MapDecision struct {
		Instances []region.InstanceRef
	}

	// SpeculationDecision guides a predicated task before its guard
	// resolves.
	SpeculationDecision struct {
		// Speculate allows the task to proceed before resolution.
		Speculate bool
		// PredictedValue is the assumed guard value when speculating.
		PredictedValue bool
	}

	// Policy is the external mapping-decision agent. The runtime calls it
	// at fixed lifecycle points and validates every response; a violation
	// is fatal to the launch, never retried.
	Policy interface {
		// SelectTaskOptions runs once per task before placement.
		SelectTaskOptions(task TaskInfo) (TaskOptions, error)

		// SliceDomain runs once per not-yet-sliced slice. The returned
		// sub-domains must partition the input domain exactly.
		SliceDomain(slice SliceInfo) ([]SliceDecision, error)

		// MapTask runs once per single-point task ready to map.
		MapTask(point PointInfo) (MapDecision, error)

		// Speculate runs for predicated tasks whose guard is unresolved.
		Speculate(task TaskInfo) SpeculationDecision
	}

	// ViolationError is a structural violation in a policy response.
	// It is fatal: the violating launch does not continue.
	ViolationError struct {
		TaskID           uuid.UUID
		RequirementIndex int
		Detail           string
	}
)

func (e *ViolationError) Error() string {
	if e.RequirementIndex >= 0 {
		return fmt.Sprintf("policy violation for task %v requirement %d: %s", e.TaskID, e.RequirementIndex, e.Detail)
	}
	return fmt.Sprintf("policy violation for task %v: %s", e.TaskID, e.Detail)
}

func violation(taskID uuid.UUID, detail string, args ...interface{}) *ViolationError {
	return &ViolationError{
		TaskID:           taskID,
		RequirementIndex: -1,
		Detail:           fmt.Sprintf(detail, args...),
	}
}

// ValidateSliceDecisions checks the structural contract on a SliceDomain
// response: at least one decision, no empty sub-domain, matching
// dimensionality, volumes summing exactly to the input volume, and, when
// verifyDisjoint is set, pairwise disjointness.
func ValidateSliceDecisions(
	taskID uuid.UUID,
	parent domain.Rect,
	decisions []SliceDecision,
	verifyDisjoint bool,
) error {
	if len(decisions) == 0 {
		return violation(taskID, "policy returned no slices for domain %v", parent)
	}

	var total int64
	for i, d := range decisions {
		if d.Domain.Empty() {
			return violation(taskID, "slice %d has empty domain", i)
		}
		if d.Domain.Dim != parent.Dim {
			return violation(taskID, "slice %d domain %v has dimension %d, launch domain %v has %d",
				i, d.Domain, d.Domain.Dim, parent, parent.Dim)
		}
		if !parent.ContainsRect(d.Domain) {
			return violation(taskID, "slice %d domain %v escapes launch domain %v", i, d.Domain, parent)
		}
		total += d.Domain.Volume()
	}
	if total != parent.Volume() {
		return violation(taskID, "slice volumes sum to %d, launch domain %v has volume %d",
			total, parent, parent.Volume())
	}

	if verifyDisjoint {
		for i := range decisions {
			for j := i + 1; j < len(decisions); j++ {
				if decisions[i].Domain.Overlaps(decisions[j].Domain) {
					return violation(taskID, "slices %d and %d overlap: %v and %v",
						i, j, decisions[i].Domain, decisions[j].Domain)
				}
			}
		}
	}
	return nil
}

// ValidateMapDecision checks that a MapTask response assigns exactly one
// reference per requirement and that concrete instances cover the
// requested fields and sit in the right region tree.
func ValidateMapDecision(
	taskID uuid.UUID,
	requirements []region.Requirement,
	decision MapDecision,
) error {
	if len(decision.Instances) != len(requirements) {
		return violation(taskID, "policy mapped %d requirements, task has %d",
			len(decision.Instances), len(requirements))
	}
	for i, ref := range decision.Instances {
		if ref.Virtual {
			continue
		}
		if ref.Instance == nil {
			return &ViolationError{TaskID: taskID, RequirementIndex: i,
				Detail: "nil instance without virtual mapping"}
		}
		req := requirements[i]
		if ref.Instance.Region.Tree != req.Region.Tree {
			return &ViolationError{TaskID: taskID, RequirementIndex: i,
				Detail: fmt.Sprintf("instance region tree %d does not match requirement tree %d",
					ref.Instance.Region.Tree, req.Region.Tree)}
		}
		if !ref.Instance.CoversFields(req.Fields) {
			return &ViolationError{TaskID: taskID, RequirementIndex: i,
				Detail: fmt.Sprintf("instance %v is missing requested fields", ref.Instance.ID)}
		}
		if req.Privilege == region.Reduce && ref.Instance.Region != req.Region {
			return &ViolationError{TaskID: taskID, RequirementIndex: i,
				Detail: "reduction requirement mapped to an instance of a different region"}
		}
	}
	return nil
}
