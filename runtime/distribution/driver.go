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

package distribution

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/gabrieltanase42/legion/common/executor"
	"github.com/gabrieltanase42/legion/common/log"
	"github.com/gabrieltanase42/legion/common/log/tag"
	"github.com/gabrieltanase42/legion/common/metrics"
	"github.com/gabrieltanase42/legion/common/predicates"
	"github.com/gabrieltanase42/legion/runtime/transport"
	"github.com/gabrieltanase42/legion/runtime/wire"
)

type (
	// Item is a unit of work parked in the steal pool. TrySteal claims it
	// atomically and returns the migration message that moves it; a claim
	// can fail if the item started running or lost eligibility since
	// registration.
	Item interface {
		UniqueID() uuid.UUID
		Stealable() bool
		TrySteal() (wire.MessageType, []byte, bool)
	}

	// Driver owns cross-node movement for one address space: serialized
	// task and slice migration, steal requests (rate limited), and the
	// pool of locally queued stealable work.
	Driver struct {
		transport      transport.Transport
		limiter        *rate.Limiter
		filter         predicates.Predicate[Item]
		rescheduler    executor.Rescheduler
		logger         log.Logger
		metricsHandler metrics.Handler

		mu    sync.Mutex
		pool  map[uuid.UUID]Item
		order []uuid.UUID
	}
)

// NewDriver builds a distribution driver. The filter restricts which
// pooled items a thief may take; nil admits everything. The rescheduler
// retries steal requests the rate limiter defers; nil drops them.
func NewDriver(
	tr transport.Transport,
	limiter *rate.Limiter,
	filter predicates.Predicate[Item],
	rescheduler executor.Rescheduler,
	logger log.Logger,
	metricsHandler metrics.Handler,
) *Driver {
	if filter == nil {
		filter = predicates.Everything[Item]()
	}
	return &Driver{
		transport:      tr,
		limiter:        limiter,
		filter:         filter,
		rescheduler:    rescheduler,
		logger:         log.With(logger, tag.AddressSpace(uint32(tr.LocalNode()))),
		metricsHandler: metricsHandler,
		pool:           make(map[uuid.UUID]Item),
	}
}

// LocalNode returns the driver's address space.
func (d *Driver) LocalNode() wire.NodeID {
	return d.transport.LocalNode()
}

// Send moves one serialized operation or report to another node.
func (d *Driver) Send(target wire.NodeID, t wire.MessageType, payload []byte) error {
	return d.transport.Send(target, wire.Envelope{
		Type:    t,
		Source:  d.transport.LocalNode(),
		Payload: payload,
	})
}

// Register parks an item in the steal pool. Items register only while
// stealable and must unregister once they map, decompose, or migrate.
func (d *Driver) Register(item Item) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := item.UniqueID()
	if _, ok := d.pool[id]; ok {
		panic(fmt.Sprintf("distribution: item %v registered twice", id))
	}
	d.pool[id] = item
	d.order = append(d.order, id)
}

// Unregister removes an item from the steal pool. Unknown ids are fine;
// items unregister on every path that ends their eligibility.
func (d *Driver) Unregister(id uuid.UUID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.pool[id]; !ok {
		return
	}
	delete(d.pool, id)
	for i, oid := range d.order {
		if oid == id {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
}

// PoolSize reports how many items are parked.
func (d *Driver) PoolSize() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pool)
}

// RequestSteal asks target for work. Requests are rate limited; one the
// limiter defers is resubmitted through the rescheduler after a backoff,
// until the retry policy gives up.
func (d *Driver) RequestSteal(target wire.NodeID) error {
	return d.requestSteal(target, 1)
}

func (d *Driver) requestSteal(target wire.NodeID, attempt int) error {
	if d.limiter != nil && !d.limiter.Allow() {
		if d.rescheduler == nil {
			return nil
		}
		d.metricsHandler.Counter(metrics.StealRequestDeferredCounter).Record(1)
		d.rescheduler.Add(executor.RunnableFunc(func() {
			if err := d.requestSteal(target, attempt+1); err != nil {
				d.logger.Error("deferred steal request failed",
					tag.StealTarget(uint32(target)), tag.Error(err))
			}
		}), attempt)
		return nil
	}
	d.metricsHandler.Counter(metrics.StealRequestCounter).Record(1)
	d.logger.Debug("requesting steal", tag.StealTarget(uint32(target)))
	return d.Send(target, wire.MessageStealRequest, nil)
}

// HandleStealRequest serves one steal request: claim the oldest pooled
// item passing the filter and ship it to the thief wrapped in a steal
// response. No match means the request is silently dropped; the thief
// retries on its own schedule.
func (d *Driver) HandleStealRequest(thief wire.NodeID) {
	d.mu.Lock()
	var claimed wire.MessageType
	var payload []byte
	found := false
	for i := 0; i < len(d.order) && !found; {
		item := d.pool[d.order[i]]
		if !d.filter.Test(item) {
			i++
			continue
		}
		t, p, ok := item.TrySteal()
		if !ok {
			// lost eligibility since registration; drop it
			delete(d.pool, d.order[i])
			d.order = append(d.order[:i], d.order[i+1:]...)
			continue
		}
		claimed, payload, found = t, p, true
		delete(d.pool, item.UniqueID())
		d.order = append(d.order[:i], d.order[i+1:]...)
	}
	d.mu.Unlock()
	if !found {
		return
	}

	d.metricsHandler.Counter(metrics.StealGrantedCounter).Record(1)
	d.logger.Debug("granting steal", tag.StealTarget(uint32(thief)))

	e := wire.NewEncoder()
	e.WriteUint8(uint8(claimed))
	e.WriteBytes(payload)
	if err := d.Send(thief, wire.MessageStealResponse, e.Bytes()); err != nil {
		d.logger.Error("failed to send stolen work", tag.StealTarget(uint32(thief)), tag.Error(err))
	}
}
