/*
 *
 * Copyright 2026 CoreRPC Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

// Package pickfirst implements the pick_first LoadBalancer, the concrete
// Balancer variant named in spec §4.5: it connects to addresses in order,
// one Subchannel at a time, and picks whichever one first reaches READY.
// Grounded on the teacher's balancer/pickfirst package, simplified to the
// sequential single-attempt machine spec §4.5 actually describes (the
// teacher's production pickfirst additionally implements gRFC A61/A62
// happy-eyeballs and sticky-TRANSIENT_FAILURE refinements this core's spec
// does not call for).
package pickfirst

import (
	"fmt"

	"github.com/corerpc/corerpc/balancer"
	"github.com/corerpc/corerpc/chanlog"
	"github.com/corerpc/corerpc/connectivity"
	"github.com/corerpc/corerpc/resolver"
)

// Name is the policy name used in service config loadBalancingConfig
// entries and by ResolvingLoadBalancer's fallback (spec §4.6: "if none [is
// registered], use pick_first").
const Name = "pick_first"

func init() {
	balancer.Register(builder{})
}

type builder struct{}

func (builder) Name() string { return Name }

func (builder) Build(cc balancer.ClientConn, _ balancer.BuildOptions) balancer.Balancer {
	b := &pickfirstBalancer{cc: cc}
	b.logger = chanlog.NewPrefixLogger(fmt.Sprintf("[pick-first-lb %p] ", b))
	return b
}

type scEntry struct {
	sc    balancer.SubConn
	addr  resolver.Address
	state connectivity.State
}

type pickfirstBalancer struct {
	cc     balancer.ClientConn
	logger *chanlog.PrefixLogger

	addrs   []resolver.Address
	entries []*scEntry
	index   int // the entry currently being attempted

	state     connectivity.State
	selected  *scEntry
	shutdown  bool
}

// UpdateClientConnState implements spec §4.5: "On receiving a new address
// list while CONNECTING, restart from the beginning; if the current
// pick's address is still in the list, keep it; otherwise drop it."
func (b *pickfirstBalancer) UpdateClientConnState(cs balancer.ClientConnState) error {
	addrs := cs.ResolverState.Addresses
	if len(addrs) == 0 {
		b.ResolverError(fmt.Errorf("pick_first: resolver produced zero addresses"))
		return balancer.ErrBadResolverState
	}
	b.addrs = addrs

	if b.selected != nil {
		for _, a := range addrs {
			if a.Equal(b.selected.addr) {
				// Keep serving the already-READY pick; nothing else to do.
				return nil
			}
		}
		// The selected address is gone; tear it down and restart.
		b.selected.sc.Shutdown()
		b.selected = nil
	}

	b.restart()
	return nil
}

// restart tears down every existing SubConn and begins attempting addrs
// in order from the first one, per spec §4.5.
func (b *pickfirstBalancer) restart() {
	for _, e := range b.entries {
		e.sc.Shutdown()
	}
	b.entries = nil
	b.index = 0

	for _, addr := range b.addrs {
		e := &scEntry{addr: addr, state: connectivity.Idle}
		sc, err := b.cc.NewSubConn([]resolver.Address{addr}, balancer.NewSubConnOptions{
			StateListener: func(s balancer.SubConnState) { b.handleSubConnState(e, s) },
		})
		if err != nil {
			if b.logger.V(2) {
				b.logger.Infof("failed to create SubConn for %s: %v", addr, err)
			}
			continue
		}
		e.sc = sc
		b.entries = append(b.entries, e)
	}
	if len(b.entries) == 0 {
		b.transitionTo(connectivity.TransientFailure, &picker{err: fmt.Errorf("pick_first: no addresses could be dialed")})
		return
	}
	b.transitionTo(connectivity.Connecting, &picker{err: balancer.ErrNoSubConnAvailable})
	b.entries[0].sc.Connect()
}

func (b *pickfirstBalancer) handleSubConnState(e *scEntry, s balancer.SubConnState) {
	if b.shutdown {
		return
	}
	e.state = s.ConnectivityState
	switch s.ConnectivityState {
	case connectivity.Ready:
		b.selectSubConn(e)
	case connectivity.TransientFailure:
		b.advance(e, s.ConnectionError)
	case connectivity.Idle:
		if e == b.selected {
			// spec §4.3/§4.5: the current pick left READY; go back to
			// IDLE and publish a QueuePicker.
			b.selected = nil
			b.transitionTo(connectivity.Idle, &idlePicker{reconnect: e.sc.Connect})
		}
	}
}

// advance is called when the entry currently being attempted fails; it
// moves on to the next address in order, or enters TRANSIENT_FAILURE once
// every address has failed once, per spec §4.5.
func (b *pickfirstBalancer) advance(failed *scEntry, err error) {
	// Find failed's position; only act if it is the one we are currently
	// attempting (a stale failure from an entry we've already moved past
	// is ignored).
	pos := -1
	for i, e := range b.entries {
		if e == failed {
			pos = i
			break
		}
	}
	if pos != b.index {
		return
	}
	b.index++
	if b.index < len(b.entries) {
		b.entries[b.index].sc.Connect()
		return
	}
	b.transitionTo(connectivity.TransientFailure, &picker{err: err})
}

func (b *pickfirstBalancer) selectSubConn(e *scEntry) {
	if b.selected == e {
		return
	}
	for _, other := range b.entries {
		if other != e {
			other.sc.Shutdown()
		}
	}
	b.entries = []*scEntry{e}
	b.index = 0
	b.selected = e
	b.transitionTo(connectivity.Ready, &picker{result: balancer.PickResult{SubConn: e.sc}})
}

func (b *pickfirstBalancer) transitionTo(s connectivity.State, p balancer.Picker) {
	b.state = s
	b.cc.UpdateState(balancer.State{ConnectivityState: s, Picker: p})
}

func (b *pickfirstBalancer) ResolverError(err error) {
	if b.logger.V(2) {
		b.logger.Infof("resolver error: %v", err)
	}
	if b.selected == nil {
		b.transitionTo(connectivity.TransientFailure, &picker{err: err})
	}
}

func (b *pickfirstBalancer) UpdateSubConnState(balancer.SubConn, balancer.SubConnState) {
	b.logger.Errorf("UpdateSubConnState called unexpectedly; pick_first registers a StateListener per SubConn")
}

func (b *pickfirstBalancer) Close() {
	b.shutdown = true
	for _, e := range b.entries {
		e.sc.Shutdown()
	}
	b.entries = nil
	b.selected = nil
}

func (b *pickfirstBalancer) ExitIdle() {
	if b.shutdown {
		return
	}
	if b.selected == nil && len(b.entries) > 0 {
		b.entries[b.index].sc.Connect()
	}
}

// picker always returns the same outcome, computed at construction time,
// making it a pure function of PickInfo as spec §8 requires.
type picker struct {
	result balancer.PickResult
	err    error
}

func (p *picker) Pick(balancer.PickInfo) (balancer.PickResult, error) {
	if p.err != nil {
		return balancer.PickResult{}, p.err
	}
	return p.result, nil
}

// idlePicker kicks the idle SubConn into CONNECTING the first time it is
// consulted, then queues, matching spec §4.5's "publishes a QueuePicker".
type idlePicker struct {
	reconnect func()
	kicked    bool
}

func (p *idlePicker) Pick(balancer.PickInfo) (balancer.PickResult, error) {
	if !p.kicked {
		p.kicked = true
		p.reconnect()
	}
	return balancer.PickResult{}, balancer.ErrNoSubConnAvailable
}
