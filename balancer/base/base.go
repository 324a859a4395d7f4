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

// Package base defines a balancer skeleton for LoadBalancers that create
// one SubConn per resolved address and delegate picking among the READY
// ones to a pluggable PickerBuilder, mirroring
// google.golang.org/grpc/balancer/base. balancer/roundrobin is built on
// top of this the way round_robin is built on base in the teacher.
package base

import (
	"fmt"

	"github.com/corerpc/corerpc/balancer"
	"github.com/corerpc/corerpc/chanlog"
	"github.com/corerpc/corerpc/connectivity"
	"github.com/corerpc/corerpc/resolver"
)

// PickerBuilder creates a balancer.Picker from the current set of READY
// SubConns, keyed by the resolver.Address each was created for.
type PickerBuilder interface {
	Build(readySCs map[resolver.Address]balancer.SubConn) balancer.Picker
}

// NewBalancerBuilder returns a balancer.Builder named name whose balancer
// creates a SubConn per resolved address and rebuilds its Picker via pb
// whenever the READY set changes.
func NewBalancerBuilder(name string, pb PickerBuilder) balancer.Builder {
	return &baseBuilder{name: name, pb: pb}
}

type baseBuilder struct {
	name string
	pb   PickerBuilder
}

func (b *baseBuilder) Name() string { return b.name }

func (b *baseBuilder) Build(cc balancer.ClientConn, _ balancer.BuildOptions) balancer.Balancer {
	bal := &baseBalancer{
		cc:    cc,
		pb:    b.pb,
		scs:   map[resolver.Address]balancer.SubConn{},
		state: map[balancer.SubConn]connectivity.State{},
	}
	bal.logger = chanlog.NewPrefixLogger(fmt.Sprintf("[base-lb %p %s] ", bal, b.name))
	return bal
}

type baseBalancer struct {
	cc     balancer.ClientConn
	pb     PickerBuilder
	logger *chanlog.PrefixLogger

	scs       map[resolver.Address]balancer.SubConn
	addrOf    map[balancer.SubConn]resolver.Address
	state     map[balancer.SubConn]connectivity.State
	lastErr   error
	shutdown  bool
}

func (b *baseBalancer) UpdateClientConnState(cs balancer.ClientConnState) error {
	addrs := cs.ResolverState.Addresses
	if len(addrs) == 0 {
		b.ResolverError(fmt.Errorf("base: resolver produced zero addresses"))
		return balancer.ErrBadResolverState
	}

	if b.addrOf == nil {
		b.addrOf = map[balancer.SubConn]resolver.Address{}
	}

	seen := map[resolver.Address]bool{}
	for _, addr := range addrs {
		seen[addr] = true
		if _, ok := b.scs[addr]; ok {
			continue
		}
		sc, err := b.cc.NewSubConn([]resolver.Address{addr}, balancer.NewSubConnOptions{
			StateListener: func(s balancer.SubConnState) { b.handleSubConnState(addr, s) },
		})
		if err != nil {
			if b.logger.V(2) {
				b.logger.Infof("failed to create SubConn for %s: %v", addr, err)
			}
			continue
		}
		b.scs[addr] = sc
		b.addrOf[sc] = addr
		b.state[sc] = connectivity.Idle
		sc.Connect()
	}
	for addr, sc := range b.scs {
		if !seen[addr] {
			sc.Shutdown()
			delete(b.scs, addr)
			delete(b.state, sc)
			delete(b.addrOf, sc)
		}
	}
	b.regeneratePicker()
	return nil
}

func (b *baseBalancer) handleSubConnState(addr resolver.Address, s balancer.SubConnState) {
	if b.shutdown {
		return
	}
	sc, ok := b.scs[addr]
	if !ok {
		return
	}
	old := b.state[sc]
	if old == connectivity.TransientFailure && s.ConnectivityState == connectivity.Connecting {
		// Stay in TRANSIENT_FAILURE during a reconnect attempt, matching
		// the aggregate-state stability the spec requires (no flapping
		// back to CONNECTING on every retry).
		return
	}
	b.state[sc] = s.ConnectivityState
	if s.ConnectivityState == connectivity.TransientFailure {
		b.lastErr = s.ConnectionError
	}
	if s.ConnectivityState == connectivity.Idle {
		sc.Connect()
	}
	b.regeneratePicker()
}

func (b *baseBalancer) regeneratePicker() {
	ready := map[resolver.Address]balancer.SubConn{}
	for addr, sc := range b.scs {
		if b.state[sc] == connectivity.Ready {
			ready[addr] = sc
		}
	}
	states := make([]connectivity.State, 0, len(b.state))
	for _, s := range b.state {
		states = append(states, s)
	}
	agg := balancer.AggregateState(states)

	var p balancer.Picker
	if len(ready) > 0 {
		p = b.pb.Build(ready)
	} else if agg == connectivity.TransientFailure {
		p = errPicker{err: b.lastErr}
	} else {
		p = errPicker{err: balancer.ErrNoSubConnAvailable}
	}
	b.cc.UpdateState(balancer.State{ConnectivityState: agg, Picker: p})
}

func (b *baseBalancer) ResolverError(err error) {
	b.lastErr = err
	if len(b.scs) == 0 {
		b.cc.UpdateState(balancer.State{
			ConnectivityState: connectivity.TransientFailure,
			Picker:            errPicker{err: err},
		})
	}
}

func (b *baseBalancer) UpdateSubConnState(balancer.SubConn, balancer.SubConnState) {
	b.logger.Errorf("UpdateSubConnState called unexpectedly; base registers a StateListener per SubConn")
}

func (b *baseBalancer) Close() {
	b.shutdown = true
	for _, sc := range b.scs {
		sc.Shutdown()
	}
}

func (b *baseBalancer) ExitIdle() {
	for sc, s := range b.state {
		if s == connectivity.Idle {
			sc.Connect()
		}
	}
}

type errPicker struct{ err error }

func (p errPicker) Pick(balancer.PickInfo) (balancer.PickResult, error) {
	return balancer.PickResult{}, p.err
}
