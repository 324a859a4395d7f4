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

package corerpc

import (
	"context"
	"fmt"
	"sync"

	"github.com/corerpc/corerpc/balancer"
	"github.com/corerpc/corerpc/connectivity"
	"github.com/corerpc/corerpc/resolver"
)

// ccBalancerWrapper adapts a ResolvingLoadBalancer's single active (or
// pending-replacement) LoadBalancer to the balancer.ClientConn contract,
// grounded on the teacher's balancer_conn_wrappers.go ccBalancerWrapper —
// simplified because this core serializes everything through the Channel's
// CallbackSerializer instead of a separate update/result channel pair.
type ccBalancerWrapper struct {
	rlb  *ResolvingLoadBalancer
	role lbRole

	mu       sync.Mutex
	subconns map[*acSubConnWrapper]bool
}

// lbRole distinguishes the active LoadBalancer's wrapper from a pending
// replacement's, so ResolvingLoadBalancer's hot-swap logic
// (spec §4.6) knows which one reported a given balancer.State.
type lbRole int

const (
	roleActive lbRole = iota
	rolePending
)

func newCCBalancerWrapper(rlb *ResolvingLoadBalancer, role lbRole) *ccBalancerWrapper {
	return &ccBalancerWrapper{rlb: rlb, role: role, subconns: map[*acSubConnWrapper]bool{}}
}

func (w *ccBalancerWrapper) NewSubConn(addrs []resolver.Address, opts balancer.NewSubConnOptions) (balancer.SubConn, error) {
	if len(addrs) == 0 {
		return nil, fmt.Errorf("corerpc: NewSubConn called with zero addresses")
	}
	sc := w.rlb.pool.getOrCreateSubchannel(w.rlb.targetStr, addrs[0], w.rlb.channelOpts, w.rlb.creds)
	ac := &acSubConnWrapper{w: w, sc: sc, listener: opts.StateListener}
	ac.detach = sc.addConnectivityStateListener(ac.onStateChange)
	w.mu.Lock()
	w.subconns[ac] = true
	w.mu.Unlock()
	return ac, nil
}

func (w *ccBalancerWrapper) UpdateState(s balancer.State) {
	w.rlb.handleBalancerState(w, s)
}

func (w *ccBalancerWrapper) ResolveNow(o resolver.ResolveNowOptions) {
	w.rlb.resolveNow(o)
}

func (w *ccBalancerWrapper) Target() string { return w.rlb.targetStr }

// closeSubConns shuts down every SubConn this wrapper created, used when
// the LoadBalancer it serves is torn down (spec §4.5 "destroy").
func (w *ccBalancerWrapper) closeSubConns() {
	w.mu.Lock()
	acs := make([]*acSubConnWrapper, 0, len(w.subconns))
	for ac := range w.subconns {
		acs = append(acs, ac)
	}
	w.subconns = map[*acSubConnWrapper]bool{}
	w.mu.Unlock()
	for _, ac := range acs {
		ac.Shutdown()
	}
}

// acSubConnWrapper adapts one pooled *Subchannel to the balancer.SubConn
// contract, grounded on the teacher's acBalancerWrapper.
type acSubConnWrapper struct {
	w        *ccBalancerWrapper
	sc       *Subchannel
	listener func(balancer.SubConnState)
	detach   func()
}

func (ac *acSubConnWrapper) lastErr(s connectivity.State) error {
	if s == connectivity.TransientFailure {
		return ac.sc.LastError()
	}
	return nil
}

// onStateChange is bound as the *Subchannel's connectivity listener. It
// runs on whatever goroutine drove the transition (a transport read loop, a
// keepalive ticker, a backoff timer); it hands off to the Channel's
// CallbackSerializer so the LoadBalancer's own handling of the state
// change is serialized with everything else, per spec §5.
func (ac *acSubConnWrapper) onStateChange(s connectivity.State) {
	if ac.listener == nil {
		return
	}
	st := balancer.SubConnState{ConnectivityState: s, ConnectionError: ac.lastErr(s)}
	ac.w.rlb.channel.serializer.Schedule(func(context.Context) {
		ac.listener(st)
	})
}

func (ac *acSubConnWrapper) Connect() { ac.sc.startConnecting() }

func (ac *acSubConnWrapper) Shutdown() {
	ac.w.mu.Lock()
	delete(ac.w.subconns, ac)
	ac.w.mu.Unlock()
	if ac.detach != nil {
		ac.detach()
	}
	ac.sc.unref()
}

// UpdateAddresses re-points this SubConn at a new pool entry. An empty
// list is equivalent to Shutdown, per the balancer.SubConn contract.
func (ac *acSubConnWrapper) UpdateAddresses(addrs []resolver.Address) {
	if len(addrs) == 0 {
		ac.Shutdown()
		return
	}
	old := ac.sc
	wasConnecting := old.State() != connectivity.Idle
	if ac.detach != nil {
		ac.detach()
	}
	old.unref()

	sc := ac.w.rlb.pool.getOrCreateSubchannel(ac.w.rlb.targetStr, addrs[0], ac.w.rlb.channelOpts, ac.w.rlb.creds)
	ac.sc = sc
	ac.detach = sc.addConnectivityStateListener(ac.onStateChange)
	if wasConnecting {
		sc.startConnecting()
	}
}
