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
	"github.com/corerpc/corerpc/balancer/pickfirst"
	publicbackoff "github.com/corerpc/corerpc/backoff"
	"github.com/corerpc/corerpc/chanlog"
	"github.com/corerpc/corerpc/codes"
	"github.com/corerpc/corerpc/connectivity"
	"github.com/corerpc/corerpc/credentials"
	internalbackoff "github.com/corerpc/corerpc/internal/backoff"
	"github.com/corerpc/corerpc/resolver"
	"github.com/corerpc/corerpc/serviceconfig"
	"github.com/corerpc/corerpc/status"
)

// ResolvingLoadBalancer glues a Resolver to a LoadBalancer, applies the
// service-config selection algorithm on every resolution, and hot-swaps
// the active policy when the config names a different one, per spec §4.6.
// It holds one innerLoadBalancer (active) and optionally one
// pendingReplacementLoadBalancer — the invariant named directly in spec §3:
// "innerLoadBalancer is null ⇒ pendingReplacementLoadBalancer is null".
type ResolvingLoadBalancer struct {
	channel     *Channel
	target      resolver.Target
	targetStr   string
	channelOpts ChannelOptions
	creds       credentials.Bundle
	pool        *SubchannelPool
	defaultSC   *ServiceConfig
	logger      *chanlog.PrefixLogger

	resolverWrapper *ccResolverWrapper

	mu                sync.Mutex
	innerName         string
	innerLoadBalancer balancer.Balancer
	innerWrapper      *ccBalancerWrapper
	innerState        connectivity.State

	pendingName                    string
	pendingReplacementLoadBalancer balancer.Balancer
	pendingWrapper                 *ccBalancerWrapper
	pendingLastState               balancer.State

	previousServiceConfig *ServiceConfig
	activeServiceConfig   *ServiceConfig
	resolverBackoff       *internalbackoff.Timer
	continueResolving     bool
	closed                bool
}

// methodConfig returns the MethodConfig the most recently applied service
// config names for method, or nil if none applies, per spec §4.6's
// per-method waitForReady/timeout overrides.
func (rlb *ResolvingLoadBalancer) methodConfig(method string) *MethodConfig {
	rlb.mu.Lock()
	sc := rlb.activeServiceConfig
	rlb.mu.Unlock()
	if sc == nil {
		return nil
	}
	return methodConfigFor(sc, method)
}

func newResolvingLoadBalancer(ch *Channel, target resolver.Target, targetStr string, opts ChannelOptions, creds credentials.Bundle, pool *SubchannelPool, defaultSC *ServiceConfig) (*ResolvingLoadBalancer, error) {
	rlb := &ResolvingLoadBalancer{
		channel:     ch,
		target:      target,
		targetStr:   targetStr,
		channelOpts: opts,
		creds:       creds,
		pool:        pool,
		defaultSC:   defaultSC,
	}
	rlb.logger = chanlog.NewPrefixLogger(fmt.Sprintf("[resolving-lb %p %s] ", rlb, targetStr))
	rlb.resolverBackoff = internalbackoff.New(publicbackoff.DefaultConfig)

	ccr, err := newCCResolverWrapper(rlb)
	if err != nil {
		return nil, err
	}
	rlb.resolverWrapper = ccr
	return rlb, nil
}

// handleResolverState implements spec §4.6's service-config selection
// algorithm and applies the resulting policy. Runs on the Channel's
// serializer goroutine.
func (rlb *ResolvingLoadBalancer) handleResolverState(s resolver.State) error {
	if rlb.closed {
		return nil
	}
	var scErr error
	var sc *ServiceConfig
	if s.ServiceConfig != nil {
		if s.ServiceConfig.Err != nil {
			scErr = s.ServiceConfig.Err
		} else if cfg, ok := s.ServiceConfig.Config.(*ServiceConfig); ok {
			sc = cfg
		}
	}

	working := rlb.selectServiceConfig(sc, scErr)
	if working == nil && scErr != nil {
		rlb.publishResolutionFailure(status.Error(codes.Unavailable, scErr.Error()))
		return balancer.ErrBadResolverState
	}

	name, listedAny := firstRegisteredPolicy(working, func(n string) bool { return balancer.Get(n) != nil })
	if name == "" {
		if listedAny {
			err := fmt.Errorf("corerpc: service config named load balancing policies, none of which are registered")
			rlb.publishResolutionFailure(status.Error(codes.Unavailable, err.Error()))
			return err
		}
		name = pickfirst.Name
	}

	rlb.mu.Lock()
	defer rlb.mu.Unlock()
	rlb.activeServiceConfig = working
	if err := rlb.applyPolicyLocked(name, s); err != nil {
		return err
	}
	return nil
}

// selectServiceConfig implements the three-way selection spec §4.6 lists.
func (rlb *ResolvingLoadBalancer) selectServiceConfig(sc *ServiceConfig, scErr error) *ServiceConfig {
	switch {
	case sc != nil:
		rlb.previousServiceConfig = sc
		return sc
	case scErr == nil:
		rlb.previousServiceConfig = nil
		return rlb.defaultSC
	default:
		if rlb.previousServiceConfig != nil {
			return rlb.previousServiceConfig
		}
		if rlb.defaultSC != nil {
			return rlb.defaultSC
		}
		return nil
	}
}

// applyPolicyLocked instantiates, forwards to, or hot-swaps the active
// policy per spec §4.6's "Apply policy chosen" rules. rlb.mu must be held.
func (rlb *ResolvingLoadBalancer) applyPolicyLocked(name string, s resolver.State) error {
	cs := balancer.ClientConnState{ResolverState: s}

	switch {
	case rlb.innerLoadBalancer == nil:
		rlb.innerName = name
		rlb.innerWrapper = newCCBalancerWrapper(rlb, roleActive)
		rlb.innerLoadBalancer = balancer.Get(name).Build(rlb.innerWrapper, balancer.BuildOptions{Target: rlb.target})
		return rlb.innerLoadBalancer.UpdateClientConnState(cs)

	case name == rlb.innerName:
		return rlb.innerLoadBalancer.UpdateClientConnState(cs)

	case rlb.innerState == connectivity.Ready:
		// Different policy while active is READY: start a pending
		// replacement rather than disrupting traffic, per spec §4.6.
		if rlb.pendingReplacementLoadBalancer != nil {
			rlb.pendingReplacementLoadBalancer.Close()
			rlb.pendingWrapper.closeSubConns()
		}
		rlb.pendingLastState = balancer.State{}
		rlb.pendingName = name
		rlb.pendingWrapper = newCCBalancerWrapper(rlb, rolePending)
		rlb.pendingReplacementLoadBalancer = balancer.Get(name).Build(rlb.pendingWrapper, balancer.BuildOptions{Target: rlb.target})
		return rlb.pendingReplacementLoadBalancer.UpdateClientConnState(cs)

	default:
		// Active is not READY: tear it down and replace immediately.
		rlb.innerLoadBalancer.Close()
		rlb.innerWrapper.closeSubConns()
		rlb.innerName = name
		rlb.innerWrapper = newCCBalancerWrapper(rlb, roleActive)
		rlb.innerLoadBalancer = balancer.Get(name).Build(rlb.innerWrapper, balancer.BuildOptions{Target: rlb.target})
		return rlb.innerLoadBalancer.UpdateClientConnState(cs)
	}
}

// handleResolverError is spec §4.6's "Resolution failure" path.
func (rlb *ResolvingLoadBalancer) handleResolverError(err error) {
	if rlb.closed {
		return
	}
	rlb.mu.Lock()
	noActive := rlb.innerLoadBalancer == nil
	idle := rlb.innerState == connectivity.Idle
	rlb.mu.Unlock()

	if noActive || idle {
		rlb.publishResolutionFailure(status.Error(codes.Unavailable, err.Error()))
		rlb.startResolverBackoff()
		return
	}
	rlb.mu.Lock()
	lb := rlb.innerLoadBalancer
	rlb.mu.Unlock()
	if lb != nil {
		lb.ResolverError(err)
	}
}

func (rlb *ResolvingLoadBalancer) publishResolutionFailure(st error) {
	rlb.channel.updateState(balancer.State{
		ConnectivityState: connectivity.TransientFailure,
		Picker:             unavailablePicker{err: st},
	})
}

func (rlb *ResolvingLoadBalancer) startResolverBackoff() {
	rlb.resolverBackoff.RunOnce(func() {
		rlb.channel.serializer.Schedule(func(context.Context) {
			if rlb.continueResolving {
				rlb.continueResolving = false
				rlb.resolverWrapper.resolveNow(resolver.ResolveNowOptions{})
			}
		})
	})
}

// resolveNow coalesces concurrent re-resolve requests made while backoff is
// running into a single continueResolving flag, per spec §4.6.
func (rlb *ResolvingLoadBalancer) resolveNow(o resolver.ResolveNowOptions) {
	if rlb.resolverBackoff.IsRunning() {
		rlb.continueResolving = true
		return
	}
	rlb.resolverWrapper.resolveNow(o)
}

// handleBalancerState implements spec §4.6's hot-swap rule: "activate the
// replacement when either the active policy leaves READY or the
// replacement reaches READY. Activation replaces state and picker
// atomically."
func (rlb *ResolvingLoadBalancer) handleBalancerState(w *ccBalancerWrapper, s balancer.State) {
	rlb.mu.Lock()
	defer rlb.mu.Unlock()

	switch w.role {
	case roleActive:
		if w != rlb.innerWrapper {
			return // stale wrapper from an already-replaced policy
		}
		rlb.innerState = s.ConnectivityState
		if rlb.pendingReplacementLoadBalancer != nil && s.ConnectivityState != connectivity.Ready && rlb.pendingLastState.Picker != nil {
			rlb.activatePendingLocked(rlb.pendingLastState)
			return
		}
		rlb.channel.updateState(s)

	case rolePending:
		if w != rlb.pendingWrapper {
			return
		}
		rlb.pendingLastState = s
		if s.ConnectivityState == connectivity.Ready {
			rlb.activatePendingLocked(s)
			return
		}
		// Replacement not yet READY: active policy keeps serving, per
		// spec §4.6 ("the active pick_first continues serving until the
		// replacement reports READY").
	}
}

// activatePendingLocked performs spec §4.6's atomic activation: the
// replacement becomes the active policy and published is pushed to the
// Channel as one atomic state+picker update.
func (rlb *ResolvingLoadBalancer) activatePendingLocked(published balancer.State) {
	oldLB, oldWrapper := rlb.innerLoadBalancer, rlb.innerWrapper
	rlb.innerName = rlb.pendingName
	rlb.innerLoadBalancer = rlb.pendingReplacementLoadBalancer
	rlb.innerWrapper = rlb.pendingWrapper
	rlb.innerState = published.ConnectivityState
	rlb.pendingName = ""
	rlb.pendingReplacementLoadBalancer = nil
	rlb.pendingWrapper = nil
	rlb.pendingLastState = balancer.State{}

	if oldLB != nil {
		oldLB.Close()
		oldWrapper.closeSubConns()
	}
	rlb.channel.updateState(published)
}

func (rlb *ResolvingLoadBalancer) close() {
	rlb.mu.Lock()
	rlb.closed = true
	inner, innerW := rlb.innerLoadBalancer, rlb.innerWrapper
	pending, pendingW := rlb.pendingReplacementLoadBalancer, rlb.pendingWrapper
	rlb.mu.Unlock()

	if inner != nil {
		inner.Close()
		innerW.closeSubConns()
	}
	if pending != nil {
		pending.Close()
		pendingW.closeSubConns()
	}
	rlb.resolverBackoff.Stop()
	rlb.resolverWrapper.close()
}

// unavailablePicker always fails calls with err, matching spec §4.6's
// "UnavailablePicker carrying the status".
type unavailablePicker struct{ err error }

func (p unavailablePicker) Pick(balancer.PickInfo) (balancer.PickResult, error) {
	return balancer.PickResult{}, p.err
}

var _ serviceconfig.Config = (*ServiceConfig)(nil)
