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
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/corerpc/corerpc/balancer"
	"github.com/corerpc/corerpc/chanlog"
	"github.com/corerpc/corerpc/codes"
	"github.com/corerpc/corerpc/connectivity"
	"github.com/corerpc/corerpc/credentials"
	"github.com/corerpc/corerpc/internal/syncutil"
	"github.com/corerpc/corerpc/metadata"
	"github.com/corerpc/corerpc/resolver"
	"github.com/corerpc/corerpc/status"
)

var errChannelShutdown = status.Error(codes.Unavailable, "corerpc: the channel has been shut down")

// Channel is the user-facing handle that creates CallStreams against a
// target, per spec §4.7. It owns the ResolvingLoadBalancer, the current
// Picker, and the queue of calls deferred while no Picker can complete
// them yet.
type Channel struct {
	target    resolver.Target
	targetStr string
	opts      ChannelOptions
	creds     credentials.Bundle
	pool      *SubchannelPool
	logger    *chanlog.PrefixLogger

	ctx        context.Context
	cancel     context.CancelFunc
	serializer *syncutil.CallbackSerializer

	rlb    *ResolvingLoadBalancer
	picker *pickerWrapper

	defaultSC *ServiceConfig
	idleMgr   *idlenessManager

	mu       sync.Mutex
	state    connectivity.State
	watchers map[int]*stateWatcher
	closed   bool
	nextW    int
}

type stateWatcher struct {
	cancel func()
}

// DialOption configures a Dial call, following the teacher's functional
// dial-option pattern.
type DialOption func(*dialConfig)

type dialConfig struct {
	opts        ChannelOptions
	creds       credentials.Bundle
	pool        *SubchannelPool
	defaultSC   *ServiceConfig
	idleTimeout time.Duration
}

// WithChannelOptions sets the ChannelOptions bag described in spec §3/§6.
func WithChannelOptions(o ChannelOptions) DialOption {
	return func(c *dialConfig) { c.opts = o }
}

// WithTransportCredentials sets the transport credentials used for every
// Subchannel this Channel creates.
func WithTransportCredentials(tc credentials.TransportCredentials) DialOption {
	return func(c *dialConfig) { c.creds.Transport = tc }
}

// WithPerRPCCredentials appends a per-call credential plugin.
func WithPerRPCCredentials(pc credentials.PerRPCCredentials) DialOption {
	return func(c *dialConfig) { c.creds.PerRPC = append(c.creds.PerRPC, pc) }
}

// WithSubchannelPool selects a SubchannelPool other than DefaultPool, the
// per-channel pool mode of spec §4.4.
func WithSubchannelPool(p *SubchannelPool) DialOption {
	return func(c *dialConfig) { c.pool = p }
}

// WithDefaultServiceConfig sets the defaultServiceConfig spec §4.6's
// selection algorithm falls back to.
func WithDefaultServiceConfig(scJSON string) DialOption {
	return func(c *dialConfig) {
		res := parseServiceConfig(scJSON)
		if res.Config != nil {
			c.defaultSC, _ = res.Config.(*ServiceConfig)
		}
	}
}

// WithIdleTimeout sets how long a Channel with no active RPCs waits before
// tearing down its ResolvingLoadBalancer and re-entering IDLE, per
// SPEC_FULL §12. A timeout of 0 disables idleness tracking entirely.
func WithIdleTimeout(d time.Duration) DialOption {
	return func(c *dialConfig) { c.idleTimeout = d }
}

// Dial creates a Channel for target without blocking for connectivity; the
// underlying resolution and connection establishment happen asynchronously,
// as with every corerpc-style client.
func Dial(target string, opts ...DialOption) (*Channel, error) {
	t, err := resolver.ParseTarget(target)
	if err != nil {
		return nil, fmt.Errorf("corerpc: %w", err)
	}
	cfg := dialConfig{opts: defaultChannelOptions(), pool: DefaultPool, idleTimeout: defaultIdleTimeout}
	for _, o := range opts {
		o(&cfg)
	}
	if err := validateChannelOptions(cfg.opts); err != nil {
		return nil, err
	}
	cfg.creds = credentialsOrInsecure(cfg.creds)

	ctx, cancel := context.WithCancel(context.Background())
	ch := &Channel{
		target:     t,
		targetStr:  target,
		opts:       cfg.opts,
		creds:      cfg.creds,
		pool:       cfg.pool,
		ctx:        ctx,
		cancel:     cancel,
		serializer: syncutil.NewCallbackSerializer(ctx),
		picker:     newPickerWrapper(),
		state:      connectivity.Idle,
		watchers:   map[int]*stateWatcher{},
		defaultSC:  cfg.defaultSC,
	}
	ch.logger = chanlog.NewPrefixLogger(fmt.Sprintf("[channel %p %s] ", ch, target))

	rlb, err := newResolvingLoadBalancer(ch, t, target, cfg.opts, cfg.creds, cfg.pool, cfg.defaultSC)
	if err != nil {
		cancel()
		return nil, err
	}
	ch.rlb = rlb
	ch.idleMgr = newIdlenessManager(ch, cfg.idleTimeout)
	return ch, nil
}

// enterIdleMode tears down the active ResolvingLoadBalancer and publishes
// IDLE, per SPEC_FULL §12's idleness supplement. Queued and new picks
// simply queue until exitIdleMode reconstructs the resolver/balancer
// pair.
func (ch *Channel) enterIdleMode() error {
	ch.mu.Lock()
	if ch.closed {
		ch.mu.Unlock()
		return errChannelShutdown
	}
	rlb := ch.rlb
	ch.rlb = nil
	ch.mu.Unlock()

	if rlb == nil {
		return nil
	}
	rlb.close()
	ch.updateState(balancer.State{ConnectivityState: connectivity.Idle, Picker: idleQueuePicker{}})
	return nil
}

// idleQueuePicker is the Picker installed while the Channel is IDLE with
// no ResolvingLoadBalancer: every pick queues, per spec §4.7's QUEUE
// outcome, until exitIdleMode publishes a real Picker.
type idleQueuePicker struct{}

func (idleQueuePicker) Pick(balancer.PickInfo) (balancer.PickResult, error) {
	return balancer.PickResult{}, balancer.ErrNoSubConnAvailable
}

// exitIdleMode recreates the ResolvingLoadBalancer, resuming resolution
// and connection establishment.
func (ch *Channel) exitIdleMode() error {
	ch.mu.Lock()
	if ch.closed {
		ch.mu.Unlock()
		return errChannelShutdown
	}
	if ch.rlb != nil {
		ch.mu.Unlock()
		return nil
	}
	ch.mu.Unlock()

	rlb, err := newResolvingLoadBalancer(ch, ch.target, ch.targetStr, ch.opts, ch.creds, ch.pool, ch.defaultSC)
	if err != nil {
		return err
	}
	ch.mu.Lock()
	ch.rlb = rlb
	ch.mu.Unlock()
	return nil
}

// updateState is the single point every connectivity publication funnels
// through (the ResolvingLoadBalancer's own publications and its
// UnavailablePicker both call this). Installs the new Picker, drains the
// pick queue by simply waking every blocked pick, and notifies
// watchConnectivityState observers. Spec §8: "updateState(s) is called
// with no two consecutive identical states" — enforced here.
func (ch *Channel) updateState(s balancer.State) {
	ch.mu.Lock()
	if ch.state == s.ConnectivityState {
		ch.mu.Unlock()
		ch.picker.updatePicker(s.Picker)
		return
	}
	ch.state = s.ConnectivityState
	watchers := make([]*stateWatcher, 0, len(ch.watchers))
	for _, w := range ch.watchers {
		watchers = append(watchers, w)
	}
	ch.watchers = map[int]*stateWatcher{}
	ch.mu.Unlock()

	if ch.logger.V(2) {
		ch.logger.Infof("channel state -> %v", s.ConnectivityState)
	}
	ch.picker.updatePicker(s.Picker)
	for _, w := range watchers {
		w.cancel()
	}
}

// GetState returns the Channel's current aggregate connectivity state.
func (ch *Channel) GetState() connectivity.State {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.state
}

// watchConnectivityState registers a one-shot observer firing on the first
// transition away from current, or when ctx is done, whichever is first,
// per spec §4.7.
func (ch *Channel) watchConnectivityState(ctx context.Context, current connectivity.State, cb func()) {
	ch.mu.Lock()
	if ch.state != current {
		ch.mu.Unlock()
		cb()
		return
	}
	id := ch.nextW
	ch.nextW++
	fired := make(chan struct{})
	w := &stateWatcher{cancel: func() {
		select {
		case <-fired:
		default:
			close(fired)
			cb()
		}
	}}
	ch.watchers[id] = w
	ch.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			ch.mu.Lock()
			delete(ch.watchers, id)
			ch.mu.Unlock()
			w.cancel()
		case <-fired:
		}
	}()
}

// methodConfig returns the active ResolvingLoadBalancer's MethodConfig
// for method, or nil if the channel is idle or none applies.
func (ch *Channel) methodConfig(method string) *MethodConfig {
	ch.mu.Lock()
	rlb := ch.rlb
	ch.mu.Unlock()
	if rlb == nil {
		return nil
	}
	return rlb.methodConfig(method)
}

// ResolveNow asks the active Resolver to re-resolve immediately.
func (ch *Channel) ResolveNow() {
	ch.serializer.Schedule(func(context.Context) {
		ch.mu.Lock()
		rlb := ch.rlb
		ch.mu.Unlock()
		if rlb != nil {
			rlb.resolveNow(resolver.ResolveNowOptions{})
		}
	})
}

// createCall creates a new CallStream for an outgoing RPC to method, per
// spec §4.7/§4.9.
func (ch *Channel) createCall(ctx context.Context, method string, md metadata.MD, opts ...CallOption) (*CallStream, error) {
	ch.mu.Lock()
	closed := ch.closed
	ch.mu.Unlock()
	if closed {
		return nil, errChannelShutdown
	}
	if err := ch.idleMgr.onCallBegin(); err != nil {
		return nil, err
	}
	return newCallStream(ch, ctx, method, md, opts...), nil
}

// NewCall starts a new RPC to method over ch. The returned CallStream is
// usable immediately: SendMsg buffers until the pick and stream setup
// finish in the background.
func (ch *Channel) NewCall(ctx context.Context, method string, md metadata.MD, opts ...CallOption) (*CallStream, error) {
	return ch.createCall(ctx, method, md, opts...)
}

// tryPick dispatches one call per spec §4.7's COMPLETE/QUEUE/TRANSIENT_FAILURE
// rules, returning the chosen Subchannel or the Status to fail the call
// with.
func (ch *Channel) tryPick(ctx context.Context, info balancer.PickInfo, waitForReady bool) (*Subchannel, error) {
	res, err := ch.picker.pick(ctx, info, waitForReady)
	if err != nil {
		if err == context.Canceled || err == context.DeadlineExceeded {
			return nil, err
		}
		return nil, status.Error(codes.Unavailable, err.Error())
	}
	if res.SubConn == nil {
		return nil, status.Error(codes.Unavailable, "corerpc: request dropped by load balancing policy")
	}
	ac, ok := res.SubConn.(*acSubConnWrapper)
	if !ok {
		return nil, errors.New("corerpc: picker returned a foreign SubConn")
	}
	if ac.sc.State() != connectivity.Ready {
		return nil, status.Error(codes.Unavailable, "corerpc: connection dropped while starting call")
	}
	return ac.sc, nil
}

// close destroys the ResolvingLoadBalancer, publishes SHUTDOWN, and unrefs
// all pool entries, per spec §4.7. After close, createCall fails.
func (ch *Channel) close() {
	ch.mu.Lock()
	if ch.closed {
		ch.mu.Unlock()
		return
	}
	ch.closed = true
	ch.mu.Unlock()

	ch.updateState(balancer.State{ConnectivityState: connectivity.Shutdown, Picker: unavailablePicker{err: errChannelShutdown}})
	ch.mu.Lock()
	rlb := ch.rlb
	ch.mu.Unlock()
	if rlb != nil {
		rlb.close()
	}
	ch.idleMgr.close()
	ch.picker.close()
	ch.cancel()
}

// Close is the exported form of close.
func (ch *Channel) Close() { ch.close() }
