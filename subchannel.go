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
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/http2/hpack"

	"github.com/corerpc/corerpc/backoff"
	"github.com/corerpc/corerpc/chanlog"
	"github.com/corerpc/corerpc/connectivity"
	"github.com/corerpc/corerpc/credentials"
	internalbackoff "github.com/corerpc/corerpc/internal/backoff"
	"github.com/corerpc/corerpc/internal/channelz"
	"github.com/corerpc/corerpc/internal/transport"
	"github.com/corerpc/corerpc/metadata"
	"github.com/corerpc/corerpc/resolver"
)

// Subchannel is a single-backend connection with its own connectivity
// state machine, per spec §4.3. It is shared across Channels/LoadBalancers
// via the SubchannelPool. Its state is guarded by mu and changes only
// through transition's guarded table, on whichever goroutine calls it.
type Subchannel struct {
	id     string
	target string
	addr   resolver.Address
	opts   ChannelOptions
	creds  credentials.Bundle
	logger *chanlog.PrefixLogger
	czID   *channelz.Identifier

	mu          sync.Mutex
	state       connectivity.State
	transport   *transport.Transport
	backoffT    *internalbackoff.Timer
	listeners   map[int]func(connectivity.State)
	nextListener int

	callRefs  int
	ownerRefs int

	keepaliveTime    time.Duration
	keepaliveTimeout time.Duration
	keepaliveStop    chan struct{}
	shutdown         bool
	lastErr          error
}

func newSubchannel(target string, addr resolver.Address, opts ChannelOptions, creds credentials.Bundle) *Subchannel {
	id := uuid.NewString()
	sc := &Subchannel{
		id:        id,
		target:    target,
		addr:      addr,
		opts:      opts,
		creds:     creds,
		state:     connectivity.Idle,
		listeners: map[int]func(connectivity.State){},
		czID:      channelz.NewIdentifier("subchannel"),
	}
	sc.logger = chanlog.NewPrefixLogger(fmt.Sprintf("[subchannel %s %s] ", sc.czID, addr.Addr))
	sc.backoffT = internalbackoff.New(backoff.DefaultConfig)
	sc.keepaliveTime = opts.keepaliveParams().Time
	sc.keepaliveTimeout = opts.keepaliveParams().Timeout
	if sc.keepaliveTimeout <= 0 {
		sc.keepaliveTimeout = 20 * time.Second
	}
	return sc
}

// State returns the current connectivity state.
func (sc *Subchannel) State() connectivity.State {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.state
}

// LastError returns the error that caused the most recent transition into
// TRANSIENT_FAILURE, or nil.
func (sc *Subchannel) LastError() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.lastErr
}

// addConnectivityStateListener registers cb to be invoked after every
// state transition; the returned function detaches it. Dispatch iterates a
// snapshot so a listener may detach itself during its own callback, per
// spec §4.3.
func (sc *Subchannel) addConnectivityStateListener(cb func(connectivity.State)) func() {
	sc.mu.Lock()
	id := sc.nextListener
	sc.nextListener++
	sc.listeners[id] = cb
	sc.mu.Unlock()
	return func() {
		sc.mu.Lock()
		delete(sc.listeners, id)
		sc.mu.Unlock()
	}
}

func (sc *Subchannel) dispatch(s connectivity.State) {
	sc.mu.Lock()
	snapshot := make([]func(connectivity.State), 0, len(sc.listeners))
	for _, cb := range sc.listeners {
		snapshot = append(snapshot, cb)
	}
	sc.mu.Unlock()
	for _, cb := range snapshot {
		cb(s)
	}
}

// transition applies the change to to if the current state is one of froms,
// then runs to's entry/exit actions and dispatches to listeners. Reports
// whether the transition took effect; an attempt from a state outside
// froms is a no-op, per spec §4.3's guarded transition table.
func (sc *Subchannel) transition(froms []connectivity.State, to connectivity.State) bool {
	sc.mu.Lock()
	ok := false
	for _, f := range froms {
		if sc.state == f {
			ok = true
			break
		}
	}
	if !ok {
		sc.mu.Unlock()
		return false
	}
	sc.state = to
	sc.mu.Unlock()

	if sc.logger.V(2) {
		sc.logger.Infof("transition to %v", to)
	}
	channelz.Infof(sc.logger, sc.czID, "connectivity state -> %v", to)

	switch to {
	case connectivity.Connecting:
		sc.startConnectingTransport()
	case connectivity.Ready:
		sc.backoffT.Stop()
		sc.armKeepalive()
	case connectivity.TransientFailure, connectivity.Idle:
		sc.closeTransportLocked()
		sc.stopKeepalive()
		if to == connectivity.TransientFailure {
			sc.scheduleReconnect()
		}
	}
	sc.dispatch(to)
	return true
}

// startConnecting begins the IDLE -> CONNECTING transition triggered by a
// LoadBalancer's Connect call.
func (sc *Subchannel) startConnecting() {
	sc.transition([]connectivity.State{connectivity.Idle}, connectivity.Connecting)
}

func (sc *Subchannel) startConnectingTransport() {
	go func() {
		opts := transport.Options{ConnectTimeout: transport.DefaultConnectTimeout}
		co := sc.creds.Transport.ConnectionOptions(defaultAuthority(sc.target))
		opts.Secure = co.Secure
		opts.TLSConfig = co.TLSConfig
		if v := sc.opts[OptSSLTargetNameOverride]; v != "" && opts.TLSConfig != nil {
			cfg := opts.TLSConfig.Clone()
			cfg.ServerName = v
			opts.TLSConfig = cfg
		}

		t, err := transport.Connect(context.Background(), sc.addr.Addr, opts, sc.handleGoAway, sc.handleClose)
		sc.mu.Lock()
		if sc.shutdown {
			sc.mu.Unlock()
			if t != nil {
				t.Close(nil)
			}
			return
		}
		if err != nil {
			sc.lastErr = err
			sc.mu.Unlock()
			sc.transition([]connectivity.State{connectivity.Connecting}, connectivity.TransientFailure)
			return
		}
		sc.transport = t
		sc.mu.Unlock()
		sc.transition([]connectivity.State{connectivity.Connecting}, connectivity.Ready)
	}()
}

// handleGoAway and handleClose are passed the specific *transport.Transport
// that fired the event; events from a stale (already-replaced) transport
// are dropped by identity comparison against sc.transport, per spec
// §4.3/§5/§9 ("discards events where transport != self.current").
func (sc *Subchannel) handleGoAway(t *transport.Transport, g transport.GoAway) {
	sc.mu.Lock()
	if t != sc.transport {
		sc.mu.Unlock()
		return
	}
	if g.TooManyPings() {
		sc.keepaliveTime *= 2
		if max := time.Duration(math.MaxInt32) * time.Millisecond; sc.keepaliveTime <= 0 || sc.keepaliveTime > max {
			sc.keepaliveTime = max // saturate at the 31-bit signed millisecond max, spec §9
		}
	}
	sc.lastErr = fmt.Errorf("corerpc: received GOAWAY code %v", g.Code)
	sc.mu.Unlock()
	sc.transition([]connectivity.State{connectivity.Ready}, connectivity.Idle)
	sc.transition([]connectivity.State{connectivity.Connecting}, connectivity.TransientFailure)
}

// handleClose drives the transport-close half of the §4.3 transition table:
// a READY Subchannel whose connection drops goes to IDLE, and a connection
// that dies before CONNECTING finished goes to TRANSIENT_FAILURE, exactly
// like a GOAWAY would.
func (sc *Subchannel) handleClose(t *transport.Transport, err error) {
	sc.mu.Lock()
	if t != sc.transport {
		sc.mu.Unlock()
		return
	}
	sc.lastErr = err
	sc.mu.Unlock()
	sc.transition([]connectivity.State{connectivity.Ready}, connectivity.Idle)
	sc.transition([]connectivity.State{connectivity.Connecting}, connectivity.TransientFailure)
}

func (sc *Subchannel) closeTransportLocked() {
	sc.mu.Lock()
	t := sc.transport
	sc.transport = nil
	sc.mu.Unlock()
	if t != nil {
		t.Close(nil)
	}
}

func (sc *Subchannel) scheduleReconnect() {
	sc.backoffT.RunOnce(func() {
		sc.mu.Lock()
		callActive := sc.callRefs > 0
		sc.mu.Unlock()
		if callActive {
			sc.transition([]connectivity.State{connectivity.TransientFailure}, connectivity.Connecting)
		} else {
			sc.transition([]connectivity.State{connectivity.TransientFailure}, connectivity.Idle)
		}
	})
}

func (sc *Subchannel) resetBackoff() { sc.backoffT.Reset() }

// ref/unref drive pool retention; callRef/callUnref additionally drive
// keepalive activation, per spec §4.3 "Refcounts".
func (sc *Subchannel) ref() {
	sc.mu.Lock()
	sc.ownerRefs++
	sc.mu.Unlock()
}

func (sc *Subchannel) unref() {
	sc.mu.Lock()
	sc.ownerRefs--
	zero := sc.callRefs == 0 && sc.ownerRefs <= 0
	sc.mu.Unlock()
	if zero {
		sc.forceShutdown()
	}
}

func (sc *Subchannel) callRef() {
	sc.mu.Lock()
	sc.callRefs++
	shouldArm := sc.callRefs == 1 && sc.state == connectivity.Ready
	sc.mu.Unlock()
	if shouldArm {
		sc.armKeepalive()
	}
}

func (sc *Subchannel) callUnref() {
	sc.mu.Lock()
	sc.callRefs--
	zero := sc.callRefs <= 0 && sc.ownerRefs <= 0
	sc.mu.Unlock()
	if zero {
		sc.forceShutdown()
	}
}

func (sc *Subchannel) forceShutdown() {
	sc.mu.Lock()
	if sc.shutdown {
		sc.mu.Unlock()
		return
	}
	sc.shutdown = true
	sc.mu.Unlock()
	sc.transition([]connectivity.State{connectivity.Connecting, connectivity.Idle, connectivity.Ready}, connectivity.TransientFailure)
	sc.backoffT.Stop()
}

func (sc *Subchannel) armKeepalive() {
	sc.mu.Lock()
	if sc.callRefs <= 0 || sc.state != connectivity.Ready || sc.keepaliveTime <= 0 {
		sc.mu.Unlock()
		return
	}
	if sc.keepaliveStop != nil {
		sc.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	sc.keepaliveStop = stop
	interval := sc.keepaliveTime
	timeout := sc.keepaliveTimeout
	t := sc.transport
	sc.mu.Unlock()

	go sc.keepaliveLoop(t, stop, interval, timeout)
}

func (sc *Subchannel) stopKeepalive() {
	sc.mu.Lock()
	stop := sc.keepaliveStop
	sc.keepaliveStop = nil
	sc.mu.Unlock()
	if stop != nil {
		close(stop)
	}
}

func (sc *Subchannel) keepaliveLoop(t *transport.Transport, stop chan struct{}, interval, timeout time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			err := t.Ping(ctx)
			cancel()
			if err != nil {
				// spec §4.3: unacknowledged ping transitions READY -> IDLE.
				sc.transition([]connectivity.State{connectivity.Ready}, connectivity.Idle)
				return
			}
		}
	}
}

// StartCallStream opens an HTTP/2 stream for one RPC, composing request
// headers per spec §4.3/§6. Must be called only while READY.
func (sc *Subchannel) StartCallStream(ctx context.Context, method string, md metadata.MD) (*transport.Stream, error) {
	sc.mu.Lock()
	if sc.state != connectivity.Ready || sc.transport == nil {
		sc.mu.Unlock()
		return nil, fmt.Errorf("corerpc: StartCallStream called while not READY")
	}
	t := sc.transport
	sc.mu.Unlock()

	authority := sc.opts[OptDefaultAuthority]
	if authority == "" {
		authority = defaultAuthority(sc.target)
	}
	fields := []hpack.HeaderField{
		{Name: ":method", Value: "POST"},
		{Name: ":scheme", Value: scheme(sc.creds)},
		{Name: ":path", Value: method},
		{Name: ":authority", Value: authority},
		{Name: "content-type", Value: "application/grpc"},
		{Name: "user-agent", Value: sc.opts.userAgent()},
		{Name: "te", Value: "trailers"},
	}
	for k, vs := range md {
		if metadata.IsReserved(k) {
			continue
		}
		for _, v := range vs {
			fields = append(fields, hpack.HeaderField{Name: k, Value: v})
		}
	}
	return t.NewStream(fields, false)
}

func scheme(creds credentials.Bundle) string {
	if creds.Transport != nil && creds.Transport.ConnectionOptions("").Secure {
		return "https"
	}
	return "http"
}

// defaultAuthority implements spec §4.2's getDefaultAuthority: the IP
// literal or DNS hostname the target names, without a port.
func defaultAuthority(target string) string {
	t, err := resolver.ParseTarget(target)
	if err != nil {
		return target
	}
	ep := t.Endpoint()
	host := ep
	for i := len(ep) - 1; i >= 0; i-- {
		if ep[i] == ':' {
			host = ep[:i]
			break
		}
		if ep[i] == ']' {
			break
		}
	}
	return host
}
