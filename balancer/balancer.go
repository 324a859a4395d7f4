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

// Package balancer defines the contracts a LoadBalancer implementation
// consumes from, and is driven by, the channel runtime: SubConn, Picker,
// ClientConn, Builder/Balancer and the registry, mirroring
// google.golang.org/grpc/balancer.
package balancer

import (
	"errors"
	"fmt"
	"sync"

	"github.com/corerpc/corerpc/connectivity"
	"github.com/corerpc/corerpc/metadata"
	"github.com/corerpc/corerpc/resolver"
	"github.com/corerpc/corerpc/serviceconfig"
)

// SubConn represents a LoadBalancer's handle on a single Subchannel
// (spec's "Subchannel"), renamed to match the balancer-facing vocabulary
// the teacher uses ("SubConn") to keep the balancer package decoupled from
// the concrete Subchannel implementation in the core package.
type SubConn interface {
	// Connect starts connecting, a no-op if already connecting or READY.
	Connect()
	// Shutdown marks this SubConn as no longer needed; its owner-ref is
	// dropped (spec §4.3 "ref/unref").
	Shutdown()
	// UpdateAddresses changes the address this SubConn should use. An
	// empty list is equivalent to Shutdown.
	UpdateAddresses([]resolver.Address)
}

// NewSubConnOptions configures a SubConn created via ClientConn.NewSubConn.
type NewSubConnOptions struct {
	// StateListener is invoked, on the channel's executor, on every
	// connectivity state change of the new SubConn.
	StateListener func(SubConnState)
}

// SubConnState reports a SubConn's connectivity and, for a
// TransientFailure transition, the error that caused it.
type SubConnState struct {
	ConnectivityState connectivity.State
	ConnectionError   error
}

// PickInfo carries per-call information made available to a Picker.
type PickInfo struct {
	// FullMethod is the RPC's wire path, e.g. "/pkg.Service/Method".
	FullMethod string
	// Metadata is the call's outgoing application metadata, read-only.
	Metadata metadata.MD
}

// PickResult is the sum type described in spec §3: "{COMPLETE(subchannel)
// | QUEUE | TRANSIENT_FAILURE(status)}", collapsed here into a single
// struct the way grpc-go's balancer.PickResult does: a nil SubConn with a
// nil Err is COMPLETE-with-drop (spec §4.7), a nil SubConn with
// ErrNoSubConnAvailable is QUEUE, and any other non-nil Err is
// TRANSIENT_FAILURE.
type PickResult struct {
	SubConn SubConn
	// Drop is not read by the Channel: tryPick fails every successful pick
	// with a nil SubConn as a drop, whatever Drop says. "No SubConn chosen
	// yet" is signalled with ErrNoSubConnAvailable instead.
	Drop bool
}

// ErrNoSubConnAvailable is returned by Picker.Pick to request that the
// call be queued (spec's PickResult.QUEUE).
var ErrNoSubConnAvailable = errors.New("balancer: no SubConn is available")

// ErrTransientFailure is a default TRANSIENT_FAILURE error a Picker may
// return; most Pickers wrap a more specific *status.Status instead.
var ErrTransientFailure = errors.New("balancer: last connection attempt failed")

// ErrBadResolverState is returned by UpdateClientConnState to indicate
// the resolver.State was unusable (e.g. zero addresses); the resolving
// load balancer wrapper surfaces this to the resolver via
// resolver.ClientConn.UpdateState's return value.
var ErrBadResolverState = errors.New("balancer: bad resolver state")

// Picker is the pure function described in spec §4: a PickResult for
// every call, with no side effects (spec §8: "P.pick(r) is a total pure
// function (no side effects)").
type Picker interface {
	Pick(info PickInfo) (PickResult, error)
}

// State is what a Balancer reports to its ClientConn on every change,
// pairing the new aggregate connectivity state with the Picker that
// should be used while the channel is in that state.
type State struct {
	ConnectivityState connectivity.State
	Picker            Picker
}

// ClientConnState is what the channel pushes into a Balancer on every
// resolver update (after the resolving load balancer's service-config
// selection algorithm has picked the relevant config for the active
// policy), per spec §4.6.
type ClientConnState struct {
	ResolverState  resolver.State
	BalancerConfig serviceconfig.LoadBalancingConfig
}

// ClientConn is the interface a Balancer implementation uses to create and
// manage SubConns and publish State, mirroring balancer.ClientConn.
type ClientConn interface {
	NewSubConn([]resolver.Address, NewSubConnOptions) (SubConn, error)
	UpdateState(State)
	ResolveNow(resolver.ResolveNowOptions)
	Target() string
}

// BuildOptions carries balancer construction parameters from the channel.
type BuildOptions struct {
	Target resolver.Target
}

// Balancer implements spec §4's LoadBalancer polymorphism: the capability
// set {updateAddressList, exitIdle, resetBackoff, destroy} plus the
// SubConn-state feedback loop.
type Balancer interface {
	// UpdateClientConnState is spec's "updateAddressList", generalized to
	// also carry the balancer's own parsed config.
	UpdateClientConnState(ClientConnState) error
	// ResolverError notifies the Balancer that the resolver reported a
	// failure with no usable State.
	ResolverError(error)
	// UpdateSubConnState notifies the Balancer of a SubConn's new state.
	// Balancers that register a StateListener per SubConn (the norm,
	// following the teacher's current design) need not implement this;
	// it exists for Balancer implementations built before per-SubConn
	// listeners.
	UpdateSubConnState(SubConn, SubConnState)
	// Close is spec's "destroy": unref all SubConns, detach all listeners.
	Close()
	// ExitIdle is spec's "exitIdle": nudge every idle SubConn to connect.
	ExitIdle()
}

// ConfigParser is implemented by a Builder whose balancer accepts
// per-policy configuration from a service config's loadBalancingConfig
// entry.
type ConfigParser interface {
	ParseConfig(config []byte) (serviceconfig.LoadBalancingConfig, error)
}

// Builder creates a Balancer for a given name.
type Builder interface {
	Build(cc ClientConn, opts BuildOptions) Balancer
	Name() string
}

var (
	mu   sync.RWMutex
	regs = map[string]Builder{}
)

// Register registers b under b.Name(), overwriting any prior registration.
func Register(b Builder) {
	mu.Lock()
	defer mu.Unlock()
	regs[b.Name()] = b
}

// Get returns the Builder registered for name, or nil.
func Get(name string) Builder {
	mu.RLock()
	defer mu.RUnlock()
	return regs[name]
}

// AggregateState folds the connectivity states of a set of children
// (SubConns or child Balancers) into a single state, applying spec §4.5's
// rule uniformly: "READY if any child is READY; else CONNECTING if any is
// CONNECTING; else IDLE if any is IDLE; else TRANSIENT_FAILURE."
func AggregateState(children []connectivity.State) connectivity.State {
	var sawConnecting, sawIdle bool
	for _, s := range children {
		switch s {
		case connectivity.Ready:
			return connectivity.Ready
		case connectivity.Connecting:
			sawConnecting = true
		case connectivity.Idle:
			sawIdle = true
		}
	}
	switch {
	case sawConnecting:
		return connectivity.Connecting
	case sawIdle:
		return connectivity.Idle
	default:
		return connectivity.TransientFailure
	}
}

// String is used by Picker implementations' debug logging.
func (p PickInfo) String() string {
	return fmt.Sprintf("method=%s", p.FullMethod)
}
