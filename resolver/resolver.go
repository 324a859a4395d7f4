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

// Package resolver defines the contracts a Resolver implementation
// consumes from, and reports to, the channel runtime: Target parsing,
// Address/State, Builder registration and the ClientConn callback surface,
// mirroring google.golang.org/grpc/resolver.
package resolver

import (
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/corerpc/corerpc/serviceconfig"
)

// Address represents a resolved backend, per spec §3: "ip:port" for IPv4,
// "[ip]:port" for IPv6, carried as an opaque string through the core.
type Address struct {
	// Addr is the wire address, e.g. "10.0.0.1:443" or "[::1]:50051".
	Addr string
	// ServerName overrides the transport-security identity check for this
	// address, when set by the resolver (e.g. an SRV target name).
	ServerName string
	// Attributes carries resolver-defined, opaque per-address data (e.g. a
	// load-balancing weight) consumed by a balancer's picker.
	Attributes map[string]any
	// BalancerAttributes carries data intended for the balancer itself
	// rather than for wire construction, kept distinct from Attributes the
	// way the teacher distinguishes Address.Attributes from
	// Address.BalancerAttributes.
	BalancerAttributes map[string]any
}

// Equal reports whether a and o name the same backend for deduplication
// purposes (spec §4.5: "if the current pick's address is still in the
// list, keep it").
func (a Address) Equal(o Address) bool {
	return a.Addr == o.Addr && a.ServerName == o.ServerName
}

func (a Address) String() string {
	return a.Addr
}

// Target is the parsed form of the user-supplied target string, per spec
// §6's EBNF grammar.
type Target struct {
	// URL holds the parsed target; Scheme, Host (authority) and Path
	// (leading "/" + endpoint) come from it, the same decomposition the
	// teacher's resolver.Target performs.
	URL url.URL
}

// Scheme returns the target's resolver scheme, e.g. "dns" or "passthrough".
func (t Target) Scheme() string { return t.URL.Scheme }

// Endpoint returns the target's post-authority, scheme-qualified path
// (e.g. the "host[:port]" in "dns:///host:port"), with any leading slash
// stripped.
func (t Target) Endpoint() string {
	return strings.TrimPrefix(t.URL.Path, "/")
}

// Authority returns the target's authority segment, e.g. the
// resolver-group name in "dns://authority/host:port".
func (t Target) Authority() string { return t.URL.Host }

func (t Target) String() string { return t.URL.String() }

// ParseTarget parses target per spec §6's EBNF:
//
//	target = [ "dns:" ] [ "//" authority "/" ] host [ ":" port ]
//	       | ipv4 [ ":" port ] | "[" ipv6 "]" [ ":" port ] | ipv6
//
// A target with no recognized "scheme:" prefix, or whose scheme has no
// registered Builder, defaults to the "dns" scheme (the channel's default
// resolver), matching grpc-go's ParseTarget behavior.
func ParseTarget(target string) (Target, error) {
	if target == "" {
		return Target{}, fmt.Errorf("resolver: missing target")
	}
	if u, err := url.Parse(target); err == nil && u.Scheme != "" && Get(u.Scheme) != nil {
		if !strings.HasPrefix(target, u.Scheme+"://") && !strings.HasPrefix(target, u.Scheme+":") {
			// Defensive: url.Parse is lenient about malformed
			// scheme-only strings; require an explicit separator.
			return Target{}, fmt.Errorf("resolver: invalid target %q", target)
		}
		return Target{URL: *u}, nil
	}
	// No recognized scheme: treat the whole string as the endpoint of the
	// default "dns" scheme, matching "[ dns: ] host[:port]" with the
	// bracketed prefix omitted.
	return Target{URL: url.URL{Scheme: "dns", Path: "/" + target}}, nil
}

// Endpoint is a group of addresses presented to a LoadBalancer as a single
// logical backend (used by endpoint-sharding balancers; PickFirst and
// round_robin flatten Endpoints back into a plain Address list, per spec
// §4.5).
type Endpoint struct {
	Addresses  []Address
	Attributes map[string]any
}

// State is what a Resolver reports to the channel on every successful
// resolution, per spec §3: "{addresses, serviceConfig, serviceConfigError}".
type State struct {
	Addresses     []Address
	Endpoints     []Endpoint
	ServiceConfig *serviceconfig.ParseResult
}

// BuildOptions carries resolver construction parameters supplied by the
// channel.
type BuildOptions struct {
	// DisableServiceConfig instructs the resolver (or the wrapper around
	// it) to ignore any service config the resolver discovers.
	DisableServiceConfig bool
}

// ResolveNowOptions modifies the behavior of ClientConn.ResolveNow.
type ResolveNowOptions struct{}

// ClientConn is the interface a Resolver implementation uses to report
// results back to the channel runtime, mirroring spec §4.2's
// onSuccessfulResolution/onError listener contract via an explicit method
// set instead of a single callback struct (so Resolver implementations can
// report addresses, service config and errors independently, exactly as
// grpc-go's resolver.ClientConn does).
type ClientConn interface {
	// UpdateState reports a new resolver State. An error return of
	// ErrBadResolverState asks the resolver to reattempt resolution.
	UpdateState(State) error
	// ReportError reports a resolution failure with no usable State,
	// per spec §4.2 step 5 ("surface UNAVAILABLE...").
	ReportError(error)
	// ParseServiceConfig parses scJSON into a serviceconfig.ParseResult,
	// surfacing any error as ParseResult.Err per spec §3 ("Validated
	// before use").
	ParseServiceConfig(scJSON string) *serviceconfig.ParseResult
}

// Builder creates a Resolver for a given Target.
type Builder interface {
	Build(target Target, cc ClientConn, opts BuildOptions) (Resolver, error)
	Scheme() string
}

// Resolver watches for resolution updates for a Target, reporting them to
// the ClientConn supplied at Build time, per spec §4.2.
type Resolver interface {
	// ResolveNow requests a re-resolution. Per spec §4.2 ("Idempotent:
	// while a resolution is in flight, updateResolution is a no-op"), an
	// implementation must ignore a ResolveNow received while one is
	// already outstanding.
	ResolveNow(ResolveNowOptions)
	// Close releases all resources associated with the Resolver.
	Close()
}

var (
	mu       sync.RWMutex
	builders = map[string]Builder{}
)

// Register registers b under b.Scheme(), overwriting any previous
// registration for the same scheme — the same last-write-wins semantics
// grpc-go's resolver.Register uses, relied on by tests that install a
// manual resolver under the "dns" scheme.
func Register(b Builder) {
	mu.Lock()
	defer mu.Unlock()
	builders[b.Scheme()] = b
}

// Get returns the Builder registered for scheme, or nil.
func Get(scheme string) Builder {
	mu.RLock()
	defer mu.RUnlock()
	return builders[scheme]
}
