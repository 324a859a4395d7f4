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

// Package dns implements the "dns" resolver scheme, per spec §4.2: it
// resolves a hostname target to a changing set of addresses via A/AAAA
// lookups and surfaces an optional TXT-encoded service config, mirroring
// google.golang.org/grpc's resolver/dns and internal/resolver/dns.
package dns

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/corerpc/corerpc/chanlog"
	"github.com/corerpc/corerpc/codes"
	"github.com/corerpc/corerpc/resolver"
	"github.com/corerpc/corerpc/serviceconfig"
	"github.com/corerpc/corerpc/status"
)

const (
	defaultPort = "443"

	// defaultFreq is how often the resolver re-resolves in the absence of
	// an explicit ResolveNow, mirroring grpc-go's 30-minute DNS poll.
	defaultFreq = 30 * time.Minute

	txtPrefix = "grpc_config="
)

// MinResolutionInterval bounds how often successive ResolveNow calls can
// trigger an actual lookup, the way grpc-go throttles resolver churn from
// a flapping backend. Exported (like the teacher's internal knob) so tests
// can shrink it.
var MinResolutionInterval = 30 * time.Second

// ipv6Capable reports whether the runtime can dial literal IPv6
// addresses. Spec §4.2 step 4: "a runtime capability predicate may
// suppress IPv6 results on platforms lacking literal-IPv6 support."
// Overridable by tests.
var ipv6Capable = func() bool {
	c, err := net.Dial("udp6", "[::1]:1")
	if err != nil {
		return false
	}
	c.Close()
	return true
}

var logger = chanlog.Component("dns-resolver")

func init() {
	resolver.Register(&dnsBuilder{})
}

type dnsBuilder struct{}

func (*dnsBuilder) Scheme() string { return "dns" }

func (b *dnsBuilder) Build(target resolver.Target, cc resolver.ClientConn, opts resolver.BuildOptions) (resolver.Resolver, error) {
	host, port, err := parseTarget(target.Endpoint())
	if err != nil {
		return nil, err
	}

	if ip := net.ParseIP(host); ip != nil {
		addr, ok := formatIP(host)
		if !ok {
			return nil, fmt.Errorf("dns: failed to format IP literal %q", host)
		}
		r := &ipResolver{}
		// Literal targets resolve once, synchronously from the caller's
		// point of view, but the UpdateState callback must still run
		// off of Build so the caller's ClientConn is fully constructed
		// before it is invoked.
		go func() {
			cc.UpdateState(resolver.State{Addresses: []resolver.Address{{Addr: addr + ":" + port}}})
		}()
		return r, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &dnsWatcher{
		cc:                   cc,
		host:                 host,
		port:                 port,
		ctx:                  ctx,
		cancel:               cancel,
		disableServiceConfig: opts.DisableServiceConfig,
		resolveNow:           make(chan struct{}, 1),
		percentage:           rand.New(rand.NewSource(time.Now().UnixNano())).Intn(100),
		logger:               logger,
	}
	w.wg.Add(1)
	go w.watch()
	w.resolveNow <- struct{}{}
	return w, nil
}

// ipResolver backs a literal-IP target: resolution happened once at Build
// time and never changes, per spec §4.2 step 2.
type ipResolver struct{}

func (*ipResolver) ResolveNow(resolver.ResolveNowOptions) {}
func (*ipResolver) Close()                                {}

// dnsWatcher drives repeated A/AAAA + TXT resolution of a hostname
// target, per spec §4.2 steps 3-7.
type dnsWatcher struct {
	cc                   resolver.ClientConn
	host, port           string
	ctx                  context.Context
	cancel               context.CancelFunc
	disableServiceConfig bool
	resolveNow           chan struct{}
	wg                   sync.WaitGroup
	logger               *chanlog.PrefixLogger

	// percentage is drawn once, at construction, and used for every TXT
	// service-config selection this resolver performs — "selection must
	// be stable for the lifetime of this resolver" (spec §4.2 step 6).
	percentage int

	lastResolveAt time.Time
}

func (w *dnsWatcher) ResolveNow(resolver.ResolveNowOptions) {
	if !w.lastResolveAt.IsZero() && time.Since(w.lastResolveAt) < MinResolutionInterval {
		return
	}
	select {
	case w.resolveNow <- struct{}{}:
	default:
		// A resolution is already in flight or queued: no-op, per spec
		// §4.2 ("Idempotent: while a resolution is in flight,
		// updateResolution is a no-op").
	}
}

func (w *dnsWatcher) Close() {
	w.cancel()
	w.wg.Wait()
}

func (w *dnsWatcher) watch() {
	defer w.wg.Done()
	t := time.NewTimer(0)
	t.Stop()
	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.resolveNow:
		case <-t.C:
		}
		w.lastResolveAt = time.Now()
		w.lookup()
		t.Reset(defaultFreq)
	}
}

func (w *dnsWatcher) lookup() {
	var (
		ip4s, ip6s []string
		txts       []string
		ip4Err     error
		ip6Err     error
		txtErr     error
	)

	g, ctx := errgroup.WithContext(w.ctx)
	g.Go(func() error {
		addrs, err := net.DefaultResolver.LookupIP(ctx, "ip4", w.host)
		if err != nil {
			ip4Err = err
			return nil
		}
		for _, a := range addrs {
			ip4s = append(ip4s, a.String())
		}
		return nil
	})
	g.Go(func() error {
		if !ipv6Capable() {
			return nil
		}
		addrs, err := net.DefaultResolver.LookupIP(ctx, "ip6", w.host)
		if err != nil {
			ip6Err = err
			return nil
		}
		for _, a := range addrs {
			ip6s = append(ip6s, a.String())
		}
		return nil
	})
	if !w.disableServiceConfig {
		g.Go(func() error {
			recs, err := net.DefaultResolver.LookupTXT(ctx, w.host)
			if err != nil {
				txtErr = err
				return nil
			}
			txts = recs
			return nil
		})
	}
	g.Wait()

	addrs := interleave(ip4s, ip6s)
	if len(addrs) == 0 {
		w.logger.Warningf("no address records for %q (ip4: %v, ip6: %v)", w.host, ip4Err, ip6Err)
		w.cc.ReportError(status.Errorf(codes.Unavailable, "Name resolution failed for target %s", w.host))
		return
	}

	resolverAddrs := make([]resolver.Address, len(addrs))
	for i, a := range addrs {
		resolverAddrs[i] = resolver.Address{Addr: a + ":" + w.port}
	}
	state := resolver.State{Addresses: resolverAddrs}

	if !w.disableServiceConfig {
		state.ServiceConfig = w.buildServiceConfigResult(txts, txtErr)
	}

	if err := w.cc.UpdateState(state); err != nil {
		w.logger.Warningf("UpdateState rejected: %v; will re-resolve", err)
		w.ResolveNow(resolver.ResolveNowOptions{})
	}
}

func (w *dnsWatcher) buildServiceConfigResult(txts []string, txtErr error) *serviceconfig.ParseResult {
	if txtErr != nil {
		// spec §4.2 step 7: "If TXT failed, emit success with
		// serviceConfig=null, serviceConfigError=UNAVAILABLE(...)".
		return &serviceconfig.ParseResult{Err: status.Error(codes.Unavailable, "TXT query failed")}
	}
	raw := canonicalizeTXT(txts)
	if raw == "" {
		return nil
	}
	scJSON, err := w.choose(raw)
	if err != nil {
		return &serviceconfig.ParseResult{Err: err}
	}
	if scJSON == "" {
		return nil
	}
	return w.cc.ParseServiceConfig(scJSON)
}

// choice is one element of the TXT "grpc_config=" JSON array, per the
// grpc-go TXT service-config record format.
type choice struct {
	ServiceConfig json.RawMessage `json:"serviceConfig"`
	Percentage    *int            `json:"percentage"`
}

// choose selects the service config JSON from raw (the concatenated
// "grpc_config=" payload) using the resolver's stable percentage draw,
// per spec §4.2 step 6.
func (w *dnsWatcher) choose(raw string) (string, error) {
	var choices []choice
	if err := json.Unmarshal([]byte(raw), &choices); err != nil {
		return "", fmt.Errorf("dns: invalid TXT service config record: %w", err)
	}
	for _, c := range choices {
		if c.Percentage != nil && w.percentage >= *c.Percentage {
			continue
		}
		return string(c.ServiceConfig), nil
	}
	return "", nil
}

// canonicalizeTXT concatenates TXT record strings and strips the
// "grpc_config=" marker, returning "" if no record matches.
func canonicalizeTXT(txts []string) string {
	var b strings.Builder
	for _, t := range txts {
		b.WriteString(t)
	}
	joined := b.String()
	if !strings.HasPrefix(joined, txtPrefix) {
		return ""
	}
	return strings.TrimPrefix(joined, txtPrefix)
}

// interleave merges ip4s and ip6s in A-first round-robin order, per spec
// §4.2 step 4 and the boundary example in §8: A=[a1,a2], AAAA=[b1] →
// [a1, b1, a2].
func interleave(ip4s, ip6s []string) []string {
	out := make([]string, 0, len(ip4s)+len(ip6s))
	for i := 0; i < len(ip4s) || i < len(ip6s); i++ {
		if i < len(ip4s) {
			addr, ok := formatIP(ip4s[i])
			if ok {
				out = append(out, addr)
			}
		}
		if i < len(ip6s) {
			addr, ok := formatIP(ip6s[i])
			if ok {
				out = append(out, addr)
			}
		}
	}
	return out
}

// formatIP returns addr unchanged for IPv4, or bracket-wrapped for IPv6;
// ok is false if addr does not parse as an IP.
func formatIP(addr string) (string, bool) {
	ip := net.ParseIP(addr)
	if ip == nil {
		return "", false
	}
	if ip.To4() != nil {
		return addr, true
	}
	return "[" + addr + "]", true
}

// parseTarget splits a resolver endpoint into host and port, applying
// defaultPort when none is given, per spec §6's target grammar.
func parseTarget(endpoint string) (host, port string, err error) {
	if endpoint == "" {
		return "", "", fmt.Errorf("dns: missing address")
	}
	if net.ParseIP(endpoint) != nil {
		return endpoint, defaultPort, nil
	}
	if h, p, err := net.SplitHostPort(endpoint); err == nil {
		if h == "" {
			h = "localhost"
		}
		if p == "" {
			p = defaultPort
		}
		return h, p, nil
	}
	if h, p, err := net.SplitHostPort(endpoint + ":" + defaultPort); err == nil {
		return h, p, nil
	}
	return "", "", fmt.Errorf("dns: invalid target address %q", endpoint)
}
