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

	"github.com/corerpc/corerpc/chanlog"
	"github.com/corerpc/corerpc/resolver"
	"github.com/corerpc/corerpc/serviceconfig"
)

// ccResolverWrapper adapts a ResolvingLoadBalancer to the resolver.Builder
// contract, grounded on the teacher's resolver_conn_wrapper.go
// ccResolverWrapper. Every callback a resolver.Resolver implementation
// makes into this type is funneled onto the owning Channel's
// CallbackSerializer before reaching the ResolvingLoadBalancer, giving the
// single-logical-executor model spec §5 requires.
type ccResolverWrapper struct {
	rlb      *ResolvingLoadBalancer
	resolver resolver.Resolver
	logger   *chanlog.PrefixLogger
}

func newCCResolverWrapper(rlb *ResolvingLoadBalancer) (*ccResolverWrapper, error) {
	b := resolver.Get(rlb.target.Scheme())
	if b == nil {
		return nil, fmt.Errorf("corerpc: no resolver registered for scheme %q", rlb.target.Scheme())
	}
	ccr := &ccResolverWrapper{rlb: rlb}
	ccr.logger = chanlog.NewPrefixLogger(fmt.Sprintf("[resolver-wrapper %p] ", ccr))

	r, err := b.Build(rlb.target, ccr, resolver.BuildOptions{})
	if err != nil {
		return nil, fmt.Errorf("corerpc: building resolver: %w", err)
	}
	ccr.resolver = r
	return ccr, nil
}

func (ccr *ccResolverWrapper) UpdateState(s resolver.State) error {
	errCh := make(chan error, 1)
	ccr.rlb.channel.serializer.Schedule(func(context.Context) {
		errCh <- ccr.rlb.handleResolverState(s)
	})
	return <-errCh
}

func (ccr *ccResolverWrapper) ReportError(err error) {
	ccr.rlb.channel.serializer.Schedule(func(context.Context) {
		ccr.rlb.handleResolverError(err)
	})
}

func (ccr *ccResolverWrapper) ParseServiceConfig(scJSON string) *serviceconfig.ParseResult {
	return parseServiceConfig(scJSON)
}

func (ccr *ccResolverWrapper) resolveNow(o resolver.ResolveNowOptions) {
	ccr.resolver.ResolveNow(o)
}

func (ccr *ccResolverWrapper) close() {
	ccr.resolver.Close()
}
