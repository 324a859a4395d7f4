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

// Package passthrough registers the "passthrough" resolver scheme, which
// reports the target's endpoint as the sole address without performing any
// lookup, per spec §4.2's description of the default-less-resolution
// scheme a caller uses when it already has a dialable address.
package passthrough

import (
	"github.com/corerpc/corerpc/resolver"
)

const scheme = "passthrough"

type passthroughBuilder struct{}

func (*passthroughBuilder) Build(target resolver.Target, cc resolver.ClientConn, _ resolver.BuildOptions) (resolver.Resolver, error) {
	if err := cc.UpdateState(resolver.State{Addresses: []resolver.Address{{Addr: target.Endpoint()}}}); err != nil {
		return nil, err
	}
	return passthroughResolver{}, nil
}

func (*passthroughBuilder) Scheme() string { return scheme }

type passthroughResolver struct{}

func (passthroughResolver) ResolveNow(resolver.ResolveNowOptions) {}
func (passthroughResolver) Close()                                {}

func init() {
	resolver.Register(&passthroughBuilder{})
}
