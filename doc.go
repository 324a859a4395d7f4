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

// Package corerpc implements the client-side channel runtime of an RPC
// stack: resolving a target to backend addresses, maintaining pooled HTTP/2
// connections with connectivity state machines and backoff, selecting a
// backend per call through a pluggable load-balancing policy, and
// multiplexing call streams with deadline, credential, status and
// compression filters.
//
// The package is organized the way the teacher this core is grounded on
// organizes google.golang.org/grpc: the root package holds the Channel,
// Subchannel, SubchannelPool, ResolvingLoadBalancer, CallStream and
// FilterStack types; resolver/, balancer/, credentials/, metadata/, codes/,
// status/, connectivity/, backoff/ and keepalive/ hold the pluggable
// contracts those types are built from, each independently importable the
// way grpc-go's own subpackages are.
package corerpc

import (
	_ "github.com/corerpc/corerpc/balancer/pickfirst"
	_ "github.com/corerpc/corerpc/balancer/roundrobin"
	_ "github.com/corerpc/corerpc/resolver/dns"
	_ "github.com/corerpc/corerpc/resolver/passthrough"
)
