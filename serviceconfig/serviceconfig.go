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

// Package serviceconfig defines the parsed representation of a resolver's
// service config document, mirroring
// google.golang.org/grpc/serviceconfig.
package serviceconfig

// Config is the marker interface implemented by a parsed, concrete
// service config (corerpc.ServiceConfig, defined alongside the resolving
// load balancer that consumes it, implements this).
type Config interface {
	isServiceConfig()
}

// LoadBalancingConfig is the marker interface implemented by a balancer's
// parsed per-policy configuration (spec §3: "loadBalancingConfig:
// [{policyName: policyConfig}, ...]").
type LoadBalancingConfig interface {
	isLoadBalancingConfig()
}

// ParseResult is the result of parsing a service config document: either
// a Config, or an Err explaining why parsing failed, per spec §3
// ("Validated before use; null means 'unspecified'").
type ParseResult struct {
	Config Config
	Err    error
}
