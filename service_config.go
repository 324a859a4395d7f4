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
	"encoding/json"
	"fmt"

	"github.com/corerpc/corerpc/serviceconfig"
)

// ServiceConfig is the parsed form of spec §3's service-config document:
// an ordered list of load-balancing policy candidates plus per-method
// overrides. corerpc does not interpret methodConfig entries itself (no
// retry/hedging policy is in scope) but preserves them for filters that
// consult per-method settings.
type ServiceConfig struct {
	LoadBalancingConfig []map[string]json.RawMessage `json:"loadBalancingConfig"`
	MethodConfig        []MethodConfig               `json:"methodConfig"`

	rawJSON string
}

func (*ServiceConfig) isServiceConfig() {}

// MethodConfig is one entry of a ServiceConfig's per-method overrides.
type MethodConfig struct {
	Name           []MethodName `json:"name"`
	WaitForReady   *bool        `json:"waitForReady"`
	TimeoutSeconds *float64     `json:"timeout"`
}

// MethodName selects the RPCs a MethodConfig entry applies to; an empty
// Method applies to every method of Service.
type MethodName struct {
	Service string `json:"service"`
	Method  string `json:"method"`
}

// parseServiceConfig validates and parses scJSON into a ServiceConfig,
// returning a serviceconfig.ParseResult the way resolver.ClientConn's
// ParseServiceConfig contract requires.
func parseServiceConfig(scJSON string) *serviceconfig.ParseResult {
	var sc ServiceConfig
	if err := json.Unmarshal([]byte(scJSON), &sc); err != nil {
		return &serviceconfig.ParseResult{Err: fmt.Errorf("corerpc: invalid service config: %w", err)}
	}
	for _, entry := range sc.LoadBalancingConfig {
		if len(entry) != 1 {
			return &serviceconfig.ParseResult{Err: fmt.Errorf("corerpc: each loadBalancingConfig entry must name exactly one policy")}
		}
	}
	sc.rawJSON = scJSON
	return &serviceconfig.ParseResult{Config: &sc}
}

// firstRegisteredPolicy returns the name of the first loadBalancingConfig
// entry whose policy is registered, and whether the config named any
// policy at all — used by ResolvingLoadBalancer's selection algorithm
// (spec §4.6): "if none [is registered], use pick_first... if the config
// listed policies but none is registered, surface UNAVAILABLE".
func firstRegisteredPolicy(sc *ServiceConfig, isRegistered func(name string) bool) (name string, listedAny bool) {
	if sc == nil {
		return "", false
	}
	for _, entry := range sc.LoadBalancingConfig {
		for policyName := range entry {
			listedAny = true
			if isRegistered(policyName) {
				return policyName, true
			}
		}
	}
	return "", listedAny
}

// methodConfigFor finds the most specific MethodConfig entry naming
// method (formatted "/service/method"), or nil.
func methodConfigFor(sc *ServiceConfig, method string) *MethodConfig {
	if sc == nil {
		return nil
	}
	service, m := splitMethod(method)
	var wildcard *MethodConfig
	for i := range sc.MethodConfig {
		mc := &sc.MethodConfig[i]
		for _, n := range mc.Name {
			if n.Service != service {
				continue
			}
			if n.Method == m {
				return mc
			}
			if n.Method == "" {
				wildcard = mc
			}
		}
	}
	return wildcard
}

func splitMethod(method string) (service, m string) {
	method = trimLeadingSlash(method)
	for i := 0; i < len(method); i++ {
		if method[i] == '/' {
			return method[:i], method[i+1:]
		}
	}
	return method, ""
}

func trimLeadingSlash(s string) string {
	if len(s) > 0 && s[0] == '/' {
		return s[1:]
	}
	return s
}
