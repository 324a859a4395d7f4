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
	"testing"
)

func TestParseServiceConfigRejectsMultiPolicyEntry(t *testing.T) {
	res := parseServiceConfig(`{"loadBalancingConfig":[{"round_robin":{},"pick_first":{}}]}`)
	if res.Err == nil {
		t.Fatal("expected an error for a loadBalancingConfig entry naming two policies")
	}
}

func TestParseServiceConfigRejectsInvalidJSON(t *testing.T) {
	res := parseServiceConfig(`not json`)
	if res.Err == nil {
		t.Fatal("expected an error for invalid JSON")
	}
}

func TestParseServiceConfigValid(t *testing.T) {
	res := parseServiceConfig(`{"loadBalancingConfig":[{"round_robin":{}}],"methodConfig":[{"name":[{"service":"Foo","method":"Bar"}],"waitForReady":true}]}`)
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	sc, ok := res.Config.(*ServiceConfig)
	if !ok {
		t.Fatalf("Config has type %T, want *ServiceConfig", res.Config)
	}
	if len(sc.LoadBalancingConfig) != 1 {
		t.Fatalf("LoadBalancingConfig has %d entries, want 1", len(sc.LoadBalancingConfig))
	}
}

func TestFirstRegisteredPolicyPicksFirstMatch(t *testing.T) {
	sc := &ServiceConfig{LoadBalancingConfig: []map[string]json.RawMessage{
		{"xds_cluster_manager": nil},
		{"round_robin": nil},
	}}
	registered := map[string]bool{"round_robin": true}
	name, listedAny := firstRegisteredPolicy(sc, func(n string) bool { return registered[n] })
	if !listedAny {
		t.Fatal("listedAny = false, want true")
	}
	if name != "round_robin" {
		t.Fatalf("name = %q, want %q", name, "round_robin")
	}
}

func TestFirstRegisteredPolicyNoneRegistered(t *testing.T) {
	sc := &ServiceConfig{LoadBalancingConfig: []map[string]json.RawMessage{
		{"xds_cluster_manager": nil},
	}}
	name, listedAny := firstRegisteredPolicy(sc, func(string) bool { return false })
	if name != "" {
		t.Fatalf("name = %q, want empty", name)
	}
	if !listedAny {
		t.Fatal("listedAny = false, want true since a policy was listed")
	}
}

func TestFirstRegisteredPolicyNilConfig(t *testing.T) {
	name, listedAny := firstRegisteredPolicy(nil, func(string) bool { return true })
	if name != "" || listedAny {
		t.Fatalf("got (%q, %v), want (\"\", false) for a nil ServiceConfig", name, listedAny)
	}
}

func TestMethodConfigForExactThenWildcard(t *testing.T) {
	wantExact := true
	sc := &ServiceConfig{MethodConfig: []MethodConfig{
		{Name: []MethodName{{Service: "Foo", Method: ""}}, WaitForReady: &wantExact},
		{Name: []MethodName{{Service: "Foo", Method: "Bar"}}, TimeoutSeconds: floatPtr(5)},
	}}
	mc := methodConfigFor(sc, "/Foo/Bar")
	if mc == nil || mc.TimeoutSeconds == nil || *mc.TimeoutSeconds != 5 {
		t.Fatalf("expected the exact Foo/Bar entry, got %+v", mc)
	}
	mc = methodConfigFor(sc, "/Foo/Baz")
	if mc == nil || mc.WaitForReady == nil || *mc.WaitForReady != true {
		t.Fatalf("expected the Foo wildcard entry, got %+v", mc)
	}
	if methodConfigFor(sc, "/Other/Baz") != nil {
		t.Fatal("expected no match for an unrelated service")
	}
}

func TestMethodConfigForNilConfig(t *testing.T) {
	if methodConfigFor(nil, "/Foo/Bar") != nil {
		t.Fatal("expected nil for a nil ServiceConfig")
	}
}

func TestSplitMethod(t *testing.T) {
	cases := []struct {
		in      string
		service string
		method  string
	}{
		{"/Foo/Bar", "Foo", "Bar"},
		{"Foo/Bar", "Foo", "Bar"},
		{"/Foo/", "Foo", ""},
		{"Foo", "Foo", ""},
	}
	for _, c := range cases {
		service, method := splitMethod(c.in)
		if service != c.service || method != c.method {
			t.Errorf("splitMethod(%q) = (%q, %q), want (%q, %q)", c.in, service, method, c.service, c.method)
		}
	}
}

func floatPtr(f float64) *float64 { return &f }
