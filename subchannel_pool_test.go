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
	"testing"

	"github.com/corerpc/corerpc/credentials"
	"github.com/corerpc/corerpc/credentials/insecure"
	"github.com/corerpc/corerpc/resolver"
)

func TestGetOrCreateSubchannelDedupsIdenticalIdentity(t *testing.T) {
	p := NewSubchannelPool()
	creds := credentials.Bundle{Transport: insecure.NewCredentials()}
	addr := resolver.Address{Addr: "10.0.0.1:443"}

	a := p.getOrCreateSubchannel("example.com:443", addr, ChannelOptions{}, creds)
	b := p.getOrCreateSubchannel("example.com:443", addr, ChannelOptions{}, creds)
	if a != b {
		t.Fatal("two requests with identical identity should share one Subchannel")
	}
	if a.ownerRefs != 2 {
		t.Fatalf("ownerRefs = %d, want 2 after two getOrCreateSubchannel calls", a.ownerRefs)
	}
}

func TestGetOrCreateSubchannelDistinctAddressesDontShare(t *testing.T) {
	p := NewSubchannelPool()
	creds := credentials.Bundle{Transport: insecure.NewCredentials()}

	a := p.getOrCreateSubchannel("example.com:443", resolver.Address{Addr: "10.0.0.1:443"}, ChannelOptions{}, creds)
	b := p.getOrCreateSubchannel("example.com:443", resolver.Address{Addr: "10.0.0.2:443"}, ChannelOptions{}, creds)
	if a == b {
		t.Fatal("Subchannels for distinct addresses must not be shared")
	}
}

func TestUnrefUnusedSubchannelsRemovesZeroRefEntries(t *testing.T) {
	p := NewSubchannelPool()
	creds := credentials.Bundle{Transport: insecure.NewCredentials()}
	addr := resolver.Address{Addr: "10.0.0.1:443"}

	sc := p.getOrCreateSubchannel("example.com:443", addr, ChannelOptions{}, creds)
	sc.unref()
	p.unrefUnusedSubchannels()

	p.mu.Lock()
	_, stillPresent := p.entries[poolKey("example.com:443", addr, ChannelOptions{}, creds)]
	p.mu.Unlock()
	if stillPresent {
		t.Fatal("a zero-ref Subchannel should have been removed from the pool")
	}
}

func TestUnrefUnusedSubchannelsKeepsActiveEntries(t *testing.T) {
	p := NewSubchannelPool()
	creds := credentials.Bundle{Transport: insecure.NewCredentials()}
	addr := resolver.Address{Addr: "10.0.0.1:443"}

	p.getOrCreateSubchannel("example.com:443", addr, ChannelOptions{}, creds)
	p.unrefUnusedSubchannels()

	p.mu.Lock()
	_, stillPresent := p.entries[poolKey("example.com:443", addr, ChannelOptions{}, creds)]
	p.mu.Unlock()
	if !stillPresent {
		t.Fatal("an actively-referenced Subchannel should not be removed")
	}
}

func TestPoolKeyStableAcrossOptionOrdering(t *testing.T) {
	creds := credentials.Bundle{Transport: insecure.NewCredentials()}
	addr := resolver.Address{Addr: "10.0.0.1:443"}
	a := poolKey("example.com:443", addr, ChannelOptions{"a": "1", "b": "2"}, creds)
	b := poolKey("example.com:443", addr, ChannelOptions{"b": "2", "a": "1"}, creds)
	if a != b {
		t.Fatalf("poolKey should not depend on map iteration order: got %q and %q", a, b)
	}
}
