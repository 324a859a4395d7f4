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
	"fmt"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/corerpc/corerpc/credentials"
	"github.com/corerpc/corerpc/resolver"
)

// sweepInterval is the periodic cleanup cadence from spec §4.4.
const sweepInterval = 10 * time.Second

// SubchannelPool deduplicates Subchannels with identical
// (channelTarget, address, options, credentials) identity, per spec §4.4.
// The zero value is not usable; use NewSubchannelPool or DefaultPool.
type SubchannelPool struct {
	mu      sync.Mutex
	entries map[string]*Subchannel
	sweepOn bool
	stop    chan struct{}
}

// NewSubchannelPool returns an empty, independently-swept pool — the
// "per-channel pool" mode of spec §4.4.
func NewSubchannelPool() *SubchannelPool {
	return &SubchannelPool{entries: map[string]*Subchannel{}}
}

// DefaultPool is the singleton process-wide pool, the other of spec §4.4's
// two pool modes.
var DefaultPool = NewSubchannelPool()

func poolKey(target string, addr resolver.Address, opts ChannelOptions, creds credentials.Bundle) string {
	h := xxhash.New()
	fmt.Fprintf(h, "%s|%s|%s|%T", target, addr.Addr, opts.normalizedKey(), creds.Transport)
	return fmt.Sprintf("%x", h.Sum64())
}

// getOrCreateSubchannel returns the existing entry for this identity,
// taking a ref on behalf of the caller, or creates and stores a new one.
// Mutually exclusive with the periodic sweep per spec §9's Open Question
// resolution (see DESIGN.md).
func (p *SubchannelPool) getOrCreateSubchannel(target string, addr resolver.Address, opts ChannelOptions, creds credentials.Bundle) *Subchannel {
	key := poolKey(target, addr, opts, creds)

	p.mu.Lock()
	defer p.mu.Unlock()
	if sc, ok := p.entries[key]; ok {
		sc.ref()
		return sc
	}
	sc := newSubchannel(target, addr, opts, creds)
	p.entries[key] = sc
	sc.ref()
	p.ensureSweepLocked()
	return sc
}

// ensureSweepLocked starts the periodic sweep goroutine if the pool is
// non-empty and it is not already running. p.mu must be held.
func (p *SubchannelPool) ensureSweepLocked() {
	if p.sweepOn || len(p.entries) == 0 {
		return
	}
	p.sweepOn = true
	p.stop = make(chan struct{})
	go p.sweepLoop(p.stop)
}

func (p *SubchannelPool) sweepLoop(stop chan struct{}) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if p.sweepOnce() {
				return
			}
		}
	}
}

// sweepOnce removes zero-refcount entries and reports whether the pool is
// now empty (in which case the periodic task should halt, per spec §4.4).
func (p *SubchannelPool) sweepOnce() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for key, sc := range p.entries {
		sc.mu.Lock()
		refs := sc.ownerRefs
		sc.mu.Unlock()
		if refs <= 0 {
			delete(p.entries, key)
		}
	}
	if len(p.entries) == 0 {
		p.sweepOn = false
		return true
	}
	return false
}

// unrefUnusedSubchannels forces an immediate sweep, halting the periodic
// task once the pool is empty, per spec §4.4.
func (p *SubchannelPool) unrefUnusedSubchannels() {
	empty := p.sweepOnce()
	if empty {
		p.mu.Lock()
		stop := p.stop
		p.stop = nil
		p.mu.Unlock()
		if stop != nil {
			close(stop)
		}
	}
}
