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
	"sync"
	"time"

	"github.com/corerpc/corerpc/codes"
	"github.com/corerpc/corerpc/status"
)

// defaultIdleTimeout mirrors grpc-go's ClientConn default: a channel with
// no RPC activity for this long tears down its ResolvingLoadBalancer and
// re-enters IDLE, per SPEC_FULL §12.
const defaultIdleTimeout = 30 * time.Minute

// idlenessEnforcer is the functionality idlenessManager needs from
// Channel, split out the way the teacher splits idlenessManager from
// ClientConn so the manager can be unit-tested against a fake.
type idlenessEnforcer interface {
	enterIdleMode() error
	exitIdleMode() error
}

// idlenessManager tracks RPC activity on a Channel and instructs it to
// enter or exit idle mode, adapted from the teacher's idle.go onto
// corerpc's Channel/ResolvingLoadBalancer split instead of ClientConn's
// resolver/balancer wrappers.
type idlenessManager struct {
	enforcer   idlenessEnforcer
	timeout    time.Duration
	isDisabled bool

	mu                        sync.Mutex
	activeCalls               int
	activeSinceLastTimerCheck bool
	lastCallEndTime           time.Time
	isIdle                    bool
	timer                     *time.Timer
}

func newIdlenessManager(enforcer idlenessEnforcer, timeout time.Duration) *idlenessManager {
	if timeout <= 0 {
		return &idlenessManager{isDisabled: true}
	}
	m := &idlenessManager{enforcer: enforcer, timeout: timeout}
	m.timer = time.AfterFunc(timeout, m.handleIdleTimeout)
	return m
}

func (m *idlenessManager) handleIdleTimeout() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.activeCalls > 0 {
		m.timer.Reset(m.timeout)
		return
	}
	if m.activeSinceLastTimerCheck {
		m.activeSinceLastTimerCheck = false
		wait := m.timeout - time.Since(m.lastCallEndTime)
		if wait < 0 {
			wait = 0
		}
		m.timer.Reset(wait)
		return
	}
	if err := m.enforcer.enterIdleMode(); err != nil {
		return
	}
	m.isIdle = true
}

// onCallBegin is invoked at the start of every RPC; it exits idle mode if
// necessary, per SPEC_FULL §12.
func (m *idlenessManager) onCallBegin() error {
	if m.isDisabled {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.isIdle {
		if err := m.enforcer.exitIdleMode(); err != nil {
			return status.Errorf(codes.Internal, "corerpc: channel failed to exit idle mode: %v", err)
		}
		m.timer = time.AfterFunc(m.timeout, m.handleIdleTimeout)
		m.isIdle = false
	}
	m.activeCalls++
	m.activeSinceLastTimerCheck = true
	return nil
}

// onCallEnd is invoked at the end of every RPC.
func (m *idlenessManager) onCallEnd() {
	if m.isDisabled {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activeCalls--
	m.lastCallEndTime = time.Now()
}

func (m *idlenessManager) close() {
	if m.isDisabled {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timer.Stop()
}
