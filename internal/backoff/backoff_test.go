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

package backoff

import (
	"testing"
	"time"

	"github.com/corerpc/corerpc/backoff"
)

func TestStrategyBoundsAndGrowth(t *testing.T) {
	cfg := backoff.DefaultConfig
	s := Strategy{Config: cfg}

	last := time.Duration(0)
	for retries := 0; retries < 8; retries++ {
		d := s.Backoff(retries)
		min := time.Duration(float64(cfg.BaseDelay) * (1 - cfg.Jitter))
		if retries == 0 {
			if d < min {
				t.Fatalf("retries=0: got %v, want >= %v", d, min)
			}
		}
		max := time.Duration(float64(cfg.MaxDelay) * (1 + cfg.Jitter))
		if d > max {
			t.Fatalf("retries=%d: got %v, want <= %v", retries, d, max)
		}
		if retries > 0 && d < last/2 {
			t.Fatalf("retries=%d: backoff %v unexpectedly smaller than half of previous %v", retries, d, last)
		}
		last = d
	}
}

func TestStrategySaturatesAtMaxDelay(t *testing.T) {
	cfg := backoff.Config{BaseDelay: time.Second, Multiplier: 1.6, Jitter: 0, MaxDelay: 10 * time.Second}
	s := Strategy{Config: cfg}
	d := s.Backoff(100)
	if d != cfg.MaxDelay {
		t.Fatalf("got %v, want exactly MaxDelay %v with zero jitter", d, cfg.MaxDelay)
	}
}

func TestTimerResetDoesNotCancelPending(t *testing.T) {
	timer := New(backoff.Config{BaseDelay: 10 * time.Millisecond, Multiplier: 1.6, Jitter: 0, MaxDelay: time.Second})
	fired := make(chan struct{})
	timer.RunOnce(func() { close(fired) })
	timer.Reset()
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("callback never fired after Reset")
	}
}

func TestTimerStopCancelsPending(t *testing.T) {
	timer := New(backoff.Config{BaseDelay: time.Second, Multiplier: 1.6, Jitter: 0, MaxDelay: time.Minute})
	fired := make(chan struct{})
	timer.RunOnce(func() { close(fired) })
	timer.Stop()
	select {
	case <-fired:
		t.Fatal("callback fired despite Stop")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestIsRunning(t *testing.T) {
	timer := New(backoff.Config{BaseDelay: 20 * time.Millisecond, Multiplier: 1.6, Jitter: 0, MaxDelay: time.Second})
	if timer.IsRunning() {
		t.Fatal("timer should not be running before RunOnce")
	}
	done := make(chan struct{})
	timer.RunOnce(func() { close(done) })
	if !timer.IsRunning() {
		t.Fatal("timer should be running immediately after RunOnce")
	}
	<-done
	// Give the internal flag time to flip after the callback runs.
	time.Sleep(10 * time.Millisecond)
	if timer.IsRunning() {
		t.Fatal("timer should not be running after it has fired")
	}
}
