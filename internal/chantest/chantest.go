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

// Package chantest implements testing helpers for the channel runtime,
// mirroring google.golang.org/grpc/internal/grpctest: a Tester embeddable
// in a test's root struct, and RunSubTests to dispatch every exported
// "Test___" method on it as a subtest with Setup/Teardown bracketing.
package chantest

import (
	"reflect"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"
)

// Interface defines Tester's methods for use by RunSubTests.
type Interface interface {
	Setup(*testing.T)
	Teardown(*testing.T)
}

// Tester is the default Setup/Teardown implementation: Teardown polls
// runtime.NumGoroutine() until it returns to the Setup-time baseline,
// catching goroutine leaks in Subchannel/CallStream teardown the way the
// teacher's leakcheck.CheckGoroutines does. Baselines are keyed by test
// name rather than stored as a field, since x is typically embedded by
// value when passed to RunSubTests.
type Tester struct{}

var baselines sync.Map // map[string]int

// Setup records the current goroutine count as the post-test baseline.
func (Tester) Setup(t *testing.T) {
	baselines.Store(t.Name(), runtime.NumGoroutine())
}

// Teardown fails t if the goroutine count has not returned to the
// Setup-time baseline within a bounded poll.
func (Tester) Teardown(t *testing.T) {
	v, ok := baselines.Load(t.Name())
	if !ok {
		return
	}
	baseline := v.(int)
	deadline := time.Now().Add(2 * time.Second)
	var last int
	for time.Now().Before(deadline) {
		last = runtime.NumGoroutine()
		if last <= baseline {
			baselines.Delete(t.Name())
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Errorf("goroutine leak: have %d, want <= %d", last, baseline)
	baselines.Delete(t.Name())
}

func getTestFunc(t *testing.T, xv reflect.Value, name string) func(*testing.T) {
	if m := xv.MethodByName(name); m.IsValid() {
		if f, ok := m.Interface().(func(*testing.T)); ok {
			return f
		}
		t.Fatalf("chantest: function %v has unexpected signature (%T)", name, m.Interface())
	}
	return func(*testing.T) {}
}

// RunSubTests runs every exported "Test___" method of x as a subtest of
// t, bracketed by x.Setup/x.Teardown.
func RunSubTests(t *testing.T, x Interface) {
	xt := reflect.TypeOf(x)
	xv := reflect.ValueOf(x)

	for i := 0; i < xt.NumMethod(); i++ {
		methodName := xt.Method(i).Name
		if !strings.HasPrefix(methodName, "Test") {
			continue
		}
		tfunc := getTestFunc(t, xv, methodName)
		t.Run(strings.TrimPrefix(methodName, "Test"), func(t *testing.T) {
			x.Setup(t)
			t.Cleanup(func() { x.Teardown(t) })
			tfunc(t)
		})
	}
}
