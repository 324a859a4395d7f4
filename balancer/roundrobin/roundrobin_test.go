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

package roundrobin

import (
	"testing"

	"github.com/corerpc/corerpc/balancer"
	"github.com/corerpc/corerpc/resolver"
)

type fakeSubConn struct{ balancer.SubConn }

func TestPickerBuildEmptyReturnsQueue(t *testing.T) {
	p := (&pickerBuilder{}).Build(map[resolver.Address]balancer.SubConn{})
	_, err := p.Pick(balancer.PickInfo{})
	if err != balancer.ErrNoSubConnAvailable {
		t.Fatalf("got %v, want balancer.ErrNoSubConnAvailable", err)
	}
}

func TestPickerCyclesThroughEveryReadySubConn(t *testing.T) {
	a1, a2, a3 := &fakeSubConn{}, &fakeSubConn{}, &fakeSubConn{}
	ready := map[resolver.Address]balancer.SubConn{
		{Addr: "1.1.1.1:1"}: a1,
		{Addr: "2.2.2.2:2"}: a2,
		{Addr: "3.3.3.3:3"}: a3,
	}
	p := (&pickerBuilder{}).Build(ready)

	seen := map[balancer.SubConn]int{}
	for i := 0; i < 9; i++ {
		res, err := p.Pick(balancer.PickInfo{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		seen[res.SubConn]++
	}
	for _, sc := range []balancer.SubConn{a1, a2, a3} {
		if seen[sc] != 3 {
			t.Errorf("SubConn selected %d times over 9 picks with 3 equal-weight backends, want 3", seen[sc])
		}
	}
}

func TestPickerHonorsWeightAttribute(t *testing.T) {
	light, heavy := &fakeSubConn{}, &fakeSubConn{}
	ready := map[resolver.Address]balancer.SubConn{
		{Addr: "1.1.1.1:1", Attributes: map[string]any{weightAttrKey: int64(1)}}: light,
		{Addr: "2.2.2.2:2", Attributes: map[string]any{weightAttrKey: int64(4)}}: heavy,
	}
	p := (&pickerBuilder{}).Build(ready)

	counts := map[balancer.SubConn]int{}
	for i := 0; i < 200; i++ {
		res, _ := p.Pick(balancer.PickInfo{})
		counts[res.SubConn]++
	}
	if counts[heavy] < counts[light]*2 {
		t.Fatalf("counts = light:%d heavy:%d, want heavy selected substantially more often", counts[light], counts[heavy])
	}
}
