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

package wrr

import "testing"

func TestEDFDistributesProportionallyToWeight(t *testing.T) {
	w := NewEDF()
	w.Add("a", 1)
	w.Add("b", 3)

	counts := map[any]int{}
	const n = 400
	for i := 0; i < n; i++ {
		counts[w.Next()]++
	}
	// "b" has 3x the weight of "a"; allow slack for EDF's scheduling order.
	if counts["b"] < counts["a"]*2 {
		t.Fatalf("counts = %v, want b selected roughly 3x as often as a", counts)
	}
	if counts["a"]+counts["b"] != n {
		t.Fatalf("total picks = %d, want %d", counts["a"]+counts["b"], n)
	}
}

func TestEDFSingleItemAlwaysSelected(t *testing.T) {
	w := NewEDF()
	w.Add("only", 5)
	for i := 0; i < 10; i++ {
		if got := w.Next(); got != "only" {
			t.Fatalf("Next() = %v, want %q", got, "only")
		}
	}
}

func TestEDFEmptyReturnsNil(t *testing.T) {
	w := NewEDF()
	if got := w.Next(); got != nil {
		t.Fatalf("Next() on an empty WRR = %v, want nil", got)
	}
}

func TestEDFNonPositiveWeightTreatedAsOne(t *testing.T) {
	w := NewEDF()
	w.Add("a", 0)
	w.Add("b", -1)
	seen := map[any]bool{}
	for i := 0; i < 4; i++ {
		seen[w.Next()] = true
	}
	if !seen["a"] || !seen["b"] {
		t.Fatalf("expected both items to be selected at least once, saw %v", seen)
	}
}
