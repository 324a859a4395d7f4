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

// Package wrr contains the interface and an EDF-based implementation of
// weighted round robin selection, mirroring
// google.golang.org/grpc/internal/wrr.
package wrr

import (
	"sort"
	"sync"
)

// WRR selects among a weighted set of items, approximating proportional
// selection frequency to each item's weight.
type WRR interface {
	// Add adds an item with the given weight; weight must be positive.
	Add(item any, weight int64)
	// Next returns the next selected item.
	Next() any
}

// NewEDF returns a WRR using earliest-deadline-first scheduling: every
// item has a "deadline" of 1/weight that advances each time it is picked,
// and Next always returns the item with the smallest current deadline.
// This spreads selections across low-weight items instead of clustering
// high-weight ones, the same tradeoff the teacher's internal/wrr makes
// relative to a naive cumulative-weight random pick.
func NewEDF() WRR {
	return &edf{}
}

type edfItem struct {
	item     any
	weight   int64
	deadline float64
}

type edf struct {
	mu    sync.Mutex
	items []*edfItem
	now   float64
}

func (e *edf) Add(item any, weight int64) {
	if weight <= 0 {
		weight = 1
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.items = append(e.items, &edfItem{item: item, weight: weight, deadline: e.now + 1.0/float64(weight)})
}

func (e *edf) Next() any {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.items) == 0 {
		return nil
	}
	sort.Slice(e.items, func(i, j int) bool { return e.items[i].deadline < e.items[j].deadline })
	next := e.items[0]
	e.now = next.deadline
	next.deadline = e.now + 1.0/float64(next.weight)
	return next.item
}
