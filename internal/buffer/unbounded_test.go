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

package buffer

import (
	"testing"
	"time"
)

func TestUnboundedDeliversInFIFOOrder(t *testing.T) {
	b := NewUnbounded()
	b.Put(1)
	b.Put(2)
	b.Put(3)

	for _, want := range []int{1, 2, 3} {
		select {
		case v := <-b.Get():
			if v.(int) != want {
				t.Fatalf("got %v, want %v", v, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %v", want)
		}
		b.Load()
	}
}

func TestUnboundedGetBlocksUntilPut(t *testing.T) {
	b := NewUnbounded()
	select {
	case v := <-b.Get():
		t.Fatalf("Get() should block with nothing queued, got %v", v)
	case <-time.After(50 * time.Millisecond):
	}

	b.Put("x")
	select {
	case v := <-b.Get():
		if v.(string) != "x" {
			t.Fatalf("got %v, want x", v)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for value after Put")
	}
}

func TestUnboundedLoadWithEmptyBacklogIsNoop(t *testing.T) {
	b := NewUnbounded()
	b.Load() // must not panic with nothing queued
	b.Put("only")
	<-b.Get()
	b.Load()
	b.Load() // second Load with an already-empty backlog must also be a no-op
}

func TestUnboundedPutAfterCloseIsNoop(t *testing.T) {
	b := NewUnbounded()
	b.Close()
	b.Put("dropped") // must not panic sending on the closed channel
	_, ok := <-b.Get()
	if ok {
		t.Fatal("Get() channel should be closed and drained after Close")
	}
}

func TestUnboundedCloseIsIdempotent(t *testing.T) {
	b := NewUnbounded()
	b.Close()
	b.Close() // must not double-close the channel
}
