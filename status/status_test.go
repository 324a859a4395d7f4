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

package status

import (
	"errors"
	"testing"

	"github.com/corerpc/corerpc/codes"
	"github.com/corerpc/corerpc/metadata"
)

func TestErrorNilForOK(t *testing.T) {
	if err := Error(codes.OK, "fine"); err != nil {
		t.Fatalf("Error(OK, ...) = %v, want nil", err)
	}
}

func TestErrorRoundTripsThroughFromError(t *testing.T) {
	err := Errorf(codes.Unavailable, "backend %s down", "10.0.0.1:443")
	s, ok := FromError(err)
	if !ok {
		t.Fatal("FromError did not recognize a status-carrying error")
	}
	if s.Code() != codes.Unavailable {
		t.Errorf("Code() = %v, want %v", s.Code(), codes.Unavailable)
	}
	if s.Message() != "backend 10.0.0.1:443 down" {
		t.Errorf("Message() = %q, want %q", s.Message(), "backend 10.0.0.1:443 down")
	}
}

func TestFromErrorNilIsOK(t *testing.T) {
	s, ok := FromError(nil)
	if !ok || s.Code() != codes.OK {
		t.Fatalf("FromError(nil) = (%v, %v), want (OK, true)", s.Code(), ok)
	}
}

func TestFromErrorOpaqueErrorIsUnknown(t *testing.T) {
	s, ok := FromError(errors.New("boom"))
	if ok {
		t.Fatal("FromError on a plain error reported ok=true")
	}
	if s.Code() != codes.Unknown {
		t.Errorf("Code() = %v, want %v", s.Code(), codes.Unknown)
	}
}

func TestCodeHelper(t *testing.T) {
	if Code(nil) != codes.OK {
		t.Errorf("Code(nil) = %v, want OK", Code(nil))
	}
	if Code(Error(codes.NotFound, "x")) != codes.NotFound {
		t.Errorf("Code() mismatch")
	}
}

func TestWithMetadataPreservesCodeAndAttachesMD(t *testing.T) {
	md := metadata.Pairs("retry-after", "5")
	err := WithMetadata(Error(codes.ResourceExhausted, "slow down"), md)
	s := Convert(err)
	if s.Code() != codes.ResourceExhausted {
		t.Errorf("Code() = %v, want %v", s.Code(), codes.ResourceExhausted)
	}
	if got := s.Metadata().Get("retry-after"); len(got) != 1 || got[0] != "5" {
		t.Errorf("Metadata().Get(\"retry-after\") = %v, want [5]", got)
	}
}

func TestErrorIs(t *testing.T) {
	a := Error(codes.Internal, "boom")
	b := Error(codes.Internal, "boom")
	c := Error(codes.Internal, "other")
	if !errors.Is(a, b) {
		t.Error("two errors with identical code/message should be Is-equal")
	}
	if errors.Is(a, c) {
		t.Error("errors with differing messages should not be Is-equal")
	}
}
