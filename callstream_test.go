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

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/hpack"

	"github.com/corerpc/corerpc/codes"
)

func TestFrameMessagePrependsLengthPrefix(t *testing.T) {
	framed := frameMessage([]byte("hello"))
	if len(framed) != 5+5 {
		t.Fatalf("framed length = %d, want 10", len(framed))
	}
	if framed[0] != 0 {
		t.Fatalf("compressed flag = %d, want 0", framed[0])
	}
	if string(framed[5:]) != "hello" {
		t.Fatalf("payload = %q, want %q", framed[5:], "hello")
	}
}

func TestFrameMessageEmptyPayload(t *testing.T) {
	framed := frameMessage(nil)
	if len(framed) != 5 {
		t.Fatalf("framed length = %d, want 5", len(framed))
	}
}

func TestPseudoHeaderValueFindsStatus(t *testing.T) {
	fields := []hpack.HeaderField{{Name: "x-foo", Value: "bar"}, {Name: ":status", Value: "200"}}
	if got := pseudoHeaderValue(fields, ":status"); got != "200" {
		t.Fatalf("pseudoHeaderValue = %q, want 200", got)
	}
}

func TestPseudoHeaderValueAbsent(t *testing.T) {
	if got := pseudoHeaderValue(nil, ":status"); got != "" {
		t.Fatalf("pseudoHeaderValue on nil fields = %q, want empty", got)
	}
}

func TestFieldsToMDSkipsPseudoHeaders(t *testing.T) {
	fields := []hpack.HeaderField{
		{Name: ":status", Value: "200"},
		{Name: "grpc-status", Value: "0"},
		{Name: "x-custom", Value: "v1"},
	}
	md := fieldsToMD(fields)
	if got := md.Get(":status"); len(got) != 0 {
		t.Fatalf("pseudo-header leaked into metadata: %v", got)
	}
	if got := md.Get("grpc-status"); len(got) != 1 || got[0] != "0" {
		t.Fatalf("grpc-status = %v, want [0]", got)
	}
	if got := md.Get("x-custom"); len(got) != 1 || got[0] != "v1" {
		t.Fatalf("x-custom = %v, want [v1]", got)
	}
}

func TestStatusFromHTTPStatusKnownCodes(t *testing.T) {
	cases := map[string]codes.Code{
		"400": codes.Internal,
		"401": codes.Unauthenticated,
		"403": codes.PermissionDenied,
		"404": codes.Unimplemented,
		"503": codes.Unavailable,
	}
	for httpStatus, want := range cases {
		if got := statusFromHTTPStatus(httpStatus); got.Code() != want {
			t.Errorf("statusFromHTTPStatus(%q) = %v, want %v", httpStatus, got.Code(), want)
		}
	}
}

func TestStatusFromHTTPStatusEmptyIsUnknown(t *testing.T) {
	if got := statusFromHTTPStatus(""); got.Code() != codes.Unknown {
		t.Fatalf("statusFromHTTPStatus(\"\") code = %v, want UNKNOWN", got.Code())
	}
}

func TestStatusFromHTTPStatusUnparseableIsUnknown(t *testing.T) {
	if got := statusFromHTTPStatus("not-a-number"); got.Code() != codes.Unknown {
		t.Fatalf("statusFromHTTPStatus(garbage) code = %v, want UNKNOWN", got.Code())
	}
}

func TestStatusFromResetCodeMapsKnownCodes(t *testing.T) {
	cases := map[http2.ErrCode]codes.Code{
		http2.ErrCodeRefusedStream:     codes.Unavailable,
		http2.ErrCodeCancel:            codes.Canceled,
		http2.ErrCodeEnhanceYourCalm:   codes.ResourceExhausted,
		http2.ErrCodeInadequateSecurity: codes.PermissionDenied,
	}
	for code, want := range cases {
		if got := statusFromResetCode(code); got.Code() != want {
			t.Errorf("statusFromResetCode(%v) = %v, want %v", code, got.Code(), want)
		}
	}
}

func TestStatusFromResetCodeFallsBackToInternal(t *testing.T) {
	if got := statusFromResetCode(http2.ErrCodeFlowControl); got.Code() != codes.Internal {
		t.Fatalf("statusFromResetCode(unmapped) = %v, want INTERNAL", got.Code())
	}
}
