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
	"context"
	"errors"
	"testing"
	"time"

	"github.com/corerpc/corerpc/codes"
	"github.com/corerpc/corerpc/credentials"
	"github.com/corerpc/corerpc/metadata"
	"github.com/corerpc/corerpc/status"
)

type recordingFilter struct {
	NopFilter
	name string
	log  *[]string
}

func (f recordingFilter) SendMetadata(_ context.Context, md metadata.MD) (metadata.MD, error) {
	*f.log = append(*f.log, "send:"+f.name)
	return md, nil
}

func (f recordingFilter) ReceiveMetadata(_ context.Context, md metadata.MD) (metadata.MD, error) {
	*f.log = append(*f.log, "recv:"+f.name)
	return md, nil
}

func TestFilterStackSendForwardReceiveReverse(t *testing.T) {
	var log []string
	fs := newFilterStack(
		recordingFilter{name: "a", log: &log},
		recordingFilter{name: "b", log: &log},
	)

	if _, err := fs.sendMetadata(context.Background(), metadata.MD{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := fs.receiveMetadata(context.Background(), metadata.MD{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"send:a", "send:b", "recv:b", "recv:a"}
	if len(log) != len(want) {
		t.Fatalf("log = %v, want %v", log, want)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Fatalf("log = %v, want %v", log, want)
		}
	}
}

type failingFilter struct {
	NopFilter
	err error
}

func (f failingFilter) SendMetadata(context.Context, metadata.MD) (metadata.MD, error) {
	return nil, f.err
}

func TestFilterStackWrapsPlainErrorAsInternal(t *testing.T) {
	fs := newFilterStack(failingFilter{err: errors.New("boom")})
	_, err := fs.sendMetadata(context.Background(), metadata.MD{})
	s, ok := status.FromError(err)
	if !ok || s.Code() != codes.Internal {
		t.Fatalf("got (%v, %v), want an INTERNAL status", err, ok)
	}
}

func TestFilterStackPreservesStatusError(t *testing.T) {
	wantErr := status.Error(codes.PermissionDenied, "denied")
	fs := newFilterStack(failingFilter{err: wantErr})
	_, err := fs.sendMetadata(context.Background(), metadata.MD{})
	if err != wantErr {
		t.Fatalf("got %v, want the original status error preserved", err)
	}
}

func TestDeadlineFilterSetsGRPCTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	md, err := DeadlineFilter{}.SendMetadata(ctx, metadata.MD{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := md.Get("grpc-timeout"); len(got) != 1 {
		t.Fatalf("grpc-timeout not set: %v", md)
	}
}

func TestDeadlineFilterNoDeadlineIsNoop(t *testing.T) {
	md, err := DeadlineFilter{}.SendMetadata(context.Background(), metadata.MD{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := md.Get("grpc-timeout"); len(got) != 0 {
		t.Fatalf("grpc-timeout should not be set with no context deadline, got %v", got)
	}
}

func TestDeadlineFilterAlreadyExpired(t *testing.T) {
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	_, err := DeadlineFilter{}.SendMetadata(ctx, metadata.MD{})
	s, ok := status.FromError(err)
	if !ok || s.Code() != codes.DeadlineExceeded {
		t.Fatalf("got (%v, %v), want a DEADLINE_EXCEEDED status", err, ok)
	}
}

func TestMetadataStatusFilterPassesThroughOK(t *testing.T) {
	md := metadata.Pairs("grpc-status", "0")
	if _, err := (MetadataStatusFilter{}).ReceiveMetadata(context.Background(), md); err != nil {
		t.Fatalf("unexpected error for grpc-status 0: %v", err)
	}
}

func TestMetadataStatusFilterSurfacesNonOK(t *testing.T) {
	md := metadata.Pairs("grpc-status", "5", "grpc-message", "not found")
	_, err := (MetadataStatusFilter{}).ReceiveTrailers(context.Background(), md)
	s, ok := status.FromError(err)
	if !ok || s.Code() != codes.NotFound || s.Message() != "not found" {
		t.Fatalf("got (%v, %v), want NOT_FOUND: not found", err, ok)
	}
}

func TestCompressionFilterRejectsUnsupportedEncoding(t *testing.T) {
	md := metadata.Pairs("grpc-encoding", "gzip")
	_, err := (CompressionFilter{}).ReceiveMetadata(context.Background(), md)
	if err == nil {
		t.Fatal("expected an error for an unsupported grpc-encoding")
	}
}

func TestCompressionFilterIdentityIsAccepted(t *testing.T) {
	md := metadata.Pairs("grpc-encoding", "identity")
	if _, err := (CompressionFilter{}).ReceiveMetadata(context.Background(), md); err != nil {
		t.Fatalf("unexpected error for identity encoding: %v", err)
	}
}

func TestCompressionFilterSendSetsHeadersWhenNonIdentity(t *testing.T) {
	md, err := (CompressionFilter{Encoding: "gzip"}).SendMetadata(context.Background(), metadata.MD{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := md.Get("grpc-encoding"); len(got) != 1 || got[0] != "gzip" {
		t.Fatalf("grpc-encoding = %v, want [gzip]", got)
	}
}

type fakePerRPC struct{ md map[string]string }

func (f fakePerRPC) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return f.md, nil
}
func (fakePerRPC) RequireTransportSecurity() bool { return false }

func TestCallCredentialsFilterMergesMetadata(t *testing.T) {
	bundle := credentials.Bundle{PerRPC: []credentials.PerRPCCredentials{fakePerRPC{md: map[string]string{"authorization": "Bearer x"}}}}
	f := CallCredentialsFilter{Bundle: bundle, URI: "/Foo/Bar"}
	md, err := f.SendMetadata(context.Background(), metadata.Pairs("x-existing", "1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := md.Get("authorization"); len(got) != 1 || got[0] != "Bearer x" {
		t.Fatalf("authorization = %v, want [Bearer x]", got)
	}
	if got := md.Get("x-existing"); len(got) != 1 {
		t.Fatalf("x-existing was dropped: %v", md)
	}
}
