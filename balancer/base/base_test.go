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

package base

import (
	"errors"
	"testing"

	"github.com/corerpc/corerpc/balancer"
	"github.com/corerpc/corerpc/connectivity"
	"github.com/corerpc/corerpc/resolver"
)

type fakeSubConn struct {
	addr      resolver.Address
	listener  func(balancer.SubConnState)
	shutdowns int
}

func (f *fakeSubConn) Connect()                                {}
func (f *fakeSubConn) Shutdown()                                { f.shutdowns++ }
func (f *fakeSubConn) UpdateAddresses(addrs []resolver.Address) {}

type fakeClientConn struct {
	scs    []*fakeSubConn
	states []balancer.State
}

func (f *fakeClientConn) NewSubConn(addrs []resolver.Address, opts balancer.NewSubConnOptions) (balancer.SubConn, error) {
	sc := &fakeSubConn{addr: addrs[0], listener: opts.StateListener}
	f.scs = append(f.scs, sc)
	return sc, nil
}
func (f *fakeClientConn) UpdateState(s balancer.State)          { f.states = append(f.states, s) }
func (f *fakeClientConn) ResolveNow(resolver.ResolveNowOptions) {}
func (f *fakeClientConn) Target() string                        { return "test" }
func (f *fakeClientConn) lastState() balancer.State              { return f.states[len(f.states)-1] }

type recordingPickerBuilder struct {
	built []map[resolver.Address]balancer.SubConn
}

type recordingPicker struct{ scs map[resolver.Address]balancer.SubConn }

func (p recordingPicker) Pick(balancer.PickInfo) (balancer.PickResult, error) {
	for _, sc := range p.scs {
		return balancer.PickResult{SubConn: sc}, nil
	}
	return balancer.PickResult{}, balancer.ErrNoSubConnAvailable
}

func (b *recordingPickerBuilder) Build(readySCs map[resolver.Address]balancer.SubConn) balancer.Picker {
	b.built = append(b.built, readySCs)
	return recordingPicker{scs: readySCs}
}

func TestBaseBalancerCreatesOneSubConnPerAddress(t *testing.T) {
	pb := &recordingPickerBuilder{}
	cc := &fakeClientConn{}
	bal := NewBalancerBuilder("test", pb).Build(cc, balancer.BuildOptions{})

	addrs := []resolver.Address{{Addr: "1.1.1.1:1"}, {Addr: "2.2.2.2:2"}}
	if err := bal.UpdateClientConnState(balancer.ClientConnState{ResolverState: resolver.State{Addresses: addrs}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cc.scs) != 2 {
		t.Fatalf("NewSubConn called %d times, want 2", len(cc.scs))
	}
}

func TestBaseBalancerRemovesStaleSubConns(t *testing.T) {
	pb := &recordingPickerBuilder{}
	cc := &fakeClientConn{}
	bal := NewBalancerBuilder("test", pb).Build(cc, balancer.BuildOptions{})

	bal.UpdateClientConnState(balancer.ClientConnState{ResolverState: resolver.State{
		Addresses: []resolver.Address{{Addr: "1.1.1.1:1"}, {Addr: "2.2.2.2:2"}},
	}})
	bal.UpdateClientConnState(balancer.ClientConnState{ResolverState: resolver.State{
		Addresses: []resolver.Address{{Addr: "1.1.1.1:1"}},
	}})

	var shutdowns int
	for _, sc := range cc.scs {
		shutdowns += sc.shutdowns
	}
	if shutdowns != 1 {
		t.Fatalf("total shutdowns = %d, want exactly 1 (the dropped address)", shutdowns)
	}
}

func TestBaseBalancerAggregatesStateAndRebuildsPicker(t *testing.T) {
	pb := &recordingPickerBuilder{}
	cc := &fakeClientConn{}
	bal := NewBalancerBuilder("test", pb).Build(cc, balancer.BuildOptions{})

	bal.UpdateClientConnState(balancer.ClientConnState{ResolverState: resolver.State{
		Addresses: []resolver.Address{{Addr: "1.1.1.1:1"}, {Addr: "2.2.2.2:2"}},
	}})
	cc.scs[0].listener(balancer.SubConnState{ConnectivityState: connectivity.Ready})

	if cc.lastState().ConnectivityState != connectivity.Ready {
		t.Fatalf("aggregate state = %v, want READY once one SubConn is READY", cc.lastState().ConnectivityState)
	}
	if len(pb.built) == 0 || len(pb.built[len(pb.built)-1]) != 1 {
		t.Fatalf("picker was not rebuilt with exactly the one READY SubConn")
	}
}

func TestBaseBalancerZeroAddressesIsBadResolverState(t *testing.T) {
	pb := &recordingPickerBuilder{}
	cc := &fakeClientConn{}
	bal := NewBalancerBuilder("test", pb).Build(cc, balancer.BuildOptions{})

	err := bal.UpdateClientConnState(balancer.ClientConnState{ResolverState: resolver.State{}})
	if err != balancer.ErrBadResolverState {
		t.Fatalf("got %v, want balancer.ErrBadResolverState", err)
	}
}

func TestBaseBalancerTransientFailurePicksLastError(t *testing.T) {
	pb := &recordingPickerBuilder{}
	cc := &fakeClientConn{}
	bal := NewBalancerBuilder("test", pb).Build(cc, balancer.BuildOptions{})

	bal.UpdateClientConnState(balancer.ClientConnState{ResolverState: resolver.State{
		Addresses: []resolver.Address{{Addr: "1.1.1.1:1"}},
	}})
	wantErr := errors.New("dial failed")
	cc.scs[0].listener(balancer.SubConnState{ConnectivityState: connectivity.TransientFailure, ConnectionError: wantErr})

	if cc.lastState().ConnectivityState != connectivity.TransientFailure {
		t.Fatalf("state = %v, want TRANSIENT_FAILURE", cc.lastState().ConnectivityState)
	}
	_, err := cc.lastState().Picker.Pick(balancer.PickInfo{})
	if err != wantErr {
		t.Fatalf("picker error = %v, want %v", err, wantErr)
	}
}

func TestBaseBalancerCloseShutsDownAllSubConns(t *testing.T) {
	pb := &recordingPickerBuilder{}
	cc := &fakeClientConn{}
	bal := NewBalancerBuilder("test", pb).Build(cc, balancer.BuildOptions{})

	bal.UpdateClientConnState(balancer.ClientConnState{ResolverState: resolver.State{
		Addresses: []resolver.Address{{Addr: "1.1.1.1:1"}, {Addr: "2.2.2.2:2"}},
	}})
	bal.Close()
	for _, sc := range cc.scs {
		if sc.shutdowns != 1 {
			t.Errorf("SubConn shutdowns = %d, want 1 after Close", sc.shutdowns)
		}
	}
}
