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

// Package transport drives the wire-level HTTP/2 connection a Subchannel
// holds to one backend. Per spec §1's Non-goal "implementing HTTP/2
// framing", this package never encodes or decodes an HTTP/2 frame itself:
// frame I/O goes through golang.org/x/net/http2.Framer and header
// (de)serialization through golang.org/x/net/http2/hpack, the same two
// primitives the teacher's own internal/transport/grpchttp2 package wraps.
// What lives here is the core's own bookkeeping on top of those
// primitives: stream multiplexing, keepalive ping/ack correlation and
// GOAWAY inspection — exactly the "contracts the core consumes" from the
// wire implementation per spec §1.
package transport

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/hpack"

	"github.com/corerpc/corerpc/chanlog"
)

var logger = chanlog.Component("transport")

// Options configures Connect.
type Options struct {
	// Secure requests a TLS dial; TLSConfig is used when set.
	Secure    bool
	TLSConfig *tls.Config
	// ConnectTimeout bounds the dial+handshake; spec §4.3 calls for a
	// minimum connect budget of 20s before declaring failure.
	ConnectTimeout time.Duration
}

// DefaultConnectTimeout is the minimum connect budget from spec §4.3.
const DefaultConnectTimeout = 20 * time.Second

// GoAway carries the parsed contents of a received GOAWAY frame.
type GoAway struct {
	Code      http2.ErrCode
	DebugData []byte
}

// TooManyPings reports whether g is the server's "too_many_pings"
// keepalive throttle signal, per spec §4.3: "GOAWAY with code
// ENHANCE_YOUR_CALM and opaque data equal to ASCII 'too_many_pings'".
func (g GoAway) TooManyPings() bool {
	return g.Code == http2.ErrCodeEnhanceYourCalm && string(g.DebugData) == "too_many_pings"
}

// Transport is one HTTP/2 connection to a backend, multiplexing Streams
// over it.
type Transport struct {
	conn   net.Conn
	framer *http2.Framer

	hpackMu sync.Mutex
	henc    *hpack.Encoder
	hencBuf writeBuf

	writeMu sync.Mutex

	mu      sync.Mutex
	streams map[uint32]*Stream
	nextID  uint32
	closed  bool

	pingMu  sync.Mutex
	pending map[uint64]chan struct{}

	onGoAway func(*Transport, GoAway)
	onClose  func(*Transport, error)
	closeErr error
	done     chan struct{}
}

type writeBuf struct{ b []byte }

func (w *writeBuf) Write(p []byte) (int, error) { w.b = append(w.b, p...); return len(p), nil }

// Connect dials addr and completes the HTTP/2 client preface and initial
// SETTINGS exchange. onGoAway and onClose are invoked from the
// Transport's read loop for every GOAWAY received and when the connection
// is finally torn down, respectively; each is passed the Transport that
// fired it, so a caller holding more than one Transport over its lifetime
// can tell a live callback apart from one delivered by a connection it has
// already replaced.
func Connect(ctx context.Context, addr string, opts Options, onGoAway func(*Transport, GoAway), onClose func(*Transport, error)) (*Transport, error) {
	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var conn net.Conn
	var err error
	if opts.Secure {
		tlsCfg := opts.TLSConfig
		if tlsCfg == nil {
			tlsCfg = &tls.Config{}
		}
		tlsCfg = tlsCfg.Clone()
		if len(tlsCfg.NextProtos) == 0 {
			tlsCfg.NextProtos = []string{"h2"}
		}
		conn, err = (&tls.Dialer{Config: tlsCfg}).DialContext(dialCtx, "tcp", addr)
	} else {
		conn, err = (&net.Dialer{}).DialContext(dialCtx, "tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", addr, err)
	}

	if _, err := conn.Write([]byte(http2.ClientPreface)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("transport: writing client preface: %w", err)
	}

	fr := http2.NewFramer(conn, conn)
	if err := fr.WriteSettings(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("transport: writing settings: %w", err)
	}
	if err := fr.WriteWindowUpdate(0, 1<<20); err != nil {
		conn.Close()
		return nil, fmt.Errorf("transport: writing window update: %w", err)
	}

	t := &Transport{
		conn:     conn,
		framer:   fr,
		streams:  map[uint32]*Stream{},
		nextID:   1,
		pending:  map[uint64]chan struct{}{},
		onGoAway: onGoAway,
		onClose:  onClose,
		done:     make(chan struct{}),
	}
	t.henc = hpack.NewEncoder(&t.hencBuf)
	go t.readLoop()
	return t, nil
}

// Ping sends an HTTP/2 PING and blocks until the ack is received or ctx is
// done, implementing the transport half of spec §4.3's keepalive check.
func (t *Transport) Ping(ctx context.Context) error {
	var data [8]byte
	if _, err := rand.Read(data[:]); err != nil {
		binary.BigEndian.PutUint64(data[:], uint64(time.Now().UnixNano()))
	}
	ack := make(chan struct{})
	key := binary.BigEndian.Uint64(data[:])
	t.pingMu.Lock()
	t.pending[key] = ack
	t.pingMu.Unlock()

	if err := t.writeFrame(func() error { return t.framer.WritePing(false, data) }); err != nil {
		t.pingMu.Lock()
		delete(t.pending, key)
		t.pingMu.Unlock()
		return err
	}
	select {
	case <-ack:
		return nil
	case <-ctx.Done():
		t.pingMu.Lock()
		delete(t.pending, key)
		t.pingMu.Unlock()
		return ctx.Err()
	case <-t.done:
		return io.ErrClosedPipe
	}
}

// NewStream opens a new HTTP/2 stream, sending hdrs as the HEADERS frame.
// endStream, if true, immediately half-closes the stream on the client
// side (no request body, e.g. an empty-unary call known ahead of time).
func (t *Transport) NewStream(hdrs []hpack.HeaderField, endStream bool) (*Stream, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, io.ErrClosedPipe
	}
	id := t.nextID
	t.nextID += 2
	s := newStream(id, t)
	t.streams[id] = s
	t.mu.Unlock()

	t.hpackMu.Lock()
	t.hencBuf.b = t.hencBuf.b[:0]
	for _, f := range hdrs {
		if err := t.henc.WriteField(f); err != nil {
			t.hpackMu.Unlock()
			return nil, fmt.Errorf("transport: encoding headers: %w", err)
		}
	}
	block := append([]byte(nil), t.hencBuf.b...)
	err := t.writeFrame(func() error {
		return t.framer.WriteHeaders(http2.HeadersFrameParam{
			StreamID:      id,
			BlockFragment: block,
			EndHeaders:    true,
			EndStream:     endStream,
		})
	})
	t.hpackMu.Unlock()
	if err != nil {
		t.mu.Lock()
		delete(t.streams, id)
		t.mu.Unlock()
		return nil, err
	}
	return s, nil
}

// writeFrame serializes frame writes onto the single net.Conn writer, since
// http2.Framer is not safe for concurrent writers. This is a separate lock
// from hpackMu, which only guards the header encoder's state: NewStream
// holds hpackMu while it builds a HEADERS block and must still be able to
// call writeFrame to send it.
func (t *Transport) writeFrame(f func() error) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return f()
}

// Close tears down the connection and every open stream.
func (t *Transport) Close(err error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.closeErr = err
	streams := t.streams
	t.streams = nil
	t.mu.Unlock()

	t.conn.Close()
	for _, s := range streams {
		s.fail(err)
	}
	close(t.done)
	if t.onClose != nil {
		t.onClose(t, err)
	}
}

func (t *Transport) readLoop() {
	var err error
	defer func() { t.Close(err) }()

	hdec := hpack.NewDecoder(4096, nil)
	var headerStream uint32
	var headerFields []hpack.HeaderField
	var headerEndStream bool

	for {
		var f http2.Frame
		f, err = t.framer.ReadFrame()
		if err != nil {
			return
		}
		switch fr := f.(type) {
		case *http2.SettingsFrame:
			if !fr.IsAck() {
				if e := t.writeFrame(func() error { return t.framer.WriteSettingsAck() }); e != nil {
					err = e
					return
				}
			}
		case *http2.PingFrame:
			if fr.IsAck() {
				key := binary.BigEndian.Uint64(fr.Data[:])
				t.pingMu.Lock()
				if ack, ok := t.pending[key]; ok {
					close(ack)
					delete(t.pending, key)
				}
				t.pingMu.Unlock()
				continue
			}
			if e := t.writeFrame(func() error { return t.framer.WritePing(true, fr.Data) }); e != nil {
				err = e
				return
			}
		case *http2.HeadersFrame:
			headerStream = fr.StreamID
			headerEndStream = fr.StreamEnded()
			headerFields = nil
			fs, decErr := hdec.DecodeFull(fr.HeaderBlockFragment())
			if decErr != nil {
				err = decErr
				return
			}
			headerFields = fs
			if fr.HeadersEnded() {
				t.deliverHeaders(headerStream, headerFields, headerEndStream)
			}
		case *http2.ContinuationFrame:
			fs, decErr := hdec.DecodeFull(fr.HeaderBlockFragment())
			if decErr != nil {
				err = decErr
				return
			}
			headerFields = append(headerFields, fs...)
			if fr.HeadersEnded() {
				t.deliverHeaders(headerStream, headerFields, headerEndStream)
			}
		case *http2.DataFrame:
			t.withStream(fr.StreamID, func(s *Stream) {
				s.pushData(append([]byte(nil), fr.Data()...), fr.StreamEnded())
			})
			if n := fr.Length; n > 0 {
				t.writeFrame(func() error { return t.framer.WriteWindowUpdate(0, uint32(n)) })
				t.withStream(fr.StreamID, func(s *Stream) {
					t.writeFrame(func() error { return t.framer.WriteWindowUpdate(fr.StreamID, uint32(n)) })
				})
			}
		case *http2.RSTStreamFrame:
			t.withStream(fr.StreamID, func(s *Stream) { s.reset(fr.ErrCode) })
		case *http2.GoAwayFrame:
			if t.onGoAway != nil {
				t.onGoAway(t, GoAway{Code: fr.ErrCode, DebugData: append([]byte(nil), fr.DebugData()...)})
			}
		case *http2.WindowUpdateFrame:
			// No outbound flow-control accounting is implemented:
			// window updates are observed but not acted on.
		default:
			// Unhandled frame types (PRIORITY, PUSH_PROMISE, ...) are
			// ignored, matching a client that never requests server push.
		}
	}
}

func (t *Transport) deliverHeaders(id uint32, fields []hpack.HeaderField, endStream bool) {
	t.withStream(id, func(s *Stream) { s.pushHeaders(fields, endStream) })
}

func (t *Transport) withStream(id uint32, f func(*Stream)) {
	t.mu.Lock()
	s := t.streams[id]
	t.mu.Unlock()
	if s != nil {
		f(s)
	}
}

func (t *Transport) removeStream(id uint32) {
	t.mu.Lock()
	delete(t.streams, id)
	t.mu.Unlock()
}

func (t *Transport) writeData(id uint32, data []byte, endStream bool) error {
	return t.writeFrame(func() error { return t.framer.WriteData(id, endStream, data) })
}

func (t *Transport) writeRSTStream(id uint32, code http2.ErrCode) error {
	return t.writeFrame(func() error { return t.framer.WriteRSTStream(id, code) })
}
