// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package soap

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var (
	ErrFrameClosed   = errors.New("frame: connection closed")
	ErrFrameTooLarge = errors.New("frame: message too large")
)

// maxFrame caps a single envelope.
const maxFrame = 64 * 1024 * 1024

// frameType identifies frame message types
type frameType uint8

const (
	frameRequest  frameType = 0x01
	frameResponse frameType = 0x02
	frameError    frameType = 0x03
)

// frame is one message. Requests carry the call name; responses carry the
// envelope or, for frameError, an error string.
type frame struct {
	typ     frameType
	id      uint32
	call    string
	payload []byte
}

// Layout: [4 len][1 type][4 id] then for requests [2 callLen][call], then payload.
func writeFrame(w io.Writer, f frame) error {
	head := 1 + 4
	if f.typ == frameRequest {
		head += 2 + len(f.call)
	}
	msgLen := head + len(f.payload)
	if msgLen > maxFrame {
		return ErrFrameTooLarge
	}

	buf := make([]byte, 4+msgLen)
	binary.BigEndian.PutUint32(buf[0:4], uint32(msgLen))
	buf[4] = byte(f.typ)
	binary.BigEndian.PutUint32(buf[5:9], f.id)
	off := 9
	if f.typ == frameRequest {
		binary.BigEndian.PutUint16(buf[9:11], uint16(len(f.call)))
		copy(buf[11:], f.call)
		off = 11 + len(f.call)
	}
	copy(buf[off:], f.payload)
	_, err := w.Write(buf)
	return err
}

func readFrame(r io.Reader) (frame, error) {
	header := make([]byte, 4)
	if _, err := io.ReadFull(r, header); err != nil {
		return frame{}, err
	}
	msgLen := binary.BigEndian.Uint32(header)
	if msgLen < 5 || msgLen > maxFrame {
		return frame{}, fmt.Errorf("frame: bad length %d", msgLen)
	}
	msg := make([]byte, msgLen)
	if _, err := io.ReadFull(r, msg); err != nil {
		return frame{}, err
	}

	f := frame{typ: frameType(msg[0]), id: binary.BigEndian.Uint32(msg[1:5])}
	rest := msg[5:]
	if f.typ == frameRequest {
		if len(rest) < 2 {
			return frame{}, fmt.Errorf("frame: short request")
		}
		n := int(binary.BigEndian.Uint16(rest[0:2]))
		if len(rest) < 2+n {
			return frame{}, fmt.Errorf("frame: short call name")
		}
		f.call = string(rest[2 : 2+n])
		rest = rest[2+n:]
	}
	f.payload = rest
	return f, nil
}

// FrameConn multiplexes envelope round trips over one TCP connection.
type FrameConn struct {
	conn     net.Conn
	writeMu  sync.Mutex
	pending  sync.Map // id -> chan frame
	nextID   atomic.Uint32
	closed   atomic.Bool
	readDone chan struct{}
}

// DialFrame connects to a frame server
func DialFrame(ctx context.Context, addr string) (*FrameConn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("frame dial: %w", err)
	}
	fc := &FrameConn{
		conn:     conn,
		readDone: make(chan struct{}),
	}
	go fc.readLoop()
	return fc, nil
}

// Call sends envelope as call and waits for the response envelope.
func (c *FrameConn) Call(ctx context.Context, call string, envelope []byte) ([]byte, error) {
	if c.closed.Load() {
		return nil, ErrFrameClosed
	}

	id := c.nextID.Add(1)
	respCh := make(chan frame, 1)
	c.pending.Store(id, respCh)
	defer c.pending.Delete(id)

	c.writeMu.Lock()
	err := writeFrame(c.conn, frame{typ: frameRequest, id: id, call: call, payload: envelope})
	c.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("frame write: %w", err)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case resp := <-respCh:
		if resp.typ == frameError {
			return nil, errors.New(string(resp.payload))
		}
		return resp.payload, nil
	case <-c.readDone:
		return nil, ErrFrameClosed
	}
}

func (c *FrameConn) readLoop() {
	defer close(c.readDone)
	for {
		f, err := readFrame(c.conn)
		if err != nil {
			return
		}
		if ch, ok := c.pending.Load(f.id); ok {
			ch.(chan frame) <- f
		}
	}
}

// Close closes the connection
func (c *FrameConn) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	return c.conn.Close()
}

// frameTransport adapts FrameConn to Transport.
type frameTransport struct {
	conn   *FrameConn
	codec  Codec
	logger *zap.Logger
}

func dialFrame(ctx context.Context, addr string, o *dialOptions) (Transport, error) {
	conn, err := DialFrame(ctx, addr)
	if err != nil {
		return nil, err
	}
	return &frameTransport{conn: conn, codec: o.codec, logger: o.logger}, nil
}

func (t *frameTransport) RoundTrip(ctx context.Context, call *CallNode) (*Response, error) {
	payload, err := t.codec.Encode(call)
	if err != nil {
		return nil, fmt.Errorf("encode call: %w", err)
	}
	t.logger.Debug("sending frame", zap.String("call", call.Name), zap.Int("bytes", len(payload)))
	data, err := t.conn.Call(ctx, call.Name, payload)
	if err != nil {
		return nil, err
	}
	var resp Response
	if err := t.codec.Decode(data, &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &resp, nil
}

func (t *frameTransport) Close() error {
	return t.conn.Close()
}

// FrameServer answers frame requests with a Mux.
type FrameServer struct {
	listener net.Listener
	mux      *Mux
	logger   *zap.Logger
	conns    sync.Map
	closed   atomic.Bool
}

// NewFrameServer creates a new frame server
func NewFrameServer(listener net.Listener, mux *Mux, logger *zap.Logger) *FrameServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FrameServer{
		listener: listener,
		mux:      mux,
		logger:   logger,
	}
}

// Handle registers h on the server's mux
func (s *FrameServer) Handle(call string, h Handler) {
	s.mux.Handle(call, h)
}

// Serve accepts connections until Close is called
func (s *FrameServer) Serve(ctx context.Context) error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.closed.Load() {
				return nil
			}
			s.logger.Warn("accept failed", zap.Error(err))
			continue
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *FrameServer) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	s.conns.Store(conn, struct{}{})
	defer s.conns.Delete(conn)

	var writeMu sync.Mutex
	for {
		f, err := readFrame(conn)
		if err != nil {
			return
		}
		if f.typ != frameRequest {
			continue
		}
		go func(f frame) {
			reply := frame{typ: frameResponse, id: f.id}
			data, err := s.mux.ServeEnvelope(ctx, f.payload)
			if err != nil {
				reply.typ, reply.payload = frameError, []byte(err.Error())
			} else {
				reply.payload = data
			}
			writeMu.Lock()
			defer writeMu.Unlock()
			conn.SetWriteDeadline(time.Now().Add(30 * time.Second))
			if err := writeFrame(conn, reply); err != nil {
				s.logger.Warn("write response failed", zap.String("call", f.call), zap.Error(err))
			}
		}(f)
	}
}

// Close closes the server and all open connections
func (s *FrameServer) Close() error {
	s.closed.Store(true)
	s.conns.Range(func(key, _ interface{}) bool {
		key.(net.Conn).Close()
		return true
	})
	return s.listener.Close()
}

// Addr returns the listener address
func (s *FrameServer) Addr() string {
	return s.listener.Addr().String()
}
