package stream

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"CamLink/modules/protocol"
)

const (
	// DefaultConnectTimeout bounds the initial dial; there is no
	// per-write timeout beyond it.
	DefaultConnectTimeout = 3000 * time.Millisecond

	// Socket buffer sizing for sustained JPEG throughput.
	recvBufferSize = 64 * 1024
	sendBufferSize = 512 * 1024

	// controlReadWindow is the deadline used to poll the socket for
	// inbound control bytes without blocking the listener.
	controlReadWindow = time.Millisecond
)

// Conn owns one TCP connection carrying the outbound frame stream and
// the inbound control text. A single write lock keeps frame writes and
// control writes from interleaving mid-message.
type Conn struct {
	sock net.Conn

	writeMu sync.Mutex

	readMu  sync.Mutex
	lines   protocol.LineBuffer
	queued  []string
	readBuf [512]byte

	closed     atomic.Bool
	framesSent atomic.Uint64
	bytesSent  atomic.Uint64
}

// Dial connects to the receiver with Nagle disabled and socket buffers
// sized for streaming.
func Dial(host string, port int, timeout time.Duration) (*Conn, error) {
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))
	sock, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("stream: connect %s: %w", addr, err)
	}
	if tcp, ok := sock.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
		_ = tcp.SetReadBuffer(recvBufferSize)
		_ = tcp.SetWriteBuffer(sendBufferSize)
	}
	return NewConn(sock), nil
}

// NewConn wraps an established connection; used by Dial and by tests
// that pipe two endpoints together.
func NewConn(sock net.Conn) *Conn {
	return &Conn{sock: sock}
}

// SendFrame writes one length-prefixed frame atomically with respect to
// control writes.
func (c *Conn) SendFrame(payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := protocol.WriteFrame(c.sock, payload); err != nil {
		return err
	}
	c.framesSent.Add(1)
	c.bytesSent.Add(uint64(len(payload) + 4))
	return nil
}

// SendControl writes one control line (newline included) atomically with
// respect to frame writes.
func (c *Conn) SendControl(line string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.sock.Write([]byte(line)); err != nil {
		return fmt.Errorf("stream: write control: %w", err)
	}
	return nil
}

// ReadControlLine polls for one complete inbound control line. The
// second return is false when no full line is available yet; inbound
// bytes that do not yet end a line stay buffered for the next call.
func (c *Conn) ReadControlLine() (string, bool, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()
	if len(c.queued) > 0 {
		line := c.queued[0]
		c.queued = c.queued[1:]
		return line, true, nil
	}
	if err := c.sock.SetReadDeadline(time.Now().Add(controlReadWindow)); err != nil {
		return "", false, err
	}
	n, err := c.sock.Read(c.readBuf[:])
	if n > 0 {
		c.queued = append(c.queued, c.lines.Feed(c.readBuf[:n])...)
	}
	if err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			err = nil
		} else {
			return "", false, err
		}
	}
	if len(c.queued) == 0 {
		return "", false, nil
	}
	line := c.queued[0]
	c.queued = c.queued[1:]
	return line, true, nil
}

// Stats returns frames and payload bytes written so far.
func (c *Conn) Stats() (frames, bytes uint64) {
	return c.framesSent.Load(), c.bytesSent.Load()
}

// Close shuts the socket down. Idempotent.
func (c *Conn) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	return c.sock.Close()
}
