// Package wire implements the framed channel of the RESIGN session
// protocol: turn-taking, typed send/receive over an ordered byte stream.
//
// Framing follows the classic record-marking scheme: each message is a
// 4-byte big-endian header followed by the payload. Bit 31 of the header is
// the last-fragment flag (always set; the protocol only ever sends
// single-fragment messages) and bits 0-30 carry the payload length. The
// payload itself is XDR (RFC 4506) encoded.
//
// The channel is strictly half-duplex by construction of the session loop:
// the server never sends two messages without an intervening client message.
// Any framing or decode failure is connection-fatal and never retried.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	xdr "github.com/rasky/go-xdr/xdr2"

	"github.com/resignhq/resign/internal/protocol"
)

// MaxMessageSize is the maximum allowed payload size of a single message.
// Directory listings are small; anything larger than this is a malformed or
// hostile frame.
const MaxMessageSize = 64 << 10 // 64 KiB

// lastFragmentFlag marks the final (and only) fragment of a message.
const lastFragmentFlag = 0x80000000

// ErrProtocol indicates a malformed frame or a payload that does not decode
// as the expected type. It is connection-fatal.
var ErrProtocol = errors.New("protocol error")

// Channel provides typed message exchange over a single connection.
//
// A Channel is owned by exactly one session goroutine; it is not safe for
// concurrent use.
type Channel struct {
	conn        net.Conn
	readTimeout time.Duration
}

// New wraps a connection in a Channel. When readTimeout is non-zero, every
// receive arms a read deadline; a silent peer then fails the read instead of
// pinning the session goroutine forever.
func New(conn net.Conn, readTimeout time.Duration) *Channel {
	return &Channel{conn: conn, readTimeout: readTimeout}
}

// RemoteAddr returns the address of the peer.
func (c *Channel) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// Close closes the underlying connection.
func (c *Channel) Close() error {
	return c.conn.Close()
}

// send XDR-encodes the value and writes header plus payload as a single
// Write call, so a message is never partially interleaved with another.
func (c *Channel) send(v any) error {
	var payload bytes.Buffer
	if _, err := xdr.Marshal(&payload, v); err != nil {
		return fmt.Errorf("%w: encode message: %v", ErrProtocol, err)
	}
	if payload.Len() > MaxMessageSize {
		return fmt.Errorf("%w: message of %d bytes exceeds maximum %d", ErrProtocol, payload.Len(), MaxMessageSize)
	}

	frame := make([]byte, 4+payload.Len())
	binary.BigEndian.PutUint32(frame[:4], lastFragmentFlag|uint32(payload.Len()))
	copy(frame[4:], payload.Bytes())

	if _, err := c.conn.Write(frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// receive reads one complete frame and decodes it as the expected type.
//
// io.EOF from the first header byte is returned directly so callers can
// distinguish a clean client disconnect from a torn frame.
func (c *Channel) receive(v any) error {
	if c.readTimeout > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
			return fmt.Errorf("arm read deadline: %w", err)
		}
	}

	var headerBuf [4]byte
	if _, err := io.ReadFull(c.conn, headerBuf[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return io.EOF
		}
		return fmt.Errorf("read frame header: %w", err)
	}

	header := binary.BigEndian.Uint32(headerBuf[:])
	length := header &^ uint32(lastFragmentFlag)
	if header&lastFragmentFlag == 0 {
		return fmt.Errorf("%w: multi-fragment messages are not supported", ErrProtocol)
	}
	if length > MaxMessageSize {
		return fmt.Errorf("%w: frame of %d bytes exceeds maximum %d", ErrProtocol, length, MaxMessageSize)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(c.conn, payload); err != nil {
		return fmt.Errorf("read frame payload: %w", err)
	}

	reader := bytes.NewReader(payload)
	if _, err := xdr.Unmarshal(reader, v); err != nil {
		return fmt.Errorf("%w: decode message: %v", ErrProtocol, err)
	}
	// A well-typed message consumes the payload exactly; trailing bytes
	// mean the peer sent a different type than this handler step expects.
	if reader.Len() != 0 {
		return fmt.Errorf("%w: %d trailing bytes after decoded message", ErrProtocol, reader.Len())
	}

	return nil
}

// SendString sends a single string message (banner, selector, parameter).
func (c *Channel) SendString(s string) error {
	return c.send(s)
}

// ReceiveString blocks until a complete string message is available.
func (c *Channel) ReceiveString() (string, error) {
	var s string
	if err := c.receive(&s); err != nil {
		return "", err
	}
	return s, nil
}

// SendReply sends the single reply message that terminates an action.
func (c *Channel) SendReply(r protocol.Reply) error {
	return c.send(r)
}

// ReceiveReply blocks until a complete reply message is available. Used by
// the client side of the protocol.
func (c *Channel) ReceiveReply() (protocol.Reply, error) {
	var r protocol.Reply
	if err := c.receive(&r); err != nil {
		return protocol.Reply{}, err
	}
	return r, nil
}
