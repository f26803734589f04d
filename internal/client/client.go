// Package client implements the client side of the session protocol:
// dialing, the banner/selector/reply turn discipline, and one method per
// server action.
package client

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/resignhq/resign/internal/protocol"
	"github.com/resignhq/resign/internal/protocol/wire"
)

// ErrActionFailed is wrapped by every failure reply so callers can
// distinguish domain failures from transport errors.
var ErrActionFailed = errors.New("action failed")

// Options configures a client connection.
type Options struct {
	// Address is the server host:port.
	Address string

	// TLS, when non-nil, dials a TLS connection with this configuration.
	TLS *tls.Config

	// DialTimeout bounds connection establishment. Zero means no limit.
	DialTimeout time.Duration

	// ReadTimeout bounds each server reply. Zero means no limit.
	ReadTimeout time.Duration
}

// Client is a connected protocol session. Methods follow the server's turn
// discipline: each call consumes the pending banner, sends the selector and
// parameters, and reads the single reply. A Client is not safe for
// concurrent use.
type Client struct {
	channel *wire.Channel

	// banner is the text received at the start of the current turn.
	banner string
}

// Dial connects to a server and reads the initial banner.
func Dial(opts Options) (*Client, error) {
	dialer := &net.Dialer{Timeout: opts.DialTimeout}

	var conn net.Conn
	var err error
	if opts.TLS != nil {
		conn, err = tls.DialWithDialer(dialer, "tcp", opts.Address, opts.TLS)
	} else {
		conn, err = dialer.Dial("tcp", opts.Address)
	}
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", opts.Address, err)
	}

	c := &Client{channel: wire.New(conn, opts.ReadTimeout)}
	if c.banner, err = c.channel.ReceiveString(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("reading banner: %w", err)
	}
	return c, nil
}

// Banner returns the banner of the current turn.
func (c *Client) Banner() string {
	return c.banner
}

// Close tears the connection down without the Exit exchange.
func (c *Client) Close() error {
	return c.channel.Close()
}

// do runs one action turn and refreshes the banner for the next one.
func (c *Client) do(action protocol.Action, params ...string) (protocol.Reply, error) {
	if err := c.channel.SendString(action.Code()); err != nil {
		return protocol.Reply{}, err
	}
	for _, p := range params {
		if err := c.channel.SendString(p); err != nil {
			return protocol.Reply{}, err
		}
	}

	reply, err := c.channel.ReceiveReply()
	if err != nil {
		return protocol.Reply{}, err
	}
	if c.banner, err = c.channel.ReceiveString(); err != nil {
		return protocol.Reply{}, err
	}
	return reply, nil
}

// failure converts a failure reply to an error carrying the server's
// message.
func failure(reply protocol.Reply) error {
	return fmt.Errorf("%w: %s", ErrActionFailed, reply.Message)
}

// Login authenticates the session.
func (c *Client) Login(username, password string) error {
	reply, err := c.do(protocol.ActionLogin, username, password)
	if err != nil {
		return err
	}
	if !reply.IsOK() {
		return failure(reply)
	}
	return nil
}

// Logout returns the session to the anonymous state.
func (c *Client) Logout() error {
	reply, err := c.do(protocol.ActionLogout)
	if err != nil {
		return err
	}
	if !reply.IsOK() {
		return failure(reply)
	}
	return nil
}

// ShowUsers lists every account's public projection.
func (c *Client) ShowUsers() ([]protocol.UserEntry, error) {
	reply, err := c.do(protocol.ActionShowUsers)
	if err != nil {
		return nil, err
	}
	if !reply.IsOK() {
		return nil, failure(reply)
	}
	return reply.Users, nil
}

// ChangeOwnPhone updates the authenticated caller's phone number.
func (c *Client) ChangeOwnPhone(phone string) error {
	reply, err := c.do(protocol.ActionChangeOwnPhone, phone)
	if err != nil {
		return err
	}
	if !reply.IsOK() {
		return failure(reply)
	}
	return nil
}

// ChangePhone updates another account's phone number.
func (c *Client) ChangePhone(username, phone string) error {
	reply, err := c.do(protocol.ActionChangePhone, username, phone)
	if err != nil {
		return err
	}
	if !reply.IsOK() {
		return failure(reply)
	}
	return nil
}

// AddUser creates a new account.
func (c *Client) AddUser(username, password, phone, role string) error {
	reply, err := c.do(protocol.ActionAddUser, username, password, phone, role)
	if err != nil {
		return err
	}
	if !reply.IsOK() {
		return failure(reply)
	}
	return nil
}

// Exit ends the session gracefully and closes the connection.
func (c *Client) Exit() error {
	if err := c.channel.SendString(protocol.ActionExit.Code()); err != nil {
		c.channel.Close()
		return err
	}
	return c.channel.Close()
}
