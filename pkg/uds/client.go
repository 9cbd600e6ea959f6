package uds

import (
	"context"
	"errors"
	"net"
)

var ErrNilClient = errors.New("uds: nil client")

// Client dials one socket path.
type Client struct {
	addr   net.UnixAddr
	dialer net.Dialer
}

func NewClient(path string) (*Client, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}
	return &Client{addr: net.UnixAddr{Name: path, Net: unixNetwork}}, nil
}

func (c *Client) Path() string {
	if c == nil {
		return ""
	}
	return c.addr.Name
}

// Dial connects to the server, giving up when ctx is done.
func (c *Client) Dial(ctx context.Context) (*net.UnixConn, error) {
	if c == nil {
		return nil, ErrNilClient
	}
	conn, err := c.dialer.DialContext(ctx, unixNetwork, c.addr.Name)
	if err != nil {
		return nil, err
	}
	return conn.(*net.UnixConn), nil
}
