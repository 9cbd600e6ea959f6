package stream

import (
	"context"
	"net"

	"marketfeed/internal/model"
	"marketfeed/internal/recorder"
	"marketfeed/pkg/uds"
)

// Conn reads events from a stream Server.
type Conn struct {
	conn *net.UnixConn
	r    *recorder.Reader
}

func Dial(ctx context.Context, path string) (*Conn, error) {
	cli, err := uds.NewClient(path)
	if err != nil {
		return nil, err
	}
	conn, err := cli.Dial(ctx)
	if err != nil {
		return nil, err
	}
	return &Conn{conn: conn, r: recorder.NewReader(conn, recorder.ReaderOptions{})}, nil
}

// Next blocks for the next event. It returns io.EOF once the server has
// drained and closed the connection.
func (c *Conn) Next() (model.Event, error) {
	rec, err := c.r.Next()
	if err != nil {
		return model.Event{}, err
	}
	return recorder.DecodeEvent(rec)
}

func (c *Conn) Close() error {
	return c.conn.Close()
}
