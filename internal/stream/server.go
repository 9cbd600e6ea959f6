package stream

import (
	"bytes"
	"context"
	"errors"
	"net"
	"sync"

	"github.com/yanun0323/logs"

	"marketfeed/internal/model"
	"marketfeed/internal/recorder"
	"marketfeed/pkg/uds"
)

const defaultQueueSize = 1024

var ErrServerClosed = errors.New("stream: server closed")

// Config configures a Server.
type Config struct {
	// Path is the socket path.
	Path string
	// QueueSize bounds the records buffered per client. Default 1024.
	QueueSize int
	// Overflow applies when a client queue is full. Default OverflowBlock, so
	// every connected client sees every event.
	Overflow OverflowPolicy
}

func (c Config) withDefaults() Config {
	if c.QueueSize <= 0 {
		c.QueueSize = defaultQueueSize
	}
	if c.Overflow == 0 {
		c.Overflow = OverflowBlock
	}
	return c
}

// Server fans published events out to every connected socket client.
type Server struct {
	cfg Config
	ln  *uds.Server

	encMu sync.Mutex
	enc   bytes.Buffer
	w     *recorder.Writer

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
	wg      sync.WaitGroup
}

type client struct {
	conn  *net.UnixConn
	queue *eventQueue
}

// Listen binds cfg.Path. Call Serve to accept connections.
func Listen(cfg Config) (*Server, error) {
	cfg = cfg.withDefaults()
	ln, err := uds.NewServer(cfg.Path)
	if err != nil {
		return nil, err
	}
	if err := ln.Listen(); err != nil {
		return nil, err
	}
	s := &Server{
		cfg:     cfg,
		ln:      ln,
		clients: make(map[*client]struct{}),
	}
	s.w = recorder.NewWriter(&s.enc)
	return s, nil
}

func (s *Server) Path() string {
	return s.ln.Path()
}

// Serve accepts clients until ctx is done or Close is called.
func (s *Server) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = s.ln.Close() })
	defer stop()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) || errors.Is(err, uds.ErrNotListening) {
				return nil
			}
			logs.Errorf("stream accept on %s, err: %+v", s.Path(), err)
			continue
		}
		if !s.add(conn) {
			_ = conn.Close()
			return nil
		}
	}
}

func (s *Server) add(conn *net.UnixConn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	c := &client{conn: conn, queue: newEventQueue(s.cfg.QueueSize, s.cfg.Overflow)}
	s.clients[c] = struct{}{}
	s.wg.Add(1)
	go s.pump(c)
	return true
}

func (s *Server) remove(c *client) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
}

// pump writes queued records to the connection until the queue closes or a
// write fails.
func (s *Server) pump(c *client) {
	defer s.wg.Done()
	defer c.conn.Close()
	for {
		rec, ok := c.queue.pop()
		if !ok {
			return
		}
		if _, err := c.conn.Write(rec); err != nil {
			logs.Errorf("stream client gone, dropped: %d, err: %+v", c.queue.droppedCount(), err)
			c.queue.discard()
			s.remove(c)
			return
		}
	}
}

// Callback is the bus.Callback that streams ev to every client. A client whose
// queue is full under OverflowDisconnect is closed.
func (s *Server) Callback(ev model.Event) error {
	s.encMu.Lock()
	s.enc.Reset()
	err := s.w.Write(ev)
	rec := bytes.Clone(s.enc.Bytes())
	s.encMu.Unlock()
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrServerClosed
	}
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		if !c.queue.push(rec) {
			s.remove(c)
			c.queue.close()
		}
	}
	return nil
}

// Clients returns the number of connected clients.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Close stops accepting, lets every client drain its queue, then closes the
// connections.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for c := range s.clients {
		c.queue.close()
	}
	s.clients = map[*client]struct{}{}
	s.mu.Unlock()

	err := s.ln.Close()
	s.wg.Wait()
	return err
}
