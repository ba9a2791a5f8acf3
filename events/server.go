package events

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/zhubert/eagleray-sideband/paths"
)

const (
	// BacklogSize is how many recent events a newly connected client receives.
	// It matches the number of lines the status window shows.
	BacklogSize = 22

	// clientBuffer is the per-client queue depth. Events for a client that
	// falls further behind are dropped for that client only.
	clientBuffer = 256

	// SocketWriteTimeout bounds a single write to a client.
	SocketWriteTimeout = 5 * time.Second
)

// DefaultSocketPath returns the events socket path used when none is configured.
func DefaultSocketPath() string {
	if path, err := paths.EventsSocketPath(); err == nil {
		return path
	}
	return filepath.Join(os.TempDir(), "eagleray-events.sock")
}

type client struct {
	conn net.Conn
	out  chan []byte
}

// Server broadcasts events to clients connected on a unix socket. Each event
// is encoded once as a CBOR data item; the stream is a plain concatenation of
// items, so clients decode with a streaming CBOR decoder.
type Server struct {
	socketPath string
	listener   net.Listener
	log        *slog.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
	backlog [][]byte
	closed  bool

	wg      sync.WaitGroup
	readyCh chan struct{}
}

// NewServer listens on socketPath, replacing any stale socket file.
func NewServer(socketPath string, log *slog.Logger) (*Server, error) {
	if socketPath == "" {
		socketPath = DefaultSocketPath()
	}

	if err := os.MkdirAll(filepath.Dir(socketPath), 0700); err != nil {
		return nil, fmt.Errorf("create socket directory: %w", err)
	}
	// Remove existing socket if present
	os.Remove(socketPath)

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", socketPath, err)
	}

	log = log.With("component", "events-socket")
	log.Info("listening", "socketPath", socketPath)

	return &Server{
		socketPath: socketPath,
		listener:   listener,
		log:        log,
		clients:    make(map[*client]struct{}),
		readyCh:    make(chan struct{}),
	}, nil
}

// SocketPath returns the path to the socket.
func (s *Server) SocketPath() string {
	return s.socketPath
}

// Start launches Run in a goroutine.
func (s *Server) Start() {
	s.wg.Add(1)
	go s.Run()
}

// WaitReady blocks until the server is accepting connections.
func (s *Server) WaitReady() {
	<-s.readyCh
}

// Run accepts connections until Close is called. Use Start instead of
// calling go Run() directly.
func (s *Server) Run() {
	defer s.wg.Done()

	close(s.readyCh)

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.isClosed() || errors.Is(err, net.ErrClosed) {
				s.log.Info("listener closed, stopping")
				return
			}
			s.log.Warn("accept error (continuing)", "error", err)
			continue
		}
		s.addClient(conn)
	}
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Server) addClient(conn net.Conn) {
	c := &client{conn: conn, out: make(chan []byte, clientBuffer)}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return
	}
	for _, b := range s.backlog {
		c.out <- b
	}
	s.clients[c] = struct{}{}
	s.mu.Unlock()

	s.log.Debug("client connected", "clients", s.clientCount())

	s.wg.Add(1)
	go s.writeLoop(c)
}

func (s *Server) clientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) writeLoop(c *client) {
	defer s.wg.Done()
	defer c.conn.Close()

	for b := range c.out {
		c.conn.SetWriteDeadline(time.Now().Add(SocketWriteTimeout))
		if _, err := c.conn.Write(b); err != nil {
			s.log.Debug("client write failed, dropping client", "error", err)
			s.removeClient(c)
			// Drain so Emit never blocks on a dead client.
			for range c.out {
			}
			return
		}
	}
}

func (s *Server) removeClient(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[c]; ok {
		delete(s.clients, c)
		close(c.out)
	}
}

// Emit implements Sink.
func (s *Server) Emit(ev Event) {
	b, err := cbor.Marshal(ev)
	if err != nil {
		s.log.Error("failed to encode event", "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	s.backlog = append(s.backlog, b)
	if len(s.backlog) > BacklogSize {
		s.backlog = s.backlog[len(s.backlog)-BacklogSize:]
	}

	for c := range s.clients {
		select {
		case c.out <- b:
		default:
			s.log.Warn("client too slow, event dropped")
		}
	}
}

// Close stops accepting, disconnects every client and removes the socket file.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for c := range s.clients {
		delete(s.clients, c)
		close(c.out)
	}
	s.mu.Unlock()

	err := s.listener.Close()
	s.wg.Wait()
	os.Remove(s.socketPath)
	return err
}

// Client reads events from a Server.
type Client struct {
	conn net.Conn
	dec  *cbor.Decoder
}

// Dial connects to the events socket.
func Dial(socketPath string) (*Client, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	return &Client{conn: conn, dec: cbor.NewDecoder(conn)}, nil
}

// Next blocks until the next event arrives. It returns io.EOF once the server
// closes the connection.
func (c *Client) Next() (Event, error) {
	var ev Event
	if err := c.dec.Decode(&ev); err != nil {
		return Event{}, err
	}
	return ev, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
