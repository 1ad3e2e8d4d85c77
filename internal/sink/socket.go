package sink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"vibebridge/internal/status"
)

// socketWriteTimeout bounds a write to one client. A client that stalls past
// it is dropped.
const socketWriteTimeout = 2 * time.Second

// Socket serves status events to local clients over a Unix domain socket,
// one JSON line per event. A client that connects late first receives the
// latest event of every project it missed.
type Socket struct {
	path     string
	listener net.Listener

	mu      sync.Mutex
	clients map[net.Conn]struct{}
	latest  map[string]status.Event
	closed  bool
}

// NewSocket listens on path, replacing a stale socket file. An empty path
// means ~/.vibebridge/vibebridge.sock.
func NewSocket(path string) (*Socket, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, ".vibebridge", "vibebridge.sock")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	os.Remove(path)

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("failed to create socket: %w", err)
	}
	if err := os.Chmod(path, 0600); err != nil {
		ln.Close()
		return nil, fmt.Errorf("failed to set socket permissions: %w", err)
	}
	return &Socket{
		path:     path,
		listener: ln,
		clients:  make(map[net.Conn]struct{}),
		latest:   make(map[string]status.Event),
	}, nil
}

// Name returns the sink type.
func (s *Socket) Name() string {
	return "socket"
}

// Path returns the socket path.
func (s *Socket) Path() string {
	return s.path
}

// Start accepts clients until ctx is cancelled or the socket is closed.
func (s *Socket) Start(ctx context.Context) {
	go func() {
		<-ctx.Done()
		s.Close()
	}()
	go s.acceptLoop()
}

func (s *Socket) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			continue
		}
		if !s.register(conn) {
			conn.Close()
			return
		}
		go s.watch(conn)
	}
}

// register replays the latest events to conn and adds it to the broadcast
// set. Both happen under mu so a concurrent Send cannot interleave.
func (s *Socket) register(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}

	projects := make([]string, 0, len(s.latest))
	for p := range s.latest {
		projects = append(projects, p)
	}
	sort.Strings(projects)
	for _, p := range projects {
		data, err := s.latest[p].JSONLine()
		if err != nil {
			continue
		}
		if !writeLine(conn, data) {
			conn.Close()
			return true
		}
	}
	s.clients[conn] = struct{}{}
	return true
}

// watch waits for the client to hang up. Clients never send anything that
// matters.
func (s *Socket) watch(conn net.Conn) {
	io.Copy(io.Discard, conn)
	s.drop(conn)
}

func (s *Socket) drop(conn net.Conn) {
	s.mu.Lock()
	delete(s.clients, conn)
	s.mu.Unlock()
	conn.Close()
}

func writeLine(conn net.Conn, data []byte) bool {
	conn.SetWriteDeadline(time.Now().Add(socketWriteTimeout))
	_, err := conn.Write(data)
	return err == nil
}

// Send records ev as its project's latest event and broadcasts it. Clients
// that fail the write are dropped.
func (s *Socket) Send(ctx context.Context, ev status.Event) error {
	data, err := ev.JSONLine()
	if err != nil {
		return fmt.Errorf("failed to serialize event: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.latest[ev.Project] = ev
	for conn := range s.clients {
		if !writeLine(conn, data) {
			delete(s.clients, conn)
			conn.Close()
		}
	}
	return nil
}

// ClientCount returns the number of connected clients.
func (s *Socket) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Close disconnects every client and removes the socket file. It is safe to
// call more than once.
func (s *Socket) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for conn := range s.clients {
		conn.Close()
	}
	s.clients = make(map[net.Conn]struct{})
	s.mu.Unlock()

	err := s.listener.Close()
	os.Remove(s.path)
	return err
}
