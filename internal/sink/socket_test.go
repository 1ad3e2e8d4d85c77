package sink

import (
	"bufio"
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"vibebridge/internal/status"
)

// Unix socket paths are limited to ~104 bytes, so avoid deep temp dirs.
func shortSocketPath(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "vb")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return filepath.Join(dir, "s.sock")
}

func TestSocket_CreateAndClose(t *testing.T) {
	sockPath := shortSocketPath(t)

	server, err := NewSocket(sockPath)
	if err != nil {
		t.Fatalf("NewSocket failed: %v", err)
	}
	if _, err := os.Stat(sockPath); err != nil {
		t.Errorf("Socket file not created: %v", err)
	}
	if server.Path() != sockPath {
		t.Errorf("Path = %q, want %q", server.Path(), sockPath)
	}

	if err := server.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if _, err := os.Stat(sockPath); !os.IsNotExist(err) {
		t.Errorf("Socket file should be removed after close")
	}
	// Closing twice is harmless.
	server.Close()
}

// waitClients polls until the socket has n registered clients.
func waitClients(t *testing.T, s *Socket, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for s.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("ClientCount = %d, want %d", s.ClientCount(), n)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func readEvent(t *testing.T, r *bufio.Reader) status.Event {
	t.Helper()
	line, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	var ev status.Event
	if err := ev.UnmarshalJSON([]byte(line)); err != nil {
		t.Fatalf("decode %q: %v", line, err)
	}
	return ev
}

func TestSocket_Broadcast(t *testing.T) {
	sockPath := shortSocketPath(t)

	server, err := NewSocket(sockPath)
	if err != nil {
		t.Fatalf("NewSocket failed: %v", err)
	}
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	server.Start(ctx)

	conn1, err := net.Dial("unix", sockPath)
	if err != nil {
		t.Fatalf("Failed to connect client 1: %v", err)
	}
	defer conn1.Close()
	conn2, err := net.Dial("unix", sockPath)
	if err != nil {
		t.Fatalf("Failed to connect client 2: %v", err)
	}
	defer conn2.Close()
	waitClients(t, server, 2)

	ev := status.NewEvent(status.Working, "OpenClaw", "claw", testTime, map[string]any{"tool": "exec"})
	if err := server.Send(context.Background(), ev); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	for i, r := range []*bufio.Reader{bufio.NewReader(conn1), bufio.NewReader(conn2)} {
		got := readEvent(t, r)
		if got.State != status.Working || got.Tool() != "exec" {
			t.Errorf("client %d got %+v", i+1, got)
		}
	}
}

func TestSocket_ReplaysLatestPerProject(t *testing.T) {
	sockPath := shortSocketPath(t)

	server, err := NewSocket(sockPath)
	if err != nil {
		t.Fatalf("NewSocket failed: %v", err)
	}
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	server.Start(ctx)

	for _, ev := range []status.Event{
		status.NewEvent(status.Thinking, "web", "claw", testTime, nil),
		status.NewEvent(status.Done, "web", "claw", testTime.Add(time.Second), nil),
		status.NewEvent(status.Working, "api", "claw", testTime, nil),
	} {
		server.Send(context.Background(), ev)
	}

	conn, err := net.Dial("unix", sockPath)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()
	r := bufio.NewReader(conn)

	first := readEvent(t, r)
	second := readEvent(t, r)
	if first.Project != "api" || first.State != status.Working {
		t.Errorf("first replay = %s/%s, want api/working", first.Project, first.State)
	}
	if second.Project != "web" || second.State != status.Done {
		t.Errorf("second replay = %s/%s, want web/done", second.Project, second.State)
	}
}

func TestSocket_ClosesOnCancel(t *testing.T) {
	sockPath := shortSocketPath(t)

	server, err := NewSocket(sockPath)
	if err != nil {
		t.Fatalf("NewSocket failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	server.Start(ctx)
	cancel()

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := os.Stat(sockPath); os.IsNotExist(err) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("socket file still present after cancel")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err := server.Send(context.Background(), status.NewEvent(status.Idle, "p", "", testTime, nil)); err != nil {
		t.Errorf("Send after close = %v, want nil", err)
	}
}

func TestSocket_ClientDisconnect(t *testing.T) {
	sockPath := shortSocketPath(t)

	server, err := NewSocket(sockPath)
	if err != nil {
		t.Fatalf("NewSocket failed: %v", err)
	}
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	server.Start(ctx)

	conn, err := net.Dial("unix", sockPath)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	waitClients(t, server, 1)

	conn.Close()
	waitClients(t, server, 0)
}
