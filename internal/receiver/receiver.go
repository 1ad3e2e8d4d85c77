// Package receiver exposes the bridge over HTTP so scripts and plugins can
// push states and hook events instead of writing log lines.
package receiver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"vibebridge/internal/engine"
	"vibebridge/internal/logging"
	"vibebridge/internal/status"
)

// DefaultListen matches the desktop display's status endpoint.
const DefaultListen = "127.0.0.1:19280"

// Target is what the receiver drives. *bridge.Bridge implements it.
type Target interface {
	SubmitUpdate(ctx context.Context, u engine.Update) error
	SubmitHook(ctx context.Context, h engine.HookEvent) error
	Snapshot(ctx context.Context) ([]engine.Snapshot, error)
}

// Server is the HTTP receiver.
type Server struct {
	target Target
	log    *logging.Logger
	mux    *http.ServeMux
	srv    *http.Server
}

// New creates a receiver for target.
func New(target Target, log *logging.Logger) *Server {
	s := &Server{target: target, log: log, mux: http.NewServeMux()}
	s.mux.HandleFunc("POST /status", s.handlePostStatus)
	s.mux.HandleFunc("GET /status", s.handleGetStatus)
	s.mux.HandleFunc("POST /hook", s.handlePostHook)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultListen
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.srv = &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
	}
	s.log.Info("Receiver listening on http://%s", ln.Addr())

	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(ln) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return ctx.Err()
	}
}

func (s *Server) handlePostStatus(w http.ResponseWriter, r *http.Request) {
	data, code, msg := readJSON(w, r)
	if code != 0 {
		sendError(w, code, msg)
		return
	}
	if err := status.ValidatePayload(data); err != nil {
		sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	name, _ := data[status.KeyState].(string)
	if name == "" {
		sendError(w, http.StatusBadRequest, "state is required")
		return
	}

	u := engine.Update{State: status.State(name), Extra: map[string]any{}}
	u.Project, _ = data[status.KeyProject].(string)
	u.Character, _ = data[status.KeyCharacter].(string)
	for k, v := range data {
		switch k {
		case status.KeyState, status.KeyProject, status.KeyCharacter, status.KeyTime:
			continue
		}
		u.Extra[k] = v
	}

	if err := s.target.SubmitUpdate(r.Context(), u); err != nil {
		sendError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	s.log.LogEvent(logging.LevelDebug, u.Project, "received", name, r.RemoteAddr)
	sendJSON(w, http.StatusOK, map[string]any{"success": true, "state": name})
}

func (s *Server) handlePostHook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, status.MaxPayloadSize))
	if err != nil {
		sendError(w, http.StatusRequestEntityTooLarge, "Payload too large")
		return
	}
	h, err := engine.ParseHook(body)
	if err != nil {
		sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.target.SubmitHook(r.Context(), h); err != nil {
		sendError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	sendJSON(w, http.StatusOK, map[string]any{"success": true, "hook": h.Name})
}

func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	snaps, err := s.target.Snapshot(r.Context())
	if err != nil {
		sendError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	sendJSON(w, http.StatusOK, map[string]any{"projects": snaps})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readJSON decodes a size-limited object body. An empty body is an empty
// object. A non-zero code carries the client-facing error message.
func readJSON(w http.ResponseWriter, r *http.Request) (map[string]any, int, string) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, status.MaxPayloadSize))
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return nil, http.StatusRequestEntityTooLarge, "Payload too large"
		}
		return nil, http.StatusInternalServerError, "Request error"
	}
	data := map[string]any{}
	if len(body) == 0 {
		return data, 0, ""
	}
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, http.StatusBadRequest, "Invalid JSON"
	}
	return data, 0, ""
}

func sendJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func sendError(w http.ResponseWriter, code int, msg string) {
	sendJSON(w, code, map[string]string{"error": msg})
}
