package sink

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"vibebridge/internal/logging"
	"vibebridge/internal/status"
)

// DefaultDesktopURL is the desktop overlay's status endpoint.
const DefaultDesktopURL = "http://127.0.0.1:19280/status"

// ErrQueueFull is returned when the HTTP sink drops an event.
var ErrQueueFull = errors.New("http queue full")

// HTTPOptions configures an HTTP sink.
type HTTPOptions struct {
	URL       string
	Timeout   time.Duration
	QueueSize int
	Headers   map[string]string
	UserAgent string
	Logger    *logging.Logger
}

// HTTP posts events to a status endpoint. Posts happen on a worker goroutine
// behind a bounded queue so a slow endpoint never stalls the bridge; when the
// queue is full the event is dropped. Failures are logged, not retried.
type HTTP struct {
	url       string
	headers   map[string]string
	userAgent string
	client    *http.Client
	log       *logging.Logger

	queue     chan []byte
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewHTTP creates an HTTP sink and starts its worker.
func NewHTTP(opts HTTPOptions) *HTTP {
	if opts.URL == "" {
		opts.URL = DefaultDesktopURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Second
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "vibebridge"
	}

	h := &HTTP{
		url:       opts.URL,
		headers:   opts.Headers,
		userAgent: opts.UserAgent,
		client:    &http.Client{Timeout: opts.Timeout},
		log:       opts.Logger,
		queue:     make(chan []byte, opts.QueueSize),
	}
	h.wg.Add(1)
	go h.worker()
	return h
}

// Name returns the sink type.
func (h *HTTP) Name() string {
	return "http"
}

// Send queues ev for delivery.
func (h *HTTP) Send(ctx context.Context, ev status.Event) error {
	data, err := ev.MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize event: %w", err)
	}
	select {
	case h.queue <- data:
		return nil
	default:
		return ErrQueueFull
	}
}

func (h *HTTP) worker() {
	defer h.wg.Done()
	for data := range h.queue {
		if err := h.post(context.Background(), data); err != nil {
			h.log.Warn("http: %v", err)
			continue
		}
		h.log.Debug("http sent: %s", data)
	}
}

// Post delivers ev synchronously.
func (h *HTTP) Post(ctx context.Context, ev status.Event) error {
	data, err := ev.MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize event: %w", err)
	}
	return h.post(ctx, data)
}

func (h *HTTP) post(ctx context.Context, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", h.userAgent)
	req.Header.Set("X-Request-Id", uuid.NewString())
	for k, v := range h.headers {
		req.Header.Set(k, v)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s returned status %d", h.url, resp.StatusCode)
	}
	return nil
}

// Close stops accepting events and waits for queued posts to finish.
func (h *HTTP) Close() error {
	h.closeOnce.Do(func() {
		close(h.queue)
	})
	h.wg.Wait()
	return nil
}
