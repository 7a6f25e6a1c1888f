package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/zakazai/enrichdb/internal/types"
)

// Sink receives enriched records and reports
type Sink interface {
	Forward(ctx context.Context, payload interface{}) error
}

// ForwardingError is returned when the sink cannot be reached or answers
// with anything but 200. StatusCode is 0 when no response was received.
type ForwardingError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *ForwardingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("forwarding failed: %v", e.Err)
	}
	if e.Body == "" {
		return fmt.Sprintf("forwarding failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("forwarding failed with status %d: %s", e.StatusCode, e.Body)
}

func (e *ForwardingError) Unwrap() error {
	return e.Err
}

// WebhookSink posts JSON payloads to a fixed URL
type WebhookSink struct {
	url    string
	http   *http.Client
	logger *types.Logger
}

// NewWebhookSink creates a sink posting to url
func NewWebhookSink(url string, timeout time.Duration) *WebhookSink {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookSink{
		url:    url,
		http:   &http.Client{Timeout: timeout},
		logger: types.GlobalLogger.WithModule("notify"),
	}
}

func (s *WebhookSink) Forward(ctx context.Context, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "encode payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	requestID := uuid.New().String()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", requestID)

	resp, err := s.http.Do(req)
	if err != nil {
		return &ForwardingError{Err: errors.Wrap(err, "post to sink")}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		s.logger.Warning("sink rejected request %s with status %d", requestID, resp.StatusCode)
		return &ForwardingError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	s.logger.Debug("forwarded request %s (%d bytes)", requestID, len(body))
	return nil
}

// NopSink discards everything. Used when no webhook is configured.
type NopSink struct{}

func (NopSink) Forward(context.Context, interface{}) error { return nil }
