package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Field is the single JSON field carried by a mirror request.
type Field string

const (
	FieldEnabled    Field = "enabled"
	FieldBrightness Field = "brightness"
)

// Outcome classifies a mirror attempt.
type Outcome int

const (
	OutcomeSkipped Outcome = iota
	OutcomeSucceeded
	OutcomeRejected
	OutcomeTransportError
	OutcomeQueued
	OutcomeDropped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSkipped:
		return "skipped"
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeRejected:
		return "rejected"
	case OutcomeTransportError:
		return "transport_error"
	case OutcomeQueued:
		return "queued"
	case OutcomeDropped:
		return "dropped"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

var (
	ErrQueueFull    = errors.New("cloud mirror queue full")
	ErrMirrorClosed = errors.New("cloud mirror closed")
)

// StatusError is returned when the cloud answered with a non-2xx status.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("cloud rejected request: %s", e.Status)
}

// Result describes one mirror attempt.
type Result struct {
	Field      Field         `json:"field"`
	Value      any           `json:"value"`
	Outcome    Outcome       `json:"-"`
	StatusCode int           `json:"status_code,omitempty"`
	Key        string        `json:"idempotency_key,omitempty"`
	Duration   time.Duration `json:"duration"`
	Err        error         `json:"-"`
}

// OK reports whether the cloud accepted the update.
func (r Result) OK() bool {
	return r.Outcome == OutcomeSucceeded
}

// Client pushes single-field updates to the cloud endpoint.
type Client struct {
	cfg    Config
	http   *http.Client
	keys   *keyGenerator
	logger *slog.Logger

	hookMu sync.RWMutex
	hooks  []func(Result)
}

// NewClient creates a cloud client. An empty URL makes every call a no-op.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	cfg = cfg.WithDefaults()
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		keys:   newKeyGenerator(),
		logger: logger.With("component", "cloud"),
	}
}

func (c *Client) Config() Config { return c.cfg }

// OnResult registers a callback invoked after every attempt.
func (c *Client) OnResult(fn func(Result)) {
	c.hookMu.Lock()
	c.hooks = append(c.hooks, fn)
	c.hookMu.Unlock()
}

// Mirror sends {"<field>": value} to the cloud. Failures are logged and
// classified in the result; they never surface as Go errors.
func (c *Client) Mirror(ctx context.Context, field Field, value any) Result {
	res := c.mirror(ctx, field, value)
	c.hookMu.RLock()
	hooks := c.hooks
	c.hookMu.RUnlock()
	for _, fn := range hooks {
		fn(res)
	}
	return res
}

func (c *Client) mirror(ctx context.Context, field Field, value any) Result {
	res := Result{Field: field, Value: c.scale(field, value)}
	if !c.cfg.Enabled() {
		res.Outcome = OutcomeSkipped
		c.logger.Debug("cloud url not set, local only", "field", field, "value", res.Value)
		return res
	}

	body, err := json.Marshal(map[Field]any{field: res.Value})
	if err != nil {
		res.Outcome = OutcomeTransportError
		res.Err = fmt.Errorf("encode body: %w", err)
		c.logger.Error("cloud mirror failed", "field", field, "err", res.Err)
		return res
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, c.cfg.Method, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		res.Outcome = OutcomeTransportError
		res.Err = fmt.Errorf("build request: %w", err)
		c.logger.Error("cloud mirror failed", "field", field, "err", res.Err)
		return res
	}
	res.Key = c.keys.next()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", res.Key)
	if c.cfg.APIKey != "" {
		req.Header.Set("X-API-Key", c.cfg.APIKey)
	}
	if c.cfg.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.BearerToken)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	res.Duration = time.Since(start)
	if err != nil {
		res.Outcome = OutcomeTransportError
		res.Err = err
		c.logger.Error("cloud mirror transport error", "url", c.cfg.URL, "field", field,
			"value", res.Value, "key", res.Key, "err", err)
		return res
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	res.StatusCode = resp.StatusCode
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		res.Outcome = OutcomeRejected
		res.Err = &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
		c.logger.Warn("cloud mirror rejected", "url", c.cfg.URL, "field", field,
			"value", res.Value, "status", resp.StatusCode, "key", res.Key)
		return res
	}

	res.Outcome = OutcomeSucceeded
	c.logger.Info("cloud mirror succeeded", "field", field, "value", res.Value,
		"status", resp.StatusCode, "duration", res.Duration)
	return res
}

// scale converts brightness to the configured scale.
func (c *Client) scale(field Field, value any) any {
	if field != FieldBrightness || c.cfg.BrightnessScale != ScalePercent {
		return value
	}
	level, ok := value.(uint8)
	if !ok {
		return value
	}
	return int(level) * 100 / 254
}
