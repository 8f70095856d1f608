package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type capturedRequest struct {
	Method string
	Header http.Header
	Body   map[string]any
}

func newCaptureServer(t *testing.T, status int) (*httptest.Server, func() []capturedRequest) {
	t.Helper()
	var (
		mu   sync.Mutex
		reqs []capturedRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		reqs = append(reqs, capturedRequest{Method: r.Method, Header: r.Header.Clone(), Body: body})
		mu.Unlock()
		w.WriteHeader(status)
		w.Write([]byte(`{"ignored":true}`))
	}))
	t.Cleanup(srv.Close)
	return srv, func() []capturedRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]capturedRequest(nil), reqs...)
	}
}

func TestMirrorEnabled(t *testing.T) {
	srv, requests := newCaptureServer(t, http.StatusOK)
	c := NewClient(Config{URL: srv.URL, APIKey: "secret"}, testLogger())

	res := c.Mirror(context.Background(), FieldEnabled, true)
	require.Equal(t, OutcomeSucceeded, res.Outcome, "err: %v", res.Err)
	assert.True(t, res.OK())
	assert.Equal(t, http.StatusOK, res.StatusCode)

	reqs := requests()
	require.Len(t, reqs, 1)
	got := reqs[0]
	assert.Equal(t, http.MethodPatch, got.Method)
	assert.Equal(t, "application/json", got.Header.Get("Content-Type"))
	assert.Equal(t, "secret", got.Header.Get("X-API-Key"))
	assert.Empty(t, got.Header.Get("Authorization"))
	assert.Equal(t, map[string]any{"enabled": true}, got.Body)
	assert.Equal(t, res.Key, got.Header.Get("Idempotency-Key"))
}

func TestMirrorBrightnessScales(t *testing.T) {
	tests := []struct {
		scale string
		level uint8
		want  float64
	}{
		{ScaleRaw, 200, 200},
		{ScalePercent, 254, 100},
		{ScalePercent, 127, 50},
		{ScalePercent, 1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.scale, func(t *testing.T) {
			srv, requests := newCaptureServer(t, http.StatusNoContent)
			c := NewClient(Config{URL: srv.URL, BrightnessScale: tt.scale}, testLogger())
			res := c.Mirror(context.Background(), FieldBrightness, tt.level)
			require.True(t, res.OK())
			assert.Equal(t, map[string]any{"brightness": tt.want}, requests()[0].Body)
		})
	}
}

func TestMirrorBearerToken(t *testing.T) {
	srv, requests := newCaptureServer(t, http.StatusOK)
	c := NewClient(Config{URL: srv.URL, BearerToken: "tok"}, testLogger())
	c.Mirror(context.Background(), FieldEnabled, false)
	got := requests()[0]
	assert.Equal(t, "Bearer tok", got.Header.Get("Authorization"))
	assert.Empty(t, got.Header.Get("X-API-Key"))
}

func TestMirrorRejected(t *testing.T) {
	srv, _ := newCaptureServer(t, http.StatusUnprocessableEntity)
	c := NewClient(Config{URL: srv.URL}, testLogger())

	res := c.Mirror(context.Background(), FieldEnabled, true)
	assert.Equal(t, OutcomeRejected, res.Outcome)
	var se *StatusError
	require.True(t, errors.As(res.Err, &se))
	assert.Equal(t, http.StatusUnprocessableEntity, se.StatusCode)
}

func TestMirrorTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewClient(Config{URL: url}, testLogger())
	res := c.Mirror(context.Background(), FieldEnabled, true)
	assert.Equal(t, OutcomeTransportError, res.Outcome)
	assert.Error(t, res.Err)
}

func TestMirrorTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	c := NewClient(Config{URL: srv.URL, Timeout: 50 * time.Millisecond}, testLogger())
	start := time.Now()
	res := c.Mirror(context.Background(), FieldEnabled, true)
	assert.Equal(t, OutcomeTransportError, res.Outcome)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestMirrorWithoutURLIsNoop(t *testing.T) {
	c := NewClient(Config{}, testLogger())
	var hooked []Result
	c.OnResult(func(r Result) { hooked = append(hooked, r) })

	res := c.Mirror(context.Background(), FieldEnabled, true)
	assert.Equal(t, OutcomeSkipped, res.Outcome)
	assert.NoError(t, res.Err)
	require.Len(t, hooked, 1)
	assert.Equal(t, OutcomeSkipped, hooked[0].Outcome)
}

func TestIdempotencyKeysUnique(t *testing.T) {
	g := newKeyGenerator()
	const n = 1000
	keys := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < n/4; j++ {
				keys <- g.next()
			}
		}()
	}
	wg.Wait()
	close(keys)

	seen := make(map[string]bool, n)
	for k := range keys {
		require.False(t, seen[k], "duplicate key %s", k)
		seen[k] = true
		assert.True(t, strings.HasPrefix(k, g.pid+"-"))
	}
	assert.Len(t, seen, n)
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("CLOUD_URL", "")
	t.Setenv("CLOUD_BASE_URL", "http://legacy:6000")
	t.Setenv("CLOUD_API_KEY", "k")
	t.Setenv("CLOUD_TIMEOUT", "2s")

	cfg := ConfigFromEnv(Config{})
	assert.Equal(t, "http://legacy:6000", cfg.URL)
	assert.Equal(t, "k", cfg.APIKey)
	assert.Equal(t, 2*time.Second, cfg.Timeout)

	t.Setenv("CLOUD_URL", "http://primary/api/light")
	cfg = ConfigFromEnv(Config{URL: "http://file"})
	assert.Equal(t, "http://primary/api/light", cfg.URL)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, Config{}.Validate())
	assert.NoError(t, Config{URL: "https://x", BrightnessScale: ScalePercent}.Validate())
	assert.Error(t, Config{BrightnessScale: "weird"}.Validate())
	assert.Error(t, Config{URL: "ftp://x"}.Validate())

	d := Config{}.WithDefaults()
	assert.Equal(t, http.MethodPatch, d.Method)
	assert.Equal(t, DefaultTimeout, d.Timeout)
	assert.Equal(t, ScaleRaw, d.BrightnessScale)
}

type recordingMirror struct {
	mu     sync.Mutex
	fields []Field
	block  chan struct{}
}

func (m *recordingMirror) Mirror(_ context.Context, field Field, value any) Result {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	m.fields = append(m.fields, field)
	m.mu.Unlock()
	return Result{Field: field, Value: value, Outcome: OutcomeSucceeded}
}

func TestAsyncMirrorPreservesOrder(t *testing.T) {
	rec := &recordingMirror{}
	a := NewAsyncMirror(rec, 8, testLogger())
	a.Start(context.Background())

	assert.Equal(t, OutcomeQueued, a.Mirror(context.Background(), FieldEnabled, true).Outcome)
	assert.Equal(t, OutcomeQueued, a.Mirror(context.Background(), FieldBrightness, uint8(10)).Outcome)
	a.Close()

	assert.Equal(t, []Field{FieldEnabled, FieldBrightness}, rec.fields)
	res := a.Mirror(context.Background(), FieldEnabled, false)
	assert.ErrorIs(t, res.Err, ErrMirrorClosed)
}

func TestAsyncMirrorDropsWhenFull(t *testing.T) {
	rec := &recordingMirror{block: make(chan struct{})}
	a := NewAsyncMirror(rec, 1, testLogger())
	// No worker yet: the first job fills the queue.
	assert.Equal(t, OutcomeQueued, a.Mirror(context.Background(), FieldEnabled, true).Outcome)
	res := a.Mirror(context.Background(), FieldEnabled, false)
	assert.Equal(t, OutcomeDropped, res.Outcome)
	assert.ErrorIs(t, res.Err, ErrQueueFull)

	close(rec.block)
	a.Start(context.Background())
	a.Close()
	assert.Len(t, rec.fields, 1)
}
