// Package history records attribute reports as InfluxDB time series.
package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultBatchSize      = 100
	defaultFlushInterval  = 10 * time.Second
)

var (
	ErrDisabled         = errors.New("history: disabled in configuration")
	ErrConnectionFailed = errors.New("history: connection failed")
)

// Config holds InfluxDB settings.
type Config struct {
	Enabled       bool          `yaml:"enabled"`
	URL           string        `yaml:"url"`
	Token         string        `yaml:"token"`
	Org           string        `yaml:"org"`
	Bucket        string        `yaml:"bucket"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// pointWriter is the subset of api.WriteAPI used by the recorder.
type pointWriter interface {
	WritePoint(point *write.Point)
	Flush()
}

// Client owns the InfluxDB connection and its non-blocking write API.
type Client struct {
	client influxdb2.Client
	writer pointWriter
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// Connect creates the client, pings the server and starts the batched write
// API. Write errors are logged asynchronously.
func Connect(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	flush := cfg.FlushInterval
	if flush <= 0 {
		flush = defaultFlushInterval
	}

	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(uint(batchSize)).
			SetFlushInterval(uint(flush.Milliseconds())))

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnectTimeout)
	defer cancel()
	healthy, err := client.Ping(pingCtx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)
	c := &Client{
		client: client,
		writer: writeAPI,
		logger: logger.With("component", "history"),
	}
	errCh := writeAPI.Errors()
	go func() {
		for err := range errCh {
			c.logger.Warn("influxdb write failed", "err", err)
		}
	}()

	c.logger.Info("history connected", "url", cfg.URL, "org", cfg.Org, "bucket", cfg.Bucket)
	return c, nil
}

// WritePoint queues a point. It never blocks on the network.
func (c *Client) WritePoint(p *write.Point) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	c.writer.WritePoint(p)
}

// Flush sends all buffered points.
func (c *Client) Flush() {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.closed {
		c.writer.Flush()
	}
}

// Close flushes pending points and closes the connection.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.writer.Flush()
	if c.client != nil {
		c.client.Close()
	}
}
