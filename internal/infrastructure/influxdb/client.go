package influxdb

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/gray-logic-lifx/internal/infrastructure/config"
)

const (
	pingTimeout = 5 * time.Second

	defaultBatchSize       = 100
	defaultFlushIntervalMS = 1000
)

var errUnhealthy = errors.New("server reports unhealthy")

// pointWriter is the part of api.WriteAPI the client drives.
type pointWriter interface {
	WritePoint(point *write.Point)
	Flush()
}

// Client writes light telemetry through the batching, non-blocking
// InfluxDB write API. Methods are safe for concurrent use; writes after
// Close are dropped.
type Client struct {
	client   influxdb2.Client
	writeAPI pointWriter

	connected   atomic.Bool
	written     atomic.Uint64
	writeErrors atomic.Uint64

	mu      sync.RWMutex
	onError func(err error)
}

// Stats counts points handed to the write API and batches it reported as
// failed.
type Stats struct {
	Written     uint64
	WriteErrors uint64
}

// Connect pings the server and opens a write API for cfg.Org/cfg.Bucket.
//
// Parameters:
//   - cfg: InfluxDB section. FlushInterval is in milliseconds.
//
// Returns:
//   - *Client: Client with a live write API
//   - error: ErrDisabled, or ErrConnectionFailed wrapping the ping failure
func Connect(cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	batchSize := max(cfg.BatchSize, 0)
	if batchSize == 0 {
		batchSize = defaultBatchSize
	}
	flushMS := max(cfg.FlushInterval, 0)
	if flushMS == 0 {
		flushMS = defaultFlushIntervalMS
	}

	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(uint(batchSize)). //nolint:gosec // non-negative
			SetFlushInterval(uint(flushMS)), //nolint:gosec // non-negative
	)

	if err := ping(context.Background(), client); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, cfg.URL, err)
	}

	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)
	c := &Client{client: client, writeAPI: writeAPI}
	c.connected.Store(true)
	go c.handleWriteErrors(writeAPI.Errors())
	return c, nil
}

func ping(ctx context.Context, client influxdb2.Client) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	healthy, err := client.Ping(ctx)
	if err != nil {
		return err
	}
	if !healthy {
		return errUnhealthy
	}
	return nil
}

// handleWriteErrors drains the write API's error channel until it closes.
func (c *Client) handleWriteErrors(errs <-chan error) {
	for err := range errs {
		c.writeErrors.Add(1)

		c.mu.RLock()
		callback := c.onError
		c.mu.RUnlock()
		if callback != nil {
			callback(err)
		}
	}
}

// write hands one point to the batcher unless the client is closed.
func (c *Client) write(p *write.Point) {
	if !c.connected.Load() {
		return
	}
	c.writeAPI.WritePoint(p)
	c.written.Add(1)
}

// Close flushes buffered points and releases the HTTP client.
func (c *Client) Close() error {
	if c == nil || c.writeAPI == nil {
		return nil
	}
	if !c.connected.Swap(false) {
		return nil
	}

	c.writeAPI.Flush()
	if c.client != nil {
		c.client.Close()
	}
	return nil
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.connected.Load() || c.client == nil {
		return ErrNotConnected
	}
	if err := ping(ctx, c.client); err != nil {
		return fmt.Errorf("influxdb health check: %w", err)
	}
	return nil
}

// IsConnected reports false once Close has run.
func (c *Client) IsConnected() bool { return c.connected.Load() }

// Stats returns the write counters.
func (c *Client) Stats() Stats {
	return Stats{Written: c.written.Load(), WriteErrors: c.writeErrors.Load()}
}

// SetOnError sets a callback for batches the server rejects.
func (c *Client) SetOnError(callback func(err error)) {
	c.mu.Lock()
	c.onError = callback
	c.mu.Unlock()
}

// Flush blocks until buffered points are written. No-op after Close.
func (c *Client) Flush() {
	if c.writeAPI == nil || !c.connected.Load() {
		return
	}
	c.writeAPI.Flush()
}
