// Package influx writes polled values to an InfluxDB 2.x bucket.
package influx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/zberg/go-vclient/internal/config"
	"github.com/zberg/go-vclient/pkg/vcontrold"
)

const defaultPingTimeout = 5 * time.Second

var (
	ErrConnectionFailed = errors.New("influxdb: connection failed")
	ErrWriteFailed      = errors.New("influxdb: write failed")
)

// Writer stores one point per successful item. Numeric and switch values
// go to the float field "value"; everything else goes to the string field
// "text" so field types never conflict within the measurement.
type Writer struct {
	client      influxdb2.Client
	writeAPI    api.WriteAPIBlocking
	measurement string
	logger      *slog.Logger
	now         func() time.Time
}

// Connect creates a writer and checks that the server is reachable.
func Connect(ctx context.Context, cfg config.InfluxConfig, logger *slog.Logger) (*Writer, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("%w: no url configured", ErrConnectionFailed)
	}

	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()
	healthy, err := client.Ping(pingCtx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping failed: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	measurement := cfg.Measurement
	if measurement == "" {
		measurement = "vcontrold"
	}
	return &Writer{
		client:      client,
		writeAPI:    client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		measurement: measurement,
		logger:      logger,
		now:         time.Now,
	}, nil
}

// Points converts a result to points, skipping failed items.
func (w *Writer) Points(res *vcontrold.Result) []*write.Point {
	ts := w.now()
	var points []*write.Point
	for _, it := range res.Items() {
		if it.Err != nil {
			continue
		}
		tags := map[string]string{
			"item": it.Name,
			"unit": it.Unit.String(),
		}
		points = append(points, write.NewPoint(w.measurement, tags, fields(it), ts))
	}
	return points
}

func fields(it vcontrold.Item) map[string]interface{} {
	switch v := it.Value.(type) {
	case float64:
		return map[string]interface{}{"value": v}
	case int64:
		return map[string]interface{}{"value": float64(v)}
	case bool:
		f := 0.0
		if v {
			f = 1
		}
		return map[string]interface{}{"value": f}
	}
	return map[string]interface{}{"text": vcontrold.DisplayValue(it)}
}

// Write stores the successful items of res.
func (w *Writer) Write(ctx context.Context, res *vcontrold.Result) error {
	points := w.Points(res)
	if len(points) == 0 {
		return nil
	}
	if err := w.writeAPI.WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	if w.logger != nil {
		w.logger.Debug("wrote points", "count", len(points), "measurement", w.measurement)
	}
	return nil
}

// Close releases the HTTP client.
func (w *Writer) Close() error {
	w.client.Close()
	return nil
}
