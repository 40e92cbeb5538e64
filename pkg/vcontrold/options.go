package vcontrold

import (
	"errors"
	"log/slog"
	"time"
)

// SessionOption configures a Session.
type SessionOption func(*sessionConfig) error

// sessionConfig holds the configuration for a Session.
type sessionConfig struct {
	port           int
	connectTimeout time.Duration
	requestTimeout time.Duration
	keepAlive      time.Duration
	markers        ErrorMarkers
	logger         *slog.Logger
}

// defaultConfig returns the default session configuration.
func defaultConfig() *sessionConfig {
	return &sessionConfig{
		port:           DefaultPort,
		connectTimeout: 10 * time.Second,
		requestTimeout: 5 * time.Second,
		keepAlive:      30 * time.Second,
		markers:        DefaultErrorMarkers,
		logger:         nil,
	}
}

// WithPort sets the TCP port to connect to.
// Default is 3002.
func WithPort(port int) SessionOption {
	return func(c *sessionConfig) error {
		if port < 1 || port > 65535 {
			return errors.New("port must be between 1 and 65535")
		}
		c.port = port
		return nil
	}
}

// WithConnectTimeout sets the timeout for establishing a connection.
// Default is 10 seconds.
func WithConnectTimeout(d time.Duration) SessionOption {
	return func(c *sessionConfig) error {
		if d <= 0 {
			return errors.New("connect timeout must be positive")
		}
		c.connectTimeout = d
		return nil
	}
}

// WithRequestTimeout sets how long a single command may wait for its reply.
// The daemon needs a few seconds per command; default is 5 seconds.
func WithRequestTimeout(d time.Duration) SessionOption {
	return func(c *sessionConfig) error {
		if d <= 0 {
			return errors.New("request timeout must be positive")
		}
		c.requestTimeout = d
		return nil
	}
}

// WithKeepAlive sets the TCP keep-alive period used while the connection
// sits idle between polls. Zero disables keep-alive probes.
// Default is 30 seconds.
func WithKeepAlive(d time.Duration) SessionOption {
	return func(c *sessionConfig) error {
		if d < 0 {
			return errors.New("keep-alive must not be negative")
		}
		c.keepAlive = d
		return nil
	}
}

// WithErrorMarkers replaces the substrings that identify failure replies.
func WithErrorMarkers(markers ...string) SessionOption {
	return func(c *sessionConfig) error {
		if len(markers) == 0 {
			return errors.New("at least one error marker is required")
		}
		c.markers = ErrorMarkers(markers)
		return nil
	}
}

// WithLogger sets a structured logger for debug and error logging.
// By default, no logging is performed.
func WithLogger(logger *slog.Logger) SessionOption {
	return func(c *sessionConfig) error {
		c.logger = logger
		return nil
	}
}
