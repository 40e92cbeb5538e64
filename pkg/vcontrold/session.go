package vcontrold

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"
)

type sessionState uint8

const (
	stateIdle sessionState = iota
	stateOpen
	stateClosed
)

// Session is a single connection to a vcontrold daemon. Commands are
// strictly request/response: one command is in flight at a time.
//
// A Session dials lazily on the first command unless Connect is called.
// Once closed, by Close or by a dropped connection, it never reopens.
type Session struct {
	addr   string
	cfg    *sessionConfig
	logger *slog.Logger

	mu     sync.Mutex
	conn   net.Conn
	state  sessionState
	desync bool
}

// NewSession returns an unopened session for the daemon at host.
func NewSession(host string, opts ...SessionOption) (*Session, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("invalid option: %w", err)
		}
	}
	if host == "" {
		return nil, errors.New("host is required")
	}

	return &Session{
		addr:   net.JoinHostPort(host, strconv.Itoa(cfg.port)),
		cfg:    cfg,
		logger: cfg.logger,
	}, nil
}

// Dial creates a session and connects it.
func Dial(ctx context.Context, host string, opts ...SessionOption) (*Session, error) {
	s, err := NewSession(host, opts...)
	if err != nil {
		return nil, err
	}
	if err := s.Connect(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Addr returns the daemon address as host:port.
func (s *Session) Addr() string { return s.addr }

// Markers returns the error markers used to decode replies.
func (s *Session) Markers() ErrorMarkers { return s.cfg.markers }

// Connected reports whether the connection is currently open.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateOpen
}

// Connect dials the daemon and waits for its prompt. The context is used
// for the connection timeout. Calling Connect on an open session is a no-op.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connectLocked(ctx)
}

func (s *Session) connectLocked(ctx context.Context) error {
	switch s.state {
	case stateOpen:
		return nil
	case stateClosed:
		return ErrSessionClosed
	}

	// Apply connect timeout to context if not already set
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.connectTimeout)
		defer cancel()
	}

	keepAlive := s.cfg.keepAlive
	if keepAlive == 0 {
		keepAlive = -1
	}
	d := net.Dialer{KeepAlive: keepAlive}
	conn, err := d.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		s.state = stateClosed
		return &ConnectionError{Addr: s.addr, Err: err}
	}
	s.conn = conn
	s.state = stateOpen

	// The daemon greets with its prompt before accepting commands.
	if _, err := s.readReply(ctx); err != nil {
		s.closeLocked()
		return &ConnectionError{Addr: s.addr, Err: fmt.Errorf("waiting for prompt: %w", err)}
	}

	if s.logger != nil {
		s.logger.Debug("connected to daemon", "addr", s.addr)
	}
	return nil
}

// Send issues command and decodes the reply for unit. A command that runs
// past the request timeout yields a Response with ErrorDetail "timeout"
// and no error; the session stays usable. Connection failures are returned
// as *ConnectionError and close the session.
func (s *Session) Send(ctx context.Context, command string, unit Unit) (*Response, error) {
	raw, err := s.Exchange(ctx, command)
	if errors.Is(err, ErrCommandTimeout) {
		return &Response{Status: StatusError, ErrorDetail: timeoutDetail}, nil
	}
	if err != nil {
		return nil, err
	}
	return Decode(raw, unit, s.cfg.markers), nil
}

// Exchange writes command and returns the raw reply without the prompt.
func (s *Session) Exchange(ctx context.Context, command string) ([]byte, error) {
	if strings.ContainsAny(command, "\r\n") {
		return nil, fmt.Errorf("command %q contains a line break", command)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case stateClosed:
		return nil, ErrSessionClosed
	case stateIdle:
		if err := s.connectLocked(ctx); err != nil {
			return nil, err
		}
	}

	// The request timeout bounds every command; an earlier parent deadline
	// still wins.
	ctx, cancel := context.WithTimeout(ctx, s.cfg.requestTimeout)
	defer cancel()

	// A previous command timed out; its reply may still arrive.
	if s.desync {
		if _, err := s.readReply(ctx); err != nil {
			return nil, s.fail(ctx, command, err)
		}
		s.desync = false
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = s.conn.SetWriteDeadline(deadline)
	}
	if _, err := s.conn.Write([]byte(command + LineTerminator)); err != nil {
		return nil, s.fail(ctx, command, err)
	}
	if s.logger != nil {
		s.logger.Debug("command sent", "command", command)
	}

	reply, err := s.readReply(ctx)
	if err != nil {
		return nil, s.fail(ctx, command, err)
	}

	if s.logger != nil {
		s.logger.Debug("reply received", "command", command, "len", len(reply))
	}
	return reply, nil
}

var errReplyTooLong = fmt.Errorf("reply exceeds %d bytes", MaxReplyLen)

// readReply reads until the daemon's prompt, honouring ctx's deadline and
// cancellation. The prompt is not included in the result.
func (s *Session) readReply(ctx context.Context) ([]byte, error) {
	// The callback may run after Close has cleared s.conn.
	conn := s.conn
	deadline, _ := ctx.Deadline()
	_ = conn.SetReadDeadline(deadline)
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	defer stop()

	prompt := []byte(Prompt)
	var reply []byte
	chunk := make([]byte, 1024)
	for {
		n, err := conn.Read(chunk)
		reply = append(reply, chunk[:n]...)
		if i := bytes.Index(reply, prompt); i >= 0 {
			return reply[:i], nil
		}
		if len(reply) > MaxReplyLen {
			return nil, errReplyTooLong
		}
		if err != nil {
			return nil, err
		}
	}
}

// fail classifies a read or write error. Timeouts and cancellations leave
// the connection open but out of sync; anything else closes it.
func (s *Session) fail(ctx context.Context, command string, err error) error {
	var ne net.Error
	switch {
	case ctx.Err() != nil && !errors.Is(ctx.Err(), context.DeadlineExceeded):
		s.desync = true
		return ctx.Err()
	case errors.Is(err, errReplyTooLong):
		s.desync = true
		return fmt.Errorf("%s: %w: %w", command, ErrDecode, err)
	case errors.As(err, &ne) && ne.Timeout():
		s.desync = true
		if s.logger != nil {
			s.logger.Warn("command timeout", "command", command, "error", err)
		}
		return fmt.Errorf("%s: %w", command, ErrCommandTimeout)
	}

	if s.logger != nil {
		s.logger.Error("connection failed", "addr", s.addr, "command", command, "error", err)
	}
	s.closeLocked()
	return &ConnectionError{Addr: s.addr, Err: err}
}

// Close ends the session. It is safe to call more than once; the socket is
// closed exactly once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == stateOpen {
		// Polite goodbye; the daemon closes its end on "quit".
		_ = s.conn.SetWriteDeadline(time.Now().Add(time.Second))
		_, _ = s.conn.Write([]byte(quitCommand + LineTerminator))
	}
	return s.closeLocked()
}

func (s *Session) closeLocked() error {
	s.state = stateClosed
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	if s.logger != nil {
		s.logger.Debug("connection closed", "addr", s.addr)
	}
	return err
}

// Device identifies the heating controller behind the daemon.
type Device struct {
	Model    string `json:"model" yaml:"model"`
	ID       int    `json:"id" yaml:"id"`
	Protocol string `json:"protocol" yaml:"protocol"`
}

const identifyAttempts = 3

// Identify asks the daemon for the device type. The reply looks like
// "V200KW2 ID=2094 Protokoll:KW". Malformed replies are retried.
func (s *Session) Identify(ctx context.Context) (Device, error) {
	var lastErr error
	for attempt := 1; attempt <= identifyAttempts; attempt++ {
		resp, err := s.Send(ctx, identifyCommand, UnitText)
		if err != nil {
			return Device{}, err
		}
		if resp.Status == StatusError {
			lastErr = &DaemonError{Command: identifyCommand, Detail: resp.ErrorDetail}
		} else if dev, err := ParseDevice(resp.Text()); err == nil {
			if s.logger != nil {
				s.logger.Info("device identified", "model", dev.Model, "id", dev.ID, "protocol", dev.Protocol, "attempt", attempt)
			}
			return dev, nil
		} else {
			lastErr = err
		}
		if s.logger != nil {
			s.logger.Warn("device identification failed", "attempt", attempt, "error", lastErr)
		}
	}
	return Device{}, lastErr
}

// ParseDevice parses a getDevType reply.
func ParseDevice(s string) (Device, error) {
	var dev Device
	var haveID bool
	for _, f := range strings.Fields(s) {
		switch {
		case strings.HasPrefix(f, "ID="):
			id, err := strconv.ParseInt(strings.TrimPrefix(f, "ID="), 10, 32)
			if err != nil {
				return Device{}, fmt.Errorf("%w: device id %q", ErrDecode, f)
			}
			dev.ID, haveID = int(id), true
		case strings.Contains(f, ":"):
			_, dev.Protocol, _ = strings.Cut(f, ":")
		case dev.Model == "":
			dev.Model = f
		}
	}
	if !haveID || dev.Protocol == "" {
		return Device{}, fmt.Errorf("%w: unexpected device reply %q", ErrDecode, s)
	}
	return dev, nil
}
