package vcontrold

import (
	"bufio"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeDaemon speaks the vcontrold prompt protocol on a loopback port.
type fakeDaemon struct {
	ln net.Listener

	mu       sync.Mutex
	replies  map[string]string
	delays   map[string]time.Duration
	hangup   map[string]bool
	commands []string
	accepted int
}

func newFakeDaemon(t *testing.T, replies map[string]string) *fakeDaemon {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	d := &fakeDaemon{
		ln:      ln,
		replies: replies,
		delays:  map[string]time.Duration{},
		hangup:  map[string]bool{},
	}
	go d.acceptLoop()
	t.Cleanup(func() { ln.Close() })
	return d
}

func (d *fakeDaemon) host() string { return "127.0.0.1" }

func (d *fakeDaemon) port() int { return d.ln.Addr().(*net.TCPAddr).Port }

func (d *fakeDaemon) session(t *testing.T, opts ...SessionOption) *Session {
	t.Helper()
	s, err := NewSession(d.host(), append([]SessionOption{WithPort(d.port())}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func (d *fakeDaemon) delay(cmd string, dur time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.delays[cmd] = dur
}

func (d *fakeDaemon) hangUpOn(cmd string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hangup[cmd] = true
}

func (d *fakeDaemon) received() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.commands...)
}

func (d *fakeDaemon) connections() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.accepted
}

func (d *fakeDaemon) acceptLoop() {
	for {
		conn, err := d.ln.Accept()
		if err != nil {
			return
		}
		d.mu.Lock()
		d.accepted++
		d.mu.Unlock()
		go d.serve(conn)
	}
}

func (d *fakeDaemon) serve(conn net.Conn) {
	defer conn.Close()
	if _, err := conn.Write([]byte(Prompt)); err != nil {
		return
	}

	sc := bufio.NewScanner(conn)
	for sc.Scan() {
		cmd := sc.Text()

		d.mu.Lock()
		d.commands = append(d.commands, cmd)
		reply, ok := d.replies[cmd]
		wait := d.delays[cmd]
		drop := d.hangup[cmd]
		d.mu.Unlock()

		if cmd == quitCommand || drop {
			return
		}
		if !ok {
			reply = "ERR: command unknown\n"
		}
		time.Sleep(wait)
		if _, err := conn.Write([]byte(reply + Prompt)); err != nil {
			return
		}
	}
}

// closedPort returns a loopback port nothing listens on.
func closedPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}
