package vcontrold

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"
)

// DiscoveryResult represents a discovered vcontrold daemon.
type DiscoveryResult struct {
	IP   string
	Port int
}

// probeTimeout bounds the dial and prompt read for a single address.
const probeTimeout = 300 * time.Millisecond

// Discover searches the local /24 subnets for daemons listening on port
// (DefaultPort when zero). A host counts as found only when it greets with
// the vcontrold prompt.
// If the context has no deadline, a 3-second timeout is applied.
func Discover(ctx context.Context, port int) ([]DiscoveryResult, error) {
	if port == 0 {
		port = DefaultPort
	}

	// Apply default timeout if context has no deadline
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
	}

	ips, err := getLocalIPs()
	if err != nil {
		return nil, fmt.Errorf("get local IPs: %w", err)
	}

	var targets []string
	for _, ip := range ips {
		base := ip.Mask(net.CIDRMask(24, 32))
		for i := 1; i < 255; i++ {
			targets = append(targets, net.IP{base[0], base[1], base[2], byte(i)}.String())
		}
	}
	return scan(ctx, targets, port), nil
}

// scan probes every target concurrently and returns the hits in target order.
func scan(ctx context.Context, targets []string, port int) []DiscoveryResult {
	found := make([]bool, len(targets))
	var wg sync.WaitGroup
	for i, ip := range targets {
		wg.Add(1)
		go func(i int, ip string) {
			defer wg.Done()
			found[i] = probe(ctx, net.JoinHostPort(ip, strconv.Itoa(port)))
		}(i, ip)
	}
	wg.Wait()

	var results []DiscoveryResult
	for i, ok := range found {
		if ok {
			results = append(results, DiscoveryResult{IP: targets[i], Port: port})
		}
	}
	return results
}

func probe(ctx context.Context, addr string) bool {
	dialCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return false
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(probeTimeout))
	buf := make([]byte, 64)
	n, _ := conn.Read(buf)
	if !bytes.Contains(buf[:n], []byte(Prompt)) {
		return false
	}
	_, _ = conn.Write([]byte(quitCommand + LineTerminator))
	return true
}

func getLocalIPs() ([]net.IP, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil, err
	}

	var ips []net.IP
	for _, addr := range addrs {
		if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
			if v4 := ipnet.IP.To4(); v4 != nil {
				ips = append(ips, v4)
			}
		}
	}
	return ips, nil
}
