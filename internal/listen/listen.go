// Package listen binds the dev and preview server sockets.
package listen

import (
	"context"
	stderrors "errors"
	"net"
	"sort"
	"strconv"
	"strings"
	"syscall"

	"github.com/vango-dev/devpack/internal/config"
	"github.com/vango-dev/devpack/internal/errors"
)

// MaxAttempts bounds the ports tried when strict mode is off.
const MaxAttempts = 100

// Listen binds host:port. In strict mode a busy port fails with E200 and
// no other port is tried; otherwise port, port+1, ... are tried until one
// is free. Other bind failures yield E201.
func Listen(ctx context.Context, host config.Host, port int, strict bool) (net.Listener, error) {
	lc := &net.ListenConfig{}
	hostPart := host.ListenHost()

	attempts := MaxAttempts
	if strict || port == 0 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts && port+i <= 65535; i++ {
		addr := net.JoinHostPort(hostPart, strconv.Itoa(port+i))
		ln, err := lc.Listen(ctx, "tcp", addr)
		if err == nil {
			return ln, nil
		}
		lastErr = err
		if !AddrInUse(err) {
			return nil, errors.New("E201").
				WithDetail("Cannot listen on " + addr).
				Wrap(err)
		}
	}

	if strict {
		return nil, errors.New("E200").
			WithDetail("Port " + strconv.Itoa(port) + " is already in use").
			WithSuggestion("Stop the process using the port, or set strictPort to false to use the next free port").
			WithExample(`{"server": {"strictPort": false}}`).
			Wrap(lastErr)
	}
	return nil, errors.New("E200").
		WithDetail("No free port between " + strconv.Itoa(port) + " and " + strconv.Itoa(port+attempts-1)).
		Wrap(lastErr)
}

// AddrInUse reports whether err is an address-in-use bind failure.
func AddrInUse(err error) bool {
	if stderrors.Is(err, syscall.EADDRINUSE) || platformAddrInUse(err) {
		return true
	}
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "address already in use")
}

// Port returns the TCP port ln is bound to.
func Port(ln net.Listener) int {
	if addr, ok := ln.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return 0
}

// URLs holds the addresses printed when a server starts.
type URLs struct {
	Local   []string
	Network []string
}

// Primary returns the URL to open in a browser: the first local URL, or
// the first network URL when the server is not reachable on loopback.
func (u URLs) Primary() string {
	if len(u.Local) > 0 {
		return u.Local[0]
	}
	if len(u.Network) > 0 {
		return u.Network[0]
	}
	return ""
}

// ResolveURLs returns the browser URLs for a server bound with host on port.
// Network URLs list the machine's non-loopback IPv4 addresses when the
// server listens on all interfaces.
func ResolveURLs(host config.Host, port int, base string) URLs {
	if base == "" {
		base = "/"
	}
	p := strconv.Itoa(port)
	format := func(h string) string {
		return "http://" + net.JoinHostPort(h, p) + base
	}

	var urls URLs
	switch {
	case host.IsAll():
		urls.Local = []string{format("localhost")}
		for _, ip := range interfaceIPs() {
			urls.Network = append(urls.Network, format(ip))
		}
	case host.Address == "" || host.Address == "localhost":
		urls.Local = []string{format("localhost")}
	default:
		if ip := net.ParseIP(host.Address); ip != nil && ip.IsLoopback() {
			urls.Local = []string{format(host.Address)}
		} else {
			urls.Network = []string{format(host.Address)}
		}
	}
	return urls
}

func interfaceIPs() []string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil
	}
	var ips []string
	for _, addr := range addrs {
		ipnet, ok := addr.(*net.IPNet)
		if !ok || ipnet.IP.IsLoopback() {
			continue
		}
		if ip4 := ipnet.IP.To4(); ip4 != nil {
			ips = append(ips, ip4.String())
		}
	}
	sort.Strings(ips)
	return ips
}
