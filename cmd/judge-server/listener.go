package main

import (
	"context"
	"errors"
	"net"
	"os"
	"strings"
)

const unixPrefix = "unix:"

// newListener listens on addr. "unix:/path" listens on a unix socket and
// a host resolving to several addresses (e.g. localhost) listens on all.
func newListener(addr string) (net.Listener, error) {
	if path, ok := strings.CutPrefix(addr, unixPrefix); ok {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		return net.Listen("unix", path)
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}
	if host == "" {
		return net.Listen("tcp", addr)
	}
	ips, err := resolveHost(host)
	if err != nil {
		return nil, err
	}
	if len(ips) <= 1 {
		return net.Listen("tcp", addr)
	}
	iPort, err := net.LookupPort("tcp", port)
	if err != nil {
		return nil, err
	}
	return newMultiListener(ips, iPort)
}

func resolveHost(host string) ([]net.IP, error) {
	if host != "localhost" {
		return net.LookupIP(host)
	}
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil, err
	}
	var rt []net.IP
	for _, addr := range addrs {
		if ip, ok := addr.(*net.IPNet); ok && ip.IP.IsLoopback() {
			rt = append(rt, ip.IP)
		}
	}
	return rt, nil
}

type acceptResult struct {
	conn net.Conn
	err  error
}

// multiListener accepts from several listeners bound to the same port
type multiListener struct {
	listeners []net.Listener
	accepted  chan acceptResult
	ctx       context.Context
	cancel    context.CancelFunc
}

func newMultiListener(ips []net.IP, port int) (net.Listener, error) {
	ctx, cancel := context.WithCancel(context.Background())
	ml := &multiListener{
		accepted: make(chan acceptResult),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, ip := range ips {
		l, err := net.ListenTCP("tcp", &net.TCPAddr{IP: ip, Port: port})
		if err != nil {
			ml.Close()
			return nil, err
		}
		ml.listeners = append(ml.listeners, l)
	}
	for _, l := range ml.listeners {
		go ml.acceptLoop(l)
	}
	return ml, nil
}

func (ml *multiListener) acceptLoop(l net.Listener) {
	for {
		conn, err := l.Accept()
		select {
		case ml.accepted <- acceptResult{conn: conn, err: err}:
		case <-ml.ctx.Done():
			if conn != nil {
				conn.Close()
			}
			return
		}
		if err != nil && errors.Is(err, net.ErrClosed) {
			return
		}
	}
}

func (ml *multiListener) Accept() (net.Conn, error) {
	select {
	case r := <-ml.accepted:
		return r.conn, r.err
	case <-ml.ctx.Done():
		return nil, net.ErrClosed
	}
}

func (ml *multiListener) Close() error {
	ml.cancel()
	var errs []error
	for _, l := range ml.listeners {
		errs = append(errs, l.Close())
	}
	return errors.Join(errs...)
}

func (ml *multiListener) Addr() net.Addr {
	return ml.listeners[0].Addr()
}

func printListener(lis net.Listener) string {
	ml, ok := lis.(*multiListener)
	if !ok {
		return lis.Addr().String()
	}
	addrs := make([]string, 0, len(ml.listeners))
	for _, l := range ml.listeners {
		addrs = append(addrs, l.Addr().String())
	}
	return strings.Join(addrs, ",")
}
