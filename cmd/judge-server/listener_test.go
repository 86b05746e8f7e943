package main

import (
	"net"
	"path/filepath"
	"testing"
)

func TestNewListenerTCP(t *testing.T) {
	lis, err := newListener("127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer lis.Close()
	if printListener(lis) == "" {
		t.Fatal("empty address")
	}
}

func TestNewListenerUnix(t *testing.T) {
	path := filepath.Join(t.TempDir(), "judge.sock")
	for range 2 {
		// a stale socket file is replaced
		lis, err := newListener(unixPrefix + path)
		if err != nil {
			t.Fatal(err)
		}
		go func() {
			if c, err := lis.Accept(); err == nil {
				c.Close()
			}
		}()
		c, err := net.Dial("unix", path)
		if err != nil {
			t.Fatal(err)
		}
		c.Close()
		lis.(*net.UnixListener).SetUnlinkOnClose(false)
		lis.Close()
	}
}

func TestMultiListener(t *testing.T) {
	lis, err := newMultiListener([]net.IP{net.IPv4(127, 0, 0, 1)}, 0)
	if err != nil {
		t.Fatal(err)
	}
	go func() {
		c, err := net.Dial("tcp", lis.Addr().String())
		if err == nil {
			c.Close()
		}
	}()
	c, err := lis.Accept()
	if err != nil {
		t.Fatal(err)
	}
	c.Close()
	if err := lis.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := lis.Accept(); err == nil {
		t.Fatal("accept after close")
	}
}
