package ingest

import (
	"bytes"
	"io"
	"net"
	"testing"
	"time"
)

func TestWriteRegisters_PacketLayout(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	got := make(chan []byte, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 14)
		if _, err := io.ReadFull(conn, buf); err != nil {
			return
		}
		got <- buf
		conn.Write([]byte{respOK})
	}()

	c, err := NewEndpointClient(Config{Endpoint: ln.Addr().String(), Timeout: time.Second})
	if err != nil {
		t.Fatalf("NewEndpointClient: %v", err)
	}
	if err := c.WriteRegisters(5, 0x0102, []uint16{0xA1B2, 0x0003}); err != nil {
		t.Fatalf("WriteRegisters: %v", err)
	}

	want := []byte{
		'R', 'I', 0x01, 0x03,
		0x00, 0x05,
		0x01, 0x02,
		0x00, 0x02,
		0xA1, 0xB2, 0x00, 0x03,
	}
	if pkt := <-got; !bytes.Equal(pkt, want) {
		t.Fatalf("packet = % x\nwant     % x", pkt, want)
	}
}

func TestWriteRegisters_Rejected(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		io.ReadFull(conn, make([]byte, 12))
		conn.Write([]byte{respRejected})
	}()

	c, _ := NewEndpointClient(Config{Endpoint: ln.Addr().String(), Timeout: time.Second})
	if err := c.WriteRegisters(1, 0, []uint16{1}); err != ErrRejected {
		t.Fatalf("err = %v, want ErrRejected", err)
	}
}

func TestNewEndpointClient_RequiresEndpoint(t *testing.T) {
	if _, err := NewEndpointClient(Config{}); err == nil {
		t.Fatalf("expected error")
	}
}
