package smbus

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/cherryCheese/HouWu-CMM/internal/regmap"
	"github.com/cherryCheese/HouWu-CMM/internal/status"
)

func TestTCPBus_RoundTrip(t *testing.T) {
	r := newRig(t, nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- Serve(ctx, ln, r.bus, r.e.log) }()

	bus, err := DialTCP(ln.Addr().String(), time.Second)
	if err != nil {
		t.Fatalf("DialTCP: %v", err)
	}

	if err := bus.Tx(addr7, frame(regmap.SetFan, 0x22), nil); err != nil {
		t.Fatalf("write: %v", err)
	}
	r.e.Poll()
	if r.e.Registers().Get(regmap.SetFan) != 0x22 {
		t.Fatalf("write not applied")
	}

	buf := make([]byte, 2)
	if err := bus.Tx(addr7, []byte{byte(regmap.CmdGetStatus)}, buf); err != nil {
		t.Fatalf("read: %v", err)
	}
	if buf[0]&status.Busy != 0 {
		t.Fatalf("status = 0x%02x", buf[0])
	}

	if err := bus.Tx(addr7, []byte{0xEE}, buf); err != ErrDataNack {
		t.Fatalf("unknown read err = %v", err)
	}
	if err := bus.Tx(0x10, []byte{0x00}, nil); err != ErrAddressNack {
		t.Fatalf("wrong address err = %v", err)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Serve did not stop")
	}
}
