package main

import (
	"context"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"

	"github.com/cherryCheese/HouWu-CMM/internal/config"
	"github.com/cherryCheese/HouWu-CMM/internal/flash"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{
		Flash: config.FlashConfig{
			Backend: "file",
			Path:    filepath.Join(t.TempDir(), "flash.bin"),
		},
	}
	if err := config.Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	config.Normalize(cfg)
	return cfg
}

// closedPort returns an address nothing listens on.
func closedPort(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

func TestRun_LateFailureReturnsError(t *testing.T) {
	cfg := testConfig(t)
	cfg.Mirror = &config.MirrorConfig{
		Protocol:     "modbus",
		Endpoint:     closedPort(t),
		RegisterBase: 100,
		TimeoutMs:    200,
	}
	log, _ := logtest.NewNullLogger()

	err := run(context.Background(), cfg, log)
	if err == nil || !strings.Contains(err.Error(), "mirror build") {
		t.Fatalf("err = %v, want mirror build failure", err)
	}

	// the flash image was released and is reusable
	f, err := flash.OpenFile(cfg.Flash.Path, flash.Geometry{Size: cfg.Flash.Size, BlockSize: cfg.Flash.BlockSize}, nil)
	if err != nil {
		t.Fatalf("reopen flash: %v", err)
	}
	f.Close()
}

func TestRun_StopsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	cfg.Device.Listen = "127.0.0.1:0"
	log, _ := logtest.NewNullLogger()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, cfg, log) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("run did not stop")
	}
}
