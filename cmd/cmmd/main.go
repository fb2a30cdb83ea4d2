// cmd/cmmd/main.go
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/cherryCheese/HouWu-CMM/internal/bridge"
	"github.com/cherryCheese/HouWu-CMM/internal/clock"
	"github.com/cherryCheese/HouWu-CMM/internal/config"
	"github.com/cherryCheese/HouWu-CMM/internal/flash"
	"github.com/cherryCheese/HouWu-CMM/internal/logging"
	"github.com/cherryCheese/HouWu-CMM/internal/loop"
	"github.com/cherryCheese/HouWu-CMM/internal/mirror"
	"github.com/cherryCheese/HouWu-CMM/internal/regmap"
	"github.com/cherryCheese/HouWu-CMM/internal/smbus"
	"github.com/cherryCheese/HouWu-CMM/internal/store"
	"github.com/cherryCheese/HouWu-CMM/internal/upgrade"
	"github.com/cherryCheese/HouWu-CMM/internal/watchdog"
)

func main() {
	if len(os.Args) < 2 {
		logrus.Fatal("usage: cmmd <config.yaml>")
	}

	cfgPath := os.Args[1]

	// --------------------
	// Load + validate config
	// --------------------

	cfg, err := config.Load(cfgPath)
	if err != nil {
		logrus.Fatalf("config load failed: %v", err)
	}

	if err := config.Validate(cfg); err != nil {
		logrus.Fatalf("config validation failed: %v", err)
	}
	config.Normalize(cfg)

	log, err := logging.New(cfg.Log)
	if err != nil {
		logrus.Fatalf("logger setup failed: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		stop()
		log.Fatalf("cmmd: %v", err)
	}
	log.Info("cmmd stopped")
}

// run builds every component from a normalized config and blocks until
// ctx is done. Resources opened here are released before it returns.
func run(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) error {
	// --------------------
	// Watchdog
	// --------------------

	wd := watchdog.New(
		time.Duration(cfg.Loop.WatchdogMs)*time.Millisecond,
		log.WithField("component", "watchdog"),
		nil,
	)

	// --------------------
	// Flash + persistent store
	// --------------------

	fl, closeFlash, err := openFlash(cfg.Flash, wd)
	if err != nil {
		return fmt.Errorf("flash open: %w", err)
	}
	defer closeFlash()

	env, err := openStore(cfg.Store, log.WithField("component", "store"))
	if err != nil {
		return fmt.Errorf("store open: %w", err)
	}

	if h, err := upgrade.Inspect(fl); err == nil {
		log.WithField("size", h.Size).Info("staged image present and verified")
	}

	// --------------------
	// Core: upgrade pipeline + SMBus engine
	// --------------------

	clk := clock.NewSystem()
	regs := regmap.New()

	up := upgrade.New(fl, upgrade.Options{
		FirmwareStart:   cfg.Device.FirmwareStart,
		ActivationDelay: cfg.Device.ActivationDelayMs,
		Kicker:          wd,
		Log:             log.WithField("component", "upgrade"),
	})

	engine := smbus.New(regs, up, env, clk, smbus.Options{
		Address:         cfg.Device.Address,
		FirmwareNumber:  cfg.Device.FirmwareNumber,
		FirmwareVersion: cfg.Device.FirmwareVersion,
		DIPSwitches:     cfg.Device.DIPSwitches,
		Log:             log.WithField("component", "smbus"),
	})

	// --------------------
	// Main loop
	// --------------------

	mainLoop, err := loop.New(loop.Config{
		Interval: time.Duration(cfg.Loop.IntervalMs) * time.Millisecond,
		Kicker:   wd,
		Log:      log.WithField("component", "loop"),
	})
	if err != nil {
		return fmt.Errorf("main loop: %w", err)
	}
	mainLoop.Add("smbus", loop.TaskFunc(engine.Poll))

	if cfg.Bridge.Enabled {
		if _, err := host.Init(); err != nil {
			return fmt.Errorf("periph init: %w", err)
		}
		bus, err := i2creg.Open(cfg.Bridge.Bus)
		if err != nil {
			return fmt.Errorf("bridge bus open: %w", err)
		}
		defer bus.Close()

		br := bridge.New(bridge.PeriphMaster{Bus: bus}, regs, clk, bridge.Options{
			Interval: uint32(cfg.Bridge.IntervalMs),
			Timeout:  time.Duration(cfg.Bridge.TimeoutMs) * time.Millisecond,
			Log:      log.WithField("component", "bridge"),
		})
		mainLoop.Add("bridge", br)
	}

	// --------------------
	// Bus-over-TCP front (emulator)
	// --------------------

	var ln net.Listener
	if cfg.Device.Listen != "" {
		if ln, err = net.Listen("tcp", cfg.Device.Listen); err != nil {
			return fmt.Errorf("listen %s: %w", cfg.Device.Listen, err)
		}
		defer ln.Close()
	}

	// --------------------
	// Mirror (optional)
	// --------------------

	var m *mirror.Mirror
	if cfg.Mirror != nil {
		mr, closeMirror, err := mirror.Build(*cfg.Mirror, engine, log.WithField("component", "mirror"))
		if err != nil {
			return fmt.Errorf("mirror build: %w", err)
		}
		defer closeMirror()
		m = mr
	}

	// --------------------
	// Run
	// --------------------

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return mainLoop.Run(ctx) })
	g.Go(func() error { return wd.Run(ctx) })

	if ln != nil {
		bus := smbus.NewLoopback(engine)
		log.WithFields(logrus.Fields{
			"listen": ln.Addr().String(),
			"bus":    bus.String(),
		}).Info("smbus tcp front started")

		g.Go(func() error {
			return smbus.Serve(ctx, ln, bus, log.WithField("component", "smbus-tcp"))
		})
	}
	if m != nil {
		g.Go(func() error { return m.Run(ctx) })
	}

	log.WithFields(logrus.Fields{
		"address":  cfg.Device.Address,
		"firmware": cfg.Device.FirmwareNumber,
		"version":  cfg.Device.FirmwareVersion,
	}).Info("cmmd started")

	return g.Wait()
}

func openFlash(c config.FlashConfig, k flash.Kicker) (flash.Flash, func() error, error) {
	geo := flash.Geometry{Size: c.Size, BlockSize: c.BlockSize}

	if c.Backend == "file" {
		f, err := flash.OpenFile(c.Path, geo, k)
		if err != nil {
			return nil, nil, err
		}
		return f, f.Close, nil
	}

	m, err := flash.NewMem(geo, k)
	if err != nil {
		return nil, nil, err
	}
	return m, func() error { return nil }, nil
}

func openStore(c config.StoreConfig, log logrus.FieldLogger) (store.Store, error) {
	switch c.Backend {
	case "file":
		return store.OpenFile(c.Path, log)
	case "redis":
		return store.NewRedis(store.RedisConfig{
			Addr:    c.Redis.Addr,
			Prefix:  c.Redis.Prefix,
			Timeout: time.Duration(c.Redis.TimeoutMs) * time.Millisecond,
		}, log), nil
	default:
		return store.NewMemory(nil), nil
	}
}
