// cmd/cmmctl/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	periphhost "periph.io/x/host/v3"

	"github.com/cherryCheese/HouWu-CMM/internal/config"
	"github.com/cherryCheese/HouWu-CMM/internal/flash"
	"github.com/cherryCheese/HouWu-CMM/internal/host"
	"github.com/cherryCheese/HouWu-CMM/internal/ihex"
	"github.com/cherryCheese/HouWu-CMM/internal/logging"
	"github.com/cherryCheese/HouWu-CMM/internal/regmap"
	"github.com/cherryCheese/HouWu-CMM/internal/smbus"
	"github.com/cherryCheese/HouWu-CMM/internal/upgrade"
)

const usage = `usage: cmmctl [flags] <command> [args]

commands:
  status                    GET_STATUS and UPGRADE_STATE
  info                      firmware number, version and CONFIG
  read <reg> [n]            read n bytes (default 1) from a register
  block <reg> <max>         read a count-prefixed block
  write <reg> <byte>...     write a register and wait for completion
  upgrade <file.hex>        stream an IHEX image and schedule activation
  header <flash.bin>        inspect a flash image file

flags:
`

func main() {
	var (
		cfgPath  = flag.String("config", "", "YAML config (host and flash sections)")
		busName  = flag.String("bus", "", "periph I2C bus name (empty = first)")
		endpoint = flag.String("endpoint", "", "bus-over-TCP endpoint of an emulator")
		addr     = flag.Uint("addr", 0, "7-bit device address")
		timeout  = flag.Duration("timeout", 0, "BUSY wait timeout")
		wait     = flag.Bool("wait", false, "upgrade: wait until the header is written")
		verbose  = flag.Bool("v", false, "debug logging")
	)
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	// --------------------
	// Config: file, then flags
	// --------------------

	cfg := &config.Config{}
	if *cfgPath != "" {
		var err error
		if cfg, err = config.Load(*cfgPath); err != nil {
			logrus.Fatalf("config load failed: %v", err)
		}
	}
	if *busName != "" {
		cfg.Host.Bus = *busName
	}
	if *endpoint != "" {
		cfg.Host.Endpoint = *endpoint
	}
	if *addr != 0 {
		cfg.Host.Address = uint16(*addr)
	}
	if *timeout > 0 {
		cfg.Host.TimeoutMs = int(*timeout / time.Millisecond)
	}
	if *verbose {
		cfg.Log.Level = "debug"
	}
	if err := config.Validate(cfg); err != nil {
		logrus.Fatalf("config validation failed: %v", err)
	}
	config.Normalize(cfg)

	log, err := logging.New(cfg.Log)
	if err != nil {
		logrus.Fatalf("logger setup failed: %v", err)
	}

	cmd, args := flag.Arg(0), flag.Args()[1:]

	// header works on a file, no bus needed
	if cmd == "header" {
		if err := runHeader(cfg.Flash, args); err != nil {
			log.Fatal(err)
		}
		return
	}

	bus, closeBus, err := openBus(cfg.Host)
	if err != nil {
		log.Fatalf("bus open failed: %v", err)
	}
	defer closeBus()

	c, err := host.NewClient(bus, cfg.Host.Address,
		host.WithTimeout(time.Duration(cfg.Host.TimeoutMs)*time.Millisecond),
		host.WithRetries(cfg.Host.Retries),
		host.WithLogger(log),
		host.WithProgress(func(p host.Progress) {
			log.WithFields(logrus.Fields{
				"phase":  p.Phase,
				"record": fmt.Sprintf("%d/%d", p.Record, p.Records),
				"pct":    fmt.Sprintf("%.1f", p.Percentage),
			}).Debug("upgrade progress")
		}),
	)
	if err != nil {
		log.Fatalf("client setup failed: %v", err)
	}

	ctx := context.Background()

	switch cmd {
	case "status":
		err = runStatus(c)
	case "info":
		err = runInfo(c)
	case "read":
		err = runRead(c, args)
	case "block":
		err = runBlock(c, args)
	case "write":
		err = runWrite(ctx, c, args)
	case "upgrade":
		err = runUpgrade(ctx, c, args, *wait, log)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatal(err)
	}
}

// ---- bus ----

func openBus(h config.HostConfig) (i2c.Bus, func() error, error) {
	if h.Endpoint != "" {
		b, err := smbus.DialTCP(h.Endpoint, time.Duration(h.TimeoutMs)*time.Millisecond)
		if err != nil {
			return nil, nil, err
		}
		return b, b.Close, nil
	}

	if _, err := periphhost.Init(); err != nil {
		return nil, nil, fmt.Errorf("periph init: %w", err)
	}
	b, err := i2creg.Open(h.Bus)
	if err != nil {
		return nil, nil, err
	}
	return b, b.Close, nil
}

// ---- commands ----

func runStatus(c *host.Client) error {
	st, err := c.Status()
	if err != nil {
		return err
	}
	us, err := c.UpgradeState()
	if err != nil {
		return err
	}
	fmt.Printf("status:  0x%02x %s\n", st, describe(st))
	fmt.Printf("upgrade: %s\n", us)
	return nil
}

func runInfo(c *host.Client) error {
	fw, err := c.ReadBlock(regmap.CMMFW1, regmap.CMMFWLen)
	if err != nil {
		return err
	}
	ver, err := c.ReadByte(regmap.CMMVersion)
	if err != nil {
		return err
	}
	dip, err := c.ReadByte(regmap.Config)
	if err != nil {
		return err
	}
	fmt.Printf("firmware: %s\n", strings.TrimRight(string(fw), "\x00"))
	fmt.Printf("version:  %d\n", ver)
	fmt.Printf("config:   0x%x\n", dip)
	return nil
}

func runRead(c *host.Client, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("read: register required")
	}
	reg, err := parseByte(args[0])
	if err != nil {
		return err
	}
	n := 1
	if len(args) > 1 {
		if n, err = strconv.Atoi(args[1]); err != nil || n < 1 {
			return fmt.Errorf("read: bad length %q", args[1])
		}
	}
	b, err := c.Read(regmap.Register(reg), n)
	if err != nil {
		return err
	}
	fmt.Printf("% x\n", b)
	return nil
}

func runBlock(c *host.Client, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("block: register and max length required")
	}
	reg, err := parseByte(args[0])
	if err != nil {
		return err
	}
	limit, err := strconv.Atoi(args[1])
	if err != nil || limit < 1 || limit > 255 {
		return fmt.Errorf("block: bad max length %q", args[1])
	}
	b, err := c.ReadBlock(regmap.Register(reg), limit)
	if err != nil {
		return err
	}
	fmt.Printf("% x  %q\n", b, b)
	return nil
}

func runWrite(ctx context.Context, c *host.Client, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("write: register and data required")
	}
	reg, err := parseByte(args[0])
	if err != nil {
		return err
	}
	data := make([]byte, 0, len(args)-1)
	for _, a := range args[1:] {
		v, err := parseByte(a)
		if err != nil {
			return err
		}
		data = append(data, v)
	}
	return c.Write(ctx, regmap.Register(reg), data...)
}

func runUpgrade(ctx context.Context, c *host.Client, args []string, wait bool, log logrus.FieldLogger) error {
	if len(args) < 1 {
		return fmt.Errorf("upgrade: hex file required")
	}
	recs, err := ihex.ParseFile(args[0])
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{"file": args[0], "records": len(recs)}).Info("upgrade starting")

	if err := c.Program(ctx, recs); err != nil {
		return err
	}
	if !wait {
		return nil
	}

	wctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := c.WaitActivated(wctx); err != nil {
		return err
	}
	log.Info("upgrade header written, image will be installed on next boot")
	return nil
}

func runHeader(fc config.FlashConfig, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("header: flash image file required")
	}
	if _, err := os.Stat(args[0]); err != nil {
		return err
	}
	f, err := flash.OpenFile(args[0], flash.Geometry{Size: fc.Size, BlockSize: fc.BlockSize}, nil)
	if err != nil {
		return err
	}
	defer f.Close()

	h, err := upgrade.Inspect(f)
	fmt.Printf("magic: 0x%08x\n", h.Magic)
	fmt.Printf("size:  %d\n", h.Size)
	if err != nil {
		return err
	}
	fmt.Println("image: verified")
	return nil
}

// ---- helpers ----

func parseByte(s string) (byte, error) {
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("bad byte %q", s)
	}
	return byte(v), nil
}

func describe(st uint8) string {
	var parts []string
	for _, b := range []struct {
		bit  uint8
		name string
	}{
		{0x01, "BUSY"}, {0x02, "PEC_ERROR"}, {0x04, "UPGRADE_ERROR"}, {0x08, "BUS_ERROR"},
	} {
		if st&b.bit != 0 {
			parts = append(parts, b.name)
		}
	}
	if len(parts) == 0 {
		return "OK"
	}
	return strings.Join(parts, "|")
}
