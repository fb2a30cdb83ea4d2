// internal/mirror/builder.go
package mirror

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	cfg "github.com/cherryCheese/HouWu-CMM/internal/config"
	"github.com/cherryCheese/HouWu-CMM/internal/mirror/ingest"
	mmodbus "github.com/cherryCheese/HouWu-CMM/internal/mirror/modbus"
)

// BuildPlan converts the mirror section into a Plan.
// Assumes config has already passed validation and normalization.
func BuildPlan(m cfg.MirrorConfig) (Plan, error) {
	if m.Endpoint == "" {
		return Plan{}, errors.New("mirror: endpoint required")
	}
	return Plan{
		Endpoint:     m.Endpoint,
		UnitID:       m.UnitID,
		StatusSlot:   m.StatusSlot,
		RegisterBase: m.RegisterBase,
		DeviceName:   m.DeviceName,
	}, nil
}

// Build wires the endpoint client for the configured protocol and
// returns the mirror with its closer.
func Build(m cfg.MirrorConfig, src Source, log logrus.FieldLogger) (*Mirror, func() error, error) {
	plan, err := BuildPlan(m)
	if err != nil {
		return nil, nil, err
	}

	timeout := time.Duration(m.TimeoutMs) * time.Millisecond

	var (
		cli    endpointClient
		closer func() error
	)
	switch m.Protocol {
	case "", "modbus":
		c, err := mmodbus.NewEndpointClient(mmodbus.Config{Endpoint: m.Endpoint, Timeout: timeout})
		if err != nil {
			return nil, nil, fmt.Errorf("mirror: %w", err)
		}
		cli, closer = c, c.Close
	case "ingest":
		c, err := ingest.NewEndpointClient(ingest.Config{Endpoint: m.Endpoint, Timeout: timeout})
		if err != nil {
			return nil, nil, fmt.Errorf("mirror: %w", err)
		}
		cli, closer = c, c.Close
	default:
		return nil, nil, fmt.Errorf("mirror: unknown protocol %q", m.Protocol)
	}

	mr, err := New(plan, cli, src, time.Duration(m.IntervalMs)*time.Millisecond, log)
	if err != nil {
		_ = closer()
		return nil, nil, err
	}
	return mr, closer, nil
}
