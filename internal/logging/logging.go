// internal/logging/logging.go
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/cherryCheese/HouWu-CMM/internal/config"
)

// New builds the process logger from the log section.
func New(cfg config.LogConfig) (*logrus.Logger, error) {
	return NewWithOutput(cfg, os.Stderr)
}

// NewWithOutput is New writing to out.
func NewWithOutput(cfg config.LogConfig, out io.Writer) (*logrus.Logger, error) {
	log := logrus.New()
	log.Out = out

	level := cfg.Level
	if level == "" {
		level = config.DefaultLogLevel
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}
	log.SetLevel(lvl)

	switch cfg.Format {
	case "", "text":
		log.Formatter = &logrus.TextFormatter{FullTimestamp: true}
	case "json":
		log.Formatter = &logrus.JSONFormatter{}
	default:
		return nil, fmt.Errorf("logging: unknown format %q", cfg.Format)
	}
	return log, nil
}
