package main

import (
	"io"
	"os"

	"github.com/hashicorp/go-hclog"
	"gopkg.in/natefinch/lumberjack.v2"

	"graphsync/internal/config"
)

// newLogger builds the process logger. With a log file configured, output
// goes to a rotating file and the returned closer must be closed on exit.
func newLogger(cfg config.LogSection, stderr io.Writer) (hclog.Logger, io.Closer) {
	out := stderr
	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		rot := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		out, closer = rot, rot
	}
	if out == nil {
		out = os.Stderr
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:       "graphsyncd",
		Level:      hclog.LevelFromString(cfg.Level),
		Output:     out,
		JSONFormat: cfg.Format == "json",
	}), closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
