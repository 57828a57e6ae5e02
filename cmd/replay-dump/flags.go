package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
)

// version is injected at build time with -ldflags "-X main.version=...". Defaults to dev.
var version = "dev"

// cliConfig holds user supplied flag values prior to translation into the
// player operations main.go drives.
type cliConfig struct {
	path          string
	logLevel      string
	format        string
	repeat        bool
	maxRecords    int
	showVersion   bool
	seekNode      string
	seekFrame     int64
	seekOrigin    string
	seekTimestamp int64
}

func parseFlags(args []string) (*cliConfig, error) {
	fs := flag.NewFlagSet("replay-dump", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	cfg := &cliConfig{}
	fs.StringVar(&cfg.logLevel, "log-level", "info", "Log level: debug|info|warn|error")
	fs.StringVar(&cfg.format, "format", "text", "Notification output format: text|json")
	fs.BoolVar(&cfg.repeat, "repeat", false, "Loop playback on reaching END instead of stopping")
	fs.IntVar(&cfg.maxRecords, "max-records", 0, "Stop after N records (0 = until EOF)")
	fs.BoolVar(&cfg.showVersion, "version", false, "Print version and exit")
	fs.StringVar(&cfg.seekNode, "seek-node", "", "Node name to seek before dumping (requires -seek-frame)")
	fs.Int64Var(&cfg.seekFrame, "seek-frame", 0, "Frame offset to seek -seek-node to")
	fs.StringVar(&cfg.seekOrigin, "seek-origin", "set", "Seek origin for -seek-frame: set|cur|end")
	fs.Int64Var(&cfg.seekTimestamp, "seek-timestamp", -1, "Absolute timestamp to seek to before dumping (-1 = disabled)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if cfg.showVersion {
		return cfg, nil
	}

	rest := fs.Args()
	if len(rest) != 1 {
		return nil, errors.New("exactly one recording path argument is required")
	}
	cfg.path = rest[0]

	switch cfg.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("invalid log-level %q", cfg.logLevel)
	}

	switch cfg.format {
	case "text", "json":
	default:
		return nil, fmt.Errorf("invalid format %q, must be text or json", cfg.format)
	}

	cfg.seekOrigin = strings.ToLower(cfg.seekOrigin)
	switch cfg.seekOrigin {
	case "set", "cur", "end":
	default:
		return nil, fmt.Errorf("invalid seek-origin %q, must be set, cur or end", cfg.seekOrigin)
	}

	if cfg.seekNode != "" && cfg.seekTimestamp >= 0 {
		return nil, errors.New("-seek-node and -seek-timestamp are mutually exclusive")
	}

	if cfg.maxRecords < 0 {
		return nil, fmt.Errorf("max-records must be >= 0, got %d", cfg.maxRecords)
	}

	return cfg, nil
}

