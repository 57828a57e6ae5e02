// Command replay-dump opens a recording and drives it through the player,
// printing every notification to stdout. It exercises the full public
// surface: open, sequential read, frame/timestamp seek, and repeat mode.
package main

import (
	"fmt"
	"os"

	replayerrors "github.com/alxayo/go-replay/internal/errors"
	"github.com/alxayo/go-replay/internal/logger"
	"github.com/alxayo/go-replay/internal/replay/player"
	"github.com/alxayo/go-replay/internal/replay/seek"
	"github.com/alxayo/go-replay/internal/replay/stream"
)

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}
	if cfg.showVersion {
		fmt.Println(version)
		return
	}

	logger.Init()
	if err := logger.SetLevel(cfg.logLevel); err != nil {
		fmt.Printf("Warning: invalid log level %q, using default\n", cfg.logLevel)
	}
	log := logger.Logger().With("component", "cli")

	if err := run(cfg); err != nil {
		log.Error("replay-dump failed", "error", err)
		if replayerrors.IsExpected(err) {
			os.Exit(1)
		}
		os.Exit(3)
	}
}

func run(cfg *cliConfig) error {
	f, err := os.Open(cfg.path)
	if err != nil {
		return fmt.Errorf("open %s: %w", cfg.path, err)
	}
	in := stream.New(f)

	sink := newDumpSink(os.Stdout, cfg.format == "json", logger.Logger())
	p, err := player.Open(in, sink, nil)
	if err != nil {
		f.Close()
		return fmt.Errorf("player.Open: %w", err)
	}
	defer p.Close()

	p.SetRepeat(cfg.repeat)

	if err := applySeek(p, cfg); err != nil {
		return err
	}

	count := 0
	for !p.Eof() {
		if cfg.maxRecords > 0 && count >= cfg.maxRecords {
			break
		}
		if _, err := p.ReadNext(); err != nil {
			return fmt.Errorf("read_next: %w", err)
		}
		count++
	}
	return nil
}

func applySeek(p *player.Player, cfg *cliConfig) error {
	if cfg.seekTimestamp >= 0 {
		return p.SeekToTimestampAbsolute(uint64(cfg.seekTimestamp))
	}
	if cfg.seekNode == "" {
		return nil
	}
	origin := seek.OriginSet
	switch cfg.seekOrigin {
	case "cur":
		origin = seek.OriginCur
	case "end":
		origin = seek.OriginEnd
	}
	return p.SeekToFrame(cfg.seekNode, cfg.seekFrame, origin)
}
