package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/alxayo/go-replay/internal/replay/record"
)

// dumpSink prints every notification it receives to an io.Writer, either
// as a human-readable line or as one JSON object per line (jsonl), mirroring
// the teacher's hook stdio formats ("json" vs plain text) from
// cmd/rtmp-server's -hook-stdio-format flag.
type dumpSink struct {
	w      io.Writer
	json   bool
	log    *slog.Logger
	frames int
}

func newDumpSink(w io.Writer, jsonFormat bool, log *slog.Logger) *dumpSink {
	return &dumpSink{w: w, json: jsonFormat, log: log}
}

func (s *dumpSink) emit(event string, fields map[string]any) error {
	if s.json {
		fields["event"] = event
		enc := json.NewEncoder(s.w)
		return enc.Encode(fields)
	}
	_, err := fmt.Fprintf(s.w, "%-20s %v\n", event, fields)
	return err
}

func (s *dumpSink) OnNodeAdded(name string, typ record.NodeType, codec record.CodecID, frames uint32) error {
	return s.emit("node_added", map[string]any{"name": name, "type": typ.String(), "codec": codec.String(), "frames": frames})
}

func (s *dumpSink) OnNodeRemoved(name string) error {
	return s.emit("node_removed", map[string]any{"name": name})
}

func (s *dumpSink) OnNodeStateReady(name string) error {
	return s.emit("node_state_ready", map[string]any{"name": name})
}

func (s *dumpSink) OnNodeIntPropChanged(node, prop string, value uint64) error {
	return s.emit("int_prop", map[string]any{"node": node, "prop": prop, "value": value})
}

func (s *dumpSink) OnNodeRealPropChanged(node, prop string, value float64) error {
	return s.emit("real_prop", map[string]any{"node": node, "prop": prop, "value": value})
}

func (s *dumpSink) OnNodeStringPropChanged(node, prop, value string) error {
	return s.emit("string_prop", map[string]any{"node": node, "prop": prop, "value": value})
}

func (s *dumpSink) OnNodeGeneralPropChanged(node, prop string, data []byte) error {
	return s.emit("general_prop", map[string]any{"node": node, "prop": prop, "bytes": len(data)})
}

func (s *dumpSink) OnNodeNewData(node string, timestamp uint64, frame uint32, data []byte) error {
	s.frames++
	return s.emit("new_data", map[string]any{"node": node, "timestamp": timestamp, "frame": frame, "bytes": len(data)})
}

func (s *dumpSink) OnEndOfFile() error {
	return s.emit("end_of_file", map[string]any{})
}
