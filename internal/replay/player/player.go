// Package player is the single facade composing the record dispatcher, node
// table, and seek engine into the public surface a caller drives: open,
// read forward, seek by frame or timestamp, inspect node state, close.
package player

import (
	"fmt"
	"log/slog"

	replayerrors "github.com/alxayo/go-replay/internal/errors"
	"github.com/alxayo/go-replay/internal/replay/codec"
	"github.com/alxayo/go-replay/internal/replay/dispatch"
	"github.com/alxayo/go-replay/internal/replay/nodetable"
	"github.com/alxayo/go-replay/internal/replay/record"
	"github.com/alxayo/go-replay/internal/replay/seek"
	"github.com/alxayo/go-replay/internal/replay/stream"
)

// Player is the composed replay engine over one open recording.
type Player struct {
	stream   stream.InputStream
	factory  codec.Factory
	table    *nodetable.Table
	dispatch *dispatch.Dispatch
	seek     *seek.Engine
	header   record.FileHeader
	open     bool
	log      *slog.Logger
}

// NodeInfo is a read-only snapshot of one node row, returned by Nodes.
type NodeInfo struct {
	ID          uint32
	Name        string
	Type        record.NodeType
	IsGenerator bool
	Frames      uint32
	StateReady  bool
}

func (p *Player) requireOpen(op string) error {
	if !p.open {
		return replayerrors.NewBadArgumentError(op, nil)
	}
	return nil
}

// ReadNext processes exactly one record from the current position,
// delivering its notifications. Returns the record header processed.
func (p *Player) ReadNext() (record.Header, error) {
	if err := p.requireOpen("player.read_next"); err != nil {
		return record.Header{}, err
	}
	if p.dispatch.Eof {
		return record.Header{}, replayerrors.NewBadArgumentError("player.read_next", fmt.Errorf("player at eof"))
	}
	h, err := p.dispatch.ProcessRecord(true)
	if err != nil {
		return h, err
	}
	if h.Type == record.RecordTypeEnd {
		if p.dispatch.Repeat {
			if rerr := p.Rewind(); rerr != nil {
				return h, rerr
			}
		} else if p.dispatch.Eof {
			if cerr := p.Close(); cerr != nil {
				return h, cerr
			}
		}
	}
	return h, nil
}

// Eof reports whether the player has reached END without repeat.
func (p *Player) Eof() bool { return p.dispatch.Eof }

// SeekToFrame implements seek-to-frame(nodeName, frameOffset, origin).
func (p *Player) SeekToFrame(nodeName string, offset int64, origin seek.SeekOrigin) error {
	if err := p.requireOpen("player.seek_to_frame"); err != nil {
		return err
	}
	return p.seek.SeekToFrame(nodeName, offset, origin)
}

// SeekToTimestampAbsolute implements seek-to-timestamp(offset, Set).
func (p *Player) SeekToTimestampAbsolute(target uint64) error {
	if err := p.requireOpen("player.seek_to_timestamp"); err != nil {
		return err
	}
	return p.seek.SeekToTimestampAbsolute(target, p.Rewind)
}

// SeekToTimestampRelative implements seek-to-timestamp(offset, Cur).
func (p *Player) SeekToTimestampRelative(offset int64) error {
	if err := p.requireOpen("player.seek_to_timestamp"); err != nil {
		return err
	}
	return p.seek.SeekToTimestampRelative(offset, p.Rewind)
}

// TellFrame returns the node's current frame number.
func (p *Player) TellFrame(nodeName string) (uint32, error) {
	row := p.table.FindByName(nodeName)
	if row == nil {
		return 0, replayerrors.NewNoNodePresentError("player.tell_frame", nil)
	}
	return row.CurFrame, nil
}

// TellTimestamp returns the player's current global timestamp.
func (p *Player) TellTimestamp() uint64 { return p.dispatch.Timestamp }

// NumFrames returns the node's total frame count.
func (p *Player) NumFrames(nodeName string) (uint32, error) {
	row := p.table.FindByName(nodeName)
	if row == nil {
		return 0, replayerrors.NewNoNodePresentError("player.num_frames", nil)
	}
	return row.Frames, nil
}

// Nodes lists every currently valid node.
func (p *Player) Nodes() []NodeInfo {
	rows := p.table.All()
	out := make([]NodeInfo, 0, len(rows))
	for _, row := range rows {
		out = append(out, NodeInfo{
			ID:          row.ID,
			Name:        row.Name,
			Type:        row.NodeType,
			IsGenerator: row.IsGenerator,
			Frames:      row.Frames,
			StateReady:  row.StateReady,
		})
	}
	return out
}

// NodeIntProperty returns the last-seen value of an INT_PROPERTY, or
// NoNodePresentError / BadArgumentError if the node or property is unknown.
func (p *Player) NodeIntProperty(nodeName, propName string) (uint64, error) {
	v, err := p.nodeProperty(nodeName, propName)
	if err != nil {
		return 0, err
	}
	u, ok := v.(uint64)
	if !ok {
		return 0, replayerrors.NewBadArgumentError("player.node_int_property", nil)
	}
	return u, nil
}

// NodeRealProperty returns the last-seen value of a REAL_PROPERTY.
func (p *Player) NodeRealProperty(nodeName, propName string) (float64, error) {
	v, err := p.nodeProperty(nodeName, propName)
	if err != nil {
		return 0, err
	}
	f, ok := v.(float64)
	if !ok {
		return 0, replayerrors.NewBadArgumentError("player.node_real_property", nil)
	}
	return f, nil
}

// NodeStringProperty returns the last-seen value of a STRING_PROPERTY.
func (p *Player) NodeStringProperty(nodeName, propName string) (string, error) {
	v, err := p.nodeProperty(nodeName, propName)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", replayerrors.NewBadArgumentError("player.node_string_property", nil)
	}
	return s, nil
}

// NodeGeneralProperty returns the last-seen payload of a GENERAL_PROPERTY
// (or the synthesized xnFieldOfView derived from xnRealWorldTranslationData).
func (p *Player) NodeGeneralProperty(nodeName, propName string) ([]byte, error) {
	v, err := p.nodeProperty(nodeName, propName)
	if err != nil {
		return nil, err
	}
	b, ok := v.([]byte)
	if !ok {
		return nil, replayerrors.NewBadArgumentError("player.node_general_property", nil)
	}
	return b, nil
}

func (p *Player) nodeProperty(nodeName, propName string) (any, error) {
	row := p.table.FindByName(nodeName)
	if row == nil {
		return nil, replayerrors.NewNoNodePresentError("player.node_property", nil)
	}
	v, ok := row.PropertyCache[propName]
	if !ok {
		return nil, replayerrors.NewBadArgumentError("player.node_property", nil)
	}
	return v, nil
}
