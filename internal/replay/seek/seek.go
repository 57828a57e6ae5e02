// Package seek implements seek-to-frame (fast path via the per-node seek
// index, slow path via undo-chain walk or forward scan) and
// seek-to-timestamp, coordinating cross-node consistency the way the
// dispatcher alone cannot.
package seek

import (
	"sort"

	replayerrors "github.com/alxayo/go-replay/internal/errors"
	"github.com/alxayo/go-replay/internal/replay/dispatch"
	"github.com/alxayo/go-replay/internal/replay/nodetable"
	"github.com/alxayo/go-replay/internal/replay/record"
	"github.com/alxayo/go-replay/internal/replay/stream"
)

// Engine drives seeks over a Dispatch's stream and node table.
type Engine struct {
	d *dispatch.Dispatch
}

// New creates an Engine over d.
func New(d *dispatch.Dispatch) *Engine {
	return &Engine{d: d}
}

// SeekOrigin mirrors frame-offset origins ("Set" = absolute frame number,
// "Cur" = relative to the node's current frame, "End" = relative to the
// last frame).
type SeekOrigin int

const (
	OriginSet SeekOrigin = iota
	OriginCur
	OriginEnd
)

// clamp bounds a resolved frame number to [1, frames].
func clamp(f int64, frames uint32) uint32 {
	if f < 1 {
		return 1
	}
	if uint32(f) > frames {
		return frames
	}
	return uint32(f)
}

// SeekToFrame implements seek-to-frame(nodeName, frameOffset, origin).
func (e *Engine) SeekToFrame(nodeName string, offset int64, origin SeekOrigin) error {
	row := e.d.Table.FindByName(nodeName)
	if row == nil {
		return replayerrors.NewNoNodePresentError("seek.to_frame", nil)
	}
	if !row.IsGenerator {
		return replayerrors.NewBadArgumentError("seek.to_frame", nil)
	}

	var base int64
	switch origin {
	case OriginCur:
		base = int64(row.CurFrame)
	case OriginEnd:
		base = int64(row.Frames)
	default:
		base = 0
	}
	destFrame := clamp(base+offset, row.Frames)

	if destFrame == row.CurFrame {
		if row.LastDataPos == 0 {
			return nil // no data emitted yet; nothing to replay
		}
		_, err := e.d.ProcessRecordAt(row.LastDataPos, true)
		return err
	}

	if ok, err := e.tryFastSeek(row, destFrame); err != nil {
		return err
	} else if ok {
		return nil
	}

	if destFrame > row.CurFrame {
		return e.slowSeekForward(row, destFrame)
	}
	return e.slowSeekBackward(row, destFrame)
}

// tryFastSeek attempts the seek-index path. It returns (true, nil) on
// success, (false, nil) if the fast path is unavailable or inconsistent
// (caller should fall back to slow seek), and (false, err) on a real error.
func (e *Engine) tryFastSeek(row *nodetable.Row, destFrame uint32) (bool, error) {
	if len(row.DataIndex) == 0 || int(row.CurFrame) >= len(row.DataIndex) || int(destFrame) >= len(row.DataIndex) {
		return false, nil
	}
	cur := row.DataIndex[row.CurFrame]
	dest := row.DataIndex[destFrame]
	if cur.ConfigurationID != dest.ConfigurationID {
		return false, nil
	}

	type target struct {
		row   *nodetable.Row
		entry record.SeekIndexEntry
	}
	var targets []target

	for _, other := range e.d.Table.Generators() {
		if other.ID == row.ID {
			continue
		}
		if len(other.DataIndex) == 0 {
			return false, nil
		}
		entry, ok := findHighestTimestampLE(other.DataIndex, dest.Timestamp)
		if !ok || entry.ConfigurationID != cur.ConfigurationID {
			return false, nil
		}
		targets = append(targets, target{row: other, entry: entry})
	}
	// Primary processed last, so the stream ends positioned directly after
	// its frame and the observer sees every other generator's frame first.
	targets = append(targets, target{row: row, entry: dest})

	var maxPos uint64
	for _, tg := range targets {
		if _, err := e.d.ProcessRecordAt(tg.entry.SeekPos, true); err != nil {
			return false, err
		}
		pos, err := e.d.Stream.Tell()
		if err != nil {
			return false, err
		}
		if pos > maxPos {
			maxPos = pos
		}
	}
	if err := e.d.Stream.Seek(stream.Set, int64(maxPos)); err != nil {
		return false, err
	}
	return true, nil
}

// findHighestTimestampLE binary-searches idx (1-based, index 0 a sentinel)
// for the entry with the highest timestamp <= target.
func findHighestTimestampLE(idx []record.SeekIndexEntry, target uint64) (record.SeekIndexEntry, bool) {
	entries := idx[1:]
	i := sort.Search(len(entries), func(i int) bool { return entries[i].Timestamp > target })
	if i == 0 {
		return record.SeekIndexEntry{}, false
	}
	return entries[i-1], true
}

func (e *Engine) slowSeekForward(row *nodetable.Row, destFrame uint32) error {
	for row.CurFrame != destFrame {
		if _, err := e.d.ProcessRecord(false); err != nil {
			return err
		}
	}
	return e.processEachNodeLastData(row.ID)
}

func (e *Engine) slowSeekBackward(row *nodetable.Row, destFrame uint32) error {
	startPos, err := e.d.Stream.Tell()
	if err != nil {
		return err
	}

	link := row.NewDataUndo
	var destRecordPos uint64
	found := false
	for {
		if link.RecordPos == 0 {
			break
		}
		h, nd, err := e.d.PeekNewDataHeaderAt(link.RecordPos)
		if err != nil {
			return err
		}
		if nd.FrameNumber <= destFrame {
			if _, err := e.d.ProcessRecordAt(link.RecordPos, false); err != nil {
				return err
			}
			destRecordPos = link.RecordPos
			found = true
			break
		}
		if h.UndoRecordPos == 0 || h.UndoRecordPos >= link.RecordPos {
			break
		}
		link = nodetable.UndoLink{RecordPos: h.UndoRecordPos}
	}
	if !found {
		return replayerrors.NewIllegalPositionError("seek.to_frame.backward", nil)
	}

	for _, k := range e.d.Table.All() {
		for name, link := range k.RecordUndo {
			if link.RecordPos > destRecordPos && link.RecordPos < startPos {
				if _, err := e.undoRecord(link, destRecordPos); err != nil {
					return err
				}
				_ = name
			}
		}
		if k.IsGenerator && k.ID != row.ID {
			if k.NewDataUndo.RecordPos > destRecordPos && k.NewDataUndo.RecordPos < startPos {
				applied, err := e.undoRecord(k.NewDataUndo, destRecordPos)
				if err != nil {
					return err
				}
				if !applied {
					k.LastDataPos = 0
					k.NewDataUndo.Reset()
				}
			}
		}
	}

	return e.processEachNodeLastData(row.ID)
}

// undoRecord walks a back-pointer chain until it finds a record valid at or
// before destPos, applying it with payload suppressed, or exhausts the
// chain. The stream position is restored on failure to apply.
func (e *Engine) undoRecord(link nodetable.UndoLink, destPos uint64) (bool, error) {
	if link.RecordPos == 0 {
		return false, nil
	}
	origPos, err := e.d.Stream.Tell()
	if err != nil {
		return false, err
	}
	pos := link.RecordPos
	undoPos := link.UndoRecordPos
	for {
		if pos <= destPos {
			if _, err := e.d.ProcessRecordAt(pos, false); err != nil {
				e.d.Stream.Seek(stream.Set, int64(origPos))
				return false, err
			}
			return true, nil
		}
		if undoPos == 0 {
			e.d.Stream.Seek(stream.Set, int64(origPos))
			return false, nil
		}
		if undoPos >= pos {
			e.d.Stream.Seek(stream.Set, int64(origPos))
			return false, replayerrors.NewCorruptFileError("seek.undo_record", nil)
		}
		h, err := e.d.PeekHeaderAt(undoPos)
		if err != nil {
			e.d.Stream.Seek(stream.Set, int64(origPos))
			return false, err
		}
		pos = undoPos
		undoPos = h.UndoRecordPos
	}
}

// processEachNodeLastData re-emits every generator's most recent data
// record, with the primary processed last so the stream ends positioned
// directly after its frame. Generators with no data yet get a synthesized
// empty frame at timestamp 0, frame 0.
func (e *Engine) processEachNodeLastData(primaryID uint32) error {
	gens := e.d.Table.Generators()
	var ordered []*nodetable.Row
	var primary *nodetable.Row
	for _, row := range gens {
		if row.ID == primaryID {
			primary = row
			continue
		}
		ordered = append(ordered, row)
	}
	if primary != nil {
		ordered = append(ordered, primary)
	}

	var maxPos uint64
	for _, row := range ordered {
		if row.LastDataPos == 0 {
			if err := e.d.Sink.OnNodeNewData(row.Name, 0, 0, nil); err != nil {
				return err
			}
			continue
		}
		if _, err := e.d.ProcessRecordAt(row.LastDataPos, true); err != nil {
			return err
		}
		pos, err := e.d.Stream.Tell()
		if err != nil {
			return err
		}
		if pos > maxPos {
			maxPos = pos
		}
	}
	if maxPos > 0 {
		return e.d.Stream.Seek(stream.Set, int64(maxPos))
	}
	return nil
}

// SeekToTimestampAbsolute implements seek-to-timestamp per the algorithm
// sketched in the original design: rewind if target precedes the current
// global timestamp, then forward-scan reading NEW_DATA headers only
// (payload skipped) until a frame's timestamp >= target; non-data records
// encountered along the way are fully processed. IllegalPosition if END is
// reached first.
func (e *Engine) SeekToTimestampAbsolute(target uint64, rewind func() error) error {
	if target < e.d.Timestamp {
		if err := rewind(); err != nil {
			return err
		}
	}
	for {
		savedPos, err := e.d.Stream.Tell()
		if err != nil {
			return err
		}
		h, err := e.d.PeekHeaderAt(savedPos)
		if err != nil {
			return err
		}
		if h.Type == record.RecordTypeEnd {
			e.d.Stream.Seek(stream.Set, int64(savedPos))
			return replayerrors.NewIllegalPositionError("seek.to_timestamp", nil)
		}
		if h.Type == record.RecordTypeNewData {
			_, nd, err := e.d.PeekNewDataHeaderAt(savedPos)
			if err != nil {
				return err
			}
			if nd.Timestamp >= target {
				_, err := e.d.ProcessRecordAt(savedPos, true)
				return err
			}
			if _, err := e.d.ProcessRecordAt(savedPos, false); err != nil {
				return err
			}
			continue
		}
		if _, err := e.d.ProcessRecordAt(savedPos, true); err != nil {
			return err
		}
	}
}

// SeekToTimestampRelative adds offset to the player's current timestamp and
// delegates to SeekToTimestampAbsolute.
func (e *Engine) SeekToTimestampRelative(offset int64, rewind func() error) error {
	target := int64(e.d.Timestamp) + offset
	if target < 0 {
		target = 0
	}
	return e.SeekToTimestampAbsolute(uint64(target), rewind)
}
