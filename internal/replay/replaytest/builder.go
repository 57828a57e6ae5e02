// Package replaytest builds in-memory recordings for tests and the golden
// fixture generator. It is a test-support package (not itself exercised by
// the player), grounded the same way the teacher's tests/golden/gen_*.go
// mains hand-assemble wire bytes, but factored into a reusable builder since
// several _test.go files across this module need the same fixtures.
package replaytest

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"

	"github.com/alxayo/go-replay/internal/replay/record"
	"github.com/alxayo/go-replay/internal/replay/stream"
)

// NewStream wraps buf as a stream.InputStream through the production
// Adapter, so tests exercise the same short-read classification the player
// sees against a real stream.
func NewStream(buf []byte) stream.InputStream {
	return stream.New(nopCloser{bytes.NewReader(buf)})
}

type nopCloser struct{ *bytes.Reader }

func (nopCloser) Close() error { return nil }

// Builder assembles a recording byte-by-byte, tracking per-node undo chains
// so the records it emits carry real back-pointers the way an original
// recorder would.
type Builder struct {
	layout      record.Layout
	buf         []byte
	recordUndo  map[uint32]map[string]uint64
	newDataUndo map[uint32]uint64
}

// NewBuilder starts a recording using the given on-disk layout.
func NewBuilder(layout record.Layout) *Builder {
	return &Builder{
		layout:      layout,
		recordUndo:  make(map[uint32]map[string]uint64),
		newDataUndo: make(map[uint32]uint64),
	}
}

// Header writes the fixed file header. Must be called first.
func (b *Builder) Header(version record.Version, globalMaxTimestamp uint64, maxNodeID uint32) {
	var buf bytes.Buffer
	_ = record.WriteFileHeader(&buf, record.FileHeader{
		Version:            version,
		GlobalMaxTimestamp: globalMaxTimestamp,
		MaxNodeID:          maxNodeID,
	})
	b.buf = append(b.buf, buf.Bytes()...)
}

func (b *Builder) appendRecord(typ record.RecordType, nodeID uint32, body []byte, undoRecordPos uint64) uint64 {
	return b.appendRecordWithPayload(typ, nodeID, body, nil, undoRecordPos)
}

// appendRecordWithPayload writes a record whose declared Size covers only
// the fixed body (matching the on-disk convention for NEW_DATA,
// GENERAL_PROPERTY and SEEK_TABLE: their Size field excludes the trailing
// payload/entry array, which a reader locates via the body's own size/count
// field). The bytes of body and payload are still written back to back, so
// the physical layout is unaffected.
func (b *Builder) appendRecordWithPayload(typ record.RecordType, nodeID uint32, body, payload []byte, undoRecordPos uint64) uint64 {
	hs := record.HeaderSize(b.layout)
	size := uint64(hs + len(body))
	hdrBuf := make([]byte, hs)
	record.WriteHeader(hdrBuf, b.layout, record.Header{
		Type: typ, NodeID: nodeID, Size: size, UndoRecordPos: undoRecordPos,
	})
	pos := uint64(len(b.buf))
	b.buf = append(b.buf, hdrBuf...)
	b.buf = append(b.buf, body...)
	b.buf = append(b.buf, payload...)
	return pos
}

func (b *Builder) patchU64(bodyOffsetInRecord int, recordPos uint64, v uint64) {
	hs := record.HeaderSize(b.layout)
	at := int(recordPos) + hs + bodyOffsetInRecord
	binary.LittleEndian.PutUint64(b.buf[at:at+8], v)
}

// NodeAdded appends a modern NODE_ADDED record (with seek-table pointer,
// initially zero) and returns its record position plus a patch handle
// SeekTable can use once the seek table's real position is known.
func (b *Builder) NodeAdded(id uint32, name string, nt record.NodeType, codec record.CodecID, frames uint32, minTS, maxTS uint64) (pos uint64, patch func(seekTablePos uint64)) {
	body := putStr(nil, name)
	body = putU32(body, uint32(nt))
	body = putU32(body, uint32(codec))
	body = putU32(body, frames)
	body = putU64(body, minTS)
	body = putU64(body, maxTS)
	seekOffset := len(body)
	body = putU64(body, 0)
	pos = b.appendRecord(record.RecordTypeNodeAdded, id, body, 0)
	return pos, func(seekTablePos uint64) { b.patchU64(seekOffset, pos, seekTablePos) }
}

// NodeAdded1004 appends a legacy NODE_ADDED_1_0_0_4 record (name/type/codec
// only; frame count and timestamps are recovered by a forward scan).
func (b *Builder) NodeAdded1004(id uint32, name string, nt record.NodeType, codec record.CodecID) uint64 {
	body := putStr(nil, name)
	body = putU32(body, uint32(nt))
	body = putU32(body, uint32(codec))
	return b.appendRecord(record.RecordTypeNodeAdded10_0_4, id, body, 0)
}

// NodeStateReady appends a NODE_STATE_READY record.
func (b *Builder) NodeStateReady(id uint32) uint64 {
	return b.appendRecord(record.RecordTypeNodeStateReady, id, nil, 0)
}

// NodeDataBegin appends a NODE_DATA_BEGIN record with no legacy counters
// (the common case for a modern recording).
func (b *Builder) NodeDataBegin(id uint32) uint64 {
	return b.appendRecord(record.RecordTypeNodeDataBegin, id, nil, 0)
}

// NodeDataBeginLegacy appends a NODE_DATA_BEGIN record carrying the legacy
// frame-count/max-timestamp counters a 1_0_0_4 recording relied on.
func (b *Builder) NodeDataBeginLegacy(id uint32, frames uint32, maxTS uint64) uint64 {
	body := putU32(nil, frames)
	body = putU64(body, maxTS)
	return b.appendRecord(record.RecordTypeNodeDataBegin, id, body, 0)
}

// NodeRemoved appends a NODE_REMOVED record.
func (b *Builder) NodeRemoved(id uint32) uint64 {
	return b.appendRecord(record.RecordTypeNodeRemoved, id, nil, 0)
}

func (b *Builder) priorUndo(id uint32, name string) uint64 {
	m := b.recordUndo[id]
	if m == nil {
		return 0
	}
	return m[name]
}

func (b *Builder) saveUndo(id uint32, name string, pos uint64) {
	m := b.recordUndo[id]
	if m == nil {
		m = make(map[string]uint64)
		b.recordUndo[id] = m
	}
	m[name] = pos
}

// IntProperty appends an INT_PROPERTY record, chaining it to any prior
// record for the same (node, property).
func (b *Builder) IntProperty(id uint32, name string, value uint64) uint64 {
	body := putStr(nil, name)
	body = putU64(body, value)
	undo := b.priorUndo(id, name)
	pos := b.appendRecord(record.RecordTypeIntProperty, id, body, undo)
	b.saveUndo(id, name, pos)
	return pos
}

// RealProperty appends a REAL_PROPERTY record.
func (b *Builder) RealProperty(id uint32, name string, value float64) uint64 {
	body := putStr(nil, name)
	body = putF64(body, value)
	undo := b.priorUndo(id, name)
	pos := b.appendRecord(record.RecordTypeRealProperty, id, body, undo)
	b.saveUndo(id, name, pos)
	return pos
}

// StringProperty appends a STRING_PROPERTY record.
func (b *Builder) StringProperty(id uint32, name, value string) uint64 {
	body := putStr(nil, name)
	body = putStr(body, value)
	undo := b.priorUndo(id, name)
	pos := b.appendRecord(record.RecordTypeStringProperty, id, body, undo)
	b.saveUndo(id, name, pos)
	return pos
}

// GeneralProperty appends a GENERAL_PROPERTY record. Its fixed body carries
// only name+size; payload follows on disk but is not counted in the
// record's declared Size.
func (b *Builder) GeneralProperty(id uint32, name string, payload []byte) uint64 {
	body := putStr(nil, name)
	body = putU32(body, uint32(len(payload)))
	undo := b.priorUndo(id, name)
	pos := b.appendRecordWithPayload(record.RecordTypeGeneralProperty, id, body, payload, undo)
	b.saveUndo(id, name, pos)
	return pos
}

// NewData appends a NEW_DATA record for a generator node, chaining it to
// the node's previous NEW_DATA record. Its fixed body carries only
// frame/timestamp/payload size; the frame payload follows on disk but is
// not counted in the record's declared Size.
func (b *Builder) NewData(id uint32, frame uint32, timestamp uint64, payload []byte) uint64 {
	body := putU32(nil, frame)
	body = putU64(body, timestamp)
	body = putU32(body, uint32(len(payload)))
	undo := b.newDataUndo[id]
	pos := b.appendRecordWithPayload(record.RecordTypeNewData, id, body, payload, undo)
	b.newDataUndo[id] = pos
	return pos
}

// SeekTable appends a SEEK_TABLE record for a generator node. Its fixed body
// carries only the entry count; the entry array follows on disk but is not
// counted in the record's declared Size.
func (b *Builder) SeekTable(id uint32, entries []record.SeekIndexEntry) uint64 {
	body := putU32(nil, uint32(len(entries)))
	var payload []byte
	for _, e := range entries {
		if b.layout == record.Layout64 {
			payload = putU64(payload, e.SeekPos)
		} else {
			payload = putU32(payload, uint32(e.SeekPos))
		}
		payload = putU64(payload, e.Timestamp)
		payload = putU32(payload, e.ConfigurationID)
	}
	return b.appendRecordWithPayload(record.RecordTypeSeekTable, id, body, payload, 0)
}

// End appends the terminal END record.
func (b *Builder) End() uint64 {
	return b.appendRecord(record.RecordTypeEnd, record.NoNode, nil, 0)
}

// Pos returns the current write position (where the next record will start).
func (b *Builder) Pos() uint64 { return uint64(len(b.buf)) }

// Bytes returns the assembled recording.
func (b *Builder) Bytes() []byte { return b.buf }

// WriteTo writes the assembled recording to w, satisfying io.WriterTo for
// golden-file generation.
func (b *Builder) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(b.buf)
	return int64(n), err
}

func putU32(b []byte, v uint32) []byte {
	return append(b, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

func putU64(b []byte, v uint64) []byte {
	for i := 0; i < 8; i++ {
		b = append(b, byte(v>>(8*i)))
	}
	return b
}

func putF64(b []byte, v float64) []byte {
	return putU64(b, math.Float64bits(v))
}

func putStr(b []byte, s string) []byte {
	b = putU32(b, uint32(len(s)))
	return append(b, s...)
}
