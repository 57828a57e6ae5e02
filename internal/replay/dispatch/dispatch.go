// Package dispatch reads one record at a time from the current stream
// position, validates it, routes it to a typed handler, mutates the node
// table, and forwards notifications. It is the single serialization point
// for all player state mutation (spec: single-threaded cooperative access).
package dispatch

import (
	"fmt"
	"log/slog"
	"math"

	replayerrors "github.com/alxayo/go-replay/internal/errors"
	"github.com/alxayo/go-replay/internal/bufpool"
	"github.com/alxayo/go-replay/internal/logger"
	"github.com/alxayo/go-replay/internal/replay/nodetable"
	"github.com/alxayo/go-replay/internal/replay/notify"
	"github.com/alxayo/go-replay/internal/replay/record"
	"github.com/alxayo/go-replay/internal/replay/stream"
)

// Dispatch is the record dispatcher. It owns the global replay state
// (dataBegun, the current timestamp, eof/repeat): the NODE_DATA_BEGIN,
// NEW_DATA and END handlers update it while records are processed, and the
// player resets it on rewind and sets Repeat through SetRepeat.
type Dispatch struct {
	Stream stream.InputStream
	Layout record.Layout
	Table  *nodetable.Table
	Sink   notify.Sink

	GlobalMaxTimestamp uint64

	DataBegun bool
	Timestamp uint64
	Repeat    bool
	Eof       bool

	lastOutputWidth  uint64
	lastOutputHeight uint64

	eofHandlers map[int]func() error
	nextEofID   int

	pool *bufpool.Pool
	log  *slog.Logger
}

// New creates a Dispatch over the given stream, already positioned just
// after the file header.
func New(s stream.InputStream, layout record.Layout, table *nodetable.Table, sink notify.Sink, globalMaxTimestamp uint64) *Dispatch {
	return &Dispatch{
		Stream:             s,
		Layout:             layout,
		Table:              table,
		Sink:               sink,
		GlobalMaxTimestamp: globalMaxTimestamp,
		eofHandlers:        make(map[int]func() error),
		pool:               bufpool.New(),
		log:                logger.Logger().With("component", "dispatch"),
	}
}

// RegisterEOF adds h to the set of callbacks invoked when END is reached.
// It returns a token for UnregisterEOF.
func (d *Dispatch) RegisterEOF(h func() error) int {
	id := d.nextEofID
	d.nextEofID++
	d.eofHandlers[id] = h
	return id
}

// UnregisterEOF removes a callback registered with RegisterEOF.
func (d *Dispatch) UnregisterEOF(token int) {
	delete(d.eofHandlers, token)
}

func (d *Dispatch) raiseEOF() error {
	for _, h := range d.eofHandlers {
		if err := h(); err != nil {
			return err
		}
	}
	return nil
}

// ProcessRecordAt seeks to pos and processes exactly one record there.
func (d *Dispatch) ProcessRecordAt(pos uint64, processPayload bool) (record.Header, error) {
	if err := d.Stream.Seek(stream.Set, int64(pos)); err != nil {
		return record.Header{}, err
	}
	return d.ProcessRecord(processPayload)
}

// PeekHeaderAt reads only the fixed header of the record at pos, leaving
// the stream positioned immediately after the header (callers that need to
// re-process the full record should ProcessRecordAt instead).
func (d *Dispatch) PeekHeaderAt(pos uint64) (record.Header, error) {
	if err := d.Stream.Seek(stream.Set, int64(pos)); err != nil {
		return record.Header{}, err
	}
	hs := record.HeaderSize(d.Layout)
	buf := d.pool.Get(hs)
	defer d.pool.Put(buf)
	if _, err := d.Stream.Read(buf); err != nil {
		return record.Header{}, err
	}
	return record.ReadHeader(buf, d.Layout)
}

// PeekNewDataHeaderAt reads a NEW_DATA record's header fields (frame
// number, timestamp, payload size) at pos without reading its payload,
// leaving the stream positioned just after those fields. Callers that need
// the record applied should ProcessRecordAt instead.
func (d *Dispatch) PeekNewDataHeaderAt(pos uint64) (record.Header, record.NewDataBody, error) {
	h, err := d.PeekHeaderAt(pos)
	if err != nil {
		return record.Header{}, record.NewDataBody{}, err
	}
	if h.Type != record.RecordTypeNewData {
		return record.Header{}, record.NewDataBody{}, replayerrors.NewCorruptFileError(
			"dispatch.peek_new_data", fmt.Errorf("expected NEW_DATA at %d, found %v", pos, h.Type))
	}
	buf := d.pool.Get(record.NewDataHeaderSize)
	defer d.pool.Put(buf)
	if _, err := d.Stream.Read(buf); err != nil {
		return record.Header{}, record.NewDataBody{}, err
	}
	nd, err := record.DecodeNewDataHeader(buf)
	if err != nil {
		return record.Header{}, record.NewDataBody{}, err
	}
	return h, nd, nil
}

// ProcessRecord reads the next record from the current stream position and
// dispatches it. processPayload=false suppresses data/notification emission
// for payload-bearing records while still applying bookkeeping mutations;
// it is used by the slow seek path. It returns the record's decoded header.
func (d *Dispatch) ProcessRecord(processPayload bool) (record.Header, error) {
	recordPos, err := d.Stream.Tell()
	if err != nil {
		return record.Header{}, err
	}

	hs := record.HeaderSize(d.Layout)
	hdrBuf := d.pool.Get(hs)
	defer d.pool.Put(hdrBuf)
	if _, err := d.Stream.Read(hdrBuf); err != nil {
		return record.Header{}, err
	}
	header, err := record.ReadHeader(hdrBuf, d.Layout)
	if err != nil {
		return record.Header{}, err
	}

	bodyLen := int(header.Size) - hs
	var body []byte
	if bodyLen > 0 {
		body = d.pool.Get(bodyLen)
		defer d.pool.Put(body)
		if _, err := d.Stream.Read(body); err != nil {
			return record.Header{}, err
		}
	}

	if err := d.handle(recordPos, header, body, processPayload); err != nil {
		return header, err
	}
	return header, nil
}

func (d *Dispatch) handle(recordPos uint64, h record.Header, body []byte, processPayload bool) error {
	switch h.Type {
	case record.RecordTypeNodeAdded, record.RecordTypeNodeAdded10_0_5, record.RecordTypeNodeAdded10_0_4:
		return d.handleNodeAdded(h, body)
	case record.RecordTypeNodeRemoved:
		return d.Table.Remove(h.NodeID)
	case record.RecordTypeNodeStateReady:
		return d.handleNodeStateReady(h)
	case record.RecordTypeNodeDataBegin:
		return d.handleNodeDataBegin(h)
	case record.RecordTypeIntProperty:
		return d.handleIntProperty(recordPos, h, body)
	case record.RecordTypeRealProperty:
		return d.handleRealProperty(recordPos, h, body)
	case record.RecordTypeStringProperty:
		return d.handleStringProperty(recordPos, h, body)
	case record.RecordTypeGeneralProperty:
		return d.handleGeneralProperty(recordPos, h, body, processPayload)
	case record.RecordTypeNewData:
		return d.handleNewData(recordPos, h, body, processPayload)
	case record.RecordTypeSeekTable:
		return d.skipSeekTableInline(body) // ingested out-of-band from NODE_ADDED
	case record.RecordTypeEnd:
		return d.handleEnd()
	default:
		return replayerrors.NewCorruptFileError("dispatch.handle", fmt.Errorf("unhandled record type %v", h.Type))
	}
}

func (d *Dispatch) handleNodeAdded(h record.Header, body []byte) error {
	var (
		added record.NodeAddedBody
		err   error
	)
	switch h.Type {
	case record.RecordTypeNodeAdded:
		added, err = record.DecodeNodeAdded(body)
	case record.RecordTypeNodeAdded10_0_5:
		added, err = record.DecodeNodeAdded1005(body)
	default:
		added, err = record.DecodeNodeAdded1004(body)
	}
	if err != nil {
		return err
	}

	row := d.Table.Add(h.NodeID, added.Name, added.NodeType)
	if row == nil {
		return replayerrors.NewBadArgumentError("dispatch.node_added", fmt.Errorf("node id %d out of range", h.NodeID))
	}
	row.CodecID = added.Codec
	if row.IsGenerator {
		row.Frames = added.Frames
		row.MinTimestamp = added.MinTimestamp
		row.MaxTimestamp = added.MaxTimestamp
	}

	if h.Type == record.RecordTypeNodeAdded10_0_4 {
		if err := d.recoverLegacyCounters(row); err != nil {
			d.log.Warn("legacy counter recovery failed", "node", row.Name, "err", err)
		}
	} else if added.SeekTablePosition != 0 && row.Frames > 0 {
		if err := d.ingestSeekTable(row, added.SeekTablePosition); err != nil {
			d.log.Warn("seek table ingestion failed", "node", row.Name, "err", err)
		}
	}

	if err := d.Sink.OnNodeAdded(row.Name, row.NodeType, row.CodecID, row.Frames); err != nil {
		row.Valid = false
		return err
	}

	for !row.StateReady {
		if _, err := d.ProcessRecord(true); err != nil {
			row.Valid = false
			return err
		}
	}
	return nil
}

// payloadSizeFor returns the number of trailing payload bytes that follow
// body on disk for record types whose Size excludes their payload (NEW_DATA,
// GENERAL_PROPERTY, SEEK_TABLE). Every other type's payload is zero.
func payloadSizeFor(h record.Header, body []byte, layout record.Layout) (uint32, error) {
	switch h.Type {
	case record.RecordTypeNewData:
		nd, err := record.DecodeNewDataHeader(body)
		if err != nil {
			return 0, err
		}
		return nd.PayloadSize, nil
	case record.RecordTypeGeneralProperty:
		_, size, err := record.DecodeGeneralProperty(body)
		if err != nil {
			return 0, err
		}
		return size, nil
	case record.RecordTypeSeekTable:
		count, err := record.DecodeSeekTableCount(body)
		if err != nil {
			return 0, err
		}
		return uint32(record.SeekIndexEntrySize(layout)) * count, nil
	default:
		return 0, nil
	}
}

// skipSeekTableInline is reached when the dispatcher encounters a SEEK_TABLE
// record in the ordinary record stream (rather than via the NODE_ADDED
// out-of-band ingestion path below). Its entry array is not part of body;
// skip over it so the stream lands on the next record's header.
func (d *Dispatch) skipSeekTableInline(body []byte) error {
	count, err := record.DecodeSeekTableCount(body)
	if err != nil {
		return err
	}
	skip := int64(record.SeekIndexEntrySize(d.Layout)) * int64(count)
	return d.Stream.Seek(stream.Cur, skip)
}

// recoverLegacyCounters implements the NODE_ADDED_1_0_0_4 best-effort
// forward scan for frame count / max timestamp (via NODE_DATA_BEGIN) and
// min timestamp (via the first NEW_DATA). Absence of either is not an
// error: it is a best-effort recovery over a log that may not carry it.
func (d *Dispatch) recoverLegacyCounters(row *nodetable.Row) error {
	if !row.IsGenerator {
		return nil
	}
	savedPos, err := d.Stream.Tell()
	if err != nil {
		return err
	}
	defer d.Stream.Seek(stream.Set, int64(savedPos))

	hs := record.HeaderSize(d.Layout)
	for {
		hdrBuf := d.pool.Get(hs)
		if _, err := d.Stream.Read(hdrBuf); err != nil {
			d.pool.Put(hdrBuf)
			return nil // best-effort: ran out of stream before finding it
		}
		h, err := record.ReadHeader(hdrBuf, d.Layout)
		d.pool.Put(hdrBuf)
		if err != nil {
			return nil
		}
		bodyLen := int(h.Size) - hs
		var body []byte
		if bodyLen > 0 {
			body = d.pool.Get(bodyLen)
			if _, err := d.Stream.Read(body); err != nil {
				d.pool.Put(body)
				return nil
			}
		}

		switch h.Type {
		case record.RecordTypeNodeDataBegin:
			if legacy, ok := record.DecodeNodeDataBegin(body); ok {
				row.Frames = legacy.Frames
				row.MaxTimestamp = legacy.MaxTimestamp
			}
		case record.RecordTypeNewData:
			if nd, nerr := record.DecodeNewDataHeader(body); nerr == nil && h.NodeID == row.ID {
				row.MinTimestamp = nd.Timestamp
				if body != nil {
					d.pool.Put(body)
				}
				return nil
			}
		case record.RecordTypeEnd:
			if body != nil {
				d.pool.Put(body)
			}
			return nil
		}

		payloadSize, perr := payloadSizeFor(h, body, d.Layout)
		if body != nil {
			d.pool.Put(body)
		}
		if perr != nil {
			return nil
		}
		if payloadSize > 0 {
			if err := d.Stream.Seek(stream.Cur, int64(payloadSize)); err != nil {
				return nil
			}
		}
	}
}

func (d *Dispatch) ingestSeekTable(row *nodetable.Row, seekTablePos uint64) error {
	savedPos, err := d.Stream.Tell()
	if err != nil {
		return err
	}
	defer d.Stream.Seek(stream.Set, int64(savedPos))

	if err := d.Stream.Seek(stream.Set, int64(seekTablePos)); err != nil {
		return err
	}
	hs := record.HeaderSize(d.Layout)
	hdrBuf := d.pool.Get(hs)
	defer d.pool.Put(hdrBuf)
	if _, err := d.Stream.Read(hdrBuf); err != nil {
		return err
	}
	h, err := record.ReadHeader(hdrBuf, d.Layout)
	if err != nil {
		return err
	}
	if h.Type != record.RecordTypeSeekTable {
		return replayerrors.NewCorruptFileError("dispatch.seek_table", fmt.Errorf("expected SEEK_TABLE at %d, found %v", seekTablePos, h.Type))
	}
	bodyLen := int(h.Size) - hs
	body := d.pool.Get(bodyLen)
	defer d.pool.Put(body)
	if _, err := d.Stream.Read(body); err != nil {
		return err
	}
	count, err := record.DecodeSeekTableCount(body)
	if err != nil {
		return err
	}
	payloadSize := record.SeekIndexEntrySize(d.Layout) * int(count)
	if uint64(h.Size)+uint64(payloadSize) > record.RecordMaxSize {
		return replayerrors.NewCorruptFileError("dispatch.seek_table.size",
			fmt.Errorf("record size %d + payload %d exceeds RECORD_MAX_SIZE %d", h.Size, payloadSize, record.RecordMaxSize))
	}
	payload := d.pool.Get(payloadSize)
	defer d.pool.Put(payload)
	if _, err := d.Stream.Read(payload); err != nil {
		return err
	}
	entries, err := record.DecodeSeekTableEntries(payload, d.Layout, count)
	if err != nil {
		return err
	}
	row.DataIndex = append([]record.SeekIndexEntry{{}}, entries...) // index 0 sentinel, 1-based
	return nil
}

func (d *Dispatch) handleNodeStateReady(h record.Header) error {
	row := d.Table.Get(h.NodeID)
	if row == nil || !row.Valid {
		return replayerrors.NewNoNodePresentError("dispatch.node_state_ready", fmt.Errorf("node id %d", h.NodeID))
	}
	if row.StateReady {
		return nil
	}
	if err := d.Sink.OnNodeStateReady(row.Name); err != nil {
		return err
	}
	if row.IsGenerator && row.CodecID != record.CodecUncompressed && !row.HasCodec() {
		if err := d.Table.AttachCodec(row, row.CodecID); err != nil {
			return err
		}
	}
	row.StateReady = true
	return nil
}

func (d *Dispatch) handleNodeDataBegin(h record.Header) error {
	row := d.Table.Get(h.NodeID)
	if row == nil || !row.Valid || !row.IsGenerator {
		return replayerrors.NewCorruptFileError("dispatch.node_data_begin", fmt.Errorf("node id %d is not a valid generator", h.NodeID))
	}
	d.DataBegun = true
	return nil
}

func (d *Dispatch) handleIntProperty(recordPos uint64, h record.Header, body []byte) error {
	row := d.Table.Get(h.NodeID)
	if row == nil || !row.Valid {
		return replayerrors.NewNoNodePresentError("dispatch.int_property", fmt.Errorf("node id %d", h.NodeID))
	}
	p, err := record.DecodeIntProperty(body)
	if err != nil {
		return err
	}
	value := p.Value
	if p.Name == "xnIsGenerating" && value == 0 && row.Frames > 0 {
		value = 1 // BC fix-up: known recorder bug rewrote "still generating" as false
	}
	row.PropertyCache[p.Name] = value
	if err := d.Sink.OnNodeIntPropChanged(row.Name, p.Name, value); err != nil {
		return err
	}
	d.saveUndo(row, p.Name, recordPos, h)
	return nil
}

func (d *Dispatch) handleRealProperty(recordPos uint64, h record.Header, body []byte) error {
	row := d.Table.Get(h.NodeID)
	if row == nil || !row.Valid {
		return replayerrors.NewNoNodePresentError("dispatch.real_property", fmt.Errorf("node id %d", h.NodeID))
	}
	p, err := record.DecodeRealProperty(body)
	if err != nil {
		return err
	}
	row.PropertyCache[p.Name] = p.Value
	if err := d.Sink.OnNodeRealPropChanged(row.Name, p.Name, p.Value); err != nil {
		return err
	}
	d.saveUndo(row, p.Name, recordPos, h)
	return nil
}

func (d *Dispatch) handleStringProperty(recordPos uint64, h record.Header, body []byte) error {
	row := d.Table.Get(h.NodeID)
	if row == nil || !row.Valid {
		return replayerrors.NewNoNodePresentError("dispatch.string_property", fmt.Errorf("node id %d", h.NodeID))
	}
	p, err := record.DecodeStringProperty(body)
	if err != nil {
		return err
	}
	row.PropertyCache[p.Name] = p.Value
	if err := d.Sink.OnNodeStringPropChanged(row.Name, p.Name, p.Value); err != nil {
		return err
	}
	d.saveUndo(row, p.Name, recordPos, h)
	return nil
}

// realWorldTranslationSize is the on-disk size of the 24-byte triple
// {zeroPlaneDistance, pixelSizeAtZeroPlane, sourceToDepthPixelRatio} of
// 64-bit floats that xnRealWorldTranslationData carries.
const realWorldTranslationSize = 24

func (d *Dispatch) handleGeneralProperty(recordPos uint64, h record.Header, body []byte, processPayload bool) error {
	row := d.Table.Get(h.NodeID)
	if row == nil || !row.Valid {
		return replayerrors.NewNoNodePresentError("dispatch.general_property", fmt.Errorf("node id %d", h.NodeID))
	}
	name, size, err := record.DecodeGeneralProperty(body)
	if err != nil {
		return err
	}
	if uint64(h.Size)+uint64(size) > record.RecordMaxSize {
		return replayerrors.NewCorruptFileError("dispatch.general_property.size",
			fmt.Errorf("record size %d + payload %d exceeds RECORD_MAX_SIZE %d", h.Size, size, record.RecordMaxSize))
	}

	if !processPayload {
		d.saveUndo(row, name, recordPos, h)
		return d.Stream.Seek(stream.Cur, int64(size))
	}

	payload := d.pool.Get(int(size))
	defer d.pool.Put(payload)
	if _, err := d.Stream.Read(payload); err != nil {
		return err
	}

	if name == "xnMapOutputMode" && len(payload) >= 8 {
		d.lastOutputWidth = uint64(le32(payload[0:4]))
		d.lastOutputHeight = uint64(le32(payload[4:8]))
	}

	if name == "xnRealWorldTranslationData" && len(payload) == realWorldTranslationSize {
		zeroPlane := lef64(payload[0:8])
		pixelSize := lef64(payload[8:16])
		ratio := lef64(payload[16:24])
		hFOV := fovFrom(pixelSize, ratio, float64(d.lastOutputWidth), zeroPlane)
		vFOV := fovFrom(pixelSize, ratio, float64(d.lastOutputHeight), zeroPlane)
		fov := make([]byte, 16)
		putLeF64(fov[0:8], hFOV)
		putLeF64(fov[8:16], vFOV)
		row.PropertyCache["xnFieldOfView"] = fov
		if err := d.Sink.OnNodeGeneralPropChanged(row.Name, "xnFieldOfView", fov); err != nil {
			return err
		}
		d.saveUndo(row, name, recordPos, h)
		return nil
	}

	row.PropertyCache[name] = append([]byte(nil), payload...)
	if err := d.Sink.OnNodeGeneralPropChanged(row.Name, name, payload); err != nil {
		return err
	}
	d.saveUndo(row, name, recordPos, h)
	return nil
}

// fovFrom computes a field-of-view angle in radians from the original
// recorder's formula: 2*atan(pixelSize * ratio * resolution / 2 / zeroPlane).
func fovFrom(pixelSize, ratio, resolution, zeroPlane float64) float64 {
	if zeroPlane == 0 {
		return 0
	}
	return 2 * math.Atan(pixelSize*ratio*resolution/2/zeroPlane)
}

func (d *Dispatch) handleNewData(recordPos uint64, h record.Header, body []byte, processPayload bool) error {
	row := d.Table.Get(h.NodeID)
	if row == nil || !row.Valid {
		return replayerrors.NewNoNodePresentError("dispatch.new_data", fmt.Errorf("node id %d", h.NodeID))
	}
	nd, err := record.DecodeNewDataHeader(body)
	if err != nil {
		return err
	}
	if row.Frames > 0 && nd.FrameNumber > row.Frames {
		return replayerrors.NewCorruptFileError("dispatch.new_data.frame",
			fmt.Errorf("frame %d exceeds node frame count %d", nd.FrameNumber, row.Frames))
	}
	if nd.Timestamp > d.GlobalMaxTimestamp {
		return replayerrors.NewCorruptFileError("dispatch.new_data.timestamp",
			fmt.Errorf("timestamp %d exceeds global max %d", nd.Timestamp, d.GlobalMaxTimestamp))
	}

	if uint64(h.Size)+uint64(nd.PayloadSize) > record.RecordMaxSize {
		return replayerrors.NewCorruptFileError("dispatch.new_data.size",
			fmt.Errorf("record size %d + payload %d exceeds RECORD_MAX_SIZE %d", h.Size, nd.PayloadSize, record.RecordMaxSize))
	}

	row.LastDataPos = recordPos
	row.NewDataUndo = nodetable.UndoLink{RecordPos: recordPos, UndoRecordPos: h.UndoRecordPos}
	row.CurFrame = nd.FrameNumber
	d.Timestamp = nd.Timestamp

	if !processPayload {
		return d.Stream.Seek(stream.Cur, int64(nd.PayloadSize))
	}

	payload := d.pool.Get(int(nd.PayloadSize))
	defer d.pool.Put(payload)
	if _, err := d.Stream.Read(payload); err != nil {
		return err
	}

	var out []byte
	if row.CodecID == record.CodecUncompressed || !row.HasCodec() {
		out = payload
	} else {
		dst := d.pool.Get(record.DataMaxSize)
		defer d.pool.Put(dst)
		n, err := row.Codec.Decompress(payload, dst)
		if err != nil {
			return err
		}
		out = dst[:n]
	}
	return d.Sink.OnNodeNewData(row.Name, nd.Timestamp, nd.FrameNumber, out)
}

func (d *Dispatch) handleEnd() error {
	if !d.DataBegun {
		return replayerrors.NewCorruptFileError("dispatch.end", fmt.Errorf("END reached without NODE_DATA_BEGIN"))
	}
	if err := d.raiseEOF(); err != nil {
		return err
	}
	if err := d.Sink.OnEndOfFile(); err != nil {
		return err
	}
	if !d.Repeat {
		d.Eof = true
	}
	return nil
}

func (d *Dispatch) saveUndo(row *nodetable.Row, name string, recordPos uint64, h record.Header) {
	row.RecordUndo[name] = nodetable.UndoLink{RecordPos: recordPos, UndoRecordPos: h.UndoRecordPos}
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func lef64(b []byte) float64 {
	bits := uint64(0)
	for i := 0; i < 8; i++ {
		bits |= uint64(b[i]) << (8 * i)
	}
	return math.Float64frombits(bits)
}

func putLeF64(b []byte, v float64) {
	bits := math.Float64bits(v)
	for i := 0; i < 8; i++ {
		b[i] = byte(bits >> (8 * i))
	}
}
