package record

import (
	"encoding/binary"
	"fmt"
	"math"

	replayerrors "github.com/alxayo/go-replay/internal/errors"
)

// cursor reads little-endian fields out of a borrowed slice without copying
// beyond what a typed accessor needs (a string still copies its bytes into a
// Go string; numeric reads do not allocate).
type cursor struct {
	buf []byte
	off int
}

func (c *cursor) remaining() int { return len(c.buf) - c.off }

func (c *cursor) need(n int, op string) error {
	if c.remaining() < n {
		return replayerrors.NewCorruptFileError(op, fmt.Errorf("need %d bytes, have %d", n, c.remaining()))
	}
	return nil
}

func (c *cursor) u32(op string) (uint32, error) {
	if err := c.need(4, op); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(c.buf[c.off:])
	c.off += 4
	return v, nil
}

func (c *cursor) u64(op string) (uint64, error) {
	if err := c.need(8, op); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(c.buf[c.off:])
	c.off += 8
	return v, nil
}

func (c *cursor) f64(op string) (float64, error) {
	bits, err := c.u64(op)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(bits), nil
}

func (c *cursor) str(op string) (string, error) {
	n, err := c.u32(op)
	if err != nil {
		return "", err
	}
	if err := c.need(int(n), op); err != nil {
		return "", err
	}
	s := string(c.buf[c.off : c.off+int(n)])
	c.off += int(n)
	return s, nil
}

// NodeAddedBody is the common decoded shape of all three NODE_ADDED*
// variants; fields the variant does not carry are left zero.
type NodeAddedBody struct {
	Name              string
	NodeType          NodeType
	Codec             CodecID
	Frames            uint32
	MinTimestamp      uint64
	MaxTimestamp      uint64
	SeekTablePosition uint64
}

// DecodeNodeAdded decodes the modern NODE_ADDED body (with seek-table
// pointer).
func DecodeNodeAdded(body []byte) (NodeAddedBody, error) {
	return decodeNodeAddedVariant(body, true, true)
}

// DecodeNodeAdded1005 decodes NODE_ADDED_1_0_0_5 (no seek-table pointer).
func DecodeNodeAdded1005(body []byte) (NodeAddedBody, error) {
	return decodeNodeAddedVariant(body, true, false)
}

// DecodeNodeAdded1004 decodes NODE_ADDED_1_0_0_4 (name/type/codec only;
// frame count and timestamps are recovered separately by the dispatcher via
// a forward scan).
func DecodeNodeAdded1004(body []byte) (NodeAddedBody, error) {
	return decodeNodeAddedVariant(body, false, false)
}

func decodeNodeAddedVariant(body []byte, hasCounters, hasSeekTable bool) (NodeAddedBody, error) {
	c := &cursor{buf: body}
	var b NodeAddedBody
	var err error
	if b.Name, err = c.str("node_added.name"); err != nil {
		return NodeAddedBody{}, err
	}
	var nt, codec uint32
	if nt, err = c.u32("node_added.type"); err != nil {
		return NodeAddedBody{}, err
	}
	b.NodeType = NodeType(nt)
	if codec, err = c.u32("node_added.codec"); err != nil {
		return NodeAddedBody{}, err
	}
	b.Codec = CodecID(codec)
	if !hasCounters {
		return b, nil
	}
	if b.Frames, err = c.u32("node_added.frames"); err != nil {
		return NodeAddedBody{}, err
	}
	if b.MinTimestamp, err = c.u64("node_added.min_ts"); err != nil {
		return NodeAddedBody{}, err
	}
	if b.MaxTimestamp, err = c.u64("node_added.max_ts"); err != nil {
		return NodeAddedBody{}, err
	}
	if !hasSeekTable {
		return b, nil
	}
	if b.SeekTablePosition, err = c.u64("node_added.seek_table_pos"); err != nil {
		return NodeAddedBody{}, err
	}
	return b, nil
}

// NodeDataBeginBody carries the legacy frame count / max timestamp some
// recordings stamp into NODE_DATA_BEGIN.
type NodeDataBeginBody struct {
	Frames       uint32
	MaxTimestamp uint64
}

// DecodeNodeDataBegin decodes a NODE_DATA_BEGIN body. Older recordings may
// have left it empty; callers should treat a short body as "no legacy
// counters" rather than corruption.
func DecodeNodeDataBegin(body []byte) (NodeDataBeginBody, bool) {
	if len(body) < 12 {
		return NodeDataBeginBody{}, false
	}
	c := &cursor{buf: body}
	frames, _ := c.u32("data_begin.frames")
	ts, _ := c.u64("data_begin.max_ts")
	return NodeDataBeginBody{Frames: frames, MaxTimestamp: ts}, true
}

// IntPropertyBody is the decoded INT_PROPERTY body.
type IntPropertyBody struct {
	Name  string
	Value uint64
}

func DecodeIntProperty(body []byte) (IntPropertyBody, error) {
	c := &cursor{buf: body}
	name, err := c.str("int_property.name")
	if err != nil {
		return IntPropertyBody{}, err
	}
	val, err := c.u64("int_property.value")
	if err != nil {
		return IntPropertyBody{}, err
	}
	return IntPropertyBody{Name: name, Value: val}, nil
}

// RealPropertyBody is the decoded REAL_PROPERTY body.
type RealPropertyBody struct {
	Name  string
	Value float64
}

func DecodeRealProperty(body []byte) (RealPropertyBody, error) {
	c := &cursor{buf: body}
	name, err := c.str("real_property.name")
	if err != nil {
		return RealPropertyBody{}, err
	}
	val, err := c.f64("real_property.value")
	if err != nil {
		return RealPropertyBody{}, err
	}
	return RealPropertyBody{Name: name, Value: val}, nil
}

// StringPropertyBody is the decoded STRING_PROPERTY body.
type StringPropertyBody struct {
	Name  string
	Value string
}

func DecodeStringProperty(body []byte) (StringPropertyBody, error) {
	c := &cursor{buf: body}
	name, err := c.str("string_property.name")
	if err != nil {
		return StringPropertyBody{}, err
	}
	val, err := c.str("string_property.value")
	if err != nil {
		return StringPropertyBody{}, err
	}
	return StringPropertyBody{Name: name, Value: val}, nil
}

// DecodeGeneralProperty decodes the fixed name+size fields of a
// GENERAL_PROPERTY record's body. The payload itself is not part of body
// (it follows the record's fixed portion on disk, sized by size); the
// caller reads or skips it separately depending on processPayload.
func DecodeGeneralProperty(body []byte) (name string, size uint32, err error) {
	c := &cursor{buf: body}
	if name, err = c.str("general_property.name"); err != nil {
		return "", 0, err
	}
	if size, err = c.u32("general_property.size"); err != nil {
		return "", 0, err
	}
	return name, size, nil
}

// NewDataBody is the decoded NEW_DATA header. The frame payload is not part
// of body (it follows the record's fixed portion on disk, sized by
// PayloadSize); the dispatcher reads or skips it separately depending on
// whether bProcessPayload is set, since it may be large and compressed.
type NewDataBody struct {
	FrameNumber uint32
	Timestamp   uint64
	PayloadSize uint32
}

func DecodeNewDataHeader(body []byte) (NewDataBody, error) {
	c := &cursor{buf: body}
	var b NewDataBody
	var err error
	if b.FrameNumber, err = c.u32("new_data.frame"); err != nil {
		return NewDataBody{}, err
	}
	if b.Timestamp, err = c.u64("new_data.timestamp"); err != nil {
		return NewDataBody{}, err
	}
	if b.PayloadSize, err = c.u32("new_data.payload_size"); err != nil {
		return NewDataBody{}, err
	}
	return b, nil
}

// NewDataHeaderSize is the fixed on-disk size of the NEW_DATA body fields
// (frame number + timestamp + payload size), used to locate the payload.
const NewDataHeaderSize = 4 + 8 + 4

// SeekIndexEntry is the in-memory, already-widened form of one seek table
// row; the 32-bit on-disk variant packs SeekPos as u32.
type SeekIndexEntry struct {
	SeekPos         uint64
	Timestamp       uint64
	ConfigurationID uint32
}

// SeekIndexEntrySize returns the on-disk size of one seek index entry for
// layout l (the 32-bit layout packs SeekPos as u32; it is widened on read).
func SeekIndexEntrySize(l Layout) int {
	if l == Layout64 {
		return 8 + 8 + 4
	}
	return 4 + 8 + 4
}

// DecodeSeekTableCount decodes the fixed entry-count field of a SEEK_TABLE
// record's body. The entry array itself is not part of body (it follows
// the record's fixed portion on disk, sized by count*SeekIndexEntrySize);
// the caller reads or skips it separately depending on processPayload.
func DecodeSeekTableCount(body []byte) (uint32, error) {
	c := &cursor{buf: body}
	return c.u32("seek_table.count")
}

// DecodeSeekTableEntries decodes count widened entries out of payload (the
// bytes read separately after the fixed count field).
func DecodeSeekTableEntries(payload []byte, layout Layout, count uint32) ([]SeekIndexEntry, error) {
	c := &cursor{buf: payload}
	entrySize := SeekIndexEntrySize(layout)
	entries := make([]SeekIndexEntry, 0, count)
	for i := uint32(0); i < count; i++ {
		if err := c.need(entrySize, "seek_table.entry"); err != nil {
			return nil, err
		}
		var e SeekIndexEntry
		if layout == Layout64 {
			e.SeekPos = binary.LittleEndian.Uint64(c.buf[c.off:])
			c.off += 8
		} else {
			e.SeekPos = uint64(binary.LittleEndian.Uint32(c.buf[c.off:]))
			c.off += 4
		}
		e.Timestamp = binary.LittleEndian.Uint64(c.buf[c.off:])
		c.off += 8
		e.ConfigurationID = binary.LittleEndian.Uint32(c.buf[c.off:])
		c.off += 4
		entries = append(entries, e)
	}
	return entries, nil
}
