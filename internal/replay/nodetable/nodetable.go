// Package nodetable holds per-node replay state: identity, frame counters,
// undo bookkeeping, codec handle, and the optional seek index. Rows are
// plain structs — the player owns the table and is the only caller, so no
// row needs its own synchronization (spec: single-threaded cooperative
// access).
package nodetable

import (
	"github.com/alxayo/go-replay/internal/replay/codec"
	"github.com/alxayo/go-replay/internal/replay/notify"
	"github.com/alxayo/go-replay/internal/replay/record"
)

// UndoLink is a back-pointer chain entry: the position of the record that
// set this value, and the position of the record it superseded (0 = none).
type UndoLink struct {
	RecordPos     uint64
	UndoRecordPos uint64
}

// Reset clears the link to its zero value.
func (u *UndoLink) Reset() { *u = UndoLink{} }

// Row is the replay state of a single node.
type Row struct {
	ID   uint32
	Name string

	Valid       bool
	NodeType    record.NodeType
	IsGenerator bool
	StateReady  bool

	Codec     codec.Codec
	CodecID   record.CodecID
	hasCodec  bool

	Frames       uint32
	MinTimestamp uint64
	MaxTimestamp uint64
	CurFrame     uint32

	LastDataPos   uint64
	NewDataUndo   UndoLink
	RecordUndo    map[string]UndoLink
	PropertyCache map[string]any

	DataIndex []record.SeekIndexEntry // 1-based; index 0 is an unused sentinel
}

// HasCodec reports whether a codec has been attached to this row.
func (r *Row) HasCodec() bool { return r.hasCodec }

func newRow(id uint32) *Row {
	return &Row{
		ID:            id,
		RecordUndo:    make(map[string]UndoLink),
		PropertyCache: make(map[string]any),
	}
}

// reset clears a row back to its just-allocated, invalid state, giving it
// fresh empty maps; the row itself is kept (rewind reuses the table).
func (r *Row) reset() {
	id := r.ID
	*r = Row{ID: id, RecordUndo: make(map[string]UndoLink), PropertyCache: make(map[string]any)}
}

// Table is the dense, maxNodes-sized collection of node rows.
type Table struct {
	rows    []*Row
	byName  map[string]uint32
	factory codec.Factory
	sink    notify.Sink
}

// New creates a table sized for maxNodes node ids, [0, maxNodes).
func New(maxNodes uint32, factory codec.Factory, sink notify.Sink) *Table {
	rows := make([]*Row, maxNodes)
	for i := range rows {
		rows[i] = newRow(uint32(i))
	}
	return &Table{rows: rows, byName: make(map[string]uint32), factory: factory, sink: sink}
}

// Get returns the row for id, or nil if id is out of range.
func (t *Table) Get(id uint32) *Row {
	if int(id) >= len(t.rows) {
		return nil
	}
	return t.rows[id]
}

// FindByName returns the row with the given name among currently valid
// rows, or nil if none matches.
func (t *Table) FindByName(name string) *Row {
	id, ok := t.byName[name]
	if !ok {
		return nil
	}
	row := t.rows[id]
	if !row.Valid {
		return nil
	}
	return row
}

// Add installs a newly decoded node at id, replacing whatever was there
// (NODE_ADDED after NODE_REMOVED reuses the row). It does not fire
// notifications; the dispatcher does that once the full body is known.
func (t *Table) Add(id uint32, name string, nt record.NodeType) *Row {
	row := t.Get(id)
	if row == nil {
		return nil
	}
	row.reset()
	row.Valid = true
	row.Name = name
	row.NodeType = nt
	row.IsGenerator = nt.IsGenerator()
	t.byName[name] = id
	return row
}

// Remove delivers OnNodeRemoved, destroys the row's codec through the
// factory, and invalidates the row.
func (t *Table) Remove(id uint32) error {
	row := t.Get(id)
	if row == nil || !row.Valid {
		return nil
	}
	if t.sink != nil {
		if err := t.sink.OnNodeRemoved(row.Name); err != nil {
			return err
		}
	}
	if row.hasCodec && t.factory != nil {
		t.factory.Destroy(row.Codec)
	}
	delete(t.byName, row.Name)
	row.reset()
	return nil
}

// AttachCodec constructs and attaches a codec for a row via the factory.
func (t *Table) AttachCodec(row *Row, id record.CodecID) error {
	if t.factory == nil || id == record.CodecUncompressed {
		return nil
	}
	c, err := t.factory.Create(row.Name, id)
	if err != nil {
		return err
	}
	row.Codec = c
	row.CodecID = id
	row.hasCodec = true
	return nil
}

// ResetAll invalidates every row and clears the name index, without
// releasing the table itself; used by rewind.
func (t *Table) ResetAll() {
	for _, row := range t.rows {
		if row.hasCodec && t.factory != nil {
			t.factory.Destroy(row.Codec)
		}
		row.reset()
	}
	t.byName = make(map[string]uint32)
}

// Generators returns every currently-valid generator row, in id order.
func (t *Table) Generators() []*Row {
	var out []*Row
	for _, row := range t.rows {
		if row.Valid && row.IsGenerator {
			out = append(out, row)
		}
	}
	return out
}

// All returns every currently-valid row, in id order.
func (t *Table) All() []*Row {
	var out []*Row
	for _, row := range t.rows {
		if row.Valid {
			out = append(out, row)
		}
	}
	return out
}

// Len returns the table's fixed node-id capacity (maxNodes).
func (t *Table) Len() int { return len(t.rows) }
