package record

import (
	"encoding/binary"
	"fmt"
	"io"

	replayerrors "github.com/alxayo/go-replay/internal/errors"
)

// HeaderMagic is the fixed 4-byte magic at the start of every recording file.
var HeaderMagic = [4]byte{'N', 'I', 'R', 0x01}

// RecordMagic is the fixed 4-byte magic at the start of every record.
var RecordMagic = [4]byte{'R', 'C', 0x00, 0x00}

// FileHeaderSize is the on-disk size of FileHeader; identical across
// layouts since every field in it is already fixed-width.
const FileHeaderSize = 4 + 16 + 8 + 4

// FileHeader is the fixed header at the start of a recording.
type FileHeader struct {
	Version            Version
	GlobalMaxTimestamp uint64
	MaxNodeID          uint32
}

// ReadFileHeader reads and validates the file header from r.
func ReadFileHeader(r io.Reader) (FileHeader, error) {
	var buf [FileHeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return FileHeader{}, replayerrors.NewCorruptFileError("header.read", err)
	}
	if buf[0] != HeaderMagic[0] || buf[1] != HeaderMagic[1] || buf[2] != HeaderMagic[2] || buf[3] != HeaderMagic[3] {
		return FileHeader{}, replayerrors.NewCorruptFileError("header.magic", fmt.Errorf("bad magic %x", buf[0:4]))
	}
	h := FileHeader{
		Version: Version{
			Major:       binary.LittleEndian.Uint32(buf[4:8]),
			Minor:       binary.LittleEndian.Uint32(buf[8:12]),
			Maintenance: binary.LittleEndian.Uint32(buf[12:16]),
			Build:       binary.LittleEndian.Uint32(buf[16:20]),
		},
		GlobalMaxTimestamp: binary.LittleEndian.Uint64(buf[20:28]),
		MaxNodeID:          binary.LittleEndian.Uint32(buf[28:32]),
	}
	if h.Version.Compare(OldestSupported) < 0 {
		return FileHeader{}, replayerrors.NewUnsupportedVersionError("header.version",
			fmt.Errorf("version %s older than oldest supported %s", h.Version, OldestSupported))
	}
	if h.Version.Compare(CurrentVersion) > 0 {
		return FileHeader{}, replayerrors.NewUnsupportedVersionError("header.version",
			fmt.Errorf("version %s newer than current %s", h.Version, CurrentVersion))
	}
	return h, nil
}

// WriteFileHeader serializes h to w. Used by test fixture generators.
func WriteFileHeader(w io.Writer, h FileHeader) error {
	var buf [FileHeaderSize]byte
	copy(buf[0:4], HeaderMagic[:])
	binary.LittleEndian.PutUint32(buf[4:8], h.Version.Major)
	binary.LittleEndian.PutUint32(buf[8:12], h.Version.Minor)
	binary.LittleEndian.PutUint32(buf[12:16], h.Version.Maintenance)
	binary.LittleEndian.PutUint32(buf[16:20], h.Version.Build)
	binary.LittleEndian.PutUint64(buf[20:28], h.GlobalMaxTimestamp)
	binary.LittleEndian.PutUint32(buf[28:32], h.MaxNodeID)
	_, err := w.Write(buf[:])
	return err
}

// HeaderSize returns the on-disk record header size for layout l.
func HeaderSize(l Layout) int {
	if l == Layout64 {
		return 4 + 4 + 4 + 8 + 8
	}
	return 4 + 4 + 4 + 4 + 4
}

// Header is the fixed portion of every record, with size/undoRecordPos
// already widened to 64 bits regardless of on-disk layout.
type Header struct {
	Type          RecordType
	NodeID        uint32
	Size          uint64
	UndoRecordPos uint64
}

// ReadHeader decodes a record header from the start of buf. buf must be at
// least HeaderSize(layout) bytes; it is a view, not a copy.
func ReadHeader(buf []byte, layout Layout) (Header, error) {
	hs := HeaderSize(layout)
	if len(buf) < hs {
		return Header{}, replayerrors.NewCorruptFileError("record.header.short",
			fmt.Errorf("need %d bytes, have %d", hs, len(buf)))
	}
	if buf[0] != RecordMagic[0] || buf[1] != RecordMagic[1] || buf[2] != RecordMagic[2] || buf[3] != RecordMagic[3] {
		return Header{}, replayerrors.NewCorruptFileError("record.header.magic", fmt.Errorf("bad magic %x", buf[0:4]))
	}
	typ := RecordType(binary.LittleEndian.Uint32(buf[4:8]))
	if !typ.Valid() {
		return Header{}, replayerrors.NewCorruptFileError("record.header.type", fmt.Errorf("unknown record type %d", typ))
	}
	nodeID := binary.LittleEndian.Uint32(buf[8:12])
	var size, undo uint64
	if layout == Layout64 {
		size = binary.LittleEndian.Uint64(buf[12:20])
		undo = binary.LittleEndian.Uint64(buf[20:28])
	} else {
		size = uint64(binary.LittleEndian.Uint32(buf[12:16]))
		undo = uint64(binary.LittleEndian.Uint32(buf[16:20]))
	}
	if size < uint64(hs) {
		return Header{}, replayerrors.NewCorruptFileError("record.header.size",
			fmt.Errorf("size %d smaller than header size %d", size, hs))
	}
	if size > RecordMaxSize {
		return Header{}, replayerrors.NewCorruptFileError("record.header.size",
			fmt.Errorf("size %d exceeds RECORD_MAX_SIZE %d", size, RecordMaxSize))
	}
	return Header{Type: typ, NodeID: nodeID, Size: size, UndoRecordPos: undo}, nil
}

// WriteHeader serializes h into the start of buf (which must be at least
// HeaderSize(layout) bytes) and returns the number of bytes written. Used by
// test fixture generators, not by the player itself (Non-goals: writing).
func WriteHeader(buf []byte, layout Layout, h Header) int {
	copy(buf[0:4], RecordMagic[:])
	binary.LittleEndian.PutUint32(buf[4:8], uint32(h.Type))
	binary.LittleEndian.PutUint32(buf[8:12], h.NodeID)
	if layout == Layout64 {
		binary.LittleEndian.PutUint64(buf[12:20], h.Size)
		binary.LittleEndian.PutUint64(buf[20:28], h.UndoRecordPos)
	} else {
		binary.LittleEndian.PutUint32(buf[12:16], uint32(h.Size))
		binary.LittleEndian.PutUint32(buf[16:20], uint32(h.UndoRecordPos))
	}
	return HeaderSize(layout)
}
