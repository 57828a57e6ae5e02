// Package record implements the fixed record grammar of a recording file:
// header decode, record header decode across both on-disk layouts, and
// typed body decoders. Decoders read from a caller-owned buffer; numeric
// fields are read in place, while string fields are copied into Go strings
// and decoded seek tables into a new slice.
package record

import "fmt"

// Layout selects the width of the size/position fields on disk.
type Layout int

const (
	// Layout32 is used by file versions older than FirstFileSize64Bit:
	// size and undoRecordPos are 4 bytes each.
	Layout32 Layout = iota
	// Layout64 is used from FirstFileSize64Bit onward: size and
	// undoRecordPos are 8 bytes each.
	Layout64
)

func (l Layout) String() string {
	if l == Layout64 {
		return "64bit"
	}
	return "32bit"
}

// Version is the four-part {major, minor, maintenance, build} file version.
type Version struct {
	Major, Minor, Maintenance, Build uint32
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", v.Major, v.Minor, v.Maintenance, v.Build)
}

// Compare returns -1, 0, 1 if v is less than, equal to, or greater than o.
func (v Version) Compare(o Version) int {
	for _, pair := range [][2]uint32{
		{v.Major, o.Major}, {v.Minor, o.Minor}, {v.Maintenance, o.Maintenance}, {v.Build, o.Build},
	} {
		if pair[0] != pair[1] {
			if pair[0] < pair[1] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// FirstFileSize64Bit is the first version whose on-disk layout uses 64-bit
// size and undoRecordPos fields.
var FirstFileSize64Bit = Version{1, 0, 1, 0}

// OldestSupported is the oldest file version this package can read.
var OldestSupported = Version{1, 0, 0, 4}

// CurrentVersion is the newest file version this package understands. Files
// stamped with a later version are rejected rather than guessed at.
var CurrentVersion = Version{1, 0, 1, 0}

// LayoutFor returns the record layout implied by a file version.
func LayoutFor(v Version) Layout {
	if v.Compare(FirstFileSize64Bit) >= 0 {
		return Layout64
	}
	return Layout32
}

// RecordType enumerates the typed records a recording can contain.
type RecordType uint32

const (
	RecordTypeNodeAdded RecordType = iota + 1
	RecordTypeNodeAdded10_0_5
	RecordTypeNodeAdded10_0_4
	RecordTypeNodeRemoved
	RecordTypeNodeDataBegin
	RecordTypeNodeStateReady
	RecordTypeIntProperty
	RecordTypeRealProperty
	RecordTypeStringProperty
	RecordTypeGeneralProperty
	RecordTypeNewData
	RecordTypeSeekTable
	RecordTypeEnd
)

func (t RecordType) String() string {
	switch t {
	case RecordTypeNodeAdded:
		return "NODE_ADDED"
	case RecordTypeNodeAdded10_0_5:
		return "NODE_ADDED_1_0_0_5"
	case RecordTypeNodeAdded10_0_4:
		return "NODE_ADDED_1_0_0_4"
	case RecordTypeNodeRemoved:
		return "NODE_REMOVED"
	case RecordTypeNodeDataBegin:
		return "NODE_DATA_BEGIN"
	case RecordTypeNodeStateReady:
		return "NODE_STATE_READY"
	case RecordTypeIntProperty:
		return "INT_PROPERTY"
	case RecordTypeRealProperty:
		return "REAL_PROPERTY"
	case RecordTypeStringProperty:
		return "STRING_PROPERTY"
	case RecordTypeGeneralProperty:
		return "GENERAL_PROPERTY"
	case RecordTypeNewData:
		return "NEW_DATA"
	case RecordTypeSeekTable:
		return "SEEK_TABLE"
	case RecordTypeEnd:
		return "END"
	default:
		return fmt.Sprintf("RecordType(%d)", uint32(t))
	}
}

// Valid reports whether t is a known record type.
func (t RecordType) Valid() bool {
	return t >= RecordTypeNodeAdded && t <= RecordTypeEnd
}

// NodeType enumerates the kind of production node a NODE_ADDED* record
// describes. Depth, Image and IR are generators (frame producers); the rest
// are pure configuration nodes carried for fidelity with a full recording
// even though the player's generator-specific logic never touches them.
type NodeType uint32

const (
	NodeTypeDepth NodeType = iota + 1
	NodeTypeImage
	NodeTypeIR
	NodeTypeAudio
	NodeTypeUser
	NodeTypeHands
	NodeTypeScene
	NodeTypeGesture
	NodeTypeCodec
	NodeTypeDevice
	NodeTypePlayer
)

// IsGenerator reports whether nodes of this type produce timestamped data
// frames (as opposed to pure configuration nodes).
func (t NodeType) IsGenerator() bool {
	switch t {
	case NodeTypeDepth, NodeTypeImage, NodeTypeIR:
		return true
	default:
		return false
	}
}

func (t NodeType) String() string {
	switch t {
	case NodeTypeDepth:
		return "depth"
	case NodeTypeImage:
		return "image"
	case NodeTypeIR:
		return "ir"
	case NodeTypeAudio:
		return "audio"
	case NodeTypeUser:
		return "user"
	case NodeTypeHands:
		return "hands"
	case NodeTypeScene:
		return "scene"
	case NodeTypeGesture:
		return "gesture"
	case NodeTypeCodec:
		return "codec"
	case NodeTypeDevice:
		return "device"
	case NodeTypePlayer:
		return "player"
	default:
		return fmt.Sprintf("NodeType(%d)", uint32(t))
	}
}

// CodecID identifies the compressor used for a generator's data frames.
type CodecID uint32

const (
	CodecUncompressed CodecID = iota
	Codec16z
	CodecZstd
)

func (c CodecID) String() string {
	switch c {
	case CodecUncompressed:
		return "uncompressed"
	case Codec16z:
		return "16z"
	case CodecZstd:
		return "zstd"
	default:
		return fmt.Sprintf("CodecID(%d)", uint32(c))
	}
}

// NoNode is the sentinel NodeID meaning "this record targets no node".
const NoNode uint32 = 0xFFFFFFFF

// RECORD_MAX_SIZE bounds the shared record buffer: header + new-data header
// fields + the largest uncompressed frame the player will ever hold.
const (
	DataMaxSize    = 1600 * 1200 * 3
	newDataHdrMax  = 64
	RecordMaxSize  = newDataHdrMax + DataMaxSize
)
