// Package codec defines the decompressor contract a node's data frames are
// read through, and provides a default factory wiring real compression
// libraries to the codec ids a recording can name.
package codec

import "github.com/alxayo/go-replay/internal/replay/record"

// Codec decompresses one node's frame payloads. Implementations must not
// retain src or dst beyond the call.
type Codec interface {
	ID() record.CodecID
	Decompress(src []byte, dst []byte) (n int, err error)
}

// Factory constructs and releases codecs for a node. Create is called from
// NODE_STATE_READY once a node is known to carry compressed data; Destroy
// is called when the node is removed.
type Factory interface {
	Create(nodeName string, id record.CodecID) (Codec, error)
	Destroy(c Codec)
}
