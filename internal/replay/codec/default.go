package codec

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"

	replayerrors "github.com/alxayo/go-replay/internal/errors"
	"github.com/alxayo/go-replay/internal/replay/record"
)

// DefaultFactory builds codecs for the two real compressors a recording
// can name: the "16z" zlib-family codec the original recorder used, and
// zstd as the modern alternative a new pipeline would choose. Callers that
// need a different compressor for Codec16z, or a test double, supply their
// own Factory instead.
type DefaultFactory struct {
	zstdDecoder *zstd.Decoder
}

// NewDefaultFactory builds a DefaultFactory with a shared zstd decoder
// (zstd.Decoder is safe for concurrent reuse across Decompress calls for
// distinct inputs since each call is self-contained).
func NewDefaultFactory() (*DefaultFactory, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("codec: init zstd decoder: %w", err)
	}
	return &DefaultFactory{zstdDecoder: dec}, nil
}

// Close releases the shared zstd decoder's background goroutines.
func (f *DefaultFactory) Close() {
	if f.zstdDecoder != nil {
		f.zstdDecoder.Close()
	}
}

func (f *DefaultFactory) Create(nodeName string, id record.CodecID) (Codec, error) {
	switch id {
	case record.CodecUncompressed:
		return passthroughCodec{}, nil
	case record.Codec16z:
		return zlibCodec{}, nil
	case record.CodecZstd:
		return zstdCodec{dec: f.zstdDecoder}, nil
	default:
		return nil, replayerrors.NewBadArgumentError("codec.create", fmt.Errorf("unknown codec id %v for node %q", id, nodeName))
	}
}

func (f *DefaultFactory) Destroy(c Codec) {}

type passthroughCodec struct{}

func (passthroughCodec) ID() record.CodecID { return record.CodecUncompressed }
func (passthroughCodec) Decompress(src, dst []byte) (int, error) {
	n := copy(dst, src)
	if n < len(src) {
		return n, replayerrors.NewBadArgumentError("codec.passthrough", fmt.Errorf("dst too small: need %d, have %d", len(src), len(dst)))
	}
	return n, nil
}

type zlibCodec struct{}

func (zlibCodec) ID() record.CodecID { return record.Codec16z }
func (zlibCodec) Decompress(src, dst []byte) (int, error) {
	r, err := zlib.NewReader(bytes.NewReader(src))
	if err != nil {
		return 0, replayerrors.NewCorruptFileError("codec.16z.open", err)
	}
	defer r.Close()
	n, err := io.ReadFull(r, dst)
	if err != nil && err != io.ErrUnexpectedEOF {
		return n, replayerrors.NewCorruptFileError("codec.16z.read", err)
	}
	return n, nil
}

type zstdCodec struct{ dec *zstd.Decoder }

func (zstdCodec) ID() record.CodecID { return record.CodecZstd }
func (c zstdCodec) Decompress(src, dst []byte) (int, error) {
	out, err := c.dec.DecodeAll(src, dst[:0])
	if err != nil {
		return 0, replayerrors.NewCorruptFileError("codec.zstd.decode", err)
	}
	return len(out), nil
}
