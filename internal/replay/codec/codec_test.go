package codec

import (
	"bytes"
	"compress/zlib"
	"testing"

	"github.com/klauspost/compress/zstd"

	"github.com/alxayo/go-replay/internal/replay/record"
)

func TestPassthroughCodec(t *testing.T) {
	c := passthroughCodec{}
	src := []byte("hello frame")
	dst := make([]byte, len(src))
	n, err := c.Decompress(src, dst)
	if err != nil || n != len(src) || string(dst) != string(src) {
		t.Fatalf("passthrough mismatch: n=%d err=%v dst=%q", n, err, dst)
	}
}

func TestZlibCodecRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write([]byte("depth frame payload")); err != nil {
		t.Fatalf("write: %v", err)
	}
	w.Close()

	c := zlibCodec{}
	dst := make([]byte, len("depth frame payload"))
	n, err := c.Decompress(buf.Bytes(), dst)
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if string(dst[:n]) != "depth frame payload" {
		t.Fatalf("unexpected output: %q", dst[:n])
	}
}

func TestZstdCodecRoundTrip(t *testing.T) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	compressed := enc.EncodeAll([]byte("image frame payload"), nil)
	enc.Close()

	dec, err := zstd.NewReader(nil)
	if err != nil {
		t.Fatalf("new reader: %v", err)
	}
	defer dec.Close()
	c := zstdCodec{dec: dec}
	dst := make([]byte, 64)
	n, err := c.Decompress(compressed, dst)
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if string(dst[:n]) != "image frame payload" {
		t.Fatalf("unexpected output: %q", dst[:n])
	}
}

func TestDefaultFactoryUnknownCodec(t *testing.T) {
	f, err := NewDefaultFactory()
	if err != nil {
		t.Fatalf("new factory: %v", err)
	}
	defer f.Close()
	if _, err := f.Create("depth", record.CodecID(99)); err == nil {
		t.Fatalf("expected error for unknown codec id")
	}
}

func TestDefaultFactoryCreatesKnownCodecs(t *testing.T) {
	f, err := NewDefaultFactory()
	if err != nil {
		t.Fatalf("new factory: %v", err)
	}
	defer f.Close()
	for _, id := range []record.CodecID{record.CodecUncompressed, record.Codec16z, record.CodecZstd} {
		c, err := f.Create("depth", id)
		if err != nil {
			t.Fatalf("create %v: %v", id, err)
		}
		if c.ID() != id {
			t.Fatalf("codec ID mismatch: got %v want %v", c.ID(), id)
		}
	}
}
