// Golden test vector generator for the two-generator replay scenario used
// throughout tests/integration.
// Runs standalone: `go run tests/golden/gen_record_vectors.go`
// Deterministic (no randomness) so CI can validate byte-for-byte.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/alxayo/go-replay/internal/replay/record"
	"github.com/alxayo/go-replay/internal/replay/replaytest"
)

func must(err error) {
	if err != nil {
		panic(err)
	}
}

var depthTimestamps = []uint64{100, 200, 300, 400, 500}
var imageTimestamps = []uint64{110, 210, 310, 410, 510}

// buildTwoGeneratorRecording assembles the canonical fixture: depth (id=0)
// and image (id=1), 5 frames each, single configuration id 1, uncompressed
// payloads, seek tables present for both nodes.
func buildTwoGeneratorRecording() []byte {
	b := replaytest.NewBuilder(record.Layout64)
	b.Header(record.CurrentVersion, 600, 2)
	_, patchDepth := b.NodeAdded(0, "depth", record.NodeTypeDepth, record.CodecUncompressed, 5, 100, 500)
	b.NodeStateReady(0)
	_, patchImage := b.NodeAdded(1, "image", record.NodeTypeImage, record.CodecUncompressed, 5, 110, 510)
	b.NodeStateReady(1)
	b.NodeDataBegin(0)
	b.NodeDataBegin(1)

	var depthEntries, imageEntries []record.SeekIndexEntry
	for i := 0; i < 5; i++ {
		dp := b.NewData(0, uint32(i+1), depthTimestamps[i], []byte{byte(i), 0xD0})
		depthEntries = append(depthEntries, record.SeekIndexEntry{SeekPos: dp, Timestamp: depthTimestamps[i], ConfigurationID: 1})
		ip := b.NewData(1, uint32(i+1), imageTimestamps[i], []byte{byte(i), 0x10})
		imageEntries = append(imageEntries, record.SeekIndexEntry{SeekPos: ip, Timestamp: imageTimestamps[i], ConfigurationID: 1})
	}
	b.End()

	stDepth := b.SeekTable(0, depthEntries)
	stImage := b.SeekTable(1, imageEntries)
	patchDepth(stDepth)
	patchImage(stImage)

	return b.Bytes()
}

func main() {
	outDir := filepath.Join("tests", "golden")
	must(os.MkdirAll(outDir, 0o755))

	buf := buildTwoGeneratorRecording()
	must(os.WriteFile(filepath.Join(outDir, "replay_two_generator.bin"), buf, 0o644))
	fmt.Println("wrote", filepath.Join(outDir, "replay_two_generator.bin"), len(buf), "bytes")
}
