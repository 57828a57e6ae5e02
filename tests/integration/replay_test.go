// Package integration exercises the replay engine end to end, against the
// literal two-generator scenario from spec.md §8 (depth id=0, image id=1,
// 5 frames each, timestamps {100..500}/{110..510}, single configuration id
// 1, seek tables present).
package integration

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	replayerrors "github.com/alxayo/go-replay/internal/errors"
	"github.com/alxayo/go-replay/internal/replay/notify"
	"github.com/alxayo/go-replay/internal/replay/player"
	"github.com/alxayo/go-replay/internal/replay/record"
	"github.com/alxayo/go-replay/internal/replay/replaytest"
	"github.com/alxayo/go-replay/internal/replay/seek"
	"github.com/alxayo/go-replay/internal/replay/stream"
)

// closeTrackingReader wraps a bytes.Reader as an io.ReadSeekCloser that
// records whether Close was called, so tests can assert the player actually
// releases its underlying stream rather than just flipping an internal flag.
type closeTrackingReader struct {
	*bytes.Reader
	closed bool
}

func (c *closeTrackingReader) Close() error {
	c.closed = true
	return nil
}

var depthTimestamps = []uint64{100, 200, 300, 400, 500}
var imageTimestamps = []uint64{110, 210, 310, 410, 510}

type event struct {
	kind string
	node string
	a, b uint64
}

// recordingSink captures every notification in order, for assertions against
// the literal scenario prose.
type recordingSink struct {
	notify.NopSink
	events []event
}

func (s *recordingSink) OnNodeAdded(name string, typ record.NodeType, codec record.CodecID, frames uint32) error {
	s.events = append(s.events, event{kind: "added", node: name, a: uint64(frames)})
	return nil
}

func (s *recordingSink) OnNodeStateReady(name string) error {
	s.events = append(s.events, event{kind: "ready", node: name})
	return nil
}

func (s *recordingSink) OnNodeIntPropChanged(node, prop string, value uint64) error {
	s.events = append(s.events, event{kind: "int:" + prop, node: node, a: value})
	return nil
}

func (s *recordingSink) OnNodeNewData(node string, timestamp uint64, frame uint32, data []byte) error {
	s.events = append(s.events, event{kind: "data", node: node, a: timestamp, b: uint64(frame)})
	return nil
}

func (s *recordingSink) OnEndOfFile() error {
	s.events = append(s.events, event{kind: "eof"})
	return nil
}

func (s *recordingSink) last() event {
	if len(s.events) == 0 {
		return event{}
	}
	return s.events[len(s.events)-1]
}

func (s *recordingSink) count(kind string) int {
	n := 0
	for _, e := range s.events {
		if e.kind == kind {
			n++
		}
	}
	return n
}

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

// driveUntilData calls ReadNext until a NEW_DATA record is processed.
// NODE_DATA_BEGIN carries no observer notification, so scenario S2's "one
// read-next" is expressed here as "read forward to the next observable
// frame", matching what the scenario prose actually asserts about (observer
// events and node state), not the exact count of bookkeeping records.
func driveUntilData(t *testing.T, p *player.Player) record.Header {
	t.Helper()
	for {
		h, err := p.ReadNext()
		if err != nil {
			t.Fatalf("read next: %v", err)
		}
		if h.Type == record.RecordTypeNewData {
			return h
		}
	}
}

func TestS1OpenEmitsAddAndReadyForBothGenerators(t *testing.T) {
	sink := &recordingSink{}
	p, err := player.Open(replaytest.NewStream(buildTwoGeneratorRecording()), sink, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer p.Close()

	want := []event{
		{kind: "added", node: "depth", a: 5},
		{kind: "ready", node: "depth"},
		{kind: "added", node: "image", a: 5},
		{kind: "ready", node: "image"},
	}
	if len(sink.events) != len(want) {
		t.Fatalf("expected %d events after open, got %+v", len(want), sink.events)
	}
	for i, w := range want {
		if sink.events[i] != w {
			t.Fatalf("event %d = %+v, want %+v", i, sink.events[i], w)
		}
	}
	if f, err := p.TellFrame("depth"); err != nil || f != 0 {
		t.Fatalf("expected depth at frame 0 before any data, got %d (err %v)", f, err)
	}
}

func TestS2FirstReadNextEmitsDepthFrameOne(t *testing.T) {
	sink := &recordingSink{}
	p, err := player.Open(replaytest.NewStream(buildTwoGeneratorRecording()), sink, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer p.Close()

	driveUntilData(t, p)
	if got := sink.last(); got != (event{kind: "data", node: "depth", a: 100, b: 1}) {
		t.Fatalf("expected depth frame 1 @ ts 100, got %+v", got)
	}
	if p.TellTimestamp() != 100 {
		t.Fatalf("expected timestamp 100, got %d", p.TellTimestamp())
	}
	if f, _ := p.TellFrame("depth"); f != 1 {
		t.Fatalf("expected depth.curFrame==1, got %d", f)
	}
	if f, _ := p.TellFrame("image"); f != 0 {
		t.Fatalf("expected image.curFrame==0, got %d", f)
	}
}

func TestS3FastSeekBringsOtherGeneratorAlongPrimaryLast(t *testing.T) {
	sink := &recordingSink{}
	p, err := player.Open(replaytest.NewStream(buildTwoGeneratorRecording()), sink, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer p.Close()

	driveUntilData(t, p) // depth frame 1

	if err := p.SeekToFrame("depth", 3, seek.OriginSet); err != nil {
		t.Fatalf("seek to frame 3: %v", err)
	}
	if f, _ := p.TellFrame("depth"); f != 3 {
		t.Fatalf("expected depth.curFrame==3, got %d", f)
	}

	n := len(sink.events)
	if n < 2 {
		t.Fatalf("expected at least 2 trailing events from the seek, got %+v", sink.events)
	}
	imgEvt, depthEvt := sink.events[n-2], sink.events[n-1]
	if imgEvt.kind != "data" || imgEvt.node != "image" || imgEvt.a > 300 {
		t.Fatalf("expected image data event with ts<=300 before depth's, got %+v", imgEvt)
	}
	if depthEvt != (event{kind: "data", node: "depth", a: 300, b: 3}) {
		t.Fatalf("expected depth frame 3 @ ts 300 last, got %+v", depthEvt)
	}
}

func TestS4RepeatRewindsAfterEnd(t *testing.T) {
	sink := &recordingSink{}
	p, err := player.Open(replaytest.NewStream(buildTwoGeneratorRecording()), sink, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer p.Close()
	p.SetRepeat(true)

	for {
		h, err := p.ReadNext()
		if err != nil {
			t.Fatalf("read next: %v", err)
		}
		if h.Type == record.RecordTypeEnd {
			break
		}
	}

	if sink.count("eof") != 1 {
		t.Fatalf("expected eof event fired exactly once, got %d", sink.count("eof"))
	}
	if p.Eof() {
		t.Fatalf("expected eof==false after repeat rewind")
	}
	if p.TellTimestamp() != 0 {
		t.Fatalf("expected timestamp reset to 0, got %d", p.TellTimestamp())
	}
	eofIdx := -1
	for i, e := range sink.events {
		if e.kind == "eof" {
			eofIdx = i
			break
		}
	}
	if eofIdx < 0 || eofIdx+1 >= len(sink.events) || sink.events[eofIdx+1] != (event{kind: "added", node: "depth", a: 5}) {
		t.Fatalf("expected replay to restart with NodeAdded(depth) right after eof, got %+v", sink.events)
	}
}

func TestS5NoRepeatEOFBlocksFurtherReads(t *testing.T) {
	sink := &recordingSink{}
	p, err := player.Open(replaytest.NewStream(buildTwoGeneratorRecording()), sink, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer p.Close()

	for {
		h, err := p.ReadNext()
		if err != nil {
			t.Fatalf("read next: %v", err)
		}
		if h.Type == record.RecordTypeEnd {
			break
		}
	}
	if !p.Eof() {
		t.Fatalf("expected eof==true without repeat")
	}
	if sink.count("eof") != 1 {
		t.Fatalf("expected eof event fired exactly once, got %d", sink.count("eof"))
	}

	_, err = p.ReadNext()
	var badArg *replayerrors.BadArgumentError
	if !errors.As(err, &badArg) {
		t.Fatalf("expected BadArgumentError (InvalidOperation analog) after eof, got %v", err)
	}
}

func TestS5NoRepeatEOFReleasesUnderlyingStream(t *testing.T) {
	tracker := &closeTrackingReader{Reader: bytes.NewReader(buildTwoGeneratorRecording())}
	sink := &recordingSink{}
	p, err := player.Open(stream.New(tracker), sink, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	for {
		h, err := p.ReadNext()
		if err != nil {
			t.Fatalf("read next: %v", err)
		}
		if h.Type == record.RecordTypeEnd {
			break
		}
	}
	if !tracker.closed {
		t.Fatalf("expected underlying stream to be closed once eof is reached without repeat")
	}

	if err := p.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestS6UndoWalkDeliversOnlyEarliestStillValidPropertyRecord(t *testing.T) {
	b := replaytest.NewBuilder(record.Layout64)
	b.Header(record.CurrentVersion, 1000, 1)
	b.NodeAdded(0, "depth", record.NodeTypeDepth, record.CodecUncompressed, 3, 10, 30)
	b.NodeStateReady(0)
	b.IntProperty(0, "x", 1)
	b.NodeDataBegin(0)
	b.NewData(0, 1, 10, []byte{0xAA})
	b.IntProperty(0, "x", 2)
	b.NewData(0, 2, 20, []byte{0xBB})
	b.IntProperty(0, "x", 3)
	b.NewData(0, 3, 30, []byte{0xCC})
	b.End()

	sink := &recordingSink{}
	p, err := player.Open(replaytest.NewStream(b.Bytes()), sink, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer p.Close()

	for i := 0; i < 3; i++ { // drive through frames 1, 2, 3 (and their intervening Int(x) records)
		driveUntilData(t, p)
	}
	if f, _ := p.TellFrame("depth"); f != 3 {
		t.Fatalf("expected depth.curFrame==3 before the backward seek, got %d", f)
	}

	beforeSeek := len(sink.events)
	if err := p.SeekToFrame("depth", 1, seek.OriginSet); err != nil {
		t.Fatalf("seek backward to frame 1: %v", err)
	}
	seekEvents := sink.events[beforeSeek:]

	n := 0
	for _, e := range seekEvents {
		if e.kind == "int:x" {
			n++
			if e.a != 1 {
				t.Fatalf("expected the undo walk to decode only x==1, got %+v", e)
			}
		}
	}
	if n != 1 {
		t.Fatalf("expected the backward seek to deliver OnNodeIntPropChanged(x,1) exactly once, got %d occurrences in %+v", n, seekEvents)
	}
}
