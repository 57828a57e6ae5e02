package player

import (
	"fmt"

	replayerrors "github.com/alxayo/go-replay/internal/errors"
	"github.com/alxayo/go-replay/internal/logger"
	"github.com/alxayo/go-replay/internal/replay/codec"
	"github.com/alxayo/go-replay/internal/replay/dispatch"
	"github.com/alxayo/go-replay/internal/replay/nodetable"
	"github.com/alxayo/go-replay/internal/replay/notify"
	"github.com/alxayo/go-replay/internal/replay/record"
	"github.com/alxayo/go-replay/internal/replay/seek"
	"github.com/alxayo/go-replay/internal/replay/stream"
)

// Open validates the file header, gates on the supported version window,
// allocates the node table for the declared maxNodeID, and drives the
// dispatcher up to the first NODE_DATA_BEGIN. On any failure the stream is
// left untouched for the caller to close; Open never closes it itself.
func Open(s stream.InputStream, sink notify.Sink, factory codec.Factory) (*Player, error) {
	if s == nil {
		return nil, replayerrors.NewBadArgumentError("player.open", fmt.Errorf("nil stream"))
	}
	if sink == nil {
		sink = notify.NopSink{}
	}
	if factory == nil {
		df, ferr := codec.NewDefaultFactory()
		if ferr != nil {
			return nil, ferr
		}
		factory = df
	}

	hdr, err := record.ReadFileHeader(&readerAdapter{s: s})
	if err != nil {
		return nil, err
	}
	layout := record.LayoutFor(hdr.Version)

	table := nodetable.New(hdr.MaxNodeID+1, factory, sink)
	d := dispatch.New(s, layout, table, sink, hdr.GlobalMaxTimestamp)

	p := &Player{
		stream:  s,
		factory: factory,
		table:   table,
		dispatch: d,
		seek:    seek.New(d),
		header:  hdr,
		open:    true,
		log:     logger.Logger().With("component", "player"),
	}

	if err := p.processUntilFirstDataBegin(); err != nil {
		return nil, err
	}
	return p, nil
}

// processUntilFirstDataBegin drives the dispatcher forward until the first
// NODE_DATA_BEGIN is reached, matching how Open leaves a freshly opened or
// freshly rewound player positioned right before the first frame. A
// recording that reaches END before any NODE_DATA_BEGIN fails here with the
// END handler's CorruptFileError.
func (p *Player) processUntilFirstDataBegin() error {
	for !p.dispatch.DataBegun && !p.dispatch.Eof {
		if _, err := p.dispatch.ProcessRecord(true); err != nil {
			return err
		}
	}
	return nil
}

// Rewind seeks back to just past the file header, resets every node row,
// clears dataBegun/timestamp/eof, and replays up to the first data-begin
// again. Used both by an explicit caller rewind and by repeat-mode looping
// after END.
func (p *Player) Rewind() error {
	if !p.open {
		return replayerrors.NewBadArgumentError("player.rewind", fmt.Errorf("player not open"))
	}
	if err := p.stream.Seek(stream.Set, record.FileHeaderSize); err != nil {
		return err
	}
	p.table.ResetAll()
	p.dispatch.DataBegun = false
	p.dispatch.Timestamp = 0
	p.dispatch.Eof = false
	return p.processUntilFirstDataBegin()
}

// Close releases the underlying stream and, if the codec factory owns
// background resources (e.g. DefaultFactory's shared zstd decoder), releases
// those too. Safe to call once; a second call is a no-op.
func (p *Player) Close() error {
	if !p.open {
		return nil
	}
	p.open = false
	if c, ok := p.factory.(interface{ Close() }); ok {
		c.Close()
	}
	return p.stream.Close()
}

// RegisterEOF adds a callback invoked every time END is reached; returns a
// token for UnregisterEOF.
func (p *Player) RegisterEOF(h func() error) int {
	return p.dispatch.RegisterEOF(h)
}

// UnregisterEOF removes a callback registered with RegisterEOF.
func (p *Player) UnregisterEOF(token int) {
	p.dispatch.UnregisterEOF(token)
}

// SetRepeat flips looping behavior; takes effect at the next END.
func (p *Player) SetRepeat(repeat bool) {
	p.dispatch.Repeat = repeat
}

// readerAdapter lets record.ReadFileHeader (which wants an io.Reader) read
// through a stream.InputStream without either package depending on the
// other's concrete type.
type readerAdapter struct {
	s stream.InputStream
}

func (r *readerAdapter) Read(p []byte) (int, error) {
	return r.s.Read(p)
}
