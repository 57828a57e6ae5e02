// Package stream defines the byte-level InputStream contract the player
// reads from, and a thin Adapter wrapping any io.ReadSeekCloser so the rest of
// the module never depends on os.File directly.
package stream

import (
	"fmt"
	"io"

	replayerrors "github.com/alxayo/go-replay/internal/errors"
)

// Origin mirrors io.Seeker's whence values by name.
type Origin int

const (
	Set Origin = iota
	Cur
	End
)

func (o Origin) whence() int {
	switch o {
	case Cur:
		return io.SeekCurrent
	case End:
		return io.SeekEnd
	default:
		return io.SeekStart
	}
}

// InputStream is the external collaborator the player reads from. It owns
// no data of its own; all offsets are 64-bit regardless of on-disk layout.
type InputStream interface {
	Read(dst []byte) (n int, err error)
	Seek(origin Origin, offset int64) error
	Tell() (uint64, error)
	Close() error
}

// Adapter wraps an io.ReadSeekCloser, presenting the InputStream contract
// and surfacing short reads as a classified error rather than a partial,
// silently-accepted read (the teacher's Connection wraps net.Conn the same
// way: own no data, just translate one I/O contract into another).
type Adapter struct {
	rsc io.ReadSeekCloser
}

// New wraps rsc as an InputStream.
func New(rsc io.ReadSeekCloser) *Adapter {
	return &Adapter{rsc: rsc}
}

func (a *Adapter) Read(dst []byte) (int, error) {
	n, err := io.ReadFull(a.rsc, dst)
	if err != nil {
		return n, replayerrors.NewCorruptFileError("stream.read", fmt.Errorf("short read: got %d of %d: %w", n, len(dst), err))
	}
	return n, nil
}

func (a *Adapter) Seek(origin Origin, offset int64) error {
	_, err := a.rsc.Seek(offset, origin.whence())
	return err
}

func (a *Adapter) Tell() (uint64, error) {
	pos, err := a.rsc.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}
	return uint64(pos), nil
}

func (a *Adapter) Close() error { return a.rsc.Close() }
