// Package ts records encoded units into an MPEG transport stream.
package ts

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/asticode/go-astits"

	"github.com/1ureka/camlink/internal/media"
	"github.com/1ureka/camlink/internal/util"
)

const (
	// VideoPID carries the single video elementary stream and the PCR.
	VideoPID uint16 = 256

	// streamTypePrivate is ISO/IEC 13818-1 PES private data; Motion-JPEG has
	// no registered stream type.
	streamTypePrivate = 0x06

	// streamIDVideo is the first MPEG video PES stream id.
	streamIDVideo = 0xE0
)

// ErrClosed is returned by WriteUnit after Close.
var ErrClosed = errors.New("recorder closed")

// Writer is a media.Sink that muxes units into a transport stream. Unit
// timestamps must be on the 90 kHz MPEG clock.
type Writer struct {
	mu     sync.Mutex
	mux    *astits.Muxer
	bw     *bufio.Writer
	file   io.Closer
	cancel context.CancelFunc
	closed bool
	path   string
}

var _ media.Sink = (*Writer)(nil)

// Create truncates path and records into it.
func Create(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create recording: %w", err)
	}
	w, err := newWriter(f, f)
	if err != nil {
		f.Close()
		return nil, err
	}
	w.path = path
	util.LogInfo("recording to %s", path)
	return w, nil
}

// New records into dst. Close flushes but does not close dst.
func New(dst io.Writer) (*Writer, error) {
	return newWriter(dst, nil)
}

func newWriter(dst io.Writer, c io.Closer) (*Writer, error) {
	ctx, cancel := context.WithCancel(context.Background())
	bw := bufio.NewWriterSize(dst, 64*1024)
	mux := astits.NewMuxer(ctx, bw)

	if err := mux.AddElementaryStream(astits.PMTElementaryStream{
		ElementaryPID: VideoPID,
		StreamType:    streamTypePrivate,
	}); err != nil {
		cancel()
		return nil, fmt.Errorf("add elementary stream: %w", err)
	}
	mux.SetPCRPID(VideoPID)

	return &Writer{mux: mux, bw: bw, file: c, cancel: cancel}, nil
}

func (w *Writer) WriteUnit(p *media.Packet) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}

	dts := p.DTS
	if dts == media.NoPTS {
		dts = p.PTS
	}

	af := &astits.PacketAdaptationField{
		RandomAccessIndicator: p.Keyframe,
		HasPCR:                true,
		PCR:                   &astits.ClockReference{Base: dts},
	}

	n, err := w.mux.WriteData(&astits.MuxerData{
		PID:             VideoPID,
		AdaptationField: af,
		PES: &astits.PESData{
			Header: &astits.PESHeader{
				StreamID: streamIDVideo,
				OptionalHeader: &astits.PESOptionalHeader{
					MarkerBits:             2,
					DataAlignmentIndicator: true,
					PTSDTSIndicator:        astits.PTSDTSIndicatorBothPresent,
					PTS:                    &astits.ClockReference{Base: p.PTS},
					DTS:                    &astits.ClockReference{Base: dts},
				},
			},
			Data: p.Data,
		},
	})
	if err != nil {
		return fmt.Errorf("mux unit: %w", err)
	}

	util.Stats.AddRecorded(n)
	return nil
}

// Close flushes buffered packets and closes the file, if any.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	w.cancel()

	err := w.bw.Flush()
	if w.file != nil {
		err = errors.Join(err, w.file.Close())
	}
	if err == nil && w.path != "" {
		util.LogInfo("recording saved to %s", w.path)
	}
	return err
}
