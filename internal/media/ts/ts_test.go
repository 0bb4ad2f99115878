package ts

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/asticode/go-astits"

	"github.com/1ureka/camlink/internal/media"
)

func unit(pts int64, data string) *media.Packet {
	p := media.NewPacket([]byte(data))
	p.PTS = pts
	p.DTS = pts
	p.Keyframe = true
	return p
}

func TestWriterProducesTransportStream(t *testing.T) {
	var buf bytes.Buffer
	w, err := New(&buf)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	want := []int64{0, 3000, 6000}
	for _, pts := range want {
		p := unit(pts, "jpeg-unit")
		if err := w.WriteUnit(p); err != nil {
			t.Fatalf("WriteUnit failed: %v", err)
		}
		p.Release()
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data := buf.Bytes()
	if len(data) == 0 || len(data)%188 != 0 {
		t.Fatalf("output size %d is not a whole number of TS packets", len(data))
	}
	for i := 0; i < len(data); i += 188 {
		if data[i] != 0x47 {
			t.Fatalf("packet at offset %d lacks the sync byte", i)
		}
	}

	dmx := astits.NewDemuxer(context.Background(), bytes.NewReader(data))
	var got []int64
	for {
		d, err := dmx.NextData()
		if errors.Is(err, astits.ErrNoMorePackets) {
			break
		}
		if err != nil {
			t.Fatalf("NextData failed: %v", err)
		}
		if d.PES == nil || d.PID != VideoPID {
			continue
		}
		got = append(got, d.PES.Header.OptionalHeader.PTS.Base)
		if !bytes.Equal(d.PES.Data, []byte("jpeg-unit")) {
			t.Errorf("PES payload = %q", d.PES.Data)
		}
	}

	if len(got) != len(want) {
		t.Fatalf("demuxed %d PES, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("PES %d PTS = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestWriteAfterClose(t *testing.T) {
	w, err := New(&bytes.Buffer{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close = %v, want nil", err)
	}

	p := unit(0, "x")
	defer p.Release()
	if err := w.WriteUnit(p); !errors.Is(err, ErrClosed) {
		t.Errorf("WriteUnit = %v, want ErrClosed", err)
	}
}

func TestCreateFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "output.ts")
	w, err := Create(path)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	p := unit(0, "frame")
	if err := w.WriteUnit(p); err != nil {
		t.Fatalf("WriteUnit failed: %v", err)
	}
	p.Release()
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Size() == 0 || info.Size()%188 != 0 {
		t.Errorf("file size %d is not a whole number of TS packets", info.Size())
	}
}
