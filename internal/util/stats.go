package util

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"
)

// ──────────────────────────────────────────────────────────────────────────────
// Global stats singleton
// ──────────────────────────────────────────────────────────────────────────────

// Stats is the process-wide media/signaling counter.
var Stats = &stats{}

type stats struct {
	UnitsEncoded   atomic.Int64 // encoded units handed to the sinks
	BytesRecorded  atomic.Int64 // payload bytes written to the container file
	BytesSent      atomic.Int64 // bytes written to the DataChannel
	BytesRecv      atomic.Int64 // bytes read from the DataChannel
	ChunksSent     atomic.Int64
	ChunksDropped  atomic.Int64 // live chunks dropped because the sender inbox was full
	PacketsDropped atomic.Int64 // capture packets evicted by a drop-oldest queue
	SinkErrors     atomic.Int64
	Published      atomic.Int64 // signaling messages handed to the broker
	PublishFailed  atomic.Int64
}

func (s *stats) AddEncoded()         { s.UnitsEncoded.Add(1) }
func (s *stats) AddRecorded(n int)   { s.BytesRecorded.Add(int64(n)) }
func (s *stats) AddSent(n int)       { s.BytesSent.Add(int64(n)); s.ChunksSent.Add(1) }
func (s *stats) AddRecv(n int)       { s.BytesRecv.Add(int64(n)) }
func (s *stats) AddChunkDropped()    { s.ChunksDropped.Add(1) }
func (s *stats) AddPacketsDropped()  { s.PacketsDropped.Add(1) }
func (s *stats) AddSinkError()       { s.SinkErrors.Add(1) }
func (s *stats) AddPublished()       { s.Published.Add(1) }
func (s *stats) AddPublishFailure()  { s.PublishFailed.Add(1) }

// Snapshot is a point-in-time copy of the counters, used by the status API.
type Snapshot struct {
	UnitsEncoded   int64 `json:"unitsEncoded"`
	BytesRecorded  int64 `json:"bytesRecorded"`
	BytesSent      int64 `json:"bytesSent"`
	BytesRecv      int64 `json:"bytesRecv"`
	ChunksSent     int64 `json:"chunksSent"`
	ChunksDropped  int64 `json:"chunksDropped"`
	PacketsDropped int64 `json:"packetsDropped"`
	SinkErrors     int64 `json:"sinkErrors"`
	Published      int64 `json:"published"`
	PublishFailed  int64 `json:"publishFailed"`
}

// Snapshot loads every counter.
func (s *stats) Snapshot() Snapshot {
	return Snapshot{
		UnitsEncoded:   s.UnitsEncoded.Load(),
		BytesRecorded:  s.BytesRecorded.Load(),
		BytesSent:      s.BytesSent.Load(),
		BytesRecv:      s.BytesRecv.Load(),
		ChunksSent:     s.ChunksSent.Load(),
		ChunksDropped:  s.ChunksDropped.Load(),
		PacketsDropped: s.PacketsDropped.Load(),
		SinkErrors:     s.SinkErrors.Load(),
		Published:      s.Published.Load(),
		PublishFailed:  s.PublishFailed.Load(),
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Periodic reporter
// ──────────────────────────────────────────────────────────────────────────────

// reportInterval is how often the reporter logs throughput.
const reportInterval = 10 * time.Second

// RunStatsReporter logs stream statistics every 10 seconds until ctx is
// cancelled. Quiet intervals are skipped.
func RunStatsReporter(ctx context.Context) error {
	ticker := time.NewTicker(reportInterval)
	defer ticker.Stop()

	prev := Stats.Snapshot()
	for {
		select {
		case <-ticker.C:
			cur := Stats.Snapshot()
			secs := reportInterval.Seconds()

			outS := float64(cur.BytesSent-prev.BytesSent) / secs
			inS := float64(cur.BytesRecv-prev.BytesRecv) / secs
			recS := float64(cur.BytesRecorded-prev.BytesRecorded) / secs
			units := cur.UnitsEncoded - prev.UnitsEncoded
			dropped := (cur.ChunksDropped - prev.ChunksDropped) + (cur.PacketsDropped - prev.PacketsDropped)

			if units > 0 || inS > 10 || outS > 10 || dropped > 0 {
				pterm.DefaultLogger.Info(formatStats(inS, outS, recS, float64(units)/secs, dropped))
			}

			prev = cur

		case <-ctx.Done():
			return nil
		}
	}
}

// byteUnits defines the units for formatting byte counts in a human-readable way.
var byteUnits = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}

// formatBytes formats a byte count into a human-readable string with fixed width (exactly 8 chars)
// for example: "99.0   B", " 1.5 KiB", " 0.1 MiB", "98.9 GiB", etc.
func formatBytes(b float64) string {
	unitIdx := 0

	// to prevent "100.0 KiB", which is 9 chars
	for b > 99 && unitIdx < 5 {
		b /= 1024
		unitIdx++
	}

	return fmt.Sprintf("%4.1f %3s", b, byteUnits[unitIdx])
}

// formatStats returns a formatted string of the current stats for display in the logger.
func formatStats(inS, outS, recS, fps float64, dropped int64) string {
	return fmt.Sprintf("In: %s/s | Out: %s/s | Rec: %s/s | %4.1f fps | Dropped: %d",
		formatBytes(inS),
		formatBytes(outS),
		formatBytes(recS),
		fps,
		dropped,
	)
}
