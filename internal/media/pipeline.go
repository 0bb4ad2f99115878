package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/1ureka/camlink/internal/util"
)

// State is the lifecycle position of a Pipeline.
type State int

const (
	StateClosed State = iota
	StateConfigured
	StateOpened
	StateStarted
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateConfigured:
		return "configured"
	case StateOpened:
		return "opened"
	case StateStarted:
		return "started"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Config wires the stages of a pipeline. Converter is optional.
type Config struct {
	Source    Source
	Decoder   Decoder
	Converter Converter
	Encoder   Encoder
	Sink      Sink

	QueueSize      int
	Policy         QueuePolicy
	OutputTimeBase Rational // defaults to the 90 kHz MPEG clock
}

// Pipeline runs capture -> queue -> decode -> convert -> encode -> sink.
//
// Capture and transcode each run on their own goroutine after Start. The
// pipeline owns its source, encoder and sink and closes them on Stop.
type Pipeline struct {
	mu     sync.Mutex
	state  State
	cfg    Config
	video  StreamInfo
	queue  *PacketQueue
	cancel context.CancelFunc
	wg     sync.WaitGroup
	errs   chan error
	failed bool // capture died; cleared by the next Start
	log    util.Scope
}

// NewPipeline returns a pipeline in StateClosed.
func NewPipeline() *Pipeline {
	return &Pipeline{
		errs: make(chan error, 1),
		log:  util.Scope("pipeline"),
	}
}

// State returns the current state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Failed reports whether the current run ended on a fatal capture error.
// The state stays Started until Stop releases the stages.
func (p *Pipeline) Failed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.failed
}

// Video describes the captured stream once the pipeline is open.
func (p *Pipeline) Video() StreamInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.video
}

// Dropped returns how many packets the queue evicted in the current run.
func (p *Pipeline) Dropped() int64 {
	p.mu.Lock()
	q := p.queue
	p.mu.Unlock()
	if q == nil {
		return 0
	}
	return q.Dropped()
}

// Errors reports fatal errors, wrapped in ErrCapture for capture failures.
func (p *Pipeline) Errors() <-chan error { return p.errs }

func (p *Pipeline) transition(op string, from State) error {
	if p.state != from {
		return fmt.Errorf("%s in state %s: %w", op, p.state, ErrInvalidState)
	}
	return nil
}

// Configure binds the stages. Closed -> Configured.
func (p *Pipeline) Configure(cfg Config) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.transition("configure", StateClosed); err != nil {
		return err
	}
	if cfg.Source == nil || cfg.Decoder == nil || cfg.Encoder == nil || cfg.Sink == nil {
		return errors.New("pipeline needs a source, a decoder, an encoder and a sink")
	}
	if !cfg.OutputTimeBase.Valid() {
		cfg.OutputTimeBase = MPEGClock
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}

	p.cfg = cfg
	p.state = StateConfigured
	return nil
}

// Open opens the source and selects its video stream. Configured -> Opened.
func (p *Pipeline) Open() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.transition("open", StateConfigured); err != nil {
		return err
	}

	streams, err := p.cfg.Source.Open()
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}

	found := false
	for _, s := range streams {
		if s.Kind == StreamVideo {
			p.video = s
			found = true
			break
		}
	}
	if !found {
		p.cfg.Source.Close()
		return ErrNoVideo
	}
	if !p.video.TimeBase.Valid() {
		p.video.TimeBase = Microseconds
	}

	p.log.Info("opened %s stream %d: %dx%d@%d", p.video.Codec, p.video.Index, p.video.Width, p.video.Height, p.video.FPS)
	p.state = StateOpened
	return nil
}

// Start launches the capture and transcode goroutines. Opened -> Started.
func (p *Pipeline) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.transition("start", StateOpened); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.queue = NewPacketQueue(p.cfg.QueueSize, p.cfg.Policy)
	p.failed = false

	p.wg.Add(2)
	go p.capture(ctx, p.queue)
	go p.transcode(ctx, p.queue)

	p.state = StateStarted
	return nil
}

// Stop halts the goroutines, releases queued packets and closes every stage.
// Started -> Stopping -> Closed; Configured and Opened go straight to Closed.
func (p *Pipeline) Stop() error {
	p.mu.Lock()
	switch p.state {
	case StateClosed, StateStopping:
		err := fmt.Errorf("stop in state %s: %w", p.state, ErrInvalidState)
		p.mu.Unlock()
		return err
	case StateConfigured:
		p.state = StateClosed
		p.mu.Unlock()
		return nil
	case StateStarted:
		p.state = StateStopping
		p.cancel()
		p.queue.Close()
		p.mu.Unlock()

		p.wg.Wait()
		p.queue.Drain()

		p.mu.Lock()
	}
	defer p.mu.Unlock()

	err := errors.Join(
		p.cfg.Source.Close(),
		p.cfg.Encoder.Close(),
		p.cfg.Sink.Close(),
	)
	p.state = StateClosed
	return err
}

func (p *Pipeline) report(err error) {
	select {
	case p.errs <- err:
	default:
		p.log.Error("%v", err)
	}
}

// ---------------------------------------------------------------------------
// Goroutines
// ---------------------------------------------------------------------------

// capture reads from the source until it fails, reaches its end or ctx ends,
// then closes the queue so that transcode drains what is left.
func (p *Pipeline) capture(ctx context.Context, q *PacketQueue) {
	defer p.wg.Done()
	defer q.Close()

	for {
		pkt, err := p.cfg.Source.ReadPacket(ctx)
		if err != nil {
			pkt.Release()
			switch {
			case ctx.Err() != nil:
			case errors.Is(err, io.EOF):
				p.log.Info("capture reached end of stream")
			default:
				p.mu.Lock()
				p.failed = true
				p.mu.Unlock()
				p.report(fmt.Errorf("%w: %w", ErrCapture, err))
			}
			return
		}

		if pkt.StreamIndex != p.video.Index {
			pkt.Release()
			continue
		}

		if err := q.Push(ctx, pkt); err != nil {
			pkt.Release()
			return
		}
	}
}

// transcode owns each packet it pops until the decoder is done with it.
func (p *Pipeline) transcode(ctx context.Context, q *PacketQueue) {
	defer p.wg.Done()

	var frames tsGuard
	var units unitGuard
	encTB := p.cfg.Encoder.TimeBase()
	outTB := p.cfg.OutputTimeBase

	for {
		pkt, err := q.Pop(ctx)
		if err != nil {
			return
		}

		inPTS := pkt.PTS
		frame, err := p.cfg.Decoder.Decode(pkt)
		pkt.Release()
		if err != nil {
			p.log.Warning("decode: %v", err)
			continue
		}

		if p.cfg.Converter != nil {
			if frame, err = p.cfg.Converter.Convert(frame); err != nil {
				p.log.Warning("convert: %v", err)
				continue
			}
		}

		frame.PTS = frames.next(Rescale(inPTS, p.video.TimeBase, encTB))

		out, err := p.cfg.Encoder.Encode(frame)
		if err != nil {
			p.log.Warning("encode: %v", err)
			continue
		}

		for _, u := range out {
			u.PTS = Rescale(u.PTS, encTB, outTB)
			u.DTS = Rescale(u.DTS, encTB, outTB)
			units.fix(u)
			util.Stats.AddEncoded()

			if err := p.cfg.Sink.WriteUnit(u); err != nil {
				p.log.Debug("sink: %v", err)
			}
			u.Release()
		}
	}
}
