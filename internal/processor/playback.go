package processor

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rumbleFTW/koe-app/internal/audio"
	"github.com/rumbleFTW/koe-app/internal/codec"
	"github.com/rumbleFTW/koe-app/internal/device"
)

type PlaybackConfig struct {
	SampleRate int
	// MaxLatency caps how much decoded audio may wait for the device.
	MaxLatency time.Duration
	// Prebuffer is the number of blocks gathered after an underrun before
	// playback resumes.
	Prebuffer int
	Analyser  *audio.Analyser
	Track     *audio.Track
	OnDrop    func(dropped int)
	Logger    *slog.Logger
}

// Playback schedules decoded PCM onto the output device at real-time pace.
// The queue is bounded; when it is full the oldest block is discarded.
type Playback struct {
	cfg  PlaybackConfig
	sink device.Sink
	log  *slog.Logger

	queue chan *audio.Buffer
	done  chan struct{}

	dropped  atomic.Uint64
	played   atomic.Uint64
	sinkFail atomic.Bool

	pendingMu   sync.Mutex
	pendingCond *sync.Cond
	pending     int64

	stopOnce sync.Once
	wg       sync.WaitGroup
	sleep    func(time.Duration)
}

func NewPlayback(sink device.Sink, cfg PlaybackConfig) *Playback {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = codec.SampleRate
	}
	if cfg.MaxLatency <= 0 {
		cfg.MaxLatency = time.Second
	}
	if cfg.Prebuffer <= 0 {
		cfg.Prebuffer = 3
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	capacity := max(int(cfg.MaxLatency/codec.FrameDuration), cfg.Prebuffer)
	p := &Playback{
		cfg:   cfg,
		sink:  sink,
		log:   log.With("component", "playback"),
		queue: make(chan *audio.Buffer, capacity),
		done:  make(chan struct{}),
		sleep: time.Sleep,
	}
	p.pendingCond = sync.NewCond(&p.pendingMu)
	return p
}

func (p *Playback) Start() {
	p.wg.Add(1)
	go p.run()
}

// Enqueue moves buf into the playback queue. It never blocks.
func (p *Playback) Enqueue(buf *audio.Buffer) {
	owned := buf.Move()
	for {
		select {
		case <-p.done:
			return
		default:
		}

		p.addPending(1)
		select {
		case p.queue <- owned:
			return
		default:
			p.addPending(-1)
		}

		select {
		case <-p.queue:
			p.addPending(-1)
			p.dropped.Add(1)
			if p.cfg.OnDrop != nil {
				p.cfg.OnDrop(1)
			}
		default:
		}
	}
}

func (p *Playback) run() {
	defer p.wg.Done()

	primed := false
	for {
		select {
		case <-p.done:
			return
		case block := <-p.queue:
			if !primed {
				p.waitPrebuffer()
				primed = true
			}
			p.play(block)
			p.addPending(-1)
			if len(p.queue) == 0 {
				primed = false
			}
		}
	}
}

func (p *Playback) waitPrebuffer() {
	deadline := time.Now().Add(time.Duration(p.cfg.Prebuffer) * codec.FrameDuration)
	for len(p.queue) < p.cfg.Prebuffer-1 && time.Now().Before(deadline) {
		select {
		case <-p.done:
			return
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func (p *Playback) play(block *audio.Buffer) {
	start := time.Now()
	samples := block.Samples()

	if _, err := p.sink.Write(audio.Int16ToPCMBytes(samples)); err != nil {
		if !p.sinkFail.Swap(true) {
			p.log.Warn("output device write failed", "error", err)
		}
	}
	if p.cfg.Analyser != nil {
		p.cfg.Analyser.Write(samples)
	}
	if p.cfg.Track != nil {
		p.cfg.Track.Write(samples)
	}
	p.played.Add(1)

	if sleep := audio.DurationOf(len(samples), p.cfg.SampleRate) - time.Since(start); sleep > 0 {
		p.sleep(sleep)
	}
}

func (p *Playback) addPending(delta int64) {
	p.pendingMu.Lock()
	p.pending += delta
	if p.pending <= 0 {
		p.pending = 0
		p.pendingCond.Broadcast()
	}
	p.pendingMu.Unlock()
}

// WaitForDrain blocks until every queued block has been played or dropped.
func (p *Playback) WaitForDrain() {
	p.pendingMu.Lock()
	for p.pending > 0 {
		p.pendingCond.Wait()
	}
	p.pendingMu.Unlock()
}

func (p *Playback) Dropped() uint64 {
	return p.dropped.Load()
}

func (p *Playback) Played() uint64 {
	return p.played.Load()
}

func (p *Playback) Capacity() int {
	return cap(p.queue)
}

func (p *Playback) Close() {
	p.stopOnce.Do(func() {
		close(p.done)
		p.wg.Wait()

		p.pendingMu.Lock()
		p.pending = 0
		p.pendingCond.Broadcast()
		p.pendingMu.Unlock()

		if err := p.sink.Close(); err != nil {
			p.log.Warn("close output device", "error", err)
		}
	})
}
