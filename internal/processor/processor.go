package processor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rumbleFTW/koe-app/internal/audio"
	"github.com/rumbleFTW/koe-app/internal/codec"
	"github.com/rumbleFTW/koe-app/internal/device"
	"github.com/rumbleFTW/koe-app/internal/shared"
)

type Config struct {
	SampleRate         int
	EncoderQueue       int
	DecoderQueue       int
	MaxPlaybackLatency time.Duration
	PlaybackPrebuffer  int
	// MixBuffer bounds each track of the combined destination, in samples.
	MixBuffer int
	Hooks     Hooks
}

type Hooks struct {
	OnDecoderDrop  func()
	OnPlaybackDrop func(dropped int)
}

// Processor owns capture, the codec workers and playback as one unit with a
// single setup and shutdown.
type Processor struct {
	cfg    Config
	opener device.Opener
	log    *slog.Logger

	inputAnalyser  *audio.Analyser
	outputAnalyser *audio.Analyser
	mixer          *audio.Mixer
	userTrack      *audio.Track
	assistantTrack *audio.Track

	mu      sync.Mutex
	current *pipeline
}

type pipeline struct {
	cancel   context.CancelFunc
	capture  *Capture
	encoder  *codec.Encoder
	decoder  *codec.Decoder
	playback *Playback
	faults   chan error
	wg       sync.WaitGroup
	once     sync.Once
}

func New(cfg Config, opener device.Opener, log *slog.Logger) *Processor {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = codec.SampleRate
	}
	if log == nil {
		log = slog.Default()
	}

	mixer := audio.NewMixer(cfg.MixBuffer)
	return &Processor{
		cfg:            cfg,
		opener:         opener,
		log:            log.With("component", "audio_processor"),
		inputAnalyser:  audio.NewAnalyser(audio.DefaultFFTSize, audio.DefaultSmoothing),
		outputAnalyser: audio.NewAnalyser(audio.DefaultFFTSize, audio.DefaultSmoothing),
		mixer:          mixer,
		userTrack:      mixer.NewTrack("user"),
		assistantTrack: mixer.NewTrack("assistant"),
	}
}

func (p *Processor) SampleRate() int {
	return p.cfg.SampleRate
}

// Setup wires src through the encoder and starts playback. Any failure
// releases everything built so far, including src.
func (p *Processor) Setup(ctx context.Context, src device.Source) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current != nil {
		return shared.ErrAlreadyActive
	}
	if src == nil {
		return fmt.Errorf("%w: no input stream", shared.ErrDeviceError)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	pl := &pipeline{cancel: cancel, faults: make(chan error, 1)}
	fail := func(err error) error {
		pl.release()
		_ = src.Close()
		return fmt.Errorf("%w: %v", shared.ErrDeviceError, err)
	}

	enc, err := codec.NewEncoder(codec.EncoderConfig{
		SampleRate: p.cfg.SampleRate,
		QueueSize:  p.cfg.EncoderQueue,
		Logger:     p.log,
	})
	if err != nil {
		return fail(err)
	}
	pl.encoder = enc

	dec, err := codec.NewDecoder(codec.DecoderConfig{
		SampleRate: p.cfg.SampleRate,
		QueueSize:  p.cfg.DecoderQueue,
		Logger:     p.log,
		OnDrop:     p.cfg.Hooks.OnDecoderDrop,
	})
	if err != nil {
		return fail(err)
	}
	pl.decoder = dec

	sink, err := p.opener.OpenOutput(ctx, p.cfg.SampleRate)
	if err != nil {
		return fail(fmt.Errorf("open output: %w", err))
	}
	pl.playback = NewPlayback(sink, PlaybackConfig{
		SampleRate: p.cfg.SampleRate,
		MaxLatency: p.cfg.MaxPlaybackLatency,
		Prebuffer:  p.cfg.PlaybackPrebuffer,
		Analyser:   p.outputAnalyser,
		Track:      p.assistantTrack,
		OnDrop:     p.cfg.Hooks.OnPlaybackDrop,
		Logger:     p.log,
	})
	pl.playback.Start()

	pl.capture = newCapture(captureConfig{
		Source:       src,
		Encoder:      enc,
		Analyser:     p.inputAnalyser,
		Track:        p.userTrack,
		FrameSamples: enc.FrameSamples(),
		OnFault:      pl.fault,
		Logger:       p.log,
	})
	pl.capture.Start(runCtx)

	pl.wg.Add(2)
	go pl.pumpPCM(runCtx)
	go pl.watchWorkers(runCtx)

	p.current = pl
	p.log.Info("audio pipeline ready", "sample_rate", p.cfg.SampleRate)
	return nil
}

func (pl *pipeline) pumpPCM(ctx context.Context) {
	defer pl.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case buf := <-pl.decoder.PCM():
			pl.playback.Enqueue(buf)
		}
	}
}

func (pl *pipeline) watchWorkers(ctx context.Context) {
	defer pl.wg.Done()
	select {
	case <-ctx.Done():
	case err := <-pl.encoder.Errors():
		pl.fault(err)
	case err := <-pl.decoder.Errors():
		pl.fault(fmt.Errorf("decode stream: %w", err))
	}
}

func (pl *pipeline) fault(err error) {
	select {
	case pl.faults <- err:
	default:
	}
}

// release stops everything that was started, in reverse order. It tolerates
// a partially built pipeline.
func (pl *pipeline) release() {
	pl.once.Do(func() {
		pl.cancel()
		if pl.capture != nil {
			pl.capture.Close()
		}
		if pl.encoder != nil {
			pl.encoder.Close()
		}
		if pl.decoder != nil {
			pl.decoder.Close()
		}
		if pl.playback != nil {
			pl.playback.Close()
		}
		pl.wg.Wait()
	})
}

// Shutdown is idempotent and a no-op when nothing is set up.
func (p *Processor) Shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current == nil {
		return
	}
	p.current.release()
	p.current = nil

	p.inputAnalyser.Reset()
	p.outputAnalyser.Reset()
	p.mixer.Reset()
	p.log.Info("audio pipeline released")
}

func (p *Processor) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current != nil
}

func (p *Processor) active() *pipeline {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// InputAnalyser is nil while no pipeline is set up.
func (p *Processor) InputAnalyser() *audio.Analyser {
	if p.active() == nil {
		return nil
	}
	return p.inputAnalyser
}

func (p *Processor) OutputAnalyser() *audio.Analyser {
	if p.active() == nil {
		return nil
	}
	return p.outputAnalyser
}

// Destination is the combined mic and playback mix.
func (p *Processor) Destination() *audio.Mixer {
	if p.active() == nil {
		return nil
	}
	return p.mixer
}

// Frames yields encoded microphone frames in completion order. It returns a
// nil channel while inactive.
func (p *Processor) Frames() <-chan *codec.Frame {
	pl := p.active()
	if pl == nil {
		return nil
	}
	return pl.encoder.Frames()
}

func (p *Processor) Faults() <-chan error {
	pl := p.active()
	if pl == nil {
		return nil
	}
	return pl.faults
}

// Play hands f to the decoder without blocking.
func (p *Processor) Play(f *codec.Frame) error {
	pl := p.active()
	if pl == nil {
		return shared.ErrAudioNotReady
	}
	if !pl.decoder.Submit(f) {
		return shared.ErrAudioNotReady
	}
	return nil
}
