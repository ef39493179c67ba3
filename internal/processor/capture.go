package processor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/rumbleFTW/koe-app/internal/audio"
	"github.com/rumbleFTW/koe-app/internal/codec"
	"github.com/rumbleFTW/koe-app/internal/device"
	"github.com/rumbleFTW/koe-app/internal/shared"
)

// RequestAccess asks for consent and then opens the input device. A refusal
// is terminal: callers surface it and wait for the user to retry.
func RequestAccess(ctx context.Context, consent device.Consent, opener device.Opener, sampleRate int) (device.Source, error) {
	granted, err := consent.RequestMicrophone(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrPermissionDenied, err)
	}
	if !granted {
		return nil, shared.ErrPermissionDenied
	}

	src, err := opener.OpenInput(ctx, sampleRate)
	if err != nil {
		return nil, fmt.Errorf("%w: open input: %v", shared.ErrDeviceError, err)
	}
	return src, nil
}

type chunkSubmitter interface {
	Submit(ctx context.Context, buf *audio.Buffer) error
}

type captureConfig struct {
	Source       device.Source
	Encoder      chunkSubmitter
	Analyser     *audio.Analyser
	Track        *audio.Track
	FrameSamples int
	OnFault      func(error)
	Logger       *slog.Logger
}

// Capture slices the input stream into fixed-size chunks and fans each one
// out to the analyser, the mix track and, by move, the encoder.
type Capture struct {
	cfg captureConfig
	log *slog.Logger

	closing   chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func newCapture(cfg captureConfig) *Capture {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Capture{
		cfg:     cfg,
		log:     log.With("component", "mic_capture"),
		closing: make(chan struct{}),
	}
}

func (c *Capture) Start(ctx context.Context) {
	c.wg.Add(1)
	go c.run(ctx)
}

func (c *Capture) run(ctx context.Context) {
	defer c.wg.Done()

	raw := make([]byte, c.cfg.FrameSamples*2)
	var seq uint64
	for {
		if _, err := io.ReadFull(c.cfg.Source, raw); err != nil {
			select {
			case <-c.closing:
				return
			default:
			}
			if ctx.Err() != nil {
				return
			}
			c.log.Error("input stream ended", "error", err)
			c.fault(fmt.Errorf("%w: read input: %v", shared.ErrDeviceError, err))
			return
		}

		samples := audio.PCMBytesToInt16(raw)
		if c.cfg.Analyser != nil {
			c.cfg.Analyser.Write(samples)
		}
		if c.cfg.Track != nil {
			c.cfg.Track.Write(samples)
		}

		err := c.cfg.Encoder.Submit(ctx, audio.NewBuffer(seq, samples))
		if errors.Is(err, codec.ErrClosed) || errors.Is(err, context.Canceled) {
			return
		}
		if err != nil {
			c.fault(err)
			return
		}
		seq++
	}
}

func (c *Capture) fault(err error) {
	if c.cfg.OnFault != nil {
		c.cfg.OnFault(err)
	}
}

// Close releases the device stream and waits for the loop to exit.
func (c *Capture) Close() {
	c.closeOnce.Do(func() {
		close(c.closing)
		if err := c.cfg.Source.Close(); err != nil {
			c.log.Warn("close input stream", "error", err)
		}
	})
	c.wg.Wait()
}
