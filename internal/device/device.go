package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

var ErrUnsupported = errors.New("unsupported device")

// Source is a live mono s16le PCM stream from an input device.
type Source interface {
	io.ReadCloser
	SampleRate() int
}

// Sink accepts mono s16le PCM for an output device.
type Sink interface {
	io.WriteCloser
}

type Opener interface {
	OpenInput(ctx context.Context, sampleRate int) (Source, error)
	OpenOutput(ctx context.Context, sampleRate int) (Sink, error)
}

type Config struct {
	// Input is "ffmpeg" or "wav:<path>".
	Input string
	// Output is "ffplay" or "null".
	Output string
	// LoopInput replays a WAV input when it ends.
	LoopInput bool
}

type opener struct {
	cfg Config
}

func NewOpener(cfg Config) Opener {
	if cfg.Input == "" {
		cfg.Input = "ffmpeg"
	}
	if cfg.Output == "" {
		cfg.Output = "ffplay"
	}
	return &opener{cfg: cfg}
}

func (o *opener) OpenInput(ctx context.Context, sampleRate int) (Source, error) {
	switch {
	case o.cfg.Input == "ffmpeg":
		return NewFFmpegSource(ctx, sampleRate)
	case strings.HasPrefix(o.cfg.Input, "wav:"):
		return OpenWAVSource(strings.TrimPrefix(o.cfg.Input, "wav:"), sampleRate, o.cfg.LoopInput)
	default:
		return nil, fmt.Errorf("%w: input %q", ErrUnsupported, o.cfg.Input)
	}
}

func (o *opener) OpenOutput(ctx context.Context, sampleRate int) (Sink, error) {
	switch o.cfg.Output {
	case "ffplay":
		return NewFFplaySink(ctx, sampleRate)
	case "null":
		return NullSink{}, nil
	default:
		return nil, fmt.Errorf("%w: output %q", ErrUnsupported, o.cfg.Output)
	}
}

type NullSink struct{}

func (NullSink) Write(p []byte) (int, error) { return len(p), nil }

func (NullSink) Close() error { return nil }
