package codec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"

	"github.com/rumbleFTW/koe-app/internal/audio"
)

var ErrClosed = errors.New("codec worker closed")

// granuleRate is fixed at 48 kHz for Ogg Opus regardless of the input rate.
const granuleRate = 48000

type EncodeError struct {
	Seq uint64
	Err error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode chunk %d: %v", e.Seq, e.Err)
}

func (e *EncodeError) Unwrap() error {
	return e.Err
}

type EncoderConfig struct {
	SampleRate int
	QueueSize  int
	Logger     *slog.Logger
}

// Encoder turns fixed-size PCM chunks into Ogg Opus frames on its own
// goroutine. Frames come out in submission order; the first one also carries
// the OpusHead and OpusTags pages.
type Encoder struct {
	codec  *OpusCodec
	stream *bytes.Buffer
	ogg    *oggwriter.OggWriter
	log    *slog.Logger

	in     chan *audio.Buffer
	frames chan *Frame
	errs   chan *EncodeError
	done   chan struct{}

	timestamp   uint32
	granuleStep uint32

	closeOnce sync.Once
	wg        sync.WaitGroup
}

func NewEncoder(cfg EncoderConfig) (*Encoder, error) {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	codec, err := NewOpusCodec(cfg.SampleRate)
	if err != nil {
		return nil, err
	}

	stream := &bytes.Buffer{}
	ogg, err := oggwriter.NewWith(stream, uint32(codec.SampleRate()), Channels)
	if err != nil {
		return nil, fmt.Errorf("create ogg writer: %w", err)
	}

	e := &Encoder{
		codec:       codec,
		stream:      stream,
		ogg:         ogg,
		log:         log.With("component", "opus_encoder"),
		in:          make(chan *audio.Buffer, cfg.QueueSize),
		frames:      make(chan *Frame, cfg.QueueSize),
		errs:        make(chan *EncodeError, 16),
		done:        make(chan struct{}),
		granuleStep: uint32(codec.FrameSamples() * granuleRate / codec.SampleRate()),
	}

	e.wg.Add(1)
	go e.run()
	return e, nil
}

func (e *Encoder) FrameSamples() int {
	return e.codec.FrameSamples()
}

func (e *Encoder) Frames() <-chan *Frame {
	return e.frames
}

func (e *Encoder) Errors() <-chan *EncodeError {
	return e.errs
}

// Submit moves buf into the encoder. The caller's handle is empty on return,
// whatever the outcome.
func (e *Encoder) Submit(ctx context.Context, buf *audio.Buffer) error {
	owned := buf.Move()
	select {
	case <-e.done:
		return ErrClosed
	default:
	}

	select {
	case e.in <- owned:
		return nil
	case <-e.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Encoder) run() {
	defer e.wg.Done()

	for {
		select {
		case <-e.done:
			return
		case chunk := <-e.in:
			frame, err := e.encode(chunk)
			if err != nil {
				e.log.Warn("encode failed", "seq", chunk.Seq(), "error", err)
				select {
				case e.errs <- &EncodeError{Seq: chunk.Seq(), Err: err}:
				case <-e.done:
					return
				}
				continue
			}
			select {
			case e.frames <- frame:
			case <-e.done:
				return
			}
		}
	}
}

func (e *Encoder) encode(chunk *audio.Buffer) (*Frame, error) {
	packet, err := e.codec.Encode(chunk.Samples())
	if err != nil {
		return nil, err
	}

	err = e.ogg.WriteRTP(&rtp.Packet{
		Header:  rtp.Header{Timestamp: e.timestamp},
		Payload: packet,
	})
	if err != nil {
		return nil, fmt.Errorf("write ogg page: %w", err)
	}
	e.timestamp += e.granuleStep

	page := make([]byte, e.stream.Len())
	copy(page, e.stream.Bytes())
	e.stream.Reset()
	return NewFrame(chunk.Seq(), page), nil
}

func (e *Encoder) Close() {
	e.closeOnce.Do(func() {
		close(e.done)
	})
	e.wg.Wait()
}
