package codec

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v4/pkg/media/oggreader"

	"github.com/rumbleFTW/koe-app/internal/audio"
)

type DecoderConfig struct {
	SampleRate int
	// QueueSize bounds the frames waiting to be decoded. When it is full the
	// oldest waiting frame is discarded.
	QueueSize int
	Logger    *slog.Logger
	OnDrop    func()
}

// Decoder reads successive frames as one continuous Ogg stream and emits PCM
// in arrival order. Submit never blocks.
type Decoder struct {
	codec  *OpusCodec
	log    *slog.Logger
	onDrop func()

	queue chan *Frame
	pcm   chan *audio.Buffer
	errs  chan error
	done  chan struct{}

	dropped atomic.Uint64
	seq     uint64

	closeOnce sync.Once
	wg        sync.WaitGroup
}

func NewDecoder(cfg DecoderConfig) (*Decoder, error) {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 128
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	codec, err := NewOpusCodec(cfg.SampleRate)
	if err != nil {
		return nil, err
	}

	d := &Decoder{
		codec:  codec,
		log:    log.With("component", "opus_decoder"),
		onDrop: cfg.OnDrop,
		queue:  make(chan *Frame, cfg.QueueSize),
		pcm:    make(chan *audio.Buffer, cfg.QueueSize),
		errs:   make(chan error, 1),
		done:   make(chan struct{}),
	}

	d.wg.Add(1)
	go d.run()
	return d, nil
}

func (d *Decoder) PCM() <-chan *audio.Buffer {
	return d.pcm
}

func (d *Decoder) Errors() <-chan error {
	return d.errs
}

func (d *Decoder) Dropped() uint64 {
	return d.dropped.Load()
}

func (d *Decoder) SampleRate() int {
	return d.codec.SampleRate()
}

// Submit moves f into the decode queue, evicting the oldest waiting frame
// when the queue is full. It reports false once the decoder is closed.
func (d *Decoder) Submit(f *Frame) bool {
	owned := f.Move()
	for {
		select {
		case <-d.done:
			return false
		default:
		}

		select {
		case d.queue <- owned:
			return true
		default:
		}

		select {
		case <-d.queue:
			d.dropped.Add(1)
			if d.onDrop != nil {
				d.onDrop()
			}
		default:
		}
	}
}

func (d *Decoder) run() {
	defer d.wg.Done()

	reader, _, err := oggreader.NewWith(&frameReader{d: d})
	if err != nil {
		d.fail(err)
		return
	}

	for {
		payload, _, err := reader.ParseNextPage()
		if err != nil {
			d.fail(err)
			return
		}
		if len(payload) == 0 || isHeaderPacket(payload) {
			continue
		}

		pcm, err := d.codec.Decode(payload)
		if err != nil {
			d.log.Warn("skipping undecodable packet", "error", err)
			continue
		}

		d.seq++
		select {
		case d.pcm <- audio.NewBuffer(d.seq, pcm):
		case <-d.done:
			return
		}
	}
}

func (d *Decoder) fail(err error) {
	select {
	case <-d.done:
		return
	default:
	}
	if errors.Is(err, io.EOF) {
		return
	}
	d.log.Error("ogg stream failed", "error", err)
	select {
	case d.errs <- err:
	default:
	}
}

func (d *Decoder) Close() {
	d.closeOnce.Do(func() {
		close(d.done)
	})
	d.wg.Wait()
}

// frameReader exposes the queued frames as one byte stream.
type frameReader struct {
	d   *Decoder
	cur []byte
}

func (r *frameReader) Read(p []byte) (int, error) {
	for len(r.cur) == 0 {
		select {
		case f := <-r.d.queue:
			r.cur = f.Data()
		case <-r.d.done:
			return 0, io.EOF
		}
	}
	n := copy(p, r.cur)
	r.cur = r.cur[n:]
	return n, nil
}
