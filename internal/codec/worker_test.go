package codec

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/rumbleFTW/koe-app/internal/audio"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func toneChunk(seq uint64, n int) *audio.Buffer {
	pcm := make([]int16, n)
	for i := range pcm {
		pcm[i] = int16(8000 * math.Sin(2*math.Pi*440*float64(int(seq)*n+i)/SampleRate))
	}
	return audio.NewBuffer(seq, pcm)
}

func encodeChunks(t *testing.T, count int) []*Frame {
	t.Helper()

	enc, err := NewEncoder(EncoderConfig{SampleRate: SampleRate, Logger: quietLogger()})
	if err != nil {
		t.Fatalf("NewEncoder error: %v", err)
	}
	defer enc.Close()

	ctx := context.Background()
	go func() {
		for i := 0; i < count; i++ {
			if err := enc.Submit(ctx, toneChunk(uint64(i), enc.FrameSamples())); err != nil {
				t.Errorf("Submit %d error: %v", i, err)
				return
			}
		}
	}()

	frames := make([]*Frame, 0, count)
	timeout := time.After(5 * time.Second)
	for len(frames) < count {
		select {
		case f := <-enc.Frames():
			frames = append(frames, f)
		case encErr := <-enc.Errors():
			t.Fatalf("unexpected encode error: %v", encErr)
		case <-timeout:
			t.Fatalf("timed out after %d frames", len(frames))
		}
	}
	return frames
}

func TestEncoder_FramesInOrder(t *testing.T) {
	frames := encodeChunks(t, 10)
	for i, f := range frames {
		if f.Seq() != uint64(i) {
			t.Errorf("frame %d has seq %d", i, f.Seq())
		}
		if !bytes.HasPrefix(f.Data(), []byte("OggS")) {
			t.Errorf("frame %d is not an ogg page", i)
		}
	}
	if !bytes.Contains(frames[0].Data(), []byte("OpusHead")) {
		t.Error("first frame should carry the OpusHead page")
	}
	if bytes.Contains(frames[1].Data(), []byte("OpusHead")) {
		t.Error("only the first frame should carry stream headers")
	}
}

func TestEncoder_SubmitMovesBuffer(t *testing.T) {
	enc, err := NewEncoder(EncoderConfig{Logger: quietLogger()})
	if err != nil {
		t.Fatalf("NewEncoder error: %v", err)
	}
	defer enc.Close()

	buf := toneChunk(0, enc.FrameSamples())
	if err := enc.Submit(context.Background(), buf); err != nil {
		t.Fatalf("Submit error: %v", err)
	}
	if !buf.Moved() {
		t.Error("submitted buffer should be emptied")
	}
}

func TestEncoder_ErrorTaggedWithSeq(t *testing.T) {
	enc, err := NewEncoder(EncoderConfig{Logger: quietLogger()})
	if err != nil {
		t.Fatalf("NewEncoder error: %v", err)
	}
	defer enc.Close()

	if err := enc.Submit(context.Background(), audio.NewBuffer(42, make([]int16, 7))); err != nil {
		t.Fatalf("Submit error: %v", err)
	}

	select {
	case encErr := <-enc.Errors():
		if encErr.Seq != 42 {
			t.Errorf("expected error for seq 42, got %d", encErr.Seq)
		}
	case <-enc.Frames():
		t.Fatal("a malformed chunk must not yield a frame")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for encode error")
	}
}

func TestEncoder_SubmitAfterClose(t *testing.T) {
	enc, err := NewEncoder(EncoderConfig{Logger: quietLogger()})
	if err != nil {
		t.Fatalf("NewEncoder error: %v", err)
	}
	enc.Close()
	enc.Close()

	if err := enc.Submit(context.Background(), toneChunk(0, enc.FrameSamples())); err != ErrClosed {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestRoundTrip_DurationPreserved(t *testing.T) {
	const chunks = 25
	frames := encodeChunks(t, chunks)

	dec, err := NewDecoder(DecoderConfig{SampleRate: SampleRate, Logger: quietLogger()})
	if err != nil {
		t.Fatalf("NewDecoder error: %v", err)
	}
	defer dec.Close()

	for _, f := range frames {
		if !dec.Submit(f) {
			t.Fatal("decoder rejected frame")
		}
	}

	want := chunks * FrameSize
	got := 0
	timeout := time.After(5 * time.Second)
	for got < want {
		select {
		case buf := <-dec.PCM():
			got += buf.Len()
		case err := <-dec.Errors():
			t.Fatalf("decoder failed: %v", err)
		case <-timeout:
			t.Fatalf("timed out with %d of %d samples", got, want)
		}
	}
	if diff := got - want; diff < -FrameSize || diff > FrameSize {
		t.Errorf("decoded %d samples, want %d within one frame", got, want)
	}
}

func TestDecoder_SubmitDropsOldest(t *testing.T) {
	drops := 0
	d := &Decoder{
		queue:  make(chan *Frame, 2),
		done:   make(chan struct{}),
		onDrop: func() { drops++ },
	}

	for i := 0; i < 3; i++ {
		if !d.Submit(NewFrame(uint64(i), []byte{byte(i)})) {
			t.Fatalf("Submit %d rejected", i)
		}
	}

	if d.Dropped() != 1 || drops != 1 {
		t.Errorf("expected one drop, got %d (callback %d)", d.Dropped(), drops)
	}
	first := <-d.queue
	second := <-d.queue
	if first.Seq() != 1 || second.Seq() != 2 {
		t.Errorf("expected frames 1 and 2 to survive, got %d and %d", first.Seq(), second.Seq())
	}
}

func TestDecoder_SubmitAfterClose(t *testing.T) {
	dec, err := NewDecoder(DecoderConfig{Logger: quietLogger()})
	if err != nil {
		t.Fatalf("NewDecoder error: %v", err)
	}
	dec.Close()

	f := NewFrame(0, []byte{1})
	if dec.Submit(f) {
		t.Error("Submit should report false after close")
	}
	if !f.Moved() {
		t.Error("frame should be moved even when rejected")
	}
}

func TestDecoder_CorruptStreamIsFatal(t *testing.T) {
	dec, err := NewDecoder(DecoderConfig{Logger: quietLogger()})
	if err != nil {
		t.Fatalf("NewDecoder error: %v", err)
	}
	defer dec.Close()

	dec.Submit(NewFrame(0, bytes.Repeat([]byte("garbage!"), 16)))

	select {
	case err := <-dec.Errors():
		if err == nil {
			t.Error("expected non-nil error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for stream error")
	}
}
