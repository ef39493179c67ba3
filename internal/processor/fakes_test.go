package processor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/rumbleFTW/koe-app/internal/audio"
	"github.com/rumbleFTW/koe-app/internal/device"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// toneSource produces a 440 Hz tone at roughly real time until closed.
type toneSource struct {
	mu     sync.Mutex
	closed bool
	phase  int
	rate   int
}

func newToneSource(rate int) *toneSource {
	return &toneSource{rate: rate}
}

func (s *toneSource) SampleRate() int { return s.rate }

func (s *toneSource) Read(p []byte) (int, error) {
	time.Sleep(2 * time.Millisecond)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, io.EOF
	}
	n := len(p) &^ 1
	samples := make([]int16, n/2)
	for i := range samples {
		samples[i] = int16(6000 * math.Sin(2*math.Pi*440*float64(s.phase)/float64(s.rate)))
		s.phase++
	}
	copy(p, audio.Int16ToPCMBytes(samples))
	return n, nil
}

func (s *toneSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *toneSource) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakeSink struct {
	mu     sync.Mutex
	bytes  int
	closed bool
}

func (s *fakeSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bytes += len(p)
	return len(p), nil
}

func (s *fakeSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSink) written() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bytes
}

func (s *fakeSink) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakeOpener struct {
	src       device.Source
	sink      *fakeSink
	inputErr  error
	outputErr error
}

func (o *fakeOpener) OpenInput(context.Context, int) (device.Source, error) {
	if o.inputErr != nil {
		return nil, o.inputErr
	}
	return o.src, nil
}

func (o *fakeOpener) OpenOutput(context.Context, int) (device.Sink, error) {
	if o.outputErr != nil {
		return nil, o.outputErr
	}
	return o.sink, nil
}

var errNoDevice = errors.New("no such device")
