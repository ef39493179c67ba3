package device

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rumbleFTW/koe-app/internal/audio"
)

// WAVSource plays a mono WAV file as if it were a microphone, paced to real
// time so downstream timing matches a live device.
type WAVSource struct {
	mu         sync.Mutex
	pcm        []byte
	pos        int
	loop       bool
	sampleRate int
	started    time.Time
	sent       int
	closed     bool
	sleep      func(time.Duration)
}

func OpenWAVSource(path string, sampleRate int, loop bool) (*WAVSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read wav input: %w", err)
	}
	return NewWAVSource(data, sampleRate, loop)
}

func NewWAVSource(data []byte, sampleRate int, loop bool) (*WAVSource, error) {
	samples, rate, err := audio.DecodeWAV(data)
	if err != nil {
		return nil, err
	}
	samples = audio.ResampleInt16(samples, rate, sampleRate)
	return &WAVSource{
		pcm:        audio.Int16ToPCMBytes(samples),
		loop:       loop,
		sampleRate: sampleRate,
		sleep:      time.Sleep,
	}, nil
}

func (s *WAVSource) SampleRate() int {
	return s.sampleRate
}

func (s *WAVSource) Read(p []byte) (int, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, io.EOF
	}
	if s.started.IsZero() {
		s.started = time.Now()
	}
	if s.pos >= len(s.pcm) {
		if !s.loop || len(s.pcm) == 0 {
			s.mu.Unlock()
			return 0, io.EOF
		}
		s.pos = 0
	}

	n := copy(p[:len(p)&^1], s.pcm[s.pos:])
	s.pos += n
	s.sent += n
	due := audio.DurationOf(s.sent/2, s.sampleRate) - time.Since(s.started)
	s.mu.Unlock()

	if due > 0 {
		s.sleep(due)
	}
	return n, nil
}

func (s *WAVSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
