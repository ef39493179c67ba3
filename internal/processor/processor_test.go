package processor

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rumbleFTW/koe-app/internal/codec"
	"github.com/rumbleFTW/koe-app/internal/device"
	"github.com/rumbleFTW/koe-app/internal/shared"
)

func newTestProcessor(opener device.Opener) *Processor {
	return New(Config{SampleRate: codec.SampleRate, MaxPlaybackLatency: 200 * time.Millisecond}, opener, quietLogger())
}

func TestRequestAccess_Refused(t *testing.T) {
	opener := &fakeOpener{src: newToneSource(codec.SampleRate)}
	_, err := RequestAccess(context.Background(), device.StaticConsent(false), opener, codec.SampleRate)
	if !errors.Is(err, shared.ErrPermissionDenied) {
		t.Errorf("expected ErrPermissionDenied, got %v", err)
	}
}

func TestRequestAccess_OpenFails(t *testing.T) {
	opener := &fakeOpener{inputErr: errNoDevice}
	_, err := RequestAccess(context.Background(), device.StaticConsent(true), opener, codec.SampleRate)
	if !errors.Is(err, shared.ErrDeviceError) {
		t.Errorf("expected ErrDeviceError, got %v", err)
	}
}

func TestProcessor_SetupTwiceRejected(t *testing.T) {
	sink := &fakeSink{}
	p := newTestProcessor(&fakeOpener{sink: sink})
	defer p.Shutdown()

	if err := p.Setup(context.Background(), newToneSource(codec.SampleRate)); err != nil {
		t.Fatalf("Setup error: %v", err)
	}
	second := newToneSource(codec.SampleRate)
	if err := p.Setup(context.Background(), second); !errors.Is(err, shared.ErrAlreadyActive) {
		t.Errorf("expected ErrAlreadyActive, got %v", err)
	}
}

func TestProcessor_SetupNilSource(t *testing.T) {
	p := newTestProcessor(&fakeOpener{sink: &fakeSink{}})
	if err := p.Setup(context.Background(), nil); !errors.Is(err, shared.ErrDeviceError) {
		t.Errorf("expected ErrDeviceError, got %v", err)
	}
}

func TestProcessor_OutputFailureReleasesInput(t *testing.T) {
	src := newToneSource(codec.SampleRate)
	p := newTestProcessor(&fakeOpener{outputErr: errNoDevice})

	err := p.Setup(context.Background(), src)
	if !errors.Is(err, shared.ErrDeviceError) {
		t.Fatalf("expected ErrDeviceError, got %v", err)
	}
	if !src.isClosed() {
		t.Error("input stream should be released after a failed setup")
	}
	if p.Active() {
		t.Error("processor should not be active after a failed setup")
	}
	p.Shutdown()
	p.Shutdown()
}

func TestProcessor_ShutdownReleasesEverything(t *testing.T) {
	src := newToneSource(codec.SampleRate)
	sink := &fakeSink{}
	p := newTestProcessor(&fakeOpener{sink: sink})

	if err := p.Setup(context.Background(), src); err != nil {
		t.Fatalf("Setup error: %v", err)
	}
	if p.InputAnalyser() == nil || p.OutputAnalyser() == nil || p.Destination() == nil {
		t.Fatal("taps should be exposed while active")
	}

	p.Shutdown()
	p.Shutdown()

	if !src.isClosed() {
		t.Error("input stream should be closed")
	}
	if !sink.isClosed() {
		t.Error("output device should be closed")
	}
	if p.InputAnalyser() != nil || p.Destination() != nil || p.Frames() != nil {
		t.Error("taps should be detached after shutdown")
	}
	if err := p.Play(codec.NewFrame(0, []byte{1})); !errors.Is(err, shared.ErrAudioNotReady) {
		t.Errorf("expected ErrAudioNotReady, got %v", err)
	}

	if err := p.Setup(context.Background(), newToneSource(codec.SampleRate)); err != nil {
		t.Fatalf("setup after shutdown should succeed: %v", err)
	}
	p.Shutdown()
}

func TestProcessor_LoopbackPlaysAudio(t *testing.T) {
	sink := &fakeSink{}
	p := newTestProcessor(&fakeOpener{sink: sink})
	defer p.Shutdown()

	if err := p.Setup(context.Background(), newToneSource(codec.SampleRate)); err != nil {
		t.Fatalf("Setup error: %v", err)
	}

	frames := p.Frames()
	timeout := time.After(5 * time.Second)
	for i := 0; i < 10; i++ {
		select {
		case f := <-frames:
			if !bytes.HasPrefix(f.Data(), []byte("OggS")) {
				t.Fatalf("frame %d is not an ogg page", i)
			}
			if err := p.Play(f); err != nil {
				t.Fatalf("Play error: %v", err)
			}
		case err := <-p.Faults():
			t.Fatalf("unexpected fault: %v", err)
		case <-timeout:
			t.Fatalf("timed out waiting for frame %d", i)
		}
	}

	deadline := time.Now().Add(5 * time.Second)
	for sink.written() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if sink.written() == 0 {
		t.Fatal("expected decoded audio to reach the output device")
	}
	if p.Destination().Buffered() == 0 {
		t.Error("expected the combined destination to hold mixed audio")
	}
}
