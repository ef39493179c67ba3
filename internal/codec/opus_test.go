package codec

import (
	"math"
	"testing"
)

func sineFrame(n, rate int, hz float64) []int16 {
	pcm := make([]int16, n)
	for i := range pcm {
		pcm[i] = int16(8000 * math.Sin(2*math.Pi*hz*float64(i)/float64(rate)))
	}
	return pcm
}

func TestFrameSize(t *testing.T) {
	if FrameSize != SampleRate/50 {
		t.Errorf("FrameSize = %d, want a 20ms frame at %d Hz", FrameSize, SampleRate)
	}
}

func TestNewOpusCodec_Rates(t *testing.T) {
	tests := []struct {
		rate      int
		wantRate  int
		wantFrame int
	}{
		{0, SampleRate, FrameSize},
		{24000, 24000, 480},
		{48000, 48000, 960},
	}

	for _, tt := range tests {
		oc, err := NewOpusCodec(tt.rate)
		if err != nil {
			t.Fatalf("NewOpusCodec(%d): %v", tt.rate, err)
		}
		if oc.SampleRate() != tt.wantRate || oc.FrameSamples() != tt.wantFrame {
			t.Errorf("rate %d: got %d Hz / %d samples, want %d / %d",
				tt.rate, oc.SampleRate(), oc.FrameSamples(), tt.wantRate, tt.wantFrame)
		}
	}
}

func TestOpusCodec_RejectsPartialFrame(t *testing.T) {
	oc, err := NewOpusCodec(SampleRate)
	if err != nil {
		t.Fatalf("NewOpusCodec: %v", err)
	}
	if _, err := oc.Encode(make([]int16, FrameSize-1)); err == nil {
		t.Error("expected error for a short frame")
	}
}

func TestOpusCodec_ToneRoundTrip(t *testing.T) {
	oc, err := NewOpusCodec(SampleRate)
	if err != nil {
		t.Fatalf("NewOpusCodec: %v", err)
	}

	packet, err := oc.Encode(sineFrame(FrameSize, SampleRate, 440))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(packet) == 0 || len(packet) >= FrameSize*2 {
		t.Errorf("packet size = %d bytes, want compressed output", len(packet))
	}

	samples, d := PacketDuration(packet, SampleRate)
	if samples != FrameSize || d != FrameDuration {
		t.Errorf("PacketDuration = %d samples / %v, want %d / %v", samples, d, FrameSize, FrameDuration)
	}

	pcm, err := oc.Decode(packet)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(pcm) != FrameSize {
		t.Errorf("decoded %d samples, want %d", len(pcm), FrameSize)
	}
}

func TestOpusCodec_DecodeGarbage(t *testing.T) {
	oc, err := NewOpusCodec(SampleRate)
	if err != nil {
		t.Fatalf("NewOpusCodec: %v", err)
	}
	if _, err := oc.Decode(nil); err == nil {
		t.Error("expected error decoding an empty packet")
	}
}
