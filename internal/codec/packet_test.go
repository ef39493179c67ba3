package codec

import (
	"encoding/binary"
	"testing"
	"time"
)

func TestPacketDuration(t *testing.T) {
	tests := []struct {
		name     string
		packet   []byte
		rate     int
		samples  int
		duration time.Duration
	}{
		{"empty packet", []byte{}, 24000, 480, 20 * time.Millisecond},
		{"celt 20ms", []byte{byte((16 + 3) << 3), 0x00}, 24000, 480, 20 * time.Millisecond},
		{"celt 20ms at 48k", []byte{byte((16 + 3) << 3), 0x00}, 48000, 960, 20 * time.Millisecond},
		{"celt 10ms", []byte{byte((16 + 2) << 3), 0x00}, 24000, 240, 10 * time.Millisecond},
		{"two frames", []byte{byte(((16 + 3) << 3) | 1), 0x00, 0x00}, 24000, 960, 40 * time.Millisecond},
		{"arbitrary count", []byte{byte(((16 + 3) << 3) | 3), 4, 0x00}, 24000, 1920, 80 * time.Millisecond},
		{"silk 60ms", []byte{byte(3 << 3), 0x00}, 24000, 1440, 60 * time.Millisecond},
		{"celt 2.5ms", []byte{byte(16 << 3), 0x00}, 48000, 120, 2500 * time.Microsecond},
		{"zero count falls back to one", []byte{byte(((16 + 3) << 3) | 3), 0, 0x00}, 24000, 480, 20 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			samples, duration := PacketDuration(tt.packet, tt.rate)
			if samples != tt.samples {
				t.Errorf("expected %d samples, got %d", tt.samples, samples)
			}
			if duration != tt.duration {
				t.Errorf("expected %v, got %v", tt.duration, duration)
			}
		})
	}
}

func TestIsHeaderPacket(t *testing.T) {
	if !isHeaderPacket([]byte("OpusHead\x01\x01")) {
		t.Error("OpusHead should be a header packet")
	}
	if !isHeaderPacket([]byte("OpusTags....")) {
		t.Error("OpusTags should be a header packet")
	}
	if isHeaderPacket([]byte{0xf8, 0xff, 0xfe}) {
		t.Error("audio packet should not be a header packet")
	}
}

func TestOpusHead(t *testing.T) {
	head := OpusHead(1, 312, 24000)
	if len(head) != 19 {
		t.Fatalf("expected 19 bytes, got %d", len(head))
	}
	if string(head[:8]) != "OpusHead" {
		t.Errorf("unexpected magic %q", head[:8])
	}
	if head[9] != 1 {
		t.Errorf("expected 1 channel, got %d", head[9])
	}
	if skip := binary.LittleEndian.Uint16(head[10:]); skip != 312 {
		t.Errorf("expected pre-skip 312, got %d", skip)
	}
	if rate := binary.LittleEndian.Uint32(head[12:]); rate != 24000 {
		t.Errorf("expected rate 24000, got %d", rate)
	}
}
