package codec

import (
	"bytes"
	"encoding/binary"
	"time"
)

var frameDurationsMs = [32]float64{
	10, 20, 40, 60,
	10, 20, 40, 60,
	10, 20, 40, 60,
	10, 20,
	10, 20,
	2.5, 5, 10, 20,
	2.5, 5, 10, 20,
	2.5, 5, 10, 20,
	2.5, 5, 10, 20,
}

var (
	opusHeadMagic = []byte("OpusHead")
	opusTagsMagic = []byte("OpusTags")
)

// PacketDuration reads the TOC byte of an Opus packet (RFC 6716 section 3.1).
// An empty packet is reported as one default frame.
func PacketDuration(packet []byte, sampleRate int) (samples int, duration time.Duration) {
	if len(packet) < 1 {
		return sampleRate * int(FrameDuration/time.Millisecond) / 1000, FrameDuration
	}

	toc := packet[0]
	frameMs := frameDurationsMs[(toc>>3)&0x1F]

	frames := 1
	switch toc & 0x03 {
	case 1, 2:
		frames = 2
	case 3:
		if len(packet) > 1 {
			if c := int(packet[1] & 0x3F); c > 0 {
				frames = c
			}
		}
	}

	totalMs := frameMs * float64(frames)
	samples = int(totalMs * float64(sampleRate) / 1000)
	duration = time.Duration(totalMs * float64(time.Millisecond))
	return samples, duration
}

func isHeaderPacket(payload []byte) bool {
	return bytes.HasPrefix(payload, opusHeadMagic) || bytes.HasPrefix(payload, opusTagsMagic)
}

// OpusHead builds the identification header (RFC 7845 section 5.1), used
// as codec private data by containers.
func OpusHead(channels int, preSkip uint16, inputRate int) []byte {
	head := make([]byte, 19)
	copy(head, opusHeadMagic)
	head[8] = 1
	head[9] = byte(channels)
	binary.LittleEndian.PutUint16(head[10:], preSkip)
	binary.LittleEndian.PutUint32(head[12:], uint32(inputRate))
	return head
}
