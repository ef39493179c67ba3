package codec

import (
	"fmt"
	"sync"
	"time"

	"gopkg.in/hraban/opus.v2"
)

const (
	SampleRate     = 24000
	Channels       = 1
	FrameDuration  = 20 * time.Millisecond
	FrameSize      = SampleRate * int(FrameDuration/time.Millisecond) / 1000
	maxEncodedSize = 1500
	maxPacketMs    = 120
)

var encodePool = sync.Pool{
	New: func() any {
		buf := make([]byte, maxEncodedSize)
		return &buf
	},
}

type OpusCodec struct {
	encoder    *opus.Encoder
	decoder    *opus.Decoder
	sampleRate int
	frameSize  int
}

func NewOpusCodec(sampleRate int) (*OpusCodec, error) {
	if sampleRate <= 0 {
		sampleRate = SampleRate
	}

	enc, err := opus.NewEncoder(sampleRate, Channels, opus.AppVoIP)
	if err != nil {
		return nil, fmt.Errorf("create opus encoder: %w", err)
	}

	dec, err := opus.NewDecoder(sampleRate, Channels)
	if err != nil {
		return nil, fmt.Errorf("create opus decoder: %w", err)
	}

	return &OpusCodec{
		encoder:    enc,
		decoder:    dec,
		sampleRate: sampleRate,
		frameSize:  sampleRate * int(FrameDuration/time.Millisecond) / 1000,
	}, nil
}

func (c *OpusCodec) Encode(pcm []int16) ([]byte, error) {
	if len(pcm) != c.frameSize*Channels {
		return nil, fmt.Errorf("opus encode: want %d samples, got %d", c.frameSize*Channels, len(pcm))
	}

	bufPtr := encodePool.Get().(*[]byte)
	defer encodePool.Put(bufPtr)

	n, err := c.encoder.Encode(pcm, *bufPtr)
	if err != nil {
		return nil, fmt.Errorf("opus encode: %w", err)
	}
	result := make([]byte, n)
	copy(result, (*bufPtr)[:n])
	return result, nil
}

// Decode sizes its output from the packet's TOC so that 40 and 60 ms
// packets from the backend are not truncated.
func (c *OpusCodec) Decode(data []byte) ([]int16, error) {
	samples, _ := PacketDuration(data, c.sampleRate)
	if samples <= 0 || samples > c.sampleRate*maxPacketMs/1000 {
		samples = c.sampleRate * maxPacketMs / 1000
	}

	pcm := make([]int16, samples*Channels)
	n, err := c.decoder.Decode(data, pcm)
	if err != nil {
		return nil, fmt.Errorf("opus decode: %w", err)
	}
	return pcm[:n*Channels], nil
}

func (c *OpusCodec) FrameSamples() int {
	return c.frameSize
}

func (c *OpusCodec) SampleRate() int {
	return c.sampleRate
}
