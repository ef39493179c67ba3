package codec

import (
	"encoding/base64"
	"fmt"
)

// Frame is one compressed audio unit on the wire: an Ogg page carrying an
// Opus packet, possibly preceded by the stream header pages. Seq is local
// bookkeeping only and never leaves the process.
type Frame struct {
	seq  uint64
	data []byte
}

func NewFrame(seq uint64, data []byte) *Frame {
	return &Frame{seq: seq, data: data}
}

func FrameFromBase64(seq uint64, encoded string) (*Frame, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode audio frame: %w", err)
	}
	return NewFrame(seq, data), nil
}

func (f *Frame) Seq() uint64 {
	return f.seq
}

func (f *Frame) Data() []byte {
	return f.data
}

func (f *Frame) Len() int {
	return len(f.data)
}

func (f *Frame) Moved() bool {
	return f.data == nil
}

// Move hands the payload to a new owner and empties f.
func (f *Frame) Move() *Frame {
	owned := &Frame{seq: f.seq, data: f.data}
	f.data = nil
	return owned
}

func (f *Frame) Base64() string {
	return base64.StdEncoding.EncodeToString(f.data)
}
