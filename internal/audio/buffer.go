package audio

// Buffer owns a block of mono PCM samples. Handing a Buffer to a worker goes
// through Move, which empties the sender's handle so it cannot be read again.
type Buffer struct {
	seq     uint64
	samples []int16
}

func NewBuffer(seq uint64, samples []int16) *Buffer {
	return &Buffer{seq: seq, samples: samples}
}

func (b *Buffer) Seq() uint64 {
	return b.seq
}

// Samples returns nil once the buffer has been moved.
func (b *Buffer) Samples() []int16 {
	return b.samples
}

func (b *Buffer) Len() int {
	return len(b.samples)
}

func (b *Buffer) Moved() bool {
	return b.samples == nil
}

func (b *Buffer) Move() *Buffer {
	owned := &Buffer{seq: b.seq, samples: b.samples}
	b.samples = nil
	return owned
}
