package audio

import "sync"

const defaultMixerCapacity = 24000 * 2

// Mixer is the combined destination: every track feeds PCM in, and a single
// consumer reads the sample-wise sum. Each track keeps at most maxBuffered
// samples, dropping the oldest beyond that.
type Mixer struct {
	mu          sync.Mutex
	maxBuffered int
	tracks      []*Track
}

type Track struct {
	name    string
	mixer   *Mixer
	pending []int16
}

func NewMixer(maxBuffered int) *Mixer {
	if maxBuffered <= 0 {
		maxBuffered = defaultMixerCapacity
	}
	return &Mixer{maxBuffered: maxBuffered}
}

func (m *Mixer) NewTrack(name string) *Track {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := &Track{name: name, mixer: m}
	m.tracks = append(m.tracks, t)
	return t
}

func (t *Track) Name() string {
	return t.name
}

func (t *Track) Write(samples []int16) {
	m := t.mixer
	m.mu.Lock()
	defer m.mu.Unlock()

	t.pending = append(t.pending, samples...)
	if over := len(t.pending) - m.maxBuffered; over > 0 {
		t.pending = append(t.pending[:0], t.pending[over:]...)
	}
}

// Read returns exactly n mixed samples. Tracks that are short contribute
// silence for the missing tail.
func (m *Mixer) Read(n int) []int16 {
	out := make([]int16, n)

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, t := range m.tracks {
		take := min(n, len(t.pending))
		MixInto(out[:take], t.pending[:take])
		t.pending = t.pending[take:]
	}
	return out
}

func (m *Mixer) Buffered() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	most := 0
	for _, t := range m.tracks {
		most = max(most, len(t.pending))
	}
	return most
}

func (m *Mixer) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, t := range m.tracks {
		t.pending = nil
	}
}
