package audio

import (
	"math"
	"math/cmplx"
	"sync"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

const (
	DefaultFFTSize   = 2048
	DefaultSmoothing = 0.85
	MinDecibels      = -100.0

	// floorDecibels stands in for -Inf on bins with no energy.
	floorDecibels = -200.0
)

// Analyser is a read-only tap on a PCM stream. Producers call Write from their
// own goroutine, which is also where the spectrum is computed; readers only
// copy the latest snapshot.
type Analyser struct {
	mu        sync.RWMutex
	fftSize   int
	smoothing float64
	window    []float64

	history []float32
	pos     int
	filled  int

	smoothed []float64
	freq     []float32
}

func NewAnalyser(fftSize int, smoothing float64) *Analyser {
	if fftSize <= 0 || fftSize&(fftSize-1) != 0 {
		fftSize = DefaultFFTSize
	}
	if smoothing < 0 || smoothing >= 1 {
		smoothing = DefaultSmoothing
	}

	a := &Analyser{
		fftSize:   fftSize,
		smoothing: smoothing,
		window:    window.Blackman(fftSize),
		history:   make([]float32, fftSize),
		smoothed:  make([]float64, fftSize/2),
		freq:      make([]float32, fftSize/2),
	}
	for i := range a.freq {
		a.freq[i] = floorDecibels
	}
	return a
}

func (a *Analyser) FFTSize() int {
	return a.fftSize
}

func (a *Analyser) FrequencyBinCount() int {
	return a.fftSize / 2
}

func (a *Analyser) Write(samples []int16) {
	if len(samples) == 0 {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for _, s := range samples {
		a.history[a.pos] = float32(s) / 32768.0
		a.pos = (a.pos + 1) % a.fftSize
	}
	a.filled = min(a.filled+len(samples), a.fftSize)
	a.computeSpectrum()
}

func (a *Analyser) computeSpectrum() {
	frame := make([]float64, a.fftSize)
	for i := 0; i < a.fftSize; i++ {
		frame[i] = float64(a.history[(a.pos+i)%a.fftSize]) * a.window[i]
	}

	spectrum := fft.FFTReal(frame)
	n := float64(a.fftSize)
	for k := range a.smoothed {
		mag := cmplx.Abs(spectrum[k]) / n
		a.smoothed[k] = a.smoothing*a.smoothed[k] + (1-a.smoothing)*mag
		if a.smoothed[k] <= 0 {
			a.freq[k] = floorDecibels
			continue
		}
		a.freq[k] = float32(math.Max(floorDecibels, 20*math.Log10(a.smoothed[k])))
	}
}

// FrequencyData copies the smoothed spectrum in dBFS into dst.
func (a *Analyser) FrequencyData(dst []float32) int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return copy(dst, a.freq)
}

// TimeDomainData copies the most recent len(dst) samples, oldest first.
func (a *Analyser) TimeDomainData(dst []float32) int {
	a.mu.RLock()
	defer a.mu.RUnlock()

	n := min(len(dst), a.fftSize)
	start := a.pos - n
	if start < 0 {
		start += a.fftSize
	}
	for i := 0; i < n; i++ {
		dst[i] = a.history[(start+i)%a.fftSize]
	}
	return n
}

func (a *Analyser) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	clear(a.history)
	clear(a.smoothed)
	for i := range a.freq {
		a.freq[i] = floorDecibels
	}
	a.pos = 0
	a.filled = 0
}

func MeanDecibels(freq []float32) float64 {
	if len(freq) == 0 {
		return MinDecibels
	}
	var sum float64
	for _, v := range freq {
		sum += float64(v)
	}
	return sum / float64(len(freq))
}
