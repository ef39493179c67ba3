package visualizer

import (
	"math"
	"time"

	"github.com/rumbleFTW/koe-app/internal/audio"
)

const (
	RingSize          = 256
	AnimationDuration = 500 * time.Millisecond

	widthInactive     = 3.0
	widthActive       = 5.0
	scaleConnected    = 1.0
	scaleDisconnected = 0.8
	playSizeRatio     = 0.2
)

// State is the per-engine animation state. Step derives a new State from
// the previous one without mutating it.
type State struct {
	Ring       [RingSize]float32
	WriteIndex int
	Progress   float64
	AnimFrom   float64
	AnimStart  time.Time
	AnimTarget float64
}

type Input struct {
	Now        time.Time
	Frequency  []float32
	TimeDomain []float32
	Connected  bool
}

func NewState(connected bool) State {
	p := 0.0
	if connected {
		p = 1
	}
	return State{Progress: p, AnimFrom: p, AnimTarget: p}
}

// Volume maps a spectrum in dBFS to [0, 1].
func Volume(freq []float32) float64 {
	db := audio.MeanDecibels(freq)
	return (max(audio.MinDecibels, db) - audio.MinDecibels) / -audio.MinDecibels
}

func Step(prev State, in Input) State {
	next := prev

	vol := Volume(in.Frequency)
	n := int(math.Ceil(1 + vol*10))
	for i := 0; i < n; i++ {
		var sample float32
		if i < len(in.TimeDomain) {
			sample = in.TimeDomain[i]
		}
		next.Ring[next.WriteIndex] = sample
		next.WriteIndex = (next.WriteIndex + 1) % RingSize
	}

	target := 0.0
	if in.Connected {
		target = 1
	}
	if target != next.AnimTarget {
		next.AnimFrom = next.Progress
		next.AnimStart = in.Now
		next.AnimTarget = target
	}

	t := 1.0
	if !next.AnimStart.IsZero() {
		t = min(float64(in.Now.Sub(next.AnimStart))/float64(AnimationDuration), 1)
		t = max(t, 0)
	}
	if t >= 1 {
		next.Progress = next.AnimTarget
	} else {
		next.Progress = next.AnimFrom + easeInOutCubic(t)*(next.AnimTarget-next.AnimFrom)
	}
	return next
}

func easeInOutCubic(t float64) float64 {
	if t < 0.5 {
		return 4 * t * t * t
	}
	return 1 - math.Pow(-2*t+2, 3)/2
}

// RadiusNorm maps a time-domain sample to a radius factor in [0.6, 1].
func RadiusNorm(x float64) float64 {
	return 0.8 + 0.2*math.Tanh(2*x)
}

func Scale(progress float64) float64 {
	return scaleDisconnected + (scaleConnected-scaleDisconnected)*progress
}

// StrokeWidth widens the outline briefly after an interruption.
func StrokeWidth(active bool, sinceInterruption time.Duration) float64 {
	base := widthInactive
	if active {
		base = widthActive
	}
	s := sinceInterruption.Seconds()
	return max(base, widthInactive*(1+2*math.Exp(-math.Pow(3*s, 2))))
}

// PlayOpacity fades the play overlay out as the engine connects.
func PlayOpacity(progress float64) float64 {
	return max(0, 1-progress)
}
