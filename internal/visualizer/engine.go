package visualizer

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"math"
	"sync"
	"time"

	"github.com/rumbleFTW/koe-app/internal/audio"
	"github.com/rumbleFTW/koe-app/internal/chat"
	"github.com/rumbleFTW/koe-app/internal/shared"
	"golang.org/x/image/vector"
)

const (
	DefaultFPS = 30

	timeDomainSize = audio.DefaultFFTSize / 8
)

// Placement is the circle's center and base radius in canvas pixels. The
// zero value centers the circle and fills the canvas.
type Placement struct {
	CenterX float64
	CenterY float64
	Radius  float64
}

func (p Placement) resolve(bounds image.Rectangle) Placement {
	if p.Radius > 0 {
		return p
	}
	w, h := float64(bounds.Dx()), float64(bounds.Dy())
	return Placement{
		CenterX: float64(bounds.Min.X) + w/2,
		CenterY: float64(bounds.Min.Y) + h/2,
		Radius:  min(w, h) / 2,
	}
}

// Sources are polled on every tick. Any of them may be nil: a nil analyser
// reads as silence, a nil connection source as disconnected.
type Sources struct {
	Analyser     func() *audio.Analyser
	History      func() []chat.Message
	Interruption func() time.Time
	Connected    func() bool
}

type Options struct {
	Role      shared.Role
	Color     color.RGBA
	Placement Placement
	ShowPlay  bool
	Clear     bool
}

type Engine struct {
	opts Options
	src  Sources

	mu     sync.Mutex
	state  State
	width  float64
	freq   []float32
	td     []float32
	raster *vector.Rasterizer
}

func NewEngine(opts Options, src Sources) *Engine {
	if opts.Color == (color.RGBA{}) {
		opts.Color = DefaultColors().ForRole(opts.Role)
	}
	connected := src.Connected != nil && src.Connected()
	return &Engine{
		opts:   opts,
		src:    src,
		state:  NewState(connected),
		width:  widthInactive,
		freq:   make([]float32, audio.DefaultFFTSize/2),
		td:     make([]float32, timeDomainSize),
		raster: vector.NewRasterizer(0, 0),
	}
}

func (e *Engine) Role() shared.Role {
	return e.opts.Role
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) Tick(now time.Time) {
	var a *audio.Analyser
	if e.src.Analyser != nil {
		a = e.src.Analyser()
	}
	var history []chat.Message
	if e.src.History != nil {
		history = e.src.History()
	}
	connected := e.src.Connected != nil && e.src.Connected()

	since := time.Duration(math.MaxInt64)
	if e.opts.Role == shared.RoleUser && e.src.Interruption != nil {
		if at := e.src.Interruption(); !at.IsZero() {
			since = now.Sub(at)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if a == nil {
		for i := range e.freq {
			e.freq[i] = audio.MinDecibels
		}
		clear(e.td)
	} else {
		a.FrequencyData(e.freq)
		a.TimeDomainData(e.td)
	}

	e.state = Step(e.state, Input{
		Now:        now,
		Frequency:  e.freq,
		TimeDomain: e.td,
		Connected:  connected,
	})
	e.width = StrokeWidth(chat.IsActive(history, e.opts.Role), since)
}

// Run ticks at fps until ctx is done.
func (e *Engine) Run(ctx context.Context, fps int) {
	if fps <= 0 {
		fps = DefaultFPS
	}
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			e.Tick(now)
		}
	}
}

// Draw renders the current state onto dst.
func (e *Engine) Draw(dst *image.RGBA) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p := e.opts.Placement.resolve(dst.Bounds())
	reach := p.Radius + e.width
	box := image.Rect(
		int(math.Floor(p.CenterX-reach)), int(math.Floor(p.CenterY-reach)),
		int(math.Ceil(p.CenterX+reach)), int(math.Ceil(p.CenterY+reach)),
	).Intersect(dst.Bounds())
	if box.Empty() {
		return
	}

	if e.opts.Clear {
		draw.Draw(dst, box, image.Transparent, image.Point{}, draw.Src)
	}

	e.strokeRing(dst, box, p)

	if e.opts.ShowPlay {
		if opacity := PlayOpacity(e.state.Progress); opacity > 0 {
			e.fillPlay(dst, box, p, opacity)
		}
	}
}

// Snapshot renders onto a fresh transparent size×size canvas.
func (e *Engine) Snapshot(size int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	e.Draw(img)
	return img
}

type pen struct {
	z   *vector.Rasterizer
	box image.Rectangle
}

func (p pen) clamp(x, y float64) (float32, float32) {
	x -= float64(p.box.Min.X)
	y -= float64(p.box.Min.Y)
	x = min(max(x, 0), float64(p.box.Dx()))
	y = min(max(y, 0), float64(p.box.Dy()))
	return float32(x), float32(y)
}

func (p pen) moveTo(x, y float64) { p.z.MoveTo(p.clamp(x, y)) }
func (p pen) lineTo(x, y float64) { p.z.LineTo(p.clamp(x, y)) }

// strokeRing fills the band between the contour pushed out and pulled in by
// half the stroke width. The inner contour runs backwards so the winding
// cancels inside it.
func (e *Engine) strokeRing(dst *image.RGBA, box image.Rectangle, p Placement) {
	e.raster.Reset(box.Dx(), box.Dy())
	pp := pen{z: e.raster, box: box}

	scale := Scale(e.state.Progress)
	half := e.width / 2
	radii := make([]float64, RingSize)
	for i, v := range e.state.Ring {
		radii[i] = p.Radius * RadiusNorm(float64(v)) * scale
	}

	point := func(i int, r float64) (float64, float64) {
		angle := float64(i) / RingSize * 2 * math.Pi
		return p.CenterX + r*math.Cos(angle), p.CenterY + r*math.Sin(angle)
	}

	pp.moveTo(point(0, radii[0]+half))
	for i := 1; i < RingSize; i++ {
		pp.lineTo(point(i, radii[i]+half))
	}
	e.raster.ClosePath()

	last := RingSize - 1
	pp.moveTo(point(last, max(radii[last]-half, 0)))
	for i := last - 1; i >= 0; i-- {
		pp.lineTo(point(i, max(radii[i]-half, 0)))
	}
	e.raster.ClosePath()

	e.raster.DrawOp = draw.Over
	e.raster.Draw(dst, box, image.NewUniform(e.opts.Color), image.Point{})
}

func (e *Engine) fillPlay(dst *image.RGBA, box image.Rectangle, p Placement, opacity float64) {
	e.raster.Reset(box.Dx(), box.Dy())
	pp := pen{z: e.raster, box: box}

	size := p.Radius * playSizeRatio
	pp.moveTo(p.CenterX+size/2, p.CenterY)
	pp.lineTo(p.CenterX-size/4, p.CenterY-size/2)
	pp.lineTo(p.CenterX-size/4, p.CenterY+size/2)
	e.raster.ClosePath()

	c := e.opts.Color
	fill := color.NRGBA{R: c.R, G: c.G, B: c.B, A: uint8(math.Round(255 * opacity))}
	e.raster.DrawOp = draw.Over
	e.raster.Draw(dst, box, image.NewUniform(fill), image.Point{})
}
