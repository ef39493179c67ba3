package recording

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"time"

	"github.com/rumbleFTW/koe-app/internal/shared"
	"github.com/rumbleFTW/koe-app/internal/visualizer"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	DefaultSize     = 1080
	DefaultBranding = "koe"

	// brandHeight is the rendered text height on a 1080 canvas.
	brandHeight = 80
)

// canvas composes one recording frame: background, branding, optional logo
// and the two visualizer circles.
type canvas struct {
	size       int
	img        *image.RGBA
	background color.RGBA
	brand      *image.RGBA
	brandAt    image.Point
	logo       *image.RGBA
	logoAt     image.Point
	engines    []*visualizer.Engine
}

func newCanvas(size int, branding string, logo image.Image, colors visualizer.Colors, src Sources) *canvas {
	s := float64(size)
	c := &canvas{
		size:       size,
		img:        image.NewRGBA(image.Rect(0, 0, size, size)),
		background: colors.Background,
	}

	if branding != "" {
		c.brand = renderText(branding, int(math.Round(brandHeight*s/DefaultSize)))
		b := c.brand.Bounds()
		c.brandAt = image.Pt(int(0.7*s)-b.Dx()/2, int(0.1*s)-b.Dy()/2)
	}

	if logo != nil {
		lb := logo.Bounds()
		w := int(0.25 * s)
		h := int(float64(lb.Dy()) / float64(lb.Dx()) * float64(w))
		c.logo = image.NewRGBA(image.Rect(0, 0, w, h))
		draw.CatmullRom.Scale(c.logo, c.logo.Bounds(), logo, lb, draw.Over, nil)
		c.logoAt = image.Pt(int(0.745*s)-w/2, int(0.1*s+50*s/DefaultSize))
	}

	assistant := visualizer.Sources{
		Analyser:  src.OutputAnalyser,
		History:   src.History,
		Connected: alwaysConnected,
	}
	user := visualizer.Sources{
		Analyser:     src.InputAnalyser,
		History:      src.History,
		Interruption: src.Interruption,
		Connected:    alwaysConnected,
	}

	c.engines = []*visualizer.Engine{
		visualizer.NewEngine(visualizer.Options{
			Role:      shared.RoleAssistant,
			Color:     colors.Assistant,
			Placement: visualizer.Placement{CenterX: 0.33 * s, CenterY: 0.38 * s, Radius: 0.3 * s},
		}, assistant),
		visualizer.NewEngine(visualizer.Options{
			Role:      shared.RoleUser,
			Color:     colors.User,
			Placement: visualizer.Placement{CenterX: 0.7 * s, CenterY: 0.67 * s, Radius: 0.2 * s},
		}, user),
	}
	return c
}

func alwaysConnected() bool { return true }

func (c *canvas) compose(now time.Time) *image.RGBA {
	draw.Draw(c.img, c.img.Bounds(), image.NewUniform(c.background), image.Point{}, draw.Src)
	if c.brand != nil {
		draw.Draw(c.img, c.brand.Bounds().Add(c.brandAt), c.brand, image.Point{}, draw.Over)
	}
	if c.logo != nil {
		draw.Draw(c.img, c.logo.Bounds().Add(c.logoAt), c.logo, image.Point{}, draw.Over)
	}
	for _, e := range c.engines {
		e.Tick(now)
		e.Draw(c.img)
	}
	return c.img
}

// renderText draws text in white with the built-in bitmap face and scales
// it up to the requested height.
func renderText(text string, height int) *image.RGBA {
	face := basicfont.Face7x13
	width := font.MeasureString(face, text).Ceil()
	metrics := face.Metrics()
	small := image.NewRGBA(image.Rect(0, 0, width, metrics.Height.Ceil()))

	d := font.Drawer{
		Dst:  small,
		Src:  image.White,
		Face: face,
		Dot:  fixed.P(0, metrics.Ascent.Ceil()),
	}
	d.DrawString(text)

	if height <= 0 {
		return small
	}
	sb := small.Bounds()
	scaled := image.NewRGBA(image.Rect(0, 0, sb.Dx()*height/sb.Dy(), height))
	draw.NearestNeighbor.Scale(scaled, scaled.Bounds(), small, sb, draw.Src, nil)
	return scaled
}

func loadLogo(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open logo: %w", err)
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode logo: %w", err)
	}
	return img, nil
}
