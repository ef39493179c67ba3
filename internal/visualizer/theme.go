package visualizer

import (
	"fmt"
	"image/color"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/rumbleFTW/koe-app/internal/shared"
	"golang.org/x/image/colornames"
)

type Colors struct {
	Assistant  color.RGBA
	User       color.RGBA
	Background color.RGBA
}

func DefaultColors() Colors {
	return Colors{
		Assistant:  color.RGBA{R: 0x39, G: 0xf2, B: 0xae, A: 0xff},
		User:       colornames.White,
		Background: colornames.Black,
	}
}

func (c Colors) ForRole(role shared.Role) color.RGBA {
	if role == shared.RoleAssistant {
		return c.Assistant
	}
	return c.User
}

var customProperty = regexp.MustCompile(`--([A-Za-z0-9-]+)\s*:\s*([^;]+);`)

// LoadTheme reads CSS custom properties from path. Unknown properties are
// ignored; a missing file or an unparsable value keeps the default.
func LoadTheme(path string, log *slog.Logger) Colors {
	if log == nil {
		log = slog.Default()
	}
	colors := DefaultColors()
	if path == "" {
		return colors
	}

	data, err := os.ReadFile(path)
	if err != nil {
		log.Warn("theme not loaded, using default colors", "path", path, "error", err)
		return colors
	}

	targets := map[string]*color.RGBA{
		"color-green":      &colors.Assistant,
		"color-white":      &colors.User,
		"color-background": &colors.Background,
	}
	for _, m := range customProperty.FindAllStringSubmatch(string(data), -1) {
		dst, ok := targets[m[1]]
		if !ok {
			continue
		}
		c, err := ParseColor(m[2])
		if err != nil {
			log.Warn("bad theme color, keeping default", "name", m[1], "error", err)
			continue
		}
		*dst = c
	}
	return colors
}

// ParseColor accepts #rgb, #rrggbb, #rrggbbaa or an SVG color name.
func ParseColor(v string) (color.RGBA, error) {
	v = strings.ToLower(strings.TrimSpace(v))
	if c, ok := colornames.Map[v]; ok {
		return c, nil
	}
	if !strings.HasPrefix(v, "#") {
		return color.RGBA{}, fmt.Errorf("unknown color %q", v)
	}

	hex := v[1:]
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) == 6 {
		hex += "ff"
	}
	if len(hex) != 8 {
		return color.RGBA{}, fmt.Errorf("bad hex color %q", v)
	}
	n, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("bad hex color %q: %w", v, err)
	}
	return color.RGBA{R: uint8(n >> 24), G: uint8(n >> 16), B: uint8(n >> 8), A: uint8(n)}, nil
}
