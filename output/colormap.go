package output

import (
	"fmt"
	"image/color"
	"math"
	"strings"
)

// Colormap interpolates linearly between evenly spaced color stops.
type Colormap struct {
	Name  string
	stops []color.RGBA
}

var (
	Greens = Colormap{Name: "Greens", stops: []color.RGBA{
		{247, 252, 245, 255}, {229, 245, 224, 255}, {199, 233, 192, 255},
		{161, 217, 155, 255}, {116, 196, 118, 255}, {65, 171, 93, 255},
		{35, 139, 69, 255}, {0, 109, 44, 255}, {0, 68, 27, 255},
	}}
	RdYlGn = Colormap{Name: "RdYlGn", stops: []color.RGBA{
		{165, 0, 38, 255}, {215, 48, 39, 255}, {244, 109, 67, 255},
		{253, 174, 97, 255}, {254, 224, 139, 255}, {255, 255, 191, 255},
		{217, 239, 139, 255}, {166, 217, 106, 255}, {102, 189, 99, 255},
		{26, 152, 80, 255}, {0, 104, 55, 255},
	}}
)

// NoDataColor is used for NaN samples.
var NoDataColor = color.RGBA{255, 255, 255, 0}

func ParseColormap(name string) (Colormap, error) {
	switch strings.ToLower(name) {
	case "", "greens":
		return Greens, nil
	case "rdylgn":
		return RdYlGn, nil
	}
	return Colormap{}, fmt.Errorf("unknown colormap %q", name)
}

// At maps v, clamped to [vmin, vmax], onto the colormap. NaN and ±Inf are
// no data.
func (c Colormap) At(v, vmin, vmax float64) color.RGBA {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return NoDataColor
	}
	t := 0.0
	if vmax > vmin {
		t = (v - vmin) / (vmax - vmin)
	}
	t = math.Max(0, math.Min(1, t))

	pos := t * float64(len(c.stops)-1)
	i := int(math.Floor(pos))
	if i >= len(c.stops)-1 {
		return c.stops[len(c.stops)-1]
	}
	f := pos - float64(i)
	a, b := c.stops[i], c.stops[i+1]
	lerp := func(x, y uint8) uint8 {
		return uint8(math.Round(float64(x) + f*(float64(y)-float64(x))))
	}
	return color.RGBA{lerp(a.R, b.R), lerp(a.G, b.G), lerp(a.B, b.B), 255}
}
