// Package dimension parses compact "WxH" size strings.
package dimension

import (
	"fmt"
	"strconv"
	"strings"
)

// PixelsPerRem is the divisor used for rem conversions.
const PixelsPerRem = 16

// Dimension is a width and height in pixels.
type Dimension struct {
	Width  int
	Height int
}

// Parse reads "1920x1080". ok is false for anything that is not two
// non-negative integers separated by a single 'x'.
func Parse(s string) (Dimension, bool) {
	w, h, found := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !found {
		return Dimension{}, false
	}

	width, err := strconv.Atoi(strings.TrimSpace(w))
	if err != nil || width < 0 {
		return Dimension{}, false
	}
	height, err := strconv.Atoi(strings.TrimSpace(h))
	if err != nil || height < 0 {
		return Dimension{}, false
	}

	return Dimension{Width: width, Height: height}, true
}

// AspectRatio returns the reduced ratio, e.g. "16:9". A zero side yields "0:0".
func (d Dimension) AspectRatio() string {
	g := gcd(d.Width, d.Height)
	if g == 0 {
		return "0:0"
	}
	return fmt.Sprintf("%d:%d", d.Width/g, d.Height/g)
}

// AspectDecimal returns width/height, or 0 when height is 0.
func (d Dimension) AspectDecimal() float64 {
	if d.Height == 0 {
		return 0
	}
	return float64(d.Width) / float64(d.Height)
}

func (d Dimension) WidthRem() float64  { return float64(d.Width) / PixelsPerRem }
func (d Dimension) HeightRem() float64 { return float64(d.Height) / PixelsPerRem }

// FullSize is the pixel count.
func (d Dimension) FullSize() int { return d.Width * d.Height }

func (d Dimension) String() string {
	return fmt.Sprintf("%dx%d", d.Width, d.Height)
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
