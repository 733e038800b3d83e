package imaging

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strconv"
	"strings"
)

// ApplyCircleMask blacks out every pixel outside the circle, in place.
func ApplyCircleMask(frame *image.RGBA, center image.Point, radius int) {
	b := frame.Bounds()
	r2 := radius * radius
	for y := b.Min.Y; y < b.Max.Y; y++ {
		dy := y - center.Y
		row := frame.Pix[(y-b.Min.Y)*frame.Stride:]
		for x := b.Min.X; x < b.Max.X; x++ {
			dx := x - center.X
			if dx*dx+dy*dy <= r2 {
				continue
			}
			i := (x - b.Min.X) * 4
			row[i], row[i+1], row[i+2] = 0, 0, 0
		}
	}
}

// KeyOut returns a copy of frame whose alpha is 0 wherever every channel is
// within threshold of key, and 255 elsewhere.
func KeyOut(frame image.Image, key color.RGBA, threshold int) *image.NRGBA {
	lo := [3]int{clamp(int(key.R) - threshold), clamp(int(key.G) - threshold), clamp(int(key.B) - threshold)}
	hi := [3]int{clamp(int(key.R) + threshold), clamp(int(key.G) + threshold), clamp(int(key.B) + threshold)}

	b := frame.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), frame, b.Min, draw.Src)

	for i := 0; i < len(out.Pix); i += 4 {
		r, g, bl := int(out.Pix[i]), int(out.Pix[i+1]), int(out.Pix[i+2])
		if r >= lo[0] && r <= hi[0] && g >= lo[1] && g <= hi[1] && bl >= lo[2] && bl <= hi[2] {
			out.Pix[i+3] = 0
		} else {
			out.Pix[i+3] = 0xff
		}
	}
	return out
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return v
}

// ParseHexColor reads "#RRGGBB" or "RRGGBB".
func ParseHexColor(s string) (color.RGBA, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) != 6 {
		return color.RGBA{}, fmt.Errorf("colour %q must be #RRGGBB", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("colour %q: %w", s, err)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
}

// FlattenOnWhite composites an image with transparency over white.
func FlattenOnWhite(src image.Image) *image.RGBA {
	b := src.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(out, out.Bounds(), src, b.Min, draw.Over)
	return out
}

// HasTransparency reports whether any pixel is not fully opaque.
func HasTransparency(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return !o.Opaque()
	}
	return true
}
