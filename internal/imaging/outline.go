package imaging

import (
	"image"
	"image/color"
	"image/draw"
)

var outlineColor = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}

const outlineWidth = 2

// DrawCircleOutline returns a copy of frame with a 2px white ring.
func DrawCircleOutline(frame image.Image, center image.Point, radius int) *image.RGBA {
	out := cloneRGBA(frame)
	b := out.Bounds()
	inner := (radius - outlineWidth/2) * (radius - outlineWidth/2)
	outer := (radius + outlineWidth/2) * (radius + outlineWidth/2)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			dx, dy := x-center.X, y-center.Y
			d := dx*dx + dy*dy
			if d >= inner && d <= outer {
				out.SetRGBA(x, y, outlineColor)
			}
		}
	}
	return out
}

// DrawRectOutline returns a copy of frame with a 2px white border on rect.
func DrawRectOutline(frame image.Image, rect image.Rectangle) *image.RGBA {
	out := cloneRGBA(frame)
	rect = rect.Canon()
	edges := []image.Rectangle{
		image.Rect(rect.Min.X, rect.Min.Y, rect.Max.X, rect.Min.Y+outlineWidth),
		image.Rect(rect.Min.X, rect.Max.Y-outlineWidth, rect.Max.X, rect.Max.Y),
		image.Rect(rect.Min.X, rect.Min.Y, rect.Min.X+outlineWidth, rect.Max.Y),
		image.Rect(rect.Max.X-outlineWidth, rect.Min.Y, rect.Max.X, rect.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(out, e.Intersect(out.Bounds()), &image.Uniform{C: outlineColor}, image.Point{}, draw.Src)
	}
	return out
}

func cloneRGBA(src image.Image) *image.RGBA {
	b := src.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), src, b.Min, draw.Src)
	return out
}
