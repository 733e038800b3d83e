// Package imaging holds the per-frame pixel operations: region masks, colour
// keying and preview outlines.
package imaging

import (
	"fmt"
	"image"
	"math"
	"strconv"
	"strings"
)

// ParsePoint reads "x,y" into a point.
func ParsePoint(s string) (image.Point, error) {
	xs, ys, ok := strings.Cut(strings.TrimSpace(s), ",")
	if !ok {
		return image.Point{}, fmt.Errorf("point %q must be x,y", s)
	}
	x, err := strconv.Atoi(strings.TrimSpace(xs))
	if err != nil {
		return image.Point{}, fmt.Errorf("point %q: bad x: %w", s, err)
	}
	y, err := strconv.Atoi(strings.TrimSpace(ys))
	if err != nil {
		return image.Point{}, fmt.Errorf("point %q: bad y: %w", s, err)
	}
	if x < 0 || y < 0 {
		return image.Point{}, fmt.Errorf("point %q must not be negative", s)
	}
	return image.Point{X: x, Y: y}, nil
}

// Selection is a drag from Start to End on the first frame.
type Selection struct {
	Start image.Point
	End   image.Point
}

// NewSelection parses two "x,y" points.
func NewSelection(from, to string) (Selection, error) {
	start, err := ParsePoint(from)
	if err != nil {
		return Selection{}, err
	}
	end, err := ParsePoint(to)
	if err != nil {
		return Selection{}, err
	}
	return Selection{Start: start, End: end}, nil
}

// Circle returns the midpoint of the drag and half its length.
func (s Selection) Circle() (center image.Point, radius int) {
	center = image.Point{
		X: (s.Start.X + s.End.X) / 2,
		Y: (s.Start.Y + s.End.Y) / 2,
	}
	dx := float64(s.End.X - s.Start.X)
	dy := float64(s.End.Y - s.Start.Y)
	radius = int(math.Hypot(dx, dy) / 2)
	return center, radius
}

// Rect returns the rectangle spanned by the drag.
func (s Selection) Rect() image.Rectangle {
	return image.Rectangle{Min: s.Start, Max: s.End}.Canon()
}

// onFrame reports whether p lies inside bounds or on its right or bottom edge.
// Selection points are corners, so the far edge is reachable.
func onFrame(p image.Point, bounds image.Rectangle) bool {
	return p.X >= bounds.Min.X && p.X <= bounds.Max.X &&
		p.Y >= bounds.Min.Y && p.Y <= bounds.Max.Y
}

// Validate checks the selection is usable against a frame of the given size.
func (s Selection) Validate(shape string, bounds image.Rectangle) error {
	switch shape {
	case "circle":
		_, r := s.Circle()
		if r <= 0 {
			return fmt.Errorf("circle radius is zero, pick two distinct points")
		}
	case "square":
		if s.Rect().Empty() {
			return fmt.Errorf("crop rectangle %v has no area", s.Rect())
		}
	default:
		return fmt.Errorf("unknown shape %q (circle, square)", shape)
	}
	if !onFrame(s.Start, bounds) || !onFrame(s.End, bounds) {
		return fmt.Errorf("selection %v-%v is outside the %dx%d frame", s.Start, s.End, bounds.Dx(), bounds.Dy())
	}
	return nil
}
