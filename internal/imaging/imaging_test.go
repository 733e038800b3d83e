package imaging

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func filled(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestSelectionCircle(t *testing.T) {
	sel, err := NewSelection("10,10", "40,50")
	require.NoError(t, err)
	center, radius := sel.Circle()
	assert.Equal(t, image.Pt(25, 30), center)
	assert.Equal(t, 25, radius)
}

func TestSelectionRectIsCanonical(t *testing.T) {
	sel := Selection{Start: image.Pt(50, 60), End: image.Pt(10, 20)}
	assert.Equal(t, image.Rect(10, 20, 50, 60), sel.Rect())
}

func TestParsePointErrors(t *testing.T) {
	for _, in := range []string{"", "12", "a,3", "3,b", "-1,4"} {
		_, err := ParsePoint(in)
		assert.Error(t, err, in)
	}
	p, err := ParsePoint(" 7 , 9 ")
	require.NoError(t, err)
	assert.Equal(t, image.Pt(7, 9), p)
}

func TestSelectionValidate(t *testing.T) {
	bounds := image.Rect(0, 0, 100, 100)
	same := Selection{Start: image.Pt(5, 5), End: image.Pt(5, 5)}
	assert.Error(t, same.Validate("circle", bounds))
	assert.Error(t, same.Validate("square", bounds))

	outside := Selection{Start: image.Pt(5, 5), End: image.Pt(150, 20)}
	assert.Error(t, outside.Validate("square", bounds))

	ok := Selection{Start: image.Pt(5, 5), End: image.Pt(50, 60)}
	assert.NoError(t, ok.Validate("circle", bounds))
	assert.Error(t, ok.Validate("hexagon", bounds))

	edge := Selection{Start: image.Pt(60, 40), End: image.Pt(100, 100)}
	assert.NoError(t, edge.Validate("square", bounds))
	assert.Equal(t, image.Rect(60, 40, 100, 100), edge.Rect())

	reversed := Selection{Start: image.Pt(100, 100), End: image.Pt(0, 0)}
	assert.NoError(t, reversed.Validate("circle", bounds))

	past := Selection{Start: image.Pt(60, 40), End: image.Pt(101, 100)}
	assert.Error(t, past.Validate("square", bounds))
}

func TestApplyCircleMask(t *testing.T) {
	frame := filled(21, 21, color.RGBA{R: 200, G: 100, B: 50, A: 255})
	ApplyCircleMask(frame, image.Pt(10, 10), 5)

	assert.Equal(t, color.RGBA{R: 200, G: 100, B: 50, A: 255}, frame.RGBAAt(10, 10))
	assert.Equal(t, color.RGBA{R: 200, G: 100, B: 50, A: 255}, frame.RGBAAt(15, 10))
	assert.Equal(t, color.RGBA{A: 255}, frame.RGBAAt(16, 10))
	assert.Equal(t, color.RGBA{A: 255}, frame.RGBAAt(0, 0))
}

func TestKeyOutThreshold(t *testing.T) {
	frame := image.NewRGBA(image.Rect(0, 0, 4, 1))
	frame.SetRGBA(0, 0, color.RGBA{A: 255})                         // exact key
	frame.SetRGBA(1, 0, color.RGBA{R: 20, G: 20, B: 20, A: 255})    // on the edge
	frame.SetRGBA(2, 0, color.RGBA{R: 21, G: 0, B: 0, A: 255})      // one channel out
	frame.SetRGBA(3, 0, color.RGBA{R: 255, G: 255, B: 255, A: 255}) // far away

	out := KeyOut(frame, color.RGBA{}, 20)
	assert.Equal(t, uint8(0), out.NRGBAAt(0, 0).A)
	assert.Equal(t, uint8(0), out.NRGBAAt(1, 0).A)
	assert.Equal(t, uint8(255), out.NRGBAAt(2, 0).A)
	assert.Equal(t, uint8(255), out.NRGBAAt(3, 0).A)
	assert.Equal(t, uint8(21), out.NRGBAAt(2, 0).R)
}

func TestKeyOutClampsRange(t *testing.T) {
	frame := filled(1, 1, color.RGBA{R: 255, G: 250, B: 240, A: 255})
	out := KeyOut(frame, color.RGBA{R: 250, G: 250, B: 250}, 10)
	assert.Equal(t, uint8(0), out.NRGBAAt(0, 0).A)
}

func TestParseHexColor(t *testing.T) {
	c, err := ParseHexColor("#00ff80")
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{G: 255, B: 128, A: 255}, c)

	_, err = ParseHexColor("#fff")
	assert.Error(t, err)
	_, err = ParseHexColor("zzzzzz")
	assert.Error(t, err)
}

func TestFlattenOnWhite(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	src.SetNRGBA(0, 0, color.NRGBA{R: 255, A: 255})
	assert.True(t, HasTransparency(src))

	out := FlattenOnWhite(src)
	assert.Equal(t, color.RGBA{R: 255, A: 255}, out.RGBAAt(0, 0))
	assert.Equal(t, color.RGBA{R: 255, G: 255, B: 255, A: 255}, out.RGBAAt(1, 0))
	assert.False(t, HasTransparency(out))
}

func TestOutlinesDoNotTouchSource(t *testing.T) {
	frame := filled(20, 20, color.RGBA{A: 255})
	ring := DrawCircleOutline(frame, image.Pt(10, 10), 5)
	assert.Equal(t, color.RGBA{R: 255, G: 255, B: 255, A: 255}, ring.RGBAAt(15, 10))
	assert.Equal(t, color.RGBA{A: 255}, ring.RGBAAt(10, 10))
	assert.Equal(t, color.RGBA{A: 255}, frame.RGBAAt(15, 10))

	box := DrawRectOutline(frame, image.Rect(2, 2, 12, 12))
	assert.Equal(t, color.RGBA{R: 255, G: 255, B: 255, A: 255}, box.RGBAAt(2, 5))
	assert.Equal(t, color.RGBA{A: 255}, box.RGBAAt(6, 6))
}
