package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"os/exec"

	"github.com/pkg/errors"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// FrameReader decodes a video into RGB frames through an ffmpeg pipe.
type FrameReader struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr bytes.Buffer
	width  int
	height int
	buf    []byte
	done   bool
}

func frameReaderStream(inputPath string, limit float64) *ffmpeg.Stream {
	kwargs := ffmpeg.KwArgs{
		"format":  "rawvideo",
		"pix_fmt": "rgb24",
		"an":      "",
	}
	if limit > 0 {
		kwargs["t"] = fmt.Sprintf("%.3f", limit)
	}
	return ffmpeg.Input(inputPath).Output("pipe:", kwargs)
}

// OpenFrameReader starts decoding inputPath. width and height must match the
// source; limit stops after that many seconds when positive.
func (p *Processor) OpenFrameReader(ctx context.Context, inputPath string, width, height int, limit float64) (*FrameReader, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", width, height)
	}
	r := &FrameReader{
		width:  width,
		height: height,
		buf:    make([]byte, width*height*3),
	}
	r.cmd = p.command(ctx, frameReaderStream(inputPath, limit))
	r.cmd.Stderr = &r.stderr

	stdout, err := r.cmd.StdoutPipe()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	r.stdout = stdout
	if err := r.cmd.Start(); err != nil {
		return nil, errors.Wrap(err, "start ffmpeg decoder")
	}
	return r, nil
}

// Next returns the next frame, or io.EOF after the last one.
func (r *FrameReader) Next() (*image.RGBA, error) {
	if r.done {
		return nil, io.EOF
	}
	if _, err := io.ReadFull(r.stdout, r.buf); err != nil {
		r.done = true
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, errors.Wrap(err, "read frame")
	}
	return rgbToImage(r.buf, r.width, r.height), nil
}

// Close stops the decoder. Exit errors caused by stopping early are ignored.
func (r *FrameReader) Close() error {
	_ = r.stdout.Close()
	err := r.cmd.Wait()
	if err != nil && r.done {
		return errors.Wrapf(err, "ffmpeg decoder: %s", stderrTail(r.stderr.String()))
	}
	return nil
}

// FrameWriter encodes RGB frames into a video through an ffmpeg pipe.
type FrameWriter struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr bytes.Buffer
	width  int
	height int
	buf    []byte
}

func frameWriterStream(outputPath string, width, height int, fps float64) *ffmpeg.Stream {
	return ffmpeg.Input("pipe:", ffmpeg.KwArgs{
		"format":    "rawvideo",
		"pix_fmt":   "rgb24",
		"s":         fmt.Sprintf("%dx%d", width, height),
		"framerate": fmt.Sprintf("%g", fps),
	}).Output(outputPath, ffmpeg.KwArgs{
		"c:v":     "libx264",
		"pix_fmt": "yuv420p",
		"threads": GetOptimalThreadCount(),
	})
}

// OpenFrameWriter starts an encoder writing outputPath.
func (p *Processor) OpenFrameWriter(ctx context.Context, outputPath string, width, height int, fps float64) (*FrameWriter, error) {
	if width <= 0 || height <= 0 || fps <= 0 {
		return nil, fmt.Errorf("invalid encoder settings %dx%d@%g", width, height, fps)
	}
	w := &FrameWriter{
		width:  width,
		height: height,
		buf:    make([]byte, width*height*3),
	}
	w.cmd = p.command(ctx, frameWriterStream(outputPath, width, height, fps))
	w.cmd.Stderr = &w.stderr

	stdin, err := w.cmd.StdinPipe()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	w.stdin = stdin
	if err := w.cmd.Start(); err != nil {
		return nil, errors.Wrap(err, "start ffmpeg encoder")
	}
	return w, nil
}

// Write encodes one frame. The frame must have the writer's dimensions.
func (w *FrameWriter) Write(img image.Image) error {
	b := img.Bounds()
	if b.Dx() != w.width || b.Dy() != w.height {
		return fmt.Errorf("frame is %dx%d, encoder expects %dx%d", b.Dx(), b.Dy(), w.width, w.height)
	}
	imageToRGB(img, w.buf)
	if _, err := w.stdin.Write(w.buf); err != nil {
		return errors.Wrapf(err, "write frame: %s", stderrTail(w.stderr.String()))
	}
	return nil
}

// Close flushes the encoder and waits for it to finish.
func (w *FrameWriter) Close() error {
	if err := w.stdin.Close(); err != nil {
		return errors.WithStack(err)
	}
	if err := w.cmd.Wait(); err != nil {
		return errors.Wrapf(err, "ffmpeg encoder: %s", stderrTail(w.stderr.String()))
	}
	return nil
}

func rgbToImage(buf []byte, width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i, j := 0, 0; i < len(buf); i, j = i+3, j+4 {
		img.Pix[j] = buf[i]
		img.Pix[j+1] = buf[i+1]
		img.Pix[j+2] = buf[i+2]
		img.Pix[j+3] = 0xff
	}
	return img
}

func imageToRGB(img image.Image, buf []byte) {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Stride == rgba.Rect.Dx()*4 {
		for i, j := 0, 0; j < len(rgba.Pix); i, j = i+3, j+4 {
			buf[i] = rgba.Pix[j]
			buf[i+1] = rgba.Pix[j+1]
			buf[i+2] = rgba.Pix[j+2]
		}
		return
	}
	b := img.Bounds()
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			buf[i] = uint8(r >> 8)
			buf[i+1] = uint8(g >> 8)
			buf[i+2] = uint8(bl >> 8)
			i += 3
		}
	}
}
