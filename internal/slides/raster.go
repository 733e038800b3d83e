package slides

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Rasterizer renders single page PDFs to PNG with pdftoppm.
type Rasterizer struct {
	Binary string
	DPI    int
	logger *zap.Logger
}

// NewRasterizer returns a pdftoppm rasterizer at dpi.
func NewRasterizer(dpi int, logger *zap.Logger) *Rasterizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Rasterizer{Binary: "pdftoppm", DPI: dpi, logger: logger}
}

func (r *Rasterizer) args(pdfPath, pngPath string) []string {
	return []string{"-png", "-r", fmt.Sprintf("%d", r.DPI), "-singlefile", pdfPath, strings.TrimSuffix(pngPath, ".png")}
}

// Rasterize writes the first page of pdfPath to pngPath. An existing PNG is
// kept and reported as skipped.
func (r *Rasterizer) Rasterize(ctx context.Context, pdfPath, pngPath string) (skipped bool, err error) {
	if _, err := os.Stat(pngPath); err == nil {
		r.logger.Info("skipping already converted slide", zap.String("slide", filepath.Base(pdfPath)))
		return true, nil
	}
	if err := os.MkdirAll(filepath.Dir(pngPath), 0755); err != nil {
		return false, errors.Wrap(err, "create images directory")
	}
	cmd := exec.CommandContext(ctx, r.Binary, r.args(pdfPath, pngPath)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return false, errors.Wrapf(err, "pdftoppm %s: %s", pdfPath, strings.TrimSpace(stderr.String()))
	}
	r.logger.Info("converted slide", zap.String("slide", filepath.Base(pdfPath)), zap.String("image", pngPath))
	return false, nil
}

// Images maps slide files to still images in imagesDir, rasterizing PDFs and
// passing image files through unchanged.
func (r *Rasterizer) Images(ctx context.Context, slideFiles []string, imagesDir string) ([]string, error) {
	images := make([]string, 0, len(slideFiles))
	for _, slide := range slideFiles {
		if !strings.EqualFold(filepath.Ext(slide), ".pdf") {
			abs, err := filepath.Abs(slide)
			if err != nil {
				return nil, errors.WithStack(err)
			}
			images = append(images, abs)
			continue
		}
		base := strings.TrimSuffix(filepath.Base(slide), filepath.Ext(slide))
		png := filepath.Join(imagesDir, base+".png")
		if _, err := r.Rasterize(ctx, slide, png); err != nil {
			return nil, err
		}
		abs, err := filepath.Abs(png)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		images = append(images, abs)
	}
	return images, nil
}
