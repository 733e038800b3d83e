// Package slides turns presentation decks into timed slide videos.
package slides

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/exp/slices"
)

var (
	slideNumberRegex = regexp.MustCompile(`slide_(\d+)`)
	pageSuffixRegex  = regexp.MustCompile(`_(\d+)\.pdf$`)
)

// SlideExtensions are the files Collect picks up.
var SlideExtensions = []string{".pdf", ".jpg", ".jpeg", ".png"}

// SlideName is the file name of slide n.
func SlideName(n int, ext string) string {
	return fmt.Sprintf("slide_%d%s", n, ext)
}

// SlideNumber extracts n from a slide_n file name.
func SlideNumber(name string) (int, bool) {
	m := slideNumberRegex.FindStringSubmatch(filepath.Base(name))
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// ResolveDeck finds a deck given with or without its .pdf extension.
func ResolveDeck(path string) (string, error) {
	candidates := []string{path}
	if !strings.EqualFold(filepath.Ext(path), ".pdf") {
		candidates = append(candidates, path+".pdf")
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c, nil
		}
	}
	return "", fmt.Errorf("%s (or %s.pdf) not found", path, strings.TrimSuffix(path, ".pdf"))
}

// SplitPDFs writes every page of every deck to outDir as slide_N.pdf, with N
// continuing across decks. It returns the page count of each deck.
func SplitPDFs(decks []string, outDir string, logger *zap.Logger) ([]int, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(decks) == 0 {
		return nil, errors.New("no presentations given")
	}
	resolved := make([]string, 0, len(decks))
	for _, d := range decks {
		path, err := ResolveDeck(d)
		if err != nil {
			return nil, err
		}
		resolved = append(resolved, path)
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, errors.Wrap(err, "create slides directory")
	}

	counts := make([]int, 0, len(resolved))
	next := 1
	for _, deck := range resolved {
		pages, err := api.PageCountFile(deck)
		if err != nil {
			return counts, errors.Wrapf(err, "count pages of %s", deck)
		}
		logger.Info("splitting presentation", zap.String("deck", filepath.Base(deck)), zap.Int("pages", pages))

		tmp, err := os.MkdirTemp(outDir, ".split-")
		if err != nil {
			return counts, errors.Wrap(err, "create split directory")
		}
		if err := api.SplitFile(deck, tmp, 1, nil); err != nil {
			os.RemoveAll(tmp)
			return counts, errors.Wrapf(err, "split %s", deck)
		}
		written, err := renumberPages(tmp, outDir, next)
		os.RemoveAll(tmp)
		if err != nil {
			return counts, err
		}
		if written != pages {
			logger.Warn("page count mismatch", zap.String("deck", deck), zap.Int("pages", pages), zap.Int("written", written))
		}
		next += written
		counts = append(counts, written)
	}
	logger.Info("slides written", zap.Int("total", next-1), zap.String("dir", outDir))
	return counts, nil
}

// renumberPages moves the <base>_<page>.pdf files of one split into outDir as
// slide_<start+page-1>.pdf and returns how many were moved.
func renumberPages(splitDir, outDir string, start int) (int, error) {
	entries, err := os.ReadDir(splitDir)
	if err != nil {
		return 0, errors.Wrap(err, "read split directory")
	}
	type page struct {
		name string
		n    int
	}
	var pages []page
	for _, e := range entries {
		m := pageSuffixRegex.FindStringSubmatch(e.Name())
		if e.IsDir() || m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		pages = append(pages, page{name: e.Name(), n: n})
	}
	slices.SortFunc(pages, func(a, b page) int { return a.n - b.n })

	for i, p := range pages {
		dst := filepath.Join(outDir, SlideName(start+i, ".pdf"))
		if err := os.Rename(filepath.Join(splitDir, p.name), dst); err != nil {
			return i, errors.Wrapf(err, "move page %d", p.n)
		}
	}
	return len(pages), nil
}

// Collect lists the slide files in dir ordered by slide number. Files without
// a number sort last by name.
func Collect(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(err, "read slides directory")
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !slices.Contains(SlideExtensions, strings.ToLower(filepath.Ext(e.Name()))) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	slices.SortStableFunc(files, compareSlides)
	return files, nil
}

func compareSlides(a, b string) int {
	na, okA := SlideNumber(a)
	nb, okB := SlideNumber(b)
	switch {
	case okA && okB && na != nb:
		return na - nb
	case okA && !okB:
		return -1
	case !okA && okB:
		return 1
	}
	return strings.Compare(filepath.Base(a), filepath.Base(b))
}
