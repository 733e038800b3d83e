// Package scrape downloads the illustrations of Wikipedia articles.
package scrape

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/ZacxDev/video-presenter/internal/imaging"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

const (
	// DefaultUserAgent mimics a desktop browser; Wikipedia rejects empty agents.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
	defaultTimeout   = 10 * time.Second
	maxImageBytes    = 64 << 20
)

// Scraper fetches article pages and saves their images.
type Scraper struct {
	client    *http.Client
	userAgent string
	outDir    string
	maxBytes  int64
	logger    *zap.Logger
}

// Option customizes the scraper.
type Option func(*Scraper)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Scraper) {
		if c != nil {
			s.client = c
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Scraper) {
		if l != nil {
			s.logger = l
		}
	}
}

// New returns a scraper writing into outDir.
func New(outDir string, opts ...Option) *Scraper {
	s := &Scraper{
		client:    &http.Client{Timeout: defaultTimeout},
		userAgent: DefaultUserAgent,
		outDir:    outDir,
		maxBytes:  maxImageBytes,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ReadLinks returns the non-empty lines of path.
func ReadLinks(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open links file")
	}
	defer f.Close()

	var links []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			links = append(links, line)
		}
	}
	return links, errors.Wrap(sc.Err(), "read links file")
}

// Result summarizes one article.
type Result struct {
	URL     string
	Title   string
	Saved   []string
	Skipped int
	Failed  int
}

// ScrapePage saves every article and infobox image of pageURL. Individual
// image failures are logged and counted, not returned.
func (s *Scraper) ScrapePage(ctx context.Context, pageURL string) (Result, error) {
	res := Result{URL: pageURL}
	base, err := url.Parse(pageURL)
	if err != nil {
		return res, errors.Wrapf(err, "parse %s", pageURL)
	}
	doc, err := s.fetchHTML(ctx, pageURL)
	if err != nil {
		return res, err
	}

	content := findFirst(doc, func(n *html.Node) bool { return isElement(n, "div") && attr(n, "id") == "mw-content-text" })
	if content == nil {
		return res, fmt.Errorf("main content section not found on %s", pageURL)
	}
	images := findAll(content, func(n *html.Node) bool { return isElement(n, "img") && hasClass(n, "mw-file-element") })
	images = append(images, findAll(doc, func(n *html.Node) bool { return isElement(n, "img") && hasClass(n, "infobox-image") })...)
	if len(images) == 0 {
		return res, fmt.Errorf("no images found on %s", pageURL)
	}

	res.Title = pageTitle(doc)
	if err := os.MkdirAll(s.outDir, 0755); err != nil {
		return res, errors.Wrap(err, "create output directory")
	}

	seen := make(map[string]bool)
	for idx, img := range images {
		imageURL := s.imageURL(ctx, base, img)
		if imageURL == "" {
			s.logger.Warn("no usable image url", zap.Int("image", idx+1), zap.String("page", pageURL))
			res.Failed++
			continue
		}
		name := fmt.Sprintf("%s_image_%d_%s", res.Title, idx+1, fileNameFromURL(imageURL))
		if seen[name] {
			s.logger.Info("skipping duplicate", zap.String("file", name))
			res.Skipped++
			continue
		}
		seen[name] = true

		saved, err := s.download(ctx, imageURL, filepath.Join(s.outDir, name))
		if err != nil {
			s.logger.Warn("image download failed", zap.String("url", imageURL), zap.Error(err))
			res.Failed++
			continue
		}
		res.Saved = append(res.Saved, saved)
	}
	return res, nil
}

// imageURL prefers the original file linked from the File: page, falling back
// to the thumbnail src.
func (s *Scraper) imageURL(ctx context.Context, base *url.URL, img *html.Node) string {
	if link := ancestor(img, "a"); link != nil {
		if href := attr(link, "href"); href != "" {
			filePage := resolve(base, href)
			if strings.Contains(filePage, "wikimedia.org") || strings.Contains(filePage, "File:") {
				if full := s.fullResolution(ctx, filePage); full != "" {
					return full
				}
			}
		}
	}
	if src := attr(img, "src"); src != "" {
		return resolve(base, src)
	}
	return ""
}

func (s *Scraper) fullResolution(ctx context.Context, filePage string) string {
	doc, err := s.fetchHTML(ctx, filePage)
	if err != nil {
		s.logger.Debug("file page unavailable", zap.String("url", filePage), zap.Error(err))
		return ""
	}
	link := findFirst(doc, func(n *html.Node) bool { return isElement(n, "a") && hasClass(n, "internal") })
	if link == nil || attr(link, "href") == "" {
		return ""
	}
	base, _ := url.Parse(filePage)
	return resolve(base, attr(link, "href"))
}

// download writes the image to dst. Raster images with transparency are
// flattened onto white and stored as PNG.
func (s *Scraper) download(ctx context.Context, imageURL, dst string) (string, error) {
	data, err := s.get(ctx, imageURL)
	if err != nil {
		return "", err
	}
	if img, _, decodeErr := image.Decode(bytes.NewReader(data)); decodeErr == nil && imaging.HasTransparency(img) {
		dst = strings.TrimSuffix(dst, filepath.Ext(dst)) + ".png"
		var buf bytes.Buffer
		if err := png.Encode(&buf, imaging.FlattenOnWhite(img)); err != nil {
			return "", errors.Wrap(err, "encode flattened image")
		}
		data = buf.Bytes()
		s.logger.Debug("flattened transparency", zap.String("file", dst))
	}
	if err := os.WriteFile(dst, data, 0644); err != nil {
		return "", errors.Wrap(err, "write image")
	}
	s.logger.Info("downloaded", zap.String("file", dst))
	return dst, nil
}

func (s *Scraper) fetchHTML(ctx context.Context, pageURL string) (*html.Node, error) {
	body, err := s.get(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrapf(err, "parse %s", pageURL)
	}
	return doc, nil
}

func (s *Scraper) get(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, errors.Wrap(err, "new request")
	}
	req.Header.Set("User-Agent", s.userAgent)
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "get %s", target)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get %s: http %d", target, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBytes+1))
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", target)
	}
	if int64(len(data)) > s.maxBytes {
		return nil, errors.Errorf("get %s: response exceeds %d bytes", target, s.maxBytes)
	}
	return data, nil
}

func pageTitle(doc *html.Node) string {
	h1 := findFirst(doc, func(n *html.Node) bool { return isElement(n, "h1") && attr(n, "id") == "firstHeading" })
	title := "page"
	if h1 != nil {
		if t := strings.TrimSpace(textContent(h1)); t != "" {
			title = t
		}
	}
	return strings.NewReplacer(" ", "_", "/", "_").Replace(title)
}

func fileNameFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return path.Base(raw)
	}
	name := path.Base(u.Path)
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}
	return strings.ReplaceAll(name, "/", "_")
}

func resolve(base *url.URL, ref string) string {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return ""
	}
	if base == nil {
		return u.String()
	}
	return base.ResolveReference(u).String()
}
