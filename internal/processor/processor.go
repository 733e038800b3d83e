package processor

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
)

// MediaProber reports the playable length of a media file.
type MediaProber interface {
	GetMediaDuration(path string) (float64, error)
}

var (
	unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9-_.]`)
	underscores = regexp.MustCompile(`_+`)
)

func stageLogger(logger *zap.Logger, stage string) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return logger.With(zap.String("stage", stage))
}

// parseTimestamp accepts Go durations ("4m18s") and clock forms ("4:18",
// "1:02:03").
func parseTimestamp(value string) (float64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	if strings.Contains(value, ":") {
		var total float64
		for _, part := range strings.Split(value, ":") {
			n, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
			if err != nil || n < 0 || math.IsInf(n, 0) || math.IsNaN(n) {
				return 0, fmt.Errorf("invalid timestamp %q", value)
			}
			total = total*60 + n
		}
		return total, nil
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid timestamp format: %v", err)
	}
	if duration < 0 {
		return 0, fmt.Errorf("timestamp %q is negative", value)
	}
	return duration.Seconds(), nil
}

func sanitizeFilename(filename string) string {
	sanitized := strings.TrimSuffix(filename, filepath.Ext(filename))
	sanitized = unsafeChars.ReplaceAllString(sanitized, "_")
	sanitized = underscores.ReplaceAllString(sanitized, "_")
	return strings.Trim(sanitized, "_")
}

// ensureOutputPath creates the parent directory and forces the extension.
func ensureOutputPath(path, ext string) (string, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", errors.Wrapf(err, "create directory %s", dir)
		}
	}
	if ext == "" {
		return path, nil
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	if !strings.EqualFold(filepath.Ext(path), ext) {
		path = strings.TrimSuffix(path, filepath.Ext(path)) + ext
	}
	return path, nil
}

func requireFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("input not found: %s", path)
		}
		return errors.WithStack(err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	return nil
}

// validateOutput checks that a produced media file exists, is non-empty and
// has a positive duration.
func validateOutput(prober MediaProber, path string) (float64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, errors.Wrapf(err, "output %s missing", path)
	}
	if info.Size() == 0 {
		return 0, fmt.Errorf("output %s is empty", path)
	}
	duration, err := prober.GetMediaDuration(path)
	if err != nil {
		return 0, errors.Wrapf(err, "probe %s", path)
	}
	if duration <= 0 {
		return 0, fmt.Errorf("output %s has no playable duration", path)
	}
	return duration, nil
}

// removeAllRetry removes a directory, retrying while another process still
// holds files open in it.
func removeAllRetry(dir string, attempts int, delay time.Duration, logger *zap.Logger) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = os.RemoveAll(dir); err == nil {
			return nil
		}
		logger.Warn("cleanup failed, retrying", zap.String("dir", dir), zap.Int("attempt", i+1), zap.Error(err))
		time.Sleep(delay)
	}
	return errors.Wrapf(err, "remove %s", dir)
}

// progressOutput is where bars are drawn; nil disables them.
var progressOutput io.Writer = os.Stderr

type progress interface {
	Add(int) error
	Finish() error
}

type nopProgress struct{}

func (nopProgress) Add(int) error  { return nil }
func (nopProgress) Finish() error { return nil }

// newProgress builds a counter bar on an interactive terminal. A non-positive
// total draws a spinner.
func newProgress(total int, description string) progress {
	if progressOutput == nil || !isatty.IsTerminal(os.Stderr.Fd()) {
		return nopProgress{}
	}
	if total <= 0 {
		total = -1
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(progressOutput),
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
}
