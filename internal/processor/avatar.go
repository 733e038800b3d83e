package processor

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/ZacxDev/video-presenter/internal/config"
	"github.com/ZacxDev/video-presenter/internal/heygen"
	"github.com/ZacxDev/video-presenter/internal/ledger"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// AvatarAPI submits, polls and fetches avatar renders.
type AvatarAPI interface {
	CreateVideo(ctx context.Context, req heygen.Request) (string, error)
	WaitForCompletion(ctx context.Context, videoID string, interval time.Duration) (heygen.VideoStatus, error)
	Download(ctx context.Context, videoURL, dst string) error
}

// ObjectStore hosts audio parts where the avatar API can fetch them.
type ObjectStore interface {
	Upload(ctx context.Context, localPath, object string) (string, error)
	Download(ctx context.Context, object, localPath string) error
	SignedURL(object string, ttl time.Duration) (string, error)
	PublicURL(object string) string
}

// AvatarMedia splits narration into parts and joins the rendered videos.
type AvatarMedia interface {
	SplitAudio(ctx context.Context, inputPath, outputDir string, partSeconds int) ([]string, error)
	ConcatFilter(ctx context.Context, inputs []string, outputPath string) error
}

// Keyer removes a solid background from a finished video.
type Keyer interface {
	Remove(ctx context.Context, inputPath string) (*Removal, error)
}

// AvatarSettings carries the render template and polling policy.
type AvatarSettings struct {
	Template     heygen.Request // AudioURL is filled per part
	PollInterval time.Duration
	PollTimeout  time.Duration // zero waits forever
	Concurrency  int
	SignedURLs   bool
	SignedURLTTL time.Duration
}

// AvatarPart is one rendered slice of the narration.
type AvatarPart struct {
	Part     int
	AudioURL string
	VideoID  string
	Path     string
	Reused   bool
}

// AvatarResult describes a finished avatar render.
type AvatarResult struct {
	RunID      string
	OutputPath string
	Parts      []AvatarPart
	Keyed      *Removal
}

// AvatarRenderer turns a narration track into a talking-head video
type AvatarRenderer struct {
	opts     *config.AvatarOptions
	settings AvatarSettings
	api      AvatarAPI
	store    ObjectStore
	media    AvatarMedia
	ledger   *ledger.Ledger
	keyer    Keyer
	logger   *zap.Logger
}

// NewAvatarRenderer creates a new avatar renderer. store may be nil when the
// audio is already hosted.
func NewAvatarRenderer(opts *config.AvatarOptions, settings AvatarSettings, api AvatarAPI, store ObjectStore, media AvatarMedia, logger *zap.Logger) *AvatarRenderer {
	if settings.Concurrency <= 0 {
		settings.Concurrency = 1
	}
	if settings.PollInterval <= 0 {
		settings.PollInterval = config.DefaultPollInterval
	}
	if settings.SignedURLTTL <= 0 {
		settings.SignedURLTTL = config.SignedURLTTL
	}
	return &AvatarRenderer{
		opts:     opts,
		settings: settings,
		api:      api,
		store:    store,
		media:    media,
		logger:   stageLogger(logger, "avatar"),
	}
}

// WithLedger records every submission so a run can be resumed.
func (a *AvatarRenderer) WithLedger(l *ledger.Ledger) *AvatarRenderer {
	a.ledger = l
	return a
}

// WithKeyer removes the background of the joined video when requested.
func (a *AvatarRenderer) WithKeyer(k Keyer) *AvatarRenderer {
	a.keyer = k
	return a
}

// Process renders every audio part, waits for all of them and joins the
// downloads into the output video.
func (a *AvatarRenderer) Process(ctx context.Context) (*AvatarResult, error) {
	runID := a.opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	log := a.logger.With(zap.String("run", runID))

	workDir, err := os.MkdirTemp(a.opts.WorkDir, config.AvatarTempPrefix)
	if err != nil {
		return nil, errors.Wrap(err, "create work directory")
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			log.Warn("failed to remove work directory", zap.String("dir", workDir), zap.Error(err))
		}
	}()

	urls, err := a.audioURLs(ctx, workDir, log)
	if err != nil {
		return nil, err
	}

	parts := make([]AvatarPart, len(urls))
	for i, audioURL := range urls {
		part, err := a.submit(ctx, runID, i+1, audioURL, log)
		if err != nil {
			return nil, err
		}
		parts[i] = part
	}

	if err := a.collect(ctx, runID, workDir, parts, log); err != nil {
		return nil, err
	}

	outputPath, err := ensureOutputPath(a.opts.OutputPath, ".mp4")
	if err != nil {
		return nil, err
	}
	inputs := make([]string, len(parts))
	for i, p := range parts {
		inputs[i] = p.Path
	}
	if err := a.media.ConcatFilter(ctx, inputs, outputPath); err != nil {
		return nil, errors.Wrap(err, "join avatar parts")
	}
	log.Info("avatar video written", zap.String("path", outputPath), zap.Int("parts", len(parts)))

	result := &AvatarResult{RunID: runID, OutputPath: outputPath, Parts: parts}
	if a.opts.RemoveBackground {
		if a.keyer == nil {
			return nil, errors.New("background removal requested but not configured")
		}
		if result.Keyed, err = a.keyer.Remove(ctx, outputPath); err != nil {
			return nil, errors.Wrap(err, "remove background")
		}
	}
	return result, nil
}

// audioURLs returns one reachable URL per narration part, splitting and
// uploading local audio when needed.
func (a *AvatarRenderer) audioURLs(ctx context.Context, workDir string, log *zap.Logger) ([]string, error) {
	if len(a.opts.AudioURLs) > 0 {
		return a.opts.AudioURLs, nil
	}
	if a.store == nil {
		return nil, errors.New("a storage bucket is required to host local audio")
	}

	source := a.opts.AudioPath
	if source == "" {
		if a.opts.AudioObject == "" {
			return nil, errors.New("no audio source given")
		}
		source = filepath.Join(workDir, "source"+path.Ext(a.opts.AudioObject))
		if err := a.store.Download(ctx, a.opts.AudioObject, source); err != nil {
			return nil, errors.Wrapf(err, "fetch %s", a.opts.AudioObject)
		}
	} else if err := requireFile(source); err != nil {
		return nil, err
	}

	partSeconds := a.opts.PartSeconds
	if partSeconds <= 0 {
		partSeconds = config.AvatarPartSeconds
	}
	files, err := a.media.SplitAudio(ctx, source, filepath.Join(workDir, "audio"), partSeconds)
	if err != nil {
		return nil, errors.Wrap(err, "split narration")
	}
	log.Info("narration split", zap.Int("parts", len(files)), zap.Int("part_seconds", partSeconds))

	urls := make([]string, len(files))
	for i, file := range files {
		object, err := a.store.Upload(ctx, file, "")
		if err != nil {
			return nil, err
		}
		if a.settings.SignedURLs {
			if urls[i], err = a.store.SignedURL(object, a.settings.SignedURLTTL); err != nil {
				return nil, errors.Wrapf(err, "sign %s", object)
			}
		} else {
			urls[i] = a.store.PublicURL(object)
		}
	}
	return urls, nil
}

// submit creates the render for one part, reusing a recorded video id when
// the run is resumed.
func (a *AvatarRenderer) submit(ctx context.Context, runID string, part int, audioURL string, log *zap.Logger) (AvatarPart, error) {
	result := AvatarPart{Part: part, AudioURL: audioURL}
	if a.ledger != nil {
		existing, err := a.ledger.Get(ctx, runID, part)
		switch {
		case err == nil && existing.Reusable():
			log.Info("reusing recorded render", zap.Int("part", part), zap.String("video_id", existing.VideoID))
			result.VideoID = existing.VideoID
			result.Reused = true
			return result, nil
		case err != nil && !errors.Is(err, ledger.ErrNotFound):
			return result, err
		}
	}

	req := a.settings.Template
	req.AudioURL = audioURL
	videoID, err := a.api.CreateVideo(ctx, req)
	if err != nil {
		return result, errors.Wrapf(err, "submit part %d", part)
	}
	result.VideoID = videoID
	log.Info("render submitted", zap.Int("part", part), zap.String("video_id", videoID))

	if a.ledger != nil {
		if _, err := a.ledger.Record(ctx, ledger.Render{RunID: runID, Part: part, AudioURL: audioURL, VideoID: videoID}); err != nil {
			return result, err
		}
	}
	return result, nil
}

// collect waits for every render and downloads it, bounded by the configured
// concurrency. parts is filled in place.
func (a *AvatarRenderer) collect(ctx context.Context, runID, workDir string, parts []AvatarPart, log *zap.Logger) error {
	if a.settings.PollTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.settings.PollTimeout)
		defer cancel()
	}

	bar := newProgress(len(parts), "rendering avatar")
	defer func() { _ = bar.Finish() }()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.settings.Concurrency)
	for i := range parts {
		part := &parts[i]
		g.Go(func() error {
			status, err := a.api.WaitForCompletion(gctx, part.VideoID, a.settings.PollInterval)
			if err != nil {
				if errors.Is(err, heygen.ErrRenderFailed) {
					a.record(ctx, runID, part.Part, ledger.Update{Status: ledger.StatusFailed, Error: err.Error()}, log)
				}
				return errors.Wrapf(err, "part %d", part.Part)
			}
			a.record(gctx, runID, part.Part, ledger.Update{Status: ledger.StatusCompleted, VideoURL: status.VideoURL}, log)

			dst := filepath.Join(workDir, fmt.Sprintf("avatar_%03d.mp4", part.Part))
			if err := a.api.Download(gctx, status.VideoURL, dst); err != nil {
				return errors.Wrapf(err, "download part %d", part.Part)
			}
			part.Path = dst
			a.record(gctx, runID, part.Part, ledger.Update{Status: ledger.StatusDownloaded, OutputPath: dst}, log)
			_ = bar.Add(1)
			return nil
		})
	}
	return g.Wait()
}

func (a *AvatarRenderer) record(ctx context.Context, runID string, part int, u ledger.Update, log *zap.Logger) {
	if a.ledger == nil {
		return
	}
	existing, err := a.ledger.Get(ctx, runID, part)
	if err == nil {
		err = a.ledger.UpdateStatus(ctx, existing.ID, u)
	}
	if err != nil {
		log.Warn("failed to update ledger", zap.Int("part", part), zap.String("status", u.Status), zap.Error(err))
	}
}
