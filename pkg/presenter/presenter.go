// Package presenter wires configuration, API clients and media tooling into
// the individual pipeline stages. Each exported function runs one stage to
// completion; nothing here chains stages together.
package presenter

import (
	"context"
	"net/http"
	"path/filepath"
	"time"

	"github.com/ZacxDev/video-presenter/internal/config"
	"github.com/ZacxDev/video-presenter/internal/deps"
	"github.com/ZacxDev/video-presenter/internal/ffmpeg"
	"github.com/ZacxDev/video-presenter/internal/heygen"
	"github.com/ZacxDev/video-presenter/internal/ledger"
	"github.com/ZacxDev/video-presenter/internal/llm"
	"github.com/ZacxDev/video-presenter/internal/processor"
	"github.com/ZacxDev/video-presenter/internal/scrape"
	"github.com/ZacxDev/video-presenter/internal/server"
	"github.com/ZacxDev/video-presenter/internal/slides"
	"github.com/ZacxDev/video-presenter/internal/storage"
	"github.com/ZacxDev/video-presenter/internal/tts"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Env carries what every stage needs.
type Env struct {
	Config *config.Config
	Logger *zap.Logger
}

func (e *Env) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

func (e *Env) media() *ffmpeg.Processor {
	return ffmpeg.NewProcessor(e.logger())
}

// DataPath joins elem onto the configured data directory.
func (e *Env) DataPath(elem ...string) string {
	return filepath.Join(append([]string{e.Config.Paths.DataDir}, elem...)...)
}

// GenerateScript writes the model's reply to the instructions file.
func GenerateScript(ctx context.Context, env *Env, opts *config.ScriptOptions) (string, error) {
	completer, err := llm.New(ctx, env.Config.LLM)
	if err != nil {
		return "", err
	}
	return processor.NewScripter(scriptDefaults(env, opts), completer, nil, env.logger()).Generate(ctx)
}

// BreakdownScript splits a script into per-section files.
func BreakdownScript(ctx context.Context, env *Env, opts *config.ScriptOptions) (*processor.Breakdown, error) {
	completer, err := llm.New(ctx, env.Config.LLM)
	if err != nil {
		return nil, err
	}
	return processor.NewScripter(scriptDefaults(env, opts), completer, nil, env.logger()).Breakdown(ctx)
}

// CleanScript extracts illustration cues. No model is needed.
func CleanScript(env *Env, opts *config.ScriptOptions) (*processor.CleanedScript, error) {
	return processor.NewScripter(scriptDefaults(env, opts), nil, env.media(), env.logger()).Clean()
}

func scriptDefaults(env *Env, opts *config.ScriptOptions) *config.ScriptOptions {
	if opts.OutputDir == "" {
		opts.OutputDir = env.Config.Paths.DataDir
	}
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = env.Config.LLM.SystemPrompt
	}
	return opts
}

// Narrate synthesizes the script into one audio file.
func Narrate(ctx context.Context, env *Env, opts *config.NarrationOptions) (*processor.Narration, error) {
	cfg := env.Config.TTS
	if cfg.APIKey == "" {
		return nil, errors.Errorf("%s is not set", config.EnvGoogleTTSKey)
	}
	if opts.OutputDir == "" {
		opts.OutputDir = env.Config.Paths.DataDir
	}
	if opts.Encoding == "" {
		opts.Encoding = cfg.AudioEncoding
	}
	if opts.LanguageCode == "" {
		opts.LanguageCode = cfg.LanguageCode
	}
	if opts.VoiceName == "" {
		opts.VoiceName = cfg.Voice
	}
	if opts.Gender == "" {
		opts.Gender = cfg.Gender
	}
	if opts.SpeakingRate <= 0 {
		opts.SpeakingRate = cfg.SpeakingRate
	}
	if opts.MaxChunkBytes <= 0 {
		opts.MaxChunkBytes = cfg.MaxChunkBytes
	}

	client := tts.NewClient(cfg.APIKey,
		tts.WithBaseURL(cfg.BaseURL),
		tts.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second}))
	return processor.NewNarrator(opts, client, env.media(), env.logger()).Process(ctx)
}

// OpenBucket connects to the configured bucket. runID scopes object names.
func OpenBucket(ctx context.Context, env *Env, runID string) (*storage.Bucket, error) {
	cfg := env.Config.Storage
	if cfg.Bucket == "" {
		return nil, errors.New("storage.bucket is not configured")
	}
	return storage.Open(ctx, storage.Options{
		Bucket:          cfg.Bucket,
		Prefix:          cfg.Prefix,
		RunID:           runID,
		CredentialsFile: cfg.CredentialsFile,
		Logger:          env.logger(),
	})
}

// Uploaded is one file placed in the bucket.
type Uploaded struct {
	Path   string
	Object string
	URL    string
}

// Upload copies files into the bucket and returns a URL for each.
func Upload(ctx context.Context, env *Env, runID string, files []string, signed bool) ([]Uploaded, error) {
	bucket, err := OpenBucket(ctx, env, runID)
	if err != nil {
		return nil, err
	}
	defer bucket.Close()

	out := make([]Uploaded, 0, len(files))
	for _, file := range files {
		object, err := bucket.Upload(ctx, file, "")
		if err != nil {
			return out, err
		}
		u := Uploaded{Path: file, Object: object}
		if signed {
			if u.URL, err = bucket.SignedURL(object, env.Config.SignedURLTTL()); err != nil {
				return out, err
			}
		} else {
			u.URL = bucket.PublicURL(object)
		}
		out = append(out, u)
	}
	return out, nil
}

// RenderAvatar drives the avatar API for the narration and joins the parts.
// The bucket is opened only when local audio has to be hosted.
func RenderAvatar(ctx context.Context, env *Env, opts *config.AvatarOptions) (*processor.AvatarResult, error) {
	cfg := env.Config
	if cfg.HeyGen.APIKey == "" {
		return nil, errors.Errorf("%s is not set", config.EnvHeyGenKey)
	}
	if opts.WorkDir == "" {
		opts.WorkDir = cfg.Paths.DataDir
	}
	if opts.PartSeconds <= 0 {
		opts.PartSeconds = cfg.HeyGen.PartSeconds
	}

	var store processor.ObjectStore
	if len(opts.AudioURLs) == 0 {
		bucket, err := OpenBucket(ctx, env, opts.RunID)
		if err != nil {
			return nil, err
		}
		defer bucket.Close()
		store = bucket
	}

	book, err := ledger.Open(cfg.LedgerPath())
	if err != nil {
		return nil, err
	}
	defer book.Close()

	api := heygen.NewClient(cfg.HeyGen.APIKey,
		heygen.WithBaseURL(cfg.HeyGen.BaseURL),
		heygen.WithLogger(env.logger()))
	settings := processor.AvatarSettings{
		Template: heygen.Request{
			AvatarID:        cfg.HeyGen.AvatarID,
			AvatarStyle:     cfg.HeyGen.AvatarStyle,
			BackgroundColor: cfg.HeyGen.BackgroundColor,
			Width:           cfg.HeyGen.Width,
			Height:          cfg.HeyGen.Height,
		},
		PollInterval: cfg.PollInterval(),
		PollTimeout:  cfg.PollTimeout(),
		Concurrency:  cfg.HeyGen.Concurrency,
		SignedURLs:   cfg.Storage.SignedURLs,
		SignedURLTTL: cfg.SignedURLTTL(),
	}

	media := env.media()
	renderer := processor.NewAvatarRenderer(opts, settings, api, store, media, env.logger()).WithLedger(book)
	if opts.RemoveBackground {
		renderer.WithKeyer(processor.NewBackgroundRemover(removalDefaults(env, &config.RemovalOptions{}), media, env.logger()))
	}
	return renderer.Process(ctx)
}

// AvatarRenders lists recorded renders, newest first. An empty runID lists
// across runs; pending keeps only renders still waiting on the API.
func AvatarRenders(ctx context.Context, env *Env, runID string, limit int, pending bool) ([]ledger.Render, error) {
	book, err := ledger.Open(env.Config.LedgerPath())
	if err != nil {
		return nil, err
	}
	defer book.Close()
	if runID != "" {
		if pending {
			return book.Pending(ctx, runID)
		}
		return book.ForRun(ctx, runID)
	}
	renders, err := book.List(ctx, limit)
	if err != nil || !pending {
		return renders, err
	}
	inFlight := renders[:0]
	for _, r := range renders {
		if r.InFlight() {
			inFlight = append(inFlight, r)
		}
	}
	return inFlight, nil
}

// LatestRun returns the most recent run recorded in the ledger.
func LatestRun(ctx context.Context, env *Env) (string, error) {
	book, err := ledger.Open(env.Config.LedgerPath())
	if err != nil {
		return "", err
	}
	defer book.Close()
	return book.LatestRun(ctx)
}

// Concat joins media files. copyStreams uses the concat demuxer without
// re-encoding; otherwise the concat filter re-encodes video and audio.
func Concat(ctx context.Context, env *Env, inputs []string, output string, copyStreams bool) error {
	if len(inputs) < 2 {
		return errors.New("at least two inputs are required")
	}
	media := env.media()
	if copyStreams {
		return media.ConcatDemuxer(ctx, inputs, output)
	}
	return media.ConcatFilter(ctx, inputs, ffmpeg.EnsureExtension(output, ".mp4"))
}

// Crop masks a circle or cuts a square out of a video.
func Crop(ctx context.Context, env *Env, opts *config.CropOptions) (string, error) {
	return processor.NewCropper(opts, env.media(), env.logger()).Process(ctx)
}

// PreviewCrop writes the first frame with the selection outlined.
func PreviewCrop(ctx context.Context, env *Env, opts *config.CropOptions) (string, error) {
	return processor.NewCropper(opts, env.media(), env.logger()).Preview(ctx)
}

// RemoveBackground keys the configured colour out of a video.
func RemoveBackground(ctx context.Context, env *Env, opts *config.RemovalOptions) (*processor.Removal, error) {
	return processor.NewBackgroundRemover(removalDefaults(env, opts), env.media(), env.logger()).Process(ctx)
}

func removalDefaults(env *Env, opts *config.RemovalOptions) *config.RemovalOptions {
	k := env.Config.Keying
	if opts.KeyColor == "" {
		opts.KeyColor = k.Color
	}
	if opts.Threshold == nil {
		threshold := k.Threshold
		opts.Threshold = &threshold
	}
	if len(opts.Profiles) == 0 {
		opts.Profiles = k.Profiles
	}
	return opts
}

// SplitSlides writes every page of decks as slide_N.pdf into dir.
func SplitSlides(env *Env, decks []string, dir string) ([]int, error) {
	return processor.NewSlideShow(&config.SlideShowOptions{SlidesDir: dir}, nil, nil, env.logger()).Split(decks)
}

// RenderSlides turns a slide directory into a timed video.
func RenderSlides(ctx context.Context, env *Env, opts *config.SlideShowOptions) (*processor.SlideVideo, error) {
	if opts.FPS <= 0 {
		opts.FPS = env.Config.Slides.FPS
	}
	if opts.DPI <= 0 {
		opts.DPI = env.Config.Slides.DPI
	}
	raster := slides.NewRasterizer(opts.DPI, env.logger())
	return processor.NewSlideShow(opts, raster, env.media(), env.logger()).Process(ctx)
}

// Assemble overlays the avatar video onto the slide video.
func Assemble(ctx context.Context, env *Env, opts *config.AssembleOptions) (string, error) {
	layout := env.Config.Assemble
	if opts.AvatarWidth <= 0 {
		opts.AvatarWidth = layout.AvatarWidth
	}
	if opts.AvatarHeight <= 0 {
		opts.AvatarHeight = layout.AvatarHeight
	}
	return processor.NewAssembler(opts, env.media(), env.logger()).Process(ctx)
}

// ExtractClips cuts reference segments out of a (possibly remote) video.
func ExtractClips(ctx context.Context, env *Env, opts *config.ClipOptions) (string, error) {
	return processor.NewClipExtractor(opts, processor.NewYTDLP(env.logger()), env.media(), env.logger()).Process(ctx)
}

// ScrapeImages downloads the article images of every link in linksPath.
func ScrapeImages(ctx context.Context, env *Env, linksPath, outDir string) ([]scrape.Result, error) {
	links, err := scrape.ReadLinks(linksPath)
	if err != nil {
		return nil, err
	}
	if len(links) == 0 {
		return nil, errors.Errorf("no links in %s", linksPath)
	}
	s := scrape.New(outDir, scrape.WithLogger(env.logger()))
	results := make([]scrape.Result, 0, len(links))
	for _, link := range links {
		res, err := s.ScrapePage(ctx, link)
		if err != nil {
			env.logger().Warn("page skipped", zap.String("url", link), zap.Error(err))
		}
		results = append(results, res)
	}
	return results, nil
}

// Serve runs the upload endpoint until ctx is cancelled.
func Serve(ctx context.Context, env *Env, addr, dir string) error {
	if dir == "" {
		dir = env.Config.Paths.UploadDir
	}
	srv, err := server.New(dir, env.logger())
	if err != nil {
		return err
	}
	return srv.Run(ctx, addr)
}

// Doctor reports the external binaries and credentials the stages rely on.
func Doctor() []deps.Status {
	statuses := deps.CheckBinaries(deps.Requirements())
	optional := map[string]bool{
		config.EnvGeminiKey:      true,
		config.EnvGoogleAppCreds: true,
	}
	return append(statuses, deps.CheckCredentials(config.CredentialKeys, optional)...)
}
