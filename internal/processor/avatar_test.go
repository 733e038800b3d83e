package processor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ZacxDev/video-presenter/internal/config"
	"github.com/ZacxDev/video-presenter/internal/heygen"
	"github.com/ZacxDev/video-presenter/internal/ledger"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAvatarAPI struct {
	mu        sync.Mutex
	submitted []heygen.Request
	waited    []string
	failing   map[string]bool
	next      int
}

func (f *fakeAvatarAPI) CreateVideo(_ context.Context, req heygen.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	f.submitted = append(f.submitted, req)
	return fmt.Sprintf("vid-%d", f.next), nil
}

func (f *fakeAvatarAPI) WaitForCompletion(_ context.Context, videoID string, _ time.Duration) (heygen.VideoStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.waited = append(f.waited, videoID)
	if f.failing[videoID] {
		return heygen.VideoStatus{ID: videoID, Status: "failed"}, errors.Wrap(heygen.ErrRenderFailed, "avatar not found")
	}
	return heygen.VideoStatus{ID: videoID, Status: "completed", VideoURL: "https://cdn.example/" + videoID + ".mp4"}, nil
}

func (f *fakeAvatarAPI) Download(_ context.Context, videoURL, dst string) error {
	return os.WriteFile(dst, []byte(videoURL), 0644)
}

type fakeStore struct {
	uploaded   []string
	downloaded []string
}

func (s *fakeStore) Upload(_ context.Context, localPath, object string) (string, error) {
	if object == "" {
		object = "runs/" + filepath.Base(localPath)
	}
	s.uploaded = append(s.uploaded, object)
	return object, nil
}

func (s *fakeStore) Download(_ context.Context, object, localPath string) error {
	s.downloaded = append(s.downloaded, object)
	return os.WriteFile(localPath, []byte("audio"), 0644)
}

func (s *fakeStore) SignedURL(object string, ttl time.Duration) (string, error) {
	return fmt.Sprintf("https://signed.example/%s?ttl=%d", object, int(ttl.Seconds())), nil
}

func (s *fakeStore) PublicURL(object string) string {
	return "https://storage.googleapis.com/bucket/" + object
}

type fakeAvatarMedia struct {
	parts       int
	splitSecs   int
	splitSource string
	joined      []string
}

func (m *fakeAvatarMedia) SplitAudio(_ context.Context, inputPath, outputDir string, partSeconds int) ([]string, error) {
	m.splitSource, m.splitSecs = inputPath, partSeconds
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, err
	}
	var files []string
	for i := 0; i < m.parts; i++ {
		p := filepath.Join(outputDir, fmt.Sprintf("part_%03d.mp3", i))
		if err := os.WriteFile(p, []byte("x"), 0644); err != nil {
			return nil, err
		}
		files = append(files, p)
	}
	return files, nil
}

func (m *fakeAvatarMedia) ConcatFilter(_ context.Context, inputs []string, outputPath string) error {
	m.joined = nil
	for _, in := range inputs {
		m.joined = append(m.joined, filepath.Base(in))
	}
	return os.WriteFile(outputPath, []byte("joined"), 0644)
}

type fakeKeyer struct{ input string }

func (k *fakeKeyer) Remove(_ context.Context, inputPath string) (*Removal, error) {
	k.input = inputPath
	return &Removal{Frames: 10, Outputs: []string{inputPath + ".mov"}}, nil
}

func openLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	l, err := ledger.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func avatarOpts(t *testing.T) *config.AvatarOptions {
	dir := t.TempDir()
	return &config.AvatarOptions{
		AudioPath:  writeFile(t, filepath.Join(dir, "output.mp3"), "ID3"),
		OutputPath: filepath.Join(dir, "avatar"),
		WorkDir:    dir,
		RunID:      "run-1",
	}
}

func TestAvatarRendererSplitsUploadsAndJoins(t *testing.T) {
	opts := avatarOpts(t)
	api := &fakeAvatarAPI{}
	store := &fakeStore{}
	media := &fakeAvatarMedia{parts: 3}
	settings := AvatarSettings{
		Template:     heygen.Request{AvatarID: "Luca_public", AvatarStyle: "normal", BackgroundColor: "#00FF00"},
		Concurrency:  2,
		SignedURLs:   true,
		SignedURLTTL: time.Hour,
	}
	l := openLedger(t)

	got, err := NewAvatarRenderer(opts, settings, api, store, media, nil).WithLedger(l).Process(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, opts.OutputPath+".mp4", got.OutputPath)
	assert.FileExists(t, got.OutputPath)
	assert.Equal(t, config.AvatarPartSeconds, media.splitSecs)
	assert.Equal(t, opts.AudioPath, media.splitSource)
	assert.Equal(t, []string{"runs/part_000.mp3", "runs/part_001.mp3", "runs/part_002.mp3"}, store.uploaded)
	assert.Equal(t, []string{"avatar_001.mp4", "avatar_002.mp4", "avatar_003.mp4"}, media.joined)

	require.Len(t, api.submitted, 3)
	assert.Equal(t, "Luca_public", api.submitted[0].AvatarID)
	assert.Equal(t, "https://signed.example/runs/part_000.mp3?ttl=3600", api.submitted[0].AudioURL)
	for i, p := range got.Parts {
		assert.Equal(t, i+1, p.Part)
		assert.False(t, p.Reused)
	}

	renders, err := l.ForRun(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, renders, 3)
	for _, r := range renders {
		assert.Equal(t, ledger.StatusDownloaded, r.Status)
		assert.True(t, strings.HasPrefix(r.VideoURL, "https://cdn.example/"))
	}

	entries, err := os.ReadDir(opts.WorkDir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), config.AvatarTempPrefix), "work dir %s left behind", e.Name())
	}
}

func TestAvatarRendererPublicURLsFromBucketObject(t *testing.T) {
	opts := avatarOpts(t)
	opts.AudioPath = ""
	opts.AudioObject = "narration/output.mp3"
	opts.PartSeconds = 60
	api := &fakeAvatarAPI{}
	store := &fakeStore{}
	media := &fakeAvatarMedia{parts: 1}

	_, err := NewAvatarRenderer(opts, AvatarSettings{}, api, store, media, nil).Process(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"narration/output.mp3"}, store.downloaded)
	assert.Equal(t, 60, media.splitSecs)
	assert.Equal(t, ".mp3", filepath.Ext(media.splitSource))
	require.Len(t, api.submitted, 1)
	assert.Equal(t, "https://storage.googleapis.com/bucket/runs/part_000.mp3", api.submitted[0].AudioURL)
}

func TestAvatarRendererUsesHostedAudio(t *testing.T) {
	opts := avatarOpts(t)
	opts.AudioPath = ""
	opts.AudioURLs = []string{"https://host/a.mp3", "https://host/b.mp3"}
	opts.RunID = ""
	api := &fakeAvatarAPI{}
	media := &fakeAvatarMedia{}

	got, err := NewAvatarRenderer(opts, AvatarSettings{}, api, nil, media, nil).Process(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, got.RunID)
	assert.Empty(t, media.splitSource)
	require.Len(t, api.submitted, 2)
	assert.Equal(t, "https://host/b.mp3", api.submitted[1].AudioURL)
}

func TestAvatarRendererNeedsStoreForLocalAudio(t *testing.T) {
	_, err := NewAvatarRenderer(avatarOpts(t), AvatarSettings{}, &fakeAvatarAPI{}, nil, &fakeAvatarMedia{parts: 1}, nil).
		Process(context.Background())
	assert.ErrorContains(t, err, "storage bucket")
}

func TestAvatarRendererResumesRecordedRenders(t *testing.T) {
	ctx := context.Background()
	l := openLedger(t)
	_, err := l.Record(ctx, ledger.Render{RunID: "run-1", Part: 1, AudioURL: "https://host/a.mp3", VideoID: "old-1"})
	require.NoError(t, err)
	failed, err := l.Record(ctx, ledger.Render{RunID: "run-1", Part: 2, AudioURL: "https://host/b.mp3", VideoID: "old-2"})
	require.NoError(t, err)
	require.NoError(t, l.UpdateStatus(ctx, failed.ID, ledger.Update{Status: ledger.StatusFailed, Error: "boom"}))

	opts := avatarOpts(t)
	opts.AudioURLs = []string{"https://host/a.mp3", "https://host/b.mp3"}
	api := &fakeAvatarAPI{}

	got, err := NewAvatarRenderer(opts, AvatarSettings{}, api, nil, &fakeAvatarMedia{}, nil).WithLedger(l).Process(ctx)
	require.NoError(t, err)

	assert.True(t, got.Parts[0].Reused)
	assert.Equal(t, "old-1", got.Parts[0].VideoID)
	assert.False(t, got.Parts[1].Reused)
	assert.Equal(t, "vid-1", got.Parts[1].VideoID)
	require.Len(t, api.submitted, 1)
	assert.Equal(t, "https://host/b.mp3", api.submitted[0].AudioURL)

	waited := append([]string(nil), api.waited...)
	sort.Strings(waited)
	assert.Equal(t, []string{"old-1", "vid-1"}, waited)

	second, err := l.Get(ctx, "run-1", 2)
	require.NoError(t, err)
	assert.Equal(t, "vid-1", second.VideoID)
	assert.Equal(t, ledger.StatusDownloaded, second.Status)
	assert.Empty(t, second.Error)
}

func TestAvatarRendererRecordsFailedRender(t *testing.T) {
	ctx := context.Background()
	l := openLedger(t)
	opts := avatarOpts(t)
	opts.AudioURLs = []string{"https://host/a.mp3"}
	api := &fakeAvatarAPI{failing: map[string]bool{"vid-1": true}}

	_, err := NewAvatarRenderer(opts, AvatarSettings{}, api, nil, &fakeAvatarMedia{}, nil).WithLedger(l).Process(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, heygen.ErrRenderFailed)
	assert.NoFileExists(t, opts.OutputPath+".mp4")

	r, err := l.Get(ctx, "run-1", 1)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusFailed, r.Status)
	assert.Contains(t, r.Error, "avatar not found")
	assert.False(t, r.Reusable())
}

func TestAvatarRendererRemovesBackground(t *testing.T) {
	opts := avatarOpts(t)
	opts.AudioURLs = []string{"https://host/a.mp3"}
	opts.RemoveBackground = true
	keyer := &fakeKeyer{}

	got, err := NewAvatarRenderer(opts, AvatarSettings{}, &fakeAvatarAPI{}, nil, &fakeAvatarMedia{}, nil).
		WithKeyer(keyer).Process(context.Background())
	require.NoError(t, err)
	assert.Equal(t, got.OutputPath, keyer.input)
	require.NotNil(t, got.Keyed)
	assert.Equal(t, 10, got.Keyed.Frames)

	_, err = NewAvatarRenderer(opts, AvatarSettings{}, &fakeAvatarAPI{}, nil, &fakeAvatarMedia{}, nil).Process(context.Background())
	assert.ErrorContains(t, err, "not configured")
}
