package presenter

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/ZacxDev/video-presenter/internal/config"
	"github.com/ZacxDev/video-presenter/internal/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEnv(t *testing.T) *Env {
	cfg := config.Default()
	cfg.Paths.DataDir = t.TempDir()
	return &Env{Config: &cfg}
}

func TestDataPath(t *testing.T) {
	env := testEnv(t)
	assert.Equal(t, filepath.Join(env.Config.Paths.DataDir, "output.mp3"), env.DataPath("output.mp3"))
}

func TestStageDefaultsComeFromConfig(t *testing.T) {
	env := testEnv(t)
	env.Config.Keying.Threshold = 35

	removal := removalDefaults(env, &config.RemovalOptions{KeyColor: "#00ff00"})
	assert.Equal(t, "#00ff00", removal.KeyColor)
	require.NotNil(t, removal.Threshold)
	assert.Equal(t, 35, *removal.Threshold)
	assert.Equal(t, []string{"prores", "webm-alpha"}, removal.Profiles)

	script := scriptDefaults(env, &config.ScriptOptions{})
	assert.Equal(t, env.Config.Paths.DataDir, script.OutputDir)
	assert.Equal(t, "Follow the user's instructions carefully.", script.SystemPrompt)
}

func TestExplicitZeroThresholdIsKept(t *testing.T) {
	env := testEnv(t)
	env.Config.Keying.Threshold = 20

	zero := 0
	removal := removalDefaults(env, &config.RemovalOptions{Threshold: &zero})
	require.NotNil(t, removal.Threshold)
	assert.Equal(t, 0, *removal.Threshold)
}

func TestStagesRequireCredentials(t *testing.T) {
	env := testEnv(t)
	ctx := context.Background()

	_, err := Narrate(ctx, env, &config.NarrationOptions{})
	assert.ErrorContains(t, err, config.EnvGoogleTTSKey)

	_, err = RenderAvatar(ctx, env, &config.AvatarOptions{})
	assert.ErrorContains(t, err, config.EnvHeyGenKey)

	env.Config.HeyGen.APIKey = "key"
	_, err = RenderAvatar(ctx, env, &config.AvatarOptions{AudioPath: "output.mp3"})
	assert.ErrorContains(t, err, "storage.bucket")
}

func TestConcatNeedsTwoInputs(t *testing.T) {
	err := Concat(context.Background(), testEnv(t), []string{"a.mp4"}, "out.mp4", false)
	assert.Error(t, err)
}

func TestAvatarRendersOnEmptyLedger(t *testing.T) {
	env := testEnv(t)
	renders, err := AvatarRenders(context.Background(), env, "", 10, false)
	require.NoError(t, err)
	assert.Empty(t, renders)
	assert.FileExists(t, env.Config.LedgerPath())
}

func TestAvatarRendersPendingOnly(t *testing.T) {
	env := testEnv(t)
	ctx := context.Background()

	book, err := ledger.Open(env.Config.LedgerPath())
	require.NoError(t, err)
	for part, status := range []string{ledger.StatusDownloaded, ledger.StatusProcessing, ledger.StatusFailed} {
		rec, err := book.Record(ctx, ledger.Render{RunID: "run-1", Part: part + 1, VideoID: fmt.Sprintf("v%d", part+1)})
		require.NoError(t, err)
		require.NoError(t, book.UpdateStatus(ctx, rec.ID, ledger.Update{Status: status}))
	}
	_, err = book.Record(ctx, ledger.Render{RunID: "run-2", Part: 1, VideoID: "w1"})
	require.NoError(t, err)
	require.NoError(t, book.Close())

	all, err := AvatarRenders(ctx, env, "run-1", 10, false)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	pending, err := AvatarRenders(ctx, env, "run-1", 10, true)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "v2", pending[0].VideoID)

	across, err := AvatarRenders(ctx, env, "", 10, true)
	require.NoError(t, err)
	ids := make([]string, 0, len(across))
	for _, r := range across {
		ids = append(ids, r.VideoID)
	}
	assert.ElementsMatch(t, []string{"v2", "w1"}, ids)
}

func TestDoctorListsBinariesAndCredentials(t *testing.T) {
	statuses := Doctor()
	names := make(map[string]bool, len(statuses))
	for _, s := range statuses {
		names[s.Name] = true
	}
	for _, want := range []string{"FFmpeg", "FFprobe", config.EnvHeyGenKey, config.EnvOpenAIKey} {
		assert.True(t, names[want], want)
	}
}
