package heygen

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ZacxDev/video-presenter/internal/httpapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreAnyFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreAnyFunction("net/http.(*persistConn).writeLoop"),
	)
}

func testClient(baseURL string, sleeps *[]time.Duration) *Client {
	return NewClient("hg-key",
		WithBaseURL(baseURL),
		WithRetrier(httpapi.Retrier{MaxAttempts: 2, Sleep: func(context.Context, time.Duration) error { return nil }}),
		WithSleeper(func(_ context.Context, d time.Duration) error {
			if sleeps != nil {
				*sleeps = append(*sleeps, d)
			}
			return nil
		}),
	)
}

func TestCreateVideoSendsAvatarRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/video/generate", r.URL.Path)
		assert.Equal(t, "hg-key", r.Header.Get("X-Api-Key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.VideoInputs, 1)
		in := body.VideoInputs[0]
		assert.Equal(t, "avatar", in.Character.Type)
		assert.Equal(t, "Daisy-inskirt-20220818", in.Character.AvatarID)
		assert.Equal(t, "normal", in.Character.AvatarStyle)
		assert.Equal(t, "audio", in.Voice.Type)
		assert.Equal(t, "https://example.test/part_001.wav", in.Voice.AudioURL)
		assert.Equal(t, background{Type: "color", Value: "#000000"}, in.Background)
		assert.Equal(t, dimension{Width: 1280, Height: 720}, body.Dimension)

		_, _ = w.Write([]byte(`{"error":null,"data":{"video_id":"vid-1"}}`))
	}))
	defer server.Close()

	id, err := testClient(server.URL, nil).CreateVideo(context.Background(), Request{
		AvatarID:        "Daisy-inskirt-20220818",
		AudioURL:        "https://example.test/part_001.wav",
		BackgroundColor: "#000000",
		Width:           1280,
		Height:          720,
	})
	require.NoError(t, err)
	assert.Equal(t, "vid-1", id)
}

func TestCreateVideoTransparentBackground(t *testing.T) {
	body := buildGenerateRequest(Request{AvatarID: "a", AudioURL: "u", BackgroundColor: "transparent"})
	assert.Equal(t, background{Type: "transparent"}, body.VideoInputs[0].Background)
}

func TestCreateVideoMissingID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":{"message":"avatar not found"},"data":null}`))
	}))
	defer server.Close()

	_, err := testClient(server.URL, nil).CreateVideo(context.Background(), Request{AvatarID: "a", AudioURL: "u"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "avatar not found")
}

func TestCreateVideoRequiresInputs(t *testing.T) {
	_, err := NewClient("").CreateVideo(context.Background(), Request{AvatarID: "a", AudioURL: "u"})
	assert.Error(t, err)
	_, err = NewClient("k").CreateVideo(context.Background(), Request{AvatarID: "a"})
	assert.Error(t, err)
}

func TestWaitForCompletionPollsUntilDone(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/video_status.get", r.URL.Path)
		assert.Equal(t, "vid-9", r.URL.Query().Get("video_id"))
		switch calls.Add(1) {
		case 1:
			_, _ = w.Write([]byte(`{"code":100,"data":{"status":"pending"}}`))
		case 2:
			_, _ = w.Write([]byte(`{"code":100,"data":{"status":"processing"}}`))
		default:
			_, _ = w.Write([]byte(`{"code":100,"data":{"status":"completed","video_url":"https://cdn.test/v.mp4","duration":12.5}}`))
		}
	}))
	defer server.Close()

	var sleeps []time.Duration
	status, err := testClient(server.URL, &sleeps).WaitForCompletion(context.Background(), "vid-9", 3*time.Second)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, status.Status)
	assert.Equal(t, "https://cdn.test/v.mp4", status.VideoURL)
	assert.Equal(t, "vid-9", status.ID)
	assert.Equal(t, []time.Duration{3 * time.Second, 3 * time.Second}, sleeps)
}

func TestWaitForCompletionReportsFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"status":"failed","error":{"code":40119,"message":"audio too long","detail":"max 180s"}}}`))
	}))
	defer server.Close()

	_, err := testClient(server.URL, nil).WaitForCompletion(context.Background(), "vid-2", time.Second)
	require.ErrorIs(t, err, ErrRenderFailed)
	assert.Contains(t, err.Error(), "audio too long (max 180s)")
}

func TestWaitForCompletionHonoursCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"status":"processing"}}`))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	client := testClient(server.URL, nil)
	client.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return httpapi.SleepContext(ctx, d)
	}
	_, err := client.WaitForCompletion(ctx, "vid-3", time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestErrorMessageForms(t *testing.T) {
	assert.Equal(t, "unknown error", VideoStatus{}.ErrorMessage())
	assert.Equal(t, "unknown error", VideoStatus{Error: json.RawMessage("null")}.ErrorMessage())
	assert.Equal(t, "boom", VideoStatus{Error: json.RawMessage(`"boom"`)}.ErrorMessage())
	assert.Equal(t, "bad", VideoStatus{Error: json.RawMessage(`{"message":"bad"}`)}.ErrorMessage())
	assert.True(t, VideoStatus{Status: StatusFailed}.Terminal())
	assert.False(t, VideoStatus{Status: StatusWaiting}.Terminal())
	assert.True(t, VideoStatus{Status: StatusPending}.Queued())
	assert.False(t, VideoStatus{Status: StatusProcessing}.Queued())
}

func TestDownloadWritesFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("mp4-bytes"))
	}))
	defer server.Close()

	dst := filepath.Join(t.TempDir(), "nested", "avatar_1.mp4")
	require.NoError(t, testClient(server.URL, nil).Download(context.Background(), server.URL+"/v.mp4", dst))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "mp4-bytes", string(data))

	entries, err := os.ReadDir(filepath.Dir(dst))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestDownloadNotFoundLeavesNothing(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	dst := filepath.Join(t.TempDir(), "avatar.mp4")
	err := testClient(server.URL, nil).Download(context.Background(), server.URL+"/missing", dst)
	require.Error(t, err)
	assert.NoFileExists(t, dst)
}
