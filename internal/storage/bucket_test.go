package storage

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGCS understands just enough of the JSON upload and XML read APIs for
// the client library.
type fakeGCS struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (f *fakeGCS) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/upload/storage/v1/b/"):
		_, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		mr := multipart.NewReader(r.Body, params["boundary"])
		var name string
		for i := 0; ; i++ {
			part, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			data, _ := io.ReadAll(part)
			if i == 0 {
				name = jsonField(string(data), "name")
				continue
			}
			f.objects[name] = data
		}
		bucket := strings.Split(strings.TrimPrefix(r.URL.Path, "/upload/storage/v1/b/"), "/")[0]
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"kind":"storage#object","bucket":"`+bucket+`","name":"`+name+`","size":"`+
			strconv.Itoa(len(f.objects[name]))+`"}`)
	case r.Method == http.MethodGet:
		parts := strings.SplitN(strings.TrimPrefix(r.URL.Path, "/"), "/", 2)
		if len(parts) != 2 {
			http.NotFound(w, r)
			return
		}
		object, _ := url.PathUnescape(parts[1])
		data, ok := f.objects[object]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		_, _ = w.Write(data)
	default:
		http.NotFound(w, r)
	}
}

func jsonField(doc, key string) string {
	marker := `"` + key + `":"`
	i := strings.Index(doc, marker)
	if i < 0 {
		return ""
	}
	rest := doc[i+len(marker):]
	return rest[:strings.Index(rest, `"`)]
}

func openFake(t *testing.T, opts Options) (*Bucket, *fakeGCS) {
	t.Helper()
	fake := &fakeGCS{objects: map[string][]byte{}}
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)
	t.Setenv("STORAGE_EMULATOR_HOST", strings.TrimPrefix(server.URL, "http://"))

	if opts.Bucket == "" {
		opts.Bucket = "lecture-audio"
	}
	b, err := Open(context.Background(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b, fake
}

func TestObjectName(t *testing.T) {
	assert.Equal(t, "presenter/run-1/part_001.wav", objectName("presenter", "run-1", "/tmp/x/part_001.wav"))
	assert.Equal(t, "part_001.wav", objectName("", "", "part_001.wav"))
	assert.Equal(t, "a/part.wav", objectName("/a/", "", "dir/part.wav"))
}

func TestPublicURL(t *testing.T) {
	assert.Equal(t, "https://storage.googleapis.com/bkt/presenter/run/my%20audio.mp3",
		PublicURL("bkt", "presenter/run/my audio.mp3"))
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "audio/wav", contentType("part.WAV"))
	assert.Equal(t, "audio/mpeg", contentType("output.mp3"))
	assert.Equal(t, "application/octet-stream", contentType("notes.txt"))
}

func TestOpenRequiresBucket(t *testing.T) {
	_, err := Open(context.Background(), Options{})
	assert.Error(t, err)
}

func TestUploadAndDownload(t *testing.T) {
	b, fake := openFake(t, Options{Prefix: "presenter", RunID: "run-7"})

	dir := t.TempDir()
	src := filepath.Join(dir, "part_001.wav")
	require.NoError(t, os.WriteFile(src, []byte("RIFF-audio"), 0644))

	object, err := b.Upload(context.Background(), src, "")
	require.NoError(t, err)
	assert.Equal(t, "presenter/run-7/part_001.wav", object)
	assert.Equal(t, []byte("RIFF-audio"), fake.objects[object])

	dst := filepath.Join(dir, "back", "copy.wav")
	require.NoError(t, b.Download(context.Background(), object, dst))
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "RIFF-audio", string(data))
}

func TestDownloadMissingObject(t *testing.T) {
	b, _ := openFake(t, Options{})
	err := b.Download(context.Background(), "nope.mp3", filepath.Join(t.TempDir(), "nope.mp3"))
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestSignedURL(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	pemKey := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})

	b, _ := openFake(t, Options{
		GoogleAccessID: "presenter@project.iam.gserviceaccount.com",
		PrivateKey:     pemKey,
	})

	signed, err := b.SignedURL("presenter/run/part_001.wav", time.Hour)
	require.NoError(t, err)
	u, err := url.Parse(signed)
	require.NoError(t, err)
	assert.Contains(t, u.Path, "part_001.wav")
	assert.Equal(t, "GOOG4-RSA-SHA256", u.Query().Get("X-Goog-Algorithm"))
	assert.NotEmpty(t, u.Query().Get("X-Goog-Signature"))

	_, err = b.SignedURL("x", 0)
	assert.Error(t, err)
}
