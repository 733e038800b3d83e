// Package storage moves narration audio and renders in and out of Google
// Cloud Storage.
package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// PublicHost is the host of unauthenticated object URLs.
const PublicHost = "https://storage.googleapis.com"

// ErrObjectNotFound is returned when the named object does not exist.
var ErrObjectNotFound = errors.New("object not found")

// Options configures a Bucket.
type Options struct {
	Bucket          string
	Prefix          string
	RunID           string
	CredentialsFile string

	// Signing identity for SignedURL when it cannot be taken from the
	// client credentials.
	GoogleAccessID string
	PrivateKey     []byte

	Logger *zap.Logger
}

// Bucket is a GCS bucket scoped to an optional prefix and run.
type Bucket struct {
	client *gcs.Client
	handle *gcs.BucketHandle
	name   string
	prefix string
	runID  string

	accessID   string
	privateKey []byte
	logger     *zap.Logger
}

// Open connects to the bucket.
func Open(ctx context.Context, opts Options) (*Bucket, error) {
	if strings.TrimSpace(opts.Bucket) == "" {
		return nil, errors.New("storage: bucket name required")
	}
	var clientOpts []option.ClientOption
	if opts.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(opts.CredentialsFile))
	}
	client, err := gcs.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "create storage client")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bucket{
		client:     client,
		handle:     client.Bucket(opts.Bucket),
		name:       opts.Bucket,
		prefix:     strings.Trim(opts.Prefix, "/"),
		runID:      opts.RunID,
		accessID:   opts.GoogleAccessID,
		privateKey: opts.PrivateKey,
		logger:     logger.With(zap.String("bucket", opts.Bucket)),
	}, nil
}

// Name returns the bucket name.
func (b *Bucket) Name() string { return b.name }

// Close releases the client.
func (b *Bucket) Close() error {
	return b.client.Close()
}

// ObjectName maps a local file to <prefix>/<run>/<basename>, skipping empty
// parts.
func (b *Bucket) ObjectName(localPath string) string {
	return objectName(b.prefix, b.runID, localPath)
}

func objectName(prefix, runID, localPath string) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{prefix, runID, filepath.Base(localPath)} {
		if p = strings.Trim(p, "/"); p != "" {
			parts = append(parts, p)
		}
	}
	return path.Join(parts...)
}

// Upload copies localPath to object. An empty object name uses ObjectName.
func (b *Bucket) Upload(ctx context.Context, localPath, object string) (string, error) {
	if object == "" {
		object = b.ObjectName(localPath)
	}
	f, err := os.Open(localPath)
	if err != nil {
		return "", errors.Wrap(err, "open upload source")
	}
	defer f.Close()

	w := b.handle.Object(object).NewWriter(ctx)
	w.ContentType = contentType(localPath)
	if _, err := io.Copy(w, f); err != nil {
		_ = w.Close()
		return "", errors.Wrapf(err, "upload %s", object)
	}
	if err := w.Close(); err != nil {
		return "", errors.Wrapf(err, "finalize upload %s", object)
	}
	b.logger.Info("uploaded", zap.String("file", localPath), zap.String("object", object))
	return object, nil
}

// Download copies object to localPath.
func (b *Bucket) Download(ctx context.Context, object, localPath string) error {
	r, err := b.handle.Object(object).NewReader(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return errors.Wrapf(ErrObjectNotFound, "gs://%s/%s", b.name, object)
		}
		return errors.Wrapf(err, "open %s", object)
	}
	defer r.Close()

	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return errors.Wrap(err, "create download directory")
	}
	f, err := os.Create(localPath)
	if err != nil {
		return errors.Wrap(err, "create download target")
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return errors.Wrapf(err, "download %s", object)
	}
	if err := f.Close(); err != nil {
		return errors.WithStack(err)
	}
	b.logger.Info("downloaded", zap.String("object", object), zap.String("file", localPath))
	return nil
}

// SignedURL returns a V4 GET URL for object valid for ttl.
func (b *Bucket) SignedURL(object string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", fmt.Errorf("signed url ttl must be positive, got %s", ttl)
	}
	opts := &gcs.SignedURLOptions{
		Scheme:  gcs.SigningSchemeV4,
		Method:  "GET",
		Expires: time.Now().Add(ttl),
	}
	if b.accessID != "" && len(b.privateKey) > 0 {
		opts.GoogleAccessID = b.accessID
		opts.PrivateKey = b.privateKey
	}
	signed, err := b.handle.SignedURL(object, opts)
	if err != nil {
		return "", errors.Wrapf(err, "sign %s", object)
	}
	return signed, nil
}

// PublicURL returns the unauthenticated URL of object.
func (b *Bucket) PublicURL(object string) string {
	return PublicURL(b.name, object)
}

// PublicURL returns https://storage.googleapis.com/<bucket>/<object>.
func PublicURL(bucket, object string) string {
	segments := strings.Split(object, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return fmt.Sprintf("%s/%s/%s", PublicHost, bucket, strings.Join(segments, "/"))
}

func contentType(localPath string) string {
	switch strings.ToLower(filepath.Ext(localPath)) {
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".ogg":
		return "audio/ogg"
	case ".mp4":
		return "video/mp4"
	case ".mov":
		return "video/quicktime"
	case ".webm":
		return "video/webm"
	case ".png":
		return "image/png"
	default:
		return "application/octet-stream"
	}
}
