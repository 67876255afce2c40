package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/yungbote/qalam-backend/internal/platform/gcp"
	"github.com/yungbote/qalam-backend/internal/platform/logger"
)

type GCSStore struct {
	client *storage.Client
	bucket string
	log    *logger.Logger
}

func NewGCSStore(ctx context.Context, cfg Config, log *logger.Logger) (*GCSStore, error) {
	var opts []option.ClientOption
	if cfg.Mode == ModeGCSEmulator {
		_ = os.Setenv("STORAGE_EMULATOR_HOST", strings.TrimRight(cfg.EmulatorHost, "/"))
		opts = append(opts, option.WithoutAuthentication())
	} else {
		opts = append(gcp.ClientOptionsFromEnv(), option.WithScopes(storage.ScopeReadWrite))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("blobstore: storage client: %w", err)
	}
	return &GCSStore{client: client, bucket: cfg.Bucket, log: log.With("component", "GCSBlobStore")}, nil
}

func (s *GCSStore) Put(ctx context.Context, projectID uuid.UUID, key string, data []byte) (string, error) {
	name, err := objectKey(projectID, key)
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	obj := s.client.Bucket(s.bucket).Object(name).If(storage.Conditions{DoesNotExist: true})
	w := obj.NewWriter(ctx)
	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		w.ContentType = ct
	}
	w.Metadata = map[string]string{"blake2b": Checksum(data)}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("blobstore: write gcs object: %w", err)
	}
	if err := w.Close(); err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed {
			return "", fmt.Errorf("%w: gs://%s/%s", ErrExists, s.bucket, name)
		}
		return "", fmt.Errorf("blobstore: close gcs writer: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, name), nil
}

func (s *GCSStore) Get(ctx context.Context, p string) ([]byte, error) {
	rest, ok := strings.CutPrefix(p, "gs://")
	if !ok {
		return nil, fmt.Errorf("blobstore: not a gcs path %q", p)
	}
	bucket, name, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || name == "" {
		return nil, fmt.Errorf("blobstore: malformed gcs path %q", p)
	}
	r, err := s.client.Bucket(bucket).Object(name).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("blobstore: open %s: %w", p, err)
	}
	defer r.Close()
	return io.ReadAll(r)
}

func (s *GCSStore) Close() error { return s.client.Close() }
