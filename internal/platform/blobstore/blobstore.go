package blobstore

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"github.com/yungbote/qalam-backend/internal/platform/envutil"
	"github.com/yungbote/qalam-backend/internal/platform/logger"
)

// BlobStore holds project-scoped bytes. Stored objects are immutable: Put never
// overwrites an existing path.
type BlobStore interface {
	Put(ctx context.Context, projectID uuid.UUID, key string, data []byte) (string, error)
	Get(ctx context.Context, path string) ([]byte, error)
}

var ErrExists = errors.New("blob already exists")

type Mode string

const (
	ModeLocal       Mode = "local"
	ModeGCS         Mode = "gcs"
	ModeGCSEmulator Mode = "gcs_emulator"
)

type Config struct {
	Mode         Mode
	Root         string
	Bucket       string
	EmulatorHost string
}

func ConfigFromEnv() (Config, error) {
	cfg := Config{
		Mode:         Mode(strings.ToLower(envutil.String("BLOB_STORE_MODE", string(ModeLocal)))),
		Root:         envutil.String("BLOB_STORE_ROOT", "./data/blobs"),
		Bucket:       envutil.String("GCS_BUCKET_SOURCES", ""),
		EmulatorHost: envutil.String("STORAGE_EMULATOR_HOST", ""),
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch c.Mode {
	case ModeLocal:
		if strings.TrimSpace(c.Root) == "" {
			return fmt.Errorf("BLOB_STORE_MODE=local requires BLOB_STORE_ROOT")
		}
	case ModeGCS:
		if c.Bucket == "" {
			return fmt.Errorf("BLOB_STORE_MODE=gcs requires GCS_BUCKET_SOURCES")
		}
	case ModeGCSEmulator:
		if c.Bucket == "" {
			return fmt.Errorf("BLOB_STORE_MODE=gcs_emulator requires GCS_BUCKET_SOURCES")
		}
		u, err := url.Parse(c.EmulatorHost)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid STORAGE_EMULATOR_HOST=%q; expected absolute URL like http://fake-gcs:4443", c.EmulatorHost)
		}
	default:
		return fmt.Errorf("invalid BLOB_STORE_MODE=%q (allowed: local, gcs, gcs_emulator)", c.Mode)
	}
	return nil
}

func New(ctx context.Context, cfg Config, log *logger.Logger) (BlobStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info("Blob store initialized", "mode", cfg.Mode, "root", cfg.Root, "bucket", cfg.Bucket)
	if cfg.Mode == ModeLocal {
		return NewLocalStore(cfg.Root, log)
	}
	return NewGCSStore(ctx, cfg, log)
}

// Checksum is the hex blake2b-256 digest recorded on source metadata.
func Checksum(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// objectKey builds "projects/<id>/<key>" and rejects keys that escape the project prefix.
func objectKey(projectID uuid.UUID, key string) (string, error) {
	if projectID == uuid.Nil {
		return "", fmt.Errorf("blobstore: missing project id")
	}
	key = strings.TrimSpace(strings.ReplaceAll(key, "\\", "/"))
	clean := path.Clean("/" + key)
	if key == "" || clean == "/" || strings.Contains(key, "..") {
		return "", fmt.Errorf("blobstore: invalid key %q", key)
	}
	return path.Join("projects", projectID.String(), strings.TrimPrefix(clean, "/")), nil
}
