package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/yungbote/qalam-backend/internal/platform/logger"
)

// LocalStore writes under a root directory. Writers of one project serialize on a lock
// file in the project directory, so concurrent processes cannot interleave a write.
type LocalStore struct {
	root string
	log  *logger.Logger
}

func NewLocalStore(root string, log *logger.Logger) (*LocalStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("blobstore: resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("blobstore: create root: %w", err)
	}
	return &LocalStore{root: abs, log: log.With("component", "LocalBlobStore")}, nil
}

func (s *LocalStore) Put(ctx context.Context, projectID uuid.UUID, key string, data []byte) (string, error) {
	rel, err := objectKey(projectID, key)
	if err != nil {
		return "", err
	}
	full := filepath.Join(s.root, filepath.FromSlash(rel))
	dir := filepath.Dir(full)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("blobstore: mkdir: %w", err)
	}

	lock := flock.New(filepath.Join(s.root, "projects", projectID.String(), ".lock"))
	locked, err := lock.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		return "", fmt.Errorf("blobstore: lock project dir: %w", err)
	}
	if !locked {
		return "", fmt.Errorf("blobstore: could not lock project dir")
	}
	defer func() { _ = lock.Unlock() }()

	f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("%w: %s", ErrExists, rel)
		}
		return "", fmt.Errorf("blobstore: create: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(full)
		return "", fmt.Errorf("blobstore: write: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("blobstore: sync: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("blobstore: close: %w", err)
	}

	// Read back so a torn write is caught at upload time rather than at analysis time.
	back, err := os.ReadFile(full)
	if err != nil || !bytes.Equal(back, data) {
		return "", fmt.Errorf("blobstore: read-back verification failed for %s", rel)
	}
	s.log.Debug("blob stored", "path", rel, "size", len(data))
	return "file://" + filepath.ToSlash(rel), nil
}

func (s *LocalStore) Get(ctx context.Context, p string) ([]byte, error) {
	rel, ok := strings.CutPrefix(p, "file://")
	if !ok {
		return nil, fmt.Errorf("blobstore: not a local path %q", p)
	}
	full := filepath.Join(s.root, filepath.FromSlash(rel))
	if !strings.HasPrefix(full, s.root+string(os.PathSeparator)) {
		return nil, fmt.Errorf("blobstore: path escapes root %q", p)
	}
	b, err := os.ReadFile(full)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("blobstore: %s: %w", p, fs.ErrNotExist)
	}
	return b, err
}

// LocalPath resolves a stored path to a filesystem path so external tools (ffmpeg) can read it.
func (s *LocalStore) LocalPath(p string) (string, bool) {
	rel, ok := strings.CutPrefix(p, "file://")
	if !ok {
		return "", false
	}
	return filepath.Join(s.root, filepath.FromSlash(rel)), true
}
