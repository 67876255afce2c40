package app

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/qalam-backend/internal/platform/blobstore"
	"github.com/yungbote/qalam-backend/internal/platform/logger"
)

type stubBlobStore struct{}

func (stubBlobStore) Put(context.Context, uuid.UUID, string, []byte) (string, error) { return "", nil }
func (stubBlobStore) Get(context.Context, string) ([]byte, error)                    { return nil, nil }

func TestClassifyBlobStoreConfigError(t *testing.T) {
	cases := []struct {
		name string
		cfg  blobstore.Config
		want BlobStoreBootstrapErrorCode
	}{
		{"unknown mode", blobstore.Config{Mode: "s3"}, BlobStoreBootstrapErrorInvalidMode},
		{"local without root", blobstore.Config{Mode: blobstore.ModeLocal}, BlobStoreBootstrapErrorMissingRoot},
		{"gcs without bucket", blobstore.Config{Mode: blobstore.ModeGCS}, BlobStoreBootstrapErrorMissingBucket},
		{"emulator without bucket", blobstore.Config{Mode: blobstore.ModeGCSEmulator, EmulatorHost: "http://fake-gcs:4443"}, BlobStoreBootstrapErrorMissingBucket},
		{"emulator bad host", blobstore.Config{Mode: blobstore.ModeGCSEmulator, Bucket: "b", EmulatorHost: "fake-gcs:4443"}, BlobStoreBootstrapErrorInvalidEmulatorHost},
	}
	for _, tc := range cases {
		err := tc.cfg.Validate()
		if err == nil {
			t.Fatalf("%s: expected a validation error", tc.name)
		}
		if got := classifyBlobStoreConfigError(tc.cfg, err); got.Code != tc.want {
			t.Fatalf("%s: code want=%q got=%q", tc.name, tc.want, got.Code)
		}
	}
}

func TestResolveBlobStoreInvalidMode(t *testing.T) {
	_, err := resolveBlobStore(context.Background(), logger.NewNop(), blobstore.Config{Mode: "invalid"})
	if blobStoreBootstrapErrorCode(err) != BlobStoreBootstrapErrorInvalidMode {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestResolveBlobStoreConnectFailed(t *testing.T) {
	orig := newBlobStore
	t.Cleanup(func() { newBlobStore = orig })
	newBlobStore = func(context.Context, blobstore.Config, *logger.Logger) (blobstore.BlobStore, error) {
		return nil, errors.New("dial tcp: connection refused")
	}

	_, err := resolveBlobStore(context.Background(), logger.NewNop(), blobstore.Config{Mode: blobstore.ModeGCS, Bucket: "sources"})
	var got *BlobStoreBootstrapError
	if !errors.As(err, &got) || got.Code != BlobStoreBootstrapErrorConnectFailed {
		t.Fatalf("expected connect_failed, got %v", err)
	}
}

func TestResolveBlobStorePassesConfig(t *testing.T) {
	orig := newBlobStore
	t.Cleanup(func() { newBlobStore = orig })
	var captured blobstore.Config
	newBlobStore = func(_ context.Context, cfg blobstore.Config, _ *logger.Logger) (blobstore.BlobStore, error) {
		captured = cfg
		return stubBlobStore{}, nil
	}

	cfg := blobstore.Config{Mode: blobstore.ModeGCSEmulator, Bucket: "sources", EmulatorHost: "http://fake-gcs:4443"}
	store, err := resolveBlobStore(context.Background(), logger.NewNop(), cfg)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if _, ok := store.(stubBlobStore); !ok {
		t.Fatalf("expected the stub store, got %T", store)
	}
	if captured != cfg {
		t.Fatalf("config not passed through: %+v", captured)
	}
}

func TestResolveBlobStoreLocal(t *testing.T) {
	store, err := resolveBlobStore(context.Background(), logger.NewNop(), blobstore.Config{Mode: blobstore.ModeLocal, Root: t.TempDir()})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if _, ok := store.(*blobstore.LocalStore); !ok {
		t.Fatalf("expected a local store, got %T", store)
	}
}
