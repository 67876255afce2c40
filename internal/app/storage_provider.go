package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/yungbote/qalam-backend/internal/platform/blobstore"
	"github.com/yungbote/qalam-backend/internal/platform/logger"
)

var newBlobStore = blobstore.New

type BlobStoreBootstrapErrorCode string

const (
	BlobStoreBootstrapErrorInvalidMode         BlobStoreBootstrapErrorCode = "invalid_mode"
	BlobStoreBootstrapErrorMissingRoot         BlobStoreBootstrapErrorCode = "missing_root"
	BlobStoreBootstrapErrorMissingBucket       BlobStoreBootstrapErrorCode = "missing_bucket"
	BlobStoreBootstrapErrorInvalidEmulatorHost BlobStoreBootstrapErrorCode = "invalid_emulator_host"
	BlobStoreBootstrapErrorConnectFailed       BlobStoreBootstrapErrorCode = "connect_failed"
)

type BlobStoreBootstrapError struct {
	Code         BlobStoreBootstrapErrorCode
	Mode         string
	EmulatorHost string
	Cause        error
}

func (e *BlobStoreBootstrapError) Error() string {
	if e == nil {
		return "blob store bootstrap failed"
	}
	return fmt.Sprintf(
		"blob store bootstrap failed (code=%s mode=%q emulator_host=%q): %v",
		e.Code,
		e.Mode,
		e.EmulatorHost,
		e.Cause,
	)
}

func (e *BlobStoreBootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func resolveBlobStore(ctx context.Context, log *logger.Logger, cfg blobstore.Config) (blobstore.BlobStore, error) {
	if err := cfg.Validate(); err != nil {
		classified := classifyBlobStoreConfigError(cfg, err)
		log.Error(
			"Blob store selection failed",
			"mode", cfg.Mode,
			"emulator_host", cfg.EmulatorHost,
			"error_code", classified.Code,
			"error", classified,
		)
		return nil, classified
	}

	log.Info("Selecting blob store", "mode", cfg.Mode, "root", cfg.Root, "bucket", cfg.Bucket)

	store, err := newBlobStore(ctx, cfg, log)
	if err != nil {
		bootErr := &BlobStoreBootstrapError{
			Code:         BlobStoreBootstrapErrorConnectFailed,
			Mode:         string(cfg.Mode),
			EmulatorHost: cfg.EmulatorHost,
			Cause:        err,
		}
		log.Error("Blob store bootstrap failed", "mode", cfg.Mode, "error_code", bootErr.Code, "error", err)
		return nil, bootErr
	}
	return store, nil
}

// classifyBlobStoreConfigError maps a Config.Validate failure onto a bootstrap code.
func classifyBlobStoreConfigError(cfg blobstore.Config, err error) *BlobStoreBootstrapError {
	code := BlobStoreBootstrapErrorInvalidMode
	switch cfg.Mode {
	case blobstore.ModeLocal:
		code = BlobStoreBootstrapErrorMissingRoot
	case blobstore.ModeGCS:
		code = BlobStoreBootstrapErrorMissingBucket
	case blobstore.ModeGCSEmulator:
		if strings.TrimSpace(cfg.Bucket) == "" {
			code = BlobStoreBootstrapErrorMissingBucket
		} else {
			code = BlobStoreBootstrapErrorInvalidEmulatorHost
		}
	}
	return &BlobStoreBootstrapError{
		Code:         code,
		Mode:         string(cfg.Mode),
		EmulatorHost: cfg.EmulatorHost,
		Cause:        err,
	}
}

func blobStoreBootstrapErrorCode(err error) BlobStoreBootstrapErrorCode {
	var bootstrapErr *BlobStoreBootstrapError
	if errors.As(err, &bootstrapErr) && bootstrapErr.Code != "" {
		return bootstrapErr.Code
	}
	return BlobStoreBootstrapErrorConnectFailed
}
