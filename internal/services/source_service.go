package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/qalam-backend/internal/data/repos"
	types "github.com/yungbote/qalam-backend/internal/domain"
	"github.com/yungbote/qalam-backend/internal/pkg/dbctx"
	apperrors "github.com/yungbote/qalam-backend/internal/pkg/errors"
	"github.com/yungbote/qalam-backend/internal/platform/blobstore"
	"github.com/yungbote/qalam-backend/internal/platform/logger"
)

type SourceMetadata struct {
	Checksum         string `json:"checksum"`
	MimeType         string `json:"mime_type"`
	OriginalFilename string `json:"original_filename"`
}

type SourceService interface {
	// UploadSource stores bytes for a project. An empty kind is inferred from the MIME type
	// and the filename.
	UploadSource(dbc dbctx.Context, projectID uuid.UUID, filename string, data []byte, kind string) (*types.Source, error)
	// ReadSource returns the stored bytes after checking them against the upload checksum.
	ReadSource(dbc dbctx.Context, sourceID uuid.UUID) ([]byte, error)
	ListSources(dbc dbctx.Context, projectID uuid.UUID) ([]*types.Source, error)
}

type sourceService struct {
	db       *gorm.DB
	log      *logger.Logger
	blobs    blobstore.BlobStore
	sources  repos.SourceRepo
	projects repos.ProjectRepo
}

func NewSourceService(db *gorm.DB, baseLog *logger.Logger, blobs blobstore.BlobStore, sources repos.SourceRepo, projects repos.ProjectRepo) SourceService {
	return &sourceService{
		db:       db,
		log:      baseLog.With("service", "SourceService"),
		blobs:    blobs,
		sources:  sources,
		projects: projects,
	}
}

func (s *sourceService) UploadSource(dbc dbctx.Context, projectID uuid.UUID, filename string, data []byte, kind string) (*types.Source, error) {
	if s.blobs == nil {
		return nil, apperrors.Wrap(apperrors.ErrDependencyMissing, fmt.Errorf("blob store not configured"))
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, apperrors.Wrap(apperrors.ErrEmptySource, fmt.Errorf("%q has no content", filename))
	}
	filename = strings.TrimSpace(filename)
	if filename == "" {
		filename = "source"
	}
	mimeType := mimeByExtension(filename)
	kind = strings.ToLower(strings.TrimSpace(kind))
	if kind == "" {
		kind = types.InferSourceKind(filename, mimeType)
	}
	if kind == "" {
		// Unknown extension: fall back to content sniffing.
		sniffed := sniffMime(data)
		kind = types.InferSourceKind("", sniffed)
		if mimeType == "" {
			mimeType = sniffed
		}
	}
	if !types.IsSourceKind(kind) {
		return nil, apperrors.Wrap(apperrors.ErrUnsupportedSourceKind, fmt.Errorf("cannot ingest %q (kind %q, type %q)", filename, kind, mimeType))
	}
	if _, err := s.projects.GetByID(dbc, projectID); err != nil {
		return nil, err
	}

	sourceID := uuid.New()
	storagePath, err := s.blobs.Put(dbc.Ctx, projectID, "sources/"+sourceID.String()+"/"+safeName(filename), data)
	if err != nil {
		return nil, fmt.Errorf("store source bytes: %w", err)
	}
	meta, _ := json.Marshal(SourceMetadata{
		Checksum:         blobstore.Checksum(data),
		MimeType:         mimeType,
		OriginalFilename: filename,
	})
	src := &types.Source{
		ID:          sourceID,
		ProjectID:   projectID,
		DisplayName: filename,
		StoragePath: storagePath,
		Kind:        kind,
		SizeBytes:   int64(len(data)),
		MimeType:    mimeType,
		Status:      types.SourceUploaded,
		Metadata:    datatypes.JSON(meta),
	}

	transaction := dbc.Tx
	if transaction == nil {
		transaction = s.db
	}
	err = transaction.WithContext(dbc.Ctx).Transaction(func(tx *gorm.DB) error {
		inner := dbctx.Context{Ctx: dbc.Ctx, Tx: tx}
		if _, err := s.sources.Create(inner, src); err != nil {
			return fmt.Errorf("create source: %w", err)
		}
		return s.projects.IncrementSourcesCount(inner, projectID, 1)
	})
	if err != nil {
		// The stored bytes stay behind; blobs are append-only and unreferenced ones are harmless.
		return nil, err
	}
	s.log.Info("source uploaded",
		"project_id", projectID.String(),
		"source_id", sourceID.String(),
		"kind", kind,
		"bytes", len(data),
	)
	return src, nil
}

func (s *sourceService) ReadSource(dbc dbctx.Context, sourceID uuid.UUID) ([]byte, error) {
	if s.blobs == nil {
		return nil, apperrors.Wrap(apperrors.ErrDependencyMissing, fmt.Errorf("blob store not configured"))
	}
	src, err := s.sources.GetByID(dbc, sourceID)
	if err != nil {
		return nil, err
	}
	data, err := s.blobs.Get(dbc.Ctx, src.StoragePath)
	if err != nil {
		return nil, err
	}
	var meta SourceMetadata
	if json.Unmarshal(src.Metadata, &meta) == nil && meta.Checksum != "" && meta.Checksum != blobstore.Checksum(data) {
		return nil, fmt.Errorf("source %s: stored bytes do not match checksum", sourceID)
	}
	return data, nil
}

func (s *sourceService) ListSources(dbc dbctx.Context, projectID uuid.UUID) ([]*types.Source, error) {
	return s.sources.ListByProject(dbc, projectID)
}

func mimeByExtension(filename string) string {
	mt := mime.TypeByExtension(strings.ToLower(path.Ext(filename)))
	if mt == "" {
		return ""
	}
	if base, _, err := mime.ParseMediaType(mt); err == nil {
		return base
	}
	return mt
}

func sniffMime(data []byte) string {
	mt := http.DetectContentType(data)
	if base, _, err := mime.ParseMediaType(mt); err == nil {
		mt = base
	}
	if mt == "application/octet-stream" {
		return ""
	}
	return mt
}

// safeName keeps the base name and drops anything that could escape the key prefix.
func safeName(filename string) string {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." || name == "/" {
		return "source"
	}
	return name
}
