package knowledge

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/qalam-backend/internal/data/db"
	types "github.com/yungbote/qalam-backend/internal/domain"
	"github.com/yungbote/qalam-backend/internal/pkg/dbctx"
	apperrors "github.com/yungbote/qalam-backend/internal/pkg/errors"
	"github.com/yungbote/qalam-backend/internal/platform/logger"
)

// UKBContent is everything a correlation run produces for one project.
type UKBContent struct {
	CorrelationResults datatypes.JSON
	ConfidenceScores   datatypes.JSON
	Timeline           datatypes.JSON
	CharacterMapping   datatypes.JSON
	LocationMapping    datatypes.JSON
	CrossReferences    datatypes.JSON
	Themes             datatypes.JSON
	Entities           []*types.KnowledgeEntity
	BuiltByTaskID      *uuid.UUID
}

type UKBRepo interface {
	Get(dbc dbctx.Context, projectID uuid.UUID) (*types.UnifiedKnowledgeBase, error)
	// Snapshot returns the UKB row and exactly the entities of its current generation.
	Snapshot(dbc dbctx.Context, projectID uuid.UUID) (*types.UKBSnapshot, error)
	MarkBuilding(dbc dbctx.Context, projectID uuid.UUID) error
	AbortBuild(dbc dbctx.Context, projectID uuid.UUID) error
	// Swap replaces the project's entities and UKB row in one transaction and returns the
	// new generation.
	Swap(dbc dbctx.Context, projectID uuid.UUID, content *UKBContent) (int, error)
}

type ukbRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUKBRepo(db *gorm.DB, baseLog *logger.Logger) UKBRepo {
	return &ukbRepo{db: db, log: baseLog.With("repo", "UKBRepo")}
}

func ukbLockKey(projectID uuid.UUID) string { return "ukb:" + projectID.String() }

func (r *ukbRepo) Get(dbc dbctx.Context, projectID uuid.UUID) (*types.UnifiedKnowledgeBase, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var row types.UnifiedKnowledgeBase
	err := transaction.WithContext(dbc.Ctx).Where("project_id = ?", projectID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *ukbRepo) Snapshot(dbc dbctx.Context, projectID uuid.UUID) (*types.UKBSnapshot, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var snap *types.UKBSnapshot
	err := db.SnapshotRead(dbc.Ctx, transaction, func(txx *gorm.DB) error {
		var row types.UnifiedKnowledgeBase
		if err := txx.Where("project_id = ?", projectID).First(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrNotFound
			}
			return err
		}
		var ents []*types.KnowledgeEntity
		if err := txx.
			Where("project_id = ? AND generation = ?", projectID, row.Generation).
			Order("kind ASC, name ASC, id ASC").
			Find(&ents).Error; err != nil {
			return err
		}
		snap = &types.UKBSnapshot{UKB: &row, Entities: ents}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// MarkBuilding moves absent -> building or ready -> building. The previous generation stays
// readable until Swap commits.
func (r *ukbRepo) MarkBuilding(dbc dbctx.Context, projectID uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	now := time.Now().UTC()
	row := &types.UnifiedKnowledgeBase{
		ProjectID:          projectID,
		Status:             types.UKBBuilding,
		CorrelationResults: datatypes.JSON([]byte("{}")),
		ConfidenceScores:   datatypes.JSON([]byte("{}")),
		Timeline:           datatypes.JSON([]byte("[]")),
		CharacterMapping:   datatypes.JSON([]byte("{}")),
		LocationMapping:    datatypes.JSON([]byte("{}")),
		CrossReferences:    datatypes.JSON([]byte("[]")),
		Themes:             datatypes.JSON([]byte("[]")),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	return transaction.WithContext(dbc.Ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "project_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"status":     types.UKBBuilding,
			"updated_at": now,
		}),
	}).Create(row).Error
}

// AbortBuild undoes MarkBuilding after a failed rebuild: a never-built UKB goes back to
// absent, an existing one back to ready.
func (r *ukbRepo) AbortBuild(dbc dbctx.Context, projectID uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		if err := txx.Where("project_id = ? AND generation = 0 AND status = ?", projectID, types.UKBBuilding).
			Delete(&types.UnifiedKnowledgeBase{}).Error; err != nil {
			return err
		}
		return txx.Model(&types.UnifiedKnowledgeBase{}).
			Where("project_id = ? AND status = ?", projectID, types.UKBBuilding).
			Updates(map[string]interface{}{
				"status":     types.UKBReady,
				"updated_at": time.Now().UTC(),
			}).Error
	})
}

func (r *ukbRepo) Swap(dbc dbctx.Context, projectID uuid.UUID, content *UKBContent) (int, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if content == nil {
		return 0, apperrors.ErrInvalidArgument
	}
	var generation int
	err := transaction.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		if err := db.AdvisoryXactLock(txx, ukbLockKey(projectID)); err != nil {
			return fmt.Errorf("ukb lock: %w", err)
		}

		var current types.UnifiedKnowledgeBase
		err := txx.Where("project_id = ?", projectID).First(&current).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			current = types.UnifiedKnowledgeBase{ProjectID: projectID}
		case err != nil:
			return err
		}
		generation = current.Generation + 1

		if err := txx.Where("project_id = ?", projectID).Delete(&types.KnowledgeEntity{}).Error; err != nil {
			return fmt.Errorf("drop previous entities: %w", err)
		}

		now := time.Now().UTC()
		for _, e := range content.Entities {
			e.ProjectID = projectID
			e.Generation = generation
			if len(e.Aliases) == 0 {
				e.Aliases = datatypes.JSON([]byte("[]"))
			}
			if len(e.RelatedCharacterIDs) == 0 {
				e.RelatedCharacterIDs = datatypes.JSON([]byte("[]"))
			}
			if len(e.SourceIDs) == 0 {
				e.SourceIDs = datatypes.JSON([]byte("[]"))
			}
		}
		if len(content.Entities) > 0 {
			if err := txx.CreateInBatches(content.Entities, 200).Error; err != nil {
				if db.IsUniqueViolation(err) {
					return fmt.Errorf("insert entities: duplicate identity in generation: %w", err)
				}
				return fmt.Errorf("insert entities: %w", err)
			}
		}

		row := &types.UnifiedKnowledgeBase{
			ProjectID:          projectID,
			Status:             types.UKBReady,
			Generation:         generation,
			CorrelationResults: orJSON(content.CorrelationResults, "{}"),
			ConfidenceScores:   orJSON(content.ConfidenceScores, "{}"),
			Timeline:           orJSON(content.Timeline, "[]"),
			CharacterMapping:   orJSON(content.CharacterMapping, "{}"),
			LocationMapping:    orJSON(content.LocationMapping, "{}"),
			CrossReferences:    orJSON(content.CrossReferences, "[]"),
			Themes:             orJSON(content.Themes, "[]"),
			BuiltByTaskID:      content.BuiltByTaskID,
			BuiltAt:            &now,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if !current.CreatedAt.IsZero() {
			row.CreatedAt = current.CreatedAt
		}
		return txx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "project_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"status", "generation", "correlation_results", "confidence_scores", "timeline",
				"character_mapping", "location_mapping", "cross_references", "themes",
				"built_by_task_id", "built_at", "updated_at",
			}),
		}).Create(row).Error
	})
	if err != nil {
		return 0, err
	}
	r.log.Debug("ukb swapped", "project_id", projectID.String(), "generation", generation, "entities", len(content.Entities))
	return generation, nil
}

func orJSON(v datatypes.JSON, def string) datatypes.JSON {
	if len(v) == 0 {
		return datatypes.JSON([]byte(def))
	}
	return v
}
