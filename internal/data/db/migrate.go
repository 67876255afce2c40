package db

import (
	types "github.com/yungbote/qalam-backend/internal/domain"
	"gorm.io/gorm"
)

// Models lists every persisted model in migration order.
func Models() []interface{} {
	return []interface{}{
		// Projects + sources
		&types.Project{},
		&types.Source{},
		&types.Chapter{},

		// Knowledge base
		&types.KnowledgeEntity{},
		&types.UnifiedKnowledgeBase{},

		// Writing activity
		&types.WritingSession{},
		&types.UserEdit{},

		// Outputs
		&types.Artifact{},
		&types.SeriesOutline{},
		&types.EpisodeOutline{},

		// Task substrate
		&types.Task{},
	}
}

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}
