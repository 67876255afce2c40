package repos

import (
	"github.com/yungbote/qalam-backend/internal/data/repos/artifacts"
	"github.com/yungbote/qalam-backend/internal/data/repos/jobs"
	"github.com/yungbote/qalam-backend/internal/data/repos/knowledge"
	"github.com/yungbote/qalam-backend/internal/data/repos/projects"
	"github.com/yungbote/qalam-backend/internal/data/repos/writing"
	"github.com/yungbote/qalam-backend/internal/platform/logger"
	"gorm.io/gorm"
)

type ProjectRepo = projects.ProjectRepo
type SourceRepo = projects.SourceRepo
type ChapterRepo = projects.ChapterRepo

type KnowledgeEntityRepo = knowledge.KnowledgeEntityRepo
type UKBRepo = knowledge.UKBRepo
type UKBContent = knowledge.UKBContent

type WritingSessionRepo = writing.WritingSessionRepo
type UserEditRepo = writing.UserEditRepo
type SessionTotals = writing.SessionTotals

type ArtifactRepo = artifacts.ArtifactRepo
type SeriesOutlineRepo = artifacts.SeriesOutlineRepo

type TaskRepo = jobs.TaskRepo

func NewProjectRepo(db *gorm.DB, baseLog *logger.Logger) ProjectRepo {
	return projects.NewProjectRepo(db, baseLog)
}
func NewSourceRepo(db *gorm.DB, baseLog *logger.Logger) SourceRepo {
	return projects.NewSourceRepo(db, baseLog)
}
func NewChapterRepo(db *gorm.DB, baseLog *logger.Logger) ChapterRepo {
	return projects.NewChapterRepo(db, baseLog)
}

func NewKnowledgeEntityRepo(db *gorm.DB, baseLog *logger.Logger) KnowledgeEntityRepo {
	return knowledge.NewKnowledgeEntityRepo(db, baseLog)
}
func NewUKBRepo(db *gorm.DB, baseLog *logger.Logger) UKBRepo {
	return knowledge.NewUKBRepo(db, baseLog)
}

func NewWritingSessionRepo(db *gorm.DB, baseLog *logger.Logger) WritingSessionRepo {
	return writing.NewWritingSessionRepo(db, baseLog)
}
func NewUserEditRepo(db *gorm.DB, baseLog *logger.Logger) UserEditRepo {
	return writing.NewUserEditRepo(db, baseLog)
}

func NewArtifactRepo(db *gorm.DB, baseLog *logger.Logger) ArtifactRepo {
	return artifacts.NewArtifactRepo(db, baseLog)
}
func NewSeriesOutlineRepo(db *gorm.DB, baseLog *logger.Logger) SeriesOutlineRepo {
	return artifacts.NewSeriesOutlineRepo(db, baseLog)
}

func NewTaskRepo(db *gorm.DB, baseLog *logger.Logger) TaskRepo {
	return jobs.NewTaskRepo(db, baseLog)
}

// Set bundles every repo so wiring code can pass one value around.
type Set struct {
	Projects      ProjectRepo
	Sources       SourceRepo
	Chapters      ChapterRepo
	Entities      KnowledgeEntityRepo
	UKB           UKBRepo
	Sessions      WritingSessionRepo
	Edits         UserEditRepo
	Artifacts     ArtifactRepo
	SeriesOutline SeriesOutlineRepo
	Tasks         TaskRepo
}

func NewSet(db *gorm.DB, baseLog *logger.Logger) *Set {
	return &Set{
		Projects:      NewProjectRepo(db, baseLog),
		Sources:       NewSourceRepo(db, baseLog),
		Chapters:      NewChapterRepo(db, baseLog),
		Entities:      NewKnowledgeEntityRepo(db, baseLog),
		UKB:           NewUKBRepo(db, baseLog),
		Sessions:      NewWritingSessionRepo(db, baseLog),
		Edits:         NewUserEditRepo(db, baseLog),
		Artifacts:     NewArtifactRepo(db, baseLog),
		SeriesOutline: NewSeriesOutlineRepo(db, baseLog),
		Tasks:         NewTaskRepo(db, baseLog),
	}
}
