package domain

import (
	"github.com/yungbote/qalam-backend/internal/domain/artifacts"
	"github.com/yungbote/qalam-backend/internal/domain/jobs"
	"github.com/yungbote/qalam-backend/internal/domain/knowledge"
	"github.com/yungbote/qalam-backend/internal/domain/projects"
	"github.com/yungbote/qalam-backend/internal/domain/writing"
	"gorm.io/datatypes"
)

const (
	SourceKindVideo = projects.SourceKindVideo
	SourceKindAudio = projects.SourceKindAudio
	SourceKindPDF   = projects.SourceKindPDF
	SourceKindImage = projects.SourceKindImage
	SourceKindText  = projects.SourceKindText

	SourceUploaded   = projects.SourceStatusUploaded
	SourceProcessing = projects.SourceStatusProcessing
	SourceAnalyzed   = projects.SourceStatusAnalyzed
	SourceError      = projects.SourceStatusError

	EntityCharacter = knowledge.KindCharacter
	EntityPlace     = knowledge.KindPlace
	EntityEvent     = knowledge.KindEvent
	EntityClaim     = knowledge.KindClaim

	UKBBuilding = knowledge.UKBStatusBuilding
	UKBReady    = knowledge.UKBStatusReady

	TaskQueued    = jobs.TaskQueued
	TaskRunning   = jobs.TaskRunning
	TaskSucceeded = jobs.TaskSucceeded
	TaskFailed    = jobs.TaskFailed
	TaskRevoked   = jobs.TaskRevoked

	EditAICorrection = writing.EditKindAICorrection
	EditManual       = writing.EditKindManualEdit
	EditOther        = writing.EditKindOther

	ArtifactSceneText      = artifacts.KindSceneText
	ArtifactEpisodePlan    = artifacts.KindEpisodePlan
	ArtifactLiveNovelJSON  = artifacts.KindLiveNovelJSON
	ArtifactMovieTreatment = artifacts.KindMovieTreatment
	ArtifactInteractiveMap = artifacts.KindInteractiveMap
	ArtifactAudiobook      = artifacts.KindAudiobook
	ArtifactTranscript     = artifacts.KindTranscript
	ArtifactCleanText      = artifacts.KindCleanText
	ArtifactExtraction     = artifacts.KindExtraction
	ArtifactStyleNotes     = artifacts.KindStyleNotes
	ArtifactNarrativeDraft = artifacts.KindNarrativeDraft
)

type Project = projects.Project
type Source = projects.Source
type Chapter = projects.Chapter

type KnowledgeEntity = knowledge.KnowledgeEntity
type UnifiedKnowledgeBase = knowledge.UnifiedKnowledgeBase
type UKBSnapshot = knowledge.Snapshot
type CrossReference = knowledge.CrossReference
type TimelineEntry = knowledge.TimelineEntry
type ConfidenceScores = knowledge.ConfidenceScores

type WritingSession = writing.WritingSession
type UserEdit = writing.UserEdit

type Task = jobs.Task

type Artifact = artifacts.Artifact
type SeriesOutline = artifacts.SeriesOutline
type EpisodeOutline = artifacts.EpisodeOutline

func PtrFloat(v float64) *float64 { return &v }

func ClampUnit(v float64) float64 { return projects.ClampUnit(v) }

func ValidLatLng(lat, lng float64) bool { return knowledge.ValidLatLng(lat, lng) }

func EncodeStrings(in []string) datatypes.JSON { return knowledge.EncodeStrings(in) }

func IsTerminal(taskStatus string) bool { return jobs.IsTerminal(taskStatus) }

func IsSourceKind(kind string) bool { return projects.IsSourceKind(kind) }

func InferSourceKind(filename, mimeType string) string {
	return projects.InferSourceKind(filename, mimeType)
}
