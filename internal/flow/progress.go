// Package flow orchestrates the video-ingestion DAG across the concrete
// internal/pipeline stages and publishes per-video progress events.
package flow

import (
	"sync"
	"time"
)

// ProcessingStage enumerates the DAG stages a video passes through, in the
// order the tracker reports them (spec.md §7).
type ProcessingStage string

const (
	StageVideoIngest         ProcessingStage = "video_ingest"
	StageAutoshotSegment     ProcessingStage = "autoshot_segmentation"
	StageASRTranscription    ProcessingStage = "asr_transcription"
	StageImageExtraction     ProcessingStage = "image_extraction"
	StageSegmentCaptioning   ProcessingStage = "segment_captioning"
	StageImageCaptioning     ProcessingStage = "image_captioning"
	StageImageEmbedding      ProcessingStage = "image_embedding"
	StageTextCapSegmentEmbed ProcessingStage = "text_cap_segment_embedding"
	StageTextCapImageEmbed   ProcessingStage = "text_cap_image_embedding"
	StageImageVectorIngest   ProcessingStage = "image_vector_ingest"
	StageTextVectorIngest    ProcessingStage = "text_vector_ingest"
	StageSegmentVectorIngest ProcessingStage = "segment_vector_ingest"
)

// allStages fixes iteration order for overall-percentage computation.
var allStages = []ProcessingStage{
	StageVideoIngest,
	StageAutoshotSegment,
	StageASRTranscription,
	StageImageExtraction,
	StageSegmentCaptioning,
	StageImageCaptioning,
	StageImageEmbedding,
	StageTextCapSegmentEmbed,
	StageTextCapImageEmbed,
	StageImageVectorIngest,
	StageTextVectorIngest,
	StageSegmentVectorIngest,
}

// RunStatus is the overall run-level state of one video's processing.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// StageProgress tracks one stage's completion within one video's run.
type StageProgress struct {
	Stage         ProcessingStage
	TotalItems    int
	CompletedItems int
	Percentage    float64
	StartTime     time.Time
	EndTime       time.Time
	Details       map[string]any
}

// VideoProgress tracks the full DAG progress for one video.
type VideoProgress struct {
	VideoID           string
	OverallPercentage float64
	CurrentStage      ProcessingStage
	Stages            map[ProcessingStage]*StageProgress
	StartTime         time.Time
	EndTime           time.Time
	Status            RunStatus
	Error             string
}

// Tracker is an in-memory, mutex-guarded progress store keyed by video id,
// mirroring the teacher's request for a simple concurrent map without a
// dedicated cache dependency (grounded on
// original_source/ingestion/core/management/progress.py's ProgressTracker).
type Tracker struct {
	mu       sync.Mutex
	progress map[string]*VideoProgress
}

func NewTracker() *Tracker {
	return &Tracker{progress: make(map[string]*VideoProgress)}
}

func (t *Tracker) StartVideo(videoID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	stages := make(map[ProcessingStage]*StageProgress, len(allStages))
	for _, s := range allStages {
		stages[s] = &StageProgress{Stage: s}
	}
	t.progress[videoID] = &VideoProgress{
		VideoID:   videoID,
		Stages:    stages,
		StartTime: time.Now(),
		Status:    RunRunning,
	}
}

func (t *Tracker) UpdateStageProgress(videoID string, stage ProcessingStage, total, completed int, details map[string]any) {
	t.mu.Lock()
	defer t.mu.Unlock()

	vp, ok := t.progress[videoID]
	if !ok {
		return
	}
	sp, ok := vp.Stages[stage]
	if !ok {
		return
	}

	sp.TotalItems = total
	sp.CompletedItems = completed
	if total > 0 {
		sp.Percentage = float64(completed) / float64(total) * 100
	} else {
		sp.Percentage = 0
	}
	sp.Details = details
	if sp.StartTime.IsZero() {
		sp.StartTime = time.Now()
	}

	completedStages := 0
	for _, s := range vp.Stages {
		if s.Percentage >= 100 {
			completedStages++
		}
	}
	vp.OverallPercentage = float64(completedStages) / float64(len(allStages)) * 100
	vp.CurrentStage = stage
}

func (t *Tracker) CompleteStage(videoID string, stage ProcessingStage) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if vp, ok := t.progress[videoID]; ok {
		if sp, ok := vp.Stages[stage]; ok {
			sp.EndTime = time.Now()
		}
	}
}

func (t *Tracker) CompleteRun(videoID string, status RunStatus, errMsg string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	vp, ok := t.progress[videoID]
	if !ok {
		return
	}
	vp.Status = status
	vp.EndTime = time.Now()
	vp.Error = errMsg
	if status == RunCompleted {
		vp.OverallPercentage = 100.0
	}
}

// GetProgress returns the tracker's own *VideoProgress for videoID, not a
// copy; later updates show through it (ok=false if unknown).
func (t *Tracker) GetProgress(videoID string) (*VideoProgress, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	vp, ok := t.progress[videoID]
	return vp, ok
}

func (t *Tracker) RemoveVideo(videoID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.progress, videoID)
}

func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.progress = make(map[string]*VideoProgress)
}
