package management

import (
	"context"
	"fmt"
	"time"

	"github.com/goodclips-platform/ingestion/internal/artifact"
	"github.com/goodclips-platform/ingestion/internal/tracker"
	"github.com/goodclips-platform/ingestion/internal/vectorindex"
)

// vectorBackendInfo reports the vector collections a video's embeddings can
// land in, the Qdrant-backed equivalent of the original status payload's
// milvus_info field (spec.md §6.2).
var vectorBackendInfo = map[string]string{
	"backend":                    "qdrant",
	"image_embedding_collection": vectorindex.ImageEmbeddingCollection,
	"text_image_caption_collection": vectorindex.TextImageCaptionEmbeddingCollection,
	"segment_caption_collection": vectorindex.SegmentCaptionEmbeddingCollection,
}

// stageArtifactTypes lists the artifact types whose presence marks a stage
// complete, in report order, grounded on
// original_source/ingestion/core/management/status.py's STAGES list.
var stageArtifactTypes = []artifact.Type{
	artifact.TypeAutoshot,
	artifact.TypeASR,
	artifact.TypeImage,
	artifact.TypeSegmentCaption,
	artifact.TypeImageCaption,
	artifact.TypeImageEmbedding,
	artifact.TypeTextCaptionEmbedding,
	artifact.TypeSegmentCaptionEmbedding,
}

// VideoStatus reports one video's ingestion progress, computed purely from
// the lineage tracker's rows rather than the in-memory Tracker in
// internal/flow, so it survives process restarts.
type VideoStatus struct {
	VideoID            string
	VideoName          string
	StagesCompleted    []string
	ProgressPercentage float64
	ArtifactCounts      map[string]int64
	LatestUpdate        time.Time
	MinioURL            string
	VectorBackend       map[string]string
}

// StatusReporter answers point-in-time status queries over the lineage
// forest, grounded on status.py's VideoStatusManager.
type StatusReporter struct {
	lineage LineageStore
}

func NewStatusReporter(lineage LineageStore) *StatusReporter {
	return &StatusReporter{lineage: lineage}
}

// GetVideoStatus reports per-stage completion and overall progress for one
// video. Returns (nil, nil) when the video id is unknown, letting the HTTP
// layer distinguish "not found" from a real error.
func (r *StatusReporter) GetVideoStatus(ctx context.Context, videoID string) (*VideoStatus, error) {
	video, err := r.lineage.GetArtifact(ctx, videoID)
	if err != nil {
		if err == tracker.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("management: lookup video %s: %w", videoID, err)
	}

	descendants, err := r.lineage.GetDescendants(ctx, videoID)
	if err != nil {
		return nil, fmt.Errorf("management: descendants of %s: %w", videoID, err)
	}
	descendants[videoID] = true

	ids := make([]string, 0, len(descendants))
	for id := range descendants {
		ids = append(ids, id)
	}

	counts := make(map[string]int64, len(stageArtifactTypes))
	var completed []string
	for _, t := range stageArtifactTypes {
		n, err := r.lineage.CountByType(ctx, ids, string(t))
		if err != nil {
			return nil, fmt.Errorf("management: count %s for %s: %w", t, videoID, err)
		}
		counts[string(t)] = n
		if n > 0 {
			completed = append(completed, string(t))
		}
	}

	progress := float64(len(completed)) / float64(len(stageArtifactTypes)) * 100

	latest, err := r.lineage.LatestCreatedAt(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("management: latest update for %s: %w", videoID, err)
	}

	return &VideoStatus{
		VideoID:            videoID,
		VideoName:          video.Filename,
		StagesCompleted:    completed,
		ProgressPercentage: roundTo2(progress),
		ArtifactCounts:      counts,
		LatestUpdate:        latest,
		MinioURL:            video.MinioURL,
		VectorBackend:       vectorBackendInfo,
	}, nil
}

func roundTo2(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}
