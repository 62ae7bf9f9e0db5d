// Package processor adapts queued jobs (internal/queue) onto the DAG
// orchestrator (internal/flow). The teacher's worker loop dispatched one
// job per pipeline stage; this module collapses that to a single
// JobTypeIngestionRun per upload batch, since flow.Orchestrator already
// parallelizes ShotDetect/ASR/SegmentCaption/ImageExtract internally via
// errgroup — per-stage queue entries would just be redundant bookkeeping
// on top of the DAG's own scheduling.
package processor

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/goodclips-platform/ingestion/internal/flow"
	"github.com/goodclips-platform/ingestion/internal/pipeline"
)

// IngestionProcessor runs one full video_ingestion DAG per queued job.
type IngestionProcessor struct {
	Orchestrator *flow.Orchestrator
	Log          *zap.Logger
}

// NewIngestionProcessor creates an IngestionProcessor.
func NewIngestionProcessor(orch *flow.Orchestrator, log *zap.Logger) *IngestionProcessor {
	return &IngestionProcessor{Orchestrator: orch, Log: log}
}

// ProcessIngestionRun decodes a JobTypeIngestionRun payload and runs the DAG
// over it, returning the first stage error (if any) so the caller can mark
// the job failed with a useful message.
func (p *IngestionProcessor) ProcessIngestionRun(ctx context.Context, payload map[string]interface{}) error {
	uploads, userBucket, err := decodeIngestionPayload(payload)
	if err != nil {
		return fmt.Errorf("processor: %w", err)
	}

	manifest, err := p.Orchestrator.Run(ctx, flow.RunParams{Uploads: uploads, UserBucket: userBucket})
	if err != nil {
		return fmt.Errorf("processor: ingestion run: %w", err)
	}

	if p.Log != nil {
		p.Log.Info("ingestion run completed",
			zap.Int("video_count", manifest.Videos),
			zap.Int("segment_captions", manifest.SegmentCaptions),
			zap.Int("image_captions", manifest.ImageCaptions),
		)
	}
	return nil
}

// decodeIngestionPayload reads the "uploads"
// ([]{"video_id","blob_url","filename"}) and "user_bucket" fields a
// queue.Job's Payload carries for JobTypeIngestionRun, matching the shape
// internal/httpapi.uploadVideos builds when it enqueues a DAG invocation.
func decodeIngestionPayload(payload map[string]interface{}) ([]pipeline.VideoUpload, string, error) {
	userBucket, ok := payload["user_bucket"].(string)
	if !ok || userBucket == "" {
		return nil, "", fmt.Errorf("missing user_bucket in payload")
	}

	raw, ok := payload["uploads"].([]interface{})
	if !ok || len(raw) == 0 {
		return nil, "", fmt.Errorf("missing or empty uploads in payload")
	}

	uploads := make([]pipeline.VideoUpload, 0, len(raw))
	for i, item := range raw {
		m, ok := item.(map[string]interface{})
		if !ok {
			return nil, "", fmt.Errorf("uploads[%d]: not an object", i)
		}
		videoID, _ := m["video_id"].(string)
		blobURL, _ := m["blob_url"].(string)
		filename, _ := m["filename"].(string)
		if videoID == "" || blobURL == "" {
			return nil, "", fmt.Errorf("uploads[%d]: missing video_id or blob_url", i)
		}
		uploads = append(uploads, pipeline.VideoUpload{VideoID: videoID, BlobURL: blobURL, Filename: filename})
	}

	return uploads, userBucket, nil
}
