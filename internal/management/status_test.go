package management

import (
	"context"
	"testing"

	"github.com/goodclips-platform/ingestion/internal/artifact"
)

func TestGetVideoStatusComputesCompletedStagesAndProgress(t *testing.T) {
	lineage := newFakeLineageStore()
	blob := newFakeBlobDeleter()
	buildTestForest(lineage, blob)

	r := NewStatusReporter(lineage)
	status, err := r.GetVideoStatus(context.Background(), "video-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status == nil {
		t.Fatalf("expected status, got nil")
	}

	// autoshot, image, image_caption, image_embedding, segment_caption,
	// segment_caption_embedding present => 6 of 8 stage types complete.
	wantCompleted := 6
	if len(status.StagesCompleted) != wantCompleted {
		t.Errorf("stages completed = %v (%d), want %d", status.StagesCompleted, len(status.StagesCompleted), wantCompleted)
	}
	wantProgress := roundTo2(float64(wantCompleted) / float64(len(stageArtifactTypes)) * 100)
	if status.ProgressPercentage != wantProgress {
		t.Errorf("progress = %v, want %v", status.ProgressPercentage, wantProgress)
	}
	if status.ArtifactCounts[string(artifact.TypeImage)] != 1 {
		t.Errorf("image count = %d, want 1", status.ArtifactCounts[string(artifact.TypeImage)])
	}
	if status.VideoName != "vacation.mp4" {
		t.Errorf("video name = %q, want %q", status.VideoName, "vacation.mp4")
	}
	if status.VectorBackend["backend"] != "qdrant" {
		t.Errorf("vector backend = %v, want qdrant info", status.VectorBackend)
	}
}

func TestGetVideoStatusReturnsNilForUnknownVideo(t *testing.T) {
	lineage := newFakeLineageStore()
	r := NewStatusReporter(lineage)

	status, err := r.GetVideoStatus(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != nil {
		t.Errorf("expected nil status for unknown video, got %+v", status)
	}
}
