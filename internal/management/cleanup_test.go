package management

import (
	"context"
	"testing"
	"time"

	"github.com/goodclips-platform/ingestion/internal/artifact"
	"github.com/goodclips-platform/ingestion/internal/tracker"
	"github.com/goodclips-platform/ingestion/internal/vectorindex"
	"go.uber.org/zap"
)

type fakeLineageStore struct {
	rows map[string]tracker.ArtifactRow
}

func newFakeLineageStore() *fakeLineageStore {
	return &fakeLineageStore{rows: make(map[string]tracker.ArtifactRow)}
}

func (f *fakeLineageStore) add(row tracker.ArtifactRow) {
	f.rows[row.ArtifactID] = row
}

func (f *fakeLineageStore) GetArtifact(_ context.Context, id string) (*tracker.ArtifactRow, error) {
	row, ok := f.rows[id]
	if !ok {
		return nil, tracker.ErrNotFound
	}
	return &row, nil
}

func (f *fakeLineageStore) GetDescendants(_ context.Context, rootID string) (map[string]bool, error) {
	visited := map[string]bool{}
	var walk func(id string)
	walk = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true
		for _, row := range f.rows {
			if row.ParentArtifactID == id {
				walk(row.ArtifactID)
			}
		}
	}
	walk(rootID)
	delete(visited, rootID)
	return visited, nil
}

func (f *fakeLineageStore) RowsForIDs(_ context.Context, ids []string) ([]tracker.ArtifactRow, error) {
	var out []tracker.ArtifactRow
	for _, id := range ids {
		if row, ok := f.rows[id]; ok {
			out = append(out, row)
		}
	}
	return out, nil
}

func (f *fakeLineageStore) DeleteSubtree(_ context.Context, ids []string) (int64, int64, error) {
	var deleted int64
	for _, id := range ids {
		if _, ok := f.rows[id]; ok {
			delete(f.rows, id)
			deleted++
		}
	}
	return deleted, deleted, nil
}

func (f *fakeLineageStore) CountByType(_ context.Context, ids []string, artifactType string) (int64, error) {
	idSet := make(map[string]bool, len(ids))
	for _, id := range ids {
		idSet[id] = true
	}
	var n int64
	for _, row := range f.rows {
		if idSet[row.ArtifactID] && row.ArtifactType == artifactType {
			n++
		}
	}
	return n, nil
}

func (f *fakeLineageStore) LatestCreatedAt(_ context.Context, ids []string) (time.Time, error) {
	var latest time.Time
	for _, id := range ids {
		if row, ok := f.rows[id]; ok && row.CreatedAt.After(latest) {
			latest = row.CreatedAt
		}
	}
	return latest, nil
}

type fakeBlobDeleter struct {
	objects map[string]bool
	deleted []string
}

func newFakeBlobDeleter() *fakeBlobDeleter {
	return &fakeBlobDeleter{objects: make(map[string]bool)}
}

func (f *fakeBlobDeleter) ObjectExists(_ context.Context, bucket, objectName string) (bool, error) {
	return f.objects[bucket+"/"+objectName], nil
}

func (f *fakeBlobDeleter) DeleteObject(_ context.Context, bucket, objectName string) error {
	key := bucket + "/" + objectName
	delete(f.objects, key)
	f.deleted = append(f.deleted, key)
	return nil
}

type fakeVectorDeleter struct {
	deletedCollections []string
	deletedScoped      map[string][]string
}

func (f *fakeVectorDeleter) DeleteByVideoID(_ context.Context, collection, _ string) error {
	f.deletedCollections = append(f.deletedCollections, collection)
	return nil
}

func (f *fakeVectorDeleter) DeleteByArtifactIDs(_ context.Context, collection string, artifactIDs []string) error {
	if f.deletedScoped == nil {
		f.deletedScoped = make(map[string][]string)
	}
	f.deletedScoped[collection] = append(f.deletedScoped[collection], artifactIDs...)
	return nil
}

func buildTestForest(lineage *fakeLineageStore, blob *fakeBlobDeleter) {
	lineage.add(tracker.ArtifactRow{ArtifactID: "video-1", ArtifactType: string(artifact.TypeVideo), MinioURL: "s3://bucket/videos/video-1.mp4", Filename: "vacation.mp4"})
	blob.objects["bucket/videos/video-1.mp4"] = true

	lineage.add(tracker.ArtifactRow{ArtifactID: "autoshot-1", ArtifactType: string(artifact.TypeAutoshot), ParentArtifactID: "video-1", MinioURL: "s3://bucket/autoshots/autoshot-1.json"})
	blob.objects["bucket/autoshots/autoshot-1.json"] = true

	lineage.add(tracker.ArtifactRow{ArtifactID: "image-1", ArtifactType: string(artifact.TypeImage), ParentArtifactID: "autoshot-1", MinioURL: "s3://bucket/images/image-1.webp"})
	blob.objects["bucket/images/image-1.webp"] = true

	lineage.add(tracker.ArtifactRow{ArtifactID: "imagecap-1", ArtifactType: string(artifact.TypeImageCaption), ParentArtifactID: "image-1", MinioURL: "s3://bucket/imagecaptions/imagecap-1.json"})
	blob.objects["bucket/imagecaptions/imagecap-1.json"] = true

	lineage.add(tracker.ArtifactRow{ArtifactID: "imageembed-1", ArtifactType: string(artifact.TypeImageEmbedding), ParentArtifactID: "image-1"})

	lineage.add(tracker.ArtifactRow{ArtifactID: "segcap-1", ArtifactType: string(artifact.TypeSegmentCaption), ParentArtifactID: "autoshot-1"})
	lineage.add(tracker.ArtifactRow{ArtifactID: "segcapembed-1", ArtifactType: string(artifact.TypeSegmentCaptionEmbedding), ParentArtifactID: "segcap-1"})
}

func TestDeleteVideoCascadeRemovesEntireForest(t *testing.T) {
	lineage := newFakeLineageStore()
	blob := newFakeBlobDeleter()
	vector := &fakeVectorDeleter{}
	buildTestForest(lineage, blob)

	d := NewDeleter(lineage, blob, vector, zap.NewNop())
	result, err := d.DeleteVideoCascade(context.Background(), "video-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Errorf("expected success, got metadata: %+v", result.Metadata)
	}
	if len(lineage.rows) != 0 {
		t.Errorf("expected all rows removed, got %d remaining", len(lineage.rows))
	}
	if len(blob.objects) != 0 {
		t.Errorf("expected all blobs removed, got %d remaining", len(blob.objects))
	}
	if len(vector.deletedCollections) != 3 {
		t.Errorf("expected all 3 vector collections cleared, got %d", len(vector.deletedCollections))
	}
}

func TestDeleteVideoCascadeRejectsUnknownVideo(t *testing.T) {
	lineage := newFakeLineageStore()
	blob := newFakeBlobDeleter()
	d := NewDeleter(lineage, blob, &fakeVectorDeleter{}, zap.NewNop())

	_, err := d.DeleteVideoCascade(context.Background(), "ghost")
	if err == nil {
		t.Fatalf("expected error for unknown video")
	}
}

func TestDeleteStageArtifactsOnlyRemovesMatchingStageAndItsDescendants(t *testing.T) {
	lineage := newFakeLineageStore()
	blob := newFakeBlobDeleter()
	vector := &fakeVectorDeleter{}
	buildTestForest(lineage, blob)

	d := NewDeleter(lineage, blob, vector, zap.NewNop())
	result, err := d.DeleteStageArtifacts(context.Background(), "video-1", artifact.TypeImage)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Errorf("expected success, got metadata: %+v", result.Metadata)
	}

	if _, ok := lineage.rows["video-1"]; !ok {
		t.Errorf("video artifact must survive a stage-scoped delete")
	}
	if _, ok := lineage.rows["autoshot-1"]; !ok {
		t.Errorf("autoshot artifact must survive a stage-scoped delete")
	}
	if _, ok := lineage.rows["image-1"]; ok {
		t.Errorf("matching image artifact should have been removed")
	}
	if _, ok := lineage.rows["imagecap-1"]; ok {
		t.Errorf("image's descendant caption should have been removed too")
	}
	if _, ok := lineage.rows["segcap-1"]; !ok {
		t.Errorf("unrelated segment caption branch must survive a stage-scoped delete")
	}
	if _, ok := lineage.rows["segcapembed-1"]; !ok {
		t.Errorf("unrelated segment caption embedding must survive a stage-scoped delete")
	}

	if got := vector.deletedScoped[vectorindex.ImageEmbeddingCollection]; len(got) != 1 || got[0] != "imageembed-1" {
		t.Errorf("expected exactly imageembed-1 deleted from the image collection, got %v", got)
	}
	if _, touched := vector.deletedScoped[vectorindex.SegmentCaptionEmbeddingCollection]; touched {
		t.Errorf("stage-scoped delete must not touch the segment-caption-embedding collection at all")
	}
	if _, touched := vector.deletedScoped[vectorindex.TextImageCaptionEmbeddingCollection]; touched {
		t.Errorf("stage-scoped delete must not touch the text-image-caption-embedding collection at all")
	}
}

func TestDeleteStageArtifactsNoMatchIsANoOpSuccess(t *testing.T) {
	lineage := newFakeLineageStore()
	blob := newFakeBlobDeleter()
	buildTestForest(lineage, blob)

	d := NewDeleter(lineage, blob, &fakeVectorDeleter{}, zap.NewNop())
	result, err := d.DeleteStageArtifacts(context.Background(), "video-1", artifact.TypeASR)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Errorf("expected success for no-op delete")
	}
	if len(lineage.rows) != 7 {
		t.Errorf("expected no rows removed, got %d remaining", len(lineage.rows))
	}
}
