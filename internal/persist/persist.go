// Package persist implements the visitor that is the single mediator
// between an artifact and its blob store and lineage tracker; vector-index
// rows are written by the VectorIngest stages, not here. It is the only
// place the blob-then-lineage ordering is encoded.
package persist

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/goodclips-platform/ingestion/internal/artifact"
	"github.com/goodclips-platform/ingestion/internal/tracker"
)

// BlobStore is the subset of *storage.Client the visitor needs; accepting
// the interface rather than the concrete type lets tests substitute an
// in-memory fake instead of a live MinIO server.
type BlobStore interface {
	ObjectExists(ctx context.Context, bucket, objectName string) (bool, error)
	UploadFileObj(ctx context.Context, bucket, objectName string, r io.Reader, size int64, contentType string) (string, error)
	PutJSON(ctx context.Context, bucket, objectName string, payload any) (string, error)
}

// LineageStore is the subset of *tracker.Tracker the visitor needs.
type LineageStore interface {
	Exists(ctx context.Context, id string) (bool, error)
	SaveArtifact(ctx context.Context, m tracker.Metadata) error
	GetArtifact(ctx context.Context, id string) (*tracker.ArtifactRow, error)
}

// Visitor couples any artifact.Artifact to the blob and lineage stores.
// Vector-store persistence is handled separately by the VectorIngest stage
// tasks in internal/pipeline, which call through to internal/vectorindex
// directly rather than through this visitor — only the three VectorIngest
// variants ever write vector rows, per spec.md §3.5.
type Visitor struct {
	blob    BlobStore
	lineage LineageStore
}

func New(blob BlobStore, lineage LineageStore) *Visitor {
	return &Visitor{blob: blob, lineage: lineage}
}

// Exists reports whether this artifact has already been produced: the
// lineage row is present and, when the variant has a non-empty object key,
// the blob is present too. Every task consults this at the top of execute
// to decide whether to skip already-done work.
func (v *Visitor) Exists(ctx context.Context, a artifact.Artifact) (bool, error) {
	ok, err := v.lineage.Exists(ctx, a.ArtifactID())
	if err != nil {
		return false, fmt.Errorf("persist: exists check on lineage for %s: %w", a.ArtifactID(), err)
	}
	if !ok {
		return false, nil
	}
	if a.ObjectKey() == "" {
		return true, nil
	}
	blobOK, err := v.blob.ObjectExists(ctx, a.UserBucket(), a.ObjectKey())
	if err != nil {
		return false, fmt.Errorf("persist: exists check on blob for %s: %w", a.ArtifactID(), err)
	}
	return blobOK, nil
}

// Persist uploads payload under the artifact's object key (when it has
// one), then inserts the artifact row and parent edge in one transaction.
// Blob upload always happens before the lineage insert: a crash in between
// leaves an orphan blob the next run simply overwrites, since the object
// key is content-addressed and the lineage insert is itself idempotent
// (tracker.SaveArtifact upserts on artifact_id).
func (v *Visitor) Persist(ctx context.Context, a artifact.Artifact, payload any) error {
	minioURL := ""
	if a.ObjectKey() != "" && payload != nil {
		var err error
		switch p := payload.(type) {
		case []byte:
			minioURL, err = v.blob.UploadFileObj(ctx, a.UserBucket(), a.ObjectKey(), bytes.NewReader(p), int64(len(p)), a.ContentType())
		default:
			minioURL, err = v.blob.PutJSON(ctx, a.UserBucket(), a.ObjectKey(), payload)
		}
		if err != nil {
			return fmt.Errorf("persist: blob upload for %s: %w", a.ArtifactID(), err)
		}
	}

	var fps float64
	var filename string
	if video, ok := a.(artifact.Video); ok {
		fps = video.FPS
		filename = video.Filename
	}

	err := v.lineage.SaveArtifact(ctx, tracker.Metadata{
		ArtifactID:       a.ArtifactID(),
		ArtifactType:     a.ArtifactType(),
		MinioURL:         minioURL,
		ParentArtifactID: a.ParentArtifactID(),
		TaskName:         a.TaskName(),
		UserID:           a.UserBucket(),
		FPS:              fps,
		Filename:         filename,
	})
	if err != nil {
		return fmt.Errorf("persist: lineage insert for %s: %w", a.ArtifactID(), err)
	}
	return nil
}

// VideoFPS looks up the fps recorded for an already-ingested video, used on
// the skip-when-exists path where a Video's lineage row exists but nothing
// re-probes the file this run.
func (v *Visitor) VideoFPS(ctx context.Context, videoArtifactID string) (float64, error) {
	row, err := v.lineage.GetArtifact(ctx, videoArtifactID)
	if err != nil {
		return 0, fmt.Errorf("persist: fps lookup for %s: %w", videoArtifactID, err)
	}
	return row.FPS, nil
}

// VideoFilename looks up the original filename recorded for an
// already-ingested video, the same way VideoFPS recovers fps: a Video
// artifact has no object key, so its lineage row is the only place either
// value survives.
func (v *Visitor) VideoFilename(ctx context.Context, videoArtifactID string) (string, error) {
	row, err := v.lineage.GetArtifact(ctx, videoArtifactID)
	if err != nil {
		return "", fmt.Errorf("persist: filename lookup for %s: %w", videoArtifactID, err)
	}
	return row.Filename, nil
}
