// Package management implements cross-store cleanup and status reporting
// over the artifact lineage forest: cascading deletes that remove a
// video's full descendant set from blob storage, the lineage tracker, and
// the vector index, plus a read-only progress summary used by the status
// API (spec.md §4.9-4.10).
package management

import (
	"context"
	"fmt"
	"time"

	"github.com/goodclips-platform/ingestion/internal/artifact"
	"github.com/goodclips-platform/ingestion/internal/tracker"
	"github.com/goodclips-platform/ingestion/internal/vectorindex"
	"go.uber.org/zap"
)

// LineageStore narrows *tracker.Tracker to the cascading-delete read/write
// paths.
type LineageStore interface {
	GetArtifact(ctx context.Context, id string) (*tracker.ArtifactRow, error)
	GetDescendants(ctx context.Context, rootID string) (map[string]bool, error)
	RowsForIDs(ctx context.Context, ids []string) ([]tracker.ArtifactRow, error)
	DeleteSubtree(ctx context.Context, ids []string) (deletedArtifacts int64, deletedEdges int64, err error)
	CountByType(ctx context.Context, ids []string, artifactType string) (int64, error)
	LatestCreatedAt(ctx context.Context, ids []string) (time.Time, error)
}

// BlobDeleter narrows *storage.Client to the one write path cleanup needs.
type BlobDeleter interface {
	ObjectExists(ctx context.Context, bucket, objectName string) (bool, error)
	DeleteObject(ctx context.Context, bucket, objectName string) error
}

// VectorDeleter narrows *vectorindex.Client to the per-collection
// by-video-id delete every collection must run, mirroring
// ArtifactDeleter.delete_by_related_video_id iterating over the three
// Milvus clients.
type VectorDeleter interface {
	DeleteByVideoID(ctx context.Context, collection, videoID string) error
	DeleteByArtifactIDs(ctx context.Context, collection string, artifactIDs []string) error
}

// DeletionResult mirrors the original ArtifactDeleter.DeletionResult shape:
// a single success flag plus a free-form metadata bag so API callers can
// surface per-store counts without the Go type growing every time a new
// store is added.
type DeletionResult struct {
	Success bool
	VideoID string
	Metadata map[string]any
}

// Deleter performs cascading deletes across blob storage, the lineage
// tracker, and the vector index, grounded on
// original_source/ingestion/core/management/cleanup.py's ArtifactDeleter.
type Deleter struct {
	lineage LineageStore
	blob    BlobDeleter
	vector  VectorDeleter
	log     *zap.Logger
}

func NewDeleter(lineage LineageStore, blob BlobDeleter, vector VectorDeleter, log *zap.Logger) *Deleter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Deleter{lineage: lineage, blob: blob, vector: vector, log: log}
}

// vectorCollections lists the three collections every cascading delete
// must clear, matching the image/text-caption/segment-caption Milvus
// clients the original deleter was constructed with.
var vectorCollections = []string{
	vectorindex.ImageEmbeddingCollection,
	vectorindex.TextImageCaptionEmbeddingCollection,
	vectorindex.SegmentCaptionEmbeddingCollection,
}

// vectorCollectionForType maps the three embedding artifact types onto the
// collection holding their rows, so a stage-scoped delete only touches the
// collection the deleted artifacts actually landed in.
var vectorCollectionForType = map[string]string{
	string(artifact.TypeImageEmbedding):          vectorindex.ImageEmbeddingCollection,
	string(artifact.TypeTextCaptionEmbedding):    vectorindex.TextImageCaptionEmbeddingCollection,
	string(artifact.TypeSegmentCaptionEmbedding): vectorindex.SegmentCaptionEmbeddingCollection,
}

// deleteVectorRows runs DeleteByVideoID against every collection,
// collecting per-collection counts and continuing past individual
// failures the way the Python deleter logs-and-continues per client.
func (d *Deleter) deleteVectorRows(ctx context.Context, videoID string) (map[string]string, []string) {
	perCollection := make(map[string]string, len(vectorCollections))
	var errs []string
	for _, collection := range vectorCollections {
		if err := d.vector.DeleteByVideoID(ctx, collection, videoID); err != nil {
			perCollection[collection] = "error"
			errs = append(errs, fmt.Sprintf("%s: %v", collection, err))
			d.log.Warn("vector delete failed", zap.String("collection", collection), zap.String("video_id", videoID), zap.Error(err))
			continue
		}
		perCollection[collection] = "ok"
	}
	return perCollection, errs
}

// deleteVectorRowsScoped removes only the vector rows for the artifacts in
// rows, grouped by the collection each artifact's type maps to, instead of
// blanket-deleting a whole video's rows across every collection (spec.md
// §8 testable property 7: stage-delete isolation).
func (d *Deleter) deleteVectorRowsScoped(ctx context.Context, rows []tracker.ArtifactRow) (map[string]string, []string) {
	byCollection := make(map[string][]string)
	for _, row := range rows {
		collection, ok := vectorCollectionForType[row.ArtifactType]
		if !ok {
			continue
		}
		byCollection[collection] = append(byCollection[collection], row.ArtifactID)
	}

	perCollection := make(map[string]string, len(byCollection))
	var errs []string
	for collection, ids := range byCollection {
		if err := d.vector.DeleteByArtifactIDs(ctx, collection, ids); err != nil {
			perCollection[collection] = "error"
			errs = append(errs, fmt.Sprintf("%s: %v", collection, err))
			d.log.Warn("scoped vector delete failed", zap.String("collection", collection), zap.Error(err))
			continue
		}
		perCollection[collection] = "ok"
	}
	return perCollection, errs
}

func (d *Deleter) deleteBlobs(ctx context.Context, rows []tracker.ArtifactRow) (int, []string) {
	deleted := 0
	var errs []string
	for _, row := range rows {
		if row.MinioURL == "" {
			continue
		}
		bucket, key, err := splitMinioURL(row.MinioURL)
		if err != nil {
			errs = append(errs, err.Error())
			continue
		}
		ok, err := d.blob.ObjectExists(ctx, bucket, key)
		if err != nil {
			errs = append(errs, fmt.Sprintf("check %s: %v", row.MinioURL, err))
			continue
		}
		if !ok {
			continue
		}
		if err := d.blob.DeleteObject(ctx, bucket, key); err != nil {
			errs = append(errs, fmt.Sprintf("delete %s: %v", row.MinioURL, err))
			continue
		}
		deleted++
	}
	return deleted, errs
}

// DeleteVideoCascade removes a video and every descendant artifact from
// blob storage, the lineage tables, and the vector index.
func (d *Deleter) DeleteVideoCascade(ctx context.Context, videoID string) (*DeletionResult, error) {
	if _, err := d.lineage.GetArtifact(ctx, videoID); err != nil {
		if err == tracker.ErrNotFound {
			return nil, fmt.Errorf("management: video not found: %s", videoID)
		}
		return nil, fmt.Errorf("management: lookup video %s: %w", videoID, err)
	}

	descendants, err := d.lineage.GetDescendants(ctx, videoID)
	if err != nil {
		return nil, fmt.Errorf("management: descendants of %s: %w", videoID, err)
	}
	descendants[videoID] = true

	ids := make([]string, 0, len(descendants))
	for id := range descendants {
		ids = append(ids, id)
	}
	d.log.Info("cascading delete", zap.String("video_id", videoID), zap.Int("artifact_count", len(ids)))

	rows, err := d.lineage.RowsForIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("management: rows for %s: %w", videoID, err)
	}

	deletedMinio, blobErrs := d.deleteBlobs(ctx, rows)
	deletedArtifacts, deletedEdges, err := d.lineage.DeleteSubtree(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("management: delete subtree for %s: %w", videoID, err)
	}
	vectorCounts, vectorErrs := d.deleteVectorRows(ctx, videoID)

	errs := append(append([]string{}, blobErrs...), vectorErrs...)

	return &DeletionResult{
		Success: len(errs) == 0,
		VideoID: videoID,
		Metadata: map[string]any{
			"deleted_artifacts":    deletedArtifacts,
			"deleted_lineage":      deletedEdges,
			"deleted_minio_objects": deletedMinio,
			"vector_delete":        vectorCounts,
			"errors":               errs,
		},
	}, nil
}

// DeleteStageArtifacts removes every artifact of artifactType reachable
// from videoID, plus each one's own descendants, leaving the rest of the
// video's lineage forest intact.
func (d *Deleter) DeleteStageArtifacts(ctx context.Context, videoID string, artifactType artifact.Type) (*DeletionResult, error) {
	if _, err := d.lineage.GetArtifact(ctx, videoID); err != nil {
		if err == tracker.ErrNotFound {
			return nil, fmt.Errorf("management: video not found: %s", videoID)
		}
		return nil, fmt.Errorf("management: lookup video %s: %w", videoID, err)
	}

	descendants, err := d.lineage.GetDescendants(ctx, videoID)
	if err != nil {
		return nil, fmt.Errorf("management: descendants of %s: %w", videoID, err)
	}
	descendants[videoID] = true

	allIDs := make([]string, 0, len(descendants))
	for id := range descendants {
		allIDs = append(allIDs, id)
	}

	rows, err := d.lineage.RowsForIDs(ctx, allIDs)
	if err != nil {
		return nil, fmt.Errorf("management: rows for %s: %w", videoID, err)
	}

	toDelete := make(map[string]bool)
	for _, row := range rows {
		if row.ArtifactType != string(artifactType) {
			continue
		}
		stageDescendants, err := d.lineage.GetDescendants(ctx, row.ArtifactID)
		if err != nil {
			return nil, fmt.Errorf("management: descendants of %s: %w", row.ArtifactID, err)
		}
		for id := range stageDescendants {
			toDelete[id] = true
		}
		toDelete[row.ArtifactID] = true
	}

	if len(toDelete) == 0 {
		return &DeletionResult{
			Success: true,
			VideoID: videoID,
			Metadata: map[string]any{
				"deleted_artifacts":    0,
				"deleted_lineage":      0,
				"deleted_minio_objects": 0,
				"errors":               []string{},
			},
		}, nil
	}

	ids := make([]string, 0, len(toDelete))
	for id := range toDelete {
		ids = append(ids, id)
	}
	deleteRows, err := d.lineage.RowsForIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("management: rows for deletion set: %w", err)
	}

	deletedMinio, blobErrs := d.deleteBlobs(ctx, deleteRows)
	deletedArtifacts, deletedEdges, err := d.lineage.DeleteSubtree(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("management: delete subtree: %w", err)
	}
	vectorCounts, vectorErrs := d.deleteVectorRowsScoped(ctx, deleteRows)

	errs := append(append([]string{}, blobErrs...), vectorErrs...)

	return &DeletionResult{
		Success: len(errs) == 0,
		VideoID: videoID,
		Metadata: map[string]any{
			"deleted_artifacts":    deletedArtifacts,
			"deleted_lineage":      deletedEdges,
			"deleted_minio_objects": deletedMinio,
			"vector_delete":        vectorCounts,
			"errors":               errs,
		},
	}, nil
}

// splitMinioURL parses the "s3://bucket/key" URIs the blob store emits.
func splitMinioURL(minioURL string) (bucket, key string, err error) {
	const prefix = "s3://"
	if len(minioURL) <= len(prefix) || minioURL[:len(prefix)] != prefix {
		return "", "", fmt.Errorf("management: malformed minio url %q", minioURL)
	}
	rest := minioURL[len(prefix):]
	for i := 0; i < len(rest); i++ {
		if rest[i] == '/' {
			return rest[:i], rest[i+1:], nil
		}
	}
	return "", "", fmt.Errorf("management: malformed minio url %q", minioURL)
}
