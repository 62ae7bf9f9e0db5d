package pipeline

import (
	"context"
	"fmt"

	"github.com/goodclips-platform/ingestion/internal/artifact"
	"github.com/goodclips-platform/ingestion/internal/vectorindex"
)

// EmbeddingSource supplies the embedding vector bytes and the blob URL
// already recorded by the tracker for one embedding artifact, so the
// vector-ingest stages never re-derive object keys themselves.
type EmbeddingSource interface {
	// MinioURL returns the lineage-recorded blob URL for artifactID, or ""
	// if the artifact has not been persisted.
	MinioURL(ctx context.Context, artifactID string) (string, error)
	// Vector returns the embedding vector for artifactID, decoded from its
	// persisted blob.
	Vector(ctx context.Context, minioURL string) ([]float32, error)
}

// VectorStore narrows vectorindex.Client to the operations the vector-ingest
// stages need, so tests can substitute an in-memory fake instead of a live
// Qdrant instance (the same narrowing pattern as persist.BlobStore and
// registry.Resolver).
type VectorStore interface {
	Upsert(ctx context.Context, collection string, artifactID string, embedding []float32, payload map[string]any) error
	UpsertBatch(ctx context.Context, collection string, points []vectorindex.UpsertPoint) error
	ExistsByDedupKey(ctx context.Context, collection, artifactID, videoID, userBucket string) (bool, error)
}

// VectorIngestImageStage writes one ImageEmbeddingRow per ImageEmbedding
// artifact into the image_embedding collection (spec.md §4.8.10).
type VectorIngestImageStage struct {
	Embeddings []artifact.ImageEmbedding
	Source     EmbeddingSource
	Index      VectorStore
	BatchSize  int
}

func (s *VectorIngestImageStage) Name() string { return "vectoringest-image" }

func (s *VectorIngestImageStage) Run(ctx context.Context) error {
	var pending []vectorindex.UpsertPoint
	for _, e := range s.Embeddings {
		minioURL, err := s.Source.MinioURL(ctx, e.ArtifactID())
		if err != nil {
			return fmt.Errorf("vectoringest-image: lookup %s: %w", e.ArtifactID(), err)
		}
		if minioURL == "" {
			continue
		}

		exists, err := s.Index.ExistsByDedupKey(ctx, vectorindex.ImageEmbeddingCollection, e.ArtifactID(), e.VideoIDVal, e.Bucket)
		if err != nil {
			return fmt.Errorf("vectoringest-image: dedup check %s: %w", e.ArtifactID(), err)
		}
		if exists {
			continue
		}

		vector, err := s.Source.Vector(ctx, minioURL)
		if err != nil {
			return fmt.Errorf("vectoringest-image: fetch vector %s: %w", e.ArtifactID(), err)
		}

		row := vectorindex.ImageEmbeddingRow{
			ArtifactID:     e.ArtifactID(),
			Embedding:      vector,
			RelatedVideoID: e.VideoIDVal,
			MinioURL:       minioURL,
			UserBucket:     e.Bucket,
			FrameIndex:     int64(e.FrameIndex),
			Timestamp:      e.Timestamp,
		}
		pending = append(pending, vectorindex.UpsertPoint{ArtifactID: row.ArtifactID, Embedding: row.Embedding, Payload: row.Payload()})
	}

	_, err := RunBatches(ctx, pending, s.BatchSize, func(ctx context.Context, batch []vectorindex.UpsertPoint) ([]struct{}, error) {
		if err := s.Index.UpsertBatch(ctx, vectorindex.ImageEmbeddingCollection, batch); err != nil {
			return nil, fmt.Errorf("vectoringest-image: batch upsert: %w", err)
		}
		return make([]struct{}, len(batch)), nil
	})
	return err
}

// VectorIngestTextCaptionStage writes one TextImageCaptionEmbeddingRow per
// TextCaptionEmbedding artifact (spec.md §4.8.11).
type VectorIngestTextCaptionStage struct {
	Embeddings  []artifact.TextCaptionEmbedding
	CaptionText map[string]string // by ImageCaption artifact id (== CaptionID)
	CaptionURL  map[string]string // by ImageCaption artifact id
	ImageURL    map[string]string // by Image artifact id, keyed via ImageCaption's ImageID
	Source      EmbeddingSource
	Index       VectorStore
	BatchSize   int
}

func (s *VectorIngestTextCaptionStage) Name() string { return "vectoringest-text-caption" }

func (s *VectorIngestTextCaptionStage) Run(ctx context.Context) error {
	var pending []vectorindex.UpsertPoint
	for _, e := range s.Embeddings {
		minioURL, err := s.Source.MinioURL(ctx, e.ArtifactID())
		if err != nil {
			return fmt.Errorf("vectoringest-text-caption: lookup %s: %w", e.ArtifactID(), err)
		}
		if minioURL == "" {
			continue
		}

		exists, err := s.Index.ExistsByDedupKey(ctx, vectorindex.TextImageCaptionEmbeddingCollection, e.ArtifactID(), e.VideoIDVal, e.Bucket)
		if err != nil {
			return fmt.Errorf("vectoringest-text-caption: dedup check %s: %w", e.ArtifactID(), err)
		}
		if exists {
			continue
		}

		vector, err := s.Source.Vector(ctx, minioURL)
		if err != nil {
			return fmt.Errorf("vectoringest-text-caption: fetch vector %s: %w", e.ArtifactID(), err)
		}

		row := vectorindex.TextImageCaptionEmbeddingRow{
			ArtifactID:      e.ArtifactID(),
			Embedding:       vector,
			FrameIndex:      int64(e.FrameIndex),
			Timestamp:       e.Timestamp,
			RelatedVideoID:  e.VideoIDVal,
			Caption:         s.CaptionText[e.CaptionID],
			CaptionMinioURL: s.CaptionURL[e.CaptionID],
			UserBucket:      e.Bucket,
			ImageMinioURL:   s.ImageURL[e.CaptionID],
		}
		pending = append(pending, vectorindex.UpsertPoint{ArtifactID: row.ArtifactID, Embedding: row.Embedding, Payload: row.Payload()})
	}

	_, err := RunBatches(ctx, pending, s.BatchSize, func(ctx context.Context, batch []vectorindex.UpsertPoint) ([]struct{}, error) {
		if err := s.Index.UpsertBatch(ctx, vectorindex.TextImageCaptionEmbeddingCollection, batch); err != nil {
			return nil, fmt.Errorf("vectoringest-text-caption: batch upsert: %w", err)
		}
		return make([]struct{}, len(batch)), nil
	})
	return err
}

// VectorIngestSegmentCaptionStage writes one SegmentCaptionEmbeddingRow per
// SegmentCaptionEmbedding artifact (spec.md §4.8.12).
type VectorIngestSegmentCaptionStage struct {
	Embeddings  []artifact.SegmentCaptionEmbedding
	CaptionText map[string]string // by SegmentCaption artifact id (== SegmentCapID)
	CaptionURL  map[string]string // by SegmentCaption artifact id
	Source      EmbeddingSource
	Index       VectorStore
	BatchSize   int
}

func (s *VectorIngestSegmentCaptionStage) Name() string { return "vectoringest-segment-caption" }

func (s *VectorIngestSegmentCaptionStage) Run(ctx context.Context) error {
	var pending []vectorindex.UpsertPoint
	for _, e := range s.Embeddings {
		minioURL, err := s.Source.MinioURL(ctx, e.ArtifactID())
		if err != nil {
			return fmt.Errorf("vectoringest-segment-caption: lookup %s: %w", e.ArtifactID(), err)
		}
		if minioURL == "" {
			continue
		}

		exists, err := s.Index.ExistsByDedupKey(ctx, vectorindex.SegmentCaptionEmbeddingCollection, e.ArtifactID(), e.VideoIDVal, e.Bucket)
		if err != nil {
			return fmt.Errorf("vectoringest-segment-caption: dedup check %s: %w", e.ArtifactID(), err)
		}
		if exists {
			continue
		}

		vector, err := s.Source.Vector(ctx, minioURL)
		if err != nil {
			return fmt.Errorf("vectoringest-segment-caption: fetch vector %s: %w", e.ArtifactID(), err)
		}

		row := vectorindex.SegmentCaptionEmbeddingRow{
			ArtifactID:             e.ArtifactID(),
			Embedding:              vector,
			StartFrame:             int64(e.StartFrame),
			EndFrame:               int64(e.EndFrame),
			RelatedVideoID:         e.VideoIDVal,
			Caption:                s.CaptionText[e.SegmentCapID],
			SegmentCaptionMinioURL: s.CaptionURL[e.SegmentCapID],
			UserBucket:             e.Bucket,
		}
		pending = append(pending, vectorindex.UpsertPoint{ArtifactID: row.ArtifactID, Embedding: row.Embedding, Payload: row.Payload()})
	}

	_, err := RunBatches(ctx, pending, s.BatchSize, func(ctx context.Context, batch []vectorindex.UpsertPoint) ([]struct{}, error) {
		if err := s.Index.UpsertBatch(ctx, vectorindex.SegmentCaptionEmbeddingCollection, batch); err != nil {
			return nil, fmt.Errorf("vectoringest-segment-caption: batch upsert: %w", err)
		}
		return make([]struct{}, len(batch)), nil
	})
	return err
}
