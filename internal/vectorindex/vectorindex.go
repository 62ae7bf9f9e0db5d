// Package vectorindex implements a Qdrant-backed vector index base client
// and the three concrete embedding collections the ingest stages write to.
// Qdrant is the vector backend substitution for the original Milvus
// deployment — no Milvus Go SDK exists anywhere in the example pack, so the
// ecosystem's Go-native vector database client is used instead
// (DESIGN.md, "internal/vectorindex").
package vectorindex

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// MetricType mirrors spec.md §4.5's metric_type enum.
type MetricType string

const (
	MetricL2     MetricType = "L2"
	MetricCosine MetricType = "COSINE"
	MetricIP     MetricType = "IP"
)

// IndexType mirrors spec.md §4.5's index_type enum. Qdrant has no IVF
// family index; FLAT, IVF_FLAT, and AUTOINDEX all map onto Qdrant's default
// flat/exact search, only HNSW gets a real ANN configuration (DESIGN.md
// Open Question #8).
type IndexType string

const (
	IndexFlat      IndexType = "FLAT"
	IndexIVFFlat   IndexType = "IVF_FLAT"
	IndexHNSW      IndexType = "HNSW"
	IndexAutoIndex IndexType = "AUTOINDEX"
)

// CollectionConfig mirrors spec.md §4.5's MilvusCollectionConfig, renamed
// for the Qdrant backend but keeping the same tunables.
type CollectionConfig struct {
	CollectionName string
	Dimension      uint64
	Metric         MetricType
	Index          IndexType
	Nlist          int // retained for config-surface parity; unused under Qdrant
	M              int
	EfConstruction int
}

func (c CollectionConfig) qdrantDistance() qdrant.Distance {
	switch c.Metric {
	case MetricL2:
		return qdrant.Distance_Euclid
	case MetricIP:
		return qdrant.Distance_Dot
	default:
		return qdrant.Distance_Cosine
	}
}

// Client wraps a Qdrant gRPC connection and exposes the collection
// lifecycle + row operations spec.md §4.5 names, generalized over the
// concrete row types in rows.go.
type Client struct {
	qc *qdrant.Client
}

func New(host string, port int, apiKey string) (*Client, error) {
	qc, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("vectorindex: connect: %w", err)
	}
	return &Client{qc: qc}, nil
}

func (c *Client) Close() error { return c.qc.Close() }

// EnsureCollection creates the collection with its vector + index
// parameters if it does not already exist.
func (c *Client) EnsureCollection(ctx context.Context, cfg CollectionConfig) error {
	exists, err := c.qc.CollectionExists(ctx, cfg.CollectionName)
	if err != nil {
		return fmt.Errorf("vectorindex: collection-exists %s: %w", cfg.CollectionName, err)
	}
	if exists {
		return nil
	}

	var hnswConfig *qdrant.HnswConfigDiff
	if cfg.Index == IndexHNSW {
		m := uint64(cfg.M)
		efConstruction := uint64(cfg.EfConstruction)
		hnswConfig = &qdrant.HnswConfigDiff{
			M:              &m,
			EfConstruct:    &efConstruction,
		}
	}

	err = c.qc.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: cfg.CollectionName,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     cfg.Dimension,
			Distance: cfg.qdrantDistance(),
		}),
		HnswConfig: hnswConfig,
	})
	if err != nil {
		return fmt.Errorf("vectorindex: create-collection %s: %w", cfg.CollectionName, err)
	}
	return nil
}

// PointID derives a stable Qdrant point id from a content-addressed string
// artifact id: Qdrant requires numeric or UUID point ids, so a UUIDv5 is
// derived deterministically from the artifact id and the original string
// is preserved verbatim in the row's artifact_id payload field (DESIGN.md
// Open Question #7).
func PointID(artifactID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(artifactID)).String()
}

// Upsert writes one row's vector + payload fields into a collection.
func (c *Client) Upsert(ctx context.Context, collection string, artifactID string, embedding []float32, payload map[string]any) error {
	fields := make(map[string]*qdrant.Value, len(payload)+1)
	fields["artifact_id"] = qdrant.NewValueString(artifactID)
	for k, v := range payload {
		fields[k] = toQdrantValue(v)
	}

	_, err := c.qc.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points: []*qdrant.PointStruct{
			{
				Id:      qdrant.NewIDUUID(PointID(artifactID)),
				Vectors: qdrant.NewVectors(embedding...),
				Payload: fields,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("vectorindex: upsert into %s: %w", collection, err)
	}
	return nil
}

// UpsertPoint is one row queued for a batched write.
type UpsertPoint struct {
	ArtifactID string
	Embedding  []float32
	Payload    map[string]any
}

// UpsertBatch writes every point into collection in a single Qdrant upsert
// call, per spec.md §4.8.9's per-stage configurable batch size.
func (c *Client) UpsertBatch(ctx context.Context, collection string, points []UpsertPoint) error {
	if len(points) == 0 {
		return nil
	}

	qpoints := make([]*qdrant.PointStruct, len(points))
	for i, p := range points {
		fields := make(map[string]*qdrant.Value, len(p.Payload)+1)
		fields["artifact_id"] = qdrant.NewValueString(p.ArtifactID)
		for k, v := range p.Payload {
			fields[k] = toQdrantValue(v)
		}
		qpoints[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(PointID(p.ArtifactID)),
			Vectors: qdrant.NewVectors(p.Embedding...),
			Payload: fields,
		}
	}

	_, err := c.qc.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points:         qpoints,
	})
	if err != nil {
		return fmt.Errorf("vectorindex: batch upsert into %s: %w", collection, err)
	}
	return nil
}

// ExistsByDedupKey reports whether a row matching the dedup filter
// (artifact_id, related_video_id, user_bucket) already exists, per spec.md
// §4.6's deduplication filter.
func (c *Client) ExistsByDedupKey(ctx context.Context, collection, artifactID, videoID, userBucket string) (bool, error) {
	result, err := c.qc.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("artifact_id", artifactID),
				qdrant.NewMatch("related_video_id", videoID),
				qdrant.NewMatch("user_bucket", userBucket),
			},
		},
		Limit: qdrant.PtrOf(uint64(1)),
	})
	if err != nil {
		return false, fmt.Errorf("vectorindex: exists query on %s: %w", collection, err)
	}
	return len(result) > 0, nil
}

// DeleteByVideoID removes every row in collection whose related_video_id
// matches videoID — the per-collection primitive the cascading deleter
// composes over all three collections.
func (c *Client) DeleteByVideoID(ctx context.Context, collection, videoID string) error {
	_, err := c.qc.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
				Filter: &qdrant.Filter{
					Must: []*qdrant.Condition{qdrant.NewMatch("related_video_id", videoID)},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("vectorindex: delete by video %s on %s: %w", videoID, collection, err)
	}
	return nil
}

// DeleteByArtifactIDs removes only the rows in collection whose artifact id
// is in artifactIDs, the scoped counterpart to DeleteByVideoID used when a
// cascading delete must leave the rest of a video's vector rows intact.
func (c *Client) DeleteByArtifactIDs(ctx context.Context, collection string, artifactIDs []string) error {
	if len(artifactIDs) == 0 {
		return nil
	}

	ids := make([]*qdrant.PointId, len(artifactIDs))
	for i, id := range artifactIDs {
		ids[i] = qdrant.NewIDUUID(PointID(id))
	}

	_, err := c.qc.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{
				Points: &qdrant.PointsIdsList{Ids: ids},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("vectorindex: delete by artifact ids on %s: %w", collection, err)
	}
	return nil
}

func toQdrantValue(v any) *qdrant.Value {
	switch x := v.(type) {
	case string:
		return qdrant.NewValueString(x)
	case int:
		return qdrant.NewValueInt(int64(x))
	case int64:
		return qdrant.NewValueInt(x)
	case float64:
		return qdrant.NewValueDouble(x)
	case bool:
		return qdrant.NewValueBool(x)
	default:
		return qdrant.NewValueString(fmt.Sprintf("%v", x))
	}
}
