package pipeline

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/goodclips-platform/ingestion/internal/artifact"
	"github.com/goodclips-platform/ingestion/internal/persist"
	"github.com/goodclips-platform/ingestion/internal/registry"
)

// ImageEmbeddingClient calls the image-embedding microservice, which
// projects either images or text into one shared visual embedding space
// (spec.md §6.3 "Image embed": `image_base64`/`text_input` in,
// `image_embeddings`/`text_embeddings` out). EmbedText is what lets
// TextImageCaptionEmbeddingStage land caption vectors in the same space as
// ImageEmbeddingStage's image vectors, for cross-modal search.
type ImageEmbeddingClient interface {
	EmbedImages(ctx context.Context, base64Images []string) ([][]float32, error)
	EmbedText(ctx context.Context, texts []string) ([][]float32, error)
}

type serviceImageEmbeddingClient struct {
	client *registry.ServiceClient
}

func NewServiceImageEmbeddingClient(client *registry.ServiceClient) ImageEmbeddingClient {
	return &serviceImageEmbeddingClient{client: client}
}

func (c *serviceImageEmbeddingClient) EmbedImages(ctx context.Context, base64Images []string) ([][]float32, error) {
	req := map[string]any{"image_base64": base64Images, "metadata": map[string]any{}}
	var resp struct {
		ImageEmbeddings [][]float32 `json:"image_embeddings"`
		Status          string     `json:"status"`
	}
	if err := c.client.Invoke(ctx, req, &resp); err != nil {
		return nil, err
	}
	return resp.ImageEmbeddings, nil
}

func (c *serviceImageEmbeddingClient) EmbedText(ctx context.Context, texts []string) ([][]float32, error) {
	req := map[string]any{"text_input": texts, "metadata": map[string]any{}}
	var resp struct {
		TextEmbeddings [][]float32 `json:"text_embeddings"`
		Status         string     `json:"status"`
	}
	if err := c.client.Invoke(ctx, req, &resp); err != nil {
		return nil, err
	}
	return resp.TextEmbeddings, nil
}

// ImageEmbeddingStage batch-encodes every extracted Image into a dense
// visual vector (spec.md §4.8.7).
type ImageEmbeddingStage struct {
	Images    []artifact.Image
	Fetcher   ImageFetcher
	Client    ImageEmbeddingClient
	BatchSize int
}

func (s *ImageEmbeddingStage) Name() string { return "imageembedding" }

func (s *ImageEmbeddingStage) Preprocess(_ context.Context) ([]artifact.Artifact, error) {
	out := make([]artifact.Artifact, 0, len(s.Images))
	for _, img := range s.Images {
		out = append(out, artifact.ImageEmbedding{
			VideoIDVal:  img.VideoIDVal,
			Bucket:      img.Bucket,
			TaskNameVal: s.Name(),
			FrameIndex:  img.FrameIndex,
			Timestamp:   img.Timestamp,
			ImageID:     img.ArtifactID(),
			ImageParent: img.ArtifactID(),
		})
	}
	return out, nil
}

// Execute satisfies the Stage interface: it reports an already-persisted
// candidate as skipped and returns an error for any other one. Embedding
// runs in batches across the whole candidate set via RunEmbeddingBatches,
// not per-artifact, so the scheduler invokes that instead of Stage.Execute
// for this stage (see internal/flow).
func (s *ImageEmbeddingStage) Execute(ctx context.Context, a artifact.Artifact, v *persist.Visitor) (Item, error) {
	if item, skip, err := CheckExists(ctx, v, a); err != nil || skip {
		return item, err
	}
	return Item{}, fmt.Errorf("imageembedding: single-artifact Execute unsupported, use RunEmbeddingBatches")
}

// RunEmbeddingBatches fetches image bytes for every pending candidate,
// base64-encodes them, and calls Client.EmbedImages in batches of BatchSize,
// persisting one ImageEmbedding per input in the original order.
func (s *ImageEmbeddingStage) RunEmbeddingBatches(ctx context.Context, v *persist.Visitor) ([]Item, error) {
	candidates, err := s.Preprocess(ctx)
	if err != nil {
		return nil, err
	}

	var pending []artifact.Artifact
	items := make([]Item, 0, len(candidates))
	for _, a := range candidates {
		item, skip, err := CheckExists(ctx, v, a)
		if err != nil {
			return nil, err
		}
		if skip {
			items = append(items, item)
			continue
		}
		pending = append(pending, a)
	}

	encoded, err := RunBatches(ctx, pending, s.BatchSize, func(ctx context.Context, batch []artifact.Artifact) ([]Item, error) {
		inputs := make([]string, 0, len(batch))
		for _, a := range batch {
			ee := a.(artifact.ImageEmbedding)
			var objectKey string
			for _, img := range s.Images {
				if img.ArtifactID() == ee.ImageID {
					objectKey = img.ObjectKey()
					break
				}
			}
			data, err := s.Fetcher.GetObject(ctx, objectKey)
			if err != nil {
				return nil, fmt.Errorf("imageembedding: fetch %s: %w", objectKey, err)
			}
			inputs = append(inputs, base64.StdEncoding.EncodeToString(data))
		}

		vectors, err := s.Client.EmbedImages(ctx, inputs)
		if err != nil {
			return nil, fmt.Errorf("imageembedding: embed call: %w", err)
		}
		if len(vectors) != len(batch) {
			return nil, fmt.Errorf("imageembedding: embed returned %d vectors for %d inputs", len(vectors), len(batch))
		}

		out := make([]Item, len(batch))
		for i, a := range batch {
			out[i] = Item{Artifact: a, Payload: EncodeVector(vectors[i])}
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}

	for _, item := range encoded {
		if err := v.Persist(ctx, item.Artifact, item.Payload); err != nil {
			return nil, fmt.Errorf("imageembedding: persist %s: %w", item.Artifact.ArtifactID(), err)
		}
		items = append(items, item)
	}

	return items, nil
}
