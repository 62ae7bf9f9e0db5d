package pipeline

import (
	"context"
	"fmt"

	"github.com/goodclips-platform/ingestion/internal/artifact"
	"github.com/goodclips-platform/ingestion/internal/persist"
	"github.com/goodclips-platform/ingestion/internal/registry"
)

// TextEmbeddingClient calls the text-embedding microservice, a model
// separate from the image-embedding one, used for segment captions that
// are searched as plain text rather than cross-modally against images
// (spec.md §6.3 "Text embed": `texts` in, `embeddings` out).
type TextEmbeddingClient interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

type serviceTextEmbeddingClient struct {
	client *registry.ServiceClient
}

func NewServiceTextEmbeddingClient(client *registry.ServiceClient) TextEmbeddingClient {
	return &serviceTextEmbeddingClient{client: client}
}

func (c *serviceTextEmbeddingClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	req := map[string]any{"texts": texts, "metadata": map[string]any{}}
	var resp struct {
		Embeddings [][]float32 `json:"embeddings"`
		Status     string     `json:"status"`
	}
	if err := c.client.Invoke(ctx, req, &resp); err != nil {
		return nil, err
	}
	return resp.Embeddings, nil
}

// TextImageCaptionEmbeddingStage batch-encodes every ImageCaption's text
// into a dense vector (spec.md §4.8.8), routed through the image-embedding
// service's text mode so it lands in the same vector space as the images
// it describes.
type TextImageCaptionEmbeddingStage struct {
	Captions  []artifact.ImageCaption
	CaptionText map[string]string // by ImageCaption artifact id
	Client    ImageEmbeddingClient
	BatchSize int
}

func (s *TextImageCaptionEmbeddingStage) Name() string { return "textimagecaptionembedding" }

func (s *TextImageCaptionEmbeddingStage) Preprocess(_ context.Context) ([]artifact.Artifact, error) {
	out := make([]artifact.Artifact, 0, len(s.Captions))
	for _, c := range s.Captions {
		out = append(out, artifact.TextCaptionEmbedding{
			VideoIDVal:    c.VideoIDVal,
			Bucket:        c.Bucket,
			TaskNameVal:   s.Name(),
			FrameIndex:    c.FrameIndex,
			Timestamp:     c.Timestamp,
			CaptionID:     c.ArtifactID(),
			CaptionParent: c.ArtifactID(),
		})
	}
	return out, nil
}

func (s *TextImageCaptionEmbeddingStage) Execute(ctx context.Context, a artifact.Artifact, v *persist.Visitor) (Item, error) {
	if item, skip, err := CheckExists(ctx, v, a); err != nil || skip {
		return item, err
	}
	return Item{}, fmt.Errorf("textimagecaptionembedding: single-artifact Execute unsupported, use RunEmbeddingBatches")
}

// RunEmbeddingBatches embeds every pending caption's text in batches of
// BatchSize, preserving input order.
func (s *TextImageCaptionEmbeddingStage) RunEmbeddingBatches(ctx context.Context, v *persist.Visitor) ([]Item, error) {
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
		inputs := make([]string, len(batch))
		for i, a := range batch {
			e := a.(artifact.TextCaptionEmbedding)
			inputs[i] = s.CaptionText[e.CaptionID]
		}

		vectors, err := s.Client.EmbedText(ctx, inputs)
		if err != nil {
			return nil, fmt.Errorf("textimagecaptionembedding: embed call: %w", err)
		}
		if len(vectors) != len(batch) {
			return nil, fmt.Errorf("textimagecaptionembedding: embed returned %d vectors for %d inputs", len(vectors), len(batch))
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
			return nil, fmt.Errorf("textimagecaptionembedding: persist %s: %w", item.Artifact.ArtifactID(), err)
		}
		items = append(items, item)
	}

	return items, nil
}

// SegmentCaptionEmbeddingStage batch-encodes every SegmentCaption's text
// into a dense vector (spec.md §4.8.9).
type SegmentCaptionEmbeddingStage struct {
	Captions    []artifact.SegmentCaption
	CaptionText map[string]string // by SegmentCaption artifact id
	Client      TextEmbeddingClient
	BatchSize   int
}

func (s *SegmentCaptionEmbeddingStage) Name() string { return "segmentcaptionembedding" }

func (s *SegmentCaptionEmbeddingStage) Preprocess(_ context.Context) ([]artifact.Artifact, error) {
	out := make([]artifact.Artifact, 0, len(s.Captions))
	for _, c := range s.Captions {
		out = append(out, artifact.SegmentCaptionEmbedding{
			VideoIDVal:       c.VideoIDVal,
			Bucket:           c.Bucket,
			TaskNameVal:      s.Name(),
			StartFrame:       c.StartFrame,
			EndFrame:         c.EndFrame,
			SegmentCapID:     c.ArtifactID(),
			SegmentCapParent: c.ArtifactID(),
		})
	}
	return out, nil
}

func (s *SegmentCaptionEmbeddingStage) Execute(ctx context.Context, a artifact.Artifact, v *persist.Visitor) (Item, error) {
	if item, skip, err := CheckExists(ctx, v, a); err != nil || skip {
		return item, err
	}
	return Item{}, fmt.Errorf("segmentcaptionembedding: single-artifact Execute unsupported, use RunEmbeddingBatches")
}

// RunEmbeddingBatches embeds every pending segment caption's text in
// batches of BatchSize, preserving input order.
func (s *SegmentCaptionEmbeddingStage) RunEmbeddingBatches(ctx context.Context, v *persist.Visitor) ([]Item, error) {
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
		inputs := make([]string, len(batch))
		for i, a := range batch {
			e := a.(artifact.SegmentCaptionEmbedding)
			inputs[i] = s.CaptionText[e.SegmentCapID]
		}

		vectors, err := s.Client.Embed(ctx, inputs)
		if err != nil {
			return nil, fmt.Errorf("segmentcaptionembedding: embed call: %w", err)
		}
		if len(vectors) != len(batch) {
			return nil, fmt.Errorf("segmentcaptionembedding: embed returned %d vectors for %d inputs", len(vectors), len(batch))
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
			return nil, fmt.Errorf("segmentcaptionembedding: persist %s: %w", item.Artifact.ArtifactID(), err)
		}
		items = append(items, item)
	}

	return items, nil
}
