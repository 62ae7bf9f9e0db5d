package pipeline

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/goodclips-platform/ingestion/internal/artifact"
	"github.com/goodclips-platform/ingestion/internal/persist"
)

// ImageFetcher loads the already-persisted bytes for one Image artifact,
// identified by its blob object key.
type ImageFetcher interface {
	GetObject(ctx context.Context, objectKey string) ([]byte, error)
}

// ImageCaptionStage calls the LLM captioning service once per Image and
// persists the resulting one-sentence description (spec.md §4.8.6).
type ImageCaptionStage struct {
	Images  []artifact.Image
	Fetcher ImageFetcher
	LLM     LLMClient
}

func (s *ImageCaptionStage) Name() string { return "imagecaption" }

func (s *ImageCaptionStage) Preprocess(_ context.Context) ([]artifact.Artifact, error) {
	out := make([]artifact.Artifact, 0, len(s.Images))
	for _, img := range s.Images {
		out = append(out, artifact.ImageCaption{
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

func (s *ImageCaptionStage) Execute(ctx context.Context, a artifact.Artifact, v *persist.Visitor) (Item, error) {
	if item, skip, err := CheckExists(ctx, v, a); err != nil || skip {
		return item, err
	}

	ic := a.(artifact.ImageCaption)

	var objectKey string
	for _, img := range s.Images {
		if img.ArtifactID() == ic.ImageID {
			objectKey = img.ObjectKey()
			break
		}
	}

	data, err := s.Fetcher.GetObject(ctx, objectKey)
	if err != nil {
		return Item{}, fmt.Errorf("imagecaption: fetch %s: %w", objectKey, err)
	}

	caption, err := s.LLM.Caption(ctx, ImageCaptionPromptTemplate, []string{base64.StdEncoding.EncodeToString(data)})
	if err != nil {
		return Item{}, fmt.Errorf("imagecaption: llm call for %s: %w", ic.ImageID, err)
	}

	return Item{Artifact: ic, Payload: ImageCaptionPayload{Caption: caption}}, nil
}
