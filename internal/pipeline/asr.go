package pipeline

import (
	"context"
	"fmt"

	"github.com/goodclips-platform/ingestion/internal/artifact"
	"github.com/goodclips-platform/ingestion/internal/persist"
	"github.com/goodclips-platform/ingestion/internal/registry"
)

// ASRClient calls out to the speech-recognition microservice and returns
// an ordered transcript for one video.
type ASRClient interface {
	Transcribe(ctx context.Context, videoBlobURL string) ([]ASRToken, error)
}

type serviceASRClient struct {
	client *registry.ServiceClient
}

func NewServiceASRClient(client *registry.ServiceClient) ASRClient {
	return &serviceASRClient{client: client}
}

func (c *serviceASRClient) Transcribe(ctx context.Context, videoBlobURL string) ([]ASRToken, error) {
	req := map[string]any{"video_minio_url": videoBlobURL, "metadata": map[string]any{}}
	var resp struct {
		Result struct {
			Tokens []ASRToken `json:"tokens"`
		} `json:"result"`
		Status string `json:"status"`
	}
	if err := c.client.Invoke(ctx, req, &resp); err != nil {
		return nil, err
	}
	return resp.Result.Tokens, nil
}

// ASRStage calls the speech-recognition service per video and persists one
// ASR artifact carrying the full token list (spec.md §4.8.3).
type ASRStage struct {
	Videos []artifact.Video
	Client ASRClient
}

func (s *ASRStage) Name() string { return "asr" }

func (s *ASRStage) Preprocess(_ context.Context) ([]artifact.Artifact, error) {
	out := make([]artifact.Artifact, 0, len(s.Videos))
	for _, video := range s.Videos {
		out = append(out, artifact.ASR{
			VideoIDVal:  video.VideoIDVal,
			Bucket:      video.Bucket,
			TaskNameVal: s.Name(),
		})
	}
	return out, nil
}

func (s *ASRStage) Execute(ctx context.Context, a artifact.Artifact, v *persist.Visitor) (Item, error) {
	if item, skip, err := CheckExists(ctx, v, a); err != nil || skip {
		return item, err
	}

	asr := a.(artifact.ASR)
	var videoBlobURL string
	for _, video := range s.Videos {
		if video.VideoIDVal == asr.VideoIDVal {
			videoBlobURL = video.BlobURL
			break
		}
	}

	tokens, err := s.Client.Transcribe(ctx, videoBlobURL)
	if err != nil {
		return Item{}, fmt.Errorf("asr: %s: %w", asr.VideoIDVal, err)
	}

	return Item{Artifact: asr, Payload: ASRPayload{Tokens: tokens}}, nil
}
