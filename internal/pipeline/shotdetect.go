package pipeline

import (
	"context"
	"fmt"

	"github.com/goodclips-platform/ingestion/internal/artifact"
	"github.com/goodclips-platform/ingestion/internal/persist"
	"github.com/goodclips-platform/ingestion/internal/registry"
)

// ShotBoundaryClient calls out to the shot-boundary microservice (or the
// local scenedetect fallback) and returns ordered (start_frame, end_frame)
// tuples for one video.
type ShotBoundaryClient interface {
	DetectShots(ctx context.Context, videoBlobURL string) ([][2]int, error)
}

// serviceShotBoundaryClient adapts a registry.ServiceClient to
// ShotBoundaryClient, calling the autoshot service's /infer endpoint.
type serviceShotBoundaryClient struct {
	client *registry.ServiceClient
}

func NewServiceShotBoundaryClient(client *registry.ServiceClient) ShotBoundaryClient {
	return &serviceShotBoundaryClient{client: client}
}

func (c *serviceShotBoundaryClient) DetectShots(ctx context.Context, videoBlobURL string) ([][2]int, error) {
	req := map[string]any{"s3_minio_url": videoBlobURL, "metadata": map[string]any{}}
	var resp struct {
		Scenes [][2]int `json:"scenes"`
	}
	if err := c.client.Invoke(ctx, req, &resp); err != nil {
		return nil, err
	}
	return resp.Scenes, nil
}

// ShotDetectStage calls the shot-boundary service per video and persists
// one Autoshot artifact carrying the full segment list (spec.md §4.8.2).
type ShotDetectStage struct {
	Videos     []artifact.Video
	Client     ShotBoundaryClient
	TaskName   string
}

func (s *ShotDetectStage) Name() string { return "shotdetect" }

func (s *ShotDetectStage) Preprocess(_ context.Context) ([]artifact.Artifact, error) {
	out := make([]artifact.Artifact, 0, len(s.Videos))
	for _, video := range s.Videos {
		out = append(out, artifact.Autoshot{
			VideoIDVal:  video.VideoIDVal,
			Bucket:      video.Bucket,
			TaskNameVal: s.Name(),
		})
	}
	return out, nil
}

func (s *ShotDetectStage) Execute(ctx context.Context, a artifact.Artifact, v *persist.Visitor) (Item, error) {
	if item, skip, err := CheckExists(ctx, v, a); err != nil || skip {
		return item, err
	}

	shot := a.(artifact.Autoshot)
	var videoBlobURL string
	for _, video := range s.Videos {
		if video.VideoIDVal == shot.VideoIDVal {
			videoBlobURL = video.BlobURL
			break
		}
	}

	segments, err := s.Client.DetectShots(ctx, videoBlobURL)
	if err != nil {
		return Item{}, fmt.Errorf("shotdetect: %s: %w", shot.VideoIDVal, err)
	}

	return Item{Artifact: shot, Payload: AutoshotPayload{Segments: segments}}, nil
}
