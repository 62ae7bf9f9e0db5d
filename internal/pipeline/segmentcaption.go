package pipeline

import (
	"context"
	"encoding/base64"
	"fmt"
	"sort"

	"github.com/goodclips-platform/ingestion/internal/artifact"
	"github.com/goodclips-platform/ingestion/internal/ffmpeg"
	"github.com/goodclips-platform/ingestion/internal/persist"
	"github.com/goodclips-platform/ingestion/internal/registry"
)

// RelatedASRText concatenates (separated by a blank line, "\n\n") the text of every token
// whose span is fully inside [startFrame, endFrame) or overlaps it by at
// least 0.8, in the original token order (spec.md §4.8.5).
func RelatedASRText(tokens []ASRToken, startFrame, endFrame int) string {
	segment := TimeSpan{Start: float64(startFrame), End: float64(endFrame)}
	var parts []string
	for _, tok := range tokens {
		if tok.Text == "" || tok.EndFrame <= tok.StartFrame {
			continue
		}
		span := TimeSpan{Start: float64(tok.StartFrame), End: float64(tok.EndFrame)}
		if WithinSegment(span, segment) {
			parts = append(parts, tok.Text)
		}
	}
	return joinDoubleNewline(parts)
}

func joinDoubleNewline(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += "\n\n"
		}
		out += p
	}
	return out
}

// LLMClient calls out to the captioning microservice with a prompt and a
// set of base64 images and returns the generated caption text.
type LLMClient interface {
	Caption(ctx context.Context, prompt string, base64Images []string) (string, error)
}

type serviceLLMClient struct {
	client *registry.ServiceClient
}

func NewServiceLLMClient(client *registry.ServiceClient) LLMClient {
	return &serviceLLMClient{client: client}
}

func (c *serviceLLMClient) Caption(ctx context.Context, prompt string, images []string) (string, error) {
	req := map[string]any{"prompt": prompt, "image_base64": images, "metadata": map[string]any{}}
	var resp struct {
		Answer string `json:"answer"`
		Status string `json:"status"`
	}
	if err := c.client.Invoke(ctx, req, &resp); err != nil {
		return "", err
	}
	return resp.Answer, nil
}

// segmentCaptionCandidate carries what Execute needs beyond the artifact
// identity: related ASR text and the segment's frame bounds.
type segmentCaptionCandidate struct {
	artifact.SegmentCaption
	videoPath string
}

// SegmentCaptionStage computes related ASR text per segment, samples
// image_per_segments frames uniformly, and calls the LLM for a caption
// (spec.md §4.8.5).
type SegmentCaptionStage struct {
	Autoshots         map[string]AutoshotPayload // by video_id
	ASRTokens         map[string][]ASRToken      // by video_id
	Videos            []artifact.Video
	ImagesPerSegment  int
	FFmpeg            *ffmpeg.FFmpegClient
	LocalVideoPath    func(ctx context.Context, videoID string) (path string, cleanup func(), err error)
	LLM               LLMClient
}

func (s *SegmentCaptionStage) Name() string { return "segmentcaption" }

func (s *SegmentCaptionStage) videoByID(id string) artifact.Video {
	for _, v := range s.Videos {
		if v.VideoIDVal == id {
			return v
		}
	}
	return artifact.Video{}
}

func (s *SegmentCaptionStage) Preprocess(_ context.Context) ([]artifact.Artifact, error) {
	var out []artifact.Artifact

	videoIDs := make([]string, 0, len(s.Autoshots))
	for id := range s.Autoshots {
		videoIDs = append(videoIDs, id)
	}
	sort.Strings(videoIDs)

	for _, videoID := range videoIDs {
		video := s.videoByID(videoID)
		autoshotID := artifact.Autoshot{VideoIDVal: videoID, Bucket: video.Bucket, TaskNameVal: "shotdetect"}.ArtifactID()

		for _, seg := range s.Autoshots[videoID].Segments {
			out = append(out, artifact.SegmentCaption{
				VideoIDVal:     videoID,
				Bucket:         video.Bucket,
				TaskNameVal:    s.Name(),
				StartFrame:     seg[0],
				EndFrame:       seg[1],
				RelatedASR:     RelatedASRText(s.ASRTokens[videoID], seg[0], seg[1]),
				AutoshotParent: autoshotID,
			})
		}
	}
	return out, nil
}

func (s *SegmentCaptionStage) Execute(ctx context.Context, a artifact.Artifact, v *persist.Visitor) (Item, error) {
	if item, skip, err := CheckExists(ctx, v, a); err != nil || skip {
		return item, err
	}

	sc := a.(artifact.SegmentCaption)

	localPath, cleanup, err := s.LocalVideoPath(ctx, sc.VideoIDVal)
	if err != nil {
		return Item{}, fmt.Errorf("segmentcaption: local video for %s: %w", sc.VideoIDVal, err)
	}
	defer cleanup()

	var images []string
	for _, idx := range UniformFrameIndices(sc.StartFrame, sc.EndFrame, s.ImagesPerSegment) {
		frame, err := s.FFmpeg.ExtractFrameAsWebP(localPath, idx)
		if err != nil {
			return Item{}, fmt.Errorf("segmentcaption: extract frame %d: %w", idx, err)
		}
		images = append(images, base64.StdEncoding.EncodeToString(frame))
	}

	prompt := fmt.Sprintf(SegmentCaptionPromptTemplate, sc.RelatedASR)
	caption, err := s.LLM.Caption(ctx, prompt, images)
	if err != nil {
		return Item{}, fmt.Errorf("segmentcaption: llm call for %s [%d,%d): %w", sc.VideoIDVal, sc.StartFrame, sc.EndFrame, err)
	}

	return Item{Artifact: sc, Payload: SegmentCaptionPayload{Caption: caption, StartFrame: sc.StartFrame, EndFrame: sc.EndFrame}}, nil
}
