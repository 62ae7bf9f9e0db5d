package pipeline

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"github.com/goodclips-platform/ingestion/internal/artifact"
	"github.com/goodclips-platform/ingestion/internal/ffmpeg"
	"github.com/goodclips-platform/ingestion/internal/persist"
)

// ImageExtractStage reads each Autoshot's segment list, samples
// n_per_segment frame indices uniformly per segment, extracts each frame
// from the source video as WebP, and persists one Image artifact per
// sampled frame (spec.md §4.8.4).
type ImageExtractStage struct {
	Autoshots      map[string]AutoshotPayload // keyed by video_id
	Videos         []artifact.Video
	NPerSegment    int
	FFmpeg         *ffmpeg.FFmpegClient
	LocalVideoPath func(ctx context.Context, videoID string) (path string, cleanup func(), err error)
}

func (s *ImageExtractStage) Name() string { return "imageextract" }

func (s *ImageExtractStage) videoByID(id string) artifact.Video {
	for _, v := range s.Videos {
		if v.VideoIDVal == id {
			return v
		}
	}
	return artifact.Video{}
}

func (s *ImageExtractStage) Preprocess(ctx context.Context) ([]artifact.Artifact, error) {
	var out []artifact.Artifact

	for videoID, payload := range s.Autoshots {
		video := s.videoByID(videoID)
		autoshotID := artifact.Autoshot{VideoIDVal: videoID, Bucket: video.Bucket, TaskNameVal: "shotdetect"}.ArtifactID()

		localPath, cleanup, err := s.LocalVideoPath(ctx, videoID)
		if err != nil {
			return nil, fmt.Errorf("imageextract: local video for %s: %w", videoID, err)
		}

		seen := make(map[int]bool)
		for _, seg := range payload.Segments {
			start, end := seg[0], seg[1]
			for _, idx := range UniformFrameIndices(start, end, s.NPerSegment) {
				if seen[idx] {
					continue
				}
				seen[idx] = true

				data, err := s.FFmpeg.ExtractFrameAsWebP(localPath, idx)
				if err != nil {
					cleanup()
					return nil, fmt.Errorf("imageextract: extract frame %d of %s: %w", idx, videoID, err)
				}
				sum := md5.Sum(data)

				out = append(out, imageCandidate{
					Image: artifact.Image{
						VideoIDVal:     videoID,
						Bucket:         video.Bucket,
						TaskNameVal:    s.Name(),
						FrameIndex:     idx,
						Timestamp:      frameTimestamp(idx, video.FPS),
						ChecksumMD5:    hex.EncodeToString(sum[:]),
						AutoshotParent: autoshotID,
					},
					data: data,
				})
			}
		}
		cleanup()
	}

	return out, nil
}

// frameTimestamp converts a frame index to seconds at the source video's
// fps (spec.md §3.1/§8 worked example). fps<=0 means probing never ran (or
// failed upstream); rather than panic on the division, this reports 0.0.
func frameTimestamp(frameIndex int, fps float64) float64 {
	if fps <= 0 {
		return 0
	}
	return float64(frameIndex) / fps
}

// imageCandidate carries the already-extracted frame bytes alongside its
// descriptor so Execute need not re-extract; Preprocess does the (local,
// CPU-bound) extraction and Execute only checks existence and hands the
// bytes on for persisting. Preprocess extracts every sampled frame before
// any existence check, including frames already persisted in a prior run,
// since the Image's artifact id depends on the frame's checksum.
type imageCandidate struct {
	artifact.Image
	data []byte
}

func (s *ImageExtractStage) Execute(ctx context.Context, a artifact.Artifact, v *persist.Visitor) (Item, error) {
	c := a.(imageCandidate)
	if item, skip, err := CheckExists(ctx, v, c.Image); err != nil || skip {
		return item, err
	}

	return Item{Artifact: c.Image, Payload: c.data}, nil
}
