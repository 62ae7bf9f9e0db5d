package pipeline

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/goodclips-platform/ingestion/internal/artifact"
	"github.com/goodclips-platform/ingestion/internal/ffmpeg"
	"github.com/goodclips-platform/ingestion/internal/persist"
)

// VideoUpload is one caller-supplied (video_id, blob_url) pair from the
// upload submission (spec.md §6.1).
type VideoUpload struct {
	VideoID  string
	BlobURL  string
	Filename string
}

// IngestStage probes each uploaded video locally for fps and extension and
// emits a Video artifact, idempotent on video_id (spec.md §4.8.1).
type IngestStage struct {
	Uploads    []VideoUpload
	UserBucket string
	FFmpeg     *ffmpeg.FFmpegClient
	// FetchToLocal downloads the blob to a local temp path for probing and
	// returns that path; swapped out in tests to avoid a real blob store.
	FetchToLocal func(ctx context.Context, blobURL string) (localPath string, cleanup func(), err error)
}

func (s *IngestStage) Name() string { return "ingest" }

func (s *IngestStage) Preprocess(_ context.Context) ([]artifact.Artifact, error) {
	out := make([]artifact.Artifact, 0, len(s.Uploads))
	for _, u := range s.Uploads {
		out = append(out, artifact.Video{
			VideoIDVal:  u.VideoID,
			BlobURL:     u.BlobURL,
			Extension:   extractExtension(u.BlobURL),
			Filename:    u.Filename,
			Bucket:      s.UserBucket,
			TaskNameVal: s.Name(),
		})
	}
	return out, nil
}

func extractExtension(blobURL string) string {
	parts := strings.Split(blobURL, ".")
	if len(parts) < 2 {
		return ""
	}
	return parts[len(parts)-1]
}

func (s *IngestStage) Execute(ctx context.Context, a artifact.Artifact, v *persist.Visitor) (Item, error) {
	if item, skip, err := CheckExists(ctx, v, a); err != nil || skip {
		if skip {
			video := a.(artifact.Video)
			fps, fpsErr := v.VideoFPS(ctx, video.ArtifactID())
			if fpsErr != nil {
				return Item{}, fmt.Errorf("ingest: fps lookup for %s: %w", video.VideoIDVal, fpsErr)
			}
			video.FPS = fps
			item.Artifact = video
		}
		return item, err
	}

	video := a.(artifact.Video)

	localPath, cleanup, err := s.FetchToLocal(ctx, video.BlobURL)
	if err != nil {
		return Item{}, fmt.Errorf("ingest: fetch %s: %w", video.VideoIDVal, err)
	}
	defer cleanup()
	defer os.Remove(localPath)

	fps, err := s.FFmpeg.GetFPS(localPath)
	if err != nil {
		return Item{}, fmt.Errorf("ingest: probe fps for %s: %w", video.VideoIDVal, err)
	}
	video.FPS = fps

	// Video artifacts have no object_key/blob payload of their own — the
	// blob was supplied externally by the uploader — so there is nothing
	// for the visitor to upload. The non-nil Payload only makes Run persist
	// the item; the visitor records fps and filename on the lineage row from
	// the Video's own fields, and the extension is not stored anywhere.
	return Item{Artifact: video, Payload: map[string]any{"fps": fps, "extension": video.Extension}}, nil
}
