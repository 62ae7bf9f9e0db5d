package vectorindex

// Collection names; each collection's dimension is model-dependent and
// comes from config at startup (spec.md §4.6).
const (
	ImageEmbeddingCollection             = "image_embedding"
	TextImageCaptionEmbeddingCollection  = "text_image_caption_embedding"
	SegmentCaptionEmbeddingCollection    = "segment_caption_embedding"
)

// ImageEmbeddingRow is one row of the ImageEmbedding collection (spec §4.6).
type ImageEmbeddingRow struct {
	ArtifactID      string
	Embedding       []float32
	RelatedVideoID  string
	MinioURL        string
	UserBucket      string
	FrameIndex      int64
	Timestamp       float64
}

func (r ImageEmbeddingRow) Payload() map[string]any {
	return map[string]any{
		"related_video_id": r.RelatedVideoID,
		"minio_url":        r.MinioURL,
		"user_bucket":      r.UserBucket,
		"frame_index":      r.FrameIndex,
		"timestamp":        r.Timestamp,
	}
}

// TextImageCaptionEmbeddingRow is one row of the TextImageCaptionEmbedding
// collection. Caption text is capped at 10k chars and denormalised into the
// row so a vector hit resolves to human text without a second store hop
// (spec.md §3.4).
type TextImageCaptionEmbeddingRow struct {
	ArtifactID       string
	Embedding        []float32
	FrameIndex       int64
	Timestamp        float64
	RelatedVideoID   string
	Caption          string
	CaptionMinioURL  string
	UserBucket       string
	ImageMinioURL    string
}

const maxCaptionChars = 10000

func truncateCaption(s string) string {
	r := []rune(s)
	if len(r) <= maxCaptionChars {
		return s
	}
	return string(r[:maxCaptionChars])
}

func (r TextImageCaptionEmbeddingRow) Payload() map[string]any {
	return map[string]any{
		"frame_index":       r.FrameIndex,
		"timestamp":         r.Timestamp,
		"related_video_id":  r.RelatedVideoID,
		"caption":           truncateCaption(r.Caption),
		"caption_minio_url": r.CaptionMinioURL,
		"user_bucket":       r.UserBucket,
		"image_minio_url":   r.ImageMinioURL,
	}
}

// SegmentCaptionEmbeddingRow is one row of the SegmentCaptionEmbedding
// collection.
type SegmentCaptionEmbeddingRow struct {
	ArtifactID             string
	Embedding              []float32
	StartFrame             int64
	EndFrame               int64
	StartTime              float64
	EndTime                float64
	RelatedVideoID         string
	Caption                string
	SegmentCaptionMinioURL string
	UserBucket             string
}

func (r SegmentCaptionEmbeddingRow) Payload() map[string]any {
	return map[string]any{
		"start_frame":               r.StartFrame,
		"end_frame":                 r.EndFrame,
		"start_time":                r.StartTime,
		"end_time":                  r.EndTime,
		"related_video_id":          r.RelatedVideoID,
		"caption":                   truncateCaption(r.Caption),
		"segment_caption_minio_url": r.SegmentCaptionMinioURL,
		"user_bucket":               r.UserBucket,
	}
}
