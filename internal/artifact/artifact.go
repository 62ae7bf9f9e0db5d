// Package artifact defines the nine content-addressed artifact variants
// that flow through the ingestion pipeline and the deterministic id/key
// derivation each variant owns.
package artifact

import (
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"strings"
)

// Type tags the concrete kind of an Artifact. Stored verbatim in the
// lineage tracker's artifact_type column and used by the status reporter
// and cascading deleter to filter descendants.
type Type string

const (
	TypeVideo                   Type = "video"
	TypeAutoshot                Type = "autoshot"
	TypeASR                     Type = "asr"
	TypeImage                   Type = "image"
	TypeSegmentCaption          Type = "segment_caption"
	TypeImageCaption            Type = "image_caption"
	TypeImageEmbedding          Type = "image_embedding"
	TypeTextCaptionEmbedding    Type = "text_caption_embedding"
	TypeSegmentCaptionEmbedding Type = "segment_caption_embedding"
)

// Artifact is implemented by every concrete variant. ObjectKey is undefined
// (empty) for Video, which is supplied externally and never written through
// the blob store by the pipeline itself.
type Artifact interface {
	ArtifactType() Type
	ArtifactID() string
	ParentArtifactID() string
	TaskName() string
	UserBucket() string
	VideoID() string
	ObjectKey() string
	ContentType() string
}

// hashID joins the given parts with ':' and returns the lowercase hex
// SHA-512 digest, mirroring the original Python implementation's
// hashlib.sha512(...).hexdigest() convention. This is the sole identity
// primitive every variant's ArtifactID() is built from.
func hashID(parts ...string) string {
	sum := sha512.Sum512([]byte(strings.Join(parts, ":")))
	return hex.EncodeToString(sum[:])
}

// Video is the root of the lineage forest. Its artifact_id is the caller
// supplied video_id itself (no hash) since it is already the canonical
// identity for the whole run; it has no parent and no object_key of its
// own — the video blob is supplied externally by the uploader.
type Video struct {
	VideoIDVal  string
	BlobURL     string
	Extension   string
	FPS         float64
	Filename    string
	Bucket      string
	TaskNameVal string
}

func (v Video) ArtifactType() Type       { return TypeVideo }
func (v Video) ArtifactID() string       { return v.VideoIDVal }
func (v Video) ParentArtifactID() string { return "" }
func (v Video) TaskName() string         { return v.TaskNameVal }
func (v Video) UserBucket() string       { return v.Bucket }
func (v Video) VideoID() string          { return v.VideoIDVal }
func (v Video) ObjectKey() string        { return "" }
func (v Video) ContentType() string      { return "" }

// Autoshot carries the full ordered list of shot boundaries for one video
// as a single artifact (spec §4.8.2: segments are stored collectively).
type Autoshot struct {
	VideoIDVal  string
	Bucket      string
	TaskNameVal string
}

func (a Autoshot) ArtifactType() Type { return TypeAutoshot }
func (a Autoshot) ArtifactID() string {
	return hashID(a.VideoIDVal, a.Bucket, a.TaskNameVal)
}
func (a Autoshot) ParentArtifactID() string { return a.VideoIDVal }
func (a Autoshot) TaskName() string         { return a.TaskNameVal }
func (a Autoshot) UserBucket() string       { return a.Bucket }
func (a Autoshot) VideoID() string          { return a.VideoIDVal }
func (a Autoshot) ObjectKey() string {
	return fmt.Sprintf("autoshot/%s.json", a.VideoIDVal)
}
func (a Autoshot) ContentType() string { return "application/json" }

// ASR carries the full ordered transcript for one video as a single
// artifact.
type ASR struct {
	VideoIDVal  string
	Bucket      string
	TaskNameVal string
}

func (a ASR) ArtifactType() Type { return TypeASR }
func (a ASR) ArtifactID() string {
	return hashID(a.VideoIDVal, a.Bucket, a.TaskNameVal)
}
func (a ASR) ParentArtifactID() string { return a.VideoIDVal }
func (a ASR) TaskName() string         { return a.TaskNameVal }
func (a ASR) UserBucket() string       { return a.Bucket }
func (a ASR) VideoID() string          { return a.VideoIDVal }
func (a ASR) ObjectKey() string {
	return fmt.Sprintf("asr/%s.json", a.VideoIDVal)
}
func (a ASR) ContentType() string { return "application/json" }

// Image is one extracted keyframe. Its parent is the Autoshot artifact
// that produced the segment the frame was sampled from.
type Image struct {
	VideoIDVal     string
	Bucket         string
	TaskNameVal    string
	FrameIndex     int
	Timestamp      float64
	ChecksumMD5    string
	AutoshotParent string
}

func (i Image) ArtifactType() Type { return TypeImage }
func (i Image) ArtifactID() string {
	return hashID(i.VideoIDVal, fmt.Sprintf("%d", i.FrameIndex), i.ContentType(), i.ChecksumMD5, i.Bucket)
}
func (i Image) ParentArtifactID() string { return i.AutoshotParent }
func (i Image) TaskName() string         { return i.TaskNameVal }
func (i Image) UserBucket() string       { return i.Bucket }
func (i Image) VideoID() string          { return i.VideoIDVal }
func (i Image) ObjectKey() string {
	return fmt.Sprintf("images/%s/%08d.webp", i.VideoIDVal, i.FrameIndex)
}
func (i Image) ContentType() string { return "image/webp" }

// SegmentCaption is the LLM-produced caption for one autoshot segment.
// Resolved discrepancy (see DESIGN.md #1): artifact_id keys off the
// segment's own temporal coordinates, not the related-ASR text, per
// spec.md §3.1.
type SegmentCaption struct {
	VideoIDVal     string
	Bucket         string
	TaskNameVal    string
	StartFrame     int
	EndFrame       int
	StartTime      float64
	EndTime        float64
	RelatedASR     string
	AutoshotParent string
}

func (s SegmentCaption) ArtifactType() Type { return TypeSegmentCaption }
func (s SegmentCaption) ArtifactID() string {
	return hashID(s.VideoIDVal, fmt.Sprintf("%d", s.StartFrame), fmt.Sprintf("%d", s.EndFrame), s.Bucket)
}
func (s SegmentCaption) ParentArtifactID() string { return s.AutoshotParent }
func (s SegmentCaption) TaskName() string         { return s.TaskNameVal }
func (s SegmentCaption) UserBucket() string       { return s.Bucket }
func (s SegmentCaption) VideoID() string          { return s.VideoIDVal }
func (s SegmentCaption) ObjectKey() string {
	return fmt.Sprintf("caption/segment/%s/%d_%d.json", s.VideoIDVal, s.StartFrame, s.EndFrame)
}
func (s SegmentCaption) ContentType() string { return "application/json" }

// ImageCaption is the LLM-produced caption for one Image.
type ImageCaption struct {
	VideoIDVal   string
	Bucket       string
	TaskNameVal  string
	FrameIndex   int
	Timestamp    float64
	ImageID      string
	ImageParent  string
}

func (c ImageCaption) ArtifactType() Type { return TypeImageCaption }
func (c ImageCaption) ArtifactID() string {
	return hashID(c.ImageID, c.VideoIDVal, fmt.Sprintf("%d", c.FrameIndex), c.Bucket)
}
func (c ImageCaption) ParentArtifactID() string { return c.ImageParent }
func (c ImageCaption) TaskName() string         { return c.TaskNameVal }
func (c ImageCaption) UserBucket() string       { return c.Bucket }
func (c ImageCaption) VideoID() string          { return c.VideoIDVal }
func (c ImageCaption) ObjectKey() string {
	return fmt.Sprintf("caption/image/%s/%08d.json", c.VideoIDVal, c.FrameIndex)
}
func (c ImageCaption) ContentType() string { return "application/json" }

// ImageEmbedding is the dense visual vector for one Image.
type ImageEmbedding struct {
	VideoIDVal  string
	Bucket      string
	TaskNameVal string
	FrameIndex  int
	Timestamp   float64
	ImageID     string
	ImageParent string
}

func (e ImageEmbedding) ArtifactType() Type { return TypeImageEmbedding }
func (e ImageEmbedding) ArtifactID() string {
	return hashID(e.ImageID, e.VideoIDVal, fmt.Sprintf("%d", e.FrameIndex), e.Bucket)
}
func (e ImageEmbedding) ParentArtifactID() string { return e.ImageParent }
func (e ImageEmbedding) TaskName() string         { return e.TaskNameVal }
func (e ImageEmbedding) UserBucket() string       { return e.Bucket }
func (e ImageEmbedding) VideoID() string          { return e.VideoIDVal }
func (e ImageEmbedding) ObjectKey() string {
	return fmt.Sprintf("embedding/image/%s/%08d.npy", e.VideoIDVal, e.FrameIndex)
}
func (e ImageEmbedding) ContentType() string { return "application/octet-stream" }

// TextCaptionEmbedding is the dense text vector for one ImageCaption.
type TextCaptionEmbedding struct {
	VideoIDVal    string
	Bucket        string
	TaskNameVal   string
	FrameIndex    int
	Timestamp     float64
	CaptionID     string
	CaptionParent string
}

func (e TextCaptionEmbedding) ArtifactType() Type { return TypeTextCaptionEmbedding }
func (e TextCaptionEmbedding) ArtifactID() string {
	return hashID(e.CaptionID, e.VideoIDVal, fmt.Sprintf("%d", e.FrameIndex), e.Bucket)
}
func (e TextCaptionEmbedding) ParentArtifactID() string { return e.CaptionParent }
func (e TextCaptionEmbedding) TaskName() string         { return e.TaskNameVal }
func (e TextCaptionEmbedding) UserBucket() string       { return e.Bucket }
func (e TextCaptionEmbedding) VideoID() string          { return e.VideoIDVal }
func (e TextCaptionEmbedding) ObjectKey() string {
	return fmt.Sprintf("embedding/image_caption/%s/%08d.npy", e.VideoIDVal, e.FrameIndex)
}
func (e TextCaptionEmbedding) ContentType() string { return "application/octet-stream" }

// SegmentCaptionEmbedding is the dense text vector for one SegmentCaption.
type SegmentCaptionEmbedding struct {
	VideoIDVal      string
	Bucket          string
	TaskNameVal     string
	StartFrame      int
	EndFrame        int
	SegmentCapID    string
	SegmentCapParent string
}

func (e SegmentCaptionEmbedding) ArtifactType() Type { return TypeSegmentCaptionEmbedding }
func (e SegmentCaptionEmbedding) ArtifactID() string {
	return hashID(e.SegmentCapID, e.VideoIDVal, fmt.Sprintf("%d", e.StartFrame), fmt.Sprintf("%d", e.EndFrame), e.Bucket)
}
func (e SegmentCaptionEmbedding) ParentArtifactID() string { return e.SegmentCapParent }
func (e SegmentCaptionEmbedding) TaskName() string         { return e.TaskNameVal }
func (e SegmentCaptionEmbedding) UserBucket() string       { return e.Bucket }
func (e SegmentCaptionEmbedding) VideoID() string          { return e.VideoIDVal }
func (e SegmentCaptionEmbedding) ObjectKey() string {
	return fmt.Sprintf("embedding/caption_segment/%s/%d_%d.npy", e.VideoIDVal, e.StartFrame, e.EndFrame)
}
func (e SegmentCaptionEmbedding) ContentType() string { return "application/octet-stream" }
