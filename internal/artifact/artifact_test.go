package artifact

import "testing"

func TestArtifactIDDeterministic(t *testing.T) {
	a1 := Autoshot{VideoIDVal: "v1", Bucket: "u1", TaskNameVal: "shotdetect"}
	a2 := Autoshot{VideoIDVal: "v1", Bucket: "u1", TaskNameVal: "shotdetect"}

	if a1.ArtifactID() != a2.ArtifactID() {
		t.Fatalf("expected identical semantic keys to produce identical ids, got %q vs %q", a1.ArtifactID(), a2.ArtifactID())
	}
	if len(a1.ArtifactID()) != 128 {
		t.Fatalf("expected a 128-char hex sha512 digest, got length %d", len(a1.ArtifactID()))
	}
}

func TestArtifactIDVariesWithSemanticKey(t *testing.T) {
	base := Image{VideoIDVal: "v1", Bucket: "u1", FrameIndex: 10, ChecksumMD5: "abc"}
	diffFrame := Image{VideoIDVal: "v1", Bucket: "u1", FrameIndex: 11, ChecksumMD5: "abc"}
	diffChecksum := Image{VideoIDVal: "v1", Bucket: "u1", FrameIndex: 10, ChecksumMD5: "def"}

	if base.ArtifactID() == diffFrame.ArtifactID() {
		t.Fatal("expected different frame_index to change artifact_id")
	}
	if base.ArtifactID() == diffChecksum.ArtifactID() {
		t.Fatal("expected different checksum to change artifact_id")
	}
}

func TestSegmentCaptionIDIgnoresRelatedASRText(t *testing.T) {
	// Resolved discrepancy: artifact_id derives from the segment's own
	// coordinates, not from the related ASR text (DESIGN.md open question 1).
	a := SegmentCaption{VideoIDVal: "v1", Bucket: "u1", StartFrame: 0, EndFrame: 25, RelatedASR: "a\n\nb"}
	b := SegmentCaption{VideoIDVal: "v1", Bucket: "u1", StartFrame: 0, EndFrame: 25, RelatedASR: "different text"}

	if a.ArtifactID() != b.ArtifactID() {
		t.Fatal("expected artifact_id to be invariant to related ASR text")
	}
}

func TestObjectKeyConventions(t *testing.T) {
	img := Image{VideoIDVal: "v1", FrameIndex: 1234}
	if got, want := img.ObjectKey(), "images/v1/00001234.webp"; got != want {
		t.Fatalf("got %q want %q", got, want)
	}

	seg := SegmentCaption{VideoIDVal: "v1", StartFrame: 0, EndFrame: 100}
	if got, want := seg.ObjectKey(), "caption/segment/v1/0_100.json"; got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestVideoArtifactIDIsVideoID(t *testing.T) {
	v := Video{VideoIDVal: "abc-123"}
	if v.ArtifactID() != "abc-123" {
		t.Fatalf("expected video artifact_id to equal video_id, got %q", v.ArtifactID())
	}
	if v.ParentArtifactID() != "" {
		t.Fatal("video artifact must not have a parent")
	}
}
