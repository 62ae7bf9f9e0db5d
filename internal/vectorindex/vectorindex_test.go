package vectorindex

import (
	"strings"
	"testing"

	"github.com/qdrant/go-client/qdrant"
)

func TestMetricMapping(t *testing.T) {
	cases := map[MetricType]qdrant.Distance{
		MetricL2:     qdrant.Distance_Euclid,
		MetricIP:     qdrant.Distance_Dot,
		MetricCosine: qdrant.Distance_Cosine,
	}
	for metric, want := range cases {
		cfg := CollectionConfig{Metric: metric}
		if got := cfg.qdrantDistance(); got != want {
			t.Fatalf("metric %s: got %v want %v", metric, got, want)
		}
	}
}

func TestPointIDIsDeterministicAndDistinct(t *testing.T) {
	a := PointID("artifact-1")
	b := PointID("artifact-1")
	c := PointID("artifact-2")

	if a != b {
		t.Fatal("expected same artifact id to derive the same point id")
	}
	if a == c {
		t.Fatal("expected different artifact ids to derive different point ids")
	}
	if len(a) != 36 {
		t.Fatalf("expected a canonical UUID string, got %q", a)
	}
}

func TestTruncateCaptionCapsAt10kChars(t *testing.T) {
	long := strings.Repeat("a", maxCaptionChars+500)
	got := truncateCaption(long)
	if len(got) != maxCaptionChars {
		t.Fatalf("expected truncation to %d chars, got %d", maxCaptionChars, len(got))
	}

	short := "hello"
	if truncateCaption(short) != short {
		t.Fatal("expected short captions to pass through unchanged")
	}
}

func TestRowPayloadsCarryDedupFields(t *testing.T) {
	row := ImageEmbeddingRow{ArtifactID: "a1", RelatedVideoID: "v1", UserBucket: "u1", FrameIndex: 3}
	payload := row.Payload()
	if payload["related_video_id"] != "v1" || payload["user_bucket"] != "u1" {
		t.Fatalf("expected dedup fields in payload, got %v", payload)
	}
}
