package pipeline

import "testing"

func TestRelatedASRTextJoinsTokensInsideSegment(t *testing.T) {
	tokens := []ASRToken{
		{Text: "hello", StartFrame: 0, EndFrame: 10},
		{Text: "world", StartFrame: 12, EndFrame: 20},
		{Text: "excluded", StartFrame: 50, EndFrame: 60},
	}
	got := RelatedASRText(tokens, 0, 25)
	want := "hello\n\nworld"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestRelatedASRTextIncludesHighOverlapToken(t *testing.T) {
	tokens := []ASRToken{
		{Text: "mostly-in", StartFrame: -2, EndFrame: 8}, // overlap ratio 0.8 against [0,10)
	}
	got := RelatedASRText(tokens, 0, 10)
	if got != "mostly-in" {
		t.Fatalf("expected high-overlap token to be included, got %q", got)
	}
}

func TestRelatedASRTextExcludesLowOverlapToken(t *testing.T) {
	tokens := []ASRToken{
		{Text: "mostly-out", StartFrame: 8, EndFrame: 18}, // overlap ratio 0.2 against [0,10)
	}
	got := RelatedASRText(tokens, 0, 10)
	if got != "" {
		t.Fatalf("expected low-overlap token to be excluded, got %q", got)
	}
}

func TestRelatedASRTextSkipsEmptyOrZeroWidthTokens(t *testing.T) {
	tokens := []ASRToken{
		{Text: "", StartFrame: 0, EndFrame: 5},
		{Text: "zero-width", StartFrame: 3, EndFrame: 3},
		{Text: "kept", StartFrame: 0, EndFrame: 5},
	}
	got := RelatedASRText(tokens, 0, 10)
	if got != "kept" {
		t.Fatalf("got %q, want %q", got, "kept")
	}
}
