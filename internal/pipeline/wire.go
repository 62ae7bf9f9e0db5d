package pipeline

// AutoshotPayload is the JSON body of one Autoshot artifact: the full
// ordered list of shot boundaries for a video (spec.md §4.8.2).
type AutoshotPayload struct {
	Segments [][2]int `json:"segments"`
}

// ASRToken is one timestamped transcript token (spec.md §4.8.3).
type ASRToken struct {
	Text       string  `json:"text"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	StartFrame int     `json:"start_frame"`
	EndFrame   int     `json:"end_frame"`
}

// ASRPayload is the JSON body of one ASR artifact.
type ASRPayload struct {
	Tokens []ASRToken `json:"tokens"`
}

// SegmentCaptionPayload is the JSON body of one SegmentCaption artifact.
type SegmentCaptionPayload struct {
	Caption    string `json:"caption"`
	StartFrame int    `json:"start_frame"`
	EndFrame   int    `json:"end_frame"`
}

// ImageCaptionPayload is the JSON body of one ImageCaption artifact.
type ImageCaptionPayload struct {
	Caption string `json:"caption"`
}
