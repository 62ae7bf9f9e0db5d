package pipeline

// SegmentCaptionPromptTemplate is the fixed prompt the LLM captioning
// service is called with for each segment; %s is the related ASR text
// (possibly empty) computed by RelatedASRText.
const SegmentCaptionPromptTemplate = `You are a video understanding system. Produce one detailed, natural event caption for this segment using:
1. A sequence of representative frames from the segment, in temporal order.
2. The transcript spoken during the segment, if any.

Requirements:
- Synthesize the visual cues across frames in chronological order and weave in the transcript where it is relevant.
- Note changes in action, setting, or state between frames.
- Write a single coherent paragraph, like a narrator describing what happens, with a clear beginning and end.
- Preserve concrete details about space, objects, actions, and any spoken content.
- Present consecutive actions or developments in their logical temporal order.

Transcript: %s`

// ImageCaptionPromptTemplate is the fixed prompt for per-image captioning.
const ImageCaptionPromptTemplate = `Describe this single frame in one concise sentence, naming the visible subjects, setting, and any action in progress. Do not speculate about anything outside the frame.`
