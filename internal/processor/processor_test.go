package processor

import "testing"

func TestDecodeIngestionPayloadHappyPath(t *testing.T) {
	payload := map[string]interface{}{
		"user_bucket": "user-42",
		"uploads": []interface{}{
			map[string]interface{}{"video_id": "v1", "blob_url": "s3://videos/v1.mp4", "filename": "one.mp4"},
			map[string]interface{}{"video_id": "v2", "blob_url": "s3://videos/v2.mp4", "filename": "two.mp4"},
		},
	}

	uploads, bucket, err := decodeIngestionPayload(payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bucket != "user-42" {
		t.Errorf("bucket = %q, want user-42", bucket)
	}
	if len(uploads) != 2 || uploads[0].VideoID != "v1" || uploads[1].BlobURL != "s3://videos/v2.mp4" {
		t.Errorf("uploads decoded incorrectly: %+v", uploads)
	}
	if uploads[0].Filename != "one.mp4" || uploads[1].Filename != "two.mp4" {
		t.Errorf("filenames decoded incorrectly: %+v", uploads)
	}
}

func TestDecodeIngestionPayloadMissingUserBucket(t *testing.T) {
	_, _, err := decodeIngestionPayload(map[string]interface{}{
		"uploads": []interface{}{map[string]interface{}{"video_id": "v1", "blob_url": "x"}},
	})
	if err == nil {
		t.Error("expected error for missing user_bucket")
	}
}

func TestDecodeIngestionPayloadMissingUploads(t *testing.T) {
	_, _, err := decodeIngestionPayload(map[string]interface{}{"user_bucket": "b"})
	if err == nil {
		t.Error("expected error for missing uploads")
	}
}

func TestDecodeIngestionPayloadRejectsMalformedUploadEntry(t *testing.T) {
	_, _, err := decodeIngestionPayload(map[string]interface{}{
		"user_bucket": "b",
		"uploads":     []interface{}{map[string]interface{}{"video_id": "v1"}},
	})
	if err == nil {
		t.Error("expected error for upload entry missing blob_url")
	}
}
