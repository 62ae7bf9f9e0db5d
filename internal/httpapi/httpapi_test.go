package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/goodclips-platform/ingestion/internal/management"
	"github.com/goodclips-platform/ingestion/internal/pipeline"
	"github.com/goodclips-platform/ingestion/internal/queue"
	"github.com/goodclips-platform/ingestion/internal/tracker"
)

type emptyLineageStore struct{}

func (emptyLineageStore) GetArtifact(context.Context, string) (*tracker.ArtifactRow, error) {
	return nil, tracker.ErrNotFound
}
func (emptyLineageStore) GetDescendants(context.Context, string) (map[string]bool, error) {
	return map[string]bool{}, nil
}
func (emptyLineageStore) RowsForIDs(context.Context, []string) ([]tracker.ArtifactRow, error) {
	return nil, nil
}
func (emptyLineageStore) DeleteSubtree(context.Context, []string) (int64, int64, error) {
	return 0, 0, nil
}
func (emptyLineageStore) CountByType(context.Context, []string, string) (int64, error) {
	return 0, nil
}
func (emptyLineageStore) LatestCreatedAt(context.Context, []string) (time.Time, error) {
	return time.Time{}, nil
}

type noopVectorDeleter struct{}

func (noopVectorDeleter) DeleteByVideoID(context.Context, string, string) error { return nil }
func (noopVectorDeleter) DeleteByArtifactIDs(context.Context, string, []string) error { return nil }

type noopBlobDeleter struct{}

func (noopBlobDeleter) ObjectExists(context.Context, string, string) (bool, error) { return false, nil }
func (noopBlobDeleter) DeleteObject(context.Context, string, string) error         { return nil }

func newTestServer() *Server {
	deleter := management.NewDeleter(emptyLineageStore{}, noopBlobDeleter{}, noopVectorDeleter{}, nil)
	status := management.NewStatusReporter(emptyLineageStore{})
	return New(nil, nil, deleter, status, nil)
}

type fakeUploader struct{}

func (fakeUploader) UploadFileObj(_ context.Context, bucket, objectName string, r io.Reader, _ int64, _ string) (string, error) {
	io.Copy(io.Discard, r)
	return "s3://" + bucket + "/" + objectName, nil
}

type fakeQueue struct {
	enqueued []queue.JobType
	payload  map[string]interface{}
}

func (q *fakeQueue) Enqueue(jobType queue.JobType, payload map[string]interface{}) (*queue.Job, error) {
	q.enqueued = append(q.enqueued, jobType)
	q.payload = payload
	return &queue.Job{ID: "job_test-1", Type: jobType, Status: queue.JobStatusPending}, nil
}

// newTestServerWithUploader is used by the upload-success test, backed by a
// fakeQueue so the assertions can see exactly what uploadVideos enqueued.
func newTestServerWithUploader(q *fakeQueue) *Server {
	deleter := management.NewDeleter(emptyLineageStore{}, noopBlobDeleter{}, noopVectorDeleter{}, nil)
	status := management.NewStatusReporter(emptyLineageStore{})
	return New(q, fakeUploader{}, deleter, status, nil)
}

func newTestRouter(s *Server) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	s.Register(r)
	return r
}

func TestHealthReturnsOK(t *testing.T) {
	r := newTestRouter(newTestServer())
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestUploadVideosRejectsMissingUserID(t *testing.T) {
	r := newTestRouter(newTestServer())

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, _ := writer.CreateFormFile("files", "a.mp4")
	part.Write([]byte("fake-bytes"))
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/uploads/", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestUploadVideosRejectsNoFiles(t *testing.T) {
	r := newTestRouter(newTestServer())

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	writer.WriteField("user_id", "user-1")
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/uploads/", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestUploadVideosReturnsAcceptedWithFlowRunID(t *testing.T) {
	q := &fakeQueue{}
	r := newTestRouter(newTestServerWithUploader(q))

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="files"; filename="a.mp4"`)
	header.Set("Content-Type", "video/mp4")
	part, _ := writer.CreatePart(header)
	part.Write([]byte("fake-bytes"))
	writer.WriteField("user_id", "user-1")
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/uploads/", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202, body: %s", w.Code, w.Body.String())
	}

	var resp uploadVideosResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.RunID == "" {
		t.Errorf("expected non-empty run_id")
	}
	if resp.FlowRunID != resp.RunID {
		t.Errorf("flow_run_id = %q, want it to match run_id %q", resp.FlowRunID, resp.RunID)
	}
	if resp.VideoCount != 1 {
		t.Errorf("video_count = %d, want 1", resp.VideoCount)
	}
	if len(resp.VideoNames) != 1 || resp.VideoNames[0] != "a.mp4" {
		t.Errorf("video_names = %v, want [a.mp4]", resp.VideoNames)
	}
	if len(q.enqueued) != 1 || q.enqueued[0] != queue.JobTypeIngestionRun {
		t.Errorf("expected exactly one ingestion_run job enqueued, got %v", q.enqueued)
	}
	if q.payload["user_bucket"] != "user-1" {
		t.Errorf("enqueued payload user_bucket = %v, want user-1", q.payload["user_bucket"])
	}
}

func TestNewUploadVideosResponseFieldShape(t *testing.T) {
	uploads := []pipeline.VideoUpload{{VideoID: "v1", BlobURL: "s3://bucket/v1.mp4", Filename: "clip.mp4"}}
	resp := newUploadVideosResponse("run-123", uploads, []string{"clip.mp4"})

	if resp.RunID != "run-123" || resp.FlowRunID != "run-123" {
		t.Errorf("expected run_id and flow_run_id both run-123, got %q / %q", resp.RunID, resp.FlowRunID)
	}
	if resp.VideoCount != 1 {
		t.Errorf("video_count = %d, want 1", resp.VideoCount)
	}
	if len(resp.VideoNames) != 1 || resp.VideoNames[0] != "clip.mp4" {
		t.Errorf("video_names = %v, want [clip.mp4]", resp.VideoNames)
	}
	if resp.TrackingURL != "/management/videos/v1/status" {
		t.Errorf("tracking_url = %q, want /management/videos/v1/status", resp.TrackingURL)
	}
}

func TestGetVideoStatusReturns404ForUnknownVideo(t *testing.T) {
	r := newTestRouter(newTestServer())
	req := httptest.NewRequest(http.MethodGet, "/management/videos/ghost/status", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestDeleteVideoReturns404ForUnknownVideo(t *testing.T) {
	r := newTestRouter(newTestServer())
	req := httptest.NewRequest(http.MethodDelete, "/management/videos/ghost", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}
