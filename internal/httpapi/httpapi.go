// Package httpapi exposes the ingestion pipeline over HTTP: video upload
// (which enqueues a DAG run for the worker subcommand), cascading deletes,
// and status polling, grounded on
// original_source/ingestion/api/{upload.py,management.py} and the
// teacher's gin route-registration style in cmd/main.go.
package httpapi

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/goodclips-platform/ingestion/internal/artifact"
	"github.com/goodclips-platform/ingestion/internal/management"
	"github.com/goodclips-platform/ingestion/internal/pipeline"
	"github.com/goodclips-platform/ingestion/internal/queue"
)

// Uploader narrows *storage.Client to the one write path the upload
// handler needs: storing the raw video bytes before the DAG runs.
type Uploader interface {
	UploadFileObj(ctx context.Context, bucket, objectName string, r io.Reader, size int64, contentType string) (string, error)
}

// JobEnqueuer narrows *queue.Queue to the one write path the upload
// handler needs: handing a batch off to the worker subcommand rather than
// running internal/flow.Orchestrator in-process.
type JobEnqueuer interface {
	Enqueue(jobType queue.JobType, payload map[string]interface{}) (*queue.Job, error)
}

// allowedVideoTypes mirrors upload.py's allowed_types list.
var allowedVideoTypes = map[string]bool{
	"video/mp4":        true,
	"video/quicktime":  true,
	"video/x-matroska": true,
	"video/avi":        true,
}

// Server wires the gin routes to the job queue and management layer. It
// never runs the DAG itself — uploadVideos enqueues one JobTypeIngestionRun
// job per batch and returns; the worker subcommand (internal/processor) is
// the only thing that calls flow.Orchestrator.Run.
type Server struct {
	Queue    JobEnqueuer
	Uploader Uploader
	Deleter  *management.Deleter
	Status   *management.StatusReporter
	Log      *zap.Logger
}

func New(q JobEnqueuer, uploader Uploader, deleter *management.Deleter, status *management.StatusReporter, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{Queue: q, Uploader: uploader, Deleter: deleter, Status: status, Log: log}
}

// Register mounts every route on the given engine.
func (s *Server) Register(r gin.IRouter) {
	r.GET("/health", s.health)

	uploads := r.Group("/uploads")
	uploads.POST("/", s.uploadVideos)

	mgmt := r.Group("/management")
	mgmt.DELETE("/videos/:video_id", s.deleteVideo)
	mgmt.DELETE("/videos/:video_id/stages/:artifact_type", s.deleteVideoStage)
	mgmt.GET("/videos/:video_id/status", s.getVideoStatus)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "ingestion",
	})
}

// uploadVideosResponse mirrors upload.py's UploadResponse.
type uploadVideosResponse struct {
	RunID       string   `json:"run_id"`
	FlowRunID   string   `json:"flow_run_id"`
	VideoCount  int      `json:"video_count"`
	VideoNames  []string `json:"video_names"`
	Status      string   `json:"status"`
	Message     string   `json:"message"`
	TrackingURL string   `json:"tracking_url"`
}

func (s *Server) uploadVideos(c *gin.Context) {
	userID := c.PostForm("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart form", "details": err.Error()})
		return
	}
	files := form.File["files"]
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no files provided"})
		return
	}

	var invalid []string
	for _, f := range files {
		ct := f.Header.Get("Content-Type")
		if !allowedVideoTypes[ct] {
			invalid = append(invalid, f.Filename)
		}
	}
	if len(invalid) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid file types: %v", invalid)})
		return
	}

	uploads := make([]pipeline.VideoUpload, 0, len(files))
	names := make([]string, 0, len(files))

	for _, f := range files {
		videoID := uuid.NewString()
		objectKey := "uploads/" + videoID + "-" + f.Filename
		fh, err := f.Open()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read upload", "details": err.Error()})
			return
		}
		blobURL, err := s.Uploader.UploadFileObj(c.Request.Context(), userID, objectKey, fh, f.Size, f.Header.Get("Content-Type"))
		fh.Close()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store upload", "details": err.Error()})
			return
		}
		uploads = append(uploads, pipeline.VideoUpload{VideoID: videoID, BlobURL: blobURL, Filename: f.Filename})
		names = append(names, f.Filename)
	}

	job, err := s.Queue.Enqueue(queue.JobTypeIngestionRun, ingestionJobPayload(uploads, userID))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enqueue ingestion job", "details": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, newUploadVideosResponse(job.ID, uploads, names))
}

// ingestionJobPayload builds the queue.Job payload internal/processor
// decodes back into a flow.RunParams (spec.md §6.1).
func ingestionJobPayload(uploads []pipeline.VideoUpload, userBucket string) map[string]interface{} {
	entries := make([]interface{}, len(uploads))
	for i, u := range uploads {
		entries[i] = map[string]interface{}{
			"video_id": u.VideoID,
			"blob_url": u.BlobURL,
			"filename": u.Filename,
		}
	}
	return map[string]interface{}{
		"user_bucket": userBucket,
		"uploads":     entries,
	}
}

// newUploadVideosResponse builds the upload-accepted response body,
// factored out of the handler so its field shape can be tested without a
// live queue.
func newUploadVideosResponse(jobID string, uploads []pipeline.VideoUpload, names []string) uploadVideosResponse {
	return uploadVideosResponse{
		RunID:       jobID,
		FlowRunID:   jobID,
		VideoCount:  len(uploads),
		VideoNames:  names,
		Status:      "RUNNING",
		Message:     fmt.Sprintf("processing started for %d video(s)", len(uploads)),
		TrackingURL: fmt.Sprintf("/management/videos/%s/status", uploads[0].VideoID),
	}
}

type deletionResponse struct {
	Success  bool           `json:"success"`
	VideoID  string         `json:"video_id"`
	Metadata map[string]any `json:"metadata"`
}

func (s *Server) deleteVideo(c *gin.Context) {
	videoID := c.Param("video_id")
	result, err := s.Deleter.DeleteVideoCascade(c.Request.Context(), videoID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, deletionResponse{Success: result.Success, VideoID: result.VideoID, Metadata: result.Metadata})
}

func (s *Server) deleteVideoStage(c *gin.Context) {
	videoID := c.Param("video_id")
	artifactType := artifact.Type(c.Param("artifact_type"))
	result, err := s.Deleter.DeleteStageArtifacts(c.Request.Context(), videoID, artifactType)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, deletionResponse{Success: result.Success, VideoID: result.VideoID, Metadata: result.Metadata})
}

func (s *Server) getVideoStatus(c *gin.Context) {
	videoID := c.Param("video_id")
	st, err := s.Status.GetVideoStatus(c.Request.Context(), videoID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve status", "details": err.Error()})
		return
	}
	if st == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("video '%s' not found", videoID)})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"video_id":            st.VideoID,
		"video_name":          st.VideoName,
		"stages_completed":    st.StagesCompleted,
		"progress_percentage": st.ProgressPercentage,
		"metadata": gin.H{
			"artifact_counts": st.ArtifactCounts,
			"minio_url":       st.MinioURL,
			"latest_update":   st.LatestUpdate,
			"vector_backend":  st.VectorBackend,
		},
	})
}
