package flow

import (
	"context"
	"fmt"

	"github.com/goodclips-platform/ingestion/internal/artifact"
	"github.com/goodclips-platform/ingestion/internal/ffmpeg"
	"github.com/goodclips-platform/ingestion/internal/persist"
	"github.com/goodclips-platform/ingestion/internal/pipeline"
	"github.com/goodclips-platform/ingestion/internal/tracker"
	"github.com/goodclips-platform/ingestion/internal/vectorindex"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// LineageLookup resolves an artifact id to its recorded blob URL, letting
// the embedding-ingest stages recover the payload of a prior, skipped run
// without re-deriving the artifact's object key themselves.
type LineageLookup interface {
	GetArtifact(ctx context.Context, id string) (*tracker.ArtifactRow, error)
}

// BlobReader narrows storage.Client to the read paths the orchestrator and
// the embedding source need.
type BlobReader interface {
	ReadJSON(ctx context.Context, bucket, objectKey string, out any) (bool, error)
	GetObject(ctx context.Context, bucket, objectKey string) ([]byte, error)
}

// embeddingSource adapts the lineage tracker + blob store into
// pipeline.EmbeddingSource, decoding the flat float32 buffer each embedding
// artifact's object key holds.
type embeddingSource struct {
	lineage LineageLookup
	blob    BlobReader
}

func (s *embeddingSource) MinioURL(ctx context.Context, artifactID string) (string, error) {
	row, err := s.lineage.GetArtifact(ctx, artifactID)
	if err != nil {
		if err == tracker.ErrNotFound {
			return "", nil
		}
		return "", err
	}
	return row.MinioURL, nil
}

func (s *embeddingSource) Vector(ctx context.Context, minioURL string) ([]float32, error) {
	bucket, key, err := splitMinioURL(minioURL)
	if err != nil {
		return nil, err
	}
	data, err := s.blob.GetObject(ctx, bucket, key)
	if err != nil {
		return nil, err
	}
	return pipeline.DecodeVector(data), nil
}

// splitMinioURL parses the "s3://bucket/key" URIs storage.Client emits.
func splitMinioURL(minioURL string) (bucket, key string, err error) {
	const prefix = "s3://"
	if len(minioURL) <= len(prefix) || minioURL[:len(prefix)] != prefix {
		return "", "", fmt.Errorf("flow: malformed minio url %q", minioURL)
	}
	rest := minioURL[len(prefix):]
	for i := 0; i < len(rest); i++ {
		if rest[i] == '/' {
			return rest[:i], rest[i+1:], nil
		}
	}
	return "", "", fmt.Errorf("flow: malformed minio url %q", minioURL)
}

// Deps bundles every external dependency the DAG needs. Nil optional
// fields (Events) degrade gracefully; every other field is required.
type Deps struct {
	Visitor         *persist.Visitor
	Lineage         LineageLookup
	Blob            BlobReader
	FFmpeg          *ffmpeg.FFmpegClient
	ShotClient      pipeline.ShotBoundaryClient
	ASRClient       pipeline.ASRClient
	LLM             pipeline.LLMClient
	ImageEmbedder   pipeline.ImageEmbeddingClient
	TextEmbedder    pipeline.TextEmbeddingClient
	VectorIndex     pipeline.VectorStore
	Progress        *Tracker
	Events          *EventPublisher
	Log             *zap.Logger
	Concurrency     int
	ImagesPerSegment int
	EmbeddingBatchSize int
	// LocalVideoPath materializes a video_id's source blob to a local path
	// for ffmpeg probing/extraction, returning a cleanup func.
	LocalVideoPath func(ctx context.Context, videoID string) (path string, cleanup func(), err error)
}

// RunParams is one invocation's input: the uploaded videos and the user
// bucket they belong to (spec.md §6.1).
type RunParams struct {
	Uploads    []pipeline.VideoUpload
	UserBucket string
}

// Manifest summarizes one orchestrator run, mirroring the aggregate-results
// step of the original flow (spec.md §7).
type Manifest struct {
	Videos                  int
	Autoshots               int
	ASRTranscripts          int
	Images                  int
	SegmentCaptions         int
	ImageCaptions           int
	ImageEmbeddings         int
	TextImageCaptionEmbeds  int
	SegmentCaptionEmbeds    int
}

// Orchestrator drives the full video-ingestion DAG: Ingest -> {ShotDetect,
// ASR} -> SegmentCaption -> SegmentCaptionEmbed -> VectorIngest[segment];
// ShotDetect -> ImageExtract -> {ImageCaption -> TextImageCaptionEmbed ->
// VectorIngest[text-caption], ImageEmbed -> VectorIngest[image]}
// (spec.md §4.8, §7). Fan-out/fan-in uses golang.org/x/sync/errgroup rather
// than a workflow engine — see SPEC_FULL.md "Why not Temporal".
type Orchestrator struct {
	Deps Deps
}

func New(deps Deps) *Orchestrator {
	if deps.Concurrency <= 0 {
		deps.Concurrency = 4
	}
	if deps.ImagesPerSegment <= 0 {
		deps.ImagesPerSegment = 3
	}
	if deps.EmbeddingBatchSize <= 0 {
		deps.EmbeddingBatchSize = 16
	}
	return &Orchestrator{Deps: deps}
}

func (o *Orchestrator) publish(ctx context.Context, videoID string, stage ProcessingStage) {
	vp, ok := o.Deps.Progress.GetProgress(videoID)
	overall := 0.0
	status := RunRunning
	if ok {
		overall = vp.OverallPercentage
		status = vp.Status
	}
	_ = o.Deps.Events.Publish(ctx, ProgressEvent{VideoID: videoID, Stage: stage, OverallPercentage: overall, Status: status})
}

// Run executes the full DAG for one batch of uploaded videos.
func (o *Orchestrator) Run(ctx context.Context, params RunParams) (*Manifest, error) {
	d := o.Deps

	ingest := &pipeline.IngestStage{
		Uploads:      params.Uploads,
		UserBucket:   params.UserBucket,
		FFmpeg:       d.FFmpeg,
		FetchToLocal: wrapFetch(d.LocalVideoPath),
	}
	ingestItems, err := pipeline.Run(ctx, ingest, d.Visitor, d.Concurrency, d.Log)
	if err != nil {
		return nil, fmt.Errorf("flow: ingest: %w", err)
	}

	videos := make([]artifact.Video, 0, len(ingestItems))
	for _, it := range ingestItems {
		v := it.Artifact.(artifact.Video)
		videos = append(videos, v)
		d.Progress.StartVideo(v.VideoIDVal)
		d.Progress.UpdateStageProgress(v.VideoIDVal, StageVideoIngest, 1, 1, nil)
		o.publish(ctx, v.VideoIDVal, StageVideoIngest)
	}

	var shotItems, asrItems []pipeline.Item
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		shotStage := &pipeline.ShotDetectStage{Videos: videos, Client: d.ShotClient}
		items, err := pipeline.Run(gctx, shotStage, d.Visitor, d.Concurrency, d.Log)
		shotItems = items
		return err
	})
	g.Go(func() error {
		asrStage := &pipeline.ASRStage{Videos: videos, Client: d.ASRClient}
		items, err := pipeline.Run(gctx, asrStage, d.Visitor, d.Concurrency, d.Log)
		asrItems = items
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("flow: shotdetect/asr: %w", err)
	}

	autoshots := make(map[string]pipeline.AutoshotPayload, len(shotItems))
	for _, it := range shotItems {
		shot := it.Artifact.(artifact.Autoshot)
		payload, err := o.resolveAutoshotPayload(ctx, it, shot)
		if err != nil {
			return nil, fmt.Errorf("flow: resolve autoshot payload for %s: %w", shot.VideoIDVal, err)
		}
		autoshots[shot.VideoIDVal] = payload
		d.Progress.UpdateStageProgress(shot.VideoIDVal, StageAutoshotSegment, 1, 1, nil)
		o.publish(ctx, shot.VideoIDVal, StageAutoshotSegment)
	}

	asrTokens := make(map[string][]pipeline.ASRToken, len(asrItems))
	for _, it := range asrItems {
		asr := it.Artifact.(artifact.ASR)
		payload, err := o.resolveASRPayload(ctx, it, asr)
		if err != nil {
			return nil, fmt.Errorf("flow: resolve asr payload for %s: %w", asr.VideoIDVal, err)
		}
		asrTokens[asr.VideoIDVal] = payload.Tokens
		d.Progress.UpdateStageProgress(asr.VideoIDVal, StageASRTranscription, 1, 1, nil)
		o.publish(ctx, asr.VideoIDVal, StageASRTranscription)
	}

	imageExtract := &pipeline.ImageExtractStage{
		Autoshots:      autoshots,
		Videos:         videos,
		NPerSegment:    d.ImagesPerSegment,
		FFmpeg:         d.FFmpeg,
		LocalVideoPath: d.LocalVideoPath,
	}
	imageItems, err := pipeline.Run(ctx, imageExtract, d.Visitor, d.Concurrency, d.Log)
	if err != nil {
		return nil, fmt.Errorf("flow: imageextract: %w", err)
	}
	images := make([]artifact.Image, 0, len(imageItems))
	for _, it := range imageItems {
		img := it.Artifact.(artifact.Image)
		images = append(images, img)
	}
	for _, v := range videos {
		n := countByVideo(images, v.VideoIDVal)
		d.Progress.UpdateStageProgress(v.VideoIDVal, StageImageExtraction, n, n, nil)
		o.publish(ctx, v.VideoIDVal, StageImageExtraction)
	}

	manifest := &Manifest{Videos: len(videos), Autoshots: len(shotItems), ASRTranscripts: len(asrItems), Images: len(images)}

	var segBranchErr, imgBranchErr error
	g2, gctx2 := errgroup.WithContext(ctx)

	g2.Go(func() error {
		n, err := o.runSegmentBranch(gctx2, videos, autoshots, asrTokens)
		manifest.SegmentCaptions = n.captions
		manifest.SegmentCaptionEmbeds = n.embeds
		segBranchErr = err
		return err
	})
	g2.Go(func() error {
		n, err := o.runImageBranch(gctx2, images, params.UserBucket)
		manifest.ImageCaptions = n.captions
		manifest.ImageEmbeddings = n.imageEmbeds
		manifest.TextImageCaptionEmbeds = n.textEmbeds
		imgBranchErr = err
		return err
	})

	if err := g2.Wait(); err != nil {
		if segBranchErr != nil {
			return manifest, fmt.Errorf("flow: segment branch: %w", segBranchErr)
		}
		return manifest, fmt.Errorf("flow: image branch: %w", imgBranchErr)
	}

	for _, v := range videos {
		d.Progress.CompleteRun(v.VideoIDVal, RunCompleted, "")
		o.publish(ctx, v.VideoIDVal, StageSegmentVectorIngest)
	}

	return manifest, nil
}

func wrapFetch(fn func(ctx context.Context, videoID string) (string, func(), error)) func(context.Context, string) (string, func(), error) {
	if fn == nil {
		return nil
	}
	return func(ctx context.Context, blobURL string) (string, func(), error) {
		return fn(ctx, blobURL)
	}
}

func countByVideo(images []artifact.Image, videoID string) int {
	n := 0
	for _, img := range images {
		if img.VideoIDVal == videoID {
			n++
		}
	}
	return n
}

// resolveAutoshotPayload returns the fresh payload for a newly-detected
// shot, or re-reads the persisted payload from blob storage when the
// stage skipped because the artifact already existed (resumability).
func (o *Orchestrator) resolveAutoshotPayload(ctx context.Context, it pipeline.Item, shot artifact.Autoshot) (pipeline.AutoshotPayload, error) {
	if !it.Skipped {
		if p, ok := it.Payload.(pipeline.AutoshotPayload); ok {
			return p, nil
		}
	}
	var payload pipeline.AutoshotPayload
	if _, err := o.Deps.Blob.ReadJSON(ctx, shot.UserBucket(), shot.ObjectKey(), &payload); err != nil {
		return pipeline.AutoshotPayload{}, err
	}
	return payload, nil
}

func (o *Orchestrator) resolveASRPayload(ctx context.Context, it pipeline.Item, asr artifact.ASR) (pipeline.ASRPayload, error) {
	if !it.Skipped {
		if p, ok := it.Payload.(pipeline.ASRPayload); ok {
			return p, nil
		}
	}
	var payload pipeline.ASRPayload
	if _, err := o.Deps.Blob.ReadJSON(ctx, asr.UserBucket(), asr.ObjectKey(), &payload); err != nil {
		return pipeline.ASRPayload{}, err
	}
	return payload, nil
}

type segmentBranchCounts struct {
	captions int
	embeds   int
}

func (o *Orchestrator) runSegmentBranch(ctx context.Context, videos []artifact.Video, autoshots map[string]pipeline.AutoshotPayload, asrTokens map[string][]pipeline.ASRToken) (segmentBranchCounts, error) {
	d := o.Deps

	segStage := &pipeline.SegmentCaptionStage{
		Autoshots:        autoshots,
		ASRTokens:        asrTokens,
		Videos:           videos,
		ImagesPerSegment: d.ImagesPerSegment,
		FFmpeg:           d.FFmpeg,
		LocalVideoPath:   d.LocalVideoPath,
		LLM:              d.LLM,
	}
	segItems, err := pipeline.Run(ctx, segStage, d.Visitor, d.Concurrency, d.Log)
	if err != nil {
		return segmentBranchCounts{}, fmt.Errorf("segmentcaption: %w", err)
	}

	captions := make([]artifact.SegmentCaption, 0, len(segItems))
	captionText := make(map[string]string, len(segItems))
	captionURL := make(map[string]string, len(segItems))
	for _, it := range segItems {
		sc := it.Artifact.(artifact.SegmentCaption)
		captions = append(captions, sc)
		if !it.Skipped {
			if p, ok := it.Payload.(pipeline.SegmentCaptionPayload); ok {
				captionText[sc.ArtifactID()] = p.Caption
			}
		}
		if url, err := o.lookupMinioURL(ctx, sc.ArtifactID()); err == nil {
			captionURL[sc.ArtifactID()] = url
		}
	}
	for _, c := range captions {
		if _, ok := captionText[c.ArtifactID()]; !ok {
			var payload pipeline.SegmentCaptionPayload
			if _, err := d.Blob.ReadJSON(ctx, c.UserBucket(), c.ObjectKey(), &payload); err == nil {
				captionText[c.ArtifactID()] = payload.Caption
			}
		}
	}

	for _, v := range videos {
		n := countSegments(autoshots[v.VideoIDVal])
		d.Progress.UpdateStageProgress(v.VideoIDVal, StageSegmentCaptioning, n, n, nil)
		o.publish(ctx, v.VideoIDVal, StageSegmentCaptioning)
	}

	embedStage := &pipeline.SegmentCaptionEmbeddingStage{
		Captions:    captions,
		CaptionText: captionText,
		Client:      d.TextEmbedder,
		BatchSize:   d.EmbeddingBatchSize,
	}
	embedItems, err := embedStage.RunEmbeddingBatches(ctx, d.Visitor)
	if err != nil {
		return segmentBranchCounts{}, fmt.Errorf("segmentcaptionembedding: %w", err)
	}

	embeddings := make([]artifact.SegmentCaptionEmbedding, 0, len(embedItems))
	for _, it := range embedItems {
		embeddings = append(embeddings, it.Artifact.(artifact.SegmentCaptionEmbedding))
	}
	for _, v := range videos {
		n := countSegments(autoshots[v.VideoIDVal])
		d.Progress.UpdateStageProgress(v.VideoIDVal, StageTextCapSegmentEmbed, n, n, nil)
		o.publish(ctx, v.VideoIDVal, StageTextCapSegmentEmbed)
	}

	vectorStage := &pipeline.VectorIngestSegmentCaptionStage{
		Embeddings:  embeddings,
		CaptionText: captionText,
		CaptionURL:  captionURL,
		Source:      &embeddingSource{lineage: d.Lineage, blob: d.Blob},
		Index:       d.VectorIndex,
		BatchSize:   d.EmbeddingBatchSize,
	}
	if err := vectorStage.Run(ctx); err != nil {
		return segmentBranchCounts{}, fmt.Errorf("vectoringest-segment-caption: %w", err)
	}
	for _, v := range videos {
		n := countSegments(autoshots[v.VideoIDVal])
		d.Progress.UpdateStageProgress(v.VideoIDVal, StageSegmentVectorIngest, n, n, nil)
		o.publish(ctx, v.VideoIDVal, StageSegmentVectorIngest)
	}

	return segmentBranchCounts{captions: len(captions), embeds: len(embeddings)}, nil
}

type imageBranchCounts struct {
	captions    int
	imageEmbeds int
	textEmbeds  int
}

func (o *Orchestrator) runImageBranch(ctx context.Context, images []artifact.Image, userBucket string) (imageBranchCounts, error) {
	d := o.Deps
	fetcher := d.Blob2Fetcher(userBucket)

	captionStage := &pipeline.ImageCaptionStage{Images: images, Fetcher: fetcher, LLM: d.LLM}
	capItems, err := pipeline.Run(ctx, captionStage, d.Visitor, d.Concurrency, d.Log)
	if err != nil {
		return imageBranchCounts{}, fmt.Errorf("imagecaption: %w", err)
	}

	captions := make([]artifact.ImageCaption, 0, len(capItems))
	captionText := make(map[string]string, len(capItems))
	captionURL := make(map[string]string, len(capItems))
	imageURL := make(map[string]string, len(capItems))
	for _, it := range capItems {
		ic := it.Artifact.(artifact.ImageCaption)
		captions = append(captions, ic)
		if !it.Skipped {
			if p, ok := it.Payload.(pipeline.ImageCaptionPayload); ok {
				captionText[ic.ArtifactID()] = p.Caption
			}
		}
		if url, err := o.lookupMinioURL(ctx, ic.ArtifactID()); err == nil {
			captionURL[ic.ArtifactID()] = url
		}
		for _, img := range images {
			if img.ArtifactID() == ic.ImageID {
				if url, err := o.lookupMinioURL(ctx, img.ArtifactID()); err == nil {
					imageURL[ic.ArtifactID()] = url
				}
				break
			}
		}
	}
	for _, c := range captions {
		if _, ok := captionText[c.ArtifactID()]; !ok {
			var payload pipeline.ImageCaptionPayload
			if _, err := d.Blob.ReadJSON(ctx, c.UserBucket(), c.ObjectKey(), &payload); err == nil {
				captionText[c.ArtifactID()] = payload.Caption
			}
		}
	}

	videoIDs := uniqueVideoIDs(images)
	for _, vid := range videoIDs {
		n := countByVideo(images, vid)
		d.Progress.UpdateStageProgress(vid, StageImageCaptioning, n, n, nil)
		o.publish(ctx, vid, StageImageCaptioning)
	}

	var imageEmbedItems, textEmbedItems []pipeline.Item
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		imageEmbedStage := &pipeline.ImageEmbeddingStage{Images: images, Fetcher: fetcher, Client: d.ImageEmbedder, BatchSize: d.EmbeddingBatchSize}
		items, err := imageEmbedStage.RunEmbeddingBatches(gctx, d.Visitor)
		imageEmbedItems = items
		return err
	})
	g.Go(func() error {
		textEmbedStage := &pipeline.TextImageCaptionEmbeddingStage{Captions: captions, CaptionText: captionText, Client: d.ImageEmbedder, BatchSize: d.EmbeddingBatchSize}
		items, err := textEmbedStage.RunEmbeddingBatches(gctx, d.Visitor)
		textEmbedItems = items
		return err
	})
	if err := g.Wait(); err != nil {
		return imageBranchCounts{}, fmt.Errorf("imageembedding/textembedding: %w", err)
	}

	for _, vid := range videoIDs {
		n := countByVideo(images, vid)
		d.Progress.UpdateStageProgress(vid, StageImageEmbedding, n, n, nil)
		d.Progress.UpdateStageProgress(vid, StageTextCapImageEmbed, n, n, nil)
		o.publish(ctx, vid, StageImageEmbedding)
		o.publish(ctx, vid, StageTextCapImageEmbed)
	}

	imageEmbeddings := make([]artifact.ImageEmbedding, 0, len(imageEmbedItems))
	for _, it := range imageEmbedItems {
		imageEmbeddings = append(imageEmbeddings, it.Artifact.(artifact.ImageEmbedding))
	}
	textEmbeddings := make([]artifact.TextCaptionEmbedding, 0, len(textEmbedItems))
	for _, it := range textEmbedItems {
		textEmbeddings = append(textEmbeddings, it.Artifact.(artifact.TextCaptionEmbedding))
	}

	source := &embeddingSource{lineage: d.Lineage, blob: d.Blob}

	g2, gctx2 := errgroup.WithContext(ctx)
	g2.Go(func() error {
		stage := &pipeline.VectorIngestImageStage{Embeddings: imageEmbeddings, Source: source, Index: d.VectorIndex, BatchSize: d.EmbeddingBatchSize}
		return stage.Run(gctx2)
	})
	g2.Go(func() error {
		stage := &pipeline.VectorIngestTextCaptionStage{
			Embeddings:  textEmbeddings,
			CaptionText: captionText,
			CaptionURL:  captionURL,
			ImageURL:    imageURL,
			Source:      source,
			Index:       d.VectorIndex,
			BatchSize:   d.EmbeddingBatchSize,
		}
		return stage.Run(gctx2)
	})
	if err := g2.Wait(); err != nil {
		return imageBranchCounts{}, fmt.Errorf("vectoringest-image/text-caption: %w", err)
	}

	for _, vid := range videoIDs {
		n := countByVideo(images, vid)
		d.Progress.UpdateStageProgress(vid, StageImageVectorIngest, n, n, nil)
		d.Progress.UpdateStageProgress(vid, StageTextVectorIngest, n, n, nil)
		o.publish(ctx, vid, StageImageVectorIngest)
		o.publish(ctx, vid, StageTextVectorIngest)
	}

	return imageBranchCounts{captions: len(captions), imageEmbeds: len(imageEmbeddings), textEmbeds: len(textEmbeddings)}, nil
}

func (o *Orchestrator) lookupMinioURL(ctx context.Context, artifactID string) (string, error) {
	row, err := o.Deps.Lineage.GetArtifact(ctx, artifactID)
	if err != nil {
		return "", err
	}
	return row.MinioURL, nil
}

func countSegments(p pipeline.AutoshotPayload) int { return len(p.Segments) }

func uniqueVideoIDs(images []artifact.Image) []string {
	seen := make(map[string]bool)
	var out []string
	for _, img := range images {
		if !seen[img.VideoIDVal] {
			seen[img.VideoIDVal] = true
			out = append(out, img.VideoIDVal)
		}
	}
	return out
}

// Blob2Fetcher adapts BlobReader to pipeline.ImageFetcher for one run's
// user bucket (every artifact in a single Run call shares one bucket, per
// RunParams.UserBucket).
func (d *Deps) Blob2Fetcher(userBucket string) pipeline.ImageFetcher {
	return &bucketFetcher{blob: d.Blob, bucket: userBucket}
}

type bucketFetcher struct {
	blob   BlobReader
	bucket string
}

func (f *bucketFetcher) GetObject(ctx context.Context, objectKey string) ([]byte, error) {
	return f.blob.GetObject(ctx, f.bucket, objectKey)
}
