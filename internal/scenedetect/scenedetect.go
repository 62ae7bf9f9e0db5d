// Package scenedetect is the local PySceneDetect-backed fallback for shot
// boundary detection, used when no autoshot microservice is registered in
// Consul (internal/registry). It implements pipeline.ShotBoundaryClient by
// shelling out to a small Python runner the way the teacher's original
// Detector did, then converting the reported scene times to frame numbers
// using the video's probed fps so the rest of the pipeline only ever deals
// in (start_frame, end_frame) tuples.
package scenedetect

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/goodclips-platform/ingestion/internal/ffmpeg"
)

// Scene is one boundary PySceneDetect reported, in seconds.
type Scene struct {
	Index     int     `json:"index"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
}

// Detector runs PySceneDetect against a local video file.
type Detector struct {
	pythonPath        string
	scenedetectScript string
	ffmpeg            *ffmpeg.FFmpegClient
	// FetchToLocal downloads a blob URL to a local path for probing,
	// returning a cleanup func; swapped out in tests.
	FetchToLocal func(ctx context.Context, blobURL string) (localPath string, cleanup func(), err error)
}

// NewDetector creates a scene detector that shells out to the bundled
// PySceneDetect runner script.
func NewDetector(ff *ffmpeg.FFmpegClient) *Detector {
	return &Detector{
		pythonPath:        "python3",
		scenedetectScript: "/opt/goodclips/sd_runner.py",
		ffmpeg:            ff,
	}
}

// DetectShots implements pipeline.ShotBoundaryClient as a local fallback:
// it fetches the blob, runs PySceneDetect on it, probes fps, and converts
// second-denominated scene boundaries to (start_frame, end_frame) pairs.
func (d *Detector) DetectShots(ctx context.Context, videoBlobURL string) ([][2]int, error) {
	if err := d.checkDependencies(); err != nil {
		return nil, fmt.Errorf("scenedetect: dependencies not available: %w", err)
	}

	localPath, cleanup, err := d.FetchToLocal(ctx, videoBlobURL)
	if err != nil {
		return nil, fmt.Errorf("scenedetect: fetch %s: %w", videoBlobURL, err)
	}
	defer cleanup()

	scenes, err := d.detectScenes(ctx, localPath)
	if err != nil {
		return nil, err
	}

	fps, err := d.ffmpeg.GetFPS(localPath)
	if err != nil {
		return nil, fmt.Errorf("scenedetect: probe fps: %w", err)
	}
	if fps <= 0 {
		return nil, fmt.Errorf("scenedetect: non-positive fps %f for %s", fps, videoBlobURL)
	}

	return scenesToFrames(scenes, fps), nil
}

// scenesToFrames converts second-denominated scene boundaries to
// (start_frame, end_frame) pairs at the given fps. Pulled out as a pure
// function so the conversion can be tested without shelling out to Python
// or ffprobe.
func scenesToFrames(scenes []Scene, fps float64) [][2]int {
	shots := make([][2]int, 0, len(scenes))
	for _, s := range scenes {
		shots = append(shots, [2]int{
			int(s.StartTime * fps),
			int(s.EndTime * fps),
		})
	}
	return shots
}

func (d *Detector) detectScenes(ctx context.Context, videoPath string) ([]Scene, error) {
	detectTimeout := 300 * time.Second
	if v := os.Getenv("SCENEDETECT_TIMEOUT_SECS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			detectTimeout = time.Duration(secs) * time.Second
		}
	}
	ctx, cancel := context.WithTimeout(ctx, detectTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, d.pythonPath, d.scenedetectScript, videoPath)
	out, err := cmd.CombinedOutput()

	var result struct {
		Scenes []Scene `json:"scenes"`
		Count  int     `json:"count"`
		Error  string  `json:"error,omitempty"`
	}
	if jsonErr := json.Unmarshal(out, &result); jsonErr == nil && result.Error != "" {
		return nil, fmt.Errorf("scenedetect: %s", result.Error)
	}
	if err != nil {
		return nil, fmt.Errorf("scenedetect: run: %w; output: %s", err, string(out))
	}
	if uerr := json.Unmarshal(out, &result); uerr != nil {
		return nil, fmt.Errorf("scenedetect: parse output: %w", uerr)
	}

	return result.Scenes, nil
}

// checkDependencies verifies python and the bundled runner script are
// present; ffmpeg/ffprobe availability is verified by the FFmpegClient
// calls themselves.
func (d *Detector) checkDependencies() error {
	if err := exec.Command(d.pythonPath, "--version").Run(); err != nil {
		return fmt.Errorf("python not found: %w", err)
	}
	if _, err := os.Stat(d.scenedetectScript); os.IsNotExist(err) {
		return fmt.Errorf("scenedetect script not found: %s", d.scenedetectScript)
	}
	return nil
}
