package scenedetect

import (
	"os"
	"testing"
)

func TestScenesToFramesConvertsSecondsAtGivenFPS(t *testing.T) {
	scenes := []Scene{
		{Index: 0, StartTime: 0, EndTime: 4},
		{Index: 1, StartTime: 4, EndTime: 10},
	}

	got := scenesToFrames(scenes, 25)

	want := [][2]int{{0, 100}, {100, 250}}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("shot %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestScenesToFramesEmptyInput(t *testing.T) {
	if got := scenesToFrames(nil, 30); len(got) != 0 {
		t.Errorf("expected no shots, got %v", got)
	}
}

func TestCheckDependenciesFailsWhenScriptMissing(t *testing.T) {
	d := &Detector{pythonPath: "python3", scenedetectScript: "/nonexistent/sd_runner.py"}
	if err := d.checkDependencies(); err == nil {
		t.Error("expected error for missing scenedetect script")
	}
}

func TestCheckDependenciesFailsWhenPythonMissing(t *testing.T) {
	d := &Detector{pythonPath: "/nonexistent/python3", scenedetectScript: os.Args[0]}
	if err := d.checkDependencies(); err == nil {
		t.Error("expected error for missing python interpreter")
	}
}
