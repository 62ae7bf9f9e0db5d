package telemetry

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestInitTracingDefaultsServiceNameAndRatio(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if shutdown == nil {
		t.Fatalf("expected a non-nil shutdown func")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown returned error: %v", err)
	}
}

func TestNewMetricsOnRegistersAllCollectorsAndIncrements(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsOn(reg)

	m.StageFailures.WithLabelValues("ingest").Inc()
	m.ArtifactsPersisted.WithLabelValues("video").Add(3)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	var foundFailures, foundArtifacts bool
	for _, fam := range families {
		switch fam.GetName() {
		case "ingestion_stage_failures_total":
			foundFailures = true
			assertCounterValue(t, fam, 1)
		case "ingestion_artifacts_persisted_total":
			foundArtifacts = true
			assertCounterValue(t, fam, 3)
		}
	}
	if !foundFailures {
		t.Errorf("expected ingestion_stage_failures_total to be registered")
	}
	if !foundArtifacts {
		t.Errorf("expected ingestion_artifacts_persisted_total to be registered")
	}
}

func assertCounterValue(t *testing.T, fam *dto.MetricFamily, want float64) {
	t.Helper()
	if len(fam.Metric) != 1 {
		t.Fatalf("%s: expected 1 metric series, got %d", fam.GetName(), len(fam.Metric))
	}
	got := fam.Metric[0].GetCounter().GetValue()
	if got != want {
		t.Errorf("%s = %v, want %v", fam.GetName(), got, want)
	}
}
