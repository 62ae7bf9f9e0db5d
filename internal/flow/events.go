package flow

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"
)

// ProgressEvent is the wire shape published to NATS each time a stage
// advances for a video, so external subscribers (a UI, a notifier) can
// stream progress without polling GetVideoStatus.
type ProgressEvent struct {
	VideoID           string          `json:"video_id"`
	Stage             ProcessingStage `json:"stage"`
	OverallPercentage float64         `json:"overall_percentage"`
	Status            RunStatus       `json:"status"`
}

const ProgressSubjectPrefix = "ingestion.progress."

// EventPublisher publishes one progress event per stage transition. A nil
// *nats.Conn makes Publish a no-op, so the flow runs without a broker in
// tests or single-node deployments.
type EventPublisher struct {
	nc *nats.Conn
}

func NewEventPublisher(nc *nats.Conn) *EventPublisher {
	return &EventPublisher{nc: nc}
}

func (p *EventPublisher) Publish(_ context.Context, event ProgressEvent) error {
	if p == nil || p.nc == nil {
		return nil
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.nc.Publish(ProgressSubjectPrefix+event.VideoID, data)
}
