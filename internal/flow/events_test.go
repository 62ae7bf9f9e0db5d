package flow

import (
	"context"
	"testing"
)

func TestEventPublisherPublishNoOpWithoutConnection(t *testing.T) {
	pub := NewEventPublisher(nil)
	err := pub.Publish(context.Background(), ProgressEvent{
		VideoID:           "vid-1",
		Stage:             StageVideoIngest,
		OverallPercentage: 10,
		Status:            RunRunning,
	})
	if err != nil {
		t.Errorf("Publish with nil *nats.Conn should be a no-op, got err: %v", err)
	}
}

func TestEventPublisherPublishNilReceiverNoOp(t *testing.T) {
	var pub *EventPublisher
	err := pub.Publish(context.Background(), ProgressEvent{VideoID: "vid-1"})
	if err != nil {
		t.Errorf("Publish on nil *EventPublisher should be a no-op, got err: %v", err)
	}
}
