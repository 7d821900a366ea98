package generation

import (
	"context"
	"encoding/json"
	"errors"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/inkwell-systems/comicforge-backend/pkg/enums"
)

// TaskMessage is the wire payload dispatched to the worker.
type TaskMessage struct {
	GenerationID uuid.UUID      `json:"generation_id"`
	ProjectID    uuid.UUID      `json:"project_id"`
	UserID       uuid.UUID      `json:"user_id"`
	TaskType     enums.TaskType `json:"task_type"`
}

func (m TaskMessage) Encode() ([]byte, error) {
	return json.Marshal(m)
}

func DecodeTaskMessage(data []byte) (TaskMessage, error) {
	var msg TaskMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return TaskMessage{}, err
	}
	if msg.GenerationID == uuid.Nil || msg.ProjectID == uuid.Nil {
		return TaskMessage{}, errors.New("task message missing ids")
	}
	if !msg.TaskType.IsValid() {
		return TaskMessage{}, errors.New("task message has unknown task type")
	}
	return msg, nil
}

// GCPPublisher adapts a Pub/Sub publisher to the dispatcher's interface and
// reports the server assigned message id.
type GCPPublisher struct {
	pub *pubsub.Publisher
}

func NewGCPPublisher(pub *pubsub.Publisher) (*GCPPublisher, error) {
	if pub == nil {
		return nil, errors.New("publisher is required")
	}
	return &GCPPublisher{pub: pub}, nil
}

func (p *GCPPublisher) Publish(ctx context.Context, data []byte) (string, error) {
	result := p.pub.Publish(ctx, &pubsub.Message{Data: data})
	return result.Get(ctx)
}
