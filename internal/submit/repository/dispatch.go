package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ucode/internal/common/mq"
	"ucode/internal/judge/model"
)

// JudgeDispatcher hands submissions to the external judge.
type JudgeDispatcher interface {
	Dispatch(ctx context.Context, topic string, message model.JudgeMessage) error
}

// MQJudgeDispatcher publishes judge messages to a message queue.
type MQJudgeDispatcher struct {
	producer mq.Producer
}

// NewMQJudgeDispatcher creates a new MQ judge dispatcher.
func NewMQJudgeDispatcher(producer mq.Producer) *MQJudgeDispatcher {
	return &MQJudgeDispatcher{producer: producer}
}

// Dispatch publishes message on topic keyed by submission id.
func (d *MQJudgeDispatcher) Dispatch(ctx context.Context, topic string, message model.JudgeMessage) error {
	if d == nil || d.producer == nil {
		return fmt.Errorf("judge dispatcher is not configured")
	}
	if topic == "" {
		return fmt.Errorf("judge topic is required")
	}
	if message.SubmissionID == "" {
		return fmt.Errorf("submission id is required")
	}
	if message.QueuedAt == 0 {
		message.QueuedAt = time.Now().Unix()
	}
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("marshal judge message failed: %w", err)
	}
	msg := mq.NewMessage(payload)
	msg.ID = message.SubmissionID
	msg.SetHeader("kind", message.Kind)
	if err := d.producer.Publish(ctx, topic, msg); err != nil {
		return fmt.Errorf("publish judge message failed: %w", err)
	}
	return nil
}
