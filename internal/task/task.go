// Package task builds downstream work descriptors and hands them to the
// task queue. A descriptor is created once, immutable, and owned by the
// downstream consumer after a successful enqueue.
package task

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/mediaprep/internal/fault"
)

// Type selects the downstream processing stage.
type Type string

const (
	TypeGopCreation Type = "GOP_CREATION"
	TypeTranscoding Type = "TRANSCODING"
)

// Worker selects which worker pool consumes the task.
type Worker string

const (
	WorkerGop        Worker = "GOP_WORKER"
	WorkerTranscoder Worker = "TRANSCODER_WORKER"
)

// Location addresses an object or prefix in durable storage.
type Location struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

// Descriptor is the task message enqueued for downstream workers.
type Descriptor struct {
	TaskID    string         `json:"taskId"`
	UserID    string         `json:"userId"`
	AssetID   string         `json:"assetId"`
	Input     Location       `json:"input"`
	Output    Location       `json:"output"`
	Type      Type           `json:"type"`
	Worker    Worker         `json:"worker"`
	CreatedAt string         `json:"createdAt"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// New builds a Descriptor with a "<type>-<uuid>" task id and an ISO-8601
// creation timestamp.
func New(userID, assetID string, input, output Location, taskType Type, worker Worker, metadata map[string]any) Descriptor {
	return Descriptor{
		TaskID:    fmt.Sprintf("%s-%s", taskType, uuid.NewString()),
		UserID:    userID,
		AssetID:   assetID,
		Input:     input,
		Output:    output,
		Type:      taskType,
		Worker:    worker,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Metadata:  metadata,
	}
}

// Producer is the queue publishing capability the dispatcher needs.
// *kafka.Producer satisfies it.
type Producer interface {
	Publish(ctx context.Context, key []byte, value []byte, headers map[string]string) error
}

// Dispatcher enqueues task descriptors.
type Dispatcher struct {
	producer Producer
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(producer Producer) *Dispatcher {
	return &Dispatcher{producer: producer}
}

// Dispatch enqueues the descriptor, keyed by asset so one asset's tasks
// stay ordered. An unacknowledged enqueue is a retryable dispatch fault.
func (d *Dispatcher) Dispatch(ctx context.Context, descriptor Descriptor) error {
	payload, err := json.Marshal(descriptor)
	if err != nil {
		return fmt.Errorf("marshal task descriptor: %w", err)
	}

	headers := map[string]string{
		"task_id":   descriptor.TaskID,
		"task_type": string(descriptor.Type),
	}

	if err := d.producer.Publish(ctx, []byte(descriptor.AssetID), payload, headers); err != nil {
		return fault.Dispatch(fmt.Sprintf("enqueue task %s", descriptor.TaskID), err)
	}
	return nil
}
