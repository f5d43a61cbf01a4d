package task

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/mediaprep/internal/fault"
)

type capturingProducer struct {
	key     []byte
	value   []byte
	headers map[string]string
	err     error
}

func (c *capturingProducer) Publish(_ context.Context, key, value []byte, headers map[string]string) error {
	c.key = key
	c.value = value
	c.headers = headers
	return c.err
}

func TestNewDescriptorShape(t *testing.T) {
	input := Location{Bucket: "transport", Key: "user1/2024/05/abcd1234"}
	output := Location{Bucket: "assets", Key: "user1/abcd1234/"}

	descriptor := New("user1", "abcd1234", input, output, TypeTranscoding, WorkerTranscoder, nil)

	require.True(t, strings.HasPrefix(descriptor.TaskID, "TRANSCODING-"))
	suffix := strings.TrimPrefix(descriptor.TaskID, "TRANSCODING-")
	_, err := uuid.Parse(suffix)
	assert.NoError(t, err, "task id suffix is a uuid")

	assert.Equal(t, "user1", descriptor.UserID)
	assert.Equal(t, "abcd1234", descriptor.AssetID)
	assert.Equal(t, input, descriptor.Input)
	assert.Equal(t, output, descriptor.Output)

	_, err = time.Parse(time.RFC3339, descriptor.CreatedAt)
	assert.NoError(t, err, "createdAt is ISO-8601")
}

func TestDescriptorIDsAreUnique(t *testing.T) {
	a := New("u", "a", Location{}, Location{}, TypeGopCreation, WorkerGop, nil)
	b := New("u", "a", Location{}, Location{}, TypeGopCreation, WorkerGop, nil)

	assert.NotEqual(t, a.TaskID, b.TaskID)
}

func TestDispatchPublishesKeyedByAsset(t *testing.T) {
	producer := &capturingProducer{}
	dispatcher := NewDispatcher(producer)

	descriptor := New("user1", "abcd1234", Location{}, Location{}, TypeTranscoding, WorkerTranscoder, map[string]any{"segments": 4})
	require.NoError(t, dispatcher.Dispatch(context.Background(), descriptor))

	assert.Equal(t, []byte("abcd1234"), producer.key)
	assert.Equal(t, descriptor.TaskID, producer.headers["task_id"])
	assert.Equal(t, "TRANSCODING", producer.headers["task_type"])

	var decoded Descriptor
	require.NoError(t, json.Unmarshal(producer.value, &decoded))
	assert.Equal(t, descriptor.TaskID, decoded.TaskID)
	assert.Equal(t, float64(4), decoded.Metadata["segments"])
}

func TestDispatchFailureIsRetryableDispatchFault(t *testing.T) {
	producer := &capturingProducer{err: errors.New("not acked")}
	dispatcher := NewDispatcher(producer)

	err := dispatcher.Dispatch(context.Background(), New("u", "a", Location{}, Location{}, TypeTranscoding, WorkerTranscoder, nil))
	require.Error(t, err)
	assert.Equal(t, fault.KindDispatch, fault.KindOf(err))
	assert.True(t, fault.Retryable(err))
}
