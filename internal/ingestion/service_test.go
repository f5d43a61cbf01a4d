package ingestion

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/your-org/mediaprep/internal/preprocess"
)

type fakeStore struct {
	objects map[string][]byte
	putErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: map[string][]byte{}}
}

func (f *fakeStore) Get(context.Context, string, string) (io.ReadCloser, int64, error) {
	return nil, 0, errors.New("not implemented")
}

func (f *fakeStore) Put(_ context.Context, bucket, key string, reader io.Reader, _ int64, _ map[string]string) error {
	if f.putErr != nil {
		return f.putErr
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	f.objects[bucket+"/"+key] = data
	return nil
}

func (f *fakeStore) Remove(context.Context, string, string) error { return nil }
func (f *fakeStore) Close() error                                 { return nil }

type fakePublisher struct {
	keys    [][]byte
	values  [][]byte
	headers []map[string]string
	err     error
}

func (f *fakePublisher) Publish(_ context.Context, key, value []byte, headers map[string]string) error {
	if f.err != nil {
		return f.err
	}
	f.keys = append(f.keys, key)
	f.values = append(f.values, value)
	f.headers = append(f.headers, headers)
	return nil
}

func (f *fakePublisher) Close(context.Context) error { return nil }

func newService(store *fakeStore, publisher *fakePublisher) *Service {
	return NewService(Params{
		Store:        store,
		Producer:     publisher,
		Logger:       zap.NewNop(),
		SourceBucket: "transport",
	})
}

func TestProcessUploadStoresAndNotifies(t *testing.T) {
	store := newFakeStore()
	publisher := &fakePublisher{}
	service := newService(store, publisher)

	payload := []byte("raw media bytes")
	result, err := service.ProcessUpload(context.Background(),
		bytes.NewReader(payload), int64(len(payload)), UploadOptions{
			UserID:      "user1",
			Filename:    "clip.mp4",
			ContentType: "video/mp4",
		})
	require.NoError(t, err)

	// Key follows the grammar the preprocessor parses owners from.
	owner, err := preprocess.ParseKey(result.ObjectKey)
	require.NoError(t, err)
	assert.Equal(t, "user1", owner.UserID)
	assert.Equal(t, result.AssetID, owner.AssetID)

	assert.Equal(t, payload, store.objects["transport/"+result.ObjectKey])

	expected := sha256.Sum256(payload)
	assert.Equal(t, hex.EncodeToString(expected[:]), result.Checksum)

	require.Len(t, publisher.values, 1)
	refs, err := preprocess.DecodeNotification(publisher.values[0])
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, preprocess.ObjectRef{Bucket: "transport", Key: result.ObjectKey}, refs[0])
	assert.Equal(t, result.AssetID, string(publisher.keys[0]))
	assert.Equal(t, "object.created", publisher.headers[0]["event_type"])
}

func TestProcessUploadRejectsInvalidInput(t *testing.T) {
	service := newService(newFakeStore(), &fakePublisher{})

	_, err := service.ProcessUpload(context.Background(),
		strings.NewReader("x"), 0, UploadOptions{UserID: "user1"})
	assert.Error(t, err, "zero size rejected")

	_, err = service.ProcessUpload(context.Background(),
		strings.NewReader("x"), 1, UploadOptions{UserID: ""})
	assert.Error(t, err, "missing user id rejected")

	_, err = service.ProcessUpload(context.Background(),
		strings.NewReader("x"), 1, UploadOptions{UserID: "a/b"})
	assert.Error(t, err, "user id with separator rejected")
}

func TestProcessUploadPropagatesStoreFailure(t *testing.T) {
	store := newFakeStore()
	store.putErr = errors.New("bucket unavailable")
	publisher := &fakePublisher{}
	service := newService(store, publisher)

	_, err := service.ProcessUpload(context.Background(),
		strings.NewReader("x"), 1, UploadOptions{UserID: "user1"})
	require.Error(t, err)
	assert.Empty(t, publisher.values, "no notification for a failed upload")
}

func TestProcessUploadPropagatesPublishFailure(t *testing.T) {
	service := newService(newFakeStore(), &fakePublisher{err: errors.New("broker down")})

	_, err := service.ProcessUpload(context.Background(),
		strings.NewReader("x"), 1, UploadOptions{UserID: "user1"})
	assert.Error(t, err)
}
