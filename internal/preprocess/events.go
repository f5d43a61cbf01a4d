package preprocess

import (
	"encoding/json"
	"fmt"
)

// Message is one queue delivery handed to the batch processor. ID is the
// queue's stable identifier for the delivery, used to report per-item
// failures back for redelivery.
type Message struct {
	ID   string
	Body []byte
}

// BatchResult reports which deliveries must be redelivered. Successfully
// processed messages are never retried.
type BatchResult struct {
	FailedMessageIDs []string
}

// Failed reports whether the given message id ended in a retryable failure.
func (r BatchResult) Failed(id string) bool {
	for _, failed := range r.FailedMessageIDs {
		if failed == id {
			return true
		}
	}
	return false
}

// ObjectRef addresses one ingested object named by a notification record.
type ObjectRef struct {
	Bucket string
	Key    string
}

// notification mirrors the bucket-notification payload emitted when an
// object lands in the source bucket.
type notification struct {
	Records []notificationRecord `json:"Records"`
}

type notificationRecord struct {
	EventName string `json:"eventName"`
	S3        struct {
		Bucket struct {
			Name string `json:"name"`
		} `json:"bucket"`
		Object struct {
			Key  string `json:"key"`
			Size int64  `json:"size"`
		} `json:"object"`
	} `json:"s3"`
}

// DecodeNotification parses a bucket-notification message body into the
// object references it names.
func DecodeNotification(body []byte) ([]ObjectRef, error) {
	var event notification
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("decode bucket notification: %w", err)
	}

	refs := make([]ObjectRef, 0, len(event.Records))
	for _, record := range event.Records {
		if record.S3.Object.Key == "" {
			continue
		}
		refs = append(refs, ObjectRef{
			Bucket: record.S3.Bucket.Name,
			Key:    record.S3.Object.Key,
		})
	}
	return refs, nil
}

// EncodeNotification builds a notification body for the given objects.
// The ingestion service uses it to emit events the preprocessor consumes.
func EncodeNotification(eventName string, refs ...ObjectRef) ([]byte, error) {
	event := notification{Records: make([]notificationRecord, len(refs))}
	for i, ref := range refs {
		event.Records[i].EventName = eventName
		event.Records[i].S3.Bucket.Name = ref.Bucket
		event.Records[i].S3.Object.Key = ref.Key
	}
	return json.Marshal(event)
}
