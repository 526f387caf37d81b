package queue

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/okatz/objectdetect/internal/detect"
	"github.com/okatz/objectdetect/internal/imagestore"
	"github.com/okatz/objectdetect/internal/service"
	"github.com/okatz/objectdetect/internal/store"
)

type fakeSQS struct {
	mu       sync.Mutex
	messages []sqstypes.Message
	deleted  []string
}

func (f *fakeSQS) ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := &sqs.ReceiveMessageOutput{}
	if len(f.messages) > 0 {
		out.Messages = f.messages[:1]
		f.messages = f.messages[1:]
		return out, nil
	}

	// Emulate long polling on an empty queue.
	select {
	case <-ctx.Done():
	case <-time.After(10 * time.Millisecond):
	}
	return out, nil
}

func (f *fakeSQS) DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, aws.ToString(params.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

func (f *fakeSQS) deletedHandles() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.deleted...)
}

type memStore struct {
	mu       sync.Mutex
	sessions map[string]*store.PredictionSession
}

func (m *memStore) SavePrediction(ctx context.Context, session *store.PredictionSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[session.UID]; ok {
		return store.ErrConflict
	}
	m.sessions[session.UID] = session
	return nil
}

func (m *memStore) SaveDetections(ctx context.Context, uid string, detections []store.Detection) error {
	return nil
}

func (m *memStore) GetPrediction(ctx context.Context, uid string) (*store.PredictionSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[uid]; ok {
		return s, nil
	}
	return nil, store.ErrNotFound
}

func (m *memStore) GetPredictionsByScore(ctx context.Context, minScore float64) ([]store.PredictionSummary, error) {
	return nil, nil
}

func (m *memStore) GetPredictionsByLabel(ctx context.Context, label string) ([]store.PredictionSummary, error) {
	return nil, nil
}

func (m *memStore) Close() error { return nil }

type stubDetector struct {
	err error
}

func (d *stubDetector) Detect(ctx context.Context, imagePath, annotatedPath string) ([]detect.Detection, error) {
	if d.err != nil {
		return nil, d.err
	}
	os.WriteFile(annotatedPath, []byte("annotated"), 0644)
	return []detect.Detection{{Label: "dog", Score: 0.8, Box: []float64{0, 0, 1, 1}}}, nil
}

type stubObjects struct{}

func (stubObjects) Fetch(ctx context.Context, bucket, key, destPath string) error {
	return os.WriteFile(destPath, []byte("image"), 0644)
}

func (stubObjects) Put(ctx context.Context, srcPath, bucket, key string) error {
	return nil
}

func newWorkerUnderTest(t *testing.T, detector detect.Detector, messages []sqstypes.Message) (*Worker, *fakeSQS, *memStore) {
	t.Helper()

	images, err := imagestore.New(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create image store: %v", err)
	}

	st := &memStore{sessions: make(map[string]*store.PredictionSession)}
	svc := &service.Service{
		Store:    st,
		Detector: detector,
		Images:   images,
		Objects:  stubObjects{},
	}

	client := &fakeSQS{messages: messages}
	return NewWorker(client, "https://queue.test/jobs", svc, time.Second), client, st
}

func runWorker(t *testing.T, w *Worker, until func() bool) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	deadline := time.After(5 * time.Second)
	for !until() {
		select {
		case <-deadline:
			cancel()
			<-done
			t.Fatal("Worker did not reach expected state in time")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	<-done
}

func TestWorker_ProcessesAndDeletes(t *testing.T) {
	body := `{"request_id":"job-1","chat_id":"chat-1","bucket":"b","image_s3_key":"chat-1/original/cat.jpg"}`
	messages := []sqstypes.Message{{
		Body:          aws.String(body),
		ReceiptHandle: aws.String("rh-1"),
	}}

	w, client, st := newWorkerUnderTest(t, &stubDetector{}, messages)

	runWorker(t, w, func() bool {
		return len(client.deletedHandles()) == 1
	})

	if handles := client.deletedHandles(); len(handles) != 1 || handles[0] != "rh-1" {
		t.Errorf("Unexpected deleted handles: %v", handles)
	}
	if _, err := st.GetPrediction(context.Background(), "job-1"); err != nil {
		t.Errorf("Job result was not persisted: %v", err)
	}
}

func TestWorker_AcknowledgesRedeliveredJob(t *testing.T) {
	body := `{"request_id":"job-1","chat_id":"chat-1","bucket":"b","image_s3_key":"chat-1/original/cat.jpg"}`
	messages := []sqstypes.Message{
		{Body: aws.String(body), ReceiptHandle: aws.String("rh-1")},
		{Body: aws.String(body), ReceiptHandle: aws.String("rh-1b")},
	}

	w, client, st := newWorkerUnderTest(t, &stubDetector{}, messages)

	runWorker(t, w, func() bool {
		return len(client.deletedHandles()) == 2
	})

	handles := client.deletedHandles()
	if len(handles) != 2 || handles[0] != "rh-1" || handles[1] != "rh-1b" {
		t.Errorf("Both deliveries must be acknowledged, got %v", handles)
	}

	session, err := st.GetPrediction(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("Job result missing: %v", err)
	}
	if len(session.Detections) != 1 {
		t.Errorf("Redelivery must not alter the stored result, got %d detections", len(session.Detections))
	}
}

func TestWorker_RetainsMessageOnFailure(t *testing.T) {
	body := `{"request_id":"job-2","chat_id":"chat-1","bucket":"b","image_s3_key":"k.jpg"}`
	messages := []sqstypes.Message{{
		Body:          aws.String(body),
		ReceiptHandle: aws.String("rh-2"),
	}}

	failing := &stubDetector{err: errors.New("model down")}
	w, client, st := newWorkerUnderTest(t, failing, messages)

	processed := make(chan struct{})
	go func() {
		// Give the worker time to consume and fail the message.
		time.Sleep(200 * time.Millisecond)
		close(processed)
	}()

	runWorker(t, w, func() bool {
		select {
		case <-processed:
			return true
		default:
			return false
		}
	})

	if handles := client.deletedHandles(); len(handles) != 0 {
		t.Errorf("Failed message must not be deleted, got %v", handles)
	}
	if _, err := st.GetPrediction(context.Background(), "job-2"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Failed job must not be persisted, got %v", err)
	}
}

func TestWorker_SkipsMalformedMessage(t *testing.T) {
	messages := []sqstypes.Message{{
		Body:          aws.String("not json"),
		ReceiptHandle: aws.String("rh-3"),
	}}

	w, client, _ := newWorkerUnderTest(t, &stubDetector{}, messages)

	processed := make(chan struct{})
	go func() {
		time.Sleep(200 * time.Millisecond)
		close(processed)
	}()

	runWorker(t, w, func() bool {
		select {
		case <-processed:
			return true
		default:
			return false
		}
	})

	if handles := client.deletedHandles(); len(handles) != 0 {
		t.Errorf("Malformed message must be left for redelivery, got %v", handles)
	}
}
