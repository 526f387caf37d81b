package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/okatz/objectdetect/internal/service"
	"github.com/okatz/objectdetect/internal/store"
)

const (
	receiveWaitSeconds = 10
	maxAttempts        = 3 // initial call plus two retries, queue ops only
)

// SQSAPI is the slice of the SQS client the worker uses.
type SQSAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// Job is a queued detection request.
type Job struct {
	RequestID  string `json:"request_id"`
	ChatID     string `json:"chat_id"`
	Bucket     string `json:"bucket"`
	ImageS3Key string `json:"image_s3_key"`
}

// Worker drains detection jobs from a queue. A message is deleted only after
// the whole pipeline succeeded; any failure leaves it for the queue's own
// redelivery policy. The worker implements no retry counter or dead-letter
// routing of its own.
type Worker struct {
	client   SQSAPI
	queueURL string
	svc      *service.Service
	timeout  time.Duration
}

func NewWorker(client SQSAPI, queueURL string, svc *service.Service, timeout time.Duration) *Worker {
	return &Worker{
		client:   client,
		queueURL: queueURL,
		svc:      svc,
		timeout:  timeout,
	}
}

// Run polls until ctx is cancelled. Processing errors never terminate the
// loop; they are logged and the message is retained.
func (w *Worker) Run(ctx context.Context) {
	log.Printf("Queue worker started, polling %s", w.queueURL)

	for {
		select {
		case <-ctx.Done():
			log.Printf("Queue worker stopped")
			return
		default:
		}

		out, err := w.receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			log.Printf("Error polling queue: %v", err)
			time.Sleep(time.Second)
			continue
		}

		for _, msg := range out.Messages {
			if err := w.handle(ctx, aws.ToString(msg.Body)); err != nil {
				// Leave the message for redelivery.
				log.Printf("Failed to process message: %v", err)
				continue
			}
			if err := w.delete(ctx, aws.ToString(msg.ReceiptHandle)); err != nil {
				log.Printf("Failed to delete message: %v", err)
			}
		}
	}
}

func (w *Worker) handle(ctx context.Context, body string) error {
	var job Job
	if err := json.Unmarshal([]byte(body), &job); err != nil {
		return fmt.Errorf("decoding job: %w", err)
	}

	log.Printf("Received detection job: %s", job.RequestID)

	result, err := w.svc.Process(ctx, service.Input{
		UID:    job.RequestID,
		ChatID: job.ChatID,
		Bucket: job.Bucket,
		S3Key:  job.ImageS3Key,
	})
	if err != nil {
		// A redelivered job whose result is already persisted must still be
		// acknowledged, or it would be redelivered forever.
		if errors.Is(err, store.ErrConflict) {
			log.Printf("Job %s already processed, acknowledging", job.RequestID)
			return nil
		}
		return fmt.Errorf("job %s: %w", job.RequestID, err)
	}

	log.Printf("Job %s done: %d detections", result.UID, result.Count)
	return nil
}

func (w *Worker) receive(ctx context.Context) (*sqs.ReceiveMessageOutput, error) {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, w.timeout+receiveWaitSeconds*time.Second)
		out, err := w.client.ReceiveMessage(callCtx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(w.queueURL),
			MaxNumberOfMessages: 1,
			WaitTimeSeconds:     receiveWaitSeconds,
		})
		cancel()
		if err == nil {
			return out, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

func (w *Worker) delete(ctx context.Context, receiptHandle string) error {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, w.timeout)
		_, err := w.client.DeleteMessage(callCtx, &sqs.DeleteMessageInput{
			QueueUrl:      aws.String(w.queueURL),
			ReceiptHandle: aws.String(receiptHandle),
		})
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return lastErr
}
