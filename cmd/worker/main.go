package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/okatz/objectdetect/internal/config"
	"github.com/okatz/objectdetect/internal/detect"
	"github.com/okatz/objectdetect/internal/imagestore"
	"github.com/okatz/objectdetect/internal/notify"
	"github.com/okatz/objectdetect/internal/objectstore"
	"github.com/okatz/objectdetect/internal/queue"
	"github.com/okatz/objectdetect/internal/service"
	"github.com/okatz/objectdetect/internal/store"
)

// Standalone queue worker: drains detection jobs without the HTTP surface.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Invalid configuration: ", err)
	}
	if cfg.SQSQueueURL == "" {
		log.Fatal("SQS_QUEUE_URL must be set")
	}

	images, err := imagestore.New(cfg.UploadDir)
	if err != nil {
		log.Fatal("Failed to initialize image storage: ", err)
	}

	predictions, err := store.New(ctx, cfg)
	if err != nil {
		log.Fatal("Failed to initialize prediction store: ", err)
	}
	defer predictions.Close()

	objects, err := objectstore.NewFromConfig(ctx, cfg.AWSRegion, cfg.RequestTimeout)
	if err != nil {
		log.Fatal("Failed to initialize object store: ", err)
	}

	var notifier service.Notifier
	if cfg.CallbackBaseURL != "" {
		notifier = notify.New(cfg.CallbackBaseURL, cfg.RequestTimeout)
	}

	svc := &service.Service{
		Store:    predictions,
		Detector: detect.NewClient(cfg.InferenceURL, 0),
		Images:   images,
		Objects:  objects,
		Notifier: notifier,
		Bucket:   cfg.S3Bucket,
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		log.Fatal("Failed to load AWS config: ", err)
	}

	worker := queue.NewWorker(sqs.NewFromConfig(awsCfg), cfg.SQSQueueURL, svc, cfg.RequestTimeout)
	worker.Run(ctx)
}
