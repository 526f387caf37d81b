package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/okatz/objectdetect/internal/api"
	"github.com/okatz/objectdetect/internal/config"
	"github.com/okatz/objectdetect/internal/detect"
	"github.com/okatz/objectdetect/internal/imagestore"
	"github.com/okatz/objectdetect/internal/notify"
	"github.com/okatz/objectdetect/internal/objectstore"
	"github.com/okatz/objectdetect/internal/queue"
	"github.com/okatz/objectdetect/internal/service"
	"github.com/okatz/objectdetect/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Invalid configuration: ", err)
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

	// The detector call itself is unbounded; it runs to completion or failure.
	detector := detect.NewClient(cfg.InferenceURL, 0)

	var objects service.ObjectStore
	if cfg.S3Bucket != "" || cfg.SQSQueueURL != "" {
		s3Store, err := objectstore.NewFromConfig(ctx, cfg.AWSRegion, cfg.RequestTimeout)
		if err != nil {
			log.Fatal("Failed to initialize object store: ", err)
		}
		objects = s3Store
	}

	var notifier service.Notifier
	if cfg.CallbackBaseURL != "" {
		notifier = notify.New(cfg.CallbackBaseURL, cfg.RequestTimeout)
	}

	svc := &service.Service{
		Store:    predictions,
		Detector: detector,
		Images:   images,
		Objects:  objects,
		Notifier: notifier,
		Bucket:   cfg.S3Bucket,
	}

	if cfg.SQSQueueURL != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			log.Fatal("Failed to load AWS config: ", err)
		}
		worker := queue.NewWorker(sqs.NewFromConfig(awsCfg), cfg.SQSQueueURL, svc, cfg.RequestTimeout)
		go worker.Run(ctx)
	}

	app := &api.App{
		Store:         predictions,
		Images:        images,
		Service:       svc,
		MaxUploadSize: cfg.MaxUploadSize,
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: api.NewRouter(app),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Printf("Server starting on port %s", cfg.Port)
	log.Printf("Upload directory: %s", cfg.UploadDir)
	log.Printf("Storage backend: %s", cfg.StorageType)
	log.Printf("Inference URL: %s", cfg.InferenceURL)

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}
