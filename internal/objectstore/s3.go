package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

var (
	ErrObjectNotFound = errors.New("object not found")
	ErrUnavailable    = errors.New("object store unavailable")
)

// S3API is the slice of the S3 client the adapter uses.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3 moves raw image bytes between the local disk and a bucket-keyed store.
// Every call is bounded by the configured timeout.
type S3 struct {
	client  S3API
	timeout time.Duration
}

func New(client S3API, timeout time.Duration) *S3 {
	return &S3{client: client, timeout: timeout}
}

func NewFromConfig(ctx context.Context, region string, timeout time.Duration) (*S3, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return New(s3.NewFromConfig(awsCfg), timeout), nil
}

// OriginalKey and PredictedKey give the fixed bucket layout for a chat's
// images.
func OriginalKey(chatID, imageName string) string {
	return fmt.Sprintf("%s/original/%s", chatID, imageName)
}

func PredictedKey(chatID, imageName string) string {
	return fmt.Sprintf("%s/predicted/%s", chatID, imageName)
}

// Fetch downloads bucket/key to destPath.
func (s *S3) Fetch(ctx context.Context, bucket, key, destPath string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *types.NoSuchKey
		if errors.As(err, &notFound) {
			return fmt.Errorf("s3://%s/%s: %w", bucket, key, ErrObjectNotFound)
		}
		return fmt.Errorf("fetching s3://%s/%s: %w (%v)", bucket, key, ErrUnavailable, err)
	}
	defer out.Body.Close()

	dst, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("creating %s: %w", destPath, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, out.Body); err != nil {
		os.Remove(destPath)
		return fmt.Errorf("writing %s: %w", destPath, err)
	}
	return nil
}

// Put uploads srcPath to bucket/key.
func (s *S3) Put(ctx context.Context, srcPath, bucket, key string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("opening %s: %w", srcPath, err)
	}
	defer src.Close()

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   src,
	})
	if err != nil {
		return fmt.Errorf("uploading s3://%s/%s: %w (%v)", bucket, key, ErrUnavailable, err)
	}
	return nil
}
