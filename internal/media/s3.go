package media

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("media")

const keyPrefix = "covers/"

// S3Options configures an S3-compatible image store.
type S3Options struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	// PublicBaseURL is the URL prefix under which objects in Bucket are served.
	PublicBaseURL string
	// UsePathStyle addresses the bucket as a path segment (MinIO and friends).
	UsePathStyle bool
	MaxBytes     int64
	FetchTimeout time.Duration
}

type s3Store struct {
	client  *s3.Client
	fetcher *http.Client
	opts    S3Options
	baseURL string
}

// NewS3Store creates a Store backed by an S3-compatible bucket.
func NewS3Store(ctx context.Context, opts S3Options) (Store, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("media bucket is required")
	}
	if opts.PublicBaseURL == "" {
		return nil, fmt.Errorf("media public base URL is required")
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 15 * time.Second
	}

	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(opts.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			opts.AccessKey,
			opts.SecretKey,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("failed to load object storage config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.UsePathStyle
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
	})

	return &s3Store{
		client:  client,
		fetcher: NewFetchClient(opts.FetchTimeout),
		opts:    opts,
		baseURL: strings.TrimRight(opts.PublicBaseURL, "/"),
	}, nil
}

func (s *s3Store) Upload(ctx context.Context, source string) (string, error) {
	ctx, span := tracer.Start(ctx, "S3Store.Upload")
	defer span.End()

	img, err := Load(ctx, s.fetcher, source, s.opts.MaxBytes)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to load image")
		return "", err
	}

	key := keyPrefix + uuid.NewString() + img.Extension
	span.SetAttributes(
		attribute.String("media.key", key),
		attribute.String("media.content_type", img.ContentType),
		attribute.Int("media.size", len(img.Data)),
	)

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.opts.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(img.Data),
		ContentType:   aws.String(img.ContentType),
		ContentLength: aws.Int64(int64(len(img.Data))),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to put object")
		return "", fmt.Errorf("failed to upload image: %w", err)
	}

	return s.baseURL + "/" + key, nil
}

func (s *s3Store) Delete(ctx context.Context, url string) DeleteResult {
	ctx, span := tracer.Start(ctx, "S3Store.Delete")
	defer span.End()

	key, ok := s.keyFor(url)
	if !ok {
		return DeleteResult{Skipped: true}
	}
	span.SetAttributes(attribute.String("media.key", key))

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.opts.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to delete object")
		return DeleteResult{Key: key, Err: fmt.Errorf("failed to delete image: %w", err)}
	}
	return DeleteResult{Key: key}
}

// keyFor extracts the object key from a URL served by this store.
func (s *s3Store) keyFor(url string) (string, bool) {
	return KeyFromURL(s.baseURL, url)
}

// KeyFromURL returns the object key of url relative to baseURL, or false when
// url is not served from baseURL.
func KeyFromURL(baseURL, url string) (string, bool) {
	prefix := strings.TrimRight(baseURL, "/") + "/"
	if baseURL == "" || !strings.HasPrefix(url, prefix) {
		return "", false
	}
	key := strings.TrimPrefix(url, prefix)
	if i := strings.IndexAny(key, "?#"); i >= 0 {
		key = key[:i]
	}
	if key == "" {
		return "", false
	}
	return key, true
}
