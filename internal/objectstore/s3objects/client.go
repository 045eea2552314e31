// Package s3objects implements objectstore.Store over a regular S3 bucket.
package s3objects

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/kailas-cloud/filedex/internal/metrics"
	"github.com/kailas-cloud/filedex/internal/objectstore"
)

// Compile-time check: Client implements objectstore.Store.
var _ objectstore.Store = (*Client)(nil)

// Config holds connection parameters for the content bucket.
type Config struct {
	Region  string
	Profile string
	Bucket  string
	Logger  *zap.Logger
}

// Client stores raw file content in one S3 bucket.
type Client struct {
	api    *s3.Client
	bucket string
	logger *zap.Logger
}

// New creates an S3 content store using the default AWS credential chain.
func New(ctx context.Context, cfg Config) (*Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.Profile))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		api:    s3.NewFromConfig(awsCfg),
		bucket: cfg.Bucket,
		logger: logger,
	}, nil
}

// Put writes one object under its vector record's key.
func (c *Client) Put(ctx context.Context, obj objectstore.Object) error {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(obj.Key),
		Body:          obj.Body,
		ContentLength: aws.Int64(obj.Size),
	}
	if obj.ContentType != "" {
		input.ContentType = aws.String(obj.ContentType)
	}

	if _, err := c.api.PutObject(ctx, input); err != nil {
		metrics.BackendRequestsTotal.WithLabelValues("object_put", "error").Inc()
		return fmt.Errorf("put object %s: %w", obj.Key, err)
	}

	metrics.BackendRequestsTotal.WithLabelValues("object_put", "success").Inc()
	return nil
}

// Delete removes one object. Deleting a missing key succeeds, matching the
// S3 DeleteObject semantics.
func (c *Client) Delete(ctx context.Context, key string) error {
	_, err := c.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		metrics.BackendRequestsTotal.WithLabelValues("object_delete", "error").Inc()
		return fmt.Errorf("delete object %s: %w", key, err)
	}

	metrics.BackendRequestsTotal.WithLabelValues("object_delete", "success").Inc()
	return nil
}
