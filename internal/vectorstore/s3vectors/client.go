// Package s3vectors implements vectorstore.Backend over the AWS S3 Vectors
// API. Bucket, index and region are fixed for the client's lifetime.
package s3vectors

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3vectors"
	"github.com/aws/aws-sdk-go-v2/service/s3vectors/document"
	"github.com/aws/aws-sdk-go-v2/service/s3vectors/types"
	"go.uber.org/zap"

	"github.com/kailas-cloud/filedex/internal/metrics"
	"github.com/kailas-cloud/filedex/internal/vectorstore"
)

// Compile-time check: Client implements vectorstore.Backend.
var _ vectorstore.Backend = (*Client)(nil)

// Config holds connection parameters for the S3 Vectors backend.
type Config struct {
	Region  string
	Profile string
	Bucket  string
	Index   string
	Logger  *zap.Logger
}

// Client talks to one vector bucket + index.
type Client struct {
	api    *s3vectors.Client
	bucket string
	index  string
	logger *zap.Logger
}

// New creates an S3 Vectors client using the default AWS credential chain
// (keys, profile, or container/instance role).
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
		api:    s3vectors.NewFromConfig(awsCfg),
		bucket: cfg.Bucket,
		index:  cfg.Index,
		logger: logger,
	}, nil
}

// PutVectors writes records in one batched call. The call is treated as
// atomic by callers; S3 Vectors reports no partial failure detail.
func (c *Client) PutVectors(ctx context.Context, records []vectorstore.Record) error {
	if len(records) == 0 {
		return nil
	}

	vectors := make([]types.PutInputVector, len(records))
	for i, r := range records {
		vectors[i] = types.PutInputVector{
			Key:      aws.String(r.Key),
			Data:     &types.VectorDataMemberFloat32{Value: r.Vector},
			Metadata: document.NewLazyDocument(metadataToDocument(r.Metadata)),
		}
	}

	_, err := c.api.PutVectors(ctx, &s3vectors.PutVectorsInput{
		VectorBucketName: aws.String(c.bucket),
		IndexName:        aws.String(c.index),
		Vectors:          vectors,
	})
	if err != nil {
		metrics.BackendRequestsTotal.WithLabelValues("put", "error").Inc()
		return classify("put vectors", err)
	}

	metrics.BackendRequestsTotal.WithLabelValues("put", "success").Inc()
	return nil
}

// QueryVectors issues one similarity query and returns hits in backend order
// (ascending distance).
func (c *Client) QueryVectors(ctx context.Context, q vectorstore.Query) ([]vectorstore.Hit, error) {
	input := &s3vectors.QueryVectorsInput{
		VectorBucketName: aws.String(c.bucket),
		IndexName:        aws.String(c.index),
		QueryVector:      &types.VectorDataMemberFloat32{Value: q.Vector},
		TopK:             aws.Int32(int32(q.TopK)),
		ReturnDistance:   q.ReturnDistance,
		ReturnMetadata:   q.ReturnMetadata,
	}
	if len(q.Filter) > 0 {
		input.Filter = document.NewLazyDocument(metadataToDocument(q.Filter))
	}

	out, err := c.api.QueryVectors(ctx, input)
	if err != nil {
		metrics.BackendRequestsTotal.WithLabelValues("query", "error").Inc()
		return nil, classify("query vectors", err)
	}
	metrics.BackendRequestsTotal.WithLabelValues("query", "success").Inc()

	hits := make([]vectorstore.Hit, 0, len(out.Vectors))
	for _, v := range out.Vectors {
		hit := vectorstore.Hit{Key: aws.ToString(v.Key)}
		if v.Distance != nil {
			hit.Distance = float64(*v.Distance)
		}
		if v.Metadata != nil {
			md, mdErr := documentToMetadata(v.Metadata)
			if mdErr != nil {
				c.logger.Warn("failed to decode vector metadata",
					zap.String("key", hit.Key), zap.Error(mdErr))
			}
			hit.Metadata = md
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// DeleteVectors removes records by key. Deployments where the delete API is
// unavailable surface vectorstore.ErrDeleteUnsupported.
func (c *Client) DeleteVectors(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}

	_, err := c.api.DeleteVectors(ctx, &s3vectors.DeleteVectorsInput{
		VectorBucketName: aws.String(c.bucket),
		IndexName:        aws.String(c.index),
		Keys:             keys,
	})
	if err != nil {
		metrics.BackendRequestsTotal.WithLabelValues("delete", "error").Inc()
		return classify("delete vectors", err)
	}

	metrics.BackendRequestsTotal.WithLabelValues("delete", "success").Inc()
	return nil
}

// Ping verifies connectivity and authorization via a GetIndex call.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.api.GetIndex(ctx, &s3vectors.GetIndexInput{
		VectorBucketName: aws.String(c.bucket),
		IndexName:        aws.String(c.index),
	})
	if err != nil {
		return classify("get index", err)
	}
	return nil
}

// metadataToDocument widens a string map for the smithy document encoder.
func metadataToDocument(md map[string]string) map[string]interface{} {
	doc := make(map[string]interface{}, len(md))
	for k, v := range md {
		doc[k] = v
	}
	return doc
}

// documentToMetadata flattens a smithy document back to the string map the
// record was written with. Non-string values are formatted, not dropped.
func documentToMetadata(doc document.Interface) (map[string]string, error) {
	var raw map[string]interface{}
	if err := doc.UnmarshalSmithyDocument(&raw); err != nil {
		return nil, fmt.Errorf("unmarshal metadata document: %w", err)
	}
	md := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			md[k] = s
			continue
		}
		md[k] = fmt.Sprintf("%v", v)
	}
	return md, nil
}
