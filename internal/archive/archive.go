// Package archive uploads exported log batches to S3-compatible object
// storage and lists what has been archived. It is an optional sink: when no
// archive endpoint is configured the server simply does not mount it.
package archive

import (
	"bytes"
	"context"
	"errors"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"

	"github.com/logward/logward/internal/errs"
)

// Config holds the object-storage endpoint settings.
type Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
}

// Client talks to an S3-compatible archive bucket.
type Client struct {
	client *s3.Client
	bucket string
}

// NewClient builds the archive client. Returns nil without error when cfg
// is nil or incomplete, which callers treat as "archiving disabled".
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil || cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, nil
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	creds := credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")
	client := s3.NewFromConfig(aws.Config{
		Region:      region,
		Credentials: aws.NewCredentialsCache(creds),
	}, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
		o.UsePathStyle = true
	})
	return &Client{client: client, bucket: cfg.Bucket}, nil
}

// EnsureBucket creates the bucket if it does not exist.
func (c *Client) EnsureBucket(ctx context.Context) error {
	if c == nil {
		return nil
	}
	_, err := c.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(c.bucket)})
	if err == nil {
		return nil
	}
	_, createErr := c.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(c.bucket)})
	if createErr != nil {
		var apiErr smithy.APIError
		if errors.As(createErr, &apiErr) {
			switch apiErr.ErrorCode() {
			case "BucketAlreadyOwnedByYou", "BucketAlreadyExists":
				return nil
			}
		}
		return errs.Wrap(errs.KindStorage, "archive bucket unavailable", createErr)
	}
	return nil
}

// keyFor returns the object key for one export batch, grouped by tenant and
// date so archives stay browsable.
func keyFor(tenantKey string, now time.Time) string {
	return path.Join("exports", tenantKey, now.UTC().Format("2006/01/02"), uuid.NewString()+".json.gz")
}

// Upload gzips payload and stores it under a tenant/date key, returning the
// object key.
func (c *Client) Upload(ctx context.Context, tenantKey string, payload []byte) (string, error) {
	if c == nil {
		return "", errs.New(errs.KindNotFound, "archive storage is not configured")
	}
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(payload); err != nil {
		return "", errs.Wrap(errs.KindStorage, "compress archive batch", err)
	}
	if err := zw.Close(); err != nil {
		return "", errs.Wrap(errs.KindStorage, "compress archive batch", err)
	}

	key := keyFor(tenantKey, time.Now())
	_, err := c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/gzip"),
	})
	if err != nil {
		return "", errs.Wrap(errs.KindStorage, "upload archive batch", err)
	}
	return key, nil
}

// ObjectInfo describes one archived batch.
type ObjectInfo struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// List returns the archived batches for a tenant.
func (c *Client) List(ctx context.Context, tenantKey string) ([]ObjectInfo, error) {
	if c == nil {
		return nil, errs.New(errs.KindNotFound, "archive storage is not configured")
	}
	prefix := path.Join("exports", tenantKey) + "/"
	out, err := c.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(prefix),
	})
	if err != nil {
		return nil, errs.Wrap(errs.KindStorage, "list archive batches", err)
	}
	result := make([]ObjectInfo, 0, len(out.Contents))
	for _, o := range out.Contents {
		info := ObjectInfo{Key: aws.ToString(o.Key), Size: aws.ToInt64(o.Size)}
		if o.LastModified != nil {
			info.LastModified = *o.LastModified
		}
		result = append(result, info)
	}
	return result, nil
}
