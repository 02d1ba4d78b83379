package event

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Uploader writes each batch as one object in a bucket, keyed by event
// kind and date. Credentials come from the ambient SDK chain (environment,
// shared config, instance metadata).
type S3Uploader struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Uploader resolves the default AWS configuration and returns an
// uploader for bucket. prefix may be empty; surrounding slashes are
// trimmed.
func NewS3Uploader(ctx context.Context, bucket, prefix string) (*S3Uploader, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	return &S3Uploader{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}, nil
}

// Upload puts one newline-delimited JSON payload under
// [prefix/]kind/YYYY-MM-DD/<id>.json.
func (u *S3Uploader) Upload(ctx context.Context, kind string, payload []byte) error {
	key := u.key(kind, time.Now().UTC())

	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return fmt.Errorf("failed to put s3 object %s: %w", key, err)
	}

	return nil
}

func (u *S3Uploader) key(kind string, now time.Time) string {
	name := fmt.Sprintf("%s/%s/%s.json", kind, now.Format("2006-01-02"), NewID())
	if u.prefix == "" {
		return name
	}
	return u.prefix + "/" + name
}
