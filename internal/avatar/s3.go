// Package avatar stores uploaded avatar files in an S3-compatible bucket
// and hands back the object key as the stored-file reference.
package avatar

import (
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/caseworks/auth-api/internal/config"
)

// S3Store implements the auth.AvatarStore interface on top of S3. A custom
// endpoint with path-style addressing supports MinIO-style deployments.
type S3Store struct {
	client *s3.Client
	bucket string
}

func NewS3Store(ctx context.Context, cfg config.AvatarConfig) (*S3Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.S3AccessKey,
			cfg.S3SecretKey,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("failed to load S3 config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Store{client: client, bucket: cfg.S3Bucket}, nil
}

// Store uploads the avatar and returns its object key. Keys are
// date-partitioned and carry a random component so re-uploads never collide.
func (s *S3Store) Store(ctx context.Context, userID int64, filename, contentType string, body io.Reader) (string, error) {
	d := time.Now()
	key := fmt.Sprintf("avatars/%d/%d/%d/%d/%s%s",
		userID, d.Year(), d.Month(), d.Day(), uuid.New(), path.Ext(filename))

	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   body,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("failed to upload avatar: %w", err)
	}

	return key, nil
}
