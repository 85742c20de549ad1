package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// objectPutter is the subset of *s3.Client that S3Store uses.
type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store uploads avatars to an S3 bucket. Objects are public through the
// bucket policy or a CDN in front of it, not per-object ACLs.
type S3Store struct {
	client  objectPutter
	bucket  string
	baseURL string
}

var _ AvatarStore = (*S3Store)(nil)

// NewS3Store resolves credentials through the default AWS chain (env vars,
// shared config, instance role).
func NewS3Store(ctx context.Context, region, bucket, baseURL string) (*S3Store, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("storage: loading AWS config: %w", err)
	}
	return newS3Store(s3.NewFromConfig(cfg), bucket, baseURL), nil
}

func newS3Store(client objectPutter, bucket, baseURL string) *S3Store {
	return &S3Store{client: client, bucket: bucket, baseURL: strings.TrimSuffix(baseURL, "/")}
}

// PutAvatar writes avatars/{userID}/{uuid}{ext}. Every upload gets a new
// key, so the object can be cached forever.
func (s *S3Store) PutAvatar(ctx context.Context, userID, contentType string, data []byte) (string, error) {
	ext, ok := imageExtensions[contentType]
	if !ok {
		return "", fmt.Errorf("storage: unsupported content type %q", contentType)
	}
	key := fmt.Sprintf("avatars/%s/%s%s", userID, uuid.New().String(), ext)

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
		CacheControl:  aws.String("public, max-age=31536000, immutable"),
		Metadata: map[string]string{
			"user-id": userID,
		},
	})
	if err != nil {
		return "", fmt.Errorf("storage: uploading avatar: %w", err)
	}

	return s.baseURL + "/" + key, nil
}
