package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"chatwarden/internal/models"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Config addresses an S3-compatible endpoint.
type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// NewS3Client builds a minio client with static credentials.
func NewS3Client(cfg S3Config) (*minio.Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}
	return client, nil
}

// S3Store keeps attachments as objects under images/ and audios/.
type S3Store struct {
	client *minio.Client
	bucket string

	ensureOnce sync.Once
	ensureErr  error
}

// NewS3Store returns an S3Store on bucket.
func NewS3Store(client *minio.Client, bucket string) *S3Store {
	return &S3Store{client: client, bucket: strings.TrimSpace(bucket)}
}

// EnsureBucket creates the bucket on first use.
func (s *S3Store) EnsureBucket(ctx context.Context) error {
	if s.client == nil {
		return fmt.Errorf("s3 client is nil")
	}
	if s.bucket == "" {
		return fmt.Errorf("s3 bucket is empty")
	}

	s.ensureOnce.Do(func() {
		exists, err := s.client.BucketExists(ctx, s.bucket)
		if err != nil {
			s.ensureErr = err
			return
		}
		if exists {
			return
		}
		s.ensureErr = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{})
	})

	if s.ensureErr != nil {
		return models.NewStoreUnavailableError(fmt.Errorf("ensure s3 bucket %q: %w", s.bucket, s.ensureErr))
	}
	return nil
}

func (s *S3Store) PutImage(ctx context.Context, data []byte) (uuid.UUID, error) {
	return s.put(ctx, kindImage, data)
}

func (s *S3Store) GetImage(ctx context.Context, id uuid.UUID) ([]byte, error) {
	return s.get(ctx, kindImage, id)
}

func (s *S3Store) PutAudio(ctx context.Context, data []byte) (uuid.UUID, error) {
	return s.put(ctx, kindAudio, data)
}

func (s *S3Store) GetAudio(ctx context.Context, id uuid.UUID) ([]byte, error) {
	return s.get(ctx, kindAudio, id)
}

type kind struct {
	prefix   string
	resource string
}

var (
	kindImage = kind{prefix: "images", resource: "Image"}
	kindAudio = kind{prefix: "audios", resource: "Audio"}
)

func objectKey(k kind, id uuid.UUID) string {
	return k.prefix + "/" + id.String()
}

func (s *S3Store) put(ctx context.Context, k kind, data []byte) (uuid.UUID, error) {
	id := uuid.New()
	_, err := s.client.PutObject(ctx, s.bucket, objectKey(k, id), bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return uuid.Nil, models.NewStoreUnavailableError(fmt.Errorf("put object to s3: %w", err))
	}
	return id, nil
}

func (s *S3Store) get(ctx context.Context, k kind, id uuid.UUID) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, objectKey(k, id), minio.GetObjectOptions{})
	if err != nil {
		return nil, translateS3(err, k, id)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, translateS3(err, k, id)
	}
	return data, nil
}

// translateS3 maps a missing key to NOT_FOUND and anything else to STORE_UNAVAILABLE.
func translateS3(err error, k kind, id uuid.UUID) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return models.NewNotFoundError(k.resource, id)
	}
	return models.NewStoreUnavailableError(fmt.Errorf("get object from s3: %w", err))
}
