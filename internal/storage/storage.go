package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// MaxUploadBytes is the largest asset accepted.
const MaxUploadBytes int64 = 50 << 20

var (
	ErrTooLarge        = errors.New("file exceeds 50 MiB")
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrEmpty           = errors.New("file is empty")
)

// objectAPI is the subset of *minio.Client we use.
type objectAPI interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
}

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Store puts creator assets into a single bucket.
type Store struct {
	client  objectAPI
	bucket  string
	baseURL string
	logger  *zap.Logger
}

func New(cfg Config, logger *zap.Logger) (*Store, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, errors.New("storage endpoint and bucket are required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	return newStore(client, cfg.Bucket, client.EndpointURL().String(), logger), nil
}

func newStore(client objectAPI, bucket, baseURL string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		client:  client,
		bucket:  bucket,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger.Named("storage"),
	}
}

// EnsureBucket creates the bucket on first start.
func (s *Store) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}
	s.logger.Info("bucket created", zap.String("bucket", s.bucket))
	return nil
}

func (s *Store) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if _, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType}); err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

func (s *Store) Remove(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object %s: %w", key, err)
	}
	return nil
}

// PublicURL is the path-style URL of an object.
func (s *Store) PublicURL(key string) string {
	segments := strings.Split(key, "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return s.baseURL + "/" + s.bucket + "/" + strings.Join(segments, "/")
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Key builds creators/<creatorID>/<projectID|shared>/<uuid>-<name>.
func Key(creatorID, projectID, fileName string) string {
	scope := projectID
	if scope == "" {
		scope = "shared"
	}
	name := unsafeName.ReplaceAllString(path.Base(strings.ReplaceAll(fileName, "\\", "/")), "_")
	name = strings.Trim(name, "._")
	if name == "" {
		name = "file"
	}
	return fmt.Sprintf("creators/%s/%s/%s-%s", creatorID, scope, uuid.NewString(), name)
}

// Validate checks an upload against the size limit and allowed types.
func Validate(size int64, contentType string) error {
	if size <= 0 {
		return ErrEmpty
	}
	if size > MaxUploadBytes {
		return ErrTooLarge
	}
	mediaType := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	switch {
	case strings.HasPrefix(mediaType, "image/"), strings.HasPrefix(mediaType, "video/"), mediaType == "application/pdf":
		return nil
	default:
		return ErrUnsupportedType
	}
}
