package logging

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/ethereum-optimism/infra/op-harness/result"
	"github.com/ethereum-optimism/infra/op-harness/types"
)

// ObjectStoreSaver uploads logs to an S3-compatible bucket.
type ObjectStoreSaver struct {
	Endpoint  string `option:"object-store-endpoint"`
	Bucket    string `option:"object-store-bucket"`
	AccessKey string `option:"object-store-access-key"`
	SecretKey string `option:"object-store-secret-key"`
	Region    string `option:"object-store-region"`
	UseSSL    bool   `option:"object-store-use-ssl"`

	log    log.Logger
	mu     sync.Mutex
	client *minio.Client
	prefix string
	counts map[string]int
}

var _ result.LogSaver = (*ObjectStoreSaver)(nil)

func NewObjectStoreSaver(logger log.Logger) *ObjectStoreSaver {
	if logger == nil {
		logger = log.New()
	}
	return &ObjectStoreSaver{
		Region: "us-east-1",
		log:    logger,
	}
}

func (s *ObjectStoreSaver) Validate() error {
	if strings.TrimSpace(s.Endpoint) == "" {
		return errors.New("object store endpoint is required")
	}
	if strings.Contains(s.Endpoint, "://") {
		return fmt.Errorf("endpoint must not include scheme: %q", s.Endpoint)
	}
	if strings.TrimSpace(s.Bucket) == "" {
		return errors.New("object store bucket is required")
	}
	if strings.TrimSpace(s.AccessKey) == "" || strings.TrimSpace(s.SecretKey) == "" {
		return errors.New("object store credentials are required")
	}
	return nil
}

func (s *ObjectStoreSaver) InvocationStarted(ictx *types.InvocationContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.Validate(); err != nil {
		return err
	}
	if s.client == nil {
		client, err := minio.New(s.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(s.AccessKey, s.SecretKey, ""),
			Secure: s.UseSSL,
			Region: s.Region,
		})
		if err != nil {
			return fmt.Errorf("failed to create object store client: %w", err)
		}
		s.client = client
	}

	ctx := context.Background()
	exists, err := s.client.BucketExists(ctx, s.Bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", s.Bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.Bucket, minio.MakeBucketOptions{Region: s.Region}); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", s.Bucket, err)
		}
	}
	s.prefix = InvocationDirPrefix + ictx.InvocationID()
	s.counts = make(map[string]int)
	return nil
}

func (s *ObjectStoreSaver) SaveLogData(name string, dataType types.LogDataType, src types.StreamSource) (types.LogFile, error) {
	s.mu.Lock()
	if s.client == nil || s.prefix == "" {
		s.mu.Unlock()
		return types.LogFile{}, fmt.Errorf("cannot save %s: invocation has not started", name)
	}
	n := s.counts[name]
	s.counts[name] = n + 1
	key := objectKey(s.prefix, name, n, dataType)
	client := s.client
	s.mu.Unlock()

	r, err := src.Open()
	if err != nil {
		return types.LogFile{}, fmt.Errorf("failed to open log %s: %w", name, err)
	}
	defer r.Close()

	size := src.Size()
	if size <= 0 {
		size = -1
	}
	info, err := client.PutObject(context.Background(), s.Bucket, key, r, size, minio.PutObjectOptions{
		ContentType: contentType(dataType),
	})
	if err != nil {
		return types.LogFile{}, fmt.Errorf("failed to upload %s: %w", key, err)
	}

	return types.LogFile{
		Path:       key,
		URL:        objectURL(client.EndpointURL().String(), s.Bucket, key),
		Type:       dataType,
		Compressed: dataType.IsCompressed(),
		Text:       dataType.IsText(),
		Size:       info.Size,
	}, nil
}

func (s *ObjectStoreSaver) InvocationEnded(elapsed time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log.Info("Logs uploaded", "bucket", s.Bucket, "prefix", s.prefix, "elapsed", elapsed)
	return nil
}

func objectKey(prefix, name string, n int, dataType types.LogDataType) string {
	return path.Join(prefix, fmt.Sprintf("%s_%d.%s", name, n, dataType.FileExt()))
}

func objectURL(endpoint, bucket, key string) string {
	return strings.TrimSuffix(endpoint, "/") + "/" + bucket + "/" + key
}

func contentType(dataType types.LogDataType) string {
	switch {
	case dataType.IsText():
		return "text/plain"
	case dataType == types.LogDataPNG:
		return "image/png"
	case dataType.IsCompressed():
		return "application/zip"
	default:
		return "application/octet-stream"
	}
}
