// Package mirror synchronizes built index artifacts with an
// S3-compatible bucket.
//
// Each product's index directory is mirrored under the
// "vectorstores/{productID}/" prefix. Credentials are resolved from the
// ambient environment (AWS and MinIO variable chains), never from
// configuration.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/kbchat/internal/pool"
)

// remotePrefix is the bucket-level prefix all mirrors live under.
const remotePrefix = "vectorstores"

var (
	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrNoCredentials is returned when object-storage credentials
	// cannot be resolved from the environment.
	ErrNoCredentials = errors.New("object storage credentials not resolvable from environment")

	// ErrRemote indicates an upload, download, list, or delete failure
	// against the bucket.
	ErrRemote = errors.New("remote storage operation failed")

	// ErrMirrorNotFound is returned when no remote mirror exists for a
	// product.
	ErrMirrorNotFound = errors.New("remote mirror not found")
)

// Config holds configuration for the mirror service.
type Config struct {
	// Bucket is the bucket holding index mirrors.
	Bucket string

	// Endpoint is the S3-compatible endpoint host.
	Endpoint string

	// Region is the bucket region, if the endpoint needs one.
	Region string

	// Insecure disables TLS.
	Insecure bool

	// Attempts is how many times each remote operation is tried.
	Attempts uint

	// RetryDelay is the fixed delay between attempts.
	RetryDelay time.Duration
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Endpoint == "" {
		c.Endpoint = "s3.amazonaws.com"
	}
	if c.Attempts == 0 {
		c.Attempts = 3
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = 3 * time.Second
	}
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.Bucket == "" {
		return fmt.Errorf("%w: bucket name required", ErrInvalidConfig)
	}
	return nil
}

// objectAPI is the slice of the minio client the service uses. Narrow
// on purpose so tests can substitute an in-memory implementation.
type objectAPI interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	ListObjects(ctx context.Context, bucketName string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
	FPutObject(ctx context.Context, bucketName, objectName, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	FGetObject(ctx context.Context, bucketName, objectName, filePath string, opts minio.GetObjectOptions) error
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
}

// Service mirrors index directories to and from the bucket.
type Service struct {
	client objectAPI
	config Config
	logger *zap.Logger
}

// NewService creates a mirror service against the configured bucket.
//
// Credentials resolve through the AWS env chain (AWS_ACCESS_KEY_ID /
// AWS_SECRET_ACCESS_KEY), the MinIO env chain, and the shared AWS
// credentials file, in that order. Returns ErrNoCredentials when none
// resolve. No network call is made here; use CheckBucket to validate
// the bucket eagerly.
func NewService(config Config, logger *zap.Logger) (*Service, error) {
	config.ApplyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	creds := credentials.NewChainCredentials([]credentials.Provider{
		&credentials.EnvAWS{},
		&credentials.EnvMinio{},
		&credentials.FileAWSCredentials{},
	})

	value, err := creds.GetWithContext(nil)
	if err != nil || value.AccessKeyID == "" {
		return nil, ErrNoCredentials
	}

	client, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  creds,
		Secure: !config.Insecure,
		Region: config.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("creating storage client: %w", err)
	}

	return NewServiceWithClient(config, client, logger)
}

// NewServiceWithClient creates a mirror service over an explicit client.
// Used by tests and callers with pre-built clients.
func NewServiceWithClient(config Config, client objectAPI, logger *zap.Logger) (*Service, error) {
	config.ApplyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("%w: client is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		client: client,
		config: config,
		logger: logger,
	}, nil
}

// CheckBucket verifies the configured bucket exists and is reachable.
func (s *Service) CheckBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.config.Bucket)
	if err != nil {
		return fmt.Errorf("%w: checking bucket %q: %v", ErrRemote, s.config.Bucket, err)
	}
	if !exists {
		return fmt.Errorf("%w: bucket %q does not exist", ErrRemote, s.config.Bucket)
	}
	return nil
}

// Exists reports whether a remote mirror exists for the product.
func (s *Service) Exists(ctx context.Context, productID string) (bool, error) {
	if err := pool.ValidateProductID(productID); err != nil {
		return false, err
	}

	keys, err := s.listKeys(ctx, productID)
	if err != nil {
		return false, err
	}
	return len(keys) > 0, nil
}

// Upload mirrors a product's local index directory to the bucket.
//
// The remote prefix is cleared first so the mirror always reflects one
// complete build. On failure the partial remote state is cleared again
// (best effort); the local artifact is never touched.
func (s *Service) Upload(ctx context.Context, productID, localDir string) error {
	if err := pool.ValidateProductID(productID); err != nil {
		return err
	}

	info, err := os.Stat(localDir)
	if err != nil {
		return fmt.Errorf("local index directory %s not readable: %w", localDir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("local index path %s is not a directory", localDir)
	}

	if err := s.Delete(ctx, productID); err != nil {
		return err
	}

	uploaded := 0
	err = filepath.WalkDir(localDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(localDir, path)
		if err != nil {
			return err
		}
		key := s.objectKey(productID, rel)

		if err := s.withRetry(ctx, func() error {
			_, putErr := s.client.FPutObject(ctx, s.config.Bucket, key, path, minio.PutObjectOptions{})
			return putErr
		}); err != nil {
			return fmt.Errorf("uploading %s: %w", key, err)
		}

		s.logger.Debug("uploaded object", zap.String("key", key))
		uploaded++
		return nil
	})
	if err != nil {
		// One failed object invalidates the whole mirror.
		if cleanupErr := s.Delete(ctx, productID); cleanupErr != nil {
			s.logger.Warn("failed to clear partial mirror",
				zap.String("product_id", productID),
				zap.Error(cleanupErr),
			)
		}
		return fmt.Errorf("%w: uploading mirror for product %q: %v", ErrRemote, productID, err)
	}

	s.logger.Info("uploaded index mirror",
		zap.String("product_id", productID),
		zap.Int("objects", uploaded),
	)
	return nil
}

// Download fetches a product's remote mirror into localDir.
//
// Any stale local copy is removed first. Returns ErrMirrorNotFound when
// the remote prefix is empty; a failed download removes the partial
// local copy.
func (s *Service) Download(ctx context.Context, productID, localDir string) error {
	if err := pool.ValidateProductID(productID); err != nil {
		return err
	}

	if err := os.RemoveAll(localDir); err != nil {
		return fmt.Errorf("clearing local copy %s: %w", localDir, err)
	}

	keys, err := s.listKeys(ctx, productID)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return fmt.Errorf("%w: no mirror for product %q", ErrMirrorNotFound, productID)
	}

	prefix := s.prefix(productID)
	for _, key := range keys {
		rel := strings.TrimPrefix(key, prefix)
		if rel == "" || strings.Contains(rel, "..") {
			s.logger.Warn("skipping suspicious object key", zap.String("key", key))
			continue
		}
		dest := filepath.Join(localDir, filepath.FromSlash(rel))

		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return fmt.Errorf("creating directory for %s: %w", dest, err)
		}

		if err := s.withRetry(ctx, func() error {
			return s.client.FGetObject(ctx, s.config.Bucket, key, dest, minio.GetObjectOptions{})
		}); err != nil {
			// A partial index is worse than none.
			if cleanupErr := os.RemoveAll(localDir); cleanupErr != nil {
				s.logger.Warn("failed to clear partial download", zap.Error(cleanupErr))
			}
			return fmt.Errorf("%w: downloading %s: %v", ErrRemote, key, err)
		}

		s.logger.Debug("downloaded object", zap.String("key", key))
	}

	s.logger.Info("downloaded index mirror",
		zap.String("product_id", productID),
		zap.Int("objects", len(keys)),
	)
	return nil
}

// Delete removes a product's remote mirror. Deleting a missing mirror
// is not an error.
func (s *Service) Delete(ctx context.Context, productID string) error {
	if err := pool.ValidateProductID(productID); err != nil {
		return err
	}

	keys, err := s.listKeys(ctx, productID)
	if err != nil {
		return err
	}

	for _, key := range keys {
		if err := s.withRetry(ctx, func() error {
			return s.client.RemoveObject(ctx, s.config.Bucket, key, minio.RemoveObjectOptions{})
		}); err != nil {
			return fmt.Errorf("%w: deleting %s: %v", ErrRemote, key, err)
		}
	}

	if len(keys) > 0 {
		s.logger.Info("deleted index mirror",
			zap.String("product_id", productID),
			zap.Int("objects", len(keys)),
		)
	}
	return nil
}

// prefix returns the remote prefix for a product, with trailing slash.
func (s *Service) prefix(productID string) string {
	return remotePrefix + "/" + productID + "/"
}

// objectKey builds the remote key for a file relative to the index dir.
func (s *Service) objectKey(productID, relPath string) string {
	return s.prefix(productID) + filepath.ToSlash(relPath)
}

// listKeys lists all object keys under the product's prefix.
func (s *Service) listKeys(ctx context.Context, productID string) ([]string, error) {
	var keys []string

	err := s.withRetry(ctx, func() error {
		keys = keys[:0]
		objects := s.client.ListObjects(ctx, s.config.Bucket, minio.ListObjectsOptions{
			Prefix:    s.prefix(productID),
			Recursive: true,
		})
		for object := range objects {
			if object.Err != nil {
				return object.Err
			}
			keys = append(keys, object.Key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: listing mirror for product %q: %v", ErrRemote, productID, err)
	}

	return keys, nil
}

// withRetry runs op with the configured fixed-delay retry policy.
func (s *Service) withRetry(ctx context.Context, op func() error) error {
	return retry.Do(op,
		retry.Attempts(s.config.Attempts),
		retry.Delay(s.config.RetryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
	)
}
