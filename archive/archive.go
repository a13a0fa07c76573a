// Package archive keeps the raw callTracer output of every traced transaction in an
// S3-compatible bucket.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/transparencyx/chaintrace/common/errs"
	"github.com/transparencyx/chaintrace/config"
)

const contentType = "application/json"

// Client is the part of *minio.Client the archive needs.
type Client interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (*minio.Object, error)
}

type Archive struct {
	client Client
	bucket string
}

// Dial connects to the configured endpoint and makes sure the bucket exists.
func Dial(ctx context.Context, cfg config.ArchiveConfig) (*Archive, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, errs.Wrap(errs.TypeArchive, "create minio client", err).AddContext("endpoint", cfg.Endpoint)
	}
	return New(ctx, client, cfg.Bucket)
}

func New(ctx context.Context, client Client, bucket string) (*Archive, error) {
	if bucket == "" {
		return nil, errs.NewValidation("bucket", "bucket name is required")
	}
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, errs.Wrap(errs.TypeArchive, "check bucket", err).AddContext("bucket", bucket)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, errs.Wrap(errs.TypeArchive, "create bucket", err).AddContext("bucket", bucket)
		}
		log.Info("created archive bucket", "bucket", bucket)
	}
	return &Archive{client: client, bucket: bucket}, nil
}

// ObjectName is the key a transaction's trace is stored under.
func ObjectName(hash common.Hash) string {
	return fmt.Sprintf("traces/%s.json", hash.Hex())
}

// PutTrace overwrites any earlier copy of the same transaction.
func (a *Archive) PutTrace(ctx context.Context, hash common.Hash, raw []byte) error {
	name := ObjectName(hash)
	_, err := a.client.PutObject(ctx, a.bucket, name, bytes.NewReader(raw), int64(len(raw)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return errs.Wrap(errs.TypeArchive, "upload trace", err).AddContext("object", name)
	}
	log.Debug("archived raw trace", "bucket", a.bucket, "object", name, "size", len(raw))
	return nil
}

// GetTrace returns a previously archived trace.
func (a *Archive) GetTrace(ctx context.Context, hash common.Hash) ([]byte, error) {
	name := ObjectName(hash)
	obj, err := a.client.GetObject(ctx, a.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, errs.Wrap(errs.TypeArchive, "open trace", err).AddContext("object", name)
	}
	defer obj.Close()

	raw, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, errs.Wrap(errs.TypeNotFound, "trace not archived", err).AddContext("object", name)
		}
		return nil, errs.Wrap(errs.TypeArchive, "read trace", err).AddContext("object", name)
	}
	return raw, nil
}

func (a *Archive) Bucket() string {
	return a.bucket
}
