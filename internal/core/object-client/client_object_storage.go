package objectclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	cfg "github.com/markdave123-py/Ledgerlens/internal/config"
	"github.com/markdave123-py/Ledgerlens/internal/core"
	"github.com/markdave123-py/Ledgerlens/internal/internalerr"
)

const s3Scheme = "s3://"

// S3Store keeps assets in a bucket under an optional key prefix. References
// have the form s3://<bucket>/<key>.
type S3Store struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

func NewS3Store(ctx context.Context, cfg *cfg.Config, prefix string) (*S3Store, error) {
	if cfg.AwsAccessKey == "" || cfg.AwsSecretKey == "" {
		return nil, fmt.Errorf("AWS credentials not set")
	}
	if cfg.AwsRegion == "" {
		return nil, fmt.Errorf("AWS_REGION not set")
	}
	if cfg.BucketName == "" {
		return nil, fmt.Errorf("S3 bucket name not set")
	}

	awsCfg, err := config.LoadDefaultConfig(
		ctx,
		config.WithRegion(cfg.AwsRegion),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AwsAccessKey, cfg.AwsSecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg)
	slog.Info("s3 asset store ready", "bucket", cfg.BucketName, "region", cfg.AwsRegion)

	return &S3Store{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   cfg.BucketName,
		prefix:   strings.Trim(prefix, "/"),
	}, nil
}

func (c *S3Store) objectKey(namespace, name string) (string, error) {
	key, err := assetKey(namespace, name)
	if err != nil {
		return "", err
	}
	if c.prefix != "" {
		key = path.Join(c.prefix, key)
	}
	return key, nil
}

func (c *S3Store) SaveAsset(ctx context.Context, namespace, name string, data []byte, contentType string) (string, error) {
	key, err := c.objectKey(namespace, name)
	if err != nil {
		return "", err
	}
	if contentType == "" {
		contentType = ContentTypeFor(key)
	}

	ctxUpload, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	_, err = c.uploader.Upload(ctxUpload, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("s3 upload failed: %w", err)
	}
	return s3Scheme + c.bucket + "/" + key, nil
}

// OpenAsset streams the object. The caller closes the body.
func (c *S3Store) OpenAsset(ctx context.Context, ref string) (io.ReadCloser, string, error) {
	bucket, key, err := parseS3Ref(ref)
	if err != nil {
		return nil, "", err
	}
	resp, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, "", fmt.Errorf("%w: asset %s", internalerr.ErrNotFound, ref)
		}
		return nil, "", fmt.Errorf("s3 get failed: %w", err)
	}
	ct := aws.ToString(resp.ContentType)
	if ct == "" {
		ct = ContentTypeFor(key)
	}
	return resp.Body, ct, nil
}

func (c *S3Store) DeleteAsset(ctx context.Context, ref string) error {
	bucket, key, err := parseS3Ref(ref)
	if err != nil {
		return err
	}
	ctxDel, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err = c.client.DeleteObject(ctxDel, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("s3 delete failed: %w", err)
	}
	return nil
}

func parseS3Ref(ref string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(ref, s3Scheme)
	if !ok {
		return "", "", fmt.Errorf("%w: %q is not an s3 reference", internalerr.ErrInvalidInput, ref)
	}
	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("%w: %q is not an s3 reference", internalerr.ErrInvalidInput, ref)
	}
	return bucket, key, nil
}

var _ core.AssetStore = (*S3Store)(nil)
