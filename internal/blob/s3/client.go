package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"kurodrive/internal/blob"
	"kurodrive/internal/logging"
)

const defaultTimeout = 30 * time.Second

// objectAPI: часть клиента S3, которой пользуется хранилище.
type objectAPI interface {
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, opts ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	CreateMultipartUpload(ctx context.Context, in *s3.CreateMultipartUploadInput, opts ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	UploadPart(ctx context.Context, in *s3.UploadPartInput, opts ...func(*s3.Options)) (*s3.UploadPartOutput, error)
	CompleteMultipartUpload(ctx context.Context, in *s3.CompleteMultipartUploadInput, opts ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(ctx context.Context, in *s3.AbortMultipartUploadInput, opts ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error)
}

// Client хранит блобы в S3-совместимом хранилище.
type Client struct {
	api      objectAPI
	bucket   string
	prefix   string
	partSize int64
	logger   logging.Logger
}

var _ blob.Store = (*Client)(nil)

// NewClient создаёт клиента и проверяет доступ к бакету.
func NewClient(ctx context.Context, conf *Config, logger logging.Logger) (*Client, error) {
	if conf == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid s3 config: %w", err)
	}
	c := conf.withDefaults()

	creds := aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(
		c.AccessKeyID,
		c.SecretAccessKey,
		"",
	))

	api := s3.New(s3.Options{
		BaseEndpoint:     aws.String(c.Endpoint),
		Region:           c.Region,
		Credentials:      creds,
		UsePathStyle:     c.UsePathStyle,
		RetryMode:        aws.RetryModeAdaptive,
		RetryMaxAttempts: 3,
	})

	client := newClient(api, c, logger)

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	if _, err := api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(c.Bucket)}); err != nil {
		return nil, fmt.Errorf("unable to access bucket %s: %w", c.Bucket, err)
	}

	return client, nil
}

func newClient(api objectAPI, c Config, logger logging.Logger) *Client {
	return &Client{
		api:      api,
		bucket:   c.Bucket,
		prefix:   c.KeyPrefix,
		partSize: c.PartSize,
		logger:   logger.With("component", "s3"),
	}
}

func (h *Client) key(handle string) string {
	return h.prefix + handle
}

// Put загружает байты одним запросом, а крупные блобы загружает по частям.
func (h *Client) Put(ctx context.Context, data []byte) (string, error) {
	handle := blob.NewHandle()
	key := h.key(handle)

	if int64(len(data)) > h.partSize {
		if err := h.putMultipart(ctx, key, data); err != nil {
			return "", err
		}
		return handle, nil
	}

	_, err := h.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(h.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload blob to S3: %w", err)
	}
	return handle, nil
}

func (h *Client) putMultipart(ctx context.Context, key string, data []byte) error {
	created, err := h.api.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket: aws.String(h.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to create multipart upload: %w", err)
	}
	uploadID := created.UploadId

	var parts []types.CompletedPart
	for n, off := int32(1), int64(0); off < int64(len(data)); n, off = n+1, off+h.partSize {
		end := min(off+h.partSize, int64(len(data)))
		out, err := h.api.UploadPart(ctx, &s3.UploadPartInput{
			Bucket:     aws.String(h.bucket),
			Key:        aws.String(key),
			PartNumber: aws.Int32(n),
			UploadId:   uploadID,
			Body:       bytes.NewReader(data[off:end]),
		})
		if err != nil {
			h.abort(ctx, key, uploadID)
			return fmt.Errorf("failed to upload part %d: %w", n, err)
		}
		parts = append(parts, types.CompletedPart{ETag: out.ETag, PartNumber: aws.Int32(n)})
	}

	_, err = h.api.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(h.bucket),
		Key:             aws.String(key),
		UploadId:        uploadID,
		MultipartUpload: &types.CompletedMultipartUpload{Parts: parts},
	})
	if err != nil {
		h.abort(ctx, key, uploadID)
		return fmt.Errorf("failed to complete multipart upload: %w", err)
	}
	return nil
}

func (h *Client) abort(ctx context.Context, key string, uploadID *string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultTimeout)
	defer cancel()
	_, err := h.api.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(h.bucket),
		Key:      aws.String(key),
		UploadId: uploadID,
	})
	if err != nil {
		h.logger.Warn(ctx, "failed to abort multipart upload", "key", key, "error", err)
	}
}

func (h *Client) Get(ctx context.Context, handle string) ([]byte, error) {
	result, err := h.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(h.bucket),
		Key:    aws.String(h.key(handle)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, blob.ErrBlobNotFound
		}
		return nil, fmt.Errorf("failed to get object from S3: %w", err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object body: %w", err)
	}
	return data, nil
}

// Delete удаляет объект. S3 не сообщает об отсутствии ключа при удалении,
// но совместимые хранилища иногда возвращают NoSuchKey: это тоже успех.
func (h *Client) Delete(ctx context.Context, handle string) error {
	_, err := h.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(h.bucket),
		Key:    aws.String(h.key(handle)),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("failed to delete object from S3: %w", err)
	}
	return nil
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	return errors.As(err, &nsk) || errors.As(err, &nf)
}
