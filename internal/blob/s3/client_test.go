package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kurodrive/internal/blob"
	"kurodrive/internal/logging"
)

type fakeAPI struct {
	mu        sync.Mutex
	objects   map[string][]byte
	uploads   map[string]map[int32][]byte
	failPart  int32
	aborted   int
	deleteErr error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{objects: map[string][]byte{}, uploads: map[string]map[int32][]byte{}}
}

func (f *fakeAPI) HeadBucket(context.Context, *s3.HeadBucketInput, ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	return &s3.HeadBucketOutput{}, nil
}

func (f *fakeAPI) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, _ := io.ReadAll(in.Body)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[*in.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeAPI) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeAPI) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return nil, f.deleteErr
	}
	delete(f.objects, *in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeAPI) CreateMultipartUpload(_ context.Context, in *s3.CreateMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := "upload-" + *in.Key
	f.uploads[id] = map[int32][]byte{}
	return &s3.CreateMultipartUploadOutput{UploadId: aws.String(id)}, nil
}

func (f *fakeAPI) UploadPart(_ context.Context, in *s3.UploadPartInput, _ ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	if *in.PartNumber == f.failPart {
		return nil, errors.New("connection reset")
	}
	data, _ := io.ReadAll(in.Body)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads[*in.UploadId][*in.PartNumber] = data
	return &s3.UploadPartOutput{ETag: aws.String("etag")}, nil
}

func (f *fakeAPI) CompleteMultipartUpload(_ context.Context, in *s3.CompleteMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var buf bytes.Buffer
	for _, p := range in.MultipartUpload.Parts {
		buf.Write(f.uploads[*in.UploadId][*p.PartNumber])
	}
	f.objects[*in.Key] = buf.Bytes()
	delete(f.uploads, *in.UploadId)
	return &s3.CompleteMultipartUploadOutput{}, nil
}

func (f *fakeAPI) AbortMultipartUpload(_ context.Context, in *s3.AbortMultipartUploadInput, _ ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aborted++
	delete(f.uploads, *in.UploadId)
	return &s3.AbortMultipartUploadOutput{}, nil
}

func newTestClient(api objectAPI, partSize int64) *Client {
	return newClient(api, Config{Bucket: "b", KeyPrefix: "blobs/", PartSize: partSize}, logging.NewNop())
}

func TestClient_PutGetDelete(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI()
	c := newTestClient(api, DefaultPartSize)

	h, err := c.Put(ctx, []byte("payload"))
	require.NoError(t, err)
	assert.Contains(t, api.objects, "blobs/"+h)

	data, err := c.Get(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)

	require.NoError(t, c.Delete(ctx, h))
	_, err = c.Get(ctx, h)
	assert.ErrorIs(t, err, blob.ErrBlobNotFound)
}

func TestClient_DeleteTreatsMissingKeyAsSuccess(t *testing.T) {
	api := newFakeAPI()
	api.deleteErr = &types.NoSuchKey{}
	c := newTestClient(api, DefaultPartSize)
	assert.NoError(t, c.Delete(context.Background(), blob.NewHandle()))

	api.deleteErr = errors.New("access denied")
	assert.Error(t, c.Delete(context.Background(), blob.NewHandle()))
}

func TestClient_MultipartUpload(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI()
	c := newTestClient(api, 4)

	h, err := c.Put(ctx, []byte("0123456789"))
	require.NoError(t, err)
	data, err := c.Get(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, []byte("0123456789"), data)

	api.failPart = 2
	_, err = c.Put(ctx, []byte("0123456789"))
	require.Error(t, err)
	assert.Equal(t, 1, api.aborted)
	assert.Empty(t, api.uploads)
}

func TestConfig_Validate(t *testing.T) {
	err := (&Config{}).Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket is required")

	ok := Config{AccessKeyID: "a", SecretAccessKey: "s", Bucket: "b"}
	require.NoError(t, ok.Validate())
	c := ok.withDefaults()
	assert.Equal(t, DefaultEndpoint, c.Endpoint)
	assert.Equal(t, DefaultRegion, c.Region)
	assert.Equal(t, int64(DefaultPartSize), c.PartSize)
}
