package storage_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/config"
	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/storage"
)

type MockS3 struct {
	mock.Mock
}

func (m *MockS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	args := m.Called(ctx, params)
	return &s3.PutObjectOutput{}, args.Error(0)
}

func (m *MockS3) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*s3.GetObjectOutput), args.Error(1)
}

func (m *MockS3) DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	args := m.Called(ctx, params)
	return &s3.DeleteObjectOutput{}, args.Error(0)
}

func testConfig() *config.Config {
	return &config.Config{AwsS3Bucket: "media", AwsRegion: "me-south-1"}
}

func TestS3Storage_Upload(t *testing.T) {
	client := new(MockS3)
	store := storage.NewS3Storage(testConfig(), client)

	client.On("PutObject", mock.Anything, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
		return aws.ToString(in.Bucket) == "media" &&
			strings.HasPrefix(aws.ToString(in.Key), "properties/abc/") &&
			strings.HasSuffix(aws.ToString(in.Key), ".jpg") &&
			aws.ToString(in.ContentType) == "image/jpeg"
	})).Return(nil)

	key, err := store.Upload(context.Background(), "/properties/abc/", []byte("jpeg"), "image/jpeg")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "properties/abc/"))
	assert.Equal(t, "https://media.s3.me-south-1.amazonaws.com/"+key, store.URL(key))
	client.AssertExpectations(t)
}

func TestS3Storage_DownloadMissing(t *testing.T) {
	client := new(MockS3)
	store := storage.NewS3Storage(testConfig(), client)
	client.On("GetObject", mock.Anything, mock.Anything).Return(nil, &types.NoSuchKey{})

	_, _, err := store.Download(context.Background(), "nope")
	assert.ErrorIs(t, err, storage.ErrObjectNotFound)
}

func TestS3Storage_Download(t *testing.T) {
	client := new(MockS3)
	store := storage.NewS3Storage(testConfig(), client)
	client.On("GetObject", mock.Anything, mock.Anything).Return(&s3.GetObjectOutput{
		Body:        io.NopCloser(bytes.NewReader([]byte("png-bytes"))),
		ContentType: aws.String("image/png"),
	}, nil)

	data, contentType, err := store.Download(context.Background(), "k.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), data)
	assert.Equal(t, "image/png", contentType)
}

func TestS3Storage_CustomBaseURLAndDeleteError(t *testing.T) {
	cfg := testConfig()
	cfg.ImageBaseS3URL = "https://cdn.example.com/"
	client := new(MockS3)
	store := storage.NewS3Storage(cfg, client)
	assert.Equal(t, "https://cdn.example.com/a/b.jpg", store.URL("a/b.jpg"))

	client.On("DeleteObject", mock.Anything, mock.Anything).Return(errors.New("denied"))
	assert.Error(t, store.Delete(context.Background(), "a/b.jpg"))
}
