package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImageServiceGetImageURL(t *testing.T) {
	s3Mock := NewMockS3Service()
	s3Mock.AddObject("listings/1/front.jpg")
	svc := NewImageService(s3Mock)
	ctx := context.Background()

	url, err := svc.GetImageURL(ctx, "listings/1/front.jpg")
	require.NoError(t, err)
	assert.Contains(t, url, "listings/1/front.jpg")
	assert.Contains(t, url, "X-Amz-Signature")

	url, err = svc.GetImageURL(ctx, "https://cdn.example.com/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/a.jpg", url)

	url, err = svc.GetImageURL(ctx, "  ")
	require.NoError(t, err)
	assert.Empty(t, url)

	_, err = svc.GetImageURL(ctx, "listings/missing.jpg")
	assert.Error(t, err)
}

func TestImageServiceWithoutBucket(t *testing.T) {
	svc := NewImageService(nil)

	url, err := svc.GetImageURL(context.Background(), "listings/1/front.jpg")
	require.NoError(t, err)
	assert.Empty(t, url)
}
