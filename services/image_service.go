package services

import (
	"context"
	"strings"
)

// ImageService turns a stored listing image reference into a link a user can open
type ImageService interface {
	GetImageURL(ctx context.Context, imageKey string) (string, error)
}

// S3ImageService presigns bucket keys and passes absolute URLs through.
// A nil S3 backend means photos are only available when stored as URLs.
type S3ImageService struct {
	s3Service S3Interface
}

// NewImageService creates an image service on an optional S3 backend
func NewImageService(s3Service S3Interface) *S3ImageService {
	return &S3ImageService{s3Service: s3Service}
}

// GetImageURL generates a URL for a listing image
func (s *S3ImageService) GetImageURL(ctx context.Context, imageKey string) (string, error) {
	imageKey = strings.TrimSpace(imageKey)
	if imageKey == "" {
		return "", nil
	}
	if strings.HasPrefix(imageKey, "http://") || strings.HasPrefix(imageKey, "https://") {
		return imageKey, nil
	}
	if s.s3Service == nil {
		return "", nil
	}
	return s.s3Service.GetPresignedURL(ctx, imageKey)
}
