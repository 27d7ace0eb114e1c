package services

import (
	"context"
	"fmt"
	"sync"
)

// MockS3Service is a mock implementation of S3Interface for testing
type MockS3Service struct {
	objects map[string]bool
	mu      sync.RWMutex
}

// NewMockS3Service creates a new mock S3 service
func NewMockS3Service() *MockS3Service {
	return &MockS3Service{objects: make(map[string]bool)}
}

// AddObject makes key presignable
func (m *MockS3Service) AddObject(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = true
}

// GetPresignedURL returns a fake signed link for known keys
func (m *MockS3Service) GetPresignedURL(_ context.Context, s3Key string) (string, error) {
	if s3Key == "" {
		return "", nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.objects[s3Key] {
		return "", fmt.Errorf("object not found: %s", s3Key)
	}
	return fmt.Sprintf("https://mock-s3.example.com/%s?X-Amz-Signature=mock", s3Key), nil
}
