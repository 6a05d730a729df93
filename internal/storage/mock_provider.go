package storage

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockProvider is a testify mock of Provider.
type MockProvider struct {
	mock.Mock
}

// PutObject records the call.
func (m *MockProvider) PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error) {
	args := m.Called(ctx, path, contentType, data)
	return args.String(0), args.Error(1) //nolint:wrapcheck
}
