package database

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/JakeFAU/catalog-importer/internal/catalog"
)

// MockProvider is a testify mock of Provider.
type MockProvider struct {
	mock.Mock
}

// UpsertItem records the call.
func (m *MockProvider) UpsertItem(ctx context.Context, item catalog.Item) error {
	args := m.Called(ctx, item)
	return args.Error(0) //nolint:wrapcheck
}

// Close records the call.
func (m *MockProvider) Close() error {
	args := m.Called()
	return args.Error(0) //nolint:wrapcheck
}
