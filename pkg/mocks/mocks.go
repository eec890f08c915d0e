// Package mocks provides mock implementations of the scrapemeta store
// contracts for use with github.com/stretchr/testify/mock.
//
// Example usage:
//
//	mockStore := new(mocks.MockMetadataStore)
//	mockStore.On("CountOnly", mock.Anything, "ScrapeJob-dev", mock.Anything).
//		Return(store.CountPage{Count: 3}, nil)
//
//	probe := wipe.NewProbe(mockStore)
//	count, err := probe.Count(ctx, "ScrapeJob-dev")
//
//	mockStore.AssertExpectations(t)
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/kingsroom/scrapemeta/pkg/store"
)

// MockMetadataStore is a mock implementation of wipe.MetadataStore.
type MockMetadataStore struct {
	mock.Mock
}

// Describe fetches the key schema of a table
func (m *MockMetadataStore) Describe(ctx context.Context, table string) (store.TableDescriptor, error) {
	args := m.Called(ctx, table)
	return args.Get(0).(store.TableDescriptor), args.Error(1)
}

// ScanKeys returns one page of item keys
func (m *MockMetadataStore) ScanKeys(ctx context.Context, desc store.TableDescriptor, cursor store.Cursor) (store.KeyPage, error) {
	args := m.Called(ctx, desc, cursor)
	return args.Get(0).(store.KeyPage), args.Error(1)
}

// CountOnly returns one page of a COUNT-mode scan
func (m *MockMetadataStore) CountOnly(ctx context.Context, table string, cursor store.Cursor) (store.CountPage, error) {
	args := m.Called(ctx, table, cursor)
	return args.Get(0).(store.CountPage), args.Error(1)
}

// BatchDelete submits one batch of delete directives
func (m *MockMetadataStore) BatchDelete(ctx context.Context, desc store.TableDescriptor, keys []store.ItemKey) ([]store.ItemKey, error) {
	args := m.Called(ctx, desc, keys)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]store.ItemKey), args.Error(1)
}
