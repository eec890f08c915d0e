package wipe_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	customerrors "github.com/kingsroom/scrapemeta/pkg/errors"
	"github.com/kingsroom/scrapemeta/pkg/mocks"
	"github.com/kingsroom/scrapemeta/pkg/store"
	"github.com/kingsroom/scrapemeta/pkg/wipe"
)

var jobsDesc = store.TableDescriptor{Name: "ScrapeJob-dev", PartitionKey: "id"}

func makeKeys(n int) []store.ItemKey {
	keys := make([]store.ItemKey, n)
	for i := range keys {
		keys[i] = store.ItemKey{"id": &types.AttributeValueMemberS{Value: fmt.Sprintf("key-%d", i)}}
	}
	return keys
}

// sleepRecorder replaces the backoff sleep and records requested delays.
type sleepRecorder struct {
	delays []time.Duration
}

func (r *sleepRecorder) sleep(d time.Duration) {
	r.delays = append(r.delays, d)
}

func TestEraseEmptyTable(t *testing.T) {
	mockStore := new(mocks.MockMetadataStore)
	mockStore.On("ScanKeys", mock.Anything, jobsDesc, mock.Anything).
		Return(store.KeyPage{}, nil).Once()

	deleted, err := wipe.NewEraser(mockStore).Erase(context.Background(), jobsDesc)
	require.NoError(t, err)
	assert.Equal(t, int64(0), deleted)
	mockStore.AssertNotCalled(t, "BatchDelete", mock.Anything, mock.Anything, mock.Anything)
}

func TestEraseSplitsIntoBatches(t *testing.T) {
	// 27 items: one scan page, two batch calls of 25 and 2
	keys := makeKeys(27)
	mockStore := new(mocks.MockMetadataStore)
	mockStore.On("ScanKeys", mock.Anything, jobsDesc, mock.Anything).
		Return(store.KeyPage{Keys: keys}, nil).Once()
	mockStore.On("BatchDelete", mock.Anything, jobsDesc, mock.MatchedBy(func(batch []store.ItemKey) bool {
		return len(batch) == 25
	})).Return(nil, nil).Once()
	mockStore.On("BatchDelete", mock.Anything, jobsDesc, mock.MatchedBy(func(batch []store.ItemKey) bool {
		return len(batch) == 2
	})).Return(nil, nil).Once()

	recorder := &sleepRecorder{}
	deleted, err := wipe.NewEraser(mockStore).WithSleep(recorder.sleep).Erase(context.Background(), jobsDesc)
	require.NoError(t, err)
	assert.Equal(t, int64(27), deleted)
	assert.Empty(t, recorder.delays)
	mockStore.AssertExpectations(t)
}

func TestEraseFollowsPagination(t *testing.T) {
	cursor := store.Cursor{"id": &types.AttributeValueMemberS{Value: "page-2"}}
	mockStore := new(mocks.MockMetadataStore)
	mockStore.On("ScanKeys", mock.Anything, jobsDesc, store.Cursor(nil)).
		Return(store.KeyPage{Keys: makeKeys(3), Next: cursor}, nil).Once()
	mockStore.On("ScanKeys", mock.Anything, jobsDesc, cursor).
		Return(store.KeyPage{Keys: makeKeys(2)}, nil).Once()
	mockStore.On("BatchDelete", mock.Anything, jobsDesc, mock.Anything).
		Return(nil, nil).Twice()

	deleted, err := wipe.NewEraser(mockStore).Erase(context.Background(), jobsDesc)
	require.NoError(t, err)
	assert.Equal(t, int64(5), deleted)
	mockStore.AssertExpectations(t)
}

func TestEraseRetriesUnprocessedWithLinearBackoff(t *testing.T) {
	// A 25-item batch returns 10 unprocessed twice, then drains. The
	// accounting must credit exactly the acknowledged keys.
	keys := makeKeys(25)
	residue := keys[:10]

	mockStore := new(mocks.MockMetadataStore)
	mockStore.On("ScanKeys", mock.Anything, jobsDesc, mock.Anything).
		Return(store.KeyPage{Keys: keys}, nil).Once()
	mockStore.On("BatchDelete", mock.Anything, jobsDesc, mock.MatchedBy(func(batch []store.ItemKey) bool {
		return len(batch) == 25
	})).Return(residue, nil).Once()
	mockStore.On("BatchDelete", mock.Anything, jobsDesc, mock.MatchedBy(func(batch []store.ItemKey) bool {
		return len(batch) == 10
	})).Return(residue, nil).Once()
	mockStore.On("BatchDelete", mock.Anything, jobsDesc, mock.MatchedBy(func(batch []store.ItemKey) bool {
		return len(batch) == 10
	})).Return(nil, nil).Once()

	recorder := &sleepRecorder{}
	deleted, err := wipe.NewEraser(mockStore).WithSleep(recorder.sleep).Erase(context.Background(), jobsDesc)
	require.NoError(t, err)

	// (25-10) + (10-10) + (10-0) acknowledged
	assert.Equal(t, int64(25), deleted)
	assert.Equal(t, []time.Duration{1 * time.Second, 2 * time.Second}, recorder.delays)
	mockStore.AssertExpectations(t)
}

func TestEraseRetryExhaustion(t *testing.T) {
	// The store never accepts anything: five attempts, then the fatal
	// retry-budget error carrying the residual count.
	keys := makeKeys(25)

	mockStore := new(mocks.MockMetadataStore)
	mockStore.On("ScanKeys", mock.Anything, jobsDesc, mock.Anything).
		Return(store.KeyPage{Keys: keys}, nil).Once()
	mockStore.On("BatchDelete", mock.Anything, jobsDesc, mock.Anything).
		Return(keys, nil).Times(wipe.MaxRetries)

	recorder := &sleepRecorder{}
	deleted, err := wipe.NewEraser(mockStore).WithSleep(recorder.sleep).Erase(context.Background(), jobsDesc)
	require.Error(t, err)
	assert.ErrorIs(t, err, customerrors.ErrUnprocessedExceedsRetries)
	assert.Equal(t, int64(0), deleted)

	var wipeErr *customerrors.WipeError
	require.ErrorAs(t, err, &wipeErr)
	assert.Equal(t, 25, wipeErr.Residual)
	assert.Equal(t, "ScrapeJob-dev", wipeErr.Table)

	// No sleep after the final attempt
	assert.Equal(t, []time.Duration{
		1 * time.Second, 2 * time.Second, 3 * time.Second, 4 * time.Second,
	}, recorder.delays)
	mockStore.AssertExpectations(t)
}

func TestEraseRetriesTransientDeleteFailure(t *testing.T) {
	keys := makeKeys(5)
	transient := fmt.Errorf("%w: throttled", customerrors.ErrTransientIO)

	mockStore := new(mocks.MockMetadataStore)
	mockStore.On("ScanKeys", mock.Anything, jobsDesc, mock.Anything).
		Return(store.KeyPage{Keys: keys}, nil).Once()
	mockStore.On("BatchDelete", mock.Anything, jobsDesc, mock.Anything).
		Return(nil, transient).Once()
	mockStore.On("BatchDelete", mock.Anything, jobsDesc, mock.Anything).
		Return(nil, nil).Once()

	recorder := &sleepRecorder{}
	deleted, err := wipe.NewEraser(mockStore).WithSleep(recorder.sleep).Erase(context.Background(), jobsDesc)
	require.NoError(t, err)
	assert.Equal(t, int64(5), deleted)
	assert.Equal(t, []time.Duration{1 * time.Second}, recorder.delays)
	mockStore.AssertExpectations(t)
}

func TestErasePermanentFailureIsFatal(t *testing.T) {
	keys := makeKeys(5)
	permanent := fmt.Errorf("%w: access denied", customerrors.ErrPermanentIO)

	mockStore := new(mocks.MockMetadataStore)
	mockStore.On("ScanKeys", mock.Anything, jobsDesc, mock.Anything).
		Return(store.KeyPage{Keys: keys}, nil).Once()
	mockStore.On("BatchDelete", mock.Anything, jobsDesc, mock.Anything).
		Return(nil, permanent).Once()

	deleted, err := wipe.NewEraser(mockStore).Erase(context.Background(), jobsDesc)
	require.Error(t, err)
	assert.ErrorIs(t, err, customerrors.ErrPermanentIO)
	assert.Equal(t, int64(0), deleted)
	mockStore.AssertNumberOfCalls(t, "BatchDelete", 1)
}

func TestEraseRetriesTransientScanFailure(t *testing.T) {
	transient := fmt.Errorf("%w: throttled", customerrors.ErrTransientIO)

	mockStore := new(mocks.MockMetadataStore)
	mockStore.On("ScanKeys", mock.Anything, jobsDesc, mock.Anything).
		Return(store.KeyPage{}, transient).Twice()
	mockStore.On("ScanKeys", mock.Anything, jobsDesc, mock.Anything).
		Return(store.KeyPage{Keys: makeKeys(1)}, nil).Once()
	mockStore.On("BatchDelete", mock.Anything, jobsDesc, mock.Anything).
		Return(nil, nil).Once()

	recorder := &sleepRecorder{}
	deleted, err := wipe.NewEraser(mockStore).WithSleep(recorder.sleep).Erase(context.Background(), jobsDesc)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
	assert.Equal(t, []time.Duration{1 * time.Second, 2 * time.Second}, recorder.delays)
}

func TestEraseScanRetryExhaustion(t *testing.T) {
	transient := fmt.Errorf("%w: throttled", customerrors.ErrTransientIO)

	mockStore := new(mocks.MockMetadataStore)
	mockStore.On("ScanKeys", mock.Anything, jobsDesc, mock.Anything).
		Return(store.KeyPage{}, transient).Times(wipe.MaxRetries)

	deleted, err := wipe.NewEraser(mockStore).WithSleep(func(time.Duration) {}).Erase(context.Background(), jobsDesc)
	require.Error(t, err)
	assert.ErrorIs(t, err, customerrors.ErrUnprocessedExceedsRetries)
	assert.Equal(t, int64(0), deleted)
}

func TestEraseStopsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	mockStore := new(mocks.MockMetadataStore)
	deleted, err := wipe.NewEraser(mockStore).Erase(ctx, jobsDesc)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int64(0), deleted)
	mockStore.AssertNotCalled(t, "ScanKeys", mock.Anything, mock.Anything, mock.Anything)
}

func TestEraseProgressCallback(t *testing.T) {
	keys := makeKeys(26)
	mockStore := new(mocks.MockMetadataStore)
	mockStore.On("ScanKeys", mock.Anything, jobsDesc, mock.Anything).
		Return(store.KeyPage{Keys: keys}, nil).Once()
	mockStore.On("BatchDelete", mock.Anything, jobsDesc, mock.Anything).
		Return(nil, nil).Twice()

	var seen []int64
	eraser := wipe.NewEraser(mockStore).WithProgress(func(table string, deleted int64) {
		assert.Equal(t, "ScrapeJob-dev", table)
		seen = append(seen, deleted)
	})

	_, err := eraser.Erase(context.Background(), jobsDesc)
	require.NoError(t, err)
	assert.Equal(t, []int64{25, 26}, seen)
}
