package wipe

import (
	"context"
	"fmt"
	"time"

	customerrors "github.com/kingsroom/scrapemeta/pkg/errors"
	"github.com/kingsroom/scrapemeta/pkg/store"
)

const (
	// MaxRetries bounds how often a residual batch is resubmitted.
	MaxRetries = 5

	// baseBackoff is the linear backoff unit between retries: the sleep
	// before attempt n is baseBackoff × n.
	baseBackoff = time.Second
)

// Eraser drains one table at a time through batched deletes. Exactly one
// batch request is in flight at any moment; rate limiting is handled by
// backing off on unprocessed items rather than by pipelining.
type Eraser struct {
	store    MetadataStore
	sleep    func(time.Duration)
	progress func(table string, deleted int64)
}

// NewEraser creates an eraser over the given store.
func NewEraser(s MetadataStore) *Eraser {
	return &Eraser{
		store:    s,
		sleep:    time.Sleep,
		progress: func(string, int64) {},
	}
}

// WithSleep overrides the backoff sleep. Tests use this to observe
// backoff without waiting it out.
func (e *Eraser) WithSleep(sleep func(time.Duration)) *Eraser {
	e.sleep = sleep
	return e
}

// WithProgress registers a callback invoked after every batch with the
// running deleted count for the table.
func (e *Eraser) WithProgress(fn func(table string, deleted int64)) *Eraser {
	e.progress = fn
	return e
}

// Erase deletes every item in the table and returns the number of keys
// the store acknowledged as deleted. Keys the store reports as
// unprocessed are not counted; a key seen twice across scan pages is
// deleted twice harmlessly. On retry exhaustion the table is partially
// wiped and the returned count is still truthful.
func (e *Eraser) Erase(ctx context.Context, desc store.TableDescriptor) (int64, error) {
	var deleted int64
	var cursor store.Cursor

	for {
		if err := ctx.Err(); err != nil {
			return deleted, fmt.Errorf("erase of %s interrupted: %w", desc.Name, err)
		}

		page, err := e.scanWithRetry(ctx, desc, cursor)
		if err != nil {
			return deleted, err
		}

		for start := 0; start < len(page.Keys); start += store.MaxBatchSize {
			end := minInt(start+store.MaxBatchSize, len(page.Keys))
			n, err := e.drainBatch(ctx, desc, page.Keys[start:end])
			deleted += n
			if err != nil {
				return deleted, err
			}
			e.progress(desc.Name, deleted)
		}

		if page.Next == nil {
			return deleted, nil
		}
		cursor = page.Next
	}
}

// drainBatch submits one group of at most MaxBatchSize keys, resubmitting
// the unprocessed residue with linear backoff until the group drains or
// the retry budget is spent.
func (e *Eraser) drainBatch(ctx context.Context, desc store.TableDescriptor, group []store.ItemKey) (int64, error) {
	var deleted int64
	pending := group

	for attempt := 0; len(pending) > 0 && attempt < MaxRetries; {
		if err := ctx.Err(); err != nil {
			return deleted, fmt.Errorf("erase of %s interrupted: %w", desc.Name, err)
		}

		unprocessed, err := e.store.BatchDelete(ctx, desc, pending)
		if err != nil {
			if !customerrors.IsTransient(err) {
				return deleted, err
			}
			// The whole request failed; nothing in it was applied.
			unprocessed = pending
		} else {
			deleted += int64(len(pending) - len(unprocessed))
		}

		pending = unprocessed
		if len(pending) > 0 {
			attempt++
			if attempt < MaxRetries {
				e.sleep(baseBackoff * time.Duration(attempt))
			}
		}
	}

	if len(pending) > 0 {
		return deleted, customerrors.NewResidualError("batch delete", desc.Name, len(pending),
			fmt.Errorf("%w after %d attempts", customerrors.ErrUnprocessedExceedsRetries, MaxRetries))
	}
	return deleted, nil
}

// scanWithRetry retries transient scan failures with the same linear
// backoff schedule as deletes. Exhaustion is elevated to the fatal
// retry-budget error; the cursor is not advanced by a failed call.
func (e *Eraser) scanWithRetry(ctx context.Context, desc store.TableDescriptor, cursor store.Cursor) (store.KeyPage, error) {
	var lastErr error
	for attempt := 0; attempt < MaxRetries; {
		page, err := e.store.ScanKeys(ctx, desc, cursor)
		if err == nil {
			return page, nil
		}
		if !customerrors.IsTransient(err) {
			return store.KeyPage{}, err
		}
		lastErr = err
		attempt++
		if attempt < MaxRetries {
			e.sleep(baseBackoff * time.Duration(attempt))
		}
	}
	return store.KeyPage{}, customerrors.NewError("scan", desc.Name,
		fmt.Errorf("%w: %w", customerrors.ErrUnprocessedExceedsRetries, lastErr))
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
