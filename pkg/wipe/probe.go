package wipe

import (
	"context"

	"github.com/kingsroom/scrapemeta/pkg/store"
)

// Probe counts table rows using COUNT-mode scans, aggregating across
// pagination. It never projects item data.
type Probe struct {
	store MetadataStore
}

// NewProbe creates a count probe over the given store.
func NewProbe(s MetadataStore) *Probe {
	return &Probe{store: s}
}

// Count returns the total number of items in the table.
func (p *Probe) Count(ctx context.Context, table string) (int64, error) {
	var total int64
	var cursor store.Cursor

	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		page, err := p.store.CountOnly(ctx, table, cursor)
		if err != nil {
			return total, err
		}
		total += page.Count

		if page.Next == nil {
			return total, nil
		}
		cursor = page.Next
	}
}
