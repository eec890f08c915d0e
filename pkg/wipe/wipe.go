// Package wipe implements the bulk-wipe protocol for scraper metadata
// tables: counting, planning, operator confirmation, and ordered batched
// deletion with retry accounting. The cache index table is never touched.
package wipe

import (
	"context"

	"github.com/kingsroom/scrapemeta/pkg/store"
)

// Mode selects between planning and destructive execution.
type Mode int

const (
	// ModeDryRun traverses and counts but never mutates.
	ModeDryRun Mode = iota
	// ModeLive deletes, after operator confirmation.
	ModeLive
)

// String implements fmt.Stringer.
func (m Mode) String() string {
	if m == ModeLive {
		return "LIVE"
	}
	return "DRY_RUN"
}

// MetadataStore is the store contract the wipe protocol runs against.
// *store.Store is the production implementation.
type MetadataStore interface {
	Describe(ctx context.Context, table string) (store.TableDescriptor, error)
	ScanKeys(ctx context.Context, desc store.TableDescriptor, cursor store.Cursor) (store.KeyPage, error)
	CountOnly(ctx context.Context, table string, cursor store.Cursor) (store.CountPage, error)
	BatchDelete(ctx context.Context, desc store.TableDescriptor, keys []store.ItemKey) ([]store.ItemKey, error)
}

// RunPlan is the immutable picture of a run built before any mutation.
type RunPlan struct {
	Mode      Mode
	Targets   []string
	Preserved []string
	Counts    map[string]int64
	Total     int64
}

// TableStatus describes how far a table got during a run.
type TableStatus string

const (
	// StatusPlanned means the table was counted but not mutated (dry run).
	StatusPlanned TableStatus = "planned"
	// StatusWiped means every observed key was deleted.
	StatusWiped TableStatus = "wiped"
	// StatusPartial means deletion started but did not drain the table.
	StatusPartial TableStatus = "partial"
	// StatusSkipped means the table was never opened because an earlier
	// table failed or the run was aborted.
	StatusSkipped TableStatus = "skipped"
	// StatusFailed means the table errored before any key was deleted.
	StatusFailed TableStatus = "failed"
)

// TableResult is the per-table line of a RunReport.
type TableResult struct {
	Table   string      `yaml:"table"`
	Status  TableStatus `yaml:"status"`
	Counted int64       `yaml:"counted"`
	Deleted int64       `yaml:"deleted"`
	Error   string      `yaml:"error,omitempty"`
}

// RunReport is the truthful record of what a run did.
type RunReport struct {
	RunID    string        `yaml:"run_id"`
	Mode     string        `yaml:"mode"`
	PerTable []TableResult `yaml:"tables"`
	Total    int64         `yaml:"total_deleted"`
	Aborted  bool          `yaml:"aborted"`
}

// append records one table outcome and folds it into the total.
func (r *RunReport) append(res TableResult) {
	r.PerTable = append(r.PerTable, res)
	r.Total += res.Deleted
}
