package wipe

import (
	"context"

	"github.com/kingsroom/scrapemeta/pkg/tables"
)

// BuildPlan gathers counts for every target table and returns the
// immutable plan for the run. Planning never mutates, so two consecutive
// plans over the same stable state are identical.
func BuildPlan(ctx context.Context, s MetadataStore, inv *tables.Inventory, mode Mode) (*RunPlan, error) {
	probe := NewProbe(s)
	targets := inv.Targets()

	plan := &RunPlan{
		Mode:      mode,
		Targets:   targets,
		Preserved: []string{inv.CacheIndex()},
		Counts:    make(map[string]int64, len(targets)),
	}

	for _, table := range targets {
		count, err := probe.Count(ctx, table)
		if err != nil {
			return nil, err
		}
		plan.Counts[table] = count
		plan.Total += count
	}

	return plan, nil
}
