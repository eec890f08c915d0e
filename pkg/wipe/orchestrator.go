package wipe

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	customerrors "github.com/kingsroom/scrapemeta/pkg/errors"
	"github.com/kingsroom/scrapemeta/pkg/tables"
)

// Orchestrator composes the wipe protocol: banner, counts, confirmation,
// ordered erase, summary. Exactly one table is wiped at a time, in the
// inventory's children-first order.
type Orchestrator struct {
	store    MetadataStore
	inv      *tables.Inventory
	gate     *Gate
	out      io.Writer
	log      logrus.FieldLogger
	identity string
	sleep    func(time.Duration)
	newRunID func() string
}

// NewOrchestrator wires an orchestrator. out receives the operator-facing
// lines; diagnostics go to the logger.
func NewOrchestrator(s MetadataStore, inv *tables.Inventory, gate *Gate, out io.Writer) *Orchestrator {
	return &Orchestrator{
		store:    s,
		inv:      inv,
		gate:     gate,
		out:      out,
		log:      logrus.StandardLogger(),
		sleep:    time.Sleep,
		newRunID: uuid.NewString,
	}
}

// WithLogger overrides the diagnostic logger.
func (o *Orchestrator) WithLogger(log logrus.FieldLogger) *Orchestrator {
	o.log = log
	return o
}

// WithIdentity sets the caller ARN shown in the banner.
func (o *Orchestrator) WithIdentity(arn string) *Orchestrator {
	o.identity = arn
	return o
}

// WithSleep overrides the backoff sleep used by the eraser.
func (o *Orchestrator) WithSleep(sleep func(time.Duration)) *Orchestrator {
	o.sleep = sleep
	return o
}

// Run executes one wipe in the given mode and returns a truthful report.
// The report is valid even when err is non-nil. An operator abort is
// reported through ErrOperatorAbort; callers treat it as a clean exit.
func (o *Orchestrator) Run(ctx context.Context, mode Mode) (*RunReport, error) {
	report := &RunReport{
		RunID: o.newRunID(),
		Mode:  mode.String(),
	}

	fmt.Fprintf(o.out, "== scrapemeta wipe (%s) ==\n", mode)
	fmt.Fprintf(o.out, "run:       %s\n", report.RunID)
	if o.identity != "" {
		fmt.Fprintf(o.out, "caller:    %s\n", o.identity)
	}
	fmt.Fprintf(o.out, "preserved: %s\n", o.inv.CacheIndex())

	plan, err := BuildPlan(ctx, o.store, o.inv, mode)
	if err != nil {
		report.Aborted = true
		o.log.WithError(err).Error("failed to gather counts")
		return report, err
	}

	for _, table := range plan.Targets {
		fmt.Fprintf(o.out, "%s: %d\n", table, plan.Counts[table])
	}
	fmt.Fprintf(o.out, "TOTAL: %d\n", plan.Total)

	if plan.Total == 0 {
		fmt.Fprintln(o.out, "nothing to do")
		for _, table := range plan.Targets {
			report.append(TableResult{Table: table, Status: StatusPlanned})
		}
		return report, nil
	}

	if mode == ModeDryRun {
		for _, table := range plan.Targets {
			fmt.Fprintf(o.out, "would delete %d from %s\n", plan.Counts[table], table)
			report.append(TableResult{
				Table:   table,
				Status:  StatusPlanned,
				Counted: plan.Counts[table],
			})
		}
		return report, nil
	}

	if err := o.gate.Confirm(); err != nil {
		report.Aborted = true
		if customerrors.IsOperatorAbort(err) {
			fmt.Fprintln(o.out, "aborted by user")
			o.markSkipped(report, plan, 0)
			return report, err
		}
		return report, err
	}

	for i, table := range plan.Targets {
		result, err := o.eraseTable(ctx, table, plan.Counts[table])
		report.append(result)
		if err != nil {
			report.Aborted = true
			o.markSkipped(report, plan, i+1)
			o.writeSummary(report)
			return report, err
		}
	}

	o.writeSummary(report)
	return report, nil
}

// eraseTable describes and drains one table, rendering in-place progress.
func (o *Orchestrator) eraseTable(ctx context.Context, table string, counted int64) (TableResult, error) {
	result := TableResult{Table: table, Counted: counted}

	desc, err := o.store.Describe(ctx, table)
	if err != nil {
		result.Status = StatusFailed
		result.Error = err.Error()
		o.log.WithError(err).WithField("table", table).Error("describe failed")
		return result, err
	}

	eraser := NewEraser(o.store).
		WithSleep(o.sleep).
		WithProgress(func(table string, deleted int64) {
			fmt.Fprintf(o.out, "\r%s: deleted %d", table, deleted)
		})

	deleted, err := eraser.Erase(ctx, desc)
	result.Deleted = deleted
	fmt.Fprintf(o.out, "\r%s: deleted %d\n", table, deleted)

	if err != nil {
		if deleted > 0 {
			result.Status = StatusPartial
		} else {
			result.Status = StatusFailed
		}
		result.Error = err.Error()
		o.log.WithError(err).WithField("table", table).Error("erase failed")
		return result, err
	}

	result.Status = StatusWiped
	return result, nil
}

// markSkipped records every target from index from onward as untouched.
func (o *Orchestrator) markSkipped(report *RunReport, plan *RunPlan, from int) {
	for _, table := range plan.Targets[from:] {
		report.append(TableResult{
			Table:   table,
			Status:  StatusSkipped,
			Counted: plan.Counts[table],
		})
	}
}

func (o *Orchestrator) writeSummary(report *RunReport) {
	fmt.Fprintln(o.out, "== summary ==")
	for _, res := range report.PerTable {
		if res.Error != "" {
			fmt.Fprintf(o.out, "%s: %s, deleted %d (%s)\n", res.Table, res.Status, res.Deleted, res.Error)
			continue
		}
		fmt.Fprintf(o.out, "%s: %s, deleted %d\n", res.Table, res.Status, res.Deleted)
	}
	fmt.Fprintf(o.out, "TOTAL: %d deleted\n", report.Total)
	if report.Aborted {
		fmt.Fprintln(o.out, "run aborted before completion")
	}
}
