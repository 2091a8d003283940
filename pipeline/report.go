package pipeline

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
)

// AssetFailure is a per-asset fatal failure, collected rather than thrown so
// one bad asset does not abort the rest of the run.
type AssetFailure struct {
	Index int
	Cause error
}

type StageReport struct {
	Name      string
	Succeeded int
	Failed    int
	Skipped   int
	Failures  []AssetFailure
}

type ReconcileReport struct {
	RemoteCount uint64
	LocalCount  uint64
	Adopted     []int
	Cleared     []int
	At          time.Time
}

// InSync reports whether the cache agreed with the remote registry before any
// repair was applied.
func (r *ReconcileReport) InSync() bool {
	return r.RemoteCount == r.LocalCount && len(r.Adopted) == 0 && len(r.Cleared) == 0
}

type RunReport struct {
	RunId       string
	LedgerId    string
	CatalogSize int
	VerifyOnly  bool

	Reconcile *ReconcileReport
	Upload    *StageReport
	Register  *StageReport
}

// Fatal reports whether any asset failed fatally during the run.
func (r *RunReport) Fatal() bool {
	for _, stage := range []*StageReport{r.Upload, r.Register} {
		if stage != nil && stage.Failed > 0 {
			return true
		}
	}
	return false
}

// Render formats the per-stage outcome summary for the operator.
func (r *RunReport) Render() string {
	t := table.NewWriter()
	t.SetTitle(fmt.Sprintf("run %s / collection %s", r.RunId, r.LedgerId))
	t.AppendHeader(table.Row{"stage", "succeeded", "failed", "skipped"})

	if r.Reconcile != nil {
		drift := "in sync"
		if !r.Reconcile.InSync() {
			drift = fmt.Sprintf("drift: %d adopted, %d cleared", len(r.Reconcile.Adopted), len(r.Reconcile.Cleared))
		}
		t.AppendRow(table.Row{"reconcile", fmt.Sprintf("remote=%d local=%d", r.Reconcile.RemoteCount, r.Reconcile.LocalCount), "", drift})
	}
	for _, stage := range []*StageReport{r.Upload, r.Register} {
		if stage == nil {
			continue
		}
		t.AppendRow(table.Row{stage.Name, stage.Succeeded, stage.Failed, stage.Skipped})
	}

	out := t.Render()
	for _, stage := range []*StageReport{r.Upload, r.Register} {
		if stage == nil {
			continue
		}
		for _, failure := range stage.Failures {
			out += fmt.Sprintf("\n%s failed for asset %d: %v", stage.Name, failure.Index, failure.Cause)
		}
	}
	return out
}
