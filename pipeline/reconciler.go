package pipeline

import (
	"context"
	"time"

	"caravel/cache"
	"caravel/chain"
	"caravel/types"
)

// Reconciler restores agreement between the cache and the authoritative
// remote registry before a deployment starts or resumes. Remote state is
// adopted, never reversed: a registration observed on the ledger stays
// registered locally.
type Reconciler struct {
	cache    *cache.DeployCache
	ledger   chain.LedgerSvcApi
	ledgerId string
	now      func() time.Time
}

func NewReconciler(dc *cache.DeployCache, ledger chain.LedgerSvcApi, ledgerId string) *Reconciler {
	return &Reconciler{
		cache:    dc,
		ledger:   ledger,
		ledgerId: ledgerId,
		now:      time.Now,
	}
}

// Run repairs the cache against the remote registry. The count comparison is
// only a cheap drift check: equal counts can still hide disjoint registered
// sets, so a caller that has outside evidence of drift (a ledger conflict)
// must pass force to skip the fast path and compare per index.
func (r *Reconciler) Run(ctx context.Context, force bool) (*ReconcileReport, error) {
	remoteCount, err := r.ledger.GetRegisteredCount(ctx, r.ledgerId)
	if err != nil {
		// proceeding without reconciliation risks duplicate registrations
		return nil, types.Wrap(types.ErrReconcileFailed, err)
	}

	report := &ReconcileReport{
		RemoteCount: remoteCount,
		LocalCount:  r.cache.RegisteredCount(),
	}
	log.Infof("reconcile: remote registry holds %d entries, cache believes %d", report.RemoteCount, report.LocalCount)

	if force || remoteCount != report.LocalCount {
		// a prior run's confirmation may have been lost locally: entries the
		// cache thinks are unregistered could already be on chain
		for _, index := range r.cache.PendingRegistrations() {
			remote, err := r.ledger.GetRegistered(ctx, r.ledgerId, uint64(index))
			if err != nil {
				return nil, types.Wrap(types.ErrReconcileFailed, err)
			}
			if remote == nil {
				continue
			}
			log.Infof("adopting registration for asset %d from the ledger", index)
			r.cache.AdoptRemote(index, *remote)
			report.Adopted = append(report.Adopted, index)
		}

		// the opposite drift: entries the cache claims registered that the
		// remote registry does not hold
		for _, index := range r.cache.RegisteredIndices() {
			remote, err := r.ledger.GetRegistered(ctx, r.ledgerId, uint64(index))
			if err != nil {
				return nil, types.Wrap(types.ErrReconcileFailed, err)
			}
			if remote == nil {
				log.Warnf("asset %d is marked on-chain locally but not registered, clearing", index)
				r.cache.ClearRegistered(index)
				report.Cleared = append(report.Cleared, index)
			}
		}
	}

	report.At = r.now()
	r.cache.MarkReconciled(report.At)
	if err = r.cache.Persist(); err != nil {
		return nil, err
	}
	return report, nil
}
