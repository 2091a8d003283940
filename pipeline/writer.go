package pipeline

import (
	"context"
	"fmt"

	sdkerrors "cosmossdk.io/errors"

	"caravel/cache"
	"caravel/chain"
	"caravel/types"
)

// Writer drains pending registrations onto the ledger in ascending-index
// batches. Batches are submitted sequentially; each one is confirmed and
// recorded into the cache before the next is sent, so a crash loses at most
// one unfinished batch.
type Writer struct {
	cache      *cache.DeployCache
	ledger     chain.LedgerSvcApi
	reconciler *Reconciler
	ledgerId   string
	capacity   int
	retry      RetryPolicy
}

func NewWriter(dc *cache.DeployCache, ledger chain.LedgerSvcApi, reconciler *Reconciler, ledgerId string, capacity int, retry RetryPolicy) *Writer {
	if capacity <= 0 {
		capacity = 10
	}
	return &Writer{
		cache:      dc,
		ledger:     ledger,
		reconciler: reconciler,
		ledgerId:   ledgerId,
		capacity:   capacity,
		retry:      retry,
	}
}

func (w *Writer) Run(ctx context.Context) (*StageReport, error) {
	report := &StageReport{Name: "register"}

	pending := w.cache.PendingRegistrations()
	if len(pending) == 0 {
		log.Info("no pending registrations")
		return report, nil
	}
	log.Infof("registering %d entries in batches of %d", len(pending), w.capacity)

	reconciled := false
	for len(pending) > 0 {
		if err := ctx.Err(); err != nil {
			return report, types.Wrap(types.ErrRegisterFailed, err)
		}

		size := w.capacity
		if size > len(pending) {
			size = len(pending)
		}
		batch := pending[:size]

		entries, err := w.buildEntries(batch)
		if err != nil {
			return report, err
		}

		op := fmt.Sprintf("register batch [%d..%d]", batch[0], batch[len(batch)-1])
		err = w.retry.Do(ctx, op, types.IsTransient, func() error {
			_, serr := w.ledger.SubmitBatch(ctx, w.ledgerId, entries)
			return serr
		})
		if sdkerrors.IsOf(err, types.ErrLedgerConflict) {
			// the cache is out of sync with the remote registry; restore
			// agreement once, then retry. A second conflict is fatal. The
			// conflict is proof of drift even when the counts agree, so
			// force the per-index comparison.
			if reconciled {
				return report, types.Wrap(types.ErrRegisterFailed, err)
			}
			log.Warnf("%s conflicted, reconciling against the ledger", op)
			if _, rerr := w.reconciler.Run(ctx, true); rerr != nil {
				return report, rerr
			}
			reconciled = true
			pending = w.cache.PendingRegistrations()
			continue
		}
		if err != nil {
			return report, types.Wrap(types.ErrRegisterFailed, err)
		}

		w.cache.RecordRegistered(batch)
		if err = w.cache.Persist(); err != nil {
			return report, err
		}
		report.Succeeded += len(batch)
		reconciled = false
		pending = pending[size:]
	}

	return report, nil
}

func (w *Writer) buildEntries(batch []int) ([]types.RegistryEntry, error) {
	entries := make([]types.RegistryEntry, 0, len(batch))
	for _, index := range batch {
		entry, ok := w.cache.Entry(index)
		if !ok || !entry.Uploaded() {
			return nil, types.Wrapf(types.ErrRegisterFailed, "asset %d is not fully uploaded", index)
		}
		entries = append(entries, types.RegistryEntry{
			Index:       uint64(index),
			MediaUri:    entry.MediaUri,
			MetadataUri: entry.MetadataUri,
		})
	}
	return entries, nil
}
