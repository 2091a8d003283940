package pipeline

import (
	"context"

	"caravel/cache"
	"caravel/catalog"
	"caravel/chain"
	"caravel/config"
	"caravel/store"
	"caravel/types"
	"caravel/utils"
)

type Mode int

const (
	// ModeDeploy runs the full pipeline: reconcile, upload, register.
	ModeDeploy = Mode(iota)
	// ModeUpload stops after the upload stage, leaving the ledger untouched.
	ModeUpload
	// ModeVerify reconciles and reports drift without mutating remote state.
	ModeVerify
)

// Driver sequences the deployment stages: reconcile the cache against the
// ledger, upload pending assets, drain pending registrations.
type Driver struct {
	cat        *catalog.Catalog
	cache      *cache.DeployCache
	reconciler *Reconciler
	uploader   *Uploader
	writer     *Writer
	mode       Mode
}

// NewDriver wires the stages. The catalog may be nil in ModeVerify, which
// never touches local assets.
func NewDriver(cfg *config.Deployer, cat *catalog.Catalog, dc *cache.DeployCache, ledger chain.LedgerSvcApi, backend store.StoreBackend, mode Mode) (*Driver, error) {
	if cat == nil && mode != ModeVerify {
		return nil, types.Wrapf(types.ErrInvalidCatalog, "an asset catalog is required to deploy")
	}

	ledgerId := dc.LedgerId()
	if ledgerId == "" {
		ledgerId = cfg.Ledger.CollectionId
		dc.SetLedgerId(ledgerId)
	} else if cfg.Ledger.CollectionId != "" && cfg.Ledger.CollectionId != ledgerId {
		return nil, types.Wrapf(types.ErrCacheCorrupt,
			"cache targets collection %s but config names %s, refusing to mix deployments", ledgerId, cfg.Ledger.CollectionId)
	}
	if ledgerId == "" {
		return nil, types.Wrapf(types.ErrInvalidCatalog, "no collection id configured")
	}

	reconciler := NewReconciler(dc, ledger, ledgerId)

	uploadRetry := RetryPolicy{
		MaxAttempts: cfg.Upload.MaxAttempts,
		BaseDelay:   cfg.Upload.BaseDelay,
		MaxDelay:    cfg.Upload.MaxDelay,
		Jitter:      0.2,
	}
	registerRetry := RetryPolicy{
		MaxAttempts: cfg.Registry.MaxAttempts,
		BaseDelay:   cfg.Registry.BaseDelay,
		MaxDelay:    cfg.Registry.MaxDelay,
		Jitter:      0.2,
	}

	return &Driver{
		cat:        cat,
		cache:      dc,
		reconciler: reconciler,
		uploader:   NewUploader(cat, dc, backend, cfg.Upload.Workers, uploadRetry),
		writer:     NewWriter(dc, ledger, reconciler, ledgerId, cfg.Registry.BatchCapacity, registerRetry),
		mode:       mode,
	}, nil
}

// Run executes the pipeline and reports the aggregate outcome. A returned
// error is a cross-cutting failure that aborted the run; per-asset failures
// are collected in the report instead.
func (d *Driver) Run(ctx context.Context) (*RunReport, error) {
	report := &RunReport{
		RunId:      utils.GenerateRunId(),
		LedgerId:   d.cache.LedgerId(),
		VerifyOnly: d.mode == ModeVerify,
	}
	if d.cat != nil {
		report.CatalogSize = d.cat.Len()
	}
	log.Infof("run %s: deploying %d assets to collection %s", report.RunId, report.CatalogSize, report.LedgerId)

	reconcile, err := d.reconciler.Run(ctx, false)
	if err != nil {
		return report, err
	}
	report.Reconcile = reconcile

	if d.mode == ModeVerify {
		return report, nil
	}

	report.Upload, err = d.uploader.Run(ctx)
	if err != nil {
		return report, err
	}

	if d.mode == ModeUpload {
		return report, nil
	}

	// assets that failed to upload are excluded from registration and kept in
	// the report; everything that did upload still moves forward
	report.Register, err = d.writer.Run(ctx)
	if err != nil {
		return report, err
	}

	return report, nil
}
