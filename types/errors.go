package types

import "cosmossdk.io/errors"

var (
	ModuleCatalog = "catalog"

	ErrInvalidCatalog   = errors.Register(ModuleCatalog, 10000, "the asset catalog is malformed")
	ErrReadAssetFailed  = errors.Register(ModuleCatalog, 10001, "failed to read the asset content")
	ErrMediaNotFound    = errors.Register(ModuleCatalog, 10002, "the referenced media file does not exist")
	ErrAssetOutOfRange  = errors.Register(ModuleCatalog, 10003, "the asset index is out of range")
	ErrInvalidAssetMeta = errors.Register(ModuleCatalog, 10004, "the asset metadata record is malformed")

	ModuleCache = "cache"

	ErrCacheCorrupt       = errors.Register(ModuleCache, 10100, "the deployment cache cannot be parsed, repair or discard it")
	ErrPersistCacheFailed = errors.Register(ModuleCache, 10101, "failed to persist the deployment cache")
	ErrLockCacheFailed    = errors.Register(ModuleCache, 10102, "failed to acquire the deployment cache lock")

	ModuleStore = "store"

	ErrOpenBackendFailed = errors.Register(ModuleStore, 10200, "failed to open the storage backend")
	ErrStorageTransient  = errors.Register(ModuleStore, 10201, "the storage backend is temporarily unavailable")
	ErrStorageRejected   = errors.Register(ModuleStore, 10202, "the storage backend rejected the upload")

	ModuleChain = "chain"

	ErrCreateLedgerServiceFailed = errors.Register(ModuleChain, 10300, "failed to create the ledger service")
	ErrLedgerTransient           = errors.Register(ModuleChain, 10301, "the ledger is temporarily unavailable")
	ErrLedgerConflict            = errors.Register(ModuleChain, 10302, "the ledger state conflicts with the submitted batch")
	ErrLedgerFatal               = errors.Register(ModuleChain, 10303, "the ledger rejected the request permanently")
	ErrTxRejected                = errors.Register(ModuleChain, 10304, "the registration transaction was rejected")

	ModulePipeline = "pipeline"

	ErrReconcileFailed = errors.Register(ModulePipeline, 10400, "failed to reconcile the cache against the ledger")
	ErrUploadFailed    = errors.Register(ModulePipeline, 10401, "failed to upload one or more assets")
	ErrRegisterFailed  = errors.Register(ModulePipeline, 10402, "failed to register one or more batches")
)

func Wrap(err0 error, err1 error) error {
	return errors.Wrapf(err0, ", due to %v", err1)
}

func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// IsTransient reports whether err is a retryable storage or ledger failure.
func IsTransient(err error) bool {
	return errors.IsOf(err, ErrStorageTransient, ErrLedgerTransient)
}
