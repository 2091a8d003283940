package chain

import (
	"context"
	"time"

	"caravel/types"

	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("chain")

var Blocktime = 1 * time.Second

// ledger service provides access to the collection registry chain: batch
// submission, registry query, confirmation polling.
type LedgerSvc struct {
	ctx      context.Context
	client   *registryClient
	submitCh chan submitJob
	stopCh   chan struct{}
}

type submitJob struct {
	ledgerId   string
	entries    []types.RegistryEntry
	resultChan chan submitJobResult
}

type submitJobResult struct {
	txHash string
	err    error
}

type LedgerSvcApi interface {
	Stop(ctx context.Context) error
	GetRegisteredCount(ctx context.Context, ledgerId string) (uint64, error)
	GetRegistered(ctx context.Context, ledgerId string, index uint64) (*types.RegistryEntry, error)
	GetCollectionState(ctx context.Context, ledgerId string) (*types.CollectionState, error)
	SubmitBatch(ctx context.Context, ledgerId string, entries []types.RegistryEntry) (string, error)
}

func NewLedgerSvc(ctx context.Context, ledgerAddress string) (*LedgerSvc, error) {
	log.Debugf("initialize ledger client")

	client, err := newRegistryClient(ledgerAddress)
	if err != nil {
		return nil, types.Wrap(types.ErrCreateLedgerServiceFailed, err)
	}

	svc := &LedgerSvc{
		ctx:      ctx,
		client:   client,
		submitCh: make(chan submitJob, 1),
		stopCh:   make(chan struct{}),
	}
	go svc.submitLoop(ctx)
	return svc, nil
}

// loop for batch submissions to proceed one at a time. Concurrent writers
// would race on the registry count and trigger ledger-level rejections.
func (l *LedgerSvc) submitLoop(ctx context.Context) {
	log.Info("start batch submit loop...")
	for {
		select {
		case job := <-l.submitCh:
			txHash, err := l.submitAndConfirm(ctx, job.ledgerId, job.entries)
			job.resultChan <- submitJobResult{
				txHash: txHash,
				err:    err,
			}
		case <-l.stopCh:
			log.Info("batch submit loop stopped.")
			return
		case <-ctx.Done():
			return
		}
	}
}

func (l *LedgerSvc) submitAndConfirm(ctx context.Context, ledgerId string, entries []types.RegistryEntry) (string, error) {
	txHash, status, err := l.client.submitBatch(ctx, ledgerId, entries)
	if err != nil {
		return "", err
	}

	for status == types.TxPending {
		select {
		case <-time.After(Blocktime):
		case <-ctx.Done():
			return "", types.Wrap(types.ErrLedgerTransient, ctx.Err())
		}
		status, err = l.client.txStatus(ctx, ledgerId, txHash)
		if err != nil {
			return "", err
		}
	}

	if status == types.TxRejected {
		return "", types.Wrapf(types.ErrTxRejected, "tx %s", txHash)
	}
	log.Debugf("batch tx %s confirmed", txHash)
	return txHash, nil
}

func (l *LedgerSvc) Stop(ctx context.Context) error {
	close(l.stopCh)
	return nil
}

func (l *LedgerSvc) GetRegisteredCount(ctx context.Context, ledgerId string) (uint64, error) {
	state, err := l.GetCollectionState(ctx, ledgerId)
	if err != nil {
		return 0, err
	}
	return state.RegisteredCount, nil
}

func (l *LedgerSvc) GetRegistered(ctx context.Context, ledgerId string, index uint64) (*types.RegistryEntry, error) {
	return l.client.getRegistered(ctx, ledgerId, index)
}

func (l *LedgerSvc) GetCollectionState(ctx context.Context, ledgerId string) (*types.CollectionState, error) {
	return l.client.getCollectionState(ctx, ledgerId)
}

// SubmitBatch hands the batch to the submit loop and blocks until the
// registration transaction is confirmed or fails.
func (l *LedgerSvc) SubmitBatch(ctx context.Context, ledgerId string, entries []types.RegistryEntry) (string, error) {
	resultChan := make(chan submitJobResult, 1)
	select {
	case l.submitCh <- submitJob{
		ledgerId:   ledgerId,
		entries:    entries,
		resultChan: resultChan,
	}:
	case <-ctx.Done():
		return "", types.Wrap(types.ErrLedgerTransient, ctx.Err())
	}

	select {
	case result := <-resultChan:
		return result.txHash, result.err
	case <-ctx.Done():
		return "", types.Wrap(types.ErrLedgerTransient, ctx.Err())
	}
}
