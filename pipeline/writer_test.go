package pipeline

import (
	"context"
	"fmt"
	"sort"
	"testing"

	"caravel/cache"
	"caravel/types"

	sdkerrors "cosmossdk.io/errors"
	"github.com/stretchr/testify/require"
)

func uploadedCache(t *testing.T, indices ...int) *cache.DeployCache {
	t.Helper()

	dc := makeCache(t)
	// record out of catalog order on purpose
	sort.Sort(sort.Reverse(sort.IntSlice(indices)))
	for _, i := range indices {
		dc.RecordUpload(i, fmt.Sprintf("ipfs://m%d", i), fmt.Sprintf("ipfs://j%d", i), fmt.Sprintf("h%d", i))
	}
	return dc
}

func newTestWriter(dc *cache.DeployCache, ledger *fakeLedger, capacity int) *Writer {
	reconciler := NewReconciler(dc, ledger, "col-test")
	return NewWriter(dc, ledger, reconciler, "col-test", capacity, instantRetry(3))
}

func TestWriterBatchesAscending(t *testing.T) {
	dc := uploadedCache(t, 0, 1, 2, 3, 4)
	ledger := newFakeLedger()

	writer := newTestWriter(dc, ledger, 2)
	report, err := writer.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 5, report.Succeeded)
	require.Equal(t, []int{2, 2, 1}, ledger.batchSizes())

	// strictly ascending within and across batches
	var last = -1
	for _, batch := range ledger.batches {
		for _, entry := range batch {
			require.Greater(t, int(entry.Index), last)
			last = int(entry.Index)
		}
	}

	count, err := ledger.GetRegisteredCount(context.Background(), "col-test")
	require.NoError(t, err)
	require.Equal(t, uint64(5), count)
	require.Empty(t, dc.PendingRegistrations())
}

func TestWriterRecordsPerBatch(t *testing.T) {
	dc := uploadedCache(t, 0, 1, 2)
	ledger := newFakeLedger()

	writer := newTestWriter(dc, ledger, 2)
	_, err := writer.Run(context.Background())
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		entry, _ := dc.Entry(i)
		require.True(t, entry.OnChain, "asset %d", i)
	}
}

func TestWriterConflictTriggersReconcile(t *testing.T) {
	dc := uploadedCache(t, 0, 1)
	ledger := newFakeLedger()
	// a prior run registered 0 but the confirmation was lost locally
	ledger.register(types.RegistryEntry{Index: 0, MediaUri: "ipfs://m0", MetadataUri: "ipfs://j0"})

	writer := newTestWriter(dc, ledger, 10)
	report, err := writer.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Succeeded)

	entry, _ := dc.Entry(0)
	require.True(t, entry.OnChain)
	entry, _ = dc.Entry(1)
	require.True(t, entry.OnChain)

	// only index 1 was actually submitted after reconciliation
	require.Equal(t, []int{1}, ledger.batchSizes())
	require.Equal(t, uint64(1), ledger.batches[0][0].Index)
}

func TestWriterConflictRepairsEqualCountDrift(t *testing.T) {
	// registered counts agree but the sets are disjoint: the cache falsely
	// claims index 0 while the ledger actually holds index 1
	dc := uploadedCache(t, 0, 1)
	dc.RecordRegistered([]int{0})
	ledger := newFakeLedger()
	ledger.register(types.RegistryEntry{Index: 1, MediaUri: "ipfs://m1", MetadataUri: "ipfs://j1"})

	writer := newTestWriter(dc, ledger, 10)
	report, err := writer.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Succeeded)

	// the conflict-triggered reconcile adopted index 1 and cleared the false
	// claim on index 0, which was then registered for real
	entry, _ := dc.Entry(0)
	require.True(t, entry.OnChain)
	entry, _ = dc.Entry(1)
	require.True(t, entry.OnChain)
	require.Equal(t, []int{1}, ledger.batchSizes())
	require.Equal(t, uint64(0), ledger.batches[0][0].Index)
	require.Empty(t, dc.PendingRegistrations())
}

func TestWriterRepeatedConflictFatal(t *testing.T) {
	dc := uploadedCache(t, 0, 1)
	ledger := newFakeLedger()
	ledger.conflictLeft = -1 // conflict forever

	writer := newTestWriter(dc, ledger, 10)
	_, err := writer.Run(context.Background())
	require.Error(t, err)
	require.True(t, sdkerrors.IsOf(err, types.ErrRegisterFailed))

	entry, _ := dc.Entry(0)
	require.False(t, entry.OnChain)
}

func TestWriterTransientRetry(t *testing.T) {
	dc := uploadedCache(t, 0)
	ledger := newFakeLedger()
	ledger.transientLeft = 2

	writer := newTestWriter(dc, ledger, 10)
	report, err := writer.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Succeeded)
}

func TestWriterTransientExhaustedAborts(t *testing.T) {
	dc := uploadedCache(t, 0)
	ledger := newFakeLedger()
	ledger.transientLeft = 10

	writer := newTestWriter(dc, ledger, 10)
	_, err := writer.Run(context.Background())
	require.Error(t, err)
	require.True(t, sdkerrors.IsOf(err, types.ErrRegisterFailed))

	// nothing recorded speculatively
	entry, _ := dc.Entry(0)
	require.False(t, entry.OnChain)
}

func TestWriterNothingPending(t *testing.T) {
	dc := makeCache(t)
	ledger := newFakeLedger()

	writer := newTestWriter(dc, ledger, 2)
	report, err := writer.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, report.Succeeded)
	require.Empty(t, ledger.batchSizes())
}
