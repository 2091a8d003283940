package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"caravel/cache"
	"caravel/catalog"
	"caravel/types"
	"caravel/utils"

	"github.com/stretchr/testify/require"
)

// fakeBackend is an in-memory StoreBackend with fault injection.
type fakeBackend struct {
	lk sync.Mutex

	stores        int
	transientLeft int
	rejectMatch   func(content []byte) bool
}

func (b *fakeBackend) Id() string   { return "fake-backend" }
func (b *fakeBackend) Type() string { return "fake" }
func (b *fakeBackend) Open() error  { return nil }
func (b *fakeBackend) Close() error { return nil }

func (b *fakeBackend) Store(ctx context.Context, reader io.Reader, contentType string) (string, error) {
	content, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}

	b.lk.Lock()
	defer b.lk.Unlock()

	if b.transientLeft > 0 {
		b.transientLeft--
		return "", types.Wrapf(types.ErrStorageTransient, "injected")
	}
	if b.rejectMatch != nil && b.rejectMatch(content) {
		return "", types.Wrapf(types.ErrStorageRejected, "injected")
	}

	b.stores++
	contentCid, err := utils.CalculateCid(content)
	if err != nil {
		return "", err
	}
	return utils.UriSchemeIpfs + contentCid.String(), nil
}

func (b *fakeBackend) storeCount() int {
	b.lk.Lock()
	defer b.lk.Unlock()
	return b.stores
}

// fakeLedger is an in-memory collection registry with fault injection.
type fakeLedger struct {
	lk sync.Mutex

	entries map[uint64]types.RegistryEntry
	batches [][]types.RegistryEntry

	unreachable   bool
	transientLeft int
	conflictLeft  int
	queryCalls    int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		entries: make(map[uint64]types.RegistryEntry),
	}
}

func (l *fakeLedger) Stop(ctx context.Context) error { return nil }

func (l *fakeLedger) GetRegisteredCount(ctx context.Context, ledgerId string) (uint64, error) {
	l.lk.Lock()
	defer l.lk.Unlock()

	if l.unreachable {
		return 0, types.Wrapf(types.ErrLedgerTransient, "injected")
	}
	return uint64(len(l.entries)), nil
}

func (l *fakeLedger) GetRegistered(ctx context.Context, ledgerId string, index uint64) (*types.RegistryEntry, error) {
	l.lk.Lock()
	defer l.lk.Unlock()

	if l.unreachable {
		return nil, types.Wrapf(types.ErrLedgerTransient, "injected")
	}
	l.queryCalls++
	entry, ok := l.entries[index]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

func (l *fakeLedger) GetCollectionState(ctx context.Context, ledgerId string) (*types.CollectionState, error) {
	count, err := l.GetRegisteredCount(ctx, ledgerId)
	if err != nil {
		return nil, err
	}
	return &types.CollectionState{
		LedgerId:        ledgerId,
		RegisteredCount: count,
	}, nil
}

func (l *fakeLedger) SubmitBatch(ctx context.Context, ledgerId string, entries []types.RegistryEntry) (string, error) {
	l.lk.Lock()
	defer l.lk.Unlock()

	if l.unreachable || l.transientLeft > 0 {
		if l.transientLeft > 0 {
			l.transientLeft--
		}
		return "", types.Wrapf(types.ErrLedgerTransient, "injected")
	}
	if l.conflictLeft != 0 {
		if l.conflictLeft > 0 {
			l.conflictLeft--
		}
		return "", types.Wrapf(types.ErrLedgerConflict, "injected")
	}
	for _, entry := range l.entries {
		for _, submitted := range entries {
			if entry.Index == submitted.Index {
				return "", types.Wrapf(types.ErrLedgerConflict, "slot %d already filled", entry.Index)
			}
		}
	}

	batch := make([]types.RegistryEntry, len(entries))
	copy(batch, entries)
	l.batches = append(l.batches, batch)
	for _, entry := range entries {
		l.entries[entry.Index] = entry
	}
	return fmt.Sprintf("tx-%d", len(l.batches)), nil
}

func (l *fakeLedger) batchSizes() []int {
	l.lk.Lock()
	defer l.lk.Unlock()

	var sizes []int
	for _, batch := range l.batches {
		sizes = append(sizes, len(batch))
	}
	return sizes
}

func (l *fakeLedger) register(entries ...types.RegistryEntry) {
	l.lk.Lock()
	defer l.lk.Unlock()

	for _, entry := range entries {
		l.entries[entry.Index] = entry
	}
}

// instantRetry keeps retry semantics but never actually sleeps.
func instantRetry(maxAttempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: maxAttempts,
		BaseDelay:   1,
		MaxDelay:    1,
		Sleep: func(ctx context.Context, d time.Duration) error {
			return ctx.Err()
		},
	}
}

func writeTestAsset(t *testing.T, dir string, index int, media []byte) {
	t.Helper()

	mediaName := fmt.Sprintf("%d.png", index)
	err := os.WriteFile(filepath.Join(dir, mediaName), media, 0644)
	require.NoError(t, err)

	metadata := fmt.Sprintf(`{"name": "Asset #%d", "media": %q}`, index, mediaName)
	err = os.WriteFile(filepath.Join(dir, fmt.Sprintf("%d.json", index)), []byte(metadata), 0644)
	require.NoError(t, err)
}

func makeCatalog(t *testing.T, size int) (*catalog.Catalog, string) {
	t.Helper()

	dir := t.TempDir()
	for i := 0; i < size; i++ {
		writeTestAsset(t, dir, i, []byte{0xca, byte(i)})
	}

	cat, err := catalog.Load(dir)
	require.NoError(t, err)
	return cat, dir
}

func makeCache(t *testing.T) *cache.DeployCache {
	t.Helper()

	dc, err := cache.Load(filepath.Join(t.TempDir(), "cache.json"))
	require.NoError(t, err)
	dc.SetLedgerId("col-test")
	return dc
}
