package pipeline

import (
	"bytes"
	"context"
	"testing"
	"time"

	"caravel/config"
	"caravel/types"

	"github.com/stretchr/testify/require"
)

func testConfig() *config.Deployer {
	cfg := config.DefaultDeployer()
	cfg.Ledger.CollectionId = "col-test"
	cfg.Upload.Workers = 2
	cfg.Upload.BaseDelay = time.Millisecond
	cfg.Upload.MaxDelay = time.Millisecond
	cfg.Registry.BatchCapacity = 2
	cfg.Registry.BaseDelay = time.Millisecond
	cfg.Registry.MaxDelay = time.Millisecond
	return cfg
}

func TestDriverFullDeployment(t *testing.T) {
	cat, _ := makeCatalog(t, 3)
	dc := makeCache(t)
	ledger := newFakeLedger()
	backend := &fakeBackend{}

	driver, err := NewDriver(testConfig(), cat, dc, ledger, backend, ModeDeploy)
	require.NoError(t, err)

	report, err := driver.Run(context.Background())
	require.NoError(t, err)
	require.False(t, report.Fatal())
	require.Equal(t, 3, report.Upload.Succeeded)
	require.Equal(t, 3, report.Register.Succeeded)

	// 3 uploads (media+metadata each), then 2 ledger batches of sizes 2 and 1
	require.Equal(t, 6, backend.storeCount())
	require.Equal(t, []int{2, 1}, ledger.batchSizes())

	count, err := ledger.GetRegisteredCount(context.Background(), "col-test")
	require.NoError(t, err)
	require.Equal(t, uint64(3), count)
	for i := 0; i < 3; i++ {
		entry, _ := dc.Entry(i)
		require.True(t, entry.OnChain)
	}
}

func TestDriverSecondRunIsFree(t *testing.T) {
	cat, _ := makeCatalog(t, 3)
	dc := makeCache(t)
	ledger := newFakeLedger()
	backend := &fakeBackend{}

	driver, err := NewDriver(testConfig(), cat, dc, ledger, backend, ModeDeploy)
	require.NoError(t, err)
	_, err = driver.Run(context.Background())
	require.NoError(t, err)

	stores := backend.storeCount()
	batches := len(ledger.batchSizes())

	driver, err = NewDriver(testConfig(), cat, dc, ledger, backend, ModeDeploy)
	require.NoError(t, err)
	report, err := driver.Run(context.Background())
	require.NoError(t, err)

	// zero additional uploads and zero additional ledger writes
	require.Equal(t, stores, backend.storeCount())
	require.Equal(t, batches, len(ledger.batchSizes()))
	require.Equal(t, 3, report.Upload.Skipped)
	require.Equal(t, 0, report.Register.Succeeded)
}

func TestDriverVerifyOnly(t *testing.T) {
	cat, _ := makeCatalog(t, 3)
	dc := makeCache(t)
	ledger := newFakeLedger()
	backend := &fakeBackend{}

	driver, err := NewDriver(testConfig(), cat, dc, ledger, backend, ModeVerify)
	require.NoError(t, err)

	report, err := driver.Run(context.Background())
	require.NoError(t, err)
	require.True(t, report.VerifyOnly)
	require.NotNil(t, report.Reconcile)
	require.Nil(t, report.Upload)
	require.Nil(t, report.Register)
	require.Equal(t, 0, backend.storeCount())
	require.Empty(t, ledger.batchSizes())
}

func TestDriverVerifyNeedsNoCatalog(t *testing.T) {
	dc := makeCache(t)
	dc.RecordUpload(0, "ipfs://m0", "ipfs://j0", "h0")
	ledger := newFakeLedger()
	ledger.register(types.RegistryEntry{Index: 0, MediaUri: "ipfs://m0", MetadataUri: "ipfs://j0"})

	driver, err := NewDriver(testConfig(), nil, dc, ledger, &fakeBackend{}, ModeVerify)
	require.NoError(t, err)

	report, err := driver.Run(context.Background())
	require.NoError(t, err)
	require.True(t, report.VerifyOnly)
	require.Equal(t, []int{0}, report.Reconcile.Adopted)

	// deploying without a catalog is refused
	_, err = NewDriver(testConfig(), nil, dc, ledger, &fakeBackend{}, ModeDeploy)
	require.Error(t, err)
}

func TestDriverUploadOnly(t *testing.T) {
	cat, _ := makeCatalog(t, 3)
	dc := makeCache(t)
	ledger := newFakeLedger()
	backend := &fakeBackend{}

	driver, err := NewDriver(testConfig(), cat, dc, ledger, backend, ModeUpload)
	require.NoError(t, err)

	report, err := driver.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, report.Upload.Succeeded)
	require.Nil(t, report.Register)
	require.Empty(t, ledger.batchSizes())
}

func TestDriverFatalAssetStillRegistersOthers(t *testing.T) {
	cat, _ := makeCatalog(t, 3)
	dc := makeCache(t)
	ledger := newFakeLedger()
	backend := &fakeBackend{
		rejectMatch: func(content []byte) bool {
			return bytes.Contains(content, []byte("Asset #1"))
		},
	}

	driver, err := NewDriver(testConfig(), cat, dc, ledger, backend, ModeDeploy)
	require.NoError(t, err)

	report, err := driver.Run(context.Background())
	require.NoError(t, err)
	require.True(t, report.Fatal())
	require.Equal(t, 1, report.Upload.Failed)
	require.Equal(t, 2, report.Register.Succeeded)

	for _, i := range []int{0, 2} {
		entry, _ := dc.Entry(i)
		require.True(t, entry.OnChain, "asset %d", i)
	}
	// the failed asset was never registered
	remote, err := ledger.GetRegistered(context.Background(), "col-test", 1)
	require.NoError(t, err)
	require.Nil(t, remote)
}

func TestDriverRefusesForeignCache(t *testing.T) {
	cat, _ := makeCatalog(t, 1)
	dc := makeCache(t) // ledger id col-test
	cfg := testConfig()
	cfg.Ledger.CollectionId = "col-other"

	_, err := NewDriver(cfg, cat, dc, newFakeLedger(), &fakeBackend{}, ModeDeploy)
	require.Error(t, err)
}

func TestDriverAdoptsConfiguredCollection(t *testing.T) {
	cat, _ := makeCatalog(t, 1)
	dc := makeCache(t)
	dc.SetLedgerId("")

	driver, err := NewDriver(testConfig(), cat, dc, newFakeLedger(), &fakeBackend{}, ModeDeploy)
	require.NoError(t, err)
	_, err = driver.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, "col-test", dc.LedgerId())
}
