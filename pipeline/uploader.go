package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"

	"caravel/cache"
	"caravel/catalog"
	"caravel/store"
	"caravel/types"
)

// Uploader turns pending catalog entries into storage uris. A bounded worker
// pool performs the uploads, a single aggregator owns all cache mutation and
// persistence.
type Uploader struct {
	cat     *catalog.Catalog
	cache   *cache.DeployCache
	backend store.StoreBackend
	workers int
	retry   RetryPolicy
}

type uploadResult struct {
	index       int
	mediaUri    string
	metadataUri string
	contentHash string
	err         error
}

func NewUploader(cat *catalog.Catalog, dc *cache.DeployCache, backend store.StoreBackend, workers int, retry RetryPolicy) *Uploader {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Uploader{
		cat:     cat,
		cache:   dc,
		backend: backend,
		workers: workers,
		retry:   retry,
	}
}

// Run uploads every pending asset, media then metadata, and records each
// success into the cache before the next unit of work proceeds. Per-asset
// fatal failures are collected into the report; only cross-cutting failures
// (cache persistence, cancellation) return an error.
func (u *Uploader) Run(ctx context.Context) (*StageReport, error) {
	report := &StageReport{Name: "upload"}

	pending, err := u.cache.PendingUploads(u.cat)
	if err != nil {
		return report, err
	}
	report.Skipped = u.cat.Len() - len(pending)
	if len(pending) == 0 {
		log.Info("no pending uploads")
		return report, nil
	}

	workers := u.workers
	if workers > len(pending) {
		workers = len(pending)
	}
	log.Infof("uploading %d assets with %d workers", len(pending), workers)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	queue := make(chan int)
	results := make(chan uploadResult)

	go func() {
		defer close(queue)
		for _, index := range pending {
			select {
			case queue <- index:
			case <-ctx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for index := range queue {
				results <- u.uploadOne(ctx, index)
			}
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	// single-writer aggregation: only this loop touches the cache
	for result := range results {
		if result.err != nil {
			if ctx.Err() != nil {
				continue
			}
			log.Errorf("asset %d upload failed: %v", result.index, result.err)
			report.Failed++
			report.Failures = append(report.Failures, AssetFailure{
				Index: result.index,
				Cause: result.err,
			})
			continue
		}

		u.cache.RecordUpload(result.index, result.mediaUri, result.metadataUri, result.contentHash)
		if err := u.cache.Persist(); err != nil {
			cancel()
			for range results {
				// drain so workers can exit
			}
			return report, err
		}
		report.Succeeded++
	}

	if err := ctx.Err(); err != nil {
		return report, types.Wrap(types.ErrUploadFailed, err)
	}
	return report, nil
}

// uploadOne processes a single asset fully, media then metadata, so partial
// per-asset state is never visible outside the worker.
func (u *Uploader) uploadOne(ctx context.Context, index int) uploadResult {
	result := uploadResult{index: index}

	asset, err := u.cat.Asset(index)
	if err != nil {
		result.err = err
		return result
	}
	result.contentHash, err = u.cat.ContentHash(index)
	if err != nil {
		result.err = err
		return result
	}
	contentType, err := u.cat.MediaContentType(index)
	if err != nil {
		result.err = err
		return result
	}

	media, err := os.ReadFile(asset.MediaPath)
	if err != nil {
		result.err = types.Wrap(types.ErrReadAssetFailed, err)
		return result
	}

	err = u.retry.Do(ctx, fmt.Sprintf("upload media %d", index), types.IsTransient, func() error {
		uri, serr := u.backend.Store(ctx, bytes.NewReader(media), contentType)
		if serr != nil {
			return serr
		}
		result.mediaUri = uri
		return nil
	})
	if err != nil {
		result.err = err
		return result
	}

	// the metadata record references its media, so it can only be rendered
	// once the media uri is known
	metadata, err := u.cat.RenderMetadata(index, result.mediaUri)
	if err != nil {
		result.err = err
		return result
	}

	err = u.retry.Do(ctx, fmt.Sprintf("upload metadata %d", index), types.IsTransient, func() error {
		uri, serr := u.backend.Store(ctx, bytes.NewReader(metadata), "application/json")
		if serr != nil {
			return serr
		}
		result.metadataUri = uri
		return nil
	})
	if err != nil {
		result.err = err
		return result
	}

	log.Debugf("asset %d uploaded: media %s, metadata %s", index, result.mediaUri, result.metadataUri)
	return result
}
