package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"caravel/types"
	"caravel/utils"

	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("catalog")

const metadataExt = ".json"

// metadata record fields the pipeline needs to understand. Everything else in
// the record is preserved as-is.
const (
	fieldName  = "name"
	fieldMedia = "media"
)

// Catalog is the ordered collection to deploy. Read-only after Load.
type Catalog struct {
	dir    string
	assets []types.Asset

	hashLk sync.Mutex
	hashes map[int]string
}

// Load scans dir for `<index>.json` metadata records, resolves each record's
// media reference and validates that indices form a dense range [0, N).
func Load(dir string) (*Catalog, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, types.Wrap(types.ErrInvalidCatalog, err)
	}

	seen := make(map[int]string)
	var assets []types.Asset
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), metadataExt) {
			continue
		}

		index, err := strconv.Atoi(strings.TrimSuffix(entry.Name(), metadataExt))
		if err != nil {
			// not an asset record, e.g. a stray config file
			log.Debugf("skip non-asset file %s", entry.Name())
			continue
		}
		if index < 0 {
			return nil, types.Wrapf(types.ErrInvalidCatalog, "negative asset index in %s", entry.Name())
		}
		if prev, exists := seen[index]; exists {
			return nil, types.Wrapf(types.ErrInvalidCatalog, "duplicated asset index %d: %s and %s", index, prev, entry.Name())
		}
		seen[index] = entry.Name()

		asset, err := loadAsset(dir, index, entry.Name())
		if err != nil {
			return nil, err
		}
		assets = append(assets, asset)
	}

	if len(assets) == 0 {
		return nil, types.Wrapf(types.ErrInvalidCatalog, "no asset records found in %s", dir)
	}

	sort.Slice(assets, func(i, j int) bool {
		return assets[i].Index < assets[j].Index
	})
	for i, asset := range assets {
		if asset.Index != i {
			return nil, types.Wrapf(types.ErrInvalidCatalog, "asset indices are not dense: missing index %d", i)
		}
	}

	log.Infof("loaded catalog with %d assets from %s", len(assets), dir)
	return &Catalog{
		dir:    dir,
		assets: assets,
		hashes: make(map[int]string),
	}, nil
}

func loadAsset(dir string, index int, metadataName string) (types.Asset, error) {
	metadataPath := filepath.Join(dir, metadataName)
	raw, err := os.ReadFile(metadataPath)
	if err != nil {
		return types.Asset{}, types.Wrap(types.ErrReadAssetFailed, err)
	}

	var record map[string]interface{}
	if err = utils.Unmarshal(raw, &record); err != nil {
		return types.Asset{}, types.Wrapf(types.ErrInvalidAssetMeta, "asset %d: %v", index, err)
	}

	name, _ := record[fieldName].(string)
	if name == "" {
		return types.Asset{}, types.Wrapf(types.ErrInvalidAssetMeta, "asset %d has no name", index)
	}

	mediaRef, _ := record[fieldMedia].(string)
	if mediaRef == "" {
		return types.Asset{}, types.Wrapf(types.ErrInvalidAssetMeta, "asset %d has no media reference", index)
	}

	mediaPath := filepath.Join(dir, mediaRef)
	if _, err = os.Stat(mediaPath); err != nil {
		return types.Asset{}, types.Wrapf(types.ErrMediaNotFound, "asset %d references %s", index, mediaRef)
	}

	return types.Asset{
		Index:        index,
		Name:         name,
		MediaPath:    mediaPath,
		MetadataPath: metadataPath,
	}, nil
}

func (c *Catalog) Len() int {
	return len(c.assets)
}

func (c *Catalog) Assets() []types.Asset {
	return c.assets
}

func (c *Catalog) Asset(index int) (types.Asset, error) {
	if index < 0 || index >= len(c.assets) {
		return types.Asset{}, types.Wrapf(types.ErrAssetOutOfRange, "index %d, catalog size %d", index, len(c.assets))
	}
	return c.assets[index], nil
}

// ContentHash digests the asset's media bytes and metadata bytes combined.
// The deployment cache compares it against the hash stored at last upload to
// detect local edits that invalidate a previous upload.
func (c *Catalog) ContentHash(index int) (string, error) {
	c.hashLk.Lock()
	if hash, ok := c.hashes[index]; ok {
		c.hashLk.Unlock()
		return hash, nil
	}
	c.hashLk.Unlock()

	asset, err := c.Asset(index)
	if err != nil {
		return "", err
	}

	media, err := os.ReadFile(asset.MediaPath)
	if err != nil {
		return "", types.Wrap(types.ErrReadAssetFailed, err)
	}
	metadata, err := os.ReadFile(asset.MetadataPath)
	if err != nil {
		return "", types.Wrap(types.ErrReadAssetFailed, err)
	}

	digest := sha256.New()
	digest.Write(media)
	digest.Write(metadata)
	hash := hex.EncodeToString(digest.Sum(nil))

	c.hashLk.Lock()
	c.hashes[index] = hash
	c.hashLk.Unlock()

	return hash, nil
}

// MediaContentType guesses the media content type from the file extension.
func (c *Catalog) MediaContentType(index int) (string, error) {
	asset, err := c.Asset(index)
	if err != nil {
		return "", err
	}
	contentType := mime.TypeByExtension(filepath.Ext(asset.MediaPath))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return contentType, nil
}

// RenderMetadata returns the asset's metadata record with its media reference
// replaced by the published media uri. Unknown record fields pass through.
func (c *Catalog) RenderMetadata(index int, mediaUri string) ([]byte, error) {
	asset, err := c.Asset(index)
	if err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(asset.MetadataPath)
	if err != nil {
		return nil, types.Wrap(types.ErrReadAssetFailed, err)
	}

	var record map[string]interface{}
	if err = utils.Unmarshal(raw, &record); err != nil {
		return nil, types.Wrapf(types.ErrInvalidAssetMeta, "asset %d: %v", index, err)
	}
	record[fieldMedia] = mediaUri

	return utils.Marshal(record)
}
