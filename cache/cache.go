package cache

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"caravel/types"
	"caravel/utils"

	"github.com/gofrs/flock"
	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("cache")

const CurrentVersion = 1

// Entry tracks deployment progress for one asset index. Zero values mean
// pending, so records written by an older pipeline version stay readable.
type Entry struct {
	MediaUri    string `json:"media_uri,omitempty"`
	MetadataUri string `json:"metadata_uri,omitempty"`
	OnChain     bool   `json:"on_chain,omitempty"`
	ContentHash string `json:"content_hash,omitempty"`
}

func (e *Entry) Uploaded() bool {
	return e.MediaUri != "" && e.MetadataUri != ""
}

type persisted struct {
	Version        int               `json:"version"`
	LedgerId       string            `json:"ledger_id,omitempty"`
	LastReconciled time.Time         `json:"last_reconciled,omitempty"`
	Items          map[string]*Entry `json:"items"`
}

// Hasher is the catalog view the cache needs to detect local edits.
type Hasher interface {
	Len() int
	ContentHash(index int) (string, error)
}

// DeployCache is the local, possibly stale projection of the remote registry
// state. It is owned by a single pipeline process for the duration of a run
// and persisted after every mutation batch.
type DeployCache struct {
	lk sync.Mutex

	path           string
	ledgerId       string
	lastReconciled time.Time
	items          map[int]*Entry
}

// Load reads the cache at path. An absent file yields an empty cache; a file
// that cannot be parsed fails with ErrCacheCorrupt and is never discarded.
func Load(path string) (*DeployCache, error) {
	c := &DeployCache{
		path:  path,
		items: make(map[int]*Entry),
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Infof("no deployment cache at %s, starting empty", path)
			return c, nil
		}
		return nil, types.Wrap(types.ErrCacheCorrupt, err)
	}

	var p persisted
	if err = utils.Unmarshal(raw, &p); err != nil {
		return nil, types.Wrapf(types.ErrCacheCorrupt, "%s: %v", path, err)
	}

	for key, entry := range p.Items {
		index, err := strconv.Atoi(key)
		if err != nil || index < 0 {
			return nil, types.Wrapf(types.ErrCacheCorrupt, "%s: invalid item key %q", path, key)
		}
		if entry == nil {
			entry = &Entry{}
		}
		c.items[index] = entry
	}
	c.ledgerId = p.LedgerId
	c.lastReconciled = p.LastReconciled

	log.Infof("loaded deployment cache %s with %d items", path, len(c.items))
	return c, nil
}

func (c *DeployCache) LedgerId() string {
	c.lk.Lock()
	defer c.lk.Unlock()

	return c.ledgerId
}

func (c *DeployCache) SetLedgerId(ledgerId string) {
	c.lk.Lock()
	defer c.lk.Unlock()

	c.ledgerId = ledgerId
}

func (c *DeployCache) LastReconciled() time.Time {
	c.lk.Lock()
	defer c.lk.Unlock()

	return c.lastReconciled
}

func (c *DeployCache) MarkReconciled(at time.Time) {
	c.lk.Lock()
	defer c.lk.Unlock()

	c.lastReconciled = at
}

func (c *DeployCache) Len() int {
	c.lk.Lock()
	defer c.lk.Unlock()

	return len(c.items)
}

// Entry returns a copy of the entry for index.
func (c *DeployCache) Entry(index int) (Entry, bool) {
	c.lk.Lock()
	defer c.lk.Unlock()

	entry, ok := c.items[index]
	if !ok {
		return Entry{}, false
	}
	return *entry, true
}

// PendingUploads returns ascending indices whose upload work remains: a uri is
// unset, or the local content hash no longer matches the hash stored at last
// upload.
func (c *DeployCache) PendingUploads(cat Hasher) ([]int, error) {
	c.lk.Lock()
	defer c.lk.Unlock()

	var pending []int
	for index := 0; index < cat.Len(); index++ {
		entry, ok := c.items[index]
		if !ok || !entry.Uploaded() {
			pending = append(pending, index)
			continue
		}

		hash, err := cat.ContentHash(index)
		if err != nil {
			return nil, err
		}
		if entry.ContentHash != hash {
			pending = append(pending, index)
		}
	}
	return pending, nil
}

// PendingRegistrations returns ascending indices that are fully uploaded but
// not yet confirmed on chain.
func (c *DeployCache) PendingRegistrations() []int {
	c.lk.Lock()
	defer c.lk.Unlock()

	var pending []int
	for index, entry := range c.items {
		if entry.Uploaded() && !entry.OnChain {
			pending = append(pending, index)
		}
	}
	sort.Ints(pending)
	return pending
}

// RecordUpload overwrites the entry for index. A changed uri invalidates any
// previous on-chain assumption until the next reconciliation.
func (c *DeployCache) RecordUpload(index int, mediaUri string, metadataUri string, contentHash string) {
	c.lk.Lock()
	defer c.lk.Unlock()

	entry, ok := c.items[index]
	if !ok {
		entry = &Entry{}
		c.items[index] = entry
	}

	if entry.OnChain && (entry.MediaUri != mediaUri || entry.MetadataUri != metadataUri) {
		log.Warnf("asset %d re-uploaded with new uris, clearing on-chain flag until reconciled", index)
		entry.OnChain = false
	}
	entry.MediaUri = mediaUri
	entry.MetadataUri = metadataUri
	entry.ContentHash = contentHash
}

// RecordRegistered marks indices on chain. Only call after the ledger write is
// confirmed, never speculatively.
func (c *DeployCache) RecordRegistered(indices []int) {
	c.lk.Lock()
	defer c.lk.Unlock()

	for _, index := range indices {
		entry, ok := c.items[index]
		if !ok {
			entry = &Entry{}
			c.items[index] = entry
		}
		entry.OnChain = true
	}
}

// AdoptRemote overwrites the entry for index with observed remote registry
// state. Remote state is authoritative once observed and never reversed.
func (c *DeployCache) AdoptRemote(index int, remote types.RegistryEntry) {
	c.lk.Lock()
	defer c.lk.Unlock()

	entry, ok := c.items[index]
	if !ok {
		entry = &Entry{}
		c.items[index] = entry
	}
	entry.MediaUri = remote.MediaUri
	entry.MetadataUri = remote.MetadataUri
	entry.OnChain = true
}

// ClearRegistered drops the on-chain flag for index after the remote registry
// was observed to not hold it. Uris and hash stay, the upload remains valid.
func (c *DeployCache) ClearRegistered(index int) {
	c.lk.Lock()
	defer c.lk.Unlock()

	if entry, ok := c.items[index]; ok {
		entry.OnChain = false
	}
}

// RegisteredCount returns how many entries the cache believes are on chain.
func (c *DeployCache) RegisteredCount() uint64 {
	c.lk.Lock()
	defer c.lk.Unlock()

	var count uint64
	for _, entry := range c.items {
		if entry.OnChain {
			count++
		}
	}
	return count
}

// RegisteredIndices returns ascending indices the cache believes are on chain.
func (c *DeployCache) RegisteredIndices() []int {
	c.lk.Lock()
	defer c.lk.Unlock()

	var indices []int
	for index, entry := range c.items {
		if entry.OnChain {
			indices = append(indices, index)
		}
	}
	sort.Ints(indices)
	return indices
}

// Persist writes the cache under a scoped file lock, to a temporary file
// first, then atomically moves it into place. A crash mid-write never yields
// a half-written cache file.
func (c *DeployCache) Persist() error {
	c.lk.Lock()
	p := persisted{
		Version:        CurrentVersion,
		LedgerId:       c.ledgerId,
		LastReconciled: c.lastReconciled,
		Items:          make(map[string]*Entry, len(c.items)),
	}
	for index, entry := range c.items {
		copied := *entry
		p.Items[strconv.Itoa(index)] = &copied
	}
	path := c.path
	c.lk.Unlock()

	raw, err := utils.Marshal(&p)
	if err != nil {
		return types.Wrap(types.ErrPersistCacheFailed, err)
	}

	if err = os.MkdirAll(filepath.Dir(path), 0755); err != nil { //nolint: gosec
		return types.Wrap(types.ErrPersistCacheFailed, err)
	}

	fileLock := flock.New(path + ".lock")
	if err = fileLock.Lock(); err != nil {
		return types.Wrap(types.ErrLockCacheFailed, err)
	}
	defer func() {
		if err := fileLock.Unlock(); err != nil {
			log.Warnf("release cache lock: %v", err)
		}
	}()

	tmp, err := os.CreateTemp(filepath.Dir(path), ".cache-*")
	if err != nil {
		return types.Wrap(types.ErrPersistCacheFailed, err)
	}
	if _, err = tmp.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return types.Wrap(types.ErrPersistCacheFailed, err)
	}
	if err = tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return types.Wrap(types.ErrPersistCacheFailed, err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return types.Wrap(types.ErrPersistCacheFailed, err)
	}

	log.Debugf("persisted deployment cache %s", path)
	return nil
}
