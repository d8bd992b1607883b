package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	perrors "github.com/felixgeelhaar/pessimist/internal/errors"
	"github.com/felixgeelhaar/pessimist/internal/log"
	"github.com/felixgeelhaar/pessimist/internal/metrics"
	"github.com/felixgeelhaar/pessimist/internal/requirement"
)

const manifestFile = "index.json"

// Cache fronts a Client with an on-disk manifest of previously fetched
// release lists. Entries older than MaxAge are refetched; Refresh ignores
// every entry but still records what it fetches.
type Cache struct {
	Client   Client
	CacheDir string
	MaxAge   time.Duration
	Refresh  bool
	Logger   *log.Logger
	Metrics  *metrics.Metrics

	mu      sync.Mutex
	loaded  bool
	entries map[string]*CacheEntry
	now     func() time.Time
}

// CacheEntry is one package's cached release list.
type CacheEntry struct {
	Name      string    `json:"name"`
	Versions  []string  `json:"versions"`
	FetchedAt time.Time `json:"fetched_at"`
}

// CacheManifest is the serialized form of the cache.
type CacheManifest struct {
	Version   string                 `json:"version"`
	Packages  map[string]*CacheEntry `json:"packages"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// NewCache creates a cache in cacheDir wrapping client.
func NewCache(client Client, cacheDir string, maxAge time.Duration) *Cache {
	return &Cache{
		Client:   client,
		CacheDir: cacheDir,
		MaxAge:   maxAge,
		entries:  make(map[string]*CacheEntry),
		now:      time.Now,
	}
}

// DefaultCacheDir returns the per-user cache directory for index data.
func DefaultCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "pessimist")
	}
	return filepath.Join(os.TempDir(), "pessimist-cache")
}

// loadLocked reads the cache manifest from disk. A missing manifest is an
// empty cache.
func (c *Cache) loadLocked() error {
	c.loaded = true
	data, err := os.ReadFile(filepath.Join(c.CacheDir, manifestFile))
	if err != nil {
		if os.IsNotExist(err) {
			c.entries = make(map[string]*CacheEntry)
			return nil
		}
		return perrors.Wrap(perrors.ErrCodeRegistryCache, "read index cache", err)
	}

	var manifest CacheManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		c.entries = make(map[string]*CacheEntry)
		return perrors.Wrap(perrors.ErrCodeRegistryCache, "decode index cache", err).
			WithSuggestion(fmt.Sprintf("Delete %s to start over", c.CacheDir))
	}
	if manifest.Packages == nil {
		manifest.Packages = make(map[string]*CacheEntry)
	}
	c.entries = manifest.Packages
	return nil
}

// SaveManifest saves the cache manifest to disk
func (c *Cache) SaveManifest() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saveLocked()
}

func (c *Cache) saveLocked() error {
	if err := os.MkdirAll(c.CacheDir, 0o755); err != nil {
		return perrors.Wrap(perrors.ErrCodeRegistryCache, "create cache dir", err)
	}

	manifest := CacheManifest{
		Version:   "1.0",
		Packages:  c.entries,
		UpdatedAt: c.clock(),
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return perrors.Wrap(perrors.ErrCodeRegistryCache, "encode index cache", err)
	}

	// Write through a temp file so a concurrent reader never sees half a manifest.
	path := filepath.Join(c.CacheDir, manifestFile)
	tmp, err := os.CreateTemp(c.CacheDir, manifestFile+".*")
	if err != nil {
		return perrors.Wrap(perrors.ErrCodeRegistryCache, "write index cache", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return perrors.Wrap(perrors.ErrCodeRegistryCache, "write index cache", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return perrors.Wrap(perrors.ErrCodeRegistryCache, "write index cache", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return perrors.Wrap(perrors.ErrCodeRegistryCache, "write index cache", err)
	}
	return nil
}

// ResolveVersions answers from the cache when a fresh entry exists, otherwise
// asks the wrapped client and records the answer. When the index cannot be
// reached, a stale entry is served with a warning.
func (c *Cache) ResolveVersions(ctx context.Context, name string) (*Package, error) {
	logger := log.OrDefault(c.Logger)
	key := requirement.Canonicalize(name)

	c.mu.Lock()
	if !c.loaded {
		if err := c.loadLocked(); err != nil {
			logger.Warn("ignoring unreadable index cache", "dir", c.CacheDir, "error", err)
		}
	}
	entry := c.entries[key]
	c.mu.Unlock()

	if entry != nil && !c.Refresh && c.clock().Sub(entry.FetchedAt) < c.MaxAge {
		if pkg, ok := entry.toPackage(); ok {
			c.Metrics.ObserveCache(true)
			c.Metrics.ObserveLookup("cache", true, 0)
			logger.Debug("using cached releases", "package", key,
				"age", c.clock().Sub(entry.FetchedAt).Round(time.Second))
			return pkg, nil
		}
	}
	c.Metrics.ObserveCache(false)

	pkg, err := c.Client.ResolveVersions(ctx, name)
	if err != nil {
		if entry != nil && perrors.HasCode(err, perrors.ErrCodeRegistryNetwork) {
			if stale, ok := entry.toPackage(); ok {
				logger.Warn("index unreachable, using stale cache entry",
					"package", key, "fetched_at", entry.FetchedAt, "error", err)
				return stale, nil
			}
		}
		return nil, err
	}

	raw := make([]string, len(pkg.Versions))
	for i, v := range pkg.Versions {
		raw[i] = v.String()
	}

	c.mu.Lock()
	c.entries[key] = &CacheEntry{Name: pkg.Name, Versions: raw, FetchedAt: c.clock()}
	saveErr := c.saveLocked()
	c.mu.Unlock()
	if saveErr != nil {
		logger.Warn("failed to save index cache", "dir", c.CacheDir, "error", saveErr)
	}

	return pkg, nil
}

// Prune drops entries fetched more than maxAge ago and saves the manifest.
func (c *Cache) Prune(maxAge time.Duration) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.loaded {
		if err := c.loadLocked(); err != nil {
			return 0, err
		}
	}

	pruned := 0
	for key, entry := range c.entries {
		if c.clock().Sub(entry.FetchedAt) > maxAge {
			delete(c.entries, key)
			pruned++
		}
	}
	if pruned == 0 {
		return 0, nil
	}
	return pruned, c.saveLocked()
}

func (c *Cache) clock() time.Time {
	if c.now == nil {
		return time.Now()
	}
	return c.now()
}

func (e *CacheEntry) toPackage() (*Package, bool) {
	versions := make([]requirement.Version, 0, len(e.Versions))
	for _, raw := range e.Versions {
		v, err := requirement.ParseVersion(raw)
		if err != nil {
			return nil, false
		}
		versions = append(versions, v)
	}
	return NewPackage(e.Name, versions), true
}
