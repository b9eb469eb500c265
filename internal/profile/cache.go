package profile

import (
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/datasmith-ai/datasmith/internal/common"
	"github.com/datasmith-ai/datasmith/internal/dataset"
)

// Cache memoizes SchemaProfiles keyed by dataset version ID. A version is
// profiled at most once; dataset immutability makes the entry valid for the
// version's whole lifetime, the TTL only bounds memory after a lineage is
// abandoned.
type Cache struct {
	cache *ttlcache.Cache[string, *SchemaProfile]
}

// NewCache constructs a Cache whose entries expire ttl after last access.
func NewCache(ttl time.Duration) *Cache {
	c := ttlcache.New[string, *SchemaProfile](
		ttlcache.WithTTL[string, *SchemaProfile](ttl),
	)
	go c.Start()
	return &Cache{cache: c}
}

// For returns the profile of ds, computing and caching it on first sight of
// the version.
func (c *Cache) For(ds *dataset.Dataset) *SchemaProfile {
	if item := c.cache.Get(ds.Version()); item != nil {
		return item.Value()
	}
	logger := common.Logger()
	logger.Debug("profile: building schema profile", "version", ds.Version(), "rows", ds.RowCount())
	prof := Build(ds)
	c.cache.Set(ds.Version(), prof, ttlcache.DefaultTTL)
	return prof
}

// Stop terminates the background expiration loop.
func (c *Cache) Stop() {
	c.cache.Stop()
}
