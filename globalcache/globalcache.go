// Package globalcache implements the engine's process-wide, cross-State
// cache (spec §4.4/§5): a negative-null cache, a committed/fresh account
// cache per VM kind, and a shared code-bytes cache. Unlike the per-State
// local cache, this cache is read from multiple worker goroutines executing
// transactions over snapshots of different State instances, so every
// operation here is safe for concurrent use.
package globalcache

import (
	"sync"

	xcommon "github.com/aion-network/aion-state/internal/common"
	"github.com/aion-network/aion-state/account"

	"github.com/VictoriaMetrics/fastcache"
	mapset "github.com/deckarep/golang-set/v2"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Backend is the narrow contract both the per-VM cache manager and the
// State facade consume (spec §4.4). It is implemented by *Cache.
type Backend interface {
	GetCachedAccount(kind account.Type, addr xcommon.Address) (account.Account, bool)
	GetCached(kind account.Type, addr xcommon.Address, f func(account.Account))
	IsKnownNull(addr xcommon.Address) bool
	NoteNonNullAccount(addr xcommon.Address)
	AddToAccountCache(kind account.Type, addr xcommon.Address, entry account.Account, committed bool)
	GetCachedCode(codeHash xcommon.H256) ([]byte, bool)
	CacheCode(codeHash xcommon.H256, code []byte)
	GetCachedCodeSize(codeHash xcommon.H256) (int, bool)
	CacheCodeSize(codeHash xcommon.H256, size int)
	ClearCache(kind account.Type)
}

type accountSlot struct {
	account   account.Account
	committed bool
}

// Cache is the concrete process-wide Backend. Zero value is not usable;
// construct with New.
type Cache struct {
	mu       sync.RWMutex
	fvm      map[xcommon.Address]accountSlot
	avm      map[xcommon.Address]accountSlot
	null     mapset.Set[xcommon.Address]
	codeSize *lru.Cache[xcommon.H256, int]
	codeBytes *fastcache.Cache
}

// New builds a Cache whose code-size LRU holds codeSizeCapacity entries and
// whose code-bytes cache is bounded to codeBytesCapacity bytes.
func New(codeSizeCapacity, codeBytesCapacity int) *Cache {
	sizeCache, _ := lru.New[xcommon.H256, int](codeSizeCapacity)
	return &Cache{
		fvm:       make(map[xcommon.Address]accountSlot),
		avm:       make(map[xcommon.Address]accountSlot),
		null:      mapset.NewSet[xcommon.Address](),
		codeSize:  sizeCache,
		codeBytes: fastcache.New(codeBytesCapacity),
	}
}

func (c *Cache) slots(kind account.Type) map[xcommon.Address]accountSlot {
	if kind == account.TypeAVM {
		return c.avm
	}
	return c.fvm
}

// GetCachedAccount returns a clone of the cached account for addr, if any
// (spec §4.4: "clone-out of a global-cache hit").
func (c *Cache) GetCachedAccount(kind account.Type, addr xcommon.Address) (account.Account, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	slot, ok := c.slots(kind)[addr]
	if !ok || slot.account == nil {
		return nil, false
	}
	return slot.account.Clone(), true
}

// GetCached applies f to the live cached account under the read lock
// without cloning, for callers that only need to inspect a field.
func (c *Cache) GetCached(kind account.Type, addr xcommon.Address, f func(account.Account)) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if slot, ok := c.slots(kind)[addr]; ok && slot.account != nil {
		f(slot.account)
	}
}

// IsKnownNull consults the negative cache before a trie read.
func (c *Cache) IsKnownNull(addr xcommon.Address) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.null.Contains(addr)
}

// NoteNonNullAccount invalidates the negative cache for addr.
func (c *Cache) NoteNonNullAccount(addr xcommon.Address) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.null.Remove(addr)
}

// AddToAccountCache is the propagation sink used by drop()'s
// propagate_to_global_cache (spec §4.3.6): a Committed entry is always
// authoritative; a CleanFresh (committed == false) entry never overwrites
// an existing Committed entry, matching the cross-State ordering rule of
// spec §5.
func (c *Cache) AddToAccountCache(kind account.Type, addr xcommon.Address, entry account.Account, committed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	slots := c.slots(kind)
	if existing, ok := slots[addr]; ok && existing.committed && !committed {
		return
	}
	if entry == nil {
		c.null.Add(addr)
		delete(slots, addr)
		return
	}
	slots[addr] = accountSlot{account: entry, committed: committed}
}

func (c *Cache) GetCachedCode(codeHash xcommon.H256) ([]byte, bool) {
	v, ok := c.codeBytes.HasGet(nil, codeHash.Bytes())
	if !ok {
		return nil, false
	}
	return v, true
}

func (c *Cache) CacheCode(codeHash xcommon.H256, code []byte) {
	c.codeBytes.Set(codeHash.Bytes(), code)
}

func (c *Cache) GetCachedCodeSize(codeHash xcommon.H256) (int, bool) {
	return c.codeSize.Get(codeHash)
}

func (c *Cache) CacheCodeSize(codeHash xcommon.H256, size int) {
	c.codeSize.Add(codeHash, size)
}

// ClearCache flushes one VM kind's account cache; the negative-null cache
// and code caches are shared across kinds and survive a per-kind clear.
func (c *Cache) ClearCache(kind account.Type) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.slots(kind) {
		delete(c.slots(kind), k)
	}
}
