// Package cache implements the per-VM account cache manager (spec §4.2): a
// local cache of AccountEntry records plus a hierarchical checkpoint stack
// giving O(changed-entries) rollback. One AccountCacheManager exists per VM
// flavor inside a State; the generic type parameter pins it to either
// *account.FVMAccount or *account.AVMAccount.
package cache

import (
	xcommon "github.com/aion-network/aion-state/internal/common"
	"github.com/aion-network/aion-state/account"
	"github.com/aion-network/aion-state/globalcache"
	"github.com/aion-network/aion-state/internal/xerrors"
)

// State is the lifecycle tag on an AccountEntry (spec §3.4).
type State uint8

const (
	CleanFresh State = iota
	CleanCached
	Dirty
	Committed
)

// RequireCache drives how aggressively get_cached faults in code alongside
// the account itself (spec §4.2).
type RequireCache uint8

const (
	RequireNone RequireCache = iota
	RequireCodeSize
	RequireCode
)

// Entry is AccountEntry<A>: an account slot is either occupied (Account
// non-nil) or holds no account (Account nil). A nil account with State ==
// Dirty is a tombstone recording a killed address; a nil account loaded
// clean records that the address is absent. OriginalAccount carries the
// original_account slot; nothing in this package sets it, so it is nil
// unless a caller fills it, and revert copies it back with the entry.
type Entry[A account.Account] struct {
	Account         A
	State           State
	OriginalAccount A
}

func (e *Entry[A]) isDirty() bool { return e.State == Dirty }

// isNil reports whether a is the nil account. A is always a pointer type,
// and a type parameter cannot be compared with nil directly.
func isNil[A account.Account](a A) bool {
	var zero A
	return any(a) == any(zero)
}

// snapshot is the value recorded in a checkpoint map: "present" distinguishes
// an explicitly-absent address (checkpoint recorded before the address ever
// existed) from "this address had entry Entry".
type snapshot[A account.Account] struct {
	present bool
	entry   Entry[A]
}

// Manager is AccountCacheManager<A>.
type Manager[A account.Account] struct {
	kind       account.Type
	startNonce uint64

	cache       map[xcommon.Address]*Entry[A]
	checkpoints []map[xcommon.Address]snapshot[A]
}

// NewManager constructs an empty manager for the given VM kind.
func NewManager[A account.Account](kind account.Type, startNonce uint64) *Manager[A] {
	return &Manager[A]{
		kind:       kind,
		startNonce: startNonce,
		cache:      make(map[xcommon.Address]*Entry[A]),
	}
}

func (m *Manager[A]) Kind() account.Type  { return m.kind }
func (m *Manager[A]) StartNonce() uint64  { return m.startNonce }
func (m *Manager[A]) CheckpointDepth() int { return len(m.checkpoints) }

// noteTouched captures addr's prior local value into the active checkpoint,
// the first time addr is touched under it (spec §4.3.4).
func (m *Manager[A]) noteTouched(addr xcommon.Address) {
	if len(m.checkpoints) == 0 {
		return
	}
	top := m.checkpoints[len(m.checkpoints)-1]
	if _, recorded := top[addr]; recorded {
		return
	}
	if existing, ok := m.cache[addr]; ok {
		snap := *existing
		// Clone the account itself — existing.Account is a live pointer the
		// caller is about to mutate in place, so the snapshot must hold an
		// independent copy of its pre-mutation fields, not an alias of them.
		if !isNil(existing.Account) {
			if cloned, ok := existing.Account.Clone().(A); ok {
				snap.Account = cloned
			}
		}
		top[addr] = snapshot[A]{present: true, entry: snap}
	} else {
		top[addr] = snapshot[A]{present: false}
	}
}

// InsertCache inserts entry into the local cache. An existing Dirty entry
// is never clobbered by a new non-dirty one (spec §4.2).
func (m *Manager[A]) InsertCache(addr xcommon.Address, entry *Entry[A]) {
	m.noteTouched(addr)
	if existing, ok := m.cache[addr]; ok && existing.isDirty() && !entry.isDirty() {
		return
	}
	m.cache[addr] = entry
}

// NoteCache records the checkpoint-snapshot for addr without altering the
// cached entry; called by require before mutation.
func (m *Manager[A]) NoteCache(addr xcommon.Address) {
	m.noteTouched(addr)
}

// Peek returns the current local-cache entry for addr, if any, without
// consulting the global cache or trie.
func (m *Manager[A]) Peek(addr xcommon.Address) (*Entry[A], bool) {
	e, ok := m.cache[addr]
	return e, ok
}

// GetCached is the three-tier read of spec §4.2: local cache, then global
// cache, then loader (a trie fetch + RLP decode supplied by State). When
// checkNull is true and the backend already knows addr is null, an entry
// with no account is cached as CleanFresh and returned without consulting
// the trie.
func (m *Manager[A]) GetCached(
	addr xcommon.Address,
	require RequireCache,
	checkNull bool,
	backend globalcache.Backend,
	loader func() (A, error),
	codeLoader func(A) error,
) (*Entry[A], error) {
	if e, ok := m.cache[addr]; ok {
		if require != RequireNone && !isNil(e.Account) {
			if err := codeLoader(e.Account); err != nil {
				return nil, xerrors.WrapTrie("get_cached:code", err)
			}
		}
		return e, nil
	}

	if cached, ok := backend.GetCachedAccount(m.kind, addr); ok {
		a, _ := cached.(A)
		entry := &Entry[A]{Account: a, State: CleanCached}
		m.InsertCache(addr, entry)
		if require != RequireNone {
			if err := codeLoader(entry.Account); err != nil {
				return nil, xerrors.WrapTrie("get_cached:code", err)
			}
		}
		return entry, nil
	}

	if checkNull && backend.IsKnownNull(addr) {
		entry := &Entry[A]{State: CleanFresh}
		m.InsertCache(addr, entry)
		return entry, nil
	}

	loaded, err := loader()
	if err != nil {
		return nil, xerrors.WrapTrie("get_cached:load", err)
	}
	entry := &Entry[A]{Account: loaded, State: CleanFresh}
	m.InsertCache(addr, entry)
	if !isNil(loaded) {
		if require != RequireNone {
			if err := codeLoader(entry.Account); err != nil {
				return nil, xerrors.WrapTrie("get_cached:code", err)
			}
		}
	}
	return entry, nil
}

// Require implements require/require_or_from (spec §4.3.3): obtain a
// mutable slot for addr, snapshotting its pre-image and marking it Dirty.
// notDefault receives the (possibly freshly-defaulted) account before the
// caller mutates it further.
func (m *Manager[A]) Require(
	addr xcommon.Address,
	backend globalcache.Backend,
	loader func() (A, error),
	defaultAccount func() A,
	notDefault func(A),
	requireCode bool,
	codeLoader func(A) error,
) (A, error) {
	entry, err := m.GetCached(addr, RequireNone, true, backend, loader, func(A) error { return nil })
	if err != nil {
		var zero A
		return zero, err
	}
	m.NoteCache(addr)
	if isNil(entry.Account) {
		entry.Account = defaultAccount()
	} else {
		notDefault(entry.Account)
	}
	entry.State = Dirty
	if requireCode {
		if err := codeLoader(entry.Account); err != nil {
			var zero A
			return zero, xerrors.WrapTrie("require:code", err)
		}
	}
	return entry.Account, nil
}

// Kill replaces addr's local entry with a tombstone (account=None,
// state=Dirty), checkpoint-snapshotting first.
func (m *Manager[A]) Kill(addr xcommon.Address) {
	m.noteTouched(addr)
	var zero A
	m.cache[addr] = &Entry[A]{Account: zero, State: Dirty}
}

// Checkpoint pushes an empty snapshot map (spec §4.3.4).
func (m *Manager[A]) Checkpoint() {
	m.checkpoints = append(m.checkpoints, make(map[xcommon.Address]snapshot[A]))
}

// DiscardCheckpoint pops the top checkpoint, merging its entries into the
// new top only for addresses not already recorded there (preserving the
// deepest original per spec §4.3.4).
func (m *Manager[A]) DiscardCheckpoint() {
	if len(m.checkpoints) == 0 {
		xerrors.Defect("discard_checkpoint with empty checkpoint stack")
	}
	top := m.checkpoints[len(m.checkpoints)-1]
	m.checkpoints = m.checkpoints[:len(m.checkpoints)-1]
	if len(m.checkpoints) == 0 {
		return
	}
	parent := m.checkpoints[len(m.checkpoints)-1]
	for addr, snap := range top {
		if _, ok := parent[addr]; !ok {
			parent[addr] = snap
		}
	}
}

// RevertToCheckpoint pops the top checkpoint and restores every recorded
// address to its pre-checkpoint value (spec §4.3.4).
func (m *Manager[A]) RevertToCheckpoint() {
	if len(m.checkpoints) == 0 {
		xerrors.Defect("revert_to_checkpoint with empty checkpoint stack")
	}
	top := m.checkpoints[len(m.checkpoints)-1]
	m.checkpoints = m.checkpoints[:len(m.checkpoints)-1]
	for addr, snap := range top {
		if snap.present {
			restored := snap.entry
			if current, ok := m.cache[addr]; ok && !isNil(current.Account) && !isNil(restored.Account) {
				overwriteWith(current.Account, restored.Account)
				current.State = restored.State
				current.OriginalAccount = restored.OriginalAccount
			} else {
				e := restored
				m.cache[addr] = &e
			}
			continue
		}
		if current, ok := m.cache[addr]; ok && current.isDirty() {
			delete(m.cache, addr)
		}
	}
}

// overwriteWith restores dst's basic fields from src while keeping dst's own
// storage-trie handle/LRU live (spec §9 design notes: "preserving the live
// storage LRU of the surviving entry").
func overwriteWith[A account.Account](dst, src A) {
	dst.SetBalance(src.Balance())
	dst.SetNonce(src.Nonce())
	if src.CodeHash() != dst.CodeHash() {
		dst.SetCode(src.Code())
	}
}

// Clear empties the local cache and checkpoint stack without touching the
// global cache (spec §4.3: `clear`).
func (m *Manager[A]) Clear() {
	m.cache = make(map[xcommon.Address]*Entry[A])
	m.checkpoints = nil
}

// Entries exposes the live local cache for commit passes; callers must not
// retain the map beyond the current commit.
func (m *Manager[A]) Entries() map[xcommon.Address]*Entry[A] { return m.cache }

// TouchedAddresses returns every address currently present in the local
// cache, used by commit_touched(set) intersections.
func (m *Manager[A]) TouchedAddresses() []xcommon.Address {
	out := make([]xcommon.Address, 0, len(m.cache))
	for addr := range m.cache {
		out = append(out, addr)
	}
	return out
}
