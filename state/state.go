// Package state implements the transactional facade (spec §4.3) that
// coordinates the FVM and AVM account cache managers, the shared top-level
// trie, and the process-wide global cache. It is the engine's single public
// entry point: queries, mutations, checkpoints, and commit all go through a
// *State.
package state

import (
	"sort"

	"github.com/aion-network/aion-state/account"
	acache "github.com/aion-network/aion-state/account/cache"
	xcommon "github.com/aion-network/aion-state/internal/common"
	"github.com/aion-network/aion-state/internal/config"
	"github.com/aion-network/aion-state/internal/triedb"
	"github.com/aion-network/aion-state/internal/xerrors"
	"github.com/aion-network/aion-state/internal/xlog"
	"github.com/aion-network/aion-state/globalcache"
	"github.com/aion-network/aion-state/tracing"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/holiman/uint256"
)

var log = xlog.New("state")

// reservedA and reservedB are the two consensus-reserved addresses
// (spec §6) that participate in storage commits even when IsNull.
var (
	reservedA = xcommon.BytesToAddress(append(make([]byte, 30), 0x01, 0x00))
	reservedB = xcommon.BytesToAddress(append(make([]byte, 30), 0x02, 0x00))
)

func isReserved(addr xcommon.Address) bool {
	return addr == reservedA || addr == reservedB
}

// State is the engine's single-owner, single-threaded transactional facade.
type State struct {
	cfg    config.Config
	db     triedb.Database
	trie   *triedb.SecureTrie
	global globalcache.Backend

	fvm *acache.Manager[*account.FVMAccount]
	avm *acache.Manager[*account.AVMAccount]
}

// New opens a State at root (EMPTY_TRIE_ROOT for a fresh state), sharing db
// and global across every State derived from the same node.
func New(db triedb.Database, root xcommon.H256, cfg config.Config, global globalcache.Backend) (*State, error) {
	trie, err := triedb.NewSecureTrie(db, triedb.ColDefault, nil, root)
	if err != nil {
		return nil, xerrors.WrapTrie("state.New", err)
	}
	return &State{
		cfg:    cfg,
		db:     db,
		trie:   trie,
		global: global,
		fvm:    acache.NewManager[*account.FVMAccount](account.TypeFVM, cfg.AccountStartNonce),
		avm:    acache.NewManager[*account.AVMAccount](account.TypeAVM, cfg.AccountStartNonce),
	}, nil
}

// ---------------------------------------------------------------------
// loaders: trie -> decoded account, shared by both managers' GetCached.
// ---------------------------------------------------------------------

func (s *State) loadFVM(addr xcommon.Address) (*account.FVMAccount, error) {
	data := s.trie.Get(addr.Bytes())
	if data == nil {
		return nil, nil
	}
	a, err := account.DecodeFVMFromRLP(addr, data, s.cfg.StorageCacheCapacity)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (s *State) loadAVM(addr xcommon.Address) (*account.AVMAccount, error) {
	data := s.trie.Get(addr.Bytes())
	if data == nil {
		return nil, nil
	}
	a, err := account.DecodeAVMFromRLP(addr, data, s.cfg.StorageCacheCapacity)
	if err != nil {
		return nil, err
	}
	a.HydrateStorageRecords(s.db)
	return a, nil
}

// loadCode hydrates an account's code/transformed-code from the global code
// cache, falling back to the KV backend, and seeds the global cache on a
// backend hit (spec §4.3.3 step 5 / §4.4 get_cached_code/cache_code).
func (s *State) loadCode(a account.Account) error {
	if a == nil || a.CodeHash() == xcommon.EmptyHash || a.Code() != nil {
		return nil
	}
	if cached, ok := s.global.GetCachedCode(a.CodeHash()); ok {
		code, transformed := account.DecodeCodeBlob(cached)
		a.HydrateCode(code, transformed)
		return nil
	}
	blob, ok := s.db.Get(triedb.ColDefault, a.CodeHash().Bytes())
	if !ok {
		return nil
	}
	code, transformed := account.DecodeCodeBlob(blob)
	a.HydrateCode(code, transformed)
	s.global.CacheCode(a.CodeHash(), blob)
	s.global.CacheCodeSize(a.CodeHash(), len(code))
	return nil
}

// ---------------------------------------------------------------------
// Queries (spec §4.3.1, dispatch rule §4.3.2: FVM first, then AVM).
// ---------------------------------------------------------------------

func (s *State) fvmEntry(addr xcommon.Address) (*acache.Entry[*account.FVMAccount], error) {
	return s.fvm.GetCached(addr, acache.RequireNone, true, s.global, func() (*account.FVMAccount, error) { return s.loadFVM(addr) }, func(a *account.FVMAccount) error { return s.loadCode(a) })
}

func (s *State) avmEntry(addr xcommon.Address) (*acache.Entry[*account.AVMAccount], error) {
	return s.avm.GetCached(addr, acache.RequireNone, true, s.global, func() (*account.AVMAccount, error) { return s.loadAVM(addr) }, func(a *account.AVMAccount) error { return s.loadCode(a) })
}

// Exists reports whether either VM's manager has a non-absent account
// record for addr.
func (s *State) Exists(addr xcommon.Address) (bool, error) {
	fe, err := s.fvmEntry(addr)
	if err != nil {
		return false, err
	}
	if fe.Account != nil {
		return true, nil
	}
	ae, err := s.avmEntry(addr)
	if err != nil {
		return false, err
	}
	return ae.Account != nil, nil
}

// ExistsAndNotNull additionally requires the account not be null.
func (s *State) ExistsAndNotNull(addr xcommon.Address) (bool, error) {
	fe, err := s.fvmEntry(addr)
	if err != nil {
		return false, err
	}
	if fe.Account != nil {
		return !fe.Account.IsNull(s.cfg.AccountStartNonce), nil
	}
	ae, err := s.avmEntry(addr)
	if err != nil {
		return false, err
	}
	if ae.Account != nil {
		return !ae.Account.IsNull(s.cfg.AccountStartNonce), nil
	}
	return false, nil
}

// ExistsAndHasCodeOrNonce reports whether addr has a nonzero nonce or any
// deployed code, the EIP-161-style liveness test.
func (s *State) ExistsAndHasCodeOrNonce(addr xcommon.Address) (bool, error) {
	fe, err := s.fvmEntry(addr)
	if err != nil {
		return false, err
	}
	if a := fe.Account; a != nil {
		return a.Nonce() != s.cfg.AccountStartNonce || a.CodeHash() != xcommon.EmptyHash, nil
	}
	ae, err := s.avmEntry(addr)
	if err != nil {
		return false, err
	}
	if a := ae.Account; a != nil {
		return a.Nonce() != s.cfg.AccountStartNonce || a.CodeHash() != xcommon.EmptyHash, nil
	}
	return false, nil
}

// ExistsAndHasCode reports whether addr carries deployed code, independent
// of nonce — the narrower of the two liveness tests the original kernel
// exposes (ExistsAndHasCodeOrNonce is the other).
func (s *State) ExistsAndHasCode(addr xcommon.Address) (bool, error) {
	h, err := s.CodeHash(addr)
	if err != nil {
		return false, err
	}
	return h != xcommon.EmptyHash, nil
}

// Balance returns addr's balance, or zero for an absent account.
func (s *State) Balance(addr xcommon.Address) (*uint256.Int, error) {
	fe, err := s.fvmEntry(addr)
	if err != nil {
		return nil, err
	}
	if fe.Account != nil {
		return fe.Account.Balance(), nil
	}
	ae, err := s.avmEntry(addr)
	if err != nil {
		return nil, err
	}
	if ae.Account != nil {
		return ae.Account.Balance(), nil
	}
	return uint256.NewInt(0), nil
}

// Nonce returns addr's nonce, or the configured start nonce for an absent
// account (spec §6).
func (s *State) Nonce(addr xcommon.Address) (uint64, error) {
	fe, err := s.fvmEntry(addr)
	if err != nil {
		return 0, err
	}
	if fe.Account != nil {
		return fe.Account.Nonce(), nil
	}
	ae, err := s.avmEntry(addr)
	if err != nil {
		return 0, err
	}
	if ae.Account != nil {
		return ae.Account.Nonce(), nil
	}
	return s.cfg.AccountStartNonce, nil
}

func (s *State) codeOwner(addr xcommon.Address) (account.Account, error) {
	fe, err := s.fvmEntry(addr)
	if err != nil {
		return nil, err
	}
	if fe.Account != nil {
		if err := s.loadCode(fe.Account); err != nil {
			return nil, err
		}
		return fe.Account, nil
	}
	ae, err := s.avmEntry(addr)
	if err != nil {
		return nil, err
	}
	if ae.Account != nil {
		if err := s.loadCode(ae.Account); err != nil {
			return nil, err
		}
		return ae.Account, nil
	}
	return nil, nil
}

func (s *State) Code(addr xcommon.Address) ([]byte, error) {
	a, err := s.codeOwner(addr)
	if err != nil || a == nil {
		return nil, err
	}
	return a.Code(), nil
}

func (s *State) TransformedCode(addr xcommon.Address) ([]byte, error) {
	a, err := s.codeOwner(addr)
	if err != nil || a == nil {
		return nil, err
	}
	return a.TransformedCode(), nil
}

func (s *State) CodeHash(addr xcommon.Address) (xcommon.H256, error) {
	fe, err := s.fvmEntry(addr)
	if err != nil {
		return xcommon.H256{}, err
	}
	if fe.Account != nil {
		return fe.Account.CodeHash(), nil
	}
	ae, err := s.avmEntry(addr)
	if err != nil {
		return xcommon.H256{}, err
	}
	if ae.Account != nil {
		return ae.Account.CodeHash(), nil
	}
	return xcommon.EmptyHash, nil
}

func (s *State) CodeSize(addr xcommon.Address) (int, error) {
	owner, err := s.codeOwner(addr)
	if err != nil || owner == nil {
		return 0, err
	}
	if n, ok := s.global.GetCachedCodeSize(owner.CodeHash()); ok {
		return n, nil
	}
	return owner.CodeSize(), nil
}

// StorageRoot returns the FVM account's storage_root, valid only when its
// storage overlay is clean. Only the FVM manager is consulted: an address
// held by the AVM manager alone reports (zero, false).
func (s *State) StorageRoot(addr xcommon.Address) (xcommon.H256, bool, error) {
	fe, err := s.fvmEntry(addr)
	if err != nil {
		return xcommon.H256{}, false, err
	}
	if fe.Account == nil {
		return xcommon.H256{}, false, nil
	}
	root, ok := fe.Account.StorageRoot()
	return root, ok, nil
}

// StorageAt reads an FVM storage slot.
func (s *State) StorageAt(addr xcommon.Address, key account.StorageKey) (account.StorageValue, error) {
	fe, err := s.fvmEntry(addr)
	if err != nil {
		return account.StorageValue{}, err
	}
	if fe.Account == nil {
		kind := account.ValueNormal
		if key.Kind == account.KeyWide {
			kind = account.ValueLong
		}
		return account.StorageValue{Kind: kind}, nil
	}
	return fe.Account.GetStorage(s.db, key)
}

// AVMStorageAt reads a raw AVM storage slot.
func (s *State) AVMStorageAt(addr xcommon.Address, key []byte) ([]byte, error) {
	ae, err := s.avmEntry(addr)
	if err != nil {
		return nil, err
	}
	if ae.Account == nil {
		return nil, nil
	}
	return ae.Account.GetStorage(s.db, key)
}

// GetObjectGraph returns an AVM account's object-graph bytes and hash.
func (s *State) GetObjectGraph(addr xcommon.Address) ([]byte, xcommon.H256, error) {
	ae, err := s.avmEntry(addr)
	if err != nil {
		return nil, xcommon.H256{}, err
	}
	if ae.Account == nil {
		return nil, xcommon.H256{}, nil
	}
	graph, hash := ae.Account.ObjectGraph()
	return graph, hash, nil
}

// ---------------------------------------------------------------------
// Mutations (spec §4.3.1/§4.3.3). Every mutation routes through the
// relevant manager's Require, which snapshots the checkpoint pre-image.
// ---------------------------------------------------------------------

func fvmDefault(addr xcommon.Address, startNonce uint64, cacheCapacity int) func() *account.FVMAccount {
	return func() *account.FVMAccount { return account.NewBasicFVM(addr, uint256.NewInt(0), startNonce, cacheCapacity) }
}

func avmDefault(addr xcommon.Address, startNonce uint64, cacheCapacity int) func() *account.AVMAccount {
	return func() *account.AVMAccount { return account.NewBasicAVM(addr, uint256.NewInt(0), startNonce, cacheCapacity) }
}

func (s *State) requireFVM(addr xcommon.Address, requireCode bool) (*account.FVMAccount, error) {
	return s.fvm.Require(addr, s.global,
		func() (*account.FVMAccount, error) { return s.loadFVM(addr) },
		fvmDefault(addr, s.cfg.AccountStartNonce, s.cfg.StorageCacheCapacity),
		func(*account.FVMAccount) {},
		requireCode,
		func(a *account.FVMAccount) error { return s.loadCode(a) },
	)
}

func (s *State) requireAVM(addr xcommon.Address, requireCode bool) (*account.AVMAccount, error) {
	return s.avm.Require(addr, s.global,
		func() (*account.AVMAccount, error) { return s.loadAVM(addr) },
		avmDefault(addr, s.cfg.AccountStartNonce, s.cfg.StorageCacheCapacity),
		func(*account.AVMAccount) {},
		requireCode,
		func(a *account.AVMAccount) error { return s.loadCode(a) },
	)
}

// AddBalance credits amount to addr's FVM account (spec §4.3.1). reason is
// attached to the structured log entry so a log consumer can attribute the
// mutation without re-deriving it from the call stack.
func (s *State) AddBalance(addr xcommon.Address, amount *uint256.Int, reason tracing.BalanceChangeReason) error {
	a, err := s.requireFVM(addr, false)
	if err != nil {
		return err
	}
	a.SetBalance(new(uint256.Int).Add(a.Balance(), amount))
	log.Debug("balance_change", "addr", addr.Hex(), "amount", amount.String(), "reason", reason.String())
	return nil
}

// SubBalance debits amount from addr's FVM account. Underflow is a defect
// (spec §7): the engine never models negative balances.
func (s *State) SubBalance(addr xcommon.Address, amount *uint256.Int, reason tracing.BalanceChangeReason) error {
	a, err := s.requireFVM(addr, false)
	if err != nil {
		return err
	}
	if a.Balance().Lt(amount) {
		xerrors.Defect("sub_balance: %s below zero by %s", a.Balance(), amount)
	}
	a.SetBalance(new(uint256.Int).Sub(a.Balance(), amount))
	log.Debug("balance_change", "addr", addr.Hex(), "amount", "-"+amount.String(), "reason", reason.String())
	return nil
}

// TransferBalance moves amount from one FVM account to another.
func (s *State) TransferBalance(from, to xcommon.Address, amount *uint256.Int) error {
	if err := s.SubBalance(from, amount, tracing.BalanceChangeNativeTransfer); err != nil {
		return err
	}
	return s.AddBalance(to, amount, tracing.BalanceChangeNativeTransfer)
}

// IncNonce increments addr's FVM nonce. reason distinguishes a transaction's
// own nonce bump from one driven by contract creation, matching the two
// ways the original kernel increments a nonce.
func (s *State) IncNonce(addr xcommon.Address, reason tracing.NonceChangeReason) error {
	a, err := s.requireFVM(addr, false)
	if err != nil {
		return err
	}
	a.SetNonce(a.Nonce() + 1)
	log.Debug("nonce_change", "addr", addr.Hex(), "nonce", a.Nonce(), "reason", reason.String())
	return nil
}

// SetStorage writes an FVM storage slot.
func (s *State) SetStorage(addr xcommon.Address, key account.StorageKey, value account.StorageValue) error {
	a, err := s.requireFVM(addr, false)
	if err != nil {
		return err
	}
	a.SetStorage(key, value)
	return nil
}

// SetAVMStorage writes a raw AVM storage slot.
func (s *State) SetAVMStorage(addr xcommon.Address, key, value []byte) error {
	a, err := s.requireAVM(addr, false)
	if err != nil {
		return err
	}
	a.SetStorage(key, value)
	return nil
}

// InitCode deploys FVM bytecode.
func (s *State) InitCode(addr xcommon.Address, code []byte) error {
	a, err := s.requireFVM(addr, false)
	if err != nil {
		return err
	}
	a.SetCode(code)
	return nil
}

// InitAVMCode deploys AVM bytecode.
func (s *State) InitAVMCode(addr xcommon.Address, code []byte) error {
	a, err := s.requireAVM(addr, false)
	if err != nil {
		return err
	}
	a.SetCode(code)
	return nil
}

// InitTransformedCode stores AVM's post-transform bytecode.
func (s *State) InitTransformedCode(addr xcommon.Address, code []byte) error {
	a, err := s.requireAVM(addr, false)
	if err != nil {
		return err
	}
	a.SetTransformedCode(code)
	return nil
}

// ResetCode clears an FVM account's code back to EMPTY_HASH.
func (s *State) ResetCode(addr xcommon.Address) error {
	a, err := s.requireFVM(addr, false)
	if err != nil {
		return err
	}
	a.SetCode(nil)
	return nil
}

// SetObjectGraph replaces an AVM account's object-graph record.
func (s *State) SetObjectGraph(addr xcommon.Address, graph []byte) error {
	a, err := s.requireAVM(addr, false)
	if err != nil {
		return err
	}
	a.SetObjectGraph(graph)
	return nil
}

// NewContract seeds a freshly-created FVM account (spec §4.3.1 new_contract).
func (s *State) NewContract(addr xcommon.Address, balance *uint256.Int, nonce uint64) {
	entry := &acache.Entry[*account.FVMAccount]{
		Account: account.NewContractFVM(addr, balance, nonce, s.cfg.StorageCacheCapacity),
		State:   acache.Dirty,
	}
	s.fvm.InsertCache(addr, entry)
}

// NewAVMContract seeds a freshly-created AVM account.
func (s *State) NewAVMContract(addr xcommon.Address, balance *uint256.Int, nonce uint64) {
	entry := &acache.Entry[*account.AVMAccount]{
		Account: account.NewContractAVM(addr, balance, nonce, s.cfg.StorageCacheCapacity),
		State:   acache.Dirty,
	}
	s.avm.InsertCache(addr, entry)
}

// KillAccount tombstones addr in the given VM's manager.
func (s *State) KillAccount(vm account.Type, addr xcommon.Address) {
	if vm == account.TypeAVM {
		s.avm.Kill(addr)
		return
	}
	s.fvm.Kill(addr)
}

// KillContract tombstones addr like KillAccount but eagerly discards its
// buffered storage writes first, matching the original kernel's
// contract-aware kill (used by SUICIDE-equivalent ops on an account known
// to carry storage) rather than waiting for commit's own null-account
// cleanup pass to discard them.
func (s *State) KillContract(vm account.Type, addr xcommon.Address) error {
	if vm == account.TypeAVM {
		a, err := s.requireAVM(addr, false)
		if err != nil {
			return err
		}
		a.DiscardStorage()
		s.avm.Kill(addr)
		return nil
	}
	a, err := s.requireFVM(addr, false)
	if err != nil {
		return err
	}
	a.DiscardStorage()
	s.fvm.Kill(addr)
	return nil
}

// SetEmptyButCommit forces commit of an otherwise-null FVM account.
func (s *State) SetEmptyButCommit(addr xcommon.Address) error {
	a, err := s.requireFVM(addr, false)
	if err != nil {
		return err
	}
	a.SetEmptyButCommit()
	return nil
}

// ---------------------------------------------------------------------
// Transactions (spec §4.3.4/§4.3.5/§4.3.6).
// ---------------------------------------------------------------------

func (s *State) Checkpoint(vm account.Type) {
	if vm == account.TypeAVM {
		s.avm.Checkpoint()
		return
	}
	s.fvm.Checkpoint()
}

func (s *State) DiscardCheckpoint(vm account.Type) {
	if vm == account.TypeAVM {
		s.avm.DiscardCheckpoint()
		return
	}
	s.fvm.DiscardCheckpoint()
}

func (s *State) RevertToCheckpoint(vm account.Type) {
	log.Debug("checkpoint_revert", "vm", vm,
		"balance_reason", tracing.BalanceChangeRevert.String(),
		"nonce_reason", tracing.NonceChangeRevert.String())
	if vm == account.TypeAVM {
		s.avm.RevertToCheckpoint()
		return
	}
	s.fvm.RevertToCheckpoint()
}

// CheckpointDepth lets callers (e.g. an Executive) assert symmetric
// checkpoint/commit pairing.
func (s *State) CheckpointDepth(vm account.Type) int {
	if vm == account.TypeAVM {
		return s.avm.CheckpointDepth()
	}
	return s.fvm.CheckpointDepth()
}

// commitFVM runs the two-pass commit algorithm of spec §4.3.5 over the FVM
// manager's dirty entries, restricted to touched if non-nil.
func (s *State) commitFVM(batch triedb.Batch, touched mapset.Set[xcommon.Address]) error {
	entries := s.fvm.Entries()
	addrs := sortedAddrs(entries)
	for _, addr := range addrs {
		if touched != nil && !touched.Contains(addr) {
			continue
		}
		entry := entries[addr]
		if entry.State != acache.Dirty {
			continue
		}
		if entry.Account == nil {
			s.trie.Delete(addr.Bytes())
			entry.State = acache.Committed
			continue
		}
		a := entry.Account
		if err := a.CommitCode(batch); err != nil {
			return xerrors.WrapTrie("commit:code", err)
		}
		isNull := a.IsNull(s.cfg.AccountStartNonce)
		switch {
		case !isNull || isReserved(addr):
			if err := a.CommitStorage(s.db, batch); err != nil {
				return xerrors.WrapTrie("commit:storage", err)
			}
		case !a.StorageIsClean():
			a.DiscardStorage()
			entry.State = acache.CleanFresh
			s.global.AddToAccountCache(account.TypeFVM, addr, a, false)
			continue
		case a.CodeHash() == xcommon.EmptyHash && !a.EmptyButCommit():
			entry.State = acache.CleanFresh
			s.global.AddToAccountCache(account.TypeFVM, addr, a, false)
			continue
		}
		if !a.IsNull(s.cfg.AccountStartNonce) {
			s.global.NoteNonNullAccount(addr)
		}
		enc, err := account.EncodeBasicAccountRLP(a)
		if err != nil {
			return err
		}
		s.trie.Update(addr.Bytes(), enc)
		entry.State = acache.Committed
		s.global.AddToAccountCache(account.TypeFVM, addr, a, true)
	}
	return nil
}

// commitAVM runs the AVM analogue: no reserved-address exception, and
// delta_root/object-graph persistence happens inside CommitStorage. The FVM
// local cache is cleared afterward (strict VM-domain isolation per block).
func (s *State) commitAVM(batch triedb.Batch, touched mapset.Set[xcommon.Address]) error {
	entries := s.avm.Entries()
	addrs := sortedAddrsAVM(entries)
	for _, addr := range addrs {
		if touched != nil && !touched.Contains(addr) {
			continue
		}
		entry := entries[addr]
		if entry.State != acache.Dirty {
			continue
		}
		if entry.Account == nil {
			s.trie.Delete(addr.Bytes())
			entry.State = acache.Committed
			continue
		}
		a := entry.Account
		if err := a.CommitCode(batch); err != nil {
			return xerrors.WrapTrie("commit_avm:code", err)
		}
		if err := a.CommitStorage(s.db, batch); err != nil {
			return xerrors.WrapTrie("commit_avm:storage", err)
		}
		if !a.IsNull(s.cfg.AccountStartNonce) {
			s.global.NoteNonNullAccount(addr)
		}
		enc, err := account.EncodeBasicAccountRLP(a)
		if err != nil {
			return err
		}
		s.trie.Update(addr.Bytes(), enc)
		entry.State = acache.Committed
		s.global.AddToAccountCache(account.TypeAVM, addr, a, true)
	}
	s.fvm.Clear()
	return nil
}

// Commit runs the FVM commit pass, folds the resulting top-level trie into
// one batch together with the per-account writes, and writes that batch
// before returning the new root.
func (s *State) Commit() (xcommon.H256, error) {
	batch := s.db.NewBatch()
	if err := s.commitFVM(batch, nil); err != nil {
		return xcommon.H256{}, err
	}
	root := s.trie.CommitTo(batch)
	if err := batch.Write(); err != nil {
		return xcommon.H256{}, xerrors.WrapTrie("commit:write", err)
	}
	log.Debug("committed fvm state", "root", root.Hex())
	return root, nil
}

// CommitAVM runs the AVM commit pass.
func (s *State) CommitAVM() (xcommon.H256, error) {
	batch := s.db.NewBatch()
	if err := s.commitAVM(batch, nil); err != nil {
		return xcommon.H256{}, err
	}
	root := s.trie.CommitTo(batch)
	if err := batch.Write(); err != nil {
		return xcommon.H256{}, xerrors.WrapTrie("commit_avm:write", err)
	}
	log.Debug("committed avm state", "root", root.Hex())
	return root, nil
}

// CommitTouched runs both VM commit passes restricted to addrs in set.
func (s *State) CommitTouched(set mapset.Set[xcommon.Address]) (xcommon.H256, error) {
	batch := s.db.NewBatch()
	if err := s.commitFVM(batch, set); err != nil {
		return xcommon.H256{}, err
	}
	if err := s.commitAVM(batch, set); err != nil {
		return xcommon.H256{}, err
	}
	root := s.trie.CommitTo(batch)
	if err := batch.Write(); err != nil {
		return xcommon.H256{}, xerrors.WrapTrie("commit_touched:write", err)
	}
	return root, nil
}

// Clear empties both managers' local caches and checkpoint stacks.
func (s *State) Clear() {
	s.fvm.Clear()
	s.avm.Clear()
}

// ClearGlobalCache flushes one VM kind's slice of the process-wide cache.
func (s *State) ClearGlobalCache(kind account.Type) {
	s.global.ClearCache(kind)
}

// Drop finalizes this State: it returns the current trie root and the
// backend Database, and propagates every Committed/CleanFresh local entry
// into the global cache (spec §4.3.6).
func (s *State) Drop() (xcommon.H256, triedb.Database) {
	for addr, entry := range s.fvm.Entries() {
		if entry.Account == nil || (entry.State != acache.Committed && entry.State != acache.CleanFresh) {
			continue
		}
		s.global.AddToAccountCache(account.TypeFVM, addr, entry.Account, entry.State == acache.Committed)
	}
	for addr, entry := range s.avm.Entries() {
		if entry.Account == nil || (entry.State != acache.Committed && entry.State != acache.CleanFresh) {
			continue
		}
		s.global.AddToAccountCache(account.TypeAVM, addr, entry.Account, entry.State == acache.Committed)
	}
	return s.trie.Hash(), s.db
}

// ---------------------------------------------------------------------
// Pod: deterministic import/export view of the trie (SUPPLEMENTED
// FEATURES — the original kernel's to_pod/from_pod), used for genesis
// construction and differential testing. Additive; no new account
// semantics.
// ---------------------------------------------------------------------

// AccountSnapshot is one account's pod-view: enough to reconstruct its
// basic-account RLP, but not its storage content (storage_root/delta_root
// themselves are not reversible into slot contents without walking the
// per-account trie, which a pod dump does not attempt).
type AccountSnapshot struct {
	VM      account.Type
	Balance *uint256.Int
	Nonce   uint64
	Code    []byte
}

// Pod is a deterministic map[Address]AccountSnapshot view of the top-level
// trie.
type Pod map[xcommon.Address]AccountSnapshot

// PodDump walks the top-level trie and returns a Pod snapshot. Calling it
// with an open checkpoint is a defect: a pod dump assumes settled state,
// the same way the original's to_pod does.
//
// An address the current session never loaded into either manager can't be
// VM-tagged from its raw RLP alone — storage_root and delta_root share one
// encoding slot (see DESIGN.md's "single shared top-level trie" decision)
// — so such an address is reported as FVM, matching the dispatch rule's
// own FVM-first convention; a caller that needs exact tagging for those
// addresses should have loaded them (e.g. via Exists) before dumping.
func (s *State) PodDump() (Pod, error) {
	if s.fvm.CheckpointDepth() != 0 || s.avm.CheckpointDepth() != 0 {
		xerrors.Defect("pod_dump with an open checkpoint")
	}
	pod := make(Pod)
	var walkErr error
	s.trie.Each(func(logicalKey, value []byte) {
		if walkErr != nil {
			return
		}
		addr := xcommon.BytesToAddress(logicalKey)
		nonce, balance, _, _, err := account.DecodeBasicAccountRLP(value)
		if err != nil {
			walkErr = err
			return
		}
		snap := AccountSnapshot{VM: account.TypeFVM, Balance: balance, Nonce: nonce}
		if fe, ok := s.fvm.Peek(addr); ok && fe.Account != nil {
			snap.Code = fe.Account.Code()
		} else if ae, ok := s.avm.Peek(addr); ok && ae.Account != nil {
			snap.VM = account.TypeAVM
			snap.Code = ae.Account.Code()
		}
		pod[addr] = snap
	})
	return pod, walkErr
}

// Commit writes pod into a fresh top-level trie over db and returns its
// root — the reverse of PodDump, used for genesis construction.
func (p Pod) Commit(db triedb.Database) (xcommon.H256, error) {
	trie, err := triedb.NewSecureTrie(db, triedb.ColDefault, nil, xcommon.EmptyTrieRoot)
	if err != nil {
		return xcommon.H256{}, err
	}
	addrs := make([]xcommon.Address, 0, len(p))
	for a := range p {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i].Hex() < addrs[j].Hex() })

	batch := db.NewBatch()
	for _, addr := range addrs {
		snap := p[addr]
		var enc []byte
		if snap.VM == account.TypeAVM {
			a := account.NewBasicAVM(addr, snap.Balance, snap.Nonce, 1)
			if len(snap.Code) > 0 {
				a.SetCode(snap.Code)
				if err := a.CommitCode(batch); err != nil {
					return xcommon.H256{}, err
				}
			}
			enc, err = account.EncodeBasicAccountRLP(a)
		} else {
			a := account.NewBasicFVM(addr, snap.Balance, snap.Nonce, 1)
			if len(snap.Code) > 0 {
				a.SetCode(snap.Code)
				if err := a.CommitCode(batch); err != nil {
					return xcommon.H256{}, err
				}
			}
			enc, err = account.EncodeBasicAccountRLP(a)
		}
		if err != nil {
			return xcommon.H256{}, err
		}
		trie.Update(addr.Bytes(), enc)
	}
	root := trie.CommitTo(batch)
	if err := batch.Write(); err != nil {
		return xcommon.H256{}, xerrors.WrapTrie("pod_commit:write", err)
	}
	return root, nil
}

func sortedAddrs(m map[xcommon.Address]*acache.Entry[*account.FVMAccount]) []xcommon.Address {
	out := make([]xcommon.Address, 0, len(m))
	for a := range m {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hex() < out[j].Hex() })
	return out
}

func sortedAddrsAVM(m map[xcommon.Address]*acache.Entry[*account.AVMAccount]) []xcommon.Address {
	out := make([]xcommon.Address, 0, len(m))
	for a := range m {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hex() < out[j].Hex() })
	return out
}
