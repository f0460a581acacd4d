package account

import (
	"bytes"
	"math/big"

	xcommon "github.com/aion-network/aion-state/internal/common"
	"github.com/aion-network/aion-state/internal/triedb"
	"github.com/ethereum/go-ethereum/rlp"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/holiman/uint256"
)

// StorageKeyKind distinguishes FVM's two storage-key widths (spec §4.1.4).
type StorageKeyKind uint8

const (
	KeyNormal StorageKeyKind = iota
	KeyWide
)

// StorageKey is a tagged FVM storage key: Normal(H128) or Wide(H128).
type StorageKey struct {
	Kind StorageKeyKind
	Key  xcommon.H128
}

// StorageValueKind distinguishes the two FVM storage-value widths.
type StorageValueKind uint8

const (
	ValueNormal StorageValueKind = iota
	ValueLong
)

// StorageValue is a tagged FVM storage value: Normal(H128) or Long(H256).
// The zero value of the declared width is what a missing key resolves to.
type StorageValue struct {
	Kind  StorageValueKind
	Short xcommon.H128
	Long  xcommon.H256
}

func (v StorageValue) IsZero() bool {
	if v.Kind == ValueNormal {
		return v.Short.IsZero()
	}
	return v.Long.IsZero()
}

// FVMAccount is the Fast-VM account shape: balance/nonce/code plus two
// width-typed storage overlays (spec §3.3/§4.1.4).
type FVMAccount struct {
	addr        xcommon.Address
	addressHash *xcommon.H256

	balance *uint256.Int
	nonce   uint64

	storageRoot xcommon.H256
	storageTrie *triedb.SecureTrie

	codeHash        xcommon.H256
	codeCache       []byte
	transformedCode []byte
	codeFilth       CodeFilth

	emptyButCommit bool

	changesNormal map[xcommon.H128]xcommon.H128
	changesWide   map[xcommon.H128]xcommon.H256

	cacheNormal *lru.Cache[xcommon.H128, xcommon.H128]
	cacheWide   *lru.Cache[xcommon.H128, xcommon.H256]
}

// NewBasicFVM creates an FVM account as it would appear freshly loaded or
// constructed with no code (spec §3.3 lifecycle: "new_basic").
func NewBasicFVM(addr xcommon.Address, balance *uint256.Int, nonce uint64, cacheCapacity int) *FVMAccount {
	a := &FVMAccount{
		addr:        addr,
		balance:     balance.Clone(),
		nonce:       nonce,
		storageRoot: xcommon.EmptyTrieRoot,
		codeHash:    xcommon.EmptyHash,
		changesNormal: make(map[xcommon.H128]xcommon.H128),
		changesWide:   make(map[xcommon.H128]xcommon.H256),
	}
	a.cacheNormal, _ = lru.New[xcommon.H128, xcommon.H128](cacheCapacity)
	a.cacheWide, _ = lru.New[xcommon.H128, xcommon.H256](cacheCapacity)
	return a
}

// NewContractFVM creates an FVM account destined to receive code (spec
// §3.3 lifecycle: "new_contract"). Identical shape to NewBasicFVM; the
// distinction is purely about caller intent (the State facade routes VM
// CREATE-style construction through here).
func NewContractFVM(addr xcommon.Address, balance *uint256.Int, nonce uint64, cacheCapacity int) *FVMAccount {
	return NewBasicFVM(addr, balance, nonce, cacheCapacity)
}

// DecodeFVMFromRLP reconstructs an account from its 4-field basic-account
// RLP encoding (spec §4.1.7 — root is storage_root for FVM).
func DecodeFVMFromRLP(addr xcommon.Address, data []byte, cacheCapacity int) (*FVMAccount, error) {
	nonce, balance, root, codeHash, err := DecodeBasicAccountRLP(data)
	if err != nil {
		return nil, err
	}
	a := NewBasicFVM(addr, balance, nonce, cacheCapacity)
	a.storageRoot = root
	a.codeHash = codeHash
	return a, nil
}

func (a *FVMAccount) Type() Type { return TypeFVM }

func (a *FVMAccount) AddressHash(addr xcommon.Address) xcommon.H256 {
	if a.addressHash == nil {
		h := xcommon.Blake2b256(addr.Bytes())
		a.addressHash = &h
	}
	return *a.addressHash
}

func (a *FVMAccount) Balance() *uint256.Int   { return a.balance }
func (a *FVMAccount) SetBalance(v *uint256.Int) { a.balance = v.Clone() }
func (a *FVMAccount) Nonce() uint64           { return a.nonce }
func (a *FVMAccount) SetNonce(n uint64)       { a.nonce = n }

func (a *FVMAccount) CodeHash() xcommon.H256 { return a.codeHash }
func (a *FVMAccount) Code() []byte           { return a.codeCache }
func (a *FVMAccount) CodeSize() int          { return len(a.codeCache) }

func (a *FVMAccount) SetCode(code []byte) {
	a.codeCache = append([]byte(nil), code...)
	a.codeHash = xcommon.Blake2b256(code)
	a.codeFilth = Dirty
}

func (a *FVMAccount) TransformedCode() []byte { return a.transformedCode }

func (a *FVMAccount) SetTransformedCode(code []byte) {
	a.transformedCode = append([]byte(nil), code...)
	a.codeFilth = Dirty
}

// HydrateCode fills code/transformed-code from a disk read without marking
// the account Dirty (spec §4.3.3: update_account_cache(RequireCache::Code)).
func (a *FVMAccount) HydrateCode(code, transformedCode []byte) {
	a.codeCache = code
	a.transformedCode = transformedCode
}

func (a *FVMAccount) CodeFilth() CodeFilth { return a.codeFilth }
func (a *FVMAccount) IsBasic() bool        { return len(a.codeCache) == 0 }

// SetEmptyButCommit forces commit of an otherwise-null account, per spec
// §3.3's empty_but_commit / upstream-compatibility escape hatch.
func (a *FVMAccount) SetEmptyButCommit() { a.emptyButCommit = true }
func (a *FVMAccount) EmptyButCommit() bool { return a.emptyButCommit }

func (a *FVMAccount) IsNull(startNonce uint64) bool {
	return a.balance.IsZero() && a.nonce == startNonce && a.codeHash == xcommon.EmptyHash
}

func (a *FVMAccount) StorageIsClean() bool {
	return len(a.changesNormal) == 0 && len(a.changesWide) == 0
}

func (a *FVMAccount) IsEmpty(startNonce uint64) bool {
	if !a.StorageIsClean() {
		panic("account: IsEmpty called with pending storage changes")
	}
	return a.IsNull(startNonce) && a.storageRoot == xcommon.EmptyTrieRoot
}

func (a *FVMAccount) RLPFields() (nonce, balance *big.Int, root, codeHash xcommon.H256) {
	return new(big.Int).SetUint64(a.nonce), a.balance.ToBig(), a.storageRoot, a.codeHash
}

func (a *FVMAccount) CommitCode(batch triedb.Batch) error {
	write, blob := commitCodePolicy(a.codeFilth == Dirty, a.codeCache, a.transformedCode)
	if a.codeFilth == Dirty {
		if write {
			batch.Put(triedb.ColDefault, a.codeHash.Bytes(), blob)
		}
		a.codeFilth = Clean
	}
	return nil
}

// StorageRoot returns storage_root, but only when storage is clean — spec
// §4.1.4 warns it is stale otherwise.
func (a *FVMAccount) StorageRoot() (xcommon.H256, bool) {
	if !a.StorageIsClean() {
		return xcommon.H256{}, false
	}
	return a.storageRoot, true
}

func (a *FVMAccount) openStorageTrie(db triedb.Database) (*triedb.SecureTrie, error) {
	if a.storageTrie == nil {
		ah := a.AddressHash(a.addr)
		t, err := triedb.NewSecureTrie(db, triedb.ColDefault, ah.Bytes(), a.storageRoot)
		if err != nil {
			return nil, err
		}
		a.storageTrie = t
	}
	return a.storageTrie, nil
}

// GetStorage implements the three-tier read of spec §4.1.4: overlay, LRU,
// then secure storage trie. It never mutates storage_changes.
func (a *FVMAccount) GetStorage(db triedb.Database, key StorageKey) (StorageValue, error) {
	switch key.Kind {
	case KeyNormal:
		if v, ok := a.changesNormal[key.Key]; ok {
			return StorageValue{Kind: ValueNormal, Short: v}, nil
		}
		if v, ok := a.cacheNormal.Get(key.Key); ok {
			return StorageValue{Kind: ValueNormal, Short: v}, nil
		}
		trie, err := a.openStorageTrie(db)
		if err != nil {
			return StorageValue{}, err
		}
		enc := trie.Get(xcommon.Blake2b256(key.Key.Bytes()).Bytes())
		var out xcommon.H128
		if len(enc) > 0 {
			_, content, err := rlpSplitString(enc)
			if err == nil {
				out = xcommon.BytesToH128(content)
			}
		}
		a.cacheNormal.Add(key.Key, out)
		return StorageValue{Kind: ValueNormal, Short: out}, nil
	default:
		if v, ok := a.changesWide[key.Key]; ok {
			return StorageValue{Kind: ValueLong, Long: v}, nil
		}
		if v, ok := a.cacheWide.Get(key.Key); ok {
			return StorageValue{Kind: ValueLong, Long: v}, nil
		}
		trie, err := a.openStorageTrie(db)
		if err != nil {
			return StorageValue{}, err
		}
		enc := trie.Get(xcommon.Blake2b256(key.Key.Bytes()).Bytes())
		var out xcommon.H256
		if len(enc) > 0 {
			_, content, err := rlpSplitString(enc)
			if err == nil {
				out = xcommon.BytesToH256(content)
			}
		}
		a.cacheWide.Add(key.Key, out)
		return StorageValue{Kind: ValueLong, Long: out}, nil
	}
}

// SetStorage buffers a write into storage_changes (spec §3.3); it never
// touches the trie directly.
func (a *FVMAccount) SetStorage(key StorageKey, value StorageValue) {
	switch key.Kind {
	case KeyNormal:
		a.changesNormal[key.Key] = value.Short
	default:
		a.changesWide[key.Key] = value.Long
	}
}

// DiscardStorage drops buffered storage_changes without touching the trie,
// used by commit when the account turns out to be null (spec §4.3.5).
func (a *FVMAccount) DiscardStorage() {
	a.changesNormal = make(map[xcommon.H128]xcommon.H128)
	a.changesWide = make(map[xcommon.H128]xcommon.H256)
}

// CommitStorage drains storage_changes into the secure storage trie per
// spec §4.1.5: zero values delete, others insert RLP-encoded; drained
// entries move into the LRU.
func (a *FVMAccount) CommitStorage(db triedb.Database, batch triedb.Batch) error {
	if a.StorageIsClean() {
		return nil
	}
	trie, err := a.openStorageTrie(db)
	if err != nil {
		return err
	}
	for k, v := range a.changesNormal {
		physical := xcommon.Blake2b256(k.Bytes()).Bytes()
		if v.IsZero() {
			trie.Delete(physical)
		} else {
			enc, _ := rlp.EncodeToBytes(bytes.TrimLeft(v.Bytes(), "\x00"))
			trie.Update(physical, enc)
		}
		a.cacheNormal.Add(k, v)
		delete(a.changesNormal, k)
	}
	for k, v := range a.changesWide {
		physical := xcommon.Blake2b256(k.Bytes()).Bytes()
		if v.IsZero() {
			trie.Delete(physical)
		} else {
			enc, _ := rlp.EncodeToBytes(bytes.TrimLeft(v.Bytes(), "\x00"))
			trie.Update(physical, enc)
		}
		a.cacheWide.Add(k, v)
		delete(a.changesWide, k)
	}
	a.storageRoot = trie.CommitTo(batch)
	return nil
}

// Clone deep-copies the account for checkpoint snapshots and global-cache
// propagation: basic fields and dirty storage are copied, LRUs and the
// live storage-trie handle are shared (design notes: "not the LRUs").
func (a *FVMAccount) Clone() Account {
	clone := &FVMAccount{
		addr:           a.addr,
		addressHash:    a.addressHash,
		balance:        a.balance.Clone(),
		nonce:          a.nonce,
		storageRoot:    a.storageRoot,
		storageTrie:    a.storageTrie,
		codeHash:        a.codeHash,
		codeCache:       a.codeCache,
		transformedCode: a.transformedCode,
		codeFilth:       a.codeFilth,
		emptyButCommit:  a.emptyButCommit,
		changesNormal:  make(map[xcommon.H128]xcommon.H128, len(a.changesNormal)),
		changesWide:    make(map[xcommon.H128]xcommon.H256, len(a.changesWide)),
		cacheNormal:    a.cacheNormal,
		cacheWide:      a.cacheWide,
	}
	for k, v := range a.changesNormal {
		clone.changesNormal[k] = v
	}
	for k, v := range a.changesWide {
		clone.changesWide[k] = v
	}
	return clone
}

// rlpSplitString strips an RLP string header, returning (prefixLen, content, err).
func rlpSplitString(enc []byte) (int, []byte, error) {
	_, content, _, err := rlp.Split(enc)
	return 0, content, err
}
