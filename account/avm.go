package account

import (
	"math/big"

	xcommon "github.com/aion-network/aion-state/internal/common"
	"github.com/aion-network/aion-state/internal/triedb"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/holiman/uint256"
)

// AVMAccount is the Aion-VM account shape: balance/nonce/code plus a
// raw-bytes storage overlay and an object-graph side record whose hash
// folds into delta_root (spec §3.3/§4.1.3).
type AVMAccount struct {
	addr        xcommon.Address
	addressHash *xcommon.H256

	balance *uint256.Int
	nonce   uint64

	rawStorageRoot xcommon.H256 // storage_root of the raw key-value trie
	deltaRoot      xcommon.H256 // BLAKE2b(storage_root ‖ objectgraph_hash) — the RLP "root" field
	storageTrie    *triedb.SecureTrie

	codeHash        xcommon.H256
	codeCache       []byte
	transformedCode []byte
	codeFilth       CodeFilth

	objectGraphHash xcommon.H256
	objectGraph     []byte // object_graph_cache: raw bytes, opaque to this engine
	objectGraphSize int
	vmCreate        bool // set on CREATE and by SetTransformedCode/SetObjectGraph; forces delta_root recomputation at commit (spec §4.3.5)

	changes map[xcommon.H256][]byte // hashed logical-key -> value
	rawKeys map[xcommon.H256][]byte // hashed logical-key -> original logical key (arbitrary length, not recoverable from the hash)
	cache   *lru.Cache[xcommon.H256, []byte]
}

// NewBasicAVM mirrors NewBasicFVM for the AVM account shape.
func NewBasicAVM(addr xcommon.Address, balance *uint256.Int, nonce uint64, cacheCapacity int) *AVMAccount {
	a := &AVMAccount{
		addr:           addr,
		balance:        balance.Clone(),
		nonce:          nonce,
		rawStorageRoot: xcommon.EmptyTrieRoot,
		codeHash:       xcommon.EmptyHash,
		changes:        make(map[xcommon.H256][]byte),
		rawKeys:        make(map[xcommon.H256][]byte),
	}
	a.deltaRoot = xcommon.Blake2b256(a.rawStorageRoot.Bytes(), a.objectGraphHash.Bytes())
	a.cache, _ = lru.New[xcommon.H256, []byte](cacheCapacity)
	return a
}

// NewContractAVM creates an AVM account destined for CREATE, with vm_create
// set so the next commit always recomputes delta_root even if no storage
// or object-graph field changed (spec §4.3.5).
func NewContractAVM(addr xcommon.Address, balance *uint256.Int, nonce uint64, cacheCapacity int) *AVMAccount {
	a := NewBasicAVM(addr, balance, nonce, cacheCapacity)
	a.vmCreate = true
	return a
}

// DecodeAVMFromRLP reconstructs an account from its 4-field basic-account
// RLP encoding (spec §4.1.7 — root is delta_root for AVM).
func DecodeAVMFromRLP(addr xcommon.Address, data []byte, cacheCapacity int) (*AVMAccount, error) {
	nonce, balance, root, codeHash, err := DecodeBasicAccountRLP(data)
	if err != nil {
		return nil, err
	}
	a := NewBasicAVM(addr, balance, nonce, cacheCapacity)
	a.deltaRoot = root
	a.codeHash = codeHash
	return a, nil
}

func (a *AVMAccount) Type() Type { return TypeAVM }

func (a *AVMAccount) AddressHash(addr xcommon.Address) xcommon.H256 {
	if a.addressHash == nil {
		h := xcommon.Blake2b256(addr.Bytes())
		a.addressHash = &h
	}
	return *a.addressHash
}

func (a *AVMAccount) Balance() *uint256.Int     { return a.balance }
func (a *AVMAccount) SetBalance(v *uint256.Int) { a.balance = v.Clone() }
func (a *AVMAccount) Nonce() uint64             { return a.nonce }
func (a *AVMAccount) SetNonce(n uint64)         { a.nonce = n }

func (a *AVMAccount) CodeHash() xcommon.H256 { return a.codeHash }
func (a *AVMAccount) Code() []byte           { return a.codeCache }
func (a *AVMAccount) CodeSize() int          { return len(a.codeCache) }

func (a *AVMAccount) SetCode(code []byte) {
	a.codeCache = append([]byte(nil), code...)
	a.codeHash = xcommon.Blake2b256(code)
	a.codeFilth = Dirty
}

func (a *AVMAccount) TransformedCode() []byte { return a.transformedCode }

// SetTransformedCode stores the AVM-specific transformed bytecode and marks
// the account for delta_root recomputation at commit, mirroring the object
// graph's commit coupling (spec §4.3.5: "if transformed_code_hash !=
// EMPTY_HASH, recompute delta_root").
func (a *AVMAccount) SetTransformedCode(code []byte) {
	a.transformedCode = append([]byte(nil), code...)
	a.codeFilth = Dirty
	a.vmCreate = true
}

// HydrateCode fills code/transformed-code from a disk read without marking
// the account Dirty.
func (a *AVMAccount) HydrateCode(code, transformedCode []byte) {
	a.codeCache = code
	a.transformedCode = transformedCode
}

func (a *AVMAccount) CodeFilth() CodeFilth { return a.codeFilth }
func (a *AVMAccount) IsBasic() bool        { return len(a.codeCache) == 0 }

func (a *AVMAccount) IsNull(startNonce uint64) bool {
	return a.balance.IsZero() && a.nonce == startNonce && a.codeHash == xcommon.EmptyHash
}

func (a *AVMAccount) StorageIsClean() bool { return len(a.changes) == 0 }

func (a *AVMAccount) IsEmpty(startNonce uint64) bool {
	if !a.StorageIsClean() {
		panic("account: IsEmpty called with pending storage changes")
	}
	return a.IsNull(startNonce) && a.rawStorageRoot == xcommon.EmptyTrieRoot && a.objectGraphHash.IsZero()
}

// RLPFields exposes delta_root, not storage_root, as the basic-account
// "root" slot (spec §3.3: "the encoded basic form differs only in which
// hash fills that slot").
func (a *AVMAccount) RLPFields() (nonce, balance *big.Int, root, codeHash xcommon.H256) {
	return new(big.Int).SetUint64(a.nonce), a.balance.ToBig(), a.deltaRoot, a.codeHash
}

func (a *AVMAccount) CommitCode(batch triedb.Batch) error {
	write, blob := commitCodePolicy(a.codeFilth == Dirty, a.codeCache, a.transformedCode)
	if a.codeFilth == Dirty {
		if write {
			batch.Put(triedb.ColDefault, a.codeHash.Bytes(), blob)
		}
		a.codeFilth = Clean
	}
	return nil
}

// ObjectGraph returns the cached object-graph bytes and its hash.
func (a *AVMAccount) ObjectGraph() ([]byte, xcommon.H256) { return a.objectGraph, a.objectGraphHash }

// SetObjectGraph replaces the object-graph record and marks the account for
// delta_root recomputation at the next commit (spec §4.1.3/§4.3.5).
func (a *AVMAccount) SetObjectGraph(graph []byte) {
	a.objectGraph = append([]byte(nil), graph...)
	a.objectGraphSize = len(graph)
	a.objectGraphHash = xcommon.Blake2b256(graph)
	a.codeFilth = Dirty
	a.vmCreate = true
}

func (a *AVMAccount) ObjectGraphSize() int { return a.objectGraphSize }

// DeltaRoot returns the root, but only when storage is clean.
func (a *AVMAccount) DeltaRoot() (xcommon.H256, bool) {
	if !a.StorageIsClean() {
		return xcommon.H256{}, false
	}
	return a.deltaRoot, true
}

func (a *AVMAccount) openStorageTrie(db triedb.Database) (*triedb.SecureTrie, error) {
	if a.storageTrie == nil {
		ah := a.AddressHash(a.addr)
		t, err := triedb.NewSecureTrie(db, triedb.ColDefault, ah.Bytes(), a.rawStorageRoot)
		if err != nil {
			return nil, err
		}
		a.storageTrie = t
	}
	return a.storageTrie, nil
}

// GetStorage implements the three-tier raw-bytes read: overlay, LRU, trie
// (spec §4.1.3 — AVM storage keys/values are arbitrary byte strings, unlike
// FVM's fixed widths).
func (a *AVMAccount) GetStorage(db triedb.Database, key []byte) ([]byte, error) {
	hk := xcommon.Blake2b256(key)
	if v, ok := a.changes[hk]; ok {
		return v, nil
	}
	if v, ok := a.cache.Get(hk); ok {
		return v, nil
	}
	trie, err := a.openStorageTrie(db)
	if err != nil {
		return nil, err
	}
	enc := trie.Get(key)
	a.cache.Add(hk, enc)
	return enc, nil
}

// SetStorage buffers a raw key/value write; nil or empty value means
// delete at commit.
func (a *AVMAccount) SetStorage(key, value []byte) {
	hk := xcommon.Blake2b256(key)
	a.changes[hk] = append([]byte(nil), value...)
	a.rawKeys[hk] = append([]byte(nil), key...)
}

// DiscardStorage drops buffered raw storage writes without touching the
// trie (spec §4.3.5 commit path for a null account with buffered writes).
func (a *AVMAccount) DiscardStorage() {
	a.changes = make(map[xcommon.H256][]byte)
	a.rawKeys = make(map[xcommon.H256][]byte)
}

// CommitStorage drains the raw storage overlay into the trie and, when
// vm_create or the object graph changed, recomputes delta_root per spec
// §4.3.5: delta_root = BLAKE2b(storage_root ‖ objectgraph_hash). The object
// graph is persisted under its own delta_root (mirroring
// save_object_graph's db.emplace(self.delta_root, object_graph)), and the
// raw storage_root is persisted under the plain address (db.emplace(address,
// storage_root)), so update_account_cache can recover both from a bare
// address + RLP root on reload.
func (a *AVMAccount) CommitStorage(db triedb.Database, batch triedb.Batch) error {
	if a.StorageIsClean() && !a.vmCreate {
		return nil
	}
	trie, err := a.openStorageTrie(db)
	if err != nil {
		return err
	}
	for hk, v := range a.changes {
		key := a.rawKeys[hk]
		if len(v) == 0 {
			trie.Delete(key)
		} else {
			trie.Update(key, v)
		}
		a.cache.Add(hk, v)
		delete(a.changes, hk)
		delete(a.rawKeys, hk)
	}
	a.rawStorageRoot = trie.CommitTo(batch)
	a.deltaRoot = xcommon.Blake2b256(a.rawStorageRoot.Bytes(), a.objectGraphHash.Bytes())
	if !a.objectGraphHash.IsZero() {
		batch.Put(triedb.ColExtra, a.deltaRoot.Bytes(), a.objectGraph)
	}
	batch.Put(triedb.ColExtra, a.addr.Bytes(), a.rawStorageRoot.Bytes())
	a.vmCreate = false
	return nil
}

// HydrateStorageRecords fills rawStorageRoot and the object graph from the
// ColExtra side-records keyed by address and delta_root, mirroring
// update_account_cache's "always cache object graph and key/value storage
// root" step on a freshly loaded account. It must run once, right after
// DecodeAVMFromRLP, before any storage read or commit.
func (a *AVMAccount) HydrateStorageRecords(db triedb.Database) {
	if root, ok := db.Get(triedb.ColExtra, a.addr.Bytes()); ok {
		a.rawStorageRoot = xcommon.BytesToH256(root)
	}
	if graph, ok := db.Get(triedb.ColExtra, a.deltaRoot.Bytes()); ok {
		a.objectGraph = graph
		a.objectGraphSize = len(graph)
		a.objectGraphHash = xcommon.Blake2b256(graph)
	}
}

// Clone deep-copies the account for checkpoint snapshots; LRU and the live
// storage-trie handle are shared, matching FVMAccount.Clone.
func (a *AVMAccount) Clone() Account {
	clone := &AVMAccount{
		addr:            a.addr,
		addressHash:     a.addressHash,
		balance:         a.balance.Clone(),
		nonce:           a.nonce,
		rawStorageRoot:  a.rawStorageRoot,
		deltaRoot:       a.deltaRoot,
		storageTrie:     a.storageTrie,
		codeHash:        a.codeHash,
		codeCache:       a.codeCache,
		transformedCode: a.transformedCode,
		codeFilth:       a.codeFilth,
		objectGraphHash: a.objectGraphHash,
		objectGraph:     a.objectGraph,
		objectGraphSize: a.objectGraphSize,
		vmCreate:        a.vmCreate,
		changes:         make(map[xcommon.H256][]byte, len(a.changes)),
		rawKeys:         make(map[xcommon.H256][]byte, len(a.rawKeys)),
		cache:           a.cache,
	}
	for k, v := range a.changes {
		clone.changes[k] = v
	}
	for k, v := range a.rawKeys {
		clone.rawKeys[k] = v
	}
	return clone
}
