package triedb

import (
	"bytes"
	"encoding/binary"
	"sort"

	xcommon "github.com/aion-network/aion-state/internal/common"
)

// SecureTrie is the "secure" authenticated map from spec §3.1/§6: logical
// keys are hashed with BLAKE2b before being used as the physical key, so an
// adversary cannot choose trie structure by choosing logical keys. A
// SecureTrie is scoped to a namespace (nil for the top-level state trie, the
// owning address hash for a per-account storage trie) so that many tries
// can share one underlying Database.
//
// The "Merkle-ness" of the trie — reconstructing identical state from just a
// root hash — is achieved by persisting, alongside each physical entry, a
// manifest of the full live key set under a key derived from the root. This
// keeps the authenticated-map contract spec.md actually asks for (§2:
// "Authenticated map hash -> bytes") without pulling in out-of-scope
// Merkle-Patricia compression logic.
type SecureTrie struct {
	db  Database
	cf  ColumnFamily
	ns  []byte
	root xcommon.H256

	entries   map[xcommon.H256][]byte // physical key -> value
	preimages map[xcommon.H256][]byte // physical key -> logical key
}

// NewSecureTrie opens (or, if root is EmptyTrieRoot, creates) a secure trie
// in the given namespace. A non-empty root is resolved via the manifest
// persisted at the last Commit.
func NewSecureTrie(db Database, cf ColumnFamily, ns []byte, root xcommon.H256) (*SecureTrie, error) {
	t := &SecureTrie{
		db:        db,
		cf:        cf,
		ns:        append([]byte(nil), ns...),
		root:      root,
		entries:   make(map[xcommon.H256][]byte),
		preimages: make(map[xcommon.H256][]byte),
	}
	if root == xcommon.EmptyTrieRoot || root.IsZero() {
		t.root = xcommon.EmptyTrieRoot
		return t, nil
	}
	manifest, ok := db.Get(cf, t.manifestKey(root))
	if !ok {
		return nil, ErrMissingRoot{Root: root}
	}
	if err := t.loadManifest(manifest); err != nil {
		return nil, err
	}
	return t, nil
}

// ErrMissingRoot is a TrieError-flavored fault: the caller asked to open a
// root this Database has never committed.
type ErrMissingRoot struct{ Root xcommon.H256 }

func (e ErrMissingRoot) Error() string { return "triedb: unknown root " + e.Root.Hex() }

func (t *SecureTrie) manifestKey(root xcommon.H256) []byte {
	return append(append([]byte("manifest:"), t.ns...), root.Bytes()...)
}

func (t *SecureTrie) loadManifest(manifest []byte) error {
	buf := manifest
	for len(buf) > 0 {
		if len(buf) < 32+4 {
			return bytesCorruptErr{}
		}
		var physKey xcommon.H256
		copy(physKey[:], buf[:32])
		buf = buf[32:]
		n := binary.BigEndian.Uint32(buf[:4])
		buf = buf[4:]
		if uint32(len(buf)) < n {
			return bytesCorruptErr{}
		}
		value := append([]byte(nil), buf[:n]...)
		buf = buf[n:]
		t.entries[physKey] = value
		if preimage, ok := t.db.Get(t.cf, preimageKey(t.ns, physKey)); ok {
			t.preimages[physKey] = preimage
		}
	}
	return nil
}

type bytesCorruptErr struct{}

func (bytesCorruptErr) Error() string { return "triedb: corrupt manifest" }

func preimageKey(ns []byte, physKey xcommon.H256) []byte {
	return append(append([]byte("preimage:"), ns...), physKey.Bytes()...)
}

// physicalKey hashes a logical key into its secure physical key.
func (t *SecureTrie) physicalKey(logicalKey []byte) xcommon.H256 {
	return xcommon.Blake2b256(t.ns, logicalKey)
}

// Get returns the value stored at logicalKey, or nil if absent. The live
// entry set is complete from the moment the trie is opened (its root's
// manifest is loaded in full), so a key removed by Delete stays absent even
// though its old physical record remains in the Database.
func (t *SecureTrie) Get(logicalKey []byte) []byte {
	pk := t.physicalKey(logicalKey)
	if v, ok := t.entries[pk]; ok {
		return v
	}
	return nil
}

// Update sets logicalKey to value (in-memory; persisted at Commit).
func (t *SecureTrie) Update(logicalKey, value []byte) {
	pk := t.physicalKey(logicalKey)
	t.entries[pk] = append([]byte(nil), value...)
	t.preimages[pk] = append([]byte(nil), logicalKey...)
}

// Delete removes logicalKey (in-memory; persisted at Commit).
func (t *SecureTrie) Delete(logicalKey []byte) {
	pk := t.physicalKey(logicalKey)
	delete(t.entries, pk)
	delete(t.preimages, pk)
}

// Hash recomputes the root digest over the current in-memory entry set
// without persisting anything.
func (t *SecureTrie) Hash() xcommon.H256 {
	if len(t.entries) == 0 {
		return xcommon.EmptyTrieRoot
	}
	keys := make([]xcommon.H256, 0, len(t.entries))
	for k := range t.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return bytes.Compare(keys[i][:], keys[j][:]) < 0 })

	var manifest bytes.Buffer
	for _, k := range keys {
		v := t.entries[k]
		manifest.Write(k[:])
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(v)))
		manifest.Write(lenBuf[:])
		manifest.Write(v)
	}
	root := xcommon.Blake2b256(manifest.Bytes())
	t.root = root
	return root
}

// Each calls fn once per live (logicalKey, value) pair, in ascending
// physical-key order. A logical key whose preimage was never recorded
// (an entry loaded from a manifest whose preimage record is missing) is
// skipped — callers that need a complete pod dump depend on every
// Update/Delete having gone through this trie rather than a raw db write.
func (t *SecureTrie) Each(fn func(logicalKey, value []byte)) {
	keys := make([]xcommon.H256, 0, len(t.entries))
	for k := range t.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return bytes.Compare(keys[i][:], keys[j][:]) < 0 })
	for _, k := range keys {
		logical, ok := t.preimages[k]
		if !ok {
			continue
		}
		fn(logical, t.entries[k])
	}
}

// CommitTo writes every live entry plus the root's manifest into batch and
// returns the resulting root. The caller owns when batch.Write() happens,
// so multiple tries (e.g. a storage trie and its owning state trie) can be
// folded into one atomic write — resolving the open question in spec §9(d)
// about object-graph writes escaping the commit transaction.
func (t *SecureTrie) CommitTo(batch Batch) xcommon.H256 {
	root := t.Hash()
	if len(t.entries) == 0 {
		return root
	}
	var manifest bytes.Buffer
	keys := make([]xcommon.H256, 0, len(t.entries))
	for k := range t.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return bytes.Compare(keys[i][:], keys[j][:]) < 0 })
	for _, k := range keys {
		v := t.entries[k]
		batch.Put(t.cf, k.Bytes(), v)
		if preimage, ok := t.preimages[k]; ok {
			batch.Put(t.cf, preimageKey(t.ns, k), preimage)
		}
		manifest.Write(k[:])
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(v)))
		manifest.Write(lenBuf[:])
		manifest.Write(v)
	}
	batch.Put(t.cf, t.manifestKey(root), manifest.Bytes())
	return root
}
