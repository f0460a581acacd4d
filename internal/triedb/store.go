// Package triedb implements the engine's one external collaborator that
// spec.md explicitly puts out of scope: an authenticated, hash-addressed
// key-value store ("Trie/KV backend") with a BLAKE2b "secure" keying
// variant. It is intentionally narrow — the account/state/cache packages
// never see anything beyond the Database/Batch interfaces below and the
// SecureTrie type in trie.go.
package triedb

// ColumnFamily distinguishes the default state/storage-trie keyspace from
// the AVM auxiliary keyspace (object-graph blobs, raw storage roots) that
// spec §6 calls COL_EXTRA.
type ColumnFamily uint8

const (
	ColDefault ColumnFamily = iota
	ColExtra
)

// Database is the narrow persistence contract the engine requires: a
// byte-addressed map, batched for atomic multi-key writes, namespaced by
// column family.
type Database interface {
	Get(cf ColumnFamily, key []byte) ([]byte, bool)
	NewBatch() Batch
}

// Batch accumulates writes for atomic application. Every backend mutation
// performed during a commit (code blobs, storage trie nodes, AVM
// object-graph/raw-root records) goes through the same Batch so that a
// single Write call makes them all visible together.
type Batch interface {
	Put(cf ColumnFamily, key, value []byte)
	Delete(cf ColumnFamily, key []byte)
	Write() error
}

// Memory is an in-process Database, used by tests and as the "pure
// in-memory stub" the design notes call for.
type Memory struct {
	data map[ColumnFamily]map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{data: map[ColumnFamily]map[string][]byte{
		ColDefault: make(map[string][]byte),
		ColExtra:   make(map[string][]byte),
	}}
}

func (m *Memory) Get(cf ColumnFamily, key []byte) ([]byte, bool) {
	v, ok := m.data[cf][string(key)]
	if !ok {
		return nil, false
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true
}

func (m *Memory) NewBatch() Batch {
	return &memoryBatch{db: m, puts: map[ColumnFamily]map[string][]byte{}, dels: map[ColumnFamily]map[string]struct{}{}}
}

type memoryBatch struct {
	db   *Memory
	puts map[ColumnFamily]map[string][]byte
	dels map[ColumnFamily]map[string]struct{}
}

func (b *memoryBatch) Put(cf ColumnFamily, key, value []byte) {
	if b.puts[cf] == nil {
		b.puts[cf] = make(map[string][]byte)
	}
	v := make([]byte, len(value))
	copy(v, value)
	b.puts[cf][string(key)] = v
}

func (b *memoryBatch) Delete(cf ColumnFamily, key []byte) {
	if b.dels[cf] == nil {
		b.dels[cf] = make(map[string]struct{})
	}
	b.dels[cf][string(key)] = struct{}{}
}

func (b *memoryBatch) Write() error {
	for cf, kv := range b.puts {
		for k, v := range kv {
			b.db.data[cf][k] = v
		}
	}
	for cf, ks := range b.dels {
		for k := range ks {
			delete(b.db.data[cf], k)
		}
	}
	return nil
}
