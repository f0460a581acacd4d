package triedb

import (
	"github.com/syndtr/goleveldb/leveldb"
)

// LevelDB is the on-disk Database implementation, backed by
// github.com/syndtr/goleveldb — the same embedded engine the teacher's
// go.mod carries as a direct dependency. Column families are emulated with
// a one-byte key prefix, since goleveldb has no native CF concept.
type LevelDB struct {
	db *leveldb.DB
}

func OpenLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &LevelDB{db: db}, nil
}

func (l *LevelDB) Close() error { return l.db.Close() }

func prefixed(cf ColumnFamily, key []byte) []byte {
	out := make([]byte, len(key)+1)
	out[0] = byte(cf)
	copy(out[1:], key)
	return out
}

func (l *LevelDB) Get(cf ColumnFamily, key []byte) ([]byte, bool) {
	v, err := l.db.Get(prefixed(cf, key), nil)
	if err != nil {
		return nil, false
	}
	return v, true
}

func (l *LevelDB) NewBatch() Batch {
	return &levelBatch{db: l.db, batch: new(leveldb.Batch)}
}

type levelBatch struct {
	db    *leveldb.DB
	batch *leveldb.Batch
}

func (b *levelBatch) Put(cf ColumnFamily, key, value []byte) {
	b.batch.Put(prefixed(cf, key), value)
}

func (b *levelBatch) Delete(cf ColumnFamily, key []byte) {
	b.batch.Delete(prefixed(cf, key))
}

func (b *levelBatch) Write() error {
	return b.db.Write(b.batch, nil)
}
