package triedb

import (
	"testing"

	xcommon "github.com/aion-network/aion-state/internal/common"
	"github.com/stretchr/testify/require"
)

func TestSecureTrie_UpdateGetDelete(t *testing.T) {
	db := NewMemory()
	tr, err := NewSecureTrie(db, ColDefault, nil, xcommon.EmptyTrieRoot)
	require.NoError(t, err)

	tr.Update([]byte("alice"), []byte("100"))
	require.Equal(t, []byte("100"), tr.Get([]byte("alice")))

	tr.Delete([]byte("alice"))
	require.Nil(t, tr.Get([]byte("alice")))
}

func TestSecureTrie_EmptyTrieHashIsEmptyRoot(t *testing.T) {
	db := NewMemory()
	tr, err := NewSecureTrie(db, ColDefault, nil, xcommon.EmptyTrieRoot)
	require.NoError(t, err)
	require.Equal(t, xcommon.EmptyTrieRoot, tr.Hash())
}

func TestSecureTrie_CommitAndReopenByRoot(t *testing.T) {
	db := NewMemory()
	tr, err := NewSecureTrie(db, ColDefault, nil, xcommon.EmptyTrieRoot)
	require.NoError(t, err)

	tr.Update([]byte("alice"), []byte("100"))
	tr.Update([]byte("bob"), []byte("200"))

	batch := db.NewBatch()
	root := tr.CommitTo(batch)
	require.NoError(t, batch.Write())
	require.NotEqual(t, xcommon.EmptyTrieRoot, root)

	reopened, err := NewSecureTrie(db, ColDefault, nil, root)
	require.NoError(t, err)
	require.Equal(t, []byte("100"), reopened.Get([]byte("alice")))
	require.Equal(t, []byte("200"), reopened.Get([]byte("bob")))
}

func TestSecureTrie_ReopenUnknownRootFails(t *testing.T) {
	db := NewMemory()
	_, err := NewSecureTrie(db, ColDefault, nil, xcommon.BytesToH256([]byte("nonexistent")))
	require.Error(t, err)
	require.IsType(t, ErrMissingRoot{}, err)
}

func TestSecureTrie_NamespacesDoNotCollide(t *testing.T) {
	db := NewMemory()
	ns1, err := NewSecureTrie(db, ColDefault, []byte("account-a"), xcommon.EmptyTrieRoot)
	require.NoError(t, err)
	ns2, err := NewSecureTrie(db, ColDefault, []byte("account-b"), xcommon.EmptyTrieRoot)
	require.NoError(t, err)

	ns1.Update([]byte("slot"), []byte("from-a"))
	ns2.Update([]byte("slot"), []byte("from-b"))

	require.Equal(t, []byte("from-a"), ns1.Get([]byte("slot")))
	require.Equal(t, []byte("from-b"), ns2.Get([]byte("slot")))
}

func TestSecureTrie_EachVisitsLiveEntriesInOrder(t *testing.T) {
	db := NewMemory()
	tr, err := NewSecureTrie(db, ColDefault, nil, xcommon.EmptyTrieRoot)
	require.NoError(t, err)

	tr.Update([]byte("alice"), []byte("100"))
	tr.Update([]byte("bob"), []byte("200"))
	tr.Update([]byte("carol"), []byte("300"))
	tr.Delete([]byte("bob"))

	seen := map[string]string{}
	tr.Each(func(logicalKey, value []byte) {
		seen[string(logicalKey)] = string(value)
	})
	require.Equal(t, map[string]string{"alice": "100", "carol": "300"}, seen)
}
