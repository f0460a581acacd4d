package globalcache

import (
	"testing"

	"github.com/aion-network/aion-state/account"
	xcommon "github.com/aion-network/aion-state/internal/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func TestCache_CommittedWinsOverCleanFresh(t *testing.T) {
	c := New(100, 1024)
	addr := xcommon.BytesToAddress([]byte{0x01})
	a := account.NewBasicFVM(addr, uint256.NewInt(1), 0, 16)

	c.AddToAccountCache(account.TypeFVM, addr, a, true)

	fresh := account.NewBasicFVM(addr, uint256.NewInt(999), 0, 16)
	c.AddToAccountCache(account.TypeFVM, addr, fresh, false)

	got, ok := c.GetCachedAccount(account.TypeFVM, addr)
	require.True(t, ok)
	require.Equal(t, uint64(1), got.Balance().Uint64(),
		"a later CleanFresh propagation must never overwrite an existing Committed entry")
}

func TestCache_GetCachedAccountReturnsAClone(t *testing.T) {
	c := New(100, 1024)
	addr := xcommon.BytesToAddress([]byte{0x02})
	a := account.NewBasicFVM(addr, uint256.NewInt(1), 0, 16)
	c.AddToAccountCache(account.TypeFVM, addr, a, true)

	got, _ := c.GetCachedAccount(account.TypeFVM, addr)
	got.SetBalance(uint256.NewInt(42))

	got2, _ := c.GetCachedAccount(account.TypeFVM, addr)
	require.Equal(t, uint64(1), got2.Balance().Uint64(), "mutating a cloned read must not affect the cached original")
}

func TestCache_NegativeNullCache(t *testing.T) {
	c := New(100, 1024)
	addr := xcommon.BytesToAddress([]byte{0x03})

	require.False(t, c.IsKnownNull(addr))
	c.AddToAccountCache(account.TypeFVM, addr, nil, false)
	require.True(t, c.IsKnownNull(addr))

	c.NoteNonNullAccount(addr)
	require.False(t, c.IsKnownNull(addr))
}

func TestCache_CodeAndCodeSize(t *testing.T) {
	c := New(100, 1024)
	hash := xcommon.Blake2b256([]byte("code"))

	c.CacheCode(hash, []byte("code"))
	blob, ok := c.GetCachedCode(hash)
	require.True(t, ok)
	require.Equal(t, []byte("code"), blob)

	c.CacheCodeSize(hash, 4)
	size, ok := c.GetCachedCodeSize(hash)
	require.True(t, ok)
	require.Equal(t, 4, size)
}

func TestCache_ClearCacheIsPerKind(t *testing.T) {
	c := New(100, 1024)
	addr := xcommon.BytesToAddress([]byte{0x04})
	c.AddToAccountCache(account.TypeFVM, addr, account.NewBasicFVM(addr, uint256.NewInt(0), 0, 16), true)
	c.AddToAccountCache(account.TypeAVM, addr, account.NewBasicAVM(addr, uint256.NewInt(0), 0, 16), true)

	c.ClearCache(account.TypeFVM)

	_, okFVM := c.GetCachedAccount(account.TypeFVM, addr)
	_, okAVM := c.GetCachedAccount(account.TypeAVM, addr)
	require.False(t, okFVM)
	require.True(t, okAVM)
}
