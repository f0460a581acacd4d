package cache

import (
	"testing"

	"github.com/aion-network/aion-state/account"
	xcommon "github.com/aion-network/aion-state/internal/common"
	"github.com/aion-network/aion-state/globalcache"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func newFVMManager() *Manager[*account.FVMAccount] {
	return NewManager[*account.FVMAccount](account.TypeFVM, 0)
}

func noopLoader() (*account.FVMAccount, error) { return nil, nil }
func noopCodeLoader(*account.FVMAccount) error  { return nil }

func TestManager_RequireThenRevert(t *testing.T) {
	m := newFVMManager()
	global := globalcache.New(1024, 1024)
	addr := xcommon.BytesToAddress([]byte{0x01})

	m.Checkpoint()
	a, err := m.Require(addr, global, noopLoader,
		func() *account.FVMAccount { return account.NewBasicFVM(addr, uint256.NewInt(0), 0, 16) },
		func(*account.FVMAccount) {}, false, noopCodeLoader)
	require.NoError(t, err)
	a.SetBalance(uint256.NewInt(100))

	entry, ok := m.Peek(addr)
	require.True(t, ok)
	require.Equal(t, Dirty, entry.State)
	require.Equal(t, uint64(100), entry.Account.Balance().Uint64())

	m.RevertToCheckpoint()
	_, ok = m.Peek(addr)
	require.False(t, ok, "address introduced entirely within the checkpoint must vanish on revert")
}

func TestManager_RevertRestoresPriorBalance(t *testing.T) {
	m := newFVMManager()
	global := globalcache.New(1024, 1024)
	addr := xcommon.BytesToAddress([]byte{0x02})

	a, err := m.Require(addr, global, noopLoader,
		func() *account.FVMAccount { return account.NewBasicFVM(addr, uint256.NewInt(0), 0, 16) },
		func(*account.FVMAccount) {}, false, noopCodeLoader)
	require.NoError(t, err)
	a.SetBalance(uint256.NewInt(10))

	m.Checkpoint()
	a2, err := m.Require(addr, global, noopLoader,
		func() *account.FVMAccount { return account.NewBasicFVM(addr, uint256.NewInt(0), 0, 16) },
		func(*account.FVMAccount) {}, false, noopCodeLoader)
	require.NoError(t, err)
	a2.SetBalance(uint256.NewInt(999))

	entry, _ := m.Peek(addr)
	require.Equal(t, uint64(999), entry.Account.Balance().Uint64())

	m.RevertToCheckpoint()

	entry, ok := m.Peek(addr)
	require.True(t, ok)
	require.Equal(t, uint64(10), entry.Account.Balance().Uint64(),
		"revert must restore the pre-checkpoint balance, not share a pointer with the mutated value")
}

func TestManager_DiscardCheckpointMergesIntoParent(t *testing.T) {
	m := newFVMManager()
	global := globalcache.New(1024, 1024)
	addr := xcommon.BytesToAddress([]byte{0x03})

	m.Checkpoint() // depth 1 (parent)
	m.Checkpoint() // depth 2 (child)

	_, err := m.Require(addr, global, noopLoader,
		func() *account.FVMAccount { return account.NewBasicFVM(addr, uint256.NewInt(0), 0, 16) },
		func(*account.FVMAccount) {}, false, noopCodeLoader)
	require.NoError(t, err)

	m.DiscardCheckpoint() // depth 1
	require.Equal(t, 1, m.CheckpointDepth())

	m.RevertToCheckpoint() // depth 0, should still undo addr's introduction
	_, ok := m.Peek(addr)
	require.False(t, ok)
}

func TestManager_InsertCacheNeverClobbersDirty(t *testing.T) {
	m := newFVMManager()
	addr := xcommon.BytesToAddress([]byte{0x04})

	dirty := &Entry[*account.FVMAccount]{
		Account: account.NewBasicFVM(addr, uint256.NewInt(7), 0, 16),
		State:   Dirty,
	}
	m.InsertCache(addr, dirty)

	clean := &Entry[*account.FVMAccount]{
		Account: account.NewBasicFVM(addr, uint256.NewInt(0), 0, 16),
		State:   CleanCached,
	}
	m.InsertCache(addr, clean)

	entry, _ := m.Peek(addr)
	require.Equal(t, Dirty, entry.State)
	require.Equal(t, uint64(7), entry.Account.Balance().Uint64())
}

func TestManager_Kill(t *testing.T) {
	m := newFVMManager()
	addr := xcommon.BytesToAddress([]byte{0x05})
	m.InsertCache(addr, &Entry[*account.FVMAccount]{Account: account.NewBasicFVM(addr, uint256.NewInt(1), 0, 16), State: Dirty})

	m.Kill(addr)
	entry, ok := m.Peek(addr)
	require.True(t, ok)
	require.Nil(t, entry.Account)
	require.Equal(t, Dirty, entry.State)
}
