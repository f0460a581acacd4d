package state

import (
	"testing"

	"github.com/aion-network/aion-state/account"
	xcommon "github.com/aion-network/aion-state/internal/common"
	"github.com/aion-network/aion-state/internal/config"
	"github.com/aion-network/aion-state/internal/triedb"
	"github.com/aion-network/aion-state/globalcache"
	"github.com/aion-network/aion-state/tracing"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func newTestState(t *testing.T) *State {
	t.Helper()
	db := triedb.NewMemory()
	global := globalcache.New(1024, 1024)
	s, err := New(db, xcommon.EmptyTrieRoot, config.Default(), global)
	require.NoError(t, err)
	return s
}

func TestState_AddBalanceAndCommit(t *testing.T) {
	s := newTestState(t)
	addr := xcommon.BytesToAddress([]byte{0xaa})

	require.NoError(t, s.AddBalance(addr, uint256.NewInt(100), tracing.BalanceChangeNativeTransfer))
	bal, err := s.Balance(addr)
	require.NoError(t, err)
	require.Equal(t, uint64(100), bal.Uint64())

	root, err := s.Commit()
	require.NoError(t, err)
	require.NotEqual(t, xcommon.EmptyTrieRoot, root)
}

func TestState_SubBalanceUnderflowIsADefect(t *testing.T) {
	s := newTestState(t)
	addr := xcommon.BytesToAddress([]byte{0xbb})

	require.Panics(t, func() {
		_ = s.SubBalance(addr, uint256.NewInt(1), tracing.BalanceChangeNativeTransfer)
	})
}

func TestState_CheckpointRevertUndoesMutation(t *testing.T) {
	s := newTestState(t)
	addr := xcommon.BytesToAddress([]byte{0xcc})
	require.NoError(t, s.AddBalance(addr, uint256.NewInt(10), tracing.BalanceChangeNativeTransfer))

	s.Checkpoint(account.TypeFVM)
	require.NoError(t, s.AddBalance(addr, uint256.NewInt(990), tracing.BalanceChangeNativeTransfer))
	bal, _ := s.Balance(addr)
	require.Equal(t, uint64(1000), bal.Uint64())

	s.RevertToCheckpoint(account.TypeFVM)
	bal, _ = s.Balance(addr)
	require.Equal(t, uint64(10), bal.Uint64())
}

func TestState_TransferBalance(t *testing.T) {
	s := newTestState(t)
	from := xcommon.BytesToAddress([]byte{0x01})
	to := xcommon.BytesToAddress([]byte{0x02})
	require.NoError(t, s.AddBalance(from, uint256.NewInt(50), tracing.BalanceChangeNativeTransfer))

	require.NoError(t, s.TransferBalance(from, to, uint256.NewInt(20)))

	fb, _ := s.Balance(from)
	tb, _ := s.Balance(to)
	require.Equal(t, uint64(30), fb.Uint64())
	require.Equal(t, uint64(20), tb.Uint64())
}

func TestState_InitCodeAndReadBack(t *testing.T) {
	s := newTestState(t)
	addr := xcommon.BytesToAddress([]byte{0x03})
	require.NoError(t, s.InitCode(addr, []byte{0x60, 0x01}))

	code, err := s.Code(addr)
	require.NoError(t, err)
	require.Equal(t, []byte{0x60, 0x01}, code)

	exists, err := s.ExistsAndHasCodeOrNonce(addr)
	require.NoError(t, err)
	require.True(t, exists)
}

func TestState_KillAccountThenCommitDeletes(t *testing.T) {
	s := newTestState(t)
	addr := xcommon.BytesToAddress([]byte{0x04})
	require.NoError(t, s.AddBalance(addr, uint256.NewInt(5), tracing.BalanceChangeNativeTransfer))
	_, err := s.Commit()
	require.NoError(t, err)

	exists, err := s.ExistsAndNotNull(addr)
	require.NoError(t, err)
	require.True(t, exists)

	s.KillAccount(account.TypeFVM, addr)
	_, err = s.Commit()
	require.NoError(t, err)

	exists, err = s.Exists(addr)
	require.NoError(t, err)
	require.False(t, exists)
}

func TestState_ExistsAndHasCode(t *testing.T) {
	s := newTestState(t)
	addr := xcommon.BytesToAddress([]byte{0x06})
	require.NoError(t, s.AddBalance(addr, uint256.NewInt(1), tracing.BalanceChangeNativeTransfer))

	has, err := s.ExistsAndHasCode(addr)
	require.NoError(t, err)
	require.False(t, has, "a balance-only account carries no code")

	require.NoError(t, s.InitCode(addr, []byte{0x60, 0x01}))
	has, err = s.ExistsAndHasCode(addr)
	require.NoError(t, err)
	require.True(t, has)
}

func TestState_KillContractDiscardsStorageThenKills(t *testing.T) {
	s := newTestState(t)
	addr := xcommon.BytesToAddress([]byte{0x07})
	require.NoError(t, s.AddBalance(addr, uint256.NewInt(5), tracing.BalanceChangeNativeTransfer))
	require.NoError(t, s.SetStorage(addr, account.StorageKey{}, account.StorageValue{}))
	_, err := s.Commit()
	require.NoError(t, err)

	require.NoError(t, s.KillContract(account.TypeFVM, addr))
	_, err = s.Commit()
	require.NoError(t, err)

	exists, err := s.Exists(addr)
	require.NoError(t, err)
	require.False(t, exists)
}

func TestState_PodDumpAndCommitRoundTrip(t *testing.T) {
	s := newTestState(t)
	a1 := xcommon.BytesToAddress([]byte{0x08})
	a2 := xcommon.BytesToAddress([]byte{0x09})
	require.NoError(t, s.AddBalance(a1, uint256.NewInt(7), tracing.BalanceChangeNativeTransfer))
	require.NoError(t, s.AddBalance(a2, uint256.NewInt(11), tracing.BalanceChangeNativeTransfer))
	require.NoError(t, s.InitCode(a1, []byte{0x60, 0x01}))
	_, err := s.Commit()
	require.NoError(t, err)

	pod, err := s.PodDump()
	require.NoError(t, err)
	require.Len(t, pod, 2)
	require.Equal(t, uint64(7), pod[a1].Balance.Uint64())
	require.Equal(t, []byte{0x60, 0x01}, pod[a1].Code)
	require.Equal(t, uint64(11), pod[a2].Balance.Uint64())

	db := triedb.NewMemory()
	root, err := pod.Commit(db)
	require.NoError(t, err)
	require.NotEqual(t, xcommon.EmptyTrieRoot, root)

	restored, err := New(db, root, config.Default(), globalcache.New(1024, 1024))
	require.NoError(t, err)
	bal, err := restored.Balance(a1)
	require.NoError(t, err)
	require.Equal(t, uint64(7), bal.Uint64())
	code, err := restored.Code(a1)
	require.NoError(t, err)
	require.Equal(t, []byte{0x60, 0x01}, code)
}

func TestState_AVMStorageAndObjectGraph(t *testing.T) {
	s := newTestState(t)
	addr := xcommon.BytesToAddress([]byte{0x05})

	s.NewAVMContract(addr, uint256.NewInt(0), 0)
	require.NoError(t, s.SetAVMStorage(addr, []byte("k"), []byte("v")))
	require.NoError(t, s.SetObjectGraph(addr, []byte{0x9, 0x9}))

	root, err := s.CommitAVM()
	require.NoError(t, err)
	require.NotEqual(t, xcommon.EmptyTrieRoot, root)

	val, err := s.AVMStorageAt(addr, []byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v"), val)

	graph, _, err := s.GetObjectGraph(addr)
	require.NoError(t, err)
	require.Equal(t, []byte{0x9, 0x9}, graph)
}

func TestState_AVMStorageAndObjectGraphSurviveReopen(t *testing.T) {
	s := newTestState(t)
	addr := xcommon.BytesToAddress([]byte{0x0a})

	s.NewAVMContract(addr, uint256.NewInt(0), 0)
	require.NoError(t, s.SetAVMStorage(addr, []byte("k"), []byte("v")))
	require.NoError(t, s.SetObjectGraph(addr, []byte{0x9, 0x9}))

	root, err := s.CommitAVM()
	require.NoError(t, err)

	fresh, err := New(s.db, root, config.Default(), globalcache.New(1024, 1024))
	require.NoError(t, err)

	val, err := fresh.AVMStorageAt(addr, []byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v"), val, "a reconstructed State must read back previously committed AVM storage")

	graph, _, err := fresh.GetObjectGraph(addr)
	require.NoError(t, err)
	require.Equal(t, []byte{0x9, 0x9}, graph, "a reconstructed State must read back the previously committed object graph")
}
