package executive

import (
	"errors"
	"testing"

	"github.com/aion-network/aion-state/account"
	xcommon "github.com/aion-network/aion-state/internal/common"
	"github.com/aion-network/aion-state/internal/config"
	"github.com/aion-network/aion-state/internal/triedb"
	"github.com/aion-network/aion-state/globalcache"
	"github.com/aion-network/aion-state/state"
	"github.com/aion-network/aion-state/tracing"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func newTestState(t *testing.T) *state.State {
	t.Helper()
	db := triedb.NewMemory()
	global := globalcache.New(1024, 1024)
	s, err := state.New(db, xcommon.EmptyTrieRoot, config.Default(), global)
	require.NoError(t, err)
	return s
}

func TestSelectVM(t *testing.T) {
	cfg := ForkConfig{AVMActivationHeight: 100}

	require.Equal(t, account.TypeFVM, SelectVM(cfg, 50, true), "AVM opt-in before activation still yields FVM")
	require.Equal(t, account.TypeFVM, SelectVM(cfg, 200, false), "no opt-in yields FVM regardless of height")
	require.Equal(t, account.TypeAVM, SelectVM(cfg, 100, true))
	require.Equal(t, account.TypeAVM, SelectVM(cfg, 500, true))
}

func TestExecutive_ApplyCommitsOnSuccess(t *testing.T) {
	st := newTestState(t)
	exec := New(st, ForkConfig{})
	addr := xcommon.BytesToAddress([]byte{0x01})

	meta := CallMetadata{To: addr, VM: account.TypeFVM}
	_, err := exec.Apply(meta, func(s *state.State, m CallMetadata) error {
		return s.AddBalance(m.To, uint256.NewInt(100), tracing.BalanceChangeNativeTransfer)
	})
	require.NoError(t, err)

	bal, err := st.Balance(addr)
	require.NoError(t, err)
	require.Equal(t, uint64(100), bal.Uint64())
	require.Equal(t, 0, st.CheckpointDepth(account.TypeFVM))
}

func TestExecutive_ApplyRevertsOnFailure(t *testing.T) {
	st := newTestState(t)
	exec := New(st, ForkConfig{})
	addr := xcommon.BytesToAddress([]byte{0x02})
	require.NoError(t, st.AddBalance(addr, uint256.NewInt(10), tracing.BalanceChangeNativeTransfer))
	_, err := st.Commit()
	require.NoError(t, err)

	meta := CallMetadata{To: addr, VM: account.TypeFVM}
	_, err = exec.Apply(meta, func(s *state.State, m CallMetadata) error {
		if err := s.AddBalance(m.To, uint256.NewInt(5), tracing.BalanceChangeNativeTransfer); err != nil {
			return err
		}
		return errors.New("machine failed mid-call")
	})
	require.Error(t, err)

	bal, err := st.Balance(addr)
	require.NoError(t, err)
	require.Equal(t, uint64(10), bal.Uint64(), "a failed call must leave no trace of its balance mutation")
}

func TestExecutive_ApplyBatchStopsAtFirstFailure(t *testing.T) {
	st := newTestState(t)
	exec := New(st, ForkConfig{})
	a := xcommon.BytesToAddress([]byte{0x03})
	b := xcommon.BytesToAddress([]byte{0x04})

	metas := []CallMetadata{
		{To: a, VM: account.TypeFVM},
		{To: b, VM: account.TypeFVM},
	}
	calls := 0
	_, err := exec.ApplyBatch(metas, func(s *state.State, m CallMetadata) error {
		calls++
		if calls == 2 {
			return errors.New("boom")
		}
		return s.AddBalance(m.To, uint256.NewInt(1), tracing.BalanceChangeNativeTransfer)
	})
	require.Error(t, err)
	require.Equal(t, 2, calls)

	balA, _ := st.Balance(a)
	require.Equal(t, uint64(1), balA.Uint64(), "earlier successful calls in the batch stay committed")
}

func TestDispatcher_RouteMissingMachine(t *testing.T) {
	d := NewDispatcher(func(*state.State, CallMetadata) error { return nil }, nil)
	_, _, err := d.Route(account.TypeAVM)
	require.Error(t, err)

	_, engine, err := d.Route(account.TypeFVM)
	require.NoError(t, err)
	require.Equal(t, EngineFVM, engine)
}
