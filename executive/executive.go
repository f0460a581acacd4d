package executive

import (
	"github.com/aion-network/aion-state/account"
	xcommon "github.com/aion-network/aion-state/internal/common"
	"github.com/aion-network/aion-state/internal/xlog"
	"github.com/aion-network/aion-state/state"
)

var log = xlog.New("executive")

// Machine runs one call/create's actual bytecode against st, mutating it via
// State's query/mutation surface. It is supplied by whatever interprets
// FVM/AVM bytecode; this package only owns the transactional envelope
// around that interpretation, not the interpretation itself.
type Machine func(st *state.State, meta CallMetadata) error

// Executive wraps a *state.State with the checkpoint/commit discipline of
// spec §4.3.1: apply/apply_batch "delegate to an Executive ... must call
// commit after success". A failed Machine reverts everything it touched;
// a successful one is committed for its VM before the next call starts.
type Executive struct {
	state *state.State
	forks ForkConfig
}

// New constructs an Executive over st and stores forks with it. Apply and
// ApplyBatch route every call by CallMetadata.VM alone; they do not consult
// forks (callers pick the VM, e.g. with SelectVM, before building meta).
func New(st *state.State, forks ForkConfig) *Executive {
	return &Executive{state: st, forks: forks}
}

// Apply runs one call under a fresh checkpoint on meta.VM's manager,
// discarding the checkpoint and committing on success, reverting on
// failure. Commit does not touch meta.VM's checkpoint stack, so the depth
// before and after a successful Apply is equal unless run left checkpoints
// of its own on the stack, which is logged as a warning.
func (e *Executive) Apply(meta CallMetadata, run Machine) (xcommon.H256, error) {
	depth := e.state.CheckpointDepth(meta.VM)
	e.state.Checkpoint(meta.VM)

	if err := run(e.state, meta); err != nil {
		e.state.RevertToCheckpoint(meta.VM)
		log.Debug("reverted call", "vm", meta.VM.String(), "from", meta.From.Hex(), "to", meta.To.Hex(), "err", err)
		return xcommon.H256{}, err
	}
	e.state.DiscardCheckpoint(meta.VM)

	root, err := e.commitFor(meta.VM)
	if err != nil {
		return xcommon.H256{}, err
	}
	if got := e.state.CheckpointDepth(meta.VM); got != depth {
		// A Machine that pushed checkpoints of its own without popping them
		// all back out would silently corrupt the next call's revert scope.
		log.Warn("checkpoint depth mismatch after commit", "vm", meta.VM.String(), "before", depth, "after", got)
	}
	return root, nil
}

// ApplyBatch runs metas in order, stopping at the first failing call. Each
// call commits independently, matching apply_batch's per-transaction commit
// boundary (spec §4.3.1) rather than committing once at the end.
func (e *Executive) ApplyBatch(metas []CallMetadata, run Machine) (xcommon.H256, error) {
	var root xcommon.H256
	for i, meta := range metas {
		r, err := e.Apply(meta, run)
		if err != nil {
			return xcommon.H256{}, err
		}
		root = r
		log.Debug("applied call", "index", i, "vm", meta.VM.String())
	}
	return root, nil
}

func (e *Executive) commitFor(vm account.Type) (xcommon.H256, error) {
	if vm == account.TypeAVM {
		return e.state.CommitAVM()
	}
	return e.state.Commit()
}
