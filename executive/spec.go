// Package executive is the engine's transaction-execution bridge (spec
// §4.3.1): it pushes a checkpoint on the relevant VM manager, runs a caller
// supplied Machine against the State, and commits or reverts depending on
// the outcome. The bridge itself is intentionally thin — bytecode execution
// lives outside this engine's scope — but the checkpoint/commit discipline
// and the fork-driven VM selection it wraps are load-bearing and live here.
package executive

import "github.com/aion-network/aion-state/account"

// ForkConfig is the minimal fork-activation surface SelectVM needs. Adapted
// from the teacher's block-height/timestamp-keyed hardfork switch: instead
// of picking a numeric EVM spec ID, this engine's forks only ever gate one
// thing — whether AVM-flavored contracts are reachable alongside FVM.
type ForkConfig struct {
	// AVMActivationHeight is the first block at which CREATE may target the
	// AVM. Zero means AVM has always been available.
	AVMActivationHeight uint64
}

// SelectVM picks the VM flavor a CREATE at blockNumber should use. useAVM is
// the caller's own opt-in (e.g. a transaction-type discriminator); below the
// activation height every contract is FVM regardless of useAVM, mirroring
// the kernel's hard gate on when AVM-targeted transactions become valid.
func SelectVM(cfg ForkConfig, blockNumber uint64, useAVM bool) account.Type {
	if useAVM && blockNumber >= cfg.AVMActivationHeight {
		return account.TypeAVM
	}
	return account.TypeFVM
}
