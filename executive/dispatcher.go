package executive

import (
	"github.com/aion-network/aion-state/account"
	"github.com/aion-network/aion-state/state"
)

// Engine names one Machine implementation, mirroring the teacher's
// Executor.Engine() identity string used for logging/metrics labels.
type Engine string

const (
	EngineFVM Engine = "fvm"
	EngineAVM Engine = "avm"
)

// Dispatcher routes a call to the Machine for its VM. Unlike the teacher's
// go-evm/revm executors — mutually exclusive, chosen once per build via
// build tags — FVM and AVM coexist inside one running engine (spec §3.1:
// "two independent virtual machines ... a single shared top-level trie"),
// so routing happens per call, at runtime, keyed on CallMetadata.VM rather
// than a compile-time tag.
type Dispatcher struct {
	fvm Machine
	avm Machine
}

// NewDispatcher registers the Machine for each VM flavor. Either may be nil
// if that flavor is not wired into this deployment, in which case routing a
// call to it fails fast instead of silently no-opping.
func NewDispatcher(fvm, avm Machine) *Dispatcher {
	return &Dispatcher{fvm: fvm, avm: avm}
}

// Route returns the Machine and Engine label for vm.
func (d *Dispatcher) Route(vm account.Type) (Machine, Engine, error) {
	if vm == account.TypeAVM {
		if d.avm == nil {
			return nil, "", errNoMachine(EngineAVM)
		}
		return d.avm, EngineAVM, nil
	}
	if d.fvm == nil {
		return nil, "", errNoMachine(EngineFVM)
	}
	return d.fvm, EngineFVM, nil
}

type noMachineError Engine

func (e noMachineError) Error() string { return "executive: no machine registered for engine " + string(e) }

func errNoMachine(e Engine) error { return noMachineError(e) }

// AsMachine adapts d into a single Machine that routes each call before
// running it, so an Executive can be built with d.AsMachine() directly.
func (d *Dispatcher) AsMachine() Machine {
	return func(st *state.State, meta CallMetadata) error {
		m, _, err := d.Route(meta.VM)
		if err != nil {
			return err
		}
		return m(st, meta)
	}
}
