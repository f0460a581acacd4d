package executive

import (
	"github.com/aion-network/aion-state/account"
	xcommon "github.com/aion-network/aion-state/internal/common"
)

// CallMetadata describes one call/create at the granularity the Executive
// needs to drive checkpoint/commit around it — not the full transaction
// envelope, which belongs to a layer above this engine. Kept in sync with
// Machine's signature (executive.go); changing either requires updating both.
type CallMetadata struct {
	From     xcommon.Address
	To       xcommon.Address // zero address for CREATE
	Data     []byte
	Value    []byte // big-endian, matching the wire encoding of account balances
	GasLimit uint64
	VM       account.Type
	IsCreate bool
}
