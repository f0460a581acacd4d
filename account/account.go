// Package account holds the in-memory account value types shared by both
// VM flavors (spec §3.3/§4.1): identity/hashing, the shared on-disk code
// blob format, dirty/empty/basic predicates, and the 4-field RLP form.
// FVMAccount and AVMAccount (separate files) implement the common Account
// interface and add their VM-specific storage shapes.
package account

import (
	"encoding/binary"
	"math/big"

	xcommon "github.com/aion-network/aion-state/internal/common"
	"github.com/aion-network/aion-state/internal/triedb"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"
)

// Type tags which VM flavor an account belongs to (spec §3.3 account_type).
type Type uint8

const (
	TypeFVM Type = 0x01
	TypeAVM Type = 0x0f
)

func (t Type) String() string {
	if t == TypeAVM {
		return "AVM"
	}
	return "FVM"
}

// CodeFilth tracks whether any code/transformed-code/object-graph field was
// mutated since the last commit (spec §3.3 code_filth).
type CodeFilth uint8

const (
	Clean CodeFilth = iota
	Dirty
)

// Account is the narrow surface shared by FVMAccount and AVMAccount: the
// design notes call for two distinct record types over a common interface
// rather than inheritance. Storage access is VM-specific and lives outside
// this interface (FVM's dual-width maps vs AVM's raw-bytes map are not
// unifiable without losing type information callers rely on).
type Account interface {
	Type() Type
	AddressHash(addr xcommon.Address) xcommon.H256

	Balance() *uint256.Int
	SetBalance(v *uint256.Int)
	Nonce() uint64
	SetNonce(n uint64)

	CodeHash() xcommon.H256
	Code() []byte
	CodeSize() int
	SetCode(code []byte)
	TransformedCode() []byte
	SetTransformedCode(code []byte)
	// HydrateCode fills the in-memory code/transformed-code cache from a
	// disk read (update_account_cache's RequireCache::Code path); unlike
	// SetCode/SetTransformedCode this never marks the account Dirty.
	HydrateCode(code, transformedCode []byte)
	CodeFilth() CodeFilth
	IsBasic() bool

	// IsNull reports balance == 0 && nonce == startNonce && no code
	// (spec §4.1.6, invariant 1).
	IsNull(startNonce uint64) bool
	// StorageIsClean reports whether storage_root/delta_root may be
	// trusted (no pending storage_changes). IsEmpty requires this.
	StorageIsClean() bool
	// IsEmpty additionally requires an empty storage trie. Calling it
	// with dirty storage is a defect (spec §4.1.6).
	IsEmpty(startNonce uint64) bool

	// CommitCode writes the code blob per §4.1.2 if code_filth is Dirty,
	// then clears the dirty flag.
	CommitCode(batch triedb.Batch) error

	// RLPFields returns the four basic-account fields in the order the
	// concrete type wants them RLP-encoded (root is storage_root for FVM,
	// delta_root for AVM — spec §4.1.7).
	RLPFields() (nonce, balance *big.Int, root, codeHash xcommon.H256)

	// Clone deep-copies basic fields and dirty storage for checkpoint
	// snapshots; the live storage trie handle and LRUs are shared with the
	// original (design notes: "not the LRUs").
	Clone() Account
}

// EncodeBasicAccountRLP produces the 4-element RLP list from spec §4.1.7 /
// §6: [nonce, balance, root, code_hash].
func EncodeBasicAccountRLP(a Account) ([]byte, error) {
	nonce, balance, root, codeHash := a.RLPFields()
	return rlp.EncodeToBytes(&basicAccountRLP{
		Nonce:    nonce,
		Balance:  balance,
		Root:     root,
		CodeHash: codeHash,
	})
}

// DecodeBasicAccountRLP parses the 4-element RLP list back into its raw
// fields; callers (FVM/AVM constructors) decide how to interpret "root".
func DecodeBasicAccountRLP(data []byte) (nonce uint64, balance *uint256.Int, root, codeHash xcommon.H256, err error) {
	var raw basicAccountRLP
	if err = rlp.DecodeBytes(data, &raw); err != nil {
		return
	}
	nonce = raw.Nonce.Uint64()
	balance, _ = uint256.FromBig(raw.Balance)
	root = raw.Root
	codeHash = raw.CodeHash
	return
}

type basicAccountRLP struct {
	Nonce    *big.Int
	Balance  *big.Int
	Root     xcommon.H256
	CodeHash xcommon.H256
}

// ---------------------------------------------------------------------
// Code blob: spec §4.1.2.
//
//   blob := u32_be(code_size) ‖ code_bytes ‖ transformed_code_bytes
// ---------------------------------------------------------------------

// EncodeCodeBlob builds the on-disk blob for a (code, transformedCode)
// pair. transformedCode may be nil/empty for FVM accounts, which never
// populate it.
func EncodeCodeBlob(code, transformedCode []byte) []byte {
	out := make([]byte, 4+len(code)+len(transformedCode))
	binary.BigEndian.PutUint32(out[:4], uint32(len(code)))
	copy(out[4:], code)
	copy(out[4+len(code):], transformedCode)
	return out
}

// DecodeCodeBlob splits a blob back into (code, transformedCode).
func DecodeCodeBlob(blob []byte) (code, transformedCode []byte) {
	if len(blob) < 4 {
		return nil, nil
	}
	size := binary.BigEndian.Uint32(blob[:4])
	rest := blob[4:]
	if uint32(len(rest)) < size {
		return rest, nil
	}
	code = rest[:size]
	transformedCode = rest[size:]
	return
}

// commitCodePolicy implements the §4.1.2 commit-policy table shared by
// both FVM and AVM accounts: given the (dirty, code, transformed) triple,
// decide what (if anything) to write under codeHash.
func commitCodePolicy(dirty bool, code, transformed []byte) (write bool, blob []byte) {
	if !dirty {
		return false, nil
	}
	if len(code) == 0 && len(transformed) == 0 {
		// "record code_size = 0, clean": nothing deployable, nothing to
		// persist under code_hash (it already reads as EMPTY_HASH).
		return false, nil
	}
	return true, EncodeCodeBlob(code, transformed)
}
