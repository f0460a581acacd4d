// Package common holds the fixed-width identity and digest types shared by
// every layer of the account state engine: addresses, 128/256-bit digests,
// and the BLAKE2b hashing helpers used to derive them.
package common

import (
	"encoding/binary"
	"encoding/hex"
	"math/big"

	"golang.org/x/crypto/blake2b"
)

// AddressLength is the width of an account identity. Unlike 20-byte
// Ethereum-style addresses, this engine's accounts (both FVM and AVM) are
// keyed by a 32-byte identity.
const AddressLength = 32

// Address is a 32-byte account identity.
type Address [AddressLength]byte

// BytesToAddress right-aligns b into an Address, truncating on the left if
// b is longer than AddressLength.
func BytesToAddress(b []byte) (a Address) {
	if len(b) > AddressLength {
		b = b[len(b)-AddressLength:]
	}
	copy(a[AddressLength-len(b):], b)
	return a
}

// HexToAddress parses a hex string (with or without 0x prefix) into an Address.
func HexToAddress(s string) Address {
	return BytesToAddress(hexBytes(s))
}

func (a Address) Bytes() []byte { return a[:] }
func (a Address) Hex() string   { return "0x" + hex.EncodeToString(a[:]) }
func (a Address) IsZero() bool  { return a == Address{} }

// H128 is a fixed 16-byte digest/value, used by FVM's narrow storage keys
// and values.
type H128 [16]byte

func BytesToH128(b []byte) (h H128) {
	if len(b) > 16 {
		b = b[len(b)-16:]
	}
	copy(h[16-len(b):], b)
	return h
}

func (h H128) Bytes() []byte  { return h[:] }
func (h H128) IsZero() bool   { return h == H128{} }
func (h H128) Hex() string    { return "0x" + hex.EncodeToString(h[:]) }

// H256 is a fixed 32-byte digest/value: hashes, storage roots, wide storage
// values.
type H256 [32]byte

func BytesToH256(b []byte) (h H256) {
	if len(b) > 32 {
		b = b[len(b)-32:]
	}
	copy(h[32-len(b):], b)
	return h
}

func (h H256) Bytes() []byte  { return h[:] }
func (h H256) IsZero() bool   { return h == H256{} }
func (h H256) Hex() string    { return "0x" + hex.EncodeToString(h[:]) }

// Big returns the H256 interpreted as a big-endian unsigned integer.
func (h H256) Big() *big.Int { return new(big.Int).SetBytes(h[:]) }

func hexBytes(s string) []byte {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	if len(s)%2 == 1 {
		s = "0" + s
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil
	}
	return b
}

// U128 is a 128-bit unsigned big-endian integer, used for FVM's narrow
// storage values (distinct width from U256 balances/nonces, so it is not
// modeled on top of holiman/uint256.Int, which is fixed at 256 bits).
type U128 struct {
	hi, lo uint64
}

// U128FromBig truncates b (if wider than 128 bits) into a U128.
func U128FromBig(b *big.Int) U128 {
	var buf [16]byte
	bs := b.Bytes()
	if len(bs) > 16 {
		bs = bs[len(bs)-16:]
	}
	copy(buf[16-len(bs):], bs)
	return U128{
		hi: binary.BigEndian.Uint64(buf[:8]),
		lo: binary.BigEndian.Uint64(buf[8:]),
	}
}

func U128FromH128(h H128) U128 {
	return U128{
		hi: binary.BigEndian.Uint64(h[:8]),
		lo: binary.BigEndian.Uint64(h[8:]),
	}
}

func (u U128) IsZero() bool { return u.hi == 0 && u.lo == 0 }

func (u U128) Bytes16() H128 {
	var out H128
	binary.BigEndian.PutUint64(out[:8], u.hi)
	binary.BigEndian.PutUint64(out[8:], u.lo)
	return out
}

func (u U128) Big() *big.Int {
	return new(big.Int).SetBytes(u.Bytes16().Bytes())
}

// Blake2b256 hashes data with BLAKE2b-256, the engine's sole content-hash
// primitive (address hashing, code hashing, object-graph hashing, delta
// roots, and secure-trie keying all reduce to this one call).
func Blake2b256(data ...[]byte) H256 {
	h, err := blake2b.New256(nil)
	if err != nil {
		// blake2b.New256 only errors on a bad key, and we never pass one.
		panic(err)
	}
	for _, d := range data {
		h.Write(d)
	}
	var out H256
	copy(out[:], h.Sum(nil))
	return out
}

// EmptyHash is BLAKE2b of the empty byte string — the code_hash of an
// account with no deployable code.
var EmptyHash = Blake2b256(nil)

// EmptyTrieRoot is BLAKE2b of the RLP encoding of an empty string — the
// storage_root of an account with no storage, and the initial state root
// of an empty trie.
var EmptyTrieRoot = Blake2b256(emptyStringRLP())

func emptyStringRLP() []byte {
	// RLP encoding of the empty byte string is the single byte 0x80.
	return []byte{0x80}
}
