package common

import (
	"encoding/hex"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBytesToAddress_PadsAndTruncates(t *testing.T) {
	short := BytesToAddress([]byte{0xaa, 0xbb})
	want := make([]byte, AddressLength)
	want[AddressLength-2], want[AddressLength-1] = 0xaa, 0xbb
	require.Equal(t, Address(want[:]), short)

	long := make([]byte, AddressLength+4)
	long[len(long)-1] = 0x01
	truncated := BytesToAddress(long)
	require.Equal(t, byte(0x01), truncated[AddressLength-1])
}

func TestAddress_HexAndIsZero(t *testing.T) {
	require.True(t, Address{}.IsZero())
	raw := make([]byte, AddressLength)
	raw[AddressLength-1] = 0x01
	a := HexToAddress("0x" + hex.EncodeToString(raw))
	require.False(t, a.IsZero())
	require.Equal(t, a, HexToAddress(a.Hex()))
}

func TestU128_RoundTripsThroughBig(t *testing.T) {
	n := big.NewInt(0).SetBytes([]byte{0x01, 0x02, 0x03})
	u := U128FromBig(n)
	require.False(t, u.IsZero())
	require.Equal(t, n.Bytes(), u.Big().Bytes())

	h := u.Bytes16()
	require.Equal(t, u, U128FromH128(h))
}

func TestBlake2b256_DeterministicAndHashesConcatenation(t *testing.T) {
	a := Blake2b256([]byte("ab"))
	b := Blake2b256([]byte("a"), []byte("b"))
	require.Equal(t, a, b, "Blake2b256 hashes its concatenated inputs as one stream")

	require.NotEqual(t, Blake2b256([]byte("a")), Blake2b256([]byte("b")))
}

func TestEmptyHashAndEmptyTrieRootAreDistinct(t *testing.T) {
	require.NotEqual(t, EmptyHash, EmptyTrieRoot)
	require.Equal(t, Blake2b256(nil), EmptyHash)
}

func TestH256_BigRoundTrip(t *testing.T) {
	h := BytesToH256([]byte{0x01, 0x00})
	require.Equal(t, int64(256), h.Big().Int64())
}
