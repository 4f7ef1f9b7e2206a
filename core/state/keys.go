package state

import (
	"encoding/binary"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

var (
	creatorPrefix   = []byte("tipjar/creator/")
	nameIndexPrefix = []byte("tipjar/name/")
	balancePrefix   = []byte("tipjar/balance/")
	memoPrefix      = []byte("tipjar/memo/")
	memoCountPrefix = []byte("tipjar/memocount/")
	payoutPrefix    = []byte("tipjar/payout/")
)

func prefixedKey(prefix []byte, suffix []byte) []byte {
	buf := make([]byte, len(prefix)+len(suffix))
	copy(buf, prefix)
	copy(buf[len(prefix):], suffix)
	return ethcrypto.Keccak256(buf)
}

func creatorKey(addr [20]byte) []byte {
	return prefixedKey(creatorPrefix, addr[:])
}

func nameIndexKey(nameHash [32]byte) []byte {
	return prefixedKey(nameIndexPrefix, nameHash[:])
}

func balanceKey(addr [20]byte) []byte {
	return prefixedKey(balancePrefix, addr[:])
}

func memoCountKey(addr [20]byte) []byte {
	return prefixedKey(memoCountPrefix, addr[:])
}

func memoKey(addr [20]byte, index uint64) []byte {
	suffix := make([]byte, len(addr)+8)
	copy(suffix, addr[:])
	binary.BigEndian.PutUint64(suffix[len(addr):], index)
	return prefixedKey(memoPrefix, suffix)
}

func payoutKey(addr [20]byte) []byte {
	return prefixedKey(payoutPrefix, addr[:])
}
