package tipjar

import (
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Creator is the profile record for a registered tip recipient. Owner is
// immutable after registration; TotalReceived only ever grows and is never
// touched by withdrawals.
type Creator struct {
	Owner         [20]byte `json:"owner"`
	Name          string   `json:"name"`
	About         string   `json:"about"`
	RegisteredAt  int64    `json:"registeredAt"`
	UpdatedAt     int64    `json:"updatedAt"`
	TotalReceived *big.Int `json:"totalReceived"`
}

// Clone returns a deep copy of the creator record.
func (c *Creator) Clone() *Creator {
	if c == nil {
		return nil
	}
	clone := *c
	if c.TotalReceived != nil {
		clone.TotalReceived = new(big.Int).Set(c.TotalReceived)
	}
	return &clone
}

// Memo is the immutable record of one tip: who sent it, when, and the note
// they attached. Name and Message are supporter-supplied free text.
type Memo struct {
	From      [20]byte `json:"from"`
	Timestamp int64    `json:"timestamp"`
	Name      string   `json:"name"`
	Message   string   `json:"message"`
}

// Clone returns a copy of the memo.
func (m *Memo) Clone() *Memo {
	if m == nil {
		return nil
	}
	clone := *m
	return &clone
}

// NameHash derives the name-index key for a display name. The registry keys
// its secondary index by this content hash rather than the raw string.
func NameHash(name string) [32]byte {
	var out [32]byte
	copy(out[:], ethcrypto.Keccak256([]byte(name)))
	return out
}
