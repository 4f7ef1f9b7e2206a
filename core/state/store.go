package state

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"tipjar/native/tipjar"
	"tipjar/storage"
)

// Store persists the ledger state in a key-value database. Values are
// RLP-encoded under keccak-hashed prefixed keys. One Store owns the whole
// global state: creator records, the name index, withdrawable balances, the
// per-creator memo sequences, and the payout settlement ledger.
type Store struct {
	db storage.Database
}

// NewStore creates a store operating on the provided database.
func NewStore(db storage.Database) *Store {
	return &Store{db: db}
}

// RLP rejects signed integers, so stored records mirror the engine types
// with unsigned timestamps.

type storedCreator struct {
	Owner         [20]byte
	Name          string
	About         string
	RegisteredAt  uint64
	UpdatedAt     uint64
	TotalReceived *big.Int
}

type storedMemo struct {
	From      [20]byte
	Timestamp uint64
	Name      string
	Message   string
}

func (s *Store) kvPut(key []byte, value interface{}) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return s.db.Put(key, encoded)
}

func (s *Store) kvGet(key []byte, out interface{}) (bool, error) {
	data, err := s.db.Get(key)
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// CreatorGet loads the creator record for an identity.
func (s *Store) CreatorGet(addr [20]byte) (*tipjar.Creator, bool, error) {
	var stored storedCreator
	ok, err := s.kvGet(creatorKey(addr), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	creator := &tipjar.Creator{
		Owner:         stored.Owner,
		Name:          stored.Name,
		About:         stored.About,
		RegisteredAt:  int64(stored.RegisteredAt),
		UpdatedAt:     int64(stored.UpdatedAt),
		TotalReceived: stored.TotalReceived,
	}
	if creator.TotalReceived == nil {
		creator.TotalReceived = big.NewInt(0)
	}
	return creator, true, nil
}

// CreatorPut writes the creator record under its owner identity.
func (s *Store) CreatorPut(creator *tipjar.Creator) error {
	if creator == nil {
		return fmt.Errorf("state: creator record must not be nil")
	}
	total := creator.TotalReceived
	if total == nil {
		total = big.NewInt(0)
	}
	stored := storedCreator{
		Owner:         creator.Owner,
		Name:          creator.Name,
		About:         creator.About,
		RegisteredAt:  uint64(creator.RegisteredAt),
		UpdatedAt:     uint64(creator.UpdatedAt),
		TotalReceived: total,
	}
	return s.kvPut(creatorKey(creator.Owner), &stored)
}

// NameIndexGet resolves a name hash to the identity currently holding it.
func (s *Store) NameIndexGet(nameHash [32]byte) ([20]byte, bool, error) {
	var stored [20]byte
	ok, err := s.kvGet(nameIndexKey(nameHash), &stored)
	if err != nil || !ok {
		return [20]byte{}, false, err
	}
	return stored, true, nil
}

// NameIndexPut claims a name hash for an identity.
func (s *Store) NameIndexPut(nameHash [32]byte, addr [20]byte) error {
	return s.kvPut(nameIndexKey(nameHash), &addr)
}

// NameIndexDelete releases a name hash.
func (s *Store) NameIndexDelete(nameHash [32]byte) error {
	return s.db.Delete(nameIndexKey(nameHash))
}

// BalanceGet returns the withdrawable balance, zero when the identity has
// never been credited.
func (s *Store) BalanceGet(addr [20]byte) (*big.Int, error) {
	balance := new(big.Int)
	ok, err := s.kvGet(balanceKey(addr), balance)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return balance, nil
}

// BalancePut overwrites the withdrawable balance.
func (s *Store) BalancePut(addr [20]byte, amount *big.Int) error {
	if amount == nil {
		amount = big.NewInt(0)
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("state: balance must not be negative")
	}
	return s.kvPut(balanceKey(addr), amount)
}

// MemoAppend adds a memo to the end of the identity's sequence and bumps the
// O(1) count.
func (s *Store) MemoAppend(addr [20]byte, memo *tipjar.Memo) error {
	if memo == nil {
		return fmt.Errorf("state: memo must not be nil")
	}
	count, err := s.MemoCount(addr)
	if err != nil {
		return err
	}
	stored := storedMemo{
		From:      memo.From,
		Timestamp: uint64(memo.Timestamp),
		Name:      memo.Name,
		Message:   memo.Message,
	}
	if err := s.kvPut(memoKey(addr, count), &stored); err != nil {
		return err
	}
	return s.kvPut(memoCountKey(addr), count+1)
}

// MemoCount returns the number of memos recorded for the identity.
func (s *Store) MemoCount(addr [20]byte) (uint64, error) {
	var count uint64
	ok, err := s.kvGet(memoCountKey(addr), &count)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return count, nil
}

// MemoRange loads memos [offset, offset+limit) in insertion order, clamped
// to the recorded sequence.
func (s *Store) MemoRange(addr [20]byte, offset uint64, limit uint64) ([]*tipjar.Memo, error) {
	count, err := s.MemoCount(addr)
	if err != nil {
		return nil, err
	}
	if offset >= count || limit == 0 {
		return []*tipjar.Memo{}, nil
	}
	end := offset + limit
	if end < offset || end > count {
		end = count
	}
	out := make([]*tipjar.Memo, 0, end-offset)
	for i := offset; i < end; i++ {
		var stored storedMemo
		ok, err := s.kvGet(memoKey(addr, i), &stored)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("state: memo %d missing for %x", i, addr)
		}
		out = append(out, &tipjar.Memo{
			From:      stored.From,
			Timestamp: int64(stored.Timestamp),
			Name:      stored.Name,
			Message:   stored.Message,
		})
	}
	return out, nil
}
