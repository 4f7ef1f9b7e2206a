package state

import (
	"fmt"
	"math/big"
)

// SettlementLedger is the production transferer: it settles withdrawals by
// crediting a cumulative paid-out accumulator per creator in the same store,
// so every payout stays observable after the fact.
type SettlementLedger struct {
	store *Store
}

// Settlement returns a settlement ledger bound to the store.
func (s *Store) Settlement() *SettlementLedger {
	if s == nil {
		return nil
	}
	return &SettlementLedger{store: s}
}

// Transfer records an outbound payout. Amounts must be strictly positive.
func (l *SettlementLedger) Transfer(to [20]byte, amount *big.Int) error {
	if l == nil || l.store == nil {
		return fmt.Errorf("settlement: ledger unavailable")
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("settlement: amount must be positive")
	}
	paid := new(big.Int)
	ok, err := l.store.kvGet(payoutKey(to), paid)
	if err != nil {
		return err
	}
	if !ok {
		paid = big.NewInt(0)
	}
	return l.store.kvPut(payoutKey(to), new(big.Int).Add(paid, amount))
}

// Paid returns the cumulative value settled to the identity.
func (l *SettlementLedger) Paid(to [20]byte) (*big.Int, error) {
	if l == nil || l.store == nil {
		return nil, fmt.Errorf("settlement: ledger unavailable")
	}
	paid := new(big.Int)
	ok, err := l.store.kvGet(payoutKey(to), paid)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return paid, nil
}
