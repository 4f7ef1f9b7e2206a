package tipjar

import (
	"errors"
	"math/big"
	"testing"

	"tipjar/core/events"
)

type mockState struct {
	creators  map[[20]byte]*Creator
	nameIndex map[[32]byte][20]byte
	balances  map[[20]byte]*big.Int
	memos     map[[20]byte][]*Memo
}

func newMockState() *mockState {
	return &mockState{
		creators:  make(map[[20]byte]*Creator),
		nameIndex: make(map[[32]byte][20]byte),
		balances:  make(map[[20]byte]*big.Int),
		memos:     make(map[[20]byte][]*Memo),
	}
}

func (m *mockState) CreatorGet(addr [20]byte) (*Creator, bool, error) {
	creator, ok := m.creators[addr]
	if !ok {
		return nil, false, nil
	}
	return creator.Clone(), true, nil
}

func (m *mockState) CreatorPut(creator *Creator) error {
	if creator == nil {
		return nil
	}
	m.creators[creator.Owner] = creator.Clone()
	return nil
}

func (m *mockState) NameIndexGet(nameHash [32]byte) ([20]byte, bool, error) {
	addr, ok := m.nameIndex[nameHash]
	return addr, ok, nil
}

func (m *mockState) NameIndexPut(nameHash [32]byte, addr [20]byte) error {
	m.nameIndex[nameHash] = addr
	return nil
}

func (m *mockState) NameIndexDelete(nameHash [32]byte) error {
	delete(m.nameIndex, nameHash)
	return nil
}

func (m *mockState) BalanceGet(addr [20]byte) (*big.Int, error) {
	if balance, ok := m.balances[addr]; ok {
		return new(big.Int).Set(balance), nil
	}
	return big.NewInt(0), nil
}

func (m *mockState) BalancePut(addr [20]byte, amount *big.Int) error {
	if amount == nil {
		amount = big.NewInt(0)
	}
	m.balances[addr] = new(big.Int).Set(amount)
	return nil
}

func (m *mockState) MemoAppend(addr [20]byte, memo *Memo) error {
	m.memos[addr] = append(m.memos[addr], memo.Clone())
	return nil
}

func (m *mockState) MemoCount(addr [20]byte) (uint64, error) {
	return uint64(len(m.memos[addr])), nil
}

func (m *mockState) MemoRange(addr [20]byte, offset uint64, limit uint64) ([]*Memo, error) {
	seq := m.memos[addr]
	count := uint64(len(seq))
	if offset >= count || limit == 0 {
		return []*Memo{}, nil
	}
	end := offset + limit
	if end > count {
		end = count
	}
	out := make([]*Memo, 0, end-offset)
	for _, memo := range seq[offset:end] {
		out = append(out, memo.Clone())
	}
	return out, nil
}

type stubTransferer struct {
	err   error
	fn    func(to [20]byte, amount *big.Int) error
	calls int
	last  *big.Int
}

func (t *stubTransferer) Transfer(to [20]byte, amount *big.Int) error {
	t.calls++
	t.last = new(big.Int).Set(amount)
	if t.fn != nil {
		return t.fn(to, amount)
	}
	return t.err
}

func addr(last byte) [20]byte {
	var out [20]byte
	out[19] = last
	return out
}

func newTestEngine(state *mockState) (*Engine, *stubTransferer, *events.Capture) {
	engine := NewEngine()
	engine.SetState(state)
	transferer := &stubTransferer{}
	engine.SetTransferer(transferer)
	capture := &events.Capture{}
	engine.SetEmitter(capture)
	engine.SetNowFunc(func() int64 { return 1000 })
	return engine, transferer, capture
}

func TestRegisterValidation(t *testing.T) {
	state := newMockState()
	engine, _, _ := newTestEngine(state)
	alice := addr(0x01)
	bob := addr(0x02)

	if _, err := engine.Register(alice, "", "bio"); !errors.Is(err, ErrEmptyName) {
		t.Fatalf("expected ErrEmptyName, got %v", err)
	}
	if _, err := engine.Register(alice, "   ", "bio"); !errors.Is(err, ErrEmptyName) {
		t.Fatalf("expected ErrEmptyName for blank name, got %v", err)
	}
	creator, err := engine.Register(alice, "Alice", "bio")
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if creator.TotalReceived.Sign() != 0 {
		t.Fatalf("fresh creator must start at zero, got %s", creator.TotalReceived)
	}
	if _, err := engine.Register(alice, "Alice Two", "bio"); !errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("expected ErrAlreadyRegistered for duplicate identity, got %v", err)
	}
	if _, err := engine.Register(bob, "Alice", "other"); !errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("expected ErrAlreadyRegistered for taken name, got %v", err)
	}
}

func TestUpdateRenameMovesIndex(t *testing.T) {
	state := newMockState()
	engine, _, _ := newTestEngine(state)
	alice := addr(0x01)
	bob := addr(0x02)

	if _, err := engine.Update(alice, "Alice", "bio"); !errors.Is(err, ErrNotACreator) {
		t.Fatalf("expected ErrNotACreator, got %v", err)
	}
	if _, err := engine.Register(alice, "Alice", "bio"); err != nil {
		t.Fatalf("register alice: %v", err)
	}
	if _, err := engine.Register(bob, "Bob", "bio"); err != nil {
		t.Fatalf("register bob: %v", err)
	}

	if _, err := engine.Update(alice, "Bob", "bio"); !errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("expected ErrAlreadyRegistered renaming to taken name, got %v", err)
	}
	byName, err := engine.CreatorByName("Alice")
	if err != nil || byName.Owner != alice {
		t.Fatalf("failed rename must leave old name resolving: %v", err)
	}

	if _, err := engine.Update(alice, "Alicia", "new bio"); err != nil {
		t.Fatalf("rename failed: %v", err)
	}
	if _, err := engine.CreatorByName("Alice"); !errors.Is(err, ErrCreatorNotRegistered) {
		t.Fatalf("old name must stop resolving, got %v", err)
	}
	renamed, err := engine.CreatorByName("Alicia")
	if err != nil {
		t.Fatalf("new name must resolve: %v", err)
	}
	if renamed.Owner != alice || renamed.About != "new bio" {
		t.Fatalf("unexpected record after rename: %+v", renamed)
	}
}

func TestTipRecordsMemoAndBalances(t *testing.T) {
	state := newMockState()
	engine, _, capture := newTestEngine(state)
	alice := addr(0x01)
	supporter := addr(0x10)

	if _, err := engine.Register(alice, "Alice", "bio"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := engine.Tip(supporter, alice, big.NewInt(0), "x", "gg"); !errors.Is(err, ErrNoFundsSent) {
		t.Fatalf("expected ErrNoFundsSent, got %v", err)
	}
	if _, err := engine.Tip(supporter, addr(0x33), big.NewInt(1), "x", "gg"); !errors.Is(err, ErrCreatorNotRegistered) {
		t.Fatalf("expected ErrCreatorNotRegistered, got %v", err)
	}

	memo, err := engine.Tip(supporter, alice, big.NewInt(1), "x", "gg")
	if err != nil {
		t.Fatalf("tip failed: %v", err)
	}
	if memo.From != supporter || memo.Message != "gg" {
		t.Fatalf("unexpected memo: %+v", memo)
	}
	balance, err := engine.Balance(alice)
	if err != nil || balance.Cmp(big.NewInt(1)) != 0 {
		t.Fatalf("expected balance 1, got %s (%v)", balance, err)
	}
	count, err := engine.MemoCount(alice)
	if err != nil || count != 1 {
		t.Fatalf("expected memo count 1, got %d (%v)", count, err)
	}
	creator, ok, err := engine.Creator(alice)
	if err != nil || !ok {
		t.Fatalf("creator lookup: %v", err)
	}
	if creator.TotalReceived.Cmp(big.NewInt(1)) != 0 {
		t.Fatalf("expected lifetime total 1, got %s", creator.TotalReceived)
	}

	evts := capture.Events()
	last := evts[len(evts)-1]
	if last.EventType() != EventTypeTipReceived {
		t.Fatalf("expected tip event, got %s", last.EventType())
	}
}

func TestBalanceNeverExceedsTotalReceived(t *testing.T) {
	state := newMockState()
	engine, _, _ := newTestEngine(state)
	alice := addr(0x01)
	supporter := addr(0x10)

	if _, err := engine.Register(alice, "Alice", "bio"); err != nil {
		t.Fatalf("register: %v", err)
	}
	for i := 1; i <= 5; i++ {
		if _, err := engine.Tip(supporter, alice, big.NewInt(int64(i)), "", ""); err != nil {
			t.Fatalf("tip %d: %v", i, err)
		}
		balance, _ := engine.Balance(alice)
		creator, _, _ := engine.Creator(alice)
		if balance.Cmp(creator.TotalReceived) > 0 {
			t.Fatalf("balance %s exceeds lifetime total %s", balance, creator.TotalReceived)
		}
	}
	if _, err := engine.Withdraw(alice); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	balance, _ := engine.Balance(alice)
	creator, _, _ := engine.Creator(alice)
	if balance.Sign() != 0 || creator.TotalReceived.Cmp(big.NewInt(15)) != 0 {
		t.Fatalf("withdraw must drain balance (%s) and keep total (%s)", balance, creator.TotalReceived)
	}
}

func TestWithdrawDrainsAndEmits(t *testing.T) {
	state := newMockState()
	engine, transferer, capture := newTestEngine(state)
	alice := addr(0x01)

	if _, err := engine.Withdraw(alice); !errors.Is(err, ErrNotACreator) {
		t.Fatalf("expected ErrNotACreator, got %v", err)
	}
	if _, err := engine.Register(alice, "Alice", "bio"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := engine.Withdraw(alice); !errors.Is(err, ErrNoFundsToWithdraw) {
		t.Fatalf("expected ErrNoFundsToWithdraw, got %v", err)
	}
	if _, err := engine.Tip(addr(0x10), alice, big.NewInt(7), "", ""); err != nil {
		t.Fatalf("tip: %v", err)
	}

	amount, err := engine.Withdraw(alice)
	if err != nil {
		t.Fatalf("withdraw failed: %v", err)
	}
	if amount.Cmp(big.NewInt(7)) != 0 || transferer.last.Cmp(big.NewInt(7)) != 0 {
		t.Fatalf("expected transfer of 7, got %s / %s", amount, transferer.last)
	}
	balance, _ := engine.Balance(alice)
	if balance.Sign() != 0 {
		t.Fatalf("expected drained balance, got %s", balance)
	}
	evts := capture.Events()
	last := evts[len(evts)-1]
	if last.EventType() != EventTypeWithdrawalCompleted {
		t.Fatalf("expected withdrawal event, got %s", last.EventType())
	}

	if _, err := engine.Withdraw(alice); !errors.Is(err, ErrNoFundsToWithdraw) {
		t.Fatalf("second withdraw must fail empty, got %v", err)
	}
}

func TestWithdrawFailureRestoresBalance(t *testing.T) {
	state := newMockState()
	engine, transferer, _ := newTestEngine(state)
	alice := addr(0x01)

	if _, err := engine.Register(alice, "Alice", "bio"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := engine.Tip(addr(0x10), alice, big.NewInt(42), "", ""); err != nil {
		t.Fatalf("tip: %v", err)
	}

	transferer.err = errors.New("recipient rejected")
	if _, err := engine.Withdraw(alice); !errors.Is(err, ErrWithdrawFailed) {
		t.Fatalf("expected ErrWithdrawFailed, got %v", err)
	}
	balance, _ := engine.Balance(alice)
	if balance.Cmp(big.NewInt(42)) != 0 {
		t.Fatalf("balance must be restored to 42, got %s", balance)
	}
	creator, _, _ := engine.Creator(alice)
	if creator.TotalReceived.Cmp(big.NewInt(42)) != 0 {
		t.Fatalf("lifetime total must be untouched, got %s", creator.TotalReceived)
	}

	// retryable after restore
	transferer.err = nil
	if _, err := engine.Withdraw(alice); err != nil {
		t.Fatalf("retry after restore failed: %v", err)
	}
}

func TestWithdrawReentrancyCannotDoubleSpend(t *testing.T) {
	state := newMockState()
	engine, transferer, _ := newTestEngine(state)
	alice := addr(0x01)

	if _, err := engine.Register(alice, "Alice", "bio"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := engine.Tip(addr(0x10), alice, big.NewInt(9), "", ""); err != nil {
		t.Fatalf("tip: %v", err)
	}

	var reentrantErr error
	transferer.fn = func(to [20]byte, amount *big.Int) error {
		if transferer.calls == 1 {
			_, reentrantErr = engine.Withdraw(to)
		}
		return nil
	}

	amount, err := engine.Withdraw(alice)
	if err != nil {
		t.Fatalf("withdraw failed: %v", err)
	}
	if amount.Cmp(big.NewInt(9)) != 0 {
		t.Fatalf("expected 9 withdrawn once, got %s", amount)
	}
	if !errors.Is(reentrantErr, ErrNoFundsToWithdraw) {
		t.Fatalf("re-entrant withdrawal must see drained balance, got %v", reentrantErr)
	}
	if transferer.calls != 1 {
		t.Fatalf("expected exactly one transfer, got %d", transferer.calls)
	}
}

func TestWithdrawFailureKeepsTipsLandedDuringTransfer(t *testing.T) {
	state := newMockState()
	engine, transferer, _ := newTestEngine(state)
	alice := addr(0x01)
	supporter := addr(0x10)

	if _, err := engine.Register(alice, "Alice", "bio"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := engine.Tip(supporter, alice, big.NewInt(5), "", ""); err != nil {
		t.Fatalf("tip: %v", err)
	}

	transferer.fn = func(to [20]byte, amount *big.Int) error {
		if _, err := engine.Tip(supporter, to, big.NewInt(3), "", "mid-flight"); err != nil {
			t.Fatalf("nested tip: %v", err)
		}
		return errors.New("transport failure")
	}
	if _, err := engine.Withdraw(alice); !errors.Is(err, ErrWithdrawFailed) {
		t.Fatalf("expected ErrWithdrawFailed, got %v", err)
	}
	balance, _ := engine.Balance(alice)
	if balance.Cmp(big.NewInt(8)) != 0 {
		t.Fatalf("restore must keep the mid-flight tip, got %s", balance)
	}
}

func TestBalancesAreIndependent(t *testing.T) {
	state := newMockState()
	engine, _, _ := newTestEngine(state)
	a := addr(0x01)
	b := addr(0x02)
	supporter := addr(0x10)

	if _, err := engine.Register(a, "A", ""); err != nil {
		t.Fatalf("register a: %v", err)
	}
	if _, err := engine.Register(b, "B", ""); err != nil {
		t.Fatalf("register b: %v", err)
	}
	if _, err := engine.Tip(supporter, a, big.NewInt(1), "", ""); err != nil {
		t.Fatalf("tip a: %v", err)
	}
	if _, err := engine.Tip(supporter, b, big.NewInt(2), "", ""); err != nil {
		t.Fatalf("tip b: %v", err)
	}

	if _, err := engine.Withdraw(a); err != nil {
		t.Fatalf("withdraw a: %v", err)
	}
	balanceA, _ := engine.Balance(a)
	balanceB, _ := engine.Balance(b)
	if balanceA.Sign() != 0 {
		t.Fatalf("expected drained balance for a, got %s", balanceA)
	}
	if balanceB.Cmp(big.NewInt(2)) != 0 {
		t.Fatalf("b's balance must be unaffected, got %s", balanceB)
	}
}

func TestPaginationAlgebra(t *testing.T) {
	state := newMockState()
	engine, _, _ := newTestEngine(state)
	alice := addr(0x01)
	supporter := addr(0x10)

	if _, err := engine.Register(alice, "Alice", ""); err != nil {
		t.Fatalf("register: %v", err)
	}
	const n = 7
	for i := 0; i < n; i++ {
		if _, err := engine.Tip(supporter, alice, big.NewInt(1), "", string(rune('a'+i))); err != nil {
			t.Fatalf("tip %d: %v", i, err)
		}
	}

	full, err := engine.Memos(alice)
	if err != nil || len(full) != n {
		t.Fatalf("expected %d memos, got %d (%v)", n, len(full), err)
	}

	// concatenating pages of size 3 reproduces the full sequence
	var pages []*Memo
	for offset := uint64(0); offset < n; offset += 3 {
		page, err := engine.MemosPaginated(alice, offset, 3)
		if err != nil {
			t.Fatalf("page at %d: %v", offset, err)
		}
		pages = append(pages, page...)
	}
	if len(pages) != n {
		t.Fatalf("page concatenation lost memos: %d", len(pages))
	}
	for i := range full {
		if full[i].Message != pages[i].Message {
			t.Fatalf("page order mismatch at %d: %q vs %q", i, full[i].Message, pages[i].Message)
		}
	}

	if page, err := engine.MemosPaginated(alice, n, 3); err != nil || len(page) != 0 {
		t.Fatalf("offset past end must be empty, got %d (%v)", len(page), err)
	}
	if page, err := engine.MemosPaginated(alice, 5, 100); err != nil || len(page) != 2 {
		t.Fatalf("oversized limit must truncate, got %d (%v)", len(page), err)
	}
	if page, err := engine.MemosPaginated(addr(0x44), 0, 10); err != nil || len(page) != 0 {
		t.Fatalf("unknown identity must yield empty page, got %d (%v)", len(page), err)
	}
}

func TestScenarioSingleTipAndWithdraw(t *testing.T) {
	state := newMockState()
	engine, transferer, capture := newTestEngine(state)
	alice := addr(0x01)
	x := addr(0x10)

	if _, err := engine.Register(alice, "Alice", "bio"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := engine.Tip(x, alice, big.NewInt(1), "X", "gg"); err != nil {
		t.Fatalf("tip: %v", err)
	}

	balance, _ := engine.Balance(alice)
	if balance.Cmp(big.NewInt(1)) != 0 {
		t.Fatalf("expected balance 1, got %s", balance)
	}
	count, _ := engine.MemoCount(alice)
	if count != 1 {
		t.Fatalf("expected memo count 1, got %d", count)
	}
	memos, _ := engine.Memos(alice)
	if memos[0].From != x {
		t.Fatalf("memo 0 must be from X")
	}

	amount, err := engine.Withdraw(alice)
	if err != nil || amount.Cmp(big.NewInt(1)) != 0 {
		t.Fatalf("expected withdrawal of 1, got %s (%v)", amount, err)
	}
	if transferer.calls != 1 {
		t.Fatalf("expected one transfer")
	}
	balance, _ = engine.Balance(alice)
	if balance.Sign() != 0 {
		t.Fatalf("expected drained balance")
	}
	if _, err := engine.Withdraw(alice); !errors.Is(err, ErrNoFundsToWithdraw) {
		t.Fatalf("second withdraw must fail with ErrNoFundsToWithdraw, got %v", err)
	}

	var withdrawals int
	for _, evt := range capture.Events() {
		if evt.EventType() == EventTypeWithdrawalCompleted {
			withdrawals++
		}
	}
	if withdrawals != 1 {
		t.Fatalf("expected one withdrawal event, got %d", withdrawals)
	}
}

func TestLookupDefaults(t *testing.T) {
	state := newMockState()
	engine, _, _ := newTestEngine(state)
	ghost := addr(0x55)

	creator, ok, err := engine.Creator(ghost)
	if err != nil || ok {
		t.Fatalf("absent identity must not error: %v ok=%v", err, ok)
	}
	if creator.Name != "" || creator.TotalReceived.Sign() != 0 {
		t.Fatalf("expected zero profile, got %+v", creator)
	}
	balance, err := engine.Balance(ghost)
	if err != nil || balance.Sign() != 0 {
		t.Fatalf("unknown identity balance must be zero, got %s (%v)", balance, err)
	}
	count, err := engine.MemoCount(ghost)
	if err != nil || count != 0 {
		t.Fatalf("unknown identity count must be zero, got %d (%v)", count, err)
	}
	memos, err := engine.Memos(ghost)
	if err != nil || len(memos) != 0 {
		t.Fatalf("unknown identity memos must be empty, got %d (%v)", len(memos), err)
	}
	if _, err := engine.CreatorByName("nobody"); !errors.Is(err, ErrCreatorNotRegistered) {
		t.Fatalf("expected ErrCreatorNotRegistered, got %v", err)
	}
}
