package tipjar

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"sync"
	"time"

	"tipjar/core/events"
	"tipjar/core/types"
)

type engineState interface {
	CreatorGet(addr [20]byte) (*Creator, bool, error)
	CreatorPut(creator *Creator) error
	NameIndexGet(nameHash [32]byte) ([20]byte, bool, error)
	NameIndexPut(nameHash [32]byte, addr [20]byte) error
	NameIndexDelete(nameHash [32]byte) error
	BalanceGet(addr [20]byte) (*big.Int, error)
	BalancePut(addr [20]byte, amount *big.Int) error
	MemoAppend(addr [20]byte, memo *Memo) error
	MemoCount(addr [20]byte) (uint64, error)
	MemoRange(addr [20]byte, offset uint64, limit uint64) ([]*Memo, error)
}

// Transferer moves withdrawn value out to a creator. The transfer may invoke
// arbitrary foreign code before returning, including re-entrant calls into
// any engine operation; it is the single suspension point of the system.
type Transferer interface {
	Transfer(to [20]byte, amount *big.Int) error
}

// Engine wires the tipping ledger business logic with persistence, the
// outbound settlement hook, and event emission. All public operations are
// serialized; the serialization is released only around the outbound
// transfer so re-entrant calls observe the drained balance.
type Engine struct {
	mu       sync.Mutex
	state    engineState
	transfer Transferer
	emitter  events.Emitter
	nowFn    func() int64
}

// NewEngine constructs a tipjar engine with default dependencies.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn: func() int64 {
			return time.Now().Unix()
		},
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetTransferer configures the outbound value mover used by withdrawals.
func (e *Engine) SetTransferer(t Transferer) { e.transfer = t }

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used for deterministic testing.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) emit(evt *types.Event) {
	if e == nil || evt == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(WrapEvent(evt))
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func hexAddr(addr [20]byte) string {
	return "0x" + hex.EncodeToString(addr[:])
}

func formatTimestamp(ts int64) string {
	return strconv.FormatInt(ts, 10)
}

func newBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func sanitizeName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", ErrEmptyName
	}
	return trimmed, nil
}

// Register creates a creator record for the caller. The caller must not
// already own a record and the name must not be claimed by any creator.
func (e *Engine) Register(caller [20]byte, name string, about string) (*Creator, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	sanitized, err := sanitizeName(name)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok, err := e.state.CreatorGet(caller); err != nil {
		return nil, err
	} else if ok {
		return nil, ErrAlreadyRegistered
	}
	if _, ok, err := e.state.NameIndexGet(NameHash(sanitized)); err != nil {
		return nil, err
	} else if ok {
		return nil, ErrAlreadyRegistered
	}
	now := e.now()
	creator := &Creator{
		Owner:         caller,
		Name:          sanitized,
		About:         strings.TrimSpace(about),
		RegisteredAt:  now,
		UpdatedAt:     now,
		TotalReceived: big.NewInt(0),
	}
	if err := e.state.CreatorPut(creator); err != nil {
		return nil, err
	}
	if err := e.state.NameIndexPut(NameHash(sanitized), caller); err != nil {
		return nil, err
	}
	e.emit(CreatorRegisteredEvent(hexAddr(caller), creator.Name, creator.About))
	return creator.Clone(), nil
}

// Update replaces the caller's profile. A changed name must be free; the
// name index entry moves atomically so exactly one name resolves to the
// caller at all times. Accumulated totals and the withdrawable balance are
// untouched.
func (e *Engine) Update(caller [20]byte, name string, about string) (*Creator, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	sanitized, err := sanitizeName(name)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	creator, ok, err := e.state.CreatorGet(caller)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotACreator
	}
	if sanitized != creator.Name {
		if _, taken, err := e.state.NameIndexGet(NameHash(sanitized)); err != nil {
			return nil, err
		} else if taken {
			return nil, ErrAlreadyRegistered
		}
		if err := e.state.NameIndexDelete(NameHash(creator.Name)); err != nil {
			return nil, err
		}
		if err := e.state.NameIndexPut(NameHash(sanitized), caller); err != nil {
			return nil, err
		}
	}
	creator.Name = sanitized
	creator.About = strings.TrimSpace(about)
	creator.UpdatedAt = e.now()
	if err := e.state.CreatorPut(creator); err != nil {
		return nil, err
	}
	e.emit(CreatorUpdatedEvent(hexAddr(caller), creator.Name, creator.About))
	return creator.Clone(), nil
}

// Tip transfers value from a supporter to a registered creator and records
// the attached memo. The memo append, the lifetime total, and the
// withdrawable balance move in the same atomic step. Tips are never
// deduplicated or merged.
func (e *Engine) Tip(supporter [20]byte, creatorAddr [20]byte, amount *big.Int, name string, message string) (*Memo, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrNoFundsSent
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	creator, ok, err := e.state.CreatorGet(creatorAddr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrCreatorNotRegistered
	}
	memo := &Memo{
		From:      supporter,
		Timestamp: e.now(),
		Name:      name,
		Message:   message,
	}
	if err := e.state.MemoAppend(creatorAddr, memo); err != nil {
		return nil, err
	}
	creator.TotalReceived = new(big.Int).Add(newBigInt(creator.TotalReceived), amount)
	if err := e.state.CreatorPut(creator); err != nil {
		return nil, err
	}
	balance, err := e.state.BalanceGet(creatorAddr)
	if err != nil {
		return nil, err
	}
	balance = new(big.Int).Add(newBigInt(balance), amount)
	if err := e.state.BalancePut(creatorAddr, balance); err != nil {
		return nil, err
	}
	e.emit(TipReceivedEvent(hexAddr(creatorAddr), hexAddr(supporter), amount.String(), memo.Timestamp, memo.Name, memo.Message))
	return memo.Clone(), nil
}

// Withdraw pays out the caller's full withdrawable balance. The balance is
// zeroed before the outbound transfer runs: the transfer may call back into
// the engine, and a re-entrant withdrawal must observe the drained state. On
// transfer failure the drained amount is credited back and the whole call
// fails with ErrWithdrawFailed. The lifetime total is never touched.
func (e *Engine) Withdraw(caller [20]byte) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if e.transfer == nil {
		return nil, errNilTransferer
	}
	e.mu.Lock()
	if _, ok, err := e.state.CreatorGet(caller); err != nil {
		e.mu.Unlock()
		return nil, err
	} else if !ok {
		e.mu.Unlock()
		return nil, ErrNotACreator
	}
	amount, err := e.state.BalanceGet(caller)
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}
	amount = newBigInt(amount)
	if amount.Sign() == 0 {
		e.mu.Unlock()
		return nil, ErrNoFundsToWithdraw
	}
	if err := e.state.BalancePut(caller, big.NewInt(0)); err != nil {
		e.mu.Unlock()
		return nil, err
	}
	e.mu.Unlock()

	if terr := e.transfer.Transfer(caller, new(big.Int).Set(amount)); terr != nil {
		e.mu.Lock()
		defer e.mu.Unlock()
		// Credit the drained amount back on top of whatever arrived while
		// the transfer was in flight, so concurrent tips are not erased.
		current, err := e.state.BalanceGet(caller)
		if err != nil {
			return nil, fmt.Errorf("%w: %v (balance restore read failed: %v)", ErrWithdrawFailed, terr, err)
		}
		restored := new(big.Int).Add(newBigInt(current), amount)
		if err := e.state.BalancePut(caller, restored); err != nil {
			return nil, fmt.Errorf("%w: %v (balance restore failed: %v)", ErrWithdrawFailed, terr, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrWithdrawFailed, terr)
	}
	e.emit(WithdrawalCompletedEvent(hexAddr(caller), amount.String()))
	return amount, nil
}

// Creator returns the record for the supplied identity. Absence is a valid,
// observable state: the second return value is false and the record is the
// zero profile.
func (e *Engine) Creator(addr [20]byte) (*Creator, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	creator, ok, err := e.state.CreatorGet(addr)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return &Creator{Owner: addr, TotalReceived: big.NewInt(0)}, false, nil
	}
	return creator.Clone(), true, nil
}

// CreatorByName resolves a display name to its current holder.
func (e *Engine) CreatorByName(name string) (*Creator, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	trimmed := strings.TrimSpace(name)
	e.mu.Lock()
	defer e.mu.Unlock()
	addr, ok, err := e.state.NameIndexGet(NameHash(trimmed))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrCreatorNotRegistered
	}
	creator, ok, err := e.state.CreatorGet(addr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrCreatorNotRegistered
	}
	return creator.Clone(), nil
}

// Balance returns the current withdrawable balance, zero for unknown
// identities.
func (e *Engine) Balance(addr [20]byte) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	balance, err := e.state.BalanceGet(addr)
	if err != nil {
		return nil, err
	}
	return newBigInt(balance), nil
}

// MemoCount returns the number of memos recorded for the identity.
func (e *Engine) MemoCount(addr [20]byte) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.MemoCount(addr)
}

// Memos returns the full memo sequence in insertion order; empty for
// unknown identities, never an error for absence.
func (e *Engine) Memos(addr [20]byte) ([]*Memo, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	count, err := e.state.MemoCount(addr)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return []*Memo{}, nil
	}
	return e.state.MemoRange(addr, 0, count)
}

// MemosPaginated returns the slice [offset, min(offset+limit, length)) of
// the memo sequence. Out-of-range offsets yield an empty slice, not an
// error; limits past the end truncate silently.
func (e *Engine) MemosPaginated(addr [20]byte, offset uint64, limit uint64) ([]*Memo, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	count, err := e.state.MemoCount(addr)
	if err != nil {
		return nil, err
	}
	if limit == 0 || offset >= count {
		return []*Memo{}, nil
	}
	remaining := count - offset
	if limit > remaining {
		limit = remaining
	}
	return e.state.MemoRange(addr, offset, limit)
}
