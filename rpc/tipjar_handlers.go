package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"tipjar/native/tipjar"
)

type registerParams struct {
	Caller string `json:"caller"`
	Name   string `json:"name"`
	About  string `json:"about"`
}

type tipParams struct {
	Caller  string `json:"caller"`
	Creator string `json:"creator"`
	Amount  string `json:"amount"`
	Name    string `json:"name"`
	Message string `json:"message"`
}

type withdrawParams struct {
	Caller string `json:"caller"`
}

type addressParams struct {
	Address string `json:"address"`
}

type nameParams struct {
	Name string `json:"name"`
}

type paginationParams struct {
	Address string `json:"address"`
	Offset  uint64 `json:"offset"`
	Limit   uint64 `json:"limit"`
}

type creatorResult struct {
	Address       string `json:"address"`
	Name          string `json:"name"`
	About         string `json:"about"`
	RegisteredAt  int64  `json:"registeredAt"`
	UpdatedAt     int64  `json:"updatedAt"`
	TotalReceived string `json:"totalReceived"`
	Exists        bool   `json:"exists"`
}

type memoResult struct {
	From      string `json:"from"`
	Timestamp int64  `json:"timestamp"`
	Name      string `json:"name"`
	Message   string `json:"message"`
}

type balanceResult struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

type memoCountResult struct {
	Address string `json:"address"`
	Count   uint64 `json:"count"`
}

type memosResult struct {
	Address string       `json:"address"`
	Memos   []memoResult `json:"memos"`
}

type withdrawResult struct {
	Creator string `json:"creator"`
	Amount  string `json:"amount"`
}

func decodeAddress(value string) ([20]byte, error) {
	trimmed := strings.TrimSpace(value)
	if !common.IsHexAddress(trimmed) {
		return [20]byte{}, fmt.Errorf("invalid address %q", value)
	}
	return common.HexToAddress(trimmed), nil
}

func formatAddress(addr [20]byte) string {
	return common.Address(addr).Hex()
}

func parseAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("amount is required")
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative")
	}
	return amount, nil
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func formatCreator(creator *tipjar.Creator, exists bool) creatorResult {
	if creator == nil {
		return creatorResult{TotalReceived: "0"}
	}
	return creatorResult{
		Address:       formatAddress(creator.Owner),
		Name:          creator.Name,
		About:         creator.About,
		RegisteredAt:  creator.RegisteredAt,
		UpdatedAt:     creator.UpdatedAt,
		TotalReceived: bigString(creator.TotalReceived),
		Exists:        exists,
	}
}

func formatMemos(memos []*tipjar.Memo) []memoResult {
	out := make([]memoResult, 0, len(memos))
	for _, memo := range memos {
		if memo == nil {
			continue
		}
		out = append(out, memoResult{
			From:      formatAddress(memo.From),
			Timestamp: memo.Timestamp,
			Name:      memo.Name,
			Message:   memo.Message,
		})
	}
	return out
}

// Terminal ledger failures surface as codeServerError with the sentinel
// message; anything else is treated as request shape trouble.
func writeEngineError(w http.ResponseWriter, id interface{}, err error) string {
	switch {
	case errors.Is(err, tipjar.ErrEmptyName),
		errors.Is(err, tipjar.ErrAlreadyRegistered),
		errors.Is(err, tipjar.ErrCreatorNotRegistered),
		errors.Is(err, tipjar.ErrNotACreator),
		errors.Is(err, tipjar.ErrNoFundsSent),
		errors.Is(err, tipjar.ErrNoFundsToWithdraw),
		errors.Is(err, tipjar.ErrWithdrawFailed):
		writeError(w, http.StatusBadRequest, id, codeServerError, err.Error(), nil)
	default:
		writeError(w, http.StatusInternalServerError, id, codeServerError, "internal error", err.Error())
	}
	return "error"
}

func decodeParams(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("exactly one parameter object expected")
	}
	return json.Unmarshal(req.Params[0], out)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request, req *RPCRequest) string {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return "unauthorized"
	}
	var params registerParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return "invalid_params"
	}
	caller, err := decodeAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return "invalid_params"
	}
	creator, err := s.engine.Register(caller, params.Name, params.About)
	if err != nil {
		return writeEngineError(w, req.ID, err)
	}
	writeResult(w, req.ID, formatCreator(creator, true))
	return "ok"
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request, req *RPCRequest) string {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return "unauthorized"
	}
	var params registerParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return "invalid_params"
	}
	caller, err := decodeAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return "invalid_params"
	}
	creator, err := s.engine.Update(caller, params.Name, params.About)
	if err != nil {
		return writeEngineError(w, req.ID, err)
	}
	writeResult(w, req.ID, formatCreator(creator, true))
	return "ok"
}

func (s *Server) handleTip(w http.ResponseWriter, r *http.Request, req *RPCRequest) string {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return "unauthorized"
	}
	var params tipParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return "invalid_params"
	}
	supporter, err := decodeAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return "invalid_params"
	}
	creator, err := decodeAddress(params.Creator)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid creator address", err.Error())
		return "invalid_params"
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return "invalid_params"
	}
	memo, err := s.engine.Tip(supporter, creator, amount, params.Name, params.Message)
	if err != nil {
		return writeEngineError(w, req.ID, err)
	}
	writeResult(w, req.ID, struct {
		Creator   string `json:"creator"`
		Supporter string `json:"supporter"`
		Amount    string `json:"amount"`
		Timestamp int64  `json:"timestamp"`
		Name      string `json:"name"`
		Message   string `json:"message"`
	}{
		Creator:   params.Creator,
		Supporter: params.Caller,
		Amount:    amount.String(),
		Timestamp: memo.Timestamp,
		Name:      memo.Name,
		Message:   memo.Message,
	})
	return "ok"
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request, req *RPCRequest) string {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return "unauthorized"
	}
	var params withdrawParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return "invalid_params"
	}
	caller, err := decodeAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller address", err.Error())
		return "invalid_params"
	}
	amount, err := s.engine.Withdraw(caller)
	if err != nil {
		return writeEngineError(w, req.ID, err)
	}
	writeResult(w, req.ID, withdrawResult{Creator: params.Caller, Amount: amount.String()})
	return "ok"
}

func (s *Server) handleGetCreator(w http.ResponseWriter, req *RPCRequest) string {
	var params addressParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return "invalid_params"
	}
	addr, err := decodeAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid address", err.Error())
		return "invalid_params"
	}
	creator, exists, err := s.engine.Creator(addr)
	if err != nil {
		return writeEngineError(w, req.ID, err)
	}
	writeResult(w, req.ID, formatCreator(creator, exists))
	return "ok"
}

func (s *Server) handleGetCreatorByName(w http.ResponseWriter, req *RPCRequest) string {
	var params nameParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return "invalid_params"
	}
	creator, err := s.engine.CreatorByName(params.Name)
	if err != nil {
		return writeEngineError(w, req.ID, err)
	}
	writeResult(w, req.ID, formatCreator(creator, true))
	return "ok"
}

func (s *Server) handleGetBalance(w http.ResponseWriter, req *RPCRequest) string {
	var params addressParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return "invalid_params"
	}
	addr, err := decodeAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid address", err.Error())
		return "invalid_params"
	}
	balance, err := s.engine.Balance(addr)
	if err != nil {
		return writeEngineError(w, req.ID, err)
	}
	writeResult(w, req.ID, balanceResult{Address: params.Address, Balance: bigString(balance)})
	return "ok"
}

func (s *Server) handleGetMemoCount(w http.ResponseWriter, req *RPCRequest) string {
	var params addressParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return "invalid_params"
	}
	addr, err := decodeAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid address", err.Error())
		return "invalid_params"
	}
	count, err := s.engine.MemoCount(addr)
	if err != nil {
		return writeEngineError(w, req.ID, err)
	}
	writeResult(w, req.ID, memoCountResult{Address: params.Address, Count: count})
	return "ok"
}

func (s *Server) handleGetMemos(w http.ResponseWriter, req *RPCRequest) string {
	var params addressParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return "invalid_params"
	}
	addr, err := decodeAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid address", err.Error())
		return "invalid_params"
	}
	memos, err := s.engine.Memos(addr)
	if err != nil {
		return writeEngineError(w, req.ID, err)
	}
	writeResult(w, req.ID, memosResult{Address: params.Address, Memos: formatMemos(memos)})
	return "ok"
}

func (s *Server) handleGetMemosPaginated(w http.ResponseWriter, req *RPCRequest) string {
	var params paginationParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return "invalid_params"
	}
	addr, err := decodeAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid address", err.Error())
		return "invalid_params"
	}
	memos, err := s.engine.MemosPaginated(addr, params.Offset, params.Limit)
	if err != nil {
		return writeEngineError(w, req.ID, err)
	}
	writeResult(w, req.ID, memosResult{Address: params.Address, Memos: formatMemos(memos)})
	return "ok"
}
