package handler

import (
	"context"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/promiseland/internal/domain"
)

// AccountService defines the account operations the handler requires.
type AccountService interface {
	BalanceOf(ctx context.Context, addr common.Address) (*big.Int, error)
	Withdraw(ctx context.Context, call domain.Call) (*big.Int, error)
}

// AccountHandler serves balance queries and withdrawals.
type AccountHandler struct {
	accounts AccountService
	logger   *slog.Logger
}

// NewAccountHandler creates an AccountHandler.
func NewAccountHandler(accounts AccountService, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{accounts: accounts, logger: logger}
}

type balanceResponse struct {
	Address common.Address `json:"address"`
	Balance *big.Int       `json:"balance"`
	Ether   string         `json:"ether"`
}

// GetBalance returns the account balance of an address.
// GET /api/accounts/{address}
func (h *AccountHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	addr, err := addressParam(pathParam(r, "address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	bal, err := h.accounts.BalanceOf(r.Context(), addr)
	if err != nil {
		writeCallError(w, r, h.logger, "get balance", err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{Address: addr, Balance: bal, Ether: domain.FormatEther(bal)})
}

// Withdraw drains the caller's balance.
// POST /api/accounts/withdraw
func (h *AccountHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	call, err := callFrom(r, "")
	if err != nil {
		writeCallError(w, r, h.logger, "withdraw", err)
		return
	}
	amount, err := h.accounts.Withdraw(r.Context(), call)
	if err != nil {
		writeCallError(w, r, h.logger, "withdraw", err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{Address: call.Caller, Balance: amount, Ether: domain.FormatEther(amount)})
}
