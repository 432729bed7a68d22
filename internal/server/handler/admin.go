package handler

import (
	"context"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/promiseland/internal/domain"
	"github.com/alanyoungcy/promiseland/internal/marketplace"
)

// AdminService defines the market-owner operations.
type AdminService interface {
	Deposit(ctx context.Context, call domain.Call, to common.Address, amount *big.Int) error
	UpdateFees(ctx context.Context, call domain.Call, u marketplace.FeeUpdate) (domain.MarketSettings, error)
}

// AdminHandler serves the market-owner endpoints. Ownership is checked by
// the marketplace against the authenticated caller.
type AdminHandler struct {
	admin  AdminService
	logger *slog.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(admin AdminService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{admin: admin, logger: logger}
}

type depositRequest struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
}

// Deposit credits an account.
// POST /api/admin/deposit
func (h *AdminHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	to, err := addressParam(req.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	amt, err := amount(req.Amount)
	if err != nil {
		writeCallError(w, r, h.logger, "deposit", err)
		return
	}
	call, err := callFrom(r, "")
	if err != nil {
		writeCallError(w, r, h.logger, "deposit", err)
		return
	}
	if err := h.admin.Deposit(r.Context(), call, to, amt); err != nil {
		writeCallError(w, r, h.logger, "deposit", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"to": to, "amount": amt})
}

type feesRequest struct {
	ListingFee       *string `json:"listingFee"`
	LikingPrice      *string `json:"likingPrice"`
	CommissionBps    *uint16 `json:"commissionBps"`
	LikeFeeRecipient *string `json:"likeFeeRecipient"`
}

// UpdateFees changes the fee settings. Omitted fields are unchanged.
// PUT /api/admin/fees
func (h *AdminHandler) UpdateFees(w http.ResponseWriter, r *http.Request) {
	var req feesRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var u marketplace.FeeUpdate
	if req.ListingFee != nil {
		v, err := domain.ParseAmount(*req.ListingFee)
		if err != nil {
			writeError(w, http.StatusBadRequest, "listingFee: "+err.Error())
			return
		}
		u.ListingFee = v
	}
	if req.LikingPrice != nil {
		v, err := domain.ParseAmount(*req.LikingPrice)
		if err != nil {
			writeError(w, http.StatusBadRequest, "likingPrice: "+err.Error())
			return
		}
		u.LikingPrice = v
	}
	u.CommissionBps = req.CommissionBps
	if req.LikeFeeRecipient != nil {
		rcpt := domain.LikeFeeRecipient(*req.LikeFeeRecipient)
		u.LikeFeeRecipient = &rcpt
	}

	call, err := callFrom(r, "")
	if err != nil {
		writeCallError(w, r, h.logger, "update fees", err)
		return
	}
	s, err := h.admin.UpdateFees(r.Context(), call, u)
	if err != nil {
		writeCallError(w, r, h.logger, "update fees", err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}
