package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/promiseland/internal/domain"
	"github.com/alanyoungcy/promiseland/internal/marketplace"
)

// SettingsReader is the part of the service the market handler needs. It is
// declared locally so the handler package does not depend on the concrete
// service implementation.
type SettingsReader interface {
	Settings(ctx context.Context) (domain.MarketSettings, error)
}

// MarketHandler serves the market settings and the deployment artifact.
type MarketHandler struct {
	market SettingsReader
	logger *slog.Logger
}

// NewMarketHandler creates a MarketHandler.
func NewMarketHandler(market SettingsReader, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{market: market, logger: logger}
}

type settingsResponse struct {
	domain.MarketSettings
	ListingFeeEther  string `json:"listingFeeEther"`
	LikingPriceEther string `json:"likingPriceEther"`
	ItemCount        uint64 `json:"itemCount"`
}

// GetSettings returns the market settings.
// GET /api/market
func (h *MarketHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.market.Settings(r.Context())
	if err != nil {
		writeCallError(w, r, h.logger, "get settings", err)
		return
	}
	writeJSON(w, http.StatusOK, settingsResponse{
		MarketSettings:   s,
		ListingFeeEther:  domain.FormatEther(s.ListingFee),
		LikingPriceEther: domain.FormatEther(s.LikingPrice),
		ItemCount:        s.NextTokenID - 1,
	})
}

// GetABI returns the deployment artifact of the running market.
// GET /api/abi
func (h *MarketHandler) GetABI(w http.ResponseWriter, r *http.Request) {
	s, err := h.market.Settings(r.Context())
	if err != nil {
		writeCallError(w, r, h.logger, "get abi", err)
		return
	}
	writeJSON(w, http.StatusOK, marketplace.NewArtifact(s.Address))
}
