package handler

import (
	"context"
	"encoding/json"
	"iter"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/alanyoungcy/promiseland/internal/domain"
	"github.com/alanyoungcy/promiseland/internal/marketplace"
)

// NftService defines the item operations the NFT handler requires.
type NftService interface {
	FetchNftByID(ctx context.Context, tokenID uint64) (domain.MarketItem, error)
	TokenURI(ctx context.Context, tokenID uint64) (string, error)
	FetchNftPage(ctx context.Context, after uint64, limit int) ([]domain.MarketItem, error)
	FetchAllNfts(ctx context.Context) iter.Seq2[domain.MarketItem, error]
	FetchListedNfts(ctx context.Context) iter.Seq2[domain.MarketItem, error]
	CreateToken(ctx context.Context, call domain.Call, uri string) (uint64, error)
	UpdateListingPrice(ctx context.Context, call domain.Call, tokenID uint64, price *big.Int) error
	ExecuteSale(ctx context.Context, call domain.Call, tokenID uint64) error
	LikeNft(ctx context.Context, call domain.Call, tokenID uint64) error
	DislikeNft(ctx context.Context, call domain.Call, tokenID uint64) error
}

// NftHandler serves minting, listing, sales, votes and item queries.
type NftHandler struct {
	nfts   NftService
	logger *slog.Logger
}

// NewNftHandler creates an NftHandler.
func NewNftHandler(nfts NftService, logger *slog.Logger) *NftHandler {
	return &NftHandler{nfts: nfts, logger: logger}
}

type pageResponse struct {
	Items     []domain.MarketItem `json:"items"`
	NextAfter uint64              `json:"nextAfter,omitempty"`
}

// ListNfts returns every item in ascending token id order. With a limit
// query parameter it returns one page starting after the given id instead.
// GET /api/nfts[?after=0&limit=100]
func (h *NftHandler) ListNfts(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Has("limit") || r.URL.Query().Has("after") {
		h.listPage(w, r)
		return
	}
	h.stream(w, r, h.nfts.FetchAllNfts(r.Context()))
}

// ListListed returns the items currently for sale.
// GET /api/nfts/listed
func (h *NftHandler) ListListed(w http.ResponseWriter, r *http.Request) {
	h.stream(w, r, h.nfts.FetchListedNfts(r.Context()))
}

func (h *NftHandler) listPage(w http.ResponseWriter, r *http.Request) {
	after, err := uintQuery(r, "after", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := uintQuery(r, "limit", marketplace.DefaultPageSize)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if limit == 0 || limit > marketplace.DefaultPageSize {
		limit = marketplace.DefaultPageSize
	}

	items, err := h.nfts.FetchNftPage(r.Context(), after, int(limit))
	if err != nil {
		writeCallError(w, r, h.logger, "list nfts", err)
		return
	}
	resp := pageResponse{Items: items}
	if resp.Items == nil {
		resp.Items = []domain.MarketItem{}
	}
	if len(items) == int(limit) {
		resp.NextAfter = items[len(items)-1].TokenID
	}
	writeJSON(w, http.StatusOK, resp)
}

// stream writes seq as a JSON array without buffering the whole collection.
// An error before the first item produces a normal error response; a later
// one truncates the body.
func (h *NftHandler) stream(w http.ResponseWriter, r *http.Request, seq iter.Seq2[domain.MarketItem, error]) {
	started := false
	enc := json.NewEncoder(w)
	for item, err := range seq {
		if err != nil {
			if !started {
				writeCallError(w, r, h.logger, "list nfts", err)
				return
			}
			h.logger.ErrorContext(r.Context(), "handler: item stream aborted",
				slog.String("error", err.Error()),
			)
			return
		}
		if !started {
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("["))
			started = true
		} else {
			w.Write([]byte(","))
		}
		if err := enc.Encode(item); err != nil {
			return
		}
	}
	if !started {
		writeJSON(w, http.StatusOK, []domain.MarketItem{})
		return
	}
	w.Write([]byte("]"))
}

// GetNft returns one item.
// GET /api/nfts/{id}
func (h *NftHandler) GetNft(w http.ResponseWriter, r *http.Request) {
	id, err := tokenIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	item, err := h.nfts.FetchNftByID(r.Context(), id)
	if err != nil {
		writeCallError(w, r, h.logger, "get nft", err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// GetTokenURI returns the metadata uri of one item.
// GET /api/nfts/{id}/uri
func (h *NftHandler) GetTokenURI(w http.ResponseWriter, r *http.Request) {
	id, err := tokenIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	uri, err := h.nfts.TokenURI(r.Context(), id)
	if err != nil {
		writeCallError(w, r, h.logger, "get token uri", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tokenId": id, "tokenUri": uri})
}

type createTokenRequest struct {
	URI   string `json:"uri"`
	Value string `json:"value"`
}

// CreateToken mints a token owned by the caller.
// POST /api/nfts
func (h *NftHandler) CreateToken(w http.ResponseWriter, r *http.Request) {
	var req createTokenRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	call, err := callFrom(r, req.Value)
	if err != nil {
		writeCallError(w, r, h.logger, "create token", err)
		return
	}
	id, err := h.nfts.CreateToken(r.Context(), call, req.URI)
	if err != nil {
		writeCallError(w, r, h.logger, "create token", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"tokenId": id})
}

type listingRequest struct {
	Price string `json:"price"`
	Value string `json:"value"`
}

// UpdateListing lists a token for sale at a new price.
// POST /api/nfts/{id}/listing
func (h *NftHandler) UpdateListing(w http.ResponseWriter, r *http.Request) {
	id, err := tokenIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req listingRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Price == "" {
		writeError(w, http.StatusBadRequest, "price is required")
		return
	}
	price, err := amount(req.Price)
	if err != nil {
		writeCallError(w, r, h.logger, "update listing", err)
		return
	}
	call, err := callFrom(r, req.Value)
	if err != nil {
		writeCallError(w, r, h.logger, "update listing", err)
		return
	}
	if err := h.nfts.UpdateListingPrice(r.Context(), call, id, price); err != nil {
		writeCallError(w, r, h.logger, "update listing", err)
		return
	}
	h.writeItem(w, r, id)
}

type paymentRequest struct {
	Value string `json:"value"`
}

// ExecuteSale buys a listed token for the caller.
// POST /api/nfts/{id}/sale
func (h *NftHandler) ExecuteSale(w http.ResponseWriter, r *http.Request) {
	h.paid(w, r, "execute sale", h.nfts.ExecuteSale)
}

// Like records a paid like.
// POST /api/nfts/{id}/like
func (h *NftHandler) Like(w http.ResponseWriter, r *http.Request) {
	h.paid(w, r, "like", h.nfts.LikeNft)
}

// Dislike records a paid dislike.
// POST /api/nfts/{id}/dislike
func (h *NftHandler) Dislike(w http.ResponseWriter, r *http.Request) {
	h.paid(w, r, "dislike", h.nfts.DislikeNft)
}

func (h *NftHandler) paid(w http.ResponseWriter, r *http.Request, op string, fn func(context.Context, domain.Call, uint64) error) {
	id, err := tokenIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req paymentRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	call, err := callFrom(r, req.Value)
	if err != nil {
		writeCallError(w, r, h.logger, op, err)
		return
	}
	if err := fn(r.Context(), call, id); err != nil {
		writeCallError(w, r, h.logger, op, err)
		return
	}
	h.writeItem(w, r, id)
}

// writeItem responds with the item state after a successful call.
func (h *NftHandler) writeItem(w http.ResponseWriter, r *http.Request, id uint64) {
	item, err := h.nfts.FetchNftByID(r.Context(), id)
	if err != nil {
		writeCallError(w, r, h.logger, "get nft", err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}
