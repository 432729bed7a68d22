// Package client is a Go client for the PromiseLand HTTP API. Mutating calls
// are signed with the caller's key; the server derives the caller identity
// from the signature.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/promiseland/internal/crypto"
	"github.com/alanyoungcy/promiseland/internal/domain"
)

// Client talks to one PromiseLand server as one caller.
type Client struct {
	baseURL    string
	httpClient *http.Client
	signer     *crypto.Signer
}

// New creates a Client. signer may be nil for read-only use.
func New(baseURL string, signer *crypto.Signer) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		signer: signer,
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// Address returns the caller address, or the zero address without a signer.
func (c *Client) Address() common.Address {
	if c.signer == nil {
		return common.Address{}
	}
	return c.signer.Address()
}

// Settings returns the market settings.
func (c *Client) Settings(ctx context.Context) (domain.MarketSettings, error) {
	var out domain.MarketSettings
	if err := c.do(ctx, http.MethodGet, "/api/market", nil, &out); err != nil {
		return domain.MarketSettings{}, fmt.Errorf("client: settings: %w", err)
	}
	return out, nil
}

// CreateToken mints a token with the given metadata uri.
func (c *Client) CreateToken(ctx context.Context, uri string) (uint64, error) {
	var out struct {
		TokenID uint64 `json:"tokenId"`
	}
	body := map[string]string{"uri": uri}
	if err := c.do(ctx, http.MethodPost, "/api/nfts", body, &out); err != nil {
		return 0, fmt.Errorf("client: create token: %w", err)
	}
	return out.TokenID, nil
}

// UpdateListingPrice lists tokenID at price, attaching fee.
func (c *Client) UpdateListingPrice(ctx context.Context, tokenID uint64, price, fee *big.Int) (domain.MarketItem, error) {
	var out domain.MarketItem
	body := map[string]string{"price": price.String(), "value": amountString(fee)}
	if err := c.do(ctx, http.MethodPost, itemPath(tokenID, "listing"), body, &out); err != nil {
		return domain.MarketItem{}, fmt.Errorf("client: update listing %d: %w", tokenID, err)
	}
	return out, nil
}

// ExecuteSale buys tokenID, attaching value.
func (c *Client) ExecuteSale(ctx context.Context, tokenID uint64, value *big.Int) (domain.MarketItem, error) {
	return c.paid(ctx, "sale", tokenID, value)
}

// LikeNft likes tokenID, attaching value.
func (c *Client) LikeNft(ctx context.Context, tokenID uint64, value *big.Int) (domain.MarketItem, error) {
	return c.paid(ctx, "like", tokenID, value)
}

// DislikeNft dislikes tokenID, attaching value.
func (c *Client) DislikeNft(ctx context.Context, tokenID uint64, value *big.Int) (domain.MarketItem, error) {
	return c.paid(ctx, "dislike", tokenID, value)
}

func (c *Client) paid(ctx context.Context, op string, tokenID uint64, value *big.Int) (domain.MarketItem, error) {
	var out domain.MarketItem
	body := map[string]string{"value": amountString(value)}
	if err := c.do(ctx, http.MethodPost, itemPath(tokenID, op), body, &out); err != nil {
		return domain.MarketItem{}, fmt.Errorf("client: %s %d: %w", op, tokenID, err)
	}
	return out, nil
}

// FetchNftByID returns one item.
func (c *Client) FetchNftByID(ctx context.Context, tokenID uint64) (domain.MarketItem, error) {
	var out domain.MarketItem
	if err := c.do(ctx, http.MethodGet, itemPath(tokenID, ""), nil, &out); err != nil {
		return domain.MarketItem{}, fmt.Errorf("client: fetch nft %d: %w", tokenID, err)
	}
	return out, nil
}

// TokenURI returns the metadata uri of tokenID.
func (c *Client) TokenURI(ctx context.Context, tokenID uint64) (string, error) {
	var out struct {
		TokenURI string `json:"tokenUri"`
	}
	if err := c.do(ctx, http.MethodGet, itemPath(tokenID, "uri"), nil, &out); err != nil {
		return "", fmt.Errorf("client: token uri %d: %w", tokenID, err)
	}
	return out.TokenURI, nil
}

// FetchAllNfts returns every item.
func (c *Client) FetchAllNfts(ctx context.Context) ([]domain.MarketItem, error) {
	var out []domain.MarketItem
	if err := c.do(ctx, http.MethodGet, "/api/nfts", nil, &out); err != nil {
		return nil, fmt.Errorf("client: fetch all nfts: %w", err)
	}
	return out, nil
}

// FetchListedNfts returns the items currently for sale.
func (c *Client) FetchListedNfts(ctx context.Context) ([]domain.MarketItem, error) {
	var out []domain.MarketItem
	if err := c.do(ctx, http.MethodGet, "/api/nfts/listed", nil, &out); err != nil {
		return nil, fmt.Errorf("client: fetch listed nfts: %w", err)
	}
	return out, nil
}

type balanceResponse struct {
	Balance *big.Int `json:"balance"`
}

// BalanceOf returns the account balance of addr.
func (c *Client) BalanceOf(ctx context.Context, addr common.Address) (*big.Int, error) {
	var out balanceResponse
	if err := c.do(ctx, http.MethodGet, "/api/accounts/"+addr.Hex(), nil, &out); err != nil {
		return nil, fmt.Errorf("client: balance of %s: %w", addr.Hex(), err)
	}
	return out.Balance, nil
}

// Withdraw drains the caller's account and returns the amount released.
func (c *Client) Withdraw(ctx context.Context) (*big.Int, error) {
	var out balanceResponse
	if err := c.do(ctx, http.MethodPost, "/api/accounts/withdraw", nil, &out); err != nil {
		return nil, fmt.Errorf("client: withdraw: %w", err)
	}
	return out.Balance, nil
}

// Deposit credits amount to an account. Market owner only.
func (c *Client) Deposit(ctx context.Context, to common.Address, amount *big.Int) error {
	body := map[string]string{"to": to.Hex(), "amount": amount.String()}
	if err := c.do(ctx, http.MethodPost, "/api/admin/deposit", body, nil); err != nil {
		return fmt.Errorf("client: deposit: %w", err)
	}
	return nil
}

// FeeUpdate lists the fee fields to change; nil fields are left untouched.
type FeeUpdate struct {
	ListingFee       *big.Int
	LikingPrice      *big.Int
	CommissionBps    *uint16
	LikeFeeRecipient *domain.LikeFeeRecipient
}

// UpdateFees changes the fee settings. Market owner only.
func (c *Client) UpdateFees(ctx context.Context, u FeeUpdate) (domain.MarketSettings, error) {
	body := map[string]any{}
	if u.ListingFee != nil {
		body["listingFee"] = u.ListingFee.String()
	}
	if u.LikingPrice != nil {
		body["likingPrice"] = u.LikingPrice.String()
	}
	if u.CommissionBps != nil {
		body["commissionBps"] = *u.CommissionBps
	}
	if u.LikeFeeRecipient != nil {
		body["likeFeeRecipient"] = string(*u.LikeFeeRecipient)
	}
	var out domain.MarketSettings
	if err := c.do(ctx, http.MethodPut, "/api/admin/fees", body, &out); err != nil {
		return domain.MarketSettings{}, fmt.Errorf("client: update fees: %w", err)
	}
	return out, nil
}

// Events returns up to limit events with seq greater than after.
func (c *Client) Events(ctx context.Context, after uint64, limit int) ([]domain.Event, error) {
	params := url.Values{}
	params.Set("after", strconv.FormatUint(after, 10))
	params.Set("limit", strconv.Itoa(limit))

	var out struct {
		Events []domain.Event `json:"events"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/events?"+params.Encode(), nil, &out); err != nil {
		return nil, fmt.Errorf("client: events: %w", err)
	}
	return out.Events, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

func itemPath(tokenID uint64, op string) string {
	p := "/api/nfts/" + strconv.FormatUint(tokenID, 10)
	if op != "" {
		p += "/" + op
	}
	return p
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// do builds, signs, sends and decodes one request. GET requests are sent
// unsigned.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if method != http.MethodGet {
		if c.signer == nil {
			return fmt.Errorf("%s %s needs a signer: %w", method, path, domain.ErrUnauthorized)
		}
		headers, err := c.signer.RequestHeaders(method, req.URL.Path, payload)
		if err != nil {
			return fmt.Errorf("sign request: %w", err)
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// checkHTTPStatus maps non-2xx status codes back to domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	var apiErr struct {
		Error string `json:"error"`
	}
	msg := string(body)
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
		msg = apiErr.Error
	}

	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, msg)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, msg)
	case http.StatusPaymentRequired:
		return fmt.Errorf("%w: %s", domain.ErrInvalidPayment, msg)
	case http.StatusConflict:
		return fmt.Errorf("%w: %s", domain.ErrInvalidState, msg)
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", domain.ErrInvalidArgument, msg)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, msg)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, msg)
	}
}
