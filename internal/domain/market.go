package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// LikeFeeRecipient selects who receives the fee paid for a like or dislike.
type LikeFeeRecipient string

const (
	LikeFeeToMarketOwner LikeFeeRecipient = "market_owner"
	LikeFeeToCreator     LikeFeeRecipient = "creator"
)

// Valid reports whether r is one of the known recipients.
func (r LikeFeeRecipient) Valid() bool {
	return r == LikeFeeToMarketOwner || r == LikeFeeToCreator
}

// MaxCommissionBps caps the sale commission at 100%.
const MaxCommissionBps = 10_000

// MarketItem is the record kept for every minted token.
type MarketItem struct {
	TokenID   uint64         `json:"tokenId"`
	TokenURI  string         `json:"tokenUri"`
	Creator   common.Address `json:"creator"`
	Owner     common.Address `json:"owner"`
	Price     *big.Int       `json:"price"`
	Selling   bool           `json:"selling"`
	Reselling bool           `json:"reselling"`
	Sold      bool           `json:"sold"` // changed hands at least once
	Likes     uint64         `json:"likes"`
	Dislikes  uint64         `json:"dislikes"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// Clone returns a deep copy of the item so callers can mutate it without
// aliasing the stored price.
func (it MarketItem) Clone() MarketItem {
	out := it
	if it.Price != nil {
		out.Price = new(big.Int).Set(it.Price)
	}
	return out
}

// MarketSettings is the market-wide singleton written once at deployment.
// Only Owner may change the fee fields afterwards.
type MarketSettings struct {
	Address          common.Address   `json:"address"`
	Owner            common.Address   `json:"owner"`
	ChainID          int64            `json:"chainId"`
	ListingFee       *big.Int         `json:"listingFee"`
	LikingPrice      *big.Int         `json:"likingPrice"`
	CommissionBps    uint16           `json:"commissionBps"`
	LikeFeeRecipient LikeFeeRecipient `json:"likeFeeRecipient"`
	NextTokenID      uint64           `json:"nextTokenId"`
	DeployedAt       time.Time        `json:"deployedAt"`
}

// Clone returns a deep copy of the settings.
func (s MarketSettings) Clone() MarketSettings {
	out := s
	if s.ListingFee != nil {
		out.ListingFee = new(big.Int).Set(s.ListingFee)
	}
	if s.LikingPrice != nil {
		out.LikingPrice = new(big.Int).Set(s.LikingPrice)
	}
	return out
}

// Call carries the authenticated caller identity and the value attached to a
// mutating operation. The hosting runtime fills it in; the marketplace only
// compares identities and amounts.
type Call struct {
	Caller common.Address
	Value  *big.Int
}

// Paid reports whether the call carries a non-zero payment.
func (c Call) Paid() bool {
	return c.Value != nil && c.Value.Sign() != 0
}

// AmountOf returns the attached value, or zero when none was attached.
func (c Call) AmountOf() *big.Int {
	if c.Value == nil {
		return new(big.Int)
	}
	return c.Value
}
