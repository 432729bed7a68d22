package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// EventName identifies the kind of marketplace event.
type EventName string

const (
	EventMarketDeployed EventName = "MarketDeployed"
	EventTokenCreated   EventName = "TokenCreated"
	EventListingUpdated EventName = "ListingUpdated"
	EventItemSold       EventName = "ItemSold"
	EventItemLiked      EventName = "ItemLiked"
	EventItemDisliked   EventName = "ItemDisliked"
	EventFeesUpdated    EventName = "FeesUpdated"
	EventDeposit        EventName = "Deposit"
	EventWithdrawal     EventName = "Withdrawal"
)

// Event is an entry of the append-only marketplace event log. It is written
// in the same transaction as the state change it describes; Seq is assigned
// by the store on append.
type Event struct {
	Seq          uint64         `json:"seq"`
	ID           string         `json:"id"`
	Name         EventName      `json:"name"`
	TokenID      uint64         `json:"tokenId,omitempty"`
	Actor        common.Address `json:"actor"`
	Counterparty common.Address `json:"counterparty"`
	Amount       *big.Int       `json:"amount,omitempty"`
	Detail       string         `json:"detail,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
}
