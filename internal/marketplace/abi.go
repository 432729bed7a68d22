package marketplace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/promiseland/internal/domain"
)

// ContractName is the name the market is published under.
const ContractName = "PromiseLand"

const marketItemComponents = `[
	{"name": "tokenId", "type": "uint256"},
	{"name": "tokenURI", "type": "string"},
	{"name": "creator", "type": "address"},
	{"name": "owner", "type": "address"},
	{"name": "price", "type": "uint256"},
	{"name": "selling", "type": "bool"},
	{"name": "reselling", "type": "bool"},
	{"name": "likes", "type": "uint256"},
	{"name": "dislikes", "type": "uint256"}
]`

var abiJSON = strings.ReplaceAll(`[
{"type": "constructor", "stateMutability": "nonpayable", "inputs": []},
{"type": "function", "name": "createToken", "stateMutability": "nonpayable",
 "inputs": [{"name": "tokenURI", "type": "string"}],
 "outputs": [{"name": "", "type": "uint256"}]},
{"type": "function", "name": "updateListingPrice", "stateMutability": "payable",
 "inputs": [{"name": "tokenId", "type": "uint256"}, {"name": "price", "type": "uint256"}],
 "outputs": []},
{"type": "function", "name": "executeSale", "stateMutability": "payable",
 "inputs": [{"name": "tokenId", "type": "uint256"}], "outputs": []},
{"type": "function", "name": "likeNft", "stateMutability": "payable",
 "inputs": [{"name": "tokenId", "type": "uint256"}], "outputs": []},
{"type": "function", "name": "dislikeNft", "stateMutability": "payable",
 "inputs": [{"name": "tokenId", "type": "uint256"}], "outputs": []},
{"type": "function", "name": "withdraw", "stateMutability": "nonpayable",
 "inputs": [], "outputs": []},
{"type": "function", "name": "fetchNftById", "stateMutability": "view",
 "inputs": [{"name": "tokenId", "type": "uint256"}],
 "outputs": [{"name": "", "type": "tuple", "internalType": "struct PromiseLand.MarketItem", "components": MARKET_ITEM}]},
{"type": "function", "name": "fetchAllNfts", "stateMutability": "view", "inputs": [],
 "outputs": [{"name": "", "type": "tuple[]", "internalType": "struct PromiseLand.MarketItem[]", "components": MARKET_ITEM}]},
{"type": "function", "name": "fetchListedNfts", "stateMutability": "view", "inputs": [],
 "outputs": [{"name": "", "type": "tuple[]", "internalType": "struct PromiseLand.MarketItem[]", "components": MARKET_ITEM}]},
{"type": "function", "name": "tokenURI", "stateMutability": "view",
 "inputs": [{"name": "tokenId", "type": "uint256"}],
 "outputs": [{"name": "", "type": "string"}]},
{"type": "function", "name": "likingPrice", "stateMutability": "view", "inputs": [],
 "outputs": [{"name": "", "type": "uint256"}]},
{"type": "function", "name": "listingFee", "stateMutability": "view", "inputs": [],
 "outputs": [{"name": "", "type": "uint256"}]},
{"type": "function", "name": "balanceOf", "stateMutability": "view",
 "inputs": [{"name": "account", "type": "address"}],
 "outputs": [{"name": "", "type": "uint256"}]},
{"type": "event", "name": "TokenCreated", "anonymous": false, "inputs": [
 {"name": "tokenId", "type": "uint256", "indexed": true},
 {"name": "creator", "type": "address", "indexed": true},
 {"name": "tokenURI", "type": "string", "indexed": false}]},
{"type": "event", "name": "ListingUpdated", "anonymous": false, "inputs": [
 {"name": "tokenId", "type": "uint256", "indexed": true},
 {"name": "owner", "type": "address", "indexed": true},
 {"name": "price", "type": "uint256", "indexed": false}]},
{"type": "event", "name": "ItemSold", "anonymous": false, "inputs": [
 {"name": "tokenId", "type": "uint256", "indexed": true},
 {"name": "buyer", "type": "address", "indexed": true},
 {"name": "seller", "type": "address", "indexed": true},
 {"name": "price", "type": "uint256", "indexed": false}]},
{"type": "event", "name": "ItemLiked", "anonymous": false, "inputs": [
 {"name": "tokenId", "type": "uint256", "indexed": true},
 {"name": "voter", "type": "address", "indexed": true}]},
{"type": "event", "name": "ItemDisliked", "anonymous": false, "inputs": [
 {"name": "tokenId", "type": "uint256", "indexed": true},
 {"name": "voter", "type": "address", "indexed": true}]},
{"type": "event", "name": "FeesUpdated", "anonymous": false, "inputs": [
 {"name": "listingFee", "type": "uint256", "indexed": false},
 {"name": "likingPrice", "type": "uint256", "indexed": false}]},
{"type": "event", "name": "Withdrawal", "anonymous": false, "inputs": [
 {"name": "account", "type": "address", "indexed": true},
 {"name": "amount", "type": "uint256", "indexed": false}]}
]`, "MARKET_ITEM", marketItemComponents)

var (
	parsedOnce sync.Once
	parsedABI  abi.ABI
	parseErr   error
)

// ABI returns the parsed interface description of the market.
func ABI() (abi.ABI, error) {
	parsedOnce.Do(func() {
		parsedABI, parseErr = abi.JSON(strings.NewReader(abiJSON))
	})
	return parsedABI, parseErr
}

// ABIJSON returns the raw JSON interface description.
func ABIJSON() json.RawMessage {
	return json.RawMessage(abiJSON)
}

// EventTopic returns the topic hash of a marketplace event, or the zero hash
// for events the ABI does not describe (deploy and deposit bookkeeping).
func EventTopic(name domain.EventName) common.Hash {
	parsed, err := ABI()
	if err != nil {
		return common.Hash{}
	}
	ev, ok := parsed.Events[string(name)]
	if !ok {
		return common.Hash{}
	}
	return ev.ID
}

// Artifact is the deployment record consumed by clients.
type Artifact struct {
	Address common.Address  `json:"address"`
	ABI     json.RawMessage `json:"abi"`
}

// NewArtifact builds the artifact for a market deployed at addr.
func NewArtifact(addr common.Address) Artifact {
	return Artifact{Address: addr, ABI: ABIJSON()}
}

// Marshal encodes the artifact as indented JSON.
func (a Artifact) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marketplace: marshal artifact: %w", err)
	}
	return data, nil
}

// WriteArtifact writes the artifact to path, creating parent directories.
func WriteArtifact(path string, a Artifact) error {
	data, err := a.Marshal()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("marketplace: create artifact dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("marketplace: write artifact %s: %w", path, err)
	}
	return nil
}

// ReadArtifact loads an artifact written by WriteArtifact.
func ReadArtifact(path string) (Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Artifact{}, fmt.Errorf("marketplace: read artifact %s: %w", path, err)
	}
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return Artifact{}, fmt.Errorf("marketplace: decode artifact %s: %w", path, err)
	}
	return a, nil
}
