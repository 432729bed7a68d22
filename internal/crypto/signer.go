package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Header names of a signed marketplace request.
const (
	HeaderAddress   = "X-PL-Address"
	HeaderTimestamp = "X-PL-Timestamp"
	HeaderNonce     = "X-PL-Nonce"
	HeaderSignature = "X-PL-Signature"
)

// RequestMessage builds the text a client signs for an HTTP request:
//
//	METHOD \n PATH \n TIMESTAMP \n NONCE \n 0x<keccak256(body)>
func RequestMessage(method, path string, unixTS int64, nonce string, body []byte) []byte {
	bodyHash := ethcrypto.Keccak256Hash(body)
	return []byte(strings.Join([]string{
		strings.ToUpper(method),
		path,
		strconv.FormatInt(unixTS, 10),
		nonce,
		bodyHash.Hex(),
	}, "\n"))
}

// Signer signs marketplace requests with a secp256k1 key using EIP-191
// personal-sign hashing.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewSigner creates a Signer from a hex-encoded secp256k1 private key.
func NewSigner(privateKeyHex string) (*Signer, error) {
	keyHex := strings.TrimPrefix(privateKeyHex, "0x")
	pk, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid private key: %w", err)
	}
	return &Signer{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
	}, nil
}

// GenerateSigner creates a Signer with a fresh random key and returns the
// key hex alongside it.
func GenerateSigner() (*Signer, string, error) {
	pk, err := ethcrypto.GenerateKey()
	if err != nil {
		return nil, "", fmt.Errorf("crypto/signer: generate key: %w", err)
	}
	s := &Signer{privateKey: pk, address: ethcrypto.PubkeyToAddress(pk.PublicKey)}
	return s, hex.EncodeToString(ethcrypto.FromECDSA(pk)), nil
}

// Address returns the Ethereum address derived from the signer's key.
func (s *Signer) Address() common.Address {
	return s.address
}

// SignMessage signs msg with the EIP-191 prefix and returns a 0x-prefixed
// 65-byte signature with v in {27,28}.
func (s *Signer) SignMessage(msg []byte) (string, error) {
	sig, err := ethcrypto.Sign(accounts.TextHash(msg), s.privateKey)
	if err != nil {
		return "", fmt.Errorf("crypto/signer: signing: %w", err)
	}
	sig[64] += 27
	return "0x" + hex.EncodeToString(sig), nil
}

// RequestHeaders returns the headers authenticating one HTTP request.
func (s *Signer) RequestHeaders(method, path string, body []byte) (map[string]string, error) {
	return s.RequestHeadersAt(method, path, body, time.Now().Unix(), newNonce())
}

// RequestHeadersAt is like RequestHeaders with a caller-supplied timestamp
// and nonce.
func (s *Signer) RequestHeadersAt(method, path string, body []byte, unixTS int64, nonce string) (map[string]string, error) {
	sig, err := s.SignMessage(RequestMessage(method, path, unixTS, nonce, body))
	if err != nil {
		return nil, err
	}
	return map[string]string{
		HeaderAddress:   s.address.Hex(),
		HeaderTimestamp: strconv.FormatInt(unixTS, 10),
		HeaderNonce:     nonce,
		HeaderSignature: sig,
	}, nil
}

// RecoverMessage returns the address that produced sig over msg.
func RecoverMessage(msg []byte, sigHex string) (common.Address, error) {
	sig, err := hex.DecodeString(strings.TrimPrefix(sigHex, "0x"))
	if err != nil {
		return common.Address{}, fmt.Errorf("crypto/signer: decode signature: %w", err)
	}
	if len(sig) != ethcrypto.SignatureLength {
		return common.Address{}, fmt.Errorf("crypto/signer: signature is %d bytes, want %d", len(sig), ethcrypto.SignatureLength)
	}
	if sig[64] >= 27 {
		sig[64] -= 27
	}

	pub, err := ethcrypto.SigToPub(accounts.TextHash(msg), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("crypto/signer: recover: %w", err)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}
