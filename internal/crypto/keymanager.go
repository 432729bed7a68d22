// Package crypto provides key management, EIP-191 request signing and
// recovery for marketplace callers, and HMAC signatures for webhooks.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// pbkdf2Iterations is the OWASP-recommended minimum for HMAC-SHA256.
	pbkdf2Iterations = 480_000
	saltLen          = 16
	aesKeyLen        = 32
	currentVersion   = 1
)

// encryptedKeyJSON is the on-disk format for an encrypted private key.
type encryptedKeyJSON struct {
	Version    int    `json:"version"`
	Address    string `json:"address,omitempty"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// KeyConfig says where LoadSigner finds a private key.
type KeyConfig struct {
	// RawPrivateKey is a hex key, with or without 0x. It wins when set.
	RawPrivateKey string
	// EncryptedKeyPath is a file written by WriteEncryptedKey.
	EncryptedKeyPath string
	KeyPassword      string
}

// Configured reports whether any key source is set.
func (c KeyConfig) Configured() bool {
	return c.RawPrivateKey != "" || c.EncryptedKeyPath != ""
}

func deriveGCM(password string, salt []byte) (cipher.AEAD, error) {
	derivedKey := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, aesKeyLen, sha256.New)
	block, err := aes.NewCipher(derivedKey)
	if err != nil {
		return nil, fmt.Errorf("crypto/keymanager: creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto/keymanager: creating GCM: %w", err)
	}
	return gcm, nil
}

// EncryptKey encrypts a hex private key with PBKDF2-HMAC-SHA256 key
// derivation and AES-256-GCM and returns the JSON document.
func EncryptKey(privateKeyHex string, password string) ([]byte, error) {
	if password == "" {
		return nil, errors.New("crypto/keymanager: password must not be empty")
	}
	signer, err := NewSigner(privateKeyHex)
	if err != nil {
		return nil, err
	}
	keyBytes, _ := hex.DecodeString(strings.TrimPrefix(privateKeyHex, "0x"))

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypto/keymanager: generating salt: %w", err)
	}
	gcm, err := deriveGCM(password, salt)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto/keymanager: generating nonce: %w", err)
	}

	return json.MarshalIndent(encryptedKeyJSON{
		Version:    currentVersion,
		Address:    signer.Address().Hex(),
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(gcm.Seal(nil, nonce, keyBytes, nil)),
	}, "", "  ")
}

// DecryptKey reverses EncryptKey and returns the key hex without 0x.
func DecryptKey(encryptedJSON []byte, password string) (string, error) {
	if password == "" {
		return "", errors.New("crypto/keymanager: password must not be empty")
	}

	var stored encryptedKeyJSON
	if err := json.Unmarshal(encryptedJSON, &stored); err != nil {
		return "", fmt.Errorf("crypto/keymanager: parsing encrypted key JSON: %w", err)
	}
	if stored.Version != currentVersion {
		return "", fmt.Errorf("crypto/keymanager: unsupported version %d", stored.Version)
	}

	var salt, nonce, ciphertext []byte
	for _, f := range []struct {
		name string
		in   string
		out  *[]byte
	}{
		{"salt", stored.Salt, &salt},
		{"nonce", stored.Nonce, &nonce},
		{"ciphertext", stored.Ciphertext, &ciphertext},
	} {
		b, err := base64.StdEncoding.DecodeString(f.in)
		if err != nil {
			return "", fmt.Errorf("crypto/keymanager: decoding %s: %w", f.name, err)
		}
		*f.out = b
	}

	gcm, err := deriveGCM(password, salt)
	if err != nil {
		return "", err
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("crypto/keymanager: decryption failed (wrong password?): %w", err)
	}
	return hex.EncodeToString(plaintext), nil
}

// WriteEncryptedKey encrypts privateKeyHex and writes it to path with 0600
// permissions.
func WriteEncryptedKey(path, privateKeyHex, password string) error {
	data, err := EncryptKey(privateKeyHex, password)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("crypto/keymanager: create key dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("crypto/keymanager: write key file: %w", err)
	}
	return nil
}

// LoadSigner resolves a key from cfg. A raw key wins over an encrypted file.
func LoadSigner(cfg KeyConfig) (*Signer, error) {
	if cfg.RawPrivateKey != "" {
		return NewSigner(cfg.RawPrivateKey)
	}
	if cfg.EncryptedKeyPath != "" {
		data, err := os.ReadFile(cfg.EncryptedKeyPath)
		if err != nil {
			return nil, fmt.Errorf("crypto/keymanager: reading encrypted key file: %w", err)
		}
		keyHex, err := DecryptKey(data, cfg.KeyPassword)
		if err != nil {
			return nil, err
		}
		return NewSigner(keyHex)
	}
	return nil, errors.New("crypto/keymanager: no private key source configured")
}
