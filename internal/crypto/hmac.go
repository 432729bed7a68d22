package crypto

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// WebhookSignature returns hex(HMAC-SHA256(secret, timestamp + "." + body)),
// the value sent in the signature header of outgoing webhooks.
func WebhookSignature(secret []byte, unixTS int64, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(strconv.FormatInt(unixTS, 10)))
	mac.Write([]byte{'.'})
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyWebhookSignature checks sig in constant time.
func VerifyWebhookSignature(secret []byte, unixTS int64, body []byte, sig string) bool {
	want := WebhookSignature(secret, unixTS, body)
	return hmac.Equal([]byte(want), []byte(sig))
}

// newNonce returns 16 random bytes as hex.
func newNonce() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
