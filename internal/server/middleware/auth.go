package middleware

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/patrickmn/go-cache"

	"github.com/alanyoungcy/promiseland/internal/crypto"
	"github.com/alanyoungcy/promiseland/internal/domain"
)

// MaxBodyBytes bounds the body of a signed request.
const MaxBodyBytes = 1 << 20

type callerKey struct{}

// WithCaller returns a context carrying the authenticated caller.
func WithCaller(ctx context.Context, addr common.Address) context.Context {
	return context.WithValue(ctx, callerKey{}, addr)
}

// CallerFrom returns the authenticated caller stored by SignatureAuth.
func CallerFrom(ctx context.Context) (common.Address, bool) {
	addr, ok := ctx.Value(callerKey{}).(common.Address)
	return addr, ok
}

// AuthConfig configures SignatureAuth.
type AuthConfig struct {
	// MaxAge bounds the distance between X-PL-Timestamp and the server clock
	// in either direction.
	MaxAge time.Duration
	// Nonces rejects replayed requests. Nil uses an in-process store.
	Nonces domain.NonceStore
	Now    func() time.Time
	Logger *slog.Logger
}

// SignatureAuth returns middleware that authenticates every request except
// GET, HEAD and OPTIONS. The caller signs
// crypto.RequestMessage(method, path, timestamp, nonce, body) with EIP-191;
// the recovered address must match X-PL-Address and becomes the caller
// identity seen by handlers.
func SignatureAuth(cfg AuthConfig) func(http.Handler) http.Handler {
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 5 * time.Minute
	}
	if cfg.Nonces == nil {
		cfg.Nonces = NewLocalNonces()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}

			addr, err := verifyRequest(r, cfg)
			if err != nil {
				cfg.Logger.WarnContext(r.Context(), "signature rejected",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				writeUnauthorized(w, err.Error())
				return
			}
			cfg.Logger.DebugContext(r.Context(), "request authenticated",
				slog.String("caller", addr.Hex()),
				slog.String("path", r.URL.Path),
			)
			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), addr)))
		})
	}
}

var (
	errMissingHeaders = errors.New("missing signature headers")
	errBadTimestamp   = errors.New("invalid timestamp")
	errStale          = errors.New("request timestamp outside the accepted window")
	errAddrMismatch   = errors.New("signature does not match address")
)

func verifyRequest(r *http.Request, cfg AuthConfig) (common.Address, error) {
	addrHex := r.Header.Get(crypto.HeaderAddress)
	tsRaw := r.Header.Get(crypto.HeaderTimestamp)
	nonce := r.Header.Get(crypto.HeaderNonce)
	sig := r.Header.Get(crypto.HeaderSignature)
	if addrHex == "" || tsRaw == "" || nonce == "" || sig == "" {
		return common.Address{}, errMissingHeaders
	}
	if !common.IsHexAddress(addrHex) {
		return common.Address{}, errors.New("invalid address")
	}

	ts, err := strconv.ParseInt(tsRaw, 10, 64)
	if err != nil {
		return common.Address{}, errBadTimestamp
	}
	skew := cfg.Now().Sub(time.Unix(ts, 0))
	if skew > cfg.MaxAge || skew < -cfg.MaxAge {
		return common.Address{}, errStale
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, MaxBodyBytes+1))
	if err != nil {
		return common.Address{}, errors.New("read body")
	}
	if len(body) > MaxBodyBytes {
		return common.Address{}, errors.New("body too large")
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	recovered, err := crypto.RecoverMessage(crypto.RequestMessage(r.Method, r.URL.Path, ts, nonce, body), sig)
	if err != nil {
		return common.Address{}, err
	}
	if recovered != common.HexToAddress(addrHex) {
		return common.Address{}, errAddrMismatch
	}

	// Nonces are claimed only for verified signatures.
	fresh, err := cfg.Nonces.Claim(r.Context(), strings.ToLower(recovered.Hex()), nonce, 2*cfg.MaxAge)
	if err != nil {
		return common.Address{}, err
	}
	if !fresh {
		return common.Address{}, domain.ErrReplayed
	}
	return recovered, nil
}

// writeUnauthorized sends a 401 response with a JSON error body.
func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":` + strconv.Quote(msg) + `}`))
}

// LocalNonces is an in-process domain.NonceStore for single-replica
// deployments without Redis.
type LocalNonces struct {
	cache *cache.Cache
}

// NewLocalNonces creates an empty LocalNonces.
func NewLocalNonces() *LocalNonces {
	return &LocalNonces{cache: cache.New(cache.NoExpiration, time.Minute)}
}

// Claim implements domain.NonceStore.
func (l *LocalNonces) Claim(_ context.Context, scope, nonce string, ttl time.Duration) (bool, error) {
	if err := l.cache.Add(scope+":"+nonce, struct{}{}, ttl); err != nil {
		return false, nil
	}
	return true, nil
}
