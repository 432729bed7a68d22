package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/promiseland/internal/domain"
	"github.com/alanyoungcy/promiseland/internal/server/middleware"
)

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps marketplace errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrNotDeployed):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrInvalidPayment), errors.Is(err, domain.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, domain.ErrInvalidState), errors.Is(err, domain.ErrAlreadyDeployed):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// writeCallError reports a failed call. Server-side failures are logged and
// hidden from the client.
func writeCallError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, op string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "handler: "+op+" failed",
			slog.String("error", err.Error()),
		)
		writeError(w, status, op+" failed")
		return
	}
	writeError(w, status, err.Error())
}

// pathParam extracts a named path parameter from the request using Go 1.22+
// built-in routing (http.Request.PathValue).
func pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}

// tokenIDParam parses the {id} path segment.
func tokenIDParam(r *http.Request) (uint64, error) {
	id, err := strconv.ParseUint(pathParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid token id %q", pathParam(r, "id"))
	}
	return id, nil
}

// uintQuery reads a non-negative integer query parameter.
func uintQuery(r *http.Request, name string, def uint64) (uint64, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", name, v)
	}
	return n, nil
}

// decodeBody decodes a JSON body into dst. An empty body leaves dst as is.
func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, middleware.MaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// amount parses an optional amount field ("1000", "0.01ether").
func amount(s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	v, err := domain.ParseAmount(s)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// callFrom builds the domain.Call for an authenticated request.
func callFrom(r *http.Request, value string) (domain.Call, error) {
	caller, ok := middleware.CallerFrom(r.Context())
	if !ok {
		return domain.Call{}, fmt.Errorf("unauthenticated request: %w", domain.ErrUnauthorized)
	}
	v, err := amount(value)
	if err != nil {
		return domain.Call{}, err
	}
	return domain.Call{Caller: caller, Value: v}, nil
}

// addressParam parses a hex address.
func addressParam(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q: %w", s, domain.ErrInvalidArgument)
	}
	return common.HexToAddress(s), nil
}
