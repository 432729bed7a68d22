package handler

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/promiseland/internal/domain"
)

func TestStatusFor(t *testing.T) {
	cases := map[error]int{
		domain.ErrNotFound:          http.StatusNotFound,
		domain.ErrNotDeployed:       http.StatusNotFound,
		domain.ErrUnauthorized:      http.StatusForbidden,
		domain.ErrInvalidPayment:    http.StatusPaymentRequired,
		domain.ErrInsufficientFunds: http.StatusPaymentRequired,
		domain.ErrInvalidState:      http.StatusConflict,
		domain.ErrInvalidArgument:   http.StatusBadRequest,
		errors.New("boom"):          http.StatusInternalServerError,
	}
	for err, want := range cases {
		wrapped := fmt.Errorf("market_service: op: %w", err)
		require.Equal(t, want, statusFor(wrapped), err.Error())
	}
}

func TestAmount(t *testing.T) {
	v, err := amount("")
	require.NoError(t, err)
	require.Zero(t, v.Sign())

	v, err = amount("2gwei")
	require.NoError(t, err)
	require.Equal(t, "2000000000", v.String())

	_, err = amount("-3")
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}
