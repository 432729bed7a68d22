package domain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/params"
)

type unit struct {
	suffix string
	scale  *big.Int
}

// units is ordered so that "gwei" is tried before "wei".
var units = []unit{
	{"gwei", big.NewInt(params.GWei)},
	{"ether", big.NewInt(params.Ether)},
	{"eth", big.NewInt(params.Ether)},
	{"wei", big.NewInt(1)},
}

// ParseAmount parses a non-negative amount. A bare integer is read as wei;
// a number followed by a unit ("0.01ether", "5 gwei") is scaled and must
// resolve to a whole number of wei.
func ParseAmount(s string) (*big.Int, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return nil, fmt.Errorf("amount: empty: %w", ErrInvalidArgument)
	}

	num, scale := s, big.NewInt(1)
	for _, u := range units {
		if strings.HasSuffix(s, u.suffix) {
			num, scale = strings.TrimSpace(strings.TrimSuffix(s, u.suffix)), u.scale
			break
		}
	}

	r, ok := new(big.Rat).SetString(num)
	if !ok {
		return nil, fmt.Errorf("amount: parse %q: %w", s, ErrInvalidArgument)
	}
	r.Mul(r, new(big.Rat).SetInt(scale))
	if !r.IsInt() {
		return nil, fmt.Errorf("amount: %q is not a whole number of wei: %w", s, ErrInvalidArgument)
	}
	if r.Sign() < 0 {
		return nil, fmt.Errorf("amount: %q is negative: %w", s, ErrInvalidArgument)
	}
	return new(big.Int).Set(r.Num()), nil
}

// FormatEther renders a wei amount as a decimal ether string, trimming
// trailing zeros.
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	r := new(big.Rat).SetFrac(wei, big.NewInt(params.Ether))
	out := r.FloatString(18)
	out = strings.TrimRight(out, "0")
	return strings.TrimSuffix(out, ".")
}
