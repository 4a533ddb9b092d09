// Package payment verifies on-chain transfers submitted as proof of payment.
package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound = errors.New("transaction not found")
	ErrMismatch = errors.New("transfer does not match the expected payment")
	ErrUpstream = errors.New("explorer request failed")
)

// VerificationError wraps a failed verification of one transaction hash
type VerificationError struct {
	Hash string
	Err  error
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("verify %s: %v", e.Hash, e.Err)
}

func (e *VerificationError) Unwrap() error { return e.Err }

// Verifier checks that a transaction paid amount of the configured asset to
// the configured wallet. On success it returns the payment id: the key one
// payment is redeemed under, whichever of its hashes was submitted.
type Verifier interface {
	Verify(ctx context.Context, txHash string, amount decimal.Decimal) (string, error)
}

// Expectation is what a valid transfer must carry
type Expectation struct {
	Asset    string
	Wallet   string
	Decimals int32
}

// ToUnits converts a human amount into the asset's smallest unit
func ToUnits(amount decimal.Decimal, decimals int32) decimal.Decimal {
	return amount.Shift(decimals).Truncate(0)
}

// SameAsset compares asset symbols, treating the TON "USD₮" ticker as USDT
func SameAsset(a, b string) bool {
	norm := func(s string) string {
		return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "₮", "T"))
	}
	return norm(a) == norm(b)
}

// CleanHash strips whitespace and explorer URL prefixes from a submitted
// hash. Hex hashes are lowercased so one transaction has one spelling.
func CleanHash(input string) string {
	h := strings.TrimSpace(input)
	if i := strings.LastIndexAny(h, "/=#"); i >= 0 {
		h = h[i+1:]
	}
	if isHex(h) {
		h = strings.ToLower(h)
	}
	return h
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

func verificationError(hash string, err error, format string, args ...any) error {
	return &VerificationError{Hash: hash, Err: fmt.Errorf("%w: "+format, append([]any{err}, args...)...)}
}
