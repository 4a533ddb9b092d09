package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"
	"github.com/tonkeeper/tongo/ton"
)

// TonAPIVerifier checks jetton transfers on TON through TonAPI
type TonAPIVerifier struct {
	client    *Client
	expect    Expectation
	walletRaw string
}

// NewTonAPIVerifier creates a verifier for jetton payments on TON
func NewTonAPIVerifier(client *Client, expect Expectation) *TonAPIVerifier {
	return &TonAPIVerifier{
		client:    client,
		expect:    expect,
		walletRaw: NormalizeAddress(expect.Wallet),
	}
}

// Verify looks the hash up as an event. Every transaction hash of a trace
// resolves to the same event, so the event id is the payment id.
func (v *TonAPIVerifier) Verify(ctx context.Context, txHash string, amount decimal.Decimal) (string, error) {
	data, err := v.client.get(ctx, "/events/"+url.PathEscape(txHash))
	if err != nil {
		var se *statusError
		if errors.As(err, &se) && (se.code == http.StatusNotFound || se.code == http.StatusBadRequest) {
			return "", verificationError(txHash, ErrNotFound, "status %d", se.code)
		}
		return "", verificationError(txHash, ErrUpstream, "%v", err)
	}

	var event tonEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return "", verificationError(txHash, ErrUpstream, "unmarshal: %v", err)
	}
	if event.EventID == "" {
		return "", verificationError(txHash, ErrUpstream, "event without id")
	}
	if event.InProgress {
		return "", verificationError(txHash, ErrNotFound, "event still in progress")
	}

	want := ToUnits(amount, v.expect.Decimals)

	var seen bool
	for _, action := range event.Actions {
		jt := action.JettonTransfer
		if action.Type != "JettonTransfer" || jt == nil {
			continue
		}
		seen = true

		if action.Status != "ok" {
			continue
		}
		if !SameAsset(jt.Jetton.Symbol, v.expect.Asset) {
			continue
		}
		if jt.Recipient == nil || NormalizeAddress(jt.Recipient.Address) != v.walletRaw {
			continue
		}

		got, err := decimal.NewFromString(jt.Amount)
		if err != nil || !got.Equal(want) {
			continue
		}

		return CleanHash(event.EventID), nil
	}

	if !seen {
		return "", verificationError(txHash, ErrNotFound, "no jetton transfer")
	}
	return "", verificationError(txHash, ErrMismatch, "no transfer of %s %s to %s", want, v.expect.Asset, v.expect.Wallet)
}

// NormalizeAddress converts any address format to raw (0:...)
func NormalizeAddress(addr string) string {
	if addr == "" {
		return ""
	}

	acc, err := ton.ParseAccountID(addr)
	if err != nil {
		return addr
	}

	return acc.String()
}
