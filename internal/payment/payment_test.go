package payment

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tronWallet = "TXYZopYRdj2D9XRtbG411XZZ3kM5VkAeBf"

func newServer(t *testing.T, routes map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Path
		if h := r.URL.Query().Get("hash"); h != "" {
			key = h
		}
		body, ok := routes[key]
		if !ok {
			http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
			return
		}
		if body == "500" {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestToUnits(t *testing.T) {
	assert.Equal(t, "5000000", ToUnits(decimal.RequireFromString("5"), 6).String())
	assert.Equal(t, "12345678", ToUnits(decimal.RequireFromString("12.345678"), 6).String())
	assert.Equal(t, "1500000", ToUnits(decimal.RequireFromString("1.5"), 6).String())
}

func TestSameAsset(t *testing.T) {
	assert.True(t, SameAsset("USDT", "usdt"))
	assert.True(t, SameAsset("USD₮", "USDT"))
	assert.False(t, SameAsset("USDC", "USDT"))
}

func TestCleanHash(t *testing.T) {
	assert.Equal(t, "abc123", CleanHash("  abc123\n"))
	assert.Equal(t, "abc123", CleanHash("https://tronscan.org/#/transaction/abc123"))
	assert.Equal(t, "abc123", CleanHash("https://apilist.tronscan.org/api/transaction-info?hash=abc123"))
	assert.Equal(t, "abc123", CleanHash("ABC123"))
	assert.Equal(t, "Not-Hex", CleanHash("Not-Hex"))
}

func TestTronscanVerifier(t *testing.T) {
	transfer := func(symbol, to, amount, ret string) string {
		return `{"hash":"x","contractRet":"` + ret + `","confirmed":true,"tokenTransferInfo":{` +
			`"symbol":"` + symbol + `","to_address":"` + to + `","amount_str":"` + amount + `","decimals":6}}`
	}

	unconfirmed := strings.Replace(transfer("USDT", tronWallet, "5000000", "SUCCESS"), `"confirmed":true`, `"confirmed":false`, 1)

	srv := newServer(t, map[string]string{
		"good":        transfer("USDT", tronWallet, "5000000", "SUCCESS"),
		"short":       transfer("USDT", tronWallet, "4999999", "SUCCESS"),
		"wrongto":     transfer("USDT", "TOther", "5000000", "SUCCESS"),
		"wrongcoin":   transfer("USDC", tronWallet, "5000000", "SUCCESS"),
		"reverted":    transfer("USDT", tronWallet, "5000000", "REVERT"),
		"unconfirmed": unconfirmed,
		"empty":       `{}`,
		"broken":      "500",
	})

	v := NewTronscanVerifier(
		NewClient(srv.URL, "", 0, time.Second),
		Expectation{Asset: "USDT", Wallet: tronWallet, Decimals: 6},
	)
	price := decimal.RequireFromString("5")

	tests := []struct {
		hash string
		want error
	}{
		{"good", nil},
		{"short", ErrMismatch},
		{"wrongto", ErrMismatch},
		{"wrongcoin", ErrMismatch},
		{"reverted", ErrMismatch},
		{"empty", ErrNotFound},
		{"unconfirmed", ErrNotFound},
		{"missing", ErrNotFound},
		{"broken", ErrUpstream},
	}

	for _, tt := range tests {
		t.Run(tt.hash, func(t *testing.T) {
			id, err := v.Verify(context.Background(), tt.hash, price)
			if tt.want == nil {
				require.NoError(t, err)
				assert.Equal(t, tt.hash, id)
				return
			}
			assert.Empty(t, id)
			require.ErrorIs(t, err, tt.want)

			var ve *VerificationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.hash, ve.Hash)
		})
	}
}

func TestTonAPIVerifier(t *testing.T) {
	wallet := "0:" + strings.Repeat("ab", 32)
	other := "0:" + strings.Repeat("cd", 32)

	event := func(status, symbol, to, amount string) string {
		return `{"event_id":"E1","timestamp":1,"in_progress":false,"actions":[` +
			`{"type":"TonTransfer","status":"ok"},` +
			`{"type":"JettonTransfer","status":"` + status + `","JettonTransfer":{` +
			`"sender":{"address":"` + other + `"},"recipient":{"address":"` + to + `"},` +
			`"amount":"` + amount + `","jetton":{"symbol":"` + symbol + `","decimals":6}}}]}`
	}

	srv := newServer(t, map[string]string{
		"/events/good":    event("ok", "USD₮", wallet, "2500000"),
		"/events/inner":   event("ok", "USD₮", wallet, "2500000"),
		"/events/noid":    `{"actions":[]}`,
		"/events/failed":  event("failed", "USD₮", wallet, "2500000"),
		"/events/wrongto": event("ok", "USD₮", other, "2500000"),
		"/events/plain":   `{"event_id":"e","actions":[{"type":"TonTransfer","status":"ok"}]}`,
		"/events/pending": `{"event_id":"e","in_progress":true,"actions":[]}`,
	})

	v := NewTonAPIVerifier(
		NewClient(srv.URL, "key", 100, time.Second),
		Expectation{Asset: "USDT", Wallet: wallet, Decimals: 6},
	)
	price := decimal.RequireFromString("2.5")

	verify := func(hash string, amount decimal.Decimal) error {
		_, err := v.Verify(context.Background(), hash, amount)
		return err
	}

	assert.ErrorIs(t, verify("failed", price), ErrMismatch)
	assert.ErrorIs(t, verify("wrongto", price), ErrMismatch)
	assert.ErrorIs(t, verify("good", decimal.RequireFromString("3")), ErrMismatch)
	assert.ErrorIs(t, verify("plain", price), ErrNotFound)
	assert.ErrorIs(t, verify("pending", price), ErrNotFound)
	assert.ErrorIs(t, verify("missing", price), ErrNotFound)
	assert.ErrorIs(t, verify("noid", price), ErrUpstream)

	// every hash of one trace resolves to the same event
	id, err := v.Verify(context.Background(), "good", price)
	require.NoError(t, err)
	assert.Equal(t, "e1", id)

	id, err = v.Verify(context.Background(), "inner", price)
	require.NoError(t, err)
	assert.Equal(t, "e1", id)
}

func TestClientTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	v := NewTronscanVerifier(NewClient(srv.URL, "", 0, 50*time.Millisecond), Expectation{Asset: "USDT", Wallet: tronWallet, Decimals: 6})
	_, err := v.Verify(context.Background(), "slow", decimal.NewFromInt(1))
	assert.ErrorIs(t, err, ErrUpstream)
}
