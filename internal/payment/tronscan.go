package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"
)

// tronscanTransaction is the subset of /api/transaction-info used here
type tronscanTransaction struct {
	Hash              string                 `json:"hash"`
	ContractRet       string                 `json:"contractRet"`
	Confirmed         bool                   `json:"confirmed"`
	TokenTransferInfo *tronscanTokenTransfer `json:"tokenTransferInfo"`
}

type tronscanTokenTransfer struct {
	Symbol      string `json:"symbol"`
	FromAddress string `json:"from_address"`
	ToAddress   string `json:"to_address"`
	AmountStr   string `json:"amount_str"`
	Decimals    int32  `json:"decimals"`
}

// TronscanVerifier checks TRC-20 transfers through the Tronscan API
type TronscanVerifier struct {
	client *Client
	expect Expectation
}

// NewTronscanVerifier creates a verifier for TRC-20 payments
func NewTronscanVerifier(client *Client, expect Expectation) *TronscanVerifier {
	return &TronscanVerifier{client: client, expect: expect}
}

func (v *TronscanVerifier) Verify(ctx context.Context, txHash string, amount decimal.Decimal) (string, error) {
	data, err := v.client.get(ctx, "/api/transaction-info?hash="+url.QueryEscape(txHash))
	if err != nil {
		var se *statusError
		if errors.As(err, &se) && se.code == http.StatusNotFound {
			return "", verificationError(txHash, ErrNotFound, "status %d", se.code)
		}
		return "", verificationError(txHash, ErrUpstream, "%v", err)
	}

	var tx tronscanTransaction
	if err := json.Unmarshal(data, &tx); err != nil {
		return "", verificationError(txHash, ErrUpstream, "unmarshal: %v", err)
	}

	info := tx.TokenTransferInfo
	if info == nil {
		return "", verificationError(txHash, ErrNotFound, "no token transfer")
	}

	if !tx.Confirmed {
		return "", verificationError(txHash, ErrNotFound, "not confirmed yet")
	}
	if tx.ContractRet != "" && tx.ContractRet != "SUCCESS" {
		return "", verificationError(txHash, ErrMismatch, "contract result %s", tx.ContractRet)
	}
	if !SameAsset(info.Symbol, v.expect.Asset) {
		return "", verificationError(txHash, ErrMismatch, "asset %s", info.Symbol)
	}
	if info.ToAddress != v.expect.Wallet {
		return "", verificationError(txHash, ErrMismatch, "recipient %s", info.ToAddress)
	}

	got, err := decimal.NewFromString(info.AmountStr)
	if err != nil {
		return "", verificationError(txHash, ErrMismatch, "amount %q", info.AmountStr)
	}
	if want := ToUnits(amount, v.expect.Decimals); !got.Equal(want) {
		return "", verificationError(txHash, ErrMismatch, "amount %s, want %s", got, want)
	}

	return txHash, nil
}
