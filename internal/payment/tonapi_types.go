package payment

// tonEvent represents a TonAPI event
type tonEvent struct {
	EventID    string      `json:"event_id"`
	Timestamp  int64       `json:"timestamp"`
	Actions    []tonAction `json:"actions"`
	InProgress bool        `json:"in_progress"`
}

// tonAction represents an action within an event
type tonAction struct {
	Type           string             `json:"type"`
	Status         string             `json:"status"`
	JettonTransfer *tonJettonTransfer `json:"JettonTransfer,omitempty"`
}

// tonJettonTransfer represents a jetton (token) transfer action
type tonJettonTransfer struct {
	Sender    *tonAccount   `json:"sender,omitempty"`
	Recipient *tonAccount   `json:"recipient,omitempty"`
	Amount    string        `json:"amount"` // in jetton units
	Comment   string        `json:"comment,omitempty"`
	Jetton    tonJettonInfo `json:"jetton"`
}

// tonJettonInfo contains jetton metadata
type tonJettonInfo struct {
	Address  string `json:"address"`
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals int32  `json:"decimals"`
}

// tonAccount represents an account/wallet
type tonAccount struct {
	Address  string `json:"address"`
	Name     string `json:"name,omitempty"`
	IsWallet bool   `json:"is_wallet,omitempty"`
}
