package domain

import "time"

// Payload field names read from an event's action data.
const (
	PayloadAmount        = "amount"
	PayloadAssetPriceUSD = "assetPriceUSD"
	PayloadAssetSymbol   = "assetSymbol"
)

// UnknownAsset is the asset symbol used when the payload carries none.
const UnknownAsset = "unknown"

// RawEvent is one record of the lending event log, as read.
type RawEvent struct {
	Wallet    string         // userWallet
	Action    ActionKind     // parsed action kind
	RawAction string         // action string as it appeared in the log
	Timestamp int64          // Unix timestamp in seconds
	Payload   map[string]any // actionData; nil means no payload
	TxHash    string         // optional, informational only
}

// NormalizedEvent is a RawEvent with typed payload fields.
type NormalizedEvent struct {
	Index         int // position in the input log
	Wallet        string
	Action        ActionKind
	Timestamp     time.Time // UTC
	Amount        float64   // 0 if absent
	AssetPriceUSD float64   // 1 if absent
	ValueUSD      float64   // Amount * AssetPriceUSD
	AssetSymbol   string    // UnknownAsset if absent
}
