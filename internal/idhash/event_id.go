package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"wallet-credit-lab/internal/domain"
)

// ComputeEventID computes a deterministic event_id using SHA256.
// Formula: SHA256(position|wallet|raw_action|timestamp|tx_hash|payload_json)
// Payload keys are serialized in sorted order. Returns hex-encoded hash (64 characters).
func ComputeEventID(position int, ev domain.RawEvent) (string, error) {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	data := fmt.Sprintf("%d|%s|%s|%d|%s|%s",
		position,
		ev.Wallet,
		ev.RawAction,
		ev.Timestamp,
		ev.TxHash,
		payload,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:]), nil
}
