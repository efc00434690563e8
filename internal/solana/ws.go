package solana

import (
	"context"
	"encoding/json"
)

// WSClient defines the Solana WebSocket subscription surface.
type WSClient interface {
	// SubscribeSignature waits for a signature to reach commitment.
	// The returned channel yields at most one notification and is then closed.
	// A channel closed without a value means the subscription was lost
	// (ctx cancelled, client closed, or resubscribe failed) and the caller
	// should fall back to polling.
	SubscribeSignature(ctx context.Context, signature string, commitment Commitment) (<-chan SignatureNotification, error)

	// Close closes the WebSocket connection.
	Close() error
}

// SignatureNotification represents a signatureNotification message.
type SignatureNotification struct {
	Signature string
	Slot      uint64
	Err       json.RawMessage // null on success
}

// Failed reports whether the transaction executed with an error.
func (n SignatureNotification) Failed() bool {
	return len(n.Err) > 0 && string(n.Err) != "null"
}
