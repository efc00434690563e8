package submission

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/0xabstracted/token-basics/internal/solana"
)

// Default confirmation parameters.
const (
	DefaultCommitment   = solana.CommitmentFinalized
	DefaultPollInterval = 500 * time.Millisecond
)

// Confirmation is the landed result of a transaction.
type Confirmation struct {
	Slot uint64
	Err  json.RawMessage // null on success
}

// Failed reports whether the transaction executed with an error.
func (c *Confirmation) Failed() bool {
	return len(c.Err) > 0 && string(c.Err) != "null"
}

// Confirmer waits for a signature to reach a commitment level.
//
// Confirm returns the landed result, ErrBlockhashExpired when the ledger
// passed lastValidBlockHeight without the transaction, or ctx.Err().
type Confirmer interface {
	Confirm(ctx context.Context, signature string, lastValidBlockHeight uint64) (*Confirmation, error)
}

// PollingConfirmer polls getSignatureStatuses on a ticker.
type PollingConfirmer struct {
	rpc        solana.RPCClient
	commitment solana.Commitment
	interval   time.Duration
	logger     zerolog.Logger
}

// NewPollingConfirmer creates a polling confirmer. Zero values select defaults.
func NewPollingConfirmer(rpc solana.RPCClient, commitment solana.Commitment, interval time.Duration, logger zerolog.Logger) *PollingConfirmer {
	if commitment == "" {
		commitment = DefaultCommitment
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &PollingConfirmer{
		rpc:        rpc,
		commitment: commitment,
		interval:   interval,
		logger:     logger.With().Str("component", "confirmer").Logger(),
	}
}

// Compile-time interface check.
var _ Confirmer = (*PollingConfirmer)(nil)

// Confirm polls until the signature reaches the commitment, expires, or ctx is done.
func (c *PollingConfirmer) Confirm(ctx context.Context, signature string, lastValidBlockHeight uint64) (*Confirmation, error) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		conf, err := c.poll(ctx, signature, lastValidBlockHeight)
		if conf != nil || err != nil {
			return conf, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// poll checks the signature once. It returns (nil, nil) while the outcome
// is still open. RPC failures are logged and treated as open.
func (c *PollingConfirmer) poll(ctx context.Context, signature string, lastValidBlockHeight uint64) (*Confirmation, error) {
	status, err := c.status(ctx, signature)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.Warn().Err(err).Str("signature", signature).Msg("get signature status failed")
		return nil, nil
	}
	if status != nil {
		if status.ConfirmationStatus.Reached(c.commitment) {
			return &Confirmation{Slot: status.Slot, Err: status.Err}, nil
		}
		return nil, nil
	}

	height, err := c.rpc.GetBlockHeight(ctx, solana.CommitmentFinalized)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.Warn().Err(err).Msg("get block height failed")
		return nil, nil
	}
	if height <= lastValidBlockHeight {
		return nil, nil
	}

	// The transaction may have landed between the two queries.
	status, err = c.status(ctx, signature)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, nil
	}
	if status == nil {
		return nil, ErrBlockhashExpired
	}
	return nil, nil
}

func (c *PollingConfirmer) status(ctx context.Context, signature string) (*solana.SignatureStatus, error) {
	statuses, err := c.rpc.GetSignatureStatuses(ctx, []string{signature})
	if err != nil {
		return nil, err
	}
	if len(statuses) == 0 {
		return nil, nil
	}
	return statuses[0], nil
}

// WSConfirmer waits on signatureSubscribe and polls at a slower cadence for
// expiry and missed notifications. A lost or failed subscription falls back
// to polling.
type WSConfirmer struct {
	ws     solana.WSClient
	poller *PollingConfirmer
	logger zerolog.Logger
}

// NewWSConfirmer creates a websocket confirmer backed by poller.
func NewWSConfirmer(ws solana.WSClient, poller *PollingConfirmer, logger zerolog.Logger) *WSConfirmer {
	return &WSConfirmer{
		ws:     ws,
		poller: poller,
		logger: logger.With().Str("component", "ws_confirmer").Logger(),
	}
}

// Compile-time interface check.
var _ Confirmer = (*WSConfirmer)(nil)

// Confirm waits for the signature notification.
func (c *WSConfirmer) Confirm(ctx context.Context, signature string, lastValidBlockHeight uint64) (*Confirmation, error) {
	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	ch, err := c.ws.SubscribeSignature(subCtx, signature, c.poller.commitment)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.Warn().Err(err).Str("signature", signature).Msg("signature subscribe failed, polling")
		return c.poller.Confirm(ctx, signature, lastValidBlockHeight)
	}

	// Catches transactions that landed before the subscription.
	if conf, err := c.poller.poll(ctx, signature, lastValidBlockHeight); conf != nil || err != nil {
		return conf, err
	}

	// Expiry takes ~150 blocks; a slow check is enough.
	ticker := time.NewTicker(4 * c.poller.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case n, ok := <-ch:
			if ok {
				return &Confirmation{Slot: n.Slot, Err: n.Err}, nil
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.logger.Warn().Str("signature", signature).Msg("signature subscription lost, polling")
			return c.poller.Confirm(ctx, signature, lastValidBlockHeight)
		case <-ticker.C:
			if conf, err := c.poller.poll(ctx, signature, lastValidBlockHeight); conf != nil || err != nil {
				return conf, err
			}
		}
	}
}
