package stub

import (
	"context"

	"github.com/0xabstracted/token-basics/internal/solana"
)

type watcher struct {
	signature  string
	commitment solana.Commitment
	ch         chan solana.SignatureNotification
}

// SubscribeSignature notifies once the signature lands at commitment.
// The channel is closed after delivery or when ctx is done.
func (l *Ledger) SubscribeSignature(ctx context.Context, signature string, commitment solana.Commitment) (<-chan solana.SignatureNotification, error) {
	if commitment == "" {
		commitment = solana.CommitmentFinalized
	}
	w := &watcher{
		signature:  signature,
		commitment: commitment,
		ch:         make(chan solana.SignatureNotification, 1),
	}

	l.mu.Lock()
	l.watchers[signature] = append(l.watchers[signature], w)
	l.notifyWatchers()
	l.mu.Unlock()

	go func() {
		<-ctx.Done()
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.removeWatcher(w) {
			close(w.ch)
		}
	}()

	return w.ch, nil
}

// Close is a no-op; the ledger has no connection to release.
func (l *Ledger) Close() error {
	return nil
}

// notifyWatchers delivers to every watcher whose signature reached its
// commitment. Caller holds l.mu.
func (l *Ledger) notifyWatchers() {
	for sig, ws := range l.watchers {
		rec, ok := l.txs[sig]
		if !ok {
			continue
		}
		reached := l.commitment(rec)
		kept := ws[:0]
		for _, w := range ws {
			if !reached.Reached(w.commitment) {
				kept = append(kept, w)
				continue
			}
			w.ch <- solana.SignatureNotification{Signature: sig, Slot: rec.slot, Err: rec.err}
			close(w.ch)
		}
		if len(kept) == 0 {
			delete(l.watchers, sig)
		} else {
			l.watchers[sig] = kept
		}
	}
}

// removeWatcher reports whether w was still pending. Caller holds l.mu.
func (l *Ledger) removeWatcher(w *watcher) bool {
	ws := l.watchers[w.signature]
	for i, cur := range ws {
		if cur == w {
			l.watchers[w.signature] = append(ws[:i], ws[i+1:]...)
			if len(l.watchers[w.signature]) == 0 {
				delete(l.watchers, w.signature)
			}
			return true
		}
	}
	return false
}
