// Package reliability implements the DM retransmit-until-ack layer
// (spec.md §4.6, C6): the only reliable message type. Grounded on
// original_source/core/peer.py: start_ack_watcher for the exact
// timeout/attempt numbers, and on _examples/zeromq-gyre/pkg/zre/node.go's
// ticker-driven pingPeer loop for the Go goroutine shape.
package reliability

import (
	"context"
	"net"
	"time"

	"github.com/vanasher/lsnp-go/logging"
	"github.com/vanasher/lsnp-go/store"
)

// Sender transmits raw bytes to a peer IP. transport.Socket satisfies
// this directly.
type Sender interface {
	SendTo(raw []byte, ip net.IP) error
}

// Watcher retransmits pending DMs until acked, bounded by maxAttempts.
type Watcher struct {
	store       *store.Store
	sender      Sender
	logger      *logging.Logger
	tick        time.Duration
	ackTimeout  time.Duration
	maxAttempts int
}

// New returns a Watcher using the given config.
func New(st *store.Store, sender Sender, logger *logging.Logger, tick, ackTimeout time.Duration, maxAttempts int) *Watcher {
	return &Watcher{
		store:       st,
		sender:      sender,
		logger:      logger,
		tick:        tick,
		ackTimeout:  ackTimeout,
		maxAttempts: maxAttempts,
	}
}

// Run ticks every w.tick until ctx is cancelled, per spec.md §4.6: for
// each pending entry whose last send is older than ackTimeout, resend if
// attempts remain, else drop. The store lock is never held across the
// network send (spec.md §5(c)): SnapshotPendingAcks copies the map, then
// the send and the store update happen outside any store-held lock.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep()
		}
	}
}

func (w *Watcher) sweep() {
	now := time.Now()
	for messageID, entry := range w.store.SnapshotPendingAcks() {
		if now.Sub(entry.LastSentAt) <= w.ackTimeout {
			continue
		}

		if entry.Attempts >= w.maxAttempts {
			w.store.UpdatePendingAck(messageID, now, entry.Attempts, true)
			w.logger.LogDrop("DM", entry.PeerIP, "gave up after max attempts")
			continue
		}

		ip := net.ParseIP(entry.PeerIP)
		if ip == nil {
			w.store.UpdatePendingAck(messageID, now, entry.Attempts, true)
			continue
		}
		if err := w.sender.SendTo(entry.Raw, ip); err != nil {
			w.logger.LogError("RETRY", err)
			continue
		}
		attempts := entry.Attempts + 1
		w.store.UpdatePendingAck(messageID, now, attempts, false)
		w.logger.LogRetry(messageID, attempts)
	}
}
