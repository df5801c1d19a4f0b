// Package broadcast implements the periodic presence announcer (C7):
// while OwnProfile is set, emit a PROFILE or PING frame to the subnet
// broadcast address on a fixed period. Grounded on
// original_source/core/broadcaster.py (interval loop, skip-if-no-profile)
// and _examples/zeromq-gyre/beacon/beacon.go: signal() for the
// ticker-driven periodic-send Go shape.
package broadcast

import (
	"context"
	"net"
	"time"

	"github.com/vanasher/lsnp-go/logging"
	"github.com/vanasher/lsnp-go/store"
	"github.com/vanasher/lsnp-go/wire"
)

// Sender transmits a frame to the broadcast address.
type Sender interface {
	Broadcast(raw []byte, broadcastIP net.IP) error
}

// Broadcaster periodically announces OwnProfile, alternating PROFILE and
// PING frames (spec.md §4.7: "either... is acceptable").
type Broadcaster struct {
	store       *store.Store
	sender      Sender
	logger      *logging.Logger
	period      time.Duration
	broadcastIP net.IP
	tick        int
}

// New returns a Broadcaster announcing to broadcastIP every period.
func New(st *store.Store, sender Sender, logger *logging.Logger, period time.Duration, broadcastIP net.IP) *Broadcaster {
	return &Broadcaster{store: st, sender: sender, logger: logger, period: period, broadcastIP: broadcastIP}
}

// BroadcastIP returns the address this Broadcaster announces to.
func (b *Broadcaster) BroadcastIP() net.IP {
	return b.broadcastIP
}

// Run ticks every b.period until ctx is cancelled. It never blocks the
// dispatcher: the send is fire-and-forget over UDP, and a failure is
// only logged.
func (b *Broadcaster) Run(ctx context.Context) {
	ticker := time.NewTicker(b.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.announce()
		}
	}
}

func (b *Broadcaster) announce() {
	profile := b.store.OwnProfile()
	if profile == nil {
		return
	}

	b.tick++
	var f *wire.Frame
	if b.tick%2 == 0 {
		f = wire.New("PING").Set("USER_ID", profile.UserID)
	} else {
		f = profileFrame(profile)
	}
	b.send(f)
}

// AnnounceNow sends an immediate PROFILE broadcast, bypassing the
// PING/PROFILE alternation Run uses on its ticker. spec.md §4.4 requires
// the first OwnProfile set to emit a PROFILE broadcast right away, rather
// than waiting for Run's first periodic tick; callers invoke this once,
// right after OwnProfile is first set. No-op if OwnProfile is unset.
func (b *Broadcaster) AnnounceNow() {
	profile := b.store.OwnProfile()
	if profile == nil {
		return
	}
	b.send(profileFrame(profile))
}

func profileFrame(profile *store.Profile) *wire.Frame {
	f := wire.New("PROFILE").
		Set("USER_ID", profile.UserID).
		Set("DISPLAY_NAME", profile.DisplayName).
		Set("STATUS", profile.Status)
	if profile.AvatarType != "" {
		f.Set("AVATAR_TYPE", profile.AvatarType).
			Set("AVATAR_ENCODING", profile.AvatarEnc).
			Set("AVATAR_DATA", profile.AvatarData)
	}
	return f
}

func (b *Broadcaster) send(f *wire.Frame) {
	if err := b.sender.Broadcast([]byte(wire.Craft(f)), b.broadcastIP); err != nil {
		b.logger.LogError("BROADCAST", err)
		return
	}
	b.logger.LogSend(f.Type(), b.broadcastIP.String())
}
