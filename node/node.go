// Package node wires the store, transport, dispatcher, reliability
// watcher, broadcaster and outbound actions into the single running
// process a shell drives. Grounded on
// _examples/zeromq-gyre/pkg/zre/node.go's NewNode/handle orchestration
// (one struct owning the socket, a receive loop, and a ticker-driven
// background task) and its root gyre.go's thin public-wrapper shape.
package node

import (
	"context"
	"net"
	"sync"

	"github.com/vanasher/lsnp-go/actions"
	"github.com/vanasher/lsnp-go/broadcast"
	"github.com/vanasher/lsnp-go/config"
	"github.com/vanasher/lsnp-go/dispatch"
	"github.com/vanasher/lsnp-go/logging"
	"github.com/vanasher/lsnp-go/netutil"
	"github.com/vanasher/lsnp-go/reliability"
	"github.com/vanasher/lsnp-go/store"
	"github.com/vanasher/lsnp-go/transport"
)

// Node is one running LSNP peer process: a bound socket, the store it
// protects, and the background tasks (receive loop, broadcaster, ACK
// watcher) that keep the store current.
type Node struct {
	Store   *store.Store
	Actions *actions.Actions
	Logger  *logging.Logger

	socket      *transport.Socket
	broadcastIP net.IP
	announcer   *broadcast.Broadcaster
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// New binds the UDP socket and wires every component together, but does
// not yet start the background tasks — call Run for that.
func New(cfg config.Config, logger *logging.Logger) (*Node, error) {
	socket, err := transport.Bind(cfg.Port)
	if err != nil {
		return nil, err
	}

	broadcastIP := net.ParseIP(cfg.BroadcastAddr)
	if broadcastIP == nil {
		if resolved, err := netutil.BroadcastAddr(); err == nil {
			broadcastIP = resolved
		} else {
			broadcastIP = net.IPv4bcast
		}
	}

	st := store.New()
	act := actions.New(st, socket, logger, cfg.TTL, broadcastIP)
	announcer := broadcast.New(st, socket, logger, cfg.BroadcastPeriod, broadcastIP)

	return &Node{
		Store:       st,
		Actions:     act,
		Logger:      logger,
		socket:      socket,
		broadcastIP: broadcastIP,
		announcer:   announcer,
	}, nil
}

// AnnounceNow sends an immediate PROFILE broadcast using the same
// broadcast address Run's periodic announcer uses. Call this right after
// OwnProfile is first set (spec.md §4.4), before Run's ticker-gated loop
// takes over.
func (n *Node) AnnounceNow() {
	n.announcer.AnnounceNow()
}

// Run starts the receive loop, the ACK watcher, and the broadcaster as
// background goroutines. It returns immediately; call Shutdown to stop
// them and release the socket.
func (n *Node) Run(cfg config.Config) {
	ctx, cancel := context.WithCancel(context.Background())
	n.cancel = cancel

	d := dispatch.New(n.Store, n.socket, n.Logger)
	watcher := reliability.New(n.Store, n.socket, n.Logger, cfg.AckWatcherTick, cfg.DMAckTimeout, cfg.DMMaxAttempts)

	n.wg.Add(3)
	go func() {
		defer n.wg.Done()
		n.socket.Listen(ctx, d.Handle, func(err error) { n.Logger.LogError("RECV", err) })
	}()
	go func() {
		defer n.wg.Done()
		watcher.Run(ctx)
	}()
	go func() {
		defer n.wg.Done()
		n.announcer.Run(ctx)
	}()
}

// Shutdown revokes every token this process issued, stops the background
// tasks, and closes the socket (spec.md §4.10/§5).
func (n *Node) Shutdown() error {
	n.Actions.Shutdown()
	if n.cancel != nil {
		n.cancel()
	}
	n.wg.Wait()
	return n.socket.Close()
}

// Port returns the bound UDP port, for display/logging.
func (n *Node) Port() int {
	return n.socket.Port()
}

// LocalAddr returns this host's primary IPv4 address, for constructing
// the local UserId, or ok=false if discovery failed.
func (n *Node) LocalAddr() (string, bool) {
	ip, err := netutil.LocalIPv4()
	if err != nil {
		return "", false
	}
	return ip.String(), true
}
