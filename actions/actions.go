// Package actions implements the outbound primitives of C10: the shell
// (external) calls these to craft a frame, validate its own token,
// transmit, and record the local side effect. Grounded on
// original_source/core/peer.py's craft-then-record-then-return-frame
// methods (create_group/update_group/send_group_message/add_like) and
// original_source/cli/lsnp_craft.py's craft-validate-send shape, adapted
// to _examples/zeromq-gyre's public Whisper/Shout/Join/Leave method
// pattern on Node (fire via a helper rather than return-for-caller).
package actions

import (
	"net"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/vanasher/lsnp-go/identity"
	"github.com/vanasher/lsnp-go/logging"
	"github.com/vanasher/lsnp-go/store"
	"github.com/vanasher/lsnp-go/token"
	"github.com/vanasher/lsnp-go/wire"
)

// Sender is the subset of transport.Socket outbound actions need.
type Sender interface {
	SendTo(raw []byte, ip net.IP) error
	Broadcast(raw []byte, broadcastIP net.IP) error
}

// Actions wires the store, socket, and minting TTL together for every
// outbound primitive in spec.md §4.10.
type Actions struct {
	store       *store.Store
	sender      Sender
	logger      *logging.Logger
	ttl         time.Duration
	broadcastIP net.IP
}

// New returns an Actions bound to st, sender, and the token TTL/broadcast
// address configured for this process.
func New(st *store.Store, sender Sender, logger *logging.Logger, ttl time.Duration, broadcastIP net.IP) *Actions {
	return &Actions{store: st, sender: sender, logger: logger, ttl: ttl, broadcastIP: broadcastIP}
}

func (a *Actions) mint(scope token.Scope) (string, error) {
	own := a.store.OwnProfile()
	if own == nil {
		return "", errors.New("actions: profile must be set before sending")
	}
	tok := token.New(own.UserID, a.ttl, scope)
	a.store.IssueToken(tok)
	return tok, nil
}

func now() string {
	return strconv.FormatInt(time.Now().Unix(), 10)
}

// Post broadcasts content to our followers (spec.md §4.10). Each
// follower gets its own unicast datagram per C3 (no batching).
func (a *Actions) Post(content string, ttlSeconds int) error {
	own := a.store.OwnProfile()
	if own == nil {
		return errors.New("actions: profile must be set before posting")
	}
	tok, err := a.mint(token.ScopeBroadcast)
	if err != nil {
		return err
	}
	messageID := identity.NewMessageID()
	ts := now()

	f := wire.New("POST").
		Set("USER_ID", own.UserID).
		Set("CONTENT", content).
		Set("TTL", strconv.Itoa(ttlSeconds)).
		Set("MESSAGE_ID", messageID).
		Set("TOKEN", tok).
		Set("TIMESTAMP", ts)
	raw := []byte(wire.Craft(f))

	for _, ip := range a.store.GetFollowerIPs() {
		if parsed := net.ParseIP(ip); parsed != nil {
			if err := a.sender.SendTo(raw, parsed); err != nil {
				a.logger.LogError("POST", err)
				continue
			}
			a.logger.LogSend("POST", ip)
		}
	}

	a.store.AddOwnPost(store.Post{Content: content, Timestamp: ts, TTL: ttlSeconds, MessageID: messageID, Token: tok})
	return nil
}

// DM sends a reliable direct message to toUserID, registering it with the
// reliability layer for retransmit-until-ack (spec.md §4.6).
func (a *Actions) DM(toUserID, toIP, content string) error {
	own := a.store.OwnProfile()
	if own == nil {
		return errors.New("actions: profile must be set before messaging")
	}
	tok, err := a.mint(token.ScopeChat)
	if err != nil {
		return err
	}
	messageID := identity.NewMessageID()
	ts := now()

	f := wire.New("DM").
		Set("FROM", own.UserID).
		Set("TO", toUserID).
		Set("CONTENT", content).
		Set("TIMESTAMP", ts).
		Set("MESSAGE_ID", messageID).
		Set("TOKEN", tok)
	raw := []byte(wire.Craft(f))

	ip := net.ParseIP(toIP)
	if ip == nil {
		return errors.Errorf("actions: invalid IP %q", toIP)
	}
	if err := a.sender.SendTo(raw, ip); err != nil {
		a.logger.LogError("DM", err)
		return err
	}
	a.logger.LogSend("DM", toIP)

	a.store.PutPendingAck(messageID, &store.PendingAck{
		Raw:         raw,
		PeerIP:      toIP,
		FirstSentAt: time.Now(),
		LastSentAt:  time.Now(),
		Attempts:    1,
	})
	return nil
}

// Follow sends FOLLOW to toUserID/toIP and records it in our following set.
func (a *Actions) Follow(toUserID, toIP string) error {
	return a.sendFollowFrame("FOLLOW", toUserID, toIP, func() { a.store.Follow(toUserID) })
}

// Unfollow sends UNFOLLOW to toUserID/toIP and removes it from our
// following set.
func (a *Actions) Unfollow(toUserID, toIP string) error {
	return a.sendFollowFrame("UNFOLLOW", toUserID, toIP, func() { a.store.Unfollow(toUserID) })
}

func (a *Actions) sendFollowFrame(msgType, toUserID, toIP string, record func()) error {
	own := a.store.OwnProfile()
	if own == nil {
		return errors.New("actions: profile must be set before following")
	}
	tok, err := a.mint(token.ScopeFollow)
	if err != nil {
		return err
	}

	f := wire.New(msgType).
		Set("FROM", own.UserID).
		Set("TO", toUserID).
		Set("MESSAGE_ID", identity.NewMessageID()).
		Set("TIMESTAMP", now()).
		Set("TOKEN", tok)

	ip := net.ParseIP(toIP)
	if ip == nil {
		return errors.Errorf("actions: invalid IP %q", toIP)
	}
	if err := a.sender.SendTo([]byte(wire.Craft(f)), ip); err != nil {
		a.logger.LogError(msgType, err)
		return err
	}
	a.logger.LogSend(msgType, toIP)
	record()
	return nil
}

// Like sends a LIKE/UNLIKE for a post authored by toUserID (SPEC_FULL.md
// §6/§7). action is "LIKE" or "UNLIKE".
func (a *Actions) Like(toUserID, toIP, postTimestamp, action string) error {
	own := a.store.OwnProfile()
	if own == nil {
		return errors.New("actions: profile must be set before liking")
	}
	tok, err := a.mint(token.ScopeBroadcast)
	if err != nil {
		return err
	}

	f := wire.New("LIKE").
		Set("FROM", own.UserID).
		Set("TO", toUserID).
		Set("POST_TIMESTAMP", postTimestamp).
		Set("ACTION", action).
		Set("TIMESTAMP", now()).
		Set("MESSAGE_ID", identity.NewMessageID()).
		Set("TOKEN", tok)

	ip := net.ParseIP(toIP)
	if ip == nil {
		return errors.Errorf("actions: invalid IP %q", toIP)
	}
	if err := a.sender.SendTo([]byte(wire.Craft(f)), ip); err != nil {
		a.logger.LogError("LIKE", err)
		return err
	}
	a.logger.LogSend("LIKE", toIP)
	return nil
}

// InviteGame starts a tic-tac-toe game as initiator and sends the invite.
func (a *Actions) InviteGame(gameID, opponentUserID, opponentIP string) error {
	own := a.store.OwnProfile()
	if own == nil {
		return errors.New("actions: profile must be set before inviting")
	}
	tok, err := a.mint(token.ScopeGame)
	if err != nil {
		return err
	}

	a.store.CreateGame(gameID, opponentUserID, true, tok)

	f := wire.New("TICTACTOE_INVITE").
		Set("FROM", own.UserID).
		Set("RECIPIENT", opponentUserID).
		Set("MESSAGE_ID", identity.NewMessageID()).
		Set("GAMEID", gameID).
		Set("SYMBOL", "X").
		Set("TIMESTAMP", now()).
		Set("TOKEN", tok)

	ip := net.ParseIP(opponentIP)
	if ip == nil {
		return errors.Errorf("actions: invalid IP %q", opponentIP)
	}
	if err := a.sender.SendTo([]byte(wire.Craft(f)), ip); err != nil {
		a.logger.LogError("TICTACTOE_INVITE", err)
		return err
	}
	a.logger.LogSend("TICTACTOE_INVITE", opponentIP)
	return nil
}

// Move plays position locally and sends the MOVE to the opponent. It
// refuses with an error when it is not our turn (§4.8: only the peer
// whose MyTurn is true may transmit) or when the position is illegal.
func (a *Actions) Move(gameID, opponentIP string, position int) error {
	own := a.store.OwnProfile()
	if own == nil {
		return errors.New("actions: profile must be set before playing")
	}
	g := a.store.Game(gameID)
	if g == nil {
		return errors.Errorf("actions: unknown game %q", gameID)
	}
	if !g.MyTurn {
		return errors.New("actions: not your turn")
	}

	tok, err := a.mint(token.ScopeGame)
	if err != nil {
		return err
	}
	turn := g.TurnCounter

	if !a.store.ApplyMove(gameID, position, g.MySymbol, true) {
		return errors.Errorf("actions: illegal move at position %d", position)
	}

	f := wire.New("TICTACTOE_MOVE").
		Set("FROM", own.UserID).
		Set("RECIPIENT", g.OpponentUserID).
		Set("GAMEID", gameID).
		Set("MESSAGE_ID", identity.NewMessageID()).
		Set("TURN", strconv.Itoa(turn)).
		Set("POSITION", strconv.Itoa(position)).
		Set("SYMBOL", g.MySymbol).
		Set("TOKEN", tok)

	ip := net.ParseIP(opponentIP)
	if ip == nil {
		return errors.Errorf("actions: invalid IP %q", opponentIP)
	}
	if err := a.sender.SendTo([]byte(wire.Craft(f)), ip); err != nil {
		a.logger.LogError("TICTACTOE_MOVE", err)
		return err
	}
	a.logger.LogSend("TICTACTOE_MOVE", opponentIP)

	if result, line, symbol := a.store.CheckResult(gameID); result != "" {
		a.sendResult(gameID, g.OpponentUserID, opponentIP, result, line, symbol)
	}
	return nil
}

func (a *Actions) sendResult(gameID, opponentUserID, opponentIP, result string, line [3]int, symbol string) {
	own := a.store.OwnProfile()
	f := wire.New("TICTACTOE_RESULT").
		Set("FROM", own.UserID).
		Set("TO", opponentUserID).
		Set("GAMEID", gameID).
		Set("MESSAGE_ID", identity.NewMessageID()).
		Set("RESULT", result).
		Set("TIMESTAMP", now())
	if result == "WIN" {
		f.Set("SYMBOL", symbol)
		f.Set("WINNING_LINE", strconv.Itoa(line[0])+","+strconv.Itoa(line[1])+","+strconv.Itoa(line[2]))
	}

	ip := net.ParseIP(opponentIP)
	if ip == nil {
		return
	}
	if err := a.sender.SendTo([]byte(wire.Craft(f)), ip); err != nil {
		a.logger.LogError("TICTACTOE_RESULT", err)
		return
	}
	a.logger.LogSend("TICTACTOE_RESULT", opponentIP)
	a.store.RemoveGame(gameID)
}

// CreateGroup creates a group we own and fans GROUP_CREATE out to every
// listed member (spec.md §4.10/§4.5).
func (a *Actions) CreateGroup(groupID, groupName string, memberIPs map[string]string) error {
	own := a.store.OwnProfile()
	if own == nil {
		return errors.New("actions: profile must be set before creating a group")
	}
	members := make([]string, 0, len(memberIPs)+1)
	members = append(members, own.UserID)
	for userID := range memberIPs {
		members = append(members, userID)
	}

	tok, err := a.mint(token.ScopeGroup)
	if err != nil {
		return err
	}
	ts := now()
	a.store.CreateGroup(groupID, groupName, members, ts)

	f := wire.New("GROUP_CREATE").
		Set("FROM", own.UserID).
		Set("GROUP_ID", groupID).
		Set("GROUP_NAME", groupName).
		Set("MEMBERS", joinCSV(members)).
		Set("TIMESTAMP", ts).
		Set("TOKEN", tok)
	raw := []byte(wire.Craft(f))

	for userID, ip := range memberIPs {
		parsed := net.ParseIP(ip)
		if parsed == nil {
			continue
		}
		if err := a.sender.SendTo(raw, parsed); err != nil {
			a.logger.LogError("GROUP_CREATE", err)
			continue
		}
		a.logger.LogSend("GROUP_CREATE", userID)
	}
	return nil
}

// UpdateGroup adds/removes members of a group we created and fans
// GROUP_UPDATE out to the (pre-update) recipient list supplied by the
// caller (spec.md §4.9: the sender excludes evicted members going
// forward, but this update itself still reaches everyone addressed).
func (a *Actions) UpdateGroup(groupID string, add, remove []string, recipientIPs map[string]string) error {
	own := a.store.OwnProfile()
	if own == nil {
		return errors.New("actions: profile must be set before updating a group")
	}
	tok, err := a.mint(token.ScopeGroup)
	if err != nil {
		return err
	}
	ts := now()
	if _, ok := a.store.UpdateGroup(groupID, add, remove, ts); !ok {
		return errors.Errorf("actions: unknown group %q", groupID)
	}

	f := wire.New("GROUP_UPDATE").
		Set("FROM", own.UserID).
		Set("GROUP_ID", groupID).
		Set("TIMESTAMP", ts).
		Set("TOKEN", tok)
	if len(add) > 0 {
		f.Set("ADD", joinCSV(add))
	}
	if len(remove) > 0 {
		f.Set("REMOVE", joinCSV(remove))
	}
	raw := []byte(wire.Craft(f))

	for userID, ip := range recipientIPs {
		parsed := net.ParseIP(ip)
		if parsed == nil {
			continue
		}
		if err := a.sender.SendTo(raw, parsed); err != nil {
			a.logger.LogError("GROUP_UPDATE", err)
			continue
		}
		a.logger.LogSend("GROUP_UPDATE", userID)
	}
	return nil
}

// SendGroupMessage appends content to our local copy of groupID and fans
// GROUP_MESSAGE out to its current members: entries of memberIPs whose
// UserId is no longer a member are skipped.
func (a *Actions) SendGroupMessage(groupID, content string, memberIPs map[string]string) error {
	own := a.store.OwnProfile()
	if own == nil {
		return errors.New("actions: profile must be set before messaging a group")
	}
	tok, err := a.mint(token.ScopeGroup)
	if err != nil {
		return err
	}
	ts := now()
	if _, ok := a.store.SendGroupMessage(groupID, content, ts); !ok {
		return errors.Errorf("actions: unknown group %q", groupID)
	}
	current := a.store.Group(groupID)

	f := wire.New("GROUP_MESSAGE").
		Set("FROM", own.UserID).
		Set("GROUP_ID", groupID).
		Set("CONTENT", content).
		Set("TIMESTAMP", ts).
		Set("TOKEN", tok)
	raw := []byte(wire.Craft(f))

	for userID, ip := range memberIPs {
		if _, member := current.Members[userID]; !member {
			continue
		}
		parsed := net.ParseIP(ip)
		if parsed == nil {
			continue
		}
		if err := a.sender.SendTo(raw, parsed); err != nil {
			a.logger.LogError("GROUP_MESSAGE", err)
			continue
		}
		a.logger.LogSend("GROUP_MESSAGE", userID)
	}
	return nil
}

// Shutdown broadcasts REVOKE for every token this process has minted
// (spec.md §4.10, best-effort, not retried).
func (a *Actions) Shutdown() {
	for _, tok := range a.store.IssuedTokens() {
		f := wire.New("REVOKE").Set("TOKEN", tok)
		if err := a.sender.Broadcast([]byte(wire.Craft(f)), a.broadcastIP); err != nil {
			a.logger.LogError("REVOKE", err)
			continue
		}
		a.logger.LogSend("REVOKE", a.broadcastIP.String())
	}
}

func joinCSV(items []string) string {
	out := ""
	for i, s := range items {
		if i > 0 {
			out += ","
		}
		out += s
	}
	return out
}
