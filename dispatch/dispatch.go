// Package dispatch implements the per-TYPE message state machine (C5):
// the dispatcher selects on TYPE, checks mandatory keys, validates tokens,
// and routes to the store/game/group mutators. Grounded on
// original_source/core/message_dispatcher.py for the exact per-type
// validation order (mandatory fields; then, for POST, DM and LIKE, the
// follow/addressee filter; then token; then game/group state checks) and
// on _examples/zeromq-gyre/pkg/zre/node.go: recvFromPeer for the
// switch-on-message-type Go control flow.
package dispatch

import (
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/vanasher/lsnp-go/identity"
	"github.com/vanasher/lsnp-go/logging"
	"github.com/vanasher/lsnp-go/store"
	"github.com/vanasher/lsnp-go/token"
	"github.com/vanasher/lsnp-go/wire"
)

// Sender is the subset of transport.Socket the dispatcher needs to reply
// (ACK, tic-tac-toe RESULT) to the originating peer.
type Sender interface {
	SendTo(raw []byte, ip net.IP) error
}

// Dispatcher routes inbound frames to the store. One Dispatcher per
// process; safe for the single receive loop to call Handle repeatedly.
type Dispatcher struct {
	store  *store.Store
	sender Sender
	logger *logging.Logger
}

// New returns a Dispatcher wired to st for state and sender for replies.
func New(st *store.Store, sender Sender, logger *logging.Logger) *Dispatcher {
	return &Dispatcher{store: st, sender: sender, logger: logger}
}

// Handle processes one inbound datagram: parse, then route by TYPE. addr
// is the sender's IP, used only to reply (ACK, RESULT); it is never
// trusted over the USER_ID/FROM fields inside the frame itself.
func (d *Dispatcher) Handle(raw []byte, addr net.IP) {
	f := wire.Parse(string(raw))
	msgType := f.Type()
	if msgType == "" {
		d.logger.LogDrop("UNKNOWN", addr.String(), "missing TYPE")
		return
	}

	switch msgType {
	case "PROFILE":
		d.handleProfile(f, addr)
	case "PING":
		d.logger.LogRecv("PING", addr.String())
	case "POST":
		d.handlePost(f, addr)
	case "DM":
		d.handleDM(f, addr)
	case "ACK":
		d.handleAck(f, addr)
	case "FOLLOW":
		d.handleFollow(f, addr, true)
	case "UNFOLLOW":
		d.handleFollow(f, addr, false)
	case "REVOKE":
		d.handleRevoke(f, addr)
	case "LIKE":
		d.handleLike(f, addr)
	case "TICTACTOE_INVITE":
		d.handleInvite(f, addr)
	case "TICTACTOE_MOVE":
		d.handleMove(f, addr)
	case "TICTACTOE_RESULT":
		d.handleResult(f, addr)
	case "GROUP_CREATE":
		d.handleGroupCreate(f, addr)
	case "GROUP_UPDATE":
		d.handleGroupUpdate(f, addr)
	case "GROUP_MESSAGE":
		d.handleGroupMessage(f, addr)
	default:
		d.logger.LogDrop(msgType, addr.String(), "unknown TYPE")
	}
}

func (d *Dispatcher) handleProfile(f *wire.Frame, addr net.IP) {
	if !f.Has("USER_ID", "DISPLAY_NAME", "STATUS") {
		d.logger.LogDrop("PROFILE", addr.String(), "missing mandatory field")
		return
	}
	userID, _ := f.Get("USER_ID")
	displayName, _ := f.Get("DISPLAY_NAME")
	status, _ := f.Get("STATUS")
	avatarType := f.GetDefault("AVATAR_TYPE", "")
	avatarEnc := f.GetDefault("AVATAR_ENCODING", "")
	avatarData := f.GetDefault("AVATAR_DATA", "")
	d.store.AddOrUpdatePeer(userID, displayName, status, avatarType, avatarEnc, avatarData)
	d.logger.LogRecv("PROFILE", addr.String())
}

func (d *Dispatcher) handlePost(f *wire.Frame, addr net.IP) {
	if !f.Has("USER_ID", "CONTENT", "TTL", "MESSAGE_ID", "TOKEN") {
		d.logger.LogDrop("POST", addr.String(), "missing mandatory field")
		return
	}
	userID, _ := f.Get("USER_ID")
	tok, _ := f.Get("TOKEN")

	if !d.store.IsFollowing(userID) {
		d.logger.LogDrop("POST", addr.String(), "not following "+userID)
		return
	}
	if ok, reason := d.store.ValidateToken(tok, token.ScopeBroadcast); !ok {
		d.logger.LogReject("POST", addr.String(), reason)
		return
	}

	content, _ := f.Get("CONTENT")
	ttlStr, _ := f.Get("TTL")
	ttl, _ := strconv.Atoi(ttlStr)
	messageID, _ := f.Get("MESSAGE_ID")
	d.store.AddPost(userID, store.Post{
		Content:   content,
		Timestamp: f.GetDefault("TIMESTAMP", ""),
		TTL:       ttl,
		MessageID: messageID,
		Token:     tok,
	})
	d.logger.LogRecv("POST", addr.String())
}

func (d *Dispatcher) handleDM(f *wire.Frame, addr net.IP) {
	if !f.Has("FROM", "TO", "CONTENT", "TIMESTAMP", "MESSAGE_ID", "TOKEN") {
		d.logger.LogDrop("DM", addr.String(), "missing mandatory field")
		return
	}
	to, _ := f.Get("TO")
	if to != d.store.OwnUserID() {
		d.logger.LogDrop("DM", addr.String(), "not addressed to us")
		return
	}
	tok, _ := f.Get("TOKEN")
	if ok, reason := d.store.ValidateToken(tok, token.ScopeChat); !ok {
		d.logger.LogReject("DM", addr.String(), reason)
		return
	}

	from, _ := f.Get("FROM")
	content, _ := f.Get("CONTENT")
	ts, _ := f.Get("TIMESTAMP")
	messageID, _ := f.Get("MESSAGE_ID")
	d.store.AddDM(from, store.DM{Content: content, Timestamp: ts, MessageID: messageID, Token: tok})
	d.logger.LogRecv("DM", addr.String())

	ack := wire.New("ACK").Set("MESSAGE_ID", messageID).Set("STATUS", "RECEIVED")
	d.send(ack, addr, "ACK")
}

func (d *Dispatcher) handleAck(f *wire.Frame, addr net.IP) {
	if !f.Has("MESSAGE_ID", "STATUS") {
		d.logger.LogDrop("ACK", addr.String(), "missing mandatory field")
		return
	}
	messageID, _ := f.Get("MESSAGE_ID")
	d.store.TakePendingAck(messageID)
	d.logger.LogRecv("ACK", addr.String())
}

func (d *Dispatcher) handleFollow(f *wire.Frame, addr net.IP, follow bool) {
	typeName := "UNFOLLOW"
	if follow {
		typeName = "FOLLOW"
	}
	if !f.Has("FROM", "TO", "MESSAGE_ID", "TIMESTAMP", "TOKEN") {
		d.logger.LogDrop(typeName, addr.String(), "missing mandatory field")
		return
	}
	tok, _ := f.Get("TOKEN")
	if ok, reason := d.store.ValidateToken(tok, token.ScopeFollow); !ok {
		d.logger.LogReject(typeName, addr.String(), reason)
		return
	}
	from, _ := f.Get("FROM")
	to, _ := f.Get("TO")
	if follow {
		d.store.AddFollower(to, from)
	} else {
		d.store.RemoveFollower(to, from)
	}
	d.logger.LogRecv(typeName, addr.String())
}

func (d *Dispatcher) handleRevoke(f *wire.Frame, addr net.IP) {
	if !f.Has("TOKEN") {
		d.logger.LogDrop("REVOKE", addr.String(), "missing mandatory field")
		return
	}
	tok, _ := f.Get("TOKEN")
	d.store.Revoke(tok)
	d.logger.LogRecv("REVOKE", addr.String())
}

func (d *Dispatcher) handleLike(f *wire.Frame, addr net.IP) {
	if !f.Has("FROM", "TO", "POST_TIMESTAMP", "ACTION", "TIMESTAMP", "MESSAGE_ID", "TOKEN") {
		d.logger.LogDrop("LIKE", addr.String(), "missing mandatory field")
		return
	}
	to, _ := f.Get("TO")
	if to != d.store.OwnUserID() {
		d.logger.LogDrop("LIKE", addr.String(), "not addressed to us")
		return
	}
	tok, _ := f.Get("TOKEN")
	if ok, reason := d.store.ValidateToken(tok, token.ScopeBroadcast); !ok {
		d.logger.LogReject("LIKE", addr.String(), reason)
		return
	}
	from, _ := f.Get("FROM")
	postTimestamp, _ := f.Get("POST_TIMESTAMP")
	action, _ := f.Get("ACTION")
	ts, _ := f.Get("TIMESTAMP")
	d.store.HandleLike(from, postTimestamp, action, ts)
	d.logger.LogRecv("LIKE", addr.String())
}

func (d *Dispatcher) handleInvite(f *wire.Frame, addr net.IP) {
	if !f.Has("FROM", "RECIPIENT", "MESSAGE_ID", "GAMEID", "SYMBOL", "TIMESTAMP", "TOKEN") {
		d.logger.LogDrop("TICTACTOE_INVITE", addr.String(), "missing mandatory field")
		return
	}
	tok, _ := f.Get("TOKEN")
	if ok, reason := d.store.ValidateToken(tok, token.ScopeGame); !ok {
		d.logger.LogReject("TICTACTOE_INVITE", addr.String(), reason)
		return
	}
	gameID, _ := f.Get("GAMEID")
	if d.store.HasGame(gameID) {
		d.logger.LogDrop("TICTACTOE_INVITE", addr.String(), "game already known")
		return
	}
	from, _ := f.Get("FROM")
	d.store.CreateGame(gameID, from, false, tok)
	d.logger.LogRecv("TICTACTOE_INVITE", addr.String())
}

func (d *Dispatcher) handleMove(f *wire.Frame, addr net.IP) {
	if !f.Has("FROM", "RECIPIENT", "GAMEID", "MESSAGE_ID", "TURN", "POSITION", "SYMBOL", "TOKEN") {
		d.logger.LogDrop("TICTACTOE_MOVE", addr.String(), "missing mandatory field")
		return
	}
	tok, _ := f.Get("TOKEN")
	if ok, reason := d.store.ValidateToken(tok, token.ScopeGame); !ok {
		d.logger.LogReject("TICTACTOE_MOVE", addr.String(), reason)
		return
	}

	gameID, _ := f.Get("GAMEID")
	g := d.store.Game(gameID)
	if g == nil {
		d.logger.LogDrop("TICTACTOE_MOVE", addr.String(), "unknown game")
		return
	}

	turnStr, _ := f.Get("TURN")
	turn, err := strconv.Atoi(turnStr)
	if err != nil || turn != g.TurnCounter {
		d.logger.LogDrop("TICTACTOE_MOVE", addr.String(), "out-of-order TURN")
		return
	}

	posStr, _ := f.Get("POSITION")
	position, err := strconv.Atoi(posStr)
	if err != nil || position < 0 || position > 8 || g.Board[position] != "" {
		d.logger.LogDrop("TICTACTOE_MOVE", addr.String(), "invalid POSITION")
		return
	}

	symbol, _ := f.Get("SYMBOL")
	if symbol != g.OpponentSymbol {
		d.logger.LogDrop("TICTACTOE_MOVE", addr.String(), "SYMBOL mismatch")
		return
	}

	if !d.store.ApplyMove(gameID, position, symbol, false) {
		d.logger.LogDrop("TICTACTOE_MOVE", addr.String(), "move rejected")
		return
	}
	d.logger.LogRecv("TICTACTOE_MOVE", addr.String())

	result, line, winSymbol := d.store.CheckResult(gameID)
	if result == "" {
		return
	}

	from, _ := f.Get("FROM")
	resultFrame := wire.New("TICTACTOE_RESULT").
		Set("FROM", d.store.OwnUserID()).
		Set("TO", from).
		Set("GAMEID", gameID).
		Set("MESSAGE_ID", identity.NewMessageID()).
		Set("RESULT", result).
		Set("TIMESTAMP", strconv.FormatInt(time.Now().Unix(), 10))
	if result == "WIN" {
		resultFrame.Set("SYMBOL", winSymbol)
		resultFrame.Set("WINNING_LINE", strconv.Itoa(line[0])+","+strconv.Itoa(line[1])+","+strconv.Itoa(line[2]))
	}
	d.send(resultFrame, addr, "TICTACTOE_RESULT")
	d.store.RemoveGame(gameID)
}

func (d *Dispatcher) handleResult(f *wire.Frame, addr net.IP) {
	if !f.Has("FROM", "TO", "GAMEID", "MESSAGE_ID", "RESULT", "TIMESTAMP") {
		d.logger.LogDrop("TICTACTOE_RESULT", addr.String(), "missing mandatory field")
		return
	}
	gameID, _ := f.Get("GAMEID")
	d.store.RemoveGame(gameID)
	d.logger.LogRecv("TICTACTOE_RESULT", addr.String())
}

func (d *Dispatcher) handleGroupCreate(f *wire.Frame, addr net.IP) {
	if !f.Has("FROM", "GROUP_ID", "GROUP_NAME", "MEMBERS", "TIMESTAMP", "TOKEN") {
		d.logger.LogDrop("GROUP_CREATE", addr.String(), "missing mandatory field")
		return
	}
	tok, _ := f.Get("TOKEN")
	if ok, reason := d.store.ValidateToken(tok, token.ScopeGroup); !ok {
		d.logger.LogReject("GROUP_CREATE", addr.String(), reason)
		return
	}
	from, _ := f.Get("FROM")
	groupID, _ := f.Get("GROUP_ID")
	groupName, _ := f.Get("GROUP_NAME")
	members, _ := f.Get("MEMBERS")
	ts, _ := f.Get("TIMESTAMP")
	if d.store.HandleGroupCreate(groupID, groupName, from, splitCSV(members), ts) {
		d.logger.LogRecv("GROUP_CREATE", addr.String())
	} else {
		d.logger.LogDrop("GROUP_CREATE", addr.String(), "not a member")
	}
}

func (d *Dispatcher) handleGroupUpdate(f *wire.Frame, addr net.IP) {
	if !f.Has("FROM", "GROUP_ID", "TIMESTAMP", "TOKEN") {
		d.logger.LogDrop("GROUP_UPDATE", addr.String(), "missing mandatory field")
		return
	}
	tok, _ := f.Get("TOKEN")
	if ok, reason := d.store.ValidateToken(tok, token.ScopeGroup); !ok {
		d.logger.LogReject("GROUP_UPDATE", addr.String(), reason)
		return
	}
	from, _ := f.Get("FROM")
	groupID, _ := f.Get("GROUP_ID")
	ts, _ := f.Get("TIMESTAMP")
	add := splitCSV(f.GetDefault("ADD", ""))
	remove := splitCSV(f.GetDefault("REMOVE", ""))
	if d.store.HandleGroupUpdate(groupID, from, add, remove, ts) {
		d.logger.LogRecv("GROUP_UPDATE", addr.String())
	} else {
		d.logger.LogDrop("GROUP_UPDATE", addr.String(), "not from creator, or unknown group")
	}
}

func (d *Dispatcher) handleGroupMessage(f *wire.Frame, addr net.IP) {
	if !f.Has("FROM", "GROUP_ID", "CONTENT", "TIMESTAMP", "TOKEN") {
		d.logger.LogDrop("GROUP_MESSAGE", addr.String(), "missing mandatory field")
		return
	}
	tok, _ := f.Get("TOKEN")
	if ok, reason := d.store.ValidateToken(tok, token.ScopeGroup); !ok {
		d.logger.LogReject("GROUP_MESSAGE", addr.String(), reason)
		return
	}
	from, _ := f.Get("FROM")
	groupID, _ := f.Get("GROUP_ID")
	content, _ := f.Get("CONTENT")
	ts, _ := f.Get("TIMESTAMP")
	if d.store.HandleGroupMessage(groupID, from, content, ts) {
		d.logger.LogRecv("GROUP_MESSAGE", addr.String())
	} else {
		d.logger.LogDrop("GROUP_MESSAGE", addr.String(), "sender not a member")
	}
}

func (d *Dispatcher) send(f *wire.Frame, addr net.IP, typeName string) {
	if err := d.sender.SendTo([]byte(wire.Craft(f)), addr); err != nil {
		d.logger.LogError(typeName, err)
		return
	}
	d.logger.LogSend(typeName, addr.String())
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
