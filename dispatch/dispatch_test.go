package dispatch

import (
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/vanasher/lsnp-go/logging"
	"github.com/vanasher/lsnp-go/store"
	"github.com/vanasher/lsnp-go/wire"
)

type recordingSender struct {
	mu    sync.Mutex
	sent  []string
	addrs []net.IP
}

func (r *recordingSender) SendTo(raw []byte, ip net.IP) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, string(raw))
	r.addrs = append(r.addrs, ip)
	return nil
}

func (r *recordingSender) last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sent) == 0 {
		return ""
	}
	return r.sent[len(r.sent)-1]
}

func (r *recordingSender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

func validToken(user, scope string) string {
	return user + "|" + strconv.FormatInt(time.Now().Add(time.Hour).Unix(), 10) + "|" + scope
}

func TestHandleProfileUpsertsPeer(t *testing.T) {
	s := store.New()
	d := New(s, &recordingSender{}, logging.New(false))

	f := wire.New("PROFILE").Set("USER_ID", "alice@10.0.0.1").Set("DISPLAY_NAME", "Alice").Set("STATUS", "hi")
	d.Handle([]byte(wire.Craft(f)), net.ParseIP("10.0.0.1"))

	p := s.Peer("alice@10.0.0.1")
	if p == nil || p.DisplayName != "Alice" {
		t.Fatalf("peer = %+v", p)
	}
}

func TestHandlePostDropsWhenNotFollowing(t *testing.T) {
	s := store.New()
	s.SetOwnProfile("bob", "10.0.0.2", "Bob", "hi", "", "", "")
	d := New(s, &recordingSender{}, logging.New(false))

	f := wire.New("POST").
		Set("USER_ID", "alice@10.0.0.1").
		Set("CONTENT", "hello").
		Set("TTL", "3600").
		Set("MESSAGE_ID", "0000000000000001").
		Set("TOKEN", validToken("alice@10.0.0.1", "broadcast"))
	d.Handle([]byte(wire.Craft(f)), net.ParseIP("10.0.0.1"))

	if p := s.Peer("alice@10.0.0.1"); p != nil && len(p.Posts) != 0 {
		t.Fatal("post from a non-followed user must not be stored")
	}
}

func TestHandlePostStoredWhenFollowing(t *testing.T) {
	s := store.New()
	s.SetOwnProfile("bob", "10.0.0.2", "Bob", "hi", "", "", "")
	s.Follow("alice@10.0.0.1")
	d := New(s, &recordingSender{}, logging.New(false))

	f := wire.New("POST").
		Set("USER_ID", "alice@10.0.0.1").
		Set("CONTENT", "hello").
		Set("TTL", "3600").
		Set("MESSAGE_ID", "0000000000000001").
		Set("TOKEN", validToken("alice@10.0.0.1", "broadcast"))
	d.Handle([]byte(wire.Craft(f)), net.ParseIP("10.0.0.1"))

	p := s.Peer("alice@10.0.0.1")
	if p == nil || len(p.Posts) != 1 {
		t.Fatalf("post should have been stored, peer = %+v", p)
	}
}

func TestHandleDMAddressedToUsAcksAndStores(t *testing.T) {
	s := store.New()
	s.SetOwnProfile("bob", "10.0.0.2", "Bob", "hi", "", "", "")
	sender := &recordingSender{}
	d := New(s, sender, logging.New(false))

	f := wire.New("DM").
		Set("FROM", "alice@10.0.0.1").
		Set("TO", "bob@10.0.0.2").
		Set("CONTENT", "hi").
		Set("TIMESTAMP", "1000").
		Set("MESSAGE_ID", "0000000000000001").
		Set("TOKEN", validToken("alice@10.0.0.1", "chat"))
	d.Handle([]byte(wire.Craft(f)), net.ParseIP("10.0.0.1"))

	p := s.Peer("alice@10.0.0.1")
	if p == nil || len(p.DMs) != 1 {
		t.Fatalf("DM should have been stored, peer = %+v", p)
	}
	if sender.count() != 1 {
		t.Fatalf("ACK sends = %d, want 1", sender.count())
	}
	ack := wire.Parse(sender.last())
	if ack.Type() != "ACK" {
		t.Fatalf("reply type = %q, want ACK", ack.Type())
	}
}

func TestHandleDMNotAddressedToUsIsDropped(t *testing.T) {
	s := store.New()
	s.SetOwnProfile("carol", "10.0.0.3", "Carol", "hi", "", "", "")
	sender := &recordingSender{}
	d := New(s, sender, logging.New(false))

	f := wire.New("DM").
		Set("FROM", "alice@10.0.0.1").
		Set("TO", "bob@10.0.0.2").
		Set("CONTENT", "hi").
		Set("TIMESTAMP", "1000").
		Set("MESSAGE_ID", "0000000000000001").
		Set("TOKEN", validToken("alice@10.0.0.1", "chat"))
	d.Handle([]byte(wire.Craft(f)), net.ParseIP("10.0.0.1"))

	if sender.count() != 0 {
		t.Fatal("must not ACK a DM addressed to someone else")
	}
}

func TestHandleDMDuplicateMessageIDReAcksWithoutReappending(t *testing.T) {
	s := store.New()
	s.SetOwnProfile("bob", "10.0.0.2", "Bob", "hi", "", "", "")
	sender := &recordingSender{}
	d := New(s, sender, logging.New(false))

	f := wire.New("DM").
		Set("FROM", "alice@10.0.0.1").
		Set("TO", "bob@10.0.0.2").
		Set("CONTENT", "hi").
		Set("TIMESTAMP", "1000").
		Set("MESSAGE_ID", "0000000000000001").
		Set("TOKEN", validToken("alice@10.0.0.1", "chat"))
	raw := []byte(wire.Craft(f))

	d.Handle(raw, net.ParseIP("10.0.0.1"))
	d.Handle(raw, net.ParseIP("10.0.0.1"))

	p := s.Peer("alice@10.0.0.1")
	if len(p.DMs) != 1 {
		t.Fatalf("stored DMs = %d, want 1", len(p.DMs))
	}
	if sender.count() != 2 {
		t.Fatalf("ACKs sent = %d, want 2 (one per delivery)", sender.count())
	}
}

func TestHandleAckClearsPendingAck(t *testing.T) {
	s := store.New()
	s.PutPendingAck("m1", &store.PendingAck{PeerIP: "10.0.0.2"})
	d := New(s, &recordingSender{}, logging.New(false))

	f := wire.New("ACK").Set("MESSAGE_ID", "m1").Set("STATUS", "RECEIVED")
	d.Handle([]byte(wire.Craft(f)), net.ParseIP("10.0.0.2"))

	if _, ok := s.SnapshotPendingAcks()["m1"]; ok {
		t.Fatal("ACK should have cleared the pending entry")
	}
}

func TestHandleInviteCreatesGameAsRecipient(t *testing.T) {
	s := store.New()
	s.SetOwnProfile("bob", "10.0.0.2", "Bob", "hi", "", "", "")
	d := New(s, &recordingSender{}, logging.New(false))

	f := wire.New("TICTACTOE_INVITE").
		Set("FROM", "alice@10.0.0.1").
		Set("RECIPIENT", "bob@10.0.0.2").
		Set("MESSAGE_ID", "m1").
		Set("GAMEID", "g1").
		Set("SYMBOL", "X").
		Set("TIMESTAMP", "1000").
		Set("TOKEN", validToken("alice@10.0.0.1", "game"))
	d.Handle([]byte(wire.Craft(f)), net.ParseIP("10.0.0.1"))

	g := s.Game("g1")
	if g == nil || g.MySymbol != "O" || g.OpponentSymbol != "X" || g.MyTurn {
		t.Fatalf("game = %+v", g)
	}
}

func TestHandleMoveRejectsOutOfOrderTurn(t *testing.T) {
	s := store.New()
	s.SetOwnProfile("bob", "10.0.0.2", "Bob", "hi", "", "", "")
	s.CreateGame("g1", "alice@10.0.0.1", false, "tok")
	d := New(s, &recordingSender{}, logging.New(false))

	f := wire.New("TICTACTOE_MOVE").
		Set("FROM", "alice@10.0.0.1").
		Set("RECIPIENT", "bob@10.0.0.2").
		Set("GAMEID", "g1").
		Set("MESSAGE_ID", "m1").
		Set("TURN", "99").
		Set("POSITION", "0").
		Set("SYMBOL", "X").
		Set("TOKEN", validToken("alice@10.0.0.1", "game"))
	d.Handle([]byte(wire.Craft(f)), net.ParseIP("10.0.0.1"))

	g := s.Game("g1")
	if g.Board[0] != "" {
		t.Fatal("out-of-order TURN must not apply the move")
	}
}

func TestHandleMoveAppliesAndEmitsResultOnWin(t *testing.T) {
	s := store.New()
	s.SetOwnProfile("bob", "10.0.0.2", "Bob", "hi", "", "", "")
	g := s.CreateGame("g1", "alice@10.0.0.1", false, "tok")
	_ = g
	// Pre-fill board so the inbound move completes a win for the opponent (X).
	s.ApplyMove("g1", 3, "X", false)
	s.ApplyMove("g1", 0, "O", true)
	s.ApplyMove("g1", 4, "X", false)
	s.ApplyMove("g1", 1, "O", true)

	sender := &recordingSender{}
	d := New(s, sender, logging.New(false))

	f := wire.New("TICTACTOE_MOVE").
		Set("FROM", "alice@10.0.0.1").
		Set("RECIPIENT", "bob@10.0.0.2").
		Set("GAMEID", "g1").
		Set("MESSAGE_ID", "m1").
		Set("TURN", "5").
		Set("POSITION", "5").
		Set("SYMBOL", "X").
		Set("TOKEN", validToken("alice@10.0.0.1", "game"))
	d.Handle([]byte(wire.Craft(f)), net.ParseIP("10.0.0.1"))

	if sender.count() != 1 {
		t.Fatalf("sends = %d, want 1 RESULT frame", sender.count())
	}
	result := wire.Parse(sender.last())
	if result.Type() != "TICTACTOE_RESULT" {
		t.Fatalf("reply type = %q", result.Type())
	}
	if r, _ := result.Get("RESULT"); r != "WIN" {
		t.Fatalf("RESULT = %q, want WIN", r)
	}
	if s.HasGame("g1") {
		t.Fatal("game should be removed once terminal")
	}
}

func TestHandleGroupMessageRequiresMembership(t *testing.T) {
	s := store.New()
	s.SetOwnProfile("alice", "10.0.0.1", "Alice", "hi", "", "", "")
	s.HandleGroupCreate("g1", "Friends", "carol@10.0.0.3",
		[]string{"carol@10.0.0.3", "alice@10.0.0.1"}, "100")
	d := New(s, &recordingSender{}, logging.New(false))

	f := wire.New("GROUP_MESSAGE").
		Set("FROM", "eve@10.0.0.9").
		Set("GROUP_ID", "g1").
		Set("CONTENT", "hi").
		Set("TIMESTAMP", "200").
		Set("TOKEN", validToken("eve@10.0.0.9", "group"))
	d.Handle([]byte(wire.Craft(f)), net.ParseIP("10.0.0.9"))

	g := s.Group("g1")
	if len(g.Messages) != 0 {
		t.Fatal("message from a non-member must not be appended")
	}
}

func TestHandleUnknownTypeDoesNotPanic(t *testing.T) {
	s := store.New()
	d := New(s, &recordingSender{}, logging.New(false))
	d.Handle([]byte("TYPE: BOGUS\n\n"), net.ParseIP("10.0.0.1"))
}
