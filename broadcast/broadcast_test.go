package broadcast

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/vanasher/lsnp-go/logging"
	"github.com/vanasher/lsnp-go/store"
	"github.com/vanasher/lsnp-go/wire"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []string
}

func (r *recordingSender) Broadcast(raw []byte, ip net.IP) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, string(raw))
	return nil
}

func (r *recordingSender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

func (r *recordingSender) last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sent) == 0 {
		return ""
	}
	return r.sent[len(r.sent)-1]
}

func TestAnnounceSkippedWithoutOwnProfile(t *testing.T) {
	s := store.New()
	sender := &recordingSender{}
	b := New(s, sender, logging.New(false), time.Second, net.ParseIP("255.255.255.255"))

	b.announce()

	if sender.count() != 0 {
		t.Fatal("must not announce before OwnProfile is set")
	}
}

func TestAnnounceEmitsProfileOrPing(t *testing.T) {
	s := store.New()
	s.SetOwnProfile("alice", "10.0.0.1", "Alice", "hi", "", "", "")
	sender := &recordingSender{}
	b := New(s, sender, logging.New(false), time.Second, net.ParseIP("255.255.255.255"))

	b.announce()
	if sender.count() != 1 {
		t.Fatalf("sends = %d, want 1", sender.count())
	}
	f := wire.Parse(sender.last())
	if f.Type() != "PROFILE" && f.Type() != "PING" {
		t.Fatalf("frame type = %q, want PROFILE or PING", f.Type())
	}
	if userID, _ := f.Get("USER_ID"); userID != "alice@10.0.0.1" {
		t.Fatalf("USER_ID = %q", userID)
	}
}

func TestAnnounceNowSkippedWithoutOwnProfile(t *testing.T) {
	s := store.New()
	sender := &recordingSender{}
	b := New(s, sender, logging.New(false), time.Second, net.ParseIP("255.255.255.255"))

	b.AnnounceNow()

	if sender.count() != 0 {
		t.Fatal("must not announce before OwnProfile is set")
	}
}

func TestAnnounceNowAlwaysEmitsProfile(t *testing.T) {
	s := store.New()
	s.SetOwnProfile("alice", "10.0.0.1", "Alice", "hi", "", "", "")
	sender := &recordingSender{}
	b := New(s, sender, logging.New(false), time.Second, net.ParseIP("255.255.255.255"))

	b.AnnounceNow()
	b.AnnounceNow()

	if sender.count() != 2 {
		t.Fatalf("sends = %d, want 2", sender.count())
	}
	for _, raw := range []string{sender.sent[0], sender.sent[1]} {
		if f := wire.Parse(raw); f.Type() != "PROFILE" {
			t.Fatalf("frame type = %q, want PROFILE on every call, no PING alternation", f.Type())
		}
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	s := store.New()
	s.SetOwnProfile("alice", "10.0.0.1", "Alice", "hi", "", "", "")
	sender := &recordingSender{}
	b := New(s, sender, logging.New(false), 5*time.Millisecond, net.ParseIP("255.255.255.255"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	done := make(chan struct{})
	go func() {
		b.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
	if sender.count() == 0 {
		t.Fatal("expected at least one announcement during the run window")
	}
}
