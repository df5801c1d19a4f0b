// Package store implements the peer store (spec.md §4.4, C4): the single
// process-wide catalog of known peers, posts, DMs, followers, the local
// profile, pending ACKs, games and groups. All mutation goes through its
// methods; reads may run concurrently with mutation (spec.md §5(a)).
//
// Grounded on _examples/zeromq-gyre/pkg/zre/peer.go and
// original_source/core/peer.py's PeerManager — the method set here is
// that class's method set, generalized from Python dicts to Go maps.
package store

import (
	"strings"
	"sync"
	"time"

	"github.com/vanasher/lsnp-go/token"
)

// Profile is the local peer's own identity record (spec.md §3 OwnProfile).
type Profile struct {
	UserID      string
	Username    string
	DisplayName string
	Status      string
	AvatarType  string
	AvatarEnc   string
	AvatarData  string
}

// Post is a broadcast short message (spec.md §3).
type Post struct {
	Content   string
	Timestamp string
	TTL       int
	MessageID string
	Token     string
}

// DM is a direct message, stored per source peer (spec.md §3).
type DM struct {
	Content   string
	Timestamp string
	MessageID string
	Token     string
}

// Like records a LIKE/UNLIKE of a specific post, keyed by (FromUser,
// PostTimestamp). See SPEC_FULL.md §3.
type Like struct {
	FromUser      string
	PostTimestamp string
	Timestamp     string
}

// Peer is a remote participant, created on first receipt of PROFILE,
// POST, DM or FOLLOW from that user (spec.md §3).
type Peer struct {
	UserID      string
	DisplayName string
	Status      string
	AvatarType  string
	AvatarEnc   string
	AvatarData  string
	Posts       []Post
	DMs         []DM
	dmIDs       map[string]struct{} // message-id dedup set, invariant: never persisted verbatim
	Followers   []string
	Likes       []Like
}

// PendingAck tracks a DM awaiting acknowledgement (spec.md §3).
type PendingAck struct {
	Raw         []byte
	PeerIP      string
	FirstSentAt time.Time
	LastSentAt  time.Time
	Attempts    int
}

// Store is the process-wide state object. The zero value is not usable;
// use New.
type Store struct {
	mu sync.RWMutex

	own      *Profile
	peers    map[string]*Peer
	ownPosts []Post
	following map[string]struct{}

	pendingAcks map[string]*PendingAck

	revoked      token.RevokedSet
	issuedTokens []string

	games  map[string]*Game
	groups map[string]*Group
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		peers:       make(map[string]*Peer),
		following:   make(map[string]struct{}),
		pendingAcks: make(map[string]*PendingAck),
		games:       make(map[string]*Game),
		groups:      make(map[string]*Group),
	}
}

// SetOwnProfile creates OwnProfile on first call; subsequent calls update
// mutable fields but refuse to change username, per spec.md §4.4.
// Returns whether this was the first call (the shell/broadcaster uses this
// to decide whether to announce immediately).
func (s *Store) SetOwnProfile(username, ip, displayName, status, avatarType, avatarEnc, avatarData string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.own == nil {
		s.own = &Profile{
			UserID:      username + "@" + ip,
			Username:    username,
			DisplayName: displayName,
			Status:      status,
			AvatarType:  avatarType,
			AvatarEnc:   avatarEnc,
			AvatarData:  avatarData,
		}
		return true
	}

	s.own.DisplayName = displayName
	s.own.Status = status
	if avatarType != "" && avatarData != "" {
		s.own.AvatarType = avatarType
		s.own.AvatarEnc = avatarEnc
		s.own.AvatarData = avatarData
	}
	return false
}

// OwnProfile returns a copy of the local profile, or nil if unset.
func (s *Store) OwnProfile() *Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.own == nil {
		return nil
	}
	cp := *s.own
	return &cp
}

// OwnUserID returns the local UserId, or "" if the profile is unset.
func (s *Store) OwnUserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.own == nil {
		return ""
	}
	return s.own.UserID
}

// AddOrUpdatePeer upserts a Peer's profile fields (spec.md §4.4). Avatar
// fields only update when both type and data are supplied.
func (s *Store) AddOrUpdatePeer(userID, displayName, status, avatarType, avatarEnc, avatarData string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.peers[userID]
	if !ok {
		s.peers[userID] = &Peer{
			UserID:      userID,
			DisplayName: displayName,
			Status:      status,
			AvatarType:  avatarType,
			AvatarEnc:   avatarEnc,
			AvatarData:  avatarData,
			dmIDs:       make(map[string]struct{}),
		}
		return
	}
	p.DisplayName = displayName
	p.Status = status
	if avatarType != "" && avatarData != "" {
		p.AvatarType = avatarType
		p.AvatarEnc = avatarEnc
		p.AvatarData = avatarData
	}
}

func (s *Store) requirePeerLocked(userID string) *Peer {
	p, ok := s.peers[userID]
	if !ok {
		p = &Peer{UserID: userID, dmIDs: make(map[string]struct{})}
		s.peers[userID] = p
	}
	if p.dmIDs == nil {
		p.dmIDs = make(map[string]struct{})
	}
	return p
}

// AddPost appends a post to userID's post list. No dedup: POST carries no
// ACK semantics (spec.md §4.4). No-op if userID is our own UserId
// (invariant 3: own posts never appear in peers[self]).
func (s *Store) AddPost(userID string, p Post) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.own != nil && userID == s.own.UserID {
		return
	}
	peer := s.requirePeerLocked(userID)
	peer.Posts = append(peer.Posts, p)
}

// AddOwnPost records a post we authored, in ownPosts (invariant 3).
func (s *Store) AddOwnPost(p Post) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ownPosts = append(s.ownPosts, p)
}

// OwnPosts returns a copy of our own posts.
func (s *Store) OwnPosts() []Post {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Post, len(s.ownPosts))
	copy(out, s.ownPosts)
	return out
}

// AddDM appends a DM to fromUser's DM list, creating a placeholder Peer
// if none exists (spec.md §4.4). Returns false without appending if
// messageID has already been stored for this peer (duplicate-delivery
// dedup, spec.md §4.5/§8 property 3).
func (s *Store) AddDM(fromUser string, dm DM) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	peer := s.requirePeerLocked(fromUser)
	if dm.MessageID != "" {
		if _, seen := peer.dmIDs[dm.MessageID]; seen {
			return false
		}
		peer.dmIDs[dm.MessageID] = struct{}{}
	}
	peer.DMs = append(peer.DMs, dm)
	return true
}

// AddFollower adds fromUser to our followers, iff toUser is us
// (spec.md §4.4/§4.5). Idempotent.
func (s *Store) AddFollower(toUser, fromUser string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.own == nil || toUser != s.own.UserID {
		return
	}
	s.requirePeerLocked(fromUser) // ensure the peer is known, for display
	for _, f := range s.ownFollowersLocked() {
		if f == fromUser {
			return
		}
	}
	s.addOwnFollowerLocked(fromUser)
}

// RemoveFollower removes fromUser from our followers, iff toUser is us.
func (s *Store) RemoveFollower(toUser, fromUser string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.own == nil || toUser != s.own.UserID {
		return
	}
	s.removeOwnFollowerLocked(fromUser)
}

// ownFollowers is stored as a slice on a synthetic "self" bucket so that
// GetFollowerIPs below can reuse the same representation as peer lists.
var selfFollowersKey = "__self__"

func (s *Store) ownFollowersLocked() []string {
	p, ok := s.peers[selfFollowersKey]
	if !ok {
		return nil
	}
	return p.Followers
}

func (s *Store) addOwnFollowerLocked(userID string) {
	p := s.requirePeerLocked(selfFollowersKey)
	p.Followers = append(p.Followers, userID)
}

func (s *Store) removeOwnFollowerLocked(userID string) {
	p, ok := s.peers[selfFollowersKey]
	if !ok {
		return
	}
	for i, f := range p.Followers {
		if f == userID {
			p.Followers = append(p.Followers[:i], p.Followers[i+1:]...)
			return
		}
	}
}

// Follow adds userID to our following set.
func (s *Store) Follow(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.own != nil && userID == s.own.UserID {
		return // invariant 4: never follow ourselves
	}
	s.following[userID] = struct{}{}
}

// Unfollow removes userID from our following set.
func (s *Store) Unfollow(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.following, userID)
}

// IsFollowing reports whether we follow userID.
func (s *Store) IsFollowing(userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.following[userID]
	return ok
}

// GetFollowerIPs returns the IPs of UserIds that currently follow us.
func (s *Store) GetFollowerIPs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ips []string
	for _, userID := range s.ownFollowersLocked() {
		if ip := ipOf(userID); ip != "" {
			ips = append(ips, ip)
		}
	}
	return ips
}

func ipOf(userID string) string {
	idx := strings.LastIndex(userID, "@")
	if idx < 0 {
		return ""
	}
	return userID[idx+1:]
}

// Peer returns a snapshot copy of a known peer, or nil.
func (s *Store) Peer(userID string) *Peer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.peers[userID]
	if !ok {
		return nil
	}
	cp := *p
	cp.Posts = append([]Post(nil), p.Posts...)
	cp.DMs = append([]DM(nil), p.DMs...)
	cp.Followers = append([]string(nil), p.Followers...)
	cp.Likes = append([]Like(nil), p.Likes...)
	return &cp
}

// ListPeers returns a shallow copy of every known peer, excluding the
// internal self-followers bucket.
func (s *Store) ListPeers() []Peer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Peer, 0, len(s.peers))
	for id, p := range s.peers {
		if id == selfFollowersKey {
			continue
		}
		out = append(out, *p)
	}
	return out
}

// IssueToken records a minted token so it can be revoked on shutdown
// (spec.md §4.10).
func (s *Store) IssueToken(raw string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issuedTokens = append(s.issuedTokens, raw)
}

// IssuedTokens returns every token this process has minted.
func (s *Store) IssuedTokens() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.issuedTokens))
	copy(out, s.issuedTokens)
	return out
}

// Revoke marks raw as revoked for this process (spec.md §4.2).
func (s *Store) Revoke(raw string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked.Revoke(raw)
}

// ValidateToken checks raw against requiredScope under this store's
// revocation set.
func (s *Store) ValidateToken(raw string, scope token.Scope) (bool, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return token.Validate(raw, scope, &s.revoked)
}

// PutPendingAck inserts a, keyed by messageID, refusing to create a
// second entry for the same id (invariant 6 / spec.md §9 open question).
func (s *Store) PutPendingAck(messageID string, a *PendingAck) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.pendingAcks[messageID]; exists {
		return false
	}
	s.pendingAcks[messageID] = a
	return true
}

// TakePendingAck removes and returns the pending ack for messageID, if any.
func (s *Store) TakePendingAck(messageID string) (*PendingAck, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.pendingAcks[messageID]
	if ok {
		delete(s.pendingAcks, messageID)
	}
	return a, ok
}

// SnapshotPendingAcks returns a copy of the current message-id -> entry
// map, for the reliability watcher to iterate without holding the store
// lock across a network send (spec.md §5(c)).
func (s *Store) SnapshotPendingAcks() map[string]PendingAck {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]PendingAck, len(s.pendingAcks))
	for id, a := range s.pendingAcks {
		out[id] = *a
	}
	return out
}

// UpdatePendingAck mutates the attempt count/timestamp for messageID in
// place, or deletes the entry if del is true.
func (s *Store) UpdatePendingAck(messageID string, lastSentAt time.Time, attempts int, del bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if del {
		delete(s.pendingAcks, messageID)
		return
	}
	if a, ok := s.pendingAcks[messageID]; ok {
		a.LastSentAt = lastSentAt
		a.Attempts = attempts
	}
}
