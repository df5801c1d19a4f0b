package store

// Group is a named, mutable-membership message group (spec.md §3, C9).
// Membership is authoritative on the creator's process and evolves by
// last-writer-wins TIMESTAMP within the creator's origin (invariant 7).
//
// Grounded on _examples/zeromq-gyre/pkg/zre/group.go (Join/Leave on a
// member set) generalized from "peers to fan a message out to" to
// "UserIds with creator-authoritative membership", per
// original_source/core/peer.py's create_group/update_group/handle_group_*.
type Group struct {
	GroupID    string
	GroupName  string
	Members    map[string]struct{}
	Creator    string
	CreatedAt  string
	lastUpdate string // TIMESTAMP of the last accepted CREATE/UPDATE from Creator
	Messages   []GroupMessage
}

// GroupMessage is one message appended to a group's local log.
type GroupMessage struct {
	From      string
	Content   string
	Timestamp string
}

// CreateGroup creates a group we are the creator of (spec.md §4.10 C10).
func (s *Store) CreateGroup(groupID, groupName string, members []string, createdAt string) *Group {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := make(map[string]struct{}, len(members))
	for _, m := range members {
		set[m] = struct{}{}
	}

	g := &Group{
		GroupID:    groupID,
		GroupName:  groupName,
		Members:    set,
		Creator:    s.ownUserIDLocked(),
		CreatedAt:  createdAt,
		lastUpdate: createdAt,
	}
	s.groups[groupID] = g
	return g
}

func (s *Store) ownUserIDLocked() string {
	if s.own == nil {
		return ""
	}
	return s.own.UserID
}

// HandleGroupCreate processes an incoming GROUP_CREATE (spec.md §4.5).
// Creates/replaces the local Group record iff we are among members.
func (s *Store) HandleGroupCreate(groupID, groupName, creator string, members []string, ts string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	me := s.ownUserIDLocked()
	found := false
	set := make(map[string]struct{}, len(members))
	for _, m := range members {
		set[m] = struct{}{}
		if m == me {
			found = true
		}
	}
	if !found {
		return false
	}

	s.groups[groupID] = &Group{
		GroupID:    groupID,
		GroupName:  groupName,
		Members:    set,
		Creator:    creator,
		CreatedAt:  ts,
		lastUpdate: ts,
	}
	return true
}

// HandleGroupUpdate applies ADD/REMOVE from an incoming GROUP_UPDATE,
// refusing updates from anyone but the recorded creator (invariant 7,
// spec.md §4.9). ts is compared against the last accepted update so a
// delayed/duplicate UPDATE can't regress membership (last-writer-wins).
func (s *Store) HandleGroupUpdate(groupID, from string, add, remove []string, ts string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.groups[groupID]
	if !ok || from != g.Creator {
		return false
	}
	if ts != "" && ts < g.lastUpdate {
		return false
	}

	for _, m := range add {
		g.Members[m] = struct{}{}
	}
	for _, m := range remove {
		delete(g.Members, m)
	}
	if ts != "" {
		g.lastUpdate = ts
	}
	return true
}

// UpdateGroup applies a local membership change to a group we created,
// returning the updated group and false if groupID is unknown.
func (s *Store) UpdateGroup(groupID string, add, remove []string, ts string) (*Group, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.groups[groupID]
	if !ok {
		return nil, false
	}
	for _, m := range add {
		g.Members[m] = struct{}{}
	}
	for _, m := range remove {
		delete(g.Members, m)
	}
	g.lastUpdate = ts
	return g, true
}

// HandleGroupMessage appends an incoming GROUP_MESSAGE, iff from is a
// current member (spec.md §4.5).
func (s *Store) HandleGroupMessage(groupID, from, content, ts string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.groups[groupID]
	if !ok {
		return false
	}
	if _, member := g.Members[from]; !member {
		return false
	}
	g.Messages = append(g.Messages, GroupMessage{From: from, Content: content, Timestamp: ts})
	return true
}

// SendGroupMessage appends a message we authored to our local copy of the
// group (spec.md §4.10 C10).
func (s *Store) SendGroupMessage(groupID, content, ts string) (*Group, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[groupID]
	if !ok {
		return nil, false
	}
	g.Messages = append(g.Messages, GroupMessage{From: s.ownUserIDLocked(), Content: content, Timestamp: ts})
	return g, true
}

// Group returns a snapshot copy of groupID, or nil.
func (s *Store) Group(groupID string) *Group {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[groupID]
	if !ok {
		return nil
	}
	cp := *g
	cp.Members = make(map[string]struct{}, len(g.Members))
	for m := range g.Members {
		cp.Members[m] = struct{}{}
	}
	cp.Messages = append([]GroupMessage(nil), g.Messages...)
	return &cp
}

// GroupMemberIPs returns the IPs of groupID's current members, for
// fanning out GROUP_UPDATE/GROUP_MESSAGE (spec.md §4.5).
func (s *Store) GroupMemberIPs(groupID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[groupID]
	if !ok {
		return nil
	}
	ips := make([]string, 0, len(g.Members))
	for m := range g.Members {
		if ip := ipOf(m); ip != "" {
			ips = append(ips, ip)
		}
	}
	return ips
}

// ListGroups returns every group we belong to.
func (s *Store) ListGroups() []Group {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Group, 0, len(s.groups))
	for _, g := range s.groups {
		out = append(out, *g)
	}
	return out
}
