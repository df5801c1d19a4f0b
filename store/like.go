package store

// HandleLike records a LIKE, or removes a prior LIKE on UNLIKE, from
// fromUser against a post identified by postTimestamp (SPEC_FULL.md §6).
// Grounded on original_source/core/peer.py: add_like/handle_like_received.
func (s *Store) HandleLike(fromUser, postTimestamp, action, ts string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	peer := s.requirePeerLocked(fromUser)
	filtered := peer.Likes[:0]
	for _, l := range peer.Likes {
		if l.FromUser == fromUser && l.PostTimestamp == postTimestamp {
			continue
		}
		filtered = append(filtered, l)
	}
	peer.Likes = filtered

	if action == "LIKE" {
		peer.Likes = append(peer.Likes, Like{FromUser: fromUser, PostTimestamp: postTimestamp, Timestamp: ts})
	}
}
