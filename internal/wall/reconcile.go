package wall

// Apply merges a single broker event into the snapshot and reports whether
// anything changed. The merge is idempotent for creates and deletes: a
// duplicate delivery of the same event is a no-op, and a delete for an
// absent identity is a no-op. Counter updates are last-write-wins: the
// source events carry no sequence number, so a stale count delivered after a
// fresher one overwrites it. That gap is inherent to the upstream contract.
func (s *Snapshot) Apply(event Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch event.Kind {
	case EventPostCreated:
		return s.applyCreate(event)
	case EventPostDeleted:
		return s.applyDelete(event.PostID)
	case EventLikeCountChanged:
		return s.applyLikeCount(event.PostID, event.Count)
	case EventCommentCountChanged:
		return s.applyCommentCount(event.PostID, event.Count)
	case EventCommentCreated:
		// Comment bodies live in per-post threads; the snapshot only tracks
		// the paired counter, which arrives on its own topic.
		return false
	}
	return false
}

func (s *Snapshot) applyCreate(event Event) bool {
	if event.Post == nil {
		return false
	}
	if _, deleted := s.tombstones[event.PostID]; deleted {
		return false
	}
	if s.indexOf(event.PostID) >= 0 {
		return false
	}
	post := *event.Post
	if count, ok := s.pending.likes[post.ID]; ok {
		post.LikeCount = count
		delete(s.pending.likes, post.ID)
	}
	if count, ok := s.pending.comments[post.ID]; ok {
		post.CommentCount = count
		delete(s.pending.comments, post.ID)
	}
	s.insertSorted(post)
	return true
}

func (s *Snapshot) applyDelete(postID string) bool {
	s.tombstones[postID] = struct{}{}
	delete(s.pending.likes, postID)
	delete(s.pending.comments, postID)
	index := s.indexOf(postID)
	if index < 0 {
		return false
	}
	s.removeAt(index)
	return true
}

func (s *Snapshot) applyLikeCount(postID string, count int64) bool {
	if _, deleted := s.tombstones[postID]; deleted {
		return false
	}
	index := s.indexOf(postID)
	if index < 0 {
		s.pending.likes[postID] = count
		return false
	}
	if s.posts[index].LikeCount == count {
		return false
	}
	s.posts[index].LikeCount = count
	return true
}

func (s *Snapshot) applyCommentCount(postID string, count int64) bool {
	if _, deleted := s.tombstones[postID]; deleted {
		return false
	}
	index := s.indexOf(postID)
	if index < 0 {
		s.pending.comments[postID] = count
		return false
	}
	if s.posts[index].CommentCount == count {
		return false
	}
	s.posts[index].CommentCount = count
	return true
}

// MergeFetched reconciles an authoritative fetch result with whatever live
// events were applied while the fetch was in flight. Entities already present
// keep their event-applied state; fetched posts fill the gaps, buffered
// counter updates are folded in, and tombstoned identities stay out.
// Duplicates inside the fetched set itself collapse by identity.
func (s *Snapshot) MergeFetched(fetched []Post) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, post := range fetched {
		if post.ID == "" {
			continue
		}
		if _, deleted := s.tombstones[post.ID]; deleted {
			continue
		}
		if s.indexOf(post.ID) >= 0 {
			continue
		}
		if count, ok := s.pending.likes[post.ID]; ok {
			post.LikeCount = count
			delete(s.pending.likes, post.ID)
		}
		if count, ok := s.pending.comments[post.ID]; ok {
			post.CommentCount = count
			delete(s.pending.comments, post.ID)
		}
		s.insertSorted(post)
	}
}

// AdjustCommentCount shifts a post's comment counter by delta, clamped at
// zero. Used for the optimistic decrement when the local user deletes a
// comment before the authoritative count event arrives.
func (s *Snapshot) AdjustCommentCount(postID string, delta int64) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	index := s.indexOf(postID)
	if index < 0 {
		return 0, false
	}
	next := s.posts[index].CommentCount + delta
	if next < 0 {
		next = 0
	}
	s.posts[index].CommentCount = next
	return next, true
}

// SetCommentCount overwrites a post's comment counter, used to restore the
// pre-mutation value on rollback.
func (s *Snapshot) SetCommentCount(postID string, count int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	index := s.indexOf(postID)
	if index < 0 {
		return false
	}
	s.posts[index].CommentCount = count
	return true
}
