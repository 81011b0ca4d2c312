package wall

import (
	"sort"
	"sync"
)

// pendingCounts buffers counter events that arrived before the publication
// they target was fetched or created.
type pendingCounts struct {
	likes     map[string]int64
	comments  map[string]int64
}

// Snapshot is the authoritative in-memory publication collection a single
// component instance renders from. It holds at most one post per identity,
// keeps newest-first order by normalized timestamp, and treats deletions as
// sticky for its lifetime: a delete event shadows any stale create that
// arrives later out of order.
type Snapshot struct {
	mu         sync.RWMutex
	posts      []Post
	tombstones map[string]struct{}
	pending    pendingCounts
}

// NewSnapshot returns an empty snapshot.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		tombstones: make(map[string]struct{}),
		pending: pendingCounts{
			likes:    make(map[string]int64),
			comments: make(map[string]int64),
		},
	}
}

// Posts returns a copy of the reconciled feed, newest first.
func (s *Snapshot) Posts() []Post {
	s.mu.RLock()
	defer s.mu.RUnlock()
	feed := make([]Post, len(s.posts))
	copy(feed, s.posts)
	return feed
}

// Get returns the post with the given identity, if present.
func (s *Snapshot) Get(postID string) (Post, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, post := range s.posts {
		if post.ID == postID {
			return post, true
		}
	}
	return Post{}, false
}

// Deleted reports whether the identity carries a tombstone.
func (s *Snapshot) Deleted(postID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.tombstones[postID]
	return ok
}

// Len reports the number of posts currently held.
func (s *Snapshot) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.posts)
}

func (s *Snapshot) indexOf(postID string) int {
	for i, post := range s.posts {
		if post.ID == postID {
			return i
		}
	}
	return -1
}

// insertSorted places a post at the position dictated by newest-first order.
// Ties keep the earlier arrival ahead of the later one.
func (s *Snapshot) insertSorted(post Post) {
	at := sort.Search(len(s.posts), func(i int) bool {
		return s.posts[i].PostedAt.Before(post.PostedAt)
	})
	s.posts = append(s.posts, Post{})
	copy(s.posts[at+1:], s.posts[at:])
	s.posts[at] = post
}

func (s *Snapshot) removeAt(index int) {
	s.posts = append(s.posts[:index], s.posts[index+1:]...)
}
