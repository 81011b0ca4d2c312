package wall

import (
	"sort"
	"sync"
)

// Thread is the reconciled comment collection for a single post, newest
// first. Inserts are idempotent by comment identity and deletes are sticky,
// mirroring the snapshot's merge rules.
type Thread struct {
	mu         sync.RWMutex
	postID     string
	comments   []Comment
	tombstones map[string]struct{}
}

// NewThread returns an empty thread scoped to one post.
func NewThread(postID string) *Thread {
	return &Thread{
		postID:     postID,
		tombstones: make(map[string]struct{}),
	}
}

// PostID returns the identity this thread is scoped to.
func (t *Thread) PostID() string {
	return t.postID
}

// Comments returns a copy of the reconciled thread, newest first.
func (t *Thread) Comments() []Comment {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Comment, len(t.comments))
	copy(out, t.comments)
	return out
}

// Len reports the number of comments currently held.
func (t *Thread) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.comments)
}

// Insert adds a comment unless its identity is already present or deleted.
func (t *Thread) Insert(comment Comment) bool {
	if comment.ID == "" {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, deleted := t.tombstones[comment.ID]; deleted {
		return false
	}
	for _, existing := range t.comments {
		if existing.ID == comment.ID {
			return false
		}
	}
	at := sort.Search(len(t.comments), func(i int) bool {
		return t.comments[i].CreatedAt.Before(comment.CreatedAt)
	})
	t.comments = append(t.comments, Comment{})
	copy(t.comments[at+1:], t.comments[at:])
	t.comments[at] = comment
	return true
}

// Remove deletes a comment by identity. Removing an absent comment is not an
// error; the deletion still sticks so a stale replay cannot resurrect it.
func (t *Thread) Remove(commentID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tombstones[commentID] = struct{}{}
	for i, existing := range t.comments {
		if existing.ID == commentID {
			t.comments = append(t.comments[:i], t.comments[i+1:]...)
			return true
		}
	}
	return false
}

// MergeFetched folds an authoritative comment fetch into the thread, keeping
// entries applied from live events and skipping tombstoned identities.
func (t *Thread) MergeFetched(fetched []Comment) {
	for _, comment := range fetched {
		t.Insert(comment)
	}
}
