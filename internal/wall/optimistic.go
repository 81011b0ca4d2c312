package wall

import (
	"errors"
	"strings"
	"sync"
)

const sentinelLikePrefix = "temp-like-"

var (
	// ErrAlreadyLiked indicates the current user already holds a like on the post.
	ErrAlreadyLiked = errors.New("wall: post already liked")
	// ErrNotLiked indicates the current user holds no like to remove.
	ErrNotLiked = errors.New("wall: post not liked")
	// ErrLikePending indicates a mutation is already in flight for the post.
	ErrLikePending = errors.New("wall: like mutation pending")
)

// LikeRecord is the atomic (counter, marker) pair tracked per post for the
// current user. Count and LikeID always change together through the ledger's
// transitions, so they can never disagree.
type LikeRecord struct {
	// Count is the post's like total as last seen or speculated.
	Count int64
	// LikeID is the current user's like identifier, empty when not liked.
	// While Pending it holds a locally-issued sentinel, never a server id.
	LikeID string
	// Pending marks LikeID as unconfirmed.
	Pending bool
}

// Liked reports whether the current user holds a like, confirmed or not.
func (r LikeRecord) Liked() bool {
	return r.LikeID != ""
}

// LikeMutation captures one speculative transition and the exact state to
// restore if the backing request fails.
type LikeMutation struct {
	PostID     string
	SentinelID string
	Previous   LikeRecord
}

// LikeLedger tracks per-post like state for the current user and performs the
// optimistic-mutation bookkeeping: speculative apply, in-place confirmation,
// and exact rollback. It holds at most one record per post identity.
type LikeLedger struct {
	mu      sync.Mutex
	records map[string]LikeRecord
	ids     IDProvider
}

// NewLikeLedger returns an empty ledger. A nil provider falls back to UUIDs.
func NewLikeLedger(ids IDProvider) *LikeLedger {
	if ids == nil {
		ids = NewUUIDProvider()
	}
	return &LikeLedger{
		records: make(map[string]LikeRecord),
		ids:     ids,
	}
}

// Seed installs the authoritative fetch result for a post: its like total and
// the current user's like identifier, if any. Seeding never downgrades a
// record that already has a mutation in flight.
func (l *LikeLedger) Seed(postID string, count int64, likeID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if existing, ok := l.records[postID]; ok && existing.Pending {
		return
	}
	l.records[postID] = LikeRecord{Count: count, LikeID: strings.TrimSpace(likeID)}
}

// Get returns the record for a post, if one exists.
func (l *LikeLedger) Get(postID string) (LikeRecord, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	record, ok := l.records[postID]
	return record, ok
}

// BeginLike applies the speculative like: the counter increments and the
// marker becomes a sentinel identifier distinct from any server-issued id.
// The returned mutation carries the pre-mutation record for rollback.
func (l *LikeLedger) BeginLike(postID string) (LikeMutation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	previous := l.records[postID]
	if previous.Pending {
		return LikeMutation{}, ErrLikePending
	}
	if previous.LikeID != "" {
		return LikeMutation{}, ErrAlreadyLiked
	}

	suffix, err := l.ids.NewID()
	if err != nil {
		return LikeMutation{}, err
	}
	sentinel := sentinelLikePrefix + suffix

	l.records[postID] = LikeRecord{
		Count:   previous.Count + 1,
		LikeID:  sentinel,
		Pending: true,
	}
	return LikeMutation{PostID: postID, SentinelID: sentinel, Previous: previous}, nil
}

// BeginUnlike applies the speculative unlike: the counter decrements (never
// below zero) and the marker clears. The mutation's Previous.LikeID is the
// server-issued identifier the caller must delete.
func (l *LikeLedger) BeginUnlike(postID string) (LikeMutation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	previous, ok := l.records[postID]
	if !ok || previous.LikeID == "" {
		return LikeMutation{}, ErrNotLiked
	}
	if previous.Pending {
		return LikeMutation{}, ErrLikePending
	}

	next := LikeRecord{Count: previous.Count - 1}
	if next.Count < 0 {
		next.Count = 0
	}
	l.records[postID] = next
	return LikeMutation{PostID: postID, Previous: previous}, nil
}

// Confirm replaces the sentinel with the authoritative identifier once the
// backing request succeeds. Confirming a record that is no longer pending is
// a no-op: the broker's own confirmation event may have already settled the
// state, and reconciliation is by identity of effect, not sentinel text.
func (l *LikeLedger) Confirm(postID, authoritativeID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	record, ok := l.records[postID]
	if !ok || !record.Pending {
		return
	}
	record.LikeID = strings.TrimSpace(authoritativeID)
	record.Pending = false
	l.records[postID] = record
}

// Fail rolls the record back to the exact pre-mutation state captured when
// the speculative change was applied.
func (l *LikeLedger) Fail(mutation LikeMutation) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records[mutation.PostID] = mutation.Previous
}

// ApplyCount folds an authoritative counter event into the record without
// touching the marker. Last write wins: the source events carry no sequence
// number to order them by.
func (l *LikeLedger) ApplyCount(postID string, count int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	record := l.records[postID]
	record.Count = count
	l.records[postID] = record
}

// Forget drops the record for a deleted post.
func (l *LikeLedger) Forget(postID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.records, postID)
}

// IsSentinel reports whether an identifier was locally issued by a ledger.
func IsSentinel(id string) bool {
	return strings.HasPrefix(id, sentinelLikePrefix)
}
