package wall

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

type sequenceIDProvider struct {
	next int
}

func (p *sequenceIDProvider) NewID() (string, error) {
	p.next++
	return fmt.Sprintf("seq-%d", p.next), nil
}

func TestBeginLikeAppliesSpeculativeState(t *testing.T) {
	ledger := NewLikeLedger(&sequenceIDProvider{})
	ledger.Seed("post-1", 3, "")

	mutation, err := ledger.BeginLike("post-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !IsSentinel(mutation.SentinelID) {
		t.Fatalf("sentinel id %q should carry the temp prefix", mutation.SentinelID)
	}

	record, ok := ledger.Get("post-1")
	if !ok {
		t.Fatalf("record missing after begin")
	}
	if record.Count != 4 || !record.Pending || record.LikeID != mutation.SentinelID {
		t.Fatalf("unexpected speculative record: %+v", record)
	}
	if mutation.Previous.Count != 3 || mutation.Previous.LikeID != "" {
		t.Fatalf("mutation should capture pre-mutation state, got %+v", mutation.Previous)
	}
}

func TestFailRollsBackToExactPreMutationState(t *testing.T) {
	ledger := NewLikeLedger(nil)
	ledger.Seed("post-1", 9, "")

	mutation, err := ledger.BeginLike("post-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ledger.Fail(mutation)

	record, _ := ledger.Get("post-1")
	if record.Count != 9 {
		t.Fatalf("rollback must restore counter 9, got %d", record.Count)
	}
	if record.LikeID != "" || record.Pending {
		t.Fatalf("rollback must remove the speculative marker, got %+v", record)
	}
}

func TestConfirmReplacesSentinelInPlace(t *testing.T) {
	ledger := NewLikeLedger(nil)
	ledger.Seed("post-1", 0, "")

	mutation, err := ledger.BeginLike("post-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ledger.Confirm("post-1", "like-42")

	record, _ := ledger.Get("post-1")
	if record.Pending {
		t.Fatalf("record should no longer be pending")
	}
	if record.LikeID != "like-42" {
		t.Fatalf("expected authoritative id, got %q", record.LikeID)
	}
	if strings.HasPrefix(record.LikeID, sentinelLikePrefix) {
		t.Fatalf("sentinel leaked into confirmed state")
	}
	_ = mutation
}

func TestConfirmAfterEventSettledIsNoOp(t *testing.T) {
	ledger := NewLikeLedger(nil)
	ledger.Seed("post-1", 2, "")

	mutation, err := ledger.BeginLike("post-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Broker confirmation wins the race: the counter event lands first with
	// the authoritative total, then the request response confirms.
	ledger.ApplyCount("post-1", 3)
	ledger.Confirm("post-1", "like-7")

	record, _ := ledger.Get("post-1")
	if record.Count != 3 {
		t.Fatalf("counter should hold the event value 3, got %d", record.Count)
	}
	if record.LikeID != "like-7" || record.Pending {
		t.Fatalf("exactly one settled entry expected, got %+v", record)
	}
	_ = mutation
}

func TestBeginLikeRejectsDoubleLike(t *testing.T) {
	ledger := NewLikeLedger(nil)
	ledger.Seed("post-1", 1, "like-1")

	if _, err := ledger.BeginLike("post-1"); !errors.Is(err, ErrAlreadyLiked) {
		t.Fatalf("expected ErrAlreadyLiked, got %v", err)
	}
}

func TestBeginLikeRejectsWhilePending(t *testing.T) {
	ledger := NewLikeLedger(nil)
	if _, err := ledger.BeginLike("post-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := ledger.BeginLike("post-1"); !errors.Is(err, ErrLikePending) {
		t.Fatalf("expected ErrLikePending, got %v", err)
	}
}

func TestUnlikeFlow(t *testing.T) {
	ledger := NewLikeLedger(nil)
	ledger.Seed("post-1", 5, "like-9")

	mutation, err := ledger.BeginUnlike("post-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mutation.Previous.LikeID != "like-9" {
		t.Fatalf("caller needs the server id to delete, got %q", mutation.Previous.LikeID)
	}

	record, _ := ledger.Get("post-1")
	if record.Count != 4 || record.LikeID != "" {
		t.Fatalf("unexpected speculative unlike record: %+v", record)
	}

	ledger.Fail(mutation)
	record, _ = ledger.Get("post-1")
	if record.Count != 5 || record.LikeID != "like-9" {
		t.Fatalf("rollback must restore the like, got %+v", record)
	}
}

func TestBeginUnlikeWithoutLike(t *testing.T) {
	ledger := NewLikeLedger(nil)
	ledger.Seed("post-1", 5, "")
	if _, err := ledger.BeginUnlike("post-1"); !errors.Is(err, ErrNotLiked) {
		t.Fatalf("expected ErrNotLiked, got %v", err)
	}
}

func TestSeedDoesNotDowngradePendingRecord(t *testing.T) {
	ledger := NewLikeLedger(nil)
	if _, err := ledger.BeginLike("post-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ledger.Seed("post-1", 0, "")

	record, _ := ledger.Get("post-1")
	if !record.Pending {
		t.Fatalf("seed must not clobber an in-flight mutation")
	}
}
