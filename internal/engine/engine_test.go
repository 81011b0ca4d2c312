package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/harmonichat/hcsync/internal/auth"
	"github.com/harmonichat/hcsync/internal/chat"
	"github.com/harmonichat/hcsync/internal/loader"
	"github.com/harmonichat/hcsync/internal/wall"
)

type stubBackend struct {
	mu sync.Mutex

	userPosts   []wall.Post
	familyPosts []wall.Post
	likes       map[string]string
	comments    []wall.Comment
	history     []chat.Message

	likeErr    error
	commentErr error

	nextLikeID string
}

func (s *stubBackend) UserPublications(_ context.Context, _ string) ([]wall.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userPosts, nil
}

func (s *stubBackend) FamilyPublications(_ context.Context, _ string) ([]wall.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.familyPosts, nil
}

func (s *stubBackend) UserLike(_ context.Context, _ string, postID string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	likeID, ok := s.likes[postID]
	return likeID, ok, nil
}

func (s *stubBackend) LikePost(_ context.Context, _ string, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.likeErr != nil {
		return "", s.likeErr
	}
	return s.nextLikeID, nil
}

func (s *stubBackend) UnlikePost(_ context.Context, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.likeErr
}

func (s *stubBackend) SendComment(_ context.Context, postID, userID, content string) (wall.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.commentErr != nil {
		return wall.Comment{}, s.commentErr
	}
	return wall.Comment{ID: "c-new", PostID: postID, AuthorID: userID, Content: content}, nil
}

func (s *stubBackend) DeleteComment(_ context.Context, _ string) error      { return nil }
func (s *stubBackend) DeletePublication(_ context.Context, _ string) error { return nil }

func (s *stubBackend) PostComments(_ context.Context, _ string) ([]wall.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.comments, nil
}

func (s *stubBackend) ChatHistory(_ context.Context, _ string) ([]chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history, nil
}

func (s *stubBackend) SendChatMessage(_ context.Context, userID, _ string, content string, messageType chat.MessageType, _ []byte, _ string) (chat.Message, error) {
	return chat.Message{ID: "m-new", AuthorID: userID, Content: content, Type: messageType, SentAt: time.Now()}, nil
}

func (s *stubBackend) MarkChatAsRead(_ context.Context, _ string, _ string) error { return nil }

type stubSubscriber struct {
	mu             sync.Mutex
	topics         []string
	unsubscribeAll int
}

func (s *stubSubscriber) Subscribe(topic string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.topics = append(s.topics, topic)
	return nil
}

func (s *stubSubscriber) UnsubscribeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unsubscribeAll++
	s.topics = nil
}

func (s *stubSubscriber) hasTopic(topic string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.topics {
		if existing == topic {
			return true
		}
	}
	return false
}

func testPost(id string, postedAt string, likes int64) wall.Post {
	parsed, _ := time.Parse(time.RFC3339, postedAt)
	return wall.Post{ID: id, AuthorID: "u1", Content: "hola", PostedAt: parsed, LikeCount: likes}
}

func newTestEngine(t *testing.T, backend *stubBackend, subscriber *stubSubscriber) *Engine {
	t.Helper()
	feedLoader, err := loader.NewLoader(loader.LoaderConfig{Backend: backend})
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	eng, err := New(Config{
		Backend:    backend,
		Loader:     feedLoader,
		Subscriber: subscriber,
		Identity:   auth.Identity{UserID: "u1", FamilyID: "fam-1"},
		Location:   time.UTC,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return eng
}

func TestReloadSeedsWallAndLikes(t *testing.T) {
	backend := &stubBackend{
		familyPosts: []wall.Post{testPost("p1", "2024-01-02T10:00:00Z", 3)},
		userPosts:   []wall.Post{testPost("p2", "2024-01-01T10:00:00Z", 0)},
		likes:       map[string]string{"p1": "like-1"},
	}
	eng := newTestEngine(t, backend, &stubSubscriber{})

	if err := eng.reload(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}

	views := eng.WallPosts()
	if len(views) != 2 {
		t.Fatalf("expected 2 posts, got %d", len(views))
	}
	if views[0].ID != "p1" {
		t.Fatalf("expected newest first, got %s", views[0].ID)
	}
	if !views[0].Liked || views[0].LikePending {
		t.Fatalf("p1 like state wrong: %+v", views[0])
	}
	if views[1].Liked {
		t.Fatalf("p2 should not be liked")
	}
}

func TestEventBeforeFetchSurvivesMerge(t *testing.T) {
	backend := &stubBackend{
		familyPosts: []wall.Post{testPost("p1", "2024-01-01T10:00:00Z", 0)},
	}
	eng := newTestEngine(t, backend, &stubSubscriber{})

	// The live event lands before the fetch resolves.
	eng.applyFrame(context.Background(), inboundFrame{
		topic: topicPosts,
		body:  []byte(`{"id":"p1","userId":"u1","content":"hola","rawDate":"2024-01-01T10:00:00Z","likes":5}`),
	})

	if err := eng.reload(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}

	views := eng.WallPosts()
	if len(views) != 1 {
		t.Fatalf("fetch must not duplicate the event-applied post, got %d", len(views))
	}
	if views[0].LikeCount != 0 {
		// The like seed for p1 carries the fetched count (0 in the stub's
		// payload), which is authoritative over the event's 5.
		t.Fatalf("like seed should win, got %d", views[0].LikeCount)
	}
}

func TestLikeFailureRestoresExactCount(t *testing.T) {
	backend := &stubBackend{
		familyPosts: []wall.Post{testPost("p1", "2024-01-01T10:00:00Z", 9)},
	}
	eng := newTestEngine(t, backend, &stubSubscriber{})
	if err := eng.reload(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}

	backend.mu.Lock()
	backend.likeErr = errors.New("backend down")
	backend.mu.Unlock()

	if err := eng.Like(context.Background(), "p1"); err == nil {
		t.Fatalf("expected like to fail")
	}

	views := eng.WallPosts()
	if views[0].LikeCount != 9 {
		t.Fatalf("count %d, want exactly 9 restored", views[0].LikeCount)
	}
	if views[0].Liked {
		t.Fatalf("rollback must clear the speculative marker")
	}
}

func TestLikeSuccessConfirmsInPlace(t *testing.T) {
	backend := &stubBackend{
		familyPosts: []wall.Post{testPost("p1", "2024-01-01T10:00:00Z", 2)},
		nextLikeID:  "like-42",
	}
	eng := newTestEngine(t, backend, &stubSubscriber{})
	if err := eng.reload(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}

	if err := eng.Like(context.Background(), "p1"); err != nil {
		t.Fatalf("Like: %v", err)
	}

	views := eng.WallPosts()
	if views[0].LikeCount != 3 || !views[0].Liked || views[0].LikePending {
		t.Fatalf("unexpected like state: %+v", views[0])
	}
	if wall.IsSentinel(views[0].LikeID) {
		t.Fatalf("sentinel should be replaced by server id, got %q", views[0].LikeID)
	}
}

func TestAddCommentFailureRollsBackCounter(t *testing.T) {
	backend := &stubBackend{
		familyPosts: []wall.Post{testPost("p1", "2024-01-01T10:00:00Z", 0)},
		commentErr:  errors.New("backend down"),
	}
	eng := newTestEngine(t, backend, &stubSubscriber{})
	if err := eng.reload(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}

	if _, err := eng.AddComment(context.Background(), "p1", "hola"); err == nil {
		t.Fatalf("expected comment to fail")
	}

	views := eng.WallPosts()
	if views[0].CommentCount != 0 {
		t.Fatalf("comment count %d, want 0 restored", views[0].CommentCount)
	}
}

func TestRescopeDropsOldStateAndResubscribes(t *testing.T) {
	backend := &stubBackend{
		familyPosts: []wall.Post{testPost("p1", "2024-01-01T10:00:00Z", 0)},
	}
	subscriber := &stubSubscriber{}
	eng := newTestEngine(t, backend, subscriber)
	if err := eng.subscribeTopics(); err != nil {
		t.Fatalf("subscribeTopics: %v", err)
	}
	if err := eng.reload(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}

	backend.mu.Lock()
	backend.familyPosts = []wall.Post{testPost("p9", "2024-02-01T10:00:00Z", 0)}
	backend.mu.Unlock()

	if err := eng.Rescope(context.Background(), auth.Identity{UserID: "u2", FamilyID: "fam-2"}); err != nil {
		t.Fatalf("Rescope: %v", err)
	}

	if subscriber.unsubscribeAll != 1 {
		t.Fatalf("expected one full unsubscribe, got %d", subscriber.unsubscribeAll)
	}
	if !subscriber.hasTopic(topicFamilyPrefix + "fam-2") {
		t.Fatalf("new family topic not subscribed")
	}
	views := eng.WallPosts()
	if len(views) != 1 || views[0].ID != "p9" {
		t.Fatalf("old scope leaked into new wall: %+v", views)
	}
}

func TestCommentsOpensThreadAndSubscribes(t *testing.T) {
	backend := &stubBackend{
		comments: []wall.Comment{{ID: "c1", PostID: "p1", AuthorID: "u2", Content: "hola"}},
	}
	subscriber := &stubSubscriber{}
	eng := newTestEngine(t, backend, subscriber)

	comments, err := eng.Comments(context.Background(), "p1")
	if err != nil {
		t.Fatalf("Comments: %v", err)
	}
	if len(comments) != 1 || comments[0].ID != "c1" {
		t.Fatalf("unexpected thread: %+v", comments)
	}
	if !subscriber.hasTopic(topicCommentsPrefix + "p1") {
		t.Fatalf("thread topic not subscribed")
	}

	// Live comment lands in the open thread.
	eng.applyFrame(context.Background(), inboundFrame{
		topic: topicCommentsPrefix + "p1",
		body:  []byte(`{"id":"c2","content":"nuevo","userId":"u3","creationDate":"2024-01-01T10:00:00Z"}`),
	})
	comments, err = eng.Comments(context.Background(), "p1")
	if err != nil {
		t.Fatalf("Comments: %v", err)
	}
	if len(comments) != 2 {
		t.Fatalf("live comment not inserted, got %d", len(comments))
	}
}

func TestLikeCountAfterDeleteStaysForgotten(t *testing.T) {
	backend := &stubBackend{
		familyPosts: []wall.Post{testPost("p1", "2024-01-01T10:00:00Z", 2)},
	}
	eng := newTestEngine(t, backend, &stubSubscriber{})
	if err := eng.reload(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}

	eng.applyFrame(context.Background(), inboundFrame{topic: topicPostDeleted, body: []byte(`"p1"`)})
	// A stale count replayed after the deletion must not resurrect anything.
	eng.applyFrame(context.Background(), inboundFrame{topic: topicLikesGlobal, body: []byte(`{"postId":"p1","count":7}`)})

	if _, ok := eng.ledger.Get("p1"); ok {
		t.Fatalf("ledger record recreated for a deleted post")
	}
	if len(eng.WallPosts()) != 0 {
		t.Fatalf("deleted post still on the wall")
	}
}

func TestMalformedFrameIsSkipped(t *testing.T) {
	eng := newTestEngine(t, &stubBackend{}, &stubSubscriber{})
	eng.applyFrame(context.Background(), inboundFrame{topic: topicPosts, body: []byte(`{not json`)})
	eng.applyFrame(context.Background(), inboundFrame{topic: "/topic/unrelated", body: []byte(`{}`)})
	if len(eng.WallPosts()) != 0 {
		t.Fatalf("malformed frames must not mutate state")
	}
}
