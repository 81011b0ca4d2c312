package engine

import (
	"context"
	"fmt"

	"github.com/harmonichat/hcsync/internal/chat"
	"github.com/harmonichat/hcsync/internal/wall"
)

// PostView is a wall post decorated with the current user's like state.
type PostView struct {
	wall.Post
	Liked       bool   `json:"liked"`
	LikePending bool   `json:"likePending"`
	LikeID      string `json:"-"`
}

// WallPosts returns the reconciled feed, newest first, with per-post like
// state folded in. The ledger's count wins over the snapshot's when a
// mutation is in flight.
func (e *Engine) WallPosts() []PostView {
	e.mu.RLock()
	snapshot, ledger := e.snapshot, e.ledger
	e.mu.RUnlock()

	posts := snapshot.Posts()
	views := make([]PostView, 0, len(posts))
	for _, post := range posts {
		view := PostView{Post: post}
		if record, ok := ledger.Get(post.ID); ok {
			view.LikeCount = record.Count
			view.Liked = record.Liked()
			view.LikePending = record.Pending
			view.LikeID = record.LikeID
		}
		views = append(views, view)
	}
	return views
}

// Comments returns a post's thread, opening it on first access: the backlog
// is fetched over REST and the per-post comment topic subscribed, so live
// comment bodies land in the thread from then on.
func (e *Engine) Comments(ctx context.Context, postID string) ([]wall.Comment, error) {
	e.mu.RLock()
	thread, opened := e.threads[postID]
	e.mu.RUnlock()
	if opened {
		return thread.Comments(), nil
	}

	fetched, err := e.backend.PostComments(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("engine: open thread %s: %w", postID, err)
	}
	if err := e.subscriber.Subscribe(topicCommentsPrefix + postID); err != nil {
		return nil, fmt.Errorf("engine: subscribe thread %s: %w", postID, err)
	}

	thread = e.thread(postID, true)
	thread.MergeFetched(fetched)
	return thread.Comments(), nil
}

// Messages returns the chat transcript, oldest first.
func (e *Engine) Messages() []chat.Message {
	e.mu.RLock()
	transcript := e.transcript
	e.mu.RUnlock()
	return transcript.Messages()
}
