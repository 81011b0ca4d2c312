package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/harmonichat/hcsync/internal/chat"
	"github.com/harmonichat/hcsync/internal/wall"
)

// Like applies the speculative like, then confirms or rolls back against the
// backend. The wall reflects the speculative count immediately; a failure
// restores the exact pre-mutation state.
func (e *Engine) Like(ctx context.Context, postID string) error {
	e.mu.RLock()
	identity := e.identity
	snapshot, ledger := e.snapshot, e.ledger
	e.mu.RUnlock()

	mutation, err := ledger.BeginLike(postID)
	if err != nil {
		return err
	}
	record, _ := ledger.Get(postID)
	snapshot.Apply(wall.Event{Kind: wall.EventLikeCountChanged, PostID: postID, Count: record.Count})
	e.markDirty()
	e.notify(ScopeWall)

	likeID, err := e.backend.LikePost(ctx, postID, identity.UserID)
	if err != nil {
		ledger.Fail(mutation)
		snapshot.Apply(wall.Event{Kind: wall.EventLikeCountChanged, PostID: postID, Count: mutation.Previous.Count})
		e.markDirty()
		e.notify(ScopeWall)
		return fmt.Errorf("engine: like %s: %w", postID, err)
	}

	ledger.Confirm(postID, likeID)
	e.logger.Debug("like confirmed", zap.String("postId", postID), zap.String("likeId", likeID))
	return nil
}

// Unlike removes the current user's like with the same speculative shape.
func (e *Engine) Unlike(ctx context.Context, postID string) error {
	e.mu.RLock()
	snapshot, ledger := e.snapshot, e.ledger
	e.mu.RUnlock()

	mutation, err := ledger.BeginUnlike(postID)
	if err != nil {
		return err
	}
	record, _ := ledger.Get(postID)
	snapshot.Apply(wall.Event{Kind: wall.EventLikeCountChanged, PostID: postID, Count: record.Count})
	e.markDirty()
	e.notify(ScopeWall)

	if err := e.backend.UnlikePost(ctx, mutation.Previous.LikeID); err != nil {
		ledger.Fail(mutation)
		snapshot.Apply(wall.Event{Kind: wall.EventLikeCountChanged, PostID: postID, Count: mutation.Previous.Count})
		e.markDirty()
		e.notify(ScopeWall)
		return fmt.Errorf("engine: unlike %s: %w", postID, err)
	}
	return nil
}

// AddComment bumps the post's comment counter speculatively, sends the
// comment, and folds the stored record into the thread. A failure rolls the
// counter back by the same delta.
func (e *Engine) AddComment(ctx context.Context, postID, content string) (wall.Comment, error) {
	e.mu.RLock()
	identity := e.identity
	snapshot := e.snapshot
	e.mu.RUnlock()

	snapshot.AdjustCommentCount(postID, 1)
	e.markDirty()
	e.notify(ScopeWall)

	comment, err := e.backend.SendComment(ctx, postID, identity.UserID, content)
	if err != nil {
		snapshot.AdjustCommentCount(postID, -1)
		e.markDirty()
		e.notify(ScopeWall)
		return wall.Comment{}, fmt.Errorf("engine: comment on %s: %w", postID, err)
	}

	if thread := e.thread(postID, false); thread != nil {
		if thread.Insert(comment) {
			e.notify(ScopeComments(postID))
		}
	}
	return comment, nil
}

// RemoveComment deletes a comment after backend confirmation, then removes
// it from the thread and decrements the counter.
func (e *Engine) RemoveComment(ctx context.Context, postID, commentID string) error {
	if err := e.backend.DeleteComment(ctx, commentID); err != nil {
		return fmt.Errorf("engine: delete comment %s: %w", commentID, err)
	}

	e.mu.RLock()
	snapshot := e.snapshot
	e.mu.RUnlock()

	if thread := e.thread(postID, false); thread != nil {
		if thread.Remove(commentID) {
			e.notify(ScopeComments(postID))
		}
	}
	snapshot.AdjustCommentCount(postID, -1)
	e.markDirty()
	e.notify(ScopeWall)
	return nil
}

// RemovePost deletes a post after backend confirmation. The local tombstone
// is applied immediately; the broker's own postDeleted event is then a
// no-op replay.
func (e *Engine) RemovePost(ctx context.Context, postID string) error {
	if err := e.backend.DeletePublication(ctx, postID); err != nil {
		return fmt.Errorf("engine: delete post %s: %w", postID, err)
	}

	e.mu.RLock()
	snapshot, ledger := e.snapshot, e.ledger
	e.mu.RUnlock()

	if snapshot.Apply(wall.Event{Kind: wall.EventPostDeleted, PostID: postID}) {
		ledger.Forget(postID)
		e.dropThread(postID)
		e.markDirty()
		e.notify(ScopeWall)
	}
	return nil
}

// SendMessage publishes a chat message and inserts the stored record; the
// broker's echo of the same message dedupes by identity.
func (e *Engine) SendMessage(ctx context.Context, content string, messageType chat.MessageType, file []byte, fileName string) (chat.Message, error) {
	e.mu.RLock()
	identity := e.identity
	transcript := e.transcript
	e.mu.RUnlock()

	message, err := e.backend.SendChatMessage(ctx, identity.UserID, identity.FamilyID, content, messageType, file, fileName)
	if err != nil {
		return chat.Message{}, fmt.Errorf("engine: send message: %w", err)
	}
	if transcript.Insert(message) {
		e.markDirty()
		e.notify(ScopeChat)
	}
	return message, nil
}

// MarkChatRead flags the family transcript read for the current user.
func (e *Engine) MarkChatRead(ctx context.Context) error {
	e.mu.RLock()
	identity := e.identity
	e.mu.RUnlock()
	if err := e.backend.MarkChatAsRead(ctx, identity.FamilyID, identity.UserID); err != nil {
		return fmt.Errorf("engine: mark chat read: %w", err)
	}
	return nil
}
