package api

import (
	"context"
	"fmt"

	"github.com/harmonichat/hcsync/internal/wall"
)

const (
	opPostComments  = "fetch post comments"
	opSendComment   = "send comment"
	opDeleteComment = "delete comment"
	opCommentCount  = "fetch comment count"
)

type commentRequest struct {
	Content string `json:"content"`
	PostID  string `json:"postId"`
	UserID  string `json:"userId"`
}

// PostComments fetches the comment thread for a post.
func (c *Client) PostComments(ctx context.Context, postID string) ([]wall.Comment, error) {
	var raw []wall.BackendComment
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&raw).
		Get("/comments/post/" + postID)
	if err != nil {
		return nil, fmt.Errorf("api: %s: %w", opPostComments, err)
	}
	if resp.IsError() {
		return nil, statusError(opPostComments, resp)
	}

	comments := make([]wall.Comment, 0, len(raw))
	for _, entry := range raw {
		comment := wall.NormalizeComment(entry, c.loc)
		if comment.PostID == "" {
			comment.PostID = postID
		}
		comments = append(comments, comment)
	}
	return comments, nil
}

// SendComment publishes a comment and returns the stored record.
func (c *Client) SendComment(ctx context.Context, postID, userID, content string) (wall.Comment, error) {
	var created wall.BackendComment
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(commentRequest{Content: content, PostID: postID, UserID: userID}).
		SetResult(&created).
		Post("/comments/send")
	if err != nil {
		return wall.Comment{}, fmt.Errorf("api: %s: %w", opSendComment, err)
	}
	if resp.IsError() {
		return wall.Comment{}, statusError(opSendComment, resp)
	}

	comment := wall.NormalizeComment(created, c.loc)
	if comment.ID == "" {
		return wall.Comment{}, fmt.Errorf("api: %s: response carried no comment id", opSendComment)
	}
	if comment.PostID == "" {
		comment.PostID = postID
	}
	return comment, nil
}

// DeleteComment removes a comment by identifier.
func (c *Client) DeleteComment(ctx context.Context, commentID string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		Delete("/comments/delete/" + commentID)
	if err != nil {
		return fmt.Errorf("api: %s: %w", opDeleteComment, err)
	}
	if resp.IsError() {
		return statusError(opDeleteComment, resp)
	}
	return nil
}

// CommentCount fetches the authoritative comment total for a post. The
// endpoint returns a bare number.
func (c *Client) CommentCount(ctx context.Context, postID string) (int64, error) {
	return c.fetchCount(ctx, opCommentCount, "/comments/count/"+postID)
}
