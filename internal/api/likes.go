package api

import (
	"context"
	"fmt"
	"strings"
)

const (
	opLikePost   = "create like"
	opUnlikePost = "remove like"
	opUserLike   = "fetch user like"
	opLikeCount  = "fetch like count"
)

type likeRequest struct {
	PostID string `json:"postId"`
	UserID string `json:"userId"`
}

type likeResponse struct {
	ID     string `json:"id"`
	PostID string `json:"postId"`
	UserID string `json:"userId"`
}

// LikePost records a like for the user on the post and returns the
// server-issued like identifier.
func (c *Client) LikePost(ctx context.Context, postID, userID string) (string, error) {
	var created likeResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(likeRequest{PostID: postID, UserID: userID}).
		SetResult(&created).
		Post("/likes/like")
	if err != nil {
		return "", fmt.Errorf("api: %s: %w", opLikePost, err)
	}
	if resp.IsError() {
		return "", statusError(opLikePost, resp)
	}
	likeID := strings.TrimSpace(created.ID)
	if likeID == "" {
		return "", fmt.Errorf("api: %s: response carried no like id", opLikePost)
	}
	return likeID, nil
}

// UnlikePost removes a like by its server-issued identifier.
func (c *Client) UnlikePost(ctx context.Context, likeID string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		Delete("/likes/unlike/" + likeID)
	if err != nil {
		return fmt.Errorf("api: %s: %w", opUnlikePost, err)
	}
	if resp.IsError() {
		return statusError(opUnlikePost, resp)
	}
	return nil
}

// UserLike reports whether the user holds a like on the post and, if so, its
// identifier. A 404 means no like exists.
func (c *Client) UserLike(ctx context.Context, userID, postID string) (string, bool, error) {
	var existing likeResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"userId": userID, "postId": postID}).
		SetResult(&existing).
		Get("/likes/by-user")
	if err != nil {
		return "", false, fmt.Errorf("api: %s: %w", opUserLike, err)
	}
	if resp.StatusCode() == 404 {
		return "", false, nil
	}
	if resp.IsError() {
		return "", false, statusError(opUserLike, resp)
	}
	likeID := strings.TrimSpace(existing.ID)
	return likeID, likeID != "", nil
}

// LikeCount fetches the authoritative like total for a post. The endpoint
// returns a bare number.
func (c *Client) LikeCount(ctx context.Context, postID string) (int64, error) {
	return c.fetchCount(ctx, opLikeCount, "/likes/post/"+postID+"/count")
}
