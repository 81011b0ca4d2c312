package wall

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// EventKind enumerates the reconcilable event categories.
type EventKind string

const (
	// EventPostCreated carries a full publication payload.
	EventPostCreated EventKind = "post_created"
	// EventPostDeleted carries the identifier of a removed publication.
	EventPostDeleted EventKind = "post_deleted"
	// EventCommentCreated carries a full comment payload.
	EventCommentCreated EventKind = "comment_created"
	// EventCommentCountChanged carries an authoritative comment total.
	EventCommentCountChanged EventKind = "comment_count_changed"
	// EventLikeCountChanged carries an authoritative like total.
	EventLikeCountChanged EventKind = "like_count_changed"
)

var (
	// ErrUnknownTopic indicates a message arrived on a topic the wall does not reconcile.
	ErrUnknownTopic = errors.New("wall: unknown topic")
	// ErrMalformedEvent indicates an event payload could not be decoded.
	ErrMalformedEvent = errors.New("wall: malformed event payload")
)

const (
	topicPosts         = "/topic/posts"
	topicPostDeleted   = "/topic/postDeleted"
	topicCommentPrefix = "/topic/comments/"
	topicCommentCount  = "/topic/commentsCount"
	topicLikesGlobal   = "/topic/likes.global"
	topicLikesPrefix   = "/topic/likes."
)

// Event is a single reconcilable fact delivered by the broker. Exactly one
// payload field is populated, selected by Kind.
type Event struct {
	Kind    EventKind
	PostID  string
	Post    *Post
	Comment *Comment
	Count   int64
	LikeID  string
}

type counterPayload struct {
	PostID string `json:"postId"`
	Count  int64  `json:"count"`
	LikeID string `json:"likeId"`
	Liked  *bool  `json:"liked,omitempty"`
}

// DecodeEvent turns a raw broker frame into an Event. Delivery is
// at-least-once and unordered across topics; decoding performs no
// deduplication, that is the snapshot's job.
func DecodeEvent(topic string, body []byte, loc *time.Location) (Event, error) {
	switch {
	case topic == topicPosts:
		var raw BackendPost
		if err := json.Unmarshal(body, &raw); err != nil {
			return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		post := NormalizePost(raw, loc)
		if post.ID == "" {
			return Event{}, fmt.Errorf("%w: post without id", ErrMalformedEvent)
		}
		return Event{Kind: EventPostCreated, PostID: post.ID, Post: &post}, nil

	case topic == topicPostDeleted:
		// The deletion topic carries the bare identifier, optionally quoted.
		id := strings.TrimSpace(strings.Trim(strings.TrimSpace(string(body)), `"`))
		if id == "" {
			return Event{}, fmt.Errorf("%w: empty deletion id", ErrMalformedEvent)
		}
		return Event{Kind: EventPostDeleted, PostID: id}, nil

	case topic == topicCommentCount || strings.HasPrefix(topic, topicCommentCount+"/"):
		payload, err := decodeCounter(body)
		if err != nil {
			return Event{}, err
		}
		postID := payload.PostID
		if postID == "" {
			postID = strings.TrimPrefix(topic, topicCommentCount+"/")
		}
		if postID == "" || postID == topic {
			return Event{}, fmt.Errorf("%w: comment count without post id", ErrMalformedEvent)
		}
		return Event{Kind: EventCommentCountChanged, PostID: postID, Count: payload.Count}, nil

	case strings.HasPrefix(topic, topicCommentPrefix):
		var raw BackendComment
		if err := json.Unmarshal(body, &raw); err != nil {
			return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		comment := NormalizeComment(raw, loc)
		if comment.PostID == "" {
			comment.PostID = strings.TrimPrefix(topic, topicCommentPrefix)
		}
		if comment.ID == "" {
			return Event{}, fmt.Errorf("%w: comment without id", ErrMalformedEvent)
		}
		return Event{Kind: EventCommentCreated, PostID: comment.PostID, Comment: &comment}, nil

	case topic == topicLikesGlobal:
		payload, err := decodeCounter(body)
		if err != nil {
			return Event{}, err
		}
		if payload.PostID == "" {
			return Event{}, fmt.Errorf("%w: like update without post id", ErrMalformedEvent)
		}
		return Event{Kind: EventLikeCountChanged, PostID: payload.PostID, Count: payload.Count, LikeID: payload.LikeID}, nil

	case strings.HasPrefix(topic, topicLikesPrefix):
		payload, err := decodeCounter(body)
		if err != nil {
			return Event{}, err
		}
		postID := payload.PostID
		if postID == "" {
			postID = strings.TrimPrefix(topic, topicLikesPrefix)
		}
		return Event{Kind: EventLikeCountChanged, PostID: postID, Count: payload.Count, LikeID: payload.LikeID}, nil
	}

	return Event{}, fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
}

func decodeCounter(body []byte) (counterPayload, error) {
	var payload counterPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return counterPayload{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if payload.Count < 0 {
		return counterPayload{}, fmt.Errorf("%w: negative count", ErrMalformedEvent)
	}
	return payload, nil
}
