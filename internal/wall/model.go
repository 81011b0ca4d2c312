package wall

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const maxIdentifierLength = 190

var (
	// ErrInvalidPostID indicates that a post identifier is empty or exceeds storage bounds.
	ErrInvalidPostID = errors.New("wall: invalid post id")
	// ErrInvalidUserID indicates that a user identifier is empty or exceeds storage bounds.
	ErrInvalidUserID = errors.New("wall: invalid user id")
	// ErrInvalidFamilyID indicates that a family identifier is empty or exceeds storage bounds.
	ErrInvalidFamilyID = errors.New("wall: invalid family id")
)

// PostID represents a validated post identifier.
type PostID string

// NewPostID validates raw input and returns a PostID.
func NewPostID(rawInput string) (PostID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidPostID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidPostID, maxIdentifierLength)
	}
	return PostID(trimmed), nil
}

// String returns the underlying string identifier.
func (id PostID) String() string {
	return string(id)
}

// UserID represents a validated user identifier.
type UserID string

// NewUserID validates raw input and returns a UserID.
func NewUserID(rawInput string) (UserID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidUserID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidUserID, maxIdentifierLength)
	}
	return UserID(trimmed), nil
}

// String returns the underlying string identifier.
func (id UserID) String() string {
	return string(id)
}

// FamilyID represents a validated family identifier.
type FamilyID string

// NewFamilyID validates raw input and returns a FamilyID.
func NewFamilyID(rawInput string) (FamilyID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidFamilyID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidFamilyID, maxIdentifierLength)
	}
	return FamilyID(trimmed), nil
}

// String returns the underlying string identifier.
func (id FamilyID) String() string {
	return string(id)
}

// TaggedUser identifies a family member tagged on a post.
type TaggedUser struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Post is the canonical publication shape every backend payload is coerced
// into before entering a snapshot.
type Post struct {
	ID           string       `json:"id"`
	AuthorID     string       `json:"userId"`
	AuthorName   string       `json:"authorName"`
	Content      string       `json:"content"`
	FilesURL     string       `json:"filesURL"`
	Location     string       `json:"location,omitempty"`
	Tags         []TaggedUser `json:"tags,omitempty"`
	LikeCount    int64        `json:"likes"`
	CommentCount int64        `json:"comments"`
	PostedAt     time.Time    `json:"postedAt"`
	RawDate      string       `json:"date"`
}

// Comment is the canonical comment shape.
type Comment struct {
	ID        string    `json:"id"`
	PostID    string    `json:"postId"`
	AuthorID  string    `json:"userId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}
