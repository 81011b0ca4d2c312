package wall

import (
	"strings"
	"time"
)

// BackendPost mirrors the publication payload emitted by the backend. The
// same entity arrives with partially-overlapping field sets depending on the
// endpoint: author identity as a flat name or a nested user record, tagged
// members under "tags" or "taggedUsers", and the timestamp as an ISO rawDate
// or only as the localized display string.
type BackendPost struct {
	ID         string        `json:"id"`
	AuthorName string        `json:"authorName"`
	User       *BackendUser  `json:"user,omitempty"`
	UserID     string        `json:"userId"`
	Content    string        `json:"content"`
	FilesURL   string        `json:"filesURL"`
	Date       string        `json:"date"`
	RawDate    string        `json:"rawDate"`
	Likes      int64         `json:"likes"`
	Comments   int64         `json:"comments"`
	Location   string        `json:"location"`
	Tags       []TaggedUser  `json:"tags"`
	Tagged     []TaggedUser  `json:"taggedUsers"`
}

// BackendUser is the nested author record some endpoints attach to a post.
type BackendUser struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// BackendComment mirrors the comment payload emitted by the backend.
type BackendComment struct {
	ID           string `json:"id"`
	PostID       string `json:"postId"`
	UserID       string `json:"userId"`
	Content      string `json:"content"`
	CreationDate string `json:"creationDate"`
	Date         string `json:"date"`
}

// NormalizePost coerces a backend publication into the canonical Post shape.
// The timestamp preference order is rawDate, then the display date string;
// when neither parses the post keeps a zero PostedAt and sorts last.
func NormalizePost(raw BackendPost, loc *time.Location) Post {
	post := Post{
		ID:           strings.TrimSpace(raw.ID),
		AuthorID:     strings.TrimSpace(raw.UserID),
		AuthorName:   strings.TrimSpace(raw.AuthorName),
		Content:      raw.Content,
		FilesURL:     normalizeFileURL(raw.FilesURL),
		Location:     strings.TrimSpace(raw.Location),
		LikeCount:    raw.Likes,
		CommentCount: raw.Comments,
		RawDate:      firstNonEmpty(raw.RawDate, raw.Date),
	}

	if raw.User != nil {
		if post.AuthorID == "" {
			post.AuthorID = strings.TrimSpace(raw.User.ID)
		}
		if post.AuthorName == "" {
			post.AuthorName = joinName(raw.User.FirstName, raw.User.LastName)
		}
	}

	post.Tags = raw.Tags
	if len(post.Tags) == 0 {
		post.Tags = raw.Tagged
	}

	for _, candidate := range []string{raw.RawDate, raw.Date} {
		if candidate == "" {
			continue
		}
		if parsed, err := ParseBackendTime(candidate, loc); err == nil {
			post.PostedAt = parsed
			break
		}
	}

	return post
}

// NormalizeComment coerces a backend comment into the canonical Comment shape.
func NormalizeComment(raw BackendComment, loc *time.Location) Comment {
	comment := Comment{
		ID:       strings.TrimSpace(raw.ID),
		PostID:   strings.TrimSpace(raw.PostID),
		AuthorID: strings.TrimSpace(raw.UserID),
		Content:  raw.Content,
	}
	for _, candidate := range []string{raw.CreationDate, raw.Date} {
		if candidate == "" {
			continue
		}
		if parsed, err := ParseBackendTime(candidate, loc); err == nil {
			comment.CreatedAt = parsed
			break
		}
	}
	return comment
}

// normalizeFileURL drops the placeholder values the backend emits for posts
// without attachments ("[null]", "null").
func normalizeFileURL(value string) string {
	trimmed := strings.TrimSpace(value)
	switch trimmed {
	case "", "null", "[null]":
		return ""
	}
	return trimmed
}

func joinName(first, last string) string {
	first = strings.TrimSpace(first)
	last = strings.TrimSpace(last)
	switch {
	case first == "":
		return last
	case last == "":
		return first
	}
	return first + " " + last
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
