// Package chat reconciles the family chat transcript from the broker's
// per-family topic plus the REST history endpoint, with the same
// at-least-once tolerance as the wall: inserts are idempotent by message
// identity and a fetch resolving late never clobbers messages that already
// arrived live.
package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/harmonichat/hcsync/internal/wall"
)

// ErrMalformedMessage indicates a chat payload could not be decoded.
var ErrMalformedMessage = errors.New("chat: malformed message payload")

// MessageType enumerates supported chat message kinds.
type MessageType string

const (
	MessageTypeText  MessageType = "TEXT"
	MessageTypeImage MessageType = "IMAGE"
	MessageTypeVideo MessageType = "VIDEO"
	MessageTypeFile  MessageType = "FILE"
)

// Message is the canonical chat message shape.
type Message struct {
	ID        string      `json:"id"`
	AuthorID  string      `json:"userId"`
	Author    string      `json:"authorName"`
	Content   string      `json:"content"`
	Type      MessageType `json:"type"`
	State     string      `json:"state"`
	FileURL   string      `json:"fileURL,omitempty"`
	SentAt    time.Time   `json:"sentAt"`
}

type backendMessage struct {
	ID      string `json:"id"`
	Content string `json:"content"`
	Date    string `json:"date"`
	Type    string `json:"type"`
	State   string `json:"state"`
	FileURL string `json:"fileURL"`
	User    *struct {
		ID        string `json:"id"`
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
	} `json:"user"`
}

// TopicFor returns the broker topic carrying a family's chat messages.
func TopicFor(familyID string) string {
	return "/topic/family." + familyID
}

// DecodeMessage turns a raw broker frame or REST list element into a Message.
func DecodeMessage(body []byte, loc *time.Location) (Message, error) {
	var raw backendMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return normalizeMessage(raw, loc)
}

func normalizeMessage(raw backendMessage, loc *time.Location) (Message, error) {
	message := Message{
		ID:      strings.TrimSpace(raw.ID),
		Content: raw.Content,
		Type:    MessageType(strings.ToUpper(strings.TrimSpace(raw.Type))),
		State:   raw.State,
		FileURL: raw.FileURL,
	}
	if message.ID == "" {
		return Message{}, fmt.Errorf("%w: message without id", ErrMalformedMessage)
	}
	if message.Type == "" {
		message.Type = MessageTypeText
	}
	if raw.User != nil {
		message.AuthorID = strings.TrimSpace(raw.User.ID)
		name := strings.TrimSpace(raw.User.FirstName + " " + raw.User.LastName)
		message.Author = name
	}
	if raw.Date != "" {
		if parsed, err := wall.ParseBackendTime(raw.Date, loc); err == nil {
			message.SentAt = parsed
		}
	}
	return message, nil
}

// Transcript is the reconciled chat history for one family, oldest first.
type Transcript struct {
	mu       sync.RWMutex
	familyID string
	messages []Message
	known    map[string]struct{}
}

// NewTranscript returns an empty transcript scoped to one family.
func NewTranscript(familyID string) *Transcript {
	return &Transcript{
		familyID: familyID,
		known:    make(map[string]struct{}),
	}
}

// FamilyID returns the identity this transcript is scoped to.
func (t *Transcript) FamilyID() string {
	return t.familyID
}

// Messages returns a copy of the transcript, oldest first.
func (t *Transcript) Messages() []Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// Len reports the number of messages currently held.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.messages)
}

// Insert adds a message unless its identity is already present.
func (t *Transcript) Insert(message Message) bool {
	if message.ID == "" {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, seen := t.known[message.ID]; seen {
		return false
	}
	t.known[message.ID] = struct{}{}
	at := sort.Search(len(t.messages), func(i int) bool {
		return t.messages[i].SentAt.After(message.SentAt)
	})
	t.messages = append(t.messages, Message{})
	copy(t.messages[at+1:], t.messages[at:])
	t.messages[at] = message
	return true
}

// MergeFetched folds the REST history into the transcript without displacing
// messages that already arrived over the live topic.
func (t *Transcript) MergeFetched(fetched []Message) {
	for _, message := range fetched {
		t.Insert(message)
	}
}
