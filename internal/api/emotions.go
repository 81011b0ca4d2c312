package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/harmonichat/hcsync/internal/wall"
)

const (
	opUserEmotions  = "fetch user emotions"
	opAllEmotions   = "fetch all emotions"
	opCreateEmotion = "create emotion"
	opDeleteEmotion = "delete emotion"
)

// Emotion is one diary entry. RecordedAt is zero when the backend's display
// date could not be parsed.
type Emotion struct {
	ID          string
	Name        string
	Description string
	FileURL     string
	RecordedAt  time.Time
	RawDate     string
}

// The diary endpoints emit the timestamp only as a localized display string.
type backendEmotion struct {
	ID          string `json:"id"`
	Emotion     string `json:"emotion"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Date        string `json:"date"`
	Creation    string `json:"creationDate"`
	FileURL     string `json:"fileUrl"`
	FilesURL    string `json:"filesURL"`
}

type emotionRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	UserID      string `json:"userId"`
}

func (c *Client) normalizeEmotion(raw backendEmotion) Emotion {
	entry := Emotion{
		ID:          strings.TrimSpace(raw.ID),
		Name:        firstNonBlank(raw.Emotion, raw.Name),
		Description: raw.Description,
		FileURL:     firstNonBlank(raw.FileURL, raw.FilesURL),
		RawDate:     firstNonBlank(raw.Date, raw.Creation),
	}
	if entry.RawDate != "" {
		if parsed, err := wall.ParseBackendTime(entry.RawDate, c.loc); err == nil {
			entry.RecordedAt = parsed
		}
	}
	return entry
}

// UserEmotions fetches one user's diary entries.
func (c *Client) UserEmotions(ctx context.Context, userID string) ([]Emotion, error) {
	return c.fetchEmotions(ctx, opUserEmotions, "/emotion/user/"+userID)
}

// AllEmotions fetches every diary entry visible to the caller.
func (c *Client) AllEmotions(ctx context.Context) ([]Emotion, error) {
	return c.fetchEmotions(ctx, opAllEmotions, "/emotion/all")
}

func (c *Client) fetchEmotions(ctx context.Context, operation, path string) ([]Emotion, error) {
	var raw []backendEmotion
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&raw).
		Get(path)
	if err != nil {
		return nil, fmt.Errorf("api: %s: %w", operation, err)
	}
	if resp.IsError() {
		return nil, statusError(operation, resp)
	}

	entries := make([]Emotion, 0, len(raw))
	for _, entry := range raw {
		entries = append(entries, c.normalizeEmotion(entry))
	}
	return entries, nil
}

// CreateEmotion records a new diary entry. The endpoint takes a multipart
// form: the entry as a JSON part named "emotion", plus an optional image.
func (c *Client) CreateEmotion(ctx context.Context, userID, name, description string, image []byte, imageName string) (Emotion, error) {
	payload, err := json.Marshal(emotionRequest{Name: name, Description: description, UserID: userID})
	if err != nil {
		return Emotion{}, fmt.Errorf("api: %s: %w", opCreateEmotion, err)
	}

	request := c.http.R().
		SetContext(ctx).
		SetMultipartField("emotion", "", "application/json", bytes.NewReader(payload))
	if len(image) > 0 {
		request.SetFileReader("file", imageName, bytes.NewReader(image))
	}

	var created backendEmotion
	resp, err := request.SetResult(&created).Post("/emotion/new")
	if err != nil {
		return Emotion{}, fmt.Errorf("api: %s: %w", opCreateEmotion, err)
	}
	if resp.IsError() {
		return Emotion{}, statusError(opCreateEmotion, resp)
	}
	return c.normalizeEmotion(created), nil
}

// DeleteEmotion removes a diary entry by identifier.
func (c *Client) DeleteEmotion(ctx context.Context, emotionID string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		Delete("/emotion/delete/" + emotionID)
	if err != nil {
		return fmt.Errorf("api: %s: %w", opDeleteEmotion, err)
	}
	if resp.IsError() {
		return statusError(opDeleteEmotion, resp)
	}
	return nil
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
