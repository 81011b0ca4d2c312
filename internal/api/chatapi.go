package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/harmonichat/hcsync/internal/chat"
)

const (
	opChatHistory  = "fetch chat history"
	opLatestChat   = "fetch latest chat messages"
	opNewChat      = "fetch new chat messages"
	opSendChat     = "send chat message"
	opMarkChatRead = "mark chat as read"
)

// ChatHistory fetches the full transcript for a family, oldest first.
func (c *Client) ChatHistory(ctx context.Context, familyID string) ([]chat.Message, error) {
	return c.fetchMessages(ctx, opChatHistory, "/chat/messages", map[string]string{
		"familyId": familyID,
	})
}

// LatestChatMessages fetches the most recent messages for a family.
func (c *Client) LatestChatMessages(ctx context.Context, familyID string, limit int) ([]chat.Message, error) {
	return c.fetchMessages(ctx, opLatestChat, "/chat/latest-messages", map[string]string{
		"familyId": familyID,
		"limit":    strconv.Itoa(limit),
	})
}

// NewChatMessages fetches messages that arrived after the given one.
func (c *Client) NewChatMessages(ctx context.Context, familyID, lastMessageID string) ([]chat.Message, error) {
	return c.fetchMessages(ctx, opNewChat, "/chat/new-messages", map[string]string{
		"familyId":      familyID,
		"lastMessageId": lastMessageID,
	})
}

func (c *Client) fetchMessages(ctx context.Context, operation, path string, query map[string]string) ([]chat.Message, error) {
	var raw []json.RawMessage
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(query).
		SetResult(&raw).
		Get(path)
	if err != nil {
		return nil, fmt.Errorf("api: %s: %w", operation, err)
	}
	if resp.IsError() {
		return nil, statusError(operation, resp)
	}

	messages := make([]chat.Message, 0, len(raw))
	for _, body := range raw {
		message, err := chat.DecodeMessage(body, c.loc)
		if err != nil {
			c.logger.Warn("skipping undecodable chat message", zap.Error(err))
			continue
		}
		messages = append(messages, message)
	}
	return messages, nil
}

// SendChatMessage publishes a text message to the family chat. The endpoint
// takes form parameters, with an optional file attachment.
func (c *Client) SendChatMessage(ctx context.Context, userID, familyID, content string, messageType chat.MessageType, file []byte, fileName string) (chat.Message, error) {
	if messageType == "" {
		messageType = chat.MessageTypeText
	}
	request := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"userId":   userID,
			"familyId": familyID,
			"content":  content,
			"type":     string(messageType),
		})
	if len(file) > 0 {
		request.SetFileReader("file", fileName, bytes.NewReader(file))
	}

	resp, err := request.Post("/chat/send")
	if err != nil {
		return chat.Message{}, fmt.Errorf("api: %s: %w", opSendChat, err)
	}
	if resp.IsError() {
		return chat.Message{}, statusError(opSendChat, resp)
	}

	message, err := chat.DecodeMessage(resp.Body(), c.loc)
	if err != nil {
		return chat.Message{}, fmt.Errorf("api: %s: %w", opSendChat, err)
	}
	return message, nil
}

// MarkChatAsRead flags the family's messages as read for the user.
func (c *Client) MarkChatAsRead(ctx context.Context, familyID, userID string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"familyId": familyID, "userId": userID}).
		Post("/chat/mark-as-read")
	if err != nil {
		return fmt.Errorf("api: %s: %w", opMarkChatRead, err)
	}
	if resp.IsError() {
		return statusError(opMarkChatRead, resp)
	}
	return nil
}
