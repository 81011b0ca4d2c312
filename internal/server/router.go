// Package server exposes the reconciled state over a local HTTP surface: a
// read API for the wall, threads, and chat, mutation endpoints that drive
// the engine's optimistic operations, and an SSE stream of change scopes.
package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/harmonichat/hcsync/internal/api"
	"github.com/harmonichat/hcsync/internal/auth"
	"github.com/harmonichat/hcsync/internal/chat"
	"github.com/harmonichat/hcsync/internal/engine"
	"github.com/harmonichat/hcsync/internal/wall"
)

var (
	errMissingEngine     = errors.New("server: engine dependency required")
	errMissingDispatcher = errors.New("server: dispatcher dependency required")
)

// Syncer is the engine surface the HTTP layer consumes.
type Syncer interface {
	Identity() auth.Identity
	WallPosts() []engine.PostView
	Comments(ctx context.Context, postID string) ([]wall.Comment, error)
	Messages() []chat.Message
	Like(ctx context.Context, postID string) error
	Unlike(ctx context.Context, postID string) error
	AddComment(ctx context.Context, postID, content string) (wall.Comment, error)
	RemoveComment(ctx context.Context, postID, commentID string) error
	RemovePost(ctx context.Context, postID string) error
	SendMessage(ctx context.Context, content string, messageType chat.MessageType, file []byte, fileName string) (chat.Message, error)
	MarkChatRead(ctx context.Context) error
}

// Browser is the pass-through surface for state the engine does not
// reconcile locally (emotion diary, albums). Optional.
type Browser interface {
	UserEmotions(ctx context.Context, userID string) ([]api.Emotion, error)
	FamilyAlbums(ctx context.Context, familyID string) ([]api.Album, error)
	AlbumPhotos(ctx context.Context, albumID string) ([]api.AlbumPhoto, error)
}

// Roster serves the cached family member directory. Optional.
type Roster interface {
	Load(ctx context.Context, familyID string) error
	FamilyID() string
	Members() []api.FamilyMember
}

// Dependencies wires the HTTP surface.
type Dependencies struct {
	Engine     Syncer
	Dispatcher *ChangeDispatcher
	Browser    Browser
	Roster     Roster
	Logger     *zap.Logger
}

// NewHTTPHandler validates the dependencies and builds the router.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Engine == nil {
		return nil, errMissingEngine
	}
	if deps.Dispatcher == nil {
		return nil, errMissingDispatcher
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		engine:     deps.Engine,
		dispatcher: deps.Dispatcher,
		browser:    deps.Browser,
		roster:     deps.Roster,
		logger:     logger,
	}

	router.GET("/healthz", handler.handleHealth)
	router.GET("/wall", handler.handleWall)
	router.GET("/wall/:postId/comments", handler.handleComments)
	router.POST("/wall/:postId/comments", handler.handleAddComment)
	router.DELETE("/wall/:postId/comments/:commentId", handler.handleRemoveComment)
	router.POST("/wall/:postId/like", handler.handleLike)
	router.DELETE("/wall/:postId/like", handler.handleUnlike)
	router.DELETE("/wall/:postId", handler.handleRemovePost)
	router.GET("/chat", handler.handleChat)
	router.POST("/chat", handler.handleSendMessage)
	router.POST("/chat/read", handler.handleMarkRead)
	router.GET("/events", handler.handleEvents)

	if deps.Roster != nil {
		router.GET("/family", handler.handleFamily)
	}

	if deps.Browser != nil {
		router.GET("/emotions", handler.handleEmotions)
		router.GET("/albums", handler.handleAlbums)
		router.GET("/albums/:albumId/photos", handler.handleAlbumPhotos)
	}

	return router, nil
}

type httpHandler struct {
	engine     Syncer
	dispatcher *ChangeDispatcher
	browser    Browser
	roster     Roster
	logger     *zap.Logger
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"userId":   h.engine.Identity().UserID,
		"familyId": h.engine.Identity().FamilyID,
	})
}

func (h *httpHandler) handleWall(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"posts": h.engine.WallPosts()})
}

func (h *httpHandler) handleComments(c *gin.Context) {
	postID := c.Param("postId")
	comments, err := h.engine.Comments(c.Request.Context(), postID)
	if err != nil {
		h.logger.Warn("thread load failed", zap.String("postId", postID), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "thread_unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"comments": comments})
}

type commentPayload struct {
	Content string `json:"content"`
}

func (h *httpHandler) handleAddComment(c *gin.Context) {
	var payload commentPayload
	if err := c.ShouldBindJSON(&payload); err != nil || strings.TrimSpace(payload.Content) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	comment, err := h.engine.AddComment(c.Request.Context(), c.Param("postId"), payload.Content)
	if err != nil {
		h.logger.Warn("comment failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "comment_failed"})
		return
	}
	c.JSON(http.StatusCreated, comment)
}

func (h *httpHandler) handleRemoveComment(c *gin.Context) {
	err := h.engine.RemoveComment(c.Request.Context(), c.Param("postId"), c.Param("commentId"))
	if err != nil {
		h.logger.Warn("comment delete failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "delete_failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleLike(c *gin.Context) {
	postID := c.Param("postId")
	err := h.engine.Like(c.Request.Context(), postID)
	switch {
	case err == nil:
		c.Status(http.StatusNoContent)
	case errors.Is(err, wall.ErrAlreadyLiked), errors.Is(err, wall.ErrLikePending):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		h.logger.Warn("like failed", zap.String("postId", postID), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "like_failed"})
	}
}

func (h *httpHandler) handleUnlike(c *gin.Context) {
	postID := c.Param("postId")
	err := h.engine.Unlike(c.Request.Context(), postID)
	switch {
	case err == nil:
		c.Status(http.StatusNoContent)
	case errors.Is(err, wall.ErrNotLiked), errors.Is(err, wall.ErrLikePending):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		h.logger.Warn("unlike failed", zap.String("postId", postID), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "unlike_failed"})
	}
}

func (h *httpHandler) handleRemovePost(c *gin.Context) {
	if err := h.engine.RemovePost(c.Request.Context(), c.Param("postId")); err != nil {
		h.logger.Warn("post delete failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "delete_failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleChat(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"messages": h.engine.Messages()})
}

type messagePayload struct {
	Content string `json:"content"`
	Type    string `json:"type"`
}

func (h *httpHandler) handleSendMessage(c *gin.Context) {
	var payload messagePayload
	if err := c.ShouldBindJSON(&payload); err != nil || strings.TrimSpace(payload.Content) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	message, err := h.engine.SendMessage(
		c.Request.Context(),
		payload.Content,
		chat.MessageType(strings.ToUpper(payload.Type)),
		nil, "")
	if err != nil {
		h.logger.Warn("message send failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "send_failed"})
		return
	}
	c.JSON(http.StatusCreated, message)
}

func (h *httpHandler) handleMarkRead(c *gin.Context) {
	if err := h.engine.MarkChatRead(c.Request.Context()); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "mark_read_failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

// handleEvents streams change scopes as SSE. A periodic heartbeat keeps
// intermediaries from reaping idle connections.
func (h *httpHandler) handleEvents(c *gin.Context) {
	scope := c.Query("scope")
	stream, cleanup := h.dispatcher.Subscribe(c.Request.Context(), scope)
	defer cleanup()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	heartbeat := time.NewTicker(25 * time.Second)
	defer heartbeat.Stop()

	c.Stream(func(_ io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case message, ok := <-stream:
			if !ok {
				return false
			}
			c.SSEvent("change", gin.H{"scope": message.Scope, "at": message.Timestamp.UTC()})
			return true
		case <-heartbeat.C:
			c.SSEvent("heartbeat", gin.H{"at": time.Now().UTC()})
			return true
		}
	})
}

// handleFamily serves the member directory, loading it on first use.
func (h *httpHandler) handleFamily(c *gin.Context) {
	if h.roster.FamilyID() == "" {
		if err := h.roster.Load(c.Request.Context(), h.engine.Identity().FamilyID); err != nil {
			h.logger.Warn("roster load failed", zap.Error(err))
			c.JSON(http.StatusBadGateway, gin.H{"error": "family_unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"members": h.roster.Members()})
}

func (h *httpHandler) handleEmotions(c *gin.Context) {
	entries, err := h.browser.UserEmotions(c.Request.Context(), h.engine.Identity().UserID)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "emotions_unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"emotions": entries})
}

func (h *httpHandler) handleAlbums(c *gin.Context) {
	albums, err := h.browser.FamilyAlbums(c.Request.Context(), h.engine.Identity().FamilyID)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "albums_unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"albums": albums})
}

func (h *httpHandler) handleAlbumPhotos(c *gin.Context) {
	photos, err := h.browser.AlbumPhotos(c.Request.Context(), c.Param("albumId"))
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "album_unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"photos": photos})
}
