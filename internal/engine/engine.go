// Package engine owns the reconciled client state: the wall snapshot, the
// like ledger, the comment threads, and the chat transcript. It wires the
// initial REST load, the live broker subscription, and the optimistic
// mutations into one consistent view, and pushes change notifications to the
// presentation layer.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/harmonichat/hcsync/internal/auth"
	"github.com/harmonichat/hcsync/internal/chat"
	"github.com/harmonichat/hcsync/internal/loader"
	"github.com/harmonichat/hcsync/internal/wall"
)

const (
	topicPosts         = "/topic/posts"
	topicPostDeleted   = "/topic/postDeleted"
	topicCommentsCount = "/topic/commentsCount"
	topicLikesGlobal   = "/topic/likes.global"

	topicFamilyPrefix   = "/topic/family."
	topicCommentsPrefix = "/topic/comments/"

	defaultFlushInterval = 5 * time.Second
	eventBuffer          = 256
)

// Change scopes reported to the notifier.
const (
	ScopeWall = "wall"
	ScopeChat = "chat"
)

// ScopeComments names the change scope for one post's thread.
func ScopeComments(postID string) string {
	return "comments:" + postID
}

// ErrNoIdentity indicates the engine has not been scoped yet.
var ErrNoIdentity = errors.New("engine: no identity configured")

// Backend is the subset of the REST client the engine drives directly.
type Backend interface {
	LikePost(ctx context.Context, postID, userID string) (string, error)
	UnlikePost(ctx context.Context, likeID string) error
	SendComment(ctx context.Context, postID, userID, content string) (wall.Comment, error)
	DeleteComment(ctx context.Context, commentID string) error
	DeletePublication(ctx context.Context, postID string) error
	PostComments(ctx context.Context, postID string) ([]wall.Comment, error)
	ChatHistory(ctx context.Context, familyID string) ([]chat.Message, error)
	SendChatMessage(ctx context.Context, userID, familyID, content string, messageType chat.MessageType, file []byte, fileName string) (chat.Message, error)
	MarkChatAsRead(ctx context.Context, familyID, userID string) error
}

// Subscriber manages the live topic subscriptions.
type Subscriber interface {
	Subscribe(topic string) error
	UnsubscribeAll()
}

// NameResolver maps a member id to a display name. Broker chat frames carry
// only the sender id, so the resolver backfills the author for display.
type NameResolver interface {
	Resolve(ctx context.Context, userID string) (string, error)
}

// CacheStore persists reconciled state between runs.
type CacheStore interface {
	SavePosts(familyID string, posts []wall.Post) error
	LoadPosts(familyID string) ([]wall.Post, error)
	SaveMessages(familyID string, messages []chat.Message) error
	LoadMessages(familyID string) ([]chat.Message, error)
}

// Config describes the engine's dependencies. Cache and Notify are optional.
type Config struct {
	Backend    Backend
	Loader     *loader.Loader
	Subscriber Subscriber
	Cache      CacheStore
	Identity   auth.Identity
	Location   *time.Location
	Logger     *zap.Logger
	// Names backfills chat author names when the frame omits them. Optional.
	Names NameResolver
	// Notify receives a change scope after every state change.
	Notify func(scope string)
	// FlushInterval bounds how often dirty state reaches the cache.
	FlushInterval time.Duration
}

type inboundFrame struct {
	topic string
	body  []byte
}

// Engine reconciles backend state for one identity scope.
type Engine struct {
	backend    Backend
	loader     *loader.Loader
	subscriber Subscriber
	cache      CacheStore
	names      NameResolver
	loc        *time.Location
	logger     *zap.Logger
	notify     func(scope string)
	flushEvery time.Duration

	events chan inboundFrame

	mu         sync.RWMutex
	identity   auth.Identity
	snapshot   *wall.Snapshot
	ledger     *wall.LikeLedger
	threads    map[string]*wall.Thread
	transcript *chat.Transcript
	dirty      bool
}

// New validates the configuration and returns an unstarted engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Backend == nil {
		return nil, fmt.Errorf("engine: backend client required")
	}
	if cfg.Loader == nil {
		return nil, fmt.Errorf("engine: loader required")
	}
	if cfg.Subscriber == nil {
		return nil, fmt.Errorf("engine: subscriber required")
	}
	if cfg.Identity.UserID == "" || cfg.Identity.FamilyID == "" {
		return nil, ErrNoIdentity
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	notify := cfg.Notify
	if notify == nil {
		notify = func(string) {}
	}
	flushEvery := cfg.FlushInterval
	if flushEvery <= 0 {
		flushEvery = defaultFlushInterval
	}

	return &Engine{
		backend:    cfg.Backend,
		loader:     cfg.Loader,
		subscriber: cfg.Subscriber,
		cache:      cfg.Cache,
		names:      cfg.Names,
		loc:        loc,
		logger:     logger,
		notify:     notify,
		flushEvery: flushEvery,
		events:     make(chan inboundFrame, eventBuffer),
		identity:   cfg.Identity,
		snapshot:   wall.NewSnapshot(),
		ledger:     wall.NewLikeLedger(nil),
		threads:    make(map[string]*wall.Thread),
		transcript: chat.NewTranscript(cfg.Identity.FamilyID),
	}, nil
}

// HandleFrame is the broker delivery entry point. It never blocks the read
// loop: when the buffer is full the frame is dropped and logged, the next
// fetch reconciles the gap.
func (e *Engine) HandleFrame(topic string, body []byte) {
	frame := inboundFrame{topic: topic, body: append([]byte(nil), body...)}
	select {
	case e.events <- frame:
	default:
		e.logger.Warn("event buffer full, dropping frame", zap.String("topic", topic))
	}
}

// Run primes state from the cache, performs the initial load, subscribes to
// the live topics, and then applies events until the context ends.
func (e *Engine) Run(ctx context.Context) error {
	e.primeFromCache()

	if err := e.subscribeTopics(); err != nil {
		return err
	}
	if err := e.reload(ctx); err != nil {
		// The live subscription is already up; events keep the view moving
		// until a retry succeeds.
		e.logger.Warn("initial load failed", zap.Error(err))
	}

	flush := time.NewTicker(e.flushEvery)
	defer flush.Stop()
	for {
		select {
		case <-ctx.Done():
			e.flushCache()
			return ctx.Err()
		case frame := <-e.events:
			e.applyFrame(ctx, frame)
		case <-flush.C:
			e.flushCache()
		}
	}
}

// Identity returns the scope the engine currently syncs.
func (e *Engine) Identity() auth.Identity {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.identity
}

// Rescope switches the engine to a new identity: the old subscriptions are
// fully dropped, in-flight loads are invalidated, state resets, and the new
// scope is subscribed and loaded.
func (e *Engine) Rescope(ctx context.Context, identity auth.Identity) error {
	if identity.UserID == "" || identity.FamilyID == "" {
		return ErrNoIdentity
	}

	e.subscriber.UnsubscribeAll()
	e.loader.Invalidate()

	e.mu.Lock()
	e.identity = identity
	e.snapshot = wall.NewSnapshot()
	e.ledger = wall.NewLikeLedger(nil)
	e.threads = make(map[string]*wall.Thread)
	e.transcript = chat.NewTranscript(identity.FamilyID)
	e.dirty = false
	e.mu.Unlock()
	e.notify(ScopeWall)
	e.notify(ScopeChat)

	if err := e.subscribeTopics(); err != nil {
		return err
	}
	return e.reload(ctx)
}

func (e *Engine) subscribeTopics() error {
	e.mu.RLock()
	familyID := e.identity.FamilyID
	e.mu.RUnlock()

	for _, topic := range []string{
		topicPosts,
		topicPostDeleted,
		topicCommentsCount,
		topicLikesGlobal,
		topicFamilyPrefix + familyID,
	} {
		if err := e.subscriber.Subscribe(topic); err != nil {
			return fmt.Errorf("engine: subscribe %s: %w", topic, err)
		}
	}
	return nil
}

// reload fetches the wall and the chat transcript for the current scope and
// merges them under the snapshot's fetch semantics: entities already applied
// from live events win over the fetched copies.
func (e *Engine) reload(ctx context.Context) error {
	e.mu.RLock()
	identity := e.identity
	snapshot, ledger, transcript := e.snapshot, e.ledger, e.transcript
	e.mu.RUnlock()

	result, err := e.loader.Load(ctx, identity.UserID, identity.FamilyID)
	if err != nil {
		return err
	}
	if !e.loader.Valid(result) {
		return loader.ErrStaleLoad
	}
	snapshot.MergeFetched(result.Posts)
	for _, seed := range result.Likes {
		ledger.Seed(seed.PostID, seed.Count, seed.LikeID)
	}
	e.markDirty()
	e.notify(ScopeWall)

	history, err := e.backend.ChatHistory(ctx, identity.FamilyID)
	if err != nil {
		return fmt.Errorf("engine: chat history: %w", err)
	}
	transcript.MergeFetched(history)
	e.markDirty()
	e.notify(ScopeChat)
	return nil
}

func (e *Engine) primeFromCache() {
	if e.cache == nil {
		return
	}
	e.mu.RLock()
	familyID := e.identity.FamilyID
	snapshot, transcript := e.snapshot, e.transcript
	e.mu.RUnlock()

	posts, err := e.cache.LoadPosts(familyID)
	if err != nil {
		e.logger.Warn("cache read failed, starting cold", zap.Error(err))
		return
	}
	snapshot.MergeFetched(posts)

	messages, err := e.cache.LoadMessages(familyID)
	if err != nil {
		e.logger.Warn("cache read failed, starting cold", zap.Error(err))
		return
	}
	transcript.MergeFetched(messages)

	if len(posts) > 0 || len(messages) > 0 {
		e.notify(ScopeWall)
		e.notify(ScopeChat)
	}
}

func (e *Engine) markDirty() {
	e.mu.Lock()
	e.dirty = true
	e.mu.Unlock()
}

func (e *Engine) flushCache() {
	if e.cache == nil {
		return
	}
	e.mu.Lock()
	if !e.dirty {
		e.mu.Unlock()
		return
	}
	e.dirty = false
	familyID := e.identity.FamilyID
	snapshot, transcript := e.snapshot, e.transcript
	e.mu.Unlock()

	if err := e.cache.SavePosts(familyID, snapshot.Posts()); err != nil {
		e.logger.Warn("cache write failed", zap.Error(err))
	}
	if err := e.cache.SaveMessages(familyID, transcript.Messages()); err != nil {
		e.logger.Warn("cache write failed", zap.Error(err))
	}
}

// applyFrame routes one broker frame into the state it belongs to. Malformed
// payloads are logged and skipped; the subscription stays up.
func (e *Engine) applyFrame(ctx context.Context, frame inboundFrame) {
	e.mu.RLock()
	familyID := e.identity.FamilyID
	snapshot, ledger, transcript := e.snapshot, e.ledger, e.transcript
	e.mu.RUnlock()

	if frame.topic == topicFamilyPrefix+familyID {
		message, err := chat.DecodeMessage(frame.body, e.loc)
		if err != nil {
			e.logger.Warn("skipping malformed chat payload", zap.Error(err))
			return
		}
		if message.Author == "" && message.AuthorID != "" && e.names != nil {
			if name, resolveErr := e.names.Resolve(ctx, message.AuthorID); resolveErr == nil {
				message.Author = name
			}
		}
		if transcript.Insert(message) {
			e.markDirty()
			e.notify(ScopeChat)
		}
		return
	}
	if strings.HasPrefix(frame.topic, topicFamilyPrefix) {
		// A frame from a previous family scope that raced the unsubscribe.
		return
	}

	event, err := wall.DecodeEvent(frame.topic, frame.body, e.loc)
	if err != nil {
		e.logger.Warn("skipping malformed event payload",
			zap.String("topic", frame.topic),
			zap.Error(err))
		return
	}

	switch event.Kind {
	case wall.EventCommentCreated:
		if event.Comment == nil {
			return
		}
		if thread := e.thread(event.PostID, false); thread != nil {
			if thread.Insert(*event.Comment) {
				e.notify(ScopeComments(event.PostID))
			}
		}
	case wall.EventPostDeleted:
		if snapshot.Apply(event) {
			ledger.Forget(event.PostID)
			e.dropThread(event.PostID)
			e.markDirty()
			e.notify(ScopeWall)
		}
	case wall.EventLikeCountChanged:
		// A count replayed after the post's deletion must not resurrect the
		// ledger record Forget dropped.
		if snapshot.Deleted(event.PostID) {
			return
		}
		ledger.ApplyCount(event.PostID, event.Count)
		if snapshot.Apply(event) {
			e.markDirty()
			e.notify(ScopeWall)
		}
	default:
		if snapshot.Apply(event) {
			e.markDirty()
			e.notify(ScopeWall)
		}
	}
}

func (e *Engine) thread(postID string, create bool) *wall.Thread {
	e.mu.Lock()
	defer e.mu.Unlock()
	thread, ok := e.threads[postID]
	if !ok && create {
		thread = wall.NewThread(postID)
		e.threads[postID] = thread
	}
	return thread
}

func (e *Engine) dropThread(postID string) {
	e.mu.Lock()
	delete(e.threads, postID)
	e.mu.Unlock()
}
