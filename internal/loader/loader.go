// Package loader performs the initial wall fetch for an identity scope: the
// user's own publications and the family feed in parallel, collapsed into one
// duplicate-free result, with the current user's like state seeded per post.
//
// Loads race against identity changes. Every result carries the generation it
// was started under; a result whose generation no longer matches the loader's
// current one must be discarded, never merged.
package loader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/harmonichat/hcsync/internal/wall"
)

// ErrStaleLoad indicates the identity scope changed while the load ran.
var ErrStaleLoad = errors.New("loader: load superseded by identity change")

// Backend is the subset of the REST client the loader needs.
type Backend interface {
	UserPublications(ctx context.Context, userID string) ([]wall.Post, error)
	FamilyPublications(ctx context.Context, familyID string) ([]wall.Post, error)
	UserLike(ctx context.Context, userID, postID string) (string, bool, error)
}

// LikeSeed is the fetched like state for one post: the authoritative count
// from the publication payload and the current user's like id, if any.
type LikeSeed struct {
	PostID string
	Count  int64
	LikeID string
}

// Result is one completed load.
type Result struct {
	Generation uint64
	Posts      []wall.Post
	Likes      []LikeSeed
}

// LoaderConfig describes the loader's dependencies.
type LoaderConfig struct {
	Backend Backend
	Logger  *zap.Logger
}

// Loader fetches wall snapshots under a generation guard.
type Loader struct {
	backend    Backend
	logger     *zap.Logger
	generation atomic.Uint64
}

// NewLoader validates the configuration and returns a ready Loader.
func NewLoader(cfg LoaderConfig) (*Loader, error) {
	if cfg.Backend == nil {
		return nil, fmt.Errorf("loader: backend client required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{backend: cfg.Backend, logger: logger}, nil
}

// Invalidate bumps the generation, marking every in-flight load stale. Called
// when the identity scope changes.
func (l *Loader) Invalidate() {
	l.generation.Add(1)
}

// Current returns the generation a fresh load would run under.
func (l *Loader) Current() uint64 {
	return l.generation.Load()
}

// Valid reports whether a result still belongs to the active scope.
func (l *Loader) Valid(result Result) bool {
	return result.Generation == l.generation.Load()
}

// Load fetches the user and family feeds in parallel. Either fetch failing
// fails the whole load: a half-merged wall is worse than a retried one. The
// merged posts arrive deduplicated; ordering is left to the snapshot.
func (l *Loader) Load(ctx context.Context, userID, familyID string) (Result, error) {
	generation := l.generation.Load()

	var userPosts, familyPosts []wall.Post
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		posts, err := l.backend.UserPublications(groupCtx, userID)
		if err != nil {
			return fmt.Errorf("loader: user feed: %w", err)
		}
		userPosts = posts
		return nil
	})
	group.Go(func() error {
		posts, err := l.backend.FamilyPublications(groupCtx, familyID)
		if err != nil {
			return fmt.Errorf("loader: family feed: %w", err)
		}
		familyPosts = posts
		return nil
	})
	if err := group.Wait(); err != nil {
		return Result{}, err
	}
	if generation != l.generation.Load() {
		return Result{}, ErrStaleLoad
	}

	posts := dedupe(userPosts, familyPosts)
	likes := l.seedLikes(ctx, userID, posts)
	if generation != l.generation.Load() {
		return Result{}, ErrStaleLoad
	}

	l.logger.Info("wall loaded",
		zap.String("userId", userID),
		zap.String("familyId", familyID),
		zap.Int("posts", len(posts)),
		zap.Uint64("generation", generation))
	return Result{Generation: generation, Posts: posts, Likes: likes}, nil
}

// seedLikes resolves the current user's like per post, in parallel with a
// small bound. A failed probe seeds count-only state; the post still renders,
// only the user's own marker is unknown until an event corrects it.
func (l *Loader) seedLikes(ctx context.Context, userID string, posts []wall.Post) []LikeSeed {
	seeds := make([]LikeSeed, len(posts))
	var mu sync.Mutex

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(8)
	for i, post := range posts {
		group.Go(func() error {
			likeID, liked, err := l.backend.UserLike(groupCtx, userID, post.ID)
			if err != nil {
				l.logger.Warn("like probe failed",
					zap.String("postId", post.ID),
					zap.Error(err))
				likeID, liked = "", false
			}
			seed := LikeSeed{PostID: post.ID, Count: post.LikeCount}
			if liked {
				seed.LikeID = likeID
			}
			mu.Lock()
			seeds[i] = seed
			mu.Unlock()
			return nil
		})
	}
	_ = group.Wait()
	return seeds
}

// dedupe collapses the two feeds by post identity, first occurrence wins.
func dedupe(feeds ...[]wall.Post) []wall.Post {
	seen := make(map[string]struct{})
	var out []wall.Post
	for _, feed := range feeds {
		for _, post := range feed {
			if post.ID == "" {
				continue
			}
			if _, ok := seen[post.ID]; ok {
				continue
			}
			seen[post.ID] = struct{}{}
			out = append(out, post)
		}
	}
	return out
}
