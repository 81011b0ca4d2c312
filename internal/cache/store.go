package cache

import (
	"encoding/json"
	"fmt"

	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/harmonichat/hcsync/internal/chat"
	"github.com/harmonichat/hcsync/internal/wall"
)

// OpenSQLite establishes the cache connection and performs schema migrations.
func OpenSQLite(path string, logger *zap.Logger) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("cache: database path is required")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&CachedPost{}, &CachedMessage{}, &migrationRecord{}); err != nil {
		return nil, err
	}
	if err := applyMigrations(db, logger); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("cache initialized", zap.String("path", path))
	}
	return db, nil
}

// StoreConfig describes the cache store dependencies.
type StoreConfig struct {
	Database *gorm.DB
	Logger   *zap.Logger
}

// Store reads and writes reconciled state for one family scope.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewStore validates the configuration and returns a ready Store.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("cache: database connection required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: cfg.Database, logger: logger}, nil
}

// SavePosts replaces the cached wall for a family with the given snapshot.
func (s *Store) SavePosts(familyID string, posts []wall.Post) error {
	records := make([]CachedPost, 0, len(posts))
	for _, post := range posts {
		record, err := toCachedPost(familyID, post)
		if err != nil {
			return err
		}
		records = append(records, record)
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("family_id = ?", familyID).Delete(&CachedPost{}).Error; err != nil {
			return fmt.Errorf("cache: clear posts: %w", err)
		}
		if len(records) == 0 {
			return nil
		}
		if err := tx.Create(&records).Error; err != nil {
			return fmt.Errorf("cache: save posts: %w", err)
		}
		return nil
	})
}

// LoadPosts returns the cached wall for a family, newest first.
func (s *Store) LoadPosts(familyID string) ([]wall.Post, error) {
	var records []CachedPost
	if err := s.db.
		Where("family_id = ?", familyID).
		Order("posted_at DESC").
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("cache: load posts: %w", err)
	}

	posts := make([]wall.Post, 0, len(records))
	for _, record := range records {
		post, err := fromCachedPost(record)
		if err != nil {
			s.logger.Warn("dropping undecodable cached post", zap.String("postId", record.ID), zap.Error(err))
			continue
		}
		posts = append(posts, post)
	}
	return posts, nil
}

// SaveMessages replaces the cached transcript for a family.
func (s *Store) SaveMessages(familyID string, messages []chat.Message) error {
	records := make([]CachedMessage, 0, len(messages))
	for _, message := range messages {
		records = append(records, CachedMessage{
			ID:       message.ID,
			FamilyID: familyID,
			AuthorID: message.AuthorID,
			Author:   message.Author,
			Content:  message.Content,
			Type:     string(message.Type),
			State:    message.State,
			FileURL:  message.FileURL,
			SentAt:   message.SentAt,
		})
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("family_id = ?", familyID).Delete(&CachedMessage{}).Error; err != nil {
			return fmt.Errorf("cache: clear messages: %w", err)
		}
		if len(records) == 0 {
			return nil
		}
		if err := tx.Create(&records).Error; err != nil {
			return fmt.Errorf("cache: save messages: %w", err)
		}
		return nil
	})
}

// LoadMessages returns the cached transcript for a family, oldest first.
func (s *Store) LoadMessages(familyID string) ([]chat.Message, error) {
	var records []CachedMessage
	if err := s.db.
		Where("family_id = ?", familyID).
		Order("sent_at ASC").
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("cache: load messages: %w", err)
	}

	messages := make([]chat.Message, 0, len(records))
	for _, record := range records {
		messages = append(messages, chat.Message{
			ID:       record.ID,
			AuthorID: record.AuthorID,
			Author:   record.Author,
			Content:  record.Content,
			Type:     chat.MessageType(record.Type),
			State:    record.State,
			FileURL:  record.FileURL,
			SentAt:   record.SentAt,
		})
	}
	return messages, nil
}

func toCachedPost(familyID string, post wall.Post) (CachedPost, error) {
	tags, err := json.Marshal(post.Tags)
	if err != nil {
		return CachedPost{}, fmt.Errorf("cache: encode tags for %s: %w", post.ID, err)
	}
	return CachedPost{
		ID:           post.ID,
		FamilyID:     familyID,
		AuthorID:     post.AuthorID,
		AuthorName:   post.AuthorName,
		Content:      post.Content,
		FilesURL:     post.FilesURL,
		Location:     post.Location,
		TagsJSON:     string(tags),
		LikeCount:    post.LikeCount,
		CommentCount: post.CommentCount,
		PostedAt:     post.PostedAt,
		RawDate:      post.RawDate,
	}, nil
}

func fromCachedPost(record CachedPost) (wall.Post, error) {
	post := wall.Post{
		ID:           record.ID,
		AuthorID:     record.AuthorID,
		AuthorName:   record.AuthorName,
		Content:      record.Content,
		FilesURL:     record.FilesURL,
		Location:     record.Location,
		LikeCount:    record.LikeCount,
		CommentCount: record.CommentCount,
		PostedAt:     record.PostedAt,
		RawDate:      record.RawDate,
	}
	if record.TagsJSON != "" && record.TagsJSON != "null" {
		if err := json.Unmarshal([]byte(record.TagsJSON), &post.Tags); err != nil {
			return wall.Post{}, err
		}
	}
	return post, nil
}
