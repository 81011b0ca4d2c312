package cache

import (
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/harmonichat/hcsync/internal/chat"
	"github.com/harmonichat/hcsync/internal/wall"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cache.db")
	db, err := OpenSQLite(path, zap.NewNop())
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	store, err := NewStore(StoreConfig{Database: db})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store
}

func TestSaveAndLoadPostsRoundTrip(t *testing.T) {
	store := openTestStore(t)
	posted := time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC)

	posts := []wall.Post{
		{
			ID:           "p1",
			AuthorID:     "u1",
			AuthorName:   "Ana Pérez",
			Content:      "hola",
			LikeCount:    3,
			CommentCount: 1,
			PostedAt:     posted,
			Tags:         []wall.TaggedUser{{ID: "u2", Name: "Luis"}},
		},
		{ID: "p2", AuthorID: "u2", Content: "foto", PostedAt: posted.Add(-time.Hour)},
	}
	if err := store.SavePosts("fam-1", posts); err != nil {
		t.Fatalf("SavePosts: %v", err)
	}

	loaded, err := store.LoadPosts("fam-1")
	if err != nil {
		t.Fatalf("LoadPosts: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("expected 2 posts, got %d", len(loaded))
	}
	if loaded[0].ID != "p1" {
		t.Fatalf("expected newest first, got %s", loaded[0].ID)
	}
	if len(loaded[0].Tags) != 1 || loaded[0].Tags[0].ID != "u2" {
		t.Fatalf("tags did not survive the round trip: %+v", loaded[0].Tags)
	}
}

func TestSavePostsReplacesPreviousSnapshot(t *testing.T) {
	store := openTestStore(t)
	if err := store.SavePosts("fam-1", []wall.Post{{ID: "stale"}}); err != nil {
		t.Fatalf("SavePosts: %v", err)
	}
	if err := store.SavePosts("fam-1", []wall.Post{{ID: "fresh"}}); err != nil {
		t.Fatalf("SavePosts: %v", err)
	}

	loaded, err := store.LoadPosts("fam-1")
	if err != nil {
		t.Fatalf("LoadPosts: %v", err)
	}
	if len(loaded) != 1 || loaded[0].ID != "fresh" {
		t.Fatalf("expected only the fresh snapshot, got %+v", loaded)
	}
}

func TestPostsAreScopedByFamily(t *testing.T) {
	store := openTestStore(t)
	store.SavePosts("fam-1", []wall.Post{{ID: "p1"}})
	store.SavePosts("fam-2", []wall.Post{{ID: "p2"}})

	loaded, err := store.LoadPosts("fam-1")
	if err != nil {
		t.Fatalf("LoadPosts: %v", err)
	}
	if len(loaded) != 1 || loaded[0].ID != "p1" {
		t.Fatalf("family scoping broken: %+v", loaded)
	}
}

func TestSaveAndLoadMessagesRoundTrip(t *testing.T) {
	store := openTestStore(t)
	sent := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

	messages := []chat.Message{
		{ID: "m1", AuthorID: "u1", Author: "Ana", Content: "hola", Type: chat.MessageTypeText, SentAt: sent},
		{ID: "m2", AuthorID: "u2", Content: "foto", Type: chat.MessageTypeImage, SentAt: sent.Add(time.Minute)},
	}
	if err := store.SaveMessages("fam-1", messages); err != nil {
		t.Fatalf("SaveMessages: %v", err)
	}

	loaded, err := store.LoadMessages("fam-1")
	if err != nil {
		t.Fatalf("LoadMessages: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(loaded))
	}
	if loaded[0].ID != "m1" || loaded[1].ID != "m2" {
		t.Fatalf("expected oldest first, got %s, %s", loaded[0].ID, loaded[1].ID)
	}
	if loaded[1].Type != chat.MessageTypeImage {
		t.Fatalf("message type lost: %q", loaded[1].Type)
	}
}

func TestApplyMigrationsScrubsPlaceholderFileURLs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "migration.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&CachedPost{}, &CachedMessage{}, &migrationRecord{}); err != nil {
		t.Fatalf("migrate schema: %v", err)
	}

	if err := db.Create(&CachedPost{ID: "p1", FamilyID: "fam-1", FilesURL: "[null]"}).Error; err != nil {
		t.Fatalf("insert post: %v", err)
	}

	if err := applyMigrations(db, zap.NewNop()); err != nil {
		t.Fatalf("applyMigrations: %v", err)
	}

	var stored CachedPost
	if err := db.Where("id = ?", "p1").Take(&stored).Error; err != nil {
		t.Fatalf("reload post: %v", err)
	}
	if stored.FilesURL != "" {
		t.Fatalf("placeholder url not scrubbed: %q", stored.FilesURL)
	}

	var record migrationRecord
	if err := db.Where("name = ?", migrationScrubPlaceholderFileURLs).Take(&record).Error; err != nil {
		t.Fatalf("expected migration record: %v", err)
	}
}
