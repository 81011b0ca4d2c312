// Package cache persists the reconciled wall and chat transcript to a local
// SQLite file, so a restart renders the last known state while the first
// fetch is still in flight. The cache is write-behind and disposable: any
// load failure is answered by deleting the file and starting cold.
package cache

import "time"

// CachedPost is one wall post as last reconciled, scoped to a family.
type CachedPost struct {
	ID           string    `gorm:"column:id;primaryKey;size:190;not null"`
	FamilyID     string    `gorm:"column:family_id;size:190;not null;index"`
	AuthorID     string    `gorm:"column:author_id;size:190"`
	AuthorName   string    `gorm:"column:author_name;size:320"`
	Content      string    `gorm:"column:content"`
	FilesURL     string    `gorm:"column:files_url;size:512"`
	Location     string    `gorm:"column:location;size:320"`
	TagsJSON     string    `gorm:"column:tags_json"`
	LikeCount    int64     `gorm:"column:like_count;not null"`
	CommentCount int64     `gorm:"column:comment_count;not null"`
	PostedAt     time.Time `gorm:"column:posted_at"`
	RawDate      string    `gorm:"column:raw_date;size:64"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName exposes the table backing cached posts.
func (CachedPost) TableName() string {
	return "wall_posts"
}

// CachedMessage is one chat message as last reconciled.
type CachedMessage struct {
	ID        string    `gorm:"column:id;primaryKey;size:190;not null"`
	FamilyID  string    `gorm:"column:family_id;size:190;not null;index"`
	AuthorID  string    `gorm:"column:author_id;size:190"`
	Author    string    `gorm:"column:author_name;size:320"`
	Content   string    `gorm:"column:content"`
	Type      string    `gorm:"column:message_type;size:16"`
	State     string    `gorm:"column:state;size:16"`
	FileURL   string    `gorm:"column:file_url;size:512"`
	SentAt    time.Time `gorm:"column:sent_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName exposes the table backing cached chat messages.
func (CachedMessage) TableName() string {
	return "chat_messages"
}
