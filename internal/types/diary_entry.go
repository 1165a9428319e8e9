package types

import (
	"time"
)

// DiaryEntry is one journal submission. Rows are never physically deleted
// by the app flow; IsDeleted hides them from every listing.
type DiaryEntry struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	DateMillis int64     `gorm:"not null;index;column:date_millis" json:"date_millis"`
	Text       string    `gorm:"not null;column:text" json:"text"`
	IsDeleted  bool      `gorm:"not null;default:false;column:is_deleted" json:"is_deleted"`
	EntryColor string    `gorm:"column:entry_color" json:"entry_color"`
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time `gorm:"not null" json:"updated_at"`

	Tags []Tag `gorm:"foreignKey:EntryID" json:"tags,omitempty"`
}

func (DiaryEntry) TableName() string {
	return "entries"
}

// DiaryWithTags is the row shape the home feed observes.
type DiaryWithTags struct {
	Entry DiaryEntry `json:"entry"`
	Tags  []Tag      `json:"tags"`
}

// DiaryWithAnalysis joins an entry with its (at most one) analysis row.
type DiaryWithAnalysis struct {
	Entry    DiaryEntry     `json:"entry"`
	Analysis *DiaryAnalysis `json:"analysis,omitempty"`
}
