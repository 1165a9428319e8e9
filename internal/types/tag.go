package types

// Tag is a short free-text label the model attached to an entry.
// Names are not unique; the same tag may exist on many entries.
type Tag struct {
	ID      int64       `gorm:"primaryKey;autoIncrement" json:"id"`
	EntryID int64       `gorm:"not null;index;column:entry_id" json:"entry_id"`
	Entry   *DiaryEntry `gorm:"foreignKey:EntryID;constraint:OnDelete:CASCADE" json:"-"`
	Name    string      `gorm:"not null;column:name" json:"name"`
}

func (Tag) TableName() string {
	return "tags"
}

// TagCount feeds the tag cloud view.
type TagCount struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}
