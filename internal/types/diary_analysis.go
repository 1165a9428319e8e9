package types

import (
	"time"

	"gorm.io/datatypes"
)

// DiaryAnalysis holds everything the model inferred for one entry. Every
// field is independently optional: the inference output is unreliable and
// a partially populated row is normal. Numeric fields are pointers so
// "unset" stays distinct from zero all the way to storage.
type DiaryAnalysis struct {
	ID      int64       `gorm:"primaryKey;autoIncrement" json:"id"`
	EntryID int64       `gorm:"not null;uniqueIndex;column:entry_id" json:"entry_id"`
	Entry   *DiaryEntry `gorm:"foreignKey:EntryID;constraint:OnDelete:CASCADE" json:"-"`

	Mood                string         `gorm:"column:mood" json:"mood"`
	MoodConfidence      *float64       `gorm:"column:mood_confidence" json:"mood_confidence,omitempty"`
	Summary             string         `gorm:"column:summary" json:"summary"`
	ReflectionQuestions string         `gorm:"column:reflection_questions" json:"reflection_questions"`
	WritingStyle        string         `gorm:"column:writing_style" json:"writing_style"`
	EmotionDistribution datatypes.JSON `gorm:"column:emotion_distribution" json:"emotion_distribution,omitempty"`
	StressLevel         *int           `gorm:"column:stress_level" json:"stress_level,omitempty"`
	Tone                string         `gorm:"column:tone" json:"tone"`
	SelfHelp            string         `gorm:"column:selfhelp" json:"selfhelp"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (DiaryAnalysis) TableName() string {
	return "diary_analysis"
}
