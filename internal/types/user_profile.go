package types

import (
	"time"
)

// UserProfile is the singleton emotional-signature profile for the
// install. It is created lazily with empty defaults and then enriched
// field by field as new entries are analyzed; it is never deleted.
type UserProfile struct {
	ID    int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Name  string `gorm:"not null;default:'';column:name" json:"name"`
	About string `gorm:"not null;default:'';column:about" json:"about"`

	VisualMoodColour     string `gorm:"column:visual_mood_colour" json:"visual_mood_colour"`
	MoodSensitivityLevel *int   `gorm:"column:mood_sensitivity_level" json:"mood_sensitivity_level,omitempty"`
	ThinkingStyle        string `gorm:"column:thinking_style" json:"thinking_style"`
	LearningStyle        string `gorm:"column:learning_style" json:"learning_style"`
	WritingStyle         string `gorm:"column:writing_style" json:"writing_style"`
	EmotionalStrength    string `gorm:"column:emotional_strength" json:"emotional_strength"`
	EmotionalWeakness    string `gorm:"column:emotional_weakness" json:"emotional_weakness"`
	EmotionalSignature   string `gorm:"column:emotional_signature" json:"emotional_signature"`

	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (UserProfile) TableName() string {
	return "user_profile"
}
