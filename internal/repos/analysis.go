package repos

import (
	"context"
	"database/sql"
	"errors"

	"gorm.io/gorm"

	"github.com/inkwelldiary/inkwell/internal/logger"
	"github.com/inkwelldiary/inkwell/internal/types"
)

// AnalysisRepo reads and writes the per-entry analysis rows. The
// per-field getters return nil both when no analysis row exists and when
// the column is NULL — "absent" is one state to readers, never a
// sentinel value.
type AnalysisRepo interface {
	Insert(ctx context.Context, tx *gorm.DB, analysis *types.DiaryAnalysis) error
	GetForEntry(ctx context.Context, tx *gorm.DB, entryID int64) (*types.DiaryAnalysis, error)
	SearchByMood(ctx context.Context, tx *gorm.DB, mood string) ([]types.DiaryAnalysis, error)

	Mood(ctx context.Context, tx *gorm.DB, entryID int64) (*string, error)
	MoodConfidence(ctx context.Context, tx *gorm.DB, entryID int64) (*float64, error)
	Summary(ctx context.Context, tx *gorm.DB, entryID int64) (*string, error)
	ReflectionQuestions(ctx context.Context, tx *gorm.DB, entryID int64) (*string, error)
	WritingStyle(ctx context.Context, tx *gorm.DB, entryID int64) (*string, error)
	EmotionDistribution(ctx context.Context, tx *gorm.DB, entryID int64) (*string, error)
	StressLevel(ctx context.Context, tx *gorm.DB, entryID int64) (*int, error)
	Tone(ctx context.Context, tx *gorm.DB, entryID int64) (*string, error)
	SelfHelp(ctx context.Context, tx *gorm.DB, entryID int64) (*string, error)

	ClearAll(ctx context.Context, tx *gorm.DB) error
}

type analysisRepo struct {
	db   *gorm.DB
	log  *logger.Logger
	feed *ChangeFeed
}

func NewAnalysisRepo(db *gorm.DB, baseLog *logger.Logger, feed *ChangeFeed) AnalysisRepo {
	return &analysisRepo{db: db, log: baseLog.With("repo", "AnalysisRepo"), feed: feed}
}

func (r *analysisRepo) Insert(ctx context.Context, tx *gorm.DB, analysis *types.DiaryAnalysis) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if err := transaction.WithContext(ctx).Create(analysis).Error; err != nil {
		return err
	}
	if tx == nil {
		r.feed.Publish(TableAnalysis)
	}
	return nil
}

func (r *analysisRepo) GetForEntry(ctx context.Context, tx *gorm.DB, entryID int64) (*types.DiaryAnalysis, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var analysis types.DiaryAnalysis
	err := transaction.WithContext(ctx).
		Where("entry_id = ?", entryID).
		Take(&analysis).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &analysis, nil
}

func (r *analysisRepo) SearchByMood(ctx context.Context, tx *gorm.DB, mood string) ([]types.DiaryAnalysis, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []types.DiaryAnalysis
	err := transaction.WithContext(ctx).
		Where("mood = ?", mood).
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (r *analysisRepo) stringField(ctx context.Context, tx *gorm.DB, entryID int64, column string) (*string, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var val sql.NullString
	err := transaction.WithContext(ctx).
		Model(&types.DiaryAnalysis{}).
		Select(column).
		Where("entry_id = ?", entryID).
		Limit(1).
		Scan(&val).Error
	if err != nil {
		return nil, err
	}
	if !val.Valid {
		return nil, nil
	}
	s := val.String
	return &s, nil
}

func (r *analysisRepo) Mood(ctx context.Context, tx *gorm.DB, entryID int64) (*string, error) {
	return r.stringField(ctx, tx, entryID, "mood")
}

func (r *analysisRepo) Summary(ctx context.Context, tx *gorm.DB, entryID int64) (*string, error) {
	return r.stringField(ctx, tx, entryID, "summary")
}

func (r *analysisRepo) ReflectionQuestions(ctx context.Context, tx *gorm.DB, entryID int64) (*string, error) {
	return r.stringField(ctx, tx, entryID, "reflection_questions")
}

func (r *analysisRepo) WritingStyle(ctx context.Context, tx *gorm.DB, entryID int64) (*string, error) {
	return r.stringField(ctx, tx, entryID, "writing_style")
}

func (r *analysisRepo) EmotionDistribution(ctx context.Context, tx *gorm.DB, entryID int64) (*string, error) {
	return r.stringField(ctx, tx, entryID, "emotion_distribution")
}

func (r *analysisRepo) Tone(ctx context.Context, tx *gorm.DB, entryID int64) (*string, error) {
	return r.stringField(ctx, tx, entryID, "tone")
}

func (r *analysisRepo) SelfHelp(ctx context.Context, tx *gorm.DB, entryID int64) (*string, error) {
	return r.stringField(ctx, tx, entryID, "selfhelp")
}

func (r *analysisRepo) MoodConfidence(ctx context.Context, tx *gorm.DB, entryID int64) (*float64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var val sql.NullFloat64
	err := transaction.WithContext(ctx).
		Model(&types.DiaryAnalysis{}).
		Select("mood_confidence").
		Where("entry_id = ?", entryID).
		Limit(1).
		Scan(&val).Error
	if err != nil {
		return nil, err
	}
	if !val.Valid {
		return nil, nil
	}
	f := val.Float64
	return &f, nil
}

func (r *analysisRepo) StressLevel(ctx context.Context, tx *gorm.DB, entryID int64) (*int, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var val sql.NullInt64
	err := transaction.WithContext(ctx).
		Model(&types.DiaryAnalysis{}).
		Select("stress_level").
		Where("entry_id = ?", entryID).
		Limit(1).
		Scan(&val).Error
	if err != nil {
		return nil, err
	}
	if !val.Valid {
		return nil, nil
	}
	i := int(val.Int64)
	return &i, nil
}

func (r *analysisRepo) ClearAll(ctx context.Context, tx *gorm.DB) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if err := transaction.WithContext(ctx).Exec(`DELETE FROM diary_analysis`).Error; err != nil {
		return err
	}
	if tx == nil {
		r.feed.Publish(TableAnalysis)
	}
	return nil
}
