package repos

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/inkwelldiary/inkwell/internal/logger"
	"github.com/inkwelldiary/inkwell/internal/types"
)

type DiaryEntryRepo interface {
	Insert(ctx context.Context, tx *gorm.DB, entry *types.DiaryEntry) (int64, error)
	Update(ctx context.Context, tx *gorm.DB, entry *types.DiaryEntry) error
	SoftDelete(ctx context.Context, tx *gorm.DB, id int64) error
	GetByID(ctx context.Context, tx *gorm.DB, id int64) (*types.DiaryEntry, error)
	ListActiveWithTags(ctx context.Context, tx *gorm.DB) ([]types.DiaryWithTags, error)
	SearchByTag(ctx context.Context, tx *gorm.DB, tag string) ([]types.DiaryEntry, error)
	ClearAll(ctx context.Context, tx *gorm.DB) error
}

type diaryEntryRepo struct {
	db   *gorm.DB
	log  *logger.Logger
	feed *ChangeFeed
}

func NewDiaryEntryRepo(db *gorm.DB, baseLog *logger.Logger, feed *ChangeFeed) DiaryEntryRepo {
	return &diaryEntryRepo{db: db, log: baseLog.With("repo", "DiaryEntryRepo"), feed: feed}
}

// Insert persists a new entry and returns its auto-assigned id. When tx
// is nil the write commits immediately and the change feed fires; inside
// an outer transaction the caller publishes after commit.
func (r *diaryEntryRepo) Insert(ctx context.Context, tx *gorm.DB, entry *types.DiaryEntry) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if err := transaction.WithContext(ctx).Create(entry).Error; err != nil {
		return 0, err
	}
	if tx == nil {
		r.feed.Publish(TableEntries)
	}
	return entry.ID, nil
}

func (r *diaryEntryRepo) Update(ctx context.Context, tx *gorm.DB, entry *types.DiaryEntry) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if err := transaction.WithContext(ctx).Save(entry).Error; err != nil {
		return err
	}
	if tx == nil {
		r.feed.Publish(TableEntries)
	}
	return nil
}

func (r *diaryEntryRepo) SoftDelete(ctx context.Context, tx *gorm.DB, id int64) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	err := transaction.WithContext(ctx).
		Model(&types.DiaryEntry{}).
		Where("id = ?", id).
		Update("is_deleted", true).Error
	if err != nil {
		return err
	}
	if tx == nil {
		r.feed.Publish(TableEntries)
	}
	return nil
}

func (r *diaryEntryRepo) GetByID(ctx context.Context, tx *gorm.DB, id int64) (*types.DiaryEntry, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var entry types.DiaryEntry
	err := transaction.WithContext(ctx).
		Where("id = ?", id).
		Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *diaryEntryRepo) ListActiveWithTags(ctx context.Context, tx *gorm.DB) ([]types.DiaryWithTags, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var rows []types.DiaryEntry
	err := transaction.WithContext(ctx).
		Preload("Tags").
		Where("is_deleted = ?", false).
		Order("date_millis DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]types.DiaryWithTags, 0, len(rows))
	for _, row := range rows {
		tags := row.Tags
		row.Tags = nil
		out = append(out, types.DiaryWithTags{Entry: row, Tags: tags})
	}
	return out, nil
}

// SearchByTag returns entries owning at least one tag whose name
// fuzzy-matches (substring) the given text. Soft-deleted entries are
// excluded.
func (r *diaryEntryRepo) SearchByTag(ctx context.Context, tx *gorm.DB, tag string) ([]types.DiaryEntry, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []types.DiaryEntry
	sub := transaction.Model(&types.Tag{}).
		Select("entry_id").
		Where("name LIKE ?", "%"+tag+"%")
	err := transaction.WithContext(ctx).
		Where("is_deleted = ?", false).
		Where("id IN (?)", sub).
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// ClearAll wipes every entry row. Development/reset use only.
func (r *diaryEntryRepo) ClearAll(ctx context.Context, tx *gorm.DB) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if err := transaction.WithContext(ctx).Exec(`DELETE FROM entries`).Error; err != nil {
		return err
	}
	if tx == nil {
		r.feed.Publish(TableEntries)
	}
	return nil
}
