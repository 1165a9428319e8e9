package repos

import (
	"context"

	"gorm.io/gorm"

	"github.com/inkwelldiary/inkwell/internal/logger"
	"github.com/inkwelldiary/inkwell/internal/types"
)

type TagRepo interface {
	Insert(ctx context.Context, tx *gorm.DB, tag *types.Tag) error
	InsertMany(ctx context.Context, tx *gorm.DB, tags []*types.Tag) error
	ListForEntry(ctx context.Context, tx *gorm.DB, entryID int64) ([]types.Tag, error)
	DeleteForEntry(ctx context.Context, tx *gorm.DB, entryID int64) error
	NameCounts(ctx context.Context, tx *gorm.DB) ([]types.TagCount, error)
	ClearAll(ctx context.Context, tx *gorm.DB) error
}

type tagRepo struct {
	db   *gorm.DB
	log  *logger.Logger
	feed *ChangeFeed
}

func NewTagRepo(db *gorm.DB, baseLog *logger.Logger, feed *ChangeFeed) TagRepo {
	return &tagRepo{db: db, log: baseLog.With("repo", "TagRepo"), feed: feed}
}

func (r *tagRepo) Insert(ctx context.Context, tx *gorm.DB, tag *types.Tag) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if err := transaction.WithContext(ctx).Create(tag).Error; err != nil {
		return err
	}
	if tx == nil {
		r.feed.Publish(TableTags)
	}
	return nil
}

func (r *tagRepo) InsertMany(ctx context.Context, tx *gorm.DB, tags []*types.Tag) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if len(tags) == 0 {
		return nil
	}
	if err := transaction.WithContext(ctx).Create(&tags).Error; err != nil {
		return err
	}
	if tx == nil {
		r.feed.Publish(TableTags)
	}
	return nil
}

func (r *tagRepo) ListForEntry(ctx context.Context, tx *gorm.DB, entryID int64) ([]types.Tag, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []types.Tag
	err := transaction.WithContext(ctx).
		Where("entry_id = ?", entryID).
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (r *tagRepo) DeleteForEntry(ctx context.Context, tx *gorm.DB, entryID int64) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	err := transaction.WithContext(ctx).
		Where("entry_id = ?", entryID).
		Delete(&types.Tag{}).Error
	if err != nil {
		return err
	}
	if tx == nil {
		r.feed.Publish(TableTags)
	}
	return nil
}

// NameCounts aggregates tag usage across non-deleted entries for the tag
// cloud view, most used first.
func (r *tagRepo) NameCounts(ctx context.Context, tx *gorm.DB) ([]types.TagCount, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []types.TagCount
	err := transaction.WithContext(ctx).
		Model(&types.Tag{}).
		Select("tags.name AS name, COUNT(*) AS count").
		Joins("JOIN entries ON entries.id = tags.entry_id AND entries.is_deleted = ?", false).
		Group("tags.name").
		Order("count DESC").
		Scan(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (r *tagRepo) ClearAll(ctx context.Context, tx *gorm.DB) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if err := transaction.WithContext(ctx).Exec(`DELETE FROM tags`).Error; err != nil {
		return err
	}
	if tx == nil {
		r.feed.Publish(TableTags)
	}
	return nil
}
