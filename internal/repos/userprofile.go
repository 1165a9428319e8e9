package repos

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/inkwelldiary/inkwell/internal/logger"
	"github.com/inkwelldiary/inkwell/internal/types"
)

// UserProfileRepo manages the singleton profile row. UpdateField writes
// one column at a time so concurrent enrichment rounds cannot clobber
// fields they did not touch.
type UserProfileRepo interface {
	Get(ctx context.Context, tx *gorm.DB) (*types.UserProfile, error)
	EnsureDefault(ctx context.Context, tx *gorm.DB) (*types.UserProfile, error)
	Update(ctx context.Context, tx *gorm.DB, profile *types.UserProfile) error
	UpdateField(ctx context.Context, tx *gorm.DB, column string, value interface{}) error
}

type userProfileRepo struct {
	db   *gorm.DB
	log  *logger.Logger
	feed *ChangeFeed
}

func NewUserProfileRepo(db *gorm.DB, baseLog *logger.Logger, feed *ChangeFeed) UserProfileRepo {
	return &userProfileRepo{db: db, log: baseLog.With("repo", "UserProfileRepo"), feed: feed}
}

func (r *userProfileRepo) Get(ctx context.Context, tx *gorm.DB) (*types.UserProfile, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var profile types.UserProfile
	err := transaction.WithContext(ctx).
		Order("id ASC").
		Take(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// EnsureDefault creates the empty profile row on first use so profile
// reads never observe a missing singleton.
func (r *userProfileRepo) EnsureDefault(ctx context.Context, tx *gorm.DB) (*types.UserProfile, error) {
	existing, err := r.Get(ctx, tx)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	profile := &types.UserProfile{Name: "", About: ""}
	if err := transaction.WithContext(ctx).Create(profile).Error; err != nil {
		return nil, err
	}
	r.log.Info("Created default user profile", "profile_id", profile.ID)
	if tx == nil {
		r.feed.Publish(TableProfile)
	}
	return profile, nil
}

func (r *userProfileRepo) Update(ctx context.Context, tx *gorm.DB, profile *types.UserProfile) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if err := transaction.WithContext(ctx).Save(profile).Error; err != nil {
		return err
	}
	if tx == nil {
		r.feed.Publish(TableProfile)
	}
	return nil
}

func (r *userProfileRepo) UpdateField(ctx context.Context, tx *gorm.DB, column string, value interface{}) error {
	profile, err := r.EnsureDefault(ctx, tx)
	if err != nil {
		return err
	}

	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	err = transaction.WithContext(ctx).
		Model(&types.UserProfile{}).
		Where("id = ?", profile.ID).
		Update(column, value).Error
	if err != nil {
		return err
	}
	if tx == nil {
		r.feed.Publish(TableProfile)
	}
	return nil
}
