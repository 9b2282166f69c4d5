package repository

import (
	"context"
	"time"

	"github.com/otonoha/academy-backend/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type UserRewardRepository interface {
	WithTx(tx *gorm.DB) UserRewardRepository

	Create(ctx context.Context, r *model.UserReward) error
	FindByID(ctx context.Context, id uint64) (*model.UserReward, error)
	// FindByIDForUpdate locks the row for a redemption or admin transition.
	FindByIDForUpdate(ctx context.Context, id uint64) (*model.UserReward, error)
	Save(ctx context.Context, r *model.UserReward) error
	ListByUser(ctx context.Context, uid string, status model.UserRewardStatus, limit int) ([]model.UserReward, error)
	// ExpireDue transitions every active reward whose validity window passed
	// to expired. Idempotent; returns the number of rows transitioned.
	ExpireDue(ctx context.Context, now time.Time) (int64, error)
	CodeExists(ctx context.Context, code string) (bool, error)
}

type userRewardRepository struct {
	db *gorm.DB
}

func NewUserRewardRepository(db *gorm.DB) UserRewardRepository {
	return &userRewardRepository{db: db}
}

func (r *userRewardRepository) WithTx(tx *gorm.DB) UserRewardRepository {
	return &userRewardRepository{db: tx}
}

func (r *userRewardRepository) Create(ctx context.Context, ur *model.UserReward) error {
	return r.db.WithContext(ctx).Create(ur).Error
}

func (r *userRewardRepository) FindByID(ctx context.Context, id uint64) (*model.UserReward, error) {
	var ur model.UserReward
	if err := r.db.WithContext(ctx).Preload("Reward").First(&ur, id).Error; err != nil {
		return nil, err
	}
	return &ur, nil
}

func (r *userRewardRepository) FindByIDForUpdate(ctx context.Context, id uint64) (*model.UserReward, error) {
	var ur model.UserReward
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&ur, id).Error
	if err != nil {
		return nil, err
	}
	return &ur, nil
}

func (r *userRewardRepository) Save(ctx context.Context, ur *model.UserReward) error {
	return r.db.WithContext(ctx).Save(ur).Error
}

func (r *userRewardRepository) ListByUser(ctx context.Context, uid string, status model.UserRewardStatus, limit int) ([]model.UserReward, error) {
	q := r.db.WithContext(ctx).Preload("Reward").Where("user_uid = ?", uid)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var list []model.UserReward
	if err := q.Order("id DESC").Limit(limit).Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *userRewardRepository) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&model.UserReward{}).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at < ?", model.UserRewardActive, now).
		Update("status", model.UserRewardExpired)
	return res.RowsAffected, res.Error
}

func (r *userRewardRepository) CodeExists(ctx context.Context, code string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&model.UserReward{}).
		Where("reward_code = ?", code).
		Count(&n).Error
	return n > 0, err
}
