package repository

import (
	"context"

	"github.com/otonoha/academy-backend/internal/model"
	"gorm.io/gorm"
)

type RewardRepository interface {
	WithTx(tx *gorm.DB) RewardRepository

	FindByID(ctx context.Context, id uint64) (*model.GachaReward, error)
	// DecrementStock atomically takes one unit of stock. Returns false when
	// the reward tracks stock and none remains; stock can never go negative.
	DecrementStock(ctx context.Context, rewardID uint64) (bool, error)
}

type rewardRepository struct {
	db *gorm.DB
}

func NewRewardRepository(db *gorm.DB) RewardRepository {
	return &rewardRepository{db: db}
}

func (r *rewardRepository) WithTx(tx *gorm.DB) RewardRepository {
	return &rewardRepository{db: tx}
}

func (r *rewardRepository) FindByID(ctx context.Context, id uint64) (*model.GachaReward, error) {
	var rw model.GachaReward
	if err := r.db.WithContext(ctx).First(&rw, id).Error; err != nil {
		return nil, err
	}
	return &rw, nil
}

func (r *rewardRepository) DecrementStock(ctx context.Context, rewardID uint64) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.GachaReward{}).
		Where("id = ? AND stock_remaining > 0", rewardID).
		Update("stock_remaining", gorm.Expr("stock_remaining - 1"))
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected > 0 {
		return true, nil
	}
	// Either untracked stock (nothing to decrement) or exhausted; a second
	// lookup distinguishes the two.
	var n int64
	err := r.db.WithContext(ctx).
		Model(&model.GachaReward{}).
		Where("id = ? AND stock_remaining IS NULL", rewardID).
		Count(&n).Error
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
