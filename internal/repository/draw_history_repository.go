package repository

import (
	"context"

	"github.com/otonoha/academy-backend/internal/model"
	"gorm.io/gorm"
)

// DrawHistoryRepository writes immutable draw batch records. There is no
// update or delete path.
type DrawHistoryRepository interface {
	WithTx(tx *gorm.DB) DrawHistoryRepository

	Create(ctx context.Context, h *model.DrawHistory) error
	ListByUser(ctx context.Context, uid string, limit int) ([]model.DrawHistory, error)
}

type drawHistoryRepository struct {
	db *gorm.DB
}

func NewDrawHistoryRepository(db *gorm.DB) DrawHistoryRepository {
	return &drawHistoryRepository{db: db}
}

func (r *drawHistoryRepository) WithTx(tx *gorm.DB) DrawHistoryRepository {
	return &drawHistoryRepository{db: tx}
}

func (r *drawHistoryRepository) Create(ctx context.Context, h *model.DrawHistory) error {
	return r.db.WithContext(ctx).Create(h).Error
}

func (r *drawHistoryRepository) ListByUser(ctx context.Context, uid string, limit int) ([]model.DrawHistory, error) {
	var list []model.DrawHistory
	err := r.db.WithContext(ctx).
		Where("user_uid = ?", uid).
		Order("id DESC").
		Limit(limit).
		Find(&list).Error
	if err != nil {
		return nil, err
	}
	return list, nil
}
