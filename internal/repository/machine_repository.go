package repository

import (
	"context"

	"github.com/otonoha/academy-backend/internal/model"
	"gorm.io/gorm"
)

type MachineRepository interface {
	WithTx(tx *gorm.DB) MachineRepository

	FindBySlug(ctx context.Context, slug string) (*model.GachaMachine, error)
	List(ctx context.Context, activeOnly bool) ([]model.GachaMachine, error)
	// LoadPool returns the machine's active pool rows with their catalog
	// rewards preloaded, in the deterministic draw order.
	LoadPool(ctx context.Context, machineID uint64) ([]model.MachineReward, error)
}

type machineRepository struct {
	db *gorm.DB
}

func NewMachineRepository(db *gorm.DB) MachineRepository {
	return &machineRepository{db: db}
}

func (r *machineRepository) WithTx(tx *gorm.DB) MachineRepository {
	return &machineRepository{db: tx}
}

func (r *machineRepository) FindBySlug(ctx context.Context, slug string) (*model.GachaMachine, error) {
	var m model.GachaMachine
	if err := r.db.WithContext(ctx).Where("machine_slug = ?", slug).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *machineRepository) List(ctx context.Context, activeOnly bool) ([]model.GachaMachine, error) {
	q := r.db.WithContext(ctx)
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	var list []model.GachaMachine
	if err := q.Order("id ASC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *machineRepository) LoadPool(ctx context.Context, machineID uint64) ([]model.MachineReward, error) {
	var rows []model.MachineReward
	err := r.db.WithContext(ctx).
		Preload("Reward").
		Where("machine_id = ? AND is_active = ?", machineID, true).
		Order("display_order ASC, reward_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
