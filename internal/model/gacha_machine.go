package model

import "time"

// GachaMachine is one draw machine with its pricing and activity window.
type GachaMachine struct {
	ID             uint64     `gorm:"primaryKey;autoIncrement"`
	MachineSlug    string     `gorm:"column:machine_slug;size:64;uniqueIndex;not null"`
	Name           string     `gorm:"size:120;not null"`
	Description    string     `gorm:"type:text"`
	SingleDrawCost int64      `gorm:"column:single_draw_cost;not null"`
	TenDrawCost    int64      `gorm:"column:ten_draw_cost;not null"`
	TenDrawBonus   int        `gorm:"column:ten_draw_bonus;not null;default:0"`
	StartTime      *time.Time `gorm:"column:start_time"`
	EndTime        *time.Time `gorm:"column:end_time"`
	IsActive       bool       `gorm:"column:is_active;not null;default:true"`
	CreatedAt      time.Time  `gorm:"autoCreateTime"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime"`
}

func (GachaMachine) TableName() string {
	return "gacha_machines"
}

// AvailableAt reports whether the machine accepts draws at t.
func (m *GachaMachine) AvailableAt(t time.Time) bool {
	if !m.IsActive {
		return false
	}
	if m.StartTime != nil && t.Before(*m.StartTime) {
		return false
	}
	if m.EndTime != nil && t.After(*m.EndTime) {
		return false
	}
	return true
}
