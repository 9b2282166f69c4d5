package model

import "time"

// MachineReward binds a catalog reward into one machine's pool with a
// machine-scoped probability weight (0–100). Active rows of an active machine
// should sum to 100; the draw path tolerates pools that do not.
type MachineReward struct {
	ID           uint64    `gorm:"primaryKey;autoIncrement"`
	MachineID    uint64    `gorm:"column:machine_id;index;not null"`
	RewardID     uint64    `gorm:"column:reward_id;index;not null"`
	Probability  float64   `gorm:"not null"`
	Weight       int       `gorm:"not null;default:0"`
	IsActive     bool      `gorm:"column:is_active;not null;default:true"`
	DisplayOrder int       `gorm:"column:display_order;not null;default:0"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`

	Reward *GachaReward `gorm:"foreignKey:RewardID"`
}

func (MachineReward) TableName() string {
	return "machine_rewards"
}
