package model

import (
	"time"

	"gorm.io/datatypes"
)

type DrawType string

const (
	DrawSingle DrawType = "single"
	DrawTen    DrawType = "ten"
)

// WonReward is the denormalized snapshot of one won reward at draw time,
// stored inside DrawHistory.RewardsWon. It survives later catalog edits.
type WonReward struct {
	RewardID   uint64     `json:"reward_id"`
	Name       string     `json:"name"`
	RewardType RewardType `json:"reward_type"`
	Rarity     Rarity     `json:"rarity"`
}

// DrawHistory summarizes one draw batch. Immutable once written.
type DrawHistory struct {
	ID          uint64         `gorm:"primaryKey;autoIncrement"`
	UserUID     string         `gorm:"column:user_uid;size:128;index;not null"`
	MachineID   uint64         `gorm:"column:machine_id;index;not null"`
	DrawType    DrawType       `gorm:"column:draw_type;size:8;not null"`
	PointsSpent int64          `gorm:"column:points_spent;not null"`
	DrawCount   int            `gorm:"column:draw_count;not null"`
	RewardsWon  datatypes.JSON `gorm:"column:rewards_won"`
	CreatedAt   time.Time      `gorm:"autoCreateTime"`
}

func (DrawHistory) TableName() string {
	return "draw_histories"
}
