package model

import (
	"time"

	"gorm.io/datatypes"
)

type UserRewardStatus string

const (
	UserRewardActive    UserRewardStatus = "active"
	UserRewardUsed      UserRewardStatus = "used"
	UserRewardExpired   UserRewardStatus = "expired"
	UserRewardCancelled UserRewardStatus = "cancelled"
)

type DeliveryStatus string

const (
	DeliveryPending    DeliveryStatus = "pending"
	DeliveryProcessing DeliveryStatus = "processing"
	DeliveryShipped    DeliveryStatus = "shipped"
	DeliveryDelivered  DeliveryStatus = "delivered"
	DeliveryCancelled  DeliveryStatus = "cancelled"
)

// UserReward is one won reward instance owned by a user.
//
// Lifecycle: active to used (redeemed), active to expired (validity window
// passed), active to cancelled (admin). Physical rewards additionally carry a
// delivery status.
type UserReward struct {
	ID             uint64           `gorm:"primaryKey;autoIncrement"`
	UserUID        string           `gorm:"column:user_uid;size:128;index;not null"`
	RewardID       uint64           `gorm:"column:reward_id;index;not null"`
	DrawHistoryID  *uint64          `gorm:"column:draw_history_id;index"`
	RewardCode     string           `gorm:"column:reward_code;size:32;uniqueIndex;not null"`
	Status         UserRewardStatus `gorm:"size:16;not null;default:'active';index"`
	UsageCount     int              `gorm:"column:usage_count;not null;default:0"`
	UsageLimit     *int             `gorm:"column:usage_limit"`
	ObtainedAt     time.Time        `gorm:"column:obtained_at;not null"`
	ExpiresAt      *time.Time       `gorm:"column:expires_at;index"`
	UsedAt         *time.Time       `gorm:"column:used_at"`
	DeliveryStatus *DeliveryStatus  `gorm:"column:delivery_status;size:16"`
	Metadata       datatypes.JSON   `gorm:"column:metadata"`
	CreatedAt      time.Time        `gorm:"autoCreateTime"`
	UpdatedAt      time.Time        `gorm:"autoUpdateTime"`

	Reward *GachaReward `gorm:"foreignKey:RewardID"`
}

func (UserReward) TableName() string {
	return "user_rewards"
}

// ExpiredAt reports whether the reward's validity window has passed at t.
func (r *UserReward) ExpiredAt(t time.Time) bool {
	return r.ExpiresAt != nil && r.ExpiresAt.Before(t)
}
