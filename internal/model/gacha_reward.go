package model

import (
	"time"

	"gorm.io/datatypes"
)

type RewardType string

const (
	RewardDiscountCoupon     RewardType = "discount_coupon"
	RewardFreeTrial          RewardType = "free_trial"
	RewardCourseVoucher      RewardType = "course_voucher"
	RewardVIPUpgrade         RewardType = "vip_upgrade"
	RewardSubscriptionExtend RewardType = "subscription_extend"
	RewardPhysicalGift       RewardType = "physical_gift"
	RewardPointsBonus        RewardType = "points_bonus"
	RewardCustom             RewardType = "custom"
)

type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
)

type DeliveryType string

const (
	DeliveryAuto     DeliveryType = "auto"
	DeliveryManual   DeliveryType = "manual"
	DeliveryPhysical DeliveryType = "physical"
)

// GachaReward is a catalog entry. RewardValue is an opaque payload the
// fulfillment side interprets per RewardType.
// StockRemaining is nil when the reward is unlimited.
type GachaReward struct {
	ID             uint64         `gorm:"primaryKey;autoIncrement"`
	Name           string         `gorm:"size:120;not null"`
	RewardType     RewardType     `gorm:"column:reward_type;size:32;not null"`
	Rarity         Rarity         `gorm:"size:16;not null;default:'common'"`
	RewardValue    datatypes.JSON `gorm:"column:reward_value"`
	UsageLimit     *int           `gorm:"column:usage_limit"`
	ValidDays      *int           `gorm:"column:valid_days"`
	StockTotal     *int           `gorm:"column:stock_total"`
	StockRemaining *int           `gorm:"column:stock_remaining"`
	DeliveryType   DeliveryType   `gorm:"column:delivery_type;size:16;not null;default:'auto'"`
	CreatedAt      time.Time      `gorm:"autoCreateTime"`
	UpdatedAt      time.Time      `gorm:"autoUpdateTime"`
}

func (GachaReward) TableName() string {
	return "gacha_rewards"
}

// Tracked reports whether this reward has finite stock.
func (r *GachaReward) Tracked() bool {
	return r.StockRemaining != nil
}
