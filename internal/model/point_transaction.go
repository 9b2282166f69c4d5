package model

import (
	"time"

	"gorm.io/datatypes"
)

type TransactionType string

const (
	TxEarnLogin    TransactionType = "earn_login"
	TxEarnTask     TransactionType = "earn_task"
	TxEarnReferral TransactionType = "earn_referral"
	TxEarnPurchase TransactionType = "earn_purchase"
	TxEarnEvent    TransactionType = "earn_event"
	TxEarnAdmin    TransactionType = "earn_admin"
	TxSpendGacha   TransactionType = "spend_gacha"
	TxSpendRedeem  TransactionType = "spend_redeem"
	TxExpire       TransactionType = "expire"
	TxRefund       TransactionType = "refund"
)

// IsEarn reports whether t credits available points.
func (t TransactionType) IsEarn() bool {
	switch t {
	case TxEarnLogin, TxEarnTask, TxEarnReferral, TxEarnPurchase, TxEarnEvent, TxEarnAdmin:
		return true
	}
	return false
}

func (t TransactionType) IsSpend() bool {
	return t == TxSpendGacha || t == TxSpendRedeem
}

// PointTransaction is an append-only ledger entry. Rows are never updated or
// deleted; corrections happen via refund entries.
type PointTransaction struct {
	ID              uint64          `gorm:"primaryKey;autoIncrement"`
	UserUID         string          `gorm:"column:user_uid;size:128;index;not null"`
	TransactionType TransactionType `gorm:"column:transaction_type;size:32;not null"`
	PointsChange    int64           `gorm:"column:points_change;not null"`
	BalanceAfter    int64           `gorm:"column:balance_after;not null"`
	SourceType      string          `gorm:"column:source_type;size:64"`
	SourceID        string          `gorm:"column:source_id;size:128;index"`
	Description     string          `gorm:"column:description;size:255"`
	ExpiresAt       *time.Time      `gorm:"column:expires_at;index"`
	Metadata        datatypes.JSON  `gorm:"column:metadata"`
	CreatedAt       time.Time       `gorm:"autoCreateTime"`
}

func (PointTransaction) TableName() string {
	return "point_transactions"
}
