package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/otonoha/academy-backend/internal/model"
	"github.com/otonoha/academy-backend/internal/repository"
	"gorm.io/gorm"
)

// FulfillmentService owns the lifecycle of won reward instances:
// active to used on redemption, active to expired via the sweep or lazily at
// redemption time, active to cancelled by admin action. Physical rewards also
// carry a delivery status driven by admin transitions.
type FulfillmentService interface {
	Redeem(ctx context.Context, uid string, userRewardID uint64) (*model.UserReward, error)
	ListUserRewards(ctx context.Context, uid string, status model.UserRewardStatus, limit int) ([]model.UserReward, error)
	// Sweep expires every active reward past its validity window.
	// Idempotent; a second run transitions nothing.
	Sweep(ctx context.Context, now time.Time) (int64, error)
	Cancel(ctx context.Context, userRewardID uint64, reason string) (*model.UserReward, error)
	UpdateDelivery(ctx context.Context, userRewardID uint64, status model.DeliveryStatus) (*model.UserReward, error)
}

type fulfillmentService struct {
	txr     repository.TxRunner
	owned   repository.UserRewardRepository
	rewards repository.RewardRepository
	ledger  LedgerService
	now     func() time.Time
}

func NewFulfillmentService(txr repository.TxRunner, owned repository.UserRewardRepository, rewards repository.RewardRepository, ledger LedgerService) FulfillmentService {
	return &fulfillmentService{txr: txr, owned: owned, rewards: rewards, ledger: ledger, now: time.Now}
}

func (s *fulfillmentService) Redeem(ctx context.Context, uid string, userRewardID uint64) (*model.UserReward, error) {
	now := s.now()
	var out *model.UserReward
	err := withTxRetry(ctx, func() error {
		return s.txr.Transaction(ctx, func(tx *gorm.DB) error {
			ownedRepo := s.owned.WithTx(tx)

			ur, err := ownedRepo.FindByIDForUpdate(ctx, userRewardID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrNotFound
				}
				return err
			}
			if uid != "" && ur.UserUID != uid {
				return ErrNotFound
			}
			switch ur.Status {
			case model.UserRewardUsed:
				return ErrAlreadyUsed
			case model.UserRewardExpired:
				return ErrExpired
			case model.UserRewardCancelled:
				return ErrRewardCancelled
			}
			// Expiry is checked against now at redemption time, not only by
			// the periodic sweep.
			if ur.ExpiredAt(now) {
				ur.Status = model.UserRewardExpired
				if err := ownedRepo.Save(ctx, ur); err != nil {
					return err
				}
				return ErrExpired
			}

			ur.UsageCount++
			if ur.UsageLimit == nil || ur.UsageCount >= *ur.UsageLimit {
				ur.Status = model.UserRewardUsed
				ur.UsedAt = &now
			}
			if err := ownedRepo.Save(ctx, ur); err != nil {
				return err
			}

			if err := s.applyRewardValue(ctx, tx, ur); err != nil {
				return err
			}
			out = ur
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// applyRewardValue settles auto-fulfilled reward payloads. A points_bonus
// reward credits its payload back into the ledger inside the same
// transaction as the status change.
func (s *fulfillmentService) applyRewardValue(ctx context.Context, tx *gorm.DB, ur *model.UserReward) error {
	rw, err := s.rewards.WithTx(tx).FindByID(ctx, ur.RewardID)
	if err != nil {
		return fmt.Errorf("load catalog reward %d: %w", ur.RewardID, err)
	}
	if rw.RewardType != model.RewardPointsBonus {
		return nil
	}
	var payload struct {
		Points int64 `json:"points"`
	}
	if len(rw.RewardValue) > 0 {
		if err := json.Unmarshal(rw.RewardValue, &payload); err != nil {
			return fmt.Errorf("decode reward value for reward %d: %w", rw.ID, err)
		}
	}
	if payload.Points <= 0 {
		return nil
	}
	_, err = s.ledger.EarnInTx(ctx, tx, ur.UserUID, payload.Points,
		model.TxEarnEvent, model.SourceGachaDraw, strconv.FormatUint(ur.ID, 10),
		"points bonus from "+rw.Name)
	return err
}

const defaultRewardPageSize = 50

func (s *fulfillmentService) ListUserRewards(ctx context.Context, uid string, status model.UserRewardStatus, limit int) ([]model.UserReward, error) {
	if limit <= 0 || limit > 200 {
		limit = defaultRewardPageSize
	}
	return s.owned.ListByUser(ctx, uid, status, limit)
}

func (s *fulfillmentService) Sweep(ctx context.Context, now time.Time) (int64, error) {
	return s.owned.ExpireDue(ctx, now)
}

func (s *fulfillmentService) Cancel(ctx context.Context, userRewardID uint64, reason string) (*model.UserReward, error) {
	var out *model.UserReward
	err := withTxRetry(ctx, func() error {
		return s.txr.Transaction(ctx, func(tx *gorm.DB) error {
			ownedRepo := s.owned.WithTx(tx)
			ur, err := ownedRepo.FindByIDForUpdate(ctx, userRewardID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrNotFound
				}
				return err
			}
			if ur.Status == model.UserRewardUsed {
				return ErrAlreadyUsed
			}
			ur.Status = model.UserRewardCancelled
			if ur.DeliveryStatus != nil && *ur.DeliveryStatus != model.DeliveryDelivered {
				d := model.DeliveryCancelled
				ur.DeliveryStatus = &d
			}
			meta := map[string]any{"cancel_reason": reason}
			if len(ur.Metadata) > 0 {
				var prev map[string]any
				if err := json.Unmarshal(ur.Metadata, &prev); err == nil {
					prev["cancel_reason"] = reason
					meta = prev
				}
			}
			if b, err := json.Marshal(meta); err == nil {
				ur.Metadata = b
			}
			if err := ownedRepo.Save(ctx, ur); err != nil {
				return err
			}
			out = ur
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// deliveryNext defines the allowed forward transitions for physical rewards.
var deliveryNext = map[model.DeliveryStatus]map[model.DeliveryStatus]bool{
	model.DeliveryPending:    {model.DeliveryProcessing: true, model.DeliveryCancelled: true},
	model.DeliveryProcessing: {model.DeliveryShipped: true, model.DeliveryCancelled: true},
	model.DeliveryShipped:    {model.DeliveryDelivered: true},
}

func (s *fulfillmentService) UpdateDelivery(ctx context.Context, userRewardID uint64, status model.DeliveryStatus) (*model.UserReward, error) {
	var out *model.UserReward
	err := withTxRetry(ctx, func() error {
		return s.txr.Transaction(ctx, func(tx *gorm.DB) error {
			ownedRepo := s.owned.WithTx(tx)
			ur, err := ownedRepo.FindByIDForUpdate(ctx, userRewardID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrNotFound
				}
				return err
			}
			if ur.DeliveryStatus == nil {
				return fmt.Errorf("reward %d is not a physical reward: %w", userRewardID, ErrNotFound)
			}
			if !deliveryNext[*ur.DeliveryStatus][status] {
				return fmt.Errorf("delivery transition %s to %s not allowed: %w", *ur.DeliveryStatus, status, ErrForbidden)
			}
			ur.DeliveryStatus = &status
			if err := ownedRepo.Save(ctx, ur); err != nil {
				return err
			}
			out = ur
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
