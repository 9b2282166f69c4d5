package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/otonoha/academy-backend/internal/gacha"
	"github.com/otonoha/academy-backend/internal/model"
	"github.com/otonoha/academy-backend/internal/reqctx"
	"github.com/otonoha/academy-backend/internal/repository"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// IssuedReward is what the caller gets back for each won slot.
type IssuedReward struct {
	UserRewardID uint64           `json:"userRewardId"`
	RewardID     uint64           `json:"rewardId"`
	Name         string           `json:"name"`
	RewardType   model.RewardType `json:"rewardType"`
	Rarity       model.Rarity     `json:"rarity"`
	RewardCode   string           `json:"rewardCode"`
	ExpiresAt    *time.Time       `json:"expiresAt,omitempty"`
}

type DrawResult struct {
	DrawHistoryID uint64
	PointsSpent   int64
	Balance       int64
	Rewards       []IssuedReward
}

// DrawService executes draws against a machine's weighted pool. The ledger
// debit, stock decrements, draw history and reward minting run in one
// transaction: a failure anywhere rolls the whole batch back, so points are
// never spent without rewards issued.
type DrawService interface {
	Draw(ctx context.Context, uid, machineSlug string, drawType model.DrawType) (*DrawResult, error)
	ListMachines(ctx context.Context) ([]model.GachaMachine, error)
	ListHistory(ctx context.Context, uid string, limit int) ([]model.DrawHistory, error)
	// ValidateMachine returns admin-facing pool configuration warnings.
	ValidateMachine(ctx context.Context, machineSlug string) ([]string, error)
}

type drawService struct {
	txr      repository.TxRunner
	machines repository.MachineRepository
	rewards  repository.RewardRepository
	owned    repository.UserRewardRepository
	history  repository.DrawHistoryRepository
	ledger   LedgerService
	rng      gacha.RandomSource
	now      func() time.Time
}

func NewDrawService(
	txr repository.TxRunner,
	machines repository.MachineRepository,
	rewards repository.RewardRepository,
	owned repository.UserRewardRepository,
	history repository.DrawHistoryRepository,
	ledger LedgerService,
	rng gacha.RandomSource,
) DrawService {
	if rng == nil {
		rng = gacha.DefaultRNG()
	}
	return &drawService{
		txr:      txr,
		machines: machines,
		rewards:  rewards,
		owned:    owned,
		history:  history,
		ledger:   ledger,
		rng:      rng,
		now:      time.Now,
	}
}

func (s *drawService) Draw(ctx context.Context, uid, machineSlug string, drawType model.DrawType) (*DrawResult, error) {
	if drawType != model.DrawSingle && drawType != model.DrawTen {
		return nil, fmt.Errorf("unknown draw type %q: %w", drawType, ErrInvalidAmount)
	}
	now := s.now()

	machine, err := s.machines.FindBySlug(ctx, machineSlug)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMachineNotFound
		}
		return nil, err
	}
	if !machine.AvailableAt(now) {
		return nil, ErrMachineInactive
	}

	pool, err := s.machines.LoadPool(ctx, machine.ID)
	if err != nil {
		return nil, err
	}
	if len(pool) == 0 {
		return nil, ErrEmptyRewardPool
	}

	cost := machine.SingleDrawCost
	drawCount := 1
	if drawType == model.DrawTen {
		cost = machine.TenDrawCost
		drawCount = 10 + machine.TenDrawBonus
	}

	entries := make([]gacha.Entry, 0, len(pool))
	byReward := make(map[uint64]*model.GachaReward, len(pool))
	for i := range pool {
		row := &pool[i]
		if row.Reward == nil {
			// Pool row pointing at a deleted catalog reward; skip it the
			// same way an inactive row is skipped.
			continue
		}
		entries = append(entries, gacha.Entry{
			RewardID:     row.RewardID,
			Probability:  row.Probability,
			DisplayOrder: row.DisplayOrder,
		})
		byReward[row.RewardID] = row.Reward
	}
	if len(entries) == 0 {
		return nil, ErrEmptyRewardPool
	}

	var out *DrawResult
	err = withTxRetry(ctx, func() error {
		return s.txr.Transaction(ctx, func(tx *gorm.DB) error {
			spend, err := s.ledger.SpendInTx(ctx, tx, uid, cost,
				model.SourceGachaDraw, machine.MachineSlug,
				fmt.Sprintf("%s draw on %s", drawType, machine.Name))
			if err != nil {
				return err
			}

			rewardRepo := s.rewards.WithTx(tx)
			exhausted := map[uint64]bool{}
			won := make([]*model.GachaReward, 0, drawCount)
			for slot := 0; slot < drawCount; slot++ {
				rewardID, err := s.sampleSlot(ctx, rewardRepo, entries, exhausted)
				if err != nil {
					return err
				}
				won = append(won, byReward[rewardID])
			}

			snapshots := make([]model.WonReward, len(won))
			for i, rw := range won {
				snapshots[i] = model.WonReward{
					RewardID:   rw.ID,
					Name:       rw.Name,
					RewardType: rw.RewardType,
					Rarity:     rw.Rarity,
				}
			}
			snapJSON, err := json.Marshal(snapshots)
			if err != nil {
				return fmt.Errorf("marshal rewards snapshot: %w", err)
			}
			hist := &model.DrawHistory{
				UserUID:     uid,
				MachineID:   machine.ID,
				DrawType:    drawType,
				PointsSpent: cost,
				DrawCount:   drawCount,
				RewardsWon:  datatypes.JSON(snapJSON),
			}
			if err := s.history.WithTx(tx).Create(ctx, hist); err != nil {
				return err
			}

			issued, err := s.mint(ctx, tx, uid, won, hist.ID, spend.TransactionID, now)
			if err != nil {
				return err
			}

			out = &DrawResult{
				DrawHistoryID: hist.ID,
				PointsSpent:   cost,
				Balance:       spend.Balance,
				Rewards:       issued,
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[draw] rid=%s uid=%s machine=%s type=%s count=%d spent=%d",
		reqctx.RID(ctx), uid, machine.MachineSlug, drawType, drawCount, cost)
	return out, nil
}

// sampleSlot resolves one slot: sample, take stock, and on exhaustion
// re-sample with that reward excluded. Retries are bounded by the pool size;
// when nothing with stock remains the whole draw fails with ErrPoolExhausted
// and the enclosing transaction rolls the debit back.
func (s *drawService) sampleSlot(ctx context.Context, rewardRepo repository.RewardRepository, entries []gacha.Entry, exhausted map[uint64]bool) (uint64, error) {
	for attempt := 0; attempt < len(entries); attempt++ {
		rewardID, ok := gacha.Pick(entries, exhausted, s.rng)
		if !ok {
			return 0, ErrPoolExhausted
		}
		taken, err := rewardRepo.DecrementStock(ctx, rewardID)
		if err != nil {
			return 0, err
		}
		if taken {
			return rewardID, nil
		}
		exhausted[rewardID] = true
	}
	return 0, ErrPoolExhausted
}

func (s *drawService) mint(ctx context.Context, tx *gorm.DB, uid string, won []*model.GachaReward, historyID, spendTxnID uint64, now time.Time) ([]IssuedReward, error) {
	ownedRepo := s.owned.WithTx(tx)
	issued := make([]IssuedReward, 0, len(won))
	for _, rw := range won {
		code, err := s.uniqueCode(ctx, ownedRepo)
		if err != nil {
			return nil, err
		}
		var expiresAt *time.Time
		if rw.ValidDays != nil {
			t := now.AddDate(0, 0, *rw.ValidDays)
			expiresAt = &t
		}
		var delivery *model.DeliveryStatus
		if rw.DeliveryType == model.DeliveryPhysical {
			d := model.DeliveryPending
			delivery = &d
		}
		meta, _ := json.Marshal(map[string]any{
			"spend_transaction_id": spendTxnID,
		})
		ur := &model.UserReward{
			UserUID:        uid,
			RewardID:       rw.ID,
			DrawHistoryID:  &historyID,
			RewardCode:     code,
			Status:         model.UserRewardActive,
			UsageLimit:     rw.UsageLimit,
			ObtainedAt:     now,
			ExpiresAt:      expiresAt,
			DeliveryStatus: delivery,
			Metadata:       datatypes.JSON(meta),
		}
		if err := ownedRepo.Create(ctx, ur); err != nil {
			return nil, err
		}
		issued = append(issued, IssuedReward{
			UserRewardID: ur.ID,
			RewardID:     rw.ID,
			Name:         rw.Name,
			RewardType:   rw.RewardType,
			Rarity:       rw.Rarity,
			RewardCode:   code,
			ExpiresAt:    expiresAt,
		})
	}
	return issued, nil
}

const codeAttempts = 5

func (s *drawService) uniqueCode(ctx context.Context, repo repository.UserRewardRepository) (string, error) {
	for i := 0; i < codeAttempts; i++ {
		code, err := newRewardCode()
		if err != nil {
			return "", err
		}
		exists, err := repo.CodeExists(ctx, code)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
	}
	return "", fmt.Errorf("could not allocate a unique reward code after %d attempts", codeAttempts)
}

func (s *drawService) ListMachines(ctx context.Context) ([]model.GachaMachine, error) {
	return s.machines.List(ctx, true)
}

const defaultHistoryPageSize = 20

func (s *drawService) ListHistory(ctx context.Context, uid string, limit int) ([]model.DrawHistory, error) {
	if limit <= 0 || limit > 100 {
		limit = defaultHistoryPageSize
	}
	return s.history.ListByUser(ctx, uid, limit)
}

func (s *drawService) ValidateMachine(ctx context.Context, machineSlug string) ([]string, error) {
	machine, err := s.machines.FindBySlug(ctx, machineSlug)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMachineNotFound
		}
		return nil, err
	}
	pool, err := s.machines.LoadPool(ctx, machine.ID)
	if err != nil {
		return nil, err
	}
	entries := make([]gacha.Entry, 0, len(pool))
	for _, row := range pool {
		entries = append(entries, gacha.Entry{
			RewardID:     row.RewardID,
			Probability:  row.Probability,
			DisplayOrder: row.DisplayOrder,
		})
	}
	warnings := gacha.ValidatePool(entries)
	for _, w := range warnings {
		log.Printf("[draw] machine=%s validation: %s", machine.MachineSlug, w)
	}
	return warnings, nil
}
