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
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// LedgerResult is the outcome of one ledger mutation: the available balance
// after the change and the id of the appended transaction.
type LedgerResult struct {
	Balance       int64
	TransactionID uint64
}

// LedgerService owns every balance mutation. Each operation is one database
// transaction: the user_points update and the point_transactions insert
// commit together or not at all. The cached row is authoritative on the read
// path; the log exists for audit and reconstruction.
type LedgerService interface {
	Balance(ctx context.Context, uid string) (*model.UserPoints, error)
	Earn(ctx context.Context, uid string, amount int64, txnType model.TransactionType, sourceType, desc string, meta map[string]any, expiresAt *time.Time) (*LedgerResult, error)
	Spend(ctx context.Context, uid string, amount int64, sourceType, sourceID, desc string) (*LedgerResult, error)
	Refund(ctx context.Context, uid string, amount int64, originalTxnID uint64) (*LedgerResult, error)
	Expire(ctx context.Context, uid string, amount int64, grantTxnID uint64) (*LedgerResult, error)
	// ExpireDue is the reaper: it expires unspent grants whose validity
	// window has passed. Safe to run on any cadence.
	ExpireDue(ctx context.Context, now time.Time) (int, error)
	ListTransactions(ctx context.Context, uid string, limit int, cursor uint64) ([]model.PointTransaction, error)

	// SpendInTx and EarnInTx run the same mutations bound to an enclosing
	// transaction, for callers composing a debit with other effects.
	SpendInTx(ctx context.Context, tx *gorm.DB, uid string, amount int64, sourceType, sourceID, desc string) (*LedgerResult, error)
	EarnInTx(ctx context.Context, tx *gorm.DB, uid string, amount int64, txnType model.TransactionType, sourceType, sourceID, desc string) (*LedgerResult, error)
}

type ledgerService struct {
	txr          repository.TxRunner
	points       repository.PointsRepository
	welcomeGrant int64
}

func NewLedgerService(txr repository.TxRunner, points repository.PointsRepository, welcomeGrant int64) LedgerService {
	return &ledgerService{txr: txr, points: points, welcomeGrant: welcomeGrant}
}

func marshalMeta(meta map[string]any) datatypes.JSON {
	if len(meta) == 0 {
		return nil
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return nil
	}
	return datatypes.JSON(b)
}

// lockAccount locks the balance row, seeding and saving a new account with
// the welcome grant and its earn_event entry. The caller saves the row again
// after mutating it.
func (s *ledgerService) lockAccount(ctx context.Context, repo repository.PointsRepository, uid string) (*model.UserPoints, error) {
	p, created, err := repo.GetForUpdate(ctx, uid)
	if err != nil {
		return nil, err
	}
	if created && s.welcomeGrant > 0 {
		p.TotalPoints = s.welcomeGrant
		p.AvailablePoints = s.welcomeGrant
		if err := repo.Save(ctx, p); err != nil {
			return nil, err
		}
		if err := repo.AppendTransaction(ctx, &model.PointTransaction{
			UserUID:         uid,
			TransactionType: model.TxEarnEvent,
			PointsChange:    s.welcomeGrant,
			BalanceAfter:    s.welcomeGrant,
			SourceType:      model.SourceWelcome,
			Description:     "welcome bonus",
		}); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (s *ledgerService) Balance(ctx context.Context, uid string) (*model.UserPoints, error) {
	p, err := s.points.Get(ctx, uid)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	// First contact: seed the account. Every later read stays lock-free.
	var out *model.UserPoints
	err = withTxRetry(ctx, func() error {
		return s.txr.Transaction(ctx, func(tx *gorm.DB) error {
			p, err := s.lockAccount(ctx, s.points.WithTx(tx), uid)
			if err != nil {
				return err
			}
			out = p
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *ledgerService) earnTx(ctx context.Context, repo repository.PointsRepository, uid string, amount int64, txnType model.TransactionType, sourceType, sourceID, desc string, meta map[string]any, expiresAt *time.Time) (*LedgerResult, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if !txnType.IsEarn() {
		return nil, fmt.Errorf("transaction type %q is not an earn type: %w", txnType, ErrInvalidAmount)
	}
	p, err := s.lockAccount(ctx, repo, uid)
	if err != nil {
		return nil, err
	}
	p.TotalPoints += amount
	p.AvailablePoints += amount
	if err := repo.Save(ctx, p); err != nil {
		return nil, err
	}
	t := &model.PointTransaction{
		UserUID:         uid,
		TransactionType: txnType,
		PointsChange:    amount,
		BalanceAfter:    p.AvailablePoints,
		SourceType:      sourceType,
		SourceID:        sourceID,
		Description:     desc,
		ExpiresAt:       expiresAt,
		Metadata:        marshalMeta(meta),
	}
	if err := repo.AppendTransaction(ctx, t); err != nil {
		return nil, err
	}
	return &LedgerResult{Balance: p.AvailablePoints, TransactionID: t.ID}, nil
}

func (s *ledgerService) Earn(ctx context.Context, uid string, amount int64, txnType model.TransactionType, sourceType, desc string, meta map[string]any, expiresAt *time.Time) (*LedgerResult, error) {
	var out *LedgerResult
	err := withTxRetry(ctx, func() error {
		return s.txr.Transaction(ctx, func(tx *gorm.DB) error {
			res, err := s.earnTx(ctx, s.points.WithTx(tx), uid, amount, txnType, sourceType, "", desc, meta, expiresAt)
			if err != nil {
				return err
			}
			out = res
			return nil
		})
	})
	return out, err
}

func (s *ledgerService) EarnInTx(ctx context.Context, tx *gorm.DB, uid string, amount int64, txnType model.TransactionType, sourceType, sourceID, desc string) (*LedgerResult, error) {
	return s.earnTx(ctx, s.points.WithTx(tx), uid, amount, txnType, sourceType, sourceID, desc, nil, nil)
}

func (s *ledgerService) spendTx(ctx context.Context, repo repository.PointsRepository, uid string, amount int64, sourceType, sourceID, desc string) (*LedgerResult, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	p, err := s.lockAccount(ctx, repo, uid)
	if err != nil {
		return nil, err
	}
	if p.AvailablePoints < amount {
		return nil, ErrInsufficientBalance
	}
	p.AvailablePoints -= amount
	p.UsedPoints += amount
	if err := repo.Save(ctx, p); err != nil {
		return nil, err
	}
	txnType := model.TxSpendRedeem
	if sourceType == model.SourceGachaDraw {
		txnType = model.TxSpendGacha
	}
	t := &model.PointTransaction{
		UserUID:         uid,
		TransactionType: txnType,
		PointsChange:    -amount,
		BalanceAfter:    p.AvailablePoints,
		SourceType:      sourceType,
		SourceID:        sourceID,
		Description:     desc,
	}
	if err := repo.AppendTransaction(ctx, t); err != nil {
		return nil, err
	}
	return &LedgerResult{Balance: p.AvailablePoints, TransactionID: t.ID}, nil
}

func (s *ledgerService) Spend(ctx context.Context, uid string, amount int64, sourceType, sourceID, desc string) (*LedgerResult, error) {
	var out *LedgerResult
	err := withTxRetry(ctx, func() error {
		return s.txr.Transaction(ctx, func(tx *gorm.DB) error {
			res, err := s.spendTx(ctx, s.points.WithTx(tx), uid, amount, sourceType, sourceID, desc)
			if err != nil {
				return err
			}
			out = res
			return nil
		})
	})
	return out, err
}

func (s *ledgerService) SpendInTx(ctx context.Context, tx *gorm.DB, uid string, amount int64, sourceType, sourceID, desc string) (*LedgerResult, error) {
	return s.spendTx(ctx, s.points.WithTx(tx), uid, amount, sourceType, sourceID, desc)
}

func (s *ledgerService) Refund(ctx context.Context, uid string, amount int64, originalTxnID uint64) (*LedgerResult, error) {
	var out *LedgerResult
	err := withTxRetry(ctx, func() error {
		return s.txr.Transaction(ctx, func(tx *gorm.DB) error {
			repo := s.points.WithTx(tx)

			orig, err := repo.FindTransaction(ctx, originalTxnID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrNotFound
				}
				return err
			}
			if orig.UserUID != uid {
				return ErrNotFound
			}
			if !orig.TransactionType.IsSpend() {
				return ErrNotRefundable
			}
			spent := -orig.PointsChange
			if amount <= 0 {
				amount = spent
			}
			if amount > spent {
				return ErrInvalidAmount
			}

			p, err := s.lockAccount(ctx, repo, uid)
			if err != nil {
				return err
			}
			// Guard runs under the user-row lock as a locking read, so a
			// refund committed by a racing transaction is visible here.
			refunded, err := repo.HasRefundFor(ctx, originalTxnID)
			if err != nil {
				return err
			}
			if refunded {
				return ErrAlreadyRefunded
			}
			if p.UsedPoints < amount {
				return fmt.Errorf("refund %d exceeds used points %d: %w", amount, p.UsedPoints, ErrInvalidAmount)
			}
			p.AvailablePoints += amount
			p.UsedPoints -= amount
			if err := repo.Save(ctx, p); err != nil {
				return err
			}
			t := &model.PointTransaction{
				UserUID:         uid,
				TransactionType: model.TxRefund,
				PointsChange:    amount,
				BalanceAfter:    p.AvailablePoints,
				SourceType:      model.SourceRefundOf,
				SourceID:        strconv.FormatUint(originalTxnID, 10),
				Description:     "refund of transaction " + strconv.FormatUint(originalTxnID, 10),
			}
			if err := repo.AppendTransaction(ctx, t); err != nil {
				return err
			}
			out = &LedgerResult{Balance: p.AvailablePoints, TransactionID: t.ID}
			return nil
		})
	})
	return out, err
}

func (s *ledgerService) Expire(ctx context.Context, uid string, amount int64, grantTxnID uint64) (*LedgerResult, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	var out *LedgerResult
	err := withTxRetry(ctx, func() error {
		return s.txr.Transaction(ctx, func(tx *gorm.DB) error {
			repo := s.points.WithTx(tx)

			p, err := s.lockAccount(ctx, repo, uid)
			if err != nil {
				return err
			}
			// Same locking-guard contract as Refund: overlapping reaper
			// instances serialize on the user row and the loser sees the
			// winner's expire entry.
			expired, err := repo.HasExpireFor(ctx, grantTxnID)
			if err != nil {
				return err
			}
			if expired {
				out = &LedgerResult{Balance: p.AvailablePoints}
				return nil
			}
			// A grant may be partially spent already; only what is still
			// available can expire.
			n := amount
			if n > p.AvailablePoints {
				n = p.AvailablePoints
			}
			p.AvailablePoints -= n
			p.ExpiredPoints += n
			if err := repo.Save(ctx, p); err != nil {
				return err
			}
			t := &model.PointTransaction{
				UserUID:         uid,
				TransactionType: model.TxExpire,
				PointsChange:    -n,
				BalanceAfter:    p.AvailablePoints,
				SourceType:      model.SourceExpireOf,
				SourceID:        strconv.FormatUint(grantTxnID, 10),
				Description:     "points expired",
			}
			if err := repo.AppendTransaction(ctx, t); err != nil {
				return err
			}
			out = &LedgerResult{Balance: p.AvailablePoints, TransactionID: t.ID}
			return nil
		})
	})
	return out, err
}

const expireBatchSize = 200

func (s *ledgerService) ExpireDue(ctx context.Context, now time.Time) (int, error) {
	grants, err := s.points.ListExpirableGrants(ctx, now, expireBatchSize)
	if err != nil {
		return 0, err
	}
	done := 0
	for _, g := range grants {
		if _, err := s.Expire(ctx, g.UserUID, g.PointsChange, g.ID); err != nil {
			return done, fmt.Errorf("expire grant %d: %w", g.ID, err)
		}
		done++
	}
	return done, nil
}

const defaultTxnPageSize = 50

func (s *ledgerService) ListTransactions(ctx context.Context, uid string, limit int, cursor uint64) ([]model.PointTransaction, error) {
	if limit <= 0 || limit > 200 {
		limit = defaultTxnPageSize
	}
	return s.points.ListTransactions(ctx, uid, limit, cursor)
}
