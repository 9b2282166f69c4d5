package repository

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/otonoha/academy-backend/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PointsRepository persists the cached balance row and the append-only
// transaction log. Balance mutations must run on a repository bound to an
// enclosing transaction (WithTx) with the row locked via GetForUpdate.
type PointsRepository interface {
	WithTx(tx *gorm.DB) PointsRepository

	// GetForUpdate locks the user's balance row, creating a zeroed row on
	// first contact. The second return reports whether the row was created.
	GetForUpdate(ctx context.Context, uid string) (*model.UserPoints, bool, error)
	Get(ctx context.Context, uid string) (*model.UserPoints, error)
	Save(ctx context.Context, p *model.UserPoints) error

	AppendTransaction(ctx context.Context, t *model.PointTransaction) error
	FindTransaction(ctx context.Context, id uint64) (*model.PointTransaction, error)
	// HasRefundFor reports whether a refund entry already references the
	// given spend transaction (idempotency guard). The check is a locking
	// read so it observes rows committed by a racing transaction, not the
	// caller's repeatable-read snapshot; call it with the user row locked.
	HasRefundFor(ctx context.Context, originalTxnID uint64) (bool, error)
	// HasExpireFor reports whether an expire entry already references the
	// given grant transaction. Locking read, same contract as HasRefundFor.
	HasExpireFor(ctx context.Context, grantTxnID uint64) (bool, error)
	ListTransactions(ctx context.Context, uid string, limit int, cursor uint64) ([]model.PointTransaction, error)
	// ListExpirableGrants returns earn entries whose expires_at has passed
	// and which no expire entry references yet.
	ListExpirableGrants(ctx context.Context, now time.Time, limit int) ([]model.PointTransaction, error)
}

type pointsRepository struct {
	db *gorm.DB
}

func NewPointsRepository(db *gorm.DB) PointsRepository {
	return &pointsRepository{db: db}
}

func (r *pointsRepository) WithTx(tx *gorm.DB) PointsRepository {
	return &pointsRepository{db: tx}
}

func (r *pointsRepository) GetForUpdate(ctx context.Context, uid string) (*model.UserPoints, bool, error) {
	var p model.UserPoints
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_uid = ?", uid).
		First(&p).Error
	if err == nil {
		return &p, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}
	p = model.UserPoints{UserUID: uid}
	if err := r.db.WithContext(ctx).Create(&p).Error; err != nil {
		if !isDuplicateKey(err) {
			return nil, false, err
		}
		// Lost the first-contact race: another request created the row
		// after our miss. Lock the committed row and carry on.
		err := r.db.WithContext(ctx).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_uid = ?", uid).
			First(&p).Error
		if err != nil {
			return nil, false, err
		}
		return &p, false, nil
	}
	return &p, true, nil
}

// isDuplicateKey reports whether err is a MySQL 1062 unique-key violation.
func isDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}

func (r *pointsRepository) Get(ctx context.Context, uid string) (*model.UserPoints, error) {
	var p model.UserPoints
	if err := r.db.WithContext(ctx).Where("user_uid = ?", uid).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *pointsRepository) Save(ctx context.Context, p *model.UserPoints) error {
	return r.db.WithContext(ctx).Save(p).Error
}

func (r *pointsRepository) AppendTransaction(ctx context.Context, t *model.PointTransaction) error {
	return r.db.WithContext(ctx).Create(t).Error
}

func (r *pointsRepository) FindTransaction(ctx context.Context, id uint64) (*model.PointTransaction, error) {
	var t model.PointTransaction
	if err := r.db.WithContext(ctx).First(&t, id).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *pointsRepository) HasRefundFor(ctx context.Context, originalTxnID uint64) (bool, error) {
	return r.hasGuardEntry(ctx, model.TxRefund, model.SourceRefundOf, originalTxnID)
}

func (r *pointsRepository) HasExpireFor(ctx context.Context, grantTxnID uint64) (bool, error) {
	return r.hasGuardEntry(ctx, model.TxExpire, model.SourceExpireOf, grantTxnID)
}

func (r *pointsRepository) hasGuardEntry(ctx context.Context, txnType model.TransactionType, sourceType string, refTxnID uint64) (bool, error) {
	var rows []model.PointTransaction
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id").
		Where("transaction_type = ? AND source_type = ? AND source_id = ?",
			txnType, sourceType, strconv.FormatUint(refTxnID, 10)).
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

func (r *pointsRepository) ListTransactions(ctx context.Context, uid string, limit int, cursor uint64) ([]model.PointTransaction, error) {
	q := r.db.WithContext(ctx).Where("user_uid = ?", uid)
	if cursor > 0 {
		q = q.Where("id < ?", cursor)
	}
	var list []model.PointTransaction
	if err := q.Order("id DESC").Limit(limit).Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *pointsRepository) ListExpirableGrants(ctx context.Context, now time.Time, limit int) ([]model.PointTransaction, error) {
	var list []model.PointTransaction
	err := r.db.WithContext(ctx).
		Where("points_change > 0 AND expires_at IS NOT NULL AND expires_at < ?", now).
		Where("id NOT IN (?)", r.db.Model(&model.PointTransaction{}).
			Select("CAST(source_id AS UNSIGNED)").
			Where("transaction_type = ? AND source_type = ?", model.TxExpire, model.SourceExpireOf)).
		Order("expires_at ASC").
		Limit(limit).
		Find(&list).Error
	if err != nil {
		return nil, err
	}
	return list, nil
}
