package repository

import (
	"context"

	"gorm.io/gorm"
)

// TxRunner executes fn inside one database transaction. Repositories rebound
// through their WithTx method share that transaction, so a ledger debit, a
// stock decrement and a reward insert commit or roll back together.
type TxRunner interface {
	Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type gormTxRunner struct {
	db *gorm.DB
}

func NewTxRunner(db *gorm.DB) TxRunner {
	return &gormTxRunner{db: db}
}

func (r *gormTxRunner) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}
