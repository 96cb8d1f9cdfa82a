package database

import (
	"context"

	"gorm.io/gorm"
)

type txKey struct{}

// Transactor runs a function within a database transaction.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// gormTransactor implements Transactor using GORM.
type gormTransactor struct {
	db *gorm.DB
}

// NewTransactor creates a new GORM-based transactor.
func NewTransactor(db *gorm.DB) Transactor {
	return &gormTransactor{db: db}
}

// WithinTransaction executes fn within a database transaction.
//
// Transaction semantics:
//   - Commits automatically when fn returns nil
//   - Rolls back automatically when fn returns an error
//   - Rolls back automatically on panic (GORM handles this)
func (t *gormTransactor) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

// DBFromContext returns the transaction bound to ctx, or db if none is bound.
// Repositories call this instead of holding their own *gorm.DB reference so
// they transparently participate in an enclosing transaction.
func DBFromContext(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx
	}
	return db
}
