package store

import (
	"context"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type txKey struct{}

// Commit ends the transaction carried by ctx. Without one it does nothing.
func Commit(ctx context.Context) (context.Context, error) {
	return finish(ctx, "commit", func(tx *gorm.DB) error { return tx.Commit().Error })
}

// Rollback aborts the transaction carried by ctx. Without one it does nothing.
func Rollback(ctx context.Context) (context.Context, error) {
	return finish(ctx, "rollback", func(tx *gorm.DB) error { return tx.Rollback().Error })
}

// FromContext returns the open transaction of ctx, or nil.
func FromContext(ctx context.Context) *gorm.DB {
	tx, _ := ctx.Value(txKey{}).(*gorm.DB)
	return tx
}

// newTransactionContext joins the transaction already open in ctx or begins one.
func newTransactionContext(ctx context.Context, db *gorm.DB) (context.Context, error) {
	if FromContext(ctx) != nil {
		return ctx, nil
	}
	tx := db.Session(&gorm.Session{Context: ctx}).Begin()
	if tx.Error != nil {
		return ctx, tx.Error
	}
	return context.WithValue(ctx, txKey{}, tx), nil
}

func finish(ctx context.Context, op string, end func(tx *gorm.DB) error) (context.Context, error) {
	tx := FromContext(ctx)
	if tx == nil {
		return ctx, nil
	}
	ctx = context.WithValue(ctx, txKey{}, (*gorm.DB)(nil))
	if err := end(tx); err != nil {
		zap.S().Named("store").Errorw("transaction failed", "op", op, "error", err)
		return ctx, err
	}
	zap.S().Named("store").Debugw("transaction finished", "op", op)
	return ctx, nil
}
