package database

import (
	"context"

	"gorm.io/gorm"
)

// Mutations that must commit together, like a tenant move and its audit
// entry, share one transaction by carrying it on the context. Every query
// helper checks the context first, so service code stays oblivious to whether
// it runs inside a transaction.

type txKey struct{}

func txFromContext(ctx context.Context) *gorm.DB {
	tx, ok := ctx.Value(txKey{}).(*gorm.DB)
	if !ok {
		return nil
	}
	return tx
}

func contextWithTx(ctx context.Context, tx *gorm.DB) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// getDBFromContext prefers the transaction already on the context over the
// shared handle.
func getDBFromContext(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tx := txFromContext(ctx); tx != nil {
		return tx
	}
	return db.WithContext(ctx)
}
