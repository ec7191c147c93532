package services

import (
	"context"

	"github.com/upb/tenant-gateway/repositories"
)

// WithTransaction runs fn inside txMgr.InTransaction. Repositories called with
// the ctx passed to fn join the transaction.
func WithTransaction(ctx context.Context, txMgr repositories.TransactionManager, fn func(ctx context.Context) error) error {
	return txMgr.InTransaction(ctx, func(txCtx context.Context, _ repositories.Transaction) error {
		return fn(txCtx)
	})
}

// WithTransactionResult is WithTransaction for functions that produce a value.
// The zero value is returned whenever the transaction fails.
func WithTransactionResult[T any](ctx context.Context, txMgr repositories.TransactionManager, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := txMgr.InTransaction(ctx, func(txCtx context.Context, _ repositories.Transaction) error {
		value, err := fn(txCtx)
		if err != nil {
			return err
		}
		result = value
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}
