package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/upb/tenant-gateway/repositories"
	"go.uber.org/zap"
)

type txKey struct{}

// TransactionManager runs units of work on a single *sql.Tx. Repositories
// pick the transaction up from the context through GetExecutor.
type TransactionManager struct {
	db     *DB
	opts   *sql.TxOptions
	logger *zap.Logger
}

// NewTransactionManager creates a transaction manager using read committed isolation
func NewTransactionManager(db *DB, logger *zap.Logger) repositories.TransactionManager {
	return &TransactionManager{
		db:     db,
		opts:   &sql.TxOptions{Isolation: sql.LevelReadCommitted},
		logger: logger,
	}
}

// Begin starts a transaction and returns it with a context that carries it
func (tm *TransactionManager) Begin(ctx context.Context) (repositories.Transaction, error) {
	sqlTx, err := tm.db.BeginTx(ctx, tm.opts)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	tx := &Transaction{tx: sqlTx, logger: tm.logger}
	tx.ctx = context.WithValue(ctx, txKey{}, tx)
	return tx, nil
}

// InTransaction runs fn in a transaction, committing when fn returns nil and
// rolling back on error or panic. When ctx already carries a transaction fn
// joins it and the outermost call decides the outcome.
func (tm *TransactionManager) InTransaction(ctx context.Context, fn func(ctx context.Context, tx repositories.Transaction) error) (err error) {
	if outer, ok := transactionFromContext(ctx); ok {
		return fn(ctx, outer)
	}

	tx, err := tm.Begin(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			tm.rollback(tx, fmt.Errorf("panic: %v", p))
			panic(p)
		}
	}()

	if err := fn(tx.Context(), tx); err != nil {
		tm.rollback(tx, err)
		return err
	}

	return tx.Commit()
}

func (tm *TransactionManager) rollback(tx repositories.Transaction, cause error) {
	if err := tx.Rollback(); err != nil {
		tm.logger.Error("failed to rollback transaction",
			zap.Error(err),
			zap.NamedError("cause", cause))
	}
}

// Transaction wraps a *sql.Tx. Commit and Rollback are safe to call after the
// transaction has finished.
type Transaction struct {
	tx     *sql.Tx
	ctx    context.Context
	done   bool
	logger *zap.Logger
}

// Commit commits the transaction
func (t *Transaction) Commit() error {
	if t.done {
		return sql.ErrTxDone
	}
	t.done = true
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	t.logger.Debug("transaction committed")
	return nil
}

// Rollback rolls back the transaction. Rolling back a finished transaction is a no-op.
func (t *Transaction) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}
	t.logger.Debug("transaction rolled back")
	return nil
}

// Context returns a context carrying the transaction
func (t *Transaction) Context() context.Context {
	return t.ctx
}

func transactionFromContext(ctx context.Context) (*Transaction, bool) {
	tx, ok := ctx.Value(txKey{}).(*Transaction)
	return tx, ok
}

// Executor is satisfied by both *sql.DB and *sql.Tx
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// GetExecutor returns the transaction carried by ctx, or the pool
func GetExecutor(ctx context.Context, db *DB) Executor {
	if tx, ok := transactionFromContext(ctx); ok {
		return tx.tx
	}
	return db.DB
}
