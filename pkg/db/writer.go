package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"liyu1981.xyz/proximity-tracker/pkg/common"
)

// ErrWriteConflict is returned by a write function when the row it read has
// changed underneath it (optimistic version mismatch).
var ErrWriteConflict = errors.New("write conflict")

// Writer serializes mutations per partition key (usually a device id) and
// runs each one in a transaction. A conflicting or busy write is retried once
// against fresh state; a second failure is returned.
type Writer struct {
	db    *DB
	locks *common.KeyedMutex
}

func NewWriter(d *DB) *Writer {
	return &Writer{db: d, locks: common.NewKeyedMutex()}
}

// Do runs fn inside a transaction while holding partition. fn must use only
// the tx it is given: the pool has one connection, which the tx holds.
func (w *Writer) Do(ctx context.Context, partition string, fn func(tx *gorm.DB) error) error {
	unlock := w.locks.Lock(partition)
	defer unlock()

	err := w.attempt(ctx, fn)
	if err == nil || !retryable(err) {
		return err
	}

	common.GetLoggerWith(
		common.LoggerNameTrackerCore,
		zap.String(common.LoggerFieldCategory, common.LoggerCategoryStorage),
	).Debug("Retrying write", zap.String("partition", partition), zap.Error(err))

	if err := w.attempt(ctx, fn); err != nil {
		return fmt.Errorf("write %s failed after retry: %w", partition, err)
	}
	return nil
}

func (w *Writer) attempt(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return w.db.Conn.WithContext(ctx).Transaction(fn)
}

func retryable(err error) bool {
	if errors.Is(err, ErrWriteConflict) {
		return true
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}

// UpdateVersioned saves the given columns of a versioned row only if its
// version still matches expected, bumping it. It returns ErrWriteConflict
// when no row matched.
func UpdateVersioned(tx *gorm.DB, model any, id string, expected int64, updates map[string]any) error {
	updates["version"] = expected + 1
	res := tx.Model(model).Where("id = ? AND version = ?", id, expected).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrWriteConflict
	}
	return nil
}
