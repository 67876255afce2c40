package db

import (
	"context"
	"database/sql"

	"gorm.io/gorm"
)

func IsPostgres(tx *gorm.DB) bool {
	return tx != nil && tx.Dialector != nil && tx.Dialector.Name() == "postgres"
}

// AdvisoryXactLock takes a transaction-scoped Postgres advisory lock on key. It is released
// at commit/rollback. Other dialects serialize writers themselves, so this is a no-op there.
func AdvisoryXactLock(tx *gorm.DB, key string) error {
	if !IsPostgres(tx) {
		return nil
	}
	return tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", key).Error
}

// SnapshotRead runs fn in a read-only repeatable-read transaction so multi-statement reads
// observe one commit point.
func SnapshotRead(ctx context.Context, db *gorm.DB, fn func(tx *gorm.DB) error) error {
	if !IsPostgres(db) {
		return db.WithContext(ctx).Transaction(fn)
	}
	return db.WithContext(ctx).Transaction(fn, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
}
