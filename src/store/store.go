package store

import (
	"context"
	"database/sql"
	"embed"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrations embed.FS

// ConnectDB opens the postgres pool. The returned DB is safe for concurrent
// use, open it once.
func ConnectDB(ctx context.Context, connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, errors.Wrap(err, "open db")
	}
	db.SetMaxOpenConns(20)
	db.SetConnMaxIdleTime(5 * time.Minute)
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "ping db")
	}
	return db, nil
}

// Migrate applies all pending up-migrations
func Migrate(connStr string) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return errors.Wrap(err, "migration source")
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, connStr)
	if err != nil {
		return errors.Wrap(err, "migrate init")
	}
	defer m.Close()
	err = m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		zap.L().Info("database schema up to date")
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "migrate up")
	}
	v, _, _ := m.Version()
	zap.L().Info("database migrated", zap.Uint("version", v))
	return nil
}

// WithTx runs fn in a transaction, committing on nil error
func WithTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			zap.L().Error("rollback failed", zap.Error(rbErr))
		}
		return err
	}
	return errors.Wrap(tx.Commit(), "commit")
}

// GetSetting reads a value from reward_settings, ok is false if absent
func GetSetting(ctx context.Context, db *sql.DB, property string) (string, bool, error) {
	var value string
	err := db.QueryRowContext(ctx, `SELECT value FROM reward_settings WHERE property = $1`, property).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "get setting "+property)
	}
	return value, true, nil
}

// SetSettings upserts properties into reward_settings
func SetSettings(ctx context.Context, db *sql.DB, kv map[string]string) error {
	query := `
	INSERT INTO reward_settings (property, value)
	VALUES ($1, $2)
	ON CONFLICT (property) DO UPDATE SET value = EXCLUDED.value`
	return WithTx(ctx, db, func(tx *sql.Tx) error {
		for k, v := range kv {
			if _, err := tx.ExecContext(ctx, query, k, v); err != nil {
				return errors.Wrap(err, "set setting "+k)
			}
		}
		return nil
	})
}
