package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/hray3182/fakturavakt/internal/database"
	"github.com/hray3182/fakturavakt/internal/store"
	"github.com/jackc/pgx/v5"
)

// KVRepository is the Postgres-backed durable key/value store.
type KVRepository struct {
	db *database.DB
}

func NewKVRepository(db *database.DB) *KVRepository {
	return &KVRepository{db: db}
}

func (r *KVRepository) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := r.db.Pool.QueryRow(ctx,
		`SELECT value FROM kv_store WHERE key = $1`,
		key,
	).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (r *KVRepository) Set(ctx context.Context, key, value string) error {
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO kv_store (key, value, updated_at) VALUES ($1, $2, CURRENT_TIMESTAMP)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		key, value,
	)
	return err
}

func (r *KVRepository) Delete(ctx context.Context, key string) error {
	_, err := r.db.Pool.Exec(ctx,
		`DELETE FROM kv_store WHERE key = $1`,
		key,
	)
	return err
}

// TryLock takes a Postgres advisory lock, so only one process at a time
// writes the store.
func (r *KVRepository) TryLock(ctx context.Context, name string) (func(), error) {
	release, ok, err := r.db.TryAdvisoryLock(ctx, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrLocked, name)
	}
	return release, nil
}

// Keys lists every stored key, for diagnostics.
func (r *KVRepository) Keys(ctx context.Context) ([]string, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT key FROM kv_store ORDER BY key`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}
