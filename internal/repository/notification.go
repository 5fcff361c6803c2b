package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hray3182/fakturavakt/internal/database"
	"github.com/hray3182/fakturavakt/internal/notify"
	"github.com/jackc/pgx/v5"
)

// NotificationRepository stores scheduled notifications in the outbox table.
// It is both the gateway the reminder scheduler writes to and the outbox the
// delivery loop drains.
type NotificationRepository struct {
	db *database.DB
}

func NewNotificationRepository(db *database.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create schedules n, replacing any notification with the same id.
func (r *NotificationRepository) Create(ctx context.Context, n notify.Notification) error {
	data, err := json.Marshal(n.Data)
	if err != nil {
		return fmt.Errorf("failed to encode notification data: %w", err)
	}
	if n.Data == nil {
		data = []byte("{}")
	}

	_, err = r.db.Pool.Exec(ctx,
		`INSERT INTO notifications (id, title, body, trigger_at, data)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET title = EXCLUDED.title, body = EXCLUDED.body,
		     trigger_at = EXCLUDED.trigger_at, data = EXCLUDED.data, delivered_at = NULL,
		     created_at = CURRENT_TIMESTAMP`,
		n.ID, n.Title, n.Body, n.TriggerAt, data,
	)
	return err
}

func (r *NotificationRepository) CancelByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.Pool.Exec(ctx,
		`DELETE FROM notifications WHERE id = ANY($1) AND delivered_at IS NULL`,
		ids,
	)
	return err
}

func (r *NotificationRepository) ListPending(ctx context.Context) ([]notify.Notification, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT id, title, body, trigger_at, data, delivered_at
		 FROM notifications WHERE delivered_at IS NULL
		 ORDER BY trigger_at ASC, id ASC`,
	)
	if err != nil {
		return nil, err
	}
	return scanNotifications(rows)
}

func (r *NotificationRepository) Due(ctx context.Context, now time.Time) ([]notify.Notification, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT id, title, body, trigger_at, data, delivered_at
		 FROM notifications WHERE delivered_at IS NULL AND trigger_at <= $1
		 ORDER BY trigger_at ASC, id ASC`,
		now,
	)
	if err != nil {
		return nil, err
	}
	return scanNotifications(rows)
}

func (r *NotificationRepository) MarkDelivered(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE notifications SET delivered_at = $1 WHERE id = $2`,
		at, id,
	)
	return err
}

// PurgeDelivered removes notifications delivered before the cutoff.
func (r *NotificationRepository) PurgeDelivered(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx,
		`DELETE FROM notifications WHERE delivered_at IS NOT NULL AND delivered_at < $1`,
		before,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanNotifications(rows pgx.Rows) ([]notify.Notification, error) {
	defer rows.Close()

	var out []notify.Notification
	for rows.Next() {
		var (
			n        notify.Notification
			dataJSON []byte
		)
		if err := rows.Scan(&n.ID, &n.Title, &n.Body, &n.TriggerAt, &dataJSON, &n.DeliveredAt); err != nil {
			return nil, err
		}
		if len(dataJSON) > 0 {
			if err := json.Unmarshal(dataJSON, &n.Data); err != nil {
				return nil, fmt.Errorf("failed to decode notification %s data: %w", n.ID, err)
			}
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
