package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"LostFoundNotifier/internal/domain"
)

type NotificationsStore struct {
	pool *pgxpool.Pool
}

func NewNotificationsStore(pool *pgxpool.Pool) *NotificationsStore {
	return &NotificationsStore{pool: pool}
}

// InsertNotifications writes one row per recipient in a single batch round
// trip and returns how many rows landed.
func (s *NotificationsStore) InsertNotifications(ctx context.Context, rows []domain.InAppNotification) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	const q = `
		INSERT INTO notifications (user_id, title, body, data, is_read)
		VALUES ($1, $2, $3, $4::jsonb, $5)
	`

	batch := &pgx.Batch{}
	for _, row := range rows {
		data, err := json.Marshal(row.Data)
		if err != nil {
			return 0, fmt.Errorf("encode notification data: %w", err)
		}
		batch.Queue(q, row.UserID, row.Title, row.Body, data, row.IsRead)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	inserted := 0
	for range rows {
		if _, err := results.Exec(); err != nil {
			return inserted, fmt.Errorf("insert notification: %w", err)
		}
		inserted++
	}
	return inserted, nil
}
