package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"LostFoundNotifier/internal/domain"
)

type DeviceTokensStore struct {
	pool *pgxpool.Pool
}

func NewDeviceTokensStore(pool *pgxpool.Pool) *DeviceTokensStore {
	return &DeviceTokensStore{pool: pool}
}

func (s *DeviceTokensStore) ListTokensExcluding(ctx context.Context, userID string) ([]domain.DeviceToken, error) {
	const q = `
		SELECT id, user_id, token
		FROM device_tokens
		WHERE user_id <> $1
	`

	rows, err := s.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("list device tokens: %w", err)
	}
	defer rows.Close()

	var out []domain.DeviceToken
	for rows.Next() {
		var (
			idUUID   pgtype.UUID
			userUUID pgtype.UUID
			token    string
		)
		if err := rows.Scan(&idUUID, &userUUID, &token); err != nil {
			return nil, fmt.Errorf("scan device token: %w", err)
		}
		out = append(out, domain.DeviceToken{
			ID:     uuidOrEmpty(idUUID),
			UserID: uuidOrEmpty(userUUID),
			Token:  token,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list device tokens: %w", err)
	}
	return out, nil
}

func (s *DeviceTokensStore) DeleteTokenByValue(ctx context.Context, token string) error {
	const q = `
		DELETE FROM device_tokens
		WHERE token = $1
	`
	if _, err := s.pool.Exec(ctx, q, token); err != nil {
		return fmt.Errorf("delete device token: %w", err)
	}
	return nil
}

// Ping reports whether the pool can still reach the database.
func (s *DeviceTokensStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
