package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/vidiosphere/backend/internal/db"
	"github.com/vidiosphere/backend/internal/models"
)

// PostgresTokenRepository provides PostgreSQL-backed persistence for
// ephemeral single-use tokens.
type PostgresTokenRepository struct {
	pool db.Pool
}

// NewPostgresTokenRepository constructs a token repository backed by PostgreSQL.
func NewPostgresTokenRepository(pool db.Pool) *PostgresTokenRepository {
	return &PostgresTokenRepository{pool: pool}
}

// Create persists a new ephemeral token record.
func (r *PostgresTokenRepository) Create(ctx context.Context, token models.EphemeralToken) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO ephemeral_tokens (id, user_id, secret_hash, kind, expires_at, consumed, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
    `, token.ID, token.UserID, token.SecretHash, token.Kind, token.ExpiresAt, token.Consumed, token.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert ephemeral token: %w", err)
	}

	return nil
}

// FindMatching returns the newest unconsumed token of the kind whose stored
// hash equals secretHash and whose expiry is still in the future. Expiry is
// always enforced here rather than relying on the background sweep.
func (r *PostgresTokenRepository) FindMatching(ctx context.Context, kind, secretHash string, now time.Time) (models.EphemeralToken, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.EphemeralToken{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT id, user_id, secret_hash, kind, expires_at, consumed, created_at
        FROM ephemeral_tokens
        WHERE kind = $1 AND secret_hash = $2 AND consumed = FALSE AND expires_at > $3
        ORDER BY created_at DESC
        LIMIT 1
    `, kind, secretHash, now)

	var token models.EphemeralToken
	if err := row.Scan(&token.ID, &token.UserID, &token.SecretHash, &token.Kind,
		&token.ExpiresAt, &token.Consumed, &token.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.EphemeralToken{}, ErrNotFound
		}
		return models.EphemeralToken{}, fmt.Errorf("select matching token: %w", err)
	}

	return token, nil
}

// FindLatestByKind returns the newest token of the kind for the user,
// ignoring consumed and expiry state. Used for resend cooldown checks.
func (r *PostgresTokenRepository) FindLatestByKind(ctx context.Context, userID, kind string) (models.EphemeralToken, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.EphemeralToken{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT id, user_id, secret_hash, kind, expires_at, consumed, created_at
        FROM ephemeral_tokens
        WHERE user_id = $1 AND kind = $2
        ORDER BY created_at DESC
        LIMIT 1
    `, userID, kind)

	var token models.EphemeralToken
	if err := row.Scan(&token.ID, &token.UserID, &token.SecretHash, &token.Kind,
		&token.ExpiresAt, &token.Consumed, &token.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.EphemeralToken{}, ErrNotFound
		}
		return models.EphemeralToken{}, fmt.Errorf("select latest token: %w", err)
	}

	return token, nil
}

// Consume flips the consumed flag exactly once. A token already consumed
// reports ErrNotFound so re-presentation never silently succeeds.
func (r *PostgresTokenRepository) Consume(ctx context.Context, id string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE ephemeral_tokens
        SET consumed = TRUE
        WHERE id = $1 AND consumed = FALSE
    `, id)
	if err != nil {
		return fmt.Errorf("consume token: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// DeleteUnconsumedByKind removes all outstanding unconsumed tokens of the
// kind for the user, keeping at most one reset token live at a time.
func (r *PostgresTokenRepository) DeleteUnconsumedByKind(ctx context.Context, userID, kind string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `
        DELETE FROM ephemeral_tokens
        WHERE user_id = $1 AND kind = $2 AND consumed = FALSE
    `, userID, kind); err != nil {
		return fmt.Errorf("delete unconsumed tokens: %w", err)
	}

	return nil
}

// DeleteExpired removes rows past their expiry and reports how many were swept.
func (r *PostgresTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `DELETE FROM ephemeral_tokens WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired tokens: %w", err)
	}

	return tag.RowsAffected(), nil
}

var _ TokenRepository = (*PostgresTokenRepository)(nil)
