package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vidiosphere/backend/internal/db"
	"github.com/vidiosphere/backend/internal/models"
)

const pgUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

const userColumns = `id, handle, email, full_name, password_hash, avatar_url, cover_image_url,
        email_verified, COALESCE(refresh_token_hash, ''), created_at, updated_at`

// PostgresUserRepository provides PostgreSQL-backed persistence for users.
type PostgresUserRepository struct {
	pool db.Pool
}

// NewPostgresUserRepository constructs a user repository backed by PostgreSQL.
func NewPostgresUserRepository(pool db.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{pool: pool}
}

// Create persists a new user record.
func (r *PostgresUserRepository) Create(ctx context.Context, user models.User) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO users (id, handle, email, full_name, password_hash, avatar_url, cover_image_url, email_verified, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
    `, user.ID, user.Handle, user.Email, user.FullName, user.Password, user.AvatarURL, user.CoverImageURL, user.EmailVerified, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

func (r *PostgresUserRepository) findOne(ctx context.Context, where string, arg any) (models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg)

	var user models.User
	if err := row.Scan(&user.ID, &user.Handle, &user.Email, &user.FullName, &user.Password,
		&user.AvatarURL, &user.CoverImageURL, &user.EmailVerified, &user.RefreshTokenHash,
		&user.CreatedAt, &user.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, fmt.Errorf("select user: %w", err)
	}

	return user, nil
}

// FindByID fetches a user by primary key.
func (r *PostgresUserRepository) FindByID(ctx context.Context, id string) (models.User, error) {
	return r.findOne(ctx, `id = $1`, id)
}

// FindByEmail fetches a user by their email address.
func (r *PostgresUserRepository) FindByEmail(ctx context.Context, email string) (models.User, error) {
	return r.findOne(ctx, `email = $1`, email)
}

// FindByHandle fetches a user by their handle.
func (r *PostgresUserRepository) FindByHandle(ctx context.Context, handle string) (models.User, error) {
	return r.findOne(ctx, `handle = $1`, handle)
}

// FindByIdentifier resolves either a handle or an email address. When one
// user's handle collides with another user's email, the email match wins.
func (r *PostgresUserRepository) FindByIdentifier(ctx context.Context, identifier string) (models.User, error) {
	return r.findOne(ctx, `handle = $1 OR email = $1 ORDER BY (email = $1) DESC`, identifier)
}

// MarkEmailVerified flips the verification flag. The transition is one-way.
func (r *PostgresUserRepository) MarkEmailVerified(ctx context.Context, id string) error {
	return r.exec(ctx, `
        UPDATE users
        SET email_verified = TRUE, updated_at = NOW()
        WHERE id = $1
    `, id)
}

// SetRefreshTokenHash overwrites the stored refresh token hash unconditionally.
func (r *PostgresUserRepository) SetRefreshTokenHash(ctx context.Context, id, hash string) error {
	return r.exec(ctx, `
        UPDATE users
        SET refresh_token_hash = NULLIF($2, ''), updated_at = NOW()
        WHERE id = $1
    `, id, hash)
}

// RotateRefreshTokenHash performs the compare-and-swap for strict rotation.
// The condition lives in the statement itself so two concurrent refreshes
// presenting the same token cannot both succeed.
func (r *PostgresUserRepository) RotateRefreshTokenHash(ctx context.Context, id, expected, replacement string) error {
	return r.exec(ctx, `
        UPDATE users
        SET refresh_token_hash = $3, updated_at = NOW()
        WHERE id = $1 AND refresh_token_hash = $2
    `, id, expected, replacement)
}

// UpdatePassword replaces the password hash and clears the refresh token.
func (r *PostgresUserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	return r.exec(ctx, `
        UPDATE users
        SET password_hash = $2, refresh_token_hash = NULL, updated_at = NOW()
        WHERE id = $1
    `, id, passwordHash)
}

// UpdateProfile modifies the display name and email address.
func (r *PostgresUserRepository) UpdateProfile(ctx context.Context, id, fullName, email string) error {
	return r.exec(ctx, `
        UPDATE users
        SET full_name = $2, email = $3, updated_at = NOW()
        WHERE id = $1
    `, id, fullName, email)
}

// UpdateAvatar replaces the avatar asset locator.
func (r *PostgresUserRepository) UpdateAvatar(ctx context.Context, id, avatarURL string) error {
	return r.exec(ctx, `
        UPDATE users
        SET avatar_url = $2, updated_at = NOW()
        WHERE id = $1
    `, id, avatarURL)
}

// UpdateCoverImage replaces the cover image asset locator.
func (r *PostgresUserRepository) UpdateCoverImage(ctx context.Context, id, coverURL string) error {
	return r.exec(ctx, `
        UPDATE users
        SET cover_image_url = $2, updated_at = NOW()
        WHERE id = $1
    `, id, coverURL)
}

func (r *PostgresUserRepository) exec(ctx context.Context, query string, args ...any) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("update user: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

var _ UserRepository = (*PostgresUserRepository)(nil)
