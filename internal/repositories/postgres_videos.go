package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/vidiosphere/backend/internal/db"
	"github.com/vidiosphere/backend/internal/models"
)

const videoColumns = `id, owner_id, title, description, video_url, thumbnail_url,
        duration_seconds, views, published, created_at, updated_at`

// PostgresVideoRepository provides PostgreSQL-backed persistence for videos.
type PostgresVideoRepository struct {
	pool db.Pool
}

// NewPostgresVideoRepository constructs a video repository backed by PostgreSQL.
func NewPostgresVideoRepository(pool db.Pool) *PostgresVideoRepository {
	return &PostgresVideoRepository{pool: pool}
}

// Create stores a new video record.
func (r *PostgresVideoRepository) Create(ctx context.Context, video models.Video) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO videos (id, owner_id, title, description, video_url, thumbnail_url, duration_seconds, views, published, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
    `, video.ID, video.OwnerID, video.Title, video.Description, video.VideoURL, video.ThumbnailURL,
		video.Duration, video.Views, video.Published, video.CreatedAt, video.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert video: %w", err)
	}

	return nil
}

// FindByID fetches a single video.
func (r *PostgresVideoRepository) FindByID(ctx context.Context, id string) (models.Video, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Video{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `SELECT `+videoColumns+` FROM videos WHERE id = $1`, id)

	video, err := scanVideo(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Video{}, ErrNotFound
		}
		return models.Video{}, fmt.Errorf("select video: %w", err)
	}

	return video, nil
}

// sortColumn whitelists sortable columns; anything else falls back to
// created_at so request parameters can never reach the SQL string raw.
func sortColumn(requested string) string {
	switch requested {
	case "title", "views", "duration_seconds", "created_at", "updated_at":
		return requested
	default:
		return "created_at"
	}
}

// List returns published videos matching the options plus the total count
// before pagination.
func (r *PostgresVideoRepository) List(ctx context.Context, opts ListOptions) ([]models.Video, int64, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	where := `published = TRUE`
	if opts.IncludeUnpublished {
		where = `TRUE`
	}
	args := []any{}
	if opts.Query != "" {
		args = append(args, "%"+opts.Query+"%")
		where += fmt.Sprintf(` AND title ILIKE $%d`, len(args))
	}
	if opts.OwnerID != "" {
		args = append(args, opts.OwnerID)
		where += fmt.Sprintf(` AND owner_id = $%d`, len(args))
	}

	var total int64
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM videos WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count videos: %w", err)
	}

	direction := "ASC"
	if opts.SortDesc {
		direction = "DESC"
	}

	page := opts.Page
	if page < 1 {
		page = 1
	}
	limit := opts.Limit
	if limit < 1 {
		limit = 10
	}

	args = append(args, limit, (page-1)*limit)
	query := fmt.Sprintf(`SELECT %s FROM videos WHERE %s ORDER BY %s %s LIMIT $%d OFFSET $%d`,
		videoColumns, where, sortColumn(opts.SortBy), direction, len(args)-1, len(args))

	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query videos: %w", err)
	}
	defer rows.Close()

	videos, err := collectVideos(rows)
	if err != nil {
		return nil, 0, err
	}

	return videos, total, nil
}

// ListByIDs fetches videos for the given ids, preserving the input order.
// Used for watch history and playlist expansion.
func (r *PostgresVideoRepository) ListByIDs(ctx context.Context, ids []string) ([]models.Video, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `SELECT `+videoColumns+` FROM videos WHERE id = ANY($1) AND published = TRUE`, ids)
	if err != nil {
		return nil, fmt.Errorf("query videos by ids: %w", err)
	}
	defer rows.Close()

	videos, err := collectVideos(rows)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]models.Video, len(videos))
	for _, v := range videos {
		byID[v.ID] = v
	}

	ordered := make([]models.Video, 0, len(videos))
	for _, id := range ids {
		if v, ok := byID[id]; ok {
			ordered = append(ordered, v)
		}
	}

	return ordered, nil
}

// Update modifies the mutable metadata of an existing video.
func (r *PostgresVideoRepository) Update(ctx context.Context, video models.Video) error {
	return r.exec(ctx, `
        UPDATE videos
        SET title = $2, description = $3, thumbnail_url = $4, updated_at = $5
        WHERE id = $1
    `, video.ID, video.Title, video.Description, video.ThumbnailURL, video.UpdatedAt)
}

// Delete removes a video record.
func (r *PostgresVideoRepository) Delete(ctx context.Context, id string) error {
	return r.exec(ctx, `DELETE FROM videos WHERE id = $1`, id)
}

// IncrementViews bumps the view counter in one round trip.
func (r *PostgresVideoRepository) IncrementViews(ctx context.Context, id string) error {
	return r.exec(ctx, `UPDATE videos SET views = views + 1 WHERE id = $1`, id)
}

// SetPublished toggles the publish flag.
func (r *PostgresVideoRepository) SetPublished(ctx context.Context, id string, published bool) error {
	return r.exec(ctx, `UPDATE videos SET published = $2, updated_at = NOW() WHERE id = $1`, id, published)
}

// Exists reports whether a video record is present.
func (r *PostgresVideoRepository) Exists(ctx context.Context, id string) (bool, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var exists bool
	if err := conn.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM videos WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("check video: %w", err)
	}

	return exists, nil
}

// OwnerStats aggregates video count and total views for a channel.
func (r *PostgresVideoRepository) OwnerStats(ctx context.Context, ownerID string) (int64, int64, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var count, views int64
	err = conn.QueryRow(ctx, `
        SELECT COUNT(*), COALESCE(SUM(views), 0)
        FROM videos
        WHERE owner_id = $1
    `, ownerID).Scan(&count, &views)
	if err != nil {
		return 0, 0, fmt.Errorf("aggregate owner videos: %w", err)
	}

	return count, views, nil
}

// OwnerLikes counts like edges across every video the owner has uploaded.
func (r *PostgresVideoRepository) OwnerLikes(ctx context.Context, ownerID string) (int64, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var likes int64
	err = conn.QueryRow(ctx, `
        SELECT COUNT(*)
        FROM relationship_edges e
        JOIN videos v ON v.id = e.target_id
        WHERE e.kind = $1 AND v.owner_id = $2
    `, models.EdgeKindVideoLike, ownerID).Scan(&likes)
	if err != nil {
		return 0, fmt.Errorf("aggregate owner likes: %w", err)
	}

	return likes, nil
}

func (r *PostgresVideoRepository) exec(ctx context.Context, query string, args ...any) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update video: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

func scanVideo(row pgx.Row) (models.Video, error) {
	var v models.Video
	err := row.Scan(&v.ID, &v.OwnerID, &v.Title, &v.Description, &v.VideoURL, &v.ThumbnailURL,
		&v.Duration, &v.Views, &v.Published, &v.CreatedAt, &v.UpdatedAt)
	return v, err
}

func collectVideos(rows pgx.Rows) ([]models.Video, error) {
	var videos []models.Video
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("scan video: %w", err)
		}
		videos = append(videos, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate videos: %w", err)
	}
	return videos, nil
}

var _ VideoRepository = (*PostgresVideoRepository)(nil)
