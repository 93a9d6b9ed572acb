package repositories

import (
	"context"
	"fmt"

	"github.com/vidiosphere/backend/internal/db"
	"github.com/vidiosphere/backend/internal/models"
)

// PostgresEdgeRepository provides PostgreSQL-backed persistence for
// relationship edges. The edges table carries a uniqueness constraint on
// (actor_id, target_id, kind) so concurrent duplicate inserts collapse to a
// single ErrConflict instead of two rows.
type PostgresEdgeRepository struct {
	pool db.Pool
}

// NewPostgresEdgeRepository constructs an edge repository backed by PostgreSQL.
func NewPostgresEdgeRepository(pool db.Pool) *PostgresEdgeRepository {
	return &PostgresEdgeRepository{pool: pool}
}

// Insert creates the edge, reporting ErrConflict when it already exists.
func (r *PostgresEdgeRepository) Insert(ctx context.Context, edge models.RelationshipEdge) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO relationship_edges (id, actor_id, target_id, kind, created_at)
        VALUES ($1, $2, $3, $4, $5)
    `, edge.ID, edge.ActorID, edge.TargetID, edge.Kind, edge.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert relationship edge: %w", err)
	}

	return nil
}

// Delete removes the edge, reporting ErrNotFound when absent.
func (r *PostgresEdgeRepository) Delete(ctx context.Context, actorID, targetID, kind string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        DELETE FROM relationship_edges
        WHERE actor_id = $1 AND target_id = $2 AND kind = $3
    `, actorID, targetID, kind)
	if err != nil {
		return fmt.Errorf("delete relationship edge: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// Exists reports whether the edge is present.
func (r *PostgresEdgeRepository) Exists(ctx context.Context, actorID, targetID, kind string) (bool, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var exists bool
	err = conn.QueryRow(ctx, `
        SELECT EXISTS (
            SELECT 1 FROM relationship_edges
            WHERE actor_id = $1 AND target_id = $2 AND kind = $3
        )
    `, actorID, targetID, kind).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check relationship edge: %w", err)
	}

	return exists, nil
}

// CountForTarget counts edges pointing at the target, e.g. like totals or
// subscriber counts.
func (r *PostgresEdgeRepository) CountForTarget(ctx context.Context, targetID, kind string) (int64, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var count int64
	err = conn.QueryRow(ctx, `
        SELECT COUNT(*) FROM relationship_edges
        WHERE target_id = $1 AND kind = $2
    `, targetID, kind).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count relationship edges: %w", err)
	}

	return count, nil
}

// ActorsForTarget lists actor ids holding an edge to the target, newest first.
func (r *PostgresEdgeRepository) ActorsForTarget(ctx context.Context, targetID, kind string) ([]string, error) {
	return r.listIDs(ctx, `
        SELECT actor_id FROM relationship_edges
        WHERE target_id = $1 AND kind = $2
        ORDER BY created_at DESC
    `, targetID, kind)
}

// TargetsForActor lists target ids the actor holds edges to, newest first.
func (r *PostgresEdgeRepository) TargetsForActor(ctx context.Context, actorID, kind string) ([]string, error) {
	return r.listIDs(ctx, `
        SELECT target_id FROM relationship_edges
        WHERE actor_id = $1 AND kind = $2
        ORDER BY created_at DESC
    `, actorID, kind)
}

func (r *PostgresEdgeRepository) listIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query relationship edges: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan relationship edge: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate relationship edges: %w", err)
	}

	return ids, nil
}

var _ EdgeRepository = (*PostgresEdgeRepository)(nil)
