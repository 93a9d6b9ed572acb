package relationship

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vidiosphere/backend/internal/models"
	"github.com/vidiosphere/backend/internal/repositories"
)

var (
	// ErrTargetNotFound indicates the toggle target does not exist.
	ErrTargetNotFound = errors.New("toggle target not found")
	// ErrInvalidOperation indicates a meaningless edge, e.g. a channel
	// subscribing to itself.
	ErrInvalidOperation = errors.New("invalid toggle operation")
	// ErrUnknownKind indicates an unrecognized edge kind.
	ErrUnknownKind = errors.New("unknown edge kind")
)

// Outcome reports which way a toggle resolved.
type Outcome string

const (
	OutcomeAdded   Outcome = "added"
	OutcomeRemoved Outcome = "removed"
)

// EdgeStore captures the persistence operations the toggle service needs.
type EdgeStore interface {
	Insert(ctx context.Context, edge models.RelationshipEdge) error
	Delete(ctx context.Context, actorID, targetID, kind string) error
	Exists(ctx context.Context, actorID, targetID, kind string) (bool, error)
	CountForTarget(ctx context.Context, targetID, kind string) (int64, error)
	ActorsForTarget(ctx context.Context, targetID, kind string) ([]string, error)
	TargetsForActor(ctx context.Context, actorID, kind string) ([]string, error)
}

// TargetResolver verifies existence of a toggle target of a given kind.
type TargetResolver interface {
	TargetExists(ctx context.Context, kind, targetID string) (bool, error)
}

// TargetResolverFunc adapts a function to the TargetResolver interface.
type TargetResolverFunc func(ctx context.Context, kind, targetID string) (bool, error)

// TargetExists calls the wrapped function.
func (f TargetResolverFunc) TargetExists(ctx context.Context, kind, targetID string) (bool, error) {
	return f(ctx, kind, targetID)
}

// Service implements the single toggle contract shared by video likes,
// comment likes, tweet likes and channel subscriptions.
type Service struct {
	edges    EdgeStore
	resolver TargetResolver

	nowFunc func() time.Time
}

// NewService constructs a toggle service over the given edge store.
func NewService(edges EdgeStore, resolver TargetResolver) *Service {
	return &Service{
		edges:    edges,
		resolver: resolver,
		nowFunc:  func() time.Time { return time.Now().UTC() },
	}
}

var validKinds = map[string]struct{}{
	models.EdgeKindVideoLike:    {},
	models.EdgeKindCommentLike:  {},
	models.EdgeKindTweetLike:    {},
	models.EdgeKindSubscription: {},
}

// Toggle creates the (actor, target, kind) edge when absent and removes it
// when present. The storage-level uniqueness constraint makes concurrent
// double-toggles collapse to a single edge: a losing insert surfaces as
// ErrConflict and is resolved by deleting, completing the caller's intent.
func (s *Service) Toggle(ctx context.Context, actorID, targetID, kind string) (Outcome, error) {
	if _, ok := validKinds[kind]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if actorID == "" || targetID == "" {
		return "", ErrInvalidOperation
	}
	if actorID == targetID {
		return "", ErrInvalidOperation
	}

	exists, err := s.resolver.TargetExists(ctx, kind, targetID)
	if err != nil {
		return "", fmt.Errorf("resolve toggle target: %w", err)
	}
	if !exists {
		return "", ErrTargetNotFound
	}

	present, err := s.edges.Exists(ctx, actorID, targetID, kind)
	if err != nil {
		return "", fmt.Errorf("check edge: %w", err)
	}

	if present {
		if err := s.edges.Delete(ctx, actorID, targetID, kind); err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				// Removed by a concurrent toggle; the edge is gone either way.
				return OutcomeRemoved, nil
			}
			return "", fmt.Errorf("delete edge: %w", err)
		}
		return OutcomeRemoved, nil
	}

	edge := models.RelationshipEdge{
		ID:        uuid.NewString(),
		ActorID:   actorID,
		TargetID:  targetID,
		Kind:      kind,
		CreatedAt: s.nowFunc(),
	}
	if err := s.edges.Insert(ctx, edge); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			// A concurrent toggle created the edge between our check and the
			// insert. Treat this call as the removing half of the pair.
			if derr := s.edges.Delete(ctx, actorID, targetID, kind); derr != nil && !errors.Is(derr, repositories.ErrNotFound) {
				return "", fmt.Errorf("resolve conflicting edge: %w", derr)
			}
			return OutcomeRemoved, nil
		}
		return "", fmt.Errorf("insert edge: %w", err)
	}

	return OutcomeAdded, nil
}

// IsActive reports whether the edge currently exists.
func (s *Service) IsActive(ctx context.Context, actorID, targetID, kind string) (bool, error) {
	return s.edges.Exists(ctx, actorID, targetID, kind)
}

// CountForTarget counts edges pointing at a target, e.g. subscriber totals.
func (s *Service) CountForTarget(ctx context.Context, targetID, kind string) (int64, error) {
	return s.edges.CountForTarget(ctx, targetID, kind)
}

// ActorsForTarget lists actor ids holding an edge to the target.
func (s *Service) ActorsForTarget(ctx context.Context, targetID, kind string) ([]string, error) {
	return s.edges.ActorsForTarget(ctx, targetID, kind)
}

// TargetsForActor lists target ids the actor holds edges to.
func (s *Service) TargetsForActor(ctx context.Context, actorID, kind string) ([]string, error) {
	return s.edges.TargetsForActor(ctx, actorID, kind)
}
