package repositories

import (
	"context"
	"time"

	"github.com/vidiosphere/backend/internal/models"
)

// UserRepository defines the data access contract for user records.
type UserRepository interface {
	Create(ctx context.Context, user models.User) error
	FindByID(ctx context.Context, id string) (models.User, error)
	FindByEmail(ctx context.Context, email string) (models.User, error)
	FindByHandle(ctx context.Context, handle string) (models.User, error)
	// FindByIdentifier resolves either a handle or an email address.
	FindByIdentifier(ctx context.Context, identifier string) (models.User, error)
	MarkEmailVerified(ctx context.Context, id string) error
	// SetRefreshTokenHash overwrites the stored refresh token hash
	// unconditionally. Pass an empty hash to log the user out.
	SetRefreshTokenHash(ctx context.Context, id, hash string) error
	// RotateRefreshTokenHash replaces the stored hash only when it still
	// equals expected, in a single conditional update. ErrNotFound means the
	// expected value was already rotated away.
	RotateRefreshTokenHash(ctx context.Context, id, expected, replacement string) error
	// UpdatePassword replaces the password hash and clears the refresh token
	// in the same statement, forcing re-login everywhere.
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	UpdateProfile(ctx context.Context, id, fullName, email string) error
	UpdateAvatar(ctx context.Context, id, avatarURL string) error
	UpdateCoverImage(ctx context.Context, id, coverURL string) error
}

// TokenRepository defines persistence for ephemeral single-use tokens.
type TokenRepository interface {
	Create(ctx context.Context, token models.EphemeralToken) error
	// FindMatching returns the newest unconsumed, unexpired token of the
	// given kind whose stored hash equals secretHash.
	FindMatching(ctx context.Context, kind, secretHash string, now time.Time) (models.EphemeralToken, error)
	// FindLatestByKind returns the newest token of the kind for the user
	// regardless of consumed or expiry state, for cooldown checks.
	FindLatestByKind(ctx context.Context, userID, kind string) (models.EphemeralToken, error)
	Consume(ctx context.Context, id string) error
	DeleteUnconsumedByKind(ctx context.Context, userID, kind string) error
	// DeleteExpired removes stale rows. Lookups always re-check expiry, so
	// the sweep cadence is housekeeping rather than a correctness boundary.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// EdgeRepository defines persistence for relationship edges.
type EdgeRepository interface {
	// Insert creates the edge, returning ErrConflict when the
	// (actor, target, kind) tuple already exists.
	Insert(ctx context.Context, edge models.RelationshipEdge) error
	// Delete removes the edge, returning ErrNotFound when absent.
	Delete(ctx context.Context, actorID, targetID, kind string) error
	Exists(ctx context.Context, actorID, targetID, kind string) (bool, error)
	CountForTarget(ctx context.Context, targetID, kind string) (int64, error)
	// ActorsForTarget lists actor ids holding an edge to the target,
	// newest first (e.g. a channel's subscribers).
	ActorsForTarget(ctx context.Context, targetID, kind string) ([]string, error)
	// TargetsForActor lists target ids the actor holds edges to
	// (e.g. subscribed channels, liked videos).
	TargetsForActor(ctx context.Context, actorID, kind string) ([]string, error)
}

// ListOptions carries pagination and ordering for listing queries.
type ListOptions struct {
	Page     int
	Limit    int
	SortBy   string
	SortDesc bool
	Query    string
	OwnerID  string
	// IncludeUnpublished lifts the published filter, for owner dashboards.
	IncludeUnpublished bool
}

// VideoRepository defines persistence for videos.
type VideoRepository interface {
	Create(ctx context.Context, video models.Video) error
	FindByID(ctx context.Context, id string) (models.Video, error)
	List(ctx context.Context, opts ListOptions) ([]models.Video, int64, error)
	ListByIDs(ctx context.Context, ids []string) ([]models.Video, error)
	Update(ctx context.Context, video models.Video) error
	Delete(ctx context.Context, id string) error
	IncrementViews(ctx context.Context, id string) error
	SetPublished(ctx context.Context, id string, published bool) error
	Exists(ctx context.Context, id string) (bool, error)
	// OwnerStats aggregates video count and total views for a channel.
	OwnerStats(ctx context.Context, ownerID string) (videoCount, totalViews int64, err error)
	// OwnerLikes counts like edges across the channel's videos.
	OwnerLikes(ctx context.Context, ownerID string) (int64, error)
}

// TweetRepository defines persistence for tweets.
type TweetRepository interface {
	Create(ctx context.Context, tweet models.Tweet) error
	FindByID(ctx context.Context, id string) (models.Tweet, error)
	ListByOwner(ctx context.Context, ownerID string, opts ListOptions) ([]models.Tweet, int64, error)
	Update(ctx context.Context, tweet models.Tweet) error
	Delete(ctx context.Context, id string) error
	Exists(ctx context.Context, id string) (bool, error)
}

// CommentRepository defines persistence for comments.
type CommentRepository interface {
	Create(ctx context.Context, comment models.Comment) error
	FindByID(ctx context.Context, id string) (models.Comment, error)
	ListByParent(ctx context.Context, parentKind, parentID string, opts ListOptions) ([]models.Comment, int64, error)
	Update(ctx context.Context, comment models.Comment) error
	Delete(ctx context.Context, id string) error
	Exists(ctx context.Context, id string) (bool, error)
}

// PlaylistRepository defines persistence for playlists and their membership.
type PlaylistRepository interface {
	Create(ctx context.Context, playlist models.Playlist) error
	FindByID(ctx context.Context, id string) (models.Playlist, error)
	ListByOwner(ctx context.Context, ownerID string) ([]models.Playlist, error)
	Update(ctx context.Context, playlist models.Playlist) error
	Delete(ctx context.Context, id string) error
	AddVideo(ctx context.Context, playlistID, videoID string) error
	RemoveVideo(ctx context.Context, playlistID, videoID string) error
	VideoIDs(ctx context.Context, playlistID string) ([]string, error)
}

// WatchHistoryRepository records and lists watched videos per user.
type WatchHistoryRepository interface {
	// Record upserts the (user, video) pair, refreshing the watched-at
	// instant so history stays deduplicated and most recent first.
	Record(ctx context.Context, userID, videoID string, watchedAt time.Time) error
	ListVideoIDs(ctx context.Context, userID string) ([]string, error)
}
