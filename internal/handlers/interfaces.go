package handlers

import (
	"context"
	"time"

	"github.com/vidiosphere/backend/internal/auth"
	"github.com/vidiosphere/backend/internal/models"
	"github.com/vidiosphere/backend/internal/relationship"
	"github.com/vidiosphere/backend/internal/repositories"
	"github.com/vidiosphere/backend/internal/storage"
)

// AuthService captures the authentication flows required by the user handlers.
type AuthService interface {
	Register(ctx context.Context, in auth.RegisterInput) (models.User, error)
	VerifyEmail(ctx context.Context, secret string) error
	ResendVerification(ctx context.Context, email string) error
	Login(ctx context.Context, identifier, password string) (models.User, models.SessionTokens, error)
	RefreshAccessToken(ctx context.Context, presented string) (models.SessionTokens, error)
	Logout(ctx context.Context, userID string) error
	ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, secret, newPassword string) error
}

// Toggler captures the relationship toggle operations used by the like and
// subscription handlers.
type Toggler interface {
	Toggle(ctx context.Context, actorID, targetID, kind string) (relationship.Outcome, error)
	IsActive(ctx context.Context, actorID, targetID, kind string) (bool, error)
	CountForTarget(ctx context.Context, targetID, kind string) (int64, error)
	ActorsForTarget(ctx context.Context, targetID, kind string) ([]string, error)
	TargetsForActor(ctx context.Context, actorID, kind string) ([]string, error)
}

// UserStore captures the user persistence operations used outside the auth
// service (profile pages, account updates).
type UserStore interface {
	FindByID(ctx context.Context, id string) (models.User, error)
	FindByHandle(ctx context.Context, handle string) (models.User, error)
	UpdateProfile(ctx context.Context, id, fullName, email string) error
	UpdateAvatar(ctx context.Context, id, avatarURL string) error
	UpdateCoverImage(ctx context.Context, id, coverURL string) error
}

// VideoStore captures persistence for video workflows.
type VideoStore interface {
	Create(ctx context.Context, video models.Video) error
	FindByID(ctx context.Context, id string) (models.Video, error)
	List(ctx context.Context, opts repositories.ListOptions) ([]models.Video, int64, error)
	ListByIDs(ctx context.Context, ids []string) ([]models.Video, error)
	Update(ctx context.Context, video models.Video) error
	Delete(ctx context.Context, id string) error
	IncrementViews(ctx context.Context, id string) error
	SetPublished(ctx context.Context, id string, published bool) error
	OwnerStats(ctx context.Context, ownerID string) (videoCount, totalViews int64, err error)
	OwnerLikes(ctx context.Context, ownerID string) (int64, error)
}

// TweetStore captures persistence for tweet workflows.
type TweetStore interface {
	Create(ctx context.Context, tweet models.Tweet) error
	FindByID(ctx context.Context, id string) (models.Tweet, error)
	ListByOwner(ctx context.Context, ownerID string, opts repositories.ListOptions) ([]models.Tweet, int64, error)
	Update(ctx context.Context, tweet models.Tweet) error
	Delete(ctx context.Context, id string) error
}

// CommentStore captures persistence for comment workflows.
type CommentStore interface {
	Create(ctx context.Context, comment models.Comment) error
	FindByID(ctx context.Context, id string) (models.Comment, error)
	ListByParent(ctx context.Context, parentKind, parentID string, opts repositories.ListOptions) ([]models.Comment, int64, error)
	Update(ctx context.Context, comment models.Comment) error
	Delete(ctx context.Context, id string) error
}

// PlaylistStore captures persistence for playlist workflows.
type PlaylistStore interface {
	Create(ctx context.Context, playlist models.Playlist) error
	FindByID(ctx context.Context, id string) (models.Playlist, error)
	ListByOwner(ctx context.Context, ownerID string) ([]models.Playlist, error)
	Update(ctx context.Context, playlist models.Playlist) error
	Delete(ctx context.Context, id string) error
	AddVideo(ctx context.Context, playlistID, videoID string) error
	RemoveVideo(ctx context.Context, playlistID, videoID string) error
	VideoIDs(ctx context.Context, playlistID string) ([]string, error)
}

// WatchHistoryStore records and lists watched videos per user.
type WatchHistoryStore interface {
	Record(ctx context.Context, userID, videoID string, watchedAt time.Time) error
	ListVideoIDs(ctx context.Context, userID string) ([]string, error)
}

// Dependencies aggregates collaborators required by the HTTP handlers.
type Dependencies struct {
	Issuer        *auth.TokenIssuer
	Auth          AuthService
	Users         UserStore
	Toggles       Toggler
	Videos        VideoStore
	Tweets        TweetStore
	Comments      CommentStore
	Playlists     PlaylistStore
	History       WatchHistoryStore
	Assets        storage.AssetStore
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	UploadTimeout time.Duration
	ResendLimiter RateLimiter
	ForgotLimiter RateLimiter
}
