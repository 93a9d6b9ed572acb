package models

import "time"

// User represents an account within the VidioSphere platform. A user is also
// a channel: other users subscribe to it and its videos hang off its id.
type User struct {
	ID            string
	Handle        string
	Email         string
	FullName      string
	Password      string
	AvatarURL     string
	CoverImageURL string
	EmailVerified bool
	// RefreshTokenHash holds the SHA-256 of the single currently valid
	// refresh token, or empty when the user is logged out.
	RefreshTokenHash string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Token kinds for ephemeral single-use secrets.
const (
	TokenKindEmailVerify   = "email_verify"
	TokenKindPasswordReset = "password_reset"
)

// EphemeralToken is a single-use, time-boxed secret proving possession of an
// email inbox. Only the hash of the secret is ever persisted.
type EphemeralToken struct {
	ID         string
	UserID     string
	SecretHash string
	Kind       string
	ExpiresAt  time.Time
	Consumed   bool
	CreatedAt  time.Time
}

// Relationship edge kinds. Presence of an edge is binary; the storage layer
// enforces at most one edge per (actor, target, kind) tuple.
const (
	EdgeKindVideoLike    = "video_like"
	EdgeKindCommentLike  = "comment_like"
	EdgeKindTweetLike    = "tweet_like"
	EdgeKindSubscription = "subscription"
)

// RelationshipEdge is a directed link between an actor and a target
// representing a like or a channel subscription.
type RelationshipEdge struct {
	ID        string
	ActorID   string
	TargetID  string
	Kind      string
	CreatedAt time.Time
}

// Video stores an uploaded video along with its asset locators.
type Video struct {
	ID           string
	OwnerID      string
	Title        string
	Description  string
	VideoURL     string
	ThumbnailURL string
	Duration     float64
	Views        int64
	Published    bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Tweet is a short text post on a user's channel.
type Tweet struct {
	ID        string
	OwnerID   string
	Content   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Comment parent kinds. A comment attaches to exactly one parent.
const (
	ParentKindVideo = "video"
	ParentKindTweet = "tweet"
)

// Comment is a reply attached to a video or a tweet. ParentKind discriminates
// which entity ParentID references.
type Comment struct {
	ID         string
	OwnerID    string
	ParentKind string
	ParentID   string
	Content    string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Playlist is an ordered, user-curated collection of videos.
type Playlist struct {
	ID          string
	OwnerID     string
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// WatchHistoryEntry records the most recent time a user watched a video.
// Entries are deduplicated per (user, video) and read most recent first.
type WatchHistoryEntry struct {
	UserID    string
	VideoID   string
	WatchedAt time.Time
}

// SessionTokens groups the bearer credentials issued to authenticated users.
type SessionTokens struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// ChannelProfile is a user's public channel page with subscription counters.
type ChannelProfile struct {
	User                    User
	SubscriberCount         int64
	SubscribedToCount       int64
	IsSubscribedByRequester bool
}

// ChannelStats aggregates the creator dashboard counters.
type ChannelStats struct {
	VideoCount      int64
	TotalViews      int64
	SubscriberCount int64
	TotalLikes      int64
}
