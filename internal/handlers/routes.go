package handlers

import (
	"net/http"

	"github.com/vidiosphere/backend/internal/middleware"
)

// RegisterRoutes wires HTTP handlers into the provided ServeMux.
func RegisterRoutes(mux *http.ServeMux, deps Dependencies) {
	health := HealthHandler{}
	users := UserHandler{
		Auth:          deps.Auth,
		Users:         deps.Users,
		Toggles:       deps.Toggles,
		Videos:        deps.Videos,
		History:       deps.History,
		Assets:        deps.Assets,
		AccessTTL:     deps.AccessTTL,
		RefreshTTL:    deps.RefreshTTL,
		ResendLimiter: deps.ResendLimiter,
		ForgotLimiter: deps.ForgotLimiter,
	}
	videos := VideoHandler{
		Videos:        deps.Videos,
		History:       deps.History,
		Toggles:       deps.Toggles,
		Assets:        deps.Assets,
		UploadTimeout: deps.UploadTimeout,
	}
	tweets := TweetHandler{Tweets: deps.Tweets, Toggles: deps.Toggles}
	comments := CommentHandler{Comments: deps.Comments, Videos: deps.Videos, Tweets: deps.Tweets, Toggles: deps.Toggles}
	playlists := PlaylistHandler{Playlists: deps.Playlists, Videos: deps.Videos}
	likes := LikeHandler{Toggles: deps.Toggles, Videos: deps.Videos}
	subscriptions := SubscriptionHandler{Toggles: deps.Toggles, Users: deps.Users}
	dashboard := DashboardHandler{Videos: deps.Videos, Toggles: deps.Toggles}

	private := middleware.Authenticate(deps.Issuer)
	public := middleware.OptionalAuthenticate(deps.Issuer)

	handle := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, h)
	}
	protected := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, private(h))
	}
	personalised := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, public(h))
	}

	handle("GET /healthz", health.Handle)

	handle("POST /api/v1/users/register", users.Register)
	handle("POST /api/v1/users/login", users.Login)
	handle("POST /api/v1/users/refresh-token", users.Refresh)
	handle("GET /api/v1/users/verify-email", users.VerifyEmail)
	handle("POST /api/v1/users/resend-verification", users.ResendVerification)
	handle("POST /api/v1/users/forgot-password", users.ForgotPassword)
	handle("POST /api/v1/users/reset-password", users.ResetPassword)
	protected("POST /api/v1/users/logout", users.Logout)
	protected("POST /api/v1/users/change-password", users.ChangePassword)
	protected("GET /api/v1/users/me", users.CurrentUser)
	protected("PATCH /api/v1/users/me", users.UpdateAccount)
	protected("PATCH /api/v1/users/me/avatar", users.UpdateAvatar)
	protected("PATCH /api/v1/users/me/cover-image", users.UpdateCoverImage)
	protected("GET /api/v1/users/me/history", users.WatchHistory)
	personalised("GET /api/v1/users/c/{handle}", users.ChannelProfile)

	protected("POST /api/v1/videos", videos.Upload)
	handle("GET /api/v1/videos", videos.List)
	personalised("GET /api/v1/videos/{id}", videos.Get)
	protected("PATCH /api/v1/videos/{id}", videos.Update)
	protected("PATCH /api/v1/videos/{id}/thumbnail", videos.UpdateThumbnail)
	protected("DELETE /api/v1/videos/{id}", videos.Delete)
	protected("PATCH /api/v1/videos/{id}/toggle-publish", videos.TogglePublish)

	protected("POST /api/v1/tweets", tweets.Create)
	handle("GET /api/v1/tweets/user/{userId}", tweets.ListByUser)
	protected("PATCH /api/v1/tweets/{id}", tweets.Update)
	protected("DELETE /api/v1/tweets/{id}", tweets.Delete)

	protected("POST /api/v1/comments/video/{videoId}", comments.CreateForVideo)
	handle("GET /api/v1/comments/video/{videoId}", comments.ListForVideo)
	protected("POST /api/v1/comments/tweet/{tweetId}", comments.CreateForTweet)
	handle("GET /api/v1/comments/tweet/{tweetId}", comments.ListForTweet)
	protected("PATCH /api/v1/comments/{id}", comments.Update)
	protected("DELETE /api/v1/comments/{id}", comments.Delete)

	protected("POST /api/v1/playlists", playlists.Create)
	handle("GET /api/v1/playlists/{id}", playlists.Get)
	handle("GET /api/v1/playlists/user/{userId}", playlists.ListByUser)
	protected("PATCH /api/v1/playlists/{id}", playlists.Update)
	protected("DELETE /api/v1/playlists/{id}", playlists.Delete)
	protected("POST /api/v1/playlists/{id}/videos/{videoId}", playlists.AddVideo)
	protected("DELETE /api/v1/playlists/{id}/videos/{videoId}", playlists.RemoveVideo)

	protected("POST /api/v1/likes/toggle/video/{videoId}", likes.ToggleVideo)
	protected("POST /api/v1/likes/toggle/comment/{commentId}", likes.ToggleComment)
	protected("POST /api/v1/likes/toggle/tweet/{tweetId}", likes.ToggleTweet)
	protected("GET /api/v1/likes/videos", likes.LikedVideos)

	protected("POST /api/v1/subscriptions/toggle/{channelId}", subscriptions.Toggle)
	handle("GET /api/v1/subscriptions/subscribers/{channelId}", subscriptions.Subscribers)
	protected("GET /api/v1/subscriptions/channels", subscriptions.Subscriptions)

	protected("GET /api/v1/dashboard/stats", dashboard.Stats)
	protected("GET /api/v1/dashboard/videos", dashboard.OwnerVideos)
}
