package handlers

import (
	"net/http"

	"github.com/vidiosphere/backend/internal/middleware"
	"github.com/vidiosphere/backend/internal/models"
	"github.com/vidiosphere/backend/internal/relationship"
)

// LikeHandler implements the toggle-style like endpoints. A repeat of the
// same request undoes the previous one.
type LikeHandler struct {
	Toggles Toggler
	Videos  VideoStore
}

// ToggleVideo handles POST /api/v1/likes/toggle/video/{videoId}.
func (h LikeHandler) ToggleVideo(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, r.PathValue("videoId"), models.EdgeKindVideoLike)
}

// ToggleComment handles POST /api/v1/likes/toggle/comment/{commentId}.
func (h LikeHandler) ToggleComment(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, r.PathValue("commentId"), models.EdgeKindCommentLike)
}

// ToggleTweet handles POST /api/v1/likes/toggle/tweet/{tweetId}.
func (h LikeHandler) ToggleTweet(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, r.PathValue("tweetId"), models.EdgeKindTweetLike)
}

func (h LikeHandler) toggle(w http.ResponseWriter, r *http.Request, targetID, kind string) {
	ctx := r.Context()

	identity, ok := middleware.IdentityFromContext(ctx)
	if !ok {
		respondFailure(ctx, w, http.StatusUnauthorized, "authentication required")
		return
	}

	outcome, err := h.Toggles.Toggle(ctx, identity.UserID, targetID, kind)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	count, err := h.Toggles.CountForTarget(ctx, targetID, kind)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	message := "Like added"
	if outcome == relationship.OutcomeRemoved {
		message = "Like removed"
	}
	respondSuccess(ctx, w, http.StatusOK, map[string]any{
		"liked":     outcome == relationship.OutcomeAdded,
		"likeCount": count,
	}, message)
}

// LikedVideos handles GET /api/v1/likes/videos: videos the requester liked,
// most recent like first.
func (h LikeHandler) LikedVideos(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, ok := middleware.IdentityFromContext(ctx)
	if !ok {
		respondFailure(ctx, w, http.StatusUnauthorized, "authentication required")
		return
	}

	ids, err := h.Toggles.TargetsForActor(ctx, identity.UserID, models.EdgeKindVideoLike)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	videos, err := h.Videos.ListByIDs(ctx, ids)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	respondSuccess(ctx, w, http.StatusOK, videoPayloads(videos), "Liked videos fetched successfully")
}
