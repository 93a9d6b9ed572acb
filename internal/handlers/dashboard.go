package handlers

import (
	"net/http"

	"github.com/vidiosphere/backend/internal/middleware"
	"github.com/vidiosphere/backend/internal/models"
)

// DashboardHandler implements the creator dashboard endpoints.
type DashboardHandler struct {
	Videos  VideoStore
	Toggles Toggler
}

// Stats handles GET /api/v1/dashboard/stats.
func (h DashboardHandler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, ok := middleware.IdentityFromContext(ctx)
	if !ok {
		respondFailure(ctx, w, http.StatusUnauthorized, "authentication required")
		return
	}

	videoCount, totalViews, err := h.Videos.OwnerStats(ctx, identity.UserID)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	subscribers, err := h.Toggles.CountForTarget(ctx, identity.UserID, models.EdgeKindSubscription)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	likes, err := h.Videos.OwnerLikes(ctx, identity.UserID)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	stats := models.ChannelStats{
		VideoCount:      videoCount,
		TotalViews:      totalViews,
		SubscriberCount: subscribers,
		TotalLikes:      likes,
	}
	respondSuccess(ctx, w, http.StatusOK, map[string]int64{
		"videoCount":      stats.VideoCount,
		"totalViews":      stats.TotalViews,
		"subscriberCount": stats.SubscriberCount,
		"totalLikes":      stats.TotalLikes,
	}, "Channel stats fetched successfully")
}

// OwnerVideos handles GET /api/v1/dashboard/videos: every video the
// requester owns, published or not.
func (h DashboardHandler) OwnerVideos(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, ok := middleware.IdentityFromContext(ctx)
	if !ok {
		respondFailure(ctx, w, http.StatusUnauthorized, "authentication required")
		return
	}

	opts := paging(r)
	opts.OwnerID = identity.UserID
	opts.IncludeUnpublished = true

	videos, total, err := h.Videos.List(ctx, opts)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	respondSuccess(ctx, w, http.StatusOK, map[string]any{
		"videos": videoPayloads(videos),
		"paging": newPageInfo(opts, total),
	}, "Channel videos fetched successfully")
}
