package handlers

import (
	"net/http"

	"github.com/vidiosphere/backend/internal/middleware"
	"github.com/vidiosphere/backend/internal/models"
	"github.com/vidiosphere/backend/internal/relationship"
)

// SubscriptionHandler implements channel subscription toggles and listings.
type SubscriptionHandler struct {
	Toggles Toggler
	Users   UserStore
}

// Toggle handles POST /api/v1/subscriptions/toggle/{channelId}. Subscribing
// to yourself is rejected.
func (h SubscriptionHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, ok := middleware.IdentityFromContext(ctx)
	if !ok {
		respondFailure(ctx, w, http.StatusUnauthorized, "authentication required")
		return
	}

	outcome, err := h.Toggles.Toggle(ctx, identity.UserID, r.PathValue("channelId"), models.EdgeKindSubscription)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	message := "Subscribed"
	if outcome == relationship.OutcomeRemoved {
		message = "Unsubscribed"
	}
	respondSuccess(ctx, w, http.StatusOK, map[string]bool{
		"subscribed": outcome == relationship.OutcomeAdded,
	}, message)
}

// Subscribers handles GET /api/v1/subscriptions/subscribers/{channelId}.
func (h SubscriptionHandler) Subscribers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ids, err := h.Toggles.ActorsForTarget(ctx, r.PathValue("channelId"), models.EdgeKindSubscription)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	respondSuccess(ctx, w, http.StatusOK, h.userSummaries(r, ids), "Subscribers fetched successfully")
}

// Subscriptions handles GET /api/v1/subscriptions/channels: channels the
// requester is subscribed to.
func (h SubscriptionHandler) Subscriptions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, ok := middleware.IdentityFromContext(ctx)
	if !ok {
		respondFailure(ctx, w, http.StatusUnauthorized, "authentication required")
		return
	}

	ids, err := h.Toggles.TargetsForActor(ctx, identity.UserID, models.EdgeKindSubscription)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	respondSuccess(ctx, w, http.StatusOK, h.userSummaries(r, ids), "Subscribed channels fetched successfully")
}

// userSummaries resolves edge endpoints to public profiles, skipping ids
// that no longer resolve to an account.
func (h SubscriptionHandler) userSummaries(r *http.Request, ids []string) []userPayload {
	ctx := r.Context()

	out := make([]userPayload, 0, len(ids))
	for _, id := range ids {
		user, err := h.Users.FindByID(ctx, id)
		if err != nil {
			continue
		}
		out = append(out, toUserPayload(user))
	}
	return out
}
