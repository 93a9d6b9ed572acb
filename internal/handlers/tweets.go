package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vidiosphere/backend/internal/middleware"
	"github.com/vidiosphere/backend/internal/models"
	"github.com/vidiosphere/backend/internal/repositories"
)

const maxTweetLength = 280

// TweetHandler implements the channel micro-post endpoints.
type TweetHandler struct {
	Tweets  TweetStore
	Toggles Toggler
}

type tweetPayload struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"ownerId"`
	Content   string    `json:"content"`
	LikeCount int64     `json:"likeCount"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toTweetPayload(t models.Tweet) tweetPayload {
	return tweetPayload{
		ID:        t.ID,
		OwnerID:   t.OwnerID,
		Content:   t.Content,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}

type tweetRequest struct {
	Content string `json:"content"`
}

func (req tweetRequest) validate() (string, string) {
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return "", "content is required"
	}
	if len(content) > maxTweetLength {
		return "", "content exceeds the maximum length"
	}
	return content, ""
}

// Create handles POST /api/v1/tweets.
func (h TweetHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, ok := middleware.IdentityFromContext(ctx)
	if !ok {
		respondFailure(ctx, w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req tweetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondFailure(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}
	content, problem := req.validate()
	if problem != "" {
		respondFailure(ctx, w, http.StatusBadRequest, problem)
		return
	}

	now := time.Now().UTC()
	tweet := models.Tweet{
		ID:        uuid.NewString(),
		OwnerID:   identity.UserID,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.Tweets.Create(ctx, tweet); err != nil {
		respondError(ctx, w, err)
		return
	}

	respondSuccess(ctx, w, http.StatusCreated, toTweetPayload(tweet), "Tweet created successfully")
}

// ListByUser handles GET /api/v1/tweets/user/{userId}.
func (h TweetHandler) ListByUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ownerID := r.PathValue("userId")
	if ownerID == "" {
		respondFailure(ctx, w, http.StatusBadRequest, "user id is missing")
		return
	}

	opts := paging(r)
	tweets, total, err := h.Tweets.ListByOwner(ctx, ownerID, opts)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	payloads := make([]tweetPayload, 0, len(tweets))
	for _, t := range tweets {
		payload := toTweetPayload(t)
		if count, err := h.Toggles.CountForTarget(ctx, t.ID, models.EdgeKindTweetLike); err == nil {
			payload.LikeCount = count
		}
		payloads = append(payloads, payload)
	}

	respondSuccess(ctx, w, http.StatusOK, map[string]any{
		"tweets": payloads,
		"paging": newPageInfo(opts, total),
	}, "Tweets fetched successfully")
}

// Update handles PATCH /api/v1/tweets/{id}. Only the owner may edit.
func (h TweetHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tweet, ok := h.ownedTweet(w, r)
	if !ok {
		return
	}

	var req tweetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondFailure(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}
	content, problem := req.validate()
	if problem != "" {
		respondFailure(ctx, w, http.StatusBadRequest, problem)
		return
	}

	tweet.Content = content
	tweet.UpdatedAt = time.Now().UTC()
	if err := h.Tweets.Update(ctx, tweet); err != nil {
		respondError(ctx, w, err)
		return
	}

	respondSuccess(ctx, w, http.StatusOK, toTweetPayload(tweet), "Tweet updated successfully")
}

// Delete handles DELETE /api/v1/tweets/{id}. Only the owner may delete.
func (h TweetHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tweet, ok := h.ownedTweet(w, r)
	if !ok {
		return
	}

	if err := h.Tweets.Delete(ctx, tweet.ID); err != nil {
		respondError(ctx, w, err)
		return
	}

	respondSuccess(ctx, w, http.StatusOK, nil, "Tweet deleted successfully")
}

func (h TweetHandler) ownedTweet(w http.ResponseWriter, r *http.Request) (models.Tweet, bool) {
	ctx := r.Context()

	identity, ok := middleware.IdentityFromContext(ctx)
	if !ok {
		respondFailure(ctx, w, http.StatusUnauthorized, "authentication required")
		return models.Tweet{}, false
	}

	tweet, err := h.Tweets.FindByID(ctx, r.PathValue("id"))
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondFailure(ctx, w, http.StatusNotFound, "tweet not found")
			return models.Tweet{}, false
		}
		respondError(ctx, w, err)
		return models.Tweet{}, false
	}

	if tweet.OwnerID != identity.UserID {
		respondFailure(ctx, w, http.StatusForbidden, "only the owner can modify this tweet")
		return models.Tweet{}, false
	}
	return tweet, true
}
