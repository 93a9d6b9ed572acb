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

// CommentHandler implements comment threads under videos and tweets.
type CommentHandler struct {
	Comments CommentStore
	Videos   VideoStore
	Tweets   TweetStore
	Toggles  Toggler
}

type commentPayload struct {
	ID         string    `json:"id"`
	OwnerID    string    `json:"ownerId"`
	ParentKind string    `json:"parentKind"`
	ParentID   string    `json:"parentId"`
	Content    string    `json:"content"`
	LikeCount  int64     `json:"likeCount"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func toCommentPayload(c models.Comment) commentPayload {
	return commentPayload{
		ID:         c.ID,
		OwnerID:    c.OwnerID,
		ParentKind: c.ParentKind,
		ParentID:   c.ParentID,
		Content:    c.Content,
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,
	}
}

type commentRequest struct {
	Content string `json:"content"`
}

// CreateForVideo handles POST /api/v1/comments/video/{videoId}.
func (h CommentHandler) CreateForVideo(w http.ResponseWriter, r *http.Request) {
	h.create(w, r, models.ParentKindVideo, r.PathValue("videoId"))
}

// CreateForTweet handles POST /api/v1/comments/tweet/{tweetId}.
func (h CommentHandler) CreateForTweet(w http.ResponseWriter, r *http.Request) {
	h.create(w, r, models.ParentKindTweet, r.PathValue("tweetId"))
}

func (h CommentHandler) create(w http.ResponseWriter, r *http.Request, parentKind, parentID string) {
	ctx := r.Context()

	identity, ok := middleware.IdentityFromContext(ctx)
	if !ok {
		respondFailure(ctx, w, http.StatusUnauthorized, "authentication required")
		return
	}

	exists, err := h.parentExists(r, parentKind, parentID)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	if !exists {
		respondFailure(ctx, w, http.StatusNotFound, parentKind+" not found")
		return
	}

	var req commentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondFailure(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		respondFailure(ctx, w, http.StatusBadRequest, "content is required")
		return
	}

	now := time.Now().UTC()
	comment := models.Comment{
		ID:         uuid.NewString(),
		OwnerID:    identity.UserID,
		ParentKind: parentKind,
		ParentID:   parentID,
		Content:    content,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := h.Comments.Create(ctx, comment); err != nil {
		respondError(ctx, w, err)
		return
	}

	respondSuccess(ctx, w, http.StatusCreated, toCommentPayload(comment), "Comment added successfully")
}

// ListForVideo handles GET /api/v1/comments/video/{videoId}.
func (h CommentHandler) ListForVideo(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, models.ParentKindVideo, r.PathValue("videoId"))
}

// ListForTweet handles GET /api/v1/comments/tweet/{tweetId}.
func (h CommentHandler) ListForTweet(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, models.ParentKindTweet, r.PathValue("tweetId"))
}

func (h CommentHandler) list(w http.ResponseWriter, r *http.Request, parentKind, parentID string) {
	ctx := r.Context()

	if parentID == "" {
		respondFailure(ctx, w, http.StatusBadRequest, "parent id is missing")
		return
	}

	opts := paging(r)
	comments, total, err := h.Comments.ListByParent(ctx, parentKind, parentID, opts)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	payloads := make([]commentPayload, 0, len(comments))
	for _, c := range comments {
		payload := toCommentPayload(c)
		if count, err := h.Toggles.CountForTarget(ctx, c.ID, models.EdgeKindCommentLike); err == nil {
			payload.LikeCount = count
		}
		payloads = append(payloads, payload)
	}

	respondSuccess(ctx, w, http.StatusOK, map[string]any{
		"comments": payloads,
		"paging":   newPageInfo(opts, total),
	}, "Comments fetched successfully")
}

// Update handles PATCH /api/v1/comments/{id}. Only the author may edit.
func (h CommentHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	comment, ok := h.ownedComment(w, r)
	if !ok {
		return
	}

	var req commentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondFailure(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		respondFailure(ctx, w, http.StatusBadRequest, "content is required")
		return
	}

	comment.Content = content
	comment.UpdatedAt = time.Now().UTC()
	if err := h.Comments.Update(ctx, comment); err != nil {
		respondError(ctx, w, err)
		return
	}

	respondSuccess(ctx, w, http.StatusOK, toCommentPayload(comment), "Comment updated successfully")
}

// Delete handles DELETE /api/v1/comments/{id}. Only the author may delete.
func (h CommentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	comment, ok := h.ownedComment(w, r)
	if !ok {
		return
	}

	if err := h.Comments.Delete(ctx, comment.ID); err != nil {
		respondError(ctx, w, err)
		return
	}

	respondSuccess(ctx, w, http.StatusOK, nil, "Comment deleted successfully")
}

func (h CommentHandler) parentExists(r *http.Request, parentKind, parentID string) (bool, error) {
	ctx := r.Context()
	if parentID == "" {
		return false, nil
	}

	switch parentKind {
	case models.ParentKindVideo:
		_, err := h.Videos.FindByID(ctx, parentID)
		if errors.Is(err, repositories.ErrNotFound) {
			return false, nil
		}
		return err == nil, err
	case models.ParentKindTweet:
		_, err := h.Tweets.FindByID(ctx, parentID)
		if errors.Is(err, repositories.ErrNotFound) {
			return false, nil
		}
		return err == nil, err
	default:
		return false, nil
	}
}

func (h CommentHandler) ownedComment(w http.ResponseWriter, r *http.Request) (models.Comment, bool) {
	ctx := r.Context()

	identity, ok := middleware.IdentityFromContext(ctx)
	if !ok {
		respondFailure(ctx, w, http.StatusUnauthorized, "authentication required")
		return models.Comment{}, false
	}

	comment, err := h.Comments.FindByID(ctx, r.PathValue("id"))
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondFailure(ctx, w, http.StatusNotFound, "comment not found")
			return models.Comment{}, false
		}
		respondError(ctx, w, err)
		return models.Comment{}, false
	}

	if comment.OwnerID != identity.UserID {
		respondFailure(ctx, w, http.StatusForbidden, "only the author can modify this comment")
		return models.Comment{}, false
	}
	return comment, true
}
