package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vidiosphere/backend/internal/logging"
	"github.com/vidiosphere/backend/internal/middleware"
	"github.com/vidiosphere/backend/internal/models"
	"github.com/vidiosphere/backend/internal/repositories"
	"github.com/vidiosphere/backend/internal/storage"
)

// VideoHandler implements upload, playback metadata and catalogue endpoints.
type VideoHandler struct {
	Videos        VideoStore
	History       WatchHistoryStore
	Toggles       Toggler
	Assets        storage.AssetStore
	UploadTimeout time.Duration
}

type videoPayload struct {
	ID           string    `json:"id"`
	OwnerID      string    `json:"ownerId"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	VideoURL     string    `json:"videoUrl"`
	ThumbnailURL string    `json:"thumbnailUrl"`
	Duration     float64   `json:"duration"`
	Views        int64     `json:"views"`
	Published    bool      `json:"isPublished"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func toVideoPayload(v models.Video) videoPayload {
	return videoPayload{
		ID:           v.ID,
		OwnerID:      v.OwnerID,
		Title:        v.Title,
		Description:  v.Description,
		VideoURL:     v.VideoURL,
		ThumbnailURL: v.ThumbnailURL,
		Duration:     v.Duration,
		Views:        v.Views,
		Published:    v.Published,
		CreatedAt:    v.CreatedAt,
		UpdatedAt:    v.UpdatedAt,
	}
}

func videoPayloads(videos []models.Video) []videoPayload {
	out := make([]videoPayload, 0, len(videos))
	for _, v := range videos {
		out = append(out, toVideoPayload(v))
	}
	return out
}

// Upload handles POST /api/v1/videos: multipart with the video file, a
// thumbnail, title and description.
func (h VideoHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx, span := logging.StartSpan(r.Context(), "videos.upload")
	defer span.End()

	identity, ok := middleware.IdentityFromContext(ctx)
	if !ok {
		respondFailure(ctx, w, http.StatusUnauthorized, "authentication required")
		return
	}

	if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
		respondFailure(ctx, w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	title := strings.TrimSpace(r.FormValue("title"))
	if title == "" {
		respondFailure(ctx, w, http.StatusBadRequest, "title is required")
		return
	}
	duration, _ := strconv.ParseFloat(r.FormValue("duration"), 64)

	videoFile, videoHeader, err := r.FormFile("videoFile")
	if err != nil {
		respondFailure(ctx, w, http.StatusBadRequest, "video file is required")
		return
	}
	defer videoFile.Close()

	thumbFile, thumbHeader, err := r.FormFile("thumbnail")
	if err != nil {
		respondFailure(ctx, w, http.StatusBadRequest, "thumbnail is required")
		return
	}
	defer thumbFile.Close()

	uploadCtx := ctx
	if h.UploadTimeout > 0 {
		var cancel context.CancelFunc
		uploadCtx, cancel = context.WithTimeout(ctx, h.UploadTimeout)
		defer cancel()
	}

	videoURL, err := saveUpload(uploadCtx, h.Assets, storage.PrefixVideos, identity.UserID, videoHeader, videoFile)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	thumbURL, err := saveUpload(uploadCtx, h.Assets, storage.PrefixThumbnails, identity.UserID, thumbHeader, thumbFile)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	now := time.Now().UTC()
	video := models.Video{
		ID:           uuid.NewString(),
		OwnerID:      identity.UserID,
		Title:        title,
		Description:  strings.TrimSpace(r.FormValue("description")),
		VideoURL:     videoURL,
		ThumbnailURL: thumbURL,
		Duration:     duration,
		Published:    true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := h.Videos.Create(ctx, video); err != nil {
		respondError(ctx, w, err)
		return
	}

	respondSuccess(ctx, w, http.StatusCreated, toVideoPayload(video), "Video uploaded successfully")
}

// Get handles GET /api/v1/videos/{id}. A successful fetch by a signed-in
// viewer counts a view and lands in their watch history.
func (h VideoHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	video, err := h.Videos.FindByID(ctx, r.PathValue("id"))
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	identity, authed := middleware.IdentityFromContext(ctx)
	if !video.Published && (!authed || identity.UserID != video.OwnerID) {
		respondFailure(ctx, w, http.StatusNotFound, "resource not found")
		return
	}

	if err := h.Videos.IncrementViews(ctx, video.ID); err != nil {
		logging.FromContext(ctx).Warn("increment view count", "video_id", video.ID, "error", err)
	} else {
		video.Views++
	}
	if authed {
		if err := h.History.Record(ctx, identity.UserID, video.ID, time.Now().UTC()); err != nil {
			logging.FromContext(ctx).Warn("record watch history", "video_id", video.ID, "error", err)
		}
	}

	likes, err := h.Toggles.CountForTarget(ctx, video.ID, models.EdgeKindVideoLike)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	respondSuccess(ctx, w, http.StatusOK, map[string]any{
		"video":     toVideoPayload(video),
		"likeCount": likes,
	}, "Video fetched successfully")
}

// List handles GET /api/v1/videos with paging, search and owner filters.
func (h VideoHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	opts := paging(r)
	videos, total, err := h.Videos.List(ctx, opts)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	respondSuccess(ctx, w, http.StatusOK, map[string]any{
		"videos": videoPayloads(videos),
		"paging": newPageInfo(opts, total),
	}, "Videos fetched successfully")
}

type updateVideoRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
}

// Update handles PATCH /api/v1/videos/{id}. Only the owner may edit.
func (h VideoHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	video, ok := h.ownedVideo(w, r)
	if !ok {
		return
	}

	var req updateVideoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondFailure(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			respondFailure(ctx, w, http.StatusBadRequest, "title cannot be empty")
			return
		}
		video.Title = title
	}
	if req.Description != nil {
		video.Description = strings.TrimSpace(*req.Description)
	}
	video.UpdatedAt = time.Now().UTC()

	if err := h.Videos.Update(ctx, video); err != nil {
		respondError(ctx, w, err)
		return
	}

	respondSuccess(ctx, w, http.StatusOK, toVideoPayload(video), "Video updated successfully")
}

// UpdateThumbnail handles PATCH /api/v1/videos/{id}/thumbnail.
func (h VideoHandler) UpdateThumbnail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	video, ok := h.ownedVideo(w, r)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
		respondFailure(ctx, w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("thumbnail")
	if err != nil {
		respondFailure(ctx, w, http.StatusBadRequest, "thumbnail file is missing")
		return
	}
	defer file.Close()

	location, err := saveUpload(ctx, h.Assets, storage.PrefixThumbnails, video.OwnerID, header, file)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	video.ThumbnailURL = location
	video.UpdatedAt = time.Now().UTC()
	if err := h.Videos.Update(ctx, video); err != nil {
		respondError(ctx, w, err)
		return
	}

	respondSuccess(ctx, w, http.StatusOK, toVideoPayload(video), "Thumbnail updated successfully")
}

// Delete handles DELETE /api/v1/videos/{id}. Only the owner may delete.
func (h VideoHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	video, ok := h.ownedVideo(w, r)
	if !ok {
		return
	}

	if err := h.Videos.Delete(ctx, video.ID); err != nil {
		respondError(ctx, w, err)
		return
	}

	respondSuccess(ctx, w, http.StatusOK, nil, "Video deleted successfully")
}

// TogglePublish handles PATCH /api/v1/videos/{id}/toggle-publish.
func (h VideoHandler) TogglePublish(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	video, ok := h.ownedVideo(w, r)
	if !ok {
		return
	}

	next := !video.Published
	if err := h.Videos.SetPublished(ctx, video.ID, next); err != nil {
		respondError(ctx, w, err)
		return
	}

	respondSuccess(ctx, w, http.StatusOK, map[string]bool{"isPublished": next}, "Publish state toggled")
}

// ownedVideo loads the path video and enforces that the requester owns it.
func (h VideoHandler) ownedVideo(w http.ResponseWriter, r *http.Request) (models.Video, bool) {
	ctx := r.Context()

	identity, ok := middleware.IdentityFromContext(ctx)
	if !ok {
		respondFailure(ctx, w, http.StatusUnauthorized, "authentication required")
		return models.Video{}, false
	}

	video, err := h.Videos.FindByID(ctx, r.PathValue("id"))
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondFailure(ctx, w, http.StatusNotFound, "video not found")
			return models.Video{}, false
		}
		respondError(ctx, w, err)
		return models.Video{}, false
	}

	if video.OwnerID != identity.UserID {
		respondFailure(ctx, w, http.StatusForbidden, "only the owner can modify this video")
		return models.Video{}, false
	}
	return video, true
}
