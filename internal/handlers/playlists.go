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

// PlaylistHandler implements user-curated video collections.
type PlaylistHandler struct {
	Playlists PlaylistStore
	Videos    VideoStore
}

type playlistPayload struct {
	ID          string         `json:"id"`
	OwnerID     string         `json:"ownerId"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Videos      []videoPayload `json:"videos,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

func toPlaylistPayload(p models.Playlist, videos []models.Video) playlistPayload {
	payload := playlistPayload{
		ID:          p.ID,
		OwnerID:     p.OwnerID,
		Name:        p.Name,
		Description: p.Description,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
	if videos != nil {
		payload.Videos = videoPayloads(videos)
	}
	return payload
}

type playlistRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Create handles POST /api/v1/playlists.
func (h PlaylistHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, ok := middleware.IdentityFromContext(ctx)
	if !ok {
		respondFailure(ctx, w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req playlistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondFailure(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		respondFailure(ctx, w, http.StatusBadRequest, "name is required")
		return
	}

	now := time.Now().UTC()
	playlist := models.Playlist{
		ID:          uuid.NewString(),
		OwnerID:     identity.UserID,
		Name:        name,
		Description: strings.TrimSpace(req.Description),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := h.Playlists.Create(ctx, playlist); err != nil {
		respondError(ctx, w, err)
		return
	}

	respondSuccess(ctx, w, http.StatusCreated, toPlaylistPayload(playlist, nil), "Playlist created successfully")
}

// Get handles GET /api/v1/playlists/{id}, returning the playlist with its
// videos in insertion order.
func (h PlaylistHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	playlist, err := h.Playlists.FindByID(ctx, r.PathValue("id"))
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	ids, err := h.Playlists.VideoIDs(ctx, playlist.ID)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	videos, err := h.Videos.ListByIDs(ctx, ids)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	respondSuccess(ctx, w, http.StatusOK, toPlaylistPayload(playlist, videos), "Playlist fetched successfully")
}

// ListByUser handles GET /api/v1/playlists/user/{userId}.
func (h PlaylistHandler) ListByUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ownerID := r.PathValue("userId")
	if ownerID == "" {
		respondFailure(ctx, w, http.StatusBadRequest, "user id is missing")
		return
	}

	playlists, err := h.Playlists.ListByOwner(ctx, ownerID)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	payloads := make([]playlistPayload, 0, len(playlists))
	for _, p := range playlists {
		payloads = append(payloads, toPlaylistPayload(p, nil))
	}

	respondSuccess(ctx, w, http.StatusOK, payloads, "Playlists fetched successfully")
}

// Update handles PATCH /api/v1/playlists/{id}. Only the owner may edit.
func (h PlaylistHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	playlist, ok := h.ownedPlaylist(w, r, r.PathValue("id"))
	if !ok {
		return
	}

	var req playlistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondFailure(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}
	if name := strings.TrimSpace(req.Name); name != "" {
		playlist.Name = name
	}
	playlist.Description = strings.TrimSpace(req.Description)
	playlist.UpdatedAt = time.Now().UTC()

	if err := h.Playlists.Update(ctx, playlist); err != nil {
		respondError(ctx, w, err)
		return
	}

	respondSuccess(ctx, w, http.StatusOK, toPlaylistPayload(playlist, nil), "Playlist updated successfully")
}

// Delete handles DELETE /api/v1/playlists/{id}. Only the owner may delete.
func (h PlaylistHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	playlist, ok := h.ownedPlaylist(w, r, r.PathValue("id"))
	if !ok {
		return
	}

	if err := h.Playlists.Delete(ctx, playlist.ID); err != nil {
		respondError(ctx, w, err)
		return
	}

	respondSuccess(ctx, w, http.StatusOK, nil, "Playlist deleted successfully")
}

// AddVideo handles POST /api/v1/playlists/{id}/videos/{videoId}. Adding a
// video already present is reported as a conflict.
func (h PlaylistHandler) AddVideo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	playlist, ok := h.ownedPlaylist(w, r, r.PathValue("id"))
	if !ok {
		return
	}

	videoID := r.PathValue("videoId")
	if _, err := h.Videos.FindByID(ctx, videoID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondFailure(ctx, w, http.StatusNotFound, "video not found")
			return
		}
		respondError(ctx, w, err)
		return
	}

	if err := h.Playlists.AddVideo(ctx, playlist.ID, videoID); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			respondFailure(ctx, w, http.StatusConflict, "video is already in the playlist")
			return
		}
		respondError(ctx, w, err)
		return
	}

	respondSuccess(ctx, w, http.StatusOK, nil, "Video added to playlist")
}

// RemoveVideo handles DELETE /api/v1/playlists/{id}/videos/{videoId}.
func (h PlaylistHandler) RemoveVideo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	playlist, ok := h.ownedPlaylist(w, r, r.PathValue("id"))
	if !ok {
		return
	}

	if err := h.Playlists.RemoveVideo(ctx, playlist.ID, r.PathValue("videoId")); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondFailure(ctx, w, http.StatusNotFound, "video is not in the playlist")
			return
		}
		respondError(ctx, w, err)
		return
	}

	respondSuccess(ctx, w, http.StatusOK, nil, "Video removed from playlist")
}

func (h PlaylistHandler) ownedPlaylist(w http.ResponseWriter, r *http.Request, id string) (models.Playlist, bool) {
	ctx := r.Context()

	identity, ok := middleware.IdentityFromContext(ctx)
	if !ok {
		respondFailure(ctx, w, http.StatusUnauthorized, "authentication required")
		return models.Playlist{}, false
	}

	playlist, err := h.Playlists.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondFailure(ctx, w, http.StatusNotFound, "playlist not found")
			return models.Playlist{}, false
		}
		respondError(ctx, w, err)
		return models.Playlist{}, false
	}

	if playlist.OwnerID != identity.UserID {
		respondFailure(ctx, w, http.StatusForbidden, "only the owner can modify this playlist")
		return models.Playlist{}, false
	}
	return playlist, true
}
