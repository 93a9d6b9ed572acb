package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vidiosphere/backend/internal/models"
	"github.com/vidiosphere/backend/internal/repositories"
)

type capturingPlaylistStore struct {
	created *models.Playlist
}

func (s *capturingPlaylistStore) Create(_ context.Context, playlist models.Playlist) error {
	s.created = &playlist
	return nil
}

func (s *capturingPlaylistStore) FindByID(context.Context, string) (models.Playlist, error) {
	return models.Playlist{}, repositories.ErrNotFound
}

func (s *capturingPlaylistStore) ListByOwner(context.Context, string) ([]models.Playlist, error) {
	return nil, nil
}

func (s *capturingPlaylistStore) Update(context.Context, models.Playlist) error { return nil }

func (s *capturingPlaylistStore) Delete(context.Context, string) error { return nil }

func (s *capturingPlaylistStore) AddVideo(context.Context, string, string) error { return nil }

func (s *capturingPlaylistStore) RemoveVideo(context.Context, string, string) error { return nil }

func (s *capturingPlaylistStore) VideoIDs(context.Context, string) ([]string, error) {
	return nil, nil
}

func TestPlaylistHandlerCreateStampsTimestamps(t *testing.T) {
	store := &capturingPlaylistStore{}
	handler := PlaylistHandler{Playlists: store}

	req := authedJSONRequest(http.MethodPost, "/api/v1/playlists", `{"name":"favourites"}`)
	rec := httptest.NewRecorder()
	handler.Create(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status %d got %d", http.StatusCreated, rec.Code)
	}
	if store.created == nil {
		t.Fatal("expected playlist to be persisted")
	}
	if store.created.CreatedAt.IsZero() || store.created.UpdatedAt.IsZero() {
		t.Fatalf("expected timestamps to be stamped, got created=%v updated=%v",
			store.created.CreatedAt, store.created.UpdatedAt)
	}
	if time.Since(store.created.CreatedAt) > time.Minute {
		t.Fatalf("expected a current created instant, got %v", store.created.CreatedAt)
	}
}
