package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/vidiosphere/backend/internal/middleware"
	"github.com/vidiosphere/backend/internal/models"
	"github.com/vidiosphere/backend/internal/repositories"
)

type capturingTweetStore struct {
	created  *models.Tweet
	updated  *models.Tweet
	findByID func(ctx context.Context, id string) (models.Tweet, error)
}

func (s *capturingTweetStore) Create(_ context.Context, tweet models.Tweet) error {
	s.created = &tweet
	return nil
}

func (s *capturingTweetStore) FindByID(ctx context.Context, id string) (models.Tweet, error) {
	return s.findByID(ctx, id)
}

func (s *capturingTweetStore) ListByOwner(context.Context, string, repositories.ListOptions) ([]models.Tweet, int64, error) {
	return nil, 0, nil
}

func (s *capturingTweetStore) Update(_ context.Context, tweet models.Tweet) error {
	s.updated = &tweet
	return nil
}

func (s *capturingTweetStore) Delete(context.Context, string) error { return nil }

func authedJSONRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	return req.WithContext(middleware.WithIdentity(req.Context(), middleware.Identity{UserID: "u1"}))
}

func TestTweetHandlerCreateStampsTimestamps(t *testing.T) {
	store := &capturingTweetStore{}
	handler := TweetHandler{Tweets: store}

	before := time.Now().UTC()
	rec := httptest.NewRecorder()
	handler.Create(rec, authedJSONRequest(http.MethodPost, "/api/v1/tweets", `{"content":"hello"}`))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status %d got %d", http.StatusCreated, rec.Code)
	}
	if store.created == nil {
		t.Fatal("expected tweet to be persisted")
	}
	if store.created.CreatedAt.IsZero() || store.created.UpdatedAt.IsZero() {
		t.Fatalf("expected timestamps to be stamped, got created=%v updated=%v",
			store.created.CreatedAt, store.created.UpdatedAt)
	}
	if store.created.CreatedAt.Before(before) || store.created.CreatedAt.After(time.Now().UTC()) {
		t.Fatalf("expected a current created instant, got %v", store.created.CreatedAt)
	}
	if !store.created.UpdatedAt.Equal(store.created.CreatedAt) {
		t.Fatalf("expected matching initial timestamps, got created=%v updated=%v",
			store.created.CreatedAt, store.created.UpdatedAt)
	}

	resp := decodeEnvelope(t, rec)
	data, ok := resp.Data.(map[string]any)
	if !ok {
		t.Fatalf("unexpected data shape %T", resp.Data)
	}
	createdAt, _ := data["createdAt"].(string)
	parsed, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil || parsed.IsZero() {
		t.Fatalf("expected a real createdAt in the payload, got %q (%v)", createdAt, err)
	}
}

func TestTweetHandlerUpdateRefreshesTimestamp(t *testing.T) {
	createdAt := time.Now().UTC().Add(-time.Hour)
	store := &capturingTweetStore{
		findByID: func(_ context.Context, id string) (models.Tweet, error) {
			return models.Tweet{
				ID:        id,
				OwnerID:   "u1",
				Content:   "old",
				CreatedAt: createdAt,
				UpdatedAt: createdAt,
			}, nil
		},
	}
	handler := TweetHandler{Tweets: store}

	req := authedJSONRequest(http.MethodPatch, "/api/v1/tweets/t1", `{"content":"new"}`)
	req.SetPathValue("id", "t1")
	rec := httptest.NewRecorder()
	handler.Update(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d got %d", http.StatusOK, rec.Code)
	}
	if store.updated == nil {
		t.Fatal("expected tweet to be persisted")
	}
	if !store.updated.UpdatedAt.After(createdAt) {
		t.Fatalf("expected updatedAt to advance past %v, got %v", createdAt, store.updated.UpdatedAt)
	}
	if !store.updated.CreatedAt.Equal(createdAt) {
		t.Fatalf("expected createdAt to be preserved, got %v", store.updated.CreatedAt)
	}
}
