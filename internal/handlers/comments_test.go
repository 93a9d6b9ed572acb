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

type capturingCommentStore struct {
	created *models.Comment
}

func (s *capturingCommentStore) Create(_ context.Context, comment models.Comment) error {
	s.created = &comment
	return nil
}

func (s *capturingCommentStore) FindByID(context.Context, string) (models.Comment, error) {
	return models.Comment{}, repositories.ErrNotFound
}

func (s *capturingCommentStore) ListByParent(context.Context, string, string, repositories.ListOptions) ([]models.Comment, int64, error) {
	return nil, 0, nil
}

func (s *capturingCommentStore) Update(context.Context, models.Comment) error { return nil }

func (s *capturingCommentStore) Delete(context.Context, string) error { return nil }

type stubParentVideos struct {
	VideoStore
}

func (stubParentVideos) FindByID(_ context.Context, id string) (models.Video, error) {
	return models.Video{ID: id}, nil
}

func TestCommentHandlerCreateStampsTimestamps(t *testing.T) {
	store := &capturingCommentStore{}
	handler := CommentHandler{
		Comments: store,
		Videos:   stubParentVideos{},
	}

	req := authedJSONRequest(http.MethodPost, "/api/v1/comments/video/v1", `{"content":"nice"}`)
	req.SetPathValue("videoId", "v1")
	rec := httptest.NewRecorder()
	handler.CreateForVideo(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status %d got %d", http.StatusCreated, rec.Code)
	}
	if store.created == nil {
		t.Fatal("expected comment to be persisted")
	}
	if store.created.CreatedAt.IsZero() || store.created.UpdatedAt.IsZero() {
		t.Fatalf("expected timestamps to be stamped, got created=%v updated=%v",
			store.created.CreatedAt, store.created.UpdatedAt)
	}
	if time.Since(store.created.CreatedAt) > time.Minute {
		t.Fatalf("expected a current created instant, got %v", store.created.CreatedAt)
	}
}
