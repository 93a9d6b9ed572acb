package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vidiosphere/backend/internal/auth"
	"github.com/vidiosphere/backend/internal/middleware"
	"github.com/vidiosphere/backend/internal/models"
)

// stubAuthService lets each test supply just the flows it exercises.
type stubAuthService struct {
	register       func(ctx context.Context, in auth.RegisterInput) (models.User, error)
	login          func(ctx context.Context, identifier, password string) (models.User, models.SessionTokens, error)
	refresh        func(ctx context.Context, presented string) (models.SessionTokens, error)
	logout         func(ctx context.Context, userID string) error
	verifyEmail    func(ctx context.Context, secret string) error
	resend         func(ctx context.Context, email string) error
	forgot         func(ctx context.Context, email string) error
	reset          func(ctx context.Context, secret, newPassword string) error
	changePassword func(ctx context.Context, userID, oldPassword, newPassword string) error
}

func (s stubAuthService) Register(ctx context.Context, in auth.RegisterInput) (models.User, error) {
	return s.register(ctx, in)
}

func (s stubAuthService) Login(ctx context.Context, identifier, password string) (models.User, models.SessionTokens, error) {
	return s.login(ctx, identifier, password)
}

func (s stubAuthService) RefreshAccessToken(ctx context.Context, presented string) (models.SessionTokens, error) {
	return s.refresh(ctx, presented)
}

func (s stubAuthService) Logout(ctx context.Context, userID string) error {
	return s.logout(ctx, userID)
}

func (s stubAuthService) VerifyEmail(ctx context.Context, secret string) error {
	return s.verifyEmail(ctx, secret)
}

func (s stubAuthService) ResendVerification(ctx context.Context, email string) error {
	return s.resend(ctx, email)
}

func (s stubAuthService) ForgotPassword(ctx context.Context, email string) error {
	return s.forgot(ctx, email)
}

func (s stubAuthService) ResetPassword(ctx context.Context, secret, newPassword string) error {
	return s.reset(ctx, secret, newPassword)
}

func (s stubAuthService) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	return s.changePassword(ctx, userID, oldPassword, newPassword)
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var resp envelope
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func TestUserHandlerLoginSetsCookies(t *testing.T) {
	handler := UserHandler{
		Auth: stubAuthService{
			login: func(_ context.Context, identifier, password string) (models.User, models.SessionTokens, error) {
				if identifier != "alice" || password != "supersafe" {
					t.Fatalf("unexpected credentials %q / %q", identifier, password)
				}
				return models.User{ID: "u1", Handle: "alice", Email: "alice@example.com", EmailVerified: true},
					models.SessionTokens{AccessToken: "access-jwt", RefreshToken: "refresh-jwt"}, nil
			},
		},
		AccessTTL:  time.Hour,
		RefreshTTL: 10 * time.Hour,
	}

	body, _ := json.Marshal(loginRequest{Username: "alice", Password: "supersafe"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	handler.Login(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d got %d", http.StatusOK, rec.Code)
	}

	resp := decodeEnvelope(t, rec)
	if !resp.Success {
		t.Fatalf("expected success envelope, got %+v", resp)
	}

	cookies := rec.Result().Cookies()
	byName := map[string]*http.Cookie{}
	for _, c := range cookies {
		byName[c.Name] = c
	}
	access, ok := byName["accessToken"]
	if !ok || access.Value != "access-jwt" {
		t.Fatalf("missing access cookie, got %+v", cookies)
	}
	if !access.HttpOnly || !access.Secure {
		t.Fatal("session cookies must be HttpOnly and Secure")
	}
	if refresh, ok := byName["refreshToken"]; !ok || refresh.Value != "refresh-jwt" {
		t.Fatalf("missing refresh cookie, got %+v", cookies)
	}
}

func TestUserHandlerLoginFailureStatuses(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"bad credentials", auth.ErrInvalidCredentials, http.StatusUnauthorized},
		{"unverified email", auth.ErrEmailNotVerified, http.StatusForbidden},
		{"missing fields", auth.ErrInvalidInput, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := UserHandler{Auth: stubAuthService{
				login: func(context.Context, string, string) (models.User, models.SessionTokens, error) {
					return models.User{}, models.SessionTokens{}, tc.err
				},
			}}

			body, _ := json.Marshal(loginRequest{Username: "alice", Password: "whatever"})
			req := httptest.NewRequest(http.MethodPost, "/api/v1/users/login", bytes.NewReader(body))
			rec := httptest.NewRecorder()

			handler.Login(rec, req)

			if rec.Code != tc.want {
				t.Fatalf("expected status %d got %d", tc.want, rec.Code)
			}
			if resp := decodeEnvelope(t, rec); resp.Success {
				t.Fatalf("expected failure envelope, got %+v", resp)
			}
		})
	}
}

func TestUserHandlerRefreshReadsCookieThenBody(t *testing.T) {
	var presented string
	handler := UserHandler{Auth: stubAuthService{
		refresh: func(_ context.Context, token string) (models.SessionTokens, error) {
			presented = token
			return models.SessionTokens{AccessToken: "new-access", RefreshToken: "new-refresh"}, nil
		},
	}}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/refresh-token", nil)
	req.AddCookie(&http.Cookie{Name: "refreshToken", Value: "cookie-token"})
	rec := httptest.NewRecorder()
	handler.Refresh(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d got %d", http.StatusOK, rec.Code)
	}
	if presented != "cookie-token" {
		t.Fatalf("expected cookie token preferred, got %q", presented)
	}

	body, _ := json.Marshal(refreshRequest{RefreshToken: "body-token"})
	req = httptest.NewRequest(http.MethodPost, "/api/v1/users/refresh-token", bytes.NewReader(body))
	rec = httptest.NewRecorder()
	handler.Refresh(rec, req)

	if presented != "body-token" {
		t.Fatalf("expected body token fallback, got %q", presented)
	}
}

func TestUserHandlerRefreshStaleToken(t *testing.T) {
	handler := UserHandler{Auth: stubAuthService{
		refresh: func(context.Context, string) (models.SessionTokens, error) {
			return models.SessionTokens{}, auth.ErrForbidden
		},
	}}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/refresh-token", nil)
	req.AddCookie(&http.Cookie{Name: "refreshToken", Value: "stale"})
	rec := httptest.NewRecorder()
	handler.Refresh(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected status %d got %d", http.StatusForbidden, rec.Code)
	}
}

func TestUserHandlerVerifyEmail(t *testing.T) {
	handler := UserHandler{Auth: stubAuthService{
		verifyEmail: func(_ context.Context, secret string) error {
			if secret != "the-secret" {
				return auth.ErrInvalidOrExpired
			}
			return nil
		},
	}}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/verify-email?token=the-secret", nil)
	rec := httptest.NewRecorder()
	handler.VerifyEmail(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d got %d", http.StatusOK, rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/users/verify-email?token=bogus", nil)
	rec = httptest.NewRecorder()
	handler.VerifyEmail(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestUserHandlerForgotPasswordIsGeneric(t *testing.T) {
	handler := UserHandler{Auth: stubAuthService{
		forgot: func(_ context.Context, email string) error {
			return nil
		},
	}}

	for _, email := range []string{"known@example.com", "unknown@example.com"} {
		body, _ := json.Marshal(emailRequest{Email: email})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/users/forgot-password", bytes.NewReader(body))
		rec := httptest.NewRecorder()

		handler.ForgotPassword(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status %d for %s got %d", http.StatusOK, email, rec.Code)
		}
		if resp := decodeEnvelope(t, rec); !resp.Success {
			t.Fatalf("expected generic success for %s, got %+v", email, resp)
		}
	}
}

type denyAllLimiter struct{}

func (denyAllLimiter) Allow(string) bool { return false }

func TestUserHandlerForgotPasswordRateLimited(t *testing.T) {
	handler := UserHandler{
		Auth:          stubAuthService{forgot: func(context.Context, string) error { return nil }},
		ForgotLimiter: denyAllLimiter{},
	}

	body, _ := json.Marshal(emailRequest{Email: "alice@example.com"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/forgot-password", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	handler.ForgotPassword(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected status %d got %d", http.StatusTooManyRequests, rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}
}

func TestUserHandlerLogoutClearsCookies(t *testing.T) {
	handler := UserHandler{
		Auth: stubAuthService{logout: func(_ context.Context, userID string) error {
			if userID != "u1" {
				t.Fatalf("unexpected user id %q", userID)
			}
			return nil
		}},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/logout", nil)
	req = req.WithContext(middleware.WithIdentity(req.Context(), middleware.Identity{UserID: "u1"}))
	rec := httptest.NewRecorder()

	handler.Logout(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d got %d", http.StatusOK, rec.Code)
	}
	for _, c := range rec.Result().Cookies() {
		if c.MaxAge != -1 {
			t.Fatalf("expected cookie %s cleared, got MaxAge %d", c.Name, c.MaxAge)
		}
	}
}

func TestUserHandlerLogoutRequiresIdentity(t *testing.T) {
	handler := UserHandler{Auth: stubAuthService{logout: func(context.Context, string) error { return nil }}}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/logout", nil)
	rec := httptest.NewRecorder()
	handler.Logout(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d got %d", http.StatusUnauthorized, rec.Code)
	}
}
