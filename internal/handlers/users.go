package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/vidiosphere/backend/internal/auth"
	"github.com/vidiosphere/backend/internal/logging"
	"github.com/vidiosphere/backend/internal/middleware"
	"github.com/vidiosphere/backend/internal/models"
	"github.com/vidiosphere/backend/internal/repositories"
	"github.com/vidiosphere/backend/internal/storage"
)

const multipartMemoryLimit = 32 << 20

// UserHandler implements registration, session and profile endpoints.
type UserHandler struct {
	Auth          AuthService
	Users         UserStore
	Toggles       Toggler
	Videos        VideoStore
	History       WatchHistoryStore
	Assets        storage.AssetStore
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	ResendLimiter RateLimiter
	ForgotLimiter RateLimiter
}

// userPayload is the client-facing user shape; credentials never leave the server.
type userPayload struct {
	ID            string    `json:"id"`
	Handle        string    `json:"handle"`
	Email         string    `json:"email"`
	FullName      string    `json:"fullName"`
	AvatarURL     string    `json:"avatarUrl"`
	CoverImageURL string    `json:"coverImageUrl,omitempty"`
	EmailVerified bool      `json:"emailVerified"`
	CreatedAt     time.Time `json:"createdAt"`
}

func toUserPayload(u models.User) userPayload {
	return userPayload{
		ID:            u.ID,
		Handle:        u.Handle,
		Email:         u.Email,
		FullName:      u.FullName,
		AvatarURL:     u.AvatarURL,
		CoverImageURL: u.CoverImageURL,
		EmailVerified: u.EmailVerified,
		CreatedAt:     u.CreatedAt,
	}
}

// Register handles POST /api/v1/users/register. Multipart with a mandatory
// avatar and optional cover image.
func (h UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
		respondFailure(ctx, w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	// Large parts spill to temp files; remove them on every exit path.
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	avatar, avatarHeader, err := r.FormFile("avatar")
	if err != nil {
		respondFailure(ctx, w, http.StatusBadRequest, "avatar is required")
		return
	}
	defer avatar.Close()

	in := auth.RegisterInput{
		Handle:   r.FormValue("username"),
		Email:    r.FormValue("email"),
		FullName: r.FormValue("fullName"),
		Password: r.FormValue("password"),
		Avatar:   &auth.AssetUpload{Reader: avatar, Filename: avatarHeader.Filename},
	}

	if cover, coverHeader, err := r.FormFile("coverImage"); err == nil {
		defer cover.Close()
		in.Cover = &auth.AssetUpload{Reader: cover, Filename: coverHeader.Filename}
	}

	user, err := h.Auth.Register(ctx, in)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	respondSuccess(ctx, w, http.StatusCreated, toUserPayload(user),
		"Account created. Verify your email with the link sent to your mailbox.")
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Username   string `json:"username"`
	Email      string `json:"email"`
	Password   string `json:"password"`
}

func (req loginRequest) identifier() string {
	for _, candidate := range []string{req.Identifier, req.Username, req.Email} {
		if trimmed := strings.TrimSpace(candidate); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

type sessionResponse struct {
	User         *userPayload `json:"user,omitempty"`
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
}

// Login handles POST /api/v1/users/login with a handle or email identifier.
func (h UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondFailure(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, tokens, err := h.Auth.Login(ctx, req.identifier(), req.Password)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	h.setSessionCookies(w, tokens)
	payload := toUserPayload(user)
	respondSuccess(ctx, w, http.StatusOK, sessionResponse{
		User:         &payload,
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
	}, "User logged in successfully")
}

// Logout handles POST /api/v1/users/logout.
func (h UserHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, ok := middleware.IdentityFromContext(ctx)
	if !ok {
		respondFailure(ctx, w, http.StatusUnauthorized, "authentication required")
		return
	}

	if err := h.Auth.Logout(ctx, identity.UserID); err != nil {
		respondError(ctx, w, err)
		return
	}

	h.clearSessionCookies(w)
	respondSuccess(ctx, w, http.StatusOK, nil, "User logged out successfully")
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Refresh handles POST /api/v1/users/refresh-token. The token arrives as a
// cookie or in the body; rotation invalidates the presented value.
func (h UserHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var presented string
	if cookie, err := r.Cookie("refreshToken"); err == nil {
		presented = cookie.Value
	}
	if presented == "" {
		var req refreshRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
			presented = strings.TrimSpace(req.RefreshToken)
		}
	}

	tokens, err := h.Auth.RefreshAccessToken(ctx, presented)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	h.setSessionCookies(w, tokens)
	respondSuccess(ctx, w, http.StatusOK, sessionResponse{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
	}, "Refreshed access token")
}

// VerifyEmail handles GET /api/v1/users/verify-email?token=...
func (h UserHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.Auth.VerifyEmail(ctx, r.URL.Query().Get("token")); err != nil {
		respondError(ctx, w, err)
		return
	}

	respondSuccess(ctx, w, http.StatusOK, nil, "Email verified successfully")
}

type emailRequest struct {
	Email string `json:"email"`
}

// ResendVerification handles POST /api/v1/users/resend-verification.
func (h UserHandler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if !allowRequest(h.ResendLimiter, r, "resend-verification") {
		respondError(ctx, w, auth.ErrRateLimited)
		return
	}

	var req emailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondFailure(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.Auth.ResendVerification(ctx, req.Email); err != nil {
		respondError(ctx, w, err)
		return
	}

	respondSuccess(ctx, w, http.StatusOK, nil, "Verification email sent")
}

// ForgotPassword handles POST /api/v1/users/forgot-password. The response is
// identical whether or not the account exists.
func (h UserHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if !allowRequest(h.ForgotLimiter, r, "forgot-password") {
		respondError(ctx, w, auth.ErrRateLimited)
		return
	}

	var req emailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondFailure(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.Auth.ForgotPassword(ctx, req.Email); err != nil {
		if errors.Is(err, auth.ErrInvalidInput) {
			respondError(ctx, w, err)
			return
		}
		// Internal failures are logged but still answered generically so the
		// response shape never varies with account existence.
		logging.FromContext(ctx).Error("forgot password failed", "error", err)
	}

	respondSuccess(ctx, w, http.StatusOK, nil,
		"If an account exists for that email, password reset instructions have been sent.")
}

type resetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// ResetPassword handles POST /api/v1/users/reset-password.
func (h UserHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req resetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondFailure(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.Auth.ResetPassword(ctx, req.Token, req.Password); err != nil {
		respondError(ctx, w, err)
		return
	}

	respondSuccess(ctx, w, http.StatusOK, nil, "Password reset successful")
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

// ChangePassword handles POST /api/v1/users/change-password.
func (h UserHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, ok := middleware.IdentityFromContext(ctx)
	if !ok {
		respondFailure(ctx, w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondFailure(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.Auth.ChangePassword(ctx, identity.UserID, req.OldPassword, req.NewPassword); err != nil {
		respondError(ctx, w, err)
		return
	}

	respondSuccess(ctx, w, http.StatusOK, nil, "Password changed successfully")
}

// CurrentUser handles GET /api/v1/users/me.
func (h UserHandler) CurrentUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, ok := middleware.IdentityFromContext(ctx)
	if !ok {
		respondFailure(ctx, w, http.StatusUnauthorized, "authentication required")
		return
	}

	user, err := h.Users.FindByID(ctx, identity.UserID)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	respondSuccess(ctx, w, http.StatusOK, toUserPayload(user), "Current user fetched successfully")
}

type updateAccountRequest struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
}

// UpdateAccount handles PATCH /api/v1/users/me.
func (h UserHandler) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, ok := middleware.IdentityFromContext(ctx)
	if !ok {
		respondFailure(ctx, w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req updateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondFailure(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	fullName := strings.TrimSpace(req.FullName)
	email := auth.NormalizeEmail(req.Email)
	if fullName == "" || email == "" {
		respondFailure(ctx, w, http.StatusBadRequest, "full name and email are required")
		return
	}

	if err := h.Users.UpdateProfile(ctx, identity.UserID, fullName, email); err != nil {
		respondError(ctx, w, err)
		return
	}

	respondSuccess(ctx, w, http.StatusOK, nil, "Account details updated successfully")
}

// UpdateAvatar handles PATCH /api/v1/users/me/avatar.
func (h UserHandler) UpdateAvatar(w http.ResponseWriter, r *http.Request) {
	h.updateImage(w, r, "avatar", storage.PrefixAvatars, h.Users.UpdateAvatar)
}

// UpdateCoverImage handles PATCH /api/v1/users/me/cover-image.
func (h UserHandler) UpdateCoverImage(w http.ResponseWriter, r *http.Request) {
	h.updateImage(w, r, "coverImage", storage.PrefixCovers, h.Users.UpdateCoverImage)
}

func (h UserHandler) updateImage(w http.ResponseWriter, r *http.Request, field, prefix string, persist func(ctx context.Context, id, url string) error) {
	ctx := r.Context()

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

	file, header, err := r.FormFile(field)
	if err != nil {
		respondFailure(ctx, w, http.StatusBadRequest, field+" file is missing")
		return
	}
	defer file.Close()

	location, err := saveUpload(ctx, h.Assets, prefix, identity.UserID, header, file)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	if err := persist(ctx, identity.UserID, location); err != nil {
		respondError(ctx, w, err)
		return
	}

	respondSuccess(ctx, w, http.StatusOK, map[string]string{"url": location}, field+" updated successfully")
}

// ChannelProfile handles GET /api/v1/users/c/{handle}: a channel page with
// subscription counters relative to the requester.
func (h UserHandler) ChannelProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	handle := auth.NormalizeHandle(r.PathValue("handle"))
	if handle == "" {
		respondFailure(ctx, w, http.StatusBadRequest, "handle is missing")
		return
	}

	user, err := h.Users.FindByHandle(ctx, handle)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondFailure(ctx, w, http.StatusNotFound, "channel does not exist")
			return
		}
		respondError(ctx, w, err)
		return
	}

	subscribers, err := h.Toggles.CountForTarget(ctx, user.ID, models.EdgeKindSubscription)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	subscribedTo, err := h.Toggles.TargetsForActor(ctx, user.ID, models.EdgeKindSubscription)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	var isSubscribed bool
	if identity, ok := middleware.IdentityFromContext(ctx); ok {
		isSubscribed, err = h.Toggles.IsActive(ctx, identity.UserID, user.ID, models.EdgeKindSubscription)
		if err != nil {
			respondError(ctx, w, err)
			return
		}
	}

	respondSuccess(ctx, w, http.StatusOK, map[string]any{
		"channel":           toUserPayload(user),
		"subscribersCount":  subscribers,
		"subscribedToCount": len(subscribedTo),
		"isSubscribed":      isSubscribed,
	}, "Channel fetched successfully")
}

// WatchHistory handles GET /api/v1/users/me/history: watched videos,
// deduplicated, most recent first.
func (h UserHandler) WatchHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, ok := middleware.IdentityFromContext(ctx)
	if !ok {
		respondFailure(ctx, w, http.StatusUnauthorized, "authentication required")
		return
	}

	ids, err := h.History.ListVideoIDs(ctx, identity.UserID)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	videos, err := h.Videos.ListByIDs(ctx, ids)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	respondSuccess(ctx, w, http.StatusOK, videoPayloads(videos), "Watch history fetched successfully")
}

func (h UserHandler) setSessionCookies(w http.ResponseWriter, tokens models.SessionTokens) {
	http.SetCookie(w, &http.Cookie{
		Name:     "accessToken",
		Value:    tokens.AccessToken,
		Path:     "/",
		MaxAge:   int(h.AccessTTL.Seconds()),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteNoneMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     "refreshToken",
		Value:    tokens.RefreshToken,
		Path:     "/",
		MaxAge:   int(h.RefreshTTL.Seconds()),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteNoneMode,
	})
}

func (h UserHandler) clearSessionCookies(w http.ResponseWriter) {
	for _, name := range []string{"accessToken", "refreshToken"} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   true,
			SameSite: http.SameSiteNoneMode,
		})
	}
}

// saveUpload streams a multipart file to the asset store under a class prefix.
func saveUpload(ctx context.Context, assets storage.AssetStore, prefix, ownerID string, header *multipart.FileHeader, file multipart.File) (string, error) {
	key := prefix + "/" + ownerID + "-" + strings.ReplaceAll(path.Base(header.Filename), " ", "_")
	location, err := assets.Save(ctx, key, file)
	if err != nil {
		return "", errors.Join(auth.ErrUpstreamUnavailable, err)
	}
	return location, nil
}
