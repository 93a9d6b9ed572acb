package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/mail"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/vidiosphere/backend/internal/logging"
	mailer "github.com/vidiosphere/backend/internal/mail"
	"github.com/vidiosphere/backend/internal/models"
	"github.com/vidiosphere/backend/internal/repositories"
	"github.com/vidiosphere/backend/internal/storage"
)

// UserStore captures the persistence operations the auth service needs.
type UserStore interface {
	Create(ctx context.Context, user models.User) error
	FindByID(ctx context.Context, id string) (models.User, error)
	FindByEmail(ctx context.Context, email string) (models.User, error)
	FindByHandle(ctx context.Context, handle string) (models.User, error)
	FindByIdentifier(ctx context.Context, identifier string) (models.User, error)
	MarkEmailVerified(ctx context.Context, id string) error
	SetRefreshTokenHash(ctx context.Context, id, hash string) error
	RotateRefreshTokenHash(ctx context.Context, id, expected, replacement string) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
}

// TokenStore captures the ephemeral token operations the auth service needs.
type TokenStore interface {
	Create(ctx context.Context, token models.EphemeralToken) error
	FindMatching(ctx context.Context, kind, secretHash string, now time.Time) (models.EphemeralToken, error)
	FindLatestByKind(ctx context.Context, userID, kind string) (models.EphemeralToken, error)
	Consume(ctx context.Context, id string) error
	DeleteUnconsumedByKind(ctx context.Context, userID, kind string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// AssetUpload is media received from the client, streamed to the object store.
type AssetUpload struct {
	Reader   io.Reader
	Filename string
}

// RegisterInput carries the fields for a new account.
type RegisterInput struct {
	Handle   string
	Email    string
	FullName string
	Password string
	Avatar   *AssetUpload
	Cover    *AssetUpload
}

// ServiceConfig groups the tunable windows of the auth flows.
type ServiceConfig struct {
	VerifyTokenTTL time.Duration
	ResetTokenTTL  time.Duration
	ResendCooldown time.Duration
	UploadTimeout  time.Duration
	MailTimeout    time.Duration
	PublicBaseURL  string
}

// Service orchestrates registration, verification, login, token rotation and
// the password flows. All collaborators are injected so tests can substitute
// fakes for the mail relay and asset store.
type Service struct {
	users  UserStore
	tokens TokenStore
	issuer *TokenIssuer
	assets storage.AssetStore
	mail   mailer.Mailer
	cfg    ServiceConfig

	nowFunc func() time.Time
}

// NewService wires an auth service from its collaborators.
func NewService(users UserStore, tokens TokenStore, issuer *TokenIssuer, assets storage.AssetStore, m mailer.Mailer, cfg ServiceConfig) *Service {
	if cfg.VerifyTokenTTL <= 0 {
		cfg.VerifyTokenTTL = 24 * time.Hour
	}
	if cfg.ResetTokenTTL <= 0 {
		cfg.ResetTokenTTL = time.Hour
	}
	if cfg.ResendCooldown <= 0 {
		cfg.ResendCooldown = time.Minute
	}
	if cfg.UploadTimeout <= 0 {
		cfg.UploadTimeout = 2 * time.Minute
	}
	if cfg.MailTimeout <= 0 {
		cfg.MailTimeout = 15 * time.Second
	}
	return &Service{
		users:   users,
		tokens:  tokens,
		issuer:  issuer,
		assets:  assets,
		mail:    m,
		cfg:     cfg,
		nowFunc: func() time.Time { return time.Now().UTC() },
	}
}

// NormalizeEmail lower-cases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizeHandle lower-cases and trims a handle.
func NormalizeHandle(handle string) string {
	return strings.ToLower(strings.TrimSpace(handle))
}

// Register creates a new unverified account, uploads its avatar and optional
// cover image, and dispatches a verification email. Mail dispatch is fire and
// forget: a relay failure leaves the account created and resend available.
func (s *Service) Register(ctx context.Context, in RegisterInput) (models.User, error) {
	ctx, span := logging.StartSpan(ctx, "auth.register")
	defer span.End()
	logger := logging.FromContext(ctx)

	handle := NormalizeHandle(in.Handle)
	email := NormalizeEmail(in.Email)
	fullName := strings.TrimSpace(in.FullName)
	if handle == "" || email == "" || fullName == "" || in.Password == "" {
		return models.User{}, fmt.Errorf("%w: all fields are required", ErrInvalidInput)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return models.User{}, fmt.Errorf("%w: invalid email address", ErrInvalidInput)
	}
	if len(in.Password) < 8 {
		return models.User{}, fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidInput)
	}
	if in.Avatar == nil {
		return models.User{}, fmt.Errorf("%w: avatar is required", ErrInvalidInput)
	}

	// Reject duplicates before spending an upload; the database uniqueness
	// constraint still backstops the race between this check and Create.
	if err := s.checkAvailability(ctx, handle, email); err != nil {
		return models.User{}, err
	}

	userID := uuid.NewString()

	avatarURL, avatarKey, err := s.saveAsset(ctx, storage.PrefixAvatars, userID, in.Avatar)
	if err != nil {
		return models.User{}, err
	}
	savedKeys := []string{avatarKey}

	var coverURL string
	if in.Cover != nil {
		var coverKey string
		coverURL, coverKey, err = s.saveAsset(ctx, storage.PrefixCovers, userID, in.Cover)
		if err != nil {
			return models.User{}, err
		}
		savedKeys = append(savedKeys, coverKey)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}

	now := s.nowFunc()
	user := models.User{
		ID:            userID,
		Handle:        handle,
		Email:         email,
		FullName:      fullName,
		Password:      string(hashed),
		AvatarURL:     avatarURL,
		CoverImageURL: coverURL,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			// Lost the race against a concurrent registration; the uploads
			// belong to nobody now.
			s.discardAssets(ctx, savedKeys)
			return models.User{}, ErrConflict
		}
		return models.User{}, fmt.Errorf("create user: %w", err)
	}

	if err := s.issueVerification(ctx, user); err != nil {
		// The account exists and resend is always available, so a token or
		// mail hiccup here is a warning, not a registration failure.
		logger.Warn("verification dispatch failed after registration", "userId", user.ID, "error", err)
	}

	return user, nil
}

func (s *Service) checkAvailability(ctx context.Context, handle, email string) error {
	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return ErrConflict
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return fmt.Errorf("check email availability: %w", err)
	}
	if _, err := s.users.FindByHandle(ctx, handle); err == nil {
		return ErrConflict
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return fmt.Errorf("check handle availability: %w", err)
	}
	return nil
}

func (s *Service) saveAsset(ctx context.Context, prefix, userID string, upload *AssetUpload) (string, string, error) {
	uploadCtx, cancel := context.WithTimeout(ctx, s.cfg.UploadTimeout)
	defer cancel()

	key := fmt.Sprintf("%s/%s%s", prefix, userID, path.Ext(upload.Filename))
	location, err := s.assets.Save(uploadCtx, key, upload.Reader)
	if err != nil {
		return "", "", fmt.Errorf("%w: asset upload failed: %v", ErrUpstreamUnavailable, err)
	}
	return location, key, nil
}

// discardAssets removes uploads that never got an owning row. Best effort: a
// failed delete only leaves an orphaned object behind.
func (s *Service) discardAssets(ctx context.Context, keys []string) {
	logger := logging.FromContext(ctx)
	for _, key := range keys {
		if err := s.assets.Delete(ctx, key); err != nil {
			logger.Warn("discard orphaned upload", "key", key, "error", err)
		}
	}
}

// issueVerification creates a fresh email-verify token and dispatches the
// verification mail in the background.
func (s *Service) issueVerification(ctx context.Context, user models.User) error {
	secret, err := NewOpaqueSecret()
	if err != nil {
		return err
	}

	now := s.nowFunc()
	token := models.EphemeralToken{
		ID:         uuid.NewString(),
		UserID:     user.ID,
		SecretHash: HashSecret(secret),
		Kind:       models.TokenKindEmailVerify,
		ExpiresAt:  now.Add(s.cfg.VerifyTokenTTL),
		CreatedAt:  now,
	}
	if err := s.tokens.Create(ctx, token); err != nil {
		return fmt.Errorf("store verification token: %w", err)
	}

	link := s.buildLink("/verify-email", secret)
	s.dispatchMail(ctx, mailer.Message{
		To:      user.Email,
		Subject: "Verify your email - VidioSphere",
		Text:    fmt.Sprintf("Hi %s, please verify your email by visiting: %s", user.FullName, link),
		HTML:    fmt.Sprintf(`<p>Hi %s,</p><p>Please <a href="%s">verify your email</a>. The link expires in %s.</p>`, user.FullName, link, s.cfg.VerifyTokenTTL),
	})

	return nil
}

func (s *Service) buildLink(route, secret string) string {
	base := strings.TrimSuffix(s.cfg.PublicBaseURL, "/")
	return base + route + "?token=" + url.QueryEscape(secret)
}

// dispatchMail sends in the background with its own timeout. Failures are
// logged and swallowed; no auth flow depends on delivery succeeding.
func (s *Service) dispatchMail(ctx context.Context, msg mailer.Message) {
	logger := logging.FromContext(ctx)
	go func() {
		sendCtx, cancel := context.WithTimeout(context.Background(), s.cfg.MailTimeout)
		defer cancel()
		if err := s.mail.Send(sendCtx, msg); err != nil {
			logger.Warn("mail dispatch failed", "to", msg.To, "subject", msg.Subject, "error", err)
		}
	}()
}

// VerifyEmail consumes an email-verify token and flips the user's
// verification flag. Re-presenting a consumed or expired token fails with
// ErrInvalidOrExpired, never a silent success.
func (s *Service) VerifyEmail(ctx context.Context, secret string) error {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return ErrInvalidOrExpired
	}

	token, err := s.tokens.FindMatching(ctx, models.TokenKindEmailVerify, HashSecret(secret), s.nowFunc())
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrInvalidOrExpired
		}
		return fmt.Errorf("lookup verification token: %w", err)
	}

	// Consume first: if a concurrent call got here already, this reports the
	// token gone and the flow fails instead of double-verifying.
	if err := s.tokens.Consume(ctx, token.ID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrInvalidOrExpired
		}
		return fmt.Errorf("consume verification token: %w", err)
	}

	if err := s.users.MarkEmailVerified(ctx, token.UserID); err != nil {
		return fmt.Errorf("mark email verified: %w", err)
	}

	return nil
}

// ResendVerification issues a fresh email-verify token unless one was issued
// within the cooldown window.
func (s *Service) ResendVerification(ctx context.Context, email string) error {
	email = NormalizeEmail(email)
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidInput)
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return fmt.Errorf("%w: unknown email", ErrInvalidInput)
		}
		return fmt.Errorf("lookup user: %w", err)
	}

	if user.EmailVerified {
		return fmt.Errorf("%w: email already verified", ErrInvalidInput)
	}

	if last, err := s.tokens.FindLatestByKind(ctx, user.ID, models.TokenKindEmailVerify); err == nil {
		if s.nowFunc().Sub(last.CreatedAt) < s.cfg.ResendCooldown {
			return ErrRateLimited
		}
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return fmt.Errorf("check resend cooldown: %w", err)
	}

	return s.issueVerification(ctx, user)
}

// Login checks credentials for a handle or email identifier and issues a
// fresh session token pair, overwriting any prior refresh token.
func (s *Service) Login(ctx context.Context, identifier, password string) (models.User, models.SessionTokens, error) {
	identifier = strings.ToLower(strings.TrimSpace(identifier))
	if identifier == "" || password == "" {
		return models.User{}, models.SessionTokens{}, fmt.Errorf("%w: identifier and password are required", ErrInvalidInput)
	}

	user, err := s.users.FindByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return models.User{}, models.SessionTokens{}, ErrInvalidCredentials
		}
		return models.User{}, models.SessionTokens{}, fmt.Errorf("lookup user: %w", err)
	}

	if !user.EmailVerified {
		return models.User{}, models.SessionTokens{}, ErrEmailNotVerified
	}

	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) != nil {
		return models.User{}, models.SessionTokens{}, ErrInvalidCredentials
	}

	tokens, err := s.issueSession(ctx, user)
	if err != nil {
		return models.User{}, models.SessionTokens{}, err
	}

	return user, tokens, nil
}

func (s *Service) issueSession(ctx context.Context, user models.User) (models.SessionTokens, error) {
	accessToken, accessExp, err := s.issuer.SignAccessToken(user.ID, user.Handle, user.Email)
	if err != nil {
		return models.SessionTokens{}, err
	}
	refreshToken, refreshExp, err := s.issuer.SignRefreshToken(user.ID)
	if err != nil {
		return models.SessionTokens{}, err
	}

	if err := s.users.SetRefreshTokenHash(ctx, user.ID, HashSecret(refreshToken)); err != nil {
		return models.SessionTokens{}, fmt.Errorf("persist refresh token: %w", err)
	}

	return models.SessionTokens{
		AccessToken:      accessToken,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refreshToken,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// RefreshAccessToken rotates the session. The presented token must verify
// cryptographically and match the single stored value; rotation is a
// compare-and-swap so a stale token raced against a newer refresh fails with
// ErrForbidden deterministically.
func (s *Service) RefreshAccessToken(ctx context.Context, presented string) (models.SessionTokens, error) {
	presented = strings.TrimSpace(presented)
	if presented == "" {
		return models.SessionTokens{}, ErrForbidden
	}

	subject, err := s.issuer.VerifyRefreshToken(presented)
	if err != nil {
		return models.SessionTokens{}, ErrUnauthorized
	}

	user, err := s.users.FindByID(ctx, subject)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return models.SessionTokens{}, ErrUnauthorized
		}
		return models.SessionTokens{}, fmt.Errorf("lookup user: %w", err)
	}

	presentedHash := HashSecret(presented)
	if user.RefreshTokenHash == "" || !SecretHashEquals(presentedHash, user.RefreshTokenHash) {
		return models.SessionTokens{}, ErrForbidden
	}

	accessToken, accessExp, err := s.issuer.SignAccessToken(user.ID, user.Handle, user.Email)
	if err != nil {
		return models.SessionTokens{}, err
	}
	refreshToken, refreshExp, err := s.issuer.SignRefreshToken(user.ID)
	if err != nil {
		return models.SessionTokens{}, err
	}

	if err := s.users.RotateRefreshTokenHash(ctx, user.ID, presentedHash, HashSecret(refreshToken)); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			// A concurrent refresh won the swap; this token is now stale.
			return models.SessionTokens{}, ErrForbidden
		}
		return models.SessionTokens{}, fmt.Errorf("rotate refresh token: %w", err)
	}

	return models.SessionTokens{
		AccessToken:      accessToken,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refreshToken,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// Logout clears the stored refresh token unconditionally. Idempotent.
func (s *Service) Logout(ctx context.Context, userID string) error {
	if err := s.users.SetRefreshTokenHash(ctx, userID, ""); err != nil && !errors.Is(err, repositories.ErrNotFound) {
		return fmt.Errorf("clear refresh token: %w", err)
	}
	return nil
}

// ChangePassword verifies the old password before replacing the hash. The
// replacement clears the refresh token, ending other sessions.
func (s *Service) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	if oldPassword == "" || newPassword == "" {
		return fmt.Errorf("%w: both old and new passwords are required", ErrInvalidInput)
	}
	if len(newPassword) < 8 {
		return fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidInput)
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrInvalidCredentials
		}
		return fmt.Errorf("lookup user: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(oldPassword)) != nil {
		return ErrInvalidCredentials
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if err := s.users.UpdatePassword(ctx, userID, string(hashed)); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	return nil
}

// ForgotPassword issues a reset token when the email exists. The caller
// always receives the same generic outcome so the endpoint reveals nothing
// about account existence.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	email = NormalizeEmail(email)
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return fmt.Errorf("%w: invalid email address", ErrInvalidInput)
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("lookup user: %w", err)
	}

	// One outstanding reset token per user: a new request supersedes and
	// removes any prior unconsumed ones.
	if err := s.tokens.DeleteUnconsumedByKind(ctx, user.ID, models.TokenKindPasswordReset); err != nil {
		return fmt.Errorf("invalidate prior reset tokens: %w", err)
	}

	secret, err := NewOpaqueSecret()
	if err != nil {
		return err
	}

	now := s.nowFunc()
	token := models.EphemeralToken{
		ID:         uuid.NewString(),
		UserID:     user.ID,
		SecretHash: HashSecret(secret),
		Kind:       models.TokenKindPasswordReset,
		ExpiresAt:  now.Add(s.cfg.ResetTokenTTL),
		CreatedAt:  now,
	}
	if err := s.tokens.Create(ctx, token); err != nil {
		return fmt.Errorf("store reset token: %w", err)
	}

	link := s.buildLink("/reset-password", secret)
	s.dispatchMail(ctx, mailer.Message{
		To:      user.Email,
		Subject: "Reset your password - VidioSphere",
		Text:    fmt.Sprintf("To reset your password visit: %s (expires in %s)", link, s.cfg.ResetTokenTTL),
		HTML:    fmt.Sprintf(`<p>Click <a href="%s">here</a> to reset your password. The link expires in %s.</p>`, link, s.cfg.ResetTokenTTL),
	})

	return nil
}

// ResetPassword consumes a reset token, replaces the password hash and ends
// every session by clearing the stored refresh token.
func (s *Service) ResetPassword(ctx context.Context, secret, newPassword string) error {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return ErrInvalidOrExpired
	}
	if len(newPassword) < 8 {
		return fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidInput)
	}

	token, err := s.tokens.FindMatching(ctx, models.TokenKindPasswordReset, HashSecret(secret), s.nowFunc())
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrInvalidOrExpired
		}
		return fmt.Errorf("lookup reset token: %w", err)
	}

	if err := s.tokens.Consume(ctx, token.ID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrInvalidOrExpired
		}
		return fmt.Errorf("consume reset token: %w", err)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	// UpdatePassword clears the refresh token hash in the same statement.
	if err := s.users.UpdatePassword(ctx, token.UserID, string(hashed)); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	if err := s.tokens.DeleteUnconsumedByKind(ctx, token.UserID, models.TokenKindPasswordReset); err != nil {
		return fmt.Errorf("remove outstanding reset tokens: %w", err)
	}

	return nil
}

// SweepExpiredTokens removes expired ephemeral tokens. Lookups re-check
// expiry themselves, so this is housekeeping only.
func (s *Service) SweepExpiredTokens(ctx context.Context) (int64, error) {
	return s.tokens.DeleteExpired(ctx, s.nowFunc())
}
