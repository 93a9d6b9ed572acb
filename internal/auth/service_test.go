package auth

import (
	"context"
	"errors"
	"io"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/vidiosphere/backend/internal/mail"
	"github.com/vidiosphere/backend/internal/models"
	"github.com/vidiosphere/backend/internal/repositories"
)

type inMemoryUserStore struct {
	mu    sync.Mutex
	users map[string]models.User
}

func newInMemoryUserStore() *inMemoryUserStore {
	return &inMemoryUserStore{users: make(map[string]models.User)}
}

func (s *inMemoryUserStore) Create(_ context.Context, user models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Email == user.Email || existing.Handle == user.Handle {
			return repositories.ErrConflict
		}
	}
	s.users[user.ID] = user
	return nil
}

func (s *inMemoryUserStore) FindByID(_ context.Context, id string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return models.User{}, repositories.ErrNotFound
	}
	return user, nil
}

func (s *inMemoryUserStore) FindByEmail(_ context.Context, email string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, user := range s.users {
		if user.Email == email {
			return user, nil
		}
	}
	return models.User{}, repositories.ErrNotFound
}

func (s *inMemoryUserStore) FindByHandle(_ context.Context, handle string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, user := range s.users {
		if user.Handle == handle {
			return user, nil
		}
	}
	return models.User{}, repositories.ErrNotFound
}

func (s *inMemoryUserStore) FindByIdentifier(ctx context.Context, identifier string) (models.User, error) {
	if user, err := s.FindByHandle(ctx, identifier); err == nil {
		return user, nil
	}
	return s.FindByEmail(ctx, identifier)
}

func (s *inMemoryUserStore) MarkEmailVerified(_ context.Context, id string) error {
	return s.mutate(id, func(u *models.User) { u.EmailVerified = true })
}

func (s *inMemoryUserStore) SetRefreshTokenHash(_ context.Context, id, hash string) error {
	return s.mutate(id, func(u *models.User) { u.RefreshTokenHash = hash })
}

func (s *inMemoryUserStore) RotateRefreshTokenHash(_ context.Context, id, expected, replacement string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok || user.RefreshTokenHash != expected {
		return repositories.ErrNotFound
	}
	user.RefreshTokenHash = replacement
	s.users[id] = user
	return nil
}

func (s *inMemoryUserStore) UpdatePassword(_ context.Context, id, passwordHash string) error {
	return s.mutate(id, func(u *models.User) {
		u.Password = passwordHash
		u.RefreshTokenHash = ""
	})
}

func (s *inMemoryUserStore) mutate(id string, fn func(*models.User)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return repositories.ErrNotFound
	}
	fn(&user)
	s.users[id] = user
	return nil
}

type inMemoryTokenStore struct {
	mu     sync.Mutex
	tokens []models.EphemeralToken
}

func (s *inMemoryTokenStore) Create(_ context.Context, token models.EphemeralToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = append(s.tokens, token)
	return nil
}

func (s *inMemoryTokenStore) FindMatching(_ context.Context, kind, secretHash string, now time.Time) (models.EphemeralToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *models.EphemeralToken
	for i := range s.tokens {
		tok := &s.tokens[i]
		if tok.Kind != kind || tok.SecretHash != secretHash || tok.Consumed || !tok.ExpiresAt.After(now) {
			continue
		}
		if best == nil || tok.CreatedAt.After(best.CreatedAt) {
			best = tok
		}
	}
	if best == nil {
		return models.EphemeralToken{}, repositories.ErrNotFound
	}
	return *best, nil
}

func (s *inMemoryTokenStore) FindLatestByKind(_ context.Context, userID, kind string) (models.EphemeralToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *models.EphemeralToken
	for i := range s.tokens {
		tok := &s.tokens[i]
		if tok.UserID != userID || tok.Kind != kind {
			continue
		}
		if best == nil || tok.CreatedAt.After(best.CreatedAt) {
			best = tok
		}
	}
	if best == nil {
		return models.EphemeralToken{}, repositories.ErrNotFound
	}
	return *best, nil
}

func (s *inMemoryTokenStore) Consume(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.tokens {
		if s.tokens[i].ID == id && !s.tokens[i].Consumed {
			s.tokens[i].Consumed = true
			return nil
		}
	}
	return repositories.ErrNotFound
}

func (s *inMemoryTokenStore) DeleteUnconsumedByKind(_ context.Context, userID, kind string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.tokens[:0]
	for _, tok := range s.tokens {
		if tok.UserID == userID && tok.Kind == kind && !tok.Consumed {
			continue
		}
		kept = append(kept, tok)
	}
	s.tokens = kept
	return nil
}

func (s *inMemoryTokenStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	kept := s.tokens[:0]
	for _, tok := range s.tokens {
		if !tok.ExpiresAt.After(now) {
			removed++
			continue
		}
		kept = append(kept, tok)
	}
	s.tokens = kept
	return removed, nil
}

func (s *inMemoryTokenStore) unconsumedCount(userID, kind string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, tok := range s.tokens {
		if tok.UserID == userID && tok.Kind == kind && !tok.Consumed {
			count++
		}
	}
	return count
}

type recordingMailer struct {
	mu       sync.Mutex
	messages []mail.Message
	done     chan struct{}
}

func newRecordingMailer() *recordingMailer {
	return &recordingMailer{done: make(chan struct{}, 16)}
}

func (m *recordingMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	m.messages = append(m.messages, msg)
	m.mu.Unlock()
	m.done <- struct{}{}
	return nil
}

// wait blocks until the background dispatch lands or the deadline passes.
func (m *recordingMailer) wait(t *testing.T) mail.Message {
	t.Helper()
	select {
	case <-m.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for mail dispatch")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.messages[len(m.messages)-1]
}

type fakeAssetStore struct {
	mu      sync.Mutex
	deleted []string
}

func (f *fakeAssetStore) Save(_ context.Context, key string, r io.Reader) (string, error) {
	_, _ = io.Copy(io.Discard, r)
	return "https://assets.test/" + key, nil
}

func (f *fakeAssetStore) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, key)
	return nil
}

func newTestService(t *testing.T) (*Service, *inMemoryUserStore, *inMemoryTokenStore, *recordingMailer) {
	t.Helper()
	users := newInMemoryUserStore()
	tokens := &inMemoryTokenStore{}
	mailer := newRecordingMailer()
	issuer := NewTokenIssuer("access-secret", "refresh-secret", time.Minute, time.Hour)
	svc := NewService(users, tokens, issuer, &fakeAssetStore{}, mailer, ServiceConfig{
		PublicBaseURL: "https://app.test",
	})
	return svc, users, tokens, mailer
}

func registerInput() RegisterInput {
	return RegisterInput{
		Handle:   "Alice",
		Email:    "Alice@Example.com",
		FullName: "Alice Example",
		Password: "supersafe",
		Avatar:   &AssetUpload{Reader: strings.NewReader("img"), Filename: "avatar.png"},
	}
}

// linkToken extracts the ?token= value from the link embedded in a message.
func linkToken(t *testing.T, msg mail.Message) string {
	t.Helper()
	idx := strings.Index(msg.Text, "?token=")
	if idx < 0 {
		t.Fatalf("no token link in message: %q", msg.Text)
	}
	raw := msg.Text[idx+len("?token="):]
	if end := strings.IndexAny(raw, " )"); end >= 0 {
		raw = raw[:end]
	}
	secret, err := url.QueryUnescape(raw)
	if err != nil {
		t.Fatalf("unescape token: %v", err)
	}
	return secret
}

func TestRegisterNormalizesAndHashes(t *testing.T) {
	svc, users, _, mailer := newTestService(t)

	user, err := svc.Register(context.Background(), registerInput())
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if user.Handle != "alice" || user.Email != "alice@example.com" {
		t.Fatalf("expected normalized identity, got %q / %q", user.Handle, user.Email)
	}
	if user.EmailVerified {
		t.Fatal("new accounts must start unverified")
	}
	if user.AvatarURL == "" {
		t.Fatal("expected avatar to be uploaded")
	}

	stored, err := users.FindByEmail(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("expected user stored: %v", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(stored.Password), []byte("supersafe")) != nil {
		t.Fatal("stored password is not hashed")
	}

	msg := mailer.wait(t)
	if msg.To != "alice@example.com" {
		t.Fatalf("verification mail sent to %q", msg.To)
	}
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	svc, _, _, mailer := newTestService(t)

	if _, err := svc.Register(context.Background(), registerInput()); err != nil {
		t.Fatalf("register: %v", err)
	}
	mailer.wait(t)

	in := registerInput()
	in.Email = "different@example.com"
	if _, err := svc.Register(context.Background(), in); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate handle, got %v", err)
	}

	in = registerInput()
	in.Handle = "different"
	if _, err := svc.Register(context.Background(), in); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate email, got %v", err)
	}
}

// racingUserStore simulates a concurrent registration slipping in between the
// availability check and the insert.
type racingUserStore struct {
	*inMemoryUserStore
}

func (racingUserStore) Create(context.Context, models.User) error {
	return repositories.ErrConflict
}

func TestRegisterConflictRaceDiscardsUploads(t *testing.T) {
	users := racingUserStore{newInMemoryUserStore()}
	tokens := &inMemoryTokenStore{}
	assets := &fakeAssetStore{}
	issuer := NewTokenIssuer("access-secret", "refresh-secret", time.Minute, time.Hour)
	svc := NewService(users, tokens, issuer, assets, newRecordingMailer(), ServiceConfig{
		PublicBaseURL: "https://app.test",
	})

	in := registerInput()
	in.Cover = &AssetUpload{Reader: strings.NewReader("img"), Filename: "cover.jpg"}
	if _, err := svc.Register(context.Background(), in); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict from the insert race, got %v", err)
	}

	assets.mu.Lock()
	deleted := append([]string(nil), assets.deleted...)
	assets.mu.Unlock()
	if len(deleted) != 2 {
		t.Fatalf("expected both uploads discarded, got %v", deleted)
	}
	if !strings.HasPrefix(deleted[0], "avatars/") || !strings.HasPrefix(deleted[1], "covers/") {
		t.Fatalf("unexpected discarded keys %v", deleted)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	cases := map[string]func(*RegisterInput){
		"missing handle":   func(in *RegisterInput) { in.Handle = "" },
		"missing email":    func(in *RegisterInput) { in.Email = "" },
		"bad email":        func(in *RegisterInput) { in.Email = "not-an-email" },
		"short password":   func(in *RegisterInput) { in.Password = "short" },
		"missing avatar":   func(in *RegisterInput) { in.Avatar = nil },
		"missing fullName": func(in *RegisterInput) { in.FullName = "  " },
	}
	for name, corrupt := range cases {
		in := registerInput()
		corrupt(&in)
		if _, err := svc.Register(context.Background(), in); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("%s: expected ErrInvalidInput, got %v", name, err)
		}
	}
}

func TestVerifyEmailConsumesToken(t *testing.T) {
	svc, users, _, mailer := newTestService(t)

	user, err := svc.Register(context.Background(), registerInput())
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	secret := linkToken(t, mailer.wait(t))

	if err := svc.VerifyEmail(context.Background(), secret); err != nil {
		t.Fatalf("verify email: %v", err)
	}

	stored, err := users.FindByID(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("find user: %v", err)
	}
	if !stored.EmailVerified {
		t.Fatal("expected email to be marked verified")
	}

	// Second presentation of the same secret must fail.
	if err := svc.VerifyEmail(context.Background(), secret); !errors.Is(err, ErrInvalidOrExpired) {
		t.Fatalf("expected ErrInvalidOrExpired on reuse, got %v", err)
	}
}

func TestVerifyEmailExpiredToken(t *testing.T) {
	svc, _, _, mailer := newTestService(t)

	if _, err := svc.Register(context.Background(), registerInput()); err != nil {
		t.Fatalf("register: %v", err)
	}
	secret := linkToken(t, mailer.wait(t))

	svc.nowFunc = func() time.Time { return time.Now().UTC().Add(25 * time.Hour) }

	if err := svc.VerifyEmail(context.Background(), secret); !errors.Is(err, ErrInvalidOrExpired) {
		t.Fatalf("expected ErrInvalidOrExpired, got %v", err)
	}
}

func TestResendVerificationCooldown(t *testing.T) {
	svc, _, _, mailer := newTestService(t)

	if _, err := svc.Register(context.Background(), registerInput()); err != nil {
		t.Fatalf("register: %v", err)
	}
	mailer.wait(t)

	if err := svc.ResendVerification(context.Background(), "alice@example.com"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited inside cooldown, got %v", err)
	}

	svc.nowFunc = func() time.Time { return time.Now().UTC().Add(2 * time.Minute) }
	if err := svc.ResendVerification(context.Background(), "alice@example.com"); err != nil {
		t.Fatalf("resend after cooldown: %v", err)
	}
	mailer.wait(t)

	if err := svc.ResendVerification(context.Background(), "nobody@example.com"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for unknown email, got %v", err)
	}
}

func TestLoginRequiresVerifiedEmail(t *testing.T) {
	svc, _, _, mailer := newTestService(t)

	if _, err := svc.Register(context.Background(), registerInput()); err != nil {
		t.Fatalf("register: %v", err)
	}
	secret := linkToken(t, mailer.wait(t))

	if _, _, err := svc.Login(context.Background(), "alice", "supersafe"); !errors.Is(err, ErrEmailNotVerified) {
		t.Fatalf("expected ErrEmailNotVerified, got %v", err)
	}

	if err := svc.VerifyEmail(context.Background(), secret); err != nil {
		t.Fatalf("verify email: %v", err)
	}

	// Handle and email both work as identifiers.
	if _, _, err := svc.Login(context.Background(), "alice", "supersafe"); err != nil {
		t.Fatalf("login by handle: %v", err)
	}
	user, tokens, err := svc.Login(context.Background(), "alice@example.com", "supersafe")
	if err != nil {
		t.Fatalf("login by email: %v", err)
	}
	if user.ID == "" || tokens.AccessToken == "" || tokens.RefreshToken == "" {
		t.Fatalf("expected a full session, got %+v", tokens)
	}

	if _, _, err := svc.Login(context.Background(), "alice", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, _, err := svc.Login(context.Background(), "nobody", "supersafe"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}
}

func registerAndLogin(t *testing.T, svc *Service, mailer *recordingMailer) (models.User, models.SessionTokens) {
	t.Helper()
	if _, err := svc.Register(context.Background(), registerInput()); err != nil {
		t.Fatalf("register: %v", err)
	}
	secret := linkToken(t, mailer.wait(t))
	if err := svc.VerifyEmail(context.Background(), secret); err != nil {
		t.Fatalf("verify email: %v", err)
	}
	user, tokens, err := svc.Login(context.Background(), "alice", "supersafe")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	return user, tokens
}

func TestRefreshRotationInvalidatesOldToken(t *testing.T) {
	svc, _, _, mailer := newTestService(t)
	_, session := registerAndLogin(t, svc, mailer)

	// Make the rotated token textually distinct from the original.
	svc.issuer.nowFunc = func() time.Time { return time.Now().UTC().Add(time.Second) }

	rotated, err := svc.RefreshAccessToken(context.Background(), session.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if rotated.RefreshToken == session.RefreshToken {
		t.Fatal("expected a new refresh token")
	}

	// The superseded token must now be rejected.
	if _, err := svc.RefreshAccessToken(context.Background(), session.RefreshToken); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for stale token, got %v", err)
	}

	// The rotated token still works.
	if _, err := svc.RefreshAccessToken(context.Background(), rotated.RefreshToken); err != nil {
		t.Fatalf("refresh with rotated token: %v", err)
	}
}

func TestRefreshRejectsGarbageAndEmpty(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	if _, err := svc.RefreshAccessToken(context.Background(), ""); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for empty token, got %v", err)
	}
	if _, err := svc.RefreshAccessToken(context.Background(), "not-a-jwt"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for malformed token, got %v", err)
	}
}

func TestLogoutEndsSession(t *testing.T) {
	svc, _, _, mailer := newTestService(t)
	user, session := registerAndLogin(t, svc, mailer)

	if err := svc.Logout(context.Background(), user.ID); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := svc.RefreshAccessToken(context.Background(), session.RefreshToken); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden after logout, got %v", err)
	}

	// Logging out twice is harmless.
	if err := svc.Logout(context.Background(), user.ID); err != nil {
		t.Fatalf("second logout: %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	svc, _, _, mailer := newTestService(t)
	user, _ := registerAndLogin(t, svc, mailer)

	if err := svc.ChangePassword(context.Background(), user.ID, "wrong", "newpassword"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if err := svc.ChangePassword(context.Background(), user.ID, "supersafe", "short"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for short password, got %v", err)
	}
	if err := svc.ChangePassword(context.Background(), user.ID, "supersafe", "newpassword"); err != nil {
		t.Fatalf("change password: %v", err)
	}
	if _, _, err := svc.Login(context.Background(), "alice", "newpassword"); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
	if _, _, err := svc.Login(context.Background(), "alice", "supersafe"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password must be rejected, got %v", err)
	}
}

func TestForgotPasswordIsGenericForUnknownEmail(t *testing.T) {
	svc, _, tokens, _ := newTestService(t)

	if err := svc.ForgotPassword(context.Background(), "nobody@example.com"); err != nil {
		t.Fatalf("expected generic success for unknown email, got %v", err)
	}
	if got := len(tokens.tokens); got != 0 {
		t.Fatalf("no token should be minted for unknown emails, got %d", got)
	}
}

func TestForgotPasswordSupersedesPriorTokens(t *testing.T) {
	svc, _, tokens, mailer := newTestService(t)
	user, _ := registerAndLogin(t, svc, mailer)

	if err := svc.ForgotPassword(context.Background(), user.Email); err != nil {
		t.Fatalf("forgot password: %v", err)
	}
	first := linkToken(t, mailer.wait(t))

	if err := svc.ForgotPassword(context.Background(), user.Email); err != nil {
		t.Fatalf("second forgot password: %v", err)
	}
	second := linkToken(t, mailer.wait(t))

	if got := tokens.unconsumedCount(user.ID, models.TokenKindPasswordReset); got != 1 {
		t.Fatalf("expected exactly one outstanding reset token, got %d", got)
	}

	// The superseded secret is dead; the fresh one works.
	if err := svc.ResetPassword(context.Background(), first, "newpassword"); !errors.Is(err, ErrInvalidOrExpired) {
		t.Fatalf("expected superseded token to fail, got %v", err)
	}
	if err := svc.ResetPassword(context.Background(), second, "newpassword"); err != nil {
		t.Fatalf("reset with fresh token: %v", err)
	}
}

func TestResetPasswordEndsSessions(t *testing.T) {
	svc, _, _, mailer := newTestService(t)
	user, session := registerAndLogin(t, svc, mailer)

	if err := svc.ForgotPassword(context.Background(), user.Email); err != nil {
		t.Fatalf("forgot password: %v", err)
	}
	secret := linkToken(t, mailer.wait(t))

	if err := svc.ResetPassword(context.Background(), secret, "newpassword"); err != nil {
		t.Fatalf("reset password: %v", err)
	}

	// The refresh token issued before the reset no longer works.
	if _, err := svc.RefreshAccessToken(context.Background(), session.RefreshToken); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden after reset, got %v", err)
	}
	if _, _, err := svc.Login(context.Background(), "alice", "newpassword"); err != nil {
		t.Fatalf("login with reset password: %v", err)
	}

	// The consumed secret cannot be replayed.
	if err := svc.ResetPassword(context.Background(), secret, "anotherpassword"); !errors.Is(err, ErrInvalidOrExpired) {
		t.Fatalf("expected ErrInvalidOrExpired on replay, got %v", err)
	}
}

func TestSweepExpiredTokens(t *testing.T) {
	svc, _, tokens, mailer := newTestService(t)
	if _, err := svc.Register(context.Background(), registerInput()); err != nil {
		t.Fatalf("register: %v", err)
	}
	mailer.wait(t)

	svc.nowFunc = func() time.Time { return time.Now().UTC().Add(25 * time.Hour) }

	removed, err := svc.SweepExpiredTokens(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 expired token removed, got %d", removed)
	}
	if got := len(tokens.tokens); got != 0 {
		t.Fatalf("expected token store emptied, got %d", got)
	}
}
