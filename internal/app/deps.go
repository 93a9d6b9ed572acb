package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/vidiosphere/backend/internal/auth"
	"github.com/vidiosphere/backend/internal/config"
	"github.com/vidiosphere/backend/internal/db"
	"github.com/vidiosphere/backend/internal/handlers"
	"github.com/vidiosphere/backend/internal/mail"
	"github.com/vidiosphere/backend/internal/middleware"
	"github.com/vidiosphere/backend/internal/models"
	"github.com/vidiosphere/backend/internal/relationship"
	"github.com/vidiosphere/backend/internal/repositories"
	"github.com/vidiosphere/backend/internal/storage"
)

// buildDependencies wires together concrete implementations used by the HTTP
// handlers. The auth service is returned separately so the caller can run the
// background token sweep against it.
func buildDependencies(ctx context.Context, pool db.Pool, cfg config.Config) (handlers.Dependencies, *auth.Service, error) {
	users := repositories.NewPostgresUserRepository(pool)
	tokens := repositories.NewPostgresTokenRepository(pool)
	edges := repositories.NewPostgresEdgeRepository(pool)
	videos := repositories.NewPostgresVideoRepository(pool)
	tweets := repositories.NewPostgresTweetRepository(pool)
	comments := repositories.NewPostgresCommentRepository(pool)
	playlists := repositories.NewPostgresPlaylistRepository(pool)
	history := repositories.NewPostgresWatchHistoryRepository(pool)

	assets, err := storage.NewS3Storage(ctx, cfg.ObjectStore)
	if err != nil {
		return handlers.Dependencies{}, nil, fmt.Errorf("initialise object store: %w", err)
	}

	issuer := auth.NewTokenIssuer(
		cfg.AccessTokenSecret,
		cfg.RefreshTokenSecret,
		cfg.AccessTokenTTL,
		cfg.RefreshTokenTTL,
	)

	authService := auth.NewService(users, tokens, issuer, assets, mail.NewSMTPMailer(cfg.SMTP), auth.ServiceConfig{
		VerifyTokenTTL: cfg.VerifyTokenTTL,
		ResetTokenTTL:  cfg.ResetTokenTTL,
		ResendCooldown: cfg.ResendCooldown,
		UploadTimeout:  cfg.ObjectStore.UploadTimeout,
		MailTimeout:    cfg.SMTP.Timeout,
		PublicBaseURL:  cfg.PublicBaseURL,
	})

	resolver := relationship.TargetResolverFunc(func(ctx context.Context, kind, targetID string) (bool, error) {
		switch kind {
		case models.EdgeKindVideoLike:
			return videos.Exists(ctx, targetID)
		case models.EdgeKindCommentLike:
			return comments.Exists(ctx, targetID)
		case models.EdgeKindTweetLike:
			return tweets.Exists(ctx, targetID)
		case models.EdgeKindSubscription:
			_, err := users.FindByID(ctx, targetID)
			if errors.Is(err, repositories.ErrNotFound) {
				return false, nil
			}
			return err == nil, err
		default:
			return false, nil
		}
	})

	return handlers.Dependencies{
		Issuer:        issuer,
		Auth:          authService,
		Users:         users,
		Toggles:       relationship.NewService(edges, resolver),
		Videos:        videos,
		Tweets:        tweets,
		Comments:      comments,
		Playlists:     playlists,
		History:       history,
		Assets:        assets,
		AccessTTL:     cfg.AccessTokenTTL,
		RefreshTTL:    cfg.RefreshTokenTTL,
		UploadTimeout: cfg.ObjectStore.UploadTimeout,
		ResendLimiter: middleware.NewIPRateLimiter(cfg.ResendLimitRequests, cfg.ResendLimitWindow, cfg.ResendLimitRequests, cfg.ResendLimitWindow),
		ForgotLimiter: middleware.NewIPRateLimiter(cfg.ForgotLimitRequests, cfg.ForgotLimitWindow, cfg.ForgotLimitRequests, cfg.ForgotLimitWindow),
	}, authService, nil
}
