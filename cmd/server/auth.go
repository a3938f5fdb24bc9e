package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/blueberrycongee/inferd/internal/auth"
	"github.com/blueberrycongee/inferd/internal/config"
)

// buildAuth constructs the authentication middleware and the per-caller
// rate limiter from the auth config block. Mode "none" yields a
// pass-through middleware; a nil rate limiter disables limiting.
func buildAuth(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*auth.Middleware, *auth.RateLimiter, error) {
	mwCfg := auth.MiddlewareConfig{
		Mode:   cfg.Auth.Mode,
		Logger: logger,
	}

	switch cfg.Auth.Mode {
	case "", "none":

	case "api_key":
		if cfg.Auth.PostgresDSN != "" {
			store, err := auth.NewPostgresStore(ctx, cfg.Auth.PostgresDSN)
			if err != nil {
				return nil, nil, fmt.Errorf("connect key store: %w", err)
			}
			mwCfg.Store = store
			logger.Info("api key store", "backend", "postgres")
		} else {
			mwCfg.Store = auth.NewMemoryStoreFromKeys(cfg.Auth.APIKeys)
			logger.Info("api key store", "backend", "memory", "keys", len(cfg.Auth.APIKeys))
		}

	case "jwt":
		if cfg.Auth.OIDCIssuer != "" {
			verifier, err := auth.NewOIDCVerifier(ctx, cfg.Auth.OIDCIssuer, cfg.Auth.OIDCAudience)
			if err != nil {
				return nil, nil, fmt.Errorf("initialize OIDC verifier: %w", err)
			}
			mwCfg.Verifier = verifier
			logger.Info("token verification", "mode", "oidc", "issuer", cfg.Auth.OIDCIssuer)
		} else {
			verifier, err := auth.NewHS256Verifier(cfg.Auth.JWTSecret)
			if err != nil {
				return nil, nil, fmt.Errorf("initialize JWT verifier: %w", err)
			}
			mwCfg.Verifier = verifier
			logger.Info("token verification", "mode", "hs256")
		}

	default:
		return nil, nil, fmt.Errorf("unknown auth mode: %q", cfg.Auth.Mode)
	}

	mw, err := auth.NewMiddleware(mwCfg)
	if err != nil {
		return nil, nil, err
	}

	var limiter *auth.RateLimiter
	if cfg.Auth.RateLimit.Enabled {
		limiter = auth.NewRateLimiter(auth.RateLimiterConfig{
			RequestsPerMinute: cfg.Auth.RateLimit.RequestsPerMinute,
			BurstSize:         cfg.Auth.RateLimit.BurstSize,
		})
	}
	return mw, limiter, nil
}
