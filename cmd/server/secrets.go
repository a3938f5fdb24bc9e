package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/blueberrycongee/inferd/internal/config"
	"github.com/blueberrycongee/inferd/internal/secret"
	"github.com/blueberrycongee/inferd/internal/secret/env"
	"github.com/blueberrycongee/inferd/internal/secret/vault"
)

// newSecretManager wires the env provider, and the Vault provider when an
// address is configured. Lookups are cached with the configured TTL.
func newSecretManager(sc config.SecretsConfig) (*secret.Manager, error) {
	mgr := secret.NewManager()
	mgr.Register("env", secret.NewCachedProvider(env.New(), sc.CacheTTL))

	if sc.VaultAddr != "" {
		vp, err := vault.New(vault.Config{
			Address: sc.VaultAddr,
			Token:   sc.VaultToken,
		})
		if err != nil {
			return nil, fmt.Errorf("initialize vault provider: %w", err)
		}
		mgr.Register("vault", secret.NewCachedProvider(vp, sc.CacheTTL))
	}
	return mgr, nil
}

// resolveSecrets replaces secret references (env://NAME,
// vault://mount/path#field) in the sensitive config fields with their
// resolved values. Plain values pass through untouched.
func resolveSecrets(ctx context.Context, mgr *secret.Manager, cfg *config.Config) error {
	fields := []struct {
		name  string
		value *string
	}{
		{"auth.jwt_secret", &cfg.Auth.JWTSecret},
		{"auth.postgres_dsn", &cfg.Auth.PostgresDSN},
		{"cache.snapshot.redis_url", &cfg.Cache.Snapshot.RedisURL},
	}
	for _, f := range fields {
		resolved, err := resolveRef(ctx, mgr, *f.value)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", f.name, err)
		}
		*f.value = resolved
	}

	for i, key := range cfg.Auth.APIKeys {
		resolved, err := resolveRef(ctx, mgr, key)
		if err != nil {
			return fmt.Errorf("resolve auth.api_keys[%d]: %w", i, err)
		}
		cfg.Auth.APIKeys[i] = resolved
	}
	return nil
}

func resolveRef(ctx context.Context, mgr *secret.Manager, value string) (string, error) {
	if !isSecretRef(value) {
		return value, nil
	}
	return mgr.Get(ctx, value)
}

// isSecretRef reports whether value is a scheme-prefixed secret reference
// rather than a literal. Only the schemes the manager knows are treated as
// references, so URLs like redis:// stay literal.
func isSecretRef(value string) bool {
	scheme, _, ok := strings.Cut(value, "://")
	if !ok {
		return false
	}
	return scheme == "env" || scheme == "vault"
}
