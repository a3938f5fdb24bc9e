package auth

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/goccy/go-json"
)

// Middleware authenticates requests according to the configured mode:
// "none" passes everything through, "api_key" resolves keys against the
// store, "jwt" validates bearer tokens.
type Middleware struct {
	mode     string
	store    Store
	verifier TokenVerifier
	logger   *slog.Logger
}

// MiddlewareConfig wires the middleware dependencies.
type MiddlewareConfig struct {
	Mode     string
	Store    Store
	Verifier TokenVerifier
	Logger   *slog.Logger
}

// NewMiddleware validates the configuration and builds the middleware.
func NewMiddleware(cfg MiddlewareConfig) (*Middleware, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	m := &Middleware{
		mode:     cfg.Mode,
		store:    cfg.Store,
		verifier: cfg.Verifier,
		logger:   cfg.Logger,
	}
	switch cfg.Mode {
	case "", "none":
		m.mode = "none"
	case "api_key":
		if cfg.Store == nil {
			return nil, ErrKeyNotFound
		}
	case "jwt":
		if cfg.Verifier == nil {
			return nil, ErrKeyNotFound
		}
	}
	return m, nil
}

// Handler wraps next with authentication.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	if m.mode == "none" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		credential, err := m.extractCredential(r)
		if err != nil {
			m.deny(w, "missing credentials")
			return
		}

		var id *Identity
		switch m.mode {
		case "api_key":
			id, err = m.authenticateKey(r, credential)
		case "jwt":
			id, err = m.verifier.Verify(r.Context(), credential)
		}
		if err != nil || id == nil {
			m.logger.Warn("authentication failed",
				"mode", m.mode,
				"credential", MaskKey(credential),
				"error", err)
			m.deny(w, "invalid credentials")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

func (m *Middleware) extractCredential(r *http.Request) (string, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		return ParseAuthHeader(header)
	}
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key, nil
	}
	return "", ErrKeyNotFound
}

func (m *Middleware) authenticateKey(r *http.Request, credential string) (*Identity, error) {
	key, err := m.store.GetByHash(r.Context(), HashKey(credential))
	if err != nil {
		return nil, err
	}
	if key.Revoked {
		return nil, ErrKeyNotFound
	}
	if key.Expired(time.Now()) {
		return nil, ErrKeyNotFound
	}
	return &Identity{
		KeyID:    key.ID,
		Name:     key.Name,
		RPMLimit: key.RPMLimit,
		Method:   "api_key",
	}, nil
}

func (m *Middleware) deny(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error":  msg,
		"status": "error",
	})
}
