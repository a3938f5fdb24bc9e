package auth

import (
	"context"
	"fmt"
	"time"

	oidc "github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
)

// TokenVerifier validates a bearer token and returns the caller identity.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

// HS256Verifier validates gateway-issued HS256 JWTs.
type HS256Verifier struct {
	secret []byte
}

// NewHS256Verifier builds a verifier over a shared secret.
func NewHS256Verifier(secret string) (*HS256Verifier, error) {
	if secret == "" {
		return nil, fmt.Errorf("jwt secret must not be empty")
	}
	return &HS256Verifier{secret: []byte(secret)}, nil
}

// Verify parses and validates the token, enforcing the HS256 algorithm
// and expiry.
func (v *HS256Verifier) Verify(_ context.Context, tokenString string) (*Identity, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("parse jwt: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid jwt")
	}

	sub, _ := claims.GetSubject()
	if sub == "" {
		return nil, fmt.Errorf("jwt missing subject")
	}

	id := &Identity{KeyID: sub, Name: sub, Method: "jwt"}
	if name, ok := claims["name"].(string); ok {
		id.Name = name
	}
	if rpm, ok := claims["rpm_limit"].(float64); ok && rpm > 0 {
		id.RPMLimit = int(rpm)
	}
	return id, nil
}

// IssueHS256 mints a token for testing and CLI tooling.
func IssueHS256(secret, subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": subject,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	})
	return token.SignedString([]byte(secret))
}

// OIDCVerifier validates tokens issued by an external OpenID Connect
// provider.
type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewOIDCVerifier discovers the issuer and builds a verifier for the
// given audience.
func NewOIDCVerifier(ctx context.Context, issuer, audience string) (*OIDCVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("discover oidc issuer: %w", err)
	}
	cfg := &oidc.Config{ClientID: audience}
	if audience == "" {
		cfg.SkipClientIDCheck = true
	}
	return &OIDCVerifier{verifier: provider.Verifier(cfg)}, nil
}

// Verify validates the ID token signature, issuer, audience, and expiry.
func (v *OIDCVerifier) Verify(ctx context.Context, token string) (*Identity, error) {
	idToken, err := v.verifier.Verify(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("verify oidc token: %w", err)
	}

	id := &Identity{KeyID: idToken.Subject, Name: idToken.Subject, Method: "jwt"}
	var claims struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := idToken.Claims(&claims); err == nil {
		if claims.Name != "" {
			id.Name = claims.Name
		} else if claims.Email != "" {
			id.Name = claims.Email
		}
	}
	return id, nil
}
