// Package env resolves env:// secret references against the process
// environment. It is always registered, so a bare deployment can hold its
// API keys and the JWT secret in environment variables without Vault.
package env

import (
	"context"
	"fmt"
	"os"
)

// Provider reads secrets from environment variables. The reference path is
// the variable name: env://INFERD_JWT_SECRET reads INFERD_JWT_SECRET.
type Provider struct{}

// New builds the provider.
func New() *Provider {
	return &Provider{}
}

// Get returns the named variable's value. An unset variable is an error; an
// empty value is not, the deployment may legitimately configure one.
func (p *Provider) Get(_ context.Context, name string) (string, error) {
	val, ok := os.LookupEnv(name)
	if !ok {
		return "", fmt.Errorf("environment variable %q not set", name)
	}
	return val, nil
}

// Close is a no-op; the environment holds no resources.
func (p *Provider) Close() error {
	return nil
}
