package soa

import (
	"fmt"
	"time"
)

// Config controls the semantic cache geometry and policy.
type Config struct {
	// Dimension is the width of each embedding vector. It must match the
	// dimension reported by the embedder the cache is built with.
	Dimension int `yaml:"dimension"`

	// MaxEntries is the fixed capacity of the cache. The embedding matrix
	// is allocated up front at Dimension*MaxEntries floats and never grows.
	MaxEntries int `yaml:"max_entries"`

	// SimilarityThreshold is the minimum cosine similarity for a lookup to
	// count as a hit. Must be in (0, 1].
	SimilarityThreshold float64 `yaml:"similarity_threshold"`

	// HitProtection is how much longevity each hit buys an entry when an
	// eviction victim is chosen. Higher values keep popular entries alive
	// longer.
	HitProtection time.Duration `yaml:"hit_protection"`
}

// DefaultConfig returns the cache configuration used when none is supplied.
func DefaultConfig() Config {
	return Config{
		Dimension:           768,
		MaxEntries:          10000,
		SimilarityThreshold: 0.95,
		HitProtection:       time.Hour,
	}
}

// Validate checks the configuration for values the cache cannot operate with.
func (c Config) Validate() error {
	if c.Dimension <= 0 {
		return fmt.Errorf("dimension must be positive, got %d", c.Dimension)
	}
	if c.MaxEntries <= 0 {
		return fmt.Errorf("max_entries must be positive, got %d", c.MaxEntries)
	}
	if c.SimilarityThreshold <= 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity_threshold must be in (0, 1], got %f", c.SimilarityThreshold)
	}
	if c.HitProtection < 0 {
		return fmt.Errorf("hit_protection must not be negative, got %s", c.HitProtection)
	}
	return nil
}

// withDefaults fills zero or invalid fields with the default values so a
// partially populated Config still yields a working cache.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Dimension <= 0 {
		c.Dimension = def.Dimension
	}
	if c.MaxEntries <= 0 {
		c.MaxEntries = def.MaxEntries
	}
	if c.SimilarityThreshold <= 0 || c.SimilarityThreshold > 1 {
		c.SimilarityThreshold = def.SimilarityThreshold
	}
	if c.HitProtection <= 0 {
		c.HitProtection = def.HitProtection
	}
	return c
}
