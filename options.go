package vbot

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Option configures the Client.
type Option func(*clientConfig)

type clientConfig struct {
	driver   string // "file" or "redis"
	dir      string
	addrs    []string
	password string

	prices Pricing
	policy Policy
	clock  func() time.Time

	logger     *slog.Logger
	metricsReg prometheus.Registerer
}

// WithFileStorage keeps one JSON ledger record per identity under dir.
// The directory is created if it does not exist.
func WithFileStorage(dir string) Option {
	return func(c *clientConfig) {
		c.driver = "file"
		c.dir = dir
	}
}

// WithRedis stores ledger records in a Redis instance.
func WithRedis(addr, password string) Option {
	return func(c *clientConfig) {
		c.driver = "redis"
		c.addrs = []string{addr}
		c.password = password
	}
}

// WithPricing replaces the default price table.
func WithPricing(p Pricing) Option {
	return func(c *clientConfig) {
		c.prices = p
	}
}

// WithPolicy sets the budget policy. The default policy admits every
// identity with no spending cap, which makes the client a pure
// accounting ledger.
func WithPolicy(p Policy) Option {
	return func(c *clientConfig) {
		c.policy = p
	}
}

// WithClock overrides the wall clock driving date rollover. Tests use it
// to cross day and month boundaries.
func WithClock(now func() time.Time) Option {
	return func(c *clientConfig) {
		c.clock = now
	}
}

// WithLogger enables structured logging for SDK operations.
// Pass nil to disable (default). Uses standard library slog.
func WithLogger(l *slog.Logger) Option {
	return func(c *clientConfig) {
		c.logger = l
	}
}

// WithPrometheus registers SDK metrics (operation counts and durations)
// on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return func(c *clientConfig) {
		c.metricsReg = reg
	}
}
