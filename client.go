package vbot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Jikima/VBot/internal/db"
	dbRedis "github.com/Jikima/VBot/internal/db/redis"
	"github.com/Jikima/VBot/internal/domain/pricing"
	"github.com/Jikima/VBot/internal/domain/usage"
	dombudget "github.com/Jikima/VBot/internal/domain/usage/budget"
	"github.com/Jikima/VBot/internal/repository/ledgerfile"
	"github.com/Jikima/VBot/internal/repository/ledgerredis"
	budgetuc "github.com/Jikima/VBot/internal/usecase/budget"
	healthuc "github.com/Jikima/VBot/internal/usecase/health"
	uledger "github.com/Jikima/VBot/internal/usecase/ledger"
	meteruc "github.com/Jikima/VBot/internal/usecase/meter"
)

const defaultReadinessTimeout = 10 * time.Second

// Внутренние интерфейсы для подмены в тестах.
type meterUseCase interface {
	RecordEvent(ctx context.Context, ev meteruc.Event) (meteruc.Receipt, error)
	Report(ctx context.Context, identity string, group bool) (usage.Report, error)
}

type gateUseCase interface {
	Allowed(identity string, group bool) bool
	IsWithinBudget(ctx context.Context, identity string, group bool) (bool, error)
	Describe(ctx context.Context, identity string, group bool) (dombudget.Budget, error)
}

// Client is the vbot SDK entry point. It embeds the accounting engine
// in-process so a bot can bill usage without running the HTTP service.
type Client struct {
	store     db.Store // nil for the file driver
	meterSvc  meterUseCase
	gateSvc   gateUseCase
	healthSvc *healthuc.Service
	obs       *observer
}

// New creates a vbot Client and opens the ledger store.
// The provided context is used for the initial readiness check.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := &clientConfig{
		prices: DefaultPricing(),
		policy: Policy{
			Period:        PeriodMonth,
			AllowEveryone: true,
			Unlimited:     true,
		},
	}
	for _, o := range opts {
		o(cfg)
	}

	if cfg.driver == "" {
		return nil, errors.New("vbot: ledger storage required (use WithFileStorage or WithRedis)")
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}

	return wireClient(ctx, cfg, obs)
}

func wireClient(ctx context.Context, cfg *clientConfig, obs *observer) (*Client, error) {
	var (
		ledgerStore uledger.Store
		pinger      healthuc.StorePinger
		kv          db.Store
	)
	switch cfg.driver {
	case "file":
		s, err := ledgerfile.New(cfg.dir)
		if err != nil {
			return nil, fmt.Errorf("vbot: open ledger directory: %w", err)
		}
		ledgerStore = s
		pinger = s
	case "redis":
		s, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.addrs,
			Password: cfg.password,
		})
		if err != nil {
			return nil, fmt.Errorf("vbot: create redis store: %w", err)
		}
		if err := s.WaitForReady(ctx, defaultReadinessTimeout); err != nil {
			s.Close()
			return nil, fmt.Errorf("vbot: redis not ready: %w", err)
		}
		kv = s
		ledgerStore = ledgerredis.New(s)
		pinger = s
	default:
		return nil, fmt.Errorf("vbot: unknown storage driver %q", cfg.driver)
	}

	// Внутренние сервисы пишут в zap; публичные операции логирует observer.
	nop := zap.NewNop()
	registry := uledger.NewRegistry(ledgerStore, cfg.prices.table(), nop)
	if cfg.clock != nil {
		registry = registry.WithClock(cfg.clock)
	}
	gate := budgetuc.New(cfg.policy.internal(), registry, nop)
	meterSvc := meteruc.New(registry, gate, nop)

	return &Client{
		store:     kv,
		meterSvc:  meterSvc,
		gateSvc:   gate,
		healthSvc: healthuc.New(pinger, nil),
		obs:       obs,
	}, nil
}

// Close releases all resources.
func (c *Client) Close() {
	if c.store != nil {
		c.store.Close()
	}
}

// Ping checks ledger store connectivity.
func (c *Client) Ping(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("ping", start, err) }()

	report := c.healthSvc.Check(ctx)
	if report.Status == healthuc.Unhealthy {
		err = errors.New("vbot: ledger store unavailable")
		return err
	}
	return nil
}

// table converts public pricing into the domain price table.
func (p Pricing) table() pricing.Table {
	return pricing.Table{
		ChatPerThousandTokens:  p.ChatPerThousandTokens,
		TranscriptionPerMinute: p.TranscriptionPerMinute,
		Image:                  p.Image,
	}
}

// internal converts the public policy into the gate policy.
func (p Policy) internal() budgetuc.Policy {
	period := usage.Period(p.Period)
	if period == "" {
		period = usage.PeriodMonth
	}
	return budgetuc.Policy{
		Period:         period,
		AdminIDs:       p.Admins,
		AllowAll:       p.AllowEveryone,
		AllowedIDs:     p.Allowed,
		Unlimited:      p.Unlimited,
		Allowances:     p.Allowances,
		GuestAllowance: p.GuestAllowance,
	}
}
