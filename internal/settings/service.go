package settings

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/inventario-pricing/internal/obs"
	"github.com/noah-isme/inventario-pricing/internal/resilience"
)

const (
	lockKey = "pricing:settings:lock"
	lockTTL = 10 * time.Second
)

// Locker serialises settings writes across replicas.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// Service resolves the effective tax settings: cache, then store, then configured defaults.
// While the store breaker is open the last settings read are served instead.
type Service struct {
	store    Store
	cache    *Cache
	breaker  *resilience.Breaker
	locker   Locker
	defaults TaxSettings
	logger   zerolog.Logger
	now      func() time.Time

	mu        sync.RWMutex
	lastKnown *TaxSettings
}

// ServiceConfig groups Service dependencies. Cache, Breaker and Locker are optional.
type ServiceConfig struct {
	Store    Store
	Cache    *Cache
	Breaker  *resilience.Breaker
	Locker   Locker
	Defaults TaxSettings
	Logger   zerolog.Logger
	Now      func() time.Time
}

// NewService validates dependencies and constructs a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("settings store is required")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		store:    cfg.Store,
		cache:    cfg.Cache,
		breaker:  cfg.Breaker,
		locker:   cfg.Locker,
		defaults: cfg.Defaults,
		logger:   cfg.Logger,
		now:      now,
	}, nil
}

// Current returns the settings in effect. Cache failures are logged and bypassed.
func (s *Service) Current(ctx context.Context) (TaxSettings, error) {
	var cached TaxSettings
	hit, err := s.cache.Get(ctx, &cached)
	if err != nil {
		s.logger.Warn().Err(err).Msg("read settings cache")
	}
	obs.ObserveSettingsCache(hit)
	if hit {
		return cached, nil
	}

	current, err := s.load(ctx)
	if err != nil {
		if stale, ok := s.stale(); ok {
			s.logger.Warn().Err(err).Str("revision", stale.Revision.String()).Msg("settings store unavailable, serving last known settings")
			return stale, nil
		}
		return TaxSettings{}, fmt.Errorf("load settings: %w", err)
	}
	s.remember(current)
	if err := s.cache.Set(ctx, current); err != nil {
		s.logger.Warn().Err(err).Msg("write settings cache")
	}
	return current, nil
}

// load reads the store through the breaker. A missing row is not a failure.
func (s *Service) load(ctx context.Context) (current TaxSettings, err error) {
	ctx, span := obs.StartSpan(ctx, "settings.load")
	defer func() { obs.EndSpan(span, err) }()

	read := func(ctx context.Context) error {
		got, err := s.store.Get(ctx)
		switch {
		case errors.Is(err, ErrNotFound):
			current = s.defaults
			return nil
		case err != nil:
			return err
		}
		current = got
		return nil
	}
	if s.breaker == nil {
		err = read(ctx)
	} else {
		err = s.breaker.Do(ctx, read)
		span.SetAttributes(attribute.String("breaker.state", s.breaker.State().String()))
	}
	return current, err
}

func (s *Service) remember(v TaxSettings) {
	s.mu.Lock()
	s.lastKnown = &v
	s.mu.Unlock()
}

func (s *Service) stale() (TaxSettings, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastKnown == nil {
		return TaxSettings{}, false
	}
	return *s.lastKnown, true
}

// Update persists new settings with a fresh revision and refreshes the cache. With a
// Locker the save and the cache refresh happen under one lock, so the cache always
// ends up holding the last saved revision.
func (s *Service) Update(ctx context.Context, in TaxSettings) (saved TaxSettings, err error) {
	ctx, span := obs.StartSpan(ctx, "settings.update", attribute.Bool("settings.locked", s.locker != nil))
	defer func() { obs.EndSpan(span, err) }()

	write := func(ctx context.Context) error {
		in.Revision = uuid.New()
		in.UpdatedAt = s.now().UTC()
		var err error
		saved, err = s.store.Save(ctx, in)
		if err != nil {
			return fmt.Errorf("save settings: %w", err)
		}
		if err := s.cache.Set(ctx, saved); err != nil {
			s.logger.Warn().Err(err).Msg("refresh settings cache")
			if err := s.cache.Invalidate(ctx); err != nil {
				s.logger.Error().Err(err).Msg("invalidate settings cache")
			}
		}
		return nil
	}
	if s.locker != nil {
		err = s.locker.WithLock(ctx, lockKey, lockTTL, write)
	} else {
		err = write(ctx)
	}
	if err != nil {
		return TaxSettings{}, err
	}
	s.remember(saved)
	s.logger.Info().
		Str("revision", saved.Revision.String()).
		Str("iva_percent", saved.IVA.Percentage.String()).
		Bool("iva_applies", saved.IVA.Applies).
		Str("ice_percent", saved.ICE.Percentage.String()).
		Bool("ice_applies", saved.ICE.Applies).
		Msg("tax settings updated")
	return saved, nil
}
