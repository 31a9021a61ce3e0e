// internal/service/settings/settings.go
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"isp-billing-service/internal/domain/settings"
	"isp-billing-service/internal/events"
	xerrors "isp-billing-service/internal/pkg/errors"
	"isp-billing-service/internal/repository/postgres"

	"github.com/jackc/pgx/v5"
	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	referralCacheKey = "settings:referral"

	// InvalidationChannel carries settings invalidations between instances.
	InvalidationChannel = "settings:invalidate"
)

// SettingsService serves the typed referral settings. Reads go local cache, then Redis, then
// the settings table; an update clears both caches and tells other instances to do the same.
type SettingsService struct {
	repo   settings.Repository
	tx     postgres.Transactor
	local  *cache.Cache
	shared redis.UniversalClient
	ttl    time.Duration
	events events.Publisher
	logger *zap.Logger
}

// NewSettingsService builds the service. shared may be nil, in which case only the in-process
// cache is used.
func NewSettingsService(
	repo settings.Repository,
	tx postgres.Transactor,
	shared redis.UniversalClient,
	ttl time.Duration,
	publisher events.Publisher,
	logger *zap.Logger,
) *SettingsService {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &SettingsService{
		repo:   repo,
		tx:     tx,
		local:  cache.New(ttl, 2*ttl),
		shared: shared,
		ttl:    ttl,
		events: publisher,
		logger: logger,
	}
}

// ReferralSettings returns the current referral settings
func (s *SettingsService) ReferralSettings(ctx context.Context) (settings.ReferralSettings, error) {
	if v, ok := s.local.Get(referralCacheKey); ok {
		return v.(settings.ReferralSettings), nil
	}

	if rs, ok := s.fromShared(ctx); ok {
		s.local.Set(referralCacheKey, rs, cache.DefaultExpiration)
		return rs, nil
	}

	rows, err := s.repo.GetByKeys(ctx, settings.ReferralKeys)
	if err != nil {
		return settings.ReferralSettings{}, err
	}
	rs, err := settings.ParseReferralSettings(rows)
	if err != nil {
		s.logger.Error("malformed referral settings", zap.Error(err))
		return settings.ReferralSettings{}, fmt.Errorf("failed to parse referral settings: %w", err)
	}

	s.local.Set(referralCacheKey, rs, cache.DefaultExpiration)
	s.toShared(ctx, rs)
	return rs, nil
}

// UpdateReferralSettings patches the stored settings and invalidates every cache
func (s *SettingsService) UpdateReferralSettings(ctx context.Context, req *settings.UpdateReferralSettingsRequest) (settings.ReferralSettings, error) {
	current, err := s.ReferralSettings(ctx)
	if err != nil {
		return settings.ReferralSettings{}, err
	}

	var keys []string
	if req.ReferrerCashAmount != nil {
		if req.ReferrerCashAmount.IsNegative() {
			return settings.ReferralSettings{}, xerrors.NewValidation(settings.KeyReferrerCashAmount, "must not be negative")
		}
		current.ReferrerCashAmount = *req.ReferrerCashAmount
		keys = append(keys, settings.KeyReferrerCashAmount)
	}
	if req.ReferrerDiscountFixed != nil {
		if req.ReferrerDiscountFixed.IsNegative() {
			return settings.ReferralSettings{}, xerrors.NewValidation(settings.KeyReferrerDiscountFixed, "must not be negative")
		}
		current.ReferrerDiscountFixed = *req.ReferrerDiscountFixed
		keys = append(keys, settings.KeyReferrerDiscountFixed)
	}
	if req.ReferredInstallationDiscount != nil {
		if req.ReferredInstallationDiscount.IsNegative() {
			return settings.ReferralSettings{}, xerrors.NewValidation(settings.KeyReferredInstallationDiscount, "must not be negative")
		}
		current.ReferredInstallationDiscount = *req.ReferredInstallationDiscount
		keys = append(keys, settings.KeyReferredInstallationDiscount)
	}
	if req.DefaultMaxUses != nil {
		if *req.DefaultMaxUses < 1 {
			return settings.ReferralSettings{}, xerrors.NewValidation(settings.KeyReferralDefaultMaxUses, "must be at least 1")
		}
		current.DefaultMaxUses = *req.DefaultMaxUses
		keys = append(keys, settings.KeyReferralDefaultMaxUses)
	}
	if req.DefaultExpiryDays != nil {
		if *req.DefaultExpiryDays < 1 {
			return settings.ReferralSettings{}, xerrors.NewValidation(settings.KeyReferralDefaultExpiryDays, "must be at least 1")
		}
		current.DefaultExpiryDays = *req.DefaultExpiryDays
		keys = append(keys, settings.KeyReferralDefaultExpiryDays)
	}
	if len(keys) == 0 {
		return current, nil
	}

	changed := make(map[string]bool, len(keys))
	for _, k := range keys {
		changed[k] = true
	}
	var rows []settings.Setting
	for _, row := range current.Rows() {
		if changed[row.Key] {
			rows = append(rows, row)
		}
	}

	err = s.tx.WithTx(ctx, func(tx pgx.Tx) error {
		return s.repo.UpsertWithTx(ctx, tx, rows)
	})
	if err != nil {
		return settings.ReferralSettings{}, err
	}

	s.logger.Info("referral settings updated", zap.Strings("keys", keys))
	s.events.Publish(ctx, events.KindSettingsUpdated, events.SettingsUpdated{Keys: keys})
	return current, nil
}

// Invalidate drops the cached settings locally and in Redis
func (s *SettingsService) Invalidate(ctx context.Context) {
	s.local.Delete(referralCacheKey)
	if s.shared == nil {
		return
	}
	if err := s.shared.Del(ctx, referralCacheKey).Err(); err != nil {
		s.logger.Warn("failed to drop shared settings cache", zap.Error(err))
	}
	if err := s.shared.Publish(ctx, InvalidationChannel, referralCacheKey).Err(); err != nil {
		s.logger.Warn("failed to broadcast settings invalidation", zap.Error(err))
	}
}

// Subscribe wires cache invalidation to settings.updated events
func (s *SettingsService) Subscribe(bus *events.Bus) {
	bus.Subscribe(events.KindSettingsUpdated, func(ctx context.Context, _ events.Event) {
		s.Invalidate(ctx)
	})
}

// ListenForInvalidations drops the local copy whenever another instance updates settings. It
// blocks until ctx is done.
func (s *SettingsService) ListenForInvalidations(ctx context.Context) {
	if s.shared == nil {
		return
	}
	sub := s.shared.Subscribe(ctx, InvalidationChannel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			s.local.Delete(msg.Payload)
			s.logger.Debug("settings cache invalidated by peer", zap.String("key", msg.Payload))
		}
	}
}

func (s *SettingsService) fromShared(ctx context.Context) (settings.ReferralSettings, bool) {
	if s.shared == nil {
		return settings.ReferralSettings{}, false
	}
	raw, err := s.shared.Get(ctx, referralCacheKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return settings.ReferralSettings{}, false
	}
	if err != nil {
		s.logger.Warn("shared settings cache unavailable", zap.Error(err))
		return settings.ReferralSettings{}, false
	}

	var rs settings.ReferralSettings
	if err := json.Unmarshal(raw, &rs); err != nil {
		s.logger.Warn("discarding corrupt shared settings", zap.Error(err))
		return settings.ReferralSettings{}, false
	}
	return rs, true
}

func (s *SettingsService) toShared(ctx context.Context, rs settings.ReferralSettings) {
	if s.shared == nil {
		return
	}
	raw, err := json.Marshal(rs)
	if err != nil {
		return
	}
	if err := s.shared.Set(ctx, referralCacheKey, raw, s.ttl).Err(); err != nil {
		s.logger.Warn("failed to populate shared settings cache", zap.Error(err))
	}
}
