package testutil

import (
	"context"

	"isp-billing-service/internal/domain/settings"
)

// StaticSettings serves fixed referral settings.
type StaticSettings struct {
	Value settings.ReferralSettings
	Err   error
}

func DefaultSettings() *StaticSettings {
	return &StaticSettings{Value: settings.DefaultReferralSettings()}
}

func (s *StaticSettings) ReferralSettings(ctx context.Context) (settings.ReferralSettings, error) {
	return s.Value, s.Err
}
