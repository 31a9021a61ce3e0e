// internal/service/referral/marketing.go
package referral

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"isp-billing-service/internal/domain/ledger"
	"isp-billing-service/internal/domain/referral"
	"isp-billing-service/internal/events"
	xerrors "isp-billing-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// CreateMarketingReferral issues a fixed code for a marketer together with its tracking row
func (s *ReferralService) CreateMarketingReferral(ctx context.Context, req *referral.CreateMarketingReferralRequest) (*referral.CreateMarketingReferralResponse, error) {
	name := strings.TrimSpace(req.MarketerName)
	if name == "" {
		return nil, xerrors.NewValidation("marketer_name", "is required")
	}

	var customerID sql.NullInt64
	if req.CustomerID != nil {
		if _, err := s.customers.FindByID(ctx, *req.CustomerID); err != nil {
			return nil, err
		}
		customerID = sql.NullInt64{Int64: *req.CustomerID, Valid: true}
	}

	cfg, err := s.settings.ReferralSettings(ctx)
	if err != nil {
		return nil, err
	}
	fee := cfg.ReferrerCashAmount
	if req.FeeAmount != nil {
		if req.FeeAmount.IsNegative() {
			return nil, xerrors.NewValidation("fee_amount", "must not be negative")
		}
		fee = *req.FeeAmount
	}

	code, err := s.newCode(ctx, sql.NullInt64{}, referral.CodeOptions{MaxUses: req.MaxUses, ExpiryDays: req.ExpiryDays})
	if err != nil {
		return nil, err
	}

	m := &referral.MarketingReferral{
		MarketerName:  name,
		MarketerPhone: optional(req.MarketerPhone),
		MarketerEmail: optional(req.MarketerEmail),
		ReferralCode:  code.Code,
		CustomerID:    customerID,
		FeeAmount:     fee,
		Status:        referral.MarketingUnpaid,
	}

	err = s.tx.WithTx(ctx, func(tx pgx.Tx) error {
		if err := s.codes.CreateWithTx(ctx, tx, code); err != nil {
			return err
		}
		return s.marketing.CreateWithTx(ctx, tx, m)
	})
	if err != nil {
		s.logger.Error("failed to create marketing referral", zap.String("marketer", name), zap.Error(err))
		return nil, err
	}

	s.logger.Info("marketing referral created",
		zap.Int64("marketing_referral_id", m.ID),
		zap.String("code", code.Code),
		zap.String("marketer", name),
	)
	return &referral.CreateMarketingReferralResponse{Code: code, Marketing: m}, nil
}

// MarkMarketingReferralPaid settles a marketer's fee. Paid is terminal.
func (s *ReferralService) MarkMarketingReferralPaid(ctx context.Context, id int64) (*referral.MarketingReferral, error) {
	m, err := s.marketing.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.Status == referral.MarketingPaid {
		return nil, xerrors.NewConflict("status", "marketing referral is already paid")
	}

	now := s.now()
	err = s.tx.WithTx(ctx, func(tx pgx.Tx) error {
		ok, err := s.marketing.MarkPaidWithTx(ctx, tx, id, now)
		if err != nil {
			return err
		}
		if !ok {
			return xerrors.NewConflict("status", "marketing referral is already paid")
		}

		return s.ledger.CreateWithTx(ctx, tx, &ledger.Entry{
			Category:    ledger.CategoryMarketingFee,
			EntryType:   ledger.EntryExpense,
			Amount:      m.FeeAmount,
			Description: fmt.Sprintf("Marketing fee for %s (code %s)", m.MarketerName, m.ReferralCode),
			Reference:   fmt.Sprintf("MKT-%d", m.ID),
			CustomerID:  m.CustomerID,
		})
	})
	if err != nil {
		return nil, err
	}

	m.Status = referral.MarketingPaid
	m.PaidAt = sql.NullTime{Time: now, Valid: true}

	s.logger.Info("marketing referral paid",
		zap.Int64("marketing_referral_id", id),
		zap.String("fee_amount", m.FeeAmount.StringFixed(2)),
	)
	s.events.Publish(ctx, events.KindMarketingReferralPaid, events.MarketingReferralPaid{
		MarketingReferralID: id,
		FeeAmount:           m.FeeAmount.StringFixed(2),
	})
	return m, nil
}

func optional(v string) sql.NullString {
	v = strings.TrimSpace(v)
	return sql.NullString{String: v, Valid: v != ""}
}
