// internal/service/referral/redeem.go
package referral

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"isp-billing-service/internal/domain/customer"
	"isp-billing-service/internal/domain/ledger"
	"isp-billing-service/internal/domain/referral"
	"isp-billing-service/internal/domain/settings"
	"isp-billing-service/internal/events"
	xerrors "isp-billing-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// ValidateReferralCode checks a code without consuming it. It fails closed: any rejection is
// reported through the result, only operational failures are returned as errors.
func (s *ReferralService) ValidateReferralCode(ctx context.Context, code string, newCustomerID *int64) (*referral.ValidationResult, error) {
	code = normalizeCode(code)
	if code == "" {
		return &referral.ValidationResult{Reason: referral.ReasonNotFound}, nil
	}

	c, err := s.codes.FindByCode(ctx, code)
	if errors.Is(err, xerrors.ErrNotFound) {
		return &referral.ValidationResult{Reason: referral.ReasonNotFound}, nil
	}
	if err != nil {
		return nil, err
	}

	switch {
	case !c.IsActive:
		return &referral.ValidationResult{Reason: referral.ReasonInactive}, nil
	case c.IsExpired(s.now()) || c.IsExhausted():
		return &referral.ValidationResult{Reason: referral.ReasonExpiredOrExhausted}, nil
	case newCustomerID != nil && c.CustomerID.Valid && c.CustomerID.Int64 == *newCustomerID:
		return &referral.ValidationResult{Reason: referral.ReasonSelfReferral}, nil
	}

	name, err := s.referrerName(ctx, c)
	if err != nil {
		return nil, err
	}
	return &referral.ValidationResult{Valid: true, ReferrerName: name, Code: c}, nil
}

func (s *ReferralService) referrerName(ctx context.Context, c *referral.ReferralCode) (string, error) {
	if c.IsFixed() {
		m, err := s.marketing.FindByCode(ctx, c.Code)
		if errors.Is(err, xerrors.ErrNotFound) {
			return "", nil
		}
		if err != nil {
			return "", err
		}
		return m.MarketerName, nil
	}

	owner, err := s.customers.FindByID(ctx, c.CustomerID.Int64)
	if errors.Is(err, xerrors.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return owner.Name, nil
}

// DecideBenefit applies the referral benefit rule. Fixed codes and codes owned by a customer
// who is not active pay cash; codes owned by an active customer earn a billing credit.
func DecideBenefit(code *referral.ReferralCode, owner *customer.Customer, cfg settings.ReferralSettings) referral.Benefit {
	if code.IsFixed() || owner == nil || !owner.IsActive() {
		return referral.Benefit{Type: referral.BenefitCash, Amount: cfg.ReferrerCashAmount}
	}
	return referral.Benefit{Type: referral.BenefitDiscount, Amount: cfg.ReferrerDiscountFixed}
}

// ApplyReferral redeems a code for a new customer. The usage increment, the customer stamp,
// the pending transaction and the installation ledger entry commit together or not at all.
func (s *ReferralService) ApplyReferral(ctx context.Context, req *referral.ApplyReferralRequest) (*referral.ApplyReferralResponse, error) {
	code := normalizeCode(req.Code)
	referredID := req.ReferredCustomerID

	result, err := s.ValidateReferralCode(ctx, code, &referredID)
	if err != nil {
		return nil, err
	}
	if !result.Valid {
		return nil, rejection(code, result.Reason)
	}
	rc := result.Code

	referred, err := s.customers.FindByID(ctx, referredID)
	if err != nil {
		return nil, err
	}
	if referred.WasReferred() {
		return nil, xerrors.NewConflict("referred_customer_id", "customer was already referred")
	}

	var owner *customer.Customer
	if !rc.IsFixed() {
		owner, err = s.customers.FindByID(ctx, rc.CustomerID.Int64)
		if err != nil && !errors.Is(err, xerrors.ErrNotFound) {
			return nil, err
		}
	}

	cfg, err := s.settings.ReferralSettings(ctx)
	if err != nil {
		return nil, err
	}
	benefit := DecideBenefit(rc, owner, cfg)
	if req.BenefitTypeHint != "" && req.BenefitTypeHint != benefit.Type {
		s.logger.Info("ignoring referral benefit hint",
			zap.String("code", code),
			zap.String("hint", string(req.BenefitTypeHint)),
			zap.String("decided", string(benefit.Type)),
		)
	}

	txn := &referral.Transaction{
		ReferrerID:     rc.CustomerID,
		ReferredID:     referredID,
		ReferralCodeID: rc.ID,
		BenefitType:    benefit.Type,
		BenefitAmount:  benefit.Amount,
		Status:         referral.TransactionPending,
	}

	err = s.tx.WithTx(ctx, func(tx pgx.Tx) error {
		ok, err := s.codes.IncrementUsageWithTx(ctx, tx, rc.ID, s.now())
		if err != nil {
			return err
		}
		if !ok {
			return xerrors.NewValidation("code", referral.ReasonExpiredOrExhausted)
		}

		var referrerID *int64
		if rc.CustomerID.Valid {
			referrerID = &rc.CustomerID.Int64
		}
		ok, err = s.customers.SetReferralWithTx(ctx, tx, referredID, referrerID, rc.Code)
		if err != nil {
			return err
		}
		if !ok {
			return xerrors.NewConflict("referred_customer_id", "customer was already referred")
		}

		if err := s.transactions.CreateWithTx(ctx, tx, txn); err != nil {
			return err
		}

		if cfg.ReferredInstallationDiscount.IsPositive() {
			if err := s.ledger.CreateWithTx(ctx, tx, &ledger.Entry{
				Category:    ledger.CategoryInstallationDiscount,
				EntryType:   ledger.EntryExpense,
				Amount:      cfg.ReferredInstallationDiscount,
				Description: fmt.Sprintf("Installation discount for %s (code %s)", referred.Name, rc.Code),
				Reference:   fmt.Sprintf("REF-INSTALL-%d", txn.ID),
				CustomerID:  sql.NullInt64{Int64: referredID, Valid: true},
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.logger.Warn("referral redemption rolled back",
			zap.String("code", code),
			zap.Int64("referred_id", referredID),
			zap.Error(err),
		)
		return nil, err
	}

	s.logger.Info("referral applied",
		zap.String("code", rc.Code),
		zap.Int64("transaction_id", txn.ID),
		zap.Int64("referred_id", referredID),
		zap.String("benefit_type", string(benefit.Type)),
		zap.String("benefit_amount", benefit.Amount.StringFixed(2)),
	)
	s.events.Publish(ctx, events.KindReferralRedeemed, events.ReferralRedeemed{
		ReferralCodeID: rc.ID,
		TransactionID:  txn.ID,
		ReferredID:     referredID,
		BenefitType:    string(benefit.Type),
		BenefitAmount:  benefit.Amount.StringFixed(2),
	})

	return &referral.ApplyReferralResponse{
		Transaction:        txn,
		Benefit:            benefit,
		InstallationCredit: cfg.ReferredInstallationDiscount,
		ReferrerName:       result.ReferrerName,
	}, nil
}

// rejection maps a validation reason onto the error taxonomy.
func rejection(code, reason string) error {
	switch reason {
	case referral.ReasonNotFound:
		return xerrors.NewNotFound("referral code", code)
	case referral.ReasonSelfReferral:
		return xerrors.NewConflict("referred_customer_id", "customers cannot redeem their own referral code")
	default:
		return xerrors.NewValidation("code", reason)
	}
}
