// internal/service/referral/referral.go
package referral

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"io"
	"strings"
	"time"

	"isp-billing-service/internal/domain/customer"
	"isp-billing-service/internal/domain/ledger"
	"isp-billing-service/internal/domain/referral"
	"isp-billing-service/internal/domain/settings"
	"isp-billing-service/internal/events"
	xerrors "isp-billing-service/internal/pkg/errors"
	"isp-billing-service/internal/pkg/pagination"
	"isp-billing-service/internal/repository/postgres"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// SettingsProvider supplies the typed referral settings.
type SettingsProvider interface {
	ReferralSettings(ctx context.Context) (settings.ReferralSettings, error)
}

type ReferralService struct {
	codes        referral.CodeRepository
	transactions referral.TransactionRepository
	marketing    referral.MarketingRepository
	customers    customer.Repository
	ledger       ledger.Repository
	tx           postgres.Transactor
	settings     SettingsProvider
	events       events.Publisher
	logger       *zap.Logger

	now    func() time.Time
	random io.Reader
}

func NewReferralService(
	codes referral.CodeRepository,
	transactions referral.TransactionRepository,
	marketing referral.MarketingRepository,
	customers customer.Repository,
	ledgerRepo ledger.Repository,
	tx postgres.Transactor,
	settingsProvider SettingsProvider,
	publisher events.Publisher,
	logger *zap.Logger,
) *ReferralService {
	return &ReferralService{
		codes:        codes,
		transactions: transactions,
		marketing:    marketing,
		customers:    customers,
		ledger:       ledgerRepo,
		tx:           tx,
		settings:     settingsProvider,
		events:       publisher,
		logger:       logger,
		now:          time.Now,
		random:       rand.Reader,
	}
}

// ========== Codes ==========

// CreateReferralCode issues a personal code. A customer holds at most one active code.
func (s *ReferralService) CreateReferralCode(ctx context.Context, customerID int64, opts referral.CodeOptions) (*referral.ReferralCode, error) {
	if _, err := s.customers.FindByID(ctx, customerID); err != nil {
		return nil, err
	}

	existing, err := s.codes.FindActiveByCustomer(ctx, customerID)
	if err != nil && !errors.Is(err, xerrors.ErrNotFound) {
		return nil, err
	}
	if existing != nil {
		return nil, xerrors.NewConflict("customer_id", "customer already has an active referral code "+existing.Code)
	}

	c, err := s.newCode(ctx, sql.NullInt64{Int64: customerID, Valid: true}, opts)
	if err != nil {
		return nil, err
	}

	err = s.tx.WithTx(ctx, func(tx pgx.Tx) error {
		return s.codes.CreateWithTx(ctx, tx, c)
	})
	if err != nil {
		s.logger.Error("failed to create referral code", zap.Int64("customer_id", customerID), zap.Error(err))
		return nil, err
	}

	s.logger.Info("referral code created",
		zap.Int64("customer_id", customerID),
		zap.String("code", c.Code),
		zap.Int("max_uses", c.MaxUses),
	)
	return c, nil
}

// newCode builds an unsaved active code with the configured defaults applied.
func (s *ReferralService) newCode(ctx context.Context, owner sql.NullInt64, opts referral.CodeOptions) (*referral.ReferralCode, error) {
	cfg, err := s.settings.ReferralSettings(ctx)
	if err != nil {
		return nil, err
	}
	if opts.MaxUses < 0 {
		return nil, xerrors.NewValidation("max_uses", "must be at least 1")
	}
	if opts.ExpiryDays < 0 {
		return nil, xerrors.NewValidation("expiry_days", "must be at least 1")
	}
	if opts.MaxUses == 0 {
		opts.MaxUses = cfg.DefaultMaxUses
	}
	if opts.ExpiryDays == 0 {
		opts.ExpiryDays = cfg.DefaultExpiryDays
	}

	code, err := s.GenerateReferralCode(ctx)
	if err != nil {
		return nil, err
	}

	return &referral.ReferralCode{
		CustomerID: owner,
		Code:       code,
		MaxUses:    opts.MaxUses,
		ExpiresAt:  s.now().AddDate(0, 0, opts.ExpiryDays),
		IsActive:   true,
	}, nil
}

func (s *ReferralService) GetCustomerReferralCode(ctx context.Context, customerID int64) (*referral.ReferralCode, error) {
	return s.codes.FindActiveByCustomer(ctx, customerID)
}

func (s *ReferralService) DeactivateReferralCode(ctx context.Context, id int64) error {
	if err := s.codes.Deactivate(ctx, id); err != nil {
		return err
	}
	s.logger.Info("referral code deactivated", zap.Int64("referral_code_id", id))
	return nil
}

// ========== Reporting ==========

func (s *ReferralService) GetReferralHistory(ctx context.Context, filters *referral.HistoryFilters) (*referral.HistoryResponse, error) {
	filters.Page, filters.PageSize = pagination.Normalize(filters.Page, filters.PageSize)

	items, total, err := s.transactions.List(ctx, filters)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []referral.Transaction{}
	}

	return &referral.HistoryResponse{
		Transactions: items,
		Total:        total,
		Page:         filters.Page,
		PageSize:     filters.PageSize,
		TotalPages:   pagination.TotalPages(total, filters.PageSize),
	}, nil
}

func (s *ReferralService) GetReferralStats(ctx context.Context) (*referral.ReferralStats, error) {
	return s.transactions.GetStats(ctx)
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
