// internal/service/discount/discount.go
package discount

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"isp-billing-service/internal/domain/customer"
	"isp-billing-service/internal/domain/discount"
	"isp-billing-service/internal/domain/invoice"
	"isp-billing-service/internal/domain/ledger"
	"isp-billing-service/internal/events"
	xerrors "isp-billing-service/internal/pkg/errors"
	"isp-billing-service/internal/pkg/pagination"
	"isp-billing-service/internal/repository/postgres"

	"github.com/lib/pq"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type DiscountService struct {
	discounts    discount.Repository
	applications discount.ApplicationRepository
	invoices     invoice.Repository
	customers    customer.Repository
	ledger       ledger.Repository
	tx           postgres.Transactor
	events       events.Publisher
	logger       *zap.Logger
	now          func() time.Time
}

func NewDiscountService(
	discounts discount.Repository,
	applications discount.ApplicationRepository,
	invoices invoice.Repository,
	customers customer.Repository,
	ledgerRepo ledger.Repository,
	tx postgres.Transactor,
	publisher events.Publisher,
	logger *zap.Logger,
) *DiscountService {
	return &DiscountService{
		discounts:    discounts,
		applications: applications,
		invoices:     invoices,
		customers:    customers,
		ledger:       ledgerRepo,
		tx:           tx,
		events:       publisher,
		logger:       logger,
		now:          time.Now,
	}
}

// ========== Catalog ==========

// CreateDiscount validates and stores a discount. With ApplyToExistingInvoices set, an active
// discount is applied once to the matching unpaid invoices.
func (s *DiscountService) CreateDiscount(ctx context.Context, req *discount.CreateDiscountRequest) (*discount.CreateDiscountResponse, error) {
	d := &discount.Discount{
		Name:                    strings.TrimSpace(req.Name),
		Description:             nullString(req.Description),
		DiscountType:            req.DiscountType,
		DiscountValue:           req.DiscountValue,
		TargetType:              req.TargetType,
		TargetIDs:               pq.StringArray(cleanIDs(req.TargetIDs)),
		CompensationReason:      nullString(req.CompensationReason),
		StartDate:               req.StartDate,
		EndDate:                 req.EndDate,
		Status:                  discount.StatusActive,
		ApplyToExistingInvoices: req.ApplyToExistingInvoices,
	}
	if req.MaxDiscountAmount != nil {
		d.MaxDiscountAmount = decimal.NewNullDecimal(*req.MaxDiscountAmount)
	}
	if req.Draft {
		d.Status = discount.StatusDraft
	}

	if err := Validate(d); err != nil {
		return nil, err
	}

	if err := s.discounts.Create(ctx, d); err != nil {
		s.logger.Error("failed to create discount", zap.Error(err))
		return nil, err
	}

	s.logger.Info("discount created",
		zap.Int64("discount_id", d.ID),
		zap.String("discount_type", string(d.DiscountType)),
		zap.String("target_type", string(d.TargetType)),
		zap.String("status", string(d.Status)),
	)

	resp := &discount.CreateDiscountResponse{Discount: d}
	if d.ApplyToExistingInvoices && d.IsActive() {
		n, err := s.ApplyDiscountToExistingInvoices(ctx, d.ID)
		if err != nil {
			s.logger.Error("bulk apply after create failed",
				zap.Int64("discount_id", d.ID),
				zap.Error(err),
			)
			resp.ApplyError = xerrors.MessageOrDefault(err, "")
		}
		resp.AppliedInvoices = n
	}

	s.events.Publish(ctx, events.KindDiscountCreated, events.DiscountCreated{
		DiscountID:      d.ID,
		AppliedInvoices: resp.AppliedInvoices,
	})
	return resp, nil
}

func (s *DiscountService) GetDiscount(ctx context.Context, id int64) (*discount.Discount, error) {
	return s.discounts.FindByID(ctx, id)
}

func (s *DiscountService) ListDiscounts(ctx context.Context, filters *discount.DiscountListFilters) (*discount.DiscountListResponse, error) {
	filters.Page, filters.PageSize = pagination.Normalize(filters.Page, filters.PageSize)

	items, total, err := s.discounts.List(ctx, filters)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []discount.Discount{}
	}

	return &discount.DiscountListResponse{
		Discounts:  items,
		Total:      total,
		Page:       filters.Page,
		PageSize:   filters.PageSize,
		TotalPages: pagination.TotalPages(total, filters.PageSize),
	}, nil
}

// UpdateDiscount applies a partial patch and re-validates the merged discount
func (s *DiscountService) UpdateDiscount(ctx context.Context, id int64, req *discount.UpdateDiscountRequest) (*discount.Discount, error) {
	d, err := s.discounts.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.Status == discount.StatusRetired {
		return nil, xerrors.NewConflict("status", "retired discounts cannot be modified")
	}

	if req.Name != nil {
		d.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		d.Description = nullString(*req.Description)
	}
	if req.DiscountType != nil {
		d.DiscountType = *req.DiscountType
	}
	if req.DiscountValue != nil {
		d.DiscountValue = *req.DiscountValue
	}
	if req.TargetType != nil {
		d.TargetType = *req.TargetType
	}
	if req.TargetIDs != nil {
		d.TargetIDs = pq.StringArray(cleanIDs(req.TargetIDs))
	}
	if req.CompensationReason != nil {
		d.CompensationReason = nullString(*req.CompensationReason)
	}
	if req.StartDate != nil {
		d.StartDate = *req.StartDate
	}
	if req.EndDate != nil {
		d.EndDate = *req.EndDate
	}
	if req.MaxDiscountAmount != nil {
		d.MaxDiscountAmount = decimal.NewNullDecimal(*req.MaxDiscountAmount)
	}
	if req.ClearMaxDiscount {
		d.MaxDiscountAmount = decimal.NullDecimal{}
	}

	if err := Validate(d); err != nil {
		return nil, err
	}

	if err := s.discounts.Update(ctx, d); err != nil {
		s.logger.Error("failed to update discount", zap.Int64("discount_id", id), zap.Error(err))
		return nil, err
	}

	s.logger.Info("discount updated", zap.Int64("discount_id", id))
	return d, nil
}

func (s *DiscountService) ActivateDiscount(ctx context.Context, id int64) (*discount.Discount, error) {
	return s.transition(ctx, id, discount.StatusActive)
}

func (s *DiscountService) DeactivateDiscount(ctx context.Context, id int64) (*discount.Discount, error) {
	return s.transition(ctx, id, discount.StatusDraft)
}

func (s *DiscountService) transition(ctx context.Context, id int64, to discount.Status) (*discount.Discount, error) {
	d, err := s.discounts.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.Status == to {
		return d, nil
	}
	if !discount.CanTransition(d.Status, to) {
		return nil, xerrors.NewConflict("status", fmt.Sprintf("cannot move discount from %s to %s", d.Status, to))
	}

	if err := s.discounts.UpdateStatus(ctx, id, to); err != nil {
		return nil, err
	}

	s.logger.Info("discount status changed",
		zap.Int64("discount_id", id),
		zap.String("from", string(d.Status)),
		zap.String("to", string(to)),
	)
	d.Status = to
	return d, nil
}

// DeleteDiscount retires a discount that has applications and hard-deletes one that has none
func (s *DiscountService) DeleteDiscount(ctx context.Context, id int64) (*discount.DeleteDiscountResult, error) {
	d, err := s.discounts.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	count, err := s.applications.CountByDiscount(ctx, id)
	if err != nil {
		return nil, err
	}

	if count == 0 {
		if err := s.discounts.Delete(ctx, id); err != nil {
			return nil, err
		}
		s.logger.Info("discount deleted", zap.Int64("discount_id", id))
		return &discount.DeleteDiscountResult{ID: id, Deleted: true}, nil
	}

	if d.Status != discount.StatusRetired {
		if err := s.discounts.UpdateStatus(ctx, id, discount.StatusRetired); err != nil {
			return nil, err
		}
	}
	s.logger.Info("discount retired",
		zap.Int64("discount_id", id),
		zap.Int64("applications", count),
	)
	return &discount.DeleteDiscountResult{ID: id, Retired: true}, nil
}

func (s *DiscountService) GetDiscountApplications(ctx context.Context, id int64) ([]discount.Application, error) {
	if _, err := s.discounts.FindByID(ctx, id); err != nil {
		return nil, err
	}
	apps, err := s.applications.ListByDiscount(ctx, id)
	if err != nil {
		return nil, err
	}
	if apps == nil {
		apps = []discount.Application{}
	}
	return apps, nil
}

func (s *DiscountService) GetStats(ctx context.Context) (*discount.DiscountStats, error) {
	return s.discounts.GetStats(ctx)
}

// ========== Helpers ==========

func nullString(v string) sql.NullString {
	v = strings.TrimSpace(v)
	return sql.NullString{String: v, Valid: v != ""}
}

// cleanIDs trims entries and drops blanks and duplicates, keeping order.
func cleanIDs(ids []string) []string {
	out := lo.Uniq(lo.FilterMap(ids, func(id string, _ int) (string, bool) {
		id = strings.TrimSpace(id)
		return id, id != ""
	}))
	if out == nil {
		return []string{}
	}
	return out
}
