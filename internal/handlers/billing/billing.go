// internal/handlers/billing/billing.go
package billing

import (
	"net/http"

	"isp-billing-service/internal/domain/billing"
	"isp-billing-service/internal/domain/invoice"
	"isp-billing-service/internal/handlers"
	"isp-billing-service/internal/pkg/response"
	service "isp-billing-service/internal/service/billing"

	"github.com/gin-gonic/gin"
)

type BillingHandler struct {
	billingService *service.BillingService
}

func NewBillingHandler(billingService *service.BillingService) *BillingHandler {
	return &BillingHandler{
		billingService: billingService,
	}
}

// CalculateDiscounts returns the combined discount for an amount. Pending referral credit is
// consumed by the call.
func (h *BillingHandler) CalculateDiscounts(c *gin.Context) {
	var req billing.CalculateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	result, err := h.billingService.CalculateInvoiceDiscounts(c.Request.Context(), req.CustomerID, req.OriginalAmount, billing.InvoiceContext{
		InvoiceID: req.InvoiceID,
	})
	if err != nil {
		response.FromError(c, "failed to calculate discounts", err)
		return
	}

	response.Success(c, http.StatusOK, "discounts calculated", result)
}

// CreateInvoice creates an invoice with referral credit and compensation applied
func (h *BillingHandler) CreateInvoice(c *gin.Context) {
	var req invoice.CreateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	result, err := h.billingService.CreateInvoiceWithDiscounts(c.Request.Context(), &req)
	if err != nil {
		response.FromError(c, "failed to create invoice", err)
		return
	}

	response.Success(c, http.StatusCreated, "invoice created successfully", result)
}

func (h *BillingHandler) GetInvoiceDiscounts(c *gin.Context) {
	id, err := handlers.ParamID(c, "id")
	if err != nil {
		response.FromError(c, "invalid invoice ID", err)
		return
	}

	result, err := h.billingService.GetInvoiceDiscounts(c.Request.Context(), id)
	if err != nil {
		response.FromError(c, "invoice not found", err)
		return
	}

	response.Success(c, http.StatusOK, "invoice discounts retrieved", result)
}

// RecalculateInvoice recomputes the discounts of an unpaid invoice
func (h *BillingHandler) RecalculateInvoice(c *gin.Context) {
	id, err := handlers.ParamID(c, "id")
	if err != nil {
		response.FromError(c, "invalid invoice ID", err)
		return
	}

	result, err := h.billingService.UpdateInvoiceDiscounts(c.Request.Context(), id)
	if err != nil {
		response.FromError(c, "failed to recalculate invoice", err)
		return
	}

	response.Success(c, http.StatusOK, "invoice discounts recalculated", result)
}

// Reconcile recalculates every unpaid invoice, or only those of ?customer_id=
func (h *BillingHandler) Reconcile(c *gin.Context) {
	customerID, err := handlers.QueryID(c, "customer_id")
	if err != nil {
		response.FromError(c, "invalid customer ID", err)
		return
	}

	result, err := h.billingService.ApplyDiscountsToUnpaidInvoices(c.Request.Context(), customerID)
	if err != nil {
		response.FromError(c, "failed to reconcile invoices", err)
		return
	}

	response.Success(c, http.StatusOK, "unpaid invoices reconciled", result)
}
