// internal/handlers/discount/discount.go
package discount

import (
	"net/http"

	"isp-billing-service/internal/domain/discount"
	"isp-billing-service/internal/handlers"
	"isp-billing-service/internal/pkg/response"
	service "isp-billing-service/internal/service/discount"

	"github.com/gin-gonic/gin"
)

type DiscountHandler struct {
	discountService *service.DiscountService
}

func NewDiscountHandler(discountService *service.DiscountService) *DiscountHandler {
	return &DiscountHandler{
		discountService: discountService,
	}
}

// CreateDiscount creates a compensation discount, optionally applying it to open invoices
func (h *DiscountHandler) CreateDiscount(c *gin.Context) {
	var req discount.CreateDiscountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	result, err := h.discountService.CreateDiscount(c.Request.Context(), &req)
	if err != nil {
		response.FromError(c, "failed to create discount", err)
		return
	}

	response.Success(c, http.StatusCreated, "discount created successfully", result)
}

// GetDiscount retrieves a discount by ID
func (h *DiscountHandler) GetDiscount(c *gin.Context) {
	id, err := handlers.ParamID(c, "id")
	if err != nil {
		response.FromError(c, "invalid discount ID", err)
		return
	}

	result, err := h.discountService.GetDiscount(c.Request.Context(), id)
	if err != nil {
		response.FromError(c, "discount not found", err)
		return
	}

	response.Success(c, http.StatusOK, "discount retrieved", result)
}

// ListDiscounts retrieves discounts with filters
func (h *DiscountHandler) ListDiscounts(c *gin.Context) {
	var filters discount.DiscountListFilters
	if err := c.ShouldBindQuery(&filters); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid query parameters", err)
		return
	}

	result, err := h.discountService.ListDiscounts(c.Request.Context(), &filters)
	if err != nil {
		response.FromError(c, "failed to list discounts", err)
		return
	}

	response.Success(c, http.StatusOK, "discounts retrieved", result)
}

// UpdateDiscount patches a discount that is not retired
func (h *DiscountHandler) UpdateDiscount(c *gin.Context) {
	id, err := handlers.ParamID(c, "id")
	if err != nil {
		response.FromError(c, "invalid discount ID", err)
		return
	}

	var req discount.UpdateDiscountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	result, err := h.discountService.UpdateDiscount(c.Request.Context(), id, &req)
	if err != nil {
		response.FromError(c, "failed to update discount", err)
		return
	}

	response.Success(c, http.StatusOK, "discount updated successfully", result)
}

func (h *DiscountHandler) ActivateDiscount(c *gin.Context) {
	id, err := handlers.ParamID(c, "id")
	if err != nil {
		response.FromError(c, "invalid discount ID", err)
		return
	}

	result, err := h.discountService.ActivateDiscount(c.Request.Context(), id)
	if err != nil {
		response.FromError(c, "failed to activate discount", err)
		return
	}

	response.Success(c, http.StatusOK, "discount activated", result)
}

func (h *DiscountHandler) DeactivateDiscount(c *gin.Context) {
	id, err := handlers.ParamID(c, "id")
	if err != nil {
		response.FromError(c, "invalid discount ID", err)
		return
	}

	result, err := h.discountService.DeactivateDiscount(c.Request.Context(), id)
	if err != nil {
		response.FromError(c, "failed to deactivate discount", err)
		return
	}

	response.Success(c, http.StatusOK, "discount deactivated", result)
}

// DeleteDiscount removes an unused discount or retires one that was applied
func (h *DiscountHandler) DeleteDiscount(c *gin.Context) {
	id, err := handlers.ParamID(c, "id")
	if err != nil {
		response.FromError(c, "invalid discount ID", err)
		return
	}

	result, err := h.discountService.DeleteDiscount(c.Request.Context(), id)
	if err != nil {
		response.FromError(c, "failed to delete discount", err)
		return
	}

	message := "discount deleted"
	if result.Retired {
		message = "discount retired, it is referenced by invoices"
	}
	response.Success(c, http.StatusOK, message, result)
}

// ApplyToExistingInvoices credits an active discount to the open invoices it targets
func (h *DiscountHandler) ApplyToExistingInvoices(c *gin.Context) {
	id, err := handlers.ParamID(c, "id")
	if err != nil {
		response.FromError(c, "invalid discount ID", err)
		return
	}

	applied, err := h.discountService.ApplyDiscountToExistingInvoices(c.Request.Context(), id)
	if err != nil {
		response.FromError(c, "failed to apply discount", err)
		return
	}

	response.Success(c, http.StatusOK, "discount applied to existing invoices", gin.H{
		"discount_id":      id,
		"applied_invoices": applied,
	})
}

func (h *DiscountHandler) GetDiscountApplications(c *gin.Context) {
	id, err := handlers.ParamID(c, "id")
	if err != nil {
		response.FromError(c, "invalid discount ID", err)
		return
	}

	result, err := h.discountService.GetDiscountApplications(c.Request.Context(), id)
	if err != nil {
		response.FromError(c, "failed to get discount applications", err)
		return
	}

	response.Success(c, http.StatusOK, "discount applications retrieved", result)
}

// GetApplicableDiscounts previews the discounts a customer would get on an invoice amount
func (h *DiscountHandler) GetApplicableDiscounts(c *gin.Context) {
	customerID, err := handlers.RequiredQueryID(c, "customer_id")
	if err != nil {
		response.FromError(c, "invalid customer ID", err)
		return
	}

	amount, err := handlers.QueryAmount(c, "amount")
	if err != nil {
		response.FromError(c, "invalid amount", err)
		return
	}

	applicable, err := h.discountService.GetApplicableDiscounts(c.Request.Context(), customerID, amount)
	if err != nil {
		response.FromError(c, "failed to resolve discounts", err)
		return
	}

	if applicable == nil {
		applicable = []discount.Applicable{}
	}
	best, ok := service.BestDiscount(applicable)
	data := gin.H{"discounts": applicable}
	if ok {
		data["best"] = best
	}
	response.Success(c, http.StatusOK, "applicable discounts retrieved", data)
}

func (h *DiscountHandler) GetStats(c *gin.Context) {
	result, err := h.discountService.GetStats(c.Request.Context())
	if err != nil {
		response.FromError(c, "failed to get discount stats", err)
		return
	}

	response.Success(c, http.StatusOK, "discount stats retrieved", result)
}
