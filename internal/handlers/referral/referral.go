// internal/handlers/referral/referral.go
package referral

import (
	"net/http"

	"isp-billing-service/internal/domain/referral"
	"isp-billing-service/internal/handlers"
	"isp-billing-service/internal/pkg/response"
	service "isp-billing-service/internal/service/referral"

	"github.com/gin-gonic/gin"
)

type ReferralHandler struct {
	referralService *service.ReferralService
}

func NewReferralHandler(referralService *service.ReferralService) *ReferralHandler {
	return &ReferralHandler{
		referralService: referralService,
	}
}

// ========== Codes ==========

// CreateReferralCode issues a personal referral code for a customer
func (h *ReferralHandler) CreateReferralCode(c *gin.Context) {
	var req referral.CreateCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	result, err := h.referralService.CreateReferralCode(c.Request.Context(), req.CustomerID, referral.CodeOptions{
		MaxUses:    req.MaxUses,
		ExpiryDays: req.ExpiryDays,
	})
	if err != nil {
		response.FromError(c, "failed to create referral code", err)
		return
	}

	response.Success(c, http.StatusCreated, "referral code created successfully", result)
}

func (h *ReferralHandler) GetCustomerReferralCode(c *gin.Context) {
	customerID, err := handlers.ParamID(c, "customer_id")
	if err != nil {
		response.FromError(c, "invalid customer ID", err)
		return
	}

	result, err := h.referralService.GetCustomerReferralCode(c.Request.Context(), customerID)
	if err != nil {
		response.FromError(c, "referral code not found", err)
		return
	}

	response.Success(c, http.StatusOK, "referral code retrieved", result)
}

func (h *ReferralHandler) DeactivateReferralCode(c *gin.Context) {
	id, err := handlers.ParamID(c, "id")
	if err != nil {
		response.FromError(c, "invalid referral code ID", err)
		return
	}

	if err := h.referralService.DeactivateReferralCode(c.Request.Context(), id); err != nil {
		response.FromError(c, "failed to deactivate referral code", err)
		return
	}

	response.Success(c, http.StatusOK, "referral code deactivated", gin.H{"id": id})
}

// ========== Redemption ==========

// ValidateReferralCode checks a code without consuming it. Rejections are a 200 with valid=false.
func (h *ReferralHandler) ValidateReferralCode(c *gin.Context) {
	var req referral.ValidateCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	result, err := h.referralService.ValidateReferralCode(c.Request.Context(), req.Code, req.NewCustomerID)
	if err != nil {
		response.FromError(c, "failed to validate referral code", err)
		return
	}

	// The code row is internal; callers only need the verdict.
	result.Code = nil
	response.Success(c, http.StatusOK, "referral code checked", result)
}

// ApplyReferral redeems a code for a newly registered customer
func (h *ReferralHandler) ApplyReferral(c *gin.Context) {
	var req referral.ApplyReferralRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	result, err := h.referralService.ApplyReferral(c.Request.Context(), &req)
	if err != nil {
		response.FromError(c, "failed to apply referral", err)
		return
	}

	response.Success(c, http.StatusCreated, "referral applied successfully", result)
}

// ApplyReferralBenefits consumes a customer's pending referral credit outside of invoicing
func (h *ReferralHandler) ApplyReferralBenefits(c *gin.Context) {
	var req referral.ApplyBenefitsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	result, err := h.referralService.ApplyReferralBenefits(c.Request.Context(), req.CustomerID, req.BillingAmount)
	if err != nil {
		response.FromError(c, "failed to apply referral benefits", err)
		return
	}

	response.Success(c, http.StatusOK, "referral benefits applied", result)
}

// ========== Reporting ==========

func (h *ReferralHandler) GetReferralHistory(c *gin.Context) {
	var filters referral.HistoryFilters
	if err := c.ShouldBindQuery(&filters); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid query parameters", err)
		return
	}

	result, err := h.referralService.GetReferralHistory(c.Request.Context(), &filters)
	if err != nil {
		response.FromError(c, "failed to get referral history", err)
		return
	}

	response.Success(c, http.StatusOK, "referral history retrieved", result)
}

func (h *ReferralHandler) GetReferralStats(c *gin.Context) {
	result, err := h.referralService.GetReferralStats(c.Request.Context())
	if err != nil {
		response.FromError(c, "failed to get referral stats", err)
		return
	}

	response.Success(c, http.StatusOK, "referral stats retrieved", result)
}

// ========== Marketing ==========

func (h *ReferralHandler) CreateMarketingReferral(c *gin.Context) {
	var req referral.CreateMarketingReferralRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	result, err := h.referralService.CreateMarketingReferral(c.Request.Context(), &req)
	if err != nil {
		response.FromError(c, "failed to create marketing referral", err)
		return
	}

	response.Success(c, http.StatusCreated, "marketing referral created successfully", result)
}

func (h *ReferralHandler) MarkMarketingReferralPaid(c *gin.Context) {
	id, err := handlers.ParamID(c, "id")
	if err != nil {
		response.FromError(c, "invalid marketing referral ID", err)
		return
	}

	result, err := h.referralService.MarkMarketingReferralPaid(c.Request.Context(), id)
	if err != nil {
		response.FromError(c, "failed to mark marketing referral paid", err)
		return
	}

	response.Success(c, http.StatusOK, "marketing referral marked as paid", result)
}
