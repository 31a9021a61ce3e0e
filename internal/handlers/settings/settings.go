// internal/handlers/settings/settings.go
package settings

import (
	"net/http"

	"isp-billing-service/internal/domain/settings"
	"isp-billing-service/internal/pkg/response"
	service "isp-billing-service/internal/service/settings"

	"github.com/gin-gonic/gin"
)

type SettingsHandler struct {
	settingsService *service.SettingsService
}

func NewSettingsHandler(settingsService *service.SettingsService) *SettingsHandler {
	return &SettingsHandler{
		settingsService: settingsService,
	}
}

func (h *SettingsHandler) GetReferralSettings(c *gin.Context) {
	result, err := h.settingsService.ReferralSettings(c.Request.Context())
	if err != nil {
		response.FromError(c, "failed to load referral settings", err)
		return
	}

	response.Success(c, http.StatusOK, "referral settings retrieved", result)
}

func (h *SettingsHandler) UpdateReferralSettings(c *gin.Context) {
	var req settings.UpdateReferralSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	result, err := h.settingsService.UpdateReferralSettings(c.Request.Context(), &req)
	if err != nil {
		response.FromError(c, "failed to update referral settings", err)
		return
	}

	response.Success(c, http.StatusOK, "referral settings updated", result)
}
