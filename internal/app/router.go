// internal/app/router.go
package app

import (
	billingHandler "isp-billing-service/internal/handlers/billing"
	discountHandler "isp-billing-service/internal/handlers/discount"
	referralHandler "isp-billing-service/internal/handlers/referral"
	settingsHandler "isp-billing-service/internal/handlers/settings"
	wsHandler "isp-billing-service/internal/handlers/websocket"
	"isp-billing-service/internal/middleware"

	"github.com/gin-gonic/gin"
)

type Handlers struct {
	DiscountHandler *discountHandler.DiscountHandler
	ReferralHandler *referralHandler.ReferralHandler
	BillingHandler  *billingHandler.BillingHandler
	SettingsHandler *settingsHandler.SettingsHandler
	WSHandler       *wsHandler.WebSocketHandler
	AuthMiddleware  *middleware.AuthMiddleware

	// PublicLimit throttles the referral endpoints reachable during customer signup.
	PublicLimit gin.HandlerFunc
}

func SetupRouter(r *gin.Engine, h *Handlers) {
	api := r.Group("/api/v1")

	// ==================== Health Check ====================
	api.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "version": "1.0.0"})
	})

	// ==================== WebSocket ====================
	r.GET("/ws/admin", append(h.AuthMiddleware.BillingAdmin(), h.WSHandler.HandleConnection)...)

	// ==================== Referral Signup Routes ====================
	signup := api.Group("/referrals")
	signup.Use(h.PublicLimit)
	{
		signup.POST("/validate", h.ReferralHandler.ValidateReferralCode)
		signup.POST("/apply", h.AuthMiddleware.Auth(), h.ReferralHandler.ApplyReferral)
	}

	// ==================== Billing Admin Routes ====================
	admin := api.Group("")
	admin.Use(h.AuthMiddleware.BillingAdmin()...)
	{
		discounts := admin.Group("/discounts")
		{
			discounts.POST("", h.DiscountHandler.CreateDiscount)
			discounts.GET("", h.DiscountHandler.ListDiscounts)
			discounts.GET("/applicable", h.DiscountHandler.GetApplicableDiscounts)
			discounts.GET("/stats", h.DiscountHandler.GetStats)
			discounts.GET("/:id", h.DiscountHandler.GetDiscount)
			discounts.PUT("/:id", h.DiscountHandler.UpdateDiscount)
			discounts.DELETE("/:id", h.DiscountHandler.DeleteDiscount)
			discounts.POST("/:id/activate", h.DiscountHandler.ActivateDiscount)
			discounts.POST("/:id/deactivate", h.DiscountHandler.DeactivateDiscount)
			discounts.POST("/:id/apply-existing", h.DiscountHandler.ApplyToExistingInvoices)
			discounts.GET("/:id/applications", h.DiscountHandler.GetDiscountApplications)
		}

		referrals := admin.Group("/referrals")
		{
			referrals.POST("/codes", h.ReferralHandler.CreateReferralCode)
			referrals.GET("/codes/customer/:customer_id", h.ReferralHandler.GetCustomerReferralCode)
			referrals.POST("/codes/:id/deactivate", h.ReferralHandler.DeactivateReferralCode)
			referrals.POST("/benefits/apply", h.ReferralHandler.ApplyReferralBenefits)
			referrals.GET("/history", h.ReferralHandler.GetReferralHistory)
			referrals.GET("/stats", h.ReferralHandler.GetReferralStats)
			referrals.POST("/marketing", h.ReferralHandler.CreateMarketingReferral)
			referrals.POST("/marketing/:id/pay", h.ReferralHandler.MarkMarketingReferralPaid)
		}

		billing := admin.Group("/billing")
		{
			billing.POST("/calculate", h.BillingHandler.CalculateDiscounts)
			billing.POST("/invoices", h.BillingHandler.CreateInvoice)
			billing.GET("/invoices/:id/discounts", h.BillingHandler.GetInvoiceDiscounts)
			billing.PUT("/invoices/:id/discounts", h.BillingHandler.RecalculateInvoice)
			billing.POST("/reconcile", h.BillingHandler.Reconcile)
		}

		admin.GET("/settings/referral", h.SettingsHandler.GetReferralSettings)
		admin.GET("/ws/stats", h.WSHandler.GetStats)
	}

	// ==================== Admin Only Routes ====================
	adminOnly := api.Group("/settings")
	adminOnly.Use(h.AuthMiddleware.AdminOnly()...)
	{
		adminOnly.PUT("/referral", h.SettingsHandler.UpdateReferralSettings)
	}
}
