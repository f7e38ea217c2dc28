package handler

import (
	"github.com/gin-gonic/gin"
)

// SetupRouter 配置路由
func SetupRouter(h *Handler, deps Dependencies) *gin.Engine {
	r := gin.New()

	// 注册中间件
	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())

	// API 路由组
	api := r.Group("/api/v1", AuthMiddleware(deps.Authenticator))
	{
		// 费率解析
		api.GET("/rates/resolve", h.ResolveRate)

		// 来款与分配
		api.POST("/party-payments", h.RecordPayment)
		api.GET("/party-payments/:id", h.GetPayment)
		api.POST("/payment-allocations", h.Allocate)
		api.DELETE("/payment-allocations/:id", h.ReverseAllocation)

		// 发票
		invoices := api.Group("/invoices")
		{
			invoices.POST("", h.CreateInvoice)
			invoices.GET("/:id", h.GetInvoice)
			invoices.GET("/:id/allocations", h.ListInvoiceAllocations)
		}

		// 费率维护
		api.GET("/rate-audits", h.ListRateAudits)
		rates := api.Group("/party-rate-slabs")
		{
			rates.GET("", h.ListPartyRateSlabs)
			rates.POST("", h.CreatePartyRateSlab)
			rates.PUT("/:id", h.UpdatePartyRateSlab)
			rates.POST("/:id/deactivate", h.DeactivatePartyRateSlab)
		}
		api.GET("/rate-defaults", h.ListRateDefaults)
		api.PUT("/rate-defaults", h.UpsertRateDefault)

		// 基础数据
		slabs := api.Group("/weight-slabs")
		{
			slabs.GET("", h.ListWeightSlabs)
			slabs.GET("/find", h.FindWeightSlab)
			slabs.POST("", h.CreateWeightSlab)
			slabs.POST("/:id/deactivate", h.DeactivateWeightSlab)
		}
		api.GET("/service-types", h.ListServiceTypes)
		api.PUT("/service-types", h.UpsertServiceType)
		api.GET("/modes", h.ListModes)
		api.PUT("/modes", h.UpsertMode)
		api.GET("/distance-slabs", h.ListDistanceSlabs)
		api.PUT("/distance-slabs", h.UpsertDistanceSlab)
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
