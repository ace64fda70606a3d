package api

import (
	"tidebase/internal/metrics"
	"tidebase/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

func RegisterRoutes(dashboard *DashboardHandler, audit *AuditHandler, query *QueryHandler, stream *StreamHandler, rdb *redis.Client, requestsPerSecond int) *gin.Engine {
	r := gin.New()

	r.Use(
		middleware.CorsMiddleware(),
		middleware.RequestID(),
		middleware.TraceMiddleware(),
		middleware.GinZapLogger(),
		middleware.GinZapRecovery(),
		middleware.HttpMiddleware(),
	)
	r.SetTrustedProxies(nil)

	r.GET("/health", dashboard.HealthCheck)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	// Writes are throttled so dashboard traffic cannot hold the endpoint
	// awake or starve its connection budget.
	writeLimiter := middleware.RateLimitMiddleware(rdb, requestsPerSecond)

	v1 := r.Group("/v1")
	{
		v1.GET("/overview", dashboard.GetOverview)

		v1.GET("/products", dashboard.ListProducts)
		v1.POST("/products", writeLimiter, dashboard.CreateProduct)
		v1.POST("/products/import", writeLimiter, dashboard.ImportProducts)
		v1.GET("/products/import/template", dashboard.ImportTemplate)
		v1.PATCH("/products/:id/stock", writeLimiter, dashboard.AdjustStock)
		v1.DELETE("/products/:id", writeLimiter, dashboard.DeleteProduct)

		v1.GET("/users", dashboard.ListUsers)
		v1.POST("/users", writeLimiter, dashboard.CreateUser)
		v1.PUT("/users/:id", writeLimiter, dashboard.UpdateUser)
		v1.DELETE("/users/:id", writeLimiter, dashboard.DeleteUser)

		v1.GET("/orders", dashboard.ListOrders)
		v1.POST("/orders", writeLimiter, dashboard.CreateOrder)
		v1.GET("/orders/:id", dashboard.GetOrder)
		v1.PATCH("/orders/:id/status", writeLimiter, dashboard.UpdateOrderStatus)

		v1.GET("/audits", audit.ListAudits)
		v1.GET("/audits/summary", audit.GetSummary)

		v1.GET("/queries", query.ListQueries)
		v1.GET("/queries/:name", query.RunQuery)

		v1.GET("/stream", stream.WatchChanges)
	}
	return r
}
