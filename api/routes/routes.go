package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/feichai0017/review-automation/api/handlers"
	"github.com/feichai0017/review-automation/api/middleware"
)

// SetupRoutes 配置所有路由
func SetupRoutes(r *gin.Engine, h *handlers.Handlers) {
	// 全局中间件
	r.Use(middleware.CORS())

	r.GET("/health", h.Status.Health)

	// API 版本组
	v1 := r.Group("/api/v1")

	// 批处理状态路由组
	batch := v1.Group("/batch")
	{
		batch.GET("/status", h.Status.GetStatus)
		batch.GET("/processed", h.Status.ListProcessed)
	}
}
