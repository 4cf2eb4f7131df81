package handler

import (
	"printpay/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// SetupRouter wires middleware and routes.
func SetupRouter(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())

	h := NewHandler(db, rdb, cfg)

	api := r.Group("/api/v1")
	{
		wallet := api.Group("/wallet")
		{
			wallet.GET("", h.GetWallet)
			wallet.GET("/balance", h.GetBalance)
			wallet.POST("/pay", h.PayFromWallet)
			wallet.POST("/topup", h.CreateTopUp)
			wallet.GET("/transactions", h.GetTransactionHistory)
			wallet.POST("/refund", h.Refund)
		}

		payment := api.Group("/payment")
		{
			payment.POST("/order", h.CreateOrderPayment)
			payment.GET("/detail", h.GetOrderPayment)
			payment.POST("/webhook", h.Webhook)
		}
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
