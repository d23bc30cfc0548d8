package handler

import (
	"earnlink/internal/config"
	"earnlink/internal/service"

	"github.com/gin-gonic/gin"
)

// SetupRouter 配置路由
func SetupRouter(deps service.Dependencies, cfg *config.Config) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())

	h := NewHandler(deps, cfg)

	api := r.Group("/api/v1")
	{
		api.GET("/pricing", h.GetPricing)

		auth := api.Group("/auth")
		{
			auth.POST("/signup", h.SignUp)
			auth.POST("/login", h.Login)
			auth.POST("/admin", h.AdminLogin)
			auth.POST("/logout", h.Logout)
		}

		user := api.Group("/user")
		{
			user.GET("/me", SessionMiddleware(h.sessions), h.GetCurrentUser)
			user.GET("/detail", h.GetUser)
			user.GET("/by-code", h.GetUserByCode)
			user.GET("/transactions", h.ListUserTransactions)
		}

		referral := api.Group("/referral")
		{
			referral.GET("/tree", h.GetReferralTree)
			referral.GET("/direct", h.GetDirectReferrals)
		}

		withdraw := api.Group("/withdraw")
		{
			withdraw.POST("/request", h.RequestWithdrawal)
		}

		admin := api.Group("/admin", SessionMiddleware(h.sessions), AdminMiddleware())
		{
			admin.GET("/overview", h.AdminOverview)
			admin.GET("/users", h.AdminListUsers)
			admin.GET("/transactions", h.AdminListTransactions)
			admin.GET("/withdrawals/pending", h.AdminListPendingWithdrawals)
			admin.POST("/withdraw/approve", h.ApproveWithdrawal)
			admin.POST("/withdraw/deny", h.DenyWithdrawal)
		}
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
