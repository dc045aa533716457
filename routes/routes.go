package routes

import (
	"github.com/gin-gonic/gin"

	"portalti-api/controllers"
	"portalti-api/middleware"
	"portalti-api/models"
)

func SetupRoutes(router *gin.Engine) {
	// API v1 group
	v1 := router.Group("/api/v1")
	{
		// Public routes
		public := v1.Group("")
		{
			public.POST("/login", controllers.Login)

			public.GET("/health", func(c *gin.Context) {
				c.JSON(200, gin.H{
					"status":  "ok",
					"message": "PortalTI API is running",
				})
			})
		}

		// Protected routes (require authentication)
		protected := v1.Group("")
		protected.Use(middleware.AuthMiddleware())
		{
			// User profile
			protected.GET("/profile", controllers.GetProfile)
			protected.PUT("/change-password", controllers.ChangePassword)

			// Paz y Salvo workflow
			pazysalvo := protected.Group("/pazysalvo")
			{
				pazysalvo.GET("", controllers.ListPazYSalvos)
				pazysalvo.GET("/export", middleware.RequireRole(models.RoleAdmin, models.RoleSoporte), controllers.ExportPazYSalvos)
				pazysalvo.GET("/:id", controllers.GetPazYSalvo)
				pazysalvo.GET("/:id/verificar-hash", controllers.VerifyPazYSalvoHash)
				pazysalvo.GET("/:id/acta", controllers.DownloadActa)

				pazysalvo.POST("", middleware.RequireRole(models.RoleAdmin, models.RoleSoporte), controllers.CreatePazYSalvo)
				pazysalvo.POST("/:id/firmar", controllers.SignPazYSalvo)
				pazysalvo.POST("/:id/rechazar", controllers.RejectPazYSalvo)
				pazysalvo.POST("/:id/cerrar", middleware.RequireRole(models.RoleAdmin, models.RoleSoporte), controllers.ClosePazYSalvo)
				pazysalvo.POST("/:id/excepciones", middleware.RequireRole(models.RoleAdmin, models.RoleSoporte), controllers.CreatePazYSalvoException)
			}

			// Employee assets (read-only feed for the snapshot preview)
			protected.GET("/empleados/:id/activos", controllers.GetEmployeeAssets)

			// Notifications
			notifications := protected.Group("/notifications")
			{
				notifications.GET("", controllers.GetMyNotifications)
				notifications.GET("/unread-count", controllers.GetUnreadCount)
				notifications.PUT("/:id/read", controllers.MarkNotificationRead)
				notifications.PUT("/read-all", controllers.MarkAllNotificationsRead)
			}

			// Presence
			presence := protected.Group("/presence")
			{
				presence.POST("/heartbeat", controllers.Heartbeat)
				presence.GET("/online", controllers.GetOnlineUsers)
			}
		}

	}

	// 404 catch-all
	router.NoRoute(func(c *gin.Context) {
		c.JSON(404, gin.H{"error": "Endpoint not found"})
	})
}
