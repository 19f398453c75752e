package routes

import (
	"medquest/controllers"
	"medquest/middlewares"
	"medquest/websocket"

	"github.com/gin-gonic/gin"
)

// SetupXPRoutes registers the learner facing XP endpoints
func SetupXPRoutes(router *gin.RouterGroup, ctrl *controllers.XPController, hub *websocket.Hub) {
	xp := router.Group("/xp")
	{
		xp.POST("/activities", ctrl.RecordActivity)
		xp.GET("/activities", ctrl.RecentActivities)
		xp.GET("/levels/:track", ctrl.GetTrackLevel)
		xp.GET("/overall", ctrl.GetOverallLevel)
		xp.GET("/stats", ctrl.GetUserStats)
		xp.GET("/curve/:track", ctrl.GetCurve)
		xp.GET("/leaderboard", ctrl.GetLeaderboard)
	}
	if hub != nil {
		router.GET("/ws/xp", hub.Handler)
	}
}

// SetupAdminRoutes registers the admin endpoints behind the admin role check
func SetupAdminRoutes(router *gin.RouterGroup, ctrl *controllers.XPController) {
	admin := router.Group("/admin", middlewares.RequireAdmin())
	{
		admin.DELETE("/xp/:userId/:track", ctrl.ResetTrack)
	}
}
