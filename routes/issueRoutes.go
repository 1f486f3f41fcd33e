package routes

import (
	"civicdispatch-be/controllers"
	"civicdispatch-be/middlewares"

	"github.com/gin-gonic/gin"
)

// IssueRoutes sets up the issue routes
func IssueRoutes(r *gin.Engine) {
	issue := r.Group("/api/issues")
	{
		issue.POST("", middlewares.AuthMiddleware(), middlewares.IssueRateLimiter(10), controllers.CreateIssue)
		issue.POST("/check-duplicate", middlewares.AuthMiddleware(), controllers.CheckDuplicate)
		issue.GET("/nearby", controllers.NearbyIssues)
		issue.GET("/bbox", controllers.BBoxIssues)
		issue.GET("/recent", controllers.RecentIssues)
		issue.GET("/my", middlewares.AuthMiddleware(), controllers.MyIssues)
		issue.POST("/:id/like", middlewares.AuthMiddleware(), controllers.LikeIssue)
		issue.POST("/assign", controllers.AssignIssue)
	}
}
