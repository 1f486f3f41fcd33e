package routes

import (
	"civicdispatch-be/controllers"
	"civicdispatch-be/middlewares"

	"github.com/gin-gonic/gin"
)

// StaffRoutes sets up the staff routes
func StaffRoutes(r *gin.Engine) {
	staff := r.Group("/api/staff")
	{
		staff.POST("/signup", controllers.StaffSignup)
		staff.POST("/login", controllers.StaffLogin)
		staff.POST("/token", middlewares.StaffAuthMiddleware(), controllers.SavePushToken)
		staff.GET("/tasks", middlewares.StaffAuthMiddleware(), controllers.StaffTasks)
		staff.PUT("/issues/:id/update", middlewares.StaffAuthMiddleware(), controllers.UpdateIssueStatus)
		staff.GET("/nearby/:department/:issueId", controllers.NearbyStaff)
	}
}
