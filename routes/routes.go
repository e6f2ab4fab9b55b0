package routes

import (
	"innovation-review-api/controllers"
	"innovation-review-api/middleware"
	"innovation-review-api/models"

	"github.com/gin-gonic/gin"
)

// SetupRoutes mounts the review API. auth must authenticate the caller and set
// userID and roleID on the context.
func SetupRoutes(router *gin.Engine, h *controllers.Handler, auth gin.HandlerFunc) {
	// API v1 group
	v1 := router.Group("/api/v1")
	{
		// Public routes
		v1.GET("/health", func(c *gin.Context) {
			c.JSON(200, gin.H{
				"status":  "ok",
				"message": "Innovation Review API is running",
			})
		})

		// Protected routes (require authentication)
		protected := v1.Group("")
		protected.Use(auth)
		{
			// Template download: the owning judge or an admin
			protected.GET("/assignments/:id/template",
				middleware.RequireRole(models.RoleJudge, models.RoleAdmin), h.DownloadTemplate)

			// Submission download: the owning judge or an admin, checked per assignment
			protected.GET("/admin/assignments/:id/submission",
				middleware.RequireRole(models.RoleJudge, models.RoleAdmin), h.DownloadSubmission)

			admin := protected.Group("/admin")
			admin.Use(middleware.RequireRole(models.RoleAdmin))
			{
				admin.GET("/settings", h.GetSettings)

				admin.POST("/assignments/manual", h.AllocateJudges)
				admin.PATCH("/assignments/:id/lock", h.LockAssignment)
				admin.DELETE("/assignments/:id", h.DeleteAssignment)
				admin.GET("/assignments/:id/audit", h.GetAssignmentAudit)

				ideas := admin.Group("/ideas/:ideaId")
				{
					ideas.GET("/assignments", h.ListIdeaAssignments)
					ideas.POST("/template", h.UploadIdeaTemplate)
					ideas.POST("/final-summary", h.UploadFinalSummary)
					ideas.GET("/final-summary", h.GetFinalSummary)
					ideas.GET("/final-summary/file", h.DownloadFinalSummary)
					ideas.GET("/submissions/archive", h.DownloadSubmissionsArchive)
				}
			}

			judge := protected.Group("/judge")
			judge.Use(middleware.RequireRole(models.RoleJudge))
			{
				judge.GET("/assignments", h.ListMyAssignments)
				judge.POST("/assignments/:id/submission", h.UploadSubmission)
				judge.POST("/reviews", h.SubmitReview)
			}
		}
	}
}
