package api

import (
    "voiceapi/config"
    "voiceapi/task"
    "voiceapi/voices"

    "github.com/gin-gonic/gin"
)

func SetupRouter(sched *task.Scheduler, status *task.StatusService, reg *voices.Registry, cfg *config.Config) *gin.Engine {
    r := gin.Default()
    r.Use(RequestIDMiddleware())
    h := NewHandler(sched, status, reg, cfg)

    // Health check
    r.GET("/health", func(c *gin.Context) {
        c.JSON(200, gin.H{"status": "ok"})
    })

    // Output artifacts are served under a conventional path so clients can
    // derive a download URL from the task id alone.
    r.GET("/audio/:filename", h.handleGetAudio)

    v1 := r.Group("/api/v1")
    v1.Use(AuthMiddleware(cfg))
    {
        v1.POST("/generate", h.handleGenerate)
        v1.GET("/tasks", h.handleListTasks)
        v1.GET("/tasks/:taskId", h.handleGetTaskStatus)
        v1.PATCH("/tasks/:taskId/cancel", h.handleCancelTask)
        v1.GET("/voices", h.handleListVoices)
    }
    return r
}
