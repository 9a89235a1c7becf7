package api

import (
    "errors"
    "fmt"
    "net/http"
    "strings"

    "voiceapi/config"
    "voiceapi/task"
    "voiceapi/voices"

    "github.com/gin-gonic/gin"
)

type Handler struct {
    scheduler *task.Scheduler
    status    *task.StatusService
    voices    *voices.Registry
    cfg       *config.Config
}

func NewHandler(sched *task.Scheduler, status *task.StatusService, reg *voices.Registry, cfg *config.Config) *Handler {
    return &Handler{
        scheduler: sched,
        status:    status,
        voices:    reg,
        cfg:       cfg,
    }
}

type GenerateRequest struct {
    Text        string  `json:"text" binding:"required"`
    SpeakerID   int     `json:"speaker_id" binding:"required"`
    Temperature float64 `json:"temperature"`
    TopK        int     `json:"top_k"`
    Style       string  `json:"style"`
    Device      string  `json:"device"`
}

// handleGenerate accepts a generation request and returns the task id
// immediately; the work itself runs in the background.
func (h *Handler) handleGenerate(c *gin.Context) {
    var req GenerateRequest
    if err := c.ShouldBindJSON(&req); err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }

    id, err := h.scheduler.Submit(task.Request{
        Text:        req.Text,
        SpeakerID:   req.SpeakerID,
        Temperature: req.Temperature,
        TopK:        req.TopK,
        Style:       req.Style,
        Device:      req.Device,
    })
    if err != nil {
        switch {
        case errors.Is(err, task.ErrInvalidRequest):
            c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        case errors.Is(err, task.ErrBusy):
            c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
        default:
            c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create task", "details": err.Error()})
        }
        return
    }

    c.JSON(http.StatusAccepted, gin.H{"taskId": id})
}

// buildFileURL fills the canonical result.file_url for a completed task.
func (h *Handler) buildFileURL(c *gin.Context, snap *task.Snapshot) {
    if snap.Result == nil || snap.Result.FileName == "" {
        return
    }

    baseURL := h.cfg.BaseURL
    if baseURL == "" {
        scheme := "http"
        if c.Request.TLS != nil {
            scheme = "https"
        }
        baseURL = fmt.Sprintf("%s://%s", scheme, c.Request.Host)
    }
    baseURL = strings.TrimSuffix(baseURL, "/")

    snap.Result.FileURL = fmt.Sprintf("%s/audio/%s", baseURL, snap.Result.FileName)
}

// handleGetTaskStatus is the polling endpoint.
func (h *Handler) handleGetTaskStatus(c *gin.Context) {
    taskID := c.Param("taskId")
    snap, err := h.status.Get(taskID)
    if err != nil {
        c.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
        return
    }

    h.buildFileURL(c, &snap)
    c.JSON(http.StatusOK, snap)
}

// handleListTasks lists all stored tasks, newest first.
func (h *Handler) handleListTasks(c *gin.Context) {
    snaps := h.status.List()
    for i := range snaps {
        h.buildFileURL(c, &snaps[i])
    }
    c.JSON(http.StatusOK, snaps)
}

// handleCancelTask requests best-effort cancellation.
func (h *Handler) handleCancelTask(c *gin.Context) {
    taskID := c.Param("taskId")
    err := h.scheduler.Cancel(taskID)
    if err != nil {
        if errors.Is(err, task.ErrNotFound) {
            c.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
            return
        }
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }
    c.JSON(http.StatusOK, gin.H{"message": "Task cancellation requested"})
}

// handleListVoices exposes the speaker catalogue.
func (h *Handler) handleListVoices(c *gin.Context) {
    c.JSON(http.StatusOK, h.voices.List())
}

// handleGetAudio serves a generated audio file.
func (h *Handler) handleGetAudio(c *gin.Context) {
    filename := c.Param("filename")
    filePath, err := h.scheduler.OutputFilePath(filename)
    if err != nil {
        c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
        return
    }
    c.File(filePath)
}
