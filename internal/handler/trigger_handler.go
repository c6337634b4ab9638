package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rpicam-archiver/rpicam-archiver-go/internal/models"
	"github.com/rpicam-archiver/rpicam-archiver-go/internal/scheduler"
	"github.com/rpicam-archiver/rpicam-archiver-go/pkg/logger"
	"go.uber.org/zap"
)

// StatusSource exposes the scheduler's status.
type StatusSource interface {
	Status() scheduler.Status
}

// Triggerer queues on-demand runs. *scheduler.Scheduler implements it.
type Triggerer interface {
	StatusSource
	Trigger(kind scheduler.Kind, date string) (scheduler.Request, error)
}

// TriggerHandler serves scheduler status and on-demand runs.
type TriggerHandler struct {
	scheduler Triggerer
}

// NewTriggerHandler creates a new TriggerHandler.
func NewTriggerHandler(s Triggerer) *TriggerHandler {
	return &TriggerHandler{scheduler: s}
}

// GetStatus returns the scheduler snapshot.
func (h *TriggerHandler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.scheduler.Status())
}

// TriggerScrape queues a fetch-and-purge run.
func (h *TriggerHandler) TriggerScrape(c *gin.Context) {
	h.trigger(c, scheduler.KindScrape, "")
}

// TriggerDaily queues a daily run for the date query parameter, or today.
func (h *TriggerHandler) TriggerDaily(c *gin.Context) {
	h.trigger(c, scheduler.KindDaily, c.Query("date"))
}

func (h *TriggerHandler) trigger(c *gin.Context, kind scheduler.Kind, date string) {
	req, err := h.scheduler.Trigger(kind, date)
	if err != nil {
		h.handleError(c, err)
		return
	}

	logger.Log.Info("Stage triggered",
		zap.String("id", req.ID.String()),
		zap.String("kind", string(kind)),
		zap.String("date", date),
	)
	c.JSON(http.StatusAccepted, req)
}

func (h *TriggerHandler) handleError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	title := "Internal Server Error"

	switch {
	case errors.Is(err, scheduler.ErrInvalidDate):
		status, title = http.StatusBadRequest, "Bad Request"
	case errors.Is(err, scheduler.ErrQueueFull):
		status, title = http.StatusConflict, "Conflict"
	case errors.Is(err, scheduler.ErrNotRunning):
		status, title = http.StatusServiceUnavailable, "Service Unavailable"
	default:
		logger.Log.Error("Failed to trigger stage", zap.Error(err))
	}

	c.JSON(status, models.ErrorResponse{
		Timestamp: time.Now(),
		Status:    status,
		Error:     title,
		Message:   err.Error(),
		Path:      c.Request.URL.Path,
	})
}
