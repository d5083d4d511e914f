package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/odai-awartani/wasselny/internal/api/dto"
	"github.com/odai-awartani/wasselny/internal/coordinator"
	"github.com/odai-awartani/wasselny/internal/domain/booking"
	"github.com/odai-awartani/wasselny/internal/domain/ride"
	apperrors "github.com/odai-awartani/wasselny/pkg/errors"
	"github.com/odai-awartani/wasselny/pkg/logger"
	"github.com/odai-awartani/wasselny/pkg/monitoring"
	"github.com/odai-awartani/wasselny/pkg/websocket"
)

// Handlers holds all handler dependencies
type Handlers struct {
	Coordinator *coordinator.Coordinator
	Rides       ride.Repository
	Requests    booking.Repository
	Hub         *websocket.Hub
	Monitoring  *monitoring.NewRelicApp
	Logger      *logger.Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(
	coord *coordinator.Coordinator,
	rides ride.Repository,
	requests booking.Repository,
	hub *websocket.Hub,
	nrApp *monitoring.NewRelicApp,
	log *logger.Logger,
) *Handlers {
	return &Handlers{
		Coordinator: coord,
		Rides:       rides,
		Requests:    requests,
		Hub:         hub,
		Monitoring:  nrApp,
		Logger:      log,
	}
}

// recordTransition mirrors each lifecycle outcome into New Relic
func (h *Handlers) recordTransition(action string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = apperrors.GetAppError(err).Code
	}
	h.Monitoring.RecordTransition(action, outcome)
}

// respondError maps a coordinator error onto its HTTP shape
func (h *Handlers) respondError(c *gin.Context, err error) {
	appErr := apperrors.GetAppError(err)
	if appErr.Status >= 500 {
		h.Logger.Error("Request failed",
			logger.String("path", c.FullPath()),
			logger.Err(err),
		)
	}
	c.JSON(appErr.Status, dto.ErrorResponse{
		Code:    appErr.Code,
		Message: appErr.Message,
	})
}
