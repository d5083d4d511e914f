package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/odai-awartani/wasselny/internal/api/dto"
	"github.com/odai-awartani/wasselny/internal/domain/booking"
	"github.com/odai-awartani/wasselny/pkg/logger"
)

// Book handles POST /v1/rides/:id/requests
func (h *Handlers) Book(c *gin.Context) {
	rideID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ride id"})
		return
	}

	var req dto.BookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload", "details": err.Error()})
		return
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user id"})
		return
	}

	request, err := h.Coordinator.Book(c.Request.Context(), rideID, userID)
	h.recordTransition("book", err)
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.Logger.Info("Booking created via API",
		logger.String("request_id", request.ID.String()),
		logger.String("ride_id", rideID.String()),
	)
	c.JSON(http.StatusCreated, request)
}

// lifecycleAction binds the shared body shape and runs one coordinator
// action against a request id
func (h *Handlers) lifecycleAction(c *gin.Context, action string, run func(requestID, actorID uuid.UUID) error) {
	requestID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request id"})
		return
	}

	var body dto.ActionRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload", "details": err.Error()})
		return
	}
	actorID, err := uuid.Parse(body.UserID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user id"})
		return
	}

	err = run(requestID, actorID)
	h.recordTransition(action, err)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Accept handles POST /v1/requests/:id/accept
func (h *Handlers) Accept(c *gin.Context) {
	h.lifecycleAction(c, "accept", func(requestID, actorID uuid.UUID) error {
		return h.Coordinator.Accept(c.Request.Context(), requestID, actorID)
	})
}

// Reject handles POST /v1/requests/:id/reject
func (h *Handlers) Reject(c *gin.Context) {
	h.lifecycleAction(c, "reject", func(requestID, actorID uuid.UUID) error {
		return h.Coordinator.Reject(c.Request.Context(), requestID, actorID)
	})
}

// CheckIn handles POST /v1/requests/:id/checkin
func (h *Handlers) CheckIn(c *gin.Context) {
	h.lifecycleAction(c, "check_in", func(requestID, actorID uuid.UUID) error {
		return h.Coordinator.CheckIn(c.Request.Context(), requestID, actorID)
	})
}

// CheckOut handles POST /v1/requests/:id/checkout
func (h *Handlers) CheckOut(c *gin.Context) {
	h.lifecycleAction(c, "check_out", func(requestID, actorID uuid.UUID) error {
		return h.Coordinator.CheckOut(c.Request.Context(), requestID, actorID)
	})
}

// Cancel handles POST /v1/requests/:id/cancel
func (h *Handlers) Cancel(c *gin.Context) {
	h.lifecycleAction(c, "cancel", func(requestID, actorID uuid.UUID) error {
		return h.Coordinator.Cancel(c.Request.Context(), requestID, actorID)
	})
}

// Rate handles PUT /v1/requests/:id/rating
func (h *Handlers) Rate(c *gin.Context) {
	requestID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request id"})
		return
	}

	var body dto.RateRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload", "details": err.Error()})
		return
	}
	actorID, err := uuid.Parse(body.UserID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user id"})
		return
	}

	err = h.Coordinator.Rate(c.Request.Context(), requestID, actorID, body.Rating)
	h.recordTransition("rate", err)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GetRequest handles GET /v1/requests/:id
func (h *Handlers) GetRequest(c *gin.Context) {
	requestID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request id"})
		return
	}

	request, err := h.Requests.GetByID(c.Request.Context(), requestID)
	if err == booking.ErrRequestNotFound {
		c.JSON(http.StatusNotFound, gin.H{"error": "Ride request not found"})
		return
	}
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, request)
}
