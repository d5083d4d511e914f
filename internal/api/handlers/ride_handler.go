package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/odai-awartani/wasselny/internal/api/dto"
	"github.com/odai-awartani/wasselny/internal/coordinator"
	"github.com/odai-awartani/wasselny/internal/domain/ride"
	"github.com/odai-awartani/wasselny/pkg/logger"
)

// PublishRide handles POST /v1/rides
func (h *Handlers) PublishRide(c *gin.Context) {
	var req dto.PublishRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload", "details": err.Error()})
		return
	}

	driverID, err := uuid.Parse(req.DriverID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid driver id"})
		return
	}

	recurrence := make([]ride.Weekday, 0, len(req.Recurrence))
	for _, d := range req.Recurrence {
		recurrence = append(recurrence, ride.Weekday(d))
	}

	rd, err := h.Coordinator.PublishRide(c.Request.Context(), coordinator.PublishRideInput{
		DriverID: driverID,
		Origin: ride.Location{
			Address:   req.Origin.Address,
			Latitude:  req.Origin.Latitude,
			Longitude: req.Origin.Longitude,
		},
		Destination: ride.Location{
			Address:   req.Destination.Address,
			Latitude:  req.Destination.Latitude,
			Longitude: req.Destination.Longitude,
		},
		ScheduledAt:    req.ScheduledAt,
		Recurrence:     recurrence,
		AvailableSeats: req.AvailableSeats,
		RequiredGender: ride.Gender(req.RequiredGender),
		Rules: ride.Rules{
			NoSmoking:  req.Rules.NoSmoking,
			NoChildren: req.Rules.NoChildren,
			NoMusic:    req.Rules.NoMusic,
		},
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.Monitoring.RecordRidePublished(rd.AvailableSeats, rd.IsRecurring())
	h.Logger.Info("Ride published via API",
		logger.String("ride_id", rd.ID.String()),
		logger.String("driver_id", rd.DriverID.String()),
	)
	c.JSON(http.StatusCreated, rd)
}

// GetRide handles GET /v1/rides/:id
func (h *Handlers) GetRide(c *gin.Context) {
	rideID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ride id"})
		return
	}

	rd, err := h.Rides.GetByID(c.Request.Context(), rideID)
	if err == ride.ErrRideNotFound {
		c.JSON(http.StatusNotFound, gin.H{"error": "Ride not found"})
		return
	}
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, rd)
}

// ListRides handles GET /v1/rides
func (h *Handlers) ListRides(c *gin.Context) {
	ctx := c.Request.Context()

	if driverParam := c.Query("driver_id"); driverParam != "" {
		driverID, err := uuid.Parse(driverParam)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid driver id"})
			return
		}
		rides, err := h.Rides.ListByDriver(ctx, driverID)
		if err != nil {
			h.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"rides": rides})
		return
	}

	rides, err := h.Rides.ListPending(ctx)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rides": rides})
}

// ListRideRequests handles GET /v1/rides/:id/requests
func (h *Handlers) ListRideRequests(c *gin.Context) {
	rideID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ride id"})
		return
	}

	requests, err := h.Requests.ListByRide(c.Request.Context(), rideID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": requests})
}
