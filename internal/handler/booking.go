package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"booking/internal/domain"
	"booking/internal/redis"
	"booking/internal/service"
)

type bookingManager interface {
	GetBooking(ctx context.Context, kind domain.BookingKind, id string) (*domain.Booking, error)
	UpdateStatus(ctx context.Context, req service.UpdateStatusRequest) (*service.TransitionResult, error)
	UpdateLocation(ctx context.Context, req service.UpdateLocationRequest) error
	FindNearby(ctx context.Context, kind domain.BookingKind, lat, lng, radiusKm float64) ([]redis.BookingLocation, error)
}

// BookingHandler handles HTTP requests for bookings of every kind.
type BookingHandler struct {
	bookings bookingManager
}

// NewBookingHandler creates a new BookingHandler.
func NewBookingHandler(bookings bookingManager) *BookingHandler {
	return &BookingHandler{bookings: bookings}
}

// BookingResponse is the HTTP response for booking operations.
type BookingResponse struct {
	ID             string     `json:"id"`
	Kind           string     `json:"kind"`
	BookingNumber  string     `json:"booking_number,omitempty"`
	RideID         string     `json:"ride_id,omitempty"`
	UserID         string     `json:"user_id,omitempty"`
	Quantity       int        `json:"quantity"`
	Status         string     `json:"status"`
	CancelReason   string     `json:"cancel_reason,omitempty"`
	LastLocation   *Location  `json:"last_location,omitempty"`
	PaidAt         *time.Time `json:"paid_at,omitempty"`
	TripStartedAt  *time.Time `json:"trip_started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	CancelledAt    *time.Time `json:"cancelled_at,omitempty"`
	LastLocationAt *time.Time `json:"last_location_at,omitempty"`
}

// Location represents a geographic location in JSON.
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// UpdateStatusRequest is the HTTP request body for a status change.
type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
	Actor  string `json:"actor"`
	Reason string `json:"reason"`
}

// StatusChangeResponse reports the outcome of a status change.
type StatusChangeResponse struct {
	Applied bool            `json:"applied"`
	From    string          `json:"from"`
	Booking BookingResponse `json:"booking"`
}

// UpdateLocationRequest is the HTTP request body for a location update.
type UpdateLocationRequest struct {
	Lat *float64 `json:"lat" binding:"required"`
	Lng *float64 `json:"lng" binding:"required"`
}

// NearbyBookingResponse is one entry of a nearby search.
type NearbyBookingResponse struct {
	BookingID string  `json:"booking_id"`
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
}

// GetBooking handles GET /v1/bookings/:kind/:id
func (h *BookingHandler) GetBooking(c *gin.Context) {
	kind, ok := parseKind(c)
	if !ok {
		return
	}

	booking, err := h.bookings.GetBooking(c.Request.Context(), kind, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toBookingResponse(booking))
}

// UpdateStatus handles POST /v1/bookings/:kind/:id/status
func (h *BookingHandler) UpdateStatus(c *gin.Context) {
	kind, ok := parseKind(c)
	if !ok {
		return
	}

	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	actor := domain.Actor(req.Actor)
	if actor == "" {
		actor = domain.ActorDriver
	}

	result, err := h.bookings.UpdateStatus(c.Request.Context(), service.UpdateStatusRequest{
		Kind:   kind,
		ID:     c.Param("id"),
		Status: domain.BookingStatus(req.Status),
		Actor:  actor,
		Reason: req.Reason,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, StatusChangeResponse{
		Applied: result.Applied(),
		From:    string(result.From),
		Booking: toBookingResponse(result.Booking),
	})
}

// UpdateLocation handles POST /v1/bookings/:kind/:id/location
func (h *BookingHandler) UpdateLocation(c *gin.Context) {
	kind, ok := parseKind(c)
	if !ok {
		return
	}

	var req UpdateLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	err := h.bookings.UpdateLocation(c.Request.Context(), service.UpdateLocationRequest{
		Kind: kind,
		ID:   c.Param("id"),
		Lat:  *req.Lat,
		Lng:  *req.Lng,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// FindNearby handles GET /v1/nearby/:kind?lat=..&lng=..&radius_km=..
func (h *BookingHandler) FindNearby(c *gin.Context) {
	kind, ok := parseKind(c)
	if !ok {
		return
	}

	lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
	lng, errLng := strconv.ParseFloat(c.Query("lng"), 64)
	if errLat != nil || errLng != nil {
		respondError(c, service.ErrInvalidLocation)
		return
	}
	radius := 5.0
	if raw := c.Query("radius_km"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			respondError(c, service.ErrInvalidLocation)
			return
		}
		radius = parsed
	}

	found, err := h.bookings.FindNearby(c.Request.Context(), kind, lat, lng, radius)
	if err != nil {
		respondError(c, err)
		return
	}

	response := make([]NearbyBookingResponse, 0, len(found))
	for _, loc := range found {
		response = append(response, NearbyBookingResponse{BookingID: loc.BookingID, Lat: loc.Lat, Lng: loc.Lng})
	}
	respondJSON(c, http.StatusOK, response)
}

func toBookingResponse(b *domain.Booking) BookingResponse {
	resp := BookingResponse{
		ID:             b.ID,
		Kind:           string(b.Kind),
		BookingNumber:  b.BookingNumber,
		RideID:         b.RideID,
		UserID:         b.UserID,
		Quantity:       b.Quantity,
		Status:         string(b.Status),
		CancelReason:   b.CancelReason,
		PaidAt:         optionalTime(b.PaidAt),
		TripStartedAt:  optionalTime(b.TripStartedAt),
		CompletedAt:    optionalTime(b.CompletedAt),
		CancelledAt:    optionalTime(b.CancelledAt),
		LastLocationAt: optionalTime(b.LastLocationAt),
	}
	if !b.LastLocationAt.IsZero() {
		resp.LastLocation = &Location{Lat: b.LastLat, Lng: b.LastLng}
	}
	return resp
}
