package api

import (
	"net/http"

	"github.com/Domenick1991/tourbooking/internal/domain"
	"github.com/Domenick1991/tourbooking/internal/service/booking"
	"github.com/gin-gonic/gin"
)

type BookingHandler struct {
	service booking.BookingUseCase
}

type decisionRequest struct {
	Decision string `json:"decision"`
}

type bookingListResponse struct {
	Bookings []domain.Booking `json:"bookings"`
}

func NewBookingHandler(service booking.BookingUseCase) *BookingHandler {
	return &BookingHandler{service: service}
}

func (h *BookingHandler) Register(router *gin.RouterGroup) {
	router.POST("", h.create)
	router.GET("", h.list)
	router.GET("/:id", h.get)
	router.POST("/:id/decision", h.decide)
	router.POST("/:id/cancel", h.cancel)
}

func (h *BookingHandler) create(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	var req booking.RequestBookingInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	b, err := h.service.RequestBooking(c.Request.Context(), caller, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, b)
}

func (h *BookingHandler) list(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	filter := domain.BookingFilter{PackageID: c.Query("package_id")}
	if raw := c.Query("status"); raw != "" {
		status, err := domain.ParseBookingStatus(raw)
		if err != nil {
			writeError(c, err)
			return
		}
		filter.Status = status
	}

	bookings, err := h.service.ListBookings(c.Request.Context(), caller, filter)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, bookingListResponse{Bookings: bookings})
}

func (h *BookingHandler) get(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	b, err := h.service.GetBooking(c.Request.Context(), caller, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h *BookingHandler) decide(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	var req decisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	decision, err := domain.ParseDecision(req.Decision)
	if err != nil {
		writeError(c, err)
		return
	}

	b, err := h.service.DecideBooking(c.Request.Context(), caller, c.Param("id"), decision)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h *BookingHandler) cancel(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	b, err := h.service.CancelBooking(c.Request.Context(), caller, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}
