package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/Domenick1991/tourbooking/internal/domain"
	"github.com/Domenick1991/tourbooking/internal/service/booking"
	"github.com/Domenick1991/tourbooking/internal/service/inventory"
	"github.com/gin-gonic/gin"
)

type PackageHandler struct {
	packages inventory.PackageUseCase
	bookings booking.BookingUseCase
}

type updateCapacityRequest struct {
	MaxSlots int `json:"max_slots"`
}

type setActiveRequest struct {
	Active *bool `json:"active"`
}

type packageListResponse struct {
	Packages []domain.Package `json:"packages"`
}

func NewPackageHandler(packages inventory.PackageUseCase, bookings booking.BookingUseCase) *PackageHandler {
	return &PackageHandler{packages: packages, bookings: bookings}
}

func (h *PackageHandler) Register(router *gin.RouterGroup) {
	router.POST("", h.create)
	router.GET("", h.list)
	router.GET("/:id", h.get)
	router.GET("/:id/availability", h.availability)
	router.PUT("/:id/capacity", h.updateCapacity)
	router.PUT("/:id/active", h.setActive)
	router.DELETE("/:id", h.withdraw)
}

func (h *PackageHandler) create(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	var req inventory.CreatePackageInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	pkg, err := h.packages.CreatePackage(c.Request.Context(), caller, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, pkg)
}

func (h *PackageHandler) list(c *gin.Context) {
	filter := domain.PackageFilter{AgencyID: c.Query("agency_id")}
	if raw := c.Query("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			badRequest(c, errors.New("active must be a boolean"))
			return
		}
		filter.ActiveOnly = active
	}

	packages, err := h.packages.ListPackages(c.Request.Context(), filter)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, packageListResponse{Packages: packages})
}

func (h *PackageHandler) get(c *gin.Context) {
	pkg, err := h.packages.GetPackage(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, pkg)
}

func (h *PackageHandler) availability(c *gin.Context) {
	a, err := h.packages.GetAvailability(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (h *PackageHandler) updateCapacity(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	var req updateCapacityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	a, err := h.packages.UpdateMaxSlots(c.Request.Context(), caller, c.Param("id"), req.MaxSlots)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (h *PackageHandler) setActive(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	var req setActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.Active == nil {
		badRequest(c, errors.New("active is required"))
		return
	}

	pkg, err := h.packages.SetPackageActive(c.Request.Context(), caller, c.Param("id"), *req.Active)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, pkg)
}

func (h *PackageHandler) withdraw(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}
	if err := h.bookings.WithdrawPackage(c.Request.Context(), caller, c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
