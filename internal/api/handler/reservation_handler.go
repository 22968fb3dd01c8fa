package handler

import (
	"errors"
	"net/http"

	"parking_iot/internal/domain"
	"parking_iot/internal/repository"
	"parking_iot/internal/service"

	"github.com/gin-gonic/gin"
)

type ReservationHandler struct {
	reservationService *service.ReservationService
}

func NewReservationHandler(rs *service.ReservationService) *ReservationHandler {
	return &ReservationHandler{reservationService: rs}
}

// POST /api/v1/reservations
func (h *ReservationHandler) CreateReservation(c *gin.Context) {
	var dto domain.CreateReservationDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	reservation, err := h.reservationService.Create(c.Request.Context(), dto)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidWindow):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrSpotUnavailable), errors.Is(err, service.ErrSpotDisabled):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, repository.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Không thể tạo reservation", "details": err.Error()})
		}
		return
	}
	c.JSON(http.StatusCreated, reservation)
}

// GET /api/v1/reservations/:id
func (h *ReservationHandler) GetReservationByID(c *gin.Context) {
	reservation, err := h.reservationService.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Không tìm thấy reservation"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Không thể lấy reservation", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, reservation)
}

// DELETE /api/v1/reservations/:id — hủy reservation (soft cancel).
func (h *ReservationHandler) CancelReservation(c *gin.Context) {
	reservation, err := h.reservationService.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Không tìm thấy reservation"})
			return
		}
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, reservation)
}

type updatePaymentDTO struct {
	PaymentStatus string `json:"payment_status" binding:"required"`
}

// PUT /api/v1/reservations/:id/payment
func (h *ReservationHandler) UpdatePayment(c *gin.Context) {
	var dto updatePaymentDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.reservationService.UpdatePayment(c.Request.Context(), c.Param("id"), domain.PaymentStatus(dto.PaymentStatus))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Không tìm thấy reservation"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Đã cập nhật trạng thái thanh toán", "payment_status": dto.PaymentStatus})
}
