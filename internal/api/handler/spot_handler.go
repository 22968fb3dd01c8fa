package handler

import (
	"errors"
	"net/http"

	"parking_iot/internal/domain"
	"parking_iot/internal/repository"
	"parking_iot/internal/service"

	"github.com/gin-gonic/gin"
)

type SpotHandler struct {
	spotService      *service.SpotService
	occupancyService *service.OccupancyService
}

func NewSpotHandler(spotService *service.SpotService, occupancyService *service.OccupancyService) *SpotHandler {
	return &SpotHandler{spotService: spotService, occupancyService: occupancyService}
}

// POST /api/v1/spots
func (h *SpotHandler) CreateSpot(c *gin.Context) {
	var dto domain.ParkingSpotDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	spot, err := h.spotService.Create(c.Request.Context(), dto)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateEntry) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Không thể tạo chỗ đỗ", "details": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, spot)
}

// GET /api/v1/spots
func (h *SpotHandler) GetAllSpots(c *gin.Context) {
	resp, err := h.spotService.GetAll(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Không thể lấy danh sách chỗ đỗ", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GET /api/v1/spots/available?level=L1&zone=A
func (h *SpotHandler) GetAvailableSpots(c *gin.Context) {
	level := c.Query("level")
	zone := c.Query("zone")

	spots, err := h.spotService.GetAvailable(c.Request.Context(), level, zone)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Không thể lấy danh sách chỗ trống", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"spots": spots, "count": len(spots)})
}

// GET /api/v1/spots/:id — đọc cache trước, fallback về DB, kèm 10 reading gần nhất.
func (h *SpotHandler) GetSpotByID(c *gin.Context) {
	spot, err := h.occupancyService.GetSpotStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Không tìm thấy chỗ đỗ"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Không thể lấy chỗ đỗ", "details": err.Error()})
		return
	}

	readings, err := h.spotService.GetRecentReadings(c.Request.Context(), spot.ID, 10)
	if err != nil {
		// Reading chỉ là dữ liệu kèm theo; lỗi không làm fail response chính.
		readings = nil
	}
	c.JSON(http.StatusOK, gin.H{"spot": spot, "recent_readings": readings})
}

// PUT /api/v1/spots/:id
func (h *SpotHandler) UpdateSpot(c *gin.Context) {
	var dto domain.UpdateParkingSpotDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	spot, err := h.spotService.Update(c.Request.Context(), c.Param("id"), dto)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Không tìm thấy chỗ đỗ"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Không thể cập nhật chỗ đỗ", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, spot)
}

// DELETE /api/v1/spots/:id
func (h *SpotHandler) DeleteSpot(c *gin.Context) {
	err := h.spotService.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Không tìm thấy chỗ đỗ"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Không thể xóa chỗ đỗ", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Đã xóa chỗ đỗ"})
}
