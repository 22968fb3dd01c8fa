package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"parking_iot/internal/domain"
	"parking_iot/internal/repository"
	"parking_iot/internal/service"

	"github.com/gin-gonic/gin"
)

type SensorHandler struct {
	occupancyService *service.OccupancyService
	spotService      *service.SpotService
	iotService       *service.IoTService
	cameraService    *service.CameraService
}

func NewSensorHandler(
	occupancyService *service.OccupancyService,
	spotService *service.SpotService,
	iotService *service.IoTService,
	cameraService *service.CameraService,
) *SensorHandler {
	return &SensorHandler{
		occupancyService: occupancyService,
		spotService:      spotService,
		iotService:       iotService,
		cameraService:    cameraService,
	}
}

// POST /api/sensor-data — đường ingest HTTP trực tiếp cho sensor không đi
// qua MQTT (gateway cũ, script test). Payload giống hệt message status.
func (h *SensorHandler) IngestSensorData(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Không đọc được request body"})
		return
	}

	var event domain.SensorStatusEvent
	if err := json.Unmarshal(body, &event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Payload không hợp lệ", "details": err.Error()})
		return
	}
	if event.SensorID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Thiếu sensor_id"})
		return
	}
	event.RawPayload = body

	if err := h.occupancyService.IngestStatus(c.Request.Context(), event); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Không thể xử lý dữ liệu sensor", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Đã nhận dữ liệu", "sensor_id": event.SensorID})
}

// GET /api/v1/sensors — danh sách sức khỏe toàn bộ sensor.
func (h *SensorHandler) GetAllSensorHealth(c *gin.Context) {
	sensors, err := h.spotService.GetAllSensorHealth(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Không thể lấy danh sách sensor", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sensors": sensors, "count": len(sensors)})
}

// GET /api/v1/sensors/:id/health
func (h *SensorHandler) GetSensorHealth(c *gin.Context) {
	health, err := h.spotService.GetSensorHealth(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Không tìm thấy sensor"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Không thể lấy thông tin sensor", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, health)
}

// GET /api/v1/sensors/:id/readings?limit=50
func (h *SensorHandler) GetRecentReadings(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	readings, err := h.spotService.GetRecentReadings(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Không tìm thấy sensor"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Không thể lấy readings", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"readings": readings, "count": len(readings)})
}

// POST /api/v1/sensors/:id/config — push cấu hình đo xuống sensor qua MQTT.
func (h *SensorHandler) PushSensorConfig(c *gin.Context) {
	var dto domain.SensorConfigDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	requestID, err := h.iotService.PushSensorConfig(c.Request.Context(), c.Param("id"), dto)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Không tìm thấy sensor"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Không thể gửi cấu hình", "details": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "Đã gửi cấu hình xuống sensor", "request_id": requestID})
}

// POST /api/v1/sensors/:id/frame — upload ảnh từ spot gắn camera,
// multipart field "image".
func (h *SensorHandler) AnalyzeCameraFrame(c *gin.Context) {
	fileHeader, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Thiếu file ảnh trong field 'image'"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Không mở được file ảnh", "details": err.Error()})
		return
	}
	defer file.Close()

	imageBytes, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Không đọc được file ảnh", "details": err.Error()})
		return
	}

	occupied, confidence, err := h.cameraService.AnalyzeFrame(c.Request.Context(), c.Param("id"), imageBytes)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Không thể phân tích ảnh", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"sensor_id":  c.Param("id"),
		"occupied":   occupied,
		"confidence": confidence,
	})
}
