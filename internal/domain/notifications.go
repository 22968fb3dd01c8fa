package domain

import "time"

// Các event real-time đẩy xuống dashboard qua WebSocket. Mỗi message có
// trường "event" để frontend phân loại, giữ nguyên tên event của hệ thống cũ.

const (
	EventSpotStatusChanged = "spot_status_changed"
	EventSpotReserved      = "spot_reserved"
	EventSensorError       = "sensor_error"
)

type SpotStatusChangedNotification struct {
	Event     string    `json:"event"`
	SpotID    string    `json:"spot_id"`
	Occupied  bool      `json:"occupied"`
	Timestamp time.Time `json:"timestamp"`
}

type SpotReservedNotification struct {
	Event         string `json:"event"`
	SpotID        string `json:"spot_id"`
	ReservationID string `json:"reservation_id"`
}

type SensorErrorNotification struct {
	Event     string    `json:"event"`
	SensorID  string    `json:"sensor_id"`
	ErrorType string    `json:"error_type"`
	Timestamp time.Time `json:"timestamp"`
}
