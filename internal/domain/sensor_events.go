package domain

import (
	"encoding/json"
	"strings"
)

// GenericSensorEvent dùng để parse bước đầu message từ SQS, lấy sensor_id
// và topic MQTT gốc (do IoT Rule thêm vào) để định tuyến.
type GenericSensorEvent struct {
	SensorID               string          `json:"sensor_id"`
	ReceivedMqttTopic      string          `json:"received_mqtt_topic,omitempty"`      // Do IoT Rule thêm vào
	IotProcessingTimestamp int64           `json:"iot_processing_timestamp,omitempty"` // Do IoT Rule thêm vào
	RawPayload             json.RawMessage `json:"-"`
}

// Loại message suy ra từ topic: parking/sensor/{id}/status|heartbeat|error.
const (
	MessageStatus    = "status"
	MessageHeartbeat = "heartbeat"
	MessageError     = "error"
)

func (e *GenericSensorEvent) MessageType() string {
	idx := strings.LastIndex(e.ReceivedMqttTopic, "/")
	if idx < 0 {
		return ""
	}
	return e.ReceivedMqttTopic[idx+1:]
}

// SensorStatusEvent là payload trên topic parking/sensor/{id}/status.
// Trường occupied là kết quả debounce của chính firmware — chỉ mang tính
// tham khảo với cảm biến có distance; backend tự tính lại qua debouncer.
type SensorStatusEvent struct {
	GenericSensorEvent
	Occupied        bool     `json:"occupied"`
	Timestamp       string   `json:"timestamp"` // ISO 8601 UTC string từ firmware
	DistanceCm      *float64 `json:"distance_cm,omitempty"`
	MagneticField   *float64 `json:"magnetic_field,omitempty"`
	BatteryLevel    *int     `json:"battery_level,omitempty"`    // 0-100
	SignalStrength  *int     `json:"signal_strength,omitempty"`  // dBm (WiFi.RSSI())
	FirmwareVersion string   `json:"firmware_version,omitempty"` // FIRMWARE_VERSION
	Location        string   `json:"location,omitempty"`         // LOCATION, dùng khi auto-provision
	Level           string   `json:"level,omitempty"`
	Zone            string   `json:"zone,omitempty"`
}

// SensorHeartbeatEvent là payload trên topic parking/sensor/{id}/heartbeat.
type SensorHeartbeatEvent struct {
	GenericSensorEvent
	Status          string `json:"status"` // "online"
	Timestamp       string `json:"timestamp"`
	BatteryLevel    *int   `json:"battery_level,omitempty"`
	SignalStrength  *int   `json:"signal_strength,omitempty"`
	UptimeSeconds   int64  `json:"uptime_seconds,omitempty"`
	FreeHeap        uint32 `json:"free_heap,omitempty"`
	FirmwareVersion string `json:"firmware_version,omitempty"`
}

// SensorErrorEvent là payload trên topic parking/sensor/{id}/error.
// error_type ví dụ: "no_valid_reading", "sensor_timeout", "low_battery".
type SensorErrorEvent struct {
	GenericSensorEvent
	ErrorType string `json:"error"`
	Timestamp string `json:"timestamp"`
}

// SensorConfigCommand là lệnh gửi từ backend xuống sensor qua topic
// parking/config/{sensor_id} (AWS IoT Data Plane).
type SensorConfigCommand struct {
	OccupiedThresholdCm   float64 `json:"occupied_threshold_cm,omitempty"`
	MeasurementSamples    int     `json:"measurement_samples,omitempty"`
	DebounceCount         int     `json:"debounce_count,omitempty"`
	MeasurementIntervalMs int64   `json:"measurement_interval_ms,omitempty"`
	RequestID             string  `json:"request_id,omitempty"`
}

type SensorConfigDTO struct {
	OccupiedThresholdCm   float64 `json:"occupied_threshold_cm,omitempty"`
	MeasurementSamples    int     `json:"measurement_samples,omitempty"`
	DebounceCount         int     `json:"debounce_count,omitempty"`
	MeasurementIntervalMs int64   `json:"measurement_interval_ms,omitempty"`
}
