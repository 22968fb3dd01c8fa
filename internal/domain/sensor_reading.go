package domain

import (
	"encoding/json"
	"time"

	"gopkg.in/guregu/null.v4"
)

// SensorReading là bản ghi bất biến, append-only. Không bao giờ update,
// dùng làm audit trail và đầu vào cho analytics.
type SensorReading struct {
	ID             int64           `json:"id"`
	SensorID       string          `json:"sensor_id"`
	Timestamp      time.Time       `json:"timestamp"`
	Occupied       bool            `json:"occupied"`
	DistanceCm     null.Float      `json:"distance_cm"`
	MagneticField  null.Float      `json:"magnetic_field"`
	BatteryLevel   null.Int        `json:"battery_level"`   // 0-100
	SignalStrength null.Int        `json:"signal_strength"` // dBm, <= 0
	RawData        json.RawMessage `json:"-"`               // Payload gốc, lưu dạng JSONB
	CreatedAt      time.Time       `json:"created_at"`
}

// SensorHealth là bản tóm tắt mutable theo từng sensor, được cập nhật như
// side effect của mỗi message nhận được; không bao giờ do user tạo trực tiếp.
type SensorHealth struct {
	SensorID         string    `json:"sensor_id"`
	LastHeartbeatAt  null.Time `json:"last_heartbeat_at"`
	LastDataAt       null.Time `json:"last_data_at"`
	BatteryLevel     null.Int  `json:"battery_level"`
	SignalStrength   null.Int  `json:"signal_strength"`
	FirmwareVersion  string    `json:"firmware_version,omitempty"`
	ErrorCount       int       `json:"error_count"`
	IsOnline         bool      `json:"is_online"`
	NeedsMaintenance bool      `json:"needs_maintenance"`
	UpdatedAt        time.Time `json:"updated_at"`
}
