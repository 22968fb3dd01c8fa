package domain

import "time"

type SensorType string

const (
	SensorUltrasonic SensorType = "ultrasonic"
	SensorMagnetic   SensorType = "magnetic"
	SensorCamera     SensorType = "camera"
	SensorInfrared   SensorType = "infrared"
)

func ValidSensorType(t SensorType) bool {
	switch t {
	case SensorUltrasonic, SensorMagnetic, SensorCamera, SensorInfrared:
		return true
	}
	return false
}

// HasDistance cho biết loại cảm biến có gửi kèm khoảng cách thô hay không.
// Chỉ các cảm biến có distance mới đi qua debouncer; các loại còn lại
// gửi thẳng boolean occupied của chính nó.
func (t SensorType) HasDistance() bool {
	return t == SensorUltrasonic
}

type SpotStatus string

const (
	SpotAvailable SpotStatus = "available"
	SpotOccupied  SpotStatus = "occupied"
	SpotReserved  SpotStatus = "reserved"
	SpotDisabled  SpotStatus = "disabled"
)

type ParkingSpot struct {
	ID          string     `json:"id"` // Ví dụ: "PARK_001", trùng với sensor_id
	Location    string     `json:"location"`
	Level       string     `json:"level"`
	Zone        string     `json:"zone"`
	IsOccupied  bool       `json:"is_occupied"`
	IsReserved  bool       `json:"is_reserved"`
	IsDisabled  bool       `json:"is_disabled"`
	SensorType  SensorType `json:"sensor_type"`
	HourlyRate  float64    `json:"hourly_rate"`
	LastUpdated time.Time  `json:"last_updated"`
	CreatedAt   time.Time  `json:"created_at"`

	Status SpotStatus `json:"status"`
}

// DeriveStatus trả về trạng thái công khai của spot theo thứ tự ưu tiên
// cố định: disabled > occupied > reserved > available. Thứ tự này phải
// được giữ nguyên vì sensing và booking là hai writer độc lập.
func DeriveStatus(disabled, occupied, reserved bool) SpotStatus {
	switch {
	case disabled:
		return SpotDisabled
	case occupied:
		return SpotOccupied
	case reserved:
		return SpotReserved
	default:
		return SpotAvailable
	}
}

func (s *ParkingSpot) DeriveStatus() SpotStatus {
	return DeriveStatus(s.IsDisabled, s.IsOccupied, s.IsReserved)
}

type ParkingSpotDTO struct {
	ID         string  `json:"id" binding:"required"`
	Location   string  `json:"location" binding:"required"`
	Level      string  `json:"level" binding:"required"`
	Zone       string  `json:"zone" binding:"required"`
	SensorType string  `json:"sensor_type,omitempty"`
	HourlyRate float64 `json:"hourly_rate,omitempty"`
	IsDisabled *bool   `json:"is_disabled,omitempty"`
}

// UpdateParkingSpotDTO là bản partial cho PUT: chỉ metadata, không có cờ
// runtime nào ngoài is_disabled.
type UpdateParkingSpotDTO struct {
	Location   string  `json:"location,omitempty"`
	Level      string  `json:"level,omitempty"`
	Zone       string  `json:"zone,omitempty"`
	SensorType string  `json:"sensor_type,omitempty"`
	HourlyRate float64 `json:"hourly_rate,omitempty"`
	IsDisabled *bool   `json:"is_disabled,omitempty"`
}

// SpotListResponse là payload của GET /spots, kèm các bộ đếm tổng hợp.
type SpotListResponse struct {
	Spots          []ParkingSpot `json:"spots"`
	TotalCount     int           `json:"total_count"`
	AvailableCount int           `json:"available_count"`
	OccupiedCount  int           `json:"occupied_count"`
	ReservedCount  int           `json:"reserved_count"`
}
