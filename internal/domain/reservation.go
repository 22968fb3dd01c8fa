package domain

import (
	"time"

	"gopkg.in/guregu/null.v4"
)

type ReservationStatus string

const (
	ReservationActive    ReservationStatus = "active"
	ReservationCompleted ReservationStatus = "completed"
	ReservationCancelled ReservationStatus = "cancelled"
	ReservationExpired   ReservationStatus = "expired" // Chỉ do expiry sweep chuyển sang
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

type Reservation struct {
	ID            string            `json:"id"` // Ví dụ: "RES_PARK_001_1700000000"
	SpotID        string            `json:"spot_id"`
	UserEmail     string            `json:"user_email"`
	UserPhone     null.String       `json:"user_phone"`
	StartTime     time.Time         `json:"start_time"`
	EndTime       time.Time         `json:"end_time"` // Luôn > StartTime
	DurationHours float64           `json:"duration_hours"`
	TotalAmount   float64           `json:"total_amount"`
	PaymentStatus PaymentStatus     `json:"payment_status"`
	Status        ReservationStatus `json:"status"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`

	ParkingSpot *ParkingSpot `json:"parking_spot,omitempty"`
}

// CoversAt cho biết cửa sổ [start, end) của reservation có chứa thời điểm t không.
func (r *Reservation) CoversAt(t time.Time) bool {
	return !t.Before(r.StartTime) && t.Before(r.EndTime)
}

type CreateReservationDTO struct {
	SpotID        string  `json:"spot_id" binding:"required"`
	UserEmail     string  `json:"user_email" binding:"required,email"`
	UserPhone     string  `json:"user_phone,omitempty"`
	StartTime     string  `json:"start_time" binding:"required"` // RFC 3339
	DurationHours float64 `json:"duration_hours" binding:"required,gt=0"`
}
