package repository

import (
	"context"
	"errors"
	"time"

	"parking_iot/internal/domain"
)

var ErrNotFound = errors.New("không tìm thấy bản ghi")
var ErrDuplicateEntry = errors.New("bản ghi đã tồn tại")
var ErrAlreadyReserved = errors.New("chỗ đỗ đã được giữ bởi một reservation khác")
var ErrSpotDisabledRow = errors.New("chỗ đỗ đang bị vô hiệu hóa")

type SpotRepository interface {
	Create(ctx context.Context, spot *domain.ParkingSpot) (*domain.ParkingSpot, error)
	FindByID(ctx context.Context, id string) (*domain.ParkingSpot, error)
	FindAll(ctx context.Context) ([]domain.ParkingSpot, error)
	FindAvailable(ctx context.Context, level, zone string) ([]domain.ParkingSpot, error)
	Update(ctx context.Context, spot *domain.ParkingSpot) (*domain.ParkingSpot, error)
	// Delete xóa spot kèm các reservation tham chiếu (cascade) — chỉ dành
	// cho thao tác admin tường minh.
	Delete(ctx context.Context, id string) error

	// SetOccupied chỉ được gọi từ một transition đã commit của debouncer;
	// cập nhật is_occupied và last_updated trong cùng một câu lệnh.
	SetOccupied(ctx context.Context, id string, occupied bool, at time.Time) error
	// SetReserved(true) là conditional write: thất bại với ErrAlreadyReserved
	// nếu cờ đã được giữ, ErrSpotDisabledRow nếu spot bị vô hiệu hóa.
	// SetReserved(false) là idempotent.
	SetReserved(ctx context.Context, id string, reserved bool) error

	CountOverall(ctx context.Context) (*domain.OccupancyOverall, error)
	CountByLevel(ctx context.Context) ([]domain.LevelOccupancy, error)
}

// ReadingRepository là append-only: không có Update/Delete.
type ReadingRepository interface {
	Create(ctx context.Context, reading *domain.SensorReading) error
	FindRecentBySensor(ctx context.Context, sensorID string, limit int) ([]domain.SensorReading, error)
}

type ReservationRepository interface {
	Create(ctx context.Context, r *domain.Reservation) (*domain.Reservation, error)
	FindByID(ctx context.Context, id string) (*domain.Reservation, error)
	// HasActiveOverlap kiểm tra có reservation active nào của spot mà khoảng
	// [start, end) giao với khoảng yêu cầu không. Hai cửa sổ back-to-back
	// (end của cái này == start của cái kia) KHÔNG tính là giao nhau.
	HasActiveOverlap(ctx context.Context, spotID string, start, end time.Time) (bool, error)
	// FindActiveCovering trả về reservation active của spot có cửa sổ chứa
	// thời điểm at; ErrNotFound nếu không có.
	FindActiveCovering(ctx context.Context, spotID string, at time.Time) (*domain.Reservation, error)
	// FindExpired trả về các reservation active có end_time < olderThan
	// (olderThan = now - grace).
	FindExpired(ctx context.Context, olderThan time.Time) ([]domain.Reservation, error)
	// FindDueForActivation trả về các reservation active có cửa sổ chứa now
	// nhưng spot chưa được giữ cờ reserved.
	FindDueForActivation(ctx context.Context, now time.Time) ([]domain.Reservation, error)
	// UpdateStatus chỉ chuyển trạng thái, không bao giờ ghi đè nội dung khác.
	UpdateStatus(ctx context.Context, id string, status domain.ReservationStatus) error
	UpdatePaymentStatus(ctx context.Context, id string, status domain.PaymentStatus) error
}

type SensorHealthRepository interface {
	// Upsert tạo mới hoặc cập nhật bản tóm tắt sức khỏe của sensor.
	Upsert(ctx context.Context, h *domain.SensorHealth) error
	FindBySensorID(ctx context.Context, sensorID string) (*domain.SensorHealth, error)
	FindAll(ctx context.Context) ([]domain.SensorHealth, error)
	IncrementErrorCount(ctx context.Context, sensorID string, at time.Time) error
	// MarkOffline đánh dấu offline mọi sensor không có dữ liệu từ cutoff trở
	// lại đây; trả về số sensor bị chuyển trạng thái.
	MarkOffline(ctx context.Context, cutoff time.Time) (int64, error)
}

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) (*domain.User, error)
	FindByUsername(ctx context.Context, username string) (*domain.User, error)
	FindByID(ctx context.Context, id int) (*domain.User, error)
}
