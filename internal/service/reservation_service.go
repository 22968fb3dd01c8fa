package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"parking_iot/internal/config"
	"parking_iot/internal/domain"
	"parking_iot/internal/repository"

	"gopkg.in/guregu/null.v4"
)

var ErrInvalidWindow = errors.New("cửa sổ đặt chỗ không hợp lệ")
var ErrSpotUnavailable = errors.New("chỗ đỗ không khả dụng trong khoảng thời gian yêu cầu")
var ErrSpotDisabled = errors.New("chỗ đỗ đang bị vô hiệu hóa, không thể đặt")

// Sai số cho phép khi so start_time với thời điểm hiện tại của server —
// đồng hồ client/server lệch nhau một chút không được làm fail booking.
const startTimeTolerance = time.Minute

type ReservationService struct {
	reservationRepo repository.ReservationRepository
	spotRepo        repository.SpotRepository
	cache           SpotCache
	wsManager       WebSocketManager
	cfg             *config.Config

	// Cho phép test inject đồng hồ cố định.
	now func() time.Time
}

func NewReservationService(
	reservationRepo repository.ReservationRepository,
	spotRepo repository.SpotRepository,
	cache SpotCache,
	wsManager WebSocketManager,
	cfg *config.Config,
) *ReservationService {
	return &ReservationService{
		reservationRepo: reservationRepo,
		spotRepo:        spotRepo,
		cache:           cache,
		wsManager:       wsManager,
		cfg:             cfg,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// Create thực hiện toàn bộ validation cửa sổ đặt chỗ rồi ghi reservation.
// Cờ is_reserved của spot CHỈ được bật khi cửa sổ chứa thời điểm hiện tại;
// reservation đặt trước cho tương lai sẽ do expiry sweep kích hoạt sau.
func (s *ReservationService) Create(ctx context.Context, dto domain.CreateReservationDTO) (*domain.Reservation, error) {
	now := s.now()

	startTime, err := time.Parse(time.RFC3339, dto.StartTime)
	if err != nil {
		return nil, fmt.Errorf("%w: start_time '%s' không đúng định dạng RFC 3339", ErrInvalidWindow, dto.StartTime)
	}
	startTime = startTime.UTC()

	if dto.DurationHours <= 0 {
		return nil, fmt.Errorf("%w: duration_hours phải > 0", ErrInvalidWindow)
	}
	if startTime.Before(now.Add(-startTimeTolerance)) {
		return nil, fmt.Errorf("%w: start_time đã ở quá khứ", ErrInvalidWindow)
	}
	endTime := startTime.Add(time.Duration(dto.DurationHours * float64(time.Hour)))

	spot, err := s.spotRepo.FindByID(ctx, dto.SpotID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: chỗ đỗ '%s' không tồn tại", repository.ErrNotFound, dto.SpotID)
		}
		return nil, fmt.Errorf("lỗi kiểm tra chỗ đỗ '%s': %w", dto.SpotID, err)
	}
	if spot.IsDisabled {
		return nil, fmt.Errorf("%w: '%s'", ErrSpotDisabled, spot.ID)
	}

	// Hai cửa sổ [start, end) back-to-back không tính là giao nhau.
	overlapping, err := s.reservationRepo.HasActiveOverlap(ctx, dto.SpotID, startTime, endTime)
	if err != nil {
		return nil, fmt.Errorf("lỗi kiểm tra overlap cho spot '%s': %w", dto.SpotID, err)
	}
	if overlapping {
		return nil, fmt.Errorf("%w: spot '%s' đã có reservation giao với khoảng [%v, %v)",
			ErrSpotUnavailable, dto.SpotID, startTime, endTime)
	}

	// ID mang cả spot_id: hai booking trên hai spot khác nhau rơi vào cùng
	// một giây không được đụng nhau.
	reservation := &domain.Reservation{
		ID:            fmt.Sprintf("RES_%s_%d", dto.SpotID, now.Unix()),
		SpotID:        dto.SpotID,
		UserEmail:     dto.UserEmail,
		StartTime:     startTime,
		EndTime:       endTime,
		DurationHours: dto.DurationHours,
		TotalAmount:   round2(dto.DurationHours * spot.HourlyRate),
		PaymentStatus: domain.PaymentPending,
		Status:        domain.ReservationActive,
	}
	if dto.UserPhone != "" {
		reservation.UserPhone = null.StringFrom(dto.UserPhone)
	}

	created, err := s.reservationRepo.Create(ctx, reservation)
	if err != nil {
		return nil, fmt.Errorf("lỗi tạo reservation: %w", err)
	}

	if created.CoversAt(now) {
		if err := s.setReservedFlag(ctx, spot, true); err != nil {
			// Bản ghi reservation đã vào DB nhưng cờ không bật được —
			// rollback reservation để không tạo trạng thái nửa vời.
			if cancelErr := s.reservationRepo.UpdateStatus(ctx, created.ID, domain.ReservationCancelled); cancelErr != nil {
				log.Printf("Lỗi rollback reservation %s sau khi SetReserved thất bại: %v", created.ID, cancelErr)
			}
			return nil, err
		}
		// Chỉ broadcast khi cờ thực sự được bật; reservation đặt trước sẽ
		// được sweep broadcast đúng thời điểm kích hoạt.
		s.wsManager.BroadcastSpotReserved(domain.SpotReservedNotification{
			Event:         domain.EventSpotReserved,
			SpotID:        created.SpotID,
			ReservationID: created.ID,
		})
	} else {
		log.Printf("Reservation %s cho spot '%s' bắt đầu lúc %v (tương lai), cờ reserved sẽ do sweep kích hoạt.",
			created.ID, created.SpotID, created.StartTime)
	}

	log.Printf("Đã tạo reservation %s: spot '%s', %v -> %v, %.2f USD",
		created.ID, created.SpotID, created.StartTime, created.EndTime, created.TotalAmount)
	return created, nil
}

func (s *ReservationService) setReservedFlag(ctx context.Context, spot *domain.ParkingSpot, reserved bool) error {
	err := s.spotRepo.SetReserved(ctx, spot.ID, reserved)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrSpotDisabledRow):
			return fmt.Errorf("%w: '%s'", ErrSpotDisabled, spot.ID)
		case errors.Is(err, repository.ErrAlreadyReserved):
			return fmt.Errorf("%w: spot '%s' vừa được giữ bởi reservation khác", ErrSpotUnavailable, spot.ID)
		default:
			return fmt.Errorf("lỗi cập nhật cờ reserved cho spot '%s': %w", spot.ID, err)
		}
	}
	spot.IsReserved = reserved
	spot.Status = spot.DeriveStatus()
	if cacheErr := s.cache.SetStatus(ctx, spot); cacheErr != nil {
		log.Printf("Lỗi cập nhật cache cho spot '%s': %v", spot.ID, cacheErr)
	}
	return nil
}

func (s *ReservationService) GetByID(ctx context.Context, id string) (*domain.Reservation, error) {
	return s.reservationRepo.FindByID(ctx, id)
}

// Cancel chuyển reservation sang cancelled. Cờ reserved của spot chỉ được
// hạ khi không còn reservation active nào khác đang phủ thời điểm hiện tại.
func (s *ReservationService) Cancel(ctx context.Context, id string) (*domain.Reservation, error) {
	reservation, err := s.reservationRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if reservation.Status != domain.ReservationActive {
		return nil, fmt.Errorf("reservation %s có trạng thái '%s', không thể hủy", id, reservation.Status)
	}

	if err := s.reservationRepo.UpdateStatus(ctx, id, domain.ReservationCancelled); err != nil {
		return nil, fmt.Errorf("lỗi hủy reservation %s: %w", id, err)
	}
	reservation.Status = domain.ReservationCancelled

	s.releaseReservedFlagIfIdle(ctx, reservation.SpotID)

	log.Printf("Đã hủy reservation %s (spot '%s').", id, reservation.SpotID)
	return reservation, nil
}

// UpdatePayment chuyển trạng thái thanh toán (mô phỏng callback từ cổng thanh toán).
func (s *ReservationService) UpdatePayment(ctx context.Context, id string, status domain.PaymentStatus) error {
	switch status {
	case domain.PaymentPending, domain.PaymentPaid, domain.PaymentFailed, domain.PaymentRefunded:
	default:
		return fmt.Errorf("trạng thái thanh toán không hợp lệ: '%s'", status)
	}
	return s.reservationRepo.UpdatePaymentStatus(ctx, id, status)
}

// releaseReservedFlagIfIdle hạ cờ reserved nếu không còn reservation active
// nào của spot phủ thời điểm hiện tại. Phải re-check tại thời điểm ghi vì
// một reservation khác có thể vừa được tạo giữa chừng.
func (s *ReservationService) releaseReservedFlagIfIdle(ctx context.Context, spotID string) {
	now := s.now()
	_, err := s.reservationRepo.FindActiveCovering(ctx, spotID, now)
	if err == nil {
		// Vẫn còn reservation active đang phủ — giữ nguyên cờ.
		return
	}
	if !errors.Is(err, repository.ErrNotFound) {
		log.Printf("Lỗi kiểm tra reservation active của spot '%s': %v", spotID, err)
		return
	}

	if err := s.spotRepo.SetReserved(ctx, spotID, false); err != nil {
		log.Printf("Lỗi hạ cờ reserved cho spot '%s': %v", spotID, err)
		return
	}
	if spot, findErr := s.spotRepo.FindByID(ctx, spotID); findErr == nil {
		spot.Status = spot.DeriveStatus()
		if cacheErr := s.cache.SetStatus(ctx, spot); cacheErr != nil {
			log.Printf("Lỗi cập nhật cache cho spot '%s': %v", spotID, cacheErr)
		}
	}
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
