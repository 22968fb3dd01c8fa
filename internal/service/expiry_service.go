package service

import (
	"context"
	"errors"
	"log"
	"time"

	"parking_iot/internal/config"
	"parking_iot/internal/domain"
	"parking_iot/internal/repository"
)

// ExpiryService là goroutine nền duy nhất được phép chuyển reservation
// sang trạng thái expired. Mỗi lần quét gồm hai pha:
//  1. Hết hạn: reservation active đã qua end_time + grace period.
//  2. Kích hoạt: reservation đặt trước mà cửa sổ vừa chạm thời điểm hiện
//     tại nhưng cờ reserved của spot chưa được bật.
type ExpiryService struct {
	reservationRepo repository.ReservationRepository
	spotRepo        repository.SpotRepository
	cache           SpotCache
	wsManager       WebSocketManager
	cfg             *config.Config

	now func() time.Time
}

func NewExpiryService(
	reservationRepo repository.ReservationRepository,
	spotRepo repository.SpotRepository,
	cache SpotCache,
	wsManager WebSocketManager,
	cfg *config.Config,
) *ExpiryService {
	return &ExpiryService{
		reservationRepo: reservationRepo,
		spotRepo:        spotRepo,
		cache:           cache,
		wsManager:       wsManager,
		cfg:             cfg,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// Run chạy vòng lặp sweep cho đến khi context bị hủy.
func (s *ExpiryService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.ExpirySweepInterval)
	defer ticker.Stop()
	log.Printf("Reservation expiry sweep khởi động: chu kỳ %v, grace period %v.",
		s.cfg.ExpirySweepInterval, s.cfg.ReservationGrace)

	for {
		select {
		case <-ctx.Done():
			log.Println("Reservation expiry sweep dừng.")
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce là một lần quét đầy đủ; tách riêng để test không cần ticker.
func (s *ExpiryService) SweepOnce(ctx context.Context) {
	now := s.now()
	s.expireOverdue(ctx, now)
	s.activateDue(ctx, now)
}

func (s *ExpiryService) expireOverdue(ctx context.Context, now time.Time) {
	cutoff := now.Add(-s.cfg.ReservationGrace)
	expired, err := s.reservationRepo.FindExpired(ctx, cutoff)
	if err != nil {
		log.Printf("Lỗi tìm reservation hết hạn: %v", err)
		return
	}

	for _, r := range expired {
		if err := s.reservationRepo.UpdateStatus(ctx, r.ID, domain.ReservationExpired); err != nil {
			log.Printf("Lỗi chuyển reservation %s sang expired: %v", r.ID, err)
			continue
		}
		log.Printf("Reservation %s (spot '%s') hết hạn: end_time %v + grace %v < %v.",
			r.ID, r.SpotID, r.EndTime, s.cfg.ReservationGrace, now)

		// Re-check tại thời điểm ghi: một reservation khác có thể đã được
		// tạo cho spot này trong lúc sweep chạy — khi đó không được hạ cờ.
		_, err := s.reservationRepo.FindActiveCovering(ctx, r.SpotID, now)
		if err == nil {
			log.Printf("Spot '%s' vẫn còn reservation active khác đang phủ, giữ nguyên cờ reserved.", r.SpotID)
			continue
		}
		if !errors.Is(err, repository.ErrNotFound) {
			log.Printf("Lỗi kiểm tra reservation active của spot '%s': %v", r.SpotID, err)
			continue
		}

		if err := s.spotRepo.SetReserved(ctx, r.SpotID, false); err != nil {
			log.Printf("Lỗi hạ cờ reserved cho spot '%s': %v", r.SpotID, err)
			continue
		}
		s.refreshCache(ctx, r.SpotID)
	}
}

func (s *ExpiryService) activateDue(ctx context.Context, now time.Time) {
	due, err := s.reservationRepo.FindDueForActivation(ctx, now)
	if err != nil {
		log.Printf("Lỗi tìm reservation đến hạn kích hoạt: %v", err)
		return
	}

	for _, r := range due {
		err := s.spotRepo.SetReserved(ctx, r.SpotID, true)
		if err != nil {
			switch {
			case errors.Is(err, repository.ErrAlreadyReserved):
				// Một writer khác vừa bật cờ — kết quả mong muốn đã đạt.
			case errors.Is(err, repository.ErrSpotDisabledRow):
				log.Printf("Spot '%s' bị vô hiệu hóa sau khi reservation %s được tạo, không kích hoạt cờ.", r.SpotID, r.ID)
			default:
				log.Printf("Lỗi kích hoạt cờ reserved cho spot '%s' (reservation %s): %v", r.SpotID, r.ID, err)
			}
			continue
		}
		log.Printf("Đã kích hoạt reservation đặt trước %s: spot '%s' chuyển sang reserved.", r.ID, r.SpotID)
		// Dashboard chỉ được báo tại thời điểm cờ thực sự bật.
		s.wsManager.BroadcastSpotReserved(domain.SpotReservedNotification{
			Event:         domain.EventSpotReserved,
			SpotID:        r.SpotID,
			ReservationID: r.ID,
		})
		s.refreshCache(ctx, r.SpotID)
	}
}

func (s *ExpiryService) refreshCache(ctx context.Context, spotID string) {
	spot, err := s.spotRepo.FindByID(ctx, spotID)
	if err != nil {
		log.Printf("Lỗi đọc lại spot '%s' sau sweep: %v", spotID, err)
		return
	}
	spot.Status = spot.DeriveStatus()
	if err := s.cache.SetStatus(ctx, spot); err != nil {
		log.Printf("Lỗi cập nhật cache cho spot '%s': %v", spotID, err)
	}
}
