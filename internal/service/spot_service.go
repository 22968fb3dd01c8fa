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
)

// SpotService phục vụ REST API quản lý chỗ đỗ và analytics. Cờ is_occupied
// KHÔNG nằm trong phạm vi của service này — đó là tài sản riêng của
// OccupancyService.
type SpotService struct {
	spotRepo    repository.SpotRepository
	readingRepo repository.ReadingRepository
	healthRepo  repository.SensorHealthRepository
	cache       SpotCache
	cfg         *config.Config
}

func NewSpotService(
	spotRepo repository.SpotRepository,
	readingRepo repository.ReadingRepository,
	healthRepo repository.SensorHealthRepository,
	cache SpotCache,
	cfg *config.Config,
) *SpotService {
	return &SpotService{
		spotRepo:    spotRepo,
		readingRepo: readingRepo,
		healthRepo:  healthRepo,
		cache:       cache,
		cfg:         cfg,
	}
}

func (s *SpotService) Create(ctx context.Context, dto domain.ParkingSpotDTO) (*domain.ParkingSpot, error) {
	sensorType := domain.SensorUltrasonic
	if dto.SensorType != "" {
		sensorType = domain.SensorType(dto.SensorType)
		if !domain.ValidSensorType(sensorType) {
			return nil, fmt.Errorf("loại cảm biến không hợp lệ: '%s'", dto.SensorType)
		}
	}
	hourlyRate := s.cfg.DefaultHourlyRate
	if dto.HourlyRate > 0 {
		hourlyRate = dto.HourlyRate
	}

	spot := &domain.ParkingSpot{
		ID:         dto.ID,
		Location:   dto.Location,
		Level:      dto.Level,
		Zone:       dto.Zone,
		SensorType: sensorType,
		HourlyRate: hourlyRate,
	}
	if dto.IsDisabled != nil {
		spot.IsDisabled = *dto.IsDisabled
	}

	created, err := s.spotRepo.Create(ctx, spot)
	if err != nil {
		return nil, err
	}
	created.Status = created.DeriveStatus()
	return created, nil
}

func (s *SpotService) GetByID(ctx context.Context, id string) (*domain.ParkingSpot, error) {
	spot, err := s.spotRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	spot.Status = spot.DeriveStatus()
	return spot, nil
}

// GetAll trả về toàn bộ spot kèm các bộ đếm tổng hợp cho dashboard.
func (s *SpotService) GetAll(ctx context.Context) (*domain.SpotListResponse, error) {
	spots, err := s.spotRepo.FindAll(ctx)
	if err != nil {
		return nil, err
	}

	resp := &domain.SpotListResponse{Spots: spots, TotalCount: len(spots)}
	for i := range resp.Spots {
		resp.Spots[i].Status = resp.Spots[i].DeriveStatus()
		switch resp.Spots[i].Status {
		case domain.SpotAvailable:
			resp.AvailableCount++
		case domain.SpotOccupied:
			resp.OccupiedCount++
		case domain.SpotReserved:
			resp.ReservedCount++
		}
	}
	return resp, nil
}

// GetAvailable lọc các spot available, filter tùy chọn theo level/zone.
func (s *SpotService) GetAvailable(ctx context.Context, level, zone string) ([]domain.ParkingSpot, error) {
	spots, err := s.spotRepo.FindAvailable(ctx, level, zone)
	if err != nil {
		return nil, err
	}
	for i := range spots {
		spots[i].Status = domain.SpotAvailable
	}
	return spots, nil
}

// Update sửa metadata của spot (location, level, zone, rate, disabled flag).
// Các cờ runtime is_occupied/is_reserved không đi qua endpoint này.
func (s *SpotService) Update(ctx context.Context, id string, dto domain.UpdateParkingSpotDTO) (*domain.ParkingSpot, error) {
	spot, err := s.spotRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if dto.Location != "" {
		spot.Location = dto.Location
	}
	if dto.Level != "" {
		spot.Level = dto.Level
	}
	if dto.Zone != "" {
		spot.Zone = dto.Zone
	}
	if dto.SensorType != "" {
		sensorType := domain.SensorType(dto.SensorType)
		if !domain.ValidSensorType(sensorType) {
			return nil, fmt.Errorf("loại cảm biến không hợp lệ: '%s'", dto.SensorType)
		}
		spot.SensorType = sensorType
	}
	if dto.HourlyRate > 0 {
		spot.HourlyRate = dto.HourlyRate
	}
	if dto.IsDisabled != nil {
		spot.IsDisabled = *dto.IsDisabled
	}

	updated, err := s.spotRepo.Update(ctx, spot)
	if err != nil {
		return nil, err
	}
	updated.Status = updated.DeriveStatus()

	if err := s.cache.SetStatus(ctx, updated); err != nil {
		log.Printf("Lỗi cập nhật cache cho spot '%s': %v", updated.ID, err)
	}
	return updated, nil
}

func (s *SpotService) Delete(ctx context.Context, id string) error {
	if err := s.spotRepo.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.cache.Invalidate(ctx, id); err != nil {
		log.Printf("Lỗi xóa cache cho spot '%s': %v", id, err)
	}
	return nil
}

// GetOccupancyAnalytics tổng hợp tỷ lệ lấp đầy toàn bãi và theo từng tầng.
func (s *SpotService) GetOccupancyAnalytics(ctx context.Context) (*domain.OccupancyAnalytics, error) {
	overall, err := s.spotRepo.CountOverall(ctx)
	if err != nil {
		return nil, fmt.Errorf("lỗi đếm tổng quan: %w", err)
	}
	byLevel, err := s.spotRepo.CountByLevel(ctx)
	if err != nil {
		return nil, fmt.Errorf("lỗi đếm theo tầng: %w", err)
	}
	return &domain.OccupancyAnalytics{
		Overall:   *overall,
		ByLevel:   byLevel,
		Timestamp: time.Now().UTC(),
	}, nil
}

// GetSensorHealth trả về bản tóm tắt sức khỏe của một sensor.
func (s *SpotService) GetSensorHealth(ctx context.Context, sensorID string) (*domain.SensorHealth, error) {
	return s.healthRepo.FindBySensorID(ctx, sensorID)
}

func (s *SpotService) GetAllSensorHealth(ctx context.Context) ([]domain.SensorHealth, error) {
	return s.healthRepo.FindAll(ctx)
}

// GetRecentReadings trả về các reading gần nhất của sensor (mặc định 50).
func (s *SpotService) GetRecentReadings(ctx context.Context, sensorID string, limit int) ([]domain.SensorReading, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	// Xác nhận sensor tồn tại để trả 404 thay vì danh sách rỗng mơ hồ.
	if _, err := s.spotRepo.FindByID(ctx, sensorID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: sensor '%s'", repository.ErrNotFound, sensorID)
		}
		return nil, err
	}
	return s.readingRepo.FindRecentBySensor(ctx, sensorID, limit)
}
