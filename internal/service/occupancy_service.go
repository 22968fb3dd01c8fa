package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"parking_iot/internal/config"
	"parking_iot/internal/domain"
	"parking_iot/internal/occupancy"
	"parking_iot/internal/repository"

	"gopkg.in/guregu/null.v4"
)

// Interface cho WebSocket Manager để tránh circular dependency với package handler.
type WebSocketManager interface {
	BroadcastSpotStatusChanged(event domain.SpotStatusChangedNotification)
	BroadcastSpotReserved(event domain.SpotReservedNotification)
	BroadcastSensorError(event domain.SensorErrorNotification)
}

// SpotCache là cache trạng thái spot trên Redis. Lỗi cache chỉ được log,
// không bao giờ làm fail luồng xử lý chính.
type SpotCache interface {
	SetStatus(ctx context.Context, spot *domain.ParkingSpot) error
	GetStatus(ctx context.Context, spotID string) (*domain.ParkingSpot, error)
	Invalidate(ctx context.Context, spotID string) error
}

// OccupancyService là writer duy nhất của cờ is_occupied. Mỗi sensor có
// một debouncer riêng, mỗi spot có một mutex riêng để serialize các cập
// nhật trạng thái (SQS có thể giao message song song).
type OccupancyService struct {
	spotRepo    repository.SpotRepository
	readingRepo repository.ReadingRepository
	healthRepo  repository.SensorHealthRepository
	cache       SpotCache
	wsManager   WebSocketManager
	cfg         *config.Config

	filter *occupancy.SampleFilter

	mu          sync.Mutex
	debouncers  map[string]*occupancy.Debouncer
	spotLocks   map[string]*sync.Mutex
	lastApplied map[string]time.Time // Timestamp sự kiện cuối đã áp dụng cho từng sensor
}

func NewOccupancyService(
	spotRepo repository.SpotRepository,
	readingRepo repository.ReadingRepository,
	healthRepo repository.SensorHealthRepository,
	cache SpotCache,
	wsManager WebSocketManager,
	cfg *config.Config,
) *OccupancyService {
	return &OccupancyService{
		spotRepo:    spotRepo,
		readingRepo: readingRepo,
		healthRepo:  healthRepo,
		cache:       cache,
		wsManager:   wsManager,
		cfg:         cfg,
		filter:      occupancy.NewSampleFilter(cfg.MinDistanceCm, cfg.MaxDistanceCm),
		debouncers:  make(map[string]*occupancy.Debouncer),
		spotLocks:   make(map[string]*sync.Mutex),
		lastApplied: make(map[string]time.Time),
	}
}

func (s *OccupancyService) lockSpot(sensorID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.spotLocks[sensorID]
	if !ok {
		l = &sync.Mutex{}
		s.spotLocks[sensorID] = l
	}
	return l
}

func (s *OccupancyService) debouncerFor(sensorID string) *occupancy.Debouncer {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.debouncers[sensorID]
	if !ok {
		d = occupancy.NewDebouncer(s.cfg.OccupiedThresholdCm, s.cfg.DebounceCount)
		s.debouncers[sensorID] = d
	}
	return d
}

// IngestStatus xử lý một message trên topic parking/sensor/{id}/status.
// Reading luôn được ghi vào history (append-only); trạng thái spot chỉ đổi
// khi debouncer commit một transition và sự kiện không cũ hơn sự kiện đã
// áp dụng trước đó.
func (s *OccupancyService) IngestStatus(ctx context.Context, event domain.SensorStatusEvent) error {
	if event.SensorID == "" {
		return fmt.Errorf("sự kiện status thiếu sensor_id")
	}

	eventTime := parseSensorTimestamp(event.Timestamp)

	lock := s.lockSpot(event.SensorID)
	lock.Lock()
	defer lock.Unlock()

	spot, err := s.findOrProvisionSpot(ctx, event)
	if err != nil {
		return err
	}

	// Sự kiện đến muộn (SQS không đảm bảo thứ tự): vẫn lưu vào history
	// nhưng tuyệt đối không cho lùi trạng thái hiện tại của spot.
	stale := false
	if last, ok := s.lastApplied[event.SensorID]; ok && !eventTime.After(last) {
		stale = true
		log.Printf("Sự kiện cũ từ sensor '%s' (event: %v, đã áp dụng: %v). Chỉ lưu history, bỏ qua cập nhật trạng thái.",
			event.SensorID, eventTime, last)
	}

	occupied := event.Occupied
	confidence := 1.0
	applyState := !stale

	if spot.SensorType.HasDistance() && event.DistanceCm != nil {
		if !s.filter.Valid(*event.DistanceCm) {
			// Khoảng cách ngoài dải đo của HC-SR04: không được chạm vào
			// bộ đếm debounce, chỉ ghi nhận như một lần đọc hỏng.
			log.Printf("Khoảng cách %.1fcm từ sensor '%s' ngoài dải [%.1f, %.1f], bỏ qua debounce.",
				*event.DistanceCm, event.SensorID, s.cfg.MinDistanceCm, s.cfg.MaxDistanceCm)
			applyState = false
		} else if !stale {
			raw, change := s.debouncerFor(event.SensorID).Observe(*event.DistanceCm, eventTime)
			occupied = raw.Candidate
			confidence = raw.Confidence
			// Chỉ transition đã commit mới được phép ghi xuống spot.
			applyState = change != nil
		}
	} else if spot.SensorType.HasDistance() && event.DistanceCm == nil {
		// Sensor siêu âm nhưng không gửi distance: tin boolean của firmware
		// (firmware đã tự debounce) nhưng log lại để theo dõi.
		log.Printf("Sensor siêu âm '%s' gửi status không kèm distance_cm, dùng occupied=%t của firmware.",
			event.SensorID, event.Occupied)
	}

	if err := s.persistReading(ctx, event, eventTime, occupied); err != nil {
		log.Printf("Lỗi lưu sensor reading cho '%s': %v", event.SensorID, err)
		// Không block cập nhật trạng thái vì lỗi ghi history.
	}

	s.touchHealth(ctx, event, eventTime)

	if !stale {
		s.lastApplied[event.SensorID] = eventTime
	}

	if applyState && occupied != spot.IsOccupied {
		if err := s.spotRepo.SetOccupied(ctx, spot.ID, occupied, eventTime); err != nil {
			return fmt.Errorf("lỗi cập nhật is_occupied cho spot '%s': %w", spot.ID, err)
		}
		log.Printf("Spot '%s' chuyển %t -> %t (confidence %.2f)", spot.ID, spot.IsOccupied, occupied, confidence)

		spot.IsOccupied = occupied
		spot.LastUpdated = eventTime
		spot.Status = spot.DeriveStatus()

		if err := s.cache.SetStatus(ctx, spot); err != nil {
			log.Printf("Lỗi cập nhật cache cho spot '%s': %v", spot.ID, err)
		}
		s.wsManager.BroadcastSpotStatusChanged(domain.SpotStatusChangedNotification{
			Event:     domain.EventSpotStatusChanged,
			SpotID:    spot.ID,
			Occupied:  occupied,
			Timestamp: eventTime,
		})
	}
	return nil
}

// findOrProvisionSpot tự động đăng ký spot mới khi nhận dữ liệu từ một
// sensor chưa biết, giống hành vi của dashboard cũ (level L1, zone A mặc định).
func (s *OccupancyService) findOrProvisionSpot(ctx context.Context, event domain.SensorStatusEvent) (*domain.ParkingSpot, error) {
	spot, err := s.spotRepo.FindByID(ctx, event.SensorID)
	if err == nil {
		return spot, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("lỗi tìm spot '%s': %w", event.SensorID, err)
	}

	sensorType := domain.SensorInfrared
	if event.DistanceCm != nil {
		sensorType = domain.SensorUltrasonic
	} else if event.MagneticField != nil {
		sensorType = domain.SensorMagnetic
	}

	newSpot := &domain.ParkingSpot{
		ID:         event.SensorID,
		Location:   orDefault(event.Location, fmt.Sprintf("Chỗ đỗ %s", event.SensorID)),
		Level:      orDefault(event.Level, "L1"),
		Zone:       orDefault(event.Zone, "A"),
		SensorType: sensorType,
		HourlyRate: s.cfg.DefaultHourlyRate,
	}
	created, err := s.spotRepo.Create(ctx, newSpot)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateEntry) {
			// Một message song song đã kịp provision — đọc lại.
			return s.spotRepo.FindByID(ctx, event.SensorID)
		}
		return nil, fmt.Errorf("lỗi auto-provision spot '%s': %w", event.SensorID, err)
	}
	log.Printf("Đã auto-provision spot '%s' (level %s, zone %s, sensor %s)", created.ID, created.Level, created.Zone, created.SensorType)
	return created, nil
}

func (s *OccupancyService) persistReading(ctx context.Context, event domain.SensorStatusEvent, at time.Time, occupied bool) error {
	reading := &domain.SensorReading{
		SensorID:  event.SensorID,
		Timestamp: at,
		Occupied:  occupied,
		RawData:   event.RawPayload,
	}
	if event.DistanceCm != nil {
		reading.DistanceCm = null.FloatFrom(*event.DistanceCm)
	}
	if event.MagneticField != nil {
		reading.MagneticField = null.FloatFrom(*event.MagneticField)
	}
	if event.BatteryLevel != nil {
		reading.BatteryLevel = null.IntFrom(int64(*event.BatteryLevel))
	}
	if event.SignalStrength != nil {
		reading.SignalStrength = null.IntFrom(int64(*event.SignalStrength))
	}
	return s.readingRepo.Create(ctx, reading)
}

func (s *OccupancyService) touchHealth(ctx context.Context, event domain.SensorStatusEvent, at time.Time) {
	health := &domain.SensorHealth{
		SensorID:        event.SensorID,
		LastDataAt:      null.TimeFrom(at),
		FirmwareVersion: event.FirmwareVersion,
		IsOnline:        true,
	}
	if event.BatteryLevel != nil {
		health.BatteryLevel = null.IntFrom(int64(*event.BatteryLevel))
	}
	if event.SignalStrength != nil {
		health.SignalStrength = null.IntFrom(int64(*event.SignalStrength))
	}
	if err := s.healthRepo.Upsert(ctx, health); err != nil {
		log.Printf("Lỗi cập nhật sensor health cho '%s': %v", event.SensorID, err)
	}
}

// HandleHeartbeat xử lý message trên topic parking/sensor/{id}/heartbeat.
func (s *OccupancyService) HandleHeartbeat(ctx context.Context, event domain.SensorHeartbeatEvent) error {
	if event.SensorID == "" {
		return fmt.Errorf("heartbeat thiếu sensor_id")
	}
	at := parseSensorTimestamp(event.Timestamp)
	health := &domain.SensorHealth{
		SensorID:        event.SensorID,
		LastHeartbeatAt: null.TimeFrom(at),
		FirmwareVersion: event.FirmwareVersion,
		IsOnline:        true,
	}
	if event.BatteryLevel != nil {
		health.BatteryLevel = null.IntFrom(int64(*event.BatteryLevel))
	}
	if event.SignalStrength != nil {
		health.SignalStrength = null.IntFrom(int64(*event.SignalStrength))
	}
	if err := s.healthRepo.Upsert(ctx, health); err != nil {
		return fmt.Errorf("lỗi cập nhật heartbeat cho '%s': %w", event.SensorID, err)
	}
	return nil
}

// HandleError xử lý message trên topic parking/sensor/{id}/error
// (ví dụ "no_valid_reading" khi cả batch đo đều timeout).
func (s *OccupancyService) HandleError(ctx context.Context, event domain.SensorErrorEvent) error {
	if event.SensorID == "" {
		return fmt.Errorf("sự kiện error thiếu sensor_id")
	}
	at := parseSensorTimestamp(event.Timestamp)
	log.Printf("Sensor '%s' báo lỗi: %s", event.SensorID, event.ErrorType)

	if err := s.healthRepo.IncrementErrorCount(ctx, event.SensorID, at); err != nil {
		return fmt.Errorf("lỗi tăng error_count cho '%s': %w", event.SensorID, err)
	}
	s.wsManager.BroadcastSensorError(domain.SensorErrorNotification{
		Event:     domain.EventSensorError,
		SensorID:  event.SensorID,
		ErrorType: event.ErrorType,
		Timestamp: at,
	})
	return nil
}

// GetSpotStatus đọc từ cache trước, miss thì đọc DB rồi làm ấm lại cache.
func (s *OccupancyService) GetSpotStatus(ctx context.Context, spotID string) (*domain.ParkingSpot, error) {
	cached, err := s.cache.GetStatus(ctx, spotID)
	if err != nil {
		log.Printf("Lỗi đọc cache cho spot '%s': %v", spotID, err)
	}
	if cached != nil {
		return cached, nil
	}

	spot, err := s.spotRepo.FindByID(ctx, spotID)
	if err != nil {
		return nil, err
	}
	spot.Status = spot.DeriveStatus()
	if err := s.cache.SetStatus(ctx, spot); err != nil {
		log.Printf("Lỗi làm ấm cache cho spot '%s': %v", spotID, err)
	}
	return spot, nil
}

// RunOfflineSweep đánh dấu offline các sensor không gửi dữ liệu/heartbeat
// trong 3 chu kỳ đo liên tiếp. Chạy như một goroutine nền từ main.
func (s *OccupancyService) RunOfflineSweep(ctx context.Context) {
	interval := s.cfg.MeasurementInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	log.Printf("Offline sweep khởi động, chu kỳ %v.", interval)

	for {
		select {
		case <-ctx.Done():
			log.Println("Offline sweep dừng.")
			return
		case <-ticker.C:
			cutoff := time.Now().UTC().Add(-3 * interval)
			n, err := s.healthRepo.MarkOffline(ctx, cutoff)
			if err != nil {
				log.Printf("Lỗi khi quét sensor offline: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("Đã đánh dấu %d sensor offline (không có dữ liệu từ %v).", n, cutoff)
			}
		}
	}
}

func parseSensorTimestamp(ts string) time.Time {
	if ts == "" {
		return time.Now().UTC()
	}
	parsed, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		log.Printf("Lỗi parse timestamp '%s': %v. Sử dụng thời gian hiện tại.", ts, err)
		return time.Now().UTC()
	}
	return parsed.UTC()
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
