package service

import (
	"context"
	"testing"
	"time"

	"parking_iot/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type occupancyFixture struct {
	service     *OccupancyService
	spotRepo    *fakeSpotRepo
	readingRepo *fakeReadingRepo
	healthRepo  *fakeHealthRepo
	cache       *fakeSpotCache
	ws          *fakeWSManager
	base        time.Time
}

func newOccupancyFixture(t *testing.T) *occupancyFixture {
	t.Helper()
	f := &occupancyFixture{
		spotRepo:    newFakeSpotRepo(),
		readingRepo: &fakeReadingRepo{},
		healthRepo:  newFakeHealthRepo(),
		cache:       newFakeSpotCache(),
		ws:          &fakeWSManager{},
		base:        time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC),
	}
	f.service = NewOccupancyService(f.spotRepo, f.readingRepo, f.healthRepo, f.cache, f.ws, testConfig())
	f.spotRepo.put(testSpot("PARK_001"))
	return f
}

func (f *occupancyFixture) statusEvent(sensorID string, distance float64, offset time.Duration) domain.SensorStatusEvent {
	d := distance
	return domain.SensorStatusEvent{
		GenericSensorEvent: domain.GenericSensorEvent{SensorID: sensorID},
		Occupied:           distance < 200,
		Timestamp:          f.base.Add(offset).Format(time.RFC3339Nano),
		DistanceCm:         &d,
	}
}

func TestIngestStatusDebouncesBeforeCommit(t *testing.T) {
	f := newOccupancyFixture(t)
	ctx := context.Background()

	// Hai mẫu có xe: chưa đủ debounce count 3, spot vẫn trống.
	require.NoError(t, f.service.IngestStatus(ctx, f.statusEvent("PARK_001", 45, 0)))
	require.NoError(t, f.service.IngestStatus(ctx, f.statusEvent("PARK_001", 44, time.Second)))
	assert.False(t, f.spotRepo.get("PARK_001").IsOccupied)
	assert.Empty(t, f.ws.statusChanges)

	// Mẫu thứ ba commit transition.
	require.NoError(t, f.service.IngestStatus(ctx, f.statusEvent("PARK_001", 43, 2*time.Second)))
	assert.True(t, f.spotRepo.get("PARK_001").IsOccupied)
	require.Len(t, f.ws.statusChanges, 1)
	assert.Equal(t, domain.EventSpotStatusChanged, f.ws.statusChanges[0].Event)
	assert.True(t, f.ws.statusChanges[0].Occupied)

	// Mọi lần đo đều vào history, kể cả khi chưa commit.
	assert.Equal(t, 3, f.readingRepo.count("PARK_001"))

	// Cache được cập nhật cùng transition.
	cached, err := f.cache.GetStatus(ctx, "PARK_001")
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.True(t, cached.IsOccupied)
	assert.Equal(t, domain.SpotOccupied, cached.Status)
}

func TestIngestStatusNoiseDoesNotFlipState(t *testing.T) {
	f := newOccupancyFixture(t)
	ctx := context.Background()

	// Một mẫu nhiễu đơn lẻ giữa các mẫu trống không được lật trạng thái.
	for i, distance := range []float64{250, 45, 251, 252} {
		require.NoError(t, f.service.IngestStatus(ctx, f.statusEvent("PARK_001", distance, time.Duration(i)*time.Second)))
	}
	assert.False(t, f.spotRepo.get("PARK_001").IsOccupied)
	assert.Empty(t, f.ws.statusChanges)
	assert.Equal(t, 4, f.readingRepo.count("PARK_001"))
}

func TestIngestStatusStaleEventDoesNotRegressState(t *testing.T) {
	f := newOccupancyFixture(t)
	ctx := context.Background()

	// Commit OCCUPIED với 3 mẫu.
	for i, distance := range []float64{45, 44, 43} {
		require.NoError(t, f.service.IngestStatus(ctx, f.statusEvent("PARK_001", distance, time.Duration(i)*time.Second)))
	}
	require.True(t, f.spotRepo.get("PARK_001").IsOccupied)

	// Message đến muộn với timestamp cũ hơn: lưu history nhưng không
	// được phép lùi trạng thái.
	stale := f.statusEvent("PARK_001", 250, -time.Minute)
	require.NoError(t, f.service.IngestStatus(ctx, stale))

	assert.True(t, f.spotRepo.get("PARK_001").IsOccupied)
	assert.Equal(t, 4, f.readingRepo.count("PARK_001"))
	require.Len(t, f.ws.statusChanges, 1)
}

func TestIngestStatusOutOfRangeDistanceSkipsDebounce(t *testing.T) {
	f := newOccupancyFixture(t)
	ctx := context.Background()

	// 500cm ngoài dải [2, 400]: không được chạm vào bộ đếm debounce.
	require.NoError(t, f.service.IngestStatus(ctx, f.statusEvent("PARK_001", 45, 0)))
	require.NoError(t, f.service.IngestStatus(ctx, f.statusEvent("PARK_001", 500, time.Second)))
	require.NoError(t, f.service.IngestStatus(ctx, f.statusEvent("PARK_001", 44, 2*time.Second)))
	require.NoError(t, f.service.IngestStatus(ctx, f.statusEvent("PARK_001", 43, 3*time.Second)))

	// 3 mẫu hợp lệ liên tiếp (mẫu hỏng không reset): transition commit.
	assert.True(t, f.spotRepo.get("PARK_001").IsOccupied)
}

func TestIngestStatusPassthroughForMagneticSensor(t *testing.T) {
	f := newOccupancyFixture(t)
	ctx := context.Background()

	spot := testSpot("PARK_MAG")
	spot.SensorType = domain.SensorMagnetic
	f.spotRepo.put(spot)

	field := 512.0
	event := domain.SensorStatusEvent{
		GenericSensorEvent: domain.GenericSensorEvent{SensorID: "PARK_MAG"},
		Occupied:           true,
		Timestamp:          f.base.Format(time.RFC3339Nano),
		MagneticField:      &field,
	}

	// Sensor không có distance: boolean của firmware áp dụng ngay,
	// không qua debouncer.
	require.NoError(t, f.service.IngestStatus(ctx, event))
	assert.True(t, f.spotRepo.get("PARK_MAG").IsOccupied)
	require.Len(t, f.ws.statusChanges, 1)
}

func TestIngestStatusAutoProvisionsUnknownSensor(t *testing.T) {
	f := newOccupancyFixture(t)
	ctx := context.Background()

	event := f.statusEvent("PARK_NEW", 250, 0)
	require.NoError(t, f.service.IngestStatus(ctx, event))

	spot, err := f.spotRepo.FindByID(ctx, "PARK_NEW")
	require.NoError(t, err)
	assert.Equal(t, "L1", spot.Level)
	assert.Equal(t, "A", spot.Zone)
	assert.Equal(t, domain.SensorUltrasonic, spot.SensorType)
	assert.Equal(t, 2.0, spot.HourlyRate)
}

func TestIngestStatusUpdatesSensorHealth(t *testing.T) {
	f := newOccupancyFixture(t)
	ctx := context.Background()

	battery := 87
	signal := -62
	event := f.statusEvent("PARK_001", 250, 0)
	event.BatteryLevel = &battery
	event.SignalStrength = &signal
	event.FirmwareVersion = "1.2.0"

	require.NoError(t, f.service.IngestStatus(ctx, event))

	health, err := f.healthRepo.FindBySensorID(ctx, "PARK_001")
	require.NoError(t, err)
	assert.True(t, health.IsOnline)
	assert.True(t, health.LastDataAt.Valid)
	assert.EqualValues(t, 87, health.BatteryLevel.Int64)
	assert.EqualValues(t, -62, health.SignalStrength.Int64)
	assert.Equal(t, "1.2.0", health.FirmwareVersion)
}

func TestHandleErrorIncrementsAndBroadcasts(t *testing.T) {
	f := newOccupancyFixture(t)
	ctx := context.Background()

	event := domain.SensorErrorEvent{
		GenericSensorEvent: domain.GenericSensorEvent{SensorID: "PARK_001"},
		ErrorType:          "no_valid_reading",
		Timestamp:          f.base.Format(time.RFC3339Nano),
	}
	require.NoError(t, f.service.HandleError(ctx, event))

	assert.Equal(t, 1, f.healthRepo.errorCount["PARK_001"])
	require.Len(t, f.ws.sensorErrors, 1)
	assert.Equal(t, domain.EventSensorError, f.ws.sensorErrors[0].Event)
	assert.Equal(t, "no_valid_reading", f.ws.sensorErrors[0].ErrorType)
}

func TestHandleHeartbeatMarksOnline(t *testing.T) {
	f := newOccupancyFixture(t)
	ctx := context.Background()

	event := domain.SensorHeartbeatEvent{
		GenericSensorEvent: domain.GenericSensorEvent{SensorID: "PARK_001"},
		Status:             "online",
		Timestamp:          f.base.Format(time.RFC3339Nano),
	}
	require.NoError(t, f.service.HandleHeartbeat(ctx, event))

	health, err := f.healthRepo.FindBySensorID(ctx, "PARK_001")
	require.NoError(t, err)
	assert.True(t, health.IsOnline)
	assert.True(t, health.LastHeartbeatAt.Valid)
}

func TestMarkOfflineKeepsSensorWithFreshHeartbeat(t *testing.T) {
	f := newOccupancyFixture(t)
	ctx := context.Background()

	// Sensor đo lần cuối 10 phút trước nhưng vẫn heartbeat đều: phải giữ
	// online. Sensor im lặng hoàn toàn thì bị đánh dấu offline.
	require.NoError(t, f.service.IngestStatus(ctx, f.statusEvent("PARK_001", 250, -10*time.Minute)))
	heartbeat := domain.SensorHeartbeatEvent{
		GenericSensorEvent: domain.GenericSensorEvent{SensorID: "PARK_001"},
		Status:             "online",
		Timestamp:          f.base.Format(time.RFC3339Nano),
	}
	require.NoError(t, f.service.HandleHeartbeat(ctx, heartbeat))

	f.spotRepo.put(testSpot("PARK_SILENT"))
	silent := f.statusEvent("PARK_SILENT", 250, -10*time.Minute)
	require.NoError(t, f.service.IngestStatus(ctx, silent))

	cutoff := f.base.Add(-5 * time.Minute)
	n, err := f.healthRepo.MarkOffline(ctx, cutoff)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	health, err := f.healthRepo.FindBySensorID(ctx, "PARK_001")
	require.NoError(t, err)
	assert.True(t, health.IsOnline)

	health, err = f.healthRepo.FindBySensorID(ctx, "PARK_SILENT")
	require.NoError(t, err)
	assert.False(t, health.IsOnline)
}

func TestGetSpotStatusWarmsCache(t *testing.T) {
	f := newOccupancyFixture(t)
	ctx := context.Background()

	// Cache miss: đọc DB rồi ghi lại cache.
	spot, err := f.service.GetSpotStatus(ctx, "PARK_001")
	require.NoError(t, err)
	assert.Equal(t, domain.SpotAvailable, spot.Status)

	cached, err := f.cache.GetStatus(ctx, "PARK_001")
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, "PARK_001", cached.ID)
}

func TestIngestStatusRejectsMissingSensorID(t *testing.T) {
	f := newOccupancyFixture(t)

	err := f.service.IngestStatus(context.Background(), domain.SensorStatusEvent{})
	require.Error(t, err)
}
