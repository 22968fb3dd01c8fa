package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveStatusPrecedence(t *testing.T) {
	// Thứ tự ưu tiên cố định: disabled > occupied > reserved > available.
	tests := []struct {
		name     string
		disabled bool
		occupied bool
		reserved bool
		want     SpotStatus
	}{
		{"tất cả cờ tắt", false, false, false, SpotAvailable},
		{"chỉ reserved", false, false, true, SpotReserved},
		{"chỉ occupied", false, true, false, SpotOccupied},
		{"occupied thắng reserved", false, true, true, SpotOccupied},
		{"chỉ disabled", true, false, false, SpotDisabled},
		{"disabled thắng reserved", true, false, true, SpotDisabled},
		{"disabled thắng occupied", true, true, false, SpotDisabled},
		{"disabled thắng tất cả", true, true, true, SpotDisabled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveStatus(tt.disabled, tt.occupied, tt.reserved))
		})
	}
}

func TestValidSensorType(t *testing.T) {
	assert.True(t, ValidSensorType(SensorUltrasonic))
	assert.True(t, ValidSensorType(SensorMagnetic))
	assert.True(t, ValidSensorType(SensorCamera))
	assert.True(t, ValidSensorType(SensorInfrared))
	assert.False(t, ValidSensorType(SensorType("radar")))
}

func TestSensorTypeHasDistance(t *testing.T) {
	assert.True(t, SensorUltrasonic.HasDistance())
	assert.False(t, SensorMagnetic.HasDistance())
	assert.False(t, SensorCamera.HasDistance())
	assert.False(t, SensorInfrared.HasDistance())
}

func TestGenericSensorEventMessageType(t *testing.T) {
	e := &GenericSensorEvent{ReceivedMqttTopic: "parking/sensor/PARK_001/status"}
	assert.Equal(t, MessageStatus, e.MessageType())

	e.ReceivedMqttTopic = "parking/sensor/PARK_001/heartbeat"
	assert.Equal(t, MessageHeartbeat, e.MessageType())

	e.ReceivedMqttTopic = "parking/sensor/PARK_001/error"
	assert.Equal(t, MessageError, e.MessageType())

	e.ReceivedMqttTopic = ""
	assert.Equal(t, "", e.MessageType())
}
