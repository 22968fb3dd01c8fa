package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"parking_iot/internal/config"
	"parking_iot/internal/domain"
	"parking_iot/internal/repository"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iotdataplane"
)

// IoTService là cầu nối giữa backend và các sensor qua AWS IoT Core:
// nhận message từ SQS (do IoT Rule đẩy vào) và publish lệnh cấu hình
// ngược xuống topic parking/config/{sensor_id}.
type IoTService struct {
	occupancyService *OccupancyService
	spotRepo         repository.SpotRepository
	iotDataClient    *iotdataplane.Client
	cfg              *config.Config
}

func NewIoTService(
	occupancyService *OccupancyService,
	spotRepo repository.SpotRepository,
	iotDataClient *iotdataplane.Client,
	cfg *config.Config,
) *IoTService {
	return &IoTService{
		occupancyService: occupancyService,
		spotRepo:         spotRepo,
		iotDataClient:    iotDataClient,
		cfg:              cfg,
	}
}

// HandleSensorMessage xử lý một message body từ SQS. Loại message được suy
// từ topic MQTT gốc (status/heartbeat/error) do IoT Rule gắn kèm.
func (s *IoTService) HandleSensorMessage(ctx context.Context, sqsMessageBody string) error {
	var rawPayload json.RawMessage
	if err := json.Unmarshal([]byte(sqsMessageBody), &rawPayload); err != nil {
		return fmt.Errorf("lỗi unmarshal raw payload: %w", err)
	}

	var genericEvent domain.GenericSensorEvent
	if err := json.Unmarshal(rawPayload, &genericEvent); err != nil {
		return fmt.Errorf("lỗi unmarshal generic sensor event: %w", err)
	}
	genericEvent.RawPayload = rawPayload

	messageType := genericEvent.MessageType()
	log.Printf("IoTService: Message '%s' từ sensor '%s' (topic: %s)",
		messageType, genericEvent.SensorID, genericEvent.ReceivedMqttTopic)

	switch messageType {
	case domain.MessageStatus:
		var event domain.SensorStatusEvent
		if err := json.Unmarshal(rawPayload, &event); err != nil {
			return fmt.Errorf("lỗi unmarshal status event: %w", err)
		}
		event.RawPayload = rawPayload
		return s.occupancyService.IngestStatus(ctx, event)

	case domain.MessageHeartbeat:
		var event domain.SensorHeartbeatEvent
		if err := json.Unmarshal(rawPayload, &event); err != nil {
			return fmt.Errorf("lỗi unmarshal heartbeat event: %w", err)
		}
		return s.occupancyService.HandleHeartbeat(ctx, event)

	case domain.MessageError:
		var event domain.SensorErrorEvent
		if err := json.Unmarshal(rawPayload, &event); err != nil {
			return fmt.Errorf("lỗi unmarshal error event: %w", err)
		}
		return s.occupancyService.HandleError(ctx, event)

	default:
		// Message không biết loại: log rồi bỏ qua, không retry.
		log.Printf("IoTService: Loại message không xác định '%s' từ topic '%s'. Bỏ qua.",
			messageType, genericEvent.ReceivedMqttTopic)
		return nil
	}
}

// PushSensorConfig publish cấu hình đo mới xuống một sensor cụ thể.
// Sensor subscribe topic parking/config/{sensor_id} và áp dụng ngay khi nhận.
func (s *IoTService) PushSensorConfig(ctx context.Context, sensorID string, dto domain.SensorConfigDTO) (string, error) {
	// Không publish vào topic của thiết bị chưa đăng ký.
	if _, err := s.spotRepo.FindByID(ctx, sensorID); err != nil {
		return "", err
	}

	requestID := fmt.Sprintf("cfg_%s_%d", sensorID, time.Now().UnixNano())
	command := domain.SensorConfigCommand{
		OccupiedThresholdCm:   dto.OccupiedThresholdCm,
		MeasurementSamples:    dto.MeasurementSamples,
		DebounceCount:         dto.DebounceCount,
		MeasurementIntervalMs: dto.MeasurementIntervalMs,
		RequestID:             requestID,
	}

	payloadBytes, err := json.Marshal(command)
	if err != nil {
		return "", fmt.Errorf("lỗi marshal lệnh cấu hình: %w", err)
	}

	topic := fmt.Sprintf("parking/config/%s", sensorID)
	log.Printf("IoTService: Đang publish cấu hình (ReqID: %s) tới topic %s", requestID, topic)
	_, err = s.iotDataClient.Publish(ctx, &iotdataplane.PublishInput{
		Topic:   aws.String(topic),
		Qos:     1,
		Payload: payloadBytes,
	})
	if err != nil {
		return "", fmt.Errorf("lỗi publish lệnh cấu hình MQTT: %w", err)
	}

	log.Printf("Đã gửi cấu hình mới (ReqID: %s) tới sensor %s", requestID, sensorID)
	return requestID, nil
}
