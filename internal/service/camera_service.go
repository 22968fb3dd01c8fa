package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"parking_iot/internal/config"
	"parking_iot/internal/domain"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"
)

// Các label của Rekognition được coi là "có xe trong khung hình".
var vehicleLabels = map[string]bool{
	"Car":        true,
	"Automobile": true,
	"Vehicle":    true,
	"Truck":      true,
	"Motorcycle": true,
	"Van":        true,
}

// CameraService xử lý ảnh từ các spot gắn camera: gọi Rekognition
// DetectLabels rồi đưa kết quả boolean vào cùng đường ống trạng thái như
// mọi sensor khác.
type CameraService struct {
	rekognitionClient *rekognition.Client
	occupancyService  *OccupancyService
	cfg               *config.Config
}

func NewCameraService(rekClient *rekognition.Client, occupancyService *OccupancyService, cfg *config.Config) *CameraService {
	return &CameraService{
		rekognitionClient: rekClient,
		occupancyService:  occupancyService,
		cfg:               cfg,
	}
}

// AnalyzeFrame nhận ảnh dưới dạng bytes, trả về (có xe, confidence của
// label cao nhất). Kết quả được ingest như một status event của sensor.
func (s *CameraService) AnalyzeFrame(ctx context.Context, sensorID string, imageBytes []byte) (bool, float32, error) {
	if s.rekognitionClient == nil {
		return false, 0, fmt.Errorf("Rekognition client chưa được khởi tạo")
	}

	input := &rekognition.DetectLabelsInput{
		Image:         &types.Image{Bytes: imageBytes},
		MaxLabels:     aws.Int32(20),
		MinConfidence: aws.Float32(s.cfg.VehicleConfidenceThreshold),
	}

	log.Printf("CameraService: Đang gọi Rekognition DetectLabels cho sensor '%s'...", sensorID)
	result, err := s.rekognitionClient.DetectLabels(ctx, input)
	if err != nil {
		return false, 0, fmt.Errorf("lỗi Rekognition DetectLabels: %w", err)
	}

	var occupied bool
	var maxConfidence float32
	for _, label := range result.Labels {
		if label.Name == nil || label.Confidence == nil {
			continue
		}
		log.Printf("CameraService: Label '%s', Confidence: %.2f", *label.Name, *label.Confidence)
		if vehicleLabels[*label.Name] && *label.Confidence >= s.cfg.VehicleConfidenceThreshold {
			occupied = true
			if *label.Confidence > maxConfidence {
				maxConfidence = *label.Confidence
			}
		}
	}

	event := domain.SensorStatusEvent{
		GenericSensorEvent: domain.GenericSensorEvent{SensorID: sensorID},
		Occupied:           occupied,
		Timestamp:          time.Now().UTC().Format(time.RFC3339Nano),
	}
	if err := s.occupancyService.IngestStatus(ctx, event); err != nil {
		return occupied, maxConfidence, fmt.Errorf("lỗi ingest kết quả camera cho '%s': %w", sensorID, err)
	}

	log.Printf("CameraService: Sensor '%s': occupied=%t (confidence %.2f)", sensorID, occupied, maxConfidence)
	return occupied, maxConfidence, nil
}
