package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"parking_iot/internal/api"
	"parking_iot/internal/api/handler"
	"parking_iot/internal/api/middleware"
	"parking_iot/internal/cache"
	"parking_iot/internal/config"
	"parking_iot/internal/iot"
	"parking_iot/internal/repository/postgresql"
	"parking_iot/internal/service"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsgo_config "github.com/aws/aws-sdk-go-v2/config" // Alias để tránh trùng tên
	"github.com/aws/aws-sdk-go-v2/service/iotdataplane"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

func main() {
	// 1. Load Configuration
	cfg := config.Load()
	log.Println("Cấu hình đã được tải.")

	// 2. Setup Database Connection
	db, err := postgresql.NewDB(cfg)
	if err != nil {
		log.Fatalf("Không thể kết nối database: %v", err)
	}
	defer db.Close()
	log.Println("Đã kết nối database thành công!")

	// 3. Setup Redis cache cho trạng thái spot
	spotCache, err := cache.NewSpotCache(cfg.RedisAddr, cfg.RedisPassword, cfg.SpotCacheTTL)
	if err != nil {
		log.Fatalf("Không thể kết nối Redis: %v", err)
	}
	defer spotCache.Close()

	// 4. Khởi tạo AWS SDK Config
	awsSDKCfg, err := awsgo_config.LoadDefaultConfig(context.TODO(), awsgo_config.WithRegion(cfg.AWSRegion))
	if err != nil {
		log.Fatalf("Không thể tải AWS SDK config: %v", err)
	}
	log.Println("Đã tải AWS SDK config thành công cho region:", cfg.AWSRegion)

	// 5. Khởi tạo AWS Clients
	sqsClient := sqs.NewFromConfig(awsSDKCfg)
	iotDataPlaneClient := iotdataplane.NewFromConfig(awsSDKCfg, func(o *iotdataplane.Options) {
		if cfg.IoTMQTTEndpoint != "" {
			endpointWithSchema := cfg.IoTMQTTEndpoint
			if !strings.HasPrefix(endpointWithSchema, "https://") && !strings.HasPrefix(endpointWithSchema, "http://") {
				endpointWithSchema = "https://" + endpointWithSchema
			}
			o.BaseEndpoint = aws.String(endpointWithSchema)
		}
	})
	rekognitionClient := rekognition.NewFromConfig(awsSDKCfg)
	log.Println("Đã khởi tạo SQS, IoT Data Plane và Rekognition client.")

	// 6. Initialize Repositories
	userRepo := postgresql.NewPgUserRepository(db)
	spotRepo := postgresql.NewPgSpotRepository(db)
	readingRepo := postgresql.NewPgReadingRepository(db)
	reservationRepo := postgresql.NewPgReservationRepository(db)
	sensorHealthRepo := postgresql.NewPgSensorHealthRepository(db)

	// init websocket manager
	webSocketManager := handler.NewWebSocketManager()
	go webSocketManager.Start()
	log.Println("WebSocket Manager đã được khởi động.")

	// 7. Initialize Services
	authService := service.NewAuthService(userRepo, cfg.JWTSecret, cfg.JWTExpirationHours)
	occupancyService := service.NewOccupancyService(spotRepo, readingRepo, sensorHealthRepo, spotCache, webSocketManager, cfg)
	spotService := service.NewSpotService(spotRepo, readingRepo, sensorHealthRepo, spotCache, cfg)
	reservationService := service.NewReservationService(reservationRepo, spotRepo, spotCache, webSocketManager, cfg)
	expiryService := service.NewExpiryService(reservationRepo, spotRepo, spotCache, webSocketManager, cfg)
	iotService := service.NewIoTService(occupancyService, spotRepo, iotDataPlaneClient, cfg)
	cameraService := service.NewCameraService(rekognitionClient, occupancyService, cfg)

	// 8. Initialize Auth Middleware
	authMiddleware := middleware.NewAuthMiddleware(authService)

	// 9. Khởi tạo và chạy SQS Consumer + các background job
	var wg sync.WaitGroup
	backgroundCtx, cancelBackground := context.WithCancel(context.Background())

	if cfg.SQSSensorQueueURL == "" {
		log.Println("CẢNH BÁO: SQS_SENSOR_QUEUE_URL chưa được cấu hình. SQS Consumer sẽ không chạy.")
	} else {
		sqsConsumer := iot.NewSQSConsumer(sqsClient, cfg, iotService)
		wg.Add(1)
		go func() {
			defer wg.Done()
			sqsConsumer.Start(backgroundCtx)
			log.Println("SQS Consumer đã dừng.")
		}()
	}

	// Reservation expiry sweep: hết hạn + kích hoạt reservation đặt trước
	wg.Add(1)
	go func() {
		defer wg.Done()
		expiryService.Run(backgroundCtx)
	}()

	// Quét sensor offline (không có dữ liệu trong 3 chu kỳ đo)
	wg.Add(1)
	go func() {
		defer wg.Done()
		occupancyService.RunOfflineSweep(backgroundCtx)
	}()

	// 10. Setup HTTP Router
	router := api.SetupRouter(authService, spotService, occupancyService, reservationService,
		iotService, cameraService, authMiddleware, webSocketManager)

	// 11. Start HTTP Server
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}

	go func() {
		log.Printf("Server đang chạy trên port %s", cfg.ServerPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Lỗi ListenAndServe(): %v", err)
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Đang tắt server...")

	cancelBackground()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server buộc phải tắt: %v", err)
	}

	log.Println("Đang chờ các background job dừng (tối đa 5 giây)...")
	c := make(chan struct{})
	go func() {
		defer close(c)
		wg.Wait()
	}()
	select {
	case <-c:
		log.Println("Các background job đã dừng hoàn toàn.")
	case <-time.After(5 * time.Second):
		log.Println("Background job không dừng trong thời gian chờ.")
	}

	log.Println("Server đã tắt.")
}
