package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort string
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSslMode  string

	RedisAddr     string
	RedisPassword string
	SpotCacheTTL  time.Duration

	AWSRegion         string
	SQSSensorQueueURL string
	IoTMQTTEndpoint   string

	JWTSecret          string
	JWTExpirationHours time.Duration

	// Tham số cảm biến siêu âm (tương ứng config trong firmware HC-SR04)
	OccupiedThresholdCm float64
	MinDistanceCm       float64
	MaxDistanceCm       float64
	MeasurementSamples  int
	DebounceCount       int
	MeasurementInterval time.Duration
	SensorReadTimeout   time.Duration

	// Tham số cho reservation sweep
	ReservationGrace    time.Duration
	ExpirySweepInterval time.Duration

	// Ngưỡng confidence tối thiểu để Rekognition coi là có xe trong khung hình
	VehicleConfidenceThreshold float32

	DefaultHourlyRate float64
}

func Load() *Config {
	err := godotenv.Load()
	if err != nil && !os.IsNotExist(err) {
		log.Printf("Cảnh báo: Không thể tải file .env: %v", err)
	}

	dbPort, _ := strconv.Atoi(getEnv("DB_PORT", "5432"))
	jwtExpHours, _ := strconv.Atoi(getEnv("JWT_EXPIRATION_HOURS", "24"))

	thresholdCm, _ := strconv.ParseFloat(getEnv("OCCUPIED_THRESHOLD_CM", "200"), 64)
	minCm, _ := strconv.ParseFloat(getEnv("MIN_DISTANCE_CM", "2"), 64)
	maxCm, _ := strconv.ParseFloat(getEnv("MAX_DISTANCE_CM", "400"), 64)
	samples, _ := strconv.Atoi(getEnv("MEASUREMENT_SAMPLES", "5"))
	debounce, _ := strconv.Atoi(getEnv("DEBOUNCE_COUNT", "3"))
	intervalSec, _ := strconv.Atoi(getEnv("MEASUREMENT_INTERVAL_SECONDS", "30"))
	readTimeoutMs, _ := strconv.Atoi(getEnv("SENSOR_TIMEOUT_MS", "30"))

	graceMin, _ := strconv.Atoi(getEnv("RESERVATION_GRACE_MINUTES", "60"))
	sweepMin, _ := strconv.Atoi(getEnv("EXPIRY_SWEEP_INTERVAL_MINUTES", "5"))
	cacheTTLSec, _ := strconv.Atoi(getEnv("SPOT_CACHE_TTL_SECONDS", "3600"))

	vehicleConf, _ := strconv.ParseFloat(getEnv("VEHICLE_CONFIDENCE_THRESHOLD", "80"), 32)
	hourlyRate, _ := strconv.ParseFloat(getEnv("DEFAULT_HOURLY_RATE", "2.0"), 64)

	return &Config{
		ServerPort: getEnv("SERVER_PORT", "8080"),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     dbPort,
		DBUser:     getEnv("DB_USER", "youruser"),         // << THAY THẾ
		DBPassword: getEnv("DB_PASSWORD", "yourpassword"), // << THAY THẾ
		DBName:     getEnv("DB_NAME", "parking_db"),
		DBSslMode:  getEnv("DB_SSLMODE", "disable"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SpotCacheTTL:  time.Duration(cacheTTLSec) * time.Second,

		AWSRegion:         getEnv("AWS_REGION", "ap-southeast-1"),
		SQSSensorQueueURL: getEnv("SQS_SENSOR_QUEUE_URL", ""), // << ĐIỀN URL SQS QUEUE
		IoTMQTTEndpoint:   getEnv("IOT_MQTT_ENDPOINT", ""),    // << ĐIỀN AWS IOT ENDPOINT

		JWTSecret:          getEnv("JWT_SECRET", "your-very-secret-key-for-jwt-!@#$"),
		JWTExpirationHours: time.Duration(jwtExpHours) * time.Hour,

		OccupiedThresholdCm: thresholdCm,
		MinDistanceCm:       minCm,
		MaxDistanceCm:       maxCm,
		MeasurementSamples:  samples,
		DebounceCount:       debounce,
		MeasurementInterval: time.Duration(intervalSec) * time.Second,
		SensorReadTimeout:   time.Duration(readTimeoutMs) * time.Millisecond,

		ReservationGrace:    time.Duration(graceMin) * time.Minute,
		ExpirySweepInterval: time.Duration(sweepMin) * time.Minute,

		VehicleConfidenceThreshold: float32(vehicleConf),
		DefaultHourlyRate:          hourlyRate,
	}
}

func getEnv(key string, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	log.Printf("Biến môi trường '%s' không được đặt, sử dụng giá trị mặc định: '%s'", key, fallback)
	return fallback
}
