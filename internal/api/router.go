package api

import (
	"net/http"
	"time"

	"parking_iot/internal/api/handler"
	"parking_iot/internal/api/middleware"
	"parking_iot/internal/service"

	"github.com/gin-gonic/gin"
)

func SetupRouter(
	as *service.AuthService,
	spotService *service.SpotService,
	occupancyService *service.OccupancyService,
	reservationService *service.ReservationService,
	iotService *service.IoTService,
	cameraService *service.CameraService,
	authMw *middleware.AuthMiddleware,
	wsManager *handler.WebSocketManager,
) *gin.Engine {
	r := gin.Default()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())

	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	// Health check cho load balancer / monitoring
	r.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": time.Now().UTC()})
	})

	// WebSocket endpoint (không cần auth cho real-time connection)
	wsHandler := handler.NewWebSocketHandler(wsManager)
	r.GET("/ws", wsHandler.HandleWebSocket)

	authHandler := handler.NewAuthHandler(as)
	authRoutes := r.Group("/auth")
	{
		authRoutes.POST("/register", authHandler.Register)
		authRoutes.POST("/login", authHandler.Login)
	}

	sensorH := handler.NewSensorHandler(occupancyService, spotService, iotService, cameraService)
	// Đường ingest HTTP trực tiếp cho sensor/gateway — không auth, giống
	// đường MQTT (thiết bị không mang JWT).
	r.POST("/api/sensor-data", sensorH.IngestSensorData)

	v1 := r.Group("/api/v1")
	v1.Use(authMw.Authenticate())
	{
		spotH := handler.NewSpotHandler(spotService, occupancyService)
		spotRoutes := v1.Group("/spots")
		{
			spotRoutes.POST("", authMw.AuthorizeRole("admin"), spotH.CreateSpot)
			spotRoutes.GET("", spotH.GetAllSpots)
			spotRoutes.GET("/available", spotH.GetAvailableSpots)
			spotRoutes.GET("/:id", spotH.GetSpotByID)
			spotRoutes.PUT("/:id", authMw.AuthorizeRole("admin"), spotH.UpdateSpot)
			spotRoutes.DELETE("/:id", authMw.AuthorizeRole("admin"), spotH.DeleteSpot)
		}

		reservationH := handler.NewReservationHandler(reservationService)
		reservationRoutes := v1.Group("/reservations")
		{
			reservationRoutes.POST("", reservationH.CreateReservation)
			reservationRoutes.GET("/:id", reservationH.GetReservationByID)
			reservationRoutes.DELETE("/:id", reservationH.CancelReservation)
			reservationRoutes.PUT("/:id/payment", authMw.AuthorizeRole("admin", "operator"), reservationH.UpdatePayment)
		}

		sensorRoutes := v1.Group("/sensors")
		{
			sensorRoutes.GET("", sensorH.GetAllSensorHealth)
			sensorRoutes.GET("/:id/health", sensorH.GetSensorHealth)
			sensorRoutes.GET("/:id/readings", sensorH.GetRecentReadings)
			sensorRoutes.POST("/:id/config", authMw.AuthorizeRole("admin", "operator"), sensorH.PushSensorConfig)
			sensorRoutes.POST("/:id/frame", authMw.AuthorizeRole("admin", "operator"), sensorH.AnalyzeCameraFrame)
		}

		analyticsH := handler.NewAnalyticsHandler(spotService)
		v1.GET("/analytics/occupancy", analyticsH.GetOccupancyAnalytics)
	}
	return r
}
