package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"alprgateway/internal/client"
	"alprgateway/internal/config"
	"alprgateway/internal/handler"
	"alprgateway/internal/metrics"
	"alprgateway/internal/ocr"
	"alprgateway/internal/plate"
	"alprgateway/internal/repository"
	"alprgateway/internal/service"
	"alprgateway/pkg/utils"
)

type Server struct {
	httpServer *http.Server
	cfg        *config.Config
	log        *zap.Logger
}

// New wires every collaborator once and builds the HTTP server.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Server, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	ocrEngine, err := newOCREngine(ctx, cfg, log)
	engine := detectionEngine(ocrEngine, err)
	if engine == nil {
		log.Error("OCR engine unavailable, detection requests will be rejected", zap.Error(err))
	}

	matcher, err := plate.NewMatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to compile plate patterns: %w", err)
	}

	s3Repo, err := repository.NewS3Repository(ctx, &cfg.S3, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 repository: %w", err)
	}

	imageService := service.NewImageService(s3Repo, m, log)
	detectionService := service.NewDetectionService(engine, matcher, m, log)
	parking := client.NewParkingServer(cfg.Parking, nil, m, log)
	entryService := service.NewEntryService(
		utils.NewImageDecoder(cfg.App.AllowedFormats, cfg.App.MaxImagePixels, log),
		detectionService,
		imageService,
		parking,
		m,
		log,
	)

	h := handler.NewHandler(entryService, imageService, parking, handler.Options{
		Port:          cfg.Server.Port,
		OCREngine:     ocr.Name,
		OCRReady:      detectionService.Ready(),
		MaxUploadSize: cfg.App.MaxUploadSize,
	}, log)

	router := NewRouter(h, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), log)

	server := &Server{
		httpServer: &http.Server{
			Addr:    cfg.Server.Host + ":" + cfg.Server.Port,
			Handler: router,
			// OCR, upload and the 10s entry call run back to back.
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   60 * time.Second,
			MaxHeaderBytes: 1 << 20, // 1 MB
		},
		cfg: cfg,
		log: log,
	}

	log.Info("Server created successfully",
		zap.String("host", cfg.Server.Host),
		zap.String("port", cfg.Server.Port),
		zap.String("parking_server", cfg.Parking.ServerURL),
		zap.String("bucket", cfg.S3.BucketName))

	return server, nil
}

func newOCREngine(ctx context.Context, cfg *config.Config, log *zap.Logger) (*ocr.Engine, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.OCR.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return ocr.NewEngine(rekognition.NewFromConfig(awsCfg), float32(cfg.OCR.MinConfidence), log)
}

// detectionEngine returns a nil interface when the engine could not be built,
// which leaves the detection service not ready and /api/status "inactive".
func detectionEngine(engine *ocr.Engine, err error) service.TextEngine {
	if err != nil || engine == nil {
		return nil
	}
	return engine
}

// NewRouter registers the routes. metricsHandler may be nil.
func NewRouter(h *handler.Handler, metricsHandler http.Handler, log *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(requestLogger(log))
	router.Use(gin.CustomRecovery(h.Recover))
	router.Use(cors())

	router.GET("/health", h.HealthCheck)
	if metricsHandler != nil {
		router.GET("/metrics", gin.WrapH(metricsHandler))
	}

	api := router.Group("/api")
	{
		api.POST("/detect", h.DetectLicensePlate)
		api.GET("/status", h.Status)
		api.GET("/test", h.Test)
		api.GET("/images", h.ListImages)

		esp32 := api.Group("/esp32")
		{
			esp32.POST("/vehicle_detected", h.VehicleDetected)
			esp32.POST("/barrier_status", h.BarrierStatus)
			esp32.POST("/heartbeat", h.Heartbeat)
		}
	}

	router.NoRoute(h.NotFound)

	return router
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}

func (s *Server) Run() error {
	s.log.Info("Server is running",
		zap.String("host", s.cfg.Server.Host),
		zap.String("port", s.cfg.Server.Port),
		zap.String("address", s.httpServer.Addr))

	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down server")
	return s.httpServer.Shutdown(ctx)
}
