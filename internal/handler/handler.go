package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"alprgateway/internal/client"
	"alprgateway/internal/domain"
	"alprgateway/internal/service"
)

const serviceName = "ALPR Service for Smart Parking"

type EntryProcessor interface {
	ProcessEntry(ctx context.Context, req service.EntryRequest) *service.EntryResult
}

type ImageLister interface {
	ListImages(ctx context.Context, parkingLotID, imageType string, limit int32) ([]domain.StoredImage, error)
}

// ParkingServer is the downstream surface used by the relay, heartbeat and status endpoints.
type ParkingServer interface {
	VehicleDetected(ctx context.Context, payload json.RawMessage) (*client.Response, error)
	BarrierStatus(ctx context.Context, payload json.RawMessage) (*client.Response, error)
	CheckConnection(ctx context.Context) string
	ServerURL() string
}

type Options struct {
	Port          string
	OCREngine     string
	OCRReady      bool
	MaxUploadSize int64
}

type Handler struct {
	entries EntryProcessor
	images  ImageLister
	parking ParkingServer
	opts    Options
	log     *zap.Logger
	now     func() time.Time
}

func NewHandler(entries EntryProcessor, images ImageLister, parking ParkingServer, opts Options, log *zap.Logger) *Handler {
	return &Handler{
		entries: entries,
		images:  images,
		parking: parking,
		opts:    opts,
		log:     log,
		now:     time.Now,
	}
}

func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": h.now(),
		"service":   serviceName,
		"models": gin.H{
			"license_plate_recognition": h.opts.OCREngine,
		},
		"server_url": h.parking.ServerURL(),
		"port":       h.opts.Port,
	})
}

func (h *Handler) DetectLicensePlate(c *gin.Context) {
	if h.opts.MaxUploadSize > 0 {
		if c.Request.ContentLength > h.opts.MaxUploadSize {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "image too large"})
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.opts.MaxUploadSize)
	}

	file, err := c.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "image too large"})
			return
		}
		h.log.Warn("No image in detect request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "no image provided"})
		return
	}

	f, err := file.Open()
	if err != nil {
		h.log.Error("Failed to open uploaded image", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid image format"})
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		h.log.Error("Failed to read uploaded image", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid image format"})
		return
	}

	result := h.entries.ProcessEntry(c.Request.Context(), service.EntryRequest{
		Image:        data,
		ParkingLotID: c.PostForm("parkingLotId"),
		BarrierID:    c.PostForm("barrierId"),
	})

	status, body := entryResponse(result)
	c.JSON(status, body)
}

// entryResponse is the single place an EntryResult becomes an HTTP reply.
func entryResponse(r *service.EntryResult) (int, gin.H) {
	if r.State == service.StateForwarded {
		return http.StatusOK, gin.H{
			"success":         true,
			"license_plate":   r.LicensePlate,
			"confidence":      r.Confidence,
			"server_response": r.ServerResponse,
			"ocr_result":      r.Diagnostics,
		}
	}

	kind := r.Kind()
	body := gin.H{
		"success": false,
		"error":   errorMessage(r.Err),
	}

	switch kind {
	case domain.KindRecognition:
		body["timestamp"] = r.Timestamp
	case domain.KindNoMatch:
		body["ocr_result"] = r.Diagnostics
	case domain.KindDownstream:
		body["license_plate"] = r.LicensePlate
		body["confidence"] = r.Confidence
		body["ocr_result"] = r.Diagnostics
		if r.ServerStatus != 0 {
			body["server_status"] = r.ServerStatus
		}
	}

	return statusFor(kind), body
}

func statusFor(kind domain.ErrorKind) int {
	if kind.IsClientError() {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func errorMessage(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}

func (h *Handler) Status(c *gin.Context) {
	alprStatus := "inactive"
	if h.opts.OCRReady {
		alprStatus = "active"
	}

	c.JSON(http.StatusOK, gin.H{
		"alpr_status":       alprStatus,
		"server_connection": h.parking.CheckConnection(c.Request.Context()),
		"system_type":       "smart_parking_alpr",
		"timestamp":         h.now(),
	})
}

func (h *Handler) Test(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": serviceName + " is working",
		"features": []string{
			"License plate recognition with " + h.opts.OCREngine,
			"Vietnamese plate validation",
			"Real-time processing",
			"Smart Parking Server integration",
			"Barrier control integration",
		},
		"timestamp": h.now(),
	})
}

func (h *Handler) VehicleDetected(c *gin.Context) {
	h.relay(c, "Vehicle detection forwarded to server", h.parking.VehicleDetected)
}

func (h *Handler) BarrierStatus(c *gin.Context) {
	h.relay(c, "Barrier status forwarded to server", h.parking.BarrierStatus)
}

type relayFunc func(ctx context.Context, payload json.RawMessage) (*client.Response, error)

func (h *Handler) relay(c *gin.Context, message string, forward relayFunc) {
	payload, ok := h.readJSON(c)
	if !ok {
		return
	}

	h.log.Info("Device event received",
		zap.String("path", c.FullPath()),
		zap.ByteString("payload", payload))

	resp, err := forward(c.Request.Context(), payload)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Cannot connect to server: " + err.Error(),
		})
		return
	}
	if !resp.OK() {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Server error: " + strconv.Itoa(resp.StatusCode),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"message":         message,
		"server_response": resp.Body,
		"timestamp":       h.now(),
	})
}

func (h *Handler) Heartbeat(c *gin.Context) {
	payload, ok := h.readJSON(c)
	if !ok {
		return
	}

	h.log.Info("Device heartbeat", zap.ByteString("payload", payload))

	c.JSON(http.StatusOK, gin.H{
		"success":           true,
		"message":           "Heartbeat received",
		"server_connection": h.parking.CheckConnection(c.Request.Context()),
		"timestamp":         h.now(),
	})
}

// readJSON reads a JSON request body. An empty body reads as null.
func (h *Handler) readJSON(c *gin.Context) (json.RawMessage, bool) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "failed to read request body"})
		return nil, false
	}
	if len(raw) == 0 {
		return json.RawMessage("null"), true
	}
	if !json.Valid(raw) {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid JSON payload"})
		return nil, false
	}
	return raw, true
}

func (h *Handler) ListImages(c *gin.Context) {
	var limit int32
	if s := c.Query("limit"); s != "" {
		n, err := strconv.ParseInt(s, 10, 32)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid limit"})
			return
		}
		limit = int32(n)
	}

	images, err := h.images.ListImages(c.Request.Context(), c.Query("parkingLotId"), c.DefaultQuery("type", domain.ImageTypeEntry), limit)
	if err != nil {
		h.log.Error("Failed to list images", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to list images"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "images": images})
}

func (h *Handler) NotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Endpoint not found"})
}

// Recover answers an unhandled panic with a generic 500.
func (h *Handler) Recover(c *gin.Context, recovered any) {
	h.log.Error("Panic while handling request",
		zap.String("path", c.Request.URL.Path),
		zap.Any("panic", recovered))
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Internal server error"})
}
