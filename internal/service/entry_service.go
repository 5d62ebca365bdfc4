package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"alprgateway/internal/client"
	"alprgateway/internal/domain"
	"alprgateway/internal/metrics"
	"alprgateway/pkg/utils"
)

type EntryState string

const (
	StateRejected  EntryState = "rejected"
	StateDegraded  EntryState = "degraded"
	StateForwarded EntryState = "forwarded"
)

var (
	ErrInvalidImage = errors.New("invalid image format")
	ErrNoPlate      = errors.New("no valid license plate detected")
	ErrUploadFailed = errors.New("upload failed")
)

type PlateDetector interface {
	Detect(ctx context.Context, img *utils.DecodedImage) (*domain.DetectionOutcome, error)
}

type ImageStore interface {
	StoreEntryImage(ctx context.Context, img *utils.DecodedImage, licensePlate, parkingLotID string, capturedAt time.Time) (*domain.UploadRecord, error)
}

type EntrySender interface {
	SendEntry(ctx context.Context, event domain.EntryEvent) (*client.Response, error)
}

type EntryRequest struct {
	Image        []byte
	ParkingLotID string
	BarrierID    string
}

// EntryResult is the terminal state of one entry request.
type EntryResult struct {
	State EntryState
	// Err is a *domain.Error for rejected and degraded results.
	Err error

	LicensePlate   string
	Confidence     float64
	ServerStatus   int
	ServerResponse json.RawMessage
	Diagnostics    *Diagnostics
	Upload         *domain.UploadRecord
	Event          *domain.EntryEvent
	Timestamp      time.Time
}

func (r *EntryResult) Kind() domain.ErrorKind {
	if r.Err == nil {
		return ""
	}
	return domain.KindOf(r.Err)
}

// EntryService runs decode, detect, select, upload and forward for one entry photograph.
type EntryService struct {
	decoder  *utils.ImageDecoder
	detector PlateDetector
	images   ImageStore
	server   EntrySender
	metrics  *metrics.Metrics
	log      *zap.Logger
	now      func() time.Time
}

func NewEntryService(
	decoder *utils.ImageDecoder,
	detector PlateDetector,
	images ImageStore,
	server EntrySender,
	m *metrics.Metrics,
	log *zap.Logger,
) *EntryService {
	return &EntryService{
		decoder:  decoder,
		detector: detector,
		images:   images,
		server:   server,
		metrics:  m,
		log:      log,
		now:      time.Now,
	}
}

func (s *EntryService) ProcessEntry(ctx context.Context, req EntryRequest) *EntryResult {
	result := s.processEntry(ctx, req)
	s.metrics.ObserveEntry(string(result.State), string(result.Kind()))
	return result
}

func (s *EntryService) processEntry(ctx context.Context, req EntryRequest) *EntryResult {
	lotID := defaultIfBlank(req.ParkingLotID, domain.DefaultParkingLotID)
	barrierID := defaultIfBlank(req.BarrierID, domain.DefaultBarrierID)

	img, err := s.decoder.Decode(req.Image)
	if err != nil {
		s.log.Warn("Rejected entry image", zap.Error(err))
		return &EntryResult{
			State:     StateRejected,
			Err:       domain.NewError(domain.KindInput, "decode", ErrInvalidImage),
			Timestamp: s.now(),
		}
	}

	outcome, err := s.detector.Detect(ctx, img)
	if err != nil {
		res := &EntryResult{State: StateRejected, Err: err, Timestamp: s.now()}
		if outcome != nil {
			res.Timestamp = outcome.Timestamp
		}
		return res
	}

	diagnostics := ProjectDiagnostics(outcome)
	if len(outcome.PlateCandidates) == 0 {
		s.log.Info("No valid license plate detected", zap.Int("texts", len(outcome.AllCandidates)))
		return &EntryResult{
			State:       StateRejected,
			Err:         domain.NewError(domain.KindNoMatch, "select", ErrNoPlate),
			Diagnostics: diagnostics,
			Timestamp:   outcome.Timestamp,
		}
	}

	// First candidate in extraction order wins, regardless of confidence.
	winner := outcome.PlateCandidates[0]
	result := &EntryResult{
		LicensePlate: winner.NormalizedText,
		Confidence:   winner.Confidence,
		Diagnostics:  diagnostics,
		Timestamp:    outcome.Timestamp,
	}

	upload, err := s.images.StoreEntryImage(ctx, img, winner.NormalizedText, lotID, outcome.Timestamp)
	if err != nil {
		s.log.Error("Failed to store entry image",
			zap.String("license_plate", winner.NormalizedText),
			zap.Error(err))
		result.State = StateDegraded
		result.Err = domain.NewError(domain.KindStorage, "upload", ErrUploadFailed)
		return result
	}
	result.Upload = upload

	event := domain.EntryEvent{
		LicensePlate:        winner.NormalizedText,
		ParkingLotID:        lotID,
		EntryImageURL:       upload.URL,
		EntryImageStorageID: upload.StorageID,
		BarrierID:           barrierID,
		DetectionConfidence: winner.Confidence,
	}
	result.Event = &event

	resp, err := s.server.SendEntry(ctx, event)
	if err != nil {
		s.log.Error("Cannot connect to parking server",
			zap.String("license_plate", event.LicensePlate),
			zap.Error(err))
		result.State = StateDegraded
		result.Err = domain.Errorf(domain.KindDownstream, "send entry", "Cannot connect to server: %w", err)
		return result
	}

	result.ServerStatus = resp.StatusCode
	if !resp.OK() {
		s.log.Warn("Parking server rejected entry",
			zap.String("license_plate", event.LicensePlate),
			zap.Int("status", resp.StatusCode))
		result.State = StateDegraded
		result.Err = domain.Errorf(domain.KindDownstream, "send entry", "Server error: %d", resp.StatusCode)
		return result
	}

	result.State = StateForwarded
	result.ServerResponse = resp.Body

	s.log.Info("Entry forwarded",
		zap.String("license_plate", event.LicensePlate),
		zap.String("parking_lot_id", lotID),
		zap.String("barrier_id", barrierID),
		zap.Float64("confidence", event.DetectionConfidence),
		zap.Int("server_status", resp.StatusCode))

	return result
}

func defaultIfBlank(s, def string) string {
	if s = strings.TrimSpace(s); s == "" {
		return def
	}
	return s
}
