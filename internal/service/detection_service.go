package service

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"go.uber.org/zap"

	"alprgateway/internal/domain"
	"alprgateway/internal/metrics"
	"alprgateway/internal/ocr"
	"alprgateway/internal/plate"
	"alprgateway/pkg/utils"
)

// TextEngine runs OCR on encoded image bytes.
type TextEngine interface {
	DetectText(ctx context.Context, image []byte) (*rekognition.DetectTextOutput, error)
}

// DetectionService turns one image into a DetectionOutcome.
type DetectionService struct {
	engine  TextEngine
	matcher *plate.Matcher
	metrics *metrics.Metrics
	log     *zap.Logger
	now     func() time.Time
}

func NewDetectionService(engine TextEngine, matcher *plate.Matcher, m *metrics.Metrics, log *zap.Logger) *DetectionService {
	return &DetectionService{
		engine:  engine,
		matcher: matcher,
		metrics: m,
		log:     log,
		now:     time.Now,
	}
}

// Ready reports whether an OCR engine is wired in.
func (s *DetectionService) Ready() bool {
	return s != nil && s.engine != nil
}

// Detect calls the engine exactly once. On engine failure the returned outcome
// still carries its Timestamp, alongside a recognition error.
func (s *DetectionService) Detect(ctx context.Context, img *utils.DecodedImage) (*domain.DetectionOutcome, error) {
	start := s.now()
	outcome := &domain.DetectionOutcome{
		AllCandidates:   []domain.TextCandidate{},
		PlateCandidates: []domain.PlateCandidate{},
		Timestamp:       start,
	}

	if img == nil || len(img.Data) == 0 {
		return outcome, domain.NewError(domain.KindInput, "detect", utils.ErrEmptyImage)
	}
	if !s.Ready() {
		return outcome, domain.Errorf(domain.KindRecognition, "detect", "ocr engine not initialized")
	}

	out, err := s.engine.DetectText(ctx, img.Data)
	s.metrics.ObserveStage("ocr", s.now().Sub(start))
	if err != nil {
		outcome.ProcessingDuration = s.now().Sub(start)
		return outcome, domain.Errorf(domain.KindRecognition, "detect", "text detection failed: %w", err)
	}

	outcome.AllCandidates = ocr.ExtractCandidates(out)
	for _, c := range outcome.AllCandidates {
		if s.matcher.Match(c.RawText) {
			outcome.PlateCandidates = append(outcome.PlateCandidates, domain.NewPlateCandidate(c, plate.Normalize))
		}
	}
	outcome.ProcessingDuration = s.now().Sub(start)
	s.metrics.ObservePlates(len(outcome.PlateCandidates))

	s.log.Info("Text detection completed",
		zap.Int("texts", len(outcome.AllCandidates)),
		zap.Int("plates", len(outcome.PlateCandidates)),
		zap.Duration("duration", outcome.ProcessingDuration))

	return outcome, nil
}
