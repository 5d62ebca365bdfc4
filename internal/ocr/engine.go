package ocr

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"
	"go.uber.org/zap"
)

// Name is reported by the health endpoint.
const Name = "AWS Rekognition DetectText"

// MaxImageBytes is the largest inline image DetectText accepts.
const MaxImageBytes = 5 * 1024 * 1024

// TextDetector is the subset of the Rekognition client used here.
type TextDetector interface {
	DetectText(ctx context.Context, params *rekognition.DetectTextInput, optFns ...func(*rekognition.Options)) (*rekognition.DetectTextOutput, error)
}

// Engine wraps a TextDetector. It is built once at startup and shared across requests.
type Engine struct {
	client        TextDetector
	minConfidence float32
	log           *zap.Logger
}

// NewEngine returns an Engine. minConfidence (0-100) is passed to the engine's word filter when positive.
func NewEngine(client TextDetector, minConfidence float32, log *zap.Logger) (*Engine, error) {
	if client == nil {
		return nil, errors.New("ocr: nil text detector")
	}
	return &Engine{
		client:        client,
		minConfidence: minConfidence,
		log:           log,
	}, nil
}

// DetectText runs text detection on encoded image bytes.
func (e *Engine) DetectText(ctx context.Context, image []byte) (*rekognition.DetectTextOutput, error) {
	if len(image) > MaxImageBytes {
		return nil, fmt.Errorf("image of %d bytes exceeds engine limit of %d", len(image), MaxImageBytes)
	}

	input := &rekognition.DetectTextInput{
		Image: &types.Image{Bytes: image},
	}
	if e.minConfidence > 0 {
		input.Filters = &types.DetectTextFilters{
			WordFilter: &types.DetectionFilter{MinConfidence: aws.Float32(e.minConfidence)},
		}
	}

	out, err := e.client.DetectText(ctx, input)
	if err != nil {
		e.log.Error("DetectText failed", zap.Int("image_bytes", len(image)), zap.Error(err))
		return nil, fmt.Errorf("detect text: %w", err)
	}

	e.log.Debug("DetectText completed", zap.Int("detections", len(out.TextDetections)))
	return out, nil
}
