package ocr

import (
	"math"

	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"

	"alprgateway/internal/domain"
)

// ExtractCandidates converts a DetectText response into text candidates, one per
// LINE detection, in the order the engine reported them. WORD detections repeat
// the text of their parent line and are skipped.
func ExtractCandidates(out *rekognition.DetectTextOutput) []domain.TextCandidate {
	candidates := []domain.TextCandidate{}
	if out == nil {
		return candidates
	}

	for _, td := range out.TextDetections {
		if td.Type != types.TextTypesLine {
			continue
		}
		candidates = append(candidates, domain.TextCandidate{
			RawText:    stringValue(td.DetectedText),
			Confidence: coerceConfidence(td.Confidence),
			Polygon:    extractPolygon(td.Geometry),
		})
	}

	return candidates
}

// coerceConfidence maps the engine's 0-100 score onto [0,1]. Missing or
// out-of-range scores become 0.
func coerceConfidence(c *float32) float64 {
	if c == nil {
		return 0
	}
	v := float64(*c)
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 || v > 100 {
		return 0
	}
	return v / 100
}

func extractPolygon(g *types.Geometry) []domain.Point {
	if g == nil || len(g.Polygon) == 0 {
		return []domain.Point{}
	}

	points := make([]domain.Point, 0, len(g.Polygon))
	for _, p := range g.Polygon {
		points = append(points, domain.Point{
			X: finiteOrZero(p.X),
			Y: finiteOrZero(p.Y),
		})
	}
	return points
}

func finiteOrZero(v *float32) float64 {
	if v == nil {
		return 0
	}
	f := float64(*v)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
