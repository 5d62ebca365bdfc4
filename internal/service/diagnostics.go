package service

import "alprgateway/internal/domain"

type PlateDiagnostic struct {
	Text           string  `json:"text"`
	NormalizedText string  `json:"normalized_text"`
	Confidence     float64 `json:"confidence"`
	IsValid        bool    `json:"is_valid"`
}

type TextDiagnostic struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Diagnostics is the public view of a DetectionOutcome returned to callers.
type Diagnostics struct {
	LicensePlates  []PlateDiagnostic `json:"license_plates"`
	AllTexts       []TextDiagnostic  `json:"all_texts"`
	ProcessingTime float64           `json:"processing_time"`
}

// ProjectDiagnostics is the only place an outcome is turned into caller-facing diagnostics.
// ProcessingTime is in seconds. A nil outcome projects to empty lists.
func ProjectDiagnostics(outcome *domain.DetectionOutcome) *Diagnostics {
	d := &Diagnostics{
		LicensePlates: []PlateDiagnostic{},
		AllTexts:      []TextDiagnostic{},
	}
	if outcome == nil {
		return d
	}

	for _, p := range outcome.PlateCandidates {
		d.LicensePlates = append(d.LicensePlates, PlateDiagnostic{
			Text:           p.RawText,
			NormalizedText: p.NormalizedText,
			Confidence:     p.Confidence,
			IsValid:        p.IsValid,
		})
	}
	for _, t := range outcome.AllCandidates {
		d.AllTexts = append(d.AllTexts, TextDiagnostic{
			Text:       t.RawText,
			Confidence: t.Confidence,
		})
	}
	d.ProcessingTime = outcome.ProcessingDuration.Seconds()

	return d
}
