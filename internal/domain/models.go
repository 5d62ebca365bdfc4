package domain

import (
	"time"
)

// Point is one vertex of a text region, in coordinates relative to the image size.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// TextCandidate is one text region reported by the OCR engine.
type TextCandidate struct {
	RawText    string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Polygon    []Point `json:"bbox"`
}

// PlateCandidate is a TextCandidate whose cleaned text matched a plate pattern.
type PlateCandidate struct {
	RawText        string  `json:"text"`
	NormalizedText string  `json:"normalized_text"`
	Confidence     float64 `json:"confidence"`
	Polygon        []Point `json:"bbox"`
	IsValid        bool    `json:"is_valid"`
}

// NewPlateCandidate derives a PlateCandidate from a matched text candidate.
// normalize is the plate normalizer; NormalizedText is never set any other way.
func NewPlateCandidate(tc TextCandidate, normalize func(string) string) PlateCandidate {
	return PlateCandidate{
		RawText:        tc.RawText,
		NormalizedText: normalize(tc.RawText),
		Confidence:     tc.Confidence,
		Polygon:        tc.Polygon,
		IsValid:        true,
	}
}

type DetectionOutcome struct {
	AllCandidates      []TextCandidate
	PlateCandidates    []PlateCandidate
	ProcessingDuration time.Duration
	Timestamp          time.Time
}

// UploadRecord describes an image persisted in the object store.
type UploadRecord struct {
	URL       string    `json:"url"`
	StorageID string    `json:"storage_id"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Format    string    `json:"format"`
	SizeBytes int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
}

type StoredImage struct {
	StorageID    string    `json:"storage_id"`
	URL          string    `json:"url"`
	SizeBytes    int64     `json:"size_bytes"`
	LastModified time.Time `json:"last_modified"`
}

// EntryEvent is the payload sent to the parking server's entry endpoint.
type EntryEvent struct {
	LicensePlate        string  `json:"licensePlate"`
	ParkingLotID        string  `json:"parkingLotId"`
	EntryImageURL       string  `json:"entryImageUrl"`
	EntryImageStorageID string  `json:"entryImagePublicId"`
	BarrierID           string  `json:"barrierId"`
	DetectionConfidence float64 `json:"detectionConfidence"`
}

const (
	DefaultParkingLotID = "default"
	DefaultBarrierID    = "default"

	ImageTypeEntry = "entry"
)
