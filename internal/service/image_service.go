package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"alprgateway/internal/domain"
	"alprgateway/internal/metrics"
	"alprgateway/internal/repository"
	"alprgateway/pkg/utils"
)

type ImageService interface {
	StoreEntryImage(ctx context.Context, img *utils.DecodedImage, licensePlate, parkingLotID string, capturedAt time.Time) (*domain.UploadRecord, error)
	ListImages(ctx context.Context, parkingLotID, imageType string, limit int32) ([]domain.StoredImage, error)
}

type imageService struct {
	repo    repository.ImageRepository
	metrics *metrics.Metrics
	log     *zap.Logger
}

func NewImageService(repo repository.ImageRepository, m *metrics.Metrics, log *zap.Logger) ImageService {
	return &imageService{
		repo:    repo,
		metrics: m,
		log:     log,
	}
}

func (s *imageService) StoreEntryImage(ctx context.Context, img *utils.DecodedImage, licensePlate, parkingLotID string, capturedAt time.Time) (*domain.UploadRecord, error) {
	start := time.Now()
	record, err := s.repo.UploadParkingImage(ctx, repository.ParkingImage{
		Image:        img,
		LicensePlate: licensePlate,
		ParkingLotID: parkingLotID,
		ImageType:    domain.ImageTypeEntry,
		CapturedAt:   capturedAt,
	})
	s.metrics.ObserveStage("upload", time.Since(start))
	if err != nil {
		return nil, domain.NewError(domain.KindStorage, "upload entry image", err)
	}

	s.log.Info("Entry image stored",
		zap.String("license_plate", licensePlate),
		zap.String("parking_lot_id", parkingLotID),
		zap.String("storage_id", record.StorageID),
		zap.Int64("size", record.SizeBytes))

	return record, nil
}

func (s *imageService) ListImages(ctx context.Context, parkingLotID, imageType string, limit int32) ([]domain.StoredImage, error) {
	images, err := s.repo.ListParkingImages(ctx, parkingLotID, imageType, limit)
	if err != nil {
		return nil, domain.NewError(domain.KindStorage, "list images", err)
	}
	return images, nil
}
