package repository

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
	"go.uber.org/zap"

	s3config "alprgateway/internal/config"
	"alprgateway/internal/domain"
	"alprgateway/pkg/utils"
)

// ParkingImage is an image to persist together with the detection that produced it.
type ParkingImage struct {
	Image        *utils.DecodedImage
	LicensePlate string
	ParkingLotID string
	ImageType    string
	CapturedAt   time.Time
}

type ImageRepository interface {
	UploadParkingImage(ctx context.Context, img ParkingImage) (*domain.UploadRecord, error)
	ListParkingImages(ctx context.Context, parkingLotID, imageType string, limit int32) ([]domain.StoredImage, error)
}

// objectAPI is the subset of the S3 client used by the repository.
type objectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
}

type s3Repository struct {
	client objectAPI
	cfg    *s3config.S3Config
	log    *zap.Logger
	now    func() time.Time
	newID  func() string
}

func NewS3Repository(ctx context.Context, cfg *s3config.S3Config, log *zap.Logger) (ImageRepository, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	endpoint := endpointURL(cfg)
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	repo := newS3Repository(client, cfg, log)

	if err := repo.ensureBucketExists(ctx); err != nil {
		log.Warn("Failed to ensure bucket exists", zap.String("bucket", cfg.BucketName), zap.Error(err))
	}

	return repo, nil
}

func newS3Repository(client objectAPI, cfg *s3config.S3Config, log *zap.Logger) *s3Repository {
	return &s3Repository{
		client: client,
		cfg:    cfg,
		log:    log,
		now:    time.Now,
		newID:  func() string { return uuid.New().String()[:8] },
	}
}

func (r *s3Repository) ensureBucketExists(ctx context.Context) error {
	_, err := r.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(r.cfg.BucketName),
	})
	if err == nil {
		r.log.Info("Bucket already exists", zap.String("bucket", r.cfg.BucketName))
		return nil
	}

	r.log.Info("Creating bucket", zap.String("bucket", r.cfg.BucketName))

	input := &s3.CreateBucketInput{Bucket: aws.String(r.cfg.BucketName)}
	// us-east-1 rejects an explicit location constraint.
	if r.cfg.Region != "" && r.cfg.Region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(r.cfg.Region),
		}
	}

	if _, err := r.client.CreateBucket(ctx, input); err != nil {
		var owned *types.BucketAlreadyOwnedByYou
		if errors.As(err, &owned) {
			return nil
		}
		return err
	}

	r.log.Info("Bucket created successfully", zap.String("bucket", r.cfg.BucketName))
	return nil
}

func (r *s3Repository) UploadParkingImage(ctx context.Context, img ParkingImage) (*domain.UploadRecord, error) {
	if img.Image == nil || len(img.Image.Data) == 0 {
		return nil, errors.New("no image data to upload")
	}

	capturedAt := img.CapturedAt
	if capturedAt.IsZero() {
		capturedAt = r.now()
	}
	stamp := capturedAt.UTC().Format("20060102_150405")
	lot := sanitizeSegment(img.ParkingLotID)
	imageType := sanitizeSegment(img.ImageType)
	plate := sanitizeSegment(img.LicensePlate)

	key := path.Join(
		r.cfg.KeyPrefix,
		lot,
		imageType,
		fmt.Sprintf("parking_%s_%s_%s_%s_%s%s", imageType, plate, lot, stamp, r.newID(), img.Image.Extension()),
	)

	size := img.Image.Size()
	_, err := r.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(r.cfg.BucketName),
		Key:           aws.String(key),
		Body:          bytes.NewReader(img.Image.Data),
		ContentType:   aws.String(img.Image.ContentType()),
		ContentLength: aws.Int64(size),
		Metadata: map[string]string{
			"license_plate":  plate,
			"parking_lot_id": lot,
			"image_type":     imageType,
			"upload_time":    stamp,
		},
	})
	if err != nil {
		r.log.Error("Failed to upload file to S3",
			zap.String("key", key),
			zap.Error(err))
		return nil, err
	}

	r.log.Info("File uploaded to S3",
		zap.String("key", key),
		zap.Int64("size", size))

	return &domain.UploadRecord{
		URL:       r.objectURL(key),
		StorageID: key,
		Width:     img.Image.Width,
		Height:    img.Image.Height,
		Format:    img.Image.Format,
		SizeBytes: size,
		CreatedAt: r.now().UTC(),
	}, nil
}

func (r *s3Repository) ListParkingImages(ctx context.Context, parkingLotID, imageType string, limit int32) ([]domain.StoredImage, error) {
	prefix := r.cfg.KeyPrefix + "/"
	if parkingLotID != "" {
		prefix += sanitizeSegment(parkingLotID) + "/"
		if imageType != "" {
			prefix += sanitizeSegment(imageType) + "/"
		}
	}

	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(r.cfg.BucketName),
		Prefix: aws.String(prefix),
	}
	if limit > 0 {
		input.MaxKeys = aws.Int32(limit)
	}

	output, err := r.client.ListObjectsV2(ctx, input)
	if err != nil {
		return nil, err
	}

	images := make([]domain.StoredImage, 0, len(output.Contents))
	for _, obj := range output.Contents {
		key := aws.ToString(obj.Key)
		images = append(images, domain.StoredImage{
			StorageID:    key,
			URL:          r.objectURL(key),
			SizeBytes:    aws.ToInt64(obj.Size),
			LastModified: aws.ToTime(obj.LastModified),
		})
	}

	return images, nil
}

func (r *s3Repository) objectURL(key string) string {
	escaped := (&url.URL{Path: key}).EscapedPath()
	if r.cfg.PublicBaseURL != "" {
		return strings.TrimRight(r.cfg.PublicBaseURL, "/") + "/" + escaped
	}
	if endpoint := endpointURL(r.cfg); endpoint != "" {
		return strings.TrimRight(endpoint, "/") + "/" + r.cfg.BucketName + "/" + escaped
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", r.cfg.BucketName, r.cfg.Region, escaped)
}

func endpointURL(cfg *s3config.S3Config) string {
	if cfg.Endpoint == "" {
		return ""
	}
	if strings.HasPrefix(cfg.Endpoint, "http://") || strings.HasPrefix(cfg.Endpoint, "https://") {
		return cfg.Endpoint
	}
	if cfg.UseSSL {
		return "https://" + cfg.Endpoint
	}
	return "http://" + cfg.Endpoint
}

// sanitizeSegment keeps a key segment to [A-Za-z0-9_-]; anything else becomes '_'.
func sanitizeSegment(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, s)
}
