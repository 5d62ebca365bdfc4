package repository

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"alprgateway/internal/config"
	"alprgateway/internal/domain"
	"alprgateway/pkg/utils"
)

type fakeS3 struct {
	putInput    *s3.PutObjectInput
	putBody     []byte
	putErr      error
	listInput   *s3.ListObjectsV2Input
	listOut     *s3.ListObjectsV2Output
	headErr     error
	createInput *s3.CreateBucketInput
	createErr   error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.putInput = in
	if in.Body != nil {
		f.putBody, _ = io.ReadAll(in.Body)
	}
	if f.putErr != nil {
		return nil, f.putErr
	}
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.listInput = in
	if f.listOut == nil {
		return &s3.ListObjectsV2Output{}, nil
	}
	return f.listOut, nil
}

func (f *fakeS3) HeadBucket(context.Context, *s3.HeadBucketInput, ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	if f.headErr != nil {
		return nil, f.headErr
	}
	return &s3.HeadBucketOutput{}, nil
}

func (f *fakeS3) CreateBucket(_ context.Context, in *s3.CreateBucketInput, _ ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	f.createInput = in
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &s3.CreateBucketOutput{}, nil
}

func testRepo(api objectAPI, cfg *config.S3Config) *s3Repository {
	r := newS3Repository(api, cfg, zap.NewNop())
	r.now = func() time.Time { return time.Date(2024, 5, 1, 8, 30, 15, 0, time.UTC) }
	r.newID = func() string { return "abcd1234" }
	return r
}

func jpegImage() *utils.DecodedImage {
	return &utils.DecodedImage{Data: []byte("jpeg-bytes"), Width: 640, Height: 480, Format: "jpeg"}
}

func TestUploadParkingImage(t *testing.T) {
	api := &fakeS3{}
	repo := testRepo(api, &config.S3Config{
		BucketName: "parking-images",
		Region:     "ap-southeast-1",
		KeyPrefix:  "parking-system",
	})

	rec, err := repo.UploadParkingImage(context.Background(), ParkingImage{
		Image:        jpegImage(),
		LicensePlate: "51A12345",
		ParkingLotID: "lot-1",
		ImageType:    domain.ImageTypeEntry,
	})
	require.NoError(t, err)

	wantKey := "parking-system/lot-1/entry/parking_entry_51A12345_lot-1_20240501_083015_abcd1234.jpg"
	assert.Equal(t, wantKey, aws.ToString(api.putInput.Key))
	assert.Equal(t, "parking-images", aws.ToString(api.putInput.Bucket))
	assert.Equal(t, "image/jpeg", aws.ToString(api.putInput.ContentType))
	assert.Equal(t, []byte("jpeg-bytes"), api.putBody)
	assert.Equal(t, map[string]string{
		"license_plate":  "51A12345",
		"parking_lot_id": "lot-1",
		"image_type":     "entry",
		"upload_time":    "20240501_083015",
	}, api.putInput.Metadata)

	assert.Equal(t, wantKey, rec.StorageID)
	assert.Equal(t, "https://parking-images.s3.ap-southeast-1.amazonaws.com/"+wantKey, rec.URL)
	assert.Equal(t, 640, rec.Width)
	assert.Equal(t, 480, rec.Height)
	assert.Equal(t, "jpeg", rec.Format)
	assert.Equal(t, int64(10), rec.SizeBytes)
}

func TestUploadParkingImage_SanitizesLotID(t *testing.T) {
	api := &fakeS3{}
	repo := testRepo(api, &config.S3Config{BucketName: "b", Region: "r", KeyPrefix: "p"})

	_, err := repo.UploadParkingImage(context.Background(), ParkingImage{
		Image:        jpegImage(),
		LicensePlate: "30G12345",
		ParkingLotID: "../lot 7",
		ImageType:    domain.ImageTypeEntry,
	})
	require.NoError(t, err)
	assert.Equal(t, "p/___lot_7/entry/parking_entry_30G12345____lot_7_20240501_083015_abcd1234.jpg", aws.ToString(api.putInput.Key))
}

func TestUploadParkingImage_Errors(t *testing.T) {
	repo := testRepo(&fakeS3{}, &config.S3Config{BucketName: "b"})
	_, err := repo.UploadParkingImage(context.Background(), ParkingImage{})
	require.Error(t, err)

	boom := errors.New("access denied")
	repo = testRepo(&fakeS3{putErr: boom}, &config.S3Config{BucketName: "b"})
	_, err = repo.UploadParkingImage(context.Background(), ParkingImage{Image: jpegImage()})
	assert.ErrorIs(t, err, boom)
}

func TestObjectURL(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.S3Config
		want string
	}{
		{
			name: "public base url",
			cfg:  config.S3Config{BucketName: "b", PublicBaseURL: "https://cdn.example.com/"},
			want: "https://cdn.example.com/k/a.jpg",
		},
		{
			name: "custom endpoint without scheme",
			cfg:  config.S3Config{BucketName: "b", Endpoint: "minio:9000"},
			want: "http://minio:9000/b/k/a.jpg",
		},
		{
			name: "custom endpoint with ssl",
			cfg:  config.S3Config{BucketName: "b", Endpoint: "minio:9000", UseSSL: true},
			want: "https://minio:9000/b/k/a.jpg",
		},
		{
			name: "aws virtual host",
			cfg:  config.S3Config{BucketName: "b", Region: "eu-west-1"},
			want: "https://b.s3.eu-west-1.amazonaws.com/k/a.jpg",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			repo := testRepo(&fakeS3{}, &cfg)
			assert.Equal(t, tt.want, repo.objectURL("k/a.jpg"))
		})
	}
}

func TestListParkingImages(t *testing.T) {
	modified := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	api := &fakeS3{listOut: &s3.ListObjectsV2Output{
		Contents: []types.Object{
			{Key: aws.String("p/lot-1/entry/a.jpg"), Size: aws.Int64(42), LastModified: aws.Time(modified)},
		},
	}}
	repo := testRepo(api, &config.S3Config{BucketName: "b", Region: "r", KeyPrefix: "p"})

	images, err := repo.ListParkingImages(context.Background(), "lot-1", "entry", 10)
	require.NoError(t, err)

	assert.Equal(t, "p/lot-1/entry/", aws.ToString(api.listInput.Prefix))
	assert.Equal(t, int32(10), aws.ToInt32(api.listInput.MaxKeys))
	require.Len(t, images, 1)
	assert.Equal(t, "p/lot-1/entry/a.jpg", images[0].StorageID)
	assert.Equal(t, int64(42), images[0].SizeBytes)
	assert.Equal(t, modified, images[0].LastModified)
}

func TestEnsureBucketExists(t *testing.T) {
	api := &fakeS3{}
	repo := testRepo(api, &config.S3Config{BucketName: "b", Region: "ap-southeast-1"})
	require.NoError(t, repo.ensureBucketExists(context.Background()))
	assert.Nil(t, api.createInput)

	api = &fakeS3{headErr: errors.New("not found")}
	repo = testRepo(api, &config.S3Config{BucketName: "b", Region: "ap-southeast-1"})
	require.NoError(t, repo.ensureBucketExists(context.Background()))
	require.NotNil(t, api.createInput)
	assert.Equal(t, types.BucketLocationConstraint("ap-southeast-1"), api.createInput.CreateBucketConfiguration.LocationConstraint)

	api = &fakeS3{headErr: errors.New("not found")}
	repo = testRepo(api, &config.S3Config{BucketName: "b", Region: "us-east-1"})
	require.NoError(t, repo.ensureBucketExists(context.Background()))
	assert.Nil(t, api.createInput.CreateBucketConfiguration)

	api = &fakeS3{headErr: errors.New("not found"), createErr: &types.BucketAlreadyOwnedByYou{}}
	repo = testRepo(api, &config.S3Config{BucketName: "b"})
	assert.NoError(t, repo.ensureBucketExists(context.Background()))
}
