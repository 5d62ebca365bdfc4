package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"alprgateway/internal/client"
	"alprgateway/internal/domain"
	"alprgateway/pkg/utils"
)

type fakeStore struct {
	record *domain.UploadRecord
	err    error
	calls  int
	plate  string
	lotID  string
}

func (f *fakeStore) StoreEntryImage(_ context.Context, _ *utils.DecodedImage, licensePlate, parkingLotID string, _ time.Time) (*domain.UploadRecord, error) {
	f.calls++
	f.plate = licensePlate
	f.lotID = parkingLotID
	if f.err != nil {
		return nil, f.err
	}
	return f.record, nil
}

type fakeSender struct {
	resp  *client.Response
	err   error
	calls int
	event domain.EntryEvent
}

func (f *fakeSender) SendEntry(_ context.Context, event domain.EntryEvent) (*client.Response, error) {
	f.calls++
	f.event = event
	return f.resp, f.err
}

type entryFixture struct {
	engine *fakeEngine
	store  *fakeStore
	sender *fakeSender
	svc    *EntryService
}

func newEntryFixture(engine *fakeEngine) *entryFixture {
	f := &entryFixture{
		engine: engine,
		store: &fakeStore{record: &domain.UploadRecord{
			URL:       "https://img.example.com/U.png",
			StorageID: "parking-system/lot1/entry/U.png",
		}},
		sender: &fakeSender{resp: &client.Response{
			StatusCode: http.StatusOK,
			Body:       json.RawMessage(`{"sessionId":"S1"}`),
		}},
	}
	f.svc = NewEntryService(
		utils.NewImageDecoder([]string{"jpeg", "png"}, 0, zap.NewNop()),
		newTestDetection(engine),
		f.store,
		f.sender,
		nil,
		zap.NewNop(),
	)
	return f
}

func TestProcessEntry_Forwarded(t *testing.T) {
	f := newEntryFixture(&fakeEngine{out: linesWithConfidence([]string{"51A1234"}, []float32{93})})

	res := f.svc.ProcessEntry(context.Background(), EntryRequest{
		Image:        pngBytes(t),
		ParkingLotID: "lot1",
	})

	require.Equal(t, StateForwarded, res.State)
	assert.NoError(t, res.Err)
	assert.Equal(t, "51A1234", res.LicensePlate)
	assert.InDelta(t, 0.93, res.Confidence, 1e-6)
	assert.JSONEq(t, `{"sessionId":"S1"}`, string(res.ServerResponse))
	assert.Equal(t, http.StatusOK, res.ServerStatus)
	require.NotNil(t, res.Diagnostics)
	assert.Len(t, res.Diagnostics.LicensePlates, 1)

	assert.Equal(t, "51A1234", f.store.plate)
	assert.Equal(t, "lot1", f.store.lotID)
	assert.Equal(t, domain.EntryEvent{
		LicensePlate:        "51A1234",
		ParkingLotID:        "lot1",
		EntryImageURL:       "https://img.example.com/U.png",
		EntryImageStorageID: "parking-system/lot1/entry/U.png",
		BarrierID:           domain.DefaultBarrierID,
		DetectionConfidence: res.Confidence,
	}, f.sender.event)
}

func TestProcessEntry_DefaultsLotAndBarrier(t *testing.T) {
	f := newEntryFixture(&fakeEngine{out: lines("51A1234")})

	res := f.svc.ProcessEntry(context.Background(), EntryRequest{Image: pngBytes(t), ParkingLotID: "  "})
	require.Equal(t, StateForwarded, res.State)

	assert.Equal(t, domain.DefaultParkingLotID, f.sender.event.ParkingLotID)
	assert.Equal(t, domain.DefaultBarrierID, f.sender.event.BarrierID)
	assert.Equal(t, domain.DefaultParkingLotID, f.store.lotID)
}

func TestProcessEntry_FirstExtractedWins(t *testing.T) {
	f := newEntryFixture(&fakeEngine{out: linesWithConfidence([]string{"51A12345", "30G67890"}, []float32{40, 90})})

	res := f.svc.ProcessEntry(context.Background(), EntryRequest{Image: pngBytes(t)})
	require.Equal(t, StateForwarded, res.State)

	assert.Equal(t, "51A12345", res.LicensePlate)
	assert.InDelta(t, 0.4, res.Confidence, 1e-6)
}

func TestProcessEntry_TwoLetterSeriesIsNotAPlate(t *testing.T) {
	f := newEntryFixture(&fakeEngine{out: lines("30AB1234", "51A1234")})

	res := f.svc.ProcessEntry(context.Background(), EntryRequest{Image: pngBytes(t)})
	require.Equal(t, StateForwarded, res.State)

	assert.Equal(t, "51A1234", res.LicensePlate)
	assert.Len(t, res.Diagnostics.LicensePlates, 1)
}

func TestProcessEntry_InvalidImage(t *testing.T) {
	f := newEntryFixture(&fakeEngine{out: lines("51A1234")})

	res := f.svc.ProcessEntry(context.Background(), EntryRequest{Image: []byte("not an image")})

	assert.Equal(t, StateRejected, res.State)
	assert.Equal(t, domain.KindInput, res.Kind())
	assert.ErrorIs(t, res.Err, ErrInvalidImage)
	assert.Zero(t, f.engine.calls)
	assert.Zero(t, f.store.calls)
	assert.Zero(t, f.sender.calls)
}

func TestProcessEntry_ImageOverPixelLimit(t *testing.T) {
	f := newEntryFixture(&fakeEngine{out: lines("51A1234")})
	f.svc.decoder = utils.NewImageDecoder(nil, 10, zap.NewNop())

	res := f.svc.ProcessEntry(context.Background(), EntryRequest{Image: pngBytes(t)})

	assert.Equal(t, StateRejected, res.State)
	assert.ErrorIs(t, res.Err, ErrInvalidImage)
	assert.Zero(t, f.engine.calls)
}

func TestProcessEntry_RecognitionFailure(t *testing.T) {
	f := newEntryFixture(&fakeEngine{err: errors.New("service unavailable")})

	res := f.svc.ProcessEntry(context.Background(), EntryRequest{Image: pngBytes(t)})

	assert.Equal(t, StateRejected, res.State)
	assert.Equal(t, domain.KindRecognition, res.Kind())
	assert.False(t, res.Timestamp.IsZero())
	assert.Zero(t, f.store.calls)
	assert.Zero(t, f.sender.calls)
}

func TestProcessEntry_NoPlate(t *testing.T) {
	f := newEntryFixture(&fakeEngine{out: lines("EXIT ONLY", "ab12")})

	res := f.svc.ProcessEntry(context.Background(), EntryRequest{Image: pngBytes(t)})

	assert.Equal(t, StateRejected, res.State)
	assert.Equal(t, domain.KindNoMatch, res.Kind())
	assert.EqualError(t, res.Err, "no valid license plate detected")
	require.NotNil(t, res.Diagnostics)
	assert.Empty(t, res.Diagnostics.LicensePlates)
	assert.Len(t, res.Diagnostics.AllTexts, 2)
	assert.Zero(t, f.store.calls)
	assert.Zero(t, f.sender.calls)
}

func TestProcessEntry_UploadFailure(t *testing.T) {
	f := newEntryFixture(&fakeEngine{out: lines("51A1234")})
	f.store.err = errors.New("bucket unreachable")

	res := f.svc.ProcessEntry(context.Background(), EntryRequest{Image: pngBytes(t)})

	assert.Equal(t, StateDegraded, res.State)
	assert.Equal(t, domain.KindStorage, res.Kind())
	assert.EqualError(t, res.Err, "upload failed")
	assert.Zero(t, f.sender.calls)
}

func TestProcessEntry_ServerError(t *testing.T) {
	f := newEntryFixture(&fakeEngine{out: lines("51A1234")})
	f.sender.resp = &client.Response{StatusCode: http.StatusBadGateway, Body: json.RawMessage(`null`)}

	res := f.svc.ProcessEntry(context.Background(), EntryRequest{Image: pngBytes(t)})

	assert.Equal(t, StateDegraded, res.State)
	assert.Equal(t, domain.KindDownstream, res.Kind())
	assert.EqualError(t, res.Err, "Server error: 502")
	assert.Equal(t, http.StatusBadGateway, res.ServerStatus)
	assert.Equal(t, "51A1234", res.LicensePlate)
	assert.NotNil(t, res.Diagnostics)
}

func TestProcessEntry_ServerUnreachable(t *testing.T) {
	f := newEntryFixture(&fakeEngine{out: lines("51A1234")})
	f.sender.resp = nil
	f.sender.err = domain.NewError(domain.KindDownstream, "entry", errors.New("connection refused"))

	res := f.svc.ProcessEntry(context.Background(), EntryRequest{Image: pngBytes(t)})

	assert.Equal(t, StateDegraded, res.State)
	assert.Equal(t, domain.KindDownstream, res.Kind())
	assert.EqualError(t, res.Err, "Cannot connect to server: connection refused")
	assert.Zero(t, res.ServerStatus)
}
