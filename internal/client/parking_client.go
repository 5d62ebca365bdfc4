package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"alprgateway/internal/config"
	"alprgateway/internal/domain"
	"alprgateway/internal/metrics"
)

const (
	ConnectionConnected    = "connected"
	ConnectionDisconnected = "disconnected"

	maxResponseBytes = 1 << 20
	healthCacheKey   = "health"
)

// Metric labels for the downstream endpoints.
const (
	EndpointEntry           = "entry"
	EndpointHealth          = "health"
	EndpointVehicleDetected = "vehicle_detected"
	EndpointBarrierStatus   = "barrier_status"
)

// Response is a downstream reply. Body is always valid JSON; non-JSON replies are wrapped as a string.
type Response struct {
	StatusCode int
	Body       json.RawMessage
}

func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// ParkingServer talks to the parking-management server. Safe for concurrent use.
type ParkingServer struct {
	httpClient  *http.Client
	cfg         config.ParkingConfig
	healthCache *cache.Cache
	metrics     *metrics.Metrics
	log         *zap.Logger
}

// NewParkingServer builds a client. A nil httpClient uses a fresh http.Client; per-call timeouts come from cfg.
func NewParkingServer(cfg config.ParkingConfig, httpClient *http.Client, m *metrics.Metrics, log *zap.Logger) *ParkingServer {
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	var healthCache *cache.Cache
	if cfg.HealthCacheTTL > 0 {
		healthCache = cache.New(cfg.HealthCacheTTL, 2*cfg.HealthCacheTTL)
	}

	return &ParkingServer{
		httpClient:  httpClient,
		cfg:         cfg,
		healthCache: healthCache,
		metrics:     m,
		log:         log,
	}
}

func (p *ParkingServer) ServerURL() string {
	return p.cfg.ServerURL
}

// SendEntry posts an entry event. A non-2xx reply is returned without error; only transport failures error.
func (p *ParkingServer) SendEntry(ctx context.Context, event domain.EntryEvent) (*Response, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, domain.NewError(domain.KindInternal, "encode entry event", err)
	}
	return p.post(ctx, EndpointEntry, p.cfg.EntryPath, payload, p.cfg.EntryTimeout)
}

// VehicleDetected relays a device payload verbatim.
func (p *ParkingServer) VehicleDetected(ctx context.Context, payload json.RawMessage) (*Response, error) {
	return p.post(ctx, EndpointVehicleDetected, p.cfg.VehicleDetectedPath, payload, p.cfg.RelayTimeout)
}

// BarrierStatus relays a device payload verbatim.
func (p *ParkingServer) BarrierStatus(ctx context.Context, payload json.RawMessage) (*Response, error) {
	return p.post(ctx, EndpointBarrierStatus, p.cfg.BarrierStatusPath, payload, p.cfg.RelayTimeout)
}

// CheckConnection healthCache the health endpoint and reports "connected" or "disconnected". It never fails.
func (p *ParkingServer) CheckConnection(ctx context.Context) string {
	if p.healthCache != nil {
		if cached, found := p.healthCache.Get(healthCacheKey); found {
			if status, ok := cached.(string); ok {
				return status
			}
		}
	}

	status := ConnectionDisconnected
	resp, err := p.do(ctx, EndpointHealth, http.MethodGet, p.cfg.HealthPath, nil, p.cfg.HealthTimeout)
	if err != nil {
		p.log.Debug("Parking server health check failed", zap.Error(err))
	} else if resp.OK() {
		status = ConnectionConnected
	}

	if p.healthCache != nil {
		p.healthCache.SetDefault(healthCacheKey, status)
	}
	return status
}

func (p *ParkingServer) post(ctx context.Context, endpoint, path string, payload []byte, timeout time.Duration) (*Response, error) {
	if len(bytes.TrimSpace(payload)) == 0 {
		payload = []byte("null")
	}
	return p.do(ctx, endpoint, http.MethodPost, path, payload, timeout)
}

func (p *ParkingServer) do(ctx context.Context, endpoint, method, path string, payload []byte, timeout time.Duration) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	url := strings.TrimRight(p.cfg.ServerURL, "/") + path

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, domain.NewError(domain.KindDownstream, endpoint, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := p.httpClient.Do(req)
	p.metrics.ObserveStage("downstream_"+endpoint, time.Since(start))
	if err != nil {
		p.metrics.ObserveDownstream(endpoint, "error")
		p.log.Warn("Parking server request failed",
			zap.String("endpoint", endpoint),
			zap.String("url", url),
			zap.Error(err))
		return nil, domain.NewError(domain.KindDownstream, endpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		p.metrics.ObserveDownstream(endpoint, "error")
		return nil, domain.NewError(domain.KindDownstream, endpoint, fmt.Errorf("read response: %w", err))
	}

	p.metrics.ObserveDownstream(endpoint, fmt.Sprintf("%dxx", resp.StatusCode/100))
	p.log.Debug("Parking server responded",
		zap.String("endpoint", endpoint),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)))

	return &Response{
		StatusCode: resp.StatusCode,
		Body:       asJSON(raw),
	}, nil
}

func asJSON(raw []byte) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return json.RawMessage("null")
	}
	if json.Valid(trimmed) {
		return json.RawMessage(trimmed)
	}
	quoted, _ := json.Marshal(string(trimmed))
	return quoted
}
