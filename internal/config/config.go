package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig
	S3      S3Config
	OCR     OCRConfig
	Parking ParkingConfig
	App     AppConfig
}

type ServerConfig struct {
	Host string
	Port string
}

type S3Config struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	BucketName      string
	Region          string
	// PublicBaseURL, when set, is the prefix of the URLs handed to the parking server.
	PublicBaseURL string
	KeyPrefix     string
}

type OCRConfig struct {
	Region        string
	MinConfidence float64
}

// ParkingConfig describes the downstream parking-management server.
type ParkingConfig struct {
	ServerURL           string
	EntryPath           string
	HealthPath          string
	VehicleDetectedPath string
	BarrierStatusPath   string
	EntryTimeout        time.Duration
	RelayTimeout        time.Duration
	HealthTimeout       time.Duration
	HealthCacheTTL      time.Duration
}

type AppConfig struct {
	MaxUploadSize  int64
	MaxImagePixels int64
	AllowedFormats []string
	LogLevel       string
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()

	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", "5001")
	v.SetDefault("S3_ENDPOINT", "")
	v.SetDefault("S3_ACCESS_KEY_ID", "")
	v.SetDefault("S3_SECRET_ACCESS_KEY", "")
	v.SetDefault("S3_USE_SSL", true)
	v.SetDefault("S3_BUCKET_NAME", "parking-images")
	v.SetDefault("S3_REGION", "ap-southeast-1")
	v.SetDefault("S3_PUBLIC_BASE_URL", "")
	v.SetDefault("S3_KEY_PREFIX", "parking-system")
	v.SetDefault("OCR_REGION", "")
	v.SetDefault("OCR_MIN_CONFIDENCE", 0)
	v.SetDefault("PARKING_SERVER_URL", "http://localhost:8080")
	v.SetDefault("PARKING_ENTRY_PATH", "/api/parking/entry")
	v.SetDefault("PARKING_HEALTH_PATH", "/api/health")
	v.SetDefault("PARKING_VEHICLE_DETECTED_PATH", "/api/iot/vehicle_detected")
	v.SetDefault("PARKING_BARRIER_STATUS_PATH", "/api/iot/barrier-control")
	v.SetDefault("PARKING_ENTRY_TIMEOUT", 10*time.Second)
	v.SetDefault("PARKING_RELAY_TIMEOUT", 5*time.Second)
	v.SetDefault("PARKING_HEALTH_TIMEOUT", 5*time.Second)
	v.SetDefault("PARKING_HEALTH_CACHE_TTL", 5*time.Second)
	v.SetDefault("APP_MAX_UPLOAD_SIZE", 10*1024*1024) // 10MB
	v.SetDefault("APP_MAX_IMAGE_PIXELS", 40_000_000)
	v.SetDefault("APP_ALLOWED_FORMATS", []string{"jpeg", "png"})
	v.SetDefault("LOG_LEVEL", "info")

	v.AutomaticEnv()

	cfg := &Config{
		Server: ServerConfig{
			Host: v.GetString("SERVER_HOST"),
			Port: v.GetString("SERVER_PORT"),
		},
		S3: S3Config{
			Endpoint:        v.GetString("S3_ENDPOINT"),
			AccessKeyID:     v.GetString("S3_ACCESS_KEY_ID"),
			SecretAccessKey: v.GetString("S3_SECRET_ACCESS_KEY"),
			UseSSL:          v.GetBool("S3_USE_SSL"),
			BucketName:      v.GetString("S3_BUCKET_NAME"),
			Region:          v.GetString("S3_REGION"),
			PublicBaseURL:   v.GetString("S3_PUBLIC_BASE_URL"),
			KeyPrefix:       v.GetString("S3_KEY_PREFIX"),
		},
		OCR: OCRConfig{
			Region:        v.GetString("OCR_REGION"),
			MinConfidence: v.GetFloat64("OCR_MIN_CONFIDENCE"),
		},
		Parking: ParkingConfig{
			ServerURL:           v.GetString("PARKING_SERVER_URL"),
			EntryPath:           v.GetString("PARKING_ENTRY_PATH"),
			HealthPath:          v.GetString("PARKING_HEALTH_PATH"),
			VehicleDetectedPath: v.GetString("PARKING_VEHICLE_DETECTED_PATH"),
			BarrierStatusPath:   v.GetString("PARKING_BARRIER_STATUS_PATH"),
			EntryTimeout:        v.GetDuration("PARKING_ENTRY_TIMEOUT"),
			RelayTimeout:        v.GetDuration("PARKING_RELAY_TIMEOUT"),
			HealthTimeout:       v.GetDuration("PARKING_HEALTH_TIMEOUT"),
			HealthCacheTTL:      v.GetDuration("PARKING_HEALTH_CACHE_TTL"),
		},
		App: AppConfig{
			MaxUploadSize:  v.GetInt64("APP_MAX_UPLOAD_SIZE"),
			MaxImagePixels: v.GetInt64("APP_MAX_IMAGE_PIXELS"),
			AllowedFormats: splitList(v.GetStringSlice("APP_ALLOWED_FORMATS")),
			LogLevel:       v.GetString("LOG_LEVEL"),
		},
	}

	if cfg.OCR.Region == "" {
		cfg.OCR.Region = cfg.S3.Region
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return errors.New("SERVER_PORT must not be empty")
	}
	if c.S3.BucketName == "" {
		return errors.New("S3_BUCKET_NAME must not be empty")
	}

	u, err := url.Parse(c.Parking.ServerURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("PARKING_SERVER_URL %q is not an http(s) URL", c.Parking.ServerURL)
	}

	timeouts := map[string]time.Duration{
		"PARKING_ENTRY_TIMEOUT":  c.Parking.EntryTimeout,
		"PARKING_RELAY_TIMEOUT":  c.Parking.RelayTimeout,
		"PARKING_HEALTH_TIMEOUT": c.Parking.HealthTimeout,
	}
	for name, d := range timeouts {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	if c.Parking.HealthCacheTTL < 0 {
		return fmt.Errorf("PARKING_HEALTH_CACHE_TTL must not be negative, got %s", c.Parking.HealthCacheTTL)
	}

	if c.App.MaxUploadSize <= 0 {
		return fmt.Errorf("APP_MAX_UPLOAD_SIZE must be positive, got %d", c.App.MaxUploadSize)
	}
	if c.App.MaxImagePixels <= 0 {
		return fmt.Errorf("APP_MAX_IMAGE_PIXELS must be positive, got %d", c.App.MaxImagePixels)
	}
	if c.OCR.MinConfidence < 0 || c.OCR.MinConfidence > 100 {
		return fmt.Errorf("OCR_MIN_CONFIDENCE must be within [0,100], got %v", c.OCR.MinConfidence)
	}

	return nil
}

// splitList flattens comma separated entries, since env values only split on spaces.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
