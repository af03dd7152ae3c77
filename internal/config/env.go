package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	scannerService "cardscan/internal/api/scanner/service"
	"cardscan/internal/capture"
	"cardscan/pkg/cardapi"
	"github.com/go-playground/validator/v10"
)

// Env is the process configuration read from the environment.
type Env struct {
	AppPort            string        `validate:"required,numeric"`
	AppEnv             string        `validate:"omitempty,oneof=development production test"`
	CardAPIURL         string        `validate:"required,url"`
	CardAPITimeout     time.Duration `validate:"gt=0"`
	ScannerFPS         int           `validate:"gte=1,lte=120"`
	MaxIngestFPS       int           `validate:"gte=1,lte=240"`
	JPEGQuality        int           `validate:"gte=1,lte=100"`
	MaxUploadWidth     int           `validate:"gte=0"`
	CameraStartTimeout time.Duration `validate:"gt=0"`
	JWTSecret          string        `validate:"required"`
}

// Load reads Env with defaults applied. It does not validate.
func Load() Env {
	return Env{
		AppPort:            getenv("APP_PORT", "3000"),
		AppEnv:             os.Getenv("APP_ENV"),
		CardAPIURL:         os.Getenv("CARD_API_URL"),
		CardAPITimeout:     durationEnv("CARD_API_TIMEOUT", cardapi.DefaultTimeout),
		ScannerFPS:         intEnv("SCANNER_FPS", capture.DefaultFPS),
		MaxIngestFPS:       intEnv("SCANNER_MAX_INGEST_FPS", capture.DefaultFPS),
		JPEGQuality:        intEnv("SCANNER_JPEG_QUALITY", capture.DefaultJPEGQuality),
		MaxUploadWidth:     intEnv("SCANNER_MAX_UPLOAD_WIDTH", 0),
		CameraStartTimeout: durationEnv("CAMERA_START_TIMEOUT", scannerService.DefaultCameraStartTimeout),
		JWTSecret:          os.Getenv("JWT_ACCESS_TOKEN_SECRET"),
	}
}

// LoadEnv reads and validates Env.
func LoadEnv(v *validator.Validate) (Env, error) {
	env := Load()
	if err := v.Struct(env); err != nil {
		return Env{}, fmt.Errorf("invalid environment: %w", err)
	}
	return env, nil
}

// ScannerConfig maps the environment onto the scan service settings.
func (e Env) ScannerConfig() scannerService.Config {
	cfg := scannerService.DefaultConfig()
	cfg.FPS = e.ScannerFPS
	cfg.MaxIngestFPS = e.MaxIngestFPS
	cfg.JPEGQuality = e.JPEGQuality
	cfg.MaxUploadWidth = e.MaxUploadWidth
	cfg.CameraStartTimeout = e.CameraStartTimeout
	return cfg
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// intEnv maps a malformed value to -1, which every bound rejects.
func intEnv(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return -1
	}
	return v
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0
	}
	return d
}
