package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"platestation/internal/services/detection"
)

// Config holds every tunable of the station. Values come from the environment
// (optionally seeded from a .env file) and, for discovery, from a policy file.
type Config struct {
	Port         int
	LogDirectory string
	DatabasePath string

	DetectionsDirectory string // auto-save target, created on first write
	CaptureDirectory    string // manual stills

	Discovery DiscoveryPolicy

	PullInterval time.Duration // delay between two pulls (~33 fps at 30ms)
	ReadRetries  int           // 0 keeps the no-retry baseline

	ConfidenceThreshold float64
	Allowlist           string
	OCRLanguages        []string

	LogCapacity      int
	DetectionEnabled bool
	AutoSave         bool
}

// DiscoveryPolicy controls which devices and endpoints the probe tries.
type DiscoveryPolicy struct {
	LocalDeviceCount int
	FallbackPrefix   string
	HostSuffixes     []int
	URLTemplates     []string
	PingTimeout      time.Duration
	Workers          int
}

const DefaultPrefix = "192.168.1"

// DefaultPolicy returns the coarse heuristic the station ships with.
func DefaultPolicy() DiscoveryPolicy {
	return DiscoveryPolicy{
		LocalDeviceCount: 5,
		FallbackPrefix:   DefaultPrefix,
		HostSuffixes:     []int{1, 100, 101, 102, 254},
		URLTemplates: []string{
			"http://{host}/video",
			"http://{host}:8080/video",
			"rtsp://{host}/stream",
		},
		PingTimeout: 2 * time.Second,
		Workers:     4,
	}
}

// Load builds the configuration. A missing .env file is not an error; a policy
// file that is named but cannot be read or parsed is.
func Load() (*Config, error) {
	_ = godotenv.Load()

	defaults := DefaultPolicy()
	cfg := &Config{
		Port:                getEnvAsInt("PORT", 8080),
		LogDirectory:        getEnv("LOG_DIR", filepath.Join(".", "logs")),
		DatabasePath:        getEnv("DB_PATH", filepath.Join(".", "data", "station.db")),
		DetectionsDirectory: getEnv("DETECTIONS_DIR", filepath.Join(".", "detections")),
		CaptureDirectory:    getEnv("CAPTURE_DIR", "."),
		Discovery: DiscoveryPolicy{
			LocalDeviceCount: getEnvAsInt("LOCAL_DEVICE_COUNT", defaults.LocalDeviceCount),
			FallbackPrefix:   getEnv("FALLBACK_PREFIX", defaults.FallbackPrefix),
			HostSuffixes:     getEnvAsIntList("HOST_SUFFIXES", defaults.HostSuffixes),
			URLTemplates:     getEnvAsList("URL_TEMPLATES", defaults.URLTemplates),
			PingTimeout:      getEnvAsDuration("PING_TIMEOUT", defaults.PingTimeout),
			Workers:          getEnvAsInt("PROBE_WORKERS", defaults.Workers),
		},
		PullInterval:        getEnvAsDuration("PULL_INTERVAL", 30*time.Millisecond),
		ReadRetries:         getEnvAsInt("READ_RETRIES", 0),
		ConfidenceThreshold: getEnvAsFloat("CONFIDENCE_THRESHOLD", detection.DefaultThreshold),
		Allowlist:           getEnv("ALLOWLIST", detection.DefaultAllowlist),
		OCRLanguages:        getEnvAsList("OCR_LANGUAGES", []string{"spa", "eng"}),
		LogCapacity:         getEnvAsInt("LOG_CAPACITY", 50),
		DetectionEnabled:    getEnvAsBool("DETECTION_ENABLED", true),
		AutoSave:            getEnvAsBool("AUTO_SAVE", false),
	}

	if path := getEnv("DISCOVERY_POLICY_FILE", ""); path != "" {
		policy, err := LoadPolicyFile(path, cfg.Discovery)
		if err != nil {
			return nil, fmt.Errorf("discovery policy %s: %w", path, err)
		}
		cfg.Discovery = policy
	}

	// The retry budget never goes negative; anything below zero means baseline.
	if cfg.ReadRetries < 0 {
		cfg.ReadRetries = 0
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}

// getEnvAsList splits a comma separated value, dropping empty items.
func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return defaultValue
	}
	return items
}

func getEnvAsIntList(key string, defaultValue []int) []int {
	raw := getEnvAsList(key, nil)
	if raw == nil {
		return defaultValue
	}
	values := make([]int, 0, len(raw))
	for _, item := range raw {
		n, err := strconv.Atoi(item)
		if err != nil || n < 0 || n > 255 {
			return defaultValue
		}
		values = append(values, n)
	}
	return values
}
