package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// DefaultBaseURL is the NOAA MRMS composite reflectivity directory.
const DefaultBaseURL = "https://mrms.ncep.noaa.gov/data/2D/MergedReflectivityComposite/"

type AppConfig struct {
	// Remote directory index listing the snapshots.
	BaseURL      string `validate:"required,url"`
	RemoteSuffix string `validate:"required"`

	// GridDir holds the decoded, point-ready artifacts. RawDir, when set,
	// also keeps each decompressed payload.
	GridDir string `validate:"required"`
	RawDir  string
	RawExt  string `validate:"required_with=RawDir"`

	// Retention is the age after which artifacts are evicted.
	Retention time.Duration `validate:"gt=0s"`

	// Codec encodes the canonical grid file; PayloadFormat decodes the
	// decompressed remote payload.
	Codec         string `validate:"oneof=cbor msgpack"`
	PayloadFormat string `validate:"oneof=cbor msgpack"`

	// SidecarPatterns are deleted from artifact directories after ingestion.
	SidecarPatterns []string

	IngestInterval time.Duration `validate:"gt=0s"`
	SweepInterval  time.Duration `validate:"gt=0s"`
	SampleWorkers  int           `validate:"gte=1,lte=64"`

	HTTPTimeout    time.Duration `validate:"gt=0s"`
	HTTPMaxRetries int           `validate:"gte=0,lte=10"`

	GeocoderAPIKey string

	Port  string `validate:"required,numeric"`
	Debug bool
}

var validate = validator.New()

// Load reads configuration from environment with sensible defaults. A
// .env file at envFile (or ./.env when empty) is applied first if present.
func Load(envFile string) (*AppConfig, error) {
	files := []string{}
	if envFile != "" {
		files = append(files, envFile)
	}
	if err := godotenv.Load(files...); err != nil {
		if envFile != "" {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}

	cfg := &AppConfig{
		BaseURL:         getenvDefault("RADAR_BASE_URL", DefaultBaseURL),
		RemoteSuffix:    getenvDefault("RADAR_REMOTE_SUFFIX", ".grib2.gz"),
		GridDir:         getenvDefault("RADAR_GRID_DIR", "/var/lib/radar-composite/grids"),
		RawDir:          os.Getenv("RADAR_RAW_DIR"),
		RawExt:          getenvDefault("RADAR_RAW_EXT", ".grib2"),
		Codec:           getenvDefault("RADAR_CODEC", "cbor"),
		PayloadFormat:   getenvDefault("RADAR_PAYLOAD_FORMAT", "cbor"),
		SidecarPatterns: getenvList("RADAR_SIDECAR_PATTERNS", []string{"*.grib2.*.idx", "*.idx", "*.aux.xml"}),
		SampleWorkers:   getenvInt("SAMPLE_WORKERS", 4),
		HTTPMaxRetries:  getenvInt("HTTP_MAX_RETRIES", 0),
		GeocoderAPIKey:  os.Getenv("GEOCODER_API_KEY"),
		Port:            getenvDefault("PORT", "8080"),
		Debug:           getenvBool("LOG_DEBUG", false),
	}

	durations := []struct {
		key string
		def string
		dst *time.Duration
	}{
		{"RADAR_RETENTION", "2h", &cfg.Retention},
		{"INGEST_INTERVAL", "2m", &cfg.IngestInterval},
		{"SWEEP_INTERVAL", "10m", &cfg.SweepInterval},
		{"HTTP_TIMEOUT", "60s", &cfg.HTTPTimeout},
	}
	for _, d := range durations {
		v, err := time.ParseDuration(getenvDefault(d.key, d.def))
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", d.key, err)
		}
		*d.dst = v
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// RawFile is the canonical file name of a kept raw payload.
func (c *AppConfig) RawFile() string {
	return "output" + c.RawExt
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getenvList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
