package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	bytesPerMB = 1024 * 1024
	// largest size in MB whose byte count still fits in int64
	maxFileSizeMB = math.MaxInt64 / bytesPerMB

	defaultPort                = 8080
	defaultMaxFileSizeMB       = 500
	defaultTimeoutSeconds      = 300
	defaultMaxConcurrent       = 5
	defaultMaxInflightRequests = 4
	defaultUserAgent           = "filedownloader/1.0"
)

// Directories maps each file category to its default storage directory.
type Directories struct {
	Image    string `yaml:"image"`
	Video    string `yaml:"video"`
	Document string `yaml:"document"`
	Other    string `yaml:"other"`
}

// Config describes runtime configuration for the service.
// It is loaded once at startup and must not be mutated afterwards.
type Config struct {
	Debug                  bool        `yaml:"debug"`
	Port                   int         `yaml:"port"`
	MaxFileSizeMB          int64       `yaml:"max_file_size_mb"`
	DownloadTimeoutSeconds int         `yaml:"download_timeout_seconds"`
	MaxConcurrentDownloads int         `yaml:"max_concurrent_downloads"`
	MaxBatchSize           int         `yaml:"max_batch_size"`
	MaxInflightRequests    int         `yaml:"max_inflight_requests"`
	AutoCreateDirectories  bool        `yaml:"auto_create_directories"`
	OverwriteExistingFiles bool        `yaml:"overwrite_existing_files"`
	ContentSniffing        bool        `yaml:"content_sniffing"`
	AllowedDomains         []string    `yaml:"allowed_domains"`
	UserAgent              string      `yaml:"user_agent"`
	Directories            Directories `yaml:"directories"`
}

// Limits are the process-wide transfer ceilings derived from Config.
type Limits struct {
	MaxFileSize     int64
	DownloadTimeout time.Duration
	MaxConcurrent   int
	MaxBatchSize    int
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		Port:                   defaultPort,
		MaxFileSizeMB:          defaultMaxFileSizeMB,
		DownloadTimeoutSeconds: defaultTimeoutSeconds,
		MaxConcurrentDownloads: defaultMaxConcurrent,
		MaxInflightRequests:    defaultMaxInflightRequests,
		AutoCreateDirectories:  true,
		OverwriteExistingFiles: true,
		ContentSniffing:        true,
		UserAgent:              defaultUserAgent,
		Directories: Directories{
			Image:    "downloads/images/",
			Video:    "downloads/videos/",
			Document: "downloads/docs/",
			Other:    "downloads/others/",
		},
	}
}

// Load reads YAML config from path, then applies the dotenv file (if any) and the
// process environment on top. A missing or empty YAML file yields defaults.
func Load(path, envFile string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, errors.New("empty config path")
	}
	fileData, err := os.ReadFile(path) //nolint:gosec // config path is controlled by deployment
	if err != nil && !os.IsNotExist(err) {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if len(fileData) > 0 {
		if err := yaml.Unmarshal(fileData, &cfg); err != nil {
			return cfg, fmt.Errorf("parse yaml: %w", err)
		}
	}

	if envFile != "" {
		// godotenv.Load never overrides variables already present in the environment
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return cfg, fmt.Errorf("load env file: %w", err)
		}
	}
	applyEnv(&cfg)

	if err := cfg.normalize(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Debug = getBool("DEBUG_MODE", cfg.Debug)
	cfg.Port = getInt("HTTP_PORT", cfg.Port)
	cfg.MaxFileSizeMB = int64(getInt("MAX_FILE_SIZE_MB", int(cfg.MaxFileSizeMB)))
	cfg.DownloadTimeoutSeconds = getInt("DOWNLOAD_TIMEOUT_SECONDS", cfg.DownloadTimeoutSeconds)
	cfg.MaxConcurrentDownloads = getInt("MAX_CONCURRENT_DOWNLOADS", cfg.MaxConcurrentDownloads)
	cfg.MaxBatchSize = getInt("MAX_BATCH_SIZE", cfg.MaxBatchSize)
	cfg.MaxInflightRequests = getInt("MAX_INFLIGHT_REQUESTS", cfg.MaxInflightRequests)
	cfg.AutoCreateDirectories = getBool("AUTO_CREATE_DIRECTORIES", cfg.AutoCreateDirectories)
	cfg.OverwriteExistingFiles = getBool("OVERWRITE_EXISTING_FILES", cfg.OverwriteExistingFiles)
	cfg.ContentSniffing = getBool("ENABLE_CONTENT_SNIFFING", cfg.ContentSniffing)
	cfg.UserAgent = getEnv("USER_AGENT", cfg.UserAgent)
	cfg.Directories.Image = getEnv("DEFAULT_IMAGE_DIR", cfg.Directories.Image)
	cfg.Directories.Video = getEnv("DEFAULT_VIDEO_DIR", cfg.Directories.Video)
	cfg.Directories.Document = getEnv("DEFAULT_DOCUMENT_DIR", cfg.Directories.Document)
	cfg.Directories.Other = getEnv("DEFAULT_OTHER_DIR", cfg.Directories.Other)
	if raw, ok := os.LookupEnv("ALLOWED_DOMAINS"); ok {
		cfg.AllowedDomains = strings.Split(raw, ",")
	}
}

func (c *Config) normalize() error {
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if c.MaxFileSizeMB < 1 {
		return fmt.Errorf("invalid max_file_size_mb: %d (must be >= 1)", c.MaxFileSizeMB)
	}
	if c.MaxFileSizeMB > maxFileSizeMB {
		c.MaxFileSizeMB = maxFileSizeMB
	}
	if c.DownloadTimeoutSeconds < 1 {
		return fmt.Errorf("invalid download_timeout_seconds: %d (must be >= 1)", c.DownloadTimeoutSeconds)
	}
	if c.MaxConcurrentDownloads < 1 {
		return fmt.Errorf("invalid max_concurrent_downloads: %d (must be >= 1)", c.MaxConcurrentDownloads)
	}
	// batch size follows the concurrency limit unless raised explicitly
	if c.MaxBatchSize == 0 {
		c.MaxBatchSize = c.MaxConcurrentDownloads
	}
	if c.MaxBatchSize < 1 {
		return fmt.Errorf("invalid max_batch_size: %d (must be >= 1)", c.MaxBatchSize)
	}
	if c.MaxInflightRequests < 1 {
		c.MaxInflightRequests = defaultMaxInflightRequests
	}
	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}
	def := Default().Directories
	if c.Directories.Image == "" {
		c.Directories.Image = def.Image
	}
	if c.Directories.Video == "" {
		c.Directories.Video = def.Video
	}
	if c.Directories.Document == "" {
		c.Directories.Document = def.Document
	}
	if c.Directories.Other == "" {
		c.Directories.Other = def.Other
	}
	c.AllowedDomains = normalizeDomains(c.AllowedDomains)
	return nil
}

// Limits returns the transfer limits derived from the configuration.
func (c Config) Limits() Limits {
	return Limits{
		MaxFileSize:     c.MaxFileSizeMB * bytesPerMB,
		DownloadTimeout: time.Duration(c.DownloadTimeoutSeconds) * time.Second,
		MaxConcurrent:   c.MaxConcurrentDownloads,
		MaxBatchSize:    c.MaxBatchSize,
	}
}

func normalizeDomains(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	normalized := make([]string, 0, len(in))
	for _, domain := range in {
		d := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(domain)), ".")
		if d == "" {
			continue
		}
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		normalized = append(normalized, d)
	}
	return normalized
}
