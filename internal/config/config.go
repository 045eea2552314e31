package config

import (
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the filedex API configuration. It is constructed once in main
// and passed by value into component constructors; nothing reads it globally.
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	AWS        AWSConfig        `yaml:"aws"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Vector     VectorConfig     `yaml:"vector"`
	Validation ValidationConfig `yaml:"validation"`
	Cache      CacheConfig      `yaml:"cache"`
	Auth       AuthConfig       `yaml:"auth"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// AWSConfig holds S3 Vectors backend settings. Bucket, index and region are
// fixed for the lifetime of the adapter. ContentBucket is the optional
// regular S3 bucket holding raw file bytes; empty runs vectors-only.
type AWSConfig struct {
	Region        string `yaml:"region"`
	Profile       string `yaml:"profile"`
	VectorBucket  string `yaml:"vector_bucket"`
	VectorIndex   string `yaml:"vector_index"`
	ContentBucket string `yaml:"content_bucket"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// VectorConfig holds vectorization and query shaping settings.
type VectorConfig struct {
	Dimension          int     `yaml:"dimension"`
	MaxTextLength      int     `yaml:"max_text_length"`
	TruncationStrategy string  `yaml:"truncation_strategy"` // end (default), start, middle
	ImageWidth         int     `yaml:"image_width"`
	ImageHeight        int     `yaml:"image_height"`
	ImageFormat        string  `yaml:"image_format"` // jpeg (default), png
	DefaultTopK        int     `yaml:"default_top_k"`
	MaxTopK            int     `yaml:"max_top_k"` // S3 Vectors caps topK at 30
	DefaultThreshold   float64 `yaml:"default_similarity_threshold"`
	DefaultListLimit   int     `yaml:"default_list_limit"`
	MaxListLimit       int     `yaml:"max_list_limit"`
}

// ValidationConfig holds file validation limits.
type ValidationConfig struct {
	MaxFileSizeMB     int      `yaml:"max_file_size_mb"`
	MaxBatchSizeMB    int      `yaml:"max_batch_size_mb"`
	AllowedTypes      []string `yaml:"allowed_types"`
	BlockedExtensions []string `yaml:"blocked_extensions"`
	AllowEmpty        bool     `yaml:"allow_empty_files"`
}

// CacheConfig holds embedding cache settings. Disabled by default; the core
// performs no memoization unless this is switched on.
type CacheConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Addrs    []string `yaml:"addrs"`
	Password string   `yaml:"password"`
	TTLSec   int      `yaml:"ttl_sec"`
}

// MaxFileSizeBytes returns the per-file size limit in bytes.
func (v ValidationConfig) MaxFileSizeBytes() int64 {
	return int64(v.MaxFileSizeMB) * 1024 * 1024
}

// MaxBatchSizeBytes returns the aggregate batch size limit in bytes.
func (v ValidationConfig) MaxBatchSizeBytes() int64 {
	return int64(v.MaxBatchSizeMB) * 1024 * 1024
}

// PlaceholderVector returns the deterministic normalized vector used for the
// list/get/health query workaround. The backend has no enumeration primitive,
// so listings are similarity queries against this fixed vector.
func (v VectorConfig) PlaceholderVector() []float32 {
	rng := rand.New(rand.NewSource(1)) //nolint:gosec // determinism wanted, not entropy
	vec := make([]float32, v.Dimension)
	var sumSq float64
	for i := range vec {
		vec[i] = float32(rng.NormFloat64() * 0.1)
		sumSq += float64(vec[i]) * float64(vec[i])
	}
	if sumSq == 0 {
		return vec
	}
	inv := float32(1.0 / math.Sqrt(sumSq))
	for i := range vec {
		vec[i] *= inv
	}
	return vec
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.AWS.Region == "" {
		c.AWS.Region = "us-east-1"
	}
	if c.AWS.VectorIndex == "" {
		c.AWS.VectorIndex = "default-index"
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "text-embedding-3-small"
	}
	if c.Vector.Dimension <= 0 {
		c.Vector.Dimension = 768
	}
	if c.Vector.MaxTextLength <= 0 {
		c.Vector.MaxTextLength = 512
	}
	if c.Vector.TruncationStrategy == "" {
		c.Vector.TruncationStrategy = "end"
	}
	if c.Vector.ImageWidth <= 0 {
		c.Vector.ImageWidth = 224
	}
	if c.Vector.ImageHeight <= 0 {
		c.Vector.ImageHeight = 224
	}
	if c.Vector.ImageFormat == "" {
		c.Vector.ImageFormat = "jpeg"
	}
	if c.Vector.DefaultTopK <= 0 {
		c.Vector.DefaultTopK = 10
	}
	if c.Vector.MaxTopK <= 0 {
		c.Vector.MaxTopK = 30
	}
	if c.Vector.DefaultListLimit <= 0 {
		c.Vector.DefaultListLimit = 10
	}
	if c.Vector.MaxListLimit <= 0 {
		c.Vector.MaxListLimit = 30
	}
	if c.Validation.MaxFileSizeMB <= 0 {
		c.Validation.MaxFileSizeMB = 50
	}
	if c.Validation.MaxBatchSizeMB <= 0 {
		c.Validation.MaxBatchSizeMB = 200
	}
	if len(c.Validation.AllowedTypes) == 0 {
		c.Validation.AllowedTypes = []string{"text/*", "application/pdf", "image/*"}
	}
	if len(c.Validation.BlockedExtensions) == 0 {
		c.Validation.BlockedExtensions = []string{
			".exe", ".bat", ".cmd", ".scr", ".com", ".pif", ".dll", ".sys",
		}
	}
	if c.Cache.TTLSec <= 0 {
		c.Cache.TTLSec = 3600
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.AWS.VectorBucket == "" {
		return fmt.Errorf("aws.vector_bucket is required")
	}
	if c.Vector.Dimension > 4096 {
		return fmt.Errorf("vector.dimension must be at most 4096, got %d", c.Vector.Dimension)
	}
	switch c.Vector.TruncationStrategy {
	case "end", "start", "middle":
	default:
		return fmt.Errorf(
			"vector.truncation_strategy must be \"end\", \"start\" or \"middle\", got %q",
			c.Vector.TruncationStrategy,
		)
	}
	switch c.Vector.ImageFormat {
	case "jpeg", "png":
	default:
		return fmt.Errorf("vector.image_format must be \"jpeg\" or \"png\", got %q", c.Vector.ImageFormat)
	}
	if c.Vector.MaxTopK > 30 {
		return fmt.Errorf("vector.max_top_k exceeds the S3 Vectors query cap of 30, got %d", c.Vector.MaxTopK)
	}
	if c.Vector.DefaultTopK > c.Vector.MaxTopK {
		return fmt.Errorf(
			"vector.default_top_k (%d) exceeds vector.max_top_k (%d)",
			c.Vector.DefaultTopK, c.Vector.MaxTopK,
		)
	}
	if c.Vector.DefaultThreshold < 0 || c.Vector.DefaultThreshold > 1 {
		return fmt.Errorf(
			"vector.default_similarity_threshold must be in [0,1], got %f",
			c.Vector.DefaultThreshold,
		)
	}
	if c.Validation.MaxFileSizeMB > c.Validation.MaxBatchSizeMB {
		return fmt.Errorf(
			"validation.max_file_size_mb (%d) exceeds validation.max_batch_size_mb (%d)",
			c.Validation.MaxFileSizeMB, c.Validation.MaxBatchSizeMB,
		)
	}
	if c.Cache.Enabled && len(c.Cache.Addrs) == 0 {
		return fmt.Errorf("cache.addrs is required when cache.enabled is true")
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
