package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Swap targets
const (
	SwapTargetCrop   = "crop"
	SwapTargetSource = "source"
)

// Config holds everything the kiosk needs to run a generation pipeline.
type Config struct {
	TmpDir          string `yaml:"tmp_dir"`
	DefaultFacePath string `yaml:"default_face_path"`

	Leonardo  LeonardoConfig  `yaml:"leonardo"`
	Segmind   SegmindConfig   `yaml:"segmind"`
	Upload    UploadConfig    `yaml:"upload"`
	Detection DetectionConfig `yaml:"detection"`

	MaxAutoRetries int    `yaml:"max_auto_retries"`
	SwapTarget     string `yaml:"swap_target"`

	// Generation is merged into every submission body, overriding the defaults.
	Generation map[string]any `yaml:"generation"`
	Prompts    PromptConfig   `yaml:"prompts"`
}

type LeonardoConfig struct {
	URL          string        `yaml:"url"`
	APIKey       string        `yaml:"api_key"`
	PollInterval time.Duration `yaml:"poll_interval"`
	PollTimeout  time.Duration `yaml:"poll_timeout"`
}

type SegmindConfig struct {
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key"`
}

type UploadConfig struct {
	Backend string `yaml:"backend"` // none, http, minio
	URL     string `yaml:"url"`
	APIKey  string `yaml:"api_key"`

	MinIOEndpoint  string        `yaml:"minio_endpoint"`
	MinIOAccessKey string        `yaml:"minio_access_key"`
	MinIOSecretKey string        `yaml:"minio_secret_key"`
	MinIOBucket    string        `yaml:"minio_bucket"`
	MinIOUseSSL    bool          `yaml:"minio_use_ssl"`
	MinIOURLExpiry time.Duration `yaml:"minio_url_expiry"`
}

type DetectionConfig struct {
	Backend      string        `yaml:"backend"` // notifier, gemini, ollama, openai
	Margin       float64       `yaml:"margin"`
	Timeout      time.Duration `yaml:"timeout"`
	GeminiAPIKey string        `yaml:"gemini_api_key"`
	GeminiModel  string        `yaml:"gemini_model"`
	OllamaURL    string        `yaml:"ollama_url"`
	OllamaModel  string        `yaml:"ollama_model"`
	OpenAIAPIKey string        `yaml:"openai_api_key"`
	OpenAIModel  string        `yaml:"openai_model"`
}

type PromptConfig struct {
	// File points at a YAML prompt book and takes precedence over the inline fields.
	File           string   `yaml:"file"`
	Prompt         string   `yaml:"prompt"`
	NegativePrompt string   `yaml:"negative_prompt"`
	Subjects       []string `yaml:"subjects"`
}

// Default returns the configuration used when nothing else is provided.
func Default() Config {
	tmp := filepath.Join(os.TempDir(), "portraitkiosk")
	if home, err := os.UserHomeDir(); err == nil {
		tmp = filepath.Join(home, "Downloads", "tmp")
	}
	return Config{
		TmpDir:          tmp,
		DefaultFacePath: filepath.Join(tmp, "harry.jpg"),
		Leonardo: LeonardoConfig{
			URL:          "https://cloud.leonardo.ai/api/rest/v1",
			PollInterval: 2 * time.Second,
		},
		Segmind: SegmindConfig{
			URL: "https://api.segmind.com/v1/faceswap-v2",
		},
		Upload: UploadConfig{
			Backend:        "none",
			MinIOBucket:    "portraitkiosk",
			MinIOURLExpiry: 24 * time.Hour,
		},
		Detection: DetectionConfig{
			Backend:     "notifier",
			Margin:      50,
			GeminiModel: "gemini-1.5-flash",
			OllamaModel: "llava",
			OpenAIModel: "gpt-4o-mini",
		},
		MaxAutoRetries: 3,
		SwapTarget:     SwapTargetCrop,
	}
}

// Load builds a Config from defaults, the optional YAML settings file at path,
// and finally the environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("KIOSK_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.TmpDir = getenv("KIOSK_TMP_DIR", c.TmpDir)
	c.DefaultFacePath = getenv("KIOSK_DEFAULT_FACE", c.DefaultFacePath)

	c.Leonardo.URL = getenv("LEONARDO_API_URL", c.Leonardo.URL)
	c.Leonardo.APIKey = getenv("LEONARDO_API_KEY", c.Leonardo.APIKey)
	c.Leonardo.PollInterval = getenvDuration("POLL_INTERVAL", c.Leonardo.PollInterval)
	c.Leonardo.PollTimeout = getenvDuration("POLL_TIMEOUT", c.Leonardo.PollTimeout)

	c.Segmind.URL = getenv("SEGMIND_API_URL", c.Segmind.URL)
	c.Segmind.APIKey = getenv("SEGMIND_API_KEY", c.Segmind.APIKey)

	c.Upload.Backend = getenv("UPLOAD_BACKEND", c.Upload.Backend)
	c.Upload.URL = getenv("IMAGE_UPLOADER_API_URL", c.Upload.URL)
	c.Upload.APIKey = getenv("IMAGE_UPLOADER_API_KEY", c.Upload.APIKey)
	c.Upload.MinIOEndpoint = getenv("MINIO_ENDPOINT", c.Upload.MinIOEndpoint)
	c.Upload.MinIOAccessKey = getenv("MINIO_ACCESS_KEY", c.Upload.MinIOAccessKey)
	c.Upload.MinIOSecretKey = getenv("MINIO_SECRET_KEY", c.Upload.MinIOSecretKey)
	c.Upload.MinIOBucket = getenv("MINIO_BUCKET", c.Upload.MinIOBucket)
	c.Upload.MinIOUseSSL = getenvBool("MINIO_USE_SSL", c.Upload.MinIOUseSSL)

	c.Detection.Backend = getenv("DETECTION_BACKEND", c.Detection.Backend)
	c.Detection.Margin = getenvFloat("DETECTION_MARGIN", c.Detection.Margin)
	c.Detection.Timeout = getenvDuration("DETECTION_TIMEOUT", c.Detection.Timeout)
	c.Detection.GeminiAPIKey = getenv("GEMINI_API_KEY", c.Detection.GeminiAPIKey)
	c.Detection.GeminiModel = getenv("GEMINI_MODEL", c.Detection.GeminiModel)
	c.Detection.OllamaURL = getenv("OLLAMA_URL", c.Detection.OllamaURL)
	c.Detection.OllamaModel = getenv("OLLAMA_MODEL", c.Detection.OllamaModel)
	c.Detection.OpenAIAPIKey = getenv("OPENAI_API_KEY", c.Detection.OpenAIAPIKey)
	c.Detection.OpenAIModel = getenv("OPENAI_MODEL", c.Detection.OpenAIModel)

	c.Prompts.File = getenv("KIOSK_PROMPTS_FILE", c.Prompts.File)

	c.MaxAutoRetries = getenvInt("MAX_AUTO_RETRIES", c.MaxAutoRetries)
	c.SwapTarget = getenv("SWAP_TARGET", c.SwapTarget)
}

// Validate reports settings that would make every run fail.
func (c Config) Validate() error {
	if c.TmpDir == "" {
		return fmt.Errorf("tmp_dir must not be empty")
	}
	if c.Leonardo.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", c.Leonardo.PollInterval)
	}
	if c.MaxAutoRetries < 0 {
		return fmt.Errorf("max auto retries must not be negative, got %d", c.MaxAutoRetries)
	}
	if c.Detection.Margin < 0 {
		return fmt.Errorf("detection margin must not be negative, got %v", c.Detection.Margin)
	}
	switch c.SwapTarget {
	case SwapTargetCrop, SwapTargetSource:
	default:
		return fmt.Errorf("unsupported swap target: %s", c.SwapTarget)
	}
	switch strings.ToLower(c.Upload.Backend) {
	case "", "none", "http", "minio":
	default:
		return fmt.Errorf("unsupported upload backend: %s", c.Upload.Backend)
	}
	switch strings.ToLower(c.Detection.Backend) {
	case "notifier", "gemini", "ollama", "openai":
	default:
		return fmt.Errorf("unsupported detection backend: %s", c.Detection.Backend)
	}
	return nil
}

func getenv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func getenvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// getenvDuration accepts Go durations ("2s") or plain milliseconds ("2000").
func getenvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
