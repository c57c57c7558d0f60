package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration
type Config struct {
	Vision   VisionConfig   `json:"vision"`
	Analysis AnalysisConfig `json:"analysis"`
	Voice    VoiceConfig    `json:"voice"`
	Storage  StorageConfig  `json:"storage"`
	Server   ServerConfig   `json:"server"`
	Log      LogConfig      `json:"log"`
}

// VisionConfig selects the vision model backend
type VisionConfig struct {
	Backend     string `json:"backend"` // ollama|llamacpp
	URL         string `json:"url"`
	Model       string `json:"model"`
	SendFormat  string `json:"send_format"`
	SendSize    int    `json:"send_size"`
	SendQuality int    `json:"send_quality"`
	// SceneModel enables vision-based scene classification; empty uses the fixed ranking
	SceneModel string `json:"scene_model"`
}

// AnalysisConfig holds thresholds for detection and matching
type AnalysisConfig struct {
	MinObjectScore float64 `json:"min_object_score"`
	MaxObjects     int     `json:"max_objects"`
	MaxFaces       int     `json:"max_faces"`
	MatchThreshold float64 `json:"match_threshold"`
	LandmarkScale  float64 `json:"landmark_scale"`
	// Seed for the expression/deepfake placeholders; 0 seeds from the clock
	Seed int64 `json:"seed"`
}

// VoiceConfig holds narration and speech-to-text settings
type VoiceConfig struct {
	Enabled        bool    `json:"enabled"`
	Speed          float64 `json:"speed"`
	Language       string  `json:"language"`
	DeepgramAPIKey string  `json:"deepgram_api_key,omitempty"`
	DeepgramModel  string  `json:"deepgram_model"`
}

// StorageConfig selects where saved results live
type StorageConfig struct {
	Backend       string `json:"backend"` // memory|redis
	RedisAddr     string `json:"redis_addr"`
	RedisPassword string `json:"redis_password,omitempty"`
	RedisDB       int    `json:"redis_db"`
	TTL           string `json:"ttl"`
}

// ServerConfig holds websocket server settings
type ServerConfig struct {
	Addr           string   `json:"addr"`
	AllowedOrigins []string `json:"allowed_origins"`
	MaxImageMB     int      `json:"max_image_mb"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level       string `json:"level"`
	Development bool   `json:"development"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Vision: VisionConfig{
			Backend:     "ollama",
			URL:         "http://localhost:11434",
			Model:       "llava:13b",
			SendFormat:  "jpg",
			SendSize:    1536,
			SendQuality: 85,
		},
		Analysis: AnalysisConfig{
			MinObjectScore: 0.3,
			MaxObjects:     20,
			MaxFaces:       10,
			MatchThreshold: 0.6,
			LandmarkScale:  500,
		},
		Voice: VoiceConfig{
			Enabled:       true,
			Speed:         1.0,
			Language:      "en",
			DeepgramModel: "nova-2",
		},
		Storage: StorageConfig{
			Backend:   "memory",
			RedisAddr: "localhost:6379",
			TTL:       "720h",
		},
		Server: ServerConfig{
			Addr:       ":8080",
			MaxImageMB: 10,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// LoadFromFile loads configuration from a JSON file. Missing keys keep their defaults.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// Load reads filename if it exists (defaults otherwise) and applies environment overrides
func Load(filename string) (*Config, error) {
	config := Default()
	if filename != "" {
		if _, err := os.Stat(filename); err == nil {
			if config, err = LoadFromFile(filename); err != nil {
				return nil, err
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
	}

	config.ApplyEnv()
	return config, config.Validate()
}

// SaveToFile saves configuration to a JSON file
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyEnv loads an optional .env file and overrides settings from SIGHT_* variables.
// DEEPGRAM_API_KEY and REDIS_PASSWORD are also read unprefixed.
func (c *Config) ApplyEnv() {
	// a missing .env is fine, the process environment still applies
	_ = godotenv.Load()

	c.Vision.Backend = getEnv("SIGHT_VISION_BACKEND", c.Vision.Backend)
	c.Vision.URL = getEnv("SIGHT_VISION_URL", c.Vision.URL)
	c.Vision.Model = getEnv("SIGHT_VISION_MODEL", c.Vision.Model)
	c.Vision.SceneModel = getEnv("SIGHT_SCENE_MODEL", c.Vision.SceneModel)

	c.Analysis.MatchThreshold = getEnvFloat("SIGHT_MATCH_THRESHOLD", c.Analysis.MatchThreshold)

	c.Voice.Enabled = getEnvBool("SIGHT_VOICE_ENABLED", c.Voice.Enabled)
	c.Voice.Speed = getEnvFloat("SIGHT_VOICE_SPEED", c.Voice.Speed)
	c.Voice.Language = getEnv("SIGHT_VOICE_LANGUAGE", c.Voice.Language)
	c.Voice.DeepgramAPIKey = getEnv("DEEPGRAM_API_KEY", getEnv("SIGHT_DEEPGRAM_API_KEY", c.Voice.DeepgramAPIKey))
	c.Voice.DeepgramModel = getEnv("SIGHT_DEEPGRAM_MODEL", c.Voice.DeepgramModel)

	c.Storage.Backend = getEnv("SIGHT_STORAGE", c.Storage.Backend)
	c.Storage.RedisAddr = getEnv("SIGHT_REDIS_ADDR", c.Storage.RedisAddr)
	c.Storage.RedisPassword = getEnv("REDIS_PASSWORD", getEnv("SIGHT_REDIS_PASSWORD", c.Storage.RedisPassword))
	c.Storage.RedisDB = getEnvInt("SIGHT_REDIS_DB", c.Storage.RedisDB)
	c.Storage.TTL = getEnv("SIGHT_RESULT_TTL", c.Storage.TTL)

	c.Server.Addr = getEnv("SIGHT_ADDR", c.Server.Addr)

	c.Log.Level = getEnv("SIGHT_LOG_LEVEL", c.Log.Level)
	c.Log.Development = getEnvBool("SIGHT_LOG_DEV", c.Log.Development)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.Vision.Backend {
	case "ollama", "llamacpp":
	default:
		return fmt.Errorf("vision.backend must be ollama or llamacpp, got %q", c.Vision.Backend)
	}

	if c.Vision.Model == "" {
		return fmt.Errorf("vision.model cannot be empty")
	}

	if c.Vision.SendQuality < 1 || c.Vision.SendQuality > 100 {
		return fmt.Errorf("vision.send_quality must be between 1 and 100")
	}

	if c.Vision.SendSize < 0 {
		return fmt.Errorf("vision.send_size must not be negative")
	}

	if c.Analysis.MinObjectScore < 0 || c.Analysis.MinObjectScore > 1 {
		return fmt.Errorf("analysis.min_object_score must be between 0 and 1")
	}

	if c.Analysis.MatchThreshold < 0 || c.Analysis.MatchThreshold > 1 {
		return fmt.Errorf("analysis.match_threshold must be between 0 and 1")
	}

	if c.Analysis.LandmarkScale <= 0 {
		return fmt.Errorf("analysis.landmark_scale must be positive")
	}

	if c.Voice.Speed < 0.5 || c.Voice.Speed > 2.0 {
		return fmt.Errorf("voice.speed must be between 0.5 and 2.0")
	}

	switch c.Voice.Language {
	case "en", "es", "fr", "zh":
	default:
		return fmt.Errorf("voice.language must be one of en, es, fr, zh")
	}

	switch c.Storage.Backend {
	case "memory":
	case "redis":
		if c.Storage.RedisAddr == "" {
			return fmt.Errorf("storage.redis_addr cannot be empty with the redis backend")
		}
	default:
		return fmt.Errorf("storage.backend must be memory or redis, got %q", c.Storage.Backend)
	}

	if _, err := c.Storage.TTLDuration(); err != nil {
		return err
	}

	return nil
}

// TTLDuration parses the saved-result TTL. Empty or "0" means results never expire.
func (s StorageConfig) TTLDuration() (time.Duration, error) {
	if s.TTL == "" || s.TTL == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(s.TTL)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("storage.ttl must be a non-negative duration, got %q", s.TTL)
	}
	return d, nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "sight-analyzer", "config.json")
}

func getEnv(key string, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if intVal, err := strconv.Atoi(v); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}
