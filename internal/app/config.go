package app

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/inkwelldiary/inkwell/internal/logger"
	"github.com/inkwelldiary/inkwell/internal/utils"
)

type ModelConfig struct {
	// Filename is looked up in DataDir then ExternalDir.
	Filename  string `yaml:"filename"`
	MaxTokens int    `yaml:"max_tokens"`
	TopK      int    `yaml:"top_k"`
}

type EngineConfig struct {
	// Kind selects the engine backend: "local" (OpenAI-compatible local
	// server) or "mock".
	Kind           string        `yaml:"kind"`
	BaseURL        string        `yaml:"base_url"`
	APIKey         string        `yaml:"api_key"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type WorkerConfig struct {
	QueueSize int `yaml:"queue_size"`
}

type Config struct {
	// DataDir is the app's private storage: database, rendered art, and
	// the preferred model location.
	DataDir string `yaml:"data_dir"`
	// ExternalDir is the secondary model location, for devices where the
	// weights are provisioned out-of-band.
	ExternalDir string `yaml:"external_dir"`
	DBPath      string `yaml:"db_path"`
	LogMode     string `yaml:"log_mode"`

	Model  ModelConfig  `yaml:"model"`
	Engine EngineConfig `yaml:"engine"`
	Worker WorkerConfig `yaml:"worker"`
}

func defaultConfig() Config {
	dataDir := ".inkwell"
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".inkwell")
	}
	return Config{
		DataDir: dataDir,
		LogMode: "development",
		Model: ModelConfig{
			Filename:  "gemma-3n-E2B-it-int4.task",
			MaxTokens: 512,
			TopK:      40,
		},
		Engine: EngineConfig{
			Kind:    "local",
			BaseURL: "http://127.0.0.1:8080",
		},
		Worker: WorkerConfig{QueueSize: 16},
	}
}

// LoadConfig layers defaults, an optional YAML file, then environment
// overrides. A missing config file is fine; a malformed one is not.
func LoadConfig(log *logger.Logger, path string) (Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			log.Debug("Config file not found, using defaults", "path", path)
		case err != nil:
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
			log.Info("Config loaded", "path", path)
		}
	}

	cfg.DataDir = utils.GetEnv("INKWELL_DATA_DIR", cfg.DataDir, log)
	cfg.ExternalDir = utils.GetEnv("INKWELL_EXTERNAL_DIR", cfg.ExternalDir, log)
	cfg.DBPath = utils.GetEnv("INKWELL_DB_PATH", cfg.DBPath, log)
	cfg.LogMode = utils.GetEnv("LOG_MODE", cfg.LogMode, log)
	cfg.Model.Filename = utils.GetEnv("INKWELL_MODEL_FILE", cfg.Model.Filename, log)
	cfg.Model.MaxTokens = utils.GetEnvAsInt("INKWELL_MODEL_MAX_TOKENS", cfg.Model.MaxTokens, log)
	cfg.Model.TopK = utils.GetEnvAsInt("INKWELL_MODEL_TOP_K", cfg.Model.TopK, log)
	cfg.Engine.Kind = utils.GetEnv("INKWELL_ENGINE", cfg.Engine.Kind, log)
	cfg.Engine.BaseURL = utils.GetEnv("INKWELL_ENGINE_BASE_URL", cfg.Engine.BaseURL, log)
	cfg.Engine.APIKey = utils.GetEnv("INKWELL_ENGINE_API_KEY", cfg.Engine.APIKey, log)
	cfg.Worker.QueueSize = utils.GetEnvAsInt("ENRICH_QUEUE_SIZE", cfg.Worker.QueueSize, log)

	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.DataDir, "inkwell.db")
	}
	return cfg, nil
}
