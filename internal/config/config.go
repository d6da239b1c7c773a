// File: internal/config/config.go
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type ServerConfig struct {
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// AuthSecret enables HS256 bearer tokens on /api/sessions when set.
	AuthSecret string        `yaml:"auth_secret"`
	TokenTTL   time.Duration `yaml:"token_ttl"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

// Store backends for the persisted session collection.
const (
	StoreMemory   = "memory"
	StoreFile     = "file"
	StoreSQLite   = "sqlite"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

type StoreConfig struct {
	Backend    string `yaml:"backend"` // memory|file|sqlite|redis|postgres
	Key        string `yaml:"key"`     // key holding the JSON array of sessions
	FileDir    string `yaml:"file_dir"`
	SQLitePath string `yaml:"sqlite_path"`

	// EncryptionKey seals the stored collection with AES-GCM when set (16/24/32 bytes).
	EncryptionKey string `yaml:"encryption_key"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"` // 0 keeps the collection forever
}

// Inference backend kinds.
const (
	BackendHTTP  = "http"
	BackendLocal = "local"
	BackendMock  = "mock"
)

type BackendConfig struct {
	Kind            string        `yaml:"kind"` // http|local|mock
	BaseURL         string        `yaml:"base_url"`
	Timeout         time.Duration `yaml:"timeout"`
	ConcurrentLimit int           `yaml:"concurrent_limit"`
	Serve           bool          `yaml:"serve"` // mount /api/chat etc. backed by the local backend
	MockDelay       time.Duration `yaml:"mock_delay"`
}

type AIConfig struct {
	Provider            string  `yaml:"provider"` // openai|gemini|multi|noop
	OpenAIKey           string  `yaml:"openai_api_key"`
	OpenAIBaseURL       string  `yaml:"openai_base_url"`
	GeminiKey           string  `yaml:"gemini_api_key"`
	GeminiURL           string  `yaml:"gemini_base_url"`
	DefaultModel        string  `yaml:"default_model"`
	Temperature         float64 `yaml:"temperature"`
	MaxCompletionTokens int     `yaml:"max_completion_tokens"`
	ConcurrentLimit     int     `yaml:"concurrent_limit"` // max concurrent AI calls

	// Models routes model names to "openai" or "gemini" when provider is multi.
	Models map[string]string `yaml:"models"`
}

type DocumentsConfig struct {
	ChunkSize        int    `yaml:"chunk_size"`
	MaxChunks        int    `yaml:"max_chunks"`
	MaxContextTokens int    `yaml:"max_context_tokens"`
	Encoding         string `yaml:"encoding"`

	// TTL evicts indexed documents older than this; 0 keeps them.
	TTL time.Duration `yaml:"ttl"`
}

type WorkerConfig struct {
	Workers int `yaml:"workers"`
	Queue   int `yaml:"queue"`
}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Store     StoreConfig     `yaml:"store"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Backend   BackendConfig   `yaml:"backend"`
	AI        AIConfig        `yaml:"ai"`
	Documents DocumentsConfig `yaml:"documents"`
	Worker    WorkerConfig    `yaml:"worker"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig parses -config and -dev from the command line and loads the file.
func LoadConfig() (*Config, error) {
	var configPath string
	var dev bool
	flag.StringVar(&configPath, "config", "config.yaml", "path to config yaml")
	flag.BoolVar(&dev, "dev", false, "development mode")
	flag.Parse()
	return Load(configPath, dev)
}

// Load reads a YAML file, expanding ${VAR} references from the environment.
func Load(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b, dev)
}

func Parse(b []byte, dev bool) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(b))), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	cfg.Runtime.Dev = dev
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a config usable without a file: memory store, mock backend.
func Default() *Config {
	cfg := &Config{}
	cfg.Store.Backend = StoreMemory
	cfg.Backend.Kind = BackendMock
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Port <= 0 {
		c.Server.Port = 8080
	}
	if c.Server.RequestTimeout <= 0 {
		c.Server.RequestTimeout = 2 * time.Minute
	}
	if c.Server.TokenTTL <= 0 {
		c.Server.TokenTTL = 24 * time.Hour
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}

	c.Store.Backend = strings.ToLower(c.Store.Backend)
	if c.Store.Backend == "" {
		c.Store.Backend = StoreFile
	}
	if c.Store.Key == "" {
		c.Store.Key = "chatSessions"
	}
	if c.Store.FileDir == "" {
		c.Store.FileDir = "./data"
	}
	if c.Store.SQLitePath == "" {
		c.Store.SQLitePath = "./data/sessions.db"
	}
	if c.Database.MaxConns <= 0 {
		c.Database.MaxConns = 4
	}
	c.Redis.TTL = normalizeTTL(c.Redis.TTL)

	c.Backend.Kind = strings.ToLower(c.Backend.Kind)
	if c.Backend.Kind == "" {
		c.Backend.Kind = BackendHTTP
	}
	if c.Backend.BaseURL == "" {
		c.Backend.BaseURL = "http://127.0.0.1:8000"
	}
	if c.Backend.Timeout <= 0 {
		c.Backend.Timeout = 60 * time.Second
	}
	if c.Backend.ConcurrentLimit <= 0 {
		c.Backend.ConcurrentLimit = 8
	}
	if c.Backend.MockDelay < 0 {
		c.Backend.MockDelay = 0
	}

	c.AI.Provider = strings.ToLower(c.AI.Provider)
	if c.AI.Provider == "" {
		c.AI.Provider = "openai"
	}
	if c.AI.OpenAIBaseURL == "" {
		c.AI.OpenAIBaseURL = "https://api.cerebras.ai/v1"
	}
	if c.AI.DefaultModel == "" {
		c.AI.DefaultModel = "llama3.3-70b"
	}
	if c.AI.Temperature <= 0 {
		c.AI.Temperature = 0.2
	}
	if c.AI.MaxCompletionTokens <= 0 {
		c.AI.MaxCompletionTokens = 1024
	}
	if c.AI.ConcurrentLimit <= 0 {
		c.AI.ConcurrentLimit = 16
	}

	if c.Documents.ChunkSize <= 0 {
		c.Documents.ChunkSize = 8192
	}
	if c.Documents.MaxChunks <= 0 {
		c.Documents.MaxChunks = 1
	}
	if c.Documents.MaxContextTokens <= 0 {
		c.Documents.MaxContextTokens = 6000
	}
	if c.Documents.TTL < 0 {
		c.Documents.TTL = 0
	}
	if c.Documents.Encoding == "" {
		c.Documents.Encoding = "cl100k_base"
	}

	if c.Worker.Workers <= 0 {
		c.Worker.Workers = 4
	}
	if c.Worker.Queue <= 0 {
		c.Worker.Queue = c.Worker.Workers * 4
	}
}

// Validate checks that the selected backends have what they need.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case StoreMemory, StoreFile, StoreSQLite:
	case StoreRedis:
		if c.Redis.URL == "" {
			return errors.New("redis.url is required for store.backend=redis")
		}
	case StorePostgres:
		if c.Database.URL == "" {
			return errors.New("database.url is required for store.backend=postgres")
		}
	default:
		return fmt.Errorf("unknown store.backend %q", c.Store.Backend)
	}

	if k := len(c.Store.EncryptionKey); k != 0 && k != 16 && k != 24 && k != 32 {
		return fmt.Errorf("store.encryption_key must be 16, 24, or 32 bytes; got %d", k)
	}

	switch c.Backend.Kind {
	case BackendHTTP:
		if c.Backend.BaseURL == "" {
			return errors.New("backend.base_url is required for backend.kind=http")
		}
	case BackendLocal, BackendMock:
	default:
		return fmt.Errorf("unknown backend.kind %q", c.Backend.Kind)
	}

	if c.Backend.Kind == BackendLocal || c.Backend.Serve {
		switch c.AI.Provider {
		case "openai":
			if c.AI.OpenAIKey == "" {
				return errors.New("ai.openai_api_key is required for ai.provider=openai")
			}
		case "gemini":
			if c.AI.GeminiKey == "" {
				return errors.New("ai.gemini_api_key is required for ai.provider=gemini")
			}
		case "multi":
			if c.AI.OpenAIKey == "" && c.AI.GeminiKey == "" {
				return errors.New("ai.provider=multi needs at least one of ai.openai_api_key, ai.gemini_api_key")
			}
			for model, prov := range c.AI.Models {
				if p := strings.ToLower(prov); p != "openai" && p != "gemini" {
					return fmt.Errorf("ai.models[%s]: unknown provider %q", model, prov)
				}
			}
		case "noop":
		default:
			return fmt.Errorf("unknown ai.provider %q", c.AI.Provider)
		}
	}
	return nil
}

// normalizeTTL keeps the collection forever unless a positive TTL is set.
func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d
}
