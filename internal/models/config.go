package models

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the service configuration
type Config struct {
	// Server config
	Port int    `yaml:"port"`
	Host string `yaml:"host"`

	Log      LogConfig      `yaml:"log"`
	AI       AIConfig       `yaml:"ai"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Database DatabaseConfig `yaml:"database"`
	Storage  StorageConfig  `yaml:"storage"`
	Auth     AuthConfig     `yaml:"auth"`

	// YAML catalog seeding the in-memory stores when no database is configured
	CatalogFile string `yaml:"catalog_file"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`  // trace, debug, info, warn, error
	Format string `yaml:"format"` // json, console
	Output string `yaml:"output"` // stdout, stderr, or file path
}

// AIConfig represents AI provider configuration
type AIConfig struct {
	OpenAI OpenAIConfig `yaml:"openai"`
	Gemini GeminiConfig `yaml:"gemini"`
	Ollama OllamaConfig `yaml:"ollama"`

	DefaultProvider   string        `yaml:"default_provider"` // "openai", "gemini", "ollama"
	Timeout           time.Duration `yaml:"timeout"`          // Per attempt
	RequestsPerMinute int           `yaml:"requests_per_minute"`
}

// OpenAIConfig for OpenAI/Azure OpenAI
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url,omitempty"` // For custom endpoints
	Model   string `yaml:"model"`
}

// GeminiConfig for Google Gemini
type GeminiConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// OllamaConfig for local Ollama
type OllamaConfig struct {
	BaseURL string `yaml:"base_url"` // Default: "http://localhost:11434"
	Model   string `yaml:"model"`
}

// PipelineConfig holds the extraction and matching thresholds
type PipelineConfig struct {
	TextCeiling         int     `yaml:"text_ceiling"`
	AutoThreshold       float64 `yaml:"auto_threshold"`
	SuggestionFloor     float64 `yaml:"suggestion_floor"`
	AmbiguityMargin     float64 `yaml:"ambiguity_margin"`
	SupplierSuggestions int     `yaml:"supplier_suggestions"`
	ProductSuggestions  int     `yaml:"product_suggestions"`
	OCRConfidence       float64 `yaml:"ocr_confidence"`
	ReviewConfidence    float64 `yaml:"review_confidence"`
	TotalsTolerance     float64 `yaml:"totals_tolerance"`
	TaxRate             float64 `yaml:"tax_rate"`
	MatchConcurrency    int     `yaml:"match_concurrency"`
	DuplicateNameFloor  float64 `yaml:"duplicate_name_floor"`
	SaleMarkup          float64 `yaml:"sale_markup"`
}

// DatabaseConfig for PostgreSQL
type DatabaseConfig struct {
	URL      string `yaml:"url"`
	Schema   string `yaml:"schema"`
	MaxConns int32  `yaml:"max_conns"`
	MinConns int32  `yaml:"min_conns"`
	Migrate  bool   `yaml:"migrate"`
}

// StorageConfig for MinIO
type StorageConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// AuthConfig for JWT bearer tokens
type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	Issuer    string        `yaml:"issuer"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

// DefaultPipelineConfig returns the calibrated defaults
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		TextCeiling:         4000,
		AutoThreshold:       0.85,
		SuggestionFloor:     0.3,
		AmbiguityMargin:     0.05,
		SupplierSuggestions: 5,
		ProductSuggestions:  5,
		OCRConfidence:       0.7,
		ReviewConfidence:    0.8,
		TotalsTolerance:     1,
		TaxRate:             0.19,
		MatchConcurrency:    8,
		DuplicateNameFloor:  0.5,
		SaleMarkup:          1.3,
	}
}

// LoadConfig reads a YAML file and applies environment overrides and defaults.
// A missing file is not an error: defaults and environment are used instead.
func LoadConfig(path string) (*Config, error) {
	var config Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config.applyEnv()
	config.ApplyDefaults()
	return &config, nil
}

func (c *Config) applyEnv() {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Port = p
		}
	}
	if host := os.Getenv("HOST"); host != "" {
		c.Host = host
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		c.AI.OpenAI.APIKey = apiKey
	}
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		c.AI.OpenAI.BaseURL = baseURL
	}
	if model := os.Getenv("OPENAI_MODEL"); model != "" {
		c.AI.OpenAI.Model = model
	}
	if apiKey := os.Getenv("GEMINI_API_KEY"); apiKey != "" {
		c.AI.Gemini.APIKey = apiKey
	}
	if model := os.Getenv("GEMINI_MODEL"); model != "" {
		c.AI.Gemini.Model = model
	}
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		c.AI.Ollama.BaseURL = baseURL
	}
	if provider := os.Getenv("AI_PROVIDER"); provider != "" {
		c.AI.DefaultProvider = provider
	}
	if url := databaseURLFromEnv(); url != "" {
		c.Database.URL = url
	}
	if schema := os.Getenv("DB_SCHEMA"); schema != "" {
		c.Database.Schema = schema
	}
	if endpoint := os.Getenv("MINIO_ENDPOINT"); endpoint != "" {
		c.Storage.Endpoint = endpoint
	}
	if accessKey := os.Getenv("MINIO_ACCESS_KEY"); accessKey != "" {
		c.Storage.AccessKey = accessKey
	}
	if secretKey := os.Getenv("MINIO_SECRET_KEY"); secretKey != "" {
		c.Storage.SecretKey = secretKey
	}
	if bucket := os.Getenv("MINIO_BUCKET"); bucket != "" {
		c.Storage.Bucket = bucket
	}
	if os.Getenv("MINIO_USE_SSL") == "true" {
		c.Storage.UseSSL = true
	}
	if catalog := os.Getenv("CATALOG_FILE"); catalog != "" {
		c.CatalogFile = catalog
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		c.Auth.JWTSecret = secret
	}
}

// databaseURLFromEnv prefers DATABASE_URL and falls back to the DB_* variables
func databaseURLFromEnv() string {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url
	}
	host := os.Getenv("DB_HOST")
	user := os.Getenv("DB_USER")
	dbname := os.Getenv("DB_NAME")
	if host == "" || user == "" || dbname == "" {
		return ""
	}
	port := os.Getenv("DB_PORT")
	if port == "" {
		port = "5432"
	}
	return fmt.Sprintf("postgresql://%s:%s@%s:%s/%s?sslmode=disable",
		user, os.Getenv("DB_PASSWORD"), host, port, dbname)
}

// ApplyDefaults fills zero values
func (c *Config) ApplyDefaults() {
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if c.Log.Output == "" {
		c.Log.Output = "stdout"
	}
	if c.AI.DefaultProvider == "" {
		c.AI.DefaultProvider = "openai"
	}
	if c.AI.OpenAI.Model == "" {
		c.AI.OpenAI.Model = "gpt-4o-mini"
	}
	if c.AI.Gemini.Model == "" {
		c.AI.Gemini.Model = "gemini-1.5-flash"
	}
	if c.AI.Ollama.BaseURL == "" {
		c.AI.Ollama.BaseURL = "http://localhost:11434"
	}
	if c.AI.Ollama.Model == "" {
		c.AI.Ollama.Model = "llama3"
	}
	if c.AI.Timeout == 0 {
		c.AI.Timeout = 45 * time.Second
	}
	if c.AI.RequestsPerMinute == 0 {
		c.AI.RequestsPerMinute = 30
	}
	if c.Database.Schema == "" {
		c.Database.Schema = "public"
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = 10
	}
	if c.Database.MinConns == 0 {
		c.Database.MinConns = 2
	}
	if c.Storage.Bucket == "" {
		c.Storage.Bucket = "purchase-invoices"
	}
	if c.Auth.Issuer == "" {
		c.Auth.Issuer = "purchase-invoice-ingest"
	}
	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = 24 * time.Hour
	}

	def := DefaultPipelineConfig()
	p := &c.Pipeline
	if p.TextCeiling <= 0 {
		p.TextCeiling = def.TextCeiling
	}
	if p.AutoThreshold <= 0 {
		p.AutoThreshold = def.AutoThreshold
	}
	if p.SuggestionFloor <= 0 {
		p.SuggestionFloor = def.SuggestionFloor
	}
	if p.AmbiguityMargin <= 0 {
		p.AmbiguityMargin = def.AmbiguityMargin
	}
	if p.SupplierSuggestions <= 0 {
		p.SupplierSuggestions = def.SupplierSuggestions
	}
	if p.ProductSuggestions <= 0 {
		p.ProductSuggestions = def.ProductSuggestions
	}
	if p.OCRConfidence <= 0 {
		p.OCRConfidence = def.OCRConfidence
	}
	if p.ReviewConfidence <= 0 {
		p.ReviewConfidence = def.ReviewConfidence
	}
	if p.TotalsTolerance <= 0 {
		p.TotalsTolerance = def.TotalsTolerance
	}
	if p.TaxRate <= 0 {
		p.TaxRate = def.TaxRate
	}
	if p.MatchConcurrency <= 0 {
		p.MatchConcurrency = def.MatchConcurrency
	}
	if p.DuplicateNameFloor <= 0 {
		p.DuplicateNameFloor = def.DuplicateNameFloor
	}
	if p.SaleMarkup <= 0 {
		p.SaleMarkup = def.SaleMarkup
	}
}
