package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
)

type DatabaseConfig struct {
	URI            string `toml:"uri" envconfig:"NEO4J_URI"`
	User           string `toml:"user" envconfig:"NEO4J_USER"`
	Password       string `toml:"password" envconfig:"NEO4J_PASSWORD"`
	Database       string `toml:"database" envconfig:"NEO4J_DATABASE"`
	Dialect        string `toml:"dialect" envconfig:"NEO4J_DIALECT"`
	MaxPoolSize    int    `toml:"max_pool_size" envconfig:"NEO4J_MAX_POOL_SIZE"`
	TimeoutSeconds int    `toml:"timeout_seconds" envconfig:"NEO4J_TIMEOUT_SECONDS"`
}

type PathsConfig struct {
	DatasetDir       string `toml:"dataset_dir" envconfig:"DATASET_DIR"`
	KeywordsCSV      string `toml:"keywords_csv" envconfig:"KEYWORDS_CSV"`
	PublicationsJSON string `toml:"publications_json" envconfig:"PUBLICATIONS_JSON"`
	CitationsJSON    string `toml:"citations_json" envconfig:"CITATIONS_JSON"`
	DOIsCSV          string `toml:"dois_csv" envconfig:"DOIS_CSV"`
}

type IngestConfig struct {
	BatchSize         int `toml:"batch_size" envconfig:"BATCH_SIZE"`
	KeywordBatchSize  int `toml:"keyword_batch_size" envconfig:"KEYWORD_BATCH_SIZE"`
	CitationChunkSize int `toml:"citation_chunk_size" envconfig:"CITATION_CHUNK_SIZE"`
	// Workers is the citation pool size; 0 means half of GOMAXPROCS.
	Workers int `toml:"workers" envconfig:"WORKERS"`
}

type ClassifierConfig struct {
	Provider    string   `toml:"provider" envconfig:"CLASSIFIER_PROVIDER"`
	Model       string   `toml:"model" envconfig:"CLASSIFIER_MODEL"`
	APIKey      string   `toml:"api_key" envconfig:"CLASSIFIER_API_KEY"`
	BaseURL     string   `toml:"base_url" envconfig:"CLASSIFIER_BASE_URL"`
	Labels      []string `toml:"labels" envconfig:"CLASSIFIER_LABELS"`
	Concurrency int      `toml:"concurrency" envconfig:"CLASSIFIER_CONCURRENCY"`
}

// Enabled reports whether the research-area step should run.
func (c ClassifierConfig) Enabled() bool {
	return strings.TrimSpace(c.Provider) != ""
}

type CatalogConfig struct {
	BaseURL           string  `toml:"base_url" envconfig:"CATALOG_BASE_URL"`
	OutputDir         string  `toml:"output_dir" envconfig:"CATALOG_OUTPUT_DIR"`
	Concurrency       int     `toml:"concurrency" envconfig:"CATALOG_CONCURRENCY"`
	TimeoutSeconds    int     `toml:"timeout_seconds" envconfig:"CATALOG_TIMEOUT_SECONDS"`
	RequestsPerSecond float64 `toml:"requests_per_second" envconfig:"CATALOG_REQUESTS_PER_SECOND"`
}

type ReportConfig struct {
	// Sink is "file", "s3" or "none".
	Sink       string `toml:"sink" envconfig:"REPORT_SINK"`
	Dir        string `toml:"dir" envconfig:"REPORT_DIR"`
	S3Bucket   string `toml:"s3_bucket" envconfig:"REPORT_S3_BUCKET"`
	S3Prefix   string `toml:"s3_prefix" envconfig:"REPORT_S3_PREFIX"`
	S3Region   string `toml:"s3_region" envconfig:"REPORT_S3_REGION"`
	S3Endpoint string `toml:"s3_endpoint" envconfig:"REPORT_S3_ENDPOINT"`
	S3Key      string `toml:"s3_key" envconfig:"REPORT_S3_KEY"`
	S3Secret   string `toml:"s3_secret" envconfig:"REPORT_S3_SECRET"`
}

type ServerConfig struct {
	Addr    string `toml:"addr" envconfig:"SERVER_ADDR"`
	GinMode string `toml:"gin_mode" envconfig:"GIN_MODE"`
}

type LogConfig struct {
	Mode string `toml:"mode" envconfig:"LOG_MODE"`
	File string `toml:"file" envconfig:"LOG_FILE"`
}

type Config struct {
	Database   DatabaseConfig   `toml:"database"`
	Paths      PathsConfig      `toml:"paths"`
	Ingest     IngestConfig     `toml:"ingest"`
	Classifier ClassifierConfig `toml:"classifier"`
	Catalog    CatalogConfig    `toml:"catalog"`
	Report     ReportConfig     `toml:"report"`
	Server     ServerConfig     `toml:"server"`
	Log        LogConfig        `toml:"log"`
}

// EnvPrefix is applied to every variable except the NEO4J_* ones.
const EnvPrefix = "SCIGRAPH"

func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			URI:            "bolt://localhost:7687",
			User:           "neo4j",
			Dialect:        "neo4j",
			MaxPoolSize:    50,
			TimeoutSeconds: 10,
		},
		Ingest: IngestConfig{
			BatchSize:         100,
			KeywordBatchSize:  1000,
			CitationChunkSize: 50,
		},
		Catalog: CatalogConfig{
			BaseURL:           "https://cmr.earthdata.nasa.gov/search/collections.umm_json",
			TimeoutSeconds:    30,
			RequestsPerSecond: 10,
		},
		Report: ReportConfig{Sink: "file", Dir: "reports"},
		Server: ServerConfig{Addr: ":8080", GinMode: "release"},
		Log:    LogConfig{Mode: "prod"},
	}
}

// Load reads the TOML file at path over the defaults, then applies .env and
// environment overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse TOML: %w", err)
		}
	}

	// A missing .env is normal outside development.
	_ = godotenv.Load()

	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides cfg from the process environment. Unset variables
// leave the current value alone.
func ApplyEnv(cfg *Config) error {
	if err := envconfig.Process("", &cfg.Database); err != nil {
		return fmt.Errorf("database env: %w", err)
	}
	sections := []struct {
		name string
		spec any
	}{
		{"paths", &cfg.Paths},
		{"ingest", &cfg.Ingest},
		{"classifier", &cfg.Classifier},
		{"catalog", &cfg.Catalog},
		{"report", &cfg.Report},
		{"server", &cfg.Server},
		{"log", &cfg.Log},
	}
	for _, s := range sections {
		if err := envconfig.Process(EnvPrefix, s.spec); err != nil {
			return fmt.Errorf("%s env: %w", s.name, err)
		}
	}
	return nil
}

func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Database.URI) == "" {
		errs = append(errs, errors.New("database.uri is required"))
	}
	switch strings.ToLower(c.Database.Dialect) {
	case "", "neo4j", "memgraph":
	default:
		errs = append(errs, fmt.Errorf("database.dialect %q is not neo4j or memgraph", c.Database.Dialect))
	}
	if c.Ingest.BatchSize <= 0 {
		errs = append(errs, errors.New("ingest.batch_size must be positive"))
	}
	if c.Ingest.KeywordBatchSize <= 0 {
		errs = append(errs, errors.New("ingest.keyword_batch_size must be positive"))
	}
	if c.Ingest.CitationChunkSize <= 0 {
		errs = append(errs, errors.New("ingest.citation_chunk_size must be positive"))
	}
	if c.Ingest.Workers < 0 {
		errs = append(errs, errors.New("ingest.workers must not be negative"))
	}
	switch strings.ToLower(c.Classifier.Provider) {
	case "", "openai", "claude", "gemini", "ollama":
	default:
		errs = append(errs, fmt.Errorf("classifier.provider %q is not supported", c.Classifier.Provider))
	}
	switch c.Report.Sink {
	case "", "none", "file":
	case "s3":
		if c.Report.S3Bucket == "" {
			errs = append(errs, errors.New("report.s3_bucket is required for the s3 sink"))
		}
	default:
		errs = append(errs, fmt.Errorf("report.sink %q is not file, s3 or none", c.Report.Sink))
	}
	switch strings.ToLower(c.Log.Mode) {
	case "", "dev", "prod", "production", "development":
	default:
		errs = append(errs, fmt.Errorf("log.mode %q is not dev or prod", c.Log.Mode))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
