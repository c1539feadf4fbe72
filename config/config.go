package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/feichai0017/review-automation/internal/models"
	"github.com/feichai0017/review-automation/pkg/notify"
	"github.com/feichai0017/review-automation/pkg/report"
)

// Config is the full runtime configuration of the reviewer.
type Config struct {
	PDFDir     string `mapstructure:"pdf_dir"`
	ReportDir  string `mapstructure:"report_dir"`
	DatasetDir string `mapstructure:"dataset_dir"`
	LogDir     string `mapstructure:"log_dir"`
	LogLevel   string `mapstructure:"log_level"`

	Review       ReviewConfig     `mapstructure:"review"`
	Sections     []models.Section `mapstructure:"sections"`
	SectionsFile string           `mapstructure:"sections_file"`
	Email        notify.Config    `mapstructure:"email"`
	Claims       ClaimsConfig     `mapstructure:"claims"`
	Archive      ArchiveConfig    `mapstructure:"archive"`
	Status       StatusConfig     `mapstructure:"status"`
}

// ReviewConfig 远程审核应用与浏览器配置
type ReviewConfig struct {
	Endpoint    string        `mapstructure:"endpoint"`
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"`
	Headless    bool          `mapstructure:"headless"`
	ChromePath  string        `mapstructure:"chrome_path"`
	Workers     int           `mapstructure:"workers"`
	TaskTimeout time.Duration `mapstructure:"task_timeout"`
	MaxRetries  int           `mapstructure:"max_retries"`
	Preflight   bool          `mapstructure:"preflight"`
	MaxPages    int           `mapstructure:"max_pages"`
}

type ClaimsConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// ArchiveConfig selects where finished runs are copied. An empty Type
// disables archiving.
type ArchiveConfig struct {
	Type      string        `mapstructure:"type"`
	Prefix    string        `mapstructure:"prefix"`
	Retention time.Duration `mapstructure:"retention"`
	Minio     MinioConfig   `mapstructure:"minio"`
	S3        S3Config      `mapstructure:"s3"`
}

type StatusConfig struct {
	Addr string `mapstructure:"addr"`
}

// ReportPath is the shared report file.
func (c *Config) ReportPath() string {
	return filepath.Join(c.ReportDir, report.FileName)
}

// flagKeys maps command line flags onto configuration keys.
var flagKeys = map[string]string{
	"pdf-dir":     "pdf_dir",
	"report-dir":  "report_dir",
	"dataset-dir": "dataset_dir",
	"log-dir":     "log_dir",
	"log-level":   "log_level",
	"endpoint":    "review.endpoint",
	"workers":     "review.workers",
	"timeout":     "review.task_timeout",
	"max-retries": "review.max_retries",
	"headless":    "review.headless",
	"preflight":   "review.preflight",
	"status-addr": "status.addr",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("pdf_dir", "pdfs")
	v.SetDefault("report_dir", ".")
	v.SetDefault("dataset_dir", "datasets")
	v.SetDefault("log_dir", "logs")
	v.SetDefault("log_level", "info")

	v.SetDefault("review.endpoint", "http://127.0.0.1:8000/login/")
	v.SetDefault("review.username", "")
	v.SetDefault("review.password", "")
	v.SetDefault("review.headless", false)
	v.SetDefault("review.chrome_path", "")
	v.SetDefault("review.workers", 4)
	v.SetDefault("review.task_timeout", 1200*time.Second)
	v.SetDefault("review.max_retries", 1)
	v.SetDefault("review.preflight", false)
	v.SetDefault("review.max_pages", 0)

	v.SetDefault("sections_file", "")

	v.SetDefault("claims.enabled", false)
	v.SetDefault("claims.addr", "")
	v.SetDefault("claims.password", "")
	v.SetDefault("claims.db", 0)
	v.SetDefault("claims.ttl", 45*time.Minute)

	v.SetDefault("archive.type", "")
	v.SetDefault("archive.prefix", "review-runs")
	v.SetDefault("archive.retention", time.Duration(0))

	v.SetDefault("status.addr", "")
}

type envBinder struct {
	v *viper.Viper
}

// bind maps key onto env. BindEnv only fails for an empty key.
func (b envBinder) bind(key, env string) {
	_ = b.v.BindEnv(key, env)
}

func bindEnv(v *viper.Viper) {
	b := envBinder{v: v}
	b.bind("pdf_dir", "PDF_DIR")
	b.bind("report_dir", "REPORT_DIR")
	b.bind("dataset_dir", "DATASET_DIR")
	b.bind("log_dir", "LOG_DIR")
	b.bind("log_level", "LOG_LEVEL")
	b.bind("review.endpoint", "REVIEW_ENDPOINT")
	b.bind("review.username", "REVIEW_USERNAME")
	b.bind("review.password", "REVIEW_PASSWORD")
	b.bind("review.headless", "REVIEW_HEADLESS")
	b.bind("review.chrome_path", "CHROME_PATH")
	b.bind("review.workers", "REVIEW_WORKERS")
	b.bind("review.task_timeout", "REVIEW_TASK_TIMEOUT")
	b.bind("claims.enabled", "CLAIMS_ENABLED")
	b.bind("claims.addr", "REDIS_ADDR")
	b.bind("claims.password", "REDIS_PASSWORD")
	b.bind("archive.type", "ARCHIVE_TYPE")
	b.bind("status.addr", "STATUS_ADDR")
	bindMinioEnv(b)
	bindS3Env(b)
}

// loadDotEnv loads .env from the working directory if present.
func loadDotEnv() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Warning: failed to load .env file: %v", err)
	}
}

// Load builds the configuration. Values are taken, highest first, from
// flags, environment, the config file at path and defaults. An empty path
// looks for reviewer.yaml in the working directory.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	loadDotEnv()

	v := viper.New()
	setDefaults(v)
	bindEnv(v)

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName("reviewer")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if cfg.SectionsFile != "" {
		sections, err := LoadSections(cfg.SectionsFile)
		if err != nil {
			return nil, err
		}
		cfg.Sections = sections
	}
	if len(cfg.Sections) == 0 {
		cfg.Sections = models.DefaultSections()
	}

	if abs, err := filepath.Abs(cfg.PDFDir); err == nil {
		cfg.PDFDir = abs
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Review.Endpoint) == "" {
		errs = append(errs, errors.New("review.endpoint is required"))
	}
	if c.Review.Workers < 1 {
		errs = append(errs, fmt.Errorf("review.workers must be positive, got %d", c.Review.Workers))
	}
	if c.Review.TaskTimeout <= 0 {
		errs = append(errs, fmt.Errorf("review.task_timeout must be positive, got %s", c.Review.TaskTimeout))
	}
	if c.Review.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("review.max_retries must not be negative, got %d", c.Review.MaxRetries))
	}

	seen := make(map[string]bool, len(c.Sections))
	for _, s := range c.Sections {
		if s.Name == "" || s.Key == "" {
			errs = append(errs, fmt.Errorf("section %q has an empty name or key", s.Name))
			continue
		}
		if seen[s.Name] {
			errs = append(errs, fmt.Errorf("section %q is listed twice", s.Name))
		}
		seen[s.Name] = true
	}

	switch c.Archive.Type {
	case "", "minio", "s3":
	default:
		errs = append(errs, fmt.Errorf("unsupported archive type: %s", c.Archive.Type))
	}
	if c.Claims.Enabled && c.Claims.Addr == "" {
		errs = append(errs, errors.New("claims.addr is required when claims are enabled"))
	}
	return errors.Join(errs...)
}

// LoadSections reads an ordered "Display Name: key" mapping. Document order
// is the navigation order.
func LoadSections(path string) ([]models.Section, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sections file: %w", err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse sections file: %w", err)
	}
	if len(doc.Content) == 0 {
		return nil, fmt.Errorf("sections file %s is empty", path)
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("sections file %s must be a mapping of display name to key", path)
	}

	sections := make([]models.Section, 0, len(root.Content)/2)
	for i := 0; i+1 < len(root.Content); i += 2 {
		name, key := root.Content[i], root.Content[i+1]
		if key.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("section %q: key must be a string (line %d)", name.Value, key.Line)
		}
		sections = append(sections, models.Section{Name: name.Value, Key: key.Value})
	}
	return sections, nil
}
