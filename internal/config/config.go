package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	configPathEnv = "REVIEWS_CONFIG"

	defaultPacingDelay = 13 * time.Second
)

// Config holds every setting the service and the ingestion job need.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Cache    CacheConfig    `yaml:"cache"`
	Scorer   ScorerConfig   `yaml:"scorer"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Sources  SourcesConfig  `yaml:"sources"`
	Admin    AdminConfig    `yaml:"admin"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Port           string   `yaml:"port"`
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

// DatabaseConfig either carries a full DSN or the parts to build a Postgres URL from.
type DatabaseConfig struct {
	Driver          string `yaml:"driver"`
	DSN             string `yaml:"dsn"`
	Host            string `yaml:"host"`
	Port            string `yaml:"port"`
	Name            string `yaml:"name"`
	User            string `yaml:"user"`
	Password        string `yaml:"password"`
	ConnectAttempts int    `yaml:"connectAttempts"`
}

// CacheConfig selects the aggregate cache backend: "memory" or "redis".
type CacheConfig struct {
	Backend   string        `yaml:"backend"`
	RedisAddr string        `yaml:"redisAddr"`
	TTL       time.Duration `yaml:"ttl"`
}

// ScorerConfig points at an OpenAI-compatible chat completions API.
type ScorerConfig struct {
	Endpoint       string        `yaml:"endpoint"`
	Model          string        `yaml:"model"`
	SynthesisModel string        `yaml:"synthesisModel"`
	APIKey         string        `yaml:"apiKey"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxRetries     int           `yaml:"maxRetries"`
}

type PipelineConfig struct {
	PacingDelay time.Duration `yaml:"pacingDelay"`
}

type SourcesConfig struct {
	Tabular TabularConfig `yaml:"tabular"`
	Markup  MarkupConfig  `yaml:"markup"`
}

// TabularConfig maps source-specific CSV headers onto canonical field names.
type TabularConfig struct {
	Path    string            `yaml:"path"`
	Columns map[string]string `yaml:"columns"`
}

// MarkupConfig holds the CSS selectors of the scraped review cards.
type MarkupConfig struct {
	Path      string `yaml:"path"`
	Container string `yaml:"container"`
	Entity    string `yaml:"entity"`
	Region    string `yaml:"region"`
	Body      string `yaml:"body"`
}

type AdminConfig struct {
	TokenSecret string        `yaml:"tokenSecret"`
	Issuer      string        `yaml:"issuer"`
	TokenTTL    time.Duration `yaml:"tokenTtl"`
}

type LoggingConfig struct {
	Mode string `yaml:"mode"`
}

// Load starts from defaults, overlays the YAML file (explicit path or
// REVIEWS_CONFIG) and finally applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() error {
	setString(&c.Server.Port, "PORT")

	setString(&c.Database.Driver, "DB_DRIVER")
	setString(&c.Database.DSN, "DATABASE_DSN")
	setString(&c.Database.Host, "DB_HOST")
	setString(&c.Database.Port, "DB_PORT")
	setString(&c.Database.Name, "DB_NAME")
	setString(&c.Database.User, "DB_USER")
	setString(&c.Database.Password, "DB_PASS")

	setString(&c.Cache.Backend, "CACHE_BACKEND")
	setString(&c.Cache.RedisAddr, "REDIS_ADDR")

	setString(&c.Scorer.Endpoint, "LLM_URL")
	setString(&c.Scorer.Model, "LLM_MODEL")
	setString(&c.Scorer.APIKey, "GEMINI_API_KEY")
	setString(&c.Scorer.APIKey, "LLM_API_KEY")

	setString(&c.Sources.Tabular.Path, "TABULAR_SOURCE_PATH")
	setString(&c.Sources.Markup.Path, "MARKUP_SOURCE_PATH")

	setString(&c.Admin.TokenSecret, "ADMIN_TOKEN_SECRET")
	setString(&c.Logging.Mode, "LOG_MODE")

	if v := os.Getenv("PACING_DELAY"); v != "" {
		d, err := parseDelay(v)
		if err != nil {
			return fmt.Errorf("config: PACING_DELAY: %w", err)
		}
		c.Pipeline.PacingDelay = d
	}
	return nil
}

// parseDelay accepts a Go duration ("13s") or a bare number of seconds ("13").
func parseDelay(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(v)
}

func setString(dst *string, env string) {
	if v := strings.TrimSpace(os.Getenv(env)); v != "" {
		*dst = v
	}
}

// DataSourceName returns the configured DSN, or builds one from the parts.
func (d DatabaseConfig) DataSourceName() string {
	if d.DSN != "" {
		return d.DSN
	}
	if strings.HasPrefix(strings.ToLower(d.Driver), "sqlite") {
		return "data/reviews.sqlite"
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     d.Host + ":" + d.Port,
		Path:     "/" + d.Name,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

// DefaultColumns maps the headers of the Google Forms survey export.
func DefaultColumns() map[string]string {
	return map[string]string{
		"Which university are you rating?": "entity_name",
		"City":                             "region",
		"Please provide your overall experience or any additional comments about your univerisity": "free_text",
	}
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:           "8080",
			AllowedOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Database: DatabaseConfig{
			Driver:          "postgres",
			Host:            "localhost",
			Port:            "5432",
			Name:            "exchange_reviews",
			User:            "reviews",
			ConnectAttempts: 10,
		},
		Cache: CacheConfig{
			Backend:   "memory",
			RedisAddr: "localhost:6379",
			TTL:       time.Hour,
		},
		Scorer: ScorerConfig{
			Endpoint:       "https://generativelanguage.googleapis.com/v1beta/openai/",
			Model:          "gemini-2.5-flash",
			SynthesisModel: "gemini-2.5-pro",
			Timeout:        60 * time.Second,
			MaxRetries:     0,
		},
		Pipeline: PipelineConfig{PacingDelay: defaultPacingDelay},
		Sources: SourcesConfig{
			Tabular: TabularConfig{
				Path:    "data/raw_survey_data.csv",
				Columns: DefaultColumns(),
			},
			Markup: MarkupConfig{
				Path:      "data/scraped_reviews.html",
				Container: ".review-card",
				Entity:    ".uni-name",
				Region:    ".city",
				Body:      ".review-text",
			},
		},
		Admin: AdminConfig{
			Issuer:   "exchange-reviews",
			TokenTTL: 24 * time.Hour,
		},
		Logging: LoggingConfig{Mode: "development"},
	}
}
