package enrich

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// Config carries every tunable of the enrichment engine. Defaults come from
// Default, the environment overlays them, an optional config file overlays
// the environment.
type Config struct {
	OpenAIAPIKey  string `yaml:"openaiAPIKey" json:"openaiAPIKey"`
	OpenAIOrgID   string `yaml:"openaiOrgID" json:"openaiOrgID"`
	OpenAIModel   string `yaml:"openaiModel" json:"openaiModel"`
	OpenAIBaseURL string `yaml:"openaiBaseURL" json:"openaiBaseURL"`

	SerperAPIKey  string `yaml:"serperAPIKey" json:"serperAPIKey"`
	SerperBaseURL string `yaml:"serperBaseURL" json:"serperBaseURL"`

	SerpMaxRPS        int `yaml:"serpMaxRPS" json:"serpMaxRPS"`
	SerpConcurrency   int `yaml:"serpConcurrency" json:"serpConcurrency"`
	OpenAIConcurrency int `yaml:"openaiConcurrency" json:"openaiConcurrency"`

	HTTPConnectTimeout time.Duration `yaml:"httpConnectTimeout" json:"httpConnectTimeout"`
	HTTPReadTimeout    time.Duration `yaml:"httpReadTimeout" json:"httpReadTimeout"`

	MaxRetries  int     `yaml:"maxRetries" json:"maxRetries"`
	BackoffBase float64 `yaml:"backoffBase" json:"backoffBase"`

	MaxCandidates  int `yaml:"maxCandidates" json:"maxCandidates"`
	ResultsPerCall int `yaml:"resultsPerCall" json:"resultsPerCall"`

	EnableDNSCheck bool          `yaml:"enableDNSCheck" json:"enableDNSCheck"`
	DNSTimeout     time.Duration `yaml:"dnsTimeout" json:"dnsTimeout"`

	CrawlParallel int     `yaml:"crawlParallel" json:"crawlParallel"`
	CrawlHostRPS  float64 `yaml:"crawlHostRPS" json:"crawlHostRPS"`
}

// Default returns the production defaults. API keys have no default.
func Default() Config {
	return Config{
		OpenAIModel:        "gpt-4o-mini",
		SerpMaxRPS:         50,
		SerpConcurrency:    100,
		OpenAIConcurrency:  24,
		HTTPConnectTimeout: 8 * time.Second,
		HTTPReadTimeout:    45 * time.Second,
		MaxRetries:         4,
		BackoffBase:        1.6,
		MaxCandidates:      8,
		ResultsPerCall:     12,
		EnableDNSCheck:     false,
		DNSTimeout:         3 * time.Second,
		CrawlParallel:      8,
		CrawlHostRPS:       2,
	}
}

// FromEnv overlays environment variables on the defaults.
func FromEnv() Config {
	c := Default()
	strEnv(&c.OpenAIAPIKey, "OPENAI_API_KEY")
	strEnv(&c.OpenAIOrgID, "OPENAI_ORG_ID")
	strEnv(&c.OpenAIModel, "OPENAI_MODEL")
	strEnv(&c.OpenAIBaseURL, "OPENAI_BASE_URL")
	strEnv(&c.SerperAPIKey, "SERPER_API_KEY")
	strEnv(&c.SerperBaseURL, "SERPER_BASE_URL")
	intEnv(&c.SerpMaxRPS, "SERP_MAX_RPS")
	intEnv(&c.SerpConcurrency, "SERP_CONCURRENCY")
	intEnv(&c.OpenAIConcurrency, "OPENAI_CONCURRENCY")
	durEnv(&c.HTTPConnectTimeout, "HTTP_CONNECT_TIMEOUT")
	durEnv(&c.HTTPReadTimeout, "HTTP_READ_TIMEOUT")
	intEnv(&c.MaxRetries, "MAX_RETRIES")
	floatEnv(&c.BackoffBase, "BACKOFF_BASE")
	intEnv(&c.MaxCandidates, "MAX_CANDIDATES_PER_COMPANY")
	intEnv(&c.ResultsPerCall, "SEARCH_RESULTS_PER_CALL")
	boolEnv(&c.EnableDNSCheck, "ENABLE_DNS_CHECK")
	durEnv(&c.DNSTimeout, "DNS_TIMEOUT")
	return c
}

// LoadFile overlays a YAML or JSON config file on c. Unset file fields keep
// their current value because decoding happens into a copy of c.
func (c *Config) LoadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	merged := *c
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &merged); err != nil {
			return fmt.Errorf("parse yaml: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(b, &merged); err != nil {
			return fmt.Errorf("parse json: %w", err)
		}
	default:
		if yerr := yaml.Unmarshal(b, &merged); yerr != nil {
			if jerr := json.Unmarshal(b, &merged); jerr != nil {
				return fmt.Errorf("parse config: %v (yaml) / %v (json)", yerr, jerr)
			}
		}
	}
	*c = merged
	return nil
}

// Validate reports the first missing required setting.
func (c *Config) Validate() error {
	if c.OpenAIAPIKey == "" {
		return errors.New("config: OPENAI_API_KEY is required")
	}
	if c.SerperAPIKey == "" {
		return errors.New("config: SERPER_API_KEY is required")
	}
	if c.SerpMaxRPS < 1 {
		return errors.New("config: SERP_MAX_RPS must be at least 1")
	}
	if c.SerpConcurrency < 1 || c.OpenAIConcurrency < 1 {
		return errors.New("config: concurrency limits must be at least 1")
	}
	if c.MaxCandidates < 1 {
		return errors.New("config: MAX_CANDIDATES_PER_COMPANY must be at least 1")
	}
	return nil
}

func strEnv(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func intEnv(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func floatEnv(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func boolEnv(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func durEnv(dst *time.Duration, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil {
		*dst = d
		return
	}
	// Bare numbers are seconds.
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		*dst = time.Duration(f * float64(time.Second))
	}
}
