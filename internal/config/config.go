// Package config loads strmsync settings: built-in defaults, then an optional
// TOML file, then STRMSYNC_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Duration is a time.Duration that reads "90s" style strings from TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config holds every setting of an ingestion run. It is read-only once
// loaded.
type Config struct {
	// Playlist sources: explicit files/URLs, plus Xtream-style get.php URLs
	// built from ProviderURL(s) and credentials.
	Sources      []string `toml:"sources"`
	M3UURL       string   `toml:"m3u_url"`
	ProviderURL  string   `toml:"provider_url"`
	ProviderURLs []string `toml:"provider_urls"`
	ProviderUser string   `toml:"provider_user"`
	ProviderPass string   `toml:"provider_pass"`

	// Paths
	OutputPath   string `toml:"output_path"`
	PointerExt   string `toml:"pointer_extension"`
	RegistryPath string `toml:"registry_path"`
	DatabasePath string `toml:"database_path"`
	StatusPath   string `toml:"status_path"`

	// Classification
	LanguageFilter bool     `toml:"language_filter"`
	LanguageCode   string   `toml:"language_code"`
	MovieKeywords  []string `toml:"movie_keywords"` // nil = built-in list
	TVKeywords     []string `toml:"tv_keywords"`

	// Pipeline
	BatchSize     int      `toml:"batch_size"`
	Workers       int      `toml:"workers"`
	EntryTimeout  Duration `toml:"entry_timeout"`
	ProgressEvery int      `toml:"progress_every"`

	// Fetch
	FetchTimeout  Duration `toml:"fetch_timeout"`
	FetchAttempts int      `toml:"fetch_attempts"`

	// Logging and metrics
	LogLevel        string `toml:"log_level"`
	LogFormat       string `toml:"log_format"` // auto, text, json
	LogFile         string `toml:"log_file"`
	MetricsAddr     string `toml:"metrics_addr"`
	MetricsTextfile string `toml:"metrics_textfile"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		OutputPath:    "content",
		PointerExt:    ".pointer",
		RegistryPath:  "data/content_registry.json",
		DatabasePath:  "data/strmsync.db",
		StatusPath:    "data/status/processing_status.json",
		LanguageCode:  "EN",
		BatchSize:     100,
		Workers:       10,
		EntryTimeout:  Duration{60 * time.Second},
		ProgressEvery: 50,
		FetchTimeout:  Duration{2 * time.Minute},
		FetchAttempts: 3,
		LogLevel:      "info",
		LogFormat:     "auto",
	}
}

// Load builds the config. path names a TOML file; when empty STRMSYNC_CONFIG
// is consulted. A named file that does not exist is ignored. Call
// LoadEnvFile(".env") before Load to pick up a .env file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv("STRMSYNC_CONFIG")
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) loadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	if err := toml.NewDecoder(f).DisallowUnknownFields().Decode(c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Sources = getEnvList("STRMSYNC_SOURCES", c.Sources)
	c.M3UURL = getEnv("STRMSYNC_M3U_URL", c.M3UURL)
	c.ProviderURL = getEnv("STRMSYNC_PROVIDER_URL", c.ProviderURL)
	c.ProviderURLs = getEnvList("STRMSYNC_PROVIDER_URLS", c.ProviderURLs)
	c.ProviderUser = getEnv("STRMSYNC_PROVIDER_USER", c.ProviderUser)
	c.ProviderPass = getEnv("STRMSYNC_PROVIDER_PASS", c.ProviderPass)

	c.OutputPath = getEnv("STRMSYNC_OUTPUT_PATH", c.OutputPath)
	c.PointerExt = getEnv("STRMSYNC_POINTER_EXTENSION", c.PointerExt)
	c.RegistryPath = getEnv("STRMSYNC_REGISTRY_PATH", c.RegistryPath)
	c.DatabasePath = getEnv("STRMSYNC_DATABASE_PATH", c.DatabasePath)
	c.StatusPath = getEnv("STRMSYNC_STATUS_PATH", c.StatusPath)

	c.LanguageFilter = getEnvBool("STRMSYNC_LANGUAGE_FILTER", c.LanguageFilter)
	c.LanguageCode = getEnv("STRMSYNC_LANGUAGE_CODE", c.LanguageCode)
	c.MovieKeywords = getEnvList("STRMSYNC_MOVIE_KEYWORDS", c.MovieKeywords)
	c.TVKeywords = getEnvList("STRMSYNC_TV_KEYWORDS", c.TVKeywords)

	c.BatchSize = getEnvInt("STRMSYNC_BATCH_SIZE", c.BatchSize)
	c.Workers = getEnvInt("STRMSYNC_WORKERS", c.Workers)
	c.EntryTimeout.Duration = getEnvDuration("STRMSYNC_ENTRY_TIMEOUT", c.EntryTimeout.Duration)
	c.ProgressEvery = getEnvInt("STRMSYNC_PROGRESS_EVERY", c.ProgressEvery)
	c.FetchTimeout.Duration = getEnvDuration("STRMSYNC_FETCH_TIMEOUT", c.FetchTimeout.Duration)
	c.FetchAttempts = getEnvInt("STRMSYNC_FETCH_ATTEMPTS", c.FetchAttempts)

	c.LogLevel = getEnv("STRMSYNC_LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("STRMSYNC_LOG_FORMAT", c.LogFormat)
	c.LogFile = getEnv("STRMSYNC_LOG_FILE", c.LogFile)
	c.MetricsAddr = getEnv("STRMSYNC_METRICS_ADDR", c.MetricsAddr)
	c.MetricsTextfile = getEnv("STRMSYNC_METRICS_TEXTFILE", c.MetricsTextfile)
}

func (c *Config) normalize() {
	c.LanguageCode = strings.ToUpper(strings.TrimSpace(c.LanguageCode))
	c.OutputPath = strings.TrimSpace(c.OutputPath)
	if ext := strings.TrimSpace(c.PointerExt); ext != "" && !strings.HasPrefix(ext, ".") {
		c.PointerExt = "." + ext
	}
	if c.ProgressEvery <= 0 {
		c.ProgressEvery = 50
	}
	if c.FetchAttempts <= 0 {
		c.FetchAttempts = 1
	}
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.OutputPath == "" {
		errs = append(errs, errors.New("output_path must be set"))
	}
	if c.RegistryPath == "" {
		errs = append(errs, errors.New("registry_path must be set"))
	}
	if c.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("batch_size must be positive, got %d", c.BatchSize))
	}
	if c.Workers <= 0 {
		errs = append(errs, fmt.Errorf("workers must be positive, got %d", c.Workers))
	}
	if c.EntryTimeout.Duration <= 0 {
		errs = append(errs, fmt.Errorf("entry_timeout must be positive, got %s", c.EntryTimeout.Duration))
	}
	if c.LanguageFilter && c.LanguageCode == "" {
		errs = append(errs, errors.New("language_code must be set when language_filter is on"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// PlaylistSources returns every playlist to ingest: explicit sources first,
// then M3UURL, then one get.php URL per provider base URL when credentials
// are set.
func (c *Config) PlaylistSources() []string {
	out := append([]string{}, c.Sources...)
	if c.M3UURL != "" {
		return append(out, c.M3UURL)
	}
	return append(out, c.M3UURLsOrBuild()...)
}

// M3UURLsOrBuild builds base + /get.php?username=..&password=..&type=m3u_plus
// for each configured provider base URL.
func (c *Config) M3UURLsOrBuild() []string {
	user, pass := c.ProviderUser, c.ProviderPass
	if user == "" || pass == "" {
		return nil
	}
	bases := c.ProviderURLs
	if len(bases) == 0 && c.ProviderURL != "" {
		bases = []string{c.ProviderURL}
	}
	out := make([]string, 0, len(bases))
	for _, base := range bases {
		base = strings.TrimSuffix(strings.TrimSpace(base), "/")
		if base == "" {
			continue
		}
		out = append(out, base+"/get.php?username="+url.QueryEscape(user)+"&password="+url.QueryEscape(pass)+"&type=m3u_plus&output=ts")
	}
	return out
}
