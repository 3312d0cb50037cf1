// Package config manages application configuration from a TOML file, environment variables and flags.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/pflag"
)

const envPrefix = "BLOGMD_"

// DefaultFile is the config file looked up in the working directory when --config is not set.
const DefaultFile = "blogmd.toml"

// Config holds runtime configuration for the site builder and preview server.
type Config struct {
	Site         Site   `toml:"site"`
	ContentDir   string `toml:"content_dir"`
	PostsDir     string `toml:"posts_dir"`
	MetadataDir  string `toml:"metadata_dir"`
	StaticOutput string `toml:"out"`
	AssetsDir    string `toml:"assets"`
	Port         int    `toml:"port"`
	AutoOpen     bool   `toml:"auto_open"`
	Verbose      bool   `toml:"verbose"`
}

// Site carries the author-facing text used in page metadata and feeds.
type Site struct {
	Title       string `toml:"title"`
	Description string `toml:"description"`
	Keywords    string `toml:"keywords"`
	Author      string `toml:"author"`
	About       string `toml:"about"`
	BaseURL     string `toml:"base_url"`
}

// Default returns ready-to-use defaults prior to file/env/flag overrides.
func Default() Config {
	return Config{
		ContentDir:   ".",
		PostsDir:     "blogs",
		MetadataDir:  filepath.Join("blogs", "metadata"),
		StaticOutput: "dist",
		Port:         0, // 0 = auto-select random available port
		AutoOpen:     true,
		Site: Site{
			Title:       "Blog",
			Description: "Informal notes about software development.",
			Keywords:    "blog software",
		},
	}
}

// LoadFile merges the TOML file at path into cfg. A missing file is only an
// error when required is set.
func LoadFile(cfg *Config, path string, required bool) error {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the operator
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return nil
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// LoadDotEnv loads KEY=value pairs from .env files into the process environment.
// Variables already set take precedence and missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// RegisterFlags attaches configuration flags to the provided FlagSet.
// Values are copied into a Config with ApplyFlags, so only flags the user
// actually set override file and environment values.
func RegisterFlags(fs *pflag.FlagSet) {
	def := Default()
	fs.StringP("content", "c", def.ContentDir, "directory containing the blogs/ content tree")
	fs.String("posts-dir", def.PostsDir, "markdown directory, relative to --content")
	fs.String("metadata-dir", def.MetadataDir, "metadata JSON directory, relative to --content")
	fs.String("out", def.StaticOutput, "output directory for the generated site")
	fs.String("assets", "", "directory with asset overrides (default: embedded assets)")
	fs.IntP("port", "p", def.Port, "port to bind the preview server (0 = auto-assign)")
	fs.Bool("auto-open", def.AutoOpen, "open the browser automatically after start")
	fs.BoolP("verbose", "v", def.Verbose, "enable verbose logging (HTTP requests)")
	fs.String("title", def.Site.Title, "site title")
	fs.String("base-url", "", "absolute base URL used for canonical links, sitemap and feed")
}

// ApplyFlags copies every flag the user set on fs into cfg.
func ApplyFlags(fs *pflag.FlagSet, cfg *Config) error {
	var errs []error
	str := func(name string, dst *string) {
		if fs.Lookup(name) == nil || !fs.Changed(name) {
			return
		}
		v, err := fs.GetString(name)
		errs = append(errs, err)
		if err == nil {
			*dst = v
		}
	}
	boolean := func(name string, dst *bool) {
		if fs.Lookup(name) == nil || !fs.Changed(name) {
			return
		}
		v, err := fs.GetBool(name)
		errs = append(errs, err)
		if err == nil {
			*dst = v
		}
	}

	str("content", &cfg.ContentDir)
	str("posts-dir", &cfg.PostsDir)
	str("metadata-dir", &cfg.MetadataDir)
	str("out", &cfg.StaticOutput)
	str("assets", &cfg.AssetsDir)
	str("title", &cfg.Site.Title)
	str("base-url", &cfg.Site.BaseURL)
	boolean("auto-open", &cfg.AutoOpen)
	boolean("verbose", &cfg.Verbose)
	if fs.Lookup("port") != nil && fs.Changed("port") {
		v, err := fs.GetInt("port")
		errs = append(errs, err)
		if err == nil {
			cfg.Port = v
		}
	}
	return errors.Join(errs...)
}

// ApplyEnvOverrides reads supported environment variables and overrides cfg in place.
func ApplyEnvOverrides(cfg *Config) {
	applyStringEnv("CONTENT", func(v string) { cfg.ContentDir = v })
	applyStringEnv("POSTS_DIR", func(v string) { cfg.PostsDir = v })
	applyStringEnv("METADATA_DIR", func(v string) { cfg.MetadataDir = v })
	applyStringEnv("OUT", func(v string) { cfg.StaticOutput = v })
	applyStringEnv("ASSETS", func(v string) { cfg.AssetsDir = v })
	applyIntEnv("PORT", func(v int) { cfg.Port = v })
	applyBoolEnv("AUTO_OPEN", func(v bool) { cfg.AutoOpen = v })
	applyBoolEnv("VERBOSE", func(v bool) { cfg.Verbose = v })
	applyStringEnv("TITLE", func(v string) { cfg.Site.Title = v })
	applyStringEnv("BASE_URL", func(v string) { cfg.Site.BaseURL = v })
}

func applyStringEnv(key string, apply func(string)) {
	if raw, ok := lookupNonEmpty(key); ok {
		apply(raw)
	}
}

func applyIntEnv(key string, apply func(int)) {
	if raw, ok := lookupNonEmpty(key); ok {
		if value, err := strconv.Atoi(raw); err == nil {
			apply(value)
		}
	}
}

func applyBoolEnv(key string, apply func(bool)) {
	if raw, ok := lookupNonEmpty(key); ok {
		if value, err := strconv.ParseBool(raw); err == nil {
			apply(value)
		}
	}
}

func lookupNonEmpty(key string) (string, bool) {
	raw, ok := os.LookupEnv(envPrefix + key)
	if !ok {
		return "", false
	}
	value := strings.TrimSpace(raw)
	if value == "" {
		return "", false
	}
	return value, true
}

// Finalize validates and normalizes paths. Posts and metadata directories are
// resolved against the content directory unless absolute.
func Finalize(cfg *Config) error {
	root, err := filepath.Abs(cfg.ContentDir)
	if err != nil {
		return fmt.Errorf("resolve content directory: %w", err)
	}
	cfg.ContentDir = root

	if cfg.PostsDir == "" {
		cfg.PostsDir = "blogs"
	}
	if !filepath.IsAbs(cfg.PostsDir) {
		cfg.PostsDir = filepath.Join(root, cfg.PostsDir)
	}
	if cfg.MetadataDir == "" {
		cfg.MetadataDir = filepath.Join("blogs", "metadata")
	}
	if !filepath.IsAbs(cfg.MetadataDir) {
		cfg.MetadataDir = filepath.Join(root, cfg.MetadataDir)
	}

	// Allow port 0 for dynamic allocation, otherwise validate range
	if cfg.Port < 0 || cfg.Port > 65535 {
		return fmt.Errorf("invalid port: %d", cfg.Port)
	}

	if cfg.StaticOutput == "" {
		cfg.StaticOutput = "dist"
	}

	if cfg.AssetsDir != "" {
		assets, err := filepath.Abs(cfg.AssetsDir)
		if err != nil {
			return fmt.Errorf("resolve assets directory: %w", err)
		}
		cfg.AssetsDir = assets
	}

	cfg.Site.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.Site.BaseURL), "/")
	if cfg.Site.BaseURL != "" {
		u, err := url.Parse(cfg.Site.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid base url: %q", cfg.Site.BaseURL)
		}
	}
	if strings.TrimSpace(cfg.Site.Title) == "" {
		cfg.Site.Title = Default().Site.Title
	}

	return nil
}
