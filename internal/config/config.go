// Package config handles application configuration and environment loading.
//
// Precedence (highest to lowest): flags > environment > config file > defaults.
package config

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/rowmeta/rowmeta/internal/ddl"
	"github.com/rowmeta/rowmeta/internal/domain"
)

// envPrefix namespaces environment variables: ROWMETA_LISTEN_ADDR, etc.
const envPrefix = "ROWMETA_"

// Config holds the configuration for the rewrite service and CLI.
type Config struct {
	ListenAddr     string `koanf:"listen_addr"`       // HTTP listen address (default ":8080")
	DatabaseDSN    string `koanf:"database_dsn"`      // PostgreSQL DSN for provisioning (empty: offline rewrites only)
	DBMaxOpenConns int    `koanf:"db_max_open_conns"` // connection pool size (default 8)
	LogLevel       string `koanf:"log_level"`         // log level: debug, info, warn, error (default "info")
	Env            string `koanf:"env"`               // environment: "development" (default) or "production"

	// Meta-column naming
	IdentityColumn string `koanf:"identity_column"` // default "__identity__"
	RevisionColumn string `koanf:"revision_column"` // default "__revision__"
	DefaultSchema  string `koanf:"default_schema"`  // schema for unqualified tables (default "public")

	// Rate limiting
	RateLimitRPS   float64 `koanf:"rate_limit_rps"`   // sustained requests per second (default 100)
	RateLimitBurst int     `koanf:"rate_limit_burst"` // burst capacity (default 200)

	// CORS, comma-separated (default "*")
	CORSAllowedOrigins string `koanf:"cors_allowed_origins"`

	// Warnings collects non-fatal warnings generated during config loading.
	// These are logged by the caller after the logger is initialised.
	Warnings []string `koanf:"-"`
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// IsProduction returns true when the server is running in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// Names returns the meta-column naming configuration.
func (c *Config) Names() domain.Names {
	return domain.Names{
		IdentityColumn: c.IdentityColumn,
		RevisionColumn: c.RevisionColumn,
		DefaultSchema:  c.DefaultSchema,
	}
}

// CORSOrigins returns the allowed CORS origins as a list.
func (c *Config) CORSOrigins() []string {
	parts := strings.Split(c.CORSAllowedOrigins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr must not be empty")
	}
	for _, ident := range []struct{ key, val string }{
		{"identity_column", c.IdentityColumn},
		{"revision_column", c.RevisionColumn},
		{"default_schema", c.DefaultSchema},
	} {
		if err := ddl.ValidateIdentifier(ident.val); err != nil {
			return fmt.Errorf("%s: %w", ident.key, err)
		}
	}
	if c.IdentityColumn == c.RevisionColumn {
		return fmt.Errorf("identity_column and revision_column must differ")
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("rate limit values must be positive")
	}

	// Production mode: insecure defaults are fatal errors.
	if c.IsProduction() {
		origins := c.CORSOrigins()
		if len(origins) == 1 && origins[0] == "*" {
			return fmt.Errorf("CORS wildcard (*) is not allowed in production (env=production)")
		}
	}
	return nil
}

// Load builds the configuration by layering defaults, an optional YAML file,
// ROWMETA_-prefixed environment variables, and explicitly set flags.
//
// cfgFile overrides the config file location; when empty, rowmeta.yaml or
// rowmeta.yml in the working directory is used if present. flags may be nil.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	// 1. Defaults.
	if err := k.Load(confmap.Provider(map[string]interface{}{
		"listen_addr":          ":8080",
		"db_max_open_conns":    8,
		"log_level":            "info",
		"env":                  "development",
		"identity_column":      domain.DefaultIdentityColumn,
		"revision_column":      domain.DefaultRevisionColumn,
		"default_schema":       domain.DefaultSchema,
		"rate_limit_rps":       100.0,
		"rate_limit_burst":     200,
		"cors_allowed_origins": "*",
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	// 2. Optional config file.
	path := findConfigFile(cfgFile)
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	// 3. Environment (ROWMETA_LISTEN_ADDR -> listen_addr).
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	// 4. Flags that were explicitly set (kebab-case maps to snake_case keys).
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if cfg.DatabaseDSN == "" {
		cfg.Warnings = append(cfg.Warnings, "no database DSN configured; schema provisioning is disabled")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// findConfigFile resolves the config file to use.
// Priority: explicit path > rowmeta.yaml > rowmeta.yml
func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, name := range []string{"rowmeta.yaml", "rowmeta.yml"} {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

// LoadDotEnv reads a .env file and sets any variables not already in the environment.
// Lines must be in KEY=VALUE format. Comments (#) and blank lines are skipped.
func LoadDotEnv(path string) error {
	f, err := os.Open(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		if os.IsNotExist(err) {
			return nil // .env not found is not an error
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = stripQuotes(strings.TrimSpace(value))
		// Only set if not already in the environment (env vars take precedence)
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("setenv %s: %w", key, err)
			}
		}
	}
	return scanner.Err()
}

// stripQuotes removes surrounding double or single quotes from a value.
// Only strips if both the first and last characters are matching quotes.
func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
