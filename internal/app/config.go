package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config holds the complete application configuration, loadable from
// environment variables (VITRINA_ prefix), flags, or YAML config files.
//
// Store credentials are intentionally not validated at load time: the commit
// endpoint reports missing configuration per request, so a storefront-only
// deployment can run the read paths without a write credential.
type Config struct {
	Addr      string `default:"0.0.0.0:8080" usage:"API server listen address"`
	Store     StoreConfig
	Catalog   CatalogConfig
	Redis     RedisConfig
	Admin     AdminConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
	Graceful  GracefulConfig
}

// StoreConfig addresses the version-controlled catalog file and selects the
// backend that hosts it.
type StoreConfig struct {
	Backend string `default:"github" usage:"Content store backend: github or gitfs"`
	Token   string `usage:"Write credential for the contents API (VITRINA_STORE_TOKEN or GITHUB_TOKEN)" flag:"store-token"`
	Owner   string `usage:"Store owner identifier" flag:"store-owner"`
	Repo    string `usage:"Store repository identifier" flag:"store-repo"`
	Branch  string `default:"main" usage:"Store branch" flag:"store-branch"`
	Path    string `default:"perfumes.json" usage:"Catalog file path within the store" flag:"store-path"`
	GitDir  string `default:"./data/catalog" usage:"Local repository dir for the gitfs backend" flag:"store-git-dir"`
}

// CatalogConfig controls the read path and storefront rendering data.
type CatalogConfig struct {
	RawURL        string `usage:"Raw endpoint override; derived from owner/repo/branch/path when empty" flag:"raw-url"`
	StaticPath    string `default:"./static/perfumes.json" usage:"Static fallback copy of the catalog" flag:"static-path"`
	StaticDir     string `default:"./static" usage:"Storefront static assets dir (empty disables)" flag:"static-dir"`
	ImageBaseDir  string `default:"./perfumes.webp/" usage:"Base dir for bare image filenames" flag:"image-base-dir"`
	WhatsAppPhone string `usage:"Phone number for product WhatsApp deep links" flag:"whatsapp-phone"`
}

// RedisConfig controls the backup copy of the catalog document. Optional:
// without it the reader skips straight from the raw endpoint to the static
// fallback.
type RedisConfig struct {
	URL string        `usage:"Redis URL for the catalog backup copy (empty disables)" flag:"redis-url"`
	TTL time.Duration `default:"0" usage:"Backup TTL; 0 keeps it forever" flag:"redis-ttl"`
}

// AdminConfig gates the editing capability. The admin surface does not exist
// unless a token is configured.
type AdminConfig struct {
	Token string `usage:"Admin API token; enables the editing endpoints when set" flag:"admin-token"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config
// files, and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "VITRINA",
		Files:     []string{"config.yaml", "/etc/vitrina/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	return &cfg, nil
}

// applyPlatformDefaults maps the original deployment's plain environment
// names (GITHUB_*, PORT) to the VITRINA_-prefixed configuration, so an
// existing environment keeps working unchanged.
func (c *Config) applyPlatformDefaults() {
	if c.Store.Token == "" {
		c.Store.Token = os.Getenv("GITHUB_TOKEN")
	}
	if c.Store.Owner == "" {
		c.Store.Owner = os.Getenv("GITHUB_OWNER")
	}
	if c.Store.Repo == "" {
		c.Store.Repo = os.Getenv("GITHUB_REPO")
	}
	if v := os.Getenv("GITHUB_BRANCH"); v != "" && c.Store.Branch == "main" {
		c.Store.Branch = v
	}
	if v := os.Getenv("GITHUB_FILE_PATH"); v != "" && c.Store.Path == "perfumes.json" {
		c.Store.Path = v
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
