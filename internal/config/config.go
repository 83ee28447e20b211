package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config"`
	Admin       AdminConfig               `json:"admin"`
	AI          AIConfig                  `json:"ai"`
	Providers   map[string]ProviderConfig `json:"providers"`
	Redis       RedisConfig               `json:"redis"`
	Databases   map[string]DatabaseConfig `json:"databases"`
	Catalog     CatalogConfig             `json:"catalog"`
	Storage     StorageConfig             `json:"storage"`
}

type BasicConfig struct {
	ServerAddress     string `json:"server_address"`
	SessionTTLMinutes int    `json:"session_ttl_minutes"`
	QueueSize         int    `json:"queue_size"`
	MaxUploadMB       int    `json:"max_upload_mb"`
	LogLevel          string `json:"log_level"`
}

// AdminConfig holds the single admin identity. PasswordHash (bcrypt) takes
// precedence over Password when both are set.
type AdminConfig struct {
	Username     string `json:"username"`
	Password     string `json:"password"`
	PasswordHash string `json:"password_hash"`
}

type AIConfig struct {
	Provider       string `json:"provider"`
	TimeoutSeconds int    `json:"timeout_seconds"`

	// RateLimitPerMinute caps questions per caller; 0 disables the limit.
	RateLimitPerMinute int `json:"rate_limit_per_minute"`

	// SystemPrompt replaces the built-in assistant preamble when set.
	SystemPrompt string `json:"system_prompt"`
}

type ProviderConfig struct {
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
	APIKey  string `json:"api_key"`
}

type RedisConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// Enabled reports whether a redis server was configured.
func (r RedisConfig) Enabled() bool {
	return r.Host != ""
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	Params   string `json:"params"`
}

type CatalogConfig struct {
	Backend             string `json:"backend"`
	CacheTTLSeconds     int    `json:"cache_ttl_seconds"`
	FirestoreProject    string `json:"firestore_project"`
	FirestoreCollection string `json:"firestore_collection"`
}

type StorageConfig struct {
	Backend       string      `json:"backend"`
	BaseDir       string      `json:"base_dir"`
	FolderName    string      `json:"folder_name"`
	PublicBaseURL string      `json:"public_base_url"`
	MinIO         MinIOConfig `json:"minio"`
	GCSBucket     string      `json:"gcs_bucket"`
}

type MinIOConfig struct {
	Endpoint  string `json:"endpoint"`
	AccessKey string `json:"access_key"`
	SecretKey string `json:"secret_key"`
	Bucket    string `json:"bucket"`
	UseSSL    bool   `json:"use_ssl"`
	Region    string `json:"region"`

	// PublicURL is the endpoint of a publicly readable bucket. When empty,
	// file links go through the server, which presigns each download.
	PublicURL string `json:"public_url"`
}

const (
	DefaultConfigPath    = "config.json"
	DefaultAddress       = ":8090"
	DefaultSessionTTL    = 60
	DefaultQueueSize     = 16
	DefaultMaxUploadMB   = 10
	DefaultAITimeout     = 30
	DefaultCacheTTL      = 300
	DefaultFolderName    = "Intizar Digital Library"
	DefaultCollection    = "intizar_library"
	DefaultGeminiModel   = "gemini-2.5-flash"
	DefaultSQLiteDSN     = "./data/intizar.db"
	DefaultStorageDir    = "./data/files"
	DefaultCatalogDriver = "sqlite3"
	DefaultProvider      = "gemini"
)

// Load reads configuration from the provided path (defaults to config.json),
// then applies environment overrides. A missing file is only an error when
// the path was given explicitly.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if path == "" {
		path = DefaultConfigPath
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	var cfg Config
	file, err := os.Open(absPath)
	switch {
	case err == nil:
		defer file.Close()
		if err := json.NewDecoder(file).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	cfg.resolvePaths(filepath.Dir(absPath))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints after defaults were applied.
func (c *Config) Validate() error {
	switch c.Catalog.Backend {
	case "sqlite3", "mysql", "postgres":
		if _, ok := c.Databases[c.Catalog.Backend]; !ok {
			return fmt.Errorf("database config for %s not found", c.Catalog.Backend)
		}
	case "firestore":
		if c.Catalog.FirestoreProject == "" {
			return errors.New("catalog.firestore_project must be configured")
		}
	default:
		return fmt.Errorf("unsupported catalog backend: %s", c.Catalog.Backend)
	}
	switch c.Storage.Backend {
	case "local":
	case "minio":
		if c.Storage.MinIO.Endpoint == "" || c.Storage.MinIO.Bucket == "" {
			return errors.New("storage.minio endpoint and bucket must be configured")
		}
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return errors.New("storage.gcs_bucket must be configured")
		}
	default:
		return fmt.Errorf("unsupported file store: %s", c.Storage.Backend)
	}
	return nil
}

// ActiveProvider returns the provider name and settings used by the AI gateway.
func (c *Config) ActiveProvider() (string, ProviderConfig) {
	name := c.AI.Provider
	return name, c.Providers[name]
}

func (c *Config) applyEnv() {
	setString(&c.BasicConfig.ServerAddress, "SERVER_ADDRESS")
	setInt(&c.BasicConfig.SessionTTLMinutes, "SESSION_TTL_MINUTES")
	setInt(&c.BasicConfig.MaxUploadMB, "MAX_UPLOAD_MB")
	setString(&c.BasicConfig.LogLevel, "LOG_LEVEL")

	setString(&c.Admin.Username, "ADMIN_USERNAME")
	setString(&c.Admin.Password, "ADMIN_PASSWORD")
	setString(&c.Admin.PasswordHash, "ADMIN_PASSWORD_HASH")

	setString(&c.AI.Provider, "AI_PROVIDER")
	setInt(&c.AI.TimeoutSeconds, "AI_TIMEOUT_SECONDS")
	setInt(&c.AI.RateLimitPerMinute, "AI_RATE_LIMIT_PER_MINUTE")
	if c.Providers == nil {
		c.Providers = make(map[string]ProviderConfig)
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		p := c.Providers["gemini"]
		p.APIKey = key
		c.Providers["gemini"] = p
	}
	provider := c.AI.Provider
	if provider == "" {
		provider = DefaultProvider
	}
	p := c.Providers[provider]
	setString(&p.APIKey, "AI_API_KEY")
	setString(&p.Model, "AI_MODEL")
	setString(&p.BaseURL, "AI_BASE_URL")
	c.Providers[provider] = p

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		if host, port, err := net.SplitHostPort(addr); err == nil {
			c.Redis.Host = host
			if n, err := strconv.Atoi(port); err == nil {
				c.Redis.Port = n
			}
		}
	}
	setString(&c.Redis.Password, "REDIS_PASSWORD")

	setString(&c.Catalog.Backend, "DB_DRIVER")
	if dsn := os.Getenv("DB_DSN"); dsn != "" {
		driver := c.Catalog.Backend
		if driver == "" {
			driver = DefaultCatalogDriver
		}
		if c.Databases == nil {
			c.Databases = make(map[string]DatabaseConfig)
		}
		db := c.Databases[driver]
		db.DSN = dsn
		c.Databases[driver] = db
	}
	setString(&c.Catalog.FirestoreProject, "FIRESTORE_PROJECT")

	setString(&c.Storage.Backend, "FILE_STORE")
	setString(&c.Storage.BaseDir, "STORAGE_BASE_DIR")
	setString(&c.Storage.PublicBaseURL, "PUBLIC_BASE_URL")
	setString(&c.Storage.MinIO.Endpoint, "MINIO_ENDPOINT")
	setString(&c.Storage.MinIO.AccessKey, "MINIO_ACCESS_KEY")
	setString(&c.Storage.MinIO.SecretKey, "MINIO_SECRET_KEY")
	setString(&c.Storage.MinIO.Bucket, "MINIO_BUCKET")
	setString(&c.Storage.MinIO.Region, "MINIO_REGION")
	setString(&c.Storage.MinIO.PublicURL, "MINIO_PUBLIC_URL")
	if v := os.Getenv("MINIO_USE_SSL"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Storage.MinIO.UseSSL = b
		}
	}
	setString(&c.Storage.GCSBucket, "GCS_BUCKET")
}

func (c *Config) applyDefaults() {
	if c.BasicConfig.ServerAddress == "" {
		c.BasicConfig.ServerAddress = DefaultAddress
	}
	if c.BasicConfig.SessionTTLMinutes <= 0 {
		c.BasicConfig.SessionTTLMinutes = DefaultSessionTTL
	}
	if c.BasicConfig.QueueSize <= 0 {
		c.BasicConfig.QueueSize = DefaultQueueSize
	}
	if c.BasicConfig.MaxUploadMB <= 0 {
		c.BasicConfig.MaxUploadMB = DefaultMaxUploadMB
	}
	if c.BasicConfig.LogLevel == "" {
		c.BasicConfig.LogLevel = "info"
	}
	if c.AI.Provider == "" {
		c.AI.Provider = DefaultProvider
	}
	if c.AI.TimeoutSeconds <= 0 {
		c.AI.TimeoutSeconds = DefaultAITimeout
	}
	if p, ok := c.Providers["gemini"]; ok && p.Model == "" {
		p.Model = DefaultGeminiModel
		c.Providers["gemini"] = p
	}
	if c.Redis.Enabled() && c.Redis.Port == 0 {
		c.Redis.Port = 6379
	}
	if c.Catalog.Backend == "" {
		c.Catalog.Backend = DefaultCatalogDriver
	}
	if c.Catalog.CacheTTLSeconds == 0 {
		c.Catalog.CacheTTLSeconds = DefaultCacheTTL
	}
	if c.Catalog.FirestoreCollection == "" {
		c.Catalog.FirestoreCollection = DefaultCollection
	}
	if c.Databases == nil {
		c.Databases = make(map[string]DatabaseConfig)
	}
	if db, ok := c.Databases["sqlite3"]; !ok || db.DSN == "" {
		db.DSN = DefaultSQLiteDSN
		c.Databases["sqlite3"] = db
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = "local"
	}
	if c.Storage.BaseDir == "" {
		c.Storage.BaseDir = DefaultStorageDir
	}
	if c.Storage.FolderName == "" {
		c.Storage.FolderName = DefaultFolderName
	}
}

func (c *Config) resolvePaths(base string) {
	if db, ok := c.Databases["sqlite3"]; ok && isRelativeFile(db.DSN) {
		db.DSN = filepath.Join(base, db.DSN)
		c.Databases["sqlite3"] = db
	}
	if !filepath.IsAbs(c.Storage.BaseDir) {
		c.Storage.BaseDir = filepath.Join(base, c.Storage.BaseDir)
	}
}

func isRelativeFile(dsn string) bool {
	if dsn == "" || dsn == ":memory:" || strings.HasPrefix(dsn, "file:") {
		return false
	}
	return !filepath.IsAbs(dsn)
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			*dst = i
		}
	}
}
