// Package config centralizes how Waypoint reads its settings and exposes them
// as strongly typed Go values.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Remote backends understood by RemoteBackend.
const (
	BackendMemory   = "memory"
	BackendMinio    = "minio"
	BackendS3       = "s3"
	BackendPostgres = "postgres"
)

// Config represents runtime configuration shared by the CLI, the API server
// and the worker.
type Config struct {
	Address string

	DataDir      string
	DatabasePath string
	AssetDir     string

	RemoteBackend string
	S3Endpoint    string
	S3AccessKey   string
	S3SecretKey   string
	S3Region      string
	S3UseSSL      bool
	S3Bucket      string
	S3Prefix      string
	DatabaseURL   string

	// RedisAddr enables the job queue. Empty means no queue: transfers run
	// in process only.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	QueueMaxRetry int

	TransferConcurrency int
	MaxAssetSize        int64

	// BackupLockTTL is how old a backup lease must be before another
	// process may take it over.
	BackupLockTTL time.Duration

	// SigningSecret keys the photo links handed out by the API. When empty
	// a random key is used and links die with the process.
	SigningSecret string
	SignedURLTTL  time.Duration

	LogLevel  string
	LogFormat string
}

const (
	envPrefix     = "WAYPOINT"
	configFileEnv = "WAYPOINT_CONFIG"
	dotenvFile    = ".env"

	defaultAddress       = ":8080"
	defaultBackend       = BackendMinio
	defaultS3Endpoint    = "localhost:9000"
	defaultS3Region      = "us-east-1"
	defaultS3Bucket      = "waypoint-backup"
	defaultQueueMaxRetry = 5
	defaultConcurrency   = 1
	defaultMaxAssetSize  = 25 << 20 // 25 MiB
	defaultSignedURLTTL  = 15 * time.Minute
	defaultBackupLockTTL = time.Hour
	defaultLogLevel      = "info"
	defaultLogFormat     = "text"
)

// Load reads configuration from, lowest precedence first: built-in defaults,
// a .env file in the working directory, the file named by WAYPOINT_CONFIG and
// WAYPOINT_* environment variables.
func Load() (*Config, error) {
	// godotenv never overrides variables that are already set.
	if err := godotenv.Load(dotenvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", dotenvFile, err)
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path := os.Getenv(configFileEnv); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	cfg := &Config{
		Address:             v.GetString("address"),
		DataDir:             v.GetString("data_dir"),
		DatabasePath:        v.GetString("database_path"),
		AssetDir:            v.GetString("asset_dir"),
		RemoteBackend:       strings.ToLower(v.GetString("remote_backend")),
		S3Endpoint:          v.GetString("s3_endpoint"),
		S3AccessKey:         v.GetString("s3_access_key"),
		S3SecretKey:         v.GetString("s3_secret_key"),
		S3Region:            v.GetString("s3_region"),
		S3UseSSL:            v.GetBool("s3_use_ssl"),
		S3Bucket:            v.GetString("s3_bucket"),
		S3Prefix:            v.GetString("s3_prefix"),
		DatabaseURL:         v.GetString("database_url"),
		RedisAddr:           v.GetString("redis_addr"),
		RedisPassword:       v.GetString("redis_password"),
		RedisDB:             v.GetInt("redis_db"),
		QueueMaxRetry:       v.GetInt("queue_max_retry"),
		TransferConcurrency: v.GetInt("transfer_concurrency"),
		MaxAssetSize:        v.GetInt64("max_asset_size"),
		BackupLockTTL:       v.GetDuration("backup_lock_ttl"),
		SigningSecret:       v.GetString("signing_secret"),
		SignedURLTTL:        v.GetDuration("signed_url_ttl"),
		LogLevel:            v.GetString("log_level"),
		LogFormat:           v.GetString("log_format"),
	}

	if cfg.DataDir == "" {
		dir, err := defaultDataDir()
		if err != nil {
			return nil, err
		}
		cfg.DataDir = dir
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = filepath.Join(cfg.DataDir, "waypoint.db")
	}
	if cfg.AssetDir == "" {
		cfg.AssetDir = filepath.Join(cfg.DataDir, "assets")
	}
	if cfg.TransferConcurrency <= 0 {
		cfg.TransferConcurrency = defaultConcurrency
	}
	if cfg.MaxAssetSize <= 0 {
		cfg.MaxAssetSize = defaultMaxAssetSize
	}
	if cfg.BackupLockTTL <= 0 {
		cfg.BackupLockTTL = defaultBackupLockTTL
	}
	if cfg.SignedURLTTL <= 0 {
		cfg.SignedURLTTL = defaultSignedURLTTL
	}
	if cfg.QueueMaxRetry < 0 {
		cfg.QueueMaxRetry = defaultQueueMaxRetry
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports settings that cannot work together.
func (c *Config) Validate() error {
	switch c.RemoteBackend {
	case BackendMemory:
	case BackendMinio, BackendS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("remote backend %s requires a bucket", c.RemoteBackend)
		}
		if c.RemoteBackend == BackendMinio && c.S3Endpoint == "" {
			return errors.New("remote backend minio requires an endpoint")
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return errors.New("remote backend postgres requires WAYPOINT_DATABASE_URL")
		}
	default:
		return fmt.Errorf("unknown remote backend %q", c.RemoteBackend)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("address", defaultAddress)
	v.SetDefault("data_dir", "")
	v.SetDefault("database_path", "")
	v.SetDefault("asset_dir", "")
	v.SetDefault("remote_backend", defaultBackend)
	v.SetDefault("s3_endpoint", defaultS3Endpoint)
	v.SetDefault("s3_access_key", "")
	v.SetDefault("s3_secret_key", "")
	v.SetDefault("s3_region", defaultS3Region)
	v.SetDefault("s3_use_ssl", false)
	v.SetDefault("s3_bucket", defaultS3Bucket)
	v.SetDefault("s3_prefix", "")
	v.SetDefault("database_url", "")
	v.SetDefault("redis_addr", "")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("queue_max_retry", defaultQueueMaxRetry)
	v.SetDefault("transfer_concurrency", defaultConcurrency)
	v.SetDefault("max_asset_size", defaultMaxAssetSize)
	v.SetDefault("backup_lock_ttl", defaultBackupLockTTL)
	v.SetDefault("signing_secret", "")
	v.SetDefault("signed_url_ttl", defaultSignedURLTTL)
	v.SetDefault("log_level", defaultLogLevel)
	v.SetDefault("log_format", defaultLogFormat)
}

func defaultDataDir() (string, error) {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "waypoint"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "waypoint"), nil
}
