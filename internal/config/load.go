package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. SHORTPLAY_SERVER_PORT.
const EnvPrefix = "SHORTPLAY"

// defaults are registered with viper so that every key can be overridden by
// its environment variable even when no config file sets it.
var defaults = map[string]any{
	"server.port":             8080,
	"server.log_level":        "info",
	"server.shutdown_timeout": 30 * time.Second,

	"queue.backend": "file",
	"queue.path":    "data/generation_queue.jsonl",

	"database.url": "",
	"redis.url":    "",
	"redis.key":    "shortplay:generation_queue",

	"execution.mode":             "remote",
	"execution.work_dir":         "/root/autodl-tmp/SkyReels-V3",
	"execution.model_id":         "/root/autodl-tmp/SkyReels-V3-R2V-14B",
	"execution.env_file":         "",
	"execution.python":           "",
	"execution.script":           "",
	"execution.hf_home":          "",
	"execution.modelscope_cache": "",
	"execution.cuda_arch_list":   "",
	"execution.log_dir":          "/tmp",
	"execution.command_timeout":  2 * time.Hour,

	"ssh.host":                 "",
	"ssh.port":                 52138,
	"ssh.user":                 "root",
	"ssh.password":             "",
	"ssh.key_file":             "",
	"ssh.known_hosts_file":     "",
	"ssh.connect_timeout":      30 * time.Second,
	"ssh.skip_init_on_startup": false,

	"generation.output_dir":     "generated_videos",
	"generation.asset_base_dir": "/home/test_assets",
	"generation.object_prefix":  "videos",
	"generation.failure_dir":    "failed_tasks",

	"merge.workers":        2,
	"merge.queue_size":     32,
	"merge.asset_base_dir": "test_assets",
	"merge.output_dir":     "generated_videos",
	"merge.object_prefix":  "merged",
	"merge.ffmpeg_path":    "ffmpeg",
	"merge.repair_timeout": 120 * time.Second,
	"merge.concat_timeout": 600 * time.Second,
	"merge.temp_dir":       "",

	"storage.bucket":            "",
	"storage.region":            "us-east-1",
	"storage.endpoint":          "",
	"storage.access_key_id":     "",
	"storage.secret_access_key": "",
	"storage.use_path_style":    false,
	"storage.public_base_url":   "",
	"storage.url_log":           "generated_videos/s3_urls.log",

	"notify.url":      "",
	"notify.timeout":  30 * time.Second,
	"notify.log_path": "/tmp/shortplay_notify.log",

	"auth.jwt_secret": "",

	"tracing.enabled":      false,
	"tracing.daemon_addr":  "127.0.0.1:2000",
	"tracing.service_name": "shortplay-generator",
}

// Load configuration from environment variables and optionally a config.yaml
// in the working directory. Environment variables take precedence over values
// from the config file.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit config file. An empty path searches the
// working directory for config.yaml and tolerates its absence.
func LoadFile(configPath string) (*Config, error) {
	// A missing .env is normal outside development
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetConfigType("yaml")
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	validate := validator.New()
	validate.RegisterStructValidation(validateConfig, Config{})
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	// The merge asset base is rendered into file:// URLs and must be absolute
	abs, err := filepath.Abs(cfg.Merge.AssetBaseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve merge asset base dir: %w", err)
	}
	cfg.Merge.AssetBaseDir = abs

	return &cfg, nil
}

// validateConfig enforces the rules that span sections.
func validateConfig(sl validator.StructLevel) {
	cfg := sl.Current().Interface().(Config)

	if cfg.Execution.Mode == "remote" {
		if cfg.SSH.Host == "" {
			sl.ReportError(cfg.SSH.Host, "SSH.Host", "Host", "required_for_remote", "")
		}
		if cfg.SSH.User == "" {
			sl.ReportError(cfg.SSH.User, "SSH.User", "User", "required_for_remote", "")
		}
		if cfg.SSH.Password == "" && cfg.SSH.KeyFile == "" {
			sl.ReportError(cfg.SSH.Password, "SSH.Password", "Password", "password_or_key_file", "")
		}
	}

	switch cfg.Queue.Backend {
	case "file":
		if cfg.Queue.Path == "" {
			sl.ReportError(cfg.Queue.Path, "Queue.Path", "Path", "required_for_file", "")
		}
	case "postgres":
		if cfg.Database.URL == "" {
			sl.ReportError(cfg.Database.URL, "Database.URL", "URL", "required_for_postgres", "")
		}
	case "redis":
		if cfg.Redis.URL == "" {
			sl.ReportError(cfg.Redis.URL, "Redis.URL", "URL", "required_for_redis", "")
		}
		if cfg.Redis.Key == "" {
			sl.ReportError(cfg.Redis.Key, "Redis.Key", "Key", "required_for_redis", "")
		}
	}

	if cfg.Tracing.Enabled && cfg.Tracing.DaemonAddr == "" {
		sl.ReportError(cfg.Tracing.DaemonAddr, "Tracing.DaemonAddr", "DaemonAddr", "required_when_enabled", "")
	}
}
