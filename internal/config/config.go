package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server     ServerConfig     `mapstructure:"server" validate:"required"`
	Queue      QueueConfig      `mapstructure:"queue" validate:"required"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Execution  ExecutionConfig  `mapstructure:"execution" validate:"required"`
	SSH        SSHConfig        `mapstructure:"ssh"`
	Generation GenerationConfig `mapstructure:"generation" validate:"required"`
	Merge      MergeConfig      `mapstructure:"merge" validate:"required"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Notify     NotifyConfig     `mapstructure:"notify"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel        string        `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gte=0"`
}

// QueueConfig selects the durable log backing the generation queue.
type QueueConfig struct {
	Backend string `mapstructure:"backend" validate:"required,oneof=file postgres redis"`
	// Path is the JSON-lines file used by the file backend
	Path string `mapstructure:"path"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"omitempty,url"`
}

// RedisConfig is used by the redis queue backend.
type RedisConfig struct {
	URL string `mapstructure:"url" validate:"omitempty,url"`
	Key string `mapstructure:"key"`
}

// ExecutionConfig describes where and how the generation program runs.
type ExecutionConfig struct {
	Mode            string        `mapstructure:"mode" validate:"required,oneof=local remote"`
	WorkDir         string        `mapstructure:"work_dir" validate:"required"`
	ModelID         string        `mapstructure:"model_id" validate:"required"`
	EnvFile         string        `mapstructure:"env_file"`
	Python          string        `mapstructure:"python"`
	Script          string        `mapstructure:"script"`
	HFHome          string        `mapstructure:"hf_home"`
	ModelScopeCache string        `mapstructure:"modelscope_cache"`
	CUDAArchList    string        `mapstructure:"cuda_arch_list"`
	LogDir          string        `mapstructure:"log_dir" validate:"required"`
	CommandTimeout  time.Duration `mapstructure:"command_timeout" validate:"gt=0"`
}

// SSHConfig is required when execution.mode is remote.
type SSHConfig struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port" validate:"gt=0,lt=65536"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	KeyFile           string        `mapstructure:"key_file"`
	KnownHostsFile    string        `mapstructure:"known_hosts_file"`
	ConnectTimeout    time.Duration `mapstructure:"connect_timeout" validate:"gt=0"`
	SkipInitOnStartup bool          `mapstructure:"skip_init_on_startup"`
}

// GenerationConfig holds where generated videos and failure records go.
type GenerationConfig struct {
	OutputDir    string `mapstructure:"output_dir" validate:"required"`
	AssetBaseDir string `mapstructure:"asset_base_dir"`
	ObjectPrefix string `mapstructure:"object_prefix"`
	FailureDir   string `mapstructure:"failure_dir" validate:"required"`
}

// MergeConfig sizes the merge pool and locates ffmpeg.
type MergeConfig struct {
	Workers       int           `mapstructure:"workers" validate:"gt=0"`
	QueueSize     int           `mapstructure:"queue_size" validate:"gt=0"`
	AssetBaseDir  string        `mapstructure:"asset_base_dir" validate:"required"`
	OutputDir     string        `mapstructure:"output_dir" validate:"required"`
	ObjectPrefix  string        `mapstructure:"object_prefix"`
	FFmpegPath    string        `mapstructure:"ffmpeg_path" validate:"required"`
	RepairTimeout time.Duration `mapstructure:"repair_timeout" validate:"gt=0"`
	ConcatTimeout time.Duration `mapstructure:"concat_timeout" validate:"gt=0"`
	TempDir       string        `mapstructure:"temp_dir"`
}

// StorageConfig describes the S3-compatible bucket. Uploads are disabled
// while the bucket or credentials are missing.
type StorageConfig struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint" validate:"omitempty,url"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UsePathStyle    bool   `mapstructure:"use_path_style"`
	PublicBaseURL   string `mapstructure:"public_base_url" validate:"omitempty,url"`
	URLLog          string `mapstructure:"url_log"`
}

// NotifyConfig controls the completion callback and the notify log.
type NotifyConfig struct {
	URL     string        `mapstructure:"url" validate:"omitempty,url"`
	Timeout time.Duration `mapstructure:"timeout" validate:"gt=0"`
	LogPath string        `mapstructure:"log_path"`
}

// AuthConfig enables bearer auth on the video API when JWTSecret is set.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret" validate:"omitempty,min=32"`
}

// TracingConfig controls X-Ray export.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	DaemonAddr  string `mapstructure:"daemon_addr"`
	ServiceName string `mapstructure:"service_name"`
}
