package internal

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/viper"
)

const EnvPrefix = "POOLCTL"

type StorageMode string

const (
	FileStorage   StorageMode = "file"
	MemoryStorage StorageMode = "memory"
)

var ErrInvalidConfig = errors.New("config: invalid")

type Config struct {
	AppName  string `mapstructure:"app_name"`
	PoolSize int    `mapstructure:"pool_size"`

	Storage struct {
		Mode StorageMode `mapstructure:"mode"`
		Dir  string      `mapstructure:"dir"`
		Base string      `mapstructure:"base"`
	} `mapstructure:"storage"`

	WAL struct {
		Enabled bool   `mapstructure:"enabled"`
		Dir     string `mapstructure:"dir"`
	} `mapstructure:"wal"`

	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`
}

// NewViper returns a viper instance with defaults and POOLCTL_* env overrides
// (e.g. POOLCTL_STORAGE_DIR).
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetDefault("app_name", "clockpool")
	v.SetDefault("pool_size", 128)
	v.SetDefault("storage.mode", string(FileStorage))
	v.SetDefault("storage.dir", "./data")
	v.SetDefault("storage.base", "pages")
	v.SetDefault("wal.enabled", true)
	v.SetDefault("wal.dir", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// LoadConfig reads a YAML file on top of the defaults. An empty path uses
// defaults and environment only.
func LoadConfig(path string) (*Config, error) {
	v := NewViper()
	if err := ReadFile(v, path); err != nil {
		return nil, err
	}
	return Decode(v)
}

// ReadFile merges the YAML file at path into v. An empty path is a no-op.
func ReadFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// Decode unmarshals and validates the settings held by v.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.PoolSize <= 0 {
		return fmt.Errorf("%w: pool_size must be positive, got %d", ErrInvalidConfig, c.PoolSize)
	}
	switch c.Storage.Mode {
	case FileStorage:
		if c.Storage.Dir == "" || c.Storage.Base == "" {
			return fmt.Errorf("%w: storage.dir and storage.base are required in file mode", ErrInvalidConfig)
		}
	case MemoryStorage:
		if c.WAL.Enabled && c.WALDir() == "" {
			return fmt.Errorf("%w: wal.dir is required in memory mode", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: storage.mode %q", ErrInvalidConfig, c.Storage.Mode)
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// WALDir defaults to the storage directory.
func (c *Config) WALDir() string {
	if c.WAL.Dir != "" {
		return c.WAL.Dir
	}
	if c.Storage.Mode == FileStorage {
		return c.Storage.Dir
	}
	return ""
}

// NewLogger builds the slog logger described by the log section.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	level, _ := parseLevel(c.Log.Level)
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Log.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("%w: log.level %q", ErrInvalidConfig, s)
	}
	return level, nil
}
