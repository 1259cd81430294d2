package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)

type Config struct {
	Env     string        `yaml:"env"`
	HTTP    HTTPConfig    `yaml:"http"`
	Log     LogConfig     `yaml:"log"`
	Storage StorageConfig `yaml:"storage"`
	Node    NodeConfig    `yaml:"node"`
	Binding BindingConfig `yaml:"binding"`
	Events  EventsConfig  `yaml:"events"`
}

type HTTPConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type StorageConfig struct {
	Backend    string      `yaml:"backend"`
	DataDir    string      `yaml:"data_dir"`
	SQLitePath string      `yaml:"sqlite_path"`
	Redis      RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

type NodeConfig struct {
	KeyPath string `yaml:"key_path"`
}

type BindingConfig struct {
	RequireSignature bool              `yaml:"require_signature"`
	PubKeyByCaller   map[string]string `yaml:"pubkey_by_caller"`
	// NonceWindow bounds how far a signed request's X-Nonce timestamp may
	// be from the server clock.
	NonceWindow time.Duration `yaml:"nonce_window"`
}

type EventsConfig struct {
	RedisChannel string `yaml:"redis_channel"`
	Buffer       int    `yaml:"buffer"`
}

func Default() Config {
	return Config{
		Env: "development",
		HTTP: HTTPConfig{
			Addr:         "127.0.0.1:8081",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 0, // event streams stay open
			IdleTimeout:  60 * time.Second,
		},
		Log: LogConfig{Level: "info"},
		Storage: StorageConfig{
			Backend:    BackendMemory,
			DataDir:    "data",
			SQLitePath: "data/receipts.db",
			Redis: RedisConfig{
				Addr:   "127.0.0.1:6379",
				Prefix: "receiptd",
			},
		},
		Node:    NodeConfig{KeyPath: "data/node_key.json"},
		Binding: BindingConfig{PubKeyByCaller: map[string]string{}, NonceWindow: 5 * time.Minute},
		Events:  EventsConfig{Buffer: 32},
	}
}

// Load builds the config from defaults, the YAML file at path and RECEIPTD_*
// variables, in that order. An empty path skips the file; a named file
// that cannot be read is an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFromYAML(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Storage.Backend {
	case BackendMemory, BackendRedis, BackendSQLite:
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.Storage.Backend == BackendSQLite && c.Storage.SQLitePath == "" {
		return errors.New("storage.sqlite_path is required for the sqlite backend")
	}
	if c.Storage.Backend == BackendRedis && c.Storage.Redis.Addr == "" {
		return errors.New("storage.redis.addr is required for the redis backend")
	}
	if c.Binding.NonceWindow <= 0 {
		return fmt.Errorf("binding.nonce_window must be positive, got %s", c.Binding.NonceWindow)
	}
	if c.Events.Buffer <= 0 {
		return fmt.Errorf("events.buffer must be positive, got %d", c.Events.Buffer)
	}
	return nil
}

func loadFromYAML(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("unmarshal config yaml: %w", err)
	}
	if cfg.Binding.PubKeyByCaller == nil {
		cfg.Binding.PubKeyByCaller = map[string]string{}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("RECEIPTD_ENV"); v != "" {
		cfg.Env = v
	}

	if v := os.Getenv("RECEIPTD_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if err := overrideDuration("RECEIPTD_HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout); err != nil {
		return err
	}
	if err := overrideDuration("RECEIPTD_HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout); err != nil {
		return err
	}
	if err := overrideDuration("RECEIPTD_HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout); err != nil {
		return err
	}

	if v := os.Getenv("RECEIPTD_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}

	if v := os.Getenv("RECEIPTD_STORAGE_BACKEND"); v != "" {
		cfg.Storage.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("RECEIPTD_DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("RECEIPTD_SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("RECEIPTD_REDIS_ADDR"); v != "" {
		cfg.Storage.Redis.Addr = v
	}
	if v := os.Getenv("RECEIPTD_REDIS_PASSWORD"); v != "" {
		cfg.Storage.Redis.Password = v
	}
	if err := overrideInt("RECEIPTD_REDIS_DB", &cfg.Storage.Redis.DB); err != nil {
		return err
	}
	if v := os.Getenv("RECEIPTD_REDIS_PREFIX"); v != "" {
		cfg.Storage.Redis.Prefix = v
	}

	if v := os.Getenv("RECEIPTD_NODE_KEY_PATH"); v != "" {
		cfg.Node.KeyPath = v
	}
	if err := overrideBool("RECEIPTD_REQUIRE_SIGNATURE", &cfg.Binding.RequireSignature); err != nil {
		return err
	}
	if err := overrideDuration("RECEIPTD_NONCE_WINDOW", &cfg.Binding.NonceWindow); err != nil {
		return err
	}

	if v := os.Getenv("RECEIPTD_EVENTS_REDIS_CHANNEL"); v != "" {
		cfg.Events.RedisChannel = v
	}
	if err := overrideInt("RECEIPTD_EVENTS_BUFFER", &cfg.Events.Buffer); err != nil {
		return err
	}

	return nil
}

func overrideDuration(key string, target *time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("parse %s duration: %w", key, err)
	}
	*target = d
	return nil
}

func overrideInt(key string, target *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("parse %s int: %w", key, err)
	}
	*target = n
	return nil
}

func overrideBool(key string, target *bool) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("parse %s bool: %w", key, err)
	}
	*target = b
	return nil
}
