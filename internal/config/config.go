package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/echotools/phonebook/internal/amqp"
	"github.com/echotools/phonebook/internal/api"
	"github.com/echotools/phonebook/internal/store"
)

// EnvPrefix prefixes every environment variable read by LoadConfig.
const EnvPrefix = "PHONEBOOK"

// Config holds all configuration for the application
type Config struct {
	// Global configuration
	Debug    bool   `yaml:"debug" mapstructure:"debug"`
	LogLevel string `yaml:"log_level" mapstructure:"log_level"`
	LogFile  string `yaml:"log_file" mapstructure:"log_file"`

	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	AMQP   AMQPConfig   `yaml:"amqp" mapstructure:"amqp"`
}

// ServerConfig holds configuration for the HTTP listeners
type ServerConfig struct {
	Address        string        `yaml:"address" mapstructure:"address"`
	MetricsAddress string        `yaml:"metrics_address" mapstructure:"metrics_address"`
	ReadTimeout    time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
}

// StoreConfig holds configuration for the document store
type StoreConfig struct {
	Driver         string        `yaml:"driver" mapstructure:"driver"`
	MongoURI       string        `yaml:"mongo_uri" mapstructure:"mongo_uri"`
	Database       string        `yaml:"database" mapstructure:"database"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" mapstructure:"connect_timeout"`
	OpTimeout      time.Duration `yaml:"op_timeout" mapstructure:"op_timeout"`
}

// AMQPConfig holds configuration for the person event publisher
type AMQPConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	URI     string `yaml:"uri" mapstructure:"uri"`
	Queue   string `yaml:"queue" mapstructure:"queue"`
}

// DefaultConfig returns a Config with default values
func DefaultConfig() *Config {
	sc := store.DefaultConfig()
	return &Config{
		Debug:    false,
		LogLevel: "info",
		LogFile:  "",
		Server: ServerConfig{
			Address:      ":4000",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Store: StoreConfig{
			Driver:         sc.Driver,
			MongoURI:       sc.MongoURI,
			Database:       sc.Database,
			ConnectTimeout: sc.ConnectTimeout,
			OpTimeout:      sc.OpTimeout,
		},
		AMQP: AMQPConfig{
			Enabled: false,
			URI:     amqp.DefaultConfig().URI,
			Queue:   amqp.DefaultQueueName,
		},
	}
}

// setDefaults registers every key so AutomaticEnv can override keys that are
// absent from the config file.
func setDefaults(v *viper.Viper, c *Config) {
	v.SetDefault("debug", c.Debug)
	v.SetDefault("log_level", c.LogLevel)
	v.SetDefault("log_file", c.LogFile)

	v.SetDefault("server.address", c.Server.Address)
	v.SetDefault("server.metrics_address", c.Server.MetricsAddress)
	v.SetDefault("server.read_timeout", c.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", c.Server.WriteTimeout)

	v.SetDefault("store.driver", c.Store.Driver)
	v.SetDefault("store.mongo_uri", c.Store.MongoURI)
	v.SetDefault("store.database", c.Store.Database)
	v.SetDefault("store.connect_timeout", c.Store.ConnectTimeout)
	v.SetDefault("store.op_timeout", c.Store.OpTimeout)

	v.SetDefault("amqp.enabled", c.AMQP.Enabled)
	v.SetDefault("amqp.uri", c.AMQP.URI)
	v.SetDefault("amqp.queue", c.AMQP.Queue)
}

// LoadConfig loads configuration from defaults, the optional config file, a
// .env file and environment variables, in increasing order of precedence.
func LoadConfig(configFile string) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	config := DefaultConfig()

	// Use a local viper instance to avoid conflicts with flag bindings
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v, config)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// MONGODB_URI is the conventional variable for the connection string.
	if err := v.BindEnv("store.mongo_uri", EnvPrefix+"_STORE_MONGO_URI", "MONGODB_URI"); err != nil {
		return nil, fmt.Errorf("error binding env: %w", err)
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return config, nil
}

// Validate checks the configuration as a whole.
func (c *Config) Validate() error {
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	return c.APIConfig().Validate()
}

// StoreConfig converts the store section for store.Open.
func (c *Config) StoreConfig() store.Config {
	return store.Config{
		Driver:         c.Store.Driver,
		MongoURI:       c.Store.MongoURI,
		Database:       c.Store.Database,
		ConnectTimeout: c.Store.ConnectTimeout,
		OpTimeout:      c.Store.OpTimeout,
	}
}

// APIConfig converts the configuration for api.NewService.
func (c *Config) APIConfig() *api.Config {
	return &api.Config{
		ServerAddress:  c.Server.Address,
		MetricsAddress: c.Server.MetricsAddress,
		ReadTimeout:    c.Server.ReadTimeout,
		WriteTimeout:   c.Server.WriteTimeout,
		Store:          c.StoreConfig(),
		AMQPURI:        c.AMQP.URI,
		AMQPQueueName:  c.AMQP.Queue,
		AMQPEnabled:    c.AMQP.Enabled,
	}
}

func parseLevel(s string) (zapcore.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "", "info":
		return zapcore.InfoLevel, nil
	case "warn":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", s)
	}
}

// NewLogger creates a zap logger based on the configuration. Debug forces
// debug level. When LogFile is set, entries are also written to a rotating
// file.
func (c *Config) NewLogger() (*zap.Logger, error) {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	if c.Debug {
		level = zapcore.DebugLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.Level.SetLevel(level)

	// Include caller info in log messages (relative path and line number)
	cfg.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	cfg.OutputPaths = []string{"stdout"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	opts := []zap.Option{zap.AddCaller()}
	if c.LogFile != "" {
		fileCore := zapcore.NewCore(
			zapcore.NewJSONEncoder(cfg.EncoderConfig),
			zapcore.AddSync(&lumberjack.Logger{
				Filename:   c.LogFile,
				MaxSize:    100, // megabytes
				MaxBackups: 3,
				MaxAge:     28, // days
			}),
			cfg.Level,
		)
		opts = append(opts, zap.WrapCore(func(core zapcore.Core) zapcore.Core {
			return zapcore.NewTee(core, fileCore)
		}))
	}

	logger, err := cfg.Build(opts...)
	if err != nil {
		return nil, fmt.Errorf("error creating logger: %w", err)
	}

	return logger, nil
}
