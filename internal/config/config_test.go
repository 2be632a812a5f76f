package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/echotools/phonebook/internal/store"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "phonebook.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	chdir(t, t.TempDir()) // no stray .env
	t.Setenv("MONGODB_URI", "")
	os.Unsetenv("MONGODB_URI")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	want := DefaultConfig()
	if cfg.Server.Address != want.Server.Address {
		t.Errorf("Server.Address = %q, want %q", cfg.Server.Address, want.Server.Address)
	}
	if cfg.Store.Database != "phonebook" {
		t.Errorf("Store.Database = %q, want phonebook", cfg.Store.Database)
	}
	if cfg.Store.OpTimeout != 10*time.Second {
		t.Errorf("Store.OpTimeout = %v, want 10s", cfg.Store.OpTimeout)
	}
	if cfg.AMQP.Queue != "phonebook.persons" {
		t.Errorf("AMQP.Queue = %q", cfg.AMQP.Queue)
	}
}

func TestLoadConfig_Precedence(t *testing.T) {
	chdir(t, t.TempDir())
	path := writeConfig(t, `
log_level: debug
server:
  address: ":5000"
  read_timeout: 5s
store:
  driver: memory
  database: fromfile
  op_timeout: 2s
amqp:
  enabled: true
  queue: custom
`)

	tests := []struct {
		name  string
		env   map[string]string
		check func(t *testing.T, c *Config)
	}{
		{
			name: "file values",
			check: func(t *testing.T, c *Config) {
				if c.Server.Address != ":5000" || c.Server.ReadTimeout != 5*time.Second {
					t.Errorf("Server = %+v", c.Server)
				}
				if c.Store.Driver != store.DriverMemory || c.Store.Database != "fromfile" || c.Store.OpTimeout != 2*time.Second {
					t.Errorf("Store = %+v", c.Store)
				}
				if !c.AMQP.Enabled || c.AMQP.Queue != "custom" {
					t.Errorf("AMQP = %+v", c.AMQP)
				}
				// Keys absent from the file keep their defaults.
				if c.Server.WriteTimeout != 30*time.Second {
					t.Errorf("WriteTimeout = %v, want default", c.Server.WriteTimeout)
				}
			},
		},
		{
			name: "prefixed env overrides file",
			env: map[string]string{
				"PHONEBOOK_SERVER_ADDRESS":  ":6000",
				"PHONEBOOK_STORE_DATABASE":  "fromenv",
				"PHONEBOOK_STORE_MONGO_URI": "mongodb://prefixed:27017",
			},
			check: func(t *testing.T, c *Config) {
				if c.Server.Address != ":6000" {
					t.Errorf("Server.Address = %q", c.Server.Address)
				}
				if c.Store.Database != "fromenv" {
					t.Errorf("Store.Database = %q", c.Store.Database)
				}
				if c.Store.MongoURI != "mongodb://prefixed:27017" {
					t.Errorf("Store.MongoURI = %q", c.Store.MongoURI)
				}
			},
		},
		{
			name: "legacy MONGODB_URI",
			env:  map[string]string{"MONGODB_URI": "mongodb://legacy:27017"},
			check: func(t *testing.T, c *Config) {
				if c.Store.MongoURI != "mongodb://legacy:27017" {
					t.Errorf("Store.MongoURI = %q", c.Store.MongoURI)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cfg, err := LoadConfig(path)
			if err != nil {
				t.Fatalf("LoadConfig() error = %v", err)
			}
			tt.check(t, cfg)
		})
	}
}

func TestLoadConfig_DotEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("PHONEBOOK_STORE_DRIVER=memory\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PHONEBOOK_STORE_DRIVER", "") // restored after the test
	os.Unsetenv("PHONEBOOK_STORE_DRIVER")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Store.Driver != store.DriverMemory {
		t.Errorf("Store.Driver = %q, want memory", cfg.Store.Driver)
	}
}

func TestLoadConfig_BadFile(t *testing.T) {
	path := writeConfig(t, "server: [unterminated")
	if _, err := LoadConfig(path); err == nil {
		t.Error("LoadConfig() expected error for malformed YAML")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{name: "defaults", modify: func(c *Config) {}},
		{name: "bad log level", modify: func(c *Config) { c.LogLevel = "verbose" }, wantErr: true},
		{name: "bad driver", modify: func(c *Config) { c.Store.Driver = "redis" }, wantErr: true},
		{name: "amqp without uri", modify: func(c *Config) { c.AMQP.Enabled = true; c.AMQP.URI = "" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_APIConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.MetricsAddress = ":9100"
	cfg.AMQP.Enabled = true

	ac := cfg.APIConfig()
	if ac.ServerAddress != cfg.Server.Address || ac.MetricsAddress != ":9100" {
		t.Errorf("APIConfig() addresses = %q, %q", ac.ServerAddress, ac.MetricsAddress)
	}
	if ac.Store.Database != cfg.Store.Database || ac.Store.OpTimeout != cfg.Store.OpTimeout {
		t.Errorf("APIConfig().Store = %+v", ac.Store)
	}
	if !ac.AMQPEnabled || ac.AMQPQueueName != cfg.AMQP.Queue {
		t.Errorf("APIConfig() amqp = %v %q", ac.AMQPEnabled, ac.AMQPQueueName)
	}
}

func TestConfig_NewLogger(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "phonebook.log")

	cfg := DefaultConfig()
	cfg.Debug = true
	cfg.LogFile = logFile

	logger, err := cfg.NewLogger()
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	if !logger.Core().Enabled(-1) {
		t.Error("debug level not enabled with Debug=true")
	}
	logger.Info("written to file")
	_ = logger.Sync()

	data, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}
	if len(data) == 0 {
		t.Error("log file is empty")
	}

	cfg.LogLevel = "nope"
	if _, err := cfg.NewLogger(); err == nil {
		t.Error("NewLogger() expected error for unknown level")
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	chdir(t, t.TempDir())
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadConfig() expected error for missing config file")
	}
}
