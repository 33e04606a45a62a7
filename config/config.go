/*
Package config holds the configuration of a broker or module process, read from a YAML file.
*/
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dermesser/clustermsg/log"
	"github.com/dermesser/clustermsg/matchtag"
	"github.com/dermesser/clustermsg/transport/loop"

	"github.com/goccy/go-yaml"
)

type Config struct {
	Rank     uint32         `yaml:"rank"`
	Size     uint32         `yaml:"size"`
	Services []string       `yaml:"services"`
	Broker   BrokerConfig   `yaml:"broker"`
	Matchtag MatchtagConfig `yaml:"matchtag"`
	RPC      RPCConfig      `yaml:"rpc"`
	Bus      BusConfig      `yaml:"bus"`
	Logger   LoggerConfig   `yaml:"logger"`
	Security SecurityConfig `yaml:"security"`
}

type BrokerConfig struct {
	// Address peers connect to
	Endpoint string `yaml:"endpoint"`
	// Addresses the broker binds; defaults to Endpoint
	Bind []string `yaml:"bind"`
}

type MatchtagConfig struct {
	PoolSize uint32 `yaml:"pool_size"`
}

type RPCConfig struct {
	// Default window for MultiRPC; 0 means unbounded
	Fanout int `yaml:"fanout"`
}

type BusConfig struct {
	QueueLength int `yaml:"queue_length"`
}

type LoggerConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

type SecurityConfig struct {
	Enabled             bool     `yaml:"enabled"`
	PublicKeyFile       string   `yaml:"public_key_file"`
	PrivateKeyFile      string   `yaml:"private_key_file"`
	BrokerPublicKeyFile string   `yaml:"broker_public_key_file"`
	AllowedClientKeys   []string `yaml:"allowed_client_keys"`
}

// Default returns a single-rank configuration with a local broker.
func Default() Config {
	return Config{
		Rank: 0,
		Size: 1,
		Broker: BrokerConfig{
			Endpoint: "tcp://127.0.0.1:9650",
		},
		Matchtag: MatchtagConfig{PoolSize: matchtag.DEFAULT_POOL_SIZE},
		RPC:      RPCConfig{Fanout: 0},
		Bus:      BusConfig{QueueLength: loop.DEFAULT_QUEUE_LENGTH},
		Logger:   LoggerConfig{Level: "WARNINGS"},
	}
}

/*
Load reads path. Keys missing from the file keep their default value; if the file does not exist,
the default configuration is returned.
*/
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Log(log.LOGLEVEL_INFO, "Config file", path, "not found, using defaults")
			return cfg, nil
		}
		return cfg, err
	}
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

func (cfg *Config) Validate() error {
	if cfg.Size == 0 {
		return errors.New("size must be positive")
	}
	if cfg.Rank >= cfg.Size {
		return fmt.Errorf("rank %d out of range (size %d)", cfg.Rank, cfg.Size)
	}
	if cfg.Matchtag.PoolSize < 2 {
		return fmt.Errorf("matchtag pool size %d too small", cfg.Matchtag.PoolSize)
	}
	if cfg.RPC.Fanout < 0 {
		return fmt.Errorf("negative fanout %d", cfg.RPC.Fanout)
	}
	if _, err := ParseLoglevel(cfg.Logger.Level); err != nil {
		return err
	}
	if cfg.Security.Enabled && (cfg.Security.PublicKeyFile == "" || cfg.Security.PrivateKeyFile == "") {
		return errors.New("security enabled, but no key files configured")
	}
	return nil
}

// Addresses to bind the broker to.
func (cfg *Config) BindAddresses() []string {
	if len(cfg.Broker.Bind) > 0 {
		return cfg.Broker.Bind
	}
	return []string{cfg.Broker.Endpoint}
}

// Maps a level name ("ERRORS", "warnings", "info", ...) to a log level.
func ParseLoglevel(name string) (int, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "NONE":
		return log.LOGLEVEL_NONE, nil
	case "ERRORS", "ERROR":
		return log.LOGLEVEL_ERRORS, nil
	case "WARNINGS", "WARNING", "WARN":
		return log.LOGLEVEL_WARNINGS, nil
	case "INFO":
		return log.LOGLEVEL_INFO, nil
	case "DEBUG":
		return log.LOGLEVEL_DEBUG, nil
	}
	return 0, fmt.Errorf("unknown log level %q", name)
}

// Applies the logger section to the log package.
func (cfg *Config) ApplyLogging() error {
	ll, err := ParseLoglevel(cfg.Logger.Level)
	if err != nil {
		return err
	}
	log.SetOutput(os.Stderr, cfg.Logger.JSON)
	log.SetLoglevel(ll)
	return nil
}
