package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. BATTLE_DATABASE_URL.
const EnvPrefix = "BATTLE"

// Config is the root configuration of the battle server.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Auth     AuthConfig     `mapstructure:"auth"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Game     GameConfig     `mapstructure:"game"`
}

// ServerConfig groups the network listeners.
type ServerConfig struct {
	HTTP HTTPConfig `mapstructure:"http"`
	GRPC GRPCConfig `mapstructure:"grpc"`
}

// HTTPConfig configures the REST and WebSocket listener.
type HTTPConfig struct {
	Address        string        `mapstructure:"address"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RateLimit      int           `mapstructure:"rate_limit"` // requests per minute per IP, 0 disables
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

// GRPCConfig configures the gRPC listener.
type GRPCConfig struct {
	Address              string `mapstructure:"address"`
	MaxConcurrentStreams int    `mapstructure:"max_concurrent_streams"`
}

// DatabaseConfig configures the Postgres pool. An empty URL selects the in-memory stores.
type DatabaseConfig struct {
	URL            string        `mapstructure:"url"`
	MaxConns       int32         `mapstructure:"max_conns"`
	MinConns       int32         `mapstructure:"min_conns"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// LoggingConfig selects the zap level and encoder.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// AuthConfig holds the shared secret used to verify bearer tokens.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

// NATSConfig enables cross-instance fan-out of game updates.
type NATSConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	URL           string `mapstructure:"url"`
	Token         string `mapstructure:"token"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

// GameConfig holds the battle rule constants.
type GameConfig struct {
	StartingHealth     int `mapstructure:"starting_health"`
	MaxHealth          int `mapstructure:"max_health"`
	BoardPositions     int `mapstructure:"board_positions"`
	InitialHandSize    int `mapstructure:"initial_hand_size"`
	MaxCopiesPerCard   int `mapstructure:"max_copies_per_card"`
	DefaultAbilityUses int `mapstructure:"default_ability_uses"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http.address", ":8080")
	v.SetDefault("server.http.read_timeout", 60*time.Second)
	v.SetDefault("server.http.write_timeout", 60*time.Second)
	v.SetDefault("server.http.idle_timeout", 60*time.Second)
	v.SetDefault("server.http.request_timeout", 15*time.Second)
	v.SetDefault("server.http.rate_limit", 600)
	v.SetDefault("server.http.allowed_origins", []string{"http://localhost:5173"})

	v.SetDefault("server.grpc.address", ":9090")
	v.SetDefault("server.grpc.max_concurrent_streams", 100)

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 1)
	v.SetDefault("database.connect_timeout", 5*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("auth.jwt_secret", "")

	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.token", "")
	v.SetDefault("nats.subject_prefix", "battle.game")

	v.SetDefault("game.starting_health", 5000)
	v.SetDefault("game.max_health", 5000)
	v.SetDefault("game.board_positions", 8)
	v.SetDefault("game.initial_hand_size", 5)
	v.SetDefault("game.max_copies_per_card", 3)
	v.SetDefault("game.default_ability_uses", 1)
}

// Load reads the YAML file at path (optional), a .env file in the working
// directory (optional) and BATTLE_* environment overrides, in increasing priority.
func Load(path string) (*Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !isMissingFile(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// isMissingFile reports whether err comes from an explicitly configured file that does not exist.
// viper only returns ConfigFileNotFoundError when searching config paths.
func isMissingFile(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	if c.Game.StartingHealth <= 0 {
		return fmt.Errorf("game.starting_health must be positive, got %d", c.Game.StartingHealth)
	}
	if c.Game.MaxHealth < c.Game.StartingHealth {
		return fmt.Errorf("game.max_health (%d) must be >= game.starting_health (%d)", c.Game.MaxHealth, c.Game.StartingHealth)
	}
	if c.Game.BoardPositions <= 0 {
		return fmt.Errorf("game.board_positions must be positive, got %d", c.Game.BoardPositions)
	}
	if c.Game.InitialHandSize < 0 {
		return fmt.Errorf("game.initial_hand_size must not be negative, got %d", c.Game.InitialHandSize)
	}
	if c.Game.MaxCopiesPerCard <= 0 {
		return fmt.Errorf("game.max_copies_per_card must be positive, got %d", c.Game.MaxCopiesPerCard)
	}
	if c.Game.DefaultAbilityUses <= 0 {
		return fmt.Errorf("game.default_ability_uses must be positive, got %d", c.Game.DefaultAbilityUses)
	}
	if c.Database.URL != "" && c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("database.max_conns (%d) must be >= database.min_conns (%d)", c.Database.MaxConns, c.Database.MinConns)
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		return errors.New("nats.url is required when nats.enabled is true")
	}
	return nil
}
