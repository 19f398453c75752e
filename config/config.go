package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
	_ "time/tzdata"

	"medquest/leveling"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	StoreDriverMemory = "memory"
	StoreDriverMongo  = "mongo"
)

type Config struct {
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`

	Database struct {
		URI string `yaml:"uri"`
	} `yaml:"database"`

	Store struct {
		Driver string `yaml:"driver"` // memory or mongo
	} `yaml:"store"`

	Redis struct {
		Addr     string        `yaml:"addr"` // empty keeps cache and limiter in process
		Password string        `yaml:"password"`
		DB       int           `yaml:"db"`
		StatsTTL time.Duration `yaml:"statsTTL"`
	} `yaml:"redis"`

	JWT struct {
		Secret string `yaml:"secret"`
	} `yaml:"jwt"`

	Engine struct {
		MaxAttempts  int             `yaml:"maxAttempts"`
		HistoryLimit int             `yaml:"historyLimit"`
		RetryBackoff time.Duration   `yaml:"retryBackoff"`
		Timezone     string          `yaml:"timezone"`
		Leveling     leveling.Config `yaml:"leveling"`
	} `yaml:"engine"`

	RateLimit struct {
		Max    int           `yaml:"max"`
		Window time.Duration `yaml:"window"`
	} `yaml:"rateLimit"`

	Logging struct {
		Mode string `yaml:"mode"`
	} `yaml:"logging"`

	CORS struct {
		AllowOrigins []string `yaml:"allowOrigins"`
	} `yaml:"cors"`
}

// LoadConfig reads the configuration file, then applies .env and
// environment overrides and fills defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal yaml: %w", err)
	}

	// a missing .env is normal outside development
	_ = godotenv.Load()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("MEDQUEST_MONGO_URI"); v != "" {
		c.Database.URI = v
	}
	if v := os.Getenv("MEDQUEST_REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("MEDQUEST_JWT_SECRET"); v != "" {
		c.JWT.Secret = v
	}
	if v := os.Getenv("MEDQUEST_STORE_DRIVER"); v != "" {
		c.Store.Driver = v
	}
	if v := os.Getenv("MEDQUEST_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid MEDQUEST_PORT %q: %w", v, err)
		}
		c.Server.Port = port
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 1313
	}
	if c.Store.Driver == "" {
		if c.Database.URI != "" {
			c.Store.Driver = StoreDriverMongo
		} else {
			c.Store.Driver = StoreDriverMemory
		}
	}
	if c.Redis.StatsTTL == 0 {
		c.Redis.StatsTTL = 5 * time.Minute
	}
	if c.Engine.MaxAttempts == 0 {
		c.Engine.MaxAttempts = 5
	}
	if c.Engine.HistoryLimit == 0 {
		c.Engine.HistoryLimit = 1000
	}
	if c.Engine.RetryBackoff == 0 {
		c.Engine.RetryBackoff = 10 * time.Millisecond
	}
	if c.Engine.Timezone == "" {
		c.Engine.Timezone = "UTC"
	}
	defaults := leveling.DefaultConfig()
	if c.Engine.Leveling.MaxLevel == 0 {
		c.Engine.Leveling.MaxLevel = defaults.MaxLevel
	}
	if c.Engine.Leveling.BaseXP == 0 {
		c.Engine.Leveling.BaseXP = defaults.BaseXP
	}
	if c.Engine.Leveling.Multipliers == nil {
		c.Engine.Leveling.Multipliers = defaults.Multipliers
	}
	for track, m := range defaults.Multipliers {
		if _, ok := c.Engine.Leveling.Multipliers[track]; !ok {
			c.Engine.Leveling.Multipliers[track] = m
		}
	}
	if c.RateLimit.Max == 0 {
		c.RateLimit.Max = 10
	}
	if c.RateLimit.Window == 0 {
		c.RateLimit.Window = time.Minute
	}
	if c.Logging.Mode == "" {
		c.Logging.Mode = "development"
	}
	if len(c.CORS.AllowOrigins) == 0 {
		c.CORS.AllowOrigins = []string{"http://localhost:5173"}
	}
}

// Validate rejects values the server cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	switch c.Store.Driver {
	case StoreDriverMemory:
	case StoreDriverMongo:
		if c.Database.URI == "" {
			errs = append(errs, errors.New("database.uri is required for the mongo store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store.driver %q", c.Store.Driver))
	}
	if c.JWT.Secret == "" {
		errs = append(errs, errors.New("jwt.secret is required"))
	}
	if c.Engine.MaxAttempts < 1 {
		errs = append(errs, errors.New("engine.maxAttempts must be at least 1"))
	}
	if c.Engine.HistoryLimit < 1 {
		errs = append(errs, errors.New("engine.historyLimit must be at least 1"))
	}
	if _, err := time.LoadLocation(c.Engine.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("engine.timezone: %w", err))
	}
	if c.Engine.Leveling.MaxLevel < 1 {
		errs = append(errs, errors.New("engine.leveling.maxLevel must be at least 1"))
	}
	if c.Engine.Leveling.BaseXP <= 0 {
		errs = append(errs, errors.New("engine.leveling.baseXP must be positive"))
	}
	for track, m := range c.Engine.Leveling.Multipliers {
		if !track.Valid() {
			errs = append(errs, fmt.Errorf("engine.leveling.multipliers: unknown track %q", track))
		}
		if m <= 1 {
			errs = append(errs, fmt.Errorf("engine.leveling.multipliers.%s must be greater than 1", track))
		}
	}
	if c.RateLimit.Max < 1 || c.RateLimit.Window <= 0 {
		errs = append(errs, errors.New("rateLimit.max and rateLimit.window must be positive"))
	}
	return errors.Join(errs...)
}

// Location resolves engine.timezone; Validate has already checked it.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Engine.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
