package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	AppEnv         string
	ServerURL      string
	Zone           string
	GameVersion    string
	Origin         string
	Username       string
	Password       string
	ConnectTimeout time.Duration
	LoginTimeout   time.Duration
	RequestTimeout time.Duration
	MetricsAddr    string
	LogLevel       string
	RedisHost      string
	RedisPort      string
	RedisPassword  string
	RedisDB        int
	AutoReconnect  bool
	AccountsFile   string
	ScanRate       float64 // map chunk requests per second
}

func Load() (*Config, error) {
	cfg := &Config{
		AppEnv:        os.Getenv("APP_ENV"),
		ServerURL:     os.Getenv("EMPIRE_SERVER_URL"),
		Zone:          os.Getenv("EMPIRE_ZONE"),
		GameVersion:   os.Getenv("EMPIRE_GAME_VERSION"),
		Origin:        os.Getenv("EMPIRE_ORIGIN"),
		Username:      os.Getenv("EMPIRE_USERNAME"),
		Password:      os.Getenv("EMPIRE_PASSWORD"),
		MetricsAddr:   os.Getenv("EMPIRE_METRICS_ADDR"),
		LogLevel:      os.Getenv("LOG_LEVEL"),
		RedisHost:     os.Getenv("REDIS_HOST"),
		RedisPort:     os.Getenv("REDIS_PORT"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		AccountsFile:  os.Getenv("EMPIRE_ACCOUNTS_FILE"),
	}
	if cfg.ServerURL == "" {
		cfg.ServerURL = "wss://ep-live-us1-game.goodgamestudios.com/"
	}
	if cfg.Zone == "" {
		cfg.Zone = "EmpireEx_21"
	}
	if cfg.GameVersion == "" {
		cfg.GameVersion = "166"
	}
	if cfg.Origin == "" {
		cfg.Origin = "https://empire.goodgamestudios.com"
	}
	if cfg.RedisPort == "" {
		cfg.RedisPort = "6379"
	}

	var err error
	cfg.ConnectTimeout, err = durationEnv("EMPIRE_CONNECT_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	cfg.LoginTimeout, err = durationEnv("EMPIRE_LOGIN_TIMEOUT", 15*time.Second)
	if err != nil {
		return nil, err
	}
	cfg.RequestTimeout, err = durationEnv("EMPIRE_REQUEST_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		cfg.RedisDB, err = strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
		}
	}
	if v := os.Getenv("EMPIRE_AUTO_RECONNECT"); v != "" {
		cfg.AutoReconnect, err = strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid EMPIRE_AUTO_RECONNECT: %w", err)
		}
	}
	cfg.ScanRate = 2.0
	if v := os.Getenv("EMPIRE_SCAN_RATE"); v != "" {
		cfg.ScanRate, err = strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid EMPIRE_SCAN_RATE: %w", err)
		}
		if cfg.ScanRate <= 0 {
			return nil, fmt.Errorf("invalid EMPIRE_SCAN_RATE: must be positive")
		}
	}
	return cfg, nil
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return d, nil
}

// RedisAddr joins host and port for the cache client. Empty when no
// persistence backend is configured.
func (c *Config) RedisAddr() string {
	if c.RedisHost == "" {
		return ""
	}
	return c.RedisHost + ":" + c.RedisPort
}
