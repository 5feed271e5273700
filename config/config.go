package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Storage   StorageConfig
	Booking   BookingConfig
	SMTP      SMTPConfig
	Scheduler SchedulerConfig
	Limiter   LimiterConfig
	HTTPAddr  string
	LogDir    string
	Searches  map[string]*SeedSearch
}

type StorageConfig struct {
	// Backend is "sqlite" or "postgres".
	Backend     string
	DatabaseURL string
	DBPath      string
}

type BookingConfig struct {
	BaseURL     string
	MetadataTTL time.Duration
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Sender   string
}

type SchedulerConfig struct {
	Interval time.Duration
	Cron     string
}

type LimiterConfig struct {
	MinDelayMS    int
	MaxDelayMS    int
	Adaptive      bool
	MaxProbes     int
	MaxSearches   int
	RetryAttempts int
}

// SeedSearch is a search definition loaded from config/searches/*.yaml.
// Missing searches are created on startup; existing ones are left alone.
type SeedSearch struct {
	Name               string          `yaml:"name"`
	Enabled            *bool           `yaml:"enabled"`
	DateRanges         []SeedDateRange `yaml:"date_ranges"`
	StayLengths        []int           `yaml:"stay_lengths"`
	Resorts            []int           `yaml:"resorts"`
	AccommodationTypes []int           `yaml:"accommodation_types"`
	Frequency          string          `yaml:"frequency"`
	CustomCron         string          `yaml:"custom_cron"`
	NotifyEmail        string          `yaml:"notify_email"`
	NotifyOnlyChanges  *bool           `yaml:"notify_only_changes"`
}

type SeedDateRange struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Storage: StorageConfig{
			Backend:     getEnv("STORAGE_BACKEND", "sqlite"),
			DatabaseURL: os.Getenv("DATABASE_URL"),
			DBPath:      getEnv("DB_PATH", "staywatch.db"),
		},
		Booking: BookingConfig{
			BaseURL:     getEnv("BOOKING_BASE_URL", "https://booking.sunparks.example"),
			MetadataTTL: getEnvDuration("BOOKING_METADATA_TTL", time.Hour),
		},
		SMTP: SMTPConfig{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     getEnvInt("SMTP_PORT", 587),
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
			Sender:   os.Getenv("SMTP_SENDER"),
		},
		Scheduler: SchedulerConfig{
			Cron: os.Getenv("SCHEDULE_CRON"),
		},
		Limiter: LimiterConfig{
			MinDelayMS:    getEnvInt("PROBE_MIN_DELAY_MS", 1000),
			MaxDelayMS:    getEnvInt("PROBE_MAX_DELAY_MS", 3000),
			Adaptive:      getEnv("PROBE_ADAPTIVE", "true") == "true",
			MaxProbes:     getEnvInt("MAX_CONCURRENT_PROBES", 1),
			MaxSearches:   getEnvInt("MAX_CONCURRENT_SEARCHES", 2),
			RetryAttempts: getEnvInt("PROBE_RETRY_ATTEMPTS", 3),
		},
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),
		LogDir:   getEnv("LOG_DIR", "logs"),
		Searches: make(map[string]*SeedSearch),
	}

	if interval := os.Getenv("SCHEDULE_INTERVAL"); interval != "" {
		d, err := time.ParseDuration(interval)
		if err == nil {
			cfg.Scheduler.Interval = d
		}
	}

	if err := cfg.loadSeedSearches(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadSeedSearches() error {
	configDir := "config/searches"
	entries, err := os.ReadDir(configDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".yaml" {
			continue
		}

		path := filepath.Join(configDir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		var seed SeedSearch
		if err := yaml.Unmarshal(data, &seed); err != nil {
			return err
		}

		c.Searches[seed.Name] = &seed
	}

	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
